package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Glorc12/AirConditionerCompany/internal/models"
)

func strPtr(s string) *string { return &s }

func sample() []models.RequestRecord {
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	done := base.Add(48 * time.Hour)
	return []models.RequestRecord{
		{ID: "1001", CustomerRef: "Ivanov", Phone: "+7 900 000-00-00", Model: "Daikin FTXF", Status: models.StatusOpen, CreatedAt: base, FaultType: "Плохое охлаждение", EquipmentType: "Кондиционер"},
		{ID: "1002", CustomerRef: "Petrov", Phone: "+7 901 111-11-11", Model: "Systemair VTR", Status: models.StatusInProgress, CreatedAt: base.Add(-36 * time.Hour), AssigneeID: strPtr("3"), AssigneeLabel: "Сидоров С.С.", FaultType: "Электрика", EquipmentType: "Вентиляция"},
		{ID: "1003", CustomerRef: "Sidorenko", Model: "LG S09", Status: models.StatusDone, CreatedAt: base.Add(time.Hour), CompletedAt: &done, AssigneeID: strPtr("3"), AssigneeLabel: "Сидоров С.С."},
		{ID: "1004", CustomerRef: "Unknown date", Status: models.StatusOpen},
	}
}

func ids(records []models.RequestRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

func TestApplyTextFilter(t *testing.T) {
	got := Apply(sample(), models.Filter{Text: "petr"})
	assert.Equal(t, []string{"1002"}, ids(got))

	got = Apply(sample(), models.Filter{Text: "PETR"})
	assert.Equal(t, []string{"1002"}, ids(got))

	assert.Equal(t, []string{"1001"}, ids(Apply(sample(), models.Filter{Text: "1001"})))
	assert.Equal(t, []string{"1002"}, ids(Apply(sample(), models.Filter{Text: "901 111"})))
	assert.Equal(t, []string{"1003"}, ids(Apply(sample(), models.Filter{Text: "lg s"})))
}

func TestApplyStatusAndAssignee(t *testing.T) {
	got := Apply(sample(), models.Filter{Status: models.StatusOpen})
	assert.Equal(t, []string{"1001", "1004"}, ids(got))

	got = Apply(sample(), models.Filter{Assignee: "сидор"})
	assert.Equal(t, []string{"1003", "1002"}, ids(got))

	got = Apply(sample(), models.Filter{Assignee: "сидор", Status: models.StatusDone})
	assert.Equal(t, []string{"1003"}, ids(got))
}

func TestApplySortsNewestFirstUnknownLast(t *testing.T) {
	got := Apply(sample(), models.Filter{})
	assert.Equal(t, []string{"1003", "1001", "1002", "1004"}, ids(got))
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	in := sample()
	_ = Apply(in, models.Filter{})
	assert.Equal(t, []string{"1001", "1002", "1003", "1004"}, ids(in))
}

func TestSortedComments(t *testing.T) {
	t1 := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)
	t3 := t2.Add(time.Minute)
	appended := []models.Comment{
		{ID: "b", CreatedAt: t2},
		{ID: "a", CreatedAt: t1},
		{ID: "c", CreatedAt: t3},
	}

	byCreated := SortedComments(appended, ByCreated)
	assert.Equal(t, []string{"a", "b", "c"}, []string{byCreated[0].ID, byCreated[1].ID, byCreated[2].ID})

	history := SortedComments(appended, ByInsertion)
	assert.Equal(t, []string{"b", "a", "c"}, []string{history[0].ID, history[1].ID, history[2].ID})
	assert.Equal(t, "b", appended[0].ID)
}

func TestSummarize(t *testing.T) {
	specialists := []models.Specialist{{ID: "3", DisplayName: "Сидоров С.С."}, {ID: "4", DisplayName: "Кузнецов К.К."}}
	st := Summarize(sample(), specialists)

	assert.Equal(t, 4, st.Total)
	assert.Equal(t, 1, st.Done)
	assert.Equal(t, 47.0, st.AvgCompletionHours)
	assert.Equal(t, 2, st.ByFaultType["Не указано"])
	assert.Equal(t, 1, st.ByFaultType["Электрика"])
	assert.Equal(t, 2, st.ByStatus["open"])
	require.Len(t, st.Workload, 2)
	assert.Equal(t, Workload{SpecialistID: "3", DisplayName: "Сидоров С.С.", Assigned: 2, Active: 1}, st.Workload[0])
	assert.Equal(t, 0, st.Workload[1].Assigned)
}

func TestRankSpecialistsLeastLoadedFirst(t *testing.T) {
	specialists := []models.Specialist{{ID: "3", DisplayName: "Сидоров С.С."}, {ID: "4", DisplayName: "Кузнецов К.К."}}
	ranked := RankSpecialists(sample(), specialists)
	require.Len(t, ranked, 2)
	assert.Equal(t, "4", ranked[0].SpecialistID)
	assert.Equal(t, "3", ranked[1].SpecialistID)
}

func TestSummarizeEmpty(t *testing.T) {
	st := Summarize(nil, nil)
	assert.Equal(t, 0, st.Total)
	assert.Equal(t, 0.0, st.AvgCompletionHours)
	assert.Empty(t, st.Workload)
}
