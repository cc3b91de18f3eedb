package query

import (
	"math"
	"sort"
	"strings"

	"github.com/Glorc12/AirConditionerCompany/internal/models"
)

// Apply returns the records matching f, newest first. The input is not modified.
func Apply(records []models.RequestRecord, f models.Filter) []models.RequestRecord {
	out := make([]models.RequestRecord, len(records))
	copy(out, records)

	if text := strings.ToLower(strings.TrimSpace(f.Text)); text != "" {
		out = filterRecords(out, func(r models.RequestRecord) bool {
			return containsFold(r.ID, text) ||
				containsFold(r.CustomerRef, text) ||
				containsFold(r.Phone, text) ||
				containsFold(r.Model, text)
		})
	}
	if f.Status != "" {
		out = filterRecords(out, func(r models.RequestRecord) bool {
			return r.Status == f.Status
		})
	}
	if assignee := strings.ToLower(strings.TrimSpace(f.Assignee)); assignee != "" {
		out = filterRecords(out, func(r models.RequestRecord) bool {
			return containsFold(r.AssigneeLabel, assignee)
		})
	}

	SortByCreatedDesc(out)
	return out
}

// SortByCreatedDesc orders records newest first. Records with an unknown
// creation time carry the zero time and therefore sort last.
func SortByCreatedDesc(records []models.RequestRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
}

func containsFold(s, lowerNeedle string) bool {
	return strings.Contains(strings.ToLower(s), lowerNeedle)
}

func filterRecords(records []models.RequestRecord, keep func(models.RequestRecord) bool) []models.RequestRecord {
	out := make([]models.RequestRecord, 0, len(records))
	for _, r := range records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

type CommentOrder string

const (
	// ByCreated is the display order.
	ByCreated CommentOrder = "created"
	// ByInsertion is the order comments were appended in.
	ByInsertion CommentOrder = "insertion"
)

func SortedComments(comments []models.Comment, order CommentOrder) []models.Comment {
	out := make([]models.Comment, len(comments))
	copy(out, comments)
	if order == ByInsertion {
		return out
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

type Workload struct {
	SpecialistID string `json:"specialist_id"`
	DisplayName  string `json:"display_name"`
	Assigned     int    `json:"assigned"`
	Active       int    `json:"active"`
}

type Stats struct {
	Total              int            `json:"total"`
	Done               int            `json:"done"`
	AvgCompletionHours float64        `json:"avg_completion_hours"`
	ByStatus           map[string]int `json:"by_status"`
	ByFaultType        map[string]int `json:"by_fault_type"`
	ByEquipment        map[string]int `json:"by_equipment"`
	Workload           []Workload     `json:"workload"`
}

const unspecified = "Не указано"

// Summarize computes the desk KPIs over the cached records.
func Summarize(records []models.RequestRecord, specialists []models.Specialist) Stats {
	st := Stats{
		ByStatus:    map[string]int{},
		ByFaultType: map[string]int{},
		ByEquipment: map[string]int{},
	}
	var hours float64
	var completed int
	for _, r := range records {
		st.Total++
		st.ByStatus[string(r.Status)]++
		if r.Status == models.StatusDone {
			st.Done++
		}
		st.ByFaultType[orUnspecified(r.FaultType)]++
		st.ByEquipment[orUnspecified(r.EquipmentType)]++
		if r.CompletedAt != nil && !r.CreatedAt.IsZero() && !r.CompletedAt.Before(r.CreatedAt) {
			hours += r.CompletedAt.Sub(r.CreatedAt).Hours()
			completed++
		}
	}
	if completed > 0 {
		st.AvgCompletionHours = math.Round(hours/float64(completed)*10) / 10
	}

	st.Workload = workload(records, specialists)
	sort.SliceStable(st.Workload, func(i, j int) bool {
		if st.Workload[i].Assigned == st.Workload[j].Assigned {
			return st.Workload[i].SpecialistID < st.Workload[j].SpecialistID
		}
		return st.Workload[i].Assigned > st.Workload[j].Assigned
	})
	return st
}

// RankSpecialists orders specialists by active load, least loaded first.
// Ties are broken by id so the order is deterministic.
func RankSpecialists(records []models.RequestRecord, specialists []models.Specialist) []Workload {
	out := workload(records, specialists)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Active == out[j].Active {
			return out[i].SpecialistID < out[j].SpecialistID
		}
		return out[i].Active < out[j].Active
	})
	return out
}

func workload(records []models.RequestRecord, specialists []models.Specialist) []Workload {
	idx := map[string]int{}
	out := make([]Workload, 0, len(specialists))
	for _, s := range specialists {
		idx[s.ID] = len(out)
		out = append(out, Workload{SpecialistID: s.ID, DisplayName: s.DisplayName})
	}
	for _, r := range records {
		if r.AssigneeID == nil || *r.AssigneeID == "" {
			continue
		}
		i, ok := idx[*r.AssigneeID]
		if !ok {
			i = len(out)
			idx[*r.AssigneeID] = i
			out = append(out, Workload{SpecialistID: *r.AssigneeID, DisplayName: r.AssigneeLabel})
		}
		out[i].Assigned++
		if r.Status != models.StatusDone {
			out[i].Active++
		}
	}
	return out
}

func orUnspecified(s string) string {
	if strings.TrimSpace(s) == "" {
		return unspecified
	}
	return s
}
