package syncer

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Glorc12/AirConditionerCompany/internal/errs"
	"github.com/Glorc12/AirConditionerCompany/internal/models"
	"github.com/Glorc12/AirConditionerCompany/internal/remote"
	"github.com/Glorc12/AirConditionerCompany/internal/vocab"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	remote.DateLayout,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTime returns the zero time for empty or unparsable input.
func parseTime(v string) time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func parseTimePtr(v string) *time.Time {
	t := parseTime(v)
	if t.IsZero() {
		return nil
	}
	return &t
}

func specialistIndex(specialists []models.Specialist) map[string]string {
	out := make(map[string]string, len(specialists))
	for _, s := range specialists {
		out[s.ID] = s.DisplayName
	}
	return out
}

// assigneeLabel never blocks on a missing specialist list.
func assigneeLabel(id *string, names map[string]string) string {
	if id == nil || *id == "" {
		return ""
	}
	if name, ok := names[*id]; ok && name != "" {
		return name
	}
	return "Специалист #" + *id
}

// project maps a backend record into the canonical shape. Fields the backend
// does not carry are taken from prev, the previously cached version.
func project(r remote.Request, prev *models.RequestRecord, names map[string]string, logger zerolog.Logger) models.RequestRecord {
	rec := models.RequestRecord{
		ID:                 strconv.FormatInt(r.RequestID, 10),
		CreatedAt:          parseTime(r.StartDate),
		EquipmentType:      r.ClimateTechType,
		Model:              r.ClimateTechModel,
		ProblemDescription: r.ProblemDescription,
		Status:             vocab.ToCanonicalStatus(r.RequestStatus),
		CompletedAt:        parseTimePtr(r.CompletionDate),
		Deadline:           parseTimePtr(r.Deadline),
		FaultType:          r.FaultType,
		RepairParts:        r.RepairParts,
		Comments:           []models.Comment{},
	}
	if r.MasterID != nil {
		id := strconv.FormatInt(*r.MasterID, 10)
		rec.AssigneeID = &id
	}
	rec.AssigneeLabel = assigneeLabel(rec.AssigneeID, names)

	switch {
	case r.ClientName != "":
		rec.CustomerRef = r.ClientName
	case prev != nil && prev.CustomerRef != "":
		rec.CustomerRef = prev.CustomerRef
	case r.ClientID != nil:
		rec.CustomerRef = fmt.Sprintf("Клиент #%d", *r.ClientID)
	}

	if prev != nil {
		rec.Phone = prev.Phone
		if prev.Comments != nil {
			rec.Comments = append([]models.Comment(nil), prev.Comments...)
		}
		if rec.Deadline == nil && prev.Deadline != nil {
			d := *prev.Deadline
			rec.Deadline = &d
		}
		if rec.FaultType == "" {
			rec.FaultType = prev.FaultType
		}
	}

	if rec.Status == models.StatusDone && rec.CompletedAt == nil {
		logger.Warn().Str("request_id", rec.ID).Msg("request is done without a completion date")
	}
	return rec
}

// mergeComments replaces the cached comments of a record with the backend's
// list, keeping locally known authors. Cached comments without a backend id
// are kept after the confirmed ones.
func mergeComments(in []remote.Comment, cached []models.Comment, names map[string]string) []models.Comment {
	known := make(map[string]models.Comment, len(cached))
	for _, c := range cached {
		known[c.ID] = c
	}
	out := make([]models.Comment, 0, len(in)+len(cached))
	for _, c := range in {
		mc := models.Comment{
			ID:        strconv.FormatInt(c.CommentID, 10),
			Text:      c.Message,
			CreatedAt: parseTime(c.CreatedAt),
		}
		if prev, ok := known[mc.ID]; ok {
			mc.Author = prev.Author
			if mc.CreatedAt.IsZero() {
				mc.CreatedAt = prev.CreatedAt
			}
		}
		if mc.Author == "" {
			mc.Author = commentAuthor(c.MasterID, names)
		}
		out = append(out, mc)
	}
	for _, c := range cached {
		if _, err := strconv.ParseInt(c.ID, 10, 64); err == nil {
			continue
		}
		out = append(out, c)
	}
	return out
}

func commentAuthor(userID int64, names map[string]string) string {
	id := strconv.FormatInt(userID, 10)
	if name, ok := names[id]; ok && name != "" {
		return name
	}
	return "Пользователь #" + id
}

func projectSpecialists(in []remote.Specialist) []models.Specialist {
	out := make([]models.Specialist, 0, len(in))
	for _, s := range in {
		out = append(out, models.Specialist{ID: strconv.FormatInt(s.UserID, 10), DisplayName: s.FullName})
	}
	return out
}

// diffFields derives the partial remote update that turns before into after.
func diffFields(before, after models.RequestRecord) (remote.UpdateFields, error) {
	var f remote.UpdateFields
	if before.Status != after.Status {
		s := vocab.ToBackendStatus(after.Status)
		f.RequestStatus = &s
	}
	if after.AssigneeID != nil && (before.AssigneeID == nil || *before.AssigneeID != *after.AssigneeID) {
		id, err := strconv.ParseInt(*after.AssigneeID, 10, 64)
		if err != nil {
			return remote.UpdateFields{}, errs.Validation("assignee_id")
		}
		f.MasterID = &id
	}
	if after.CompletedAt != nil && !sameTime(before.CompletedAt, after.CompletedAt) {
		s := after.CompletedAt.UTC().Format(remote.DateLayout)
		f.CompletionDate = &s
	}
	if after.Deadline != nil && !sameTime(before.Deadline, after.Deadline) {
		s := after.Deadline.UTC().Format(remote.DateLayout)
		f.Deadline = &s
	}
	if before.FaultType != after.FaultType {
		ft := after.FaultType
		f.FaultType = &ft
	}
	return f, nil
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func remoteID(id string) (int64, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: request %s is not confirmed by the backend", errs.ErrNotFound, id)
	}
	return n, nil
}
