package models

import (
	"strings"
	"time"
)

type Status string

const (
	StatusOpen         Status = "open"
	StatusInProgress   Status = "in_progress"
	StatusWaitingParts Status = "waiting_parts"
	StatusDone         Status = "done"
)

// StatusOrder is the fixed cycle used for manual advancement.
var StatusOrder = []Status{StatusOpen, StatusInProgress, StatusWaitingParts, StatusDone}

// Next returns the following status in StatusOrder, wrapping Done back to Open.
// Unknown values advance as if they were Open.
func (s Status) Next() Status {
	idx := 0
	for i, st := range StatusOrder {
		if st == s {
			idx = i
			break
		}
	}
	return StatusOrder[(idx+1)%len(StatusOrder)]
}

func (s Status) Valid() bool {
	for _, st := range StatusOrder {
		if st == s {
			return true
		}
	}
	return false
}

type Role string

const (
	RoleAdmin          Role = "admin"
	RoleOperator       Role = "operator"
	RoleSpecialist     Role = "specialist"
	RoleQualityManager Role = "quality_manager"
	RoleCustomer       Role = "customer"
)

var Roles = []Role{RoleAdmin, RoleOperator, RoleSpecialist, RoleQualityManager, RoleCustomer}

type Session struct {
	UserID      string     `json:"user_id"`
	Login       string     `json:"login"`
	DisplayName string     `json:"display_name"`
	Role        Role       `json:"role"`
	Token       string     `json:"token"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

func (s Session) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && !now.Before(*s.ExpiresAt)
}

type Comment struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
	Text      string    `json:"text"`
}

type RequestRecord struct {
	ID                 string     `json:"id"`
	CreatedAt          time.Time  `json:"created_at"`
	EquipmentType      string     `json:"equipment_type"`
	Model              string     `json:"model"`
	ProblemDescription string     `json:"problem_description"`
	CustomerRef        string     `json:"customer_ref"`
	Phone              string     `json:"phone"`
	Status             Status     `json:"status"`
	AssigneeID         *string    `json:"assignee_id"`
	AssigneeLabel      string     `json:"assignee_label"`
	Deadline           *time.Time `json:"deadline"`
	CompletedAt        *time.Time `json:"completed_at"`
	FaultType          string     `json:"fault_type"`
	RepairParts        string     `json:"repair_parts,omitempty"`
	Comments           []Comment  `json:"comments"`
}

// Clone returns a deep copy so snapshots never alias the live record.
func (r RequestRecord) Clone() RequestRecord {
	out := r
	if r.AssigneeID != nil {
		v := *r.AssigneeID
		out.AssigneeID = &v
	}
	if r.Deadline != nil {
		v := *r.Deadline
		out.Deadline = &v
	}
	if r.CompletedAt != nil {
		v := *r.CompletedAt
		out.CompletedAt = &v
	}
	if r.Comments != nil {
		out.Comments = make([]Comment, len(r.Comments))
		copy(out.Comments, r.Comments)
	}
	return out
}

// ProvisionalPrefix marks client-generated ids of records not yet confirmed remotely.
const ProvisionalPrefix = "pending-"

func IsProvisional(id string) bool {
	return strings.HasPrefix(id, ProvisionalPrefix)
}

type Specialist struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type NewRequest struct {
	EquipmentType      string `json:"equipment_type" validate:"required"`
	Model              string `json:"model" validate:"required"`
	ProblemDescription string `json:"problem_description" validate:"required"`
	CustomerRef        string `json:"customer_ref"`
	ClientID           string `json:"client_id" validate:"omitempty,numeric"`
	Phone              string `json:"phone"`
	FaultType          string `json:"fault_type"`
}

func (n NewRequest) Trimmed() NewRequest {
	return NewRequest{
		EquipmentType:      strings.TrimSpace(n.EquipmentType),
		Model:              strings.TrimSpace(n.Model),
		ProblemDescription: strings.TrimSpace(n.ProblemDescription),
		CustomerRef:        strings.TrimSpace(n.CustomerRef),
		ClientID:           strings.TrimSpace(n.ClientID),
		Phone:              strings.TrimSpace(n.Phone),
		FaultType:          strings.TrimSpace(n.FaultType),
	}
}

type Filter struct {
	Text     string `form:"q" json:"q"`
	Status   Status `form:"status" json:"status"`
	Assignee string `form:"assignee" json:"assignee"`
}
