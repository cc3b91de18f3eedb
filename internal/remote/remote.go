// Package remote talks to the authoritative repair backend.
//
// All request operations carry the session token explicitly. A call with an
// empty token fails with errs.ErrUnauthorized before touching the network.
package remote

import "context"

const (
	OpAuthenticate    = "authenticate"
	OpListRequests    = "list_requests"
	OpGetRequest      = "get_request"
	OpCreateRequest   = "create_request"
	OpUpdateRequest   = "update_request"
	OpDeleteRequest   = "delete_request"
	OpListSpecialists = "list_specialists"
	OpAddComment      = "add_comment"
	OpListComments    = "list_comments"
)

type Client interface {
	Authenticate(ctx context.Context, login, password string) (LoginResult, error)
	ListRequests(ctx context.Context, token string, page, limit int) (Page, error)
	GetRequest(ctx context.Context, token string, id int64) (Request, error)
	CreateRequest(ctx context.Context, token string, fields CreateFields) (Request, error)
	UpdateRequest(ctx context.Context, token string, id int64, fields UpdateFields) (Request, error)
	DeleteRequest(ctx context.Context, token string, id int64) error
	ListSpecialists(ctx context.Context, token string) ([]Specialist, error)
	AddComment(ctx context.Context, token string, fields CommentFields) (Comment, error)
	ListComments(ctx context.Context, token string, requestID int64) ([]Comment, error)
}

type LoginResult struct {
	AccessToken string `json:"access_token"`
	UserID      int64  `json:"user_id"`
	Login       string `json:"login"`
	FullName    string `json:"full_name"`
	UserType    string `json:"user_type"`
}

// Request is the backend's wire shape of a repair request. Dates are ISO
// strings; nullable columns decode to their zero value.
type Request struct {
	RequestID          int64  `json:"request_id"`
	StartDate          string `json:"start_date"`
	ClimateTechType    string `json:"climate_tech_type"`
	ClimateTechModel   string `json:"climate_tech_model"`
	ProblemDescription string `json:"problem_description"`
	RequestStatus      string `json:"request_status"`
	CompletionDate     string `json:"completion_date"`
	RepairParts        string `json:"repair_parts"`
	MasterID           *int64 `json:"master_id"`
	ClientID           *int64 `json:"client_id"`
	ClientName         string `json:"client_name,omitempty"`
	Deadline           string `json:"deadline,omitempty"`
	FaultType          string `json:"fault_type,omitempty"`
}

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

type Page struct {
	Data       []Request  `json:"data"`
	Pagination Pagination `json:"pagination"`
}

type Specialist struct {
	UserID   int64  `json:"user_id"`
	FullName string `json:"full_name"`
}

type CreateFields struct {
	ClimateTechType    string `json:"climate_tech_type"`
	ClimateTechModel   string `json:"climate_tech_model"`
	ProblemDescription string `json:"problem_description"`
	ClientID           int64  `json:"client_id"`
	FaultType          string `json:"fault_type,omitempty"`
}

// UpdateFields is a partial update; nil fields are left untouched remotely.
type UpdateFields struct {
	RequestStatus  *string `json:"request_status,omitempty"`
	MasterID       *int64  `json:"master_id,omitempty"`
	CompletionDate *string `json:"completion_date,omitempty"`
	Deadline       *string `json:"deadline,omitempty"`
	FaultType      *string `json:"fault_type,omitempty"`
}

func (u UpdateFields) Empty() bool {
	return u.RequestStatus == nil && u.MasterID == nil && u.CompletionDate == nil &&
		u.Deadline == nil && u.FaultType == nil
}

type CommentFields struct {
	Message   string `json:"message"`
	MasterID  int64  `json:"master_id"`
	RequestID int64  `json:"request_id"`
}

// Comment is a stored comment as the backend returns it. CreatedAt is the
// backend's naive UTC timestamp.
type Comment struct {
	CommentID int64  `json:"comment_id"`
	Message   string `json:"message"`
	MasterID  int64  `json:"master_id"`
	RequestID int64  `json:"request_id"`
	CreatedAt string `json:"created_at"`
}

// DateLayout is the timestamp layout written to the backend.
const DateLayout = "2006-01-02T15:04:05-07:00"
