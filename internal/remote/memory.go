package remote

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Glorc12/AirConditionerCompany/internal/errs"
	"github.com/Glorc12/AirConditionerCompany/internal/models"
	"github.com/Glorc12/AirConditionerCompany/internal/permissions"
	"github.com/Glorc12/AirConditionerCompany/internal/vocab"
)

// Memory is an in-process backend used when no REMOTE_URL is configured and
// by tests. It issues real HS256 tokens and enforces the same status codes
// the HTTP backend maps.
type Memory struct {
	// BeforeCall runs outside the lock at the start of every operation.
	BeforeCall func(op string)

	mu       sync.Mutex
	secret   []byte
	tokenTTL time.Duration
	users    []memUser
	requests []Request
	nextID   int64
	comments []Comment
	nextCID  int64
	failures map[string][]error
	calls    map[string]int
}

type memUser struct {
	id       int64
	login    string
	password string
	fullName string
	userType string
}

type memClaims struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

const maxPageLimit = 100

func NewMemory() *Memory {
	m := &Memory{
		secret:   []byte(uuid.NewString()),
		tokenTTL: 24 * time.Hour,
		failures: map[string][]error{},
		calls:    map[string]int{},
		nextID:   1003,
		nextCID:  1,
	}
	m.users = []memUser{
		{1, "admin", "admin", "Администратор Системы", "Администратор"},
		{2, "operator", "operator", "Оператор Ольга", "Оператор"},
		{3, "master", "master", "Сидоров С.С.", "Специалист"},
		{4, "master2", "master2", "Кузнецов К.К.", "Специалист"},
		{5, "manager", "manager", "Менеджер Мария", "Менеджер по качеству"},
		{6, "client", "client", "Иванов Иван", "Заказчик"},
		{7, "client2", "client2", "Петров Петр", "Заказчик"},
	}
	now := time.Now().UTC()
	m.requests = []Request{
		{
			RequestID:          1001,
			StartDate:          now.Format(DateLayout),
			ClimateTechType:    "Кондиционер",
			ClimateTechModel:   "Daikin FTXF",
			ProblemDescription: "Не охлаждает, слышен шум",
			RequestStatus:      vocab.ToBackendStatus(models.StatusOpen),
			ClientID:           int64Ptr(6),
			ClientName:         "Иванов Иван",
			FaultType:          "Плохое охлаждение",
		},
		{
			RequestID:          1002,
			StartDate:          now.Add(-36 * time.Hour).Format(DateLayout),
			ClimateTechType:    "Вентиляция",
			ClimateTechModel:   "Systemair VTR",
			ProblemDescription: "Ошибка датчика, периодически отключается",
			RequestStatus:      vocab.ToBackendStatus(models.StatusInProgress),
			MasterID:           int64Ptr(3),
			ClientID:           int64Ptr(7),
			ClientName:         "Петров Петр",
			FaultType:          "Электрика",
		},
	}
	return m
}

func int64Ptr(v int64) *int64 { return &v }

// FailNext makes the next call of op return err.
func (m *Memory) FailNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = append(m.failures[op], err)
}

func (m *Memory) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *Memory) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.calls {
		total += n
	}
	return total
}

// Seed appends a request and returns its id. A zero RequestID gets the next free id.
func (m *Memory) Seed(r Request) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.RequestID == 0 {
		r.RequestID = m.nextID
	}
	if r.RequestID >= m.nextID {
		m.nextID = r.RequestID + 1
	}
	m.requests = append(m.requests, r)
	return r.RequestID
}

// Comments returns the comments posted for a request in arrival order.
func (m *Memory) Comments(requestID int64) []Comment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commentsFor(requestID)
}

func (m *Memory) commentsFor(requestID int64) []Comment {
	var out []Comment
	for _, c := range m.comments {
		if c.RequestID == requestID {
			out = append(out, c)
		}
	}
	return out
}

// IssueToken signs a token for an existing user with the given lifetime.
func (m *Memory) IssueToken(userID int64, ttl time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.userByID(userID)
	if !ok {
		return "", errs.ErrNotFound
	}
	return m.sign(u, ttl)
}

func (m *Memory) sign(u memUser, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := memClaims{
		UserID: u.id,
		Role:   u.userType,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "repair-desk-memory",
			Subject:   fmt.Sprint(u.id),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (m *Memory) userByID(id int64) (memUser, bool) {
	for _, u := range m.users {
		if u.id == id {
			return u, true
		}
	}
	return memUser{}, false
}

// enter runs the hook, then returns with m.mu held. The caller must unlock.
func (m *Memory) enter(ctx context.Context, op string) error {
	if hook := m.BeforeCall; hook != nil {
		hook(op)
	}
	m.mu.Lock()
	m.calls[op]++
	if err := ctx.Err(); err != nil {
		return errs.Sync(err)
	}
	if queued := m.failures[op]; len(queued) > 0 {
		m.failures[op] = queued[1:]
		return queued[0]
	}
	return nil
}

// authorize must be called with m.mu held.
func (m *Memory) authorize(token string) (memUser, error) {
	claims := &memClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !parsed.Valid {
		return memUser{}, errs.ErrUnauthorized
	}
	u, ok := m.userByID(claims.UserID)
	if !ok {
		return memUser{}, errs.ErrUnauthorized
	}
	return u, nil
}

// call returns with m.mu held.
func (m *Memory) call(ctx context.Context, op, token string) (memUser, error) {
	if err := m.enter(ctx, op); err != nil {
		return memUser{}, err
	}
	u, err := m.authorize(token)
	if err != nil {
		return memUser{}, err
	}
	return u, nil
}

func (m *Memory) index(id int64) int {
	for i, r := range m.requests {
		if r.RequestID == id {
			return i
		}
	}
	return -1
}

func (m *Memory) Authenticate(ctx context.Context, login, password string) (LoginResult, error) {
	err := m.enter(ctx, OpAuthenticate)
	defer m.mu.Unlock()
	if err != nil {
		return LoginResult{}, err
	}
	for _, u := range m.users {
		if u.login == strings.TrimSpace(login) && u.password == password {
			token, err := m.sign(u, m.tokenTTL)
			if err != nil {
				return LoginResult{}, errs.Sync(err)
			}
			return LoginResult{AccessToken: token, UserID: u.id, Login: u.login, FullName: u.fullName, UserType: u.userType}, nil
		}
	}
	return LoginResult{}, errs.ErrAuth
}

func (m *Memory) ListRequests(ctx context.Context, token string, page, limit int) (Page, error) {
	if token == "" {
		return Page{}, errs.ErrUnauthorized
	}
	_, err := m.call(ctx, OpListRequests, token)
	defer m.mu.Unlock()
	if err != nil {
		return Page{}, err
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > maxPageLimit {
		limit = maxPageLimit
	}
	sorted := make([]Request, len(m.requests))
	copy(sorted, m.requests)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].RequestID < sorted[j].RequestID })

	total := len(sorted)
	pages := (total + limit - 1) / limit
	start := (page - 1) * limit
	data := []Request{}
	if start < total {
		end := start + limit
		if end > total {
			end = total
		}
		data = append(data, sorted[start:end]...)
	}
	return Page{Data: data, Pagination: Pagination{Page: page, Limit: limit, Total: total, Pages: pages}}, nil
}

func (m *Memory) GetRequest(ctx context.Context, token string, id int64) (Request, error) {
	if token == "" {
		return Request{}, errs.ErrUnauthorized
	}
	_, err := m.call(ctx, OpGetRequest, token)
	defer m.mu.Unlock()
	if err != nil {
		return Request{}, err
	}
	i := m.index(id)
	if i < 0 {
		return Request{}, errs.ErrNotFound
	}
	return m.requests[i], nil
}

func (m *Memory) CreateRequest(ctx context.Context, token string, fields CreateFields) (Request, error) {
	if token == "" {
		return Request{}, errs.ErrUnauthorized
	}
	_, err := m.call(ctx, OpCreateRequest, token)
	defer m.mu.Unlock()
	if err != nil {
		return Request{}, err
	}
	if fields.ClimateTechType == "" || fields.ClimateTechModel == "" || fields.ProblemDescription == "" {
		return Request{}, fmt.Errorf("%w: missing required fields", errs.ErrValidation)
	}
	if fields.ClientID == 0 {
		return Request{}, fmt.Errorf("%w: client_id", errs.ErrValidation)
	}
	r := Request{
		RequestID:          m.nextID,
		StartDate:          time.Now().UTC().Format(DateLayout),
		ClimateTechType:    fields.ClimateTechType,
		ClimateTechModel:   fields.ClimateTechModel,
		ProblemDescription: fields.ProblemDescription,
		RequestStatus:      vocab.ToBackendStatus(models.StatusOpen),
		FaultType:          fields.FaultType,
	}
	r.ClientID = int64Ptr(fields.ClientID)
	if u, ok := m.userByID(fields.ClientID); ok {
		r.ClientName = u.fullName
	}
	m.nextID++
	m.requests = append(m.requests, r)
	return r, nil
}

func (m *Memory) UpdateRequest(ctx context.Context, token string, id int64, fields UpdateFields) (Request, error) {
	if token == "" {
		return Request{}, errs.ErrUnauthorized
	}
	u, err := m.call(ctx, OpUpdateRequest, token)
	defer m.mu.Unlock()
	if err != nil {
		return Request{}, err
	}
	if !permissions.Can(vocab.ToCanonicalRole(u.userType), permissions.EditRequests) {
		return Request{}, errs.ErrPermissionDenied
	}
	i := m.index(id)
	if i < 0 {
		return Request{}, errs.ErrNotFound
	}
	r := m.requests[i]
	if fields.RequestStatus != nil {
		if strings.TrimSpace(*fields.RequestStatus) == "" {
			return Request{}, fmt.Errorf("%w: request_status", errs.ErrValidation)
		}
		r.RequestStatus = *fields.RequestStatus
	}
	if fields.MasterID != nil {
		if spec, ok := m.userByID(*fields.MasterID); !ok || vocab.ToCanonicalRole(spec.userType) != models.RoleSpecialist {
			return Request{}, fmt.Errorf("%w: master_id", errs.ErrValidation)
		}
		r.MasterID = int64Ptr(*fields.MasterID)
	}
	if fields.CompletionDate != nil {
		if _, err := time.Parse(DateLayout, *fields.CompletionDate); err != nil {
			return Request{}, fmt.Errorf("%w: completion_date", errs.ErrValidation)
		}
		r.CompletionDate = *fields.CompletionDate
	}
	if fields.Deadline != nil {
		r.Deadline = *fields.Deadline
	}
	if fields.FaultType != nil {
		r.FaultType = *fields.FaultType
	}
	m.requests[i] = r
	return r, nil
}

func (m *Memory) DeleteRequest(ctx context.Context, token string, id int64) error {
	if token == "" {
		return errs.ErrUnauthorized
	}
	u, err := m.call(ctx, OpDeleteRequest, token)
	defer m.mu.Unlock()
	if err != nil {
		return err
	}
	if !permissions.Can(vocab.ToCanonicalRole(u.userType), permissions.DeleteRequests) {
		return errs.ErrPermissionDenied
	}
	i := m.index(id)
	if i < 0 {
		return errs.ErrNotFound
	}
	m.requests = append(m.requests[:i], m.requests[i+1:]...)
	return nil
}

func (m *Memory) ListSpecialists(ctx context.Context, token string) ([]Specialist, error) {
	if token == "" {
		return nil, errs.ErrUnauthorized
	}
	_, err := m.call(ctx, OpListSpecialists, token)
	defer m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := []Specialist{}
	for _, u := range m.users {
		if vocab.ToCanonicalRole(u.userType) == models.RoleSpecialist {
			out = append(out, Specialist{UserID: u.id, FullName: u.fullName})
		}
	}
	return out, nil
}

func (m *Memory) AddComment(ctx context.Context, token string, fields CommentFields) (Comment, error) {
	if token == "" {
		return Comment{}, errs.ErrUnauthorized
	}
	_, err := m.call(ctx, OpAddComment, token)
	defer m.mu.Unlock()
	if err != nil {
		return Comment{}, err
	}
	if strings.TrimSpace(fields.Message) == "" {
		return Comment{}, fmt.Errorf("%w: message", errs.ErrValidation)
	}
	if m.index(fields.RequestID) < 0 {
		return Comment{}, errs.ErrNotFound
	}
	c := Comment{
		CommentID: m.nextCID,
		Message:   fields.Message,
		MasterID:  fields.MasterID,
		RequestID: fields.RequestID,
		CreatedAt: time.Now().UTC().Format(DateLayout),
	}
	m.nextCID++
	m.comments = append(m.comments, c)
	return c, nil
}

func (m *Memory) ListComments(ctx context.Context, token string, requestID int64) ([]Comment, error) {
	if token == "" {
		return nil, errs.ErrUnauthorized
	}
	_, err := m.call(ctx, OpListComments, token)
	defer m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if m.index(requestID) < 0 {
		return nil, errs.ErrNotFound
	}
	return m.commentsFor(requestID), nil
}
