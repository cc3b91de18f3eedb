package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Glorc12/AirConditionerCompany/internal/cache"
	"github.com/Glorc12/AirConditionerCompany/internal/errs"
	"github.com/Glorc12/AirConditionerCompany/internal/lifecycle"
	"github.com/Glorc12/AirConditionerCompany/internal/models"
	"github.com/Glorc12/AirConditionerCompany/internal/remote"
	"github.com/Glorc12/AirConditionerCompany/internal/session"
	"github.com/Glorc12/AirConditionerCompany/internal/syncer"
)

var assertSync = errs.Sync(errors.New("backend down"))

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details any    `json:"details"`
	} `json:"error"`
}

func newTestHandler(t *testing.T) (*Handler, *remote.Memory, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	backend, err := cache.OpenBadger("", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })
	store := cache.New(backend, zerolog.Nop(), time.Second)

	mem := remote.NewMemory()
	engine := syncer.New(mem, store, zerolog.Nop(), syncer.Options{})
	mgr := session.NewManager(mem, store, engine, zerolog.Nop())
	h := &Handler{
		Sessions:   mgr,
		Controller: lifecycle.New(mgr, engine, zerolog.Nop()),
		Validator:  lifecycle.NewValidator(),
		Logger:     zerolog.Nop(),
	}

	r := gin.New()
	r.GET("/healthz", h.Healthz)
	r.POST("/login", h.Login)
	r.POST("/logout", h.Logout)
	r.GET("/session", h.SessionInfo)
	r.GET("/requests", h.RequestsList)
	r.POST("/requests", h.RequestCreate)
	r.GET("/requests/:id", h.RequestDetails)
	r.DELETE("/requests/:id", h.RequestDelete)
	r.POST("/requests/:id/advance", h.RequestAdvance)
	r.POST("/requests/:id/complete", h.RequestComplete)
	r.POST("/requests/:id/assign", h.RequestAssign)
	r.POST("/requests/:id/deadline", h.RequestDeadline)
	r.GET("/requests/:id/comments", h.CommentsList)
	r.POST("/requests/:id/comments", h.CommentAdd)
	r.GET("/statistics", h.Statistics)
	return h, mem, r
}

func do(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func login(t *testing.T, r *gin.Engine, who string) {
	t.Helper()
	w := do(r, http.MethodPost, "/login", LoginRequest{Login: who, Password: who})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestLoginReturnsCapabilitiesWithoutToken(t *testing.T) {
	_, _, r := newTestHandler(t)

	w := do(r, http.MethodPost, "/login", LoginRequest{Login: "operator", Password: "operator"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.RoleOperator, resp.Session.Role)
	assert.Empty(t, resp.Session.Token)
	assert.True(t, resp.Capabilities.EditRequests)
	assert.False(t, resp.Capabilities.DeleteRequests)
}

func TestLoginErrors(t *testing.T) {
	_, _, r := newTestHandler(t)

	w := do(r, http.MethodPost, "/login", LoginRequest{Login: "admin", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "AUTH_ERROR", decodeError(t, w).Error.Code)

	w = do(r, http.MethodPost, "/login", LoginRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, "VALIDATION_ERROR", body.Error.Code)
	assert.Equal(t, []any{"login", "password"}, body.Error.Details)
}

func TestSessionInfoAfterLogout(t *testing.T) {
	_, _, r := newTestHandler(t)
	login(t, r, "admin")
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/session", nil).Code)

	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/logout", nil).Code)
	w := do(r, http.MethodGet, "/session", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", decodeError(t, w).Error.Code)
}

func TestRequestsListFilters(t *testing.T) {
	_, _, r := newTestHandler(t)
	login(t, r, "operator")

	w := do(r, http.MethodGet, "/requests?q=1001&status=in_progress", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Items []models.RequestRecord `json:"items"`
		Total int                    `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Total)

	w = do(r, http.MethodGet, "/requests?q="+url.QueryEscape("Петров"), nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, "1002", resp.Items[0].ID)
}

func TestRequestDetailsNotFound(t *testing.T) {
	_, _, r := newTestHandler(t)
	login(t, r, "operator")

	w := do(r, http.MethodGet, "/requests/999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, w).Error.Code)
}

func TestCreateRequestValidation(t *testing.T) {
	_, mem, r := newTestHandler(t)
	login(t, r, "operator")
	before := mem.TotalCalls()

	w := do(r, http.MethodPost, "/requests", models.NewRequest{Model: "LG"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, "VALIDATION_ERROR", body.Error.Code)
	assert.ElementsMatch(t, []any{"equipment_type", "problem_description", "client_id"}, body.Error.Details)
	assert.Equal(t, before, mem.TotalCalls())

	w = do(r, http.MethodPost, "/requests", models.NewRequest{EquipmentType: "Кондиционер", Model: "LG", ProblemDescription: "Течёт", ClientID: "6"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var rec models.RequestRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, "1003", rec.ID)
}

func TestAdvanceAndPermissionDenied(t *testing.T) {
	_, _, r := newTestHandler(t)
	login(t, r, "client")

	w := do(r, http.MethodPost, "/requests/1001/advance", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "PERMISSION_DENIED", decodeError(t, w).Error.Code)

	w = do(r, http.MethodDelete, "/requests/1001", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	login(t, r, "master")
	w = do(r, http.MethodPost, "/requests/1001/advance", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rec models.RequestRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, models.StatusInProgress, rec.Status)
}

func TestAssignPayloads(t *testing.T) {
	_, _, r := newTestHandler(t)
	login(t, r, "admin")

	w := do(r, http.MethodPost, "/requests/1001/assign", AssignRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []any{"specialist_id"}, decodeError(t, w).Error.Details)

	w = do(r, http.MethodPost, "/requests/1001/assign", AssignRequest{SpecialistID: "1"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "UNKNOWN_ASSIGNEE", decodeError(t, w).Error.Code)

	w = do(r, http.MethodPost, "/requests/1001/assign", AssignRequest{SpecialistID: "3"})
	require.Equal(t, http.StatusOK, w.Code)
	var rec models.RequestRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, "Сидоров С.С.", rec.AssigneeLabel)
}

func TestDeadlineAndComplete(t *testing.T) {
	_, _, r := newTestHandler(t)
	login(t, r, "manager")

	w := do(r, http.MethodPost, "/requests/1001/deadline", gin.H{"deadline": "2030-01-15T12:00:00Z"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var rec models.RequestRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	require.NotNil(t, rec.Deadline)
	assert.Equal(t, 2030, rec.Deadline.Year())

	w = do(r, http.MethodPost, "/requests/1001/deadline", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/requests/1001/complete", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, models.StatusDone, rec.Status)
	assert.NotNil(t, rec.CompletedAt)
}

func TestComments(t *testing.T) {
	_, _, r := newTestHandler(t)
	login(t, r, "master")

	w := do(r, http.MethodPost, "/requests/1002/comments", CommentRequest{Text: "Заказаны детали"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(r, http.MethodGet, "/requests/1002/comments?order=insertion", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Items []models.Comment `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "Сидоров С.С.", resp.Items[0].Author)

	w = do(r, http.MethodGet, "/requests/1002/comments?order=random", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	login(t, r, "operator")
	w = do(r, http.MethodPost, "/requests/1002/comments", CommentRequest{Text: "Перезвонить клиенту"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "PERMISSION_DENIED", decodeError(t, w).Error.Code)
}

func TestStatisticsRequiresCapability(t *testing.T) {
	_, _, r := newTestHandler(t)
	login(t, r, "master")
	assert.Equal(t, http.StatusForbidden, do(r, http.MethodGet, "/statistics", nil).Code)

	login(t, r, "operator")
	w := do(r, http.MethodGet, "/statistics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var st struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, 2, st.Total)
}

func TestRemoteOutageIsBadGateway(t *testing.T) {
	_, mem, r := newTestHandler(t)
	login(t, r, "admin")

	mem.FailNext(remote.OpUpdateRequest, assertSync)
	w := do(r, http.MethodPost, "/requests/1001/advance", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "SYNC_FAILED", decodeError(t, w).Error.Code)
}
