package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/Glorc12/AirConditionerCompany/internal/errs"
	"github.com/Glorc12/AirConditionerCompany/internal/lifecycle"
	"github.com/Glorc12/AirConditionerCompany/internal/models"
	"github.com/Glorc12/AirConditionerCompany/internal/permissions"
	"github.com/Glorc12/AirConditionerCompany/internal/query"
	"github.com/Glorc12/AirConditionerCompany/internal/session"
)

type Handler struct {
	Sessions   *session.Manager
	Controller *lifecycle.Controller
	Validator  *validator.Validate
	Logger     zerolog.Logger
}

type LoginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type SessionResponse struct {
	Session      models.Session            `json:"session"`
	Capabilities permissions.CapabilitySet `json:"capabilities"`
}

type AssignRequest struct {
	SpecialistID string `json:"specialist_id" validate:"required"`
}

type DeadlineRequest struct {
	Deadline time.Time `json:"deadline" validate:"required"`
}

type CommentRequest struct {
	Author string `json:"author"`
	Text   string `json:"text" validate:"required"`
}

func (h *Handler) Healthz(c *gin.Context) {
	_, active := h.Sessions.Current()
	c.JSON(http.StatusOK, gin.H{"status": "ok", "session": active})
}

// @Summary Log in against the remote backend
// @Tags session
// @Accept json
// @Produce json
// @Param payload body LoginRequest true "credentials"
// @Success 200 {object} SessionResponse
// @Failure 401 {object} map[string]any
// @Router /api/session/login [post]
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	sess, err := h.Sessions.Login(c.Request.Context(), req.Login, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, SessionResponse{Session: redact(sess), Capabilities: h.Sessions.Capabilities()})
}

// @Summary Log out and evict cached data
// @Tags session
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/session/logout [post]
func (h *Handler) Logout(c *gin.Context) {
	h.Sessions.Logout()
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// @Summary Current session and capabilities
// @Tags session
// @Produce json
// @Success 200 {object} SessionResponse
// @Router /api/session [get]
func (h *Handler) SessionInfo(c *gin.Context) {
	sess, ok := h.Sessions.Current()
	if !ok {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Login required", nil)
		return
	}
	c.JSON(http.StatusOK, SessionResponse{Session: redact(sess), Capabilities: h.Sessions.Capabilities()})
}

// @Summary Refresh the cache from the remote backend
// @Tags sync
// @Produce json
// @Success 200 {object} map[string]any
// @Failure 502 {object} map[string]any
// @Router /api/sync/pull [post]
func (h *Handler) Pull(c *gin.Context) {
	if err := h.Controller.Pull(c.Request.Context()); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "records": len(h.Controller.Engine.Records())})
}

// @Summary List cached requests
// @Tags requests
// @Produce json
// @Param q query string false "id, customer, phone or model"
// @Param status query string false "status code or backend label"
// @Param assignee query string false "assignee name"
// @Success 200 {object} map[string]any
// @Router /api/requests [get]
func (h *Handler) RequestsList(c *gin.Context) {
	var f models.Filter
	if err := c.ShouldBindQuery(&f); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid query", err.Error())
		return
	}
	items, err := h.Controller.Requests(f)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": len(items)})
}

func (h *Handler) RequestDetails(c *gin.Context) {
	rec, err := h.Controller.Request(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// @Summary Create a request
// @Tags requests
// @Accept json
// @Produce json
// @Param payload body models.NewRequest true "request"
// @Success 201 {object} models.RequestRecord
// @Failure 400 {object} map[string]any
// @Router /api/requests [post]
func (h *Handler) RequestCreate(c *gin.Context) {
	var req models.NewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	rec, err := h.Controller.CreateRequest(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *Handler) RequestDelete(c *gin.Context) {
	if err := h.Controller.DeleteRequest(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// @Summary Advance status to the next step of the cycle
// @Tags requests
// @Produce json
// @Param id path string true "request id"
// @Success 200 {object} models.RequestRecord
// @Router /api/requests/{id}/advance [post]
func (h *Handler) RequestAdvance(c *gin.Context) {
	rec, err := h.Controller.AdvanceStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) RequestComplete(c *gin.Context) {
	rec, err := h.Controller.Complete(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// @Summary Assign a specialist
// @Tags requests
// @Accept json
// @Produce json
// @Param id path string true "request id"
// @Param payload body AssignRequest true "specialist"
// @Success 200 {object} models.RequestRecord
// @Failure 422 {object} map[string]any
// @Router /api/requests/{id}/assign [post]
func (h *Handler) RequestAssign(c *gin.Context) {
	var req AssignRequest
	if !h.bind(c, &req) {
		return
	}
	rec, err := h.Controller.AssignSpecialist(c.Request.Context(), c.Param("id"), req.SpecialistID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) RequestDeadline(c *gin.Context) {
	var req DeadlineRequest
	if !h.bind(c, &req) {
		return
	}
	rec, err := h.Controller.ExtendDeadline(c.Request.Context(), c.Param("id"), req.Deadline)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// @Summary Comments of a request
// @Tags comments
// @Produce json
// @Param id path string true "request id"
// @Param order query string false "created (default) or insertion"
// @Success 200 {object} map[string]any
// @Router /api/requests/{id}/comments [get]
func (h *Handler) CommentsList(c *gin.Context) {
	order := query.CommentOrder(c.DefaultQuery("order", string(query.ByCreated)))
	if order != query.ByCreated && order != query.ByInsertion {
		h.respondError(c, errs.Validation("order"))
		return
	}
	items, err := h.Controller.Comments(c.Param("id"), order)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) CommentAdd(c *gin.Context) {
	var req CommentRequest
	if !h.bind(c, &req) {
		return
	}
	rec, err := h.Controller.AddComment(c.Request.Context(), c.Param("id"), req.Author, req.Text)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *Handler) SpecialistsList(c *gin.Context) {
	items, err := h.Controller.Specialists()
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// @Summary Desk statistics
// @Tags statistics
// @Produce json
// @Success 200 {object} query.Stats
// @Failure 403 {object} map[string]any
// @Router /api/statistics [get]
func (h *Handler) Statistics(c *gin.Context) {
	st, err := h.Controller.Statistics()
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) bind(c *gin.Context, out any) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return false
	}
	if err := h.Validator.Struct(out); err != nil {
		h.respondError(c, lifecycle.FieldErrors(err))
		return false
	}
	return true
}

// The token stays server side.
func redact(s models.Session) models.Session {
	s.Token = ""
	return s
}

func (h *Handler) respondError(c *gin.Context, err error) {
	var verr *errs.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", verr.Fields)
	case errors.Is(err, errs.ErrAuth):
		writeError(c, http.StatusUnauthorized, "AUTH_ERROR", "Invalid login or password", nil)
	case errors.Is(err, errs.ErrUnauthorized):
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Session is not valid", nil)
	case errors.Is(err, errs.ErrPermissionDenied):
		writeError(c, http.StatusForbidden, "PERMISSION_DENIED", "Not allowed for this role", err.Error())
	case errors.Is(err, errs.ErrUnknownAssignee):
		writeError(c, http.StatusUnprocessableEntity, "UNKNOWN_ASSIGNEE", "Specialist not found", err.Error())
	case errors.Is(err, errs.ErrNotFound):
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Request not found", nil)
	case errors.Is(err, errs.ErrSyncFailed):
		h.Logger.Error().Err(err).Str("path", c.FullPath()).Msg("remote sync failed")
		writeError(c, http.StatusBadGateway, "SYNC_FAILED", "Remote backend unavailable", err.Error())
	default:
		h.Logger.Error().Err(err).Str("path", c.FullPath()).Msg("unexpected error")
		writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Unexpected error", err.Error())
	}
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}
