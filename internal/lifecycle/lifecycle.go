package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Glorc12/AirConditionerCompany/internal/errs"
	"github.com/Glorc12/AirConditionerCompany/internal/models"
	"github.com/Glorc12/AirConditionerCompany/internal/permissions"
	"github.com/Glorc12/AirConditionerCompany/internal/query"
	"github.com/Glorc12/AirConditionerCompany/internal/syncer"
	"github.com/Glorc12/AirConditionerCompany/internal/vocab"
)

// Sessions is the part of the session manager the controller relies on.
type Sessions interface {
	Current() (models.Session, bool)
}

// Controller validates and authorizes request mutations before handing them
// to the sync engine. A failed capability check never reaches the network.
type Controller struct {
	Sessions  Sessions
	Engine    *syncer.Engine
	Validator *validator.Validate
	Logger    zerolog.Logger

	now func() time.Time
}

func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// FieldErrors converts validator failures into a ValidationError naming the
// offending json fields. Other errors pass through.
func FieldErrors(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	return errs.Validation(fields...)
}

func New(sessions Sessions, engine *syncer.Engine, logger zerolog.Logger) *Controller {
	return &Controller{
		Sessions:  sessions,
		Engine:    engine,
		Validator: NewValidator(),
		Logger:    logger.With().Str("component", "lifecycle").Logger(),
		now:       time.Now,
	}
}

func (c *Controller) authorize(caps ...permissions.Capability) (models.Session, error) {
	sess, ok := c.Sessions.Current()
	if !ok {
		return models.Session{}, errs.ErrUnauthorized
	}
	if !permissions.For(sess.Role).HasAny(caps...) {
		return models.Session{}, fmt.Errorf("%w: role %s lacks %s", errs.ErrPermissionDenied, sess.Role, caps[0])
	}
	return sess, nil
}

// AdvanceStatus moves the request to the next status in the fixed cycle.
func (c *Controller) AdvanceStatus(ctx context.Context, id string) (models.RequestRecord, error) {
	if _, err := c.authorize(permissions.EditRequests); err != nil {
		return models.RequestRecord{}, err
	}
	return c.Engine.Update(ctx, id, func(r *models.RequestRecord) error {
		r.Status = r.Status.Next()
		return nil
	})
}

func (c *Controller) AssignSpecialist(ctx context.Context, id, specialistID string) (models.RequestRecord, error) {
	if _, err := c.authorize(permissions.AssignSpecialists, permissions.EditRequests); err != nil {
		return models.RequestRecord{}, err
	}
	specialistID = strings.TrimSpace(specialistID)
	known := false
	for _, s := range c.Engine.Specialists() {
		if s.ID == specialistID {
			known = true
			break
		}
	}
	if !known {
		return models.RequestRecord{}, fmt.Errorf("%w: %q", errs.ErrUnknownAssignee, specialistID)
	}
	return c.Engine.Update(ctx, id, func(r *models.RequestRecord) error {
		r.AssigneeID = &specialistID
		return nil
	})
}

// AddComment appends a comment. An empty author defaults to the session's display name.
func (c *Controller) AddComment(ctx context.Context, id, author, text string) (models.RequestRecord, error) {
	sess, err := c.authorize(permissions.EditRequests)
	if err != nil {
		return models.RequestRecord{}, err
	}
	if !permissions.CanComment(sess.Role) {
		return models.RequestRecord{}, fmt.Errorf("%w: role %s cannot comment", errs.ErrPermissionDenied, sess.Role)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return models.RequestRecord{}, errs.Validation("text")
	}
	author = strings.TrimSpace(author)
	if author == "" {
		author = sess.DisplayName
	}
	if author == "" {
		author = sess.Login
	}
	authorID, _ := strconv.ParseInt(sess.UserID, 10, 64)
	comment := models.Comment{
		ID:        uuid.NewString(),
		Author:    author,
		CreatedAt: c.now().UTC(),
		Text:      text,
	}
	return c.Engine.AppendComment(ctx, id, comment, authorID)
}

// Complete sets Done and the completion time in one remote update.
func (c *Controller) Complete(ctx context.Context, id string) (models.RequestRecord, error) {
	if _, err := c.authorize(permissions.EditRequests); err != nil {
		return models.RequestRecord{}, err
	}
	now := c.now().UTC().Truncate(time.Second)
	return c.Engine.Update(ctx, id, func(r *models.RequestRecord) error {
		r.Status = models.StatusDone
		r.CompletedAt = &now
		return nil
	})
}

func (c *Controller) ExtendDeadline(ctx context.Context, id string, deadline time.Time) (models.RequestRecord, error) {
	if _, err := c.authorize(permissions.ExtendDeadline); err != nil {
		return models.RequestRecord{}, err
	}
	if deadline.IsZero() {
		return models.RequestRecord{}, errs.Validation("deadline")
	}
	deadline = deadline.UTC()
	return c.Engine.Update(ctx, id, func(r *models.RequestRecord) error {
		r.Deadline = &deadline
		return nil
	})
}

func (c *Controller) CreateRequest(ctx context.Context, in models.NewRequest) (models.RequestRecord, error) {
	sess, err := c.authorize(permissions.CreateRequest)
	if err != nil {
		return models.RequestRecord{}, err
	}
	in = in.Trimmed()
	var fields []string
	if err := c.Validator.Struct(in); err != nil {
		var verr *errs.ValidationError
		if !errors.As(FieldErrors(err), &verr) {
			return models.RequestRecord{}, err
		}
		fields = verr.Fields
	}
	clientID := clientFor(sess, in.ClientID)
	if clientID <= 0 && !slices.Contains(fields, "client_id") {
		fields = append(fields, "client_id")
	}
	if len(fields) > 0 {
		return models.RequestRecord{}, errs.Validation(fields...)
	}
	customer := in.CustomerRef
	if customer == "" && sess.Role == models.RoleCustomer {
		customer = sess.DisplayName
	}

	draft := models.RequestRecord{
		EquipmentType:      in.EquipmentType,
		Model:              in.Model,
		ProblemDescription: in.ProblemDescription,
		CustomerRef:        customer,
		Phone:              in.Phone,
		FaultType:          in.FaultType,
	}
	return c.Engine.Create(ctx, draft, clientID)
}

// clientFor resolves the customer a new request is filed for. Customers file
// for themselves unless they name someone; every other role must name one.
func clientFor(sess models.Session, raw string) int64 {
	if raw == "" && sess.Role == models.RoleCustomer {
		raw = sess.UserID
	}
	id, _ := strconv.ParseInt(raw, 10, 64)
	return id
}

func (c *Controller) DeleteRequest(ctx context.Context, id string) error {
	if _, err := c.authorize(permissions.DeleteRequests); err != nil {
		return err
	}
	return c.Engine.Delete(ctx, id)
}

func (c *Controller) Pull(ctx context.Context) error {
	if _, err := c.authorize(permissions.ViewRequests); err != nil {
		return err
	}
	return c.Engine.Pull(ctx)
}

// Requests runs the filter over the cache. A status given in backend
// vocabulary is normalized first.
func (c *Controller) Requests(f models.Filter) ([]models.RequestRecord, error) {
	if _, err := c.authorize(permissions.ViewRequests); err != nil {
		return nil, err
	}
	if f.Status != "" && !f.Status.Valid() {
		f.Status = vocab.ToCanonicalStatus(string(f.Status))
	}
	return query.Apply(c.Engine.Records(), f), nil
}

func (c *Controller) Request(id string) (models.RequestRecord, error) {
	if _, err := c.authorize(permissions.ViewRequests); err != nil {
		return models.RequestRecord{}, err
	}
	rec, ok := c.Engine.Record(id)
	if !ok {
		return models.RequestRecord{}, fmt.Errorf("%w: request %s", errs.ErrNotFound, id)
	}
	return rec, nil
}

func (c *Controller) Comments(id string, order query.CommentOrder) ([]models.Comment, error) {
	rec, err := c.Request(id)
	if err != nil {
		return nil, err
	}
	return query.SortedComments(rec.Comments, order), nil
}

func (c *Controller) Statistics() (query.Stats, error) {
	if _, err := c.authorize(permissions.ViewStatistics); err != nil {
		return query.Stats{}, err
	}
	return query.Summarize(c.Engine.Records(), c.Engine.Specialists()), nil
}

// Specialists lists assignee candidates, least loaded first.
func (c *Controller) Specialists() ([]query.Workload, error) {
	if _, err := c.authorize(permissions.ViewRequests); err != nil {
		return nil, err
	}
	return query.RankSpecialists(c.Engine.Records(), c.Engine.Specialists()), nil
}
