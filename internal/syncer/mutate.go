package syncer

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/Glorc12/AirConditionerCompany/internal/errs"
	"github.com/Glorc12/AirConditionerCompany/internal/metrics"
	"github.com/Glorc12/AirConditionerCompany/internal/models"
	"github.com/Glorc12/AirConditionerCompany/internal/remote"
)

const (
	OpUpdate  = "update"
	OpComment = "comment"
	OpCreate  = "create"
	OpDelete  = "delete"
)

// acquire waits until no other mutation is in flight for id and claims it.
// Aliases are re-resolved after every wait so a mutation queued behind a
// create lands on the confirmed record.
func (e *Engine) acquire(ctx context.Context, id string) (string, func(), error) {
	for {
		e.mu.Lock()
		id = e.resolveLocked(id)
		wait, busy := e.pending[id]
		if !busy {
			done := make(chan struct{})
			e.pending[id] = done
			e.mu.Unlock()
			claimed := id
			return claimed, func() {
				e.mu.Lock()
				if e.pending[claimed] == done {
					delete(e.pending, claimed)
				}
				e.mu.Unlock()
				close(done)
			}, nil
		}
		e.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return "", nil, ctx.Err()
		}
	}
}

// afterFailure reconciles with the backend after a rejected push.
func (e *Engine) afterFailure(ctx context.Context, err error, st sessionState) {
	if errors.Is(err, errs.ErrUnauthorized) {
		e.unauthorized(err, st)
		return
	}
	if perr := e.Pull(ctx); perr != nil {
		e.logger.Debug().Err(perr).Msg("re-pull after failed push")
	}
}

// Update applies change to the cached record, then pushes the resulting
// field differences in a single remote update. On failure the record is
// restored to its exact prior state.
func (e *Engine) Update(ctx context.Context, id string, change func(*models.RequestRecord) error) (models.RequestRecord, error) {
	id, release, err := e.acquire(ctx, id)
	if err != nil {
		return models.RequestRecord{}, err
	}

	e.mu.Lock()
	st, err := e.sessionLocked()
	if err != nil {
		e.mu.Unlock()
		release()
		return models.RequestRecord{}, err
	}
	i := e.indexLocked(id)
	if i < 0 {
		e.mu.Unlock()
		release()
		return models.RequestRecord{}, fmt.Errorf("%w: request %s", errs.ErrNotFound, id)
	}
	snapshot := e.records[i].Clone()
	updated := snapshot.Clone()
	if err := change(&updated); err != nil {
		e.mu.Unlock()
		release()
		return models.RequestRecord{}, err
	}
	updated.AssigneeLabel = assigneeLabel(updated.AssigneeID, specialistIndex(e.specialists))
	fields, err := diffFields(snapshot, updated)
	if err != nil {
		e.mu.Unlock()
		release()
		return models.RequestRecord{}, err
	}
	if fields.Empty() {
		e.mu.Unlock()
		release()
		return snapshot, nil
	}
	rid, err := remoteID(id)
	if err != nil {
		e.mu.Unlock()
		release()
		return models.RequestRecord{}, err
	}
	e.records[i] = updated
	e.persistLocked()
	e.mu.Unlock()

	cctx, cancel := bind(ctx, st.ctx)
	res, err := e.remote.UpdateRequest(cctx, st.token, rid, fields)
	cancel()

	e.mu.Lock()
	if e.generation != st.generation {
		e.mu.Unlock()
		release()
		e.metrics.Push(OpUpdate, metrics.ResultDiscarded)
		return models.RequestRecord{}, ErrSessionEnded
	}
	if err != nil {
		if j := e.indexLocked(id); j >= 0 {
			e.records[j] = snapshot
		}
		e.persistLocked()
		e.mu.Unlock()
		release()
		e.metrics.Push(OpUpdate, metrics.ResultFailed)
		e.metrics.Rollback(OpUpdate)
		e.logger.Warn().Err(err).Str("request_id", id).Msg("update rejected, rolled back")
		e.afterFailure(ctx, err, st)
		return models.RequestRecord{}, err
	}
	out := project(res, &updated, specialistIndex(e.specialists), e.logger)
	if j := e.indexLocked(id); j >= 0 {
		e.records[j] = out
	} else {
		e.records = append(e.records, out)
	}
	e.persistLocked()
	e.mu.Unlock()
	release()
	e.metrics.Push(OpUpdate, metrics.ResultOK)
	return out.Clone(), nil
}

// AppendComment adds c to the record and dispatches it upstream on behalf of authorID.
func (e *Engine) AppendComment(ctx context.Context, id string, c models.Comment, authorID int64) (models.RequestRecord, error) {
	id, release, err := e.acquire(ctx, id)
	if err != nil {
		return models.RequestRecord{}, err
	}
	rec, st, pushed, err := e.appendComment(ctx, id, c, authorID)
	release()
	if err != nil && pushed && !errors.Is(err, ErrSessionEnded) {
		e.afterFailure(ctx, err, st)
	}
	return rec, err
}

func (e *Engine) appendComment(ctx context.Context, id string, c models.Comment, authorID int64) (models.RequestRecord, sessionState, bool, error) {
	e.mu.Lock()
	st, err := e.sessionLocked()
	if err != nil {
		e.mu.Unlock()
		return models.RequestRecord{}, st, false, err
	}
	i := e.indexLocked(id)
	if i < 0 {
		e.mu.Unlock()
		return models.RequestRecord{}, st, false, fmt.Errorf("%w: request %s", errs.ErrNotFound, id)
	}
	rid, err := remoteID(id)
	if err != nil {
		e.mu.Unlock()
		return models.RequestRecord{}, st, false, err
	}
	snapshot := e.records[i].Clone()
	updated := snapshot.Clone()
	updated.Comments = append(updated.Comments, c)
	e.records[i] = updated
	e.persistLocked()
	e.mu.Unlock()

	cctx, cancel := bind(ctx, st.ctx)
	stored, err := e.remote.AddComment(cctx, st.token, remote.CommentFields{Message: c.Text, MasterID: authorID, RequestID: rid})
	cancel()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.generation != st.generation {
		e.metrics.Push(OpComment, metrics.ResultDiscarded)
		return models.RequestRecord{}, st, true, ErrSessionEnded
	}
	if err != nil {
		if j := e.indexLocked(id); j >= 0 {
			e.records[j] = snapshot
		}
		e.persistLocked()
		e.metrics.Push(OpComment, metrics.ResultFailed)
		e.metrics.Rollback(OpComment)
		e.logger.Warn().Err(err).Str("request_id", id).Msg("comment rejected, rolled back")
		return models.RequestRecord{}, st, true, err
	}
	if stored.CommentID > 0 {
		confirmed := models.Comment{ID: strconv.FormatInt(stored.CommentID, 10), Author: c.Author, CreatedAt: c.CreatedAt, Text: c.Text}
		if t := parseTime(stored.CreatedAt); !t.IsZero() {
			confirmed.CreatedAt = t
		}
		updated.Comments[len(updated.Comments)-1] = confirmed
		if j := e.indexLocked(id); j >= 0 {
			e.records[j] = updated
		}
		e.persistLocked()
	}
	e.metrics.Push(OpComment, metrics.ResultOK)
	return updated.Clone(), st, true, nil
}

// Create inserts draft under a provisional id, then replaces it with the
// backend-confirmed record. The provisional id stays resolvable afterwards.
func (e *Engine) Create(ctx context.Context, draft models.RequestRecord, clientID int64) (models.RequestRecord, error) {
	e.mu.Lock()
	st, err := e.sessionLocked()
	if err != nil {
		e.mu.Unlock()
		return models.RequestRecord{}, err
	}
	provisional := models.ProvisionalPrefix + uuid.NewString()
	draft.ID = provisional
	draft.CreatedAt = e.now().UTC()
	draft.Status = models.StatusOpen
	draft.CompletedAt = nil
	if draft.Comments == nil {
		draft.Comments = []models.Comment{}
	}
	done := make(chan struct{})
	e.pending[provisional] = done
	e.records = append(e.records, draft.Clone())
	e.persistLocked()
	e.mu.Unlock()

	release := func() {
		e.mu.Lock()
		delete(e.pending, provisional)
		e.mu.Unlock()
		close(done)
	}

	cctx, cancel := bind(ctx, st.ctx)
	res, err := e.remote.CreateRequest(cctx, st.token, remote.CreateFields{
		ClimateTechType:    draft.EquipmentType,
		ClimateTechModel:   draft.Model,
		ProblemDescription: draft.ProblemDescription,
		ClientID:           clientID,
		FaultType:          draft.FaultType,
	})
	cancel()

	e.mu.Lock()
	if e.generation != st.generation {
		e.mu.Unlock()
		release()
		e.metrics.Push(OpCreate, metrics.ResultDiscarded)
		return models.RequestRecord{}, ErrSessionEnded
	}
	if err != nil {
		if j := e.indexLocked(provisional); j >= 0 {
			e.records = append(e.records[:j], e.records[j+1:]...)
		}
		e.persistLocked()
		e.mu.Unlock()
		release()
		e.metrics.Push(OpCreate, metrics.ResultFailed)
		e.metrics.Rollback(OpCreate)
		e.logger.Warn().Err(err).Msg("create rejected, provisional record dropped")
		e.afterFailure(ctx, err, st)
		return models.RequestRecord{}, err
	}

	out := project(res, &draft, specialistIndex(e.specialists), e.logger)
	if out.CreatedAt.IsZero() {
		out.CreatedAt = draft.CreatedAt
	}
	j := e.indexLocked(provisional)
	if k := e.indexLocked(out.ID); k >= 0 {
		// A concurrent pull already brought the confirmed record in.
		e.records[k] = out
		if j >= 0 {
			e.records = append(e.records[:j], e.records[j+1:]...)
		}
	} else if j >= 0 {
		e.records[j] = out
	} else {
		e.records = append(e.records, out)
	}
	e.aliases[provisional] = out.ID
	e.persistLocked()
	e.mu.Unlock()
	release()
	e.metrics.Push(OpCreate, metrics.ResultOK)
	e.logger.Info().Str("request_id", out.ID).Str("provisional_id", provisional).Msg("request created")
	return out.Clone(), nil
}

// Delete removes the record locally, then remotely. A record the backend no
// longer knows counts as deleted.
func (e *Engine) Delete(ctx context.Context, id string) error {
	id, release, err := e.acquire(ctx, id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	st, err := e.sessionLocked()
	if err != nil {
		e.mu.Unlock()
		release()
		return err
	}
	i := e.indexLocked(id)
	if i < 0 {
		e.mu.Unlock()
		release()
		return fmt.Errorf("%w: request %s", errs.ErrNotFound, id)
	}
	rid, err := remoteID(id)
	if err != nil {
		e.mu.Unlock()
		release()
		return err
	}
	snapshot := e.records[i].Clone()
	e.records = append(e.records[:i], e.records[i+1:]...)
	e.persistLocked()
	e.mu.Unlock()

	cctx, cancel := bind(ctx, st.ctx)
	err = e.remote.DeleteRequest(cctx, st.token, rid)
	cancel()

	e.mu.Lock()
	if e.generation != st.generation {
		e.mu.Unlock()
		release()
		e.metrics.Push(OpDelete, metrics.ResultDiscarded)
		return ErrSessionEnded
	}
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		if e.indexLocked(id) < 0 {
			pos := i
			if pos > len(e.records) {
				pos = len(e.records)
			}
			e.records = append(e.records[:pos], append([]models.RequestRecord{snapshot}, e.records[pos:]...)...)
		}
		e.persistLocked()
		e.mu.Unlock()
		release()
		e.metrics.Push(OpDelete, metrics.ResultFailed)
		e.metrics.Rollback(OpDelete)
		e.logger.Warn().Err(err).Str("request_id", id).Msg("delete rejected, record restored")
		e.afterFailure(ctx, err, st)
		return err
	}
	e.mu.Unlock()
	release()
	e.metrics.Push(OpDelete, metrics.ResultOK)
	if err != nil {
		e.logger.Info().Str("request_id", id).Msg("request already gone remotely, resyncing")
		if perr := e.Pull(ctx); perr != nil {
			e.logger.Debug().Err(perr).Msg("re-pull after delete")
		}
	}
	return nil
}
