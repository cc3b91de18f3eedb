// Package syncer reconciles the remote request collection with the local cache
// and applies optimistic mutations with rollback on failure.
//
// All cache state is guarded by one mutex; remote calls are made outside it.
// Each session gets a generation number. Results that arrive after the
// generation changed are dropped.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/Glorc12/AirConditionerCompany/internal/cache"
	"github.com/Glorc12/AirConditionerCompany/internal/errs"
	"github.com/Glorc12/AirConditionerCompany/internal/metrics"
	"github.com/Glorc12/AirConditionerCompany/internal/models"
	"github.com/Glorc12/AirConditionerCompany/internal/remote"
	"github.com/Glorc12/AirConditionerCompany/internal/utils"
)

// ErrSessionEnded is returned when the session changed while a call was in flight.
var ErrSessionEnded = fmt.Errorf("%w: session ended", errs.ErrUnauthorized)

type Options struct {
	PageLimit   int
	Concurrency int
	Metrics     *metrics.Sync
}

type Engine struct {
	remote      remote.Client
	store       *cache.Store
	logger      zerolog.Logger
	metrics     *metrics.Sync
	pageLimit   int
	concurrency int
	now         func() time.Time

	pulls singleflight.Group

	mu             sync.Mutex
	records        []models.RequestRecord
	specialists    []models.Specialist
	aliases        map[string]string
	pending        map[string]chan struct{}
	token          string
	generation     uint64
	sessCtx        context.Context
	sessCancel     context.CancelFunc
	onUnauthorized func()
}

func New(client remote.Client, store *cache.Store, logger zerolog.Logger, opts Options) *Engine {
	if opts.PageLimit <= 0 {
		opts.PageLimit = 100
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Engine{
		remote:      client,
		store:       store,
		logger:      logger.With().Str("component", "syncer").Logger(),
		metrics:     opts.Metrics,
		pageLimit:   opts.PageLimit,
		concurrency: opts.Concurrency,
		now:         time.Now,
		records:     []models.RequestRecord{},
		specialists: []models.Specialist{},
		aliases:     map[string]string{},
		pending:     map[string]chan struct{}{},
	}
}

// SetUnauthorizedHandler registers the hook run when the backend rejects the
// session token. It is always invoked without engine locks held.
func (e *Engine) SetUnauthorizedHandler(fn func()) {
	e.mu.Lock()
	e.onUnauthorized = fn
	e.mu.Unlock()
}

func ownerTag(token string) string {
	return utils.Tag(token)
}

// Reset switches the engine to sess, or to no session when sess is nil.
// In-flight work of the previous session is cancelled and its results are
// discarded. Cached records survive only when they were written under the
// same token; anything else is evicted.
func (e *Engine) Reset(sess *models.Session) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.generation++
	if e.sessCancel != nil {
		e.sessCancel()
	}
	e.sessCtx, e.sessCancel = nil, nil
	e.aliases = map[string]string{}
	e.records = []models.RequestRecord{}
	e.specialists = []models.Specialist{}

	if sess == nil || sess.Token == "" {
		e.token = ""
		e.store.SetOwner("")
		e.store.ClearRequests()
		e.metrics.CacheRecords(0)
		e.logger.Info().Uint64("generation", e.generation).Msg("session cleared")
		return
	}

	e.token = sess.Token
	e.sessCtx, e.sessCancel = context.WithCancel(context.Background())
	owner := ownerTag(sess.Token)
	if e.store.LoadOwner() == owner {
		for _, r := range e.store.LoadRequests() {
			if !models.IsProvisional(r.ID) {
				e.records = append(e.records, r)
			}
		}
		e.specialists = e.store.LoadSpecialists()
	} else {
		e.store.ClearRequests()
	}
	e.store.SetOwner(owner)
	e.persistLocked()
	e.logger.Info().Uint64("generation", e.generation).Int("records", len(e.records)).Msg("session attached")
}

// session snapshot; callers must hold e.mu.
type sessionState struct {
	token      string
	generation uint64
	ctx        context.Context
}

func (e *Engine) sessionLocked() (sessionState, error) {
	if e.token == "" || e.sessCtx == nil {
		return sessionState{}, errs.ErrUnauthorized
	}
	return sessionState{token: e.token, generation: e.generation, ctx: e.sessCtx}, nil
}

// bind returns a context cancelled by either parent or the session context.
func bind(parent, sess context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(sess, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (e *Engine) persistLocked() {
	out := make([]models.RequestRecord, len(e.records))
	for i, r := range e.records {
		out[i] = r.Clone()
	}
	e.store.SaveRequests(out)
	e.store.SaveSpecialists(e.specialists)
	e.metrics.CacheRecords(len(e.records))
}

func (e *Engine) indexLocked(id string) int {
	for i := range e.records {
		if e.records[i].ID == id {
			return i
		}
	}
	return -1
}

func (e *Engine) resolveLocked(id string) string {
	for {
		next, ok := e.aliases[id]
		if !ok {
			return id
		}
		id = next
	}
}

func (e *Engine) unauthorized(err error, st sessionState) {
	if !errors.Is(err, errs.ErrUnauthorized) || errors.Is(err, ErrSessionEnded) {
		return
	}
	e.mu.Lock()
	current := e.generation == st.generation
	hook := e.onUnauthorized
	e.mu.Unlock()
	if current && hook != nil {
		e.logger.Warn().Msg("backend rejected the session token, forcing logout")
		hook()
	}
}

// Records returns a copy of the cached request list.
func (e *Engine) Records() []models.RequestRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.RequestRecord, len(e.records))
	for i, r := range e.records {
		out[i] = r.Clone()
	}
	return out
}

// Record looks a request up by its current or former provisional id.
func (e *Engine) Record(id string) (models.RequestRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := e.indexLocked(e.resolveLocked(id))
	if i < 0 {
		return models.RequestRecord{}, false
	}
	return e.records[i].Clone(), true
}

func (e *Engine) Specialists() []models.Specialist {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.Specialist{}, e.specialists...)
}

// Pull replaces the cache with the remote collection. Concurrent callers
// share one pull.
func (e *Engine) Pull(ctx context.Context) error {
	e.mu.Lock()
	key := fmt.Sprintf("pull-%d", e.generation)
	e.mu.Unlock()
	ch := e.pulls.DoChan(key, func() (interface{}, error) {
		return nil, e.pull()
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

func (e *Engine) pull() error {
	start := time.Now()
	e.mu.Lock()
	st, err := e.sessionLocked()
	e.mu.Unlock()
	if err != nil {
		return err
	}

	snap, err := e.fetchAll(st)
	if err != nil {
		e.mu.Lock()
		ended := e.generation != st.generation
		e.mu.Unlock()
		if ended {
			e.metrics.Pull(metrics.ResultDiscarded, 0)
			return ErrSessionEnded
		}
		e.metrics.Pull(metrics.ResultFailed, 0)
		e.unauthorized(err, st)
		e.logger.Warn().Err(err).Msg("pull failed, keeping cached records")
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.generation != st.generation {
		e.metrics.Pull(metrics.ResultDiscarded, 0)
		return ErrSessionEnded
	}
	if snap.specialists != nil {
		e.specialists = snap.specialists
	}
	names := specialistIndex(e.specialists)

	prev := make(map[string]*models.RequestRecord, len(e.records))
	for i := range e.records {
		prev[e.records[i].ID] = &e.records[i]
	}
	merged := make([]models.RequestRecord, 0, len(snap.requests))
	seen := make(map[string]bool, len(snap.requests))
	for _, r := range snap.requests {
		rec := project(r, prev[fmt.Sprint(r.RequestID)], names, e.logger)
		if list, ok := snap.comments[r.RequestID]; ok {
			rec.Comments = mergeComments(list, rec.Comments, names)
		}
		seen[rec.ID] = true
		if _, busy := e.pending[rec.ID]; busy {
			// The in-flight mutation reconciles this record itself.
			if local, ok := prev[rec.ID]; ok {
				merged = append(merged, local.Clone())
			}
			continue
		}
		merged = append(merged, rec)
	}
	for _, r := range e.records {
		if seen[r.ID] {
			continue
		}
		if _, busy := e.pending[r.ID]; busy {
			merged = append(merged, r.Clone())
		}
	}
	e.records = merged
	e.persistLocked()
	e.metrics.Pull(metrics.ResultOK, time.Since(start).Seconds())
	e.logger.Debug().Int("records", len(merged)).Uint64("generation", st.generation).Msg("pull applied")
	return nil
}

// maxPages bounds how many pages one pull will request.
const maxPages = 10000

// remoteSnapshot is one consistent read of the backend.
type remoteSnapshot struct {
	requests    []remote.Request
	specialists []models.Specialist
	// comments holds the comment list of every request whose list loaded.
	comments map[int64][]remote.Comment
}

// pageCount derives the number of pages from the reported total. The
// backend's own page count is only cross-checked, never used to size work.
func pageCount(p remote.Pagination, limit int) (int, error) {
	if p.Total < 0 || p.Pages < 0 {
		return 0, errs.Sync(fmt.Errorf("invalid pagination: total %d, pages %d", p.Total, p.Pages))
	}
	if p.Limit > 0 {
		limit = p.Limit
	}
	want := (p.Total + limit - 1) / limit
	if want < 1 {
		want = 1
	}
	if want > maxPages || p.Pages > want {
		return 0, errs.Sync(fmt.Errorf("invalid pagination: total %d, limit %d, pages %d", p.Total, limit, p.Pages))
	}
	return want, nil
}

// fetchAll loads every page, the specialist list and the comments of every
// request. Specialists are optional: when they cannot be loaded the returned
// slice is nil. A request whose comments fail to load is left out of the
// comments map.
func (e *Engine) fetchAll(st sessionState) (remoteSnapshot, error) {
	ctx, cancel := bind(context.Background(), st.ctx)
	defer cancel()

	var (
		first    remote.Page
		specs    []models.Specialist
		specsErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		list, err := e.remote.ListSpecialists(gctx, st.token)
		if err != nil {
			specsErr = err
			return nil
		}
		specs = projectSpecialists(list)
		return nil
	})
	g.Go(func() error {
		p, err := e.remote.ListRequests(gctx, st.token, 1, e.pageLimit)
		if err != nil {
			return err
		}
		first = p
		return nil
	})
	if err := g.Wait(); err != nil {
		return remoteSnapshot{}, err
	}
	if specsErr != nil {
		if errors.Is(specsErr, errs.ErrUnauthorized) {
			return remoteSnapshot{}, specsErr
		}
		e.logger.Warn().Err(specsErr).Msg("specialists unavailable, using cached labels")
	}

	n, err := pageCount(first.Pagination, e.pageLimit)
	if err != nil {
		return remoteSnapshot{}, err
	}
	pages := make([][]remote.Request, n+1)
	pages[1] = first.Data
	if n > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.concurrency)
		for p := 2; p <= n; p++ {
			g.Go(func() error {
				page, err := e.remote.ListRequests(gctx, st.token, p, e.pageLimit)
				if err != nil {
					return err
				}
				pages[p] = page.Data
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return remoteSnapshot{}, err
		}
	}

	seen := map[int64]bool{}
	var out []remote.Request
	for _, page := range pages {
		for _, r := range page {
			if seen[r.RequestID] {
				continue
			}
			seen[r.RequestID] = true
			out = append(out, r)
		}
	}

	comments, err := e.fetchComments(ctx, st, out)
	if err != nil {
		return remoteSnapshot{}, err
	}
	return remoteSnapshot{requests: out, specialists: specs, comments: comments}, nil
}

func (e *Engine) fetchComments(ctx context.Context, st sessionState, reqs []remote.Request) (map[int64][]remote.Comment, error) {
	lists := make([][]remote.Comment, len(reqs))
	loaded := make([]bool, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, r := range reqs {
		g.Go(func() error {
			list, err := e.remote.ListComments(gctx, st.token, r.RequestID)
			switch {
			case err == nil:
				lists[i], loaded[i] = list, true
			case errors.Is(err, errs.ErrUnauthorized):
				return err
			case gctx.Err() == nil:
				e.logger.Warn().Err(err).Int64("request_id", r.RequestID).Msg("comments unavailable, keeping cached comments")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(map[int64][]remote.Comment, len(reqs))
	for i, r := range reqs {
		if loaded[i] {
			out[r.RequestID] = lists[i]
		}
	}
	return out, nil
}

// Run pulls every interval until ctx is done. Ticks without a session are skipped.
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.mu.Lock()
			active := e.token != ""
			e.mu.Unlock()
			if !active {
				continue
			}
			if err := e.Pull(ctx); err != nil && !errors.Is(err, context.Canceled) {
				e.logger.Debug().Err(err).Msg("background pull failed")
			}
		}
	}
}
