// Package cache persists the last-known request list, specialists and session
// so the desk keeps working across restarts and while the backend is unreachable.
//
// Reads never fail: a missing or unparsable blob is reported as empty.
// Writes are best-effort: failures are logged and never surface to callers.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Glorc12/AirConditionerCompany/internal/models"
	"github.com/Glorc12/AirConditionerCompany/internal/utils"
)

var ErrMiss = errors.New("cache: key not found")

// Backend is a durable byte-blob key-value store.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Shared is implemented by backends that other processes may write to.
// Writes to a shared backend are never skipped as unchanged.
type Shared interface {
	Shared() bool
}

const (
	keyRequests    = "rr_requests_v1"
	keySession     = "rr_auth_v1"
	keySpecialists = "rr_specialists_v1"
)

type requestsBlob struct {
	Owner   string                 `json:"owner"`
	Records []models.RequestRecord `json:"records"`
}

type sessionBlob struct {
	User *models.Session `json:"user"`
}

type Store struct {
	backend      Backend
	logger       zerolog.Logger
	writeTimeout time.Duration

	// skipUnchanged is off for shared backends.
	skipUnchanged bool

	mu           sync.Mutex
	owner        string
	fingerprints map[string]uint64
}

func New(backend Backend, logger zerolog.Logger, writeTimeout time.Duration) *Store {
	if writeTimeout <= 0 {
		writeTimeout = 2 * time.Second
	}
	shared, ok := backend.(Shared)
	return &Store{
		backend:       backend,
		logger:        logger.With().Str("component", "cache").Logger(),
		writeTimeout:  writeTimeout,
		skipUnchanged: !ok || !shared.Shared(),
		fingerprints:  map[string]uint64{},
	}
}

// SetOwner tags subsequent request writes with the session they belong to.
func (s *Store) SetOwner(owner string) {
	s.mu.Lock()
	s.owner = owner
	s.mu.Unlock()
}

func (s *Store) SaveRequests(records []models.RequestRecord) {
	s.mu.Lock()
	owner := s.owner
	s.mu.Unlock()
	if records == nil {
		records = []models.RequestRecord{}
	}
	s.put(keyRequests, requestsBlob{Owner: owner, Records: records})
}

func (s *Store) LoadRequests() []models.RequestRecord {
	var blob requestsBlob
	if !s.get(keyRequests, &blob) || blob.Records == nil {
		return []models.RequestRecord{}
	}
	return blob.Records
}

// LoadOwner returns the owner tag persisted together with the request list.
func (s *Store) LoadOwner() string {
	var blob requestsBlob
	if !s.get(keyRequests, &blob) {
		return ""
	}
	return blob.Owner
}

func (s *Store) ClearRequests() {
	s.del(keyRequests)
	s.del(keySpecialists)
}

// SaveSession persists the session; nil removes it.
func (s *Store) SaveSession(sess *models.Session) {
	if sess == nil {
		s.del(keySession)
		return
	}
	s.put(keySession, sessionBlob{User: sess})
}

func (s *Store) LoadSession() (models.Session, bool) {
	var blob sessionBlob
	if !s.get(keySession, &blob) || blob.User == nil || blob.User.Token == "" {
		return models.Session{}, false
	}
	return *blob.User, true
}

func (s *Store) SaveSpecialists(specialists []models.Specialist) {
	if specialists == nil {
		specialists = []models.Specialist{}
	}
	s.put(keySpecialists, specialists)
}

func (s *Store) LoadSpecialists() []models.Specialist {
	var out []models.Specialist
	if !s.get(keySpecialists, &out) || out == nil {
		return []models.Specialist{}
	}
	return out
}

func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) put(key string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("cache encode failed")
		return
	}
	fp := utils.Fingerprint(b)
	if s.skipUnchanged {
		s.mu.Lock()
		unchanged := s.fingerprints[key] == fp
		s.mu.Unlock()
		if unchanged {
			return
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()
	if err := s.backend.Set(ctx, key, b); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
		return
	}
	s.mu.Lock()
	s.fingerprints[key] = fp
	s.mu.Unlock()
}

func (s *Store) get(key string, out any) bool {
	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()
	b, err := s.backend.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			s.logger.Warn().Err(err).Str("key", key).Msg("cache read failed, treating as empty")
		}
		return false
	}
	if err := json.Unmarshal(b, out); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("cache blob unreadable, treating as empty")
		return false
	}
	return true
}

func (s *Store) del(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()
	if err := s.backend.Delete(ctx, key); err != nil && !errors.Is(err, ErrMiss) {
		s.logger.Warn().Err(err).Str("key", key).Msg("cache delete failed")
	}
	s.mu.Lock()
	delete(s.fingerprints, key)
	s.mu.Unlock()
}
