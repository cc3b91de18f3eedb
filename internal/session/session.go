package session

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/Glorc12/AirConditionerCompany/internal/cache"
	"github.com/Glorc12/AirConditionerCompany/internal/errs"
	"github.com/Glorc12/AirConditionerCompany/internal/models"
	"github.com/Glorc12/AirConditionerCompany/internal/permissions"
	"github.com/Glorc12/AirConditionerCompany/internal/remote"
	"github.com/Glorc12/AirConditionerCompany/internal/syncer"
	"github.com/Glorc12/AirConditionerCompany/internal/vocab"
)

// Manager owns the authenticated identity. Every login, restore and logout
// resets the sync engine so data never crosses sessions.
type Manager struct {
	remote remote.Client
	store  *cache.Store
	engine *syncer.Engine
	logger zerolog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	current *models.Session
}

func NewManager(client remote.Client, store *cache.Store, engine *syncer.Engine, logger zerolog.Logger) *Manager {
	m := &Manager{
		remote: client,
		store:  store,
		engine: engine,
		logger: logger.With().Str("component", "session").Logger(),
		now:    time.Now,
	}
	engine.SetUnauthorizedHandler(m.ForceLogout)
	return m
}

// TokenExpiry reads the exp claim without verifying the signature. Opaque
// tokens have no known expiry.
func TokenExpiry(token string) *time.Time {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}
	if claims.ExpiresAt == nil {
		return nil
	}
	exp := claims.ExpiresAt.Time.UTC()
	return &exp
}

func (m *Manager) Login(ctx context.Context, login, password string) (models.Session, error) {
	login = strings.TrimSpace(login)
	var missing []string
	if login == "" {
		missing = append(missing, "login")
	}
	if password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return models.Session{}, errs.Validation(missing...)
	}

	res, err := m.remote.Authenticate(ctx, login, password)
	if err != nil {
		if errors.Is(err, errs.ErrAuth) {
			m.logger.Info().Str("login", login).Msg("login rejected")
		}
		return models.Session{}, err
	}

	sess := models.Session{
		UserID:      strconv.FormatInt(res.UserID, 10),
		Login:       res.Login,
		DisplayName: res.FullName,
		Role:        vocab.ToCanonicalRole(res.UserType),
		Token:       res.AccessToken,
		ExpiresAt:   TokenExpiry(res.AccessToken),
	}
	if sess.Login == "" {
		sess.Login = login
	}
	m.attach(sess)
	m.logger.Info().Str("login", sess.Login).Str("role", string(sess.Role)).Msg("logged in")

	if err := m.engine.Pull(ctx); err != nil {
		if errors.Is(err, errs.ErrUnauthorized) {
			return models.Session{}, err
		}
		m.logger.Warn().Err(err).Msg("initial pull failed, working from cache")
	}
	return sess, nil
}

// Restore resumes the persisted session, if any and not expired.
func (m *Manager) Restore(ctx context.Context) (models.Session, bool) {
	sess, ok := m.store.LoadSession()
	if !ok {
		return models.Session{}, false
	}
	if sess.ExpiresAt == nil {
		sess.ExpiresAt = TokenExpiry(sess.Token)
	}
	if sess.Expired(m.now()) {
		m.logger.Info().Str("login", sess.Login).Msg("persisted session expired")
		m.clear()
		return models.Session{}, false
	}
	sess.Role = vocab.ToCanonicalRole(string(sess.Role))
	m.attach(sess)
	m.logger.Info().Str("login", sess.Login).Msg("session restored")

	if err := m.engine.Pull(ctx); err != nil {
		if errors.Is(err, errs.ErrUnauthorized) {
			return models.Session{}, false
		}
		m.logger.Warn().Err(err).Msg("pull after restore failed, working from cache")
	}
	return sess, true
}

func (m *Manager) attach(sess models.Session) {
	m.mu.Lock()
	m.current = &sess
	m.mu.Unlock()
	m.store.SaveSession(&sess)
	m.engine.Reset(&sess)
}

func (m *Manager) clear() {
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
	m.store.SaveSession(nil)
	m.engine.Reset(nil)
}

func (m *Manager) Logout() {
	m.clear()
	m.logger.Info().Msg("logged out")
}

// ForceLogout ends the session after the backend rejected its token.
func (m *Manager) ForceLogout() {
	m.clear()
	m.logger.Warn().Msg("session invalidated by backend")
}

func (m *Manager) Current() (models.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return models.Session{}, false
	}
	return *m.current, true
}

// Capabilities of the current session; empty when logged out.
func (m *Manager) Capabilities() permissions.CapabilitySet {
	sess, ok := m.Current()
	if !ok {
		return permissions.CapabilitySet{}
	}
	return permissions.For(sess.Role)
}
