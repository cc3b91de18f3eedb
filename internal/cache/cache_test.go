package cache

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Glorc12/AirConditionerCompany/internal/models"
)

func newMemoryStore(t *testing.T) (*Store, Backend) {
	t.Helper()
	backend, err := OpenBadger("", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })
	return New(backend, zerolog.Nop(), time.Second), backend
}

func sampleRecords() []models.RequestRecord {
	assignee := "7"
	return []models.RequestRecord{
		{ID: "1001", CustomerRef: "Ivanov", Status: models.StatusOpen, CreatedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{ID: "1002", CustomerRef: "Petrov", Status: models.StatusInProgress, AssigneeID: &assignee, AssigneeLabel: "Сидоров С.С."},
	}
}

func TestStoreRequestsRoundTrip(t *testing.T) {
	store, _ := newMemoryStore(t)
	store.SetOwner("owner-a")
	store.SaveRequests(sampleRecords())

	got := store.LoadRequests()
	require.Len(t, got, 2)
	assert.Equal(t, "1001", got[0].ID)
	assert.Equal(t, "Сидоров С.С.", got[1].AssigneeLabel)
	require.NotNil(t, got[1].AssigneeID)
	assert.Equal(t, "7", *got[1].AssigneeID)
	assert.Equal(t, "owner-a", store.LoadOwner())
}

func TestStoreEmptyWhenMissing(t *testing.T) {
	store, _ := newMemoryStore(t)
	assert.Empty(t, store.LoadRequests())
	assert.NotNil(t, store.LoadRequests())
	assert.Empty(t, store.LoadSpecialists())
	_, ok := store.LoadSession()
	assert.False(t, ok)
}

func TestStoreCorruptBlobIsEmpty(t *testing.T) {
	store, backend := newMemoryStore(t)
	ctx := context.Background()
	require.NoError(t, backend.Set(ctx, keyRequests, []byte("{not json")))
	require.NoError(t, backend.Set(ctx, keySession, []byte("[1,2")))

	assert.Empty(t, store.LoadRequests())
	_, ok := store.LoadSession()
	assert.False(t, ok)
}

func TestStoreSessionSaveAndClear(t *testing.T) {
	store, _ := newMemoryStore(t)
	sess := models.Session{UserID: "1", Login: "admin", DisplayName: "Админ", Role: models.RoleAdmin, Token: "tok"}
	store.SaveSession(&sess)

	got, ok := store.LoadSession()
	require.True(t, ok)
	assert.Equal(t, sess.Login, got.Login)
	assert.Equal(t, models.RoleAdmin, got.Role)

	store.SaveSession(nil)
	_, ok = store.LoadSession()
	assert.False(t, ok)
}

func TestStoreClearRequests(t *testing.T) {
	store, _ := newMemoryStore(t)
	store.SaveRequests(sampleRecords())
	store.SaveSpecialists([]models.Specialist{{ID: "7", DisplayName: "Сидоров С.С."}})

	store.ClearRequests()
	assert.Empty(t, store.LoadRequests())
	assert.Empty(t, store.LoadSpecialists())

	// A cleared key must be writable again with the same content.
	store.SaveRequests(sampleRecords())
	assert.Len(t, store.LoadRequests(), 2)
}

type failingBackend struct{}

func (failingBackend) Get(context.Context, string) ([]byte, error) { return nil, errors.New("disk gone") }
func (failingBackend) Set(context.Context, string, []byte) error   { return errors.New("disk gone") }
func (failingBackend) Delete(context.Context, string) error        { return errors.New("disk gone") }
func (failingBackend) Close() error                                { return nil }

func TestStoreBackendFailuresDegrade(t *testing.T) {
	store := New(failingBackend{}, zerolog.Nop(), time.Second)
	store.SaveRequests(sampleRecords())
	store.SaveSession(nil)
	assert.Empty(t, store.LoadRequests())
	assert.Equal(t, "", store.LoadOwner())
}

func TestBadgerPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	backend, err := OpenBadger(dir, zerolog.Nop())
	require.NoError(t, err)
	New(backend, zerolog.Nop(), time.Second).SaveRequests(sampleRecords())
	require.NoError(t, backend.Close())

	reopened, err := OpenBadger(dir, zerolog.Nop())
	require.NoError(t, err)
	defer reopened.Close()
	assert.Len(t, New(reopened, zerolog.Nop(), time.Second).LoadRequests(), 2)
}

func TestRedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	backend := NewRedisBackendWithClient(client)
	defer backend.Close()

	ctx := context.Background()
	_, err := backend.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrMiss)

	store := New(backend, zerolog.Nop(), time.Second)
	store.SaveRequests(sampleRecords())
	assert.True(t, mr.Exists("repairdesk:"+keyRequests))
	assert.Len(t, store.LoadRequests(), 2)

	store.ClearRequests()
	assert.False(t, mr.Exists("repairdesk:"+keyRequests))
}

func TestRedisBackendRewritesAfterExternalChange(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	backend := NewRedisBackendWithClient(client)
	defer backend.Close()

	store := New(backend, zerolog.Nop(), time.Second)
	store.SetOwner("owner-a")
	store.SaveRequests(sampleRecords())

	other := New(backend, zerolog.Nop(), time.Second)
	other.SetOwner("owner-b")
	other.SaveRequests(sampleRecords()[:1])
	require.Equal(t, "owner-b", store.LoadOwner())

	store.SaveRequests(sampleRecords())
	assert.Equal(t, "owner-a", store.LoadOwner())
	assert.Len(t, store.LoadRequests(), 2)

	mr.Del("repairdesk:" + keyRequests)
	store.SaveRequests(sampleRecords())
	assert.True(t, mr.Exists("repairdesk:"+keyRequests))
}

func TestLocalBackendSkipsUnchangedWrites(t *testing.T) {
	store, backend := newMemoryStore(t)
	store.SaveRequests(sampleRecords())

	ctx := context.Background()
	require.NoError(t, backend.Set(ctx, keyRequests, []byte(`{"owner":"x","records":[]}`)))
	store.SaveRequests(sampleRecords())
	assert.Equal(t, "x", store.LoadOwner())
}

func TestOpenBackendUnknownKind(t *testing.T) {
	_, err := OpenBackend(context.Background(), "floppy", "", "", zerolog.Nop())
	require.Error(t, err)
}

func TestPostgresBackend(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}
	ctx := context.Background()
	backend, err := NewPostgresBackend(ctx, dsn)
	require.NoError(t, err)
	defer backend.Close()
	defer backend.Delete(ctx, keyRequests)

	store := New(backend, zerolog.Nop(), 5*time.Second)
	store.SaveRequests(sampleRecords())
	assert.Len(t, store.LoadRequests(), 2)

	store.ClearRequests()
	assert.Empty(t, store.LoadRequests())
}
