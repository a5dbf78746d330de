package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/sessionbroker/internal/common"
	"github.com/ternarybob/sessionbroker/internal/models"
)

func newTestDB(t *testing.T) *BadgerDB {
	t.Helper()
	db, err := NewBadgerDB(arbor.NewLogger(), &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testJar() *models.SessionJar {
	return &models.SessionJar{
		Cookies: []models.Cookie{
			{Name: "tn_session", Value: "abc", Domain: ".mitiendanube.com", Path: "/", Expires: 1893456000, Secure: true, HTTPOnly: true, SameSite: "Lax"},
			{Name: "locale", Value: "es_AR", Domain: "www.tiendanube.com", Path: "/", Expires: -1},
		},
		SavedAt: time.Unix(1760000000, 0),
	}
}

func TestSessionStorage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStorage(newTestDB(t), "ops@example.com", arbor.NewLogger())

	_, ok := store.Load(ctx)
	assert.False(t, ok, "empty store should report absent")

	jar := testJar()
	require.NoError(t, store.Save(ctx, jar))

	loaded, ok := store.Load(ctx)
	require.True(t, ok)
	assert.ElementsMatch(t, jar.Cookies, loaded.Cookies)
	assert.Equal(t, jar.SavedAt.Unix(), loaded.SavedAt.Unix())
}

func TestSessionStorage_SaveOverwrites(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStorage(newTestDB(t), "ops@example.com", arbor.NewLogger())

	require.NoError(t, store.Save(ctx, testJar()))
	replacement := &models.SessionJar{Cookies: []models.Cookie{{Name: "only", Value: "one"}}}
	require.NoError(t, store.Save(ctx, replacement))

	loaded, ok := store.Load(ctx)
	require.True(t, ok)
	assert.Equal(t, replacement.Cookies, loaded.Cookies)
}

func TestSessionStorage_Invalidate(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStorage(newTestDB(t), "ops@example.com", arbor.NewLogger())

	require.NoError(t, store.Save(ctx, testJar()))
	store.Invalidate(ctx)

	_, ok := store.Load(ctx)
	assert.False(t, ok)

	// Invalidating an empty slot is a no-op
	store.Invalidate(ctx)
}

func TestSessionStorage_CorruptRecordIsAbsent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	store := NewSessionStorage(db, "ops@example.com", arbor.NewLogger())

	rec := &sessionRecord{Key: "session:ops@example.com", Cookies: []byte("{not json")}
	require.NoError(t, db.Store().Upsert(rec.Key, rec))

	jar, ok := store.Load(ctx)
	assert.False(t, ok)
	assert.Nil(t, jar)
}

func TestSessionStorage_KeyedByIdentity(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	a := NewSessionStorage(db, "a@example.com", arbor.NewLogger())
	b := NewSessionStorage(db, "b@example.com", arbor.NewLogger())

	require.NoError(t, a.Save(ctx, testJar()))

	_, ok := b.Load(ctx)
	assert.False(t, ok)
}

func TestSessionStorage_RejectsEmptyJar(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStorage(newTestDB(t), "ops@example.com", arbor.NewLogger())

	require.NoError(t, store.Save(ctx, testJar()))
	assert.Error(t, store.Save(ctx, &models.SessionJar{}))
	assert.Error(t, store.Save(ctx, nil))

	loaded, ok := store.Load(ctx)
	require.True(t, ok, "a rejected save keeps the previous jar")
	assert.Equal(t, testJar().Cookies, loaded.Cookies)
}
