package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/overlaykit/userdir/pkg/config"
	"github.com/overlaykit/userdir/pkg/types"
)

func setupStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(config.StoreConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "overlay.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

func sampleUser(id uint64, name string) types.User {
	return types.User{
		ID:       id,
		Name:     name,
		Username: "user" + name,
		Email:    name + "@example.com",
		Phone:    "555-0100",
		Website:  "example.com",
		Address: types.Address{
			Street: "Kulas Light",
			Suite:  "Apt. 556",
			City:   "Gwenborough",
			Geo:    map[string]string{"lat": "-37.3159", "lng": "81.1496"},
		},
		Company: types.Company{
			Name:        "Romaguera-Crona",
			CatchPhrase: "Multi-layered client-server neural-net",
			BS:          "harness real-time e-markets",
		},
	}
}

func TestSQLiteStore_UpsertAndGet(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, sampleUser(1, "Leanne")))

	got, err := store.GetByID(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, uint64(1), got.ID)
	assert.Equal(t, "Leanne", got.Name)
	assert.Equal(t, "Gwenborough", got.Address.City)
	assert.Equal(t, "-37.3159", got.Address.Geo["lat"])
	assert.Equal(t, "Multi-layered client-server neural-net", got.Company.CatchPhrase)
}

func TestSQLiteStore_GetAbsent(t *testing.T) {
	store := setupStore(t)

	got, err := store.GetByID(context.Background(), 404)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteStore_UpsertReplaces(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, sampleUser(1, "Leanne")))

	updated := sampleUser(1, "Leanne Graham")
	updated.Email = "sincere@april.biz"
	require.NoError(t, store.Upsert(ctx, updated))

	got, err := store.GetByID(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Leanne Graham", got.Name)
	assert.Equal(t, "sincere@april.biz", got.Email)

	// Replaced in place, not duplicated
	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSQLiteStore_ListAllOrdered(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	for _, id := range []uint64{3, 7, 2} {
		require.NoError(t, store.Upsert(ctx, sampleUser(id, "u")))
	}

	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, uint64(2), all[0].ID)
	assert.Equal(t, uint64(3), all[1].ID)
	assert.Equal(t, uint64(7), all[2].ID)
}

func TestSQLiteStore_ListAllEmpty(t *testing.T) {
	store := setupStore(t)

	all, err := store.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSQLiteStore_ExistsByID(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, sampleUser(5, "u")))

	exists, err := store.ExistsByID(ctx, 5)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.ExistsByID(ctx, 6)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSQLiteStore_OriginNeverPersisted(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	user := sampleUser(9, "u")
	user.Origin = types.OriginLocal
	require.NoError(t, store.Upsert(ctx, user))

	got, err := store.GetByID(ctx, 9)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Empty(t, got.Origin)
}

func TestSQLiteStore_Record(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	entry := types.AuditEntry{
		Action:   types.AuditActionCreate,
		UserID:   11,
		ClientID: "reporting",
		Success:  true,
	}
	require.NoError(t, store.Record(ctx, entry))

	var entries []types.AuditEntry
	require.NoError(t, store.db.Find(&entries).Error)
	require.Len(t, entries, 1)

	assert.Equal(t, types.AuditActionCreate, entries[0].Action)
	assert.Equal(t, uint64(11), entries[0].UserID)
	assert.Equal(t, "reporting", entries[0].ClientID)
	assert.True(t, entries[0].Success)
	// Filled in on write
	assert.NotEmpty(t, entries[0].EntryID)
	assert.False(t, entries[0].CreatedAt.IsZero())
}

func TestSQLiteStore_RecordKeepsProvidedID(t *testing.T) {
	store := setupStore(t)

	entry := types.AuditEntry{
		EntryID: "fixed-id",
		Action:  types.AuditActionUpdate,
		UserID:  3,
		Success: false,
		Detail:  "catalog unavailable",
	}
	require.NoError(t, store.Record(context.Background(), entry))

	var got types.AuditEntry
	require.NoError(t, store.db.First(&got, "entry_id = ?", "fixed-id").Error)
	assert.Equal(t, "catalog unavailable", got.Detail)
	assert.False(t, got.Success)
}

func TestSQLiteStore_HealthCheck(t *testing.T) {
	store := setupStore(t)
	assert.NoError(t, store.HealthCheck(context.Background()))
}

func TestSQLiteStore_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "overlay.db")

	store, err := NewSQLiteStore(config.StoreConfig{Driver: "sqlite", SQLitePath: path})
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Upsert(context.Background(), sampleUser(1, "u")))
}

func TestNew(t *testing.T) {
	t.Run("SQLite", func(t *testing.T) {
		overlay, err := New(config.StoreConfig{
			Driver:     "sqlite",
			SQLitePath: filepath.Join(t.TempDir(), "overlay.db"),
		})
		require.NoError(t, err)
		defer overlay.Close()

		_, ok := overlay.(*SQLiteStore)
		assert.True(t, ok)
	})

	t.Run("UnknownDriver", func(t *testing.T) {
		_, err := New(config.StoreConfig{Driver: "memcached"})
		assert.Error(t, err)
	})
}
