package store

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/overlaykit/userdir/pkg/config"
	"github.com/overlaykit/userdir/pkg/errors"
	"github.com/overlaykit/userdir/pkg/interfaces"
	"github.com/overlaykit/userdir/pkg/types"
)

// SQLiteStore is the default overlay store, backed by a SQLite file through
// gorm. It also carries the audit trail when auditing is enabled.
type SQLiteStore struct {
	db *gorm.DB
}

var (
	_ interfaces.Overlay    = (*SQLiteStore)(nil)
	_ interfaces.AuditTrail = (*SQLiteStore)(nil)
)

// NewSQLiteStore opens the SQLite overlay store and migrates its schema
func NewSQLiteStore(cfg config.StoreConfig) (*SQLiteStore, error) {
	if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.NewStorageUnavailableError("failed to create store directory", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(cfg.SQLitePath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent), // Reduce log noise
	})
	if err != nil {
		return nil, errors.NewStorageUnavailableError("failed to open store", err)
	}

	if err := db.AutoMigrate(&types.User{}, &types.AuditEntry{}); err != nil {
		return nil, errors.NewStorageUnavailableError("failed to migrate store schema", err)
	}

	return &SQLiteStore{db: db}, nil
}

// GetByID retrieves a record by id, returning nil when absent
func (s *SQLiteStore) GetByID(ctx context.Context, id uint64) (*types.User, error) {
	var user types.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.NewStorageUnavailableError("failed to get user", err).WithDetail("user_id", id)
	}
	return &user, nil
}

// ListAll retrieves every record held by the overlay, ascending by id
func (s *SQLiteStore) ListAll(ctx context.Context) ([]types.User, error) {
	var users []types.User
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&users).Error; err != nil {
		return nil, errors.NewStorageUnavailableError("failed to list users", err)
	}
	return users, nil
}

// ExistsByID reports whether a record with the given id is present
func (s *SQLiteStore) ExistsByID(ctx context.Context, id uint64) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&types.User{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, errors.NewStorageUnavailableError("failed to check user existence", err).WithDetail("user_id", id)
	}
	return count > 0, nil
}

// Upsert atomically creates or replaces the record keyed by its id. The
// derived origin field is never persisted.
func (s *SQLiteStore) Upsert(ctx context.Context, user types.User) error {
	user.Origin = ""

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&user).Error
	if err != nil {
		return errors.NewStorageUnavailableError("failed to upsert user", err).WithDetail("user_id", user.ID)
	}
	return nil
}

// Record appends one audit entry. IDs and timestamps are filled in when the
// caller left them empty.
func (s *SQLiteStore) Record(ctx context.Context, entry types.AuditEntry) error {
	if entry.EntryID == "" {
		entry.EntryID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return errors.NewStorageUnavailableError("failed to record audit entry", err)
	}
	return nil
}

// HealthCheck verifies the store is reachable
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.NewStorageUnavailableError("failed to get database instance", err)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return errors.NewStorageUnavailableError("store ping failed", err)
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.NewStorageUnavailableError("failed to get database instance", err)
	}

	return sqlDB.Close()
}
