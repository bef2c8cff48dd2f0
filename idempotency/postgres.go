package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// processedEvent is one row of the processed-events table.
type processedEvent struct {
	EventKey  string     `gorm:"column:event_key;primaryKey;size:512"`
	Value     bool       `gorm:"column:value;not null"`
	ExpiresAt *time.Time `gorm:"column:expires_at;index"`
	UpdatedAt time.Time  `gorm:"column:updated_at"`
}

// PostgresStore keeps marks in a shared table. Rows past expires_at are
// ignored by Get and removed by PurgeExpired.
type PostgresStore struct {
	instrumentation

	db        *gorm.DB
	table     string
	namespace string
	now       func() time.Time
}

// NewPostgresStore opens the database, sizes the pool and creates the table
// if it does not exist.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig, namespace string) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres DSN is required for the postgres idempotency backend")
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Discard,
	})
	if err != nil {
		return nil, translateError(fmt.Errorf("failed to connect to idempotency database: %w", err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get idempotency database handle: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen == 0 {
		maxOpen = DefaultMaxOpenConns
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle == 0 {
		maxIdle = DefaultMaxIdleConns
	}
	lifetime := cfg.ConnMaxLifetime
	if lifetime == 0 {
		lifetime = DefaultConnMaxLifetime
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(lifetime)

	store, err := NewPostgresStoreFromDB(ctx, db, cfg.Table, namespace)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStoreFromDB uses an existing gorm handle and migrates table.
func NewPostgresStoreFromDB(ctx context.Context, db *gorm.DB, table, namespace string) (*PostgresStore, error) {
	if table == "" {
		table = DefaultTable
	}
	if err := db.WithContext(ctx).Table(table).AutoMigrate(&processedEvent{}); err != nil {
		return nil, translateError(fmt.Errorf("failed to migrate %s: %w", table, err))
	}

	return &PostgresStore{
		instrumentation: instrumentation{backend: BackendPostgres},
		db:              db,
		table:           table,
		namespace:       namespace,
		now:             time.Now,
	}, nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (bool, error) {
	start := time.Now()

	var row processedEvent
	res := s.db.WithContext(ctx).Table(s.table).
		Where("event_key = ? AND (expires_at IS NULL OR expires_at > ?)", s.namespace+key, s.now()).
		Limit(1).
		Find(&row)
	if res.Error != nil {
		err := translateError(res.Error)
		s.observe("get", start, err, false)
		return false, err
	}

	hit := res.RowsAffected > 0 && row.Value
	s.observe("get", start, nil, hit)
	return hit, nil
}

func (s *PostgresStore) Set(ctx context.Context, key string, value bool, ttl time.Duration) error {
	start := time.Now()

	now := s.now()
	row := processedEvent{EventKey: s.namespace + key, Value: value, UpdatedAt: now}
	if ttl > 0 {
		expires := now.Add(ttl)
		row.ExpiresAt = &expires
	}

	err := s.db.WithContext(ctx).Table(s.table).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
		}).
		Create(&row).Error
	err = translateError(err)
	s.observe("set", start, err, false)
	return err
}

// PurgeExpired deletes expired rows and returns how many were removed.
func (s *PostgresStore) PurgeExpired(ctx context.Context) (int64, error) {
	start := time.Now()
	res := s.db.WithContext(ctx).Table(s.table).
		Where("expires_at IS NOT NULL AND expires_at <= ?", s.now()).
		Delete(&processedEvent{})
	err := translateError(res.Error)
	s.observe("purge", start, err, false)
	return res.RowsAffected, err
}

// RunPurge calls PurgeExpired every interval until ctx is done.
func (s *PostgresStore) RunPurge(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PurgeExpired(ctx)
			if err != nil {
				if ctx.Err() == nil {
					s.logWarn(ctx, "Failed to purge expired idempotency keys", err, map[string]interface{}{"table": s.table})
				}
				continue
			}
			if n > 0 {
				s.logInfo(ctx, "Purged expired idempotency keys", map[string]interface{}{"table": s.table, "rows": n})
			}
		}
	}
}

// Close closes the underlying connection pool.
func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
