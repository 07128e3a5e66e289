package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/runflow/types"
)

// GormStore persists runs and threads through GORM. SQLite is the default
// driver; MySQL and PostgreSQL are selected by DSN configuration. All
// version checks ride on conditional UPDATE statements so the database is
// the single arbiter of conflicts.
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// OpenDialector resolves a GORM dialector from a driver name and DSN.
func OpenDialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case "", "sqlite":
		return sqlite.Open(dsn), nil
	case "mysql":
		return mysql.Open(dsn), nil
	case "postgres":
		return postgres.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
}

// NewGormStore opens the database, migrates the schema, and returns a
// ready store.
func NewGormStore(driver, dsn string, logger *zap.Logger) (*GormStore, error) {
	dialector, err := OpenDialector(driver, dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormlogger.Discard,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&types.Run{}, &types.Thread{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	logger.Info("run store initialized",
		zap.String("driver", driver),
	)

	return &GormStore{
		db:     db,
		logger: logger.With(zap.String("component", "gorm_store")),
	}, nil
}

// NewGormStoreFromDB wraps an existing GORM handle without migrating.
func NewGormStoreFromDB(db *gorm.DB, logger *zap.Logger) *GormStore {
	return &GormStore{
		db:     db,
		logger: logger.With(zap.String("component", "gorm_store")),
	}
}

func (s *GormStore) CreateRun(ctx context.Context, run *types.Run) error {
	run.Version = 1
	err := s.db.WithContext(ctx).Create(run).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrAlreadyExists
	}
	return err
}

func (s *GormStore) GetRun(ctx context.Context, runID string) (*types.Run, error) {
	var run types.Run
	err := s.db.WithContext(ctx).First(&run, "run_id = ?", runID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *GormStore) UpdateRun(ctx context.Context, run *types.Run) error {
	next := run.Clone()
	next.Version = run.Version + 1

	res := s.db.WithContext(ctx).
		Model(&types.Run{}).
		Where("run_id = ? AND version = ?", run.RunID, run.Version).
		Select("*").
		Omit("run_id", "created_at").
		Updates(next)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetRun(ctx, run.RunID); err != nil {
			return err
		}
		return ErrVersionConflict
	}

	run.Version = next.Version
	return nil
}

func (s *GormStore) LatestRun(ctx context.Context, threadID string) (*types.Run, error) {
	var run types.Run
	err := s.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("created_at DESC, run_id DESC").
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *GormStore) ListRuns(ctx context.Context, threadID string, filter RunFilter) ([]*types.Run, error) {
	q := s.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("created_at DESC, run_id DESC")
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var runs []*types.Run
	if err := q.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

func (s *GormStore) CreateThread(ctx context.Context, thread *types.Thread) error {
	thread.Version = 1
	err := s.db.WithContext(ctx).Create(thread).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrAlreadyExists
	}
	return err
}

func (s *GormStore) GetThread(ctx context.Context, threadID string) (*types.Thread, error) {
	var thread types.Thread
	err := s.db.WithContext(ctx).First(&thread, "thread_id = ?", threadID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &thread, nil
}

func (s *GormStore) UpdateThread(ctx context.Context, thread *types.Thread) error {
	next := *thread
	next.Version = thread.Version + 1

	res := s.db.WithContext(ctx).
		Model(&types.Thread{}).
		Where("thread_id = ? AND version = ?", thread.ThreadID, thread.Version).
		Select("*").
		Omit("thread_id", "created_at").
		Updates(&next)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetThread(ctx, thread.ThreadID); err != nil {
			return err
		}
		return ErrVersionConflict
	}

	thread.Version = next.Version
	return nil
}

func (s *GormStore) DeleteThread(ctx context.Context, threadID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&types.Thread{}, "thread_id = ?", threadID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Delete(&types.Run{}, "thread_id = ?", threadID).Error
	})
}

func (s *GormStore) AcquireLease(ctx context.Context, threadID, runID string) error {
	res := s.db.WithContext(ctx).
		Model(&types.Thread{}).
		Where("thread_id = ? AND (lease_owner = '' OR lease_owner IS NULL OR lease_owner = ?)", threadID, runID).
		Update("lease_owner", runID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetThread(ctx, threadID); err != nil {
			return err
		}
		return ErrLeaseHeld
	}
	return nil
}

func (s *GormStore) ReleaseLease(ctx context.Context, threadID, runID string) error {
	res := s.db.WithContext(ctx).
		Model(&types.Thread{}).
		Where("thread_id = ? AND lease_owner = ?", threadID, runID).
		Update("lease_owner", "")
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetThread(ctx, threadID); err != nil {
			return err
		}
	}
	return nil
}

var _ RunStore = (*GormStore)(nil)
