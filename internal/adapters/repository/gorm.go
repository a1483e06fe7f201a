package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/okian/concord/internal/domain/model"
	"github.com/okian/concord/internal/domain/reliability"
	"github.com/okian/concord/internal/domain/types"
	"github.com/okian/concord/pkg/metrics"
)

// Drivers understood by Open.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	defaultSQLiteDSN = "concord.db"
)

// evaluation is the persisted form of a model.Event. Records are read back
// by SubmittedAt; the autoincrement ID breaks ties in insertion order.
type evaluation struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement"`
	EventID        string    `gorm:"size:191;uniqueIndex"`
	OrganizationID string    `gorm:"size:191;not null;index:idx_evaluations_scope,priority:1"`
	AssessmentID   string    `gorm:"size:191;not null;index:idx_evaluations_scope,priority:2"`
	SubjectID      string    `gorm:"size:191;not null"`
	RaterID        string    `gorm:"size:191;not null"`
	Score          float64   `gorm:"not null"`
	SubmittedAt    time.Time `gorm:"not null;index:idx_evaluations_scope,priority:3"`
	CreatedAt      time.Time
}

// TableName overrides the gorm default.
func (evaluation) TableName() string { return "evaluations" }

// GormStore is a Store backed by a SQL database through gorm.
type GormStore struct {
	db *gorm.DB
}

// Open returns the Store for driver. The memory driver ignores dsn.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case "", DriverMemory:
		return NewMemoryStore(ctx), nil
	case DriverSQLite:
		if dsn == "" {
			dsn = defaultSQLiteDSN
		}
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		if dsn == "" {
			return nil, fmt.Errorf("%w: postgres dsn must not be empty", ErrStore)
		}
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		return nil, fmt.Errorf("%w: connect %s: %v", ErrStore, driver, err)
	}
	return NewGormStore(ctx, db)
}

// NewGormStore migrates the evaluations table on db and wraps it.
func NewGormStore(ctx context.Context, db *gorm.DB) (*GormStore, error) {
	if err := db.WithContext(ctx).AutoMigrate(&evaluation{}); err != nil {
		return nil, fmt.Errorf("%w: migrate: %v", ErrStore, err)
	}
	return &GormStore{db: db}, nil
}

// Append implements Store.Append.
func (s *GormStore) Append(ctx context.Context, e model.Event) error {
	start := time.Now()
	defer func() {
		metrics.RecordStoreWriteLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if !e.Scope.Valid() {
		metrics.RecordErrorByComponent("repository", "invalid_scope")
		return ErrInvalidScope
	}
	eventID := e.EventID
	if eventID == "" {
		eventID = uuid.NewString()
	}
	row := evaluation{
		EventID:        eventID,
		OrganizationID: e.Scope.OrganizationID,
		AssessmentID:   e.Scope.AssessmentID,
		SubjectID:      e.SubjectID,
		RaterID:        e.RaterID,
		Score:          e.Score,
		SubmittedAt:    e.TS.UTC(),
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(&row).Error
	if err != nil {
		metrics.RecordErrorByComponent("repository", "write")
		return fmt.Errorf("%w: append: %v", ErrStore, err)
	}
	return nil
}

// Records implements Store.Records.
func (s *GormStore) Records(ctx context.Context, scope model.Scope) ([]reliability.EvaluationRecord, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if !scope.Valid() {
		return nil, ErrInvalidScope
	}
	var rows []evaluation
	err := s.db.WithContext(ctx).
		Where("organization_id = ? AND assessment_id = ?", scope.OrganizationID, scope.AssessmentID).
		Order("submitted_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		metrics.RecordErrorByComponent("repository", "query")
		return nil, fmt.Errorf("%w: records: %v", ErrStore, err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	out := make([]reliability.EvaluationRecord, len(rows))
	for i, r := range rows {
		out[i] = reliability.EvaluationRecord{SubjectID: r.SubjectID, RaterID: r.RaterID, Score: r.Score}
	}
	return out, nil
}

// Scopes implements Store.Scopes.
func (s *GormStore) Scopes(ctx context.Context) ([]types.ScopeSummary, error) {
	var rows []struct {
		OrganizationID string
		AssessmentID   string
		Records        int
	}
	err := s.db.WithContext(ctx).Model(&evaluation{}).
		Select("organization_id, assessment_id, COUNT(*) AS records").
		Group("organization_id, assessment_id").
		Order("organization_id ASC, assessment_id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%w: scopes: %v", ErrStore, err)
	}
	out := make([]types.ScopeSummary, len(rows))
	for i, r := range rows {
		out[i] = types.ScopeSummary{OrganizationID: r.OrganizationID, AssessmentID: r.AssessmentID, Records: r.Records}
	}
	return out, nil
}

// Count implements Store.Count. Query errors count as zero.
func (s *GormStore) Count(ctx context.Context) int {
	var n int64
	if err := s.db.WithContext(ctx).Model(&evaluation{}).Count(&n).Error; err != nil {
		metrics.RecordErrorByComponent("repository", "count")
		return 0
	}
	metrics.UpdateStoreRecordsTotal(int(n))
	return int(n)
}

// Close closes the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
