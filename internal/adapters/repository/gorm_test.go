package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/okian/concord/internal/domain/model"
	"github.com/okian/concord/internal/domain/reliability"
)

func setupGormStore(t *testing.T) *GormStore {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	store, err := NewGormStore(context.Background(), db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestGormStoreRecordsKeepInsertionOrder(t *testing.T) {
	store := setupGormStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, event("e1", "acme", "backend", "S1", "R1", 2)))
	require.NoError(t, store.Append(ctx, event("e2", "acme", "backend", "S1", "R2", 3)))
	require.NoError(t, store.Append(ctx, event("e3", "acme", "backend", "S1", "R1", 5)))
	require.NoError(t, store.Append(ctx, event("e4", "other", "backend", "S1", "R1", 1)))

	recs, err := store.Records(ctx, model.Scope{OrganizationID: "acme", AssessmentID: "backend"})
	require.NoError(t, err)
	require.Equal(t, []reliability.EvaluationRecord{
		{SubjectID: "S1", RaterID: "R1", Score: 2},
		{SubjectID: "S1", RaterID: "R2", Score: 3},
		{SubjectID: "S1", RaterID: "R1", Score: 5},
	}, recs)

	m := reliability.BuildRatingMatrix(recs)
	require.Equal(t, 5.0, m["S1"]["R1"], "later record should win")
	require.Equal(t, 4, store.Count(ctx))
}

func TestGormStoreRecordsOrderedByEventTime(t *testing.T) {
	store := setupGormStore(t)
	ctx := context.Background()

	late := event("late", "acme", "backend", "S1", "R1", 5)
	late.TS = late.TS.Add(1500 * time.Millisecond)
	early := event("early", "acme", "backend", "S1", "R1", 3)
	early.TS = early.TS.Add(time.Second)
	require.NoError(t, store.Append(ctx, event("first", "acme", "backend", "S1", "R2", 4)))
	require.NoError(t, store.Append(ctx, late))
	require.NoError(t, store.Append(ctx, early))

	recs, err := store.Records(ctx, model.Scope{OrganizationID: "acme", AssessmentID: "backend"})
	require.NoError(t, err)
	require.Equal(t, []reliability.EvaluationRecord{
		{SubjectID: "S1", RaterID: "R2", Score: 4},
		{SubjectID: "S1", RaterID: "R1", Score: 3},
		{SubjectID: "S1", RaterID: "R1", Score: 5},
	}, recs)
	require.Equal(t, 5.0, reliability.BuildRatingMatrix(recs)["S1"]["R1"], "later event should win")
}

func TestGormStoreAppendIsIdempotentPerEventID(t *testing.T) {
	store := setupGormStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, event("e1", "acme", "backend", "S1", "R1", 2)))
	require.NoError(t, store.Append(ctx, event("e1", "acme", "backend", "S1", "R1", 4)))
	require.NoError(t, store.Append(ctx, event("", "acme", "backend", "S2", "R1", 1)))
	require.NoError(t, store.Append(ctx, event("", "acme", "backend", "S3", "R1", 1)))

	recs, err := store.Records(ctx, model.Scope{OrganizationID: "acme", AssessmentID: "backend"})
	require.NoError(t, err)
	require.Len(t, recs, 3)
	require.Equal(t, 2.0, recs[0].Score)
}

func TestGormStoreScopesAndErrors(t *testing.T) {
	store := setupGormStore(t)
	ctx := context.Background()

	_, err := store.Records(ctx, model.Scope{OrganizationID: "acme", AssessmentID: "missing"})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = store.Records(ctx, model.Scope{})
	require.ErrorIs(t, err, ErrInvalidScope)
	require.ErrorIs(t, store.Append(ctx, event("e0", "", "x", "S", "R", 1)), ErrInvalidScope)

	require.NoError(t, store.Append(ctx, event("e1", "b-org", "z", "S1", "R1", 1)))
	require.NoError(t, store.Append(ctx, event("e2", "a-org", "y", "S1", "R1", 1)))
	require.NoError(t, store.Append(ctx, event("e3", "a-org", "y", "S1", "R2", 1)))

	scopes, err := store.Scopes(ctx)
	require.NoError(t, err)
	require.Len(t, scopes, 2)
	require.Equal(t, "a-org", scopes[0].OrganizationID)
	require.Equal(t, 2, scopes[0].Records)
	require.Equal(t, "b-org", scopes[1].OrganizationID)
}

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()

	mem, err := Open(ctx, DriverMemory, "")
	require.NoError(t, err)
	require.IsType(t, &MemoryStore{}, mem)
	require.NoError(t, mem.Close())

	sq, err := Open(ctx, DriverSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	require.IsType(t, &GormStore{}, sq)
	require.NoError(t, sq.Close())

	_, err = Open(ctx, "mongo", "")
	require.ErrorIs(t, err, ErrUnknownDriver)

	_, err = Open(ctx, DriverPostgres, "")
	require.ErrorIs(t, err, ErrStore)
}
