// Package service wires ingestion, storage and the reliability engine into
// the operations served by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/okian/concord/internal/adapters/cache"
	eventqueue "github.com/okian/concord/internal/adapters/mq/queue"
	workerpool "github.com/okian/concord/internal/adapters/mq/worker"
	"github.com/okian/concord/internal/adapters/repository"
	"github.com/okian/concord/internal/domain/dedupe"
	"github.com/okian/concord/internal/domain/model"
	"github.com/okian/concord/internal/domain/reliability"
	"github.com/okian/concord/internal/domain/types"
	"github.com/okian/concord/pkg/logger"
	"github.com/okian/concord/pkg/metrics"
)

const (
	stopTimeout = 10 * time.Second
	tracerName  = "github.com/okian/concord/internal/app"
)

// eventNamespace seeds content-derived event IDs.
var eventNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/okian/concord/evaluations"))

// SubmitStatus tells the caller what happened to a submission.
type SubmitStatus string

// Submission outcomes.
const (
	SubmitAccepted  SubmitStatus = "accepted"
	SubmitDuplicate SubmitStatus = "duplicate"
)

// SubmitResult is returned by Submit.
type SubmitResult struct {
	EventID string
	Status  SubmitStatus
}

// Service implements the API dependencies for the reliability system.
type Service struct {
	mu sync.RWMutex

	store      repository.Store
	cache      cache.ReportCache
	deduper    dedupe.Deduper
	eventQueue eventqueue.Queue
	workerPool *workerpool.Pool
	tracer     trace.Tracer

	// generations is bumped on every write to a scope so a report computed
	// before the write is never cached after it.
	generations sync.Map // model.Scope -> *atomic.Uint64

	workerCount int
	queueSize   int
	dedupeSize  int
	thresholds  Thresholds
	maxScoreAbs float64

	started bool
	logger  logger.Logger
}

// New constructs a Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount: 4,
		queueSize:   10_000,
		dedupeSize:  50_000,
		thresholds:  DefaultThresholds,
		maxScoreAbs: 1000,
		tracer:      otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	s.logger.Info(ctx, "starting reliability service...")

	if s.store == nil {
		s.store = repository.NewMemoryStore(ctx)
		s.logger.Info(ctx, "using in-memory store")
	}
	if s.cache == nil {
		s.cache = cache.NopCache{}
	}
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.eventQueue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.workerPool = workerpool.NewPool(s.workerCount, s.eventQueue, s.store,
		workerpool.WithInvalidator(s),
		workerpool.WithLogger(s.logger.Named("worker")),
	)
	// Workers outlive ctx so Stop can drain the queue.
	s.workerPool.Start(context.WithoutCancel(ctx))

	s.started = true
	s.logger.Info(ctx, "reliability service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queue_size", s.queueSize),
		logger.Int("dedupe_size", s.dedupeSize),
		logger.Float64("calibration_threshold", s.thresholds.Calibration),
		logger.Float64("divergence_threshold", s.thresholds.Divergence),
	)
	return nil
}

// Stop drains the queue and releases the store and cache.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	s.logger.Info(ctx, "stopping reliability service...")

	if err := s.workerPool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool did not drain", logger.Error(err))
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error(ctx, "closing store failed", logger.Error(err))
	}
	if err := s.cache.Close(); err != nil {
		s.logger.Error(ctx, "closing report cache failed", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "reliability service stopped")
}

func (s *Service) running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// EventID derives the identifier of an evaluation from its content and
// timestamp. A retry carrying the same ts is recognised as a duplicate; a
// rater who returns to an earlier score at a later ts is not.
func EventID(e model.Event) string { //nolint:gocritic // hugeParam: Event is a value type
	name := strings.Join([]string{
		e.Scope.OrganizationID,
		e.Scope.AssessmentID,
		e.SubjectID,
		e.RaterID,
		strconv.FormatFloat(e.Score, 'g', -1, 64),
		strconv.FormatInt(e.TS.UnixNano(), 10),
	}, "\x1f")
	return uuid.NewSHA1(eventNamespace, []byte(name)).String()
}

// Validate checks an evaluation before it is accepted.
func (s *Service) Validate(e model.Event) error { //nolint:gocritic // hugeParam: Event is a value type
	switch {
	case !e.Scope.Valid():
		return fmt.Errorf("%w: organization_id and assessment_id are required", ErrInvalidEvaluation)
	case strings.TrimSpace(e.SubjectID) == "":
		return fmt.Errorf("%w: subject_id is required", ErrInvalidEvaluation)
	case strings.TrimSpace(e.RaterID) == "":
		return fmt.Errorf("%w: rater_id is required", ErrInvalidEvaluation)
	case math.IsNaN(e.Score) || math.IsInf(e.Score, 0):
		return fmt.Errorf("%w: score must be finite", ErrInvalidEvaluation)
	case math.Abs(e.Score) > s.maxScoreAbs:
		return fmt.Errorf("%w: score magnitude exceeds %g", ErrInvalidEvaluation, s.maxScoreAbs)
	}
	return nil
}

// Submit validates, deduplicates and queues an evaluation.
func (s *Service) Submit(ctx context.Context, e model.Event) (SubmitResult, error) { //nolint:gocritic // hugeParam: Event is a value type
	if !s.running() {
		return SubmitResult{}, ErrNotStarted
	}
	if err := s.Validate(e); err != nil {
		metrics.RecordEventRejected("invalid")
		return SubmitResult{}, err
	}
	if e.TS.IsZero() {
		e.TS = time.Now().UTC()
	}
	if e.EventID == "" {
		e.EventID = EventID(e)
	}

	if s.deduper.SeenAndRecord(ctx, e.EventID) {
		metrics.RecordEventDuplicate()
		s.logger.Debug(ctx, "duplicate evaluation", logger.String("event_id", e.EventID))
		return SubmitResult{EventID: e.EventID, Status: SubmitDuplicate}, nil
	}
	if !s.eventQueue.Enqueue(ctx, e) {
		s.deduper.Unrecord(ctx, e.EventID)
		metrics.RecordEventRejected("backpressure")
		return SubmitResult{}, ErrBackpressure
	}

	metrics.RecordEventAccepted()
	s.logger.Debug(ctx, "evaluation queued",
		logger.String("event_id", e.EventID),
		logger.String("scope", e.Scope.String()),
		logger.String("rater_id", e.RaterID),
	)
	return SubmitResult{EventID: e.EventID, Status: SubmitAccepted}, nil
}

func (s *Service) generation(scope model.Scope) *atomic.Uint64 {
	g, _ := s.generations.LoadOrStore(scope, new(atomic.Uint64))
	return g.(*atomic.Uint64)
}

// Invalidate marks the scope as changed and drops its cached report. Workers
// call it after every stored evaluation.
func (s *Service) Invalidate(ctx context.Context, scope model.Scope) error {
	s.generation(scope).Add(1)
	return s.cache.Invalidate(ctx, scope)
}

// Report returns the reliability report of a scope. An unknown scope yields
// repository.ErrNotFound; too little data yields a report with status
// insufficient_data.
func (s *Service) Report(ctx context.Context, scope model.Scope) (*types.Report, error) {
	ctx, span := s.tracer.Start(ctx, "reliability.report", trace.WithAttributes(
		attribute.String("organization_id", scope.OrganizationID),
		attribute.String("assessment_id", scope.AssessmentID),
	))
	defer span.End()

	report, err := s.report(ctx, scope)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("status", report.Status),
		attribute.Int("records", report.Records),
	)
	return report, nil
}

func (s *Service) report(ctx context.Context, scope model.Scope) (*types.Report, error) {
	if !s.running() {
		return nil, ErrNotStarted
	}
	if !scope.Valid() {
		return nil, repository.ErrInvalidScope
	}

	cached, err := s.cache.Get(ctx, scope)
	switch {
	case err == nil:
		metrics.RecordCacheHit()
		return cached, nil
	case !errors.Is(err, cache.ErrCacheMiss):
		metrics.RecordErrorByComponent("service", "cache_read")
		s.logger.Warn(ctx, "report cache read failed", logger.String("scope", scope.String()), logger.Error(err))
	}
	metrics.RecordCacheMiss()

	gen := s.generation(scope)
	before := gen.Load()

	records, err := s.store.Records(ctx, scope)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	report := BuildReport(scope, records, s.thresholds, start)
	metrics.RecordComputationLatency(float64(time.Since(start).Microseconds()) / 1000)
	if report.Reliability != nil {
		metrics.RecordComputation(metrics.OutcomeComputed)
		metrics.UpdateLastICC(report.Reliability.ICC)
	} else {
		metrics.RecordComputation(metrics.OutcomeInsufficient)
	}

	if gen.Load() == before {
		if err := s.cache.Set(ctx, scope, report); err != nil {
			metrics.RecordErrorByComponent("service", "cache_write")
			s.logger.Warn(ctx, "report cache write failed", logger.String("scope", scope.String()), logger.Error(err))
		}
	}
	return report, nil
}

// Raters returns the per-rater part of the scope's report.
func (s *Service) Raters(ctx context.Context, scope model.Scope) ([]types.RaterReport, error) {
	report, err := s.Report(ctx, scope)
	if err != nil {
		return nil, err
	}
	return report.Raters, nil
}

// Scopes lists the assessments held by the store.
func (s *Service) Scopes(ctx context.Context) ([]types.ScopeSummary, error) {
	if !s.running() {
		return nil, ErrNotStarted
	}
	return s.store.Scopes(ctx)
}

// Compute runs the engine over records without touching the store. The
// service does not need to be started.
func (s *Service) Compute(records []reliability.EvaluationRecord) *types.Report {
	return BuildReport(model.Scope{}, records, s.thresholds, time.Now())
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":              s.started,
		"workerCount":          s.workerCount,
		"queueSize":            s.queueSize,
		"dedupeSize":           s.dedupeSize,
		"calibrationThreshold": s.thresholds.Calibration,
		"divergenceThreshold":  s.thresholds.Divergence,
	}
	if s.started {
		ctx := context.Background()
		queueLen := s.eventQueue.Len(ctx)
		records := s.store.Count(ctx)

		stats["queueLength"] = queueLen
		stats["records"] = records
		stats["processed"] = s.workerPool.Processed()
		stats["dedupeEntries"] = s.deduper.Size()

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateStoreRecordsTotal(records)
	}
	return stats
}
