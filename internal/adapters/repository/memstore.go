package repository

import (
	"context"
	"hash/maphash"
	"sort"
	"sync"
	"time"

	"github.com/okian/concord/internal/domain/model"
	"github.com/okian/concord/internal/domain/reliability"
	"github.com/okian/concord/internal/domain/types"
	"github.com/okian/concord/pkg/metrics"
)

const (
	defaultShardCount            = 16
	defaultMetricsUpdateInterval = 5 * time.Second
)

type shard struct {
	mu      sync.RWMutex
	records map[model.Scope][]storedRecord
	events  map[string]struct{}
}

type storedRecord struct {
	record reliability.EvaluationRecord
	ts     time.Time
}

// MemoryStore is a sharded in-memory Store. A scope always lives in a
// single shard; its records are kept sorted by event time, ties in
// insertion order.
type MemoryStore struct {
	shards                []*shard
	shardCount            int
	seed                  maphash.Seed
	metricsUpdateInterval time.Duration

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewMemoryStore constructs a MemoryStore and starts its metrics updater.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		shardCount:            defaultShardCount,
		seed:                  maphash.MakeSeed(),
		metricsUpdateInterval: defaultMetricsUpdateInterval,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.shards = make([]*shard, s.shardCount)
	for i := range s.shards {
		s.shards[i] = &shard{
			records: make(map[model.Scope][]storedRecord),
			events:  make(map[string]struct{}),
		}
	}
	s.startMetricsUpdater(ctx)
	return s
}

func (s *MemoryStore) shardFor(scope model.Scope) *shard {
	var h maphash.Hash
	h.SetSeed(s.seed)
	_, _ = h.WriteString(scope.OrganizationID)
	_ = h.WriteByte(0)
	_, _ = h.WriteString(scope.AssessmentID)
	return s.shards[h.Sum64()%uint64(len(s.shards))]
}

// Append implements Store.Append.
func (s *MemoryStore) Append(_ context.Context, e model.Event) error {
	start := time.Now()
	defer func() {
		metrics.RecordStoreWriteLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if !e.Scope.Valid() {
		metrics.RecordErrorByComponent("repository", "invalid_scope")
		return ErrInvalidScope
	}

	sh := s.shardFor(e.Scope)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if e.EventID != "" {
		if _, ok := sh.events[e.EventID]; ok {
			return nil
		}
		sh.events[e.EventID] = struct{}{}
	}
	sh.records[e.Scope] = insertByTime(sh.records[e.Scope], storedRecord{record: e.Record(), ts: e.TS})
	return nil
}

// insertByTime places rec after every record not later than it. Events
// usually arrive in time order, so the search starts from the tail.
func insertByTime(recs []storedRecord, rec storedRecord) []storedRecord {
	i := len(recs)
	for i > 0 && recs[i-1].ts.After(rec.ts) {
		i--
	}
	recs = append(recs, storedRecord{})
	copy(recs[i+1:], recs[i:])
	recs[i] = rec
	return recs
}

// Records implements Store.Records. The returned slice is a copy.
func (s *MemoryStore) Records(_ context.Context, scope model.Scope) ([]reliability.EvaluationRecord, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if !scope.Valid() {
		return nil, ErrInvalidScope
	}
	sh := s.shardFor(scope)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	recs, ok := sh.records[scope]
	if !ok || len(recs) == 0 {
		return nil, ErrNotFound
	}
	out := make([]reliability.EvaluationRecord, len(recs))
	for i, r := range recs {
		out[i] = r.record
	}
	return out, nil
}

// Scopes implements Store.Scopes.
func (s *MemoryStore) Scopes(_ context.Context) ([]types.ScopeSummary, error) {
	var out []types.ScopeSummary
	for _, sh := range s.shards {
		sh.mu.RLock()
		for scope, recs := range sh.records {
			out = append(out, types.ScopeSummary{
				OrganizationID: scope.OrganizationID,
				AssessmentID:   scope.AssessmentID,
				Records:        len(recs),
			})
		}
		sh.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OrganizationID != out[j].OrganizationID {
			return out[i].OrganizationID < out[j].OrganizationID
		}
		return out[i].AssessmentID < out[j].AssessmentID
	})
	return out, nil
}

// Count implements Store.Count.
func (s *MemoryStore) Count(_ context.Context) int {
	total, _ := s.totals()
	return total
}

func (s *MemoryStore) totals() (records, scopes int) {
	for _, sh := range s.shards {
		sh.mu.RLock()
		scopes += len(sh.records)
		for _, recs := range sh.records {
			records += len(recs)
		}
		sh.mu.RUnlock()
	}
	return records, scopes
}

// Close stops the metrics updater.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

func (s *MemoryStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.updateMetrics()
			}
		}
	}()
}

func (s *MemoryStore) updateMetrics() {
	records, scopes := s.totals()
	metrics.UpdateStoreRecordsTotal(records)
	metrics.UpdateStoreScopesTotal(scopes)
}
