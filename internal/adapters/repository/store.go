// Package repository persists evaluations per assessment scope.
package repository

import (
	"context"

	"github.com/okian/concord/internal/domain/model"
	"github.com/okian/concord/internal/domain/reliability"
	"github.com/okian/concord/internal/domain/types"
)

// Store provides append-only access to evaluations grouped by scope.
type Store interface {
	// Append stores an evaluation. Appending an event ID that is already
	// stored is a no-op.
	Append(ctx context.Context, e model.Event) error

	// Records returns the evaluations of a scope ordered by event time,
	// equal times in insertion order, so the latest evaluation of a
	// (subject, rater) pair comes last whichever worker stored it.
	// Returns ErrNotFound if the scope holds no evaluations.
	Records(ctx context.Context, scope model.Scope) ([]reliability.EvaluationRecord, error)

	// Scopes lists every scope with its record count, ordered by
	// organization then assessment.
	Scopes(ctx context.Context) ([]types.ScopeSummary, error)

	// Count returns the total number of stored evaluations.
	Count(ctx context.Context) int

	// Close releases background goroutines and connections.
	Close() error
}
