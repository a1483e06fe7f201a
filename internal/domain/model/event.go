// Package model contains domain models passed between layers.
package model

import (
	"strings"
	"time"

	"github.com/okian/concord/internal/domain/reliability"
)

// Scope identifies one assessment of one organization. Evaluations are only
// ever combined within a single scope.
type Scope struct {
	OrganizationID string
	AssessmentID   string
}

// Valid reports whether both parts of the scope are set.
func (s Scope) Valid() bool {
	return strings.TrimSpace(s.OrganizationID) != "" && strings.TrimSpace(s.AssessmentID) != ""
}

// String renders the scope as org/assessment.
func (s Scope) String() string {
	return s.OrganizationID + "/" + s.AssessmentID
}

// Event is an evaluation submitted by an evaluator for an interview.
type Event struct {
	EventID   string    // unique id for idempotency
	Scope     Scope     // tenant and assessment
	SubjectID string    // interview being rated
	RaterID   string    // evaluator
	Score     float64   // evaluator score, any real value
	TS        time.Time // when the evaluation was made
}

// Record projects the event onto the fields the reliability engine reads.
func (e Event) Record() reliability.EvaluationRecord { //nolint:gocritic // hugeParam: Event is passed by value through the queue
	return reliability.EvaluationRecord{
		SubjectID: e.SubjectID,
		RaterID:   e.RaterID,
		Score:     e.Score,
	}
}
