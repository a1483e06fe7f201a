// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/okian/concord/internal/adapters/repository"
	service "github.com/okian/concord/internal/app"
	"github.com/okian/concord/internal/domain/model"
	"github.com/okian/concord/internal/domain/types"
	"github.com/okian/concord/pkg/logger"
	"github.com/okian/concord/pkg/metrics"
)

// Dependencies required by HTTP handlers.
type Dependencies interface {
	Submit(ctx context.Context, e model.Event) (service.SubmitResult, error)
	Report(ctx context.Context, scope model.Scope) (*types.Report, error)
	Raters(ctx context.Context, scope model.Scope) ([]types.RaterReport, error)
	Scopes(ctx context.Context) ([]types.ScopeSummary, error)
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	evaluationsHandler *EvaluationsHandler
	assessmentsHandler *AssessmentsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(deps),
		evaluationsHandler: NewEvaluationsHandler(deps, validator.New(validator.WithRequiredStructEnabled())),
		assessmentsHandler: NewAssessmentsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	route := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.Handle(pattern, RequestIDMiddleware(MetricsMiddleware(h, endpoint)))
	}
	route("GET /healthz", "healthz", s.healthHandler.HandleHealth)
	route("GET /stats", "stats", s.statsHandler.HandleStats)
	route("POST /v1/evaluations", "evaluations", s.evaluationsHandler.HandlePostEvaluation)
	route("GET /v1/assessments", "assessments", s.assessmentsHandler.HandleListScopes)
	route("GET /v1/assessments/{org}/{assessment}/reliability", "reliability", s.assessmentsHandler.HandleGetReport)
	route("GET /v1/assessments/{org}/{assessment}/raters", "raters", s.assessmentsHandler.HandleGetRaters)
	mux.Handle("GET /metrics", metrics.Handler())
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError maps errors returned by the service onto status codes.
// Causes of internal errors are logged, never returned to the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidEvaluation), errors.Is(err, repository.ErrInvalidScope):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, err))
	case errors.Is(err, service.ErrBackpressure):
		writeError(w, http.StatusTooManyRequests, "backpressure", NewKind(op, ErrBackpressure))
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
	default:
		logger.Get().Error(r.Context(), "service call failed",
			logger.String("op", op),
			logger.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", NewKind(op, ErrInternal))
	}
}
