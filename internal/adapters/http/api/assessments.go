package api

import (
	"context"
	"net/http"

	"github.com/okian/concord/internal/domain/model"
	"github.com/okian/concord/internal/domain/types"
)

// AssessmentDependencies defines the read operations over assessments.
type AssessmentDependencies interface {
	Report(ctx context.Context, scope model.Scope) (*types.Report, error)
	Raters(ctx context.Context, scope model.Scope) ([]types.RaterReport, error)
	Scopes(ctx context.Context) ([]types.ScopeSummary, error)
}

// AssessmentsHandler serves reliability reads.
type AssessmentsHandler struct {
	deps AssessmentDependencies
}

// NewAssessmentsHandler creates a new assessments handler.
func NewAssessmentsHandler(deps AssessmentDependencies) *AssessmentsHandler {
	return &AssessmentsHandler{deps: deps}
}

func scopeFromPath(r *http.Request) model.Scope {
	return model.Scope{OrganizationID: r.PathValue("org"), AssessmentID: r.PathValue("assessment")}
}

type scopesResponse struct {
	Assessments []types.ScopeSummary `json:"assessments"`
}

type ratersResponse struct {
	OrganizationID string              `json:"organization_id"`
	AssessmentID   string              `json:"assessment_id"`
	Raters         []types.RaterReport `json:"raters"`
}

// HandleGetReport handles GET /v1/assessments/{org}/{assessment}/reliability.
func (h *AssessmentsHandler) HandleGetReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.deps.Report(r.Context(), scopeFromPath(r))
	if err != nil {
		writeServiceError(w, r, "api.get_report", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandleGetRaters handles GET /v1/assessments/{org}/{assessment}/raters.
func (h *AssessmentsHandler) HandleGetRaters(w http.ResponseWriter, r *http.Request) {
	scope := scopeFromPath(r)
	raters, err := h.deps.Raters(r.Context(), scope)
	if err != nil {
		writeServiceError(w, r, "api.get_raters", err)
		return
	}
	if raters == nil {
		raters = []types.RaterReport{}
	}
	writeJSON(w, http.StatusOK, ratersResponse{
		OrganizationID: scope.OrganizationID,
		AssessmentID:   scope.AssessmentID,
		Raters:         raters,
	})
}

// HandleListScopes handles GET /v1/assessments.
func (h *AssessmentsHandler) HandleListScopes(w http.ResponseWriter, r *http.Request) {
	scopes, err := h.deps.Scopes(r.Context())
	if err != nil {
		writeServiceError(w, r, "api.list_assessments", err)
		return
	}
	if scopes == nil {
		scopes = []types.ScopeSummary{}
	}
	writeJSON(w, http.StatusOK, scopesResponse{Assessments: scopes})
}
