package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	service "github.com/okian/concord/internal/app"
	"github.com/okian/concord/internal/domain/model"
	"github.com/okian/concord/pkg/logger"
)

const maxBodyBytes = 1 << 20

// EvaluationDependencies defines what the evaluations handler needs.
type EvaluationDependencies interface {
	Submit(ctx context.Context, e model.Event) (service.SubmitResult, error)
}

// EvaluationsHandler handles evaluation submissions.
type EvaluationsHandler struct {
	deps     EvaluationDependencies
	validate *validator.Validate
}

// NewEvaluationsHandler creates a new evaluations handler.
func NewEvaluationsHandler(deps EvaluationDependencies, validate *validator.Validate) *EvaluationsHandler {
	return &EvaluationsHandler{deps: deps, validate: validate}
}

// evaluationRequest mirrors the OpenAPI schema for POST /v1/evaluations.
type evaluationRequest struct {
	EventID        string   `json:"event_id" validate:"omitempty,max=128"`
	OrganizationID string   `json:"organization_id" validate:"required,max=128"`
	AssessmentID   string   `json:"assessment_id" validate:"required,max=128"`
	SubjectID      string   `json:"subject_id" validate:"required,max=128"`
	RaterID        string   `json:"rater_id" validate:"required,max=128"`
	Score          *float64 `json:"score" validate:"required"`
	TS             string   `json:"ts" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

func (r *evaluationRequest) event() model.Event {
	e := model.Event{
		EventID:   strings.TrimSpace(r.EventID),
		Scope:     model.Scope{OrganizationID: r.OrganizationID, AssessmentID: r.AssessmentID},
		SubjectID: r.SubjectID,
		RaterID:   r.RaterID,
		Score:     *r.Score,
	}
	if ts, err := time.Parse(time.RFC3339, r.TS); err == nil {
		e.TS = ts.UTC()
	}
	return e
}

type ackResponse struct {
	EventID   string `json:"event_id"`
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// HandlePostEvaluation handles POST /v1/evaluations requests.
func (h *EvaluationsHandler) HandlePostEvaluation(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_evaluation"

	var req evaluationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, validationMessage(err)))
		return
	}

	res, err := h.deps.Submit(r.Context(), req.event())
	if err != nil {
		if errors.Is(err, service.ErrBackpressure) {
			logger.Get().Warn(r.Context(), "evaluation rejected", logger.String("reason", "backpressure"))
		}
		writeServiceError(w, r, op, err)
		return
	}

	if res.Status == service.SubmitDuplicate {
		writeJSON(w, http.StatusOK, ackResponse{EventID: res.EventID, Status: string(res.Status), Duplicate: true})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{EventID: res.EventID, Status: string(res.Status)})
}

// validationMessage names the first offending field in JSON terms.
func validationMessage(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	field := jsonFieldNames[fe.StructField()]
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("missing %s", field)
	case "datetime":
		return fmt.Errorf("invalid %s; must be RFC3339", field)
	default:
		return fmt.Errorf("invalid %s", field)
	}
}

var jsonFieldNames = map[string]string{
	"EventID":        "event_id",
	"OrganizationID": "organization_id",
	"AssessmentID":   "assessment_id",
	"SubjectID":      "subject_id",
	"RaterID":        "rater_id",
	"Score":          "score",
	"TS":             "ts",
}
