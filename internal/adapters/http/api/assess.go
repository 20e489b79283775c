package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/tempalign/tempalign/internal/domain/engine"
	"github.com/tempalign/tempalign/internal/validate"
	"github.com/tempalign/tempalign/pkg/logger"
)

// AssessHandler handles portfolio assessment requests.
type AssessHandler struct {
	deps Dependencies
	log  logger.Logger
}

// NewAssessHandler creates a new assessment handler.
func NewAssessHandler(deps Dependencies) *AssessHandler {
	return &AssessHandler{
		deps: deps,
		log:  logger.Get().Named("assess"),
	}
}

// HandleAssess handles POST /api/v1/assess requests. A request walks
// received -> validated -> computed -> responded; a rejection or failure
// anywhere on the path is terminal and skips every later stage, so the
// engine never sees input that did not survive validation.
func (h *AssessHandler) HandleAssess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	requestID := RequestID(ctx)
	h.transition(ctx, requestID, stateReceived)

	job, err := h.deps.AssessJob(ctx, requestID, r)
	if err != nil {
		h.transition(ctx, requestID, stateRejected)
		h.reject(w, requestID, err)
		return
	}
	h.transition(ctx, requestID, stateValidated)

	result, err := h.deps.Evaluate(ctx, job)
	if err != nil {
		if engine.IsSemantic(err) {
			h.transition(ctx, requestID, stateRejected)
			writeFieldErrors(w, http.StatusUnprocessableEntity, requestID, []validate.FieldError{
				{Field: "portfolio", Message: cause(err).Error()},
			})
		} else {
			h.transition(ctx, requestID, stateFailed)
			h.log.Error(ctx, "assessment failed",
				logger.String("request_id", requestID),
				logger.Error(err))
			writeInternalError(w, requestID)
		}
		return
	}
	h.transition(ctx, requestID, stateComputed)

	writeJSON(w, http.StatusOK, result)
	h.transition(ctx, requestID, stateResponded)
	h.log.Info(ctx, "assessment completed",
		logger.String("request_id", requestID),
		logger.String("methodology", string(job.Params.Methodology)),
		logger.Int("rows", len(job.Dataset.Rows)))
}

// transition records a request state change at debug level.
func (h *AssessHandler) transition(ctx context.Context, requestID string, s requestState) {
	h.log.Debug(ctx, "assess state change",
		logger.String("request_id", requestID),
		logger.String("state", string(s)))
}

// reject maps a validation failure to its status code and renders the
// full field-level error list.
func (h *AssessHandler) reject(w http.ResponseWriter, requestID string, err error) {
	verr, ok := validate.AsError(err)
	if !ok {
		writeInternalError(w, requestID)
		return
	}
	writeFieldErrors(w, statusForKind(verr.Kind), requestID, verr.Fields)
}

// statusForKind maps a validation failure kind to its HTTP status.
func statusForKind(k validate.Kind) int {
	switch k {
	case validate.KindMalformed:
		return http.StatusBadRequest
	case validate.KindTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusUnprocessableEntity
	}
}

// cause strips the engine wrapper so clients see the sentinel message,
// not the internal classification.
func cause(err error) error {
	var e *engine.Error
	if errors.As(err, &e) && e.Err != nil {
		return e.Err
	}
	return err
}
