package api

import (
	"net/http"

	"github.com/tempalign/tempalign/internal/validate"
	"github.com/tempalign/tempalign/pkg/logger"
)

// ParseHandler handles portfolio parse requests.
type ParseHandler struct {
	deps Dependencies
	log  logger.Logger
}

// NewParseHandler creates a new parse handler.
func NewParseHandler(deps Dependencies) *ParseHandler {
	return &ParseHandler{
		deps: deps,
		log:  logger.Get().Named("parse"),
	}
}

// HandleParse handles POST /api/v1/portfolio/parse requests. The upload is
// decoded and normalized but not validated against the dataset contract;
// clients use it to inspect a spreadsheet before assessing it.
func (h *ParseHandler) HandleParse(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	requestID := RequestID(ctx)

	out, err := h.deps.ParsePortfolio(ctx, r)
	if err != nil {
		verr, ok := validate.AsError(err)
		if !ok {
			h.log.Error(ctx, "portfolio parse failed",
				logger.String("request_id", requestID),
				logger.Error(err))
			writeInternalError(w, requestID)
			return
		}
		writeFieldErrors(w, statusForKind(verr.Kind), requestID, verr.Fields)
		return
	}

	writeJSON(w, http.StatusOK, out)
	h.log.Info(ctx, "portfolio parsed",
		logger.String("request_id", requestID),
		logger.Int("rows", len(out.Portfolio)))
}
