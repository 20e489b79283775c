// Package api declares the worker's HTTP contracts and route registration
// helpers. One handler type per operation; a fresh handler state per
// request, so nothing leaks between clients sharing a worker.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	service "github.com/tempalign/tempalign/internal/app"
	"github.com/tempalign/tempalign/internal/domain/model"
	"github.com/tempalign/tempalign/internal/validate"
)

// Dependencies required by HTTP handlers. An interface bundle keeps the
// handler layer loosely coupled to the service implementation.
type Dependencies interface {
	// AssessJob validates a raw assess request into a computation job.
	AssessJob(ctx context.Context, requestID string, r *http.Request) (*model.ComputationJob, error)

	// Evaluate hands a validated job to the engine adapter.
	Evaluate(ctx context.Context, job *model.ComputationJob) (*model.AssessmentResult, error)

	// ParsePortfolio decodes an uploaded spreadsheet into raw records.
	ParsePortfolio(ctx context.Context, r *http.Request) (*validate.ParsedPortfolio, error)

	// Schema returns the static parameter description.
	Schema(ctx context.Context) *service.Schema
}

// Server wires HTTP routes for the worker API.
type Server struct {
	assessHandler *AssessHandler
	parseHandler  *ParseHandler
	schemaHandler *SchemaHandler
	healthHandler *HealthHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		assessHandler: NewAssessHandler(deps),
		parseHandler:  NewParseHandler(deps),
		schemaHandler: NewSchemaHandler(deps),
		healthHandler: NewHealthHandler(),
	}
}

// Register attaches all HTTP routes to mux. Compute-bound endpoints share
// one serializer slot: a worker runs a single request to completion and
// queues the rest, concurrency comes from process replication.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	serial := NewSerializer()

	mux.HandleFunc("/healthz", s.healthHandler.HandleHealth)
	mux.HandleFunc("/api/v1/schema", MetricsMiddleware(RequestIDMiddleware(s.schemaHandler.HandleGetSchema), "schema"))
	mux.HandleFunc("/api/v1/assess", MetricsMiddleware(RequestIDMiddleware(serial.Wrap(s.assessHandler.HandleAssess)), "assess"))
	mux.HandleFunc("/api/v1/portfolio/parse", MetricsMiddleware(RequestIDMiddleware(serial.Wrap(s.parseHandler.HandleParse)), "parse"))
}

// errorListResponse renders validation and semantic failures: a field-level
// list, never a single opaque message.
type errorListResponse struct {
	Errors    []validate.FieldError `json:"errors"`
	RequestID string                `json:"request_id,omitempty"`
}

// internalErrorResponse carries a correlation identifier and nothing else;
// internals never leak to clients.
type internalErrorResponse struct {
	Code      string `json:"code"`
	RequestID string `json:"request_id"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeFieldErrors(w http.ResponseWriter, status int, requestID string, fields []validate.FieldError) {
	writeJSON(w, status, errorListResponse{Errors: fields, RequestID: requestID})
}

func writeInternalError(w http.ResponseWriter, requestID string) {
	writeJSON(w, http.StatusInternalServerError, internalErrorResponse{Code: "internal_error", RequestID: requestID})
}
