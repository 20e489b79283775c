package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/tempalign/tempalign/pkg/metrics"
)

type contextKey string

// requestIDKey carries the correlation identifier through the request
// context.
const requestIDKey contextKey = "request_id"

// requestIDHeader is echoed back on every response so clients can quote
// the identifier when reporting a failure.
const requestIDHeader = "X-Request-ID"

// MetricsMiddleware wraps HTTP handlers to record Prometheus metrics.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		durationMs := float64(time.Since(start).Milliseconds())
		statusCode := strconv.Itoa(wrapped.statusCode)
		metrics.RecordHTTPRequest(endpoint, r.Method, statusCode)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, statusCode, durationMs)
	}
}

// RequestIDMiddleware assigns each request a correlation identifier. A
// client-supplied X-Request-ID is honoured, otherwise a fresh UUID is
// minted; the chosen value is echoed on the response.
func RequestIDMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// RequestID extracts the correlation identifier from ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// Serializer admits one request at a time. A worker process runs a single
// computation to completion and queues the rest; parallelism comes from
// replicating worker processes, not from in-process concurrency.
type Serializer struct {
	slot chan struct{}
}

// NewSerializer creates a serializer with a single admission slot.
func NewSerializer() *Serializer {
	s := &Serializer{slot: make(chan struct{}, 1)}
	s.slot <- struct{}{}
	return s
}

// Wrap gates next behind the admission slot. Waiting requests observe
// client disconnects and give up instead of queueing forever.
func (s *Serializer) Wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-s.slot:
			defer func() { s.slot <- struct{}{} }()
			next.ServeHTTP(w, r)
		case <-r.Context().Done():
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
