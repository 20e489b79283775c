// Package model contains domain values passed between layers.
package model

import (
	"github.com/tempalign/tempalign/internal/domain/params"
	"github.com/tempalign/tempalign/internal/domain/portfolio"
)

// ComputationJob is one validated assessment request. It is created per
// HTTP request, owned by the handling worker for that request's lifetime,
// and never persisted or shared.
type ComputationJob struct {
	// RequestID correlates log lines and error responses with a request.
	RequestID string
	Dataset   portfolio.Dataset
	Params    params.Parameters
}
