// Package service wires the request validator and the engine adapter into
// the dependency bundle the HTTP API consumes. One Service instance serves
// a whole worker process; it holds no per-request state.
package service

import (
	"context"
	"net/http"
	"time"

	"github.com/tempalign/tempalign/internal/config"
	"github.com/tempalign/tempalign/internal/domain/engine"
	"github.com/tempalign/tempalign/internal/domain/model"
	"github.com/tempalign/tempalign/internal/domain/params"
	"github.com/tempalign/tempalign/internal/domain/portfolio"
	"github.com/tempalign/tempalign/internal/refdata"
	"github.com/tempalign/tempalign/internal/validate"
	"github.com/tempalign/tempalign/pkg/logger"
	"github.com/tempalign/tempalign/pkg/metrics"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig sets the immutable process configuration.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithBenchmarks sets the sector benchmark table.
func WithBenchmarks(b *refdata.Benchmarks) Option {
	return func(s *Service) {
		s.benchmarks = b
	}
}

// WithEngine injects an engine implementation, replacing the default
// adapter. Used by tests to observe or fail evaluations.
func WithEngine(e engine.Engine) Option {
	return func(s *Service) {
		if e != nil {
			s.engine = e
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// Service implements the API dependencies for one worker process.
type Service struct {
	cfg        *config.Config
	benchmarks *refdata.Benchmarks
	validator  *validate.Validator
	engine     engine.Engine
	logger     logger.Logger
}

// New constructs a Service. Options that change the configuration must be
// applied here; nothing is reconfigurable after construction.
func New(opts ...Option) *Service {
	s := &Service{cfg: config.New()}
	for _, opt := range opts {
		opt(s)
	}

	s.validator = validate.New(validate.WithMaxRows(s.cfg.MaxRows))
	if s.engine == nil {
		s.engine = engine.New(
			engine.WithCoefficients(s.cfg.RegressionIntercept, s.cfg.RegressionSlope),
			engine.WithDefaultScore(s.cfg.DefaultScore),
			engine.WithBenchmarks(s.benchmarks),
		)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	return s
}

// AssessJob validates a raw assess request into a computation job.
func (s *Service) AssessJob(ctx context.Context, requestID string, r *http.Request) (*model.ComputationJob, error) {
	job, err := s.validator.AssessJob(ctx, requestID, r)
	if err != nil {
		if verr, ok := validate.AsError(err); ok {
			metrics.RecordValidationFailure(string(verr.Kind))
		}
		return nil, err
	}
	metrics.RecordDatasetRows(len(job.Dataset.Rows))
	return job, nil
}

// ParsePortfolio decodes an uploaded spreadsheet into raw records.
func (s *Service) ParsePortfolio(ctx context.Context, r *http.Request) (*validate.ParsedPortfolio, error) {
	out, err := s.validator.ParsePortfolio(ctx, r)
	if err != nil {
		if verr, ok := validate.AsError(err); ok {
			metrics.RecordValidationFailure(string(verr.Kind))
		}
		return nil, err
	}
	return out, nil
}

// Evaluate hands a validated job to the engine adapter. The call blocks to
// completion; there is no mid-computation cancellation.
func (s *Service) Evaluate(ctx context.Context, job *model.ComputationJob) (*model.AssessmentResult, error) {
	start := time.Now()
	result, err := s.engine.Evaluate(ctx, job)
	if err != nil {
		kind := string(engine.KindInternal)
		if engine.IsSemantic(err) {
			kind = string(engine.KindSemantic)
		}
		metrics.RecordEngineError(kind)
		return nil, err
	}

	metrics.RecordEngineEvaluation(float64(time.Since(start).Milliseconds()))
	coverage, _ := result.Coverage.Float64()
	metrics.RecordPortfolioCoverage(coverage)
	return result, nil
}

// Schema describes the accepted parameters and dataset columns. Served
// statically; never touches the engine.
type Schema struct {
	Methodologies     []params.Methodology      `json:"temperature_score_methodologies"`
	AggregationLevels []params.AggregationLevel `json:"aggregation_levels"`
	TimeFrames        []params.TimeFrame        `json:"time_frames"`
	Scopes            []portfolio.Scope         `json:"scopes"`
	TargetTypes       []portfolio.TargetType    `json:"target_types"`
	IDTypes           []portfolio.IDType        `json:"id_types"`
	RequiredColumns   []string                  `json:"required_columns"`
	TargetColumns     []string                  `json:"target_columns"`
	GroupingColumns   []string                  `json:"grouping_columns"`
	IncludeColumns    []string                  `json:"include_columns"`
	BenchmarkSectors  []string                  `json:"benchmark_sectors,omitempty"`
	MaxRows           int                       `json:"max_rows"`
	DefaultScore      float64                   `json:"default_score"`
}

// Schema returns the static parameter description for the schema endpoint.
func (s *Service) Schema(ctx context.Context) *Schema {
	sch := &Schema{
		Methodologies:     params.Methodologies(),
		AggregationLevels: params.AggregationLevels(),
		TimeFrames:        params.TimeFrames(),
		Scopes:            portfolio.Scopes(),
		TargetTypes:       portfolio.TargetTypes(),
		IDTypes:           portfolio.IDTypes(),
		RequiredColumns:   portfolio.RequiredColumns(),
		TargetColumns:     portfolio.TargetColumns(),
		GroupingColumns:   params.GroupingColumns(),
		IncludeColumns:    params.IncludeColumns(),
		MaxRows:           s.cfg.MaxRows,
		DefaultScore:      s.cfg.DefaultScore,
	}
	if s.benchmarks != nil {
		sch.BenchmarkSectors = s.benchmarks.Sectors()
	}
	return sch
}
