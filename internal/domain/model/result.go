package model

import (
	"github.com/shopspring/decimal"

	"github.com/tempalign/tempalign/internal/domain/params"
	"github.com/tempalign/tempalign/internal/domain/portfolio"
)

// RowScore is the temperature score for one company in one time frame and
// scope combination.
type RowScore struct {
	CompanyID      string           `json:"company_id"`
	CompanyName    string           `json:"company_name"`
	TimeFrame      params.TimeFrame `json:"time_frame"`
	Scope          portfolio.Scope  `json:"scope"`
	Score          decimal.Decimal  `json:"temperature_score"`
	DefaultApplied bool             `json:"default_applied"`
}

// AggregateScore is the portfolio-level score for one time frame and scope.
type AggregateScore struct {
	TimeFrame params.TimeFrame `json:"time_frame"`
	Scope     portfolio.Scope  `json:"scope"`
	Score     decimal.Decimal  `json:"temperature_score"`
}

// AssessmentResult is the complete engine output for one job. Immutable
// once produced; serialized directly into the HTTP response body.
type AssessmentResult struct {
	RequestID   string             `json:"request_id"`
	Methodology params.Methodology `json:"methodology"`

	Scores           []RowScore       `json:"scores"`
	AggregatedScores []AggregateScore `json:"aggregated_scores,omitempty"`

	// Coverage is the fraction of portfolio exposure for which a
	// target-based score could be computed.
	Coverage decimal.Decimal `json:"coverage"`

	Warnings []string `json:"warnings,omitempty"`

	// Companies is the include-columns projection of the score rows.
	Companies []map[string]any `json:"companies,omitempty"`

	// FeatureDistribution maps each requested grouping column to the
	// exposure share per distinct value, in percent.
	FeatureDistribution map[string]map[string]decimal.Decimal `json:"feature_distribution,omitempty"`
}
