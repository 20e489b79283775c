// Package engine wraps the temperature-alignment scoring library behind a
// narrow adapter. The handler layer sees Evaluate and typed failures only;
// everything about how scores come to be stays behind this boundary.
package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/tempalign/tempalign/internal/domain/model"
	"github.com/tempalign/tempalign/internal/domain/params"
	"github.com/tempalign/tempalign/internal/domain/portfolio"
	"github.com/tempalign/tempalign/internal/refdata"
)

// Scoring bounds and defaults.
const (
	defaultFallbackScore = "3.2"
	minScoreStr          = "1.5"
	maxScoreStr          = "4.5"
	scoreScale           = 4 // decimal places kept on emitted scores
	intensityPenaltyStr  = "0.1"

	shortHorizonYears = 5
	midHorizonYears   = 15
)

// Engine evaluates a validated computation job. Implementations must be
// deterministic: identical input yields an identical result, so a retry of
// a failed evaluation has no value and none is attempted.
type Engine interface {
	Evaluate(ctx context.Context, job *model.ComputationJob) (*model.AssessmentResult, error)
}

// AlignmentEngine is the adapter over the scoring library. It performs no
// retries, never mutates the job, and returns either a complete result or
// nothing.
type AlignmentEngine struct {
	intercept    decimal.Decimal
	slope        decimal.Decimal
	defaultScore decimal.Decimal
	benchmarks   *refdata.Benchmarks
}

// New creates an engine adapter with configuration options.
func New(opts ...Option) *AlignmentEngine {
	e := &AlignmentEngine{
		intercept:    decimal.RequireFromString("3.4"),
		slope:        decimal.RequireFromString("-0.15"),
		defaultScore: decimal.RequireFromString(defaultFallbackScore),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate runs the scoring library on the job. Any panic escaping the
// library is converted into an internal engine failure rather than taking
// the worker down with a half-written response.
func (e *AlignmentEngine) Evaluate(ctx context.Context, job *model.ComputationJob) (result *model.AssessmentResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = internalErr(fmt.Errorf("scoring library panic: %v", r))
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil, internalErr(err)
	}
	return e.evaluate(job)
}

func (e *AlignmentEngine) evaluate(job *model.ComputationJob) (*model.AssessmentResult, error) {
	p := job.Params.Defaulted()

	fallback := e.defaultScore
	if p.DefaultScore.IsPositive() {
		fallback = p.DefaultScore
	}

	total := job.Dataset.TotalExposure()
	if total.IsZero() {
		return nil, semanticErr(ErrZeroExposure)
	}

	warned := map[string]bool{}
	var warnings []string

	covered := decimal.Zero
	coveredCompanies := map[string]bool{}
	var scores []model.RowScore

	for i := range job.Dataset.Rows {
		row := &job.Dataset.Rows[i]

		adjustment := decimal.Zero
		if e.benchmarks != nil {
			if b, ok := e.benchmarks.Lookup(row.Sector); ok {
				adjustment = b.PathwayAdjustment
			} else if !warned["sector:"+row.Sector] {
				warned["sector:"+row.Sector] = true
				warnings = append(warnings, fmt.Sprintf("sector %q has no benchmark; scores carry no pathway adjustment", row.Sector))
			}
		}

		target := usableTarget(row, &p)
		for _, frame := range p.TimeFrames {
			for _, scope := range p.Scopes {
				rs := model.RowScore{
					CompanyID:   row.CompanyID,
					CompanyName: row.CompanyName,
					TimeFrame:   frame,
					Scope:       scope,
				}
				if target != nil && targetCovers(target, frame, scope) {
					rs.Score = e.scoreTarget(target, adjustment)
					if !coveredCompanies[row.CompanyID] {
						coveredCompanies[row.CompanyID] = true
						covered = covered.Add(row.Exposure)
					}
				} else {
					rs.Score = fallback
					rs.DefaultApplied = true
				}
				scores = append(scores, rs)
			}
		}
	}

	// Zero-coverage is decided on the raw covered sum; rounding applies
	// to the reported figure only, so a tiny but real coverage computes.
	if covered.IsZero() {
		return nil, semanticErr(ErrZeroCoverage)
	}
	coverage := covered.Div(total).Round(scoreScale)

	result := &model.AssessmentResult{
		RequestID:   job.RequestID,
		Methodology: p.Methodology,
		Scores:      scores,
		Coverage:    coverage,
		Warnings:    warnings,
	}

	if p.AggregationLevel == params.LevelPortfolio {
		aggs, aggWarnings := aggregate(&job.Dataset, scores, &p)
		result.AggregatedScores = aggs
		result.Warnings = append(result.Warnings, aggWarnings...)
	}

	if len(p.GroupingColumns) > 0 {
		result.FeatureDistribution = featureDistribution(&job.Dataset, p.GroupingColumns, total)
	}

	if len(p.IncludeColumns) > 0 {
		result.Companies = project(&job.Dataset, scores, p.IncludeColumns)
	}

	if p.Anonymize {
		anonymize(result, &job.Dataset)
	}

	return result, nil
}

// usableTarget returns the row's target when it passes the target-type
// filter, nil otherwise.
func usableTarget(row *portfolio.Row, p *params.Parameters) *portfolio.Target {
	t := row.Target
	if t == nil {
		return nil
	}
	if len(p.TargetTypeFilter) > 0 {
		keep := false
		for _, tt := range p.TargetTypeFilter {
			if t.Type == tt {
				keep = true
				break
			}
		}
		if !keep {
			return nil
		}
	}
	return t
}

// targetCovers reports whether the target speaks for a frame and scope.
// Scope matching is exact; a combined s1s2s3 target does not stand in for
// its components.
func targetCovers(t *portfolio.Target, frame params.TimeFrame, scope portfolio.Scope) bool {
	return t.Scope == scope && classifyHorizon(t.Horizon()) == frame
}

func classifyHorizon(years int) params.TimeFrame {
	switch {
	case years <= shortHorizonYears:
		return params.TimeFrameShort
	case years <= midHorizonYears:
		return params.TimeFrameMid
	default:
		return params.TimeFrameLong
	}
}

// scoreTarget maps a reduction target onto a temperature score via the
// linear regression, shifted by the sector pathway adjustment and clamped
// to the plausible score band.
func (e *AlignmentEngine) scoreTarget(t *portfolio.Target, adjustment decimal.Decimal) decimal.Decimal {
	annualPct := t.ReductionAmbition.
		Div(decimal.NewFromInt(int64(t.Horizon()))).
		Mul(decimal.NewFromInt(100))

	score := e.intercept.Add(e.slope.Mul(annualPct))
	if t.Type == portfolio.TargetIntensity {
		score = score.Add(decimal.RequireFromString(intensityPenaltyStr))
	}
	score = score.Add(adjustment)

	minScore := decimal.RequireFromString(minScoreStr)
	maxScore := decimal.RequireFromString(maxScoreStr)
	if score.LessThan(minScore) {
		score = minScore
	}
	if score.GreaterThan(maxScore) {
		score = maxScore
	}
	return score.Round(scoreScale)
}

// aggregate folds row scores into one portfolio score per frame and scope,
// weighted per the methodology.
func aggregate(ds *portfolio.Dataset, scores []model.RowScore, p *params.Parameters) ([]model.AggregateScore, []string) {
	rowByID := rowIndex(ds)

	type bucket struct {
		weighted decimal.Decimal
		weights  decimal.Decimal
	}
	buckets := map[string]*bucket{}
	key := func(f params.TimeFrame, s portfolio.Scope) string { return string(f) + "/" + string(s) }

	for _, rs := range scores {
		row := rowByID[rs.CompanyID]
		if row == nil {
			continue
		}
		w, ok := p.Methodology.WeightOf(row)
		if !ok {
			// Validator enforces weight-column presence; an absent figure
			// here means a blank cell, which contributes no weight.
			continue
		}
		k := key(rs.TimeFrame, rs.Scope)
		b := buckets[k]
		if b == nil {
			b = &bucket{weighted: decimal.Zero, weights: decimal.Zero}
			buckets[k] = b
		}
		b.weighted = b.weighted.Add(rs.Score.Mul(w))
		b.weights = b.weights.Add(w)
	}

	var aggs []model.AggregateScore
	var warnings []string
	for _, frame := range p.TimeFrames {
		for _, scope := range p.Scopes {
			b := buckets[key(frame, scope)]
			if b == nil {
				continue
			}
			if b.weights.IsZero() {
				warnings = append(warnings, fmt.Sprintf("aggregation weights sum to zero for %s/%s; aggregate omitted", frame, scope))
				continue
			}
			aggs = append(aggs, model.AggregateScore{
				TimeFrame: frame,
				Scope:     scope,
				Score:     b.weighted.Div(b.weights).Round(scoreScale),
			})
		}
	}
	return aggs, warnings
}

// featureDistribution computes, per grouping column, the exposure share of
// each distinct value in percent.
func featureDistribution(ds *portfolio.Dataset, columns []string, total decimal.Decimal) map[string]map[string]decimal.Decimal {
	hundred := decimal.NewFromInt(100)
	out := make(map[string]map[string]decimal.Decimal, len(columns))
	for _, col := range columns {
		byValue := map[string]decimal.Decimal{}
		for i := range ds.Rows {
			row := &ds.Rows[i]
			var value string
			switch col {
			case "sector":
				value = row.Sector
			case "id_type":
				value = string(row.IDType)
			default:
				continue
			}
			current, ok := byValue[value]
			if !ok {
				current = decimal.Zero
			}
			byValue[value] = current.Add(row.Exposure)
		}
		dist := make(map[string]decimal.Decimal, len(byValue))
		for value, exposure := range byValue {
			dist[value] = exposure.Div(total).Mul(hundred).Round(2)
		}
		out[col] = dist
	}
	return out
}

// project builds the include-columns view of the score rows.
func project(ds *portfolio.Dataset, scores []model.RowScore, columns []string) []map[string]any {
	rowByID := rowIndex(ds)
	out := make([]map[string]any, 0, len(scores))
	for _, rs := range scores {
		row := rowByID[rs.CompanyID]
		rec := make(map[string]any, len(columns))
		for _, col := range columns {
			switch col {
			case "company_id":
				rec[col] = rs.CompanyID
			case "company_name":
				rec[col] = rs.CompanyName
			case "sector":
				if row != nil {
					rec[col] = row.Sector
				}
			case "exposure":
				if row != nil {
					rec[col] = row.Exposure
				}
			case "time_frame":
				rec[col] = rs.TimeFrame
			case "scope":
				rec[col] = rs.Scope
			case "temperature_score":
				rec[col] = rs.Score
			case "default_applied":
				rec[col] = rs.DefaultApplied
			}
		}
		out = append(out, rec)
	}
	return out
}

// anonymize replaces company identifiers with stable placeholders assigned
// in dataset order. The dataset itself stays untouched.
func anonymize(result *model.AssessmentResult, ds *portfolio.Dataset) {
	alias := map[string]string{}
	var ids []string
	for i := range ds.Rows {
		id := ds.Rows[i].CompanyID
		if _, ok := alias[id]; !ok {
			ids = append(ids, id)
			alias[id] = ""
		}
	}
	sort.Strings(ids)
	for n, id := range ids {
		alias[id] = fmt.Sprintf("company-%03d", n+1)
	}

	// The companies projection is index-aligned with the score rows, so
	// the alias is resolved through the score row's still-real id. This
	// must happen before the scores are rewritten.
	for i, rec := range result.Companies {
		a := alias[result.Scores[i].CompanyID]
		if _, ok := rec["company_id"]; ok {
			rec["company_id"] = a
		}
		if _, ok := rec["company_name"]; ok {
			rec["company_name"] = a
		}
	}
	for i := range result.Scores {
		a := alias[result.Scores[i].CompanyID]
		result.Scores[i].CompanyID = a
		result.Scores[i].CompanyName = a
	}
}

func rowIndex(ds *portfolio.Dataset) map[string]*portfolio.Row {
	idx := make(map[string]*portfolio.Row, len(ds.Rows))
	for i := range ds.Rows {
		if _, ok := idx[ds.Rows[i].CompanyID]; !ok {
			idx[ds.Rows[i].CompanyID] = &ds.Rows[i]
		}
	}
	return idx
}
