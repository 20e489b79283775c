// Package params models the structured assessment parameters and their
// enumerations. Parsing helpers reject anything outside the declared sets so
// the validator can surface field-scoped errors instead of degrading silently.
package params

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tempalign/tempalign/internal/domain/portfolio"
)

// Methodology selects the portfolio aggregation algorithm.
type Methodology string

const (
	WATS  Methodology = "WATS"  // weighted average by exposure
	TETS  Methodology = "TETS"  // total emissions weighted
	MOTS  Methodology = "MOTS"  // market cap owned weighted
	EOTS  Methodology = "EOTS"  // enterprise value owned weighted
	ECOTS Methodology = "ECOTS" // enterprise value incl. cash owned weighted
	AOTS  Methodology = "AOTS"  // total assets owned weighted
	ROTS  Methodology = "ROTS"  // revenue owned weighted
)

// Methodologies lists every aggregation methodology, for schema output.
func Methodologies() []Methodology {
	return []Methodology{WATS, TETS, MOTS, EOTS, ECOTS, AOTS, ROTS}
}

// ParseMethodology maps a raw value onto the Methodology enumeration.
func ParseMethodology(s string) (Methodology, error) {
	switch Methodology(strings.ToUpper(strings.TrimSpace(s))) {
	case WATS:
		return WATS, nil
	case TETS:
		return TETS, nil
	case MOTS:
		return MOTS, nil
	case EOTS:
		return EOTS, nil
	case ECOTS:
		return ECOTS, nil
	case AOTS:
		return AOTS, nil
	case ROTS:
		return ROTS, nil
	default:
		return "", fmt.Errorf("unknown temperature_score_methodology %q", s)
	}
}

// WeightColumn names the dataset column the methodology weights by, or
// ok=false for WATS which weights by exposure alone.
func (m Methodology) WeightColumn() (string, bool) {
	switch m {
	case TETS:
		return "emissions", true
	case MOTS:
		return "market_cap", true
	case EOTS:
		return "enterprise_value", true
	case ECOTS:
		return "evic", true
	case AOTS:
		return "total_assets", true
	case ROTS:
		return "revenue", true
	default:
		return "", false
	}
}

// WeightOf extracts the methodology's weight figure from a row.
// The second return is false when the row lacks the figure.
func (m Methodology) WeightOf(row *portfolio.Row) (decimal.Decimal, bool) {
	var v *decimal.Decimal
	switch m {
	case WATS:
		return row.Exposure, true
	case TETS:
		v = row.Emissions
	case MOTS:
		v = row.MarketCap
	case EOTS:
		v = row.EnterpriseValue
	case ECOTS:
		v = row.EVIC
	case AOTS:
		v = row.TotalAssets
	case ROTS:
		v = row.Revenue
	}
	if v == nil {
		return decimal.Zero, false
	}
	return *v, true
}

// TimeFrame enumerates target horizons.
type TimeFrame string

const (
	TimeFrameShort TimeFrame = "short"
	TimeFrameMid   TimeFrame = "mid"
	TimeFrameLong  TimeFrame = "long"
)

// TimeFrames lists every time frame, for schema output.
func TimeFrames() []TimeFrame {
	return []TimeFrame{TimeFrameShort, TimeFrameMid, TimeFrameLong}
}

// ParseTimeFrame maps a raw value onto the TimeFrame enumeration.
func ParseTimeFrame(s string) (TimeFrame, error) {
	switch TimeFrame(strings.ToLower(strings.TrimSpace(s))) {
	case TimeFrameShort:
		return TimeFrameShort, nil
	case TimeFrameMid:
		return TimeFrameMid, nil
	case TimeFrameLong:
		return TimeFrameLong, nil
	default:
		return "", fmt.Errorf("unknown time_frame %q", s)
	}
}

// AggregationLevel selects the result granularity.
type AggregationLevel string

const (
	LevelCompany   AggregationLevel = "company"
	LevelPortfolio AggregationLevel = "portfolio"
)

// AggregationLevels lists every aggregation level, for schema output.
func AggregationLevels() []AggregationLevel {
	return []AggregationLevel{LevelCompany, LevelPortfolio}
}

// ParseAggregationLevel maps a raw value onto the AggregationLevel enumeration.
func ParseAggregationLevel(s string) (AggregationLevel, error) {
	switch AggregationLevel(strings.ToLower(strings.TrimSpace(s))) {
	case LevelCompany:
		return LevelCompany, nil
	case LevelPortfolio:
		return LevelPortfolio, nil
	default:
		return "", fmt.Errorf("unknown aggregation_level %q", s)
	}
}

// GroupingColumns that feature distribution may be requested over.
func GroupingColumns() []string {
	return []string{"sector", "id_type"}
}

// IncludeColumns that the companies projection may request.
func IncludeColumns() []string {
	return []string{
		"company_id", "company_name", "sector", "exposure",
		"time_frame", "scope", "temperature_score", "default_applied",
	}
}

// Parameters is the validated assessment configuration for one job.
// A zero DefaultScore means "take the configured engine default".
type Parameters struct {
	Methodology      Methodology
	AggregationLevel AggregationLevel
	TimeFrames       []TimeFrame
	Scopes           []portfolio.Scope
	TargetTypeFilter []portfolio.TargetType
	DefaultScore     decimal.Decimal
	GroupingColumns  []string
	IncludeColumns   []string
	Anonymize        bool
}

// Defaulted returns a copy with empty set-valued options expanded to their
// full enumerations, which is what an omitted filter means.
func (p Parameters) Defaulted() Parameters {
	out := p
	if len(out.TimeFrames) == 0 {
		out.TimeFrames = TimeFrames()
	}
	if len(out.Scopes) == 0 {
		out.Scopes = portfolio.Scopes()
	}
	if out.AggregationLevel == "" {
		out.AggregationLevel = LevelPortfolio
	}
	return out
}
