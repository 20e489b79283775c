// Package portfolio contains the tabular dataset model handed to the engine.
package portfolio

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// IDType enumerates the accepted instrument identifier schemes.
type IDType string

const (
	IDTypeISIN     IDType = "isin"
	IDTypeLEI      IDType = "lei"
	IDTypeTicker   IDType = "ticker"
	IDTypeInternal IDType = "internal"
)

// IDTypes lists every accepted identifier scheme, for schema output.
func IDTypes() []IDType {
	return []IDType{IDTypeISIN, IDTypeLEI, IDTypeTicker, IDTypeInternal}
}

// ParseIDType maps a raw cell value onto the IDType enumeration.
func ParseIDType(s string) (IDType, error) {
	switch IDType(strings.ToLower(strings.TrimSpace(s))) {
	case IDTypeISIN:
		return IDTypeISIN, nil
	case IDTypeLEI:
		return IDTypeLEI, nil
	case IDTypeTicker:
		return IDTypeTicker, nil
	case IDTypeInternal:
		return IDTypeInternal, nil
	default:
		return "", fmt.Errorf("unknown id_type %q", s)
	}
}

// Scope enumerates emission scope categories a target can cover.
type Scope string

const (
	ScopeS1S2   Scope = "s1s2"
	ScopeS3     Scope = "s3"
	ScopeS1S2S3 Scope = "s1s2s3"
)

// Scopes lists every scope category, for schema output.
func Scopes() []Scope {
	return []Scope{ScopeS1S2, ScopeS3, ScopeS1S2S3}
}

// ParseScope maps a raw value onto the Scope enumeration.
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case ScopeS1S2:
		return ScopeS1S2, nil
	case ScopeS3:
		return ScopeS3, nil
	case ScopeS1S2S3:
		return ScopeS1S2S3, nil
	default:
		return "", fmt.Errorf("unknown scope %q", s)
	}
}

// TargetType enumerates how a reduction target is expressed.
type TargetType string

const (
	TargetAbsolute  TargetType = "absolute"
	TargetIntensity TargetType = "intensity"
)

// TargetTypes lists every target type, for schema output.
func TargetTypes() []TargetType {
	return []TargetType{TargetAbsolute, TargetIntensity}
}

// ParseTargetType maps a raw value onto the TargetType enumeration.
func ParseTargetType(s string) (TargetType, error) {
	switch TargetType(strings.ToLower(strings.TrimSpace(s))) {
	case TargetAbsolute:
		return TargetAbsolute, nil
	case TargetIntensity:
		return TargetIntensity, nil
	default:
		return "", fmt.Errorf("unknown target_type %q", s)
	}
}

// Target is a company's pre-existing emission reduction commitment as
// uploaded with the dataset.
type Target struct {
	Type TargetType
	// ReductionAmbition is the committed reduction over the target period,
	// as a fraction in (0, 1].
	ReductionAmbition decimal.Decimal
	BaseYear          int
	EndYear           int
	Scope             Scope
}

// Horizon is the target period length in years.
func (t Target) Horizon() int {
	return t.EndYear - t.BaseYear
}

// Row is one company/instrument position in the uploaded portfolio.
type Row struct {
	CompanyID   string
	CompanyName string
	IDType      IDType
	// Exposure is the position value attributed to this row. Non-negative.
	Exposure decimal.Decimal
	Sector   string

	// Optional weight-basis figures; nil when the column was absent or the
	// cell empty. Each methodology other than WATS requires one of them.
	Emissions       *decimal.Decimal
	MarketCap       *decimal.Decimal
	EnterpriseValue *decimal.Decimal
	EVIC            *decimal.Decimal
	TotalAssets     *decimal.Decimal
	Revenue         *decimal.Decimal

	// Target is nil for rows uploaded without target data.
	Target *Target
}

// Dataset is the validated tabular payload. Immutable once built; the
// engine must never write through it.
type Dataset struct {
	Rows []Row
}

// TotalExposure sums exposure across all rows.
func (d *Dataset) TotalExposure() decimal.Decimal {
	total := decimal.Zero
	for i := range d.Rows {
		total = total.Add(d.Rows[i].Exposure)
	}
	return total
}

// RequiredColumns are the dataset columns every upload must carry.
func RequiredColumns() []string {
	return []string{"company_id", "company_name", "id_type", "exposure", "sector"}
}

// TargetColumns are the optional columns that together describe a target.
func TargetColumns() []string {
	return []string{"target_type", "reduction_ambition", "base_year", "end_year", "scope"}
}
