// Package validate turns untrusted multipart payloads into well-formed
// computation jobs. It is a pure parse/check layer: it never invokes the
// engine and has no side effects.
package validate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tempalign/tempalign/internal/domain/model"
	"github.com/tempalign/tempalign/internal/domain/params"
	"github.com/tempalign/tempalign/internal/domain/portfolio"
	"github.com/tempalign/tempalign/internal/tabular"
)

const (
	// multipartMemory bounds the in-memory share of a parsed upload; the
	// proxy's body limit bounds the total.
	multipartMemory = 32 << 20

	// Part names on the assess endpoint.
	partPortfolio  = "portfolio"
	partParameters = "parameters"

	minDefaultScore = "1.0"
	maxDefaultScore = "10.0"
)

// Option applies a configuration option to the Validator.
type Option func(*Validator)

// WithMaxRows sets the dataset row ceiling.
func WithMaxRows(n int) Option {
	return func(v *Validator) {
		if n > 0 {
			v.maxRows = n
		}
	}
}

// Validator checks assess requests against the dataset and parameter
// contracts. Stateless; one instance serves every request of a worker.
type Validator struct {
	maxRows int
}

// New creates a Validator with configuration options.
func New(opts ...Option) *Validator {
	v := &Validator{maxRows: 10_000}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// AssessJob parses and checks a multipart assess request, producing the
// ComputationJob for the engine or a field-scoped validation error.
func (v *Validator) AssessJob(ctx context.Context, requestID string, r *http.Request) (*model.ComputationJob, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, malformed("body", "request body is not valid multipart form data")
	}

	files := r.MultipartForm.File[partPortfolio]
	if len(files) == 0 {
		return nil, invalid(FieldError{Field: partPortfolio, Message: "missing portfolio file part"})
	}

	rawParams, err := parametersPart(r)
	if err != nil {
		return nil, err
	}
	p, fieldErrs := decodeParameters(rawParams)

	var rows []portfolio.Row
	for _, fh := range files {
		fileRows, errs := v.datasetFile(fh, len(rows))
		fieldErrs = append(fieldErrs, errs...)
		rows = append(rows, fileRows...)
	}

	if len(fieldErrs) == 0 && len(rows) == 0 {
		return nil, invalid(FieldError{Field: "dataset", Message: "no rows"})
	}
	if len(rows) > v.maxRows {
		return nil, tooLarge("dataset", fmt.Sprintf("dataset has %d rows; limit is %d", len(rows), v.maxRows))
	}

	if len(fieldErrs) == 0 {
		fieldErrs = append(fieldErrs, crossChecks(p, rows)...)
	}
	if len(fieldErrs) > 0 {
		return nil, invalid(fieldErrs...)
	}

	return &model.ComputationJob{
		RequestID: requestID,
		Dataset:   portfolio.Dataset{Rows: rows},
		Params:    *p,
	}, nil
}

// ParsedPortfolio is the parse endpoint's output: raw records for the UI.
type ParsedPortfolio struct {
	Portfolio []map[string]string `json:"portfolio"`
}

// ParsePortfolio decodes an uploaded spreadsheet into JSON records without
// any dataset semantics; used by the browser client to preview uploads.
func (v *Validator) ParsePortfolio(ctx context.Context, r *http.Request) (*ParsedPortfolio, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, malformed("body", "request body is not valid multipart form data")
	}

	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		return nil, invalid(FieldError{Field: "file", Message: "missing file part"})
	}

	skipRows := 0
	if raw := r.FormValue("skip_rows"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, invalid(FieldError{Field: "skip_rows", Message: "must be a non-negative integer"})
		}
		skipRows = n
	}

	f, err := files[0].Open()
	if err != nil {
		return nil, malformed("file", "could not read uploaded file")
	}
	defer func() { _ = f.Close() }()

	table, err := tabular.Decode(files[0].Filename, f, tabular.WithSkipRows(skipRows))
	if err != nil {
		return nil, invalid(FieldError{Field: "file", Message: decodeMessage(files[0].Filename, err)})
	}
	if len(table.Records) > v.maxRows {
		return nil, tooLarge("file", fmt.Sprintf("file has %d rows; limit is %d", len(table.Records), v.maxRows))
	}

	return &ParsedPortfolio{Portfolio: table.Records}, nil
}

// parametersPart reads the parameters JSON from a form value or file part.
func parametersPart(r *http.Request) ([]byte, error) {
	if raw := r.FormValue(partParameters); raw != "" {
		return []byte(raw), nil
	}
	if files := r.MultipartForm.File[partParameters]; len(files) > 0 {
		f, err := files[0].Open()
		if err != nil {
			return nil, malformed(partParameters, "could not read parameters part")
		}
		defer func() { _ = f.Close() }()
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(f); err != nil {
			return nil, malformed(partParameters, "could not read parameters part")
		}
		return buf.Bytes(), nil
	}
	return nil, invalid(FieldError{Field: partParameters, Message: "missing parameters part"})
}

// rawParameters mirrors the accepted JSON keys. Anything else is rejected,
// not ignored.
type rawParameters struct {
	Methodology      *string          `json:"temperature_score_methodology"`
	AggregationLevel *string          `json:"aggregation_level"`
	TimeFrames       []string         `json:"time_frames"`
	Scopes           []string         `json:"scopes"`
	TargetTypeFilter []string         `json:"target_type_filter"`
	DefaultScore     *decimal.Decimal `json:"default_score"`
	GroupingColumns  []string         `json:"grouping_columns"`
	IncludeColumns   []string         `json:"include_columns"`
	Anonymize        *bool            `json:"anonymize_data_dump"`
}

func decodeParameters(raw []byte) (*params.Parameters, []FieldError) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var rp rawParameters
	if err := dec.Decode(&rp); err != nil {
		if key, ok := unknownFieldName(err); ok {
			return nil, []FieldError{{Field: partParameters + "." + key, Message: "unrecognized parameter"}}
		}
		return nil, []FieldError{{Field: partParameters, Message: "parameters part is not valid JSON"}}
	}

	var errs []FieldError
	p := &params.Parameters{Methodology: params.WATS}

	if rp.Methodology != nil {
		m, err := params.ParseMethodology(*rp.Methodology)
		if err != nil {
			errs = append(errs, FieldError{Field: partParameters + ".temperature_score_methodology", Message: err.Error()})
		} else {
			p.Methodology = m
		}
	}
	if rp.AggregationLevel != nil {
		lvl, err := params.ParseAggregationLevel(*rp.AggregationLevel)
		if err != nil {
			errs = append(errs, FieldError{Field: partParameters + ".aggregation_level", Message: err.Error()})
		} else {
			p.AggregationLevel = lvl
		}
	}
	for _, tf := range rp.TimeFrames {
		parsed, err := params.ParseTimeFrame(tf)
		if err != nil {
			errs = append(errs, FieldError{Field: partParameters + ".time_frames", Message: err.Error()})
			continue
		}
		p.TimeFrames = append(p.TimeFrames, parsed)
	}
	for _, s := range rp.Scopes {
		parsed, err := portfolio.ParseScope(s)
		if err != nil {
			errs = append(errs, FieldError{Field: partParameters + ".scopes", Message: err.Error()})
			continue
		}
		p.Scopes = append(p.Scopes, parsed)
	}
	for _, tt := range rp.TargetTypeFilter {
		parsed, err := portfolio.ParseTargetType(tt)
		if err != nil {
			errs = append(errs, FieldError{Field: partParameters + ".target_type_filter", Message: err.Error()})
			continue
		}
		p.TargetTypeFilter = append(p.TargetTypeFilter, parsed)
	}
	if rp.DefaultScore != nil {
		ds := *rp.DefaultScore
		if ds.LessThan(decimal.RequireFromString(minDefaultScore)) || ds.GreaterThan(decimal.RequireFromString(maxDefaultScore)) {
			errs = append(errs, FieldError{Field: partParameters + ".default_score", Message: "must be between 1.0 and 10.0"})
		} else {
			p.DefaultScore = ds
		}
	}
	for _, col := range rp.GroupingColumns {
		if !contains(params.GroupingColumns(), col) {
			errs = append(errs, FieldError{Field: partParameters + ".grouping_columns", Message: fmt.Sprintf("unknown grouping column %q", col)})
			continue
		}
		p.GroupingColumns = append(p.GroupingColumns, col)
	}
	for _, col := range rp.IncludeColumns {
		if !contains(params.IncludeColumns(), col) {
			errs = append(errs, FieldError{Field: partParameters + ".include_columns", Message: fmt.Sprintf("unknown include column %q", col)})
			continue
		}
		p.IncludeColumns = append(p.IncludeColumns, col)
	}
	if rp.Anonymize != nil {
		p.Anonymize = *rp.Anonymize
	}

	return p, errs
}

// datasetFile decodes one uploaded file and converts its records to rows.
// rowOffset keeps row numbering continuous across multiple files.
func (v *Validator) datasetFile(fh *multipart.FileHeader, rowOffset int) ([]portfolio.Row, []FieldError) {
	f, err := fh.Open()
	if err != nil {
		return nil, []FieldError{{Field: partPortfolio, Message: fmt.Sprintf("could not read %s", fh.Filename)}}
	}
	defer func() { _ = f.Close() }()

	table, err := tabular.Decode(fh.Filename, f)
	if err != nil {
		return nil, []FieldError{{Field: partPortfolio, Message: decodeMessage(fh.Filename, err)}}
	}

	var errs []FieldError
	for _, col := range portfolio.RequiredColumns() {
		if !table.Has(col) {
			errs = append(errs, FieldError{
				Field:   partPortfolio,
				Message: fmt.Sprintf("%s: missing required column %q", fh.Filename, col),
			})
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}

	rows := make([]portfolio.Row, 0, len(table.Records))
	for i, rec := range table.Records {
		row, rowErrs := parseRow(rec, rowOffset+i)
		if len(rowErrs) > 0 {
			errs = append(errs, rowErrs...)
			continue
		}
		rows = append(rows, row)
	}
	return rows, errs
}

// parseRow enforces the row invariants: non-empty identifier, enumerated
// id_type, non-negative exposure, and an all-or-nothing target block.
func parseRow(rec map[string]string, index int) (portfolio.Row, []FieldError) {
	field := func(col string) string { return fmt.Sprintf("rows[%d].%s", index, col) }
	var errs []FieldError

	row := portfolio.Row{
		CompanyID:   rec["company_id"],
		CompanyName: rec["company_name"],
		Sector:      strings.ToLower(rec["sector"]),
	}
	if row.CompanyID == "" {
		errs = append(errs, FieldError{Field: field("company_id"), Message: "must not be empty"})
	}

	idType, err := portfolio.ParseIDType(rec["id_type"])
	if err != nil {
		errs = append(errs, FieldError{Field: field("id_type"), Message: err.Error()})
	} else {
		row.IDType = idType
	}

	exposure, err := decimal.NewFromString(rec["exposure"])
	if err != nil {
		errs = append(errs, FieldError{Field: field("exposure"), Message: "must be a number"})
	} else if exposure.IsNegative() {
		errs = append(errs, FieldError{Field: field("exposure"), Message: "must not be negative"})
	} else {
		row.Exposure = exposure
	}

	for col, dst := range map[string]**decimal.Decimal{
		"emissions":        &row.Emissions,
		"market_cap":       &row.MarketCap,
		"enterprise_value": &row.EnterpriseValue,
		"evic":             &row.EVIC,
		"total_assets":     &row.TotalAssets,
		"revenue":          &row.Revenue,
	} {
		raw, ok := rec[col]
		if !ok || raw == "" {
			continue
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			errs = append(errs, FieldError{Field: field(col), Message: "must be a number"})
			continue
		}
		if d.IsNegative() {
			errs = append(errs, FieldError{Field: field(col), Message: "must not be negative"})
			continue
		}
		*dst = &d
	}

	target, targetErrs := parseTarget(rec, field)
	errs = append(errs, targetErrs...)
	row.Target = target

	return row, errs
}

func parseTarget(rec map[string]string, field func(string) string) (*portfolio.Target, []FieldError) {
	present := false
	for _, col := range portfolio.TargetColumns() {
		if rec[col] != "" {
			present = true
			break
		}
	}
	if !present {
		return nil, nil
	}

	var errs []FieldError
	t := &portfolio.Target{}

	tt, err := portfolio.ParseTargetType(rec["target_type"])
	if err != nil {
		errs = append(errs, FieldError{Field: field("target_type"), Message: err.Error()})
	} else {
		t.Type = tt
	}

	ambition, err := decimal.NewFromString(rec["reduction_ambition"])
	if err != nil {
		errs = append(errs, FieldError{Field: field("reduction_ambition"), Message: "must be a number"})
	} else if !ambition.IsPositive() || ambition.GreaterThan(decimal.NewFromInt(1)) {
		errs = append(errs, FieldError{Field: field("reduction_ambition"), Message: "must be in (0, 1]"})
	} else {
		t.ReductionAmbition = ambition
	}

	baseYear, err := strconv.Atoi(rec["base_year"])
	if err != nil {
		errs = append(errs, FieldError{Field: field("base_year"), Message: "must be an integer year"})
	} else {
		t.BaseYear = baseYear
	}
	endYear, err := strconv.Atoi(rec["end_year"])
	if err != nil {
		errs = append(errs, FieldError{Field: field("end_year"), Message: "must be an integer year"})
	} else {
		t.EndYear = endYear
	}
	if t.BaseYear > 0 && t.EndYear > 0 && t.EndYear <= t.BaseYear {
		errs = append(errs, FieldError{Field: field("end_year"), Message: "must be after base_year"})
	}

	scope, err := portfolio.ParseScope(rec["scope"])
	if err != nil {
		errs = append(errs, FieldError{Field: field("scope"), Message: err.Error()})
	} else {
		t.Scope = scope
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return t, nil
}

// crossChecks enforces constraints between parameters and dataset, e.g. a
// methodology that weights by a column the upload does not carry.
func crossChecks(p *params.Parameters, rows []portfolio.Row) []FieldError {
	var errs []FieldError
	if col, needed := p.Methodology.WeightColumn(); needed {
		for i := range rows {
			if _, ok := p.Methodology.WeightOf(&rows[i]); !ok {
				errs = append(errs, FieldError{
					Field:   partParameters + ".temperature_score_methodology",
					Message: fmt.Sprintf("methodology %s requires column %q on every row; rows[%d] lacks it", p.Methodology, col, i),
				})
				break
			}
		}
	}
	return errs
}

// unknownFieldName extracts the offending key from encoding/json's
// unknown-field error so the client sees which parameter was rejected.
// encoding/json exposes no typed error for DisallowUnknownFields, so this
// matches its `unknown field "key"` message; if the format ever changes
// the caller falls back to the generic not-valid-JSON message.
func unknownFieldName(err error) (string, bool) {
	const marker = `unknown field "`
	msg := err.Error()
	i := strings.Index(msg, marker)
	if i < 0 {
		return "", false
	}
	rest := msg[i+len(marker):]
	j := strings.IndexByte(rest, '"')
	if j < 0 {
		return "", false
	}
	return rest[:j], true
}

func decodeMessage(filename string, err error) string {
	return fmt.Sprintf("%s: %v", filename, err)
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
