// Package loadgen drives synthetic portfolio traffic against a running
// gateway. It generates randomized datasets, submits them concurrently
// and verifies that the gateway answers consistently, including that the
// same upload always produces the same scores.
package loadgen

import "time"

// Config holds configuration for one load run.
type Config struct {
	BaseURL  string        // Base URL of the gateway
	Requests int           // Number of assess requests to submit
	Rows     int           // Dataset rows per generated portfolio
	Workers  int           // Number of concurrent submitters
	Timeout  time.Duration // HTTP request timeout
	Verbose  bool          // Log every submission
}

// Stats holds the outcome of one load run.
type Stats struct {
	Generated int
	Submitted int
	Succeeded int
	Rejected  int
	Failed    int

	FullCoverage int

	RepeatChecked  int
	RepeatMismatch int

	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

// assessResponse is the slice of the gateway's answer the verifier needs.
type assessResponse struct {
	RequestID string `json:"request_id"`
	Coverage  string `json:"coverage"`
	Scores    []struct {
		CompanyID      string `json:"company_id"`
		Score          string `json:"temperature_score"`
		DefaultApplied bool   `json:"default_applied"`
	} `json:"scores"`
	Errors []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"errors"`
}
