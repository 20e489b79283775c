package loadgen

import (
	"bytes"
	"crypto/rand"
	"encoding/csv"
	"fmt"
	"math/big"
	"strconv"

	"github.com/google/uuid"
)

// Random generation constants.
const (
	randomFloatDivisor = 1000000
	rowShapeDivisor    = 5
)

// Row shape cases control how much target data a generated company gets.
const (
	caseAmbitiousTarget = 0
	caseModerateTarget  = 1
	caseWeakTarget      = 2
	caseLongHorizon     = 3
	caseNoTarget        = 4
)

var sectors = []string{
	"energy", "utilities", "materials", "industrials", "transport",
	"real_estate", "agriculture", "technology",
}

var methodologies = []string{"WATS", "TETS", "MOTS", "EOTS", "ECOTS", "AOTS", "ROTS"}

// datasetHeader matches the gateway's column contract, weight columns
// included so every methodology validates against a generated portfolio.
var datasetHeader = []string{
	"company_id", "company_name", "id_type", "exposure", "sector",
	"emissions", "market_cap", "enterprise_value", "evic", "total_assets", "revenue",
	"target_type", "reduction_ambition", "base_year", "end_year", "scope",
}

// randomFloat returns a random float64 between 0.0 and 1.0 using
// crypto/rand.
func randomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

func randomInt(n int64) int64 {
	v, _ := rand.Int(rand.Reader, big.NewInt(n))
	return v.Int64()
}

// generatePortfolio builds one randomized CSV dataset with the given
// number of rows. Roughly four in five rows carry a target; the rest
// exercise the gateway's fallback scoring.
func generatePortfolio(rows int) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(datasetHeader)

	for i := 0; i < rows; i++ {
		_ = w.Write(generateRow(i))
	}
	w.Flush()
	return buf.Bytes()
}

// generateRow builds one company row with a varied target shape.
func generateRow(index int) []string {
	id := uuid.New().String()
	exposure := 100 + randomFloat()*9900
	sector := sectors[randomInt(int64(len(sectors)))]

	row := []string{
		id,
		fmt.Sprintf("Company %d", index),
		"isin",
		formatFloat(exposure),
		sector,
		formatFloat(1000 + randomFloat()*99000),  // emissions
		formatFloat(10000 + randomFloat()*990000), // market_cap
		formatFloat(12000 + randomFloat()*990000), // enterprise_value
		formatFloat(12000 + randomFloat()*990000), // evic
		formatFloat(20000 + randomFloat()*990000), // total_assets
		formatFloat(5000 + randomFloat()*495000),  // revenue
	}

	switch randomInt(rowShapeDivisor) {
	case caseAmbitiousTarget:
		row = append(row, "absolute", formatFloat(0.5+randomFloat()*0.4), "2020", "2030", "s1s2")
	case caseModerateTarget:
		row = append(row, "absolute", formatFloat(0.2+randomFloat()*0.3), "2020", "2030", "s1s2")
	case caseWeakTarget:
		row = append(row, "intensity", formatFloat(0.05+randomFloat()*0.15), "2021", "2031", "s1s2")
	case caseLongHorizon:
		row = append(row, "absolute", formatFloat(0.4+randomFloat()*0.4), "2020", "2045", "s1s2s3")
	default:
		// No target: the gateway must fall back to the default score.
		row = append(row, "", "", "", "", "")
	}
	return row
}

// generateParameters builds a parameter document with a rotating
// methodology and a fixed frame and scope so repeated runs stay
// comparable.
func generateParameters(index int) string {
	methodology := methodologies[index%len(methodologies)]
	return fmt.Sprintf(`{"temperature_score_methodology":%q,"time_frames":["mid"],"scopes":["s1s2"]}`, methodology)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
