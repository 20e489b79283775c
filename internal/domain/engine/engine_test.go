package engine_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/tempalign/tempalign/internal/domain/engine"
	"github.com/tempalign/tempalign/internal/domain/model"
	"github.com/tempalign/tempalign/internal/domain/params"
	"github.com/tempalign/tempalign/internal/domain/portfolio"
	"github.com/tempalign/tempalign/internal/refdata"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func targetedRow(id string, exposure string) portfolio.Row {
	return portfolio.Row{
		CompanyID:   id,
		CompanyName: "Company " + id,
		IDType:      portfolio.IDTypeISIN,
		Exposure:    dec(exposure),
		Sector:      "energy",
		Target: &portfolio.Target{
			Type:              portfolio.TargetAbsolute,
			ReductionAmbition: dec("0.5"),
			BaseYear:          2020,
			EndYear:           2030,
			Scope:             portfolio.ScopeS1S2,
		},
	}
}

func job(rows ...portfolio.Row) *model.ComputationJob {
	return &model.ComputationJob{
		RequestID: "req-1",
		Dataset:   portfolio.Dataset{Rows: rows},
		Params: params.Parameters{
			Methodology:      params.WATS,
			AggregationLevel: params.LevelPortfolio,
			TimeFrames:       []params.TimeFrame{params.TimeFrameMid},
			Scopes:           []portfolio.Scope{portfolio.ScopeS1S2},
		},
	}
}

func TestEvaluate(t *testing.T) {
	Convey("Given an alignment engine", t, func() {
		ctx := context.Background()
		eng := engine.New(WithTestCoefficients()...)

		Convey("When evaluating three fully targeted rows with WATS", func() {
			j := job(targetedRow("c1", "100"), targetedRow("c2", "200"), targetedRow("c3", "300"))
			result, err := eng.Evaluate(ctx, j)

			Convey("Then coverage is 1.0 and every row is scored", func() {
				So(err, ShouldBeNil)
				So(result.Coverage.Equal(dec("1")), ShouldBeTrue)
				So(len(result.Scores), ShouldEqual, 3)
				for _, rs := range result.Scores {
					So(rs.DefaultApplied, ShouldBeFalse)
					// 3.4 - 0.15 * (0.5/10*100) = 2.65
					So(rs.Score.Equal(dec("2.65")), ShouldBeTrue)
				}
			})

			Convey("And the portfolio aggregate matches the uniform row scores", func() {
				So(err, ShouldBeNil)
				So(len(result.AggregatedScores), ShouldEqual, 1)
				So(result.AggregatedScores[0].Score.Equal(dec("2.65")), ShouldBeTrue)
			})
		})

		Convey("When evaluating the same job twice", func() {
			j := job(targetedRow("c1", "100"), targetedRow("c2", "250"))
			first, err1 := eng.Evaluate(ctx, j)
			second, err2 := eng.Evaluate(ctx, j)

			Convey("Then the serialized results are bit-identical", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				b1, _ := json.Marshal(first)
				b2, _ := json.Marshal(second)
				So(string(b1), ShouldEqual, string(b2))
			})
		})

		Convey("When a row lacks target data", func() {
			plain := targetedRow("c2", "300")
			plain.Target = nil
			j := job(targetedRow("c1", "100"), plain)
			result, err := eng.Evaluate(ctx, j)

			Convey("Then the default score is applied and coverage drops", func() {
				So(err, ShouldBeNil)
				So(result.Coverage.Equal(dec("0.25")), ShouldBeTrue)
				defaults := 0
				for _, rs := range result.Scores {
					if rs.DefaultApplied {
						defaults++
						So(rs.Score.Equal(dec("3.2")), ShouldBeTrue)
					}
				}
				So(defaults, ShouldEqual, 1)
			})
		})

		Convey("When no row has target data", func() {
			r1 := targetedRow("c1", "100")
			r1.Target = nil
			r2 := targetedRow("c2", "100")
			r2.Target = nil
			_, err := eng.Evaluate(ctx, job(r1, r2))

			Convey("Then the engine fails semantically with zero coverage", func() {
				So(err, ShouldNotBeNil)
				So(engine.IsSemantic(err), ShouldBeTrue)
			})
		})

		Convey("When coverage is tiny but real", func() {
			huge := targetedRow("c2", "1000000")
			huge.Target = nil
			result, err := eng.Evaluate(ctx, job(targetedRow("c1", "1"), huge))

			Convey("Then the evaluation succeeds instead of reporting zero coverage", func() {
				So(err, ShouldBeNil)
				So(result.Coverage.Equal(dec("0")), ShouldBeTrue)
				scored := 0
				for _, rs := range result.Scores {
					if !rs.DefaultApplied {
						scored++
					}
				}
				So(scored, ShouldEqual, 1)
			})
		})

		Convey("When total exposure is zero", func() {
			r := targetedRow("c1", "0")
			_, err := eng.Evaluate(ctx, job(r))

			Convey("Then the engine fails semantically", func() {
				So(engine.IsSemantic(err), ShouldBeTrue)
			})
		})

		Convey("When the job is evaluated", func() {
			j := job(targetedRow("c1", "100"))
			before, _ := json.Marshal(j.Dataset)
			_, err := eng.Evaluate(ctx, j)

			Convey("Then the input dataset is not mutated", func() {
				So(err, ShouldBeNil)
				after, _ := json.Marshal(j.Dataset)
				So(string(after), ShouldEqual, string(before))
			})
		})
	})
}

func TestEvaluateWithBenchmarks(t *testing.T) {
	Convey("Given an engine with sector benchmarks", t, func() {
		ctx := context.Background()
		benchmarks, err := refdata.Parse([]byte("sectors:\n  energy:\n    pathway_adjustment: \"0.20\"\n"))
		So(err, ShouldBeNil)
		eng := engine.New(append(WithTestCoefficients(), engine.WithBenchmarks(benchmarks))...)

		Convey("When a row's sector is mapped", func() {
			result, err := eng.Evaluate(ctx, job(targetedRow("c1", "100")))

			Convey("Then the pathway adjustment shifts the score", func() {
				So(err, ShouldBeNil)
				So(result.Scores[0].Score.Equal(dec("2.85")), ShouldBeTrue)
				So(result.Warnings, ShouldBeEmpty)
			})
		})

		Convey("When a row's sector is unmapped", func() {
			r := targetedRow("c1", "100")
			r.Sector = "agriculture"
			result, err := eng.Evaluate(ctx, job(r))

			Convey("Then the score is unadjusted and a warning is emitted", func() {
				So(err, ShouldBeNil)
				So(result.Scores[0].Score.Equal(dec("2.65")), ShouldBeTrue)
				So(len(result.Warnings), ShouldEqual, 1)
				So(result.Warnings[0], ShouldContainSubstring, "agriculture")
			})
		})
	})
}

func TestEvaluateProjectionAndAnonymize(t *testing.T) {
	Convey("Given an engine and a job asking for projections", t, func() {
		ctx := context.Background()
		eng := engine.New(WithTestCoefficients()...)

		j := job(targetedRow("c1", "100"), targetedRow("c2", "300"))
		j.Params.GroupingColumns = []string{"sector"}
		j.Params.IncludeColumns = []string{"company_id", "temperature_score", "exposure"}

		Convey("When evaluating with grouping and include columns", func() {
			result, err := eng.Evaluate(ctx, j)

			Convey("Then the feature distribution sums to 100 percent", func() {
				So(err, ShouldBeNil)
				dist := result.FeatureDistribution["sector"]
				So(dist["energy"].Equal(dec("100")), ShouldBeTrue)
			})

			Convey("And the companies projection carries only requested columns", func() {
				So(err, ShouldBeNil)
				So(len(result.Companies), ShouldEqual, len(result.Scores))
				for _, rec := range result.Companies {
					So(len(rec), ShouldEqual, 3)
					_, hasName := rec["company_name"]
					So(hasName, ShouldBeFalse)
				}
			})
		})

		Convey("When anonymization is requested", func() {
			j.Params.Anonymize = true
			result, err := eng.Evaluate(ctx, j)

			Convey("Then identifiers are replaced with stable placeholders", func() {
				So(err, ShouldBeNil)
				seen := map[string]bool{}
				for _, rs := range result.Scores {
					So(rs.CompanyID, ShouldStartWith, "company-")
					seen[rs.CompanyID] = true
				}
				So(len(seen), ShouldEqual, 2)
			})

			Convey("And projected company ids carry the placeholder too", func() {
				So(err, ShouldBeNil)
				for _, rec := range result.Companies {
					So(rec["company_id"], ShouldStartWith, "company-")
				}
			})
		})

		Convey("When anonymizing a projection that carries names but not ids", func() {
			j.Params.Anonymize = true
			j.Params.IncludeColumns = []string{"company_name", "temperature_score"}
			result, err := eng.Evaluate(ctx, j)

			Convey("Then the real names never reach the dump", func() {
				So(err, ShouldBeNil)
				So(len(result.Companies), ShouldEqual, len(result.Scores))
				for _, rec := range result.Companies {
					So(rec["company_name"], ShouldStartWith, "company-")
				}
			})
		})
	})
}

// WithTestCoefficients pins the regression so expected scores stay readable.
func WithTestCoefficients() []engine.Option {
	return []engine.Option{
		engine.WithCoefficients(3.4, -0.15),
		engine.WithDefaultScore(3.2),
	}
}
