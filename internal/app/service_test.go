package service_test

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"

	service "github.com/tempalign/tempalign/internal/app"
	"github.com/tempalign/tempalign/internal/config"
	"github.com/tempalign/tempalign/internal/domain/engine"
	"github.com/tempalign/tempalign/internal/domain/model"
	"github.com/tempalign/tempalign/internal/refdata"
	"github.com/tempalign/tempalign/internal/validate"
)

const datasetCSV = "company_id,company_name,id_type,exposure,sector,target_type,reduction_ambition,base_year,end_year,scope\n" +
	"c1,Alpha,isin,100,energy,absolute,0.5,2020,2030,s1s2\n"

func assessRequest(t *testing.T, csv, paramsJSON string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("portfolio", "portfolio.csv")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte(csv)); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteField("parameters", paramsJSON); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	r := httptest.NewRequest(http.MethodPost, "/api/v1/assess", &buf)
	r.Header.Set("Content-Type", w.FormDataContentType())
	return r
}

type staticEngine struct {
	result *model.AssessmentResult
	err    error
}

func (s *staticEngine) Evaluate(context.Context, *model.ComputationJob) (*model.AssessmentResult, error) {
	return s.result, s.err
}

func TestService(t *testing.T) {
	Convey("Given a service with default configuration", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithConfig(config.New()))

		Convey("When a valid assess request is validated", func() {
			job, err := svc.AssessJob(ctx, "req-1", assessRequest(t, datasetCSV,
				`{"temperature_score_methodology":"WATS"}`))

			So(err, ShouldBeNil)
			So(job.RequestID, ShouldEqual, "req-1")
			So(len(job.Dataset.Rows), ShouldEqual, 1)
		})

		Convey("When validation fails", func() {
			_, err := svc.AssessJob(ctx, "req-2", assessRequest(t, datasetCSV,
				`{"temperature_score_methodology":"NOPE"}`))

			Convey("Then the validation error passes through unchanged", func() {
				verr, ok := validate.AsError(err)
				So(ok, ShouldBeTrue)
				So(verr.Kind, ShouldEqual, validate.KindInvalid)
			})
		})

		Convey("When a validated job is evaluated end to end", func() {
			job, err := svc.AssessJob(ctx, "req-3", assessRequest(t, datasetCSV,
				`{"temperature_score_methodology":"WATS","time_frames":["mid"],"scopes":["s1s2"]}`))
			So(err, ShouldBeNil)

			result, err := svc.Evaluate(ctx, job)

			So(err, ShouldBeNil)
			So(result.Coverage.Equal(decimal.NewFromInt(1)), ShouldBeTrue)
			So(len(result.Scores), ShouldEqual, 1)
		})
	})

	Convey("Given a service with an injected engine", t, func() {
		ctx := context.Background()

		Convey("When the engine fails", func() {
			svc := service.New(
				service.WithConfig(config.New()),
				service.WithEngine(&staticEngine{err: &engine.Error{Kind: engine.KindSemantic, Err: engine.ErrZeroCoverage}}),
			)

			_, err := svc.Evaluate(ctx, &model.ComputationJob{})

			Convey("Then the engine error passes through unchanged", func() {
				So(engine.IsSemantic(err), ShouldBeTrue)
			})
		})
	})
}

func TestSchema(t *testing.T) {
	Convey("Given a service with benchmarks", t, func() {
		b, err := refdata.Parse([]byte("sectors:\n  energy:\n    pathway_adjustment: \"0.2\"\n"))
		So(err, ShouldBeNil)

		cfg := config.New()
		svc := service.New(service.WithConfig(cfg), service.WithBenchmarks(b))

		Convey("When the schema is requested", func() {
			sch := svc.Schema(context.Background())

			Convey("Then it describes the full parameter surface", func() {
				So(len(sch.Methodologies), ShouldEqual, 7)
				So(len(sch.TimeFrames), ShouldEqual, 3)
				So(len(sch.Scopes), ShouldEqual, 3)
				So(sch.RequiredColumns, ShouldContain, "exposure")
				So(sch.TargetColumns, ShouldContain, "reduction_ambition")
				So(sch.BenchmarkSectors, ShouldResemble, []string{"energy"})
				So(sch.MaxRows, ShouldEqual, cfg.MaxRows)
				So(sch.DefaultScore, ShouldEqual, cfg.DefaultScore)
			})
		})
	})
}
