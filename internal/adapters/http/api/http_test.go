package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/tempalign/tempalign/internal/adapters/http/api"
	service "github.com/tempalign/tempalign/internal/app"
	"github.com/tempalign/tempalign/internal/config"
	"github.com/tempalign/tempalign/internal/domain/engine"
	"github.com/tempalign/tempalign/internal/domain/model"
	"github.com/tempalign/tempalign/internal/validate"
)

const targetedCSV = "company_id,company_name,id_type,exposure,sector,target_type,reduction_ambition,base_year,end_year,scope\n" +
	"c1,Alpha,isin,100,energy,absolute,0.5,2020,2030,s1s2\n" +
	"c2,Beta,lei,200,utilities,absolute,0.5,2020,2030,s1s2\n" +
	"c3,Gamma,ticker,300,materials,absolute,0.5,2020,2030,s1s2\n"

func newMux(opts ...service.Option) *http.ServeMux {
	opts = append([]service.Option{service.WithConfig(config.New())}, opts...)
	mux := http.NewServeMux()
	api.NewServer(service.New(opts...)).Register(context.Background(), mux)
	return mux
}

func multipartBody(t *testing.T, csv, paramsJSON string) (*bytes.Buffer, string) {
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
	return &buf, w.FormDataContentType()
}

func doAssess(t *testing.T, mux *http.ServeMux, csv, paramsJSON string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, csv, paramsJSON)
	r := httptest.NewRequest(http.MethodPost, "/api/v1/assess", body)
	r.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, r)
	return rec
}

type errorList struct {
	Errors    []validate.FieldError `json:"errors"`
	RequestID string                `json:"request_id"`
}

func decodeErrors(t *testing.T, rec *httptest.ResponseRecorder) errorList {
	t.Helper()
	var out errorList
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestAssessEndpoint(t *testing.T) {
	Convey("Given an API server backed by the real engine", t, func() {
		mux := newMux()

		Convey("When a fully targeted portfolio is assessed", func() {
			rec := doAssess(t, mux, targetedCSV,
				`{"temperature_score_methodology":"WATS","time_frames":["mid"],"scopes":["s1s2"]}`)

			Convey("Then the response carries full coverage and one score per row", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(rec.Header().Get("X-Request-ID"), ShouldNotBeEmpty)

				var result model.AssessmentResult
				So(json.Unmarshal(rec.Body.Bytes(), &result), ShouldBeNil)
				So(result.Coverage.Equal(decimal.NewFromInt(1)), ShouldBeTrue)
				So(len(result.Scores), ShouldEqual, 3)
				for _, sc := range result.Scores {
					So(sc.Score.Equal(decimal.RequireFromString("2.65")), ShouldBeTrue)
					So(sc.DefaultApplied, ShouldBeFalse)
				}
				So(len(result.AggregatedScores), ShouldEqual, 1)
				So(result.AggregatedScores[0].Score.Equal(decimal.RequireFromString("2.65")), ShouldBeTrue)
			})
		})

		Convey("When the dataset has a header but no rows", func() {
			header := strings.SplitAfter(targetedCSV, "\n")[0]
			rec := doAssess(t, mux, header, `{"temperature_score_methodology":"WATS"}`)

			Convey("Then the request is rejected with a field error", func() {
				So(rec.Code, ShouldEqual, http.StatusUnprocessableEntity)
				out := decodeErrors(t, rec)
				So(len(out.Errors), ShouldEqual, 1)
				So(out.Errors[0].Field, ShouldEqual, "dataset")
				So(out.Errors[0].Message, ShouldEqual, "no rows")
				So(out.RequestID, ShouldNotBeEmpty)
			})
		})

		Convey("When the body is not multipart at all", func() {
			r := httptest.NewRequest(http.MethodPost, "/api/v1/assess", strings.NewReader("{}"))
			r.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, r)

			Convey("Then the request is malformed", func() {
				So(rec.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the method is not POST", func() {
			r := httptest.NewRequest(http.MethodGet, "/api/v1/assess", nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, r)

			So(rec.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestConcurrentIsolation(t *testing.T) {
	Convey("Given one worker serving queued concurrent requests", t, func() {
		mux := newMux()

		Convey("When distinguishable payloads race", func() {
			const clients = 8
			results := make([]model.AssessmentResult, clients)
			errs := make([]error, clients)

			var wg sync.WaitGroup
			for i := 0; i < clients; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					csv := "company_id,company_name,id_type,exposure,sector,target_type,reduction_ambition,base_year,end_year,scope\n" +
						fmt.Sprintf("client-%d,Client %d,isin,100,energy,absolute,0.5,2020,2030,s1s2\n", i, i)
					rec := doAssess(t, mux, csv,
						`{"temperature_score_methodology":"WATS","time_frames":["mid"],"scopes":["s1s2"]}`)
					if rec.Code != http.StatusOK {
						errs[i] = fmt.Errorf("status %d", rec.Code)
						return
					}
					errs[i] = json.Unmarshal(rec.Body.Bytes(), &results[i])
				}(i)
			}
			wg.Wait()

			Convey("Then every client gets the answer for its own upload", func() {
				for i := 0; i < clients; i++ {
					So(errs[i], ShouldBeNil)
					So(len(results[i].Scores), ShouldEqual, 1)
					So(results[i].Scores[0].CompanyID, ShouldEqual, fmt.Sprintf("client-%d", i))
				}
			})
		})
	})
}

// countingEngine records evaluations and delegates to a fixed outcome.
type countingEngine struct {
	calls  atomic.Int64
	result *model.AssessmentResult
	err    error
}

func (c *countingEngine) Evaluate(_ context.Context, job *model.ComputationJob) (*model.AssessmentResult, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	if c.result != nil {
		return c.result, nil
	}
	return &model.AssessmentResult{RequestID: job.RequestID, Methodology: job.Params.Methodology}, nil
}

func TestAssessEngineBoundary(t *testing.T) {
	Convey("Given an API server with an observable engine", t, func() {
		eng := &countingEngine{}
		mux := newMux(service.WithEngine(eng))

		Convey("When validation rejects the request", func() {
			rec := doAssess(t, mux, targetedCSV,
				`{"temperature_score_methodology":"NOPE"}`)

			Convey("Then the engine is never invoked", func() {
				So(rec.Code, ShouldEqual, http.StatusUnprocessableEntity)
				So(eng.calls.Load(), ShouldEqual, 0)
			})
		})

		Convey("When validation passes", func() {
			rec := doAssess(t, mux, targetedCSV,
				`{"temperature_score_methodology":"WATS"}`)

			Convey("Then the engine is invoked exactly once", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(eng.calls.Load(), ShouldEqual, 1)
			})
		})

		Convey("When the engine reports a semantic failure", func() {
			eng.err = &engine.Error{Kind: engine.KindSemantic, Err: engine.ErrZeroCoverage}
			rec := doAssess(t, mux, targetedCSV,
				`{"temperature_score_methodology":"WATS"}`)

			Convey("Then the client sees the cause as a field error", func() {
				So(rec.Code, ShouldEqual, http.StatusUnprocessableEntity)
				out := decodeErrors(t, rec)
				So(len(out.Errors), ShouldEqual, 1)
				So(out.Errors[0].Field, ShouldEqual, "portfolio")
				So(out.Errors[0].Message, ShouldEqual, engine.ErrZeroCoverage.Error())
			})
		})

		Convey("When the engine fails internally", func() {
			eng.err = &engine.Error{Kind: engine.KindInternal, Err: context.DeadlineExceeded}
			rec := doAssess(t, mux, targetedCSV,
				`{"temperature_score_methodology":"WATS"}`)

			Convey("Then the client gets a correlation identifier and nothing else", func() {
				So(rec.Code, ShouldEqual, http.StatusInternalServerError)
				var out map[string]string
				So(json.Unmarshal(rec.Body.Bytes(), &out), ShouldBeNil)
				So(out["code"], ShouldEqual, "internal_error")
				So(out["request_id"], ShouldNotBeEmpty)
				So(rec.Body.String(), ShouldNotContainSubstring, "deadline")
			})
		})
	})
}

func TestParseEndpoint(t *testing.T) {
	Convey("Given an API server", t, func() {
		mux := newMux()

		Convey("When a spreadsheet is uploaded for parsing", func() {
			var buf bytes.Buffer
			w := multipart.NewWriter(&buf)
			fw, err := w.CreateFormFile("file", "portfolio.csv")
			So(err, ShouldBeNil)
			_, err = fw.Write([]byte("Company_ID,Exposure\nc1,100\nc2,200\n"))
			So(err, ShouldBeNil)
			So(w.Close(), ShouldBeNil)

			r := httptest.NewRequest(http.MethodPost, "/api/v1/portfolio/parse", &buf)
			r.Header.Set("Content-Type", w.FormDataContentType())
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, r)

			Convey("Then normalized records come back", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				var out validate.ParsedPortfolio
				So(json.Unmarshal(rec.Body.Bytes(), &out), ShouldBeNil)
				So(len(out.Portfolio), ShouldEqual, 2)
				So(out.Portfolio[0]["company_id"], ShouldEqual, "c1")
			})
		})
	})
}

func TestSchemaEndpoint(t *testing.T) {
	Convey("Given an API server", t, func() {
		mux := newMux()

		Convey("When the schema is requested", func() {
			r := httptest.NewRequest(http.MethodGet, "/api/v1/schema", nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, r)

			Convey("Then the parameter description is served", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				var out map[string]any
				So(json.Unmarshal(rec.Body.Bytes(), &out), ShouldBeNil)
				So(out["temperature_score_methodologies"], ShouldNotBeNil)
				So(out["required_columns"], ShouldNotBeNil)
				So(out["max_rows"], ShouldNotBeNil)
			})
		})
	})
}

func TestSerializer(t *testing.T) {
	Convey("Given a serializer with one slot", t, func() {
		serial := api.NewSerializer()

		Convey("When a waiting request's client goes away", func() {
			release := make(chan struct{})
			occupied := make(chan struct{})
			blocked := serial.Wrap(func(w http.ResponseWriter, r *http.Request) {
				close(occupied)
				<-release
			})

			go func() {
				r := httptest.NewRequest(http.MethodPost, "/api/v1/assess", nil)
				blocked(httptest.NewRecorder(), r)
			}()
			<-occupied

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			r := httptest.NewRequest(http.MethodPost, "/api/v1/assess", nil).WithContext(ctx)
			rec := httptest.NewRecorder()
			serial.Wrap(func(http.ResponseWriter, *http.Request) {
				t.Error("admitted a cancelled request")
			})(rec, r)
			close(release)

			Convey("Then it is turned away instead of queueing", func() {
				So(rec.Code, ShouldEqual, http.StatusServiceUnavailable)
			})
		})
	})
}
