package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithRegistry(registry))

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test-namespace"),
				WithSubsystem("test-subsystem"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithRegistry(registry),
			)

			Convey("Then the registry should hold the registered collectors", func() {
				manager.httpRequests.WithLabelValues("assess", "POST", "200").Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)
			})
		})
	})
}

func TestPackageLevelRecorders(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording through the package helpers", func() {
			So(func() {
				RecordHTTPRequest("assess", "POST", "200")
				RecordHTTPRequestDuration("assess", "POST", "200", 12.5)
				RecordValidationFailure("missing_column")
				RecordDatasetRows(3)
				RecordEngineEvaluation(40)
				RecordEngineError("semantic")
				RecordPortfolioCoverage(1.0)
				RecordWorkerRestart("0")
				SetWorkerUp("0", true)
				SetWorkerUp("1", false)
				RecordProxyRejection("body_limit")
			}, ShouldNotPanic)
		})

		Convey("When gathering the custom registry", func() {
			RecordHTTPRequest("schema", "GET", "200")
			families, err := GetRegistry().Gather()
			So(err, ShouldBeNil)
			So(len(families), ShouldBeGreaterThan, 0)
		})
	})
}
