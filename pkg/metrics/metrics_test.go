package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given a private registry", t, func() {
		registry := prometheus.NewRegistry()

		Convey("When a manager is created with custom options", func() {
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{1, 10}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)
			manager.eventsAccepted.Inc()

			Convey("Then its collectors are registered under the new names", func() {
				mfs, err := registry.Gather()
				So(err, ShouldBeNil)
				names := make([]string, 0, len(mfs))
				for _, mf := range mfs {
					names = append(names, mf.GetName())
				}
				So(names, ShouldContain, "test_unit_events_accepted_total")
			})
		})

		Convey("When empty options are passed", func() {
			manager := NewManager(
				WithNamespace(""),
				WithSubsystem(""),
				WithHistogramBuckets(nil),
				WithConstLabels(nil),
				WithPrometheusRegistry(registry),
			)

			Convey("Then the defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "concord")
				So(manager.subsystem, ShouldEqual, "reliability")
				So(manager.histogramBuckets, ShouldNotBeEmpty)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics", t, func() {
		Convey("When ingestion events are recorded", func() {
			before := testutil.ToFloat64(globalManager.eventsAccepted)
			RecordEventAccepted()
			RecordEventAccepted()
			RecordEventDuplicate()
			RecordEventRejected("backpressure")

			Convey("Then the counters move", func() {
				So(testutil.ToFloat64(globalManager.eventsAccepted)-before, ShouldEqual, 2.0)
				So(testutil.ToFloat64(globalManager.eventsRejected.WithLabelValues("backpressure")), ShouldBeGreaterThanOrEqualTo, 1.0)
			})
		})

		Convey("When gauges are set", func() {
			UpdateQueueSize(7)
			UpdateQueueCapacity(10)
			UpdateQueueUtilization(0.7)
			UpdateWorkerCount(4)
			UpdateStoreRecordsTotal(12)
			UpdateStoreScopesTotal(3)
			UpdateLastICC(0.9)

			Convey("Then they hold the last value", func() {
				So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 7.0)
				So(testutil.ToFloat64(globalManager.queueUtilization), ShouldEqual, 0.7)
				So(testutil.ToFloat64(globalManager.workerCount), ShouldEqual, 4.0)
				So(testutil.ToFloat64(globalManager.storeRecordsTotal), ShouldEqual, 12.0)
				So(testutil.ToFloat64(globalManager.lastICC), ShouldEqual, 0.9)
			})
		})

		Convey("When computations are recorded", func() {
			before := testutil.ToFloat64(globalManager.computations.WithLabelValues(OutcomeInsufficient))
			RecordComputation(OutcomeComputed)
			RecordComputation(OutcomeInsufficient)
			RecordComputationLatency(1.5)
			RecordCacheHit()
			RecordCacheMiss()

			Convey("Then they are split by outcome", func() {
				after := testutil.ToFloat64(globalManager.computations.WithLabelValues(OutcomeInsufficient))
				So(after-before, ShouldEqual, 1.0)
			})
		})

		Convey("When edge values are recorded", func() {
			So(func() {
				RecordHTTPRequest("", "", "200")
				RecordHTTPRequestDuration("/v1/evaluations", "POST", "202", 0)
				RecordErrorByComponent("", "")
				RecordWorkerProcessingLatency(0)
				RecordWorkerError()
				RecordStoreWriteLatency(-1)
				RecordStoreQueryLatency(30000)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError()
			}, ShouldNotPanic)
		})
	})
}

func TestMetricsHandler(t *testing.T) {
	Convey("Given recorded metrics", t, func() {
		RecordEventAccepted()

		Convey("When the handler is scraped", func() {
			rec := httptest.NewRecorder()
			Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

			Convey("Then the service metrics are exposed", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(strings.Contains(rec.Body.String(), "concord_reliability_events_accepted_total"), ShouldBeTrue)
			})

			Convey("And the registry reports its families", func() {
				n, err := Count()
				So(err, ShouldBeNil)
				So(n, ShouldBeGreaterThan, 0)
			})
		})
	})
}

func TestMetricsConcurrency(t *testing.T) {
	Convey("Given many goroutines recording metrics", t, func() {
		done := make(chan struct{}, 10)
		for i := 0; i < 10; i++ {
			go func() {
				for j := 0; j < 100; j++ {
					RecordEventAccepted()
					UpdateQueueSize(j)
					RecordComputationLatency(float64(j))
					RecordHTTPRequest("/v1/assessments", "GET", "200")
				}
				done <- struct{}{}
			}()
		}
		for i := 0; i < 10; i++ {
			<-done
		}

		Convey("Then nothing panics", func() {
			So(testutil.ToFloat64(globalManager.eventsAccepted), ShouldBeGreaterThanOrEqualTo, 1000.0)
		})
	})
}
