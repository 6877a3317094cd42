package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given a fresh registry", t, func() {
		registry := prometheus.NewRegistry()

		Convey("When creating a manager with custom options", func() {
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{1, 2}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then its collectors are registered on that registry", func() {
				So(manager, ShouldNotBeNil)
				manager.clockTicks.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(names, ShouldContain, "test_unit_clock_ticks_total")
			})
		})

		Convey("When empty options are given", func() {
			manager := NewManager(WithNamespace(""), WithSubsystem(""), WithHistogramBuckets(nil), WithPrometheusRegistry(registry))

			Convey("Then defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "pulse")
				So(manager.subsystem, ShouldEqual, "engine")
				So(len(manager.histogramBuckets), ShouldBeGreaterThan, 0)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording clock activity", func() {
			before := testutil.ToFloat64(globalManager.clockBeats)
			RecordClockBeats(3)
			RecordClockBeats(0)
			UpdateClockTempo(128)

			Convey("Then counters and gauges move", func() {
				So(testutil.ToFloat64(globalManager.clockBeats)-before, ShouldEqual, 3)
				So(testutil.ToFloat64(globalManager.clockTempo), ShouldEqual, 128)
			})
		})

		Convey("When recording aggregator activity", func() {
			RecordEventIngested("message")
			RecordEventDropped("unmapped")
			UpdateAtmosphere(0.5, 0.25, 1)
			UpdateAggregateSizes(7, 2, 1)

			Convey("Then labelled series are populated", func() {
				So(testutil.ToFloat64(globalManager.atmosphere.WithLabelValues("tension")), ShouldEqual, 0.25)
				So(testutil.ToFloat64(globalManager.recentEvents), ShouldEqual, 7)
				So(testutil.ToFloat64(globalManager.eventsIngested.WithLabelValues("message")), ShouldBeGreaterThanOrEqualTo, 1)
			})
		})

		Convey("When recording the remaining helpers", func() {
			Convey("Then nothing panics", func() {
				So(func() {
					RecordClockTick()
					RecordEventsPurged(2)
					RecordRecomputeLatency(0.3)
					RecordSceneTransitions(1)
					RecordPlayerComplete()
					RecordPlayerMisuse("not_manual")
					RecordListenerPanic("clock")
					UpdateFeedQueue(1, 10)
					RecordFeedEnqueue()
					RecordFeedDispatch()
					RecordFeedEnqueueError("closed")
					RecordFeedDuplicate()
					RecordHTTPRequest("/stats", "GET", "200")
					RecordHTTPRequestDuration("/stats", "GET", "200", 1.5)
					UpdateSystemMemoryUsage(1024)
					UpdateSystemGoroutineCount(4)
				}, ShouldNotPanic)
			})
		})

		Convey("Then the registry is exposed", func() {
			So(GetRegistry(), ShouldNotBeNil)
		})
	})
}
