// Package metrics provides Prometheus metrics for the capture pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "camerapipe"

// Preview states exported by the preview_state gauge.
var previewStates = []string{"idle", "streaming", "dead"}

var (
	circulationFrames = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "circulation",
		Name:      "frames_total",
		Help:      "Frames dequeued from the capture device",
	})

	circulationSinkBusy = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "circulation",
		Name:      "sink_busy_total",
		Help:      "Frames the display sink could not accept",
	})

	circulationDeviceErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "circulation",
		Name:      "device_errors_total",
		Help:      "Failed device queue or dequeue operations",
	})

	recordingFrames = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "recording",
		Name:      "frames_total",
		Help:      "Frames delivered to the recording callback",
	})

	recordingDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "recording",
		Name:      "dropped_frames_total",
		Help:      "Frames not delivered because the client held too many buffers",
	})

	buffersOwned = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "buffers",
		Name:      "owned",
		Help:      "Buffers in the pool by current owner",
	}, []string{"pool", "owner"})

	previewState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "preview",
		Name:      "state",
		Help:      "1 for the current preview worker state, 0 otherwise",
	}, []string{"state"})

	capturesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "total",
		Help:      "Still captures by result",
	}, []string{"result"})

	captureDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "duration_seconds",
		Help:      "Time from capture dispatch to encoded image",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})

	pictureQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "queued_requests",
		Help:      "Picture requests waiting for the in-flight capture",
	})

	stageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "staging",
		Name:      "failures_total",
		Help:      "Staging pipeline failures by stage",
	}, []string{"stage"})
)

// IncFrames counts one circulated frame.
func IncFrames() { circulationFrames.Inc() }

// IncSinkBusy counts a frame the sink refused.
func IncSinkBusy() { circulationSinkBusy.Inc() }

// IncDeviceErrors counts a device queue or dequeue failure.
func IncDeviceErrors() { circulationDeviceErrors.Inc() }

// IncRecordingFrames counts a frame handed to the recording callback.
func IncRecordingFrames() { recordingFrames.Inc() }

// IncRecordingDropped counts a frame withheld from the recording callback.
func IncRecordingDropped() { recordingDropped.Inc() }

// SetBufferOwnership publishes an ownership snapshot for a pool.
func SetBufferOwnership(pool string, free, device, sink, client int) {
	buffersOwned.WithLabelValues(pool, "free").Set(float64(free))
	buffersOwned.WithLabelValues(pool, "device").Set(float64(device))
	buffersOwned.WithLabelValues(pool, "sink").Set(float64(sink))
	buffersOwned.WithLabelValues(pool, "client").Set(float64(client))
}

// DeleteBufferOwnership removes the ownership series of a pool.
func DeleteBufferOwnership(pool string) {
	for _, owner := range []string{"free", "device", "sink", "client"} {
		buffersOwned.DeleteLabelValues(pool, owner)
	}
}

// SetPreviewState marks state as the current preview worker state.
func SetPreviewState(state string) {
	for _, s := range previewStates {
		v := 0.0
		if s == state {
			v = 1
		}
		previewState.WithLabelValues(s).Set(v)
	}
}

// ObserveCapture records the outcome of one still capture.
func ObserveCapture(result string, elapsed time.Duration) {
	capturesTotal.WithLabelValues(result).Inc()
	if result == "success" {
		captureDuration.Observe(elapsed.Seconds())
	}
}

// SetPictureQueueDepth publishes the number of waiting picture requests.
func SetPictureQueueDepth(n int) { pictureQueueDepth.Set(float64(n)) }

// IncStageFailure counts a failure in a staging stage.
func IncStageFailure(stage string) { stageFailures.WithLabelValues(stage).Inc() }
