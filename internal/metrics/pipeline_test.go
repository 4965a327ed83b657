package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestBufferOwnership(t *testing.T) {
	SetBufferOwnership("test-pool", 2, 3, 1, 1)

	if got := testutil.ToFloat64(buffersOwned.WithLabelValues("test-pool", "device")); got != 3 {
		t.Errorf("device gauge = %v, want 3", got)
	}
	if got := testutil.ToFloat64(buffersOwned.WithLabelValues("test-pool", "client")); got != 1 {
		t.Errorf("client gauge = %v, want 1", got)
	}

	DeleteBufferOwnership("test-pool")
	DeleteBufferOwnership("non-existent-pool")
}

func TestPreviewStateIsExclusive(t *testing.T) {
	SetPreviewState("streaming")
	SetPreviewState("idle")

	if got := testutil.ToFloat64(previewState.WithLabelValues("idle")); got != 1 {
		t.Errorf("idle = %v, want 1", got)
	}
	if got := testutil.ToFloat64(previewState.WithLabelValues("streaming")); got != 0 {
		t.Errorf("streaming = %v, want 0", got)
	}
}

func TestCaptureCounters(t *testing.T) {
	before := testutil.ToFloat64(capturesTotal.WithLabelValues("failure"))
	ObserveCapture("failure", 10*time.Millisecond)
	if got := testutil.ToFloat64(capturesTotal.WithLabelValues("failure")); got != before+1 {
		t.Errorf("failure captures = %v, want %v", got, before+1)
	}

	beforeStage := testutil.ToFloat64(stageFailures.WithLabelValues("postprocess"))
	IncStageFailure("postprocess")
	if got := testutil.ToFloat64(stageFailures.WithLabelValues("postprocess")); got != beforeStage+1 {
		t.Errorf("stage failures = %v, want %v", got, beforeStage+1)
	}

	SetPictureQueueDepth(4)
	if got := testutil.ToFloat64(pictureQueueDepth); got != 4 {
		t.Errorf("queue depth = %v, want 4", got)
	}
}
