package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInit_MultipleCallsAreIdempotent(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("First Init() failed: %v", err)
	}
	if err := Init(); err != nil {
		t.Errorf("Second Init() returned error: %v", err)
	}
}

func TestStepAttempts_Increment(t *testing.T) {
	before := testutil.ToFloat64(StepAttempts.WithLabelValues("addgateway"))

	StepAttempts.WithLabelValues("addgateway").Inc()
	StepAttempts.WithLabelValues("addgateway").Inc()

	after := testutil.ToFloat64(StepAttempts.WithLabelValues("addgateway"))
	if after-before != 2 {
		t.Errorf("Expected 2 attempts recorded, got %v", after-before)
	}
}

func TestWriteTextfile(t *testing.T) {
	StepFailures.WithLabelValues("addtenant", "protocol").Inc()
	ReadinessProbes.WithLabelValues(ProbeReady).Inc()

	path := filepath.Join(t.TempDir(), "ctrlseed.prom")
	if err := WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read metrics file: %v", err)
	}

	content := string(data)
	for _, want := range []string{
		`ctrlseed_step_failures_total{endpoint="addtenant",kind="protocol"}`,
		`ctrlseed_readiness_probes_total{outcome="ready"}`,
	} {
		if !strings.Contains(content, want) {
			t.Errorf("Metrics file missing %s\n%s", want, content)
		}
	}
}

func TestWriteTextfile_BadPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "dir", "ctrlseed.prom")
	if err := WriteTextfile(path); err == nil {
		t.Error("Expected error writing to a missing directory")
	}
}
