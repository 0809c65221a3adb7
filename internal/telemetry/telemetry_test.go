package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounts(t *testing.T) {
	r := New()
	r.StateEvaluated()
	r.StateEvaluated()
	r.JacobianEvaluated()
	r.Steps("rk4", 10)
	r.SolveFinished(4, 1e-12)

	if got := testutil.ToFloat64(r.stateEvals); got != 2 {
		t.Errorf("state evaluations = %g, want 2", got)
	}
	if got := testutil.ToFloat64(r.jacobianEvals); got != 1 {
		t.Errorf("jacobian evaluations = %g, want 1", got)
	}
	if got := testutil.ToFloat64(r.steps.WithLabelValues("rk4")); got != 10 {
		t.Errorf("steps = %g, want 10", got)
	}
	if got := testutil.ToFloat64(r.residual); got != 1e-12 {
		t.Errorf("residual = %g", got)
	}
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	r.StateEvaluated()
	r.SolveFinished(1, 0)
	r.Steps("euler", 3)
	if err := r.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")); err != nil {
		t.Errorf("nil recorder write: %v", err)
	}
}

func TestWriteTextfile(t *testing.T) {
	r := New()
	r.StateEvaluated()
	path := filepath.Join(t.TempDir(), "tracersim.prom")
	if err := r.WriteTextfile(path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "tracersim_state_evaluations_total 1") {
		t.Errorf("textfile missing counter:\n%s", data)
	}
}
