package snapshot

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestEvaluate_BelowThresholdNotTriggered(t *testing.T) {
	eval, anomaly := Evaluate(uuid.New(), EntityTenant, "", 110, 100, 50, time.Now())
	if eval.Triggered {
		t.Fatalf("deviation of 10%% should not trigger a 50%% threshold")
	}
	if anomaly != nil {
		t.Fatal("expected no anomaly row when not triggered")
	}
}

func TestEvaluate_AtThresholdTriggersAndIsAuditable(t *testing.T) {
	eval, anomaly := Evaluate(uuid.New(), EntityTenant, "", 150, 100, 50, time.Now())
	if !eval.Triggered {
		t.Fatal("deviation exactly at threshold should trigger (inclusive)")
	}
	if anomaly == nil {
		t.Fatal("expected an anomaly row")
	}
	if anomaly.Severity != SeverityLow {
		t.Fatalf("severity = %v, want low at exactly 1x threshold", anomaly.Severity)
	}
}

func TestEvaluate_SeverityScalesWithMagnitude(t *testing.T) {
	cases := []struct {
		current float64
		want    Severity
	}{
		{150, SeverityLow},      // 50% dev, 1x threshold
		{250, SeverityMedium},   // 150% dev, 3x threshold
		{300, SeverityHigh},     // 200% dev, 4x threshold
		{900, SeverityCritical},
	}
	for _, tc := range cases {
		_, anomaly := Evaluate(uuid.New(), EntityTenant, "", tc.current, 100, 50, time.Now())
		if anomaly == nil {
			t.Fatalf("current=%v: expected anomaly", tc.current)
		}
		if anomaly.Severity != tc.want {
			t.Errorf("current=%v: severity = %v, want %v", tc.current, anomaly.Severity, tc.want)
		}
	}
}

func TestEvaluate_NegativeDeviationAlsoTriggers(t *testing.T) {
	eval, anomaly := Evaluate(uuid.New(), EntityTenant, "", 30, 100, 50, time.Now())
	if !eval.Triggered || anomaly == nil {
		t.Fatal("a large drop below baseline should also trigger")
	}
	if eval.DeviationPct >= 0 {
		t.Fatalf("deviation_pct = %v, want negative", eval.DeviationPct)
	}
}

func TestComputeBaseline_LowConfidenceUnderThreeSamples(t *testing.T) {
	b := ComputeBaseline(EntityTenant, "", Window7d, []float64{100, 110}, time.Now())
	if !b.LowConfidence() {
		t.Fatal("two samples should be low-confidence")
	}
}

func TestComputeBaseline_MeanAndStdDev(t *testing.T) {
	b := ComputeBaseline(EntityTenant, "", Window7d, []float64{100, 100, 100, 100}, time.Now())
	if b.AvgDailyCost != 100 {
		t.Fatalf("avg = %v, want 100", b.AvgDailyCost)
	}
	if b.StdDev != 0 {
		t.Fatalf("stddev = %v, want 0 for constant samples", b.StdDev)
	}
	if b.LowConfidence() {
		t.Fatal("four samples should not be low-confidence")
	}
}
