package logging

import "testing"

func TestProgressSamplerDefaults(t *testing.T) {
	if s := NewProgressSampler(0); s.bucketSize != 10 {
		t.Fatalf("bucketSize = %v, want 10", s.bucketSize)
	}
	if s := NewProgressSampler(5); s.bucketSize != 5 || s.lastBucket != -1 {
		t.Fatalf("unexpected sampler %+v", s)
	}
}

func TestProgressSamplerNil(t *testing.T) {
	var s *ProgressSampler
	if !s.ShouldLog(50, "Process") {
		t.Fatal("nil sampler should always log")
	}
	s.Reset()
}

func TestProgressSamplerSequence(t *testing.T) {
	s := NewProgressSampler(10)
	steps := []struct {
		percent float64
		stage   string
		want    bool
	}{
		{0, "Discover", true},
		{4, "Discover", false},
		{10, "Discover", true},
		{19.9, "Discover", false},
		{30, " Process ", true},
		{35, "Process", false},
		{-1, "Process", false},
		{100, "Process", true},
		{140, "Process", false},
		{100, "Cleanup", true},
	}
	for i, step := range steps {
		if got := s.ShouldLog(step.percent, step.stage); got != step.want {
			t.Fatalf("step %d (%v %q): got %v want %v", i, step.percent, step.stage, got, step.want)
		}
	}
	if s.lastStage != "Cleanup" {
		t.Fatalf("lastStage = %q", s.lastStage)
	}

	s.Reset()
	if !s.ShouldLog(100, "Cleanup") {
		t.Fatal("expected log after reset")
	}
}
