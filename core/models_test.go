package core

import (
	"testing"
)

func TestPointID_Reference(t *testing.T) {
	tests := []struct {
		sourceID string
		index    int
		want     string
	}{
		{"doc-a", 0, "ea350fdb-137c-527d-93c4-e6cfe929df39"},
		{"doc-a", 1, "1aade5b8-a8a8-57ba-984e-e0cb7af59104"},
		{"report.pdf", 2, "9bdefef8-db64-5041-9d55-acf0b2060253"},
		{"/data/a.pdf", 0, "a7a8d423-ee93-51fa-9e95-b13f2a4601cc"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := PointID(tt.sourceID, tt.index)
			if got.String() != tt.want {
				t.Errorf("PointID(%q, %d) = %s, want %s", tt.sourceID, tt.index, got, tt.want)
			}
			if got.Version() != 5 {
				t.Errorf("PointID version = %d, want 5", got.Version())
			}
		})
	}
}

func TestPointID_Stable(t *testing.T) {
	if PointID("doc-a", 3) != PointID("doc-a", 3) {
		t.Errorf("PointID() produced different IDs for the same input")
	}
	if PointID("doc-a", 3) == PointID("doc-b", 3) {
		t.Errorf("PointID() produced same ID for different sources")
	}
	if PointID("doc-a", 3) == PointID("doc-a", 4) {
		t.Errorf("PointID() produced same ID for different indices")
	}
}

func TestFingerprint(t *testing.T) {
	got := Fingerprint([]byte("hello world"))
	want := "256c83b297114d201b30179f3f0ef0cace9783622da5974326b436178aeef610"
	if got != want {
		t.Errorf("Fingerprint() = %s, want %s", got, want)
	}
	if Fingerprint([]byte("a")) == Fingerprint([]byte("b")) {
		t.Errorf("Fingerprint() collided for different content")
	}
}

func TestNewRunID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewRunID()
		if seen[id] {
			t.Fatalf("NewRunID() returned duplicate %s", id)
		}
		seen[id] = true
	}
}

func TestRunStatus_Terminal(t *testing.T) {
	tests := []struct {
		status RunStatus
		want   bool
	}{
		{RunPending, false},
		{RunRunning, false},
		{RunCompleted, true},
		{RunFailed, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.Terminal(); got != tt.want {
				t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestRun_Step(t *testing.T) {
	run := &Run{
		Steps: []StepRecord{
			{Name: "load", Output: []byte{1}},
			{Name: "embed-and-upsert", Output: []byte{2}},
		},
	}

	rec, ok := run.Step("embed-and-upsert")
	if !ok {
		t.Fatal("expected step to be found")
	}
	if rec.Output[0] != 2 {
		t.Errorf("Step() returned wrong record: %+v", rec)
	}

	if _, ok := run.Step("answer"); ok {
		t.Error("expected missing step to be reported")
	}
}
