package flow

import (
	"errors"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestNewTarget_RejectsEmptyCandidates(t *testing.T) {
	_, err := NewTarget("submit control", time.Second)
	if !errors.Is(err, ErrNoCandidates) {
		t.Fatalf("expected ErrNoCandidates, got %v", err)
	}
}

func TestNewTarget_RejectsZeroLocator(t *testing.T) {
	if _, err := NewTarget("x", 0, Locator{}); err == nil {
		t.Error("expected error for zero locator")
	}
}

func TestNewTarget_CopiesCandidates(t *testing.T) {
	cands := []Locator{MustLocator(StrategyID, "a"), MustLocator(StrategyID, "b")}
	target, err := NewTarget("t", 0, cands...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cands[0] = MustLocator(StrategyID, "changed")
	if got := target.Candidates()[0].Pattern(); got != "a" {
		t.Errorf("target mutated through caller slice: %q", got)
	}

	out := target.Candidates()
	out[1] = MustLocator(StrategyID, "changed")
	if got := target.Candidates()[1].Pattern(); got != "b" {
		t.Errorf("target mutated through Candidates(): %q", got)
	}
}

func TestTarget_Describe(t *testing.T) {
	target := MustTarget("submit control", 0, MustLocator(StrategyID, "signIn"), MustLocator(StrategyText, "Sign In"))
	want := "submit control [id=signIn | text=Sign In]"
	if got := target.Describe(); got != want {
		t.Errorf("Describe() = %q, want %q", got, want)
	}
}

func TestTarget_UnmarshalYAML(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		count   int
		timeout time.Duration
		tName   string
	}{
		{"scalar", `id=username`, 1, 0, ""},
		{"sequence", `["id=signIn", "text=Sign In"]`, 2, 0, ""},
		{"mapping", "name: submit\ntimeout: 45s\ncandidates:\n  - id=signIn\n  - text=Sign In\n", 2, 45 * time.Second, "submit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var target Target
			if err := yaml.Unmarshal([]byte(tt.yaml), &target); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if target.Len() != tt.count {
				t.Errorf("Len() = %d, want %d", target.Len(), tt.count)
			}
			if target.Timeout() != tt.timeout {
				t.Errorf("Timeout() = %v, want %v", target.Timeout(), tt.timeout)
			}
			if target.Name() != tt.tName {
				t.Errorf("Name() = %q, want %q", target.Name(), tt.tName)
			}
		})
	}
}

func TestTarget_UnmarshalYAML_Errors(t *testing.T) {
	for _, in := range []string{"candidates: []", "timeout: soon\ncandidates: [id=x]", "[]"} {
		var target Target
		if err := yaml.Unmarshal([]byte(in), &target); err == nil {
			t.Errorf("expected error for %q", in)
		}
	}
}
