package core

import "testing"

func TestNewEvidenceBundle_CopiesScreenshots(t *testing.T) {
	paths := []string{"a.png", "b.png"}
	b := NewEvidenceBundle("login failed", paths...)

	paths[0] = "changed.png"
	if got := b.Screenshots()[0]; got != "a.png" {
		t.Errorf("bundle mutated through input slice: %q", got)
	}

	out := b.Screenshots()
	out[1] = "changed.png"
	if got := b.Screenshots()[1]; got != "b.png" {
		t.Errorf("bundle mutated through Screenshots(): %q", got)
	}

	if b.Summary() != "login failed" {
		t.Errorf("Summary() = %q", b.Summary())
	}
	if b.CreatedAt().IsZero() {
		t.Error("CreatedAt() should be set")
	}
}

func TestEvidenceBundle_IsEmpty(t *testing.T) {
	if !NewEvidenceBundle("").IsEmpty() {
		t.Error("bundle without content should be empty")
	}
	if NewEvidenceBundle("", "x.png").IsEmpty() {
		t.Error("bundle with a screenshot should not be empty")
	}
}

func TestNewScreenshotAttachment(t *testing.T) {
	a := NewScreenshotAttachment("final.png")
	if a.ContentType != ContentTypePNG || a.Path != "final.png" {
		t.Errorf("unexpected attachment: %+v", a)
	}
}
