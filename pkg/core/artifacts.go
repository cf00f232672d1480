// Package core provides the execution model types for portal-runner.
package core

import (
	"time"
)

// Common content types
const (
	ContentTypePNG  = "image/png"
	ContentTypeHTML = "text/html"
	ContentTypeText = "text/plain"
)

// Attachment represents an artifact written during a run
type Attachment struct {
	Name        string `json:"name"`        // Descriptive name: screenshot, snippet
	ContentType string `json:"contentType"` // MIME type
	Path        string `json:"path"`        // File path
}

// NewScreenshotAttachment creates a screenshot attachment
func NewScreenshotAttachment(path string) Attachment {
	return Attachment{
		Name:        "screenshot",
		ContentType: ContentTypePNG,
		Path:        path,
	}
}

// EvidenceBundle is the terminal artifact of a run: screenshots plus a summary.
// It is write-once: fields are unexported and only readable through accessors.
type EvidenceBundle struct {
	screenshots []string
	summary     string
	createdAt   time.Time
}

// NewEvidenceBundle creates a bundle. The screenshot slice is copied.
func NewEvidenceBundle(summary string, screenshots ...string) EvidenceBundle {
	paths := make([]string, len(screenshots))
	copy(paths, screenshots)
	return EvidenceBundle{
		screenshots: paths,
		summary:     summary,
		createdAt:   time.Now(),
	}
}

// Screenshots returns a copy of the screenshot paths
func (b EvidenceBundle) Screenshots() []string {
	paths := make([]string, len(b.screenshots))
	copy(paths, b.screenshots)
	return paths
}

// Summary returns the human-readable summary
func (b EvidenceBundle) Summary() string {
	return b.summary
}

// CreatedAt returns when the bundle was created
func (b EvidenceBundle) CreatedAt() time.Time {
	return b.createdAt
}

// IsEmpty returns true if the bundle holds no screenshots and no summary
func (b EvidenceBundle) IsEmpty() bool {
	return len(b.screenshots) == 0 && b.summary == ""
}
