// Package evidence writes screenshots and page snippets and builds the
// evidence bundle handed to the notifier.
package evidence

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/asimalsarhani/portal-runner/pkg/core"
	"github.com/asimalsarhani/portal-runner/pkg/logger"
)

// MaxSnippetBytes bounds the page content kept per failed attempt.
const MaxSnippetBytes = 16 * 1024

// Sink writes artifacts into one directory.
type Sink struct {
	dir string

	mu  sync.Mutex
	seq int
}

// NewSink creates the artifact directory if needed.
func NewSink(dir string) (*Sink, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, core.ErrFilesystem.WithCause(err).WithDetails(map[string]interface{}{"dir": dir})
	}
	return &Sink{dir: dir}, nil
}

// Dir returns the artifact directory.
func (s *Sink) Dir() string { return s.dir }

// Capture takes a screenshot of the session's page. Each call writes a new
// file; the session is only read.
func (s *Sink) Capture(ctx context.Context, session core.Session) (core.EvidenceBundle, error) {
	if err := ctx.Err(); err != nil {
		return core.EvidenceBundle{}, err
	}
	page := session.Page()

	png, err := page.Screenshot()
	if err != nil {
		return core.EvidenceBundle{}, fmt.Errorf("capture screenshot: %w", err)
	}

	s.mu.Lock()
	s.seq++
	name := fmt.Sprintf("evidence-%02d.png", s.seq)
	s.mu.Unlock()

	path, err := s.write(name, png)
	if err != nil {
		return core.EvidenceBundle{}, err
	}
	logger.Info("screenshot saved: %s", path)
	return core.NewEvidenceBundle("screenshot of "+page.URL(), path), nil
}

// Diagnose writes the screenshot and a page content snippet of a failed
// attempt, named by attempt index and failure tag. A page that cannot be
// captured is logged and skipped; a file that cannot be written is a hard
// error.
func (s *Sink) Diagnose(page core.Page, attempt int, tag string) (shot, snippet string, err error) {
	base := fmt.Sprintf("attempt-%02d-%s", attempt, sanitize(tag))

	if png, capErr := page.Screenshot(); capErr != nil {
		logger.Warn("attempt %d: screenshot failed: %v", attempt, capErr)
	} else if shot, err = s.write(base+".png", png); err != nil {
		return "", "", err
	}

	content, capErr := page.Content()
	if capErr != nil {
		logger.Warn("attempt %d: page content unavailable: %v", attempt, capErr)
		return shot, "", nil
	}
	content = truncate(content, MaxSnippetBytes)
	header := fmt.Sprintf("<!-- attempt %d, %s, url %s -->\n", attempt, tag, page.URL())
	if snippet, err = s.write(base+".html", []byte(header+content)); err != nil {
		return shot, "", err
	}
	return shot, snippet, nil
}

func (s *Sink) write(name string, data []byte) (string, error) {
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil { //#nosec G306 -- artifacts are meant to be shared
		return "", core.ErrFilesystem.WithCause(err).WithDetails(map[string]interface{}{"path": path})
	}
	return path, nil
}

// NewBundle builds the terminal bundle: headline plus one line per attempt.
// With no explicit screenshots the attempt screenshots are used.
func NewBundle(headline string, attempts []core.AttemptRecord, screenshots ...string) core.EvidenceBundle {
	var b strings.Builder
	b.WriteString(headline)
	for _, a := range attempts {
		fmt.Fprintf(&b, "\nattempt %d: reached %s", a.Index, a.Reached)
		if reason := a.Reason(); reason != "" {
			fmt.Fprintf(&b, ", %s", reason)
		}
		if a.URL != "" {
			fmt.Fprintf(&b, " (url %s)", a.URL)
		}
	}

	if len(screenshots) == 0 {
		for _, a := range attempts {
			if a.Snapshot != "" {
				screenshots = append(screenshots, a.Snapshot)
			}
		}
	}
	return core.NewEvidenceBundle(b.String(), screenshots...)
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func sanitize(tag string) string {
	if tag == "" {
		return "failed"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '_'
		}
	}, tag)
}
