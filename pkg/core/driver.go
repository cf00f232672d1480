package core

import (
	"context"

	"github.com/asimalsarhani/portal-runner/pkg/flow"
)

// Page is the browser page the engine drives.
// Implementations: playwright, mock.
// The flow controller handles flow logic; Page just executes individual commands.
type Page interface {
	// Navigate loads url and waits for the load event
	Navigate(ctx context.Context, url string) error

	// Query returns every element matching the locator, in document order.
	// An empty slice with nil error means "not present right now".
	Query(loc flow.Locator) ([]Element, error)

	// Text returns the visible text of the whole page
	Text() (string, error)

	// Content returns the page HTML
	Content() (string, error)

	// Screenshot captures the current viewport as PNG
	Screenshot() ([]byte, error)

	// ClearCookies drops all cookies of the session
	ClearCookies() error

	// URL returns the current page URL
	URL() string

	// Frame returns a view whose Query and Text run inside the iframe
	// matched by loc. Other methods act on the top-level page. The view does
	// not check that the frame exists; resolve loc on the parent first.
	Frame(loc flow.Locator) Page
}

// Element is a single element on the page.
// Methods may fail with stale/not-interactable faults at any time.
type Element interface {
	IsVisible() (bool, error)
	IsEnabled() (bool, error)
	Text() (string, error)
	ScrollIntoView() error
	Clear() error
	Fill(text string) error

	// Click performs the platform-native click
	Click() error

	// ForceClick dispatches a programmatic click, bypassing actionability checks
	ForceClick() error
}

// Session is one isolated browser session.
type Session interface {
	Page() Page
}

// SessionConfig configures a browser session.
type SessionConfig struct {
	Headless   bool
	Width      int
	Height     int
	ProfileDir string // Isolated, non-shared profile directory; empty = provisioner picks a fresh temp dir
	UserAgent  string
	Timeout    int // Default driver timeout in ms
}

// Provisioner creates and destroys browser sessions.
type Provisioner interface {
	Open(ctx context.Context, cfg SessionConfig) (Session, error)
	Close(session Session) error
}
