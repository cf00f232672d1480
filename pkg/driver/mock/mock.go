// Package mock provides an in-memory page for testing without a real browser.
package mock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/asimalsarhani/portal-runner/pkg/core"
	"github.com/asimalsarhani/portal-runner/pkg/flow"
)

// Node configures how the elements behind one locator behave.
type Node struct {
	Text string

	// AppearAfter delays presence relative to the last navigation, or to the
	// first click on Trigger when Trigger is set.
	AppearAfter time.Duration
	Trigger     string // Locator string, e.g. "id=signIn", or an InFrame key

	// OnNavigation restricts presence to the navigations it returns true for
	// (1-based). nil means every navigation.
	OnNavigation func(n int) bool

	Count         int // Number of matches, default 1
	HiddenMatches int // The first N matches are invisible
	Hidden        bool
	Disabled      bool

	ClickErr      error
	ForceClickErr error
	FillErr       error
	ScrollErr     error
}

// Page is a mock implementation of core.Page.
type Page struct {
	// FailNavigations makes the first N navigations return an error.
	FailNavigations int
	// QueryErr is returned from every Query when set.
	QueryErr      error
	ScreenshotErr error

	mu          sync.Mutex
	nodes       map[string]*Node
	bodyText    string
	url         string
	navigatedAt time.Time
	triggered   map[string]time.Time

	navigations  int
	cookieClears int
	screenshots  int
	clicks       []string
	forceClicks  []string
	filled       map[string]string
}

// NewPage creates an empty page.
func NewPage() *Page {
	return &Page{
		nodes:     make(map[string]*Node),
		triggered: make(map[string]time.Time),
		filled:    make(map[string]string),
	}
}

// Set registers the node behind a locator string such as "id=username".
func (p *Page) Set(locator string, n Node) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	node := n
	p.nodes[locator] = &node
	return p
}

// SetIn registers a node inside the iframe matched by frame. The frame
// itself is registered separately with Set.
func (p *Page) SetIn(frame, locator string, n Node) *Page {
	return p.Set(InFrame(frame, locator), n)
}

// InFrame is the key of a locator inside an iframe, as reported by Clicks
// and accepted by Filled and Remove.
func InFrame(frame, locator string) string {
	return frame + " >> " + locator
}

// Remove drops a node; elements already returned for it become stale.
func (p *Page) Remove(locator string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.nodes, locator)
}

// SetBodyText sets the visible page text.
func (p *Page) SetBodyText(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bodyText = text
}

// Navigate implements core.Page.
func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigations++
	p.url = url
	p.navigatedAt = time.Now()
	p.triggered = make(map[string]time.Time)
	if p.navigations <= p.FailNavigations {
		return fmt.Errorf("mock navigation %d failed", p.navigations)
	}
	return nil
}

// Query implements core.Page.
func (p *Page) Query(loc flow.Locator) ([]core.Element, error) {
	return p.query(loc.String())
}

// Frame implements core.Page.
func (p *Page) Frame(loc flow.Locator) core.Page {
	return &FramePage{Page: p, key: loc.String()}
}

func (p *Page) query(key string) ([]core.Element, error) {
	if p.QueryErr != nil {
		return nil, p.QueryErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	node, ok := p.nodes[key]
	if !ok || !p.presentLocked(node) {
		return nil, nil
	}
	count := node.Count
	if count <= 0 {
		count = 1
	}
	elems := make([]core.Element, count)
	for i := range elems {
		elems[i] = &element{page: p, key: key, index: i}
	}
	return elems, nil
}

func (p *Page) presentLocked(n *Node) bool {
	if p.navigations == 0 || p.navigations <= p.FailNavigations {
		return false
	}
	if n.OnNavigation != nil && !n.OnNavigation(p.navigations) {
		return false
	}
	base := p.navigatedAt
	if n.Trigger != "" {
		at, ok := p.triggered[n.Trigger]
		if !ok {
			return false
		}
		base = at
	}
	return !time.Now().Before(base.Add(n.AppearAfter))
}

// Text implements core.Page.
func (p *Page) Text() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bodyText, nil
}

// Content implements core.Page.
func (p *Page) Content() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return "<html><body>" + p.bodyText + "</body></html>", nil
}

// Screenshot implements core.Page.
func (p *Page) Screenshot() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ScreenshotErr != nil {
		return nil, p.ScreenshotErr
	}
	p.screenshots++
	return []byte(fmt.Sprintf("\x89PNG mock %d", p.screenshots)), nil
}

// ClearCookies implements core.Page.
func (p *Page) ClearCookies() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cookieClears++
	return nil
}

// URL implements core.Page.
func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

// Navigations returns the number of Navigate calls.
func (p *Page) Navigations() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.navigations
}

// CookieClears returns the number of ClearCookies calls.
func (p *Page) CookieClears() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cookieClears
}

// Screenshots returns the number of successful Screenshot calls.
func (p *Page) Screenshots() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.screenshots
}

// Clicks returns the locators clicked natively, in order.
func (p *Page) Clicks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicks...)
}

// ForceClicks returns the locators clicked programmatically, in order.
func (p *Page) ForceClicks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.forceClicks...)
}

// Filled returns the current value typed into a locator.
func (p *Page) Filled(locator string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.filled[locator]
}

// FramePage is the view of one iframe of a Page. Its nodes are the ones
// registered with SetIn; page text is shared with the parent.
type FramePage struct {
	*Page
	key string
}

// Query implements core.Page.
func (f *FramePage) Query(loc flow.Locator) ([]core.Element, error) {
	return f.Page.query(InFrame(f.key, loc.String()))
}

// Frame implements core.Page for nested iframes.
func (f *FramePage) Frame(loc flow.Locator) core.Page {
	return &FramePage{Page: f.Page, key: InFrame(f.key, loc.String())}
}

type element struct {
	page  *Page
	key   string
	index int
}

// node returns the live node or ErrStaleElement. Caller holds the lock.
func (e *element) node() (*Node, error) {
	n, ok := e.page.nodes[e.key]
	if !ok || !e.page.presentLocked(n) {
		return nil, core.ErrStaleElement.WithMessage(e.key + " is no longer attached")
	}
	return n, nil
}

func (e *element) IsVisible() (bool, error) {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	n, err := e.node()
	if err != nil {
		return false, err
	}
	return !n.Hidden && e.index >= n.HiddenMatches, nil
}

func (e *element) IsEnabled() (bool, error) {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	n, err := e.node()
	if err != nil {
		return false, err
	}
	return !n.Disabled, nil
}

func (e *element) Text() (string, error) {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	n, err := e.node()
	if err != nil {
		return "", err
	}
	return n.Text, nil
}

func (e *element) ScrollIntoView() error {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	n, err := e.node()
	if err != nil {
		return err
	}
	return n.ScrollErr
}

func (e *element) Clear() error {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	if _, err := e.node(); err != nil {
		return err
	}
	e.page.filled[e.key] = ""
	return nil
}

func (e *element) Fill(text string) error {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	n, err := e.node()
	if err != nil {
		return err
	}
	if n.FillErr != nil {
		return n.FillErr
	}
	e.page.filled[e.key] += text
	return nil
}

func (e *element) Click() error {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	n, err := e.node()
	if err != nil {
		return err
	}
	if n.ClickErr != nil {
		return n.ClickErr
	}
	e.page.clicks = append(e.page.clicks, e.key)
	e.fire()
	return nil
}

func (e *element) ForceClick() error {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	n, err := e.node()
	if err != nil {
		return err
	}
	if n.ForceClickErr != nil {
		return n.ForceClickErr
	}
	e.page.forceClicks = append(e.page.forceClicks, e.key)
	e.fire()
	return nil
}

// fire starts the appearance timer of nodes triggered by this element.
func (e *element) fire() {
	if _, ok := e.page.triggered[e.key]; !ok {
		e.page.triggered[e.key] = time.Now()
	}
}

// Session is a mock core.Session over a shared Page.
type Session struct {
	page *Page
}

// Page implements core.Session.
func (s *Session) Page() core.Page { return s.page }

// Provisioner hands out sessions over one shared Page so state set up in
// a test survives across retry attempts.
type Provisioner struct {
	Page    *Page
	OpenErr error

	mu      sync.Mutex
	opened  int
	closed  int
	configs []core.SessionConfig
}

// NewProvisioner creates a provisioner for page.
func NewProvisioner(page *Page) *Provisioner {
	return &Provisioner{Page: page}
}

// Open implements core.Provisioner.
func (p *Provisioner) Open(ctx context.Context, cfg core.SessionConfig) (core.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.OpenErr != nil {
		return nil, p.OpenErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.opened++
	p.configs = append(p.configs, cfg)
	return &Session{page: p.Page}, nil
}

// Close implements core.Provisioner.
func (p *Provisioner) Close(s core.Session) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := s.(*Session); !ok {
		return errors.New("mock: foreign session")
	}
	p.closed++
	return nil
}

// Opened returns the number of sessions opened.
func (p *Provisioner) Opened() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opened
}

// Closed returns the number of sessions closed.
func (p *Provisioner) Closed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Configs returns the session configurations passed to Open.
func (p *Provisioner) Configs() []core.SessionConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]core.SessionConfig(nil), p.configs...)
}

// ErrDetached is a convenience error for ClickErr and friends.
var ErrDetached = errors.New("element is not attached to the DOM")
