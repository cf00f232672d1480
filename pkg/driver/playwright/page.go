package playwright

import (
	"context"
	"errors"
	"strings"
	"time"

	pw "github.com/playwright-community/playwright-go"

	"github.com/asimalsarhani/portal-runner/pkg/core"
	"github.com/asimalsarhani/portal-runner/pkg/flow"
)

// actionTimeout bounds a single element command in ms. Waiting for elements
// to appear is the resolver's job, so commands fail fast.
const actionTimeout = 5000

// Page adapts a playwright page to core.Page.
type Page struct {
	page    pw.Page
	context pw.BrowserContext
	timeout float64 // ms
}

// Navigate implements core.Page.
func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.page.Goto(url, pw.PageGotoOptions{
		WaitUntil: pw.WaitUntilStateLoad,
		Timeout:   pw.Float(remainingMS(ctx, p.timeout)),
	})
	return mapError(err)
}

// Query implements core.Page.
func (p *Page) Query(loc flow.Locator) ([]core.Element, error) {
	return query(p.page.Locator(loc.Selector()))
}

// Text implements core.Page.
func (p *Page) Text() (string, error) {
	return bodyText(p.page.Locator("body"))
}

// Frame implements core.Page.
func (p *Page) Frame(loc flow.Locator) core.Page {
	return &FramePage{Page: p, frame: p.page.FrameLocator(loc.Selector())}
}

// FramePage scopes queries to an iframe of a Page.
type FramePage struct {
	*Page
	frame pw.FrameLocator
}

// Query implements core.Page.
func (f *FramePage) Query(loc flow.Locator) ([]core.Element, error) {
	return query(f.frame.Locator(loc.Selector()))
}

// Text implements core.Page.
func (f *FramePage) Text() (string, error) {
	return bodyText(f.frame.Locator("body"))
}

// Frame implements core.Page for nested iframes.
func (f *FramePage) Frame(loc flow.Locator) core.Page {
	return &FramePage{Page: f.Page, frame: f.frame.FrameLocator(loc.Selector())}
}

func query(l pw.Locator) ([]core.Element, error) {
	matches, err := l.All()
	if err != nil {
		return nil, mapError(err)
	}
	elems := make([]core.Element, len(matches))
	for i, m := range matches {
		elems[i] = &Element{loc: m}
	}
	return elems, nil
}

func bodyText(body pw.Locator) (string, error) {
	text, err := body.InnerText(pw.LocatorInnerTextOptions{Timeout: pw.Float(actionTimeout)})
	return text, mapError(err)
}

// Content implements core.Page.
func (p *Page) Content() (string, error) {
	html, err := p.page.Content()
	return html, mapError(err)
}

// Screenshot implements core.Page.
func (p *Page) Screenshot() ([]byte, error) {
	data, err := p.page.Screenshot(pw.PageScreenshotOptions{Type: pw.ScreenshotTypePng})
	return data, mapError(err)
}

// ClearCookies implements core.Page.
func (p *Page) ClearCookies() error {
	return mapError(p.context.ClearCookies())
}

// URL implements core.Page.
func (p *Page) URL() string {
	return p.page.URL()
}

// Element adapts a playwright locator bound to one match.
type Element struct {
	loc pw.Locator
}

func (e *Element) IsVisible() (bool, error) {
	ok, err := e.loc.IsVisible()
	return ok, mapError(err)
}

func (e *Element) IsEnabled() (bool, error) {
	ok, err := e.loc.IsEnabled(pw.LocatorIsEnabledOptions{Timeout: pw.Float(actionTimeout)})
	return ok, mapError(err)
}

func (e *Element) Text() (string, error) {
	text, err := e.loc.InnerText(pw.LocatorInnerTextOptions{Timeout: pw.Float(actionTimeout)})
	return text, mapError(err)
}

func (e *Element) ScrollIntoView() error {
	return mapError(e.loc.ScrollIntoViewIfNeeded(pw.LocatorScrollIntoViewIfNeededOptions{Timeout: pw.Float(actionTimeout)}))
}

func (e *Element) Clear() error {
	return mapError(e.loc.Clear(pw.LocatorClearOptions{Timeout: pw.Float(actionTimeout)}))
}

func (e *Element) Fill(text string) error {
	return mapError(e.loc.Fill(text, pw.LocatorFillOptions{Timeout: pw.Float(actionTimeout)}))
}

func (e *Element) Click() error {
	return mapError(e.loc.Click(pw.LocatorClickOptions{Timeout: pw.Float(actionTimeout)}))
}

// ForceClick skips actionability checks, then falls back to a DOM click.
func (e *Element) ForceClick() error {
	err := e.loc.Click(pw.LocatorClickOptions{Force: pw.Bool(true), Timeout: pw.Float(actionTimeout)})
	if err == nil {
		return nil
	}
	if _, jsErr := e.loc.Evaluate("el => el.click()", nil); jsErr != nil {
		return mapError(errors.Join(err, jsErr))
	}
	return nil
}

// mapError translates driver faults into the core taxonomy.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pw.ErrTimeout) {
		return core.ErrTimeout.WithCause(err)
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "not attached to the DOM"), strings.Contains(msg, "Element is detached"):
		return core.ErrStaleElement.WithCause(err)
	case strings.Contains(msg, "not visible"), strings.Contains(msg, "not enabled"),
		strings.Contains(msg, "intercepts pointer events"), strings.Contains(msg, "outside of the viewport"):
		return core.ErrNotInteractable.WithCause(err)
	}
	return err
}

// remainingMS is the time left before ctx's deadline, or fallback when ctx
// has none.
func remainingMS(ctx context.Context, fallback float64) float64 {
	deadline, ok := ctx.Deadline()
	if !ok {
		return fallback
	}
	if left := float64(time.Until(deadline).Milliseconds()); left >= 1 {
		return left
	}
	return 1
}
