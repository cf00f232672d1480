// Package flow handles parsing and representation of portal definitions:
// locators, logical targets and post-login steps.
package flow

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Strategy is the element lookup strategy of a Locator.
type Strategy string

// Strategy values.
const (
	StrategyID        Strategy = "id"    // Element id attribute
	StrategyAttribute Strategy = "attr"  // Attribute match: name=value
	StrategyText      Strategy = "text"  // Visible text match
	StrategyCSS       Strategy = "css"   // Structural path as CSS selector
	StrategyXPath     Strategy = "xpath" // Structural path as XPath
)

// Locator is a strategy plus a pattern. Immutable once constructed.
type Locator struct {
	strategy Strategy
	pattern  string
}

// NewLocator creates a Locator, validating the strategy and pattern.
func NewLocator(strategy Strategy, pattern string) (Locator, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return Locator{}, fmt.Errorf("locator %q: empty pattern", strategy)
	}
	switch strategy {
	case StrategyID, StrategyText, StrategyCSS, StrategyXPath:
	case StrategyAttribute:
		if name, _, ok := strings.Cut(pattern, "="); !ok || strings.TrimSpace(name) == "" {
			return Locator{}, fmt.Errorf("attr locator %q: expected name=value", pattern)
		}
	default:
		return Locator{}, fmt.Errorf("unknown locator strategy %q", strategy)
	}
	return Locator{strategy: strategy, pattern: pattern}, nil
}

// MustLocator is like NewLocator but panics on error. For static definitions.
func MustLocator(strategy Strategy, pattern string) Locator {
	l, err := NewLocator(strategy, pattern)
	if err != nil {
		panic(err)
	}
	return l
}

// ParseLocator parses "strategy=pattern", e.g. "id=username" or
// "xpath=//button[contains(text(),'Sign In')]".
func ParseLocator(s string) (Locator, error) {
	strategy, pattern, ok := strings.Cut(strings.TrimSpace(s), "=")
	if !ok {
		return Locator{}, fmt.Errorf("locator %q: expected strategy=pattern", s)
	}
	return NewLocator(Strategy(strings.ToLower(strings.TrimSpace(strategy))), pattern)
}

// Strategy returns the lookup strategy.
func (l Locator) Strategy() Strategy { return l.strategy }

// Pattern returns the raw pattern.
func (l Locator) Pattern() string { return l.pattern }

// IsZero returns true for the zero Locator.
func (l Locator) IsZero() bool { return l.strategy == "" }

// String returns the "strategy=pattern" form accepted by ParseLocator.
func (l Locator) String() string {
	return string(l.strategy) + "=" + l.pattern
}

// Selector returns the selector string understood by the browser driver.
func (l Locator) Selector() string {
	switch l.strategy {
	case StrategyID:
		return `css=[id="` + escapeQuotes(l.pattern) + `"]`
	case StrategyAttribute:
		name, value, _ := strings.Cut(l.pattern, "=")
		return `css=[` + strings.TrimSpace(name) + `="` + escapeQuotes(strings.TrimSpace(value)) + `"]`
	case StrategyText:
		return "text=" + l.pattern
	case StrategyCSS:
		return "css=" + l.pattern
	case StrategyXPath:
		return "xpath=" + l.pattern
	default:
		return l.pattern
	}
}

// UnmarshalYAML parses a Locator from its scalar "strategy=pattern" form.
func (l *Locator) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: locator must be a string like id=username", node.Line)
	}
	parsed, err := ParseLocator(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*l = parsed
	return nil
}

// MarshalYAML writes the scalar form.
func (l Locator) MarshalYAML() (interface{}, error) {
	return l.String(), nil
}

func escapeQuotes(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}
