package flow

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrNoCandidates is returned when a target is built without locators.
var ErrNoCandidates = errors.New("target needs at least one locator candidate")

// Target is a named UI role ("username field", "submit control") mapped to
// an ordered list of locator candidates. Candidates are tried in order and
// the first match wins.
type Target struct {
	name       string
	candidates []Locator
	timeout    time.Duration
}

// NewTarget creates a Target. At least one candidate is required.
// A zero timeout means "use the caller's default".
func NewTarget(name string, timeout time.Duration, candidates ...Locator) (*Target, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("target %q: %w", name, ErrNoCandidates)
	}
	for i, c := range candidates {
		if c.IsZero() {
			return nil, fmt.Errorf("target %q: candidate %d is empty", name, i)
		}
	}
	if timeout < 0 {
		return nil, fmt.Errorf("target %q: negative timeout", name)
	}
	cands := make([]Locator, len(candidates))
	copy(cands, candidates)
	return &Target{name: name, candidates: cands, timeout: timeout}, nil
}

// MustTarget is like NewTarget but panics on error. For static definitions.
func MustTarget(name string, timeout time.Duration, candidates ...Locator) *Target {
	t, err := NewTarget(name, timeout, candidates...)
	if err != nil {
		panic(err)
	}
	return t
}

// Name returns the role name.
func (t *Target) Name() string { return t.name }

// Timeout returns the default timeout, 0 if unset.
func (t *Target) Timeout() time.Duration { return t.timeout }

// Candidates returns a copy of the locator candidates in declaration order.
func (t *Target) Candidates() []Locator {
	out := make([]Locator, len(t.candidates))
	copy(out, t.candidates)
	return out
}

// Len returns the number of candidates.
func (t *Target) Len() int { return len(t.candidates) }

// Describe returns a human-readable description.
func (t *Target) Describe() string {
	parts := make([]string, len(t.candidates))
	for i, c := range t.candidates {
		parts[i] = c.String()
	}
	return t.name + " [" + strings.Join(parts, " | ") + "]"
}

// WithName returns a copy of the target under a different name.
func (t *Target) WithName(name string) *Target {
	return &Target{name: name, candidates: t.Candidates(), timeout: t.timeout}
}

// targetRaw is the mapping form of a target in YAML.
type targetRaw struct {
	Name       string    `yaml:"name"`
	Timeout    string    `yaml:"timeout"`
	Candidates []Locator `yaml:"candidates"`
}

// UnmarshalYAML accepts a single locator string, a list of locator strings
// or a mapping with name, timeout and candidates.
func (t *Target) UnmarshalYAML(node *yaml.Node) error {
	var raw targetRaw
	switch node.Kind {
	case yaml.ScalarNode:
		var l Locator
		if err := node.Decode(&l); err != nil {
			return err
		}
		raw.Candidates = []Locator{l}
	case yaml.SequenceNode:
		if err := node.Decode(&raw.Candidates); err != nil {
			return err
		}
	case yaml.MappingNode:
		if err := node.Decode(&raw); err != nil {
			return err
		}
	default:
		return fmt.Errorf("line %d: invalid target", node.Line)
	}

	var timeout time.Duration
	if raw.Timeout != "" {
		d, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return fmt.Errorf("line %d: invalid timeout %q: %w", node.Line, raw.Timeout, err)
		}
		timeout = d
	}

	built, err := NewTarget(raw.Name, timeout, raw.Candidates...)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*t = *built
	return nil
}
