package flow

import (
	"fmt"
	"time"
)

// ActionKind is the kind of action a step performs on its target.
type ActionKind string

// Action kinds.
const (
	ActionType           ActionKind = "type"
	ActionClick          ActionKind = "click"
	ActionScrollIntoView ActionKind = "scroll_into_view"
	ActionWaitStable     ActionKind = "wait_stable"
)

// IsValid returns true for a known action kind.
func (k ActionKind) IsValid() bool {
	switch k {
	case ActionType, ActionClick, ActionScrollIntoView, ActionWaitStable:
		return true
	}
	return false
}

// NeedsTarget returns true if the action operates on an element.
func (k ActionKind) NeedsTarget() bool {
	return k != ActionWaitStable
}

// Mutating returns true if the action changes page state.
func (k ActionKind) Mutating() bool {
	return k == ActionType || k == ActionClick
}

// Action is one logical action with its payload.
type Action struct {
	Kind     ActionKind
	Text     string        // For type
	Duration time.Duration // For wait_stable
}

// Type returns an action typing text into the element.
func Type(text string) Action { return Action{Kind: ActionType, Text: text} }

// Click returns a click action.
func Click() Action { return Action{Kind: ActionClick} }

// ScrollIntoView returns a scroll-into-view action.
func ScrollIntoView() Action { return Action{Kind: ActionScrollIntoView} }

// WaitStable returns an action that waits for the page to settle.
func WaitStable(d time.Duration) Action { return Action{Kind: ActionWaitStable, Duration: d} }

// Describe returns a human-readable description.
func (a Action) Describe() string {
	switch a.Kind {
	case ActionType:
		return fmt.Sprintf("type (%d chars)", len(a.Text))
	case ActionWaitStable:
		return fmt.Sprintf("wait_stable %v", a.Duration)
	default:
		return string(a.Kind)
	}
}

// Step is a post-login step: an action against a target.
// Post-login steps are best-effort unless Required is set.
type Step struct {
	Name     string
	Action   Action
	Target   *Target // nil for wait_stable
	WaitFor  *Target // Optional target that must appear after the action
	Required bool
}

// Describe returns a human-readable description.
func (s Step) Describe() string {
	if s.Name != "" {
		return s.Name
	}
	if s.Target != nil {
		return string(s.Action.Kind) + " " + s.Target.Name()
	}
	return s.Action.Describe()
}

// Validate checks the step is executable.
func (s Step) Validate() error {
	if !s.Action.Kind.IsValid() {
		return fmt.Errorf("step %q: unknown action %q", s.Describe(), s.Action.Kind)
	}
	if s.Action.Kind.NeedsTarget() && s.Target == nil {
		return fmt.Errorf("step %q: action %s needs a target", s.Describe(), s.Action.Kind)
	}
	if s.Action.Kind == ActionWaitStable && s.Action.Duration <= 0 {
		return fmt.Errorf("step %q: wait_stable needs a positive duration", s.Describe())
	}
	return nil
}
