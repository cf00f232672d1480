package flow

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ParseError represents a parsing error with location info.
type ParseError struct {
	Path    string
	Message string
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// portalRaw mirrors the YAML layout of a portal file.
type portalRaw struct {
	Name     string   `yaml:"name"`
	URL      string   `yaml:"url"`
	Keywords []string `yaml:"keywords"`
	Targets  struct {
		Frame    *Target `yaml:"frame"`
		Username *Target `yaml:"username"`
		Password *Target `yaml:"password"`
		Submit   *Target `yaml:"submit"`
		Success  *Target `yaml:"success"`
		Error    *Target `yaml:"error"`
	} `yaml:"targets"`
	PostActions []stepRaw `yaml:"postActions"`
}

type stepRaw struct {
	Name     string  `yaml:"name"`
	Action   string  `yaml:"action"`
	Target   *Target `yaml:"target"`
	Text     string  `yaml:"text"`
	Duration string  `yaml:"duration"`
	WaitFor  *Target `yaml:"waitFor"`
	Required bool    `yaml:"required"`
}

// ParsePortalFile parses a portal definition file.
func ParsePortalFile(path string) (*Portal, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided portal file
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return ParsePortal(data, path)
}

// ParsePortal parses portal YAML content.
func ParsePortal(data []byte, sourcePath string) (*Portal, error) {
	if strings.TrimSpace(string(data)) == "" {
		return nil, &ParseError{Path: sourcePath, Message: "empty portal file"}
	}

	var raw portalRaw
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ParseError{Path: sourcePath, Message: err.Error()}
	}

	p := &Portal{
		SourcePath: sourcePath,
		Name:       raw.Name,
		URL:        raw.URL,
		Keywords:   raw.Keywords,
		Frame:      named(raw.Targets.Frame, "login frame"),
		Username:   named(raw.Targets.Username, "username field"),
		Password:   named(raw.Targets.Password, "password field"),
		Submit:     named(raw.Targets.Submit, "submit control"),
		Success:    named(raw.Targets.Success, "login success marker"),
		Failure:    named(raw.Targets.Error, "login error marker"),
	}
	if p.Keywords == nil {
		p.Keywords = DefaultKeywords
	}

	for i, rs := range raw.PostActions {
		step, err := rs.toStep()
		if err != nil {
			return nil, &ParseError{Path: sourcePath, Message: fmt.Sprintf("postActions[%d]: %v", i, err)}
		}
		p.PostActions = append(p.PostActions, step)
	}

	if err := p.Validate(); err != nil {
		return nil, &ParseError{Path: sourcePath, Message: err.Error()}
	}
	return p, nil
}

func (rs stepRaw) toStep() (Step, error) {
	kind := ActionKind(strings.ToLower(strings.TrimSpace(rs.Action)))
	if !kind.IsValid() {
		return Step{}, fmt.Errorf("unknown action %q", rs.Action)
	}

	step := Step{
		Name:     rs.Name,
		Action:   Action{Kind: kind, Text: rs.Text},
		Target:   rs.Target,
		WaitFor:  rs.WaitFor,
		Required: rs.Required,
	}
	if rs.Duration != "" {
		d, err := time.ParseDuration(rs.Duration)
		if err != nil {
			return Step{}, fmt.Errorf("invalid duration %q: %w", rs.Duration, err)
		}
		step.Action.Duration = d
	}
	if step.Target != nil && step.Target.Name() == "" {
		step.Target = step.Target.WithName(step.Describe())
	}
	return step, step.Validate()
}

// named fills in the role name when the file left it empty.
func named(t *Target, role string) *Target {
	if t == nil || t.Name() != "" {
		return t
	}
	return t.WithName(role)
}
