// Package validator checks portal definition files before a run.
// It parses every file upfront and reports problems the parser accepts but
// that would make a run fail or misclassify its outcome.
package validator

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/asimalsarhani/portal-runner/pkg/flow"
)

// ValidationError represents a validation error with context.
type ValidationError struct {
	File    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

// Result contains the validation result.
type Result struct {
	// Files is the list of valid portal files, in directory order.
	Files []string
	// Portals holds the parsed portal of each entry in Files.
	Portals []*flow.Portal
	// Errors contains all validation errors found.
	Errors []error
	// Warnings are problems that do not block a run.
	Warnings []string
}

// IsValid returns true if there are no validation errors.
func (r *Result) IsValid() bool {
	return len(r.Errors) == 0
}

// Validator validates portal files.
type Validator struct {
	requireURL bool
}

// New creates a new Validator. With requireURL set, every portal must carry
// its own URL.
func New(requireURL bool) *Validator {
	return &Validator{requireURL: requireURL}
}

// Validate validates a file or every .yaml/.yml file under a directory.
func (v *Validator) Validate(path string) *Result {
	result := &Result{}

	info, err := os.Stat(path)
	if err != nil {
		result.Errors = append(result.Errors, &ValidationError{
			File:    path,
			Message: fmt.Sprintf("cannot access: %v", err),
		})
		return result
	}

	var files []string
	if info.IsDir() {
		files, err = collectPortalFiles(path)
		if err != nil {
			result.Errors = append(result.Errors, &ValidationError{
				File:    path,
				Message: fmt.Sprintf("failed to scan directory: %v", err),
			})
			return result
		}
		if len(files) == 0 {
			result.Errors = append(result.Errors, &ValidationError{File: path, Message: "no portal files found"})
			return result
		}
	} else {
		files = []string{path}
	}

	names := make(map[string]string)
	for _, file := range files {
		p := v.validateFile(file, result)
		if p == nil {
			continue
		}
		if first, dup := names[p.Name]; dup && p.Name != "" {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: portal name %q already used by %s", file, p.Name, first))
		} else {
			names[p.Name] = file
		}
	}
	return result
}

// ValidatePortal checks an already parsed portal and returns its errors and
// warnings.
func (v *Validator) ValidatePortal(p *flow.Portal) (errs []string, warnings []string) {
	if err := p.Validate(); err != nil {
		return []string{err.Error()}, nil
	}

	if v.requireURL && p.URL == "" {
		errs = append(errs, "url is required")
	}
	if p.URL != "" {
		if u, err := url.Parse(p.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Sprintf("invalid url %q", p.URL))
		}
	}

	// The verification race cannot tell the markers apart if they share a locator
	if shared := overlap(p.Success, p.Failure); shared != "" {
		errs = append(errs, fmt.Sprintf("success and error markers share locator %s", shared))
	}
	for _, pair := range [][2]*flow.Target{{p.Username, p.Password}, {p.Username, p.Submit}, {p.Password, p.Submit}} {
		if shared := overlap(pair[0], pair[1]); shared != "" {
			errs = append(errs, fmt.Sprintf("%s and %s share locator %s", pair[0].Name(), pair[1].Name(), shared))
		}
	}

	if p.Name == "" {
		warnings = append(warnings, "portal has no name")
	}
	if len(p.Keywords) == 0 {
		warnings = append(warnings, "no negative keywords: error pages are only detected through the error marker")
	}
	seen := make(map[string]bool)
	for i, s := range p.PostActions {
		name := s.Describe()
		if seen[name] {
			warnings = append(warnings, fmt.Sprintf("post action %d: duplicate name %q", i+1, name))
		}
		seen[name] = true
		if s.Action.Kind == flow.ActionType && s.Action.Text == "" {
			warnings = append(warnings, fmt.Sprintf("post action %q types empty text", name))
		}
	}
	return errs, warnings
}

func (v *Validator) validateFile(file string, result *Result) *flow.Portal {
	p, err := flow.ParsePortalFile(file)
	if err != nil {
		result.Errors = append(result.Errors, &ValidationError{
			File:    file,
			Message: fmt.Sprintf("parse error: %v", err),
		})
		return nil
	}

	errs, warnings := v.ValidatePortal(p)
	for _, w := range warnings {
		result.Warnings = append(result.Warnings, file+": "+w)
	}
	if len(errs) > 0 {
		for _, msg := range errs {
			result.Errors = append(result.Errors, &ValidationError{File: file, Message: msg})
		}
		return nil
	}

	result.Files = append(result.Files, file)
	result.Portals = append(result.Portals, p)
	return p
}

// collectPortalFiles finds all .yaml/.yml files in a directory.
func collectPortalFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, path)
		}
		return nil
	})

	return files, err
}

// overlap returns the first locator both targets resolve through.
func overlap(a, b *flow.Target) string {
	if a == nil || b == nil {
		return ""
	}
	set := make(map[string]bool)
	for _, l := range a.Candidates() {
		set[l.String()] = true
	}
	for _, l := range b.Candidates() {
		if set[l.String()] {
			return l.String()
		}
	}
	return ""
}
