package flow

import (
	"fmt"
	"time"
)

// Portal describes one login portal: the targets of the login form, the
// success and error markers of the verification race, and post-login steps.
// The markers are site-specific and always supplied from outside the engine.
type Portal struct {
	SourcePath string
	Name       string
	URL        string // Used when the run configuration has no URL

	// Frame, when set, is the iframe holding the login form. A page without
	// it is used as is.
	Frame *Target

	Username *Target
	Password *Target
	Submit   *Target
	Success  *Target
	Failure  *Target

	// Negative keywords scanned in page text as a secondary error signal
	Keywords []string

	PostActions []Step
}

// Validate checks that the login targets are all present and that every
// post-login step is executable.
func (p *Portal) Validate() error {
	required := []struct {
		role   string
		target *Target
	}{
		{"username", p.Username},
		{"password", p.Password},
		{"submit", p.Submit},
		{"success", p.Success},
		{"error", p.Failure},
	}
	for _, r := range required {
		if r.target == nil {
			return fmt.Errorf("portal %q: missing %s target", p.Name, r.role)
		}
	}
	for i, s := range p.PostActions {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("portal %q: post action %d: %w", p.Name, i+1, err)
		}
	}
	return nil
}

// DefaultKeywords are the negative keywords scanned when a portal sets none.
var DefaultKeywords = []string{"error", "failed"}

// DefaultPortal returns the SAP SuccessFactors career portal definition.
func DefaultPortal() *Portal {
	return &Portal{
		Name:     "sap-successfactors",
		Frame:    MustTarget("login frame", 10*time.Second, MustLocator(StrategyID, "frameID")),
		Username: MustTarget("username field", 90*time.Second, MustLocator(StrategyID, "username")),
		Password: MustTarget("password field", 90*time.Second, MustLocator(StrategyID, "password")),
		Submit: MustTarget("submit control", 90*time.Second,
			MustLocator(StrategyID, "signIn"),
			MustLocator(StrategyXPath, "//button[contains(text(),'Sign In')]"),
		),
		Success:  MustTarget("login success marker", 0, MustLocator(StrategyCSS, ".sap-main-content")),
		Failure:  MustTarget("login error marker", 0, MustLocator(StrategyCSS, ".login-error-class-name")),
		Keywords: DefaultKeywords,
		PostActions: []Step{
			{Name: "settle after login", Action: WaitStable(3 * time.Second)},
			{
				Name:   "click save",
				Action: Click(),
				Target: MustTarget("save control", 30*time.Second,
					MustLocator(StrategyXPath, "//button[normalize-space()='Save' or @aria-label='Save']"),
					MustLocator(StrategyText, "Save"),
				),
			},
			{Name: "settle after save", Action: WaitStable(2 * time.Second)},
			{
				Name:   "open careers site",
				Action: Click(),
				Target: MustTarget("careers site link", 30*time.Second,
					MustLocator(StrategyXPath, "//a[normalize-space()='Careers Site' or @aria-label='Careers Site']"),
				),
				WaitFor: MustTarget("careers page", 90*time.Second, MustLocator(StrategyXPath, "//title[contains(., 'Career')]")),
			},
		},
	}
}
