package executor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/asimalsarhani/portal-runner/pkg/config"
	"github.com/asimalsarhani/portal-runner/pkg/core"
	"github.com/asimalsarhani/portal-runner/pkg/driver/mock"
	"github.com/asimalsarhani/portal-runner/pkg/evidence"
	"github.com/asimalsarhani/portal-runner/pkg/flow"
	"github.com/asimalsarhani/portal-runner/pkg/notify"
	"github.com/asimalsarhani/portal-runner/pkg/report"
)

// recordingNotifier is a notify.Notifier that remembers every call.
type recordingNotifier struct {
	mu       sync.Mutex
	err      error
	outcomes []notify.Outcome
	bundles  []core.EvidenceBundle
}

func (n *recordingNotifier) Notify(_ context.Context, b core.EvidenceBundle, o notify.Outcome) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.outcomes = append(n.outcomes, o)
	n.bundles = append(n.bundles, b)
	return n.err
}

func (n *recordingNotifier) calls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.outcomes)
}

func testPortal(post ...flow.Step) *flow.Portal {
	return &flow.Portal{
		Name:     "test-portal",
		URL:      "https://portal.test/login",
		Username: flow.MustTarget("username field", 0, flow.MustLocator(flow.StrategyID, "username")),
		Password: flow.MustTarget("password field", 0, flow.MustLocator(flow.StrategyID, "password")),
		Submit: flow.MustTarget("submit control", 0,
			flow.MustLocator(flow.StrategyID, "signIn"),
			flow.MustLocator(flow.StrategyCSS, "button.submit"),
		),
		Success:     flow.MustTarget("success marker", 0, flow.MustLocator(flow.StrategyCSS, ".main")),
		Failure:     flow.MustTarget("error marker", 0, flow.MustLocator(flow.StrategyCSS, ".login-error")),
		PostActions: post,
	}
}

func testConfig(dir string) config.RunConfig {
	cfg := config.Default()
	cfg.URL = "https://portal.test/login"
	cfg.Username = "alice"
	cfg.Password = "s3cret"
	cfg.MaxAttempts = 3
	cfg.RetryDelay = 10 * time.Millisecond
	cfg.Timeouts = config.Timeouts{
		Page:         500 * time.Millisecond,
		Element:      300 * time.Millisecond,
		Verify:       3 * time.Second,
		PostAction:   200 * time.Millisecond,
		PollInterval: 10 * time.Millisecond,
	}
	cfg.OutputDir = dir
	cfg.Driver = config.DriverMock
	return cfg
}

// loginPage returns a page with the login form present on every navigation.
func loginPage() *mock.Page {
	return mock.NewPage().
		Set("id=username", mock.Node{}).
		Set("id=password", mock.Node{}).
		Set("id=signIn", mock.Node{})
}

type harness struct {
	page     *mock.Page
	prov     *mock.Provisioner
	notifier *recordingNotifier
	dir      string
}

func newHarness(t *testing.T, page *mock.Page) *harness {
	t.Helper()
	return &harness{
		page:     page,
		prov:     mock.NewProvisioner(page),
		notifier: &recordingNotifier{},
		dir:      t.TempDir(),
	}
}

func (h *harness) controller(t *testing.T, cfg config.RunConfig, portal *flow.Portal) *Controller {
	t.Helper()
	sink, err := evidence.NewSink(h.dir)
	if err != nil {
		t.Fatalf("NewSink() error = %v", err)
	}
	return New(h.prov, sink, h.notifier, cfg, portal)
}

func TestRun_ValidLogin(t *testing.T) {
	page := loginPage().Set("css=.main", mock.Node{Trigger: "id=signIn", AppearAfter: 1500 * time.Millisecond})
	h := newHarness(t, page)
	ctrl := h.controller(t, testConfig(h.dir), testPortal())

	result, err := ctrl.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.State != core.StateSucceeded || result.ExitCode() != 0 {
		t.Fatalf("state = %s, exit = %d", result.State, result.ExitCode())
	}
	if len(result.Attempts) != 1 || !result.Attempts[0].Succeeded() {
		t.Fatalf("attempts = %+v", result.Attempts)
	}
	if got := page.Filled("id=username"); got != "alice" {
		t.Errorf("username filled = %q", got)
	}
	if got := page.Filled("id=password"); got != "s3cret" {
		t.Errorf("password filled = %q", got)
	}

	shots := result.Evidence.Screenshots()
	if len(shots) != 1 {
		t.Fatalf("screenshots = %v", shots)
	}
	if _, err := os.Stat(shots[0]); err != nil {
		t.Errorf("screenshot not written: %v", err)
	}

	if h.notifier.calls() != 1 {
		t.Fatalf("notifications = %d, want 1", h.notifier.calls())
	}
	if o := h.notifier.outcomes[0]; !o.Succeeded || o.Status() != "SUCCESS" || o.Attempts != 1 {
		t.Errorf("outcome = %+v", o)
	}
	if h.prov.Opened() != 1 || h.prov.Closed() != 1 {
		t.Errorf("sessions opened/closed = %d/%d", h.prov.Opened(), h.prov.Closed())
	}
	if cfgs := h.prov.Configs(); cfgs[0].UserAgent != config.DefaultUserAgent || cfgs[0].Width != 1920 {
		t.Errorf("session config = %+v", cfgs[0])
	}

	rep, err := report.Read(h.dir)
	if err != nil {
		t.Fatalf("report.Read() error = %v", err)
	}
	if !rep.Passed() || rep.RunID != result.RunID || !rep.Notified {
		t.Errorf("report = %+v", rep)
	}
}

func TestRun_InvalidCredentials(t *testing.T) {
	page := loginPage().Set("css=.login-error", mock.Node{
		Text:        "  Invalid credentials ",
		Trigger:     "id=signIn",
		AppearAfter: time.Second,
	})
	h := newHarness(t, page)
	ctrl := h.controller(t, testConfig(h.dir), testPortal())

	result, err := ctrl.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.State != core.StateFailed || result.ExitCode() != 1 {
		t.Fatalf("state = %s, exit = %d", result.State, result.ExitCode())
	}
	if len(result.Attempts) != 3 {
		t.Fatalf("attempts = %d, want 3", len(result.Attempts))
	}
	for _, a := range result.Attempts {
		if a.Outcome == nil || a.Outcome.Kind != core.OutcomeErrorDetected {
			t.Errorf("attempt %d outcome = %+v", a.Index, a.Outcome)
		}
		if _, err := os.Stat(a.Snapshot); err != nil {
			t.Errorf("attempt %d screenshot missing: %v", a.Index, err)
		}
		if !strings.Contains(filepath.Base(a.Snapshot), "error_detected") {
			t.Errorf("attempt %d screenshot name = %s", a.Index, a.Snapshot)
		}
	}
	if got := len(result.Evidence.Screenshots()); got != 3 {
		t.Errorf("bundle screenshots = %d, want 3", got)
	}

	if h.notifier.calls() != 1 {
		t.Fatalf("notifications = %d, want 1", h.notifier.calls())
	}
	o := h.notifier.outcomes[0]
	if o.Succeeded || o.ErrorText != "Invalid credentials" {
		t.Errorf("outcome = %+v", o)
	}
	if !strings.Contains(h.notifier.bundles[0].Summary(), "Invalid credentials") {
		t.Errorf("summary = %q", h.notifier.bundles[0].Summary())
	}
	if page.CookieClears() != 2 {
		t.Errorf("cookie clears = %d, want 2", page.CookieClears())
	}
}

func TestRun_RetryBudget(t *testing.T) {
	tests := []struct {
		name        string
		maxAttempts int
		want        core.FlowState
	}{
		{"enough attempts", 3, core.StateSucceeded},
		{"too few attempts", 2, core.StateFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := loginPage().Set("css=.main", mock.Node{
				Trigger:      "id=signIn",
				OnNavigation: func(n int) bool { return n >= 3 },
			})
			h := newHarness(t, page)
			cfg := testConfig(h.dir)
			cfg.MaxAttempts = tt.maxAttempts
			cfg.Timeouts.Verify = 200 * time.Millisecond

			result, err := h.controller(t, cfg, testPortal()).Run(context.Background())
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if result.State != tt.want {
				t.Fatalf("state = %s, want %s", result.State, tt.want)
			}
			if len(result.Attempts) != tt.maxAttempts {
				t.Fatalf("attempts = %d, want %d", len(result.Attempts), tt.maxAttempts)
			}
			for i, a := range result.Attempts {
				if a.Index != i+1 {
					t.Errorf("attempt index = %d, want %d", a.Index, i+1)
				}
			}
			first := result.Attempts[0]
			if first.Outcome == nil || first.Outcome.Kind != core.OutcomeTimedOut {
				t.Errorf("first outcome = %+v", first.Outcome)
			}
			if page.Navigations() != tt.maxAttempts {
				t.Errorf("navigations = %d", page.Navigations())
			}
			if h.notifier.calls() != 1 {
				t.Errorf("notifications = %d, want 1", h.notifier.calls())
			}
		})
	}
}

func TestRun_NavigationFailureIsRetried(t *testing.T) {
	page := loginPage().Set("css=.main", mock.Node{Trigger: "id=signIn"})
	page.FailNavigations = 1
	h := newHarness(t, page)

	result, err := h.controller(t, testConfig(h.dir), testPortal()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.State != core.StateSucceeded || len(result.Attempts) != 2 {
		t.Fatalf("state = %s, attempts = %d", result.State, len(result.Attempts))
	}
	first := result.Attempts[0]
	if first.Failed == nil || first.Failed.Action != "navigate" || first.Reached != core.StateNavigating {
		t.Errorf("first attempt = %+v", first)
	}
}

func TestRun_MissingForm(t *testing.T) {
	page := mock.NewPage()
	h := newHarness(t, page)
	cfg := testConfig(h.dir)
	cfg.MaxAttempts = 1

	result, err := h.controller(t, cfg, testPortal()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	a := result.Attempts[0]
	if a.Failed == nil || a.Failed.Status != core.StatusNotFound || a.Failed.Target != "username field" {
		t.Fatalf("failed step = %+v", a.Failed)
	}
	if !strings.Contains(filepath.Base(a.Snapshot), "not_found") {
		t.Errorf("snapshot = %s", a.Snapshot)
	}
	if a.Failed.Snapshot != a.Snapshot {
		t.Errorf("failed step snapshot = %q, want %q", a.Failed.Snapshot, a.Snapshot)
	}
	if a.Snippet == "" {
		t.Error("expected HTML snippet")
	}
}

func TestRun_SubmitFallsBackToSecondCandidate(t *testing.T) {
	page := mock.NewPage().
		Set("id=username", mock.Node{}).
		Set("id=password", mock.Node{}).
		Set("css=button.submit", mock.Node{}).
		Set("css=.main", mock.Node{Trigger: "css=button.submit"})
	h := newHarness(t, page)

	result, err := h.controller(t, testConfig(h.dir), testPortal()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !result.Succeeded() {
		t.Fatalf("state = %s: %s", result.State, result.ErrorText)
	}
	if clicks := page.Clicks(); len(clicks) != 1 || clicks[0] != "css=button.submit" {
		t.Errorf("clicks = %v", clicks)
	}
}

func TestRun_SessionStartFails(t *testing.T) {
	h := newHarness(t, loginPage())
	h.prov.OpenErr = errors.New("browser binary missing")

	result, err := h.controller(t, testConfig(h.dir), testPortal()).Run(context.Background())
	if !errors.Is(err, core.ErrSessionStart) {
		t.Fatalf("expected ErrSessionStart, got %v", err)
	}
	if result == nil || result.State != core.StateFailed || len(result.Attempts) != 0 {
		t.Errorf("result = %+v", result)
	}
	if h.notifier.calls() != 0 {
		t.Errorf("notifications = %d, want 0", h.notifier.calls())
	}
}

func TestRun_PostActionsAreBestEffort(t *testing.T) {
	page := loginPage().
		Set("css=.main", mock.Node{Trigger: "id=signIn"}).
		Set("id=careers", mock.Node{})
	post := []flow.Step{
		{Name: "click save", Action: flow.Click(), Target: flow.MustTarget("save control", 0, flow.MustLocator(flow.StrategyID, "save"))},
		{Name: "settle", Action: flow.WaitStable(10 * time.Millisecond)},
		{Name: "open careers", Action: flow.Click(), Target: flow.MustTarget("careers link", 0, flow.MustLocator(flow.StrategyID, "careers"))},
	}
	h := newHarness(t, page)

	result, err := h.controller(t, testConfig(h.dir), testPortal(post...)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !result.Succeeded() {
		t.Fatalf("state = %s", result.State)
	}
	if len(result.PostActions) != 3 {
		t.Fatalf("post actions = %+v", result.PostActions)
	}
	if got := result.PostActions[0].Result.Status; got != core.StatusNotFound {
		t.Errorf("save status = %s", got)
	}
	for _, p := range result.PostActions[1:] {
		if !p.Result.Success() {
			t.Errorf("%s: %s", p.Name, p.Result.Message)
		}
	}
	if w := h.notifier.outcomes[0].Warnings; len(w) != 1 || !strings.HasPrefix(w[0], "click save") {
		t.Errorf("warnings = %v", w)
	}
}

func TestRun_RequiredPostActionFails(t *testing.T) {
	page := loginPage().Set("css=.main", mock.Node{Trigger: "id=signIn"})
	post := []flow.Step{
		{Name: "accept terms", Required: true, Action: flow.Click(), Target: flow.MustTarget("terms", 0, flow.MustLocator(flow.StrategyID, "terms"))},
		{Name: "never runs", Action: flow.WaitStable(10 * time.Millisecond)},
	}
	h := newHarness(t, page)

	result, err := h.controller(t, testConfig(h.dir), testPortal(post...)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.State != core.StateFailed {
		t.Fatalf("state = %s", result.State)
	}
	if len(result.PostActions) != 1 {
		t.Errorf("post actions = %d, want 1", len(result.PostActions))
	}
	if !strings.Contains(result.ErrorText, "accept terms") {
		t.Errorf("error text = %q", result.ErrorText)
	}
	if len(result.Attempts) != 1 {
		t.Errorf("post-login failure must not consume a retry: attempts = %d", len(result.Attempts))
	}
}

func TestRun_WaitForTarget(t *testing.T) {
	page := loginPage().
		Set("css=.main", mock.Node{Trigger: "id=signIn"}).
		Set("id=careers", mock.Node{})
	post := []flow.Step{{
		Name:    "open careers",
		Action:  flow.Click(),
		Target:  flow.MustTarget("careers link", 0, flow.MustLocator(flow.StrategyID, "careers")),
		WaitFor: flow.MustTarget("careers page", 50*time.Millisecond, flow.MustLocator(flow.StrategyCSS, ".careers")),
	}}
	h := newHarness(t, page)

	result, err := h.controller(t, testConfig(h.dir), testPortal(post...)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := result.PostActions[0].Result.Status; got != core.StatusTimeout {
		t.Errorf("status = %s, want timeout", got)
	}
	if !result.Succeeded() {
		t.Errorf("state = %s", result.State)
	}
}

func TestRun_WaitForHiddenDocumentMarker(t *testing.T) {
	// A <title> is in the DOM but never rendered
	page := loginPage().
		Set("css=.main", mock.Node{Trigger: "id=signIn"}).
		Set("id=careers", mock.Node{}).
		Set("xpath=//title[contains(., 'Career')]", mock.Node{Hidden: true, Trigger: "id=careers", AppearAfter: 20 * time.Millisecond})
	post := []flow.Step{{
		Name:     "open careers",
		Action:   flow.Click(),
		Target:   flow.MustTarget("careers link", 0, flow.MustLocator(flow.StrategyID, "careers")),
		WaitFor:  flow.MustTarget("careers page", time.Second, flow.MustLocator(flow.StrategyXPath, "//title[contains(., 'Career')]")),
		Required: true,
	}}
	h := newHarness(t, page)

	result, err := h.controller(t, testConfig(h.dir), testPortal(post...)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := result.PostActions[0].Result.Status; got != core.StatusSuccess {
		t.Errorf("status = %s (%s), want success", got, result.PostActions[0].Result.Message)
	}
	if !result.Succeeded() {
		t.Errorf("state = %s", result.State)
	}
}

func framedPortal() *flow.Portal {
	p := testPortal()
	p.Frame = flow.MustTarget("login frame", 100*time.Millisecond, flow.MustLocator(flow.StrategyID, "frameID"))
	return p
}

func TestRun_LoginFormInsideFrame(t *testing.T) {
	const frame = "id=frameID"
	page := mock.NewPage().
		Set(frame, mock.Node{}).
		SetIn(frame, "id=username", mock.Node{}).
		SetIn(frame, "id=password", mock.Node{}).
		SetIn(frame, "id=signIn", mock.Node{}).
		Set("css=.main", mock.Node{Trigger: mock.InFrame(frame, "id=signIn")})
	h := newHarness(t, page)

	result, err := h.controller(t, testConfig(h.dir), framedPortal()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !result.Succeeded() {
		t.Fatalf("state = %s: %s", result.State, result.ErrorText)
	}
	if got := page.Filled(mock.InFrame(frame, "id=username")); got != "alice" {
		t.Errorf("username in frame = %q", got)
	}
	if got := page.Filled("id=username"); got != "" {
		t.Errorf("top-level username should be untouched, got %q", got)
	}
}

func TestRun_FrameErrorMarker(t *testing.T) {
	const frame = "id=frameID"
	page := mock.NewPage().
		Set(frame, mock.Node{}).
		SetIn(frame, "id=username", mock.Node{}).
		SetIn(frame, "id=password", mock.Node{}).
		SetIn(frame, "id=signIn", mock.Node{}).
		SetIn(frame, "css=.login-error", mock.Node{Text: "Invalid credentials", Trigger: mock.InFrame(frame, "id=signIn")})
	h := newHarness(t, page)
	cfg := testConfig(h.dir)
	cfg.MaxAttempts = 1

	result, err := h.controller(t, cfg, framedPortal()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Succeeded() {
		t.Fatal("expected failure")
	}
	o := result.Attempts[0].Outcome
	if o == nil || o.Kind != core.OutcomeErrorDetected || o.Text != "Invalid credentials" {
		t.Errorf("outcome = %+v", o)
	}
}

func TestRun_MissingFrameFallsBackToMainDocument(t *testing.T) {
	page := loginPage().Set("css=.main", mock.Node{Trigger: "id=signIn"})
	h := newHarness(t, page)

	result, err := h.controller(t, testConfig(h.dir), framedPortal()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !result.Succeeded() {
		t.Fatalf("state = %s: %s", result.State, result.ErrorText)
	}
	if got := page.Filled("id=username"); got != "alice" {
		t.Errorf("username = %q", got)
	}
}

func TestRun_StateTransitions(t *testing.T) {
	page := loginPage().Set("css=.main", mock.Node{Trigger: "id=signIn"})
	page.FailNavigations = 1
	h := newHarness(t, page)
	ctrl := h.controller(t, testConfig(h.dir), testPortal())

	var seen []string
	var retries []bool
	ctrl.Hooks = Hooks{
		OnState:      func(_, to core.FlowState) { seen = append(seen, to.String()) },
		OnAttemptEnd: func(_ core.AttemptRecord, willRetry bool) { retries = append(retries, willRetry) },
	}

	if _, err := ctrl.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := "navigating init navigating authenticating awaiting_verification post_action succeeded"
	if got := strings.Join(seen, " "); got != want {
		t.Errorf("transitions = %q\nwant %q", got, want)
	}
	if len(retries) != 2 || !retries[0] || retries[1] {
		t.Errorf("retries = %v", retries)
	}
	if ctrl.State() != core.StateSucceeded {
		t.Errorf("State() = %s", ctrl.State())
	}
}

func TestRun_OnlyOnce(t *testing.T) {
	h := newHarness(t, loginPage().Set("css=.main", mock.Node{Trigger: "id=signIn"}))
	ctrl := h.controller(t, testConfig(h.dir), testPortal())
	if _, err := ctrl.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := ctrl.Run(context.Background()); !errors.Is(err, ErrAlreadyRun) {
		t.Errorf("second Run() error = %v", err)
	}
}

func TestRun_NotifyFailureIsRecorded(t *testing.T) {
	h := newHarness(t, loginPage().Set("css=.main", mock.Node{Trigger: "id=signIn"}))
	h.notifier.err = errors.New("smtp unreachable")

	result, err := h.controller(t, testConfig(h.dir), testPortal()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !result.Succeeded() || result.Notified || result.NotifyError != "smtp unreachable" {
		t.Errorf("result = %+v", result)
	}
}

func TestRun_CancelStopsRetrying(t *testing.T) {
	h := newHarness(t, loginPage())
	cfg := testConfig(h.dir)
	cfg.RetryDelay = time.Minute
	cfg.Timeouts.Page = 50 * time.Millisecond
	cfg.Timeouts.Verify = 100 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	ctrl := h.controller(t, cfg, testPortal())
	ctrl.Hooks.OnAttemptEnd = func(core.AttemptRecord, bool) { cancel() }

	start := time.Now()
	result, err := ctrl.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if time.Since(start) > 10*time.Second {
		t.Error("cancel did not interrupt the retry delay")
	}
	if result.State != core.StateFailed || len(result.Attempts) != 1 {
		t.Errorf("state = %s, attempts = %d", result.State, len(result.Attempts))
	}
}

func TestFailureText(t *testing.T) {
	tests := []struct {
		name   string
		result RunResult
		want   string
	}{
		{
			name:   "outcome text",
			result: RunResult{Attempts: []core.AttemptRecord{{Outcome: &core.Outcome{Kind: core.OutcomeErrorDetected, Text: "Locked"}}}},
			want:   "Locked",
		},
		{
			name:   "timed out",
			result: RunResult{Attempts: []core.AttemptRecord{{Outcome: &core.Outcome{Kind: core.OutcomeTimedOut}}}},
			want:   "timed_out",
		},
		{
			name: "required post action",
			result: RunResult{PostActions: []core.PostActionReport{
				{Name: "save", Required: true, Result: core.FailureResult(core.StatusNotFound, nil, "gone")},
			}},
			want: "save: gone",
		},
		{name: "nothing", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := failureText(&tt.result); got != tt.want {
				t.Errorf("failureText() = %q, want %q", got, tt.want)
			}
		})
	}
}
