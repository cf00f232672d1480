package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"path/filepath"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/asimalsarhani/portal-runner/pkg/core"
	"github.com/asimalsarhani/portal-runner/pkg/logger"
)

// Subject is the subject prefix of result emails.
const Subject = "Portal Automation Result"

// EmailConfig holds the SMTP settings.
type EmailConfig struct {
	Sender    string
	Recipient string
	Secret    string // SMTP password or app password of Sender
	Host      string
	Port      int
	Timeout   time.Duration
}

// Enabled reports whether sender, recipient and secret are all set.
func (c EmailConfig) Enabled() bool {
	return c.Sender != "" && c.Recipient != "" && c.Secret != ""
}

// Email sends results over SMTP with STARTTLS.
type Email struct {
	cfg EmailConfig
}

// NewEmail creates an email notifier. Returns ErrNotifyDisabled when the
// configuration is incomplete.
func NewEmail(cfg EmailConfig) (*Email, error) {
	if !cfg.Enabled() {
		return nil, core.ErrNotifyDisabled
	}
	if cfg.Host == "" {
		cfg.Host = "smtp.gmail.com"
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Email{cfg: cfg}, nil
}

// Notify implements Notifier.
func (e *Email) Notify(ctx context.Context, bundle core.EvidenceBundle, outcome Outcome) error {
	msg, err := e.Message(bundle, outcome)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(e.cfg.Host,
		mail.WithPort(e.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(e.cfg.Sender),
		mail.WithPassword(e.cfg.Secret),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithTimeout(e.cfg.Timeout),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send email to %s: %w", e.cfg.Recipient, err)
	}
	logger.Info("result email sent to %s", e.cfg.Recipient)
	return nil
}

// Message builds the result email with every bundle screenshot attached.
func (e *Email) Message(bundle core.EvidenceBundle, outcome Outcome) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(e.cfg.Sender); err != nil {
		return nil, core.ErrInvalidConfig.WithMessage("invalid sender address").WithCause(err)
	}
	if err := msg.To(e.cfg.Recipient); err != nil {
		return nil, core.ErrInvalidConfig.WithMessage("invalid recipient address").WithCause(err)
	}
	msg.Subject(fmt.Sprintf("%s: %s", Subject, outcome.Status()))
	msg.SetDate()

	msg.SetBodyString(mail.TypeTextPlain, plainBody(bundle, outcome))
	html, err := htmlBody(bundle, outcome)
	if err != nil {
		return nil, err
	}
	msg.AddAlternativeString(mail.TypeTextHTML, html)

	for _, path := range bundle.Screenshots() {
		msg.AttachFile(path, mail.WithFileName(filepath.Base(path)))
	}
	return msg, nil
}

func plainBody(bundle core.EvidenceBundle, o Outcome) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Status: %s\n", o.Status())
	if o.Portal != "" {
		fmt.Fprintf(&b, "Portal: %s\n", o.Portal)
	}
	fmt.Fprintf(&b, "URL: %s\n", o.URL)
	fmt.Fprintf(&b, "Attempts: %d\n", o.Attempts)
	fmt.Fprintf(&b, "Final state: %s\n", o.State)
	if o.RunID != "" {
		fmt.Fprintf(&b, "Run: %s\n", o.RunID)
	}
	if o.ErrorText != "" {
		fmt.Fprintf(&b, "\nError: %s\n", o.ErrorText)
	}
	for _, w := range o.Warnings {
		fmt.Fprintf(&b, "Warning: %s\n", w)
	}
	if s := bundle.Summary(); s != "" {
		fmt.Fprintf(&b, "\n%s\n", s)
	}
	if n := len(bundle.Screenshots()); n > 0 {
		fmt.Fprintf(&b, "\n%d screenshot(s) attached.\n", n)
	}
	return b.String()
}

var htmlTemplate = template.Must(template.New("email").Parse(`<html><body style="font-family: sans-serif">
<h2 style="color: {{if .Outcome.Succeeded}}#2e7d32{{else}}#c62828{{end}}">{{.Outcome.Status}}</h2>
<table>
{{if .Outcome.Portal}}<tr><td><b>Portal</b></td><td>{{.Outcome.Portal}}</td></tr>{{end}}
<tr><td><b>URL</b></td><td>{{.Outcome.URL}}</td></tr>
<tr><td><b>Attempts</b></td><td>{{.Outcome.Attempts}}</td></tr>
<tr><td><b>Final state</b></td><td>{{.Outcome.State}}</td></tr>
{{if .Outcome.RunID}}<tr><td><b>Run</b></td><td>{{.Outcome.RunID}}</td></tr>{{end}}
</table>
{{if .Outcome.ErrorText}}<p><b>Error:</b> {{.Outcome.ErrorText}}</p>{{end}}
{{range .Outcome.Warnings}}<p>Warning: {{.}}</p>{{end}}
{{if .Summary}}<pre>{{.Summary}}</pre>{{end}}
</body></html>`))

func htmlBody(bundle core.EvidenceBundle, o Outcome) (string, error) {
	var buf bytes.Buffer
	data := struct {
		Outcome Outcome
		Summary string
	}{o, bundle.Summary()}
	if err := htmlTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render email: %w", err)
	}
	return buf.String(), nil
}
