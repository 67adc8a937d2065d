// Package notify implements the notification workflows. Each workflow renders
// its emails, opens exactly one provider session, sends to every recipient,
// and closes the session.
//
// Courtesy notices are best effort: failures are logged and reported but
// never returned. The onboarding invite carries an access link and is
// required, so its failures are returned to the caller.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/shineum/bermail/internal/email"
	"github.com/shineum/bermail/internal/provider"
)

// Workflow names, also used as template names.
const (
	WorkflowBookingAccepted = "booking_accepted"
	WorkflowJobLive         = "job_live"
	WorkflowStatusChanged   = "status_changed"
	WorkflowDigest          = "digest"
	WorkflowOnboarding      = "onboarding"
)

// Renderer turns template data into an HTML body.
type Renderer interface {
	Render(name string, data any) (string, error)
}

// Config wires a Notifier.
type Config struct {
	Provider provider.Provider
	Renderer Renderer

	// From is the sender address of every notification.
	From string

	// SiteName appears in subjects.
	SiteName string

	Logger *slog.Logger
}

// Notifier runs notification workflows.
type Notifier struct {
	provider provider.Provider
	renderer Renderer
	from     string
	siteName string
	logger   *slog.Logger
}

// New creates a Notifier.
func New(cfg Config) *Notifier {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		provider: cfg.Provider,
		renderer: cfg.Renderer,
		from:     cfg.From,
		siteName: cfg.SiteName,
		logger:   logger,
	}
}

// Failure records one recipient that could not be emailed.
type Failure struct {
	Recipient string
	Err       error
}

// Report summarises a workflow run.
type Report struct {
	RunID     string
	Workflow  string
	Attempted int
	Sent      int
	Failures  []Failure
}

// Err joins the per-recipient failures, or returns nil if there were none.
func (r Report) Err() error {
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, fmt.Errorf("%s: %w", f.Recipient, f.Err))
	}
	return errors.Join(errs...)
}

func (r *Report) fail(recipient string, err error) {
	r.Failures = append(r.Failures, Failure{Recipient: recipient, Err: err})
}

// outgoing is one rendered-to-be email.
type outgoing struct {
	to       Recipient
	subject  string
	template string
	data     any
}

// BookingAccepted tells the homeowner an assessor accepted their booking.
func (n *Notifier) BookingAccepted(ctx context.Context, ev BookingAccepted) Report {
	report, err := n.deliver(ctx, WorkflowBookingAccepted, []outgoing{{
		to:       ev.Homeowner,
		subject:  "Your BER assessment booking has been accepted",
		template: WorkflowBookingAccepted,
		data:     ev,
	}})
	n.bestEffort(report, err)
	return report
}

// JobLive announces a new job to every recipient over a single session.
func (n *Notifier) JobLive(ctx context.Context, ev JobLive) Report {
	subject := fmt.Sprintf("New job live: %s", ev.Job.Title)
	if ev.Job.County != "" {
		subject += fmt.Sprintf(" (%s)", ev.Job.County)
	}

	var msgs []outgoing
	for _, r := range uniqueRecipients(ev.Recipients) {
		msgs = append(msgs, outgoing{
			to:       r,
			subject:  subject,
			template: WorkflowJobLive,
			data:     recipientView{Recipient: r, Job: ev.Job},
		})
	}

	report, err := n.deliver(ctx, WorkflowJobLive, msgs)
	n.bestEffort(report, err)
	return report
}

// StatusChanged tells the homeowner their job changed status.
func (n *Notifier) StatusChanged(ctx context.Context, ev StatusChanged) Report {
	report, err := n.deliver(ctx, WorkflowStatusChanged, []outgoing{{
		to:       ev.Homeowner,
		subject:  fmt.Sprintf("Update on your job: %s is now %s", ev.Title, ev.NewStatus),
		template: WorkflowStatusChanged,
		data:     ev,
	}})
	n.bestEffort(report, err)
	return report
}

// Digest sends the period's jobs to every subscriber. Nothing is sent for
// an empty period.
func (n *Notifier) Digest(ctx context.Context, ev Digest) Report {
	if len(ev.Jobs) == 0 {
		n.logger.Info("digest skipped, no jobs in period", "period", ev.Period)
		return Report{Workflow: WorkflowDigest}
	}

	subject := fmt.Sprintf("%d new jobs posted %s", len(ev.Jobs), ev.Period)
	if len(ev.Jobs) == 1 {
		subject = fmt.Sprintf("1 new job posted %s", ev.Period)
	}

	var msgs []outgoing
	for _, r := range uniqueRecipients(ev.Subscribers) {
		msgs = append(msgs, outgoing{
			to:       r,
			subject:  subject,
			template: WorkflowDigest,
			data:     digestView{Recipient: r, Period: ev.Period, Jobs: ev.Jobs},
		})
	}

	report, err := n.deliver(ctx, WorkflowDigest, msgs)
	n.bestEffort(report, err)
	return report
}

// Onboarding delivers an access link. Any failure is returned.
func (n *Notifier) Onboarding(ctx context.Context, ev OnboardingInvite) (Report, error) {
	if ev.Link == "" {
		return Report{Workflow: WorkflowOnboarding}, fmt.Errorf("onboarding invite for %s has no link", ev.Recipient.Email)
	}

	subject := fmt.Sprintf("You're invited to join %s", ev.Organisation)
	if n.siteName != "" {
		subject += " on " + n.siteName
	}

	report, err := n.deliver(ctx, WorkflowOnboarding, []outgoing{{
		to:       ev.Recipient,
		subject:  subject,
		template: WorkflowOnboarding,
		data:     ev,
	}})
	if err != nil {
		n.logger.Error("onboarding email failed", "run_id", report.RunID, "error", err)
		return report, fmt.Errorf("failed to deliver onboarding invite: %w", err)
	}
	if err := report.Err(); err != nil {
		n.logger.Error("onboarding email failed", "run_id", report.RunID, "error", err)
		return report, fmt.Errorf("failed to deliver onboarding invite: %w", err)
	}
	return report, nil
}

// deliver renders every message, then sends them over one session. Per
// recipient failures land in the report; the returned error is only set
// when no session could be opened.
func (n *Notifier) deliver(ctx context.Context, workflow string, msgs []outgoing) (Report, error) {
	report := Report{
		RunID:     uuid.NewString(),
		Workflow:  workflow,
		Attempted: len(msgs),
	}
	logger := n.logger.With("run_id", report.RunID, "workflow", workflow, "provider", n.provider.Name())

	ready := make([]*email.Message, 0, len(msgs))
	for _, m := range msgs {
		to := strings.TrimSpace(m.to.Email)
		if to == "" {
			report.fail(m.to.Name, errors.New("recipient has no email address"))
			continue
		}
		body, err := n.renderer.Render(m.template, m.data)
		if err != nil {
			report.fail(m.to.Email, err)
			continue
		}
		ready = append(ready, &email.Message{
			From:     n.from,
			To:       to,
			Subject:  oneLine(m.subject),
			HTMLBody: body,
		})
	}

	if len(ready) == 0 {
		logger.Debug("nothing to send")
		return report, nil
	}

	sess, err := n.provider.Open(ctx)
	if err != nil {
		for _, msg := range ready {
			report.fail(msg.To, err)
		}
		return report, fmt.Errorf("failed to open %s session: %w", n.provider.Name(), err)
	}
	defer sess.Close()

	for _, msg := range ready {
		if err := sess.Send(ctx, msg); err != nil {
			logger.Warn("failed to send email", "to", msg.To, "error", err)
			report.fail(msg.To, err)
			continue
		}
		report.Sent++
	}

	logger.Info("notification run complete",
		"attempted", report.Attempted,
		"sent", report.Sent,
		"failed", len(report.Failures),
	)
	return report, nil
}

// bestEffort logs the outcome of a courtesy workflow and swallows the error.
func (n *Notifier) bestEffort(report Report, err error) {
	if err != nil {
		n.logger.Error("notification run failed",
			"run_id", report.RunID,
			"workflow", report.Workflow,
			"error", err,
		)
	}
}

// uniqueRecipients drops repeated addresses, keeping the first occurrence.
func uniqueRecipients(in []Recipient) []Recipient {
	seen := make(map[string]bool, len(in))
	out := make([]Recipient, 0, len(in))
	for _, r := range in {
		key := strings.ToLower(strings.TrimSpace(r.Email))
		if key != "" && seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}

// oneLine folds line breaks so user supplied titles cannot break headers.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
