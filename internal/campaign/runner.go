// Package campaign runs the paced, sequential send loop over a recipient list.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/bulkmail/bulkmail/internal/email"
	"github.com/bulkmail/bulkmail/internal/logger"
	"github.com/bulkmail/bulkmail/internal/model"
)

// Policy decides what a failed delivery does to the rest of the run.
type Policy string

const (
	// PolicyContinue counts the failure and moves on to the next recipient.
	PolicyContinue Policy = "continue"
	// PolicyAbort ends the run at the first failure.
	PolicyAbort Policy = "abort"
)

// ParsePolicy maps a config value to a Policy
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyContinue, PolicyAbort:
		return Policy(s), nil
	case "":
		return PolicyContinue, nil
	default:
		return "", fmt.Errorf("unknown failure policy %q", s)
	}
}

// Job is one send run: the recipients and the prepared message fields.
type Job struct {
	RunID      string
	Recipients []string
	FromName   string
	Subject    string
	TextBody   string
	HTMLBody   string
}

// Result summarizes a finished run.
type Result struct {
	Phase     model.Phase
	Attempted int
	Sent      int
	Failed    int
	LastError error
	Duration  time.Duration
}

// Observer receives progress events synchronously, in order.
type Observer func(model.Progress)

// Runner delivers a Job one recipient at a time.
type Runner struct {
	sender   email.Sender
	interval time.Duration
	policy   Policy
	timeout  time.Duration
	log      *logger.Logger
	now      func() time.Time
}

// NewRunner creates a Runner. interval is the minimum spacing between two
// delivery attempts; timeout bounds each delivery call (0 means none).
func NewRunner(sender email.Sender, interval time.Duration, policy Policy, timeout time.Duration, log *logger.Logger) *Runner {
	if policy == "" {
		policy = PolicyContinue
	}
	return &Runner{
		sender:   sender,
		interval: interval,
		policy:   policy,
		timeout:  timeout,
		log:      log.WithComponent("campaign"),
		now:      time.Now,
	}
}

// Run attempts delivery to every recipient of job in order, exactly once each.
// Cancelling ctx is the stop signal: it is honored before each attempt and
// while pacing, but an attempt already in flight completes and is counted.
func (r *Runner) Run(ctx context.Context, job Job, observe Observer) Result {
	if observe == nil {
		observe = func(model.Progress) {}
	}

	log := r.log.WithRunID(job.RunID)
	start := r.now()
	total := len(job.Recipients)
	res := Result{Phase: model.PhaseFinished}

	limit := rate.Inf
	if r.interval > 0 {
		limit = rate.Every(r.interval)
	}
	pacer := rate.NewLimiter(limit, 1)

	emit := func(phase model.Phase, recipient string, delivered bool, err error) {
		p := model.Progress{
			RunID:      job.RunID,
			Phase:      phase,
			Index:      res.Attempted,
			Total:      total,
			Sent:       res.Sent,
			Failed:     res.Failed,
			Percentage: model.Percent(res.Attempted, total),
			Recipient:  recipient,
			Delivered:  delivered,
			At:         r.now(),
		}
		if err != nil {
			p.Error = err.Error()
		}
		observe(p)
	}

	log.Info().Int("total", total).Dur("interval", r.interval).Str("policy", string(r.policy)).Msg("send run started")
	emit(model.PhaseStarted, "", false, nil)

	for _, to := range job.Recipients {
		if ctx.Err() != nil {
			res.Phase = model.PhaseStopped
			break
		}
		if err := pacer.Wait(ctx); err != nil {
			res.Phase = model.PhaseStopped
			break
		}

		attemptStart := r.now()
		err := r.deliver(ctx, job, to)
		res.Attempted++
		if err != nil {
			res.Failed++
			res.LastError = err
		} else {
			res.Sent++
		}

		log.Delivery(to, res.Attempted, total, r.now().Sub(attemptStart), err)
		emit(model.PhaseAttempt, to, err == nil, err)

		if err != nil && r.policy == PolicyAbort {
			res.Phase = model.PhaseAborted
			break
		}
	}

	res.Duration = r.now().Sub(start)
	emit(res.Phase, "", false, res.LastError)

	log.Info().
		Str("phase", string(res.Phase)).
		Int("sent", res.Sent).
		Int("failed", res.Failed).
		Int("attempted", res.Attempted).
		Dur("duration", res.Duration).
		Msg("send run ended")

	return res
}

// deliver sends one message. The call is detached from ctx cancellation so a
// stop never interrupts a delivery that has already started.
func (r *Runner) deliver(ctx context.Context, job Job, to string) error {
	dctx := context.WithoutCancel(ctx)
	if r.timeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(dctx, r.timeout)
		defer cancel()
	}

	err := r.sender.Send(dctx, email.Message{
		To:       to,
		FromName: job.FromName,
		Subject:  job.Subject,
		TextBody: job.TextBody,
		HTMLBody: job.HTMLBody,
	})
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("delivery to %s timed out after %s: %w", to, r.timeout, err)
	}
	return err
}
