package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bulkmail/bulkmail/internal/campaign"
	"github.com/bulkmail/bulkmail/internal/config"
	"github.com/bulkmail/bulkmail/internal/email"
	"github.com/bulkmail/bulkmail/internal/logger"
	"github.com/bulkmail/bulkmail/internal/model"
	"github.com/bulkmail/bulkmail/internal/recipient"
	"github.com/bulkmail/bulkmail/internal/service"
)

type options struct {
	file         string
	template     string
	templateFile string
	subject      string
	interval     time.Duration
	policy       string
	dryRun       bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one templated email to every recipient of a list",
		Long: "send loads recipients from a CSV/XLSX file or the configured source and delivers\n" +
			"the template to each of them in order. Interrupt to stop after the current attempt.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.file, "file", "f", "", "CSV or XLSX file with recipients (default: configured source)")
	f.StringVarP(&opts.template, "template", "t", "", "message body")
	f.StringVar(&opts.templateFile, "template-file", "", "read the message body from a file")
	f.StringVar(&opts.subject, "subject", "", "override email.subject")
	f.DurationVar(&opts.interval, "interval", -1, "override send.interval")
	f.StringVar(&opts.policy, "policy", "", "override send.failure_policy (continue|abort)")
	f.BoolVar(&opts.dryRun, "dry-run", false, "log messages instead of delivering them")
	cmd.MarkFlagsMutuallyExclusive("template", "template-file")

	return cmd
}

func run(ctx context.Context, out io.Writer, opts *options) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	template := opts.template
	if opts.templateFile != "" {
		data, err := os.ReadFile(opts.templateFile)
		if err != nil {
			return fmt.Errorf("failed to read template: %w", err)
		}
		template = string(data)
	}
	if opts.subject != "" {
		cfg.Email.Subject = opts.subject
	}
	if opts.interval >= 0 {
		cfg.Send.Interval = opts.interval
	}
	if opts.policy != "" {
		cfg.Send.FailurePolicy = opts.policy
	}
	if opts.dryRun {
		cfg.Email.Provider = "log"
	}

	policy, err := campaign.ParsePolicy(cfg.Send.FailurePolicy)
	if err != nil {
		return err
	}

	sender, err := email.NewSender(ctx, cfg.Email, log)
	if err != nil {
		return err
	}

	var source recipient.Source
	if opts.file == "" {
		source, err = recipient.NewSource(ctx, cfg.Recipients)
		if err != nil {
			return err
		}
	}

	svc := service.NewBulkMailService(service.Options{
		Source:     source,
		Runner:     campaign.NewRunner(sender, cfg.Send.Interval, policy, cfg.Send.Timeout, log),
		Renderer:   email.NewRenderer(cfg.Email.BodyFormat),
		FromName:   cfg.Email.FromName,
		Subject:    cfg.Email.Subject,
		Dedupe:     cfg.Recipients.Dedupe,
		Publishers: []service.Publisher{&consolePublisher{out: out}},
	}, log)

	if opts.file != "" {
		f, err := os.Open(opts.file)
		if err != nil {
			return fmt.Errorf("failed to open recipients file: %w", err)
		}
		err = svc.Upload(ctx, opts.file, f)
		f.Close()
		if err != nil {
			return err
		}
	} else if err := svc.Refresh(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, svc.State().Status.Message)

	if err := svc.SetTemplate(template); err != nil {
		return err
	}
	if _, err := svc.Start(ctx); err != nil {
		return err
	}

	// ctx is cancelled on SIGINT; the run keeps going until told to stop
	go func() {
		<-ctx.Done()
		if err := svc.Stop(); err != nil && !errors.Is(err, service.ErrNotRunning) {
			log.Warn().Err(err).Msg("failed to stop run")
		}
	}()

	if err := svc.Wait(context.Background()); err != nil {
		return err
	}

	st := svc.State()
	fmt.Fprintln(out, st.Status.Message)
	if st.Failed > 0 && st.Sent == 0 {
		return fmt.Errorf("all %d deliveries failed", st.Failed)
	}
	return nil
}

// consolePublisher prints one line per delivery attempt
type consolePublisher struct {
	out io.Writer
}

func (p *consolePublisher) PublishProgress(_ context.Context, ev model.Progress) error {
	if ev.Phase != model.PhaseAttempt {
		return nil
	}
	mark := "ok"
	if !ev.Delivered {
		mark = "FAILED: " + ev.Error
	}
	_, err := fmt.Fprintf(p.out, "[%d/%d] %s %s\n", ev.Index, ev.Total, ev.Recipient, mark)
	return err
}

func (p *consolePublisher) PublishState(context.Context, model.State) error { return nil }
