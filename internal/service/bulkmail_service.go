package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bulkmail/bulkmail/internal/campaign"
	"github.com/bulkmail/bulkmail/internal/email"
	"github.com/bulkmail/bulkmail/internal/logger"
	"github.com/bulkmail/bulkmail/internal/model"
	"github.com/bulkmail/bulkmail/internal/recipient"
)

// Common service errors
var (
	ErrRunInProgress   = errors.New("a send run is already in progress")
	ErrNotRunning      = errors.New("no send run is in progress")
	ErrEmptyTemplate   = errors.New("email template is empty")
	ErrNoRecipients    = errors.New("recipient list is empty")
	ErrSourceFailed    = errors.New("failed to load recipients")
	ErrHistoryDisabled = errors.New("run history is disabled")
	ErrRunNotFound     = errors.New("run not found")
)

const (
	publishTimeout = 5 * time.Second
	historyTimeout = 5 * time.Second
)

// Publisher receives every state change and progress event.
type Publisher interface {
	PublishProgress(ctx context.Context, p model.Progress) error
	PublishState(ctx context.Context, s model.State) error
}

// RunHistory persists send runs and their delivery attempts.
type RunHistory interface {
	Create(ctx context.Context, run *model.Run) error
	RecordDelivery(ctx context.Context, d *model.Delivery) error
	Finish(ctx context.Context, id string, phase model.Phase, sent, failed int, finishedAt time.Time) error
	List(ctx context.Context, limit int) ([]model.Run, error)
	GetByID(ctx context.Context, id string) (*model.Run, error)
	Deliveries(ctx context.Context, runID string) ([]model.Delivery, error)
}

// Options configures a BulkMailService
type Options struct {
	// Source is the remote source used by Refresh
	Source   recipient.Source
	Runner   *campaign.Runner
	Renderer *email.Renderer
	FromName string
	Subject  string
	Dedupe   bool
	// AutoRefreshInterval is the period used while auto refresh is enabled
	AutoRefreshInterval time.Duration
	// History is optional
	History    RunHistory
	Publishers []Publisher
}

// BulkMailService owns the template, the recipient list and the send state.
// It is the only writer of that state; all mutations happen under mu.
type BulkMailService struct {
	source   recipient.Source
	runner   *campaign.Runner
	renderer *email.Renderer
	fromName string
	subject  string
	dedupe   bool

	autoInterval time.Duration
	history      RunHistory
	publishers   []Publisher
	log          *logger.Logger

	mu          sync.Mutex
	template    string
	recipients  []string
	listSource  string
	state       model.State
	cancelRun   context.CancelFunc
	runDone     chan struct{}
	stopRefresh context.CancelFunc
	refreshDone chan struct{}
}

// NewBulkMailService creates a new BulkMailService
func NewBulkMailService(opts Options, log *logger.Logger) *BulkMailService {
	renderer := opts.Renderer
	if renderer == nil {
		renderer = email.NewRenderer(email.FormatText)
	}
	interval := opts.AutoRefreshInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &BulkMailService{
		source:       opts.Source,
		runner:       opts.Runner,
		renderer:     renderer,
		fromName:     opts.FromName,
		subject:      opts.Subject,
		dedupe:       opts.Dedupe,
		autoInterval: interval,
		history:      opts.History,
		publishers:   opts.Publishers,
		log:          log.WithComponent("bulkmail_service"),
		recipients:   []string{},
		state: model.State{
			Status: model.Status{Message: "Ready", Severity: model.SeverityInfo},
		},
	}
}

// State returns a snapshot of the send state
func (s *BulkMailService) State() model.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Recipients returns a copy of the current recipient list
func (s *BulkMailService) Recipients() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.recipients))
	copy(out, s.recipients)
	return out
}

// SetTemplate replaces the email template
func (s *BulkMailService) SetTemplate(template string) error {
	s.mu.Lock()
	if s.state.Running {
		s.mu.Unlock()
		return ErrRunInProgress
	}
	s.template = template
	st := s.snapshotLocked()
	s.mu.Unlock()

	s.publishState(st)
	return nil
}

// Refresh replaces the recipient list with a fresh fetch from the remote source.
func (s *BulkMailService) Refresh(ctx context.Context) error {
	return s.load(ctx, s.source)
}

// Upload replaces the recipient list with the addresses parsed from an uploaded file.
func (s *BulkMailService) Upload(ctx context.Context, filename string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return s.failLoad(fmt.Errorf("%w: %w", ErrSourceFailed, err))
	}
	return s.load(ctx, recipient.NewFileSource(filename, data, s.dedupe))
}

func (s *BulkMailService) load(ctx context.Context, src recipient.Source) error {
	s.mu.Lock()
	if s.state.Running {
		s.mu.Unlock()
		return ErrRunInProgress
	}
	s.mu.Unlock()

	if src == nil {
		return s.failLoad(fmt.Errorf("%w: %w", ErrSourceFailed, recipient.ErrNotConfigured))
	}

	list, err := src.Fetch(ctx)
	if err != nil && ctx.Err() != nil {
		// caller went away; keep the current list
		return ctx.Err()
	}
	if err != nil {
		s.log.Warn().Err(err).Str("source", src.Name()).Msg("recipient load failed")
		return s.failLoad(fmt.Errorf("%w: %w", ErrSourceFailed, err))
	}

	s.mu.Lock()
	// a run may have started while the fetch was in flight
	if s.state.Running {
		s.mu.Unlock()
		return ErrRunInProgress
	}
	s.recipients = list
	s.listSource = src.Name()
	s.setStatusLocked(fmt.Sprintf("%d valid addresses loaded", len(list)), model.SeveritySuccess)
	st := s.snapshotLocked()
	s.mu.Unlock()

	s.log.Info().Str("source", src.Name()).Int("count", len(list)).Msg("recipients loaded")
	s.publishState(st)
	return nil
}

// failLoad empties the list and reports err with danger severity
func (s *BulkMailService) failLoad(err error) error {
	s.mu.Lock()
	if s.state.Running {
		s.mu.Unlock()
		return err
	}
	s.recipients = []string{}
	s.listSource = ""
	s.setStatusLocked(loadErrorMessage(err), model.SeverityDanger)
	st := s.snapshotLocked()
	s.mu.Unlock()

	s.publishState(st)
	return err
}

func loadErrorMessage(err error) string {
	msg := err.Error()
	prefix := ErrSourceFailed.Error() + ": "
	return "Failed to load recipients: " + strings.TrimPrefix(msg, prefix)
}

// Start validates the template and list, then launches the send run in the
// background and returns its id.
func (s *BulkMailService) Start(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.state.Running {
		s.mu.Unlock()
		return "", ErrRunInProgress
	}
	if strings.TrimSpace(s.template) == "" {
		s.setStatusLocked("Please enter an email template before sending", model.SeverityWarning)
		st := s.snapshotLocked()
		s.mu.Unlock()
		s.publishState(st)
		return "", ErrEmptyTemplate
	}
	if len(s.recipients) == 0 {
		s.setStatusLocked("No recipients loaded; refresh or upload a list first", model.SeverityWarning)
		st := s.snapshotLocked()
		s.mu.Unlock()
		s.publishState(st)
		return "", ErrNoRecipients
	}

	text, html, err := s.renderer.Render(s.template)
	if err != nil {
		s.setStatusLocked(err.Error(), model.SeverityDanger)
		st := s.snapshotLocked()
		s.mu.Unlock()
		s.publishState(st)
		return "", err
	}

	job := campaign.Job{
		RunID:      uuid.NewString(),
		Recipients: append([]string(nil), s.recipients...),
		FromName:   s.fromName,
		Subject:    s.subject,
		TextBody:   text,
		HTMLBody:   html,
	}
	template := s.template
	source := s.listSource

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	s.cancelRun = cancel
	s.runDone = done
	s.state.Running = true
	s.state.RunID = job.RunID
	s.state.Index = 0
	s.state.Total = len(job.Recipients)
	s.state.Sent = 0
	s.state.Failed = 0
	s.setStatusLocked(fmt.Sprintf("Starting to send to %d recipients...", len(job.Recipients)), model.SeverityInfo)
	st := s.snapshotLocked()
	s.mu.Unlock()

	s.publishState(st)
	s.recordRunStart(job, template, source)

	go func() {
		defer close(done)
		defer cancel()
		res := s.runner.Run(runCtx, job, s.observe)
		s.finish(job.RunID, res)
	}()

	return job.RunID, nil
}

// Stop signals the running task to halt. An attempt already in flight completes.
func (s *BulkMailService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.Running || s.cancelRun == nil {
		return ErrNotRunning
	}
	s.cancelRun()
	s.log.Info().Str("run_id", s.state.RunID).Msg("stop requested")
	return nil
}

// Wait blocks until the current run, if any, has finished.
func (s *BulkMailService) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.runDone
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// observe applies a runner progress event to the state and fans it out.
func (s *BulkMailService) observe(p model.Progress) {
	s.mu.Lock()
	s.state.Index = p.Index
	s.state.Total = p.Total
	s.state.Sent = p.Sent
	s.state.Failed = p.Failed

	switch p.Phase {
	case model.PhaseAttempt:
		if p.Delivered {
			s.setStatusLocked(fmt.Sprintf("Sending to %s... (%d/%d)", p.Recipient, p.Index, p.Total), model.SeverityInfo)
		} else {
			s.setStatusLocked(fmt.Sprintf("Failed to send to %s: %s (%d/%d)", p.Recipient, p.Error, p.Index, p.Total), model.SeverityDanger)
		}
	case model.PhaseFinished:
		sev := model.SeveritySuccess
		if p.Failed > 0 {
			sev = model.SeverityWarning
		}
		s.setStatusLocked(fmt.Sprintf("Done! %d sent, %d failed", p.Sent, p.Failed), sev)
	case model.PhaseStopped:
		s.setStatusLocked(fmt.Sprintf("Stopped after %d of %d (%d sent, %d failed)", p.Index, p.Total, p.Sent, p.Failed), model.SeverityWarning)
	case model.PhaseAborted:
		s.setStatusLocked(fmt.Sprintf("Aborted after %d of %d: %s", p.Index, p.Total, p.Error), model.SeverityDanger)
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	for _, pub := range s.publishers {
		if err := pub.PublishProgress(ctx, p); err != nil {
			s.log.Warn().Err(err).Msg("failed to publish progress")
		}
	}

	if p.Phase == model.PhaseAttempt {
		s.recordDelivery(p)
	}
}

// finish clears the running flag once the runner has returned.
func (s *BulkMailService) finish(runID string, res campaign.Result) {
	s.mu.Lock()
	s.state.Running = false
	s.cancelRun = nil
	st := s.snapshotLocked()
	s.mu.Unlock()

	s.publishState(st)
	s.recordRunFinish(runID, res)
}

// SetAutoRefresh starts or stops the periodic background refresh.
func (s *BulkMailService) SetAutoRefresh(enabled bool) {
	s.mu.Lock()
	if enabled == (s.stopRefresh != nil) {
		s.mu.Unlock()
		return
	}

	var done chan struct{}
	if enabled {
		ctx, cancel := context.WithCancel(context.Background())
		s.stopRefresh = cancel
		s.refreshDone = make(chan struct{})
		go s.autoRefresh(ctx, s.refreshDone)
	} else {
		s.stopRefresh()
		s.stopRefresh = nil
		done = s.refreshDone
		s.refreshDone = nil
	}
	s.state.AutoRefresh = enabled
	st := s.snapshotLocked()
	s.mu.Unlock()

	if done != nil {
		<-done
	}
	s.log.Info().Bool("enabled", enabled).Dur("interval", s.autoInterval).Msg("auto refresh toggled")
	s.publishState(st)
}

func (s *BulkMailService) autoRefresh(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.autoInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.State().Running {
				continue
			}
			if err := s.Refresh(ctx); err != nil && !errors.Is(err, ErrRunInProgress) {
				s.log.Warn().Err(err).Msg("auto refresh failed")
			}
		}
	}
}

// Close stops auto refresh and any running send, waiting for both to end.
func (s *BulkMailService) Close(ctx context.Context) error {
	s.SetAutoRefresh(false)
	if err := s.Stop(); err != nil && !errors.Is(err, ErrNotRunning) {
		return err
	}
	return s.Wait(ctx)
}

// ListRuns returns recent run history
func (s *BulkMailService) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if s.history == nil {
		return nil, ErrHistoryDisabled
	}
	return s.history.List(ctx, limit)
}

// GetRun returns one run and its delivery attempts
func (s *BulkMailService) GetRun(ctx context.Context, id string) (*model.Run, []model.Delivery, error) {
	if s.history == nil {
		return nil, nil, ErrHistoryDisabled
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil, ErrRunNotFound
	}
	run, err := s.history.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	deliveries, err := s.history.Deliveries(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return run, deliveries, nil
}

func (s *BulkMailService) recordRunStart(job campaign.Job, template, source string) {
	if s.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()
	err := s.history.Create(ctx, &model.Run{
		ID:        job.RunID,
		Source:    source,
		Template:  template,
		Subject:   job.Subject,
		Total:     len(job.Recipients),
		Phase:     model.PhaseStarted,
		StartedAt: time.Now().UTC(),
	})
	if err != nil {
		s.log.Error().Err(err).Str("run_id", job.RunID).Msg("failed to record run")
	}
}

func (s *BulkMailService) recordDelivery(p model.Progress) {
	if s.history == nil {
		return
	}
	d := &model.Delivery{
		RunID:       p.RunID,
		Position:    p.Index,
		Recipient:   p.Recipient,
		Delivered:   p.Delivered,
		AttemptedAt: p.At.UTC(),
	}
	if p.Error != "" {
		msg := p.Error
		d.Error = &msg
	}
	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()
	if err := s.history.RecordDelivery(ctx, d); err != nil {
		s.log.Error().Err(err).Str("run_id", p.RunID).Msg("failed to record delivery")
	}
}

func (s *BulkMailService) recordRunFinish(runID string, res campaign.Result) {
	if s.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()
	if err := s.history.Finish(ctx, runID, res.Phase, res.Sent, res.Failed, time.Now().UTC()); err != nil {
		s.log.Error().Err(err).Str("run_id", runID).Msg("failed to finish run record")
	}
}

func (s *BulkMailService) publishState(st model.State) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	for _, pub := range s.publishers {
		if err := pub.PublishState(ctx, st); err != nil {
			s.log.Warn().Err(err).Msg("failed to publish state")
		}
	}
}

func (s *BulkMailService) setStatusLocked(msg string, sev model.Severity) {
	s.state.Status = model.Status{Message: msg, Severity: sev}
}

func (s *BulkMailService) snapshotLocked() model.State {
	st := s.state
	st.Template = s.template
	st.Recipients = len(s.recipients)
	st.Source = s.listSource
	return st
}
