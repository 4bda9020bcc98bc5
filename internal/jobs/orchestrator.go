package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"avatarcast/internal/logging"
	"avatarcast/internal/services"
	"avatarcast/internal/services/avatarapi"
)

// Provider is the subset of the provider client the orchestrator drives.
type Provider interface {
	Generate(ctx context.Context, req avatarapi.GenerateRequest) (string, error)
	Status(ctx context.Context, videoID string) (avatarapi.VideoStatus, error)
}

// Journal persists job snapshots after every transition.
type Journal interface {
	Save(ctx context.Context, job Job) error
}

// Notifier is told about jobs that reached a terminal state.
type Notifier interface {
	JobFinished(ctx context.Context, job Job)
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithJournal persists every transition to journal.
func WithJournal(journal Journal) Option {
	return func(o *Orchestrator) {
		o.journal = journal
	}
}

// WithNotifier reports terminal jobs to notifier.
func WithNotifier(notifier Notifier) Option {
	return func(o *Orchestrator) {
		o.notifier = notifier
	}
}

// WithClock overrides the orchestrator clock.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator overrides job ID generation.
func WithIDGenerator(newID func() string) Option {
	return func(o *Orchestrator) {
		if newID != nil {
			o.newID = newID
		}
	}
}

type record struct {
	job             Job
	cancelRequested bool
	nextPoll        time.Time
	pollFailures    int
	subscribers     map[*subscriber]struct{}
}

// Orchestrator owns every generation job record.
type Orchestrator struct {
	provider Provider
	resolver Resolver
	settings Settings
	logger   *slog.Logger
	journal  Journal
	notifier Notifier
	now      func() time.Time
	newID    func() string

	mu       sync.RWMutex
	jobs     map[string]*record
	inflight map[string]struct{}

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	work    chan pollTask
}

// New constructs an orchestrator. resolver may be nil to skip catalog checks.
func New(provider Provider, resolver Resolver, settings Settings, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		provider: provider,
		resolver: resolver,
		settings: settings.withDefaults(),
		logger:   logging.NewComponentLogger(logger, "jobs"),
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
		jobs:     make(map[string]*record),
		inflight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Submit validates req, registers a job, and issues the provider create call.
// Validation failures create no job. Once a job exists its ID is always
// returned, together with an error when the job failed during submission.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (string, error) {
	req, err := normalizeRequest(req)
	if err != nil {
		return "", err
	}
	if err := resolveReferences(ctx, o.resolver, req); err != nil {
		return "", err
	}

	id := o.newID()
	now := o.now()
	rec := &record{
		job:         Job{ID: id, Request: req, CreatedAt: now},
		subscribers: make(map[*subscriber]struct{}),
	}

	o.mu.Lock()
	o.jobs[id] = rec
	o.transitionLocked(rec, StateQueued, nil)
	o.transitionLocked(rec, StateSubmitting, nil)
	submitting := rec.job.clone()
	o.mu.Unlock()
	o.commit(ctx, submitting)

	videoID, createErr := o.create(ctx, id, req)
	return id, o.finishSubmit(ctx, id, videoID, createErr)
}

func (o *Orchestrator) create(ctx context.Context, id string, req Request) (string, error) {
	logger := o.logger.With(logging.JobID(id))
	deadline := o.now().Add(o.settings.SubmitTimeout)
	submitCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	payload := avatarapi.GenerateRequest{
		Script:      req.Script,
		AvatarID:    req.AvatarID,
		VoiceID:     req.VoiceID,
		Quality:     req.Quality,
		AspectRatio: req.AspectRatio,
		CallbackID:  id,
	}

	for attempt := 1; ; attempt++ {
		o.countAttempt(id)
		callCtx, callCancel := context.WithTimeout(submitCtx, o.settings.CallTimeout)
		videoID, err := o.provider.Generate(callCtx, payload)
		callCancel()
		if err == nil {
			return videoID, nil
		}
		if !services.IsRetryable(err) || o.cancelRequested(id) {
			return "", err
		}
		if submitCtx.Err() != nil {
			return "", services.Wrap(services.ErrTimeout, "jobs", "submit", "submission budget exhausted", err)
		}

		delay := backoffDelay(o.settings.BackoffBase, o.settings.BackoffMax, attempt, avatarapi.RetryAfter(err))
		if o.now().Add(delay).After(deadline) {
			return "", services.Wrap(services.ErrTimeout, "jobs", "submit",
				fmt.Sprintf("create retries exhausted after %d attempts", attempt), err)
		}
		logging.WarnWithContext(logger, "provider create call failed; retrying",
			"job_submit_retry",
			logging.Int("attempt", attempt),
			logging.Duration("retry_in", delay),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "provider may be overloaded; retry is automatic"),
			logging.String(logging.FieldImpact, "job submission delayed"),
		)
		select {
		case <-submitCtx.Done():
			return "", services.Wrap(services.ErrTimeout, "jobs", "submit", "submission budget exhausted", submitCtx.Err())
		case <-time.After(delay):
		}
	}
}

func (o *Orchestrator) finishSubmit(ctx context.Context, id, videoID string, createErr error) error {
	now := o.now()
	var result error

	o.mu.Lock()
	rec := o.jobs[id]
	switch {
	case createErr == nil && rec.cancelRequested:
		rec.job.ExternalID = videoID
		o.transitionLocked(rec, StateCancelled, nil)
	case createErr == nil:
		o.transitionLocked(rec, StateProcessing, func(job *Job) {
			job.ExternalID = videoID
			job.ProcessingSince = now
		})
		rec.nextPoll = now.Add(o.settings.PollInterval)
	case rec.cancelRequested:
		o.transitionLocked(rec, StateCancelled, nil)
	default:
		var kind FailureKind
		kind, result = classifySubmitError(id, createErr)
		o.transitionLocked(rec, StateFailed, func(job *Job) {
			job.Failure = &Failure{Kind: kind, Message: createErr.Error()}
		})
	}
	job := rec.job.clone()
	o.mu.Unlock()

	o.commit(ctx, job)
	return result
}

func classifySubmitError(id string, err error) (FailureKind, error) {
	detail := "job " + id
	switch {
	case errors.Is(err, services.ErrTimeout),
		errors.Is(err, services.ErrTransient),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return FailureTimeout, services.Wrap(services.ErrTimeout, "jobs", "submit", detail, err)
	case errors.Is(err, services.ErrProviderRejected),
		errors.Is(err, services.ErrConfiguration):
		return FailureProviderRejected, services.Wrap(services.ErrProviderRejected, "jobs", "submit", detail, err)
	default:
		return FailureProviderError, services.Wrap(services.ErrProviderError, "jobs", "submit", detail, err)
	}
}

// Status returns a copy of the job record.
func (o *Orchestrator) Status(id string) (Job, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	rec, ok := o.jobs[strings.TrimSpace(id)]
	if !ok {
		return Job{}, services.Wrap(services.ErrNotFound, "jobs", "status", "job "+id, nil)
	}
	return rec.job.clone(), nil
}

// List returns copies of all jobs, oldest first.
func (o *Orchestrator) List() []Job {
	o.mu.RLock()
	jobs := make([]Job, 0, len(o.jobs))
	for _, rec := range o.jobs {
		jobs = append(jobs, rec.job.clone())
	}
	o.mu.RUnlock()
	slices.SortFunc(jobs, func(a, b Job) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return jobs
}

// Stats counts jobs per state.
func (o *Orchestrator) Stats() Stats {
	o.mu.RLock()
	defer o.mu.RUnlock()
	stats := Stats{Total: len(o.jobs), States: make(map[State]int)}
	for _, rec := range o.jobs {
		stats.States[rec.job.State]++
	}
	return stats
}

// Cancel stops a queued or processing job. A job that is still submitting is
// cancelled as soon as its create call returns. Terminal jobs are left
// untouched and yield ErrAlreadyTerminal.
func (o *Orchestrator) Cancel(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	o.mu.Lock()
	rec, ok := o.jobs[id]
	if !ok {
		o.mu.Unlock()
		return services.Wrap(services.ErrNotFound, "jobs", "cancel", "job "+id, nil)
	}
	state := rec.job.State
	switch {
	case state.Terminal():
		o.mu.Unlock()
		return services.Wrap(services.ErrAlreadyTerminal, "jobs", "cancel", fmt.Sprintf("job %s is %s", id, state), nil)
	case state == StateSubmitting:
		rec.cancelRequested = true
		o.mu.Unlock()
		o.logger.Info("cancel recorded; applying after create call returns",
			logging.JobID(id),
			logging.String(logging.FieldEventType, "job_cancel_deferred"),
		)
		return nil
	}
	rec.cancelRequested = true
	o.transitionLocked(rec, StateCancelled, nil)
	job := rec.job.clone()
	o.mu.Unlock()

	o.commit(ctx, job)
	return nil
}

// Restore registers jobs loaded from a journal. Processing jobs resume
// polling with their original processing start; jobs that never reached the
// provider are failed. Jobs whose IDs are already registered are skipped.
func (o *Orchestrator) Restore(ctx context.Context, jobs []Job) int {
	now := o.now()
	var changed []Job
	restored := 0

	o.mu.Lock()
	for _, job := range jobs {
		if job.ID == "" {
			continue
		}
		if _, exists := o.jobs[job.ID]; exists {
			continue
		}
		rec := &record{job: job.clone(), subscribers: make(map[*subscriber]struct{})}
		o.jobs[job.ID] = rec
		restored++

		switch job.State {
		case StateProcessing:
			if job.ExternalID == "" {
				o.failLocked(rec, FailureProviderError, "restored processing job has no provider video id")
				changed = append(changed, rec.job.clone())
				continue
			}
			if rec.job.ProcessingSince.IsZero() {
				rec.job.ProcessingSince = now
			}
			rec.nextPoll = now
		case StateQueued, StateSubmitting:
			o.failLocked(rec, FailureProviderError, "interrupted before provider accepted request")
			changed = append(changed, rec.job.clone())
		}
	}
	o.mu.Unlock()

	o.commit(ctx, changed...)
	if restored > 0 {
		o.logger.Info("restored journaled jobs",
			logging.Int("restored", restored),
			logging.Int("failed_on_restore", len(changed)),
			logging.String(logging.FieldEventType, "jobs_restored"),
		)
	}
	return restored
}

func (o *Orchestrator) countAttempt(id string) {
	o.mu.Lock()
	if rec, ok := o.jobs[id]; ok {
		rec.job.Attempts++
	}
	o.mu.Unlock()
}

func (o *Orchestrator) cancelRequested(id string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	rec, ok := o.jobs[id]
	return ok && rec.cancelRequested
}

func (o *Orchestrator) failLocked(rec *record, kind FailureKind, message string) {
	o.transitionLocked(rec, StateFailed, func(job *Job) {
		job.Failure = &Failure{Kind: kind, Message: message}
	})
}

// transitionLocked applies one state change and wakes subscribers. Callers
// hold o.mu. Illegal transitions are ignored and reported as false.
func (o *Orchestrator) transitionLocked(rec *record, to State, mutate func(*Job)) bool {
	from := rec.job.State
	if !canTransition(from, to) {
		o.logger.Error("illegal job transition ignored",
			logging.JobID(rec.job.ID),
			logging.String("from", string(from)),
			logging.String("to", string(to)),
			logging.String(logging.FieldEventType, "job_transition_illegal"),
			logging.String(logging.FieldErrorHint, "report this as a bug"),
		)
		return false
	}
	if mutate != nil {
		mutate(&rec.job)
	}
	now := o.now()
	rec.job.State = to
	rec.job.UpdatedAt = now
	transition := Transition{
		JobID:     rec.job.ID,
		Seq:       len(rec.job.History) + 1,
		From:      from,
		To:        to,
		Progress:  rec.job.Progress,
		OutputRef: rec.job.OutputRef,
		At:        now,
	}
	if rec.job.Failure != nil && to == StateFailed {
		failure := *rec.job.Failure
		transition.Failure = &failure
	}
	rec.job.History = append(rec.job.History, transition)
	for sub := range rec.subscribers {
		sub.wake()
	}
	return true
}

// commit persists and reports job snapshots outside the registry lock.
func (o *Orchestrator) commit(ctx context.Context, jobs ...Job) {
	ctx = context.WithoutCancel(ctx)
	for _, job := range jobs {
		o.logTransition(job)
		if o.journal != nil {
			if err := o.journal.Save(ctx, job); err != nil {
				logging.WarnWithContext(o.logger, "journal save failed",
					"journal_save_failed",
					logging.JobID(job.ID),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check state_dir permissions and free space"),
					logging.String(logging.FieldImpact, "job may not resume after restart"),
				)
			}
		}
		if job.State.Terminal() && o.notifier != nil {
			o.notifier.JobFinished(ctx, job)
		}
	}
}

func (o *Orchestrator) logTransition(job Job) {
	if len(job.History) == 0 {
		return
	}
	last := job.History[len(job.History)-1]
	attrs := []logging.Attr{
		logging.JobID(job.ID),
		logging.String("from", string(last.From)),
		logging.String("to", string(last.To)),
		logging.Int("progress", job.Progress),
		logging.String(logging.FieldEventType, "job_transition"),
	}
	if job.ExternalID != "" {
		attrs = append(attrs, logging.ExternalID(job.ExternalID))
	}
	if job.Failure != nil {
		attrs = append(attrs,
			logging.String("failure_kind", string(job.Failure.Kind)),
			logging.String("failure_message", job.Failure.Message),
		)
	}
	if last.From == last.To {
		o.logger.Debug("job progress", logging.Args(attrs...)...)
		return
	}
	o.logger.Info("job transition", logging.Args(attrs...)...)
}
