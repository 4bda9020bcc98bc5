package jobs

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"avatarcast/internal/logging"
	"avatarcast/internal/services"
	"avatarcast/internal/services/avatarapi"
)

type pollTask struct {
	jobID      string
	externalID string
	lastPolled time.Time
}

// Start launches the scheduler tick and the poll worker pool.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.runMu.Lock()
	defer o.runMu.Unlock()
	if o.running {
		return errors.New("orchestrator already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.running = true
	o.work = make(chan pollTask, o.settings.PollWorkers)

	o.wg.Add(o.settings.PollWorkers + 1)
	for range o.settings.PollWorkers {
		go o.runWorker(runCtx, o.work)
	}
	go o.runScheduler(runCtx, o.work)

	o.logger.Info("job orchestrator started",
		logging.Int("poll_workers", o.settings.PollWorkers),
		logging.Duration("tick_interval", o.settings.TickInterval),
		logging.Duration("poll_interval", o.settings.PollInterval),
		logging.Duration("timeout", o.settings.Timeout),
	)
	return nil
}

// Stop halts polling and waits for workers to exit. In-flight poll results
// are discarded; jobs keep their current state.
func (o *Orchestrator) Stop() {
	o.runMu.Lock()
	if !o.running {
		o.runMu.Unlock()
		return
	}
	cancel := o.cancel
	work := o.work
	o.running = false
	o.cancel = nil
	o.runMu.Unlock()

	cancel()
	o.wg.Wait()

	// Tasks still buffered were never polled; free them for the next Start.
	for {
		select {
		case task := <-work:
			o.release(task)
		default:
			return
		}
	}
}

// Running reports whether the scheduler is active.
func (o *Orchestrator) Running() bool {
	o.runMu.Lock()
	defer o.runMu.Unlock()
	return o.running
}

func (o *Orchestrator) runScheduler(ctx context.Context, work chan<- pollTask) {
	defer o.wg.Done()
	ticker := time.NewTicker(o.settings.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.tick(ctx, work)
		}
	}
}

func (o *Orchestrator) runWorker(ctx context.Context, work <-chan pollTask) {
	defer o.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-work:
			o.poll(ctx, task)
		}
	}
}

// tick times out overdue jobs and dispatches due polls. It never blocks on
// the worker pool: tasks that do not fit are left for the next tick.
func (o *Orchestrator) tick(ctx context.Context, work chan<- pollTask) {
	now := o.now()
	var changed []Job
	var due []pollTask

	o.mu.Lock()
	for _, rec := range o.jobs {
		if rec.job.State != StateProcessing {
			continue
		}
		if elapsed := now.Sub(rec.job.ProcessingSince); elapsed >= o.settings.Timeout {
			o.failLocked(rec, FailureTimeout, fmt.Sprintf("provider did not finish within %s", o.settings.Timeout))
			changed = append(changed, rec.job.clone())
			continue
		}
		if now.Before(rec.nextPoll) {
			continue
		}
		if _, busy := o.inflight[rec.job.ExternalID]; busy {
			continue
		}
		o.inflight[rec.job.ExternalID] = struct{}{}
		due = append(due, pollTask{jobID: rec.job.ID, externalID: rec.job.ExternalID, lastPolled: rec.job.LastPolledAt})
	}
	o.mu.Unlock()

	o.commit(ctx, changed...)

	slices.SortFunc(due, func(a, b pollTask) int {
		return a.lastPolled.Compare(b.lastPolled)
	})
	for i, task := range due {
		select {
		case work <- task:
		default:
			o.release(due[i:]...)
			return
		}
	}
}

func (o *Orchestrator) release(tasks ...pollTask) {
	o.mu.Lock()
	for _, task := range tasks {
		delete(o.inflight, task.externalID)
	}
	o.mu.Unlock()
}

func (o *Orchestrator) poll(ctx context.Context, task pollTask) {
	defer o.release(task)

	callCtx, cancel := context.WithTimeout(ctx, o.settings.CallTimeout)
	status, err := o.provider.Status(callCtx, task.externalID)
	cancel()
	if ctx.Err() != nil {
		return
	}
	o.applyPoll(ctx, task, status, err)
}

func (o *Orchestrator) applyPoll(ctx context.Context, task pollTask, status avatarapi.VideoStatus, pollErr error) {
	now := o.now()
	logger := o.logger.With(
		logging.JobID(task.jobID),
		logging.ExternalID(task.externalID),
	)

	o.mu.Lock()
	rec, ok := o.jobs[task.jobID]
	if !ok || rec.job.State != StateProcessing || rec.job.ExternalID != task.externalID {
		o.mu.Unlock()
		logger.Debug("discarding poll result for inactive job")
		return
	}
	rec.job.LastPolledAt = now
	rec.job.Attempts++

	var (
		changed  bool
		retryIn  time.Duration
		failures int
	)
	switch {
	case pollErr != nil && services.IsRetryable(pollErr):
		rec.pollFailures++
		failures = rec.pollFailures
		retryIn = backoffDelay(o.settings.BackoffBase, o.settings.BackoffMax, rec.pollFailures, avatarapi.RetryAfter(pollErr))
		rec.nextPoll = now.Add(retryIn)
	case pollErr != nil:
		o.failLocked(rec, FailureProviderError, pollErr.Error())
		changed = true
	default:
		rec.pollFailures = 0
		changed = o.applyStatusLocked(rec, status, now)
	}
	job := rec.job.clone()
	o.mu.Unlock()

	if retryIn > 0 {
		logging.WarnWithContext(logger, "status poll failed; backing off",
			"job_poll_retry",
			logging.Int("consecutive_failures", failures),
			logging.Duration("retry_in", retryIn),
			logging.Error(pollErr),
			logging.String(logging.FieldErrorHint, "provider unreachable or overloaded; polling continues until the job timeout"),
			logging.String(logging.FieldImpact, "job status updates delayed"),
		)
	}
	if changed {
		o.commit(ctx, job)
	}
}

// applyStatusLocked maps a provider status onto the job. It reports whether
// a transition was recorded.
func (o *Orchestrator) applyStatusLocked(rec *record, status avatarapi.VideoStatus, now time.Time) bool {
	switch status.Status {
	case avatarapi.StatusCompleted:
		if status.VideoURL == "" {
			o.failLocked(rec, FailureProviderError, "provider reported completion without a video url")
			return true
		}
		return o.transitionLocked(rec, StateSucceeded, func(job *Job) {
			job.Progress = 100
			job.OutputRef = status.VideoURL
			job.ThumbnailURL = status.ThumbnailURL
			job.DurationSeconds = status.DurationSeconds
		})
	case avatarapi.StatusFailed:
		message := status.ErrorMessage
		if status.ErrorCode != "" {
			message = fmt.Sprintf("%s (code %s)", message, status.ErrorCode)
		}
		o.failLocked(rec, FailureProviderError, message)
		return true
	case avatarapi.StatusPending, avatarapi.StatusProcessing:
		rec.nextPoll = now.Add(o.settings.PollInterval)
		if !status.HasProgress {
			return false
		}
		progress := clampProgress(status.Progress)
		if progress <= rec.job.Progress {
			return false
		}
		return o.transitionLocked(rec, StateProcessing, func(job *Job) {
			job.Progress = progress
		})
	default:
		o.failLocked(rec, FailureProviderError, fmt.Sprintf("unknown provider status %q", status.Status))
		return true
	}
}

func clampProgress(value int) int {
	switch {
	case value < 0:
		return 0
	case value > 100:
		return 100
	default:
		return value
	}
}
