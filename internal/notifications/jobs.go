package notifications

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"avatarcast/internal/export"
	"avatarcast/internal/jobs"
	"avatarcast/internal/logging"
)

const deliveryTimeout = 30 * time.Second

// JobNotifier forwards terminal job and export events to a Service.
type JobNotifier struct {
	svc    Service
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewJobNotifier wraps svc.
func NewJobNotifier(svc Service, logger *slog.Logger) *JobNotifier {
	return &JobNotifier{svc: svc, logger: logging.NewComponentLogger(logger, "notifications")}
}

// JobFinished implements jobs.Notifier.
func (n *JobNotifier) JobFinished(ctx context.Context, job jobs.Job) {
	payload := Payload{"job": job.ID, "script": summarize(job.Request.Script)}
	var event Event
	switch job.State {
	case jobs.StateSucceeded:
		event = EventJobCompleted
		payload["url"] = job.OutputRef
	case jobs.StateFailed:
		event = EventJobFailed
		if job.Failure != nil {
			payload["kind"] = string(job.Failure.Kind)
			payload["reason"] = job.Failure.Message
		}
	case jobs.StateCancelled:
		event = EventJobCancelled
	default:
		return
	}
	n.deliver(ctx, event, payload, job.ID)
}

// ExportFinished reports a completed export batch.
func (n *JobNotifier) ExportFinished(ctx context.Context, presetID string, summary export.Summary) {
	n.deliver(ctx, EventExportCompleted, Payload{
		"preset":  presetID,
		"total":   summary.Total,
		"done":    summary.Done,
		"failed":  summary.Failed,
		"skipped": summary.Skipped,
	}, "")
}

// Wait blocks until in-flight deliveries finish.
func (n *JobNotifier) Wait() {
	n.wg.Wait()
}

func (n *JobNotifier) deliver(ctx context.Context, event Event, payload Payload, jobID string) {
	if n == nil || n.svc == nil {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
		defer cancel()
		if err := n.svc.Publish(sendCtx, event, payload); err != nil {
			logging.WarnWithContext(n.logger, "notification delivery failed",
				"notification_failed",
				logging.String("event", string(event)),
				logging.JobID(jobID),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			)
		}
	}()
}

func summarize(script string) string {
	runes := []rune(script)
	if len(runes) <= 60 {
		return script
	}
	return string(runes[:57]) + "..."
}
