package jobs

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"avatarcast/internal/logging"
	"avatarcast/internal/services"
	"avatarcast/internal/services/avatarapi"
)

func TestSubmitSuccessScenario(t *testing.T) {
	provider := &fakeProvider{
		status: func(call int, videoID string) (avatarapi.VideoStatus, error) {
			if call < 3 {
				return avatarapi.VideoStatus{Status: avatarapi.StatusProcessing, Progress: call * 30, HasProgress: true}, nil
			}
			return avatarapi.VideoStatus{Status: avatarapi.StatusCompleted, VideoURL: "https://cdn.example/out.mp4", DurationSeconds: 12}, nil
		},
	}
	o := newTestOrchestrator(t, provider, fastSettings())

	id, err := o.Submit(context.Background(), helloRequest())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	transitions := collect(t, o, id)

	want := []State{StateQueued, StateSubmitting, StateProcessing, StateSucceeded}
	if got := states(transitions); !slices.Equal(got, want) {
		t.Fatalf("unexpected state sequence: got %v want %v", got, want)
	}
	job, err := o.Status(id)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if job.OutputRef == "" {
		t.Fatal("expected non-empty output ref")
	}
	if job.Progress != 100 || job.DurationSeconds != 12 {
		t.Fatalf("unexpected completion fields: progress=%d duration=%v", job.Progress, job.DurationSeconds)
	}
	if job.ExternalID != "vid-"+id {
		t.Fatalf("expected external id recorded, got %q", job.ExternalID)
	}
	if job.Request.Quality != QualityMedium || job.Request.AspectRatio != AspectLandscape {
		t.Fatalf("expected request defaults, got %+v", job.Request)
	}
}

func TestSubmitValidation(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want error
	}{
		{name: "unknown avatar", req: Request{Script: "Hello", AvatarID: "A9", VoiceID: "V1"}, want: services.ErrInvalidReference},
		{name: "unknown voice", req: Request{Script: "Hello", AvatarID: "A1", VoiceID: "V9"}, want: services.ErrInvalidReference},
		{name: "empty script", req: Request{Script: "   ", AvatarID: "A1", VoiceID: "V1"}, want: services.ErrInvalidRequest},
		{name: "bad quality", req: Request{Script: "Hi", AvatarID: "A1", VoiceID: "V1", Quality: "ultra"}, want: services.ErrInvalidRequest},
		{name: "bad aspect", req: Request{Script: "Hi", AvatarID: "A1", VoiceID: "V1", AspectRatio: "4:3"}, want: services.ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &fakeProvider{}
			o := New(provider, defaultResolver(), fastSettings(), logging.NewNop())
			id, err := o.Submit(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if id != "" {
				t.Fatalf("expected no job id, got %q", id)
			}
			if len(o.List()) != 0 {
				t.Fatal("validation failure must not create a job record")
			}
			if gen, _ := provider.counts(); gen != 0 {
				t.Fatalf("expected no provider calls, got %d", gen)
			}
		})
	}
}

func TestSubmitProviderRejection(t *testing.T) {
	provider := &fakeProvider{
		generate: func(int, avatarapi.GenerateRequest) (string, error) {
			return "", services.Wrap(services.ErrProviderRejected, "avatarapi", "generate video", "provider rejected request", errors.New("http 400: bad avatar"))
		},
	}
	o := New(provider, defaultResolver(), fastSettings(), logging.NewNop())

	id, err := o.Submit(context.Background(), helloRequest())
	if !errors.Is(err, services.ErrProviderRejected) {
		t.Fatalf("expected provider rejected error, got %v", err)
	}
	if id == "" {
		t.Fatal("expected job id for a rejected submission")
	}
	job, _ := o.Status(id)
	if job.State != StateFailed || job.Failure == nil || job.Failure.Kind != FailureProviderRejected {
		t.Fatalf("unexpected job after rejection: %+v", job)
	}
	if gen, _ := provider.counts(); gen != 1 {
		t.Fatalf("rejections must not be retried, got %d calls", gen)
	}
}

func TestSubmitMalformedCreateResponse(t *testing.T) {
	provider := &fakeProvider{
		generate: func(int, avatarapi.GenerateRequest) (string, error) {
			return "", services.Wrap(services.ErrMalformedResponse, "avatarapi", "generate video", "response missing data.video_id", nil)
		},
	}
	o := New(provider, defaultResolver(), fastSettings(), logging.NewNop())

	id, err := o.Submit(context.Background(), helloRequest())
	if !errors.Is(err, services.ErrProviderError) {
		t.Fatalf("expected provider error, got %v", err)
	}
	job, _ := o.Status(id)
	if job.Failure == nil || job.Failure.Kind != FailureProviderError {
		t.Fatalf("unexpected failure: %+v", job.Failure)
	}
}

func TestSubmitRetriesTransientCreateErrors(t *testing.T) {
	provider := &fakeProvider{
		generate: func(call int, req avatarapi.GenerateRequest) (string, error) {
			if call < 3 {
				return "", services.Wrap(services.ErrTransient, "avatarapi", "generate video", "provider unavailable", nil)
			}
			return "vid-ok", nil
		},
	}
	o := New(provider, defaultResolver(), fastSettings(), logging.NewNop())

	id, err := o.Submit(context.Background(), helloRequest())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	job, _ := o.Status(id)
	if job.State != StateProcessing || job.ExternalID != "vid-ok" {
		t.Fatalf("unexpected job: state=%s external=%q", job.State, job.ExternalID)
	}
	if job.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", job.Attempts)
	}
}

func TestSubmitCreateRetriesExhaustedIsTimeout(t *testing.T) {
	provider := &fakeProvider{
		generate: func(int, avatarapi.GenerateRequest) (string, error) {
			return "", services.Wrap(services.ErrTransient, "avatarapi", "generate video", "provider unavailable", nil)
		},
	}
	settings := fastSettings()
	settings.SubmitTimeout = 30 * time.Millisecond
	o := New(provider, defaultResolver(), settings, logging.NewNop())

	id, err := o.Submit(context.Background(), helloRequest())
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	job, _ := o.Status(id)
	if job.State != StateFailed || job.Failure.Kind != FailureTimeout {
		t.Fatalf("unexpected job: %+v", job)
	}
}

func TestPersistentStatusFailuresTimeOut(t *testing.T) {
	provider := &fakeProvider{
		status: func(int, string) (avatarapi.VideoStatus, error) {
			return avatarapi.VideoStatus{}, services.Wrap(services.ErrTransient, "avatarapi", "video status", "network error", errors.New("connection refused"))
		},
	}
	settings := fastSettings()
	settings.Timeout = 60 * time.Millisecond
	o := newTestOrchestrator(t, provider, settings)

	id, err := o.Submit(context.Background(), helloRequest())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	collect(t, o, id)

	job, _ := o.Status(id)
	if job.State != StateFailed || job.Failure == nil || job.Failure.Kind != FailureTimeout {
		t.Fatalf("expected failed{timeout}, got %+v", job)
	}

	time.Sleep(15 * time.Millisecond)
	_, before := provider.counts()
	time.Sleep(50 * time.Millisecond)
	if _, after := provider.counts(); after != before {
		t.Fatalf("polling continued after timeout: %d -> %d", before, after)
	}
}

func TestProgressNeverDecreases(t *testing.T) {
	sequence := []int{10, 50, 30, 30, 70, -5, 140}
	provider := &fakeProvider{
		status: func(call int, _ string) (avatarapi.VideoStatus, error) {
			if call <= len(sequence) {
				return avatarapi.VideoStatus{Status: avatarapi.StatusProcessing, Progress: sequence[call-1], HasProgress: true}, nil
			}
			return avatarapi.VideoStatus{Status: avatarapi.StatusCompleted, VideoURL: "https://cdn.example/v.mp4"}, nil
		},
	}
	o := newTestOrchestrator(t, provider, fastSettings())

	id, err := o.Submit(context.Background(), helloRequest())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	transitions := collect(t, o, id)

	last := -1
	for _, tr := range transitions {
		if tr.Progress < last {
			t.Fatalf("progress regressed from %d to %d in %+v", last, tr.Progress, transitions)
		}
		if tr.Progress > 100 {
			t.Fatalf("progress exceeded 100: %d", tr.Progress)
		}
		last = tr.Progress
	}
	if last != 100 {
		t.Fatalf("expected final progress 100, got %d", last)
	}
}

func TestExactlyOneTerminalTransition(t *testing.T) {
	o := newTestOrchestrator(t, &fakeProvider{}, fastSettings())

	id, err := o.Submit(context.Background(), helloRequest())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	collect(t, o, id)
	time.Sleep(20 * time.Millisecond)

	job, _ := o.Status(id)
	terminal := 0
	for _, tr := range job.History {
		if tr.Terminal() {
			terminal++
		}
	}
	if terminal != 1 {
		t.Fatalf("expected exactly one terminal transition, got %d in %+v", terminal, job.History)
	}
	if !job.History[len(job.History)-1].Terminal() {
		t.Fatal("terminal transition must be last")
	}
}

func TestCancelTerminalJobLeavesRecordUnchanged(t *testing.T) {
	o := newTestOrchestrator(t, &fakeProvider{}, fastSettings())

	id, err := o.Submit(context.Background(), helloRequest())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	collect(t, o, id)
	before, _ := o.Status(id)

	err = o.Cancel(context.Background(), id)
	if !errors.Is(err, services.ErrAlreadyTerminal) {
		t.Fatalf("expected already terminal error, got %v", err)
	}
	after, _ := o.Status(id)
	if after.State != before.State || !after.UpdatedAt.Equal(before.UpdatedAt) || len(after.History) != len(before.History) {
		t.Fatalf("cancel altered terminal record: before=%+v after=%+v", before, after)
	}
}

func TestCancelProcessingStopsPolling(t *testing.T) {
	var polls atomic.Int32
	provider := &fakeProvider{
		status: func(int, string) (avatarapi.VideoStatus, error) {
			polls.Add(1)
			return avatarapi.VideoStatus{Status: avatarapi.StatusProcessing}, nil
		},
	}
	o := newTestOrchestrator(t, provider, fastSettings())

	id, err := o.Submit(context.Background(), helloRequest())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for polls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := o.Cancel(context.Background(), id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	job, _ := o.Status(id)
	if job.State != StateCancelled {
		t.Fatalf("expected cancelled, got %s", job.State)
	}

	time.Sleep(10 * time.Millisecond)
	settled := polls.Load()
	time.Sleep(40 * time.Millisecond)
	if polls.Load() != settled {
		t.Fatalf("polling continued after cancel: %d -> %d", settled, polls.Load())
	}
}

func TestCancelDuringSubmittingAppliesAfterCreate(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	provider := &fakeProvider{
		generate: func(int, avatarapi.GenerateRequest) (string, error) {
			close(entered)
			<-release
			return "vid-late", nil
		},
	}
	o := newTestOrchestrator(t, provider, fastSettings())

	type result struct {
		id  string
		err error
	}
	done := make(chan result, 1)
	go func() {
		id, err := o.Submit(context.Background(), helloRequest())
		done <- result{id, err}
	}()
	<-entered

	jobs := o.List()
	if len(jobs) != 1 || jobs[0].State != StateSubmitting {
		t.Fatalf("expected one submitting job, got %+v", jobs)
	}
	if err := o.Cancel(context.Background(), jobs[0].ID); err != nil {
		t.Fatalf("Cancel during submit: %v", err)
	}
	close(release)
	res := <-done
	if res.err != nil {
		t.Fatalf("Submit: %v", res.err)
	}

	job, _ := o.Status(res.id)
	if job.State != StateCancelled {
		t.Fatalf("expected cancelled after create returned, got %s", job.State)
	}
	if job.ExternalID != "vid-late" {
		t.Fatalf("expected external id recorded, got %q", job.ExternalID)
	}
	time.Sleep(20 * time.Millisecond)
	if _, statusCalls := provider.counts(); statusCalls != 0 {
		t.Fatalf("cancelled job must not be polled, got %d polls", statusCalls)
	}
}

func TestProviderFailureAndMalformedStatus(t *testing.T) {
	tests := []struct {
		name    string
		status  avatarapi.VideoStatus
		err     error
		message string
	}{
		{
			name:    "provider failed",
			status:  avatarapi.VideoStatus{Status: avatarapi.StatusFailed, ErrorMessage: "avatar unavailable"},
			message: "avatar unavailable",
		},
		{
			name:    "malformed",
			err:     services.Wrap(services.ErrMalformedResponse, "avatarapi", "video status", `unknown status "teleporting"`, nil),
			message: "teleporting",
		},
		{
			name:    "completed without url",
			status:  avatarapi.VideoStatus{Status: avatarapi.StatusCompleted},
			message: "without a video url",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &fakeProvider{
				status: func(int, string) (avatarapi.VideoStatus, error) { return tt.status, tt.err },
			}
			o := newTestOrchestrator(t, provider, fastSettings())
			id, err := o.Submit(context.Background(), helloRequest())
			if err != nil {
				t.Fatalf("Submit: %v", err)
			}
			collect(t, o, id)
			job, _ := o.Status(id)
			if job.State != StateFailed || job.Failure == nil || job.Failure.Kind != FailureProviderError {
				t.Fatalf("expected failed{provider_error}, got %+v", job)
			}
			if !strings.Contains(job.Failure.Message, tt.message) {
				t.Fatalf("expected failure message to mention %q, got %q", tt.message, job.Failure.Message)
			}
		})
	}
}

func TestAtMostOnePollInFlightPerVideo(t *testing.T) {
	provider := &fakeProvider{
		status: func(call int, _ string) (avatarapi.VideoStatus, error) {
			time.Sleep(15 * time.Millisecond)
			if call >= 4 {
				return avatarapi.VideoStatus{Status: avatarapi.StatusCompleted, VideoURL: "https://cdn.example/v.mp4"}, nil
			}
			return avatarapi.VideoStatus{Status: avatarapi.StatusProcessing}, nil
		},
	}
	settings := fastSettings()
	settings.PollInterval = time.Millisecond
	settings.PollWorkers = 4
	o := newTestOrchestrator(t, provider, settings)

	id, err := o.Submit(context.Background(), helloRequest())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	collect(t, o, id)

	provider.mu.Lock()
	maxActive := provider.maxActive
	provider.mu.Unlock()
	if maxActive != 1 {
		t.Fatalf("expected at most one concurrent poll per video, saw %d", maxActive)
	}
}

func TestSubscribeReplaysHistoryForFinishedJob(t *testing.T) {
	o := newTestOrchestrator(t, &fakeProvider{}, fastSettings())
	id, err := o.Submit(context.Background(), helloRequest())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	first := collect(t, o, id)
	second := collect(t, o, id)
	if len(first) != len(second) {
		t.Fatalf("replay mismatch: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Seq != i+1 || second[i].Seq != i+1 {
			t.Fatalf("unexpected sequence numbers: %+v / %+v", first[i], second[i])
		}
	}

	if _, err := o.Subscribe(context.Background(), "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSubscribeClosesWhenContextEnds(t *testing.T) {
	provider := &fakeProvider{
		status: func(int, string) (avatarapi.VideoStatus, error) {
			return avatarapi.VideoStatus{Status: avatarapi.StatusPending}, nil
		},
	}
	o := newTestOrchestrator(t, provider, fastSettings())
	id, err := o.Submit(context.Background(), helloRequest())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := o.Subscribe(ctx, id)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	cancel()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("subscription did not close after context cancellation")
		}
	}
}

func TestJournalAndNotifierReceiveTransitions(t *testing.T) {
	journal := &recordingJournal{}
	notifier := &recordingNotifier{}
	o := newTestOrchestrator(t, &fakeProvider{}, fastSettings(), WithJournal(journal), WithNotifier(notifier))

	id, err := o.Submit(context.Background(), helloRequest())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	collect(t, o, id)
	time.Sleep(10 * time.Millisecond)

	saved := journal.snapshot()
	if len(saved) < 3 {
		t.Fatalf("expected submitting, processing and succeeded snapshots, got %d", len(saved))
	}
	if saved[len(saved)-1].State != StateSucceeded {
		t.Fatalf("expected last journaled state succeeded, got %s", saved[len(saved)-1].State)
	}
	if notifier.count() != 1 {
		t.Fatalf("expected one terminal notification, got %d", notifier.count())
	}
}

func TestRestoreResumesProcessingAndFailsInterrupted(t *testing.T) {
	o := newTestOrchestrator(t, &fakeProvider{}, fastSettings())
	since := time.Now().Add(-time.Second)
	restored := o.Restore(context.Background(), []Job{
		{ID: "job-processing", State: StateProcessing, ExternalID: "vid-77", ProcessingSince: since, CreatedAt: since,
			History: []Transition{{JobID: "job-processing", Seq: 1, To: StateQueued}, {Seq: 2, From: StateQueued, To: StateSubmitting}, {Seq: 3, From: StateSubmitting, To: StateProcessing}}},
		{ID: "job-submitting", State: StateSubmitting, CreatedAt: since,
			History: []Transition{{Seq: 1, To: StateQueued}, {Seq: 2, From: StateQueued, To: StateSubmitting}}},
		{ID: "job-done", State: StateSucceeded, OutputRef: "https://cdn.example/old.mp4", CreatedAt: since},
	})
	if restored != 3 {
		t.Fatalf("expected 3 restored jobs, got %d", restored)
	}

	collect(t, o, "job-processing")
	job, _ := o.Status("job-processing")
	if job.State != StateSucceeded {
		t.Fatalf("expected restored job to finish, got %s", job.State)
	}
	if !job.ProcessingSince.Equal(since) {
		t.Fatal("expected original processing start to be preserved")
	}

	interrupted, _ := o.Status("job-submitting")
	if interrupted.State != StateFailed || interrupted.Failure.Kind != FailureProviderError {
		t.Fatalf("expected interrupted job failed, got %+v", interrupted)
	}
	if again := o.Restore(context.Background(), []Job{{ID: "job-done", State: StateSucceeded}}); again != 0 {
		t.Fatalf("expected duplicate restore to be skipped, got %d", again)
	}
}

func TestStartTwiceFails(t *testing.T) {
	o := newTestOrchestrator(t, &fakeProvider{}, fastSettings())
	if err := o.Start(context.Background()); err == nil {
		t.Fatal("expected second Start to fail")
	}
	if !o.Running() {
		t.Fatal("expected orchestrator running")
	}
}

func TestRestartPollsTasksQueuedAtStop(t *testing.T) {
	settings := fastSettings()
	settings.PollWorkers = 1
	settings.Timeout = 5 * time.Second

	var blocking atomic.Bool
	blocking.Store(true)
	entered := make(chan struct{}, 1)
	unblock := make(chan struct{})
	provider := &fakeProvider{
		status: func(_ int, videoID string) (avatarapi.VideoStatus, error) {
			if blocking.Load() {
				select {
				case entered <- struct{}{}:
				default:
				}
				<-unblock
				return avatarapi.VideoStatus{}, context.Canceled
			}
			return avatarapi.VideoStatus{VideoID: videoID, Status: avatarapi.StatusCompleted, VideoURL: "https://cdn.example/" + videoID + ".mp4"}, nil
		},
	}
	o := New(provider, defaultResolver(), settings, logging.NewNop())
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var ids []string
	for range 2 {
		id, err := o.Submit(context.Background(), helloRequest())
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		ids = append(ids, id)
	}

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never polled")
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(o.work) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("second poll was never queued")
		}
		time.Sleep(time.Millisecond)
	}

	stopped := make(chan struct{})
	go func() {
		o.Stop()
		close(stopped)
	}()
	time.Sleep(10 * time.Millisecond)
	blocking.Store(false)
	close(unblock)
	<-stopped

	o.mu.Lock()
	leftover := len(o.inflight)
	o.mu.Unlock()
	if leftover != 0 {
		t.Fatalf("inflight after Stop = %d, want 0", leftover)
	}

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	t.Cleanup(o.Stop)
	for _, id := range ids {
		collect(t, o, id)
		job, err := o.Status(id)
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if job.State != StateSucceeded {
			t.Fatalf("job %s state = %s, want succeeded", id, job.State)
		}
	}
}
