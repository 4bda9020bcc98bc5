package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"avatarcast/internal/catalog"
	"avatarcast/internal/logging"
	"avatarcast/internal/services/avatarapi"
)

type fakeProvider struct {
	mu            sync.Mutex
	generate      func(call int, req avatarapi.GenerateRequest) (string, error)
	status        func(call int, videoID string) (avatarapi.VideoStatus, error)
	generateCalls int
	statusCalls   int
	active        map[string]int
	maxActive     int
}

func (p *fakeProvider) Generate(ctx context.Context, req avatarapi.GenerateRequest) (string, error) {
	p.mu.Lock()
	p.generateCalls++
	call := p.generateCalls
	fn := p.generate
	p.mu.Unlock()
	if fn == nil {
		return "vid-" + req.CallbackID, nil
	}
	return fn(call, req)
}

func (p *fakeProvider) Status(ctx context.Context, videoID string) (avatarapi.VideoStatus, error) {
	p.mu.Lock()
	p.statusCalls++
	call := p.statusCalls
	if p.active == nil {
		p.active = make(map[string]int)
	}
	p.active[videoID]++
	if p.active[videoID] > p.maxActive {
		p.maxActive = p.active[videoID]
	}
	fn := p.status
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.active[videoID]--
		p.mu.Unlock()
	}()
	if fn == nil {
		return avatarapi.VideoStatus{VideoID: videoID, Status: avatarapi.StatusCompleted, VideoURL: "https://cdn.example/" + videoID + ".mp4", Progress: 100, HasProgress: true}, nil
	}
	return fn(call, videoID)
}

func (p *fakeProvider) counts() (generate, status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generateCalls, p.statusCalls
}

type staticResolver map[catalog.Category][]string

func (r staticResolver) Resolve(_ context.Context, category catalog.Category, id string) (catalog.Asset, bool) {
	for _, known := range r[category] {
		if known == id {
			return catalog.Asset{ID: id, Category: category}, true
		}
	}
	return catalog.Asset{}, false
}

func defaultResolver() staticResolver {
	return staticResolver{
		catalog.CategoryAvatar: {"A1"},
		catalog.CategoryVoice:  {"V1"},
	}
}

func fastSettings() Settings {
	return Settings{
		TickInterval:  2 * time.Millisecond,
		PollInterval:  5 * time.Millisecond,
		BackoffBase:   2 * time.Millisecond,
		BackoffMax:    10 * time.Millisecond,
		Timeout:       2 * time.Second,
		SubmitTimeout: 500 * time.Millisecond,
		CallTimeout:   time.Second,
		PollWorkers:   2,
	}
}

func newTestOrchestrator(t *testing.T, provider Provider, settings Settings, opts ...Option) *Orchestrator {
	t.Helper()
	o := New(provider, defaultResolver(), settings, logging.NewNop(), opts...)
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(o.Stop)
	return o
}

func helloRequest() Request {
	return Request{Script: "Hello", AvatarID: "A1", VoiceID: "V1"}
}

// collect drains a subscription until it closes.
func collect(t *testing.T, o *Orchestrator, id string) []Transition {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ch, err := o.Subscribe(ctx, id)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	var out []Transition
	for transition := range ch {
		out = append(out, transition)
	}
	if ctx.Err() != nil {
		t.Fatalf("subscription for %s did not reach a terminal state; got %+v", id, out)
	}
	return out
}

func states(transitions []Transition) []State {
	out := make([]State, 0, len(transitions))
	for _, t := range transitions {
		if len(out) > 0 && out[len(out)-1] == t.To {
			continue
		}
		out = append(out, t.To)
	}
	return out
}

type recordingJournal struct {
	mu    sync.Mutex
	saved []Job
}

func (j *recordingJournal) Save(_ context.Context, job Job) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.saved = append(j.saved, job)
	return nil
}

func (j *recordingJournal) snapshot() []Job {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]Job(nil), j.saved...)
}

type recordingNotifier struct {
	mu       sync.Mutex
	finished []Job
}

func (n *recordingNotifier) JobFinished(_ context.Context, job Job) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.finished = append(n.finished, job)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.finished)
}
