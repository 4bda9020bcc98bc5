package testsupport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// FakeAvatar and FakeVoice describe catalog entries served by FakeProvider.
type FakeAvatar struct {
	ID   string
	Name string
}

type FakeVoice struct {
	ID       string
	Name     string
	Language string
}

// FakeProvider is an httptest server speaking the avatar provider wire format.
// Videos complete after PollsToComplete status calls; scripts containing
// "FAIL" end in a provider-side failure.
type FakeProvider struct {
	Server *httptest.Server

	mu              sync.Mutex
	avatars         []FakeAvatar
	voices          []FakeVoice
	videos          map[string]*fakeVideo
	nextID          int
	catalogDown     bool
	generateStatus  int
	PollsToComplete int
	DurationSeconds float64
	generateCalls   int
	statusCalls     int
}

type fakeVideo struct {
	script string
	polls  int
}

// NewFakeProvider starts a provider server and registers cleanup.
func NewFakeProvider(t testing.TB) *FakeProvider {
	t.Helper()
	p := &FakeProvider{
		avatars:         []FakeAvatar{{ID: "anna_public_20240108", Name: "Anna"}, {ID: "josh_lite3_20230714", Name: "Josh"}},
		voices:          []FakeVoice{{ID: "voice-en-1", Name: "Paige", Language: "English"}},
		videos:          map[string]*fakeVideo{},
		PollsToComplete: 2,
		DurationSeconds: 12,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /avatar/list", p.handleAvatars)
	mux.HandleFunc("POST /voice/list", p.handleVoices)
	mux.HandleFunc("POST /video/generate", p.handleGenerate)
	mux.HandleFunc("GET /video/status", p.handleStatus)
	mux.HandleFunc("GET /files/{name}", p.handleFile)
	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Server.Close)
	return p
}

// URL is the base URL to configure the client with.
func (p *FakeProvider) URL() string {
	return p.Server.URL
}

// SetCatalogDown makes catalog endpoints return 503.
func (p *FakeProvider) SetCatalogDown(down bool) {
	p.mu.Lock()
	p.catalogDown = down
	p.mu.Unlock()
}

// SetGenerateStatus forces /video/generate to reply with status; 0 restores normal behavior.
func (p *FakeProvider) SetGenerateStatus(status int) {
	p.mu.Lock()
	p.generateStatus = status
	p.mu.Unlock()
}

// SetPollsToComplete changes how many status calls a video needs to finish.
func (p *FakeProvider) SetPollsToComplete(n int) {
	p.mu.Lock()
	p.PollsToComplete = n
	p.mu.Unlock()
}

// Calls reports generate and status call counts.
func (p *FakeProvider) Calls() (generate, status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generateCalls, p.statusCalls
}

func (p *FakeProvider) handleAvatars(w http.ResponseWriter, _ *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.catalogDown {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	items := make([]map[string]any, 0, len(p.avatars))
	for _, a := range p.avatars {
		items = append(items, map[string]any{"avatar_id": a.ID, "avatar_name": a.Name, "gender": "female"})
	}
	writeData(w, map[string]any{"avatars": items})
}

func (p *FakeProvider) handleVoices(w http.ResponseWriter, _ *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.catalogDown {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	items := make([]map[string]any, 0, len(p.voices))
	for _, v := range p.voices {
		items = append(items, map[string]any{"voice_id": v.ID, "display_name": v.Name, "language": v.Language})
	}
	writeData(w, map[string]any{"voices": items})
}

func (p *FakeProvider) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Script string `json:"script"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.generateCalls++
	if p.generateStatus != 0 {
		http.Error(w, `{"error":{"code":"forced","message":"forced failure"}}`, p.generateStatus)
		return
	}
	p.nextID++
	id := fmt.Sprintf("vid-%d", p.nextID)
	p.videos[id] = &fakeVideo{script: body.Script}
	writeData(w, map[string]any{"video_id": id})
}

func (p *FakeProvider) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("video_id")

	p.mu.Lock()
	defer p.mu.Unlock()
	p.statusCalls++
	video, ok := p.videos[id]
	if !ok {
		http.Error(w, `{"error":{"code":"not_found","message":"unknown video"}}`, http.StatusNotFound)
		return
	}
	video.polls++
	payload := map[string]any{"video_id": id}
	switch {
	case video.polls < p.PollsToComplete:
		payload["status"] = "processing"
		payload["progress"] = float64(video.polls) / float64(p.PollsToComplete)
	case strings.Contains(video.script, "FAIL"):
		payload["status"] = "failed"
		payload["error"] = map[string]any{"code": "render_failed", "message": "render failed"}
	default:
		payload["status"] = "completed"
		payload["video_url"] = p.Server.URL + "/files/" + id + ".mp4"
		payload["thumbnail_url"] = p.Server.URL + "/files/" + id + ".jpg"
		payload["duration"] = p.DurationSeconds
	}
	writeData(w, payload)
}

func (p *FakeProvider) handleFile(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "video/mp4")
	_, _ = w.Write([]byte("video:" + r.PathValue("name")))
}

func writeData(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
}
