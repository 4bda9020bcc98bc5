package jobs

import (
	"testing"
	"time"

	"golang.org/x/time/rate"

	"avatarcast/internal/catalog"
	"avatarcast/internal/logging"
	"avatarcast/internal/services/avatarapi"
	"avatarcast/internal/testsupport"
)

func TestRateLimitedPollsAreRetriedNotFailed(t *testing.T) {
	provider := testsupport.NewFakeProvider(t)
	limiter := rate.NewLimiter(rate.Every(100*time.Millisecond), 1)
	client := avatarapi.NewClient(avatarapi.Config{BaseURL: provider.URL(), APIKey: "k"}, avatarapi.WithLimiter(limiter))

	settings := fastSettings()
	settings.CallTimeout = 20 * time.Millisecond
	settings.Timeout = 5 * time.Second
	resolver := staticResolver{
		catalog.CategoryAvatar: {"anna_public_20240108"},
		catalog.CategoryVoice:  {"voice-en-1"},
	}
	o := New(client, resolver, settings, logging.NewNop())
	if err := o.Start(t.Context()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(o.Stop)

	id, err := o.Submit(t.Context(), Request{Script: "Hello", AvatarID: "anna_public_20240108", VoiceID: "voice-en-1"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	collect(t, o, id)

	job, err := o.Status(id)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if job.State != StateSucceeded {
		t.Fatalf("state = %s failure = %+v, want succeeded", job.State, job.Failure)
	}
}
