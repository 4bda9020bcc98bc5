package jobs

import (
	"slices"
	"time"
)

// State is a generation job lifecycle state.
type State string

const (
	StateQueued     State = "queued"
	StateSubmitting State = "submitting"
	StateProcessing State = "processing"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

var allowedTransitions = map[State][]State{
	"":              {StateQueued},
	StateQueued:     {StateSubmitting, StateCancelled, StateFailed},
	StateSubmitting: {StateProcessing, StateFailed, StateCancelled},
	StateProcessing: {StateProcessing, StateSucceeded, StateFailed, StateCancelled},
}

func canTransition(from, to State) bool {
	return slices.Contains(allowedTransitions[from], to)
}

// FailureKind classifies why a job failed.
type FailureKind string

const (
	FailureInvalidReference FailureKind = "invalid_reference"
	FailureProviderRejected FailureKind = "provider_rejected"
	FailureProviderError    FailureKind = "provider_error"
	FailureTimeout          FailureKind = "timeout"
)

// Failure describes a failed job.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

// Request is a validated generation request.
type Request struct {
	Script      string `json:"script"`
	AvatarID    string `json:"avatar_id"`
	VoiceID     string `json:"voice_id"`
	Quality     string `json:"quality"`
	AspectRatio string `json:"aspect_ratio"`
}

// Transition is one entry in a job's audit history. Progress-only updates
// while processing are recorded with From == To.
type Transition struct {
	JobID     string    `json:"job_id"`
	Seq       int       `json:"seq"`
	From      State     `json:"from,omitempty"`
	To        State     `json:"to"`
	Progress  int       `json:"progress"`
	OutputRef string    `json:"output_ref,omitempty"`
	Failure   *Failure  `json:"failure,omitempty"`
	At        time.Time `json:"at"`
}

// Terminal reports whether the transition ends the job.
func (t Transition) Terminal() bool {
	return t.To.Terminal()
}

// Job is a snapshot of a generation job.
type Job struct {
	ID              string       `json:"id"`
	Request         Request      `json:"request"`
	State           State        `json:"state"`
	Progress        int          `json:"progress"`
	OutputRef       string       `json:"output_ref,omitempty"`
	ThumbnailURL    string       `json:"thumbnail_url,omitempty"`
	DurationSeconds float64      `json:"duration_seconds,omitempty"`
	ExternalID      string       `json:"external_id,omitempty"`
	Failure         *Failure     `json:"failure,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
	ProcessingSince time.Time    `json:"processing_since,omitzero"`
	LastPolledAt    time.Time    `json:"last_polled_at,omitzero"`
	Attempts        int          `json:"attempts"`
	History         []Transition `json:"history"`
}

func (j Job) clone() Job {
	out := j
	out.History = slices.Clone(j.History)
	if j.Failure != nil {
		failure := *j.Failure
		out.Failure = &failure
	}
	return out
}

// Stats counts jobs per state.
type Stats struct {
	Total  int           `json:"total"`
	States map[State]int `json:"states"`
}
