package jobs

import (
	"context"
	"slices"
	"strings"

	"avatarcast/internal/services"
)

const subscriberBuffer = 16

type subscriber struct {
	notify chan struct{}
}

func (s *subscriber) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Subscribe streams the job's transitions, starting with its full history.
// The channel closes after the terminal transition is delivered or when ctx
// ends. Delivery is paced by the reader; the orchestrator never waits on it.
func (o *Orchestrator) Subscribe(ctx context.Context, id string) (<-chan Transition, error) {
	id = strings.TrimSpace(id)
	o.mu.Lock()
	rec, ok := o.jobs[id]
	if !ok {
		o.mu.Unlock()
		return nil, services.Wrap(services.ErrNotFound, "jobs", "subscribe", "job "+id, nil)
	}
	sub := &subscriber{notify: make(chan struct{}, 1)}
	rec.subscribers[sub] = struct{}{}
	o.mu.Unlock()

	out := make(chan Transition, subscriberBuffer)
	go o.forward(ctx, rec, sub, out)
	return out, nil
}

func (o *Orchestrator) forward(ctx context.Context, rec *record, sub *subscriber, out chan<- Transition) {
	defer close(out)
	defer func() {
		o.mu.Lock()
		delete(rec.subscribers, sub)
		o.mu.Unlock()
	}()

	cursor := 0
	for {
		o.mu.RLock()
		pending := slices.Clone(rec.job.History[cursor:])
		o.mu.RUnlock()

		for _, transition := range pending {
			select {
			case out <- transition:
			case <-ctx.Done():
				return
			}
			cursor++
			if transition.Terminal() {
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-sub.notify:
		}
	}
}
