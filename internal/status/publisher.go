// Package status publishes training progress: snapshot reads for polling and
// subscriptions for push delivery.
package status

import (
	"sync"

	"github.com/hyperjump/kotae/internal/models"
)

const subscriberBuffer = 16

// Publisher is the single owned training-state cell. Writes replace the whole state
// under a lock, so readers never see a torn aggregate.
type Publisher struct {
	mu     sync.RWMutex
	state  models.TrainingState
	subs   map[int]chan models.TrainingState
	nextID int
}

// NewPublisher returns a publisher in the idle state.
func NewPublisher() *Publisher {
	return &Publisher{
		state: models.TrainingState{Stage: models.StageIdle, Message: "No training has run yet."},
		subs:  make(map[int]chan models.TrainingState),
	}
}

// Snapshot returns a copy of the current state.
func (p *Publisher) Snapshot() models.TrainingState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return clone(p.state)
}

// Set replaces the state and notifies subscribers.
func (p *Publisher) Set(s models.TrainingState) {
	p.Update(func(cur *models.TrainingState) { *cur = s })
}

// Update applies fn to the state atomically and notifies subscribers.
func (p *Publisher) Update(fn func(*models.TrainingState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.state)
	snap := clone(p.state)
	for _, ch := range p.subs {
		deliver(ch, snap)
	}
}

// Subscribe returns a channel receiving the current state followed by every update.
// Slow subscribers lose intermediate states, never the latest one.
// The returned cancel func must be called to release the subscription.
func (p *Publisher) Subscribe() (<-chan models.TrainingState, func()) {
	ch := make(chan models.TrainingState, subscriberBuffer)
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = ch
	ch <- clone(p.state)
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			close(ch)
			p.mu.Unlock()
		})
	}
}

// deliver sends without blocking, dropping the oldest queued state when full.
// Called with p.mu held, so it is the only sender on ch.
func deliver(ch chan models.TrainingState, s models.TrainingState) {
	for {
		select {
		case ch <- s:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func clone(s models.TrainingState) models.TrainingState {
	out := s
	if s.StartedAt != nil {
		t := *s.StartedAt
		out.StartedAt = &t
	}
	if s.FinishedAt != nil {
		t := *s.FinishedAt
		out.FinishedAt = &t
	}
	if s.Warnings != nil {
		out.Warnings = append([]string(nil), s.Warnings...)
	}
	return out
}
