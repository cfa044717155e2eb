// Package mocks provides mock implementations for testing.
package mocks

import (
	"context"
	"sync"

	"github.com/ersonp/kin-core/internal/domain/entities"
	"github.com/ersonp/kin-core/internal/domain/ports"
)

// Guesser is a mock implementation of ports.RelationshipGuesser.
type Guesser struct {
	Guess *ports.Guess
	Err   error

	mu    sync.Mutex
	Calls int
}

// Infer returns the configured guess or error.
func (m *Guesser) Infer(_ context.Context, _, _ *entities.Person) (*ports.Guess, error) {
	m.mu.Lock()
	m.Calls++
	m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Guess, nil
}

// GenderGuesser is a mock implementation of ports.GenderGuesser keyed by name.
type GenderGuesser map[string]entities.Gender

// GuessGender returns the configured gender for name, or unknown.
func (m GenderGuesser) GuessGender(name string) entities.Gender {
	if g, ok := m[name]; ok {
		return g
	}
	return entities.GenderUnknown
}

// Queue is a mock implementation of ports.TaskQueue that records jobs.
type Queue struct {
	mu   sync.Mutex
	Jobs []entities.Job
	Err  error
}

// Enqueue records the job.
func (m *Queue) Enqueue(_ context.Context, job entities.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Jobs = append(m.Jobs, job)
	return nil
}

// Publisher is a mock implementation of ports.EventPublisher that records events.
type Publisher struct {
	mu     sync.Mutex
	Events []entities.Event
}

// Publish records the event.
func (m *Publisher) Publish(_ context.Context, event entities.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, event)
	return nil
}

// OfType returns the recorded events of one type.
func (m *Publisher) OfType(t entities.EventType) []entities.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entities.Event
	for _, e := range m.Events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
