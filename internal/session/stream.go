package session

import (
	"sync"

	"github.com/davis7dotsh/betterctx/internal/agent"
)

// Stream is one prompt's filtered view of a session's events.
//
// The channel returned by Events closes when the session goes idle, when
// the agent reports a session error, when the prompt submission fails, or
// when the consumer calls Close. Err reports the terminal error (nil for
// idle completion and consumer cancellation) once Events has closed.
type Stream struct {
	events chan agent.Event

	mu  sync.Mutex
	err error

	cancel   func()
	finished chan struct{}

	cleanupOnce sync.Once
	cleanup     func()
}

func newStream(cancel, cleanup func()) *Stream {
	return &Stream{
		events:   make(chan agent.Event),
		cancel:   cancel,
		finished: make(chan struct{}),
		cleanup:  cleanup,
	}
}

// Events returns the filtered event channel.
func (s *Stream) Events() <-chan agent.Event {
	return s.events
}

// Err returns the terminal error. Only meaningful after Events has closed.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.err
}

// Close cancels the stream from the consumer side. The event subscription
// is released and any attached cleanup runs; no error is synthesised.
func (s *Stream) Close() {
	s.cancel()
	<-s.finished
}

// finish records the terminal error, closes the event channel, and runs the
// attached cleanup exactly once. Called only from the forwarding goroutine.
func (s *Stream) finish(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()

	s.cancel()
	close(s.events)

	s.cleanupOnce.Do(func() {
		if s.cleanup != nil {
			s.cleanup()
		}
	})

	close(s.finished)
}
