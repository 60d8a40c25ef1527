package llm

import (
	"context"
	"sync"
)

// Stream yields incremental text from one model call.
//
// Chunks is closed when the call ends; Err is valid after that. Close cancels
// the provider call and may be called at any time, any number of times.
type Stream struct {
	chunks chan string
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// NewStream runs produce in a goroutine. produce calls emit for every text
// delta and stops when emit returns false.
func NewStream(ctx context.Context, produce func(ctx context.Context, emit func(string) bool) error) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &Stream{
		chunks: make(chan string, 32),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		defer close(s.chunks)
		defer cancel()
		err := produce(ctx, func(text string) bool {
			if text == "" {
				return ctx.Err() == nil
			}
			select {
			case s.chunks <- text:
				return true
			case <-ctx.Done():
				return false
			}
		})
		if err != nil && ctx.Err() == nil {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
		}
	}()
	return s
}

// Chunks returns the delta channel.
func (s *Stream) Chunks() <-chan string { return s.chunks }

// Err reports the provider error, if any, once Chunks is closed.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close cancels the call.
func (s *Stream) Close() { s.cancel() }

// Done is closed once the provider goroutine has returned.
func (s *Stream) Done() <-chan struct{} { return s.done }
