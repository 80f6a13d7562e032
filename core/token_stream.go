package core

import "sync"

// TokenStream is a single-producer/single-consumer ordered channel of text
// fragments paired with an idempotent completion signal. One instance backs
// each step's public fragment sequence: the step executor pushes, exactly one
// drain loop consumes via Next. Close may be called from any goroutine and
// multiple times; it unblocks both a blocked Push and a blocked Next, so a
// forced termination can never leave a drain loop suspended.
type TokenStream struct {
	fragments chan string
	done      chan struct{}
	once      sync.Once
}

// NewTokenStream constructs a TokenStream with the given channel buffer size.
func NewTokenStream(buffer int) *TokenStream {
	if buffer <= 0 {
		buffer = 1
	}
	return &TokenStream{
		fragments: make(chan string, buffer),
		done:      make(chan struct{}),
	}
}

// Push appends a fragment, blocking when the buffer is full until the
// consumer catches up or the stream is closed. It returns ErrStreamClosed
// once Close has been called so a producer racing a forced termination does
// not block forever.
func (s *TokenStream) Push(text string) error {
	select {
	case <-s.done:
		return ErrStreamClosed
	default:
	}
	select {
	case s.fragments <- text:
		return nil
	case <-s.done:
		return ErrStreamClosed
	}
}

// Close signals completion. Idempotent. Fragments already buffered remain
// observable through Next; the fragments channel itself is never closed,
// avoiding a close/send race with a producer blocked in Push.
func (s *TokenStream) Close() {
	s.once.Do(func() { close(s.done) })
}

// Next blocks until the next fragment is available or the stream terminates.
// After Close, buffered fragments are still delivered in order; once the
// buffer is empty Next returns ok == false.
func (s *TokenStream) Next() (string, bool) {
	select {
	case f := <-s.fragments:
		return f, true
	case <-s.done:
		// Deliver any fragments that were buffered before termination.
		select {
		case f := <-s.fragments:
			return f, true
		default:
			return "", false
		}
	}
}

// Closed reports whether the stream has been closed.
func (s *TokenStream) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
