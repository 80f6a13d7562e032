package core

import (
	"errors"
	"testing"
	"time"
)

func TestTokenStream_PushNext(t *testing.T) {
	s := NewTokenStream(4)

	if err := s.Push("a"); err != nil {
		t.Fatalf("push failed: %v", err)
	}
	if err := s.Push("b"); err != nil {
		t.Fatalf("push failed: %v", err)
	}

	if got, ok := s.Next(); !ok || got != "a" {
		t.Fatalf("expected a, got %q ok=%v", got, ok)
	}
	if got, ok := s.Next(); !ok || got != "b" {
		t.Fatalf("expected b, got %q ok=%v", got, ok)
	}
}

func TestTokenStream_DrainsBufferedAfterClose(t *testing.T) {
	s := NewTokenStream(4)

	if err := s.Push("tail"); err != nil {
		t.Fatalf("push failed: %v", err)
	}
	s.Close()

	// Buffered fragments survive the terminal signal.
	if got, ok := s.Next(); !ok || got != "tail" {
		t.Fatalf("expected buffered tail, got %q ok=%v", got, ok)
	}
	if _, ok := s.Next(); ok {
		t.Fatal("expected closed stream after drain")
	}
}

func TestTokenStream_PushAfterClose(t *testing.T) {
	s := NewTokenStream(1)
	s.Close()

	if err := s.Push("x"); !errors.Is(err, ErrStreamClosed) {
		t.Fatalf("expected ErrStreamClosed, got %v", err)
	}
}

func TestTokenStream_CloseIdempotent(t *testing.T) {
	s := NewTokenStream(1)
	s.Close()
	s.Close()

	if !s.Closed() {
		t.Fatal("expected stream to report closed")
	}
}

func TestTokenStream_CloseUnblocksConsumer(t *testing.T) {
	s := NewTokenStream(1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, ok := s.Next(); ok {
			t.Error("expected terminal signal, got fragment")
		}
	}()

	s.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumer not unblocked by Close")
	}
}

func TestTokenStream_CloseUnblocksProducer(t *testing.T) {
	s := NewTokenStream(1)

	if err := s.Push("fill"); err != nil {
		t.Fatalf("push failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- s.Push("blocked")
	}()

	time.Sleep(10 * time.Millisecond)
	s.Close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrStreamClosed) {
			t.Fatalf("expected ErrStreamClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("producer not unblocked by Close")
	}
}
