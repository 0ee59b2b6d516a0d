package main

import (
	"context"
	"sync"
)

// latest hands the most recent value to send on its own goroutine. Put never
// blocks, so it is safe to call from inside the program's Update; values
// superseded before delivery are dropped.
type latest[T any] struct {
	mu     sync.Mutex
	v      T
	signal chan struct{}
}

func forwardLatest[T any](ctx context.Context, send func(T)) *latest[T] {
	l := &latest[T]{signal: make(chan struct{}, 1)}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-l.signal:
				l.mu.Lock()
				v := l.v
				l.mu.Unlock()
				send(v)
			}
		}
	}()
	return l
}

func (l *latest[T]) Put(v T) {
	l.mu.Lock()
	l.v = v
	l.mu.Unlock()
	select {
	case l.signal <- struct{}{}:
	default:
	}
}
