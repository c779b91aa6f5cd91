package viewsync

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLoopRunsTasksInOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	loop := NewLoop(8)
	go func() { _ = loop.Run(ctx) }()

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		if !loop.Post(func() { order = append(order, i) }) {
			t.Fatalf("expected post %d to be accepted", i)
		}
	}
	if err := loop.Do(ctx, func() {}); err != nil {
		t.Fatalf("do: %v", err)
	}
	for i, got := range order {
		if got != i {
			t.Fatalf("expected tasks in order, got %v", order)
		}
	}
	if len(order) != 5 {
		t.Fatalf("expected 5 tasks, got %d", len(order))
	}
}

func TestLoopRejectsAfterStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	loop := NewLoop(1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(ctx)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected loop to stop")
	}

	if loop.Post(func() {}) {
		t.Fatalf("expected post after stop to be rejected")
	}
	if err := loop.Do(context.Background(), func() {}); !errors.Is(err, ErrLoopStopped) {
		t.Fatalf("expected ErrLoopStopped, got %v", err)
	}
}
