package async

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestSafeGoRunsFunction(t *testing.T) {
	done := make(chan struct{})

	SafeGo(context.Background(), time.Second, "test task", func(ctx context.Context) error {
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task never ran")
	}
}

func TestSafeGoRecoversPanic(t *testing.T) {
	panicked := make(chan struct{})

	SafeGo(context.Background(), time.Second, "panicking task", func(ctx context.Context) error {
		defer close(panicked)
		panic("boom")
	})

	select {
	case <-panicked:
	case <-time.After(2 * time.Second):
		t.Fatal("task never ran")
	}
	// Reaching here without the test process dying is the assertion
	time.Sleep(50 * time.Millisecond)
}

func TestSafeGoSwallowsError(t *testing.T) {
	done := make(chan struct{})

	SafeGo(context.Background(), time.Second, "failing task", func(ctx context.Context) error {
		close(done)
		return errors.New("sink unavailable")
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task never ran")
	}
}

func TestSafeGoEnforcesTimeout(t *testing.T) {
	expired := make(chan struct{})

	SafeGo(context.Background(), 20*time.Millisecond, "slow task", func(ctx context.Context) error {
		<-ctx.Done()
		close(expired)
		return ctx.Err()
	})

	select {
	case <-expired:
	case <-time.After(2 * time.Second):
		t.Fatal("context never expired")
	}
}

func TestSafeGoDetachesFromParentCancellation(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	cancel() // parent is already dead, like a finished HTTP request

	var ran atomic.Bool
	done := make(chan struct{})

	SafeGo(parent, time.Second, "audit append", func(ctx context.Context) error {
		defer close(done)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		ran.Store(true)
		return nil
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task never ran")
	}
	if !ran.Load() {
		t.Error("task should outlive the parent context")
	}
}

func TestSafeGoNoError(t *testing.T) {
	done := make(chan struct{})

	SafeGoNoError(context.Background(), time.Second, "fire and forget", func(ctx context.Context) {
		close(done)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task never ran")
	}
}
