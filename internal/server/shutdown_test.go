package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestShutdownHandler_Order(t *testing.T) {
	s := NewShutdownHandler(time.Second, nil)

	var mu sync.Mutex
	var order []string
	hook := func(name string) func(context.Context) error {
		return func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		}
	}
	s.RegisterHook("store", PriorityStore, hook("store"))
	s.RegisterHook("admin", PriorityAdmin, hook("admin"))
	s.RegisterHook("worker", PriorityWorker, hook("worker"))
	s.RegisterHook("cache", PriorityStore, hook("cache"))

	s.Start()
	s.Shutdown()

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("shutdown did not complete")
	}

	want := []string{"admin", "worker", "store", "cache"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("expected %v, got %v", want, order)
			break
		}
	}
}

func TestShutdownHandler_FailingHookContinues(t *testing.T) {
	s := NewShutdownHandler(0, nil)
	ran := false
	s.RegisterHook("bad", 1, func(context.Context) error { return errors.New("boom") })
	s.RegisterHook("good", 2, func(context.Context) error { ran = true; return nil })

	s.Start()
	s.Shutdown()
	s.Shutdown()
	s.Wait()

	if !ran {
		t.Error("expected later hooks to run after a failure")
	}
}

func TestShutdownHandler_HookDeadline(t *testing.T) {
	s := NewShutdownHandler(20*time.Millisecond, nil)
	var hookErr error
	s.RegisterHook("slow", 1, func(ctx context.Context) error {
		<-ctx.Done()
		hookErr = ctx.Err()
		return hookErr
	})
	s.Start()
	s.Shutdown()
	s.Wait()

	if !errors.Is(hookErr, context.DeadlineExceeded) {
		t.Errorf("expected hooks to see the shutdown deadline, got %v", hookErr)
	}
}
