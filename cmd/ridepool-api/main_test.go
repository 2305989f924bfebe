package main

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestServeStopsDispatcherAfterProducers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var producing atomic.Bool
	producing.Store(true)
	stoppedEarly := errors.New("dispatcher stopped while a producer was running")

	dispatch := func(ctx context.Context) error {
		<-ctx.Done()
		if producing.Load() {
			return stoppedEarly
		}
		return nil
	}
	// Mimics a server finishing in-flight requests after shutdown begins.
	producer := func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		producing.Store(false)
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- serve(ctx, dispatch, producer) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not return")
	}
}

func TestServeReturnsProducerError(t *testing.T) {
	boom := errors.New("listen failed")
	var dispatcherStopped atomic.Bool
	dispatch := func(ctx context.Context) error {
		<-ctx.Done()
		dispatcherStopped.Store(true)
		return nil
	}
	idle := func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	}

	err := serve(context.Background(), dispatch, func(context.Context) error { return boom }, idle)
	if !errors.Is(err, boom) {
		t.Fatalf("expected producer error, got %v", err)
	}
	if !dispatcherStopped.Load() {
		t.Error("dispatcher should be stopped before serve returns")
	}
}
