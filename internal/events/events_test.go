package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type captureEmitter struct {
	mu     sync.Mutex
	events []*StatusChanged
	err    error
	done   chan struct{}
}

func newCaptureEmitter(err error) *captureEmitter {
	return &captureEmitter{err: err, done: make(chan struct{}, 1)}
}

func (e *captureEmitter) Emit(ctx context.Context, event *StatusChanged) error {
	e.mu.Lock()
	e.events = append(e.events, event)
	e.mu.Unlock()
	e.done <- struct{}{}
	return e.err
}

func (e *captureEmitter) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.events)
}

func TestEmitAsync_DeliversEvent(t *testing.T) {
	emitter := newCaptureEmitter(nil)
	event := &StatusChanged{
		ClaimID:    "claim-1",
		FromStatus: "approved",
		ToStatus:   "confirmed",
		ActorID:    "user-1",
		EventType:  "claim_status_changed",
		Source:     "claims-api",
		CreatedAt:  time.Now().UTC(),
	}

	EmitAsync(emitter, context.Background(), event)

	select {
	case <-emitter.done:
	case <-time.After(2 * time.Second):
		t.Fatal("emit did not run")
	}
	if emitter.count() != 1 {
		t.Fatalf("want 1 emitted event, got %d", emitter.count())
	}
}

func TestEmitAsync_NilEmitterOrEvent(t *testing.T) {
	// Must be a no-op, not a panic.
	EmitAsync(nil, context.Background(), &StatusChanged{ClaimID: "claim-1"})
	EmitAsync(newCaptureEmitter(nil), context.Background(), nil)
}

func TestEmitAsync_EmitErrorIsSwallowed(t *testing.T) {
	emitter := newCaptureEmitter(errors.New("broker down"))

	EmitAsync(emitter, context.Background(), &StatusChanged{ClaimID: "claim-1"})

	select {
	case <-emitter.done:
	case <-time.After(2 * time.Second):
		t.Fatal("emit did not run")
	}
}

func TestEmitAsync_SurvivesCancelledRequestContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	emitter := newCaptureEmitter(nil)

	EmitAsync(emitter, ctx, &StatusChanged{ClaimID: "claim-1"})

	select {
	case <-emitter.done:
	case <-time.After(2 * time.Second):
		t.Fatal("emit must run on its own context, not the request's")
	}
}
