// Package events publishes claim status-change events for downstream consumers
// (cmd/worker forwards them to Loki). Emission is best-effort and asynchronous;
// the workflow never blocks on it.
package events

import (
	"context"
	"time"

	"claims-portal/backend/internal/config"
)

// emitTimeout is the max time allowed for a single async emit. Used by EmitAsync
// and by ShutdownDrainDuration.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long to wait after HTTP shutdown before closing
// the producer, so in-flight async emits have time to complete. Must be >= emitTimeout.
const ShutdownDrainDuration = emitTimeout

// StatusChanged is one applied claim transition, serialized as JSON on the wire.
type StatusChanged struct {
	ClaimID    string    `json:"claimId"`
	FromStatus string    `json:"fromStatus"`
	ToStatus   string    `json:"toStatus"`
	ActorID    string    `json:"actorId"`
	EventType  string    `json:"eventType"` // always "claim_status_changed"
	Source     string    `json:"source"`    // emitting service name
	CreatedAt  time.Time `json:"createdAt"`
}

// Emitter emits claim events (e.g. to Kafka). Best-effort; callers log and ignore errors.
type Emitter interface {
	Emit(ctx context.Context, event *StatusChanged) error
}

// EmitAsync runs Emit in a goroutine with a short timeout so the caller is not blocked.
// emitter and event may be nil; EmitAsync returns immediately without starting a goroutine.
// The goroutine uses context.Background() with emitTimeout so request cancellation
// does not abort an in-flight emit.
func EmitAsync(emitter Emitter, ctx context.Context, event *StatusChanged) {
	if emitter == nil || event == nil {
		return
	}
	go func() {
		emitCtx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := emitter.Emit(emitCtx, event); err != nil {
			config.LogError(config.GetLogger(), "events", "EmitAsync", "Emit", map[string]any{"claim_id": event.ClaimID}, err)
		}
	}()
}
