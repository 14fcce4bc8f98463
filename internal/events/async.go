package events

import (
	"context"
	"log"
	"time"
)

// emitTimeout is the max time allowed for a single async emit.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long to wait after the HTTP server drains
// before closing the producer, so in-flight async emits can complete.
const ShutdownDrainDuration = emitTimeout

// EmitAsync runs Emit in a goroutine so request handlers are never blocked by
// the broker. producer and event may be nil; EmitAsync then returns
// immediately. The goroutine uses context.Background() so request cancellation
// does not abort an in-flight emit.
func EmitAsync(producer Producer, event *Event) {
	if producer == nil || event == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := producer.Emit(ctx, event); err != nil {
			log.Printf("events: async emit failed: %v", err)
		}
	}()
}
