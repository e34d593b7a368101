package telemetry

import (
	"context"
	"log"
	"time"
)

// emitTimeout bounds a single async emit. ShutdownDrainDuration derives from it.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long to wait after the servers stop before shutting down OTel providers,
// so in-flight async emits have time to complete.
const ShutdownDrainDuration = emitTimeout

// EmitAsync runs Emit in a goroutine with a short timeout so the caller is not blocked.
// emitter and event may be nil; EmitAsync then returns immediately.
// The goroutine uses context.Background() so a closed websocket or finished request does not abort the emit.
func EmitAsync(emitter EventEmitter, event *Event) {
	if emitter == nil || event == nil {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	go func() {
		emitCtx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := emitter.Emit(emitCtx, event); err != nil {
			log.Printf("telemetry: async emit %s failed: %v", event.Type, err)
		}
	}()
}
