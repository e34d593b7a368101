package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "emeet/backend"

// Instruments are created from the global MeterProvider, which forwards to the real provider
// once SetGlobal runs, so package-level helpers are safe before and after setup.
type instruments struct {
	members       metric.Int64UpDownCounter
	dropped       metric.Int64Counter
	ended         metric.Int64Counter
	transitions   metric.Int64Counter
	sweepFailures metric.Int64Counter
}

var (
	instOnce sync.Once
	inst     instruments
)

func get() *instruments {
	instOnce.Do(func() {
		m := otel.Meter(meterName)
		inst.members, _ = m.Int64UpDownCounter("emeet.room.members",
			metric.WithDescription("Connected room members"))
		inst.dropped, _ = m.Int64Counter("emeet.room.frames_dropped",
			metric.WithDescription("Frames dropped because a member queue was full"))
		inst.ended, _ = m.Int64Counter("emeet.room.ended",
			metric.WithDescription("Rooms terminated, by trigger"))
		inst.transitions, _ = m.Int64Counter("emeet.sweep.transitions",
			metric.WithDescription("Status transitions persisted by sweep jobs"))
		inst.sweepFailures, _ = m.Int64Counter("emeet.sweep.failures",
			metric.WithDescription("Per-item sweep failures"))
	})
	return &inst
}

// RoomJoined records a member registering in a room.
func RoomJoined(roomID string) {
	if c := get().members; c != nil {
		c.Add(context.Background(), 1)
	}
}

// RoomLeft records a member leaving a room.
func RoomLeft(roomID string) {
	if c := get().members; c != nil {
		c.Add(context.Background(), -1)
	}
}

// FrameDropped records a frame discarded for a slow member.
func FrameDropped(roomID string) {
	if c := get().dropped; c != nil {
		c.Add(context.Background(), 1)
	}
}

// RoomEnded records a room termination. trigger is "participant", "sweep" or "liveness".
func RoomEnded(trigger string) {
	if c := get().ended; c != nil {
		c.Add(context.Background(), 1, metric.WithAttributes(attribute.String("trigger", trigger)))
	}
}

// SweepTransition records one persisted status change by the named job.
func SweepTransition(job, from, to string) {
	if c := get().transitions; c != nil {
		c.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("job", job),
			attribute.String("from", from),
			attribute.String("to", to),
		))
	}
}

// SweepFailure records one item the named job could not process.
func SweepFailure(job string) {
	if c := get().sweepFailures; c != nil {
		c.Add(context.Background(), 1, metric.WithAttributes(attribute.String("job", job)))
	}
}
