// Package events carries per-upstream-query telemetry off the hot path: a
// bounded, non-blocking channel feeding a background consumer that batches
// and persists events without ever slowing down a DNS response.
package events

import (
	"sync/atomic"

	"github.com/jroosing/hydradns/internal/dnsmsg"
)

// Channel capacity for the Channel emitter. Sized generously so a burst of
// concurrent queries doesn't trip the drop path under normal load.
const channelCapacity = 4096

// QueryEvent records a single attempt against one upstream endpoint,
// successful or not.
type QueryEvent struct {
	Domain          string
	Type            dnsmsg.RecordType
	EndpointDisplay string
	ResponseTimeUs  uint64
	Success         bool
	PoolName        string
}

// Emitter publishes QueryEvents without ever blocking the caller. Disabled
// is the zero-cost no-op mode; Channel is backed by a bounded channel.
type Emitter interface {
	Emit(QueryEvent)
	Close()
}

// Disabled is a zero-overhead Emitter; Emit is a no-op.
type Disabled struct{}

func (Disabled) Emit(QueryEvent) {}
func (Disabled) Close()          {}

// Channel is an Emitter backed by a bounded channel. Emit uses a
// non-blocking try-send: a full channel drops the event rather than
// stalling the query path.
type Channel struct {
	ch      chan QueryEvent
	dropped atomic.Uint64
}

// NewChannel returns an enabled Emitter and the receive side for a Consumer.
func NewChannel() (*Channel, <-chan QueryEvent) {
	ch := make(chan QueryEvent, channelCapacity)
	return &Channel{ch: ch}, ch
}

// Emit implements Emitter. Never blocks: on a full channel, the event is
// dropped and the drop counter is incremented.
func (c *Channel) Emit(ev QueryEvent) {
	select {
	case c.ch <- ev:
	default:
		c.dropped.Add(1)
	}
}

// Close closes the underlying channel, signalling the Consumer to drain and
// exit once all in-flight sends have been observed.
func (c *Channel) Close() { close(c.ch) }

// Dropped returns the number of events dropped so far due to a full
// channel.
func (c *Channel) Dropped() uint64 { return c.dropped.Load() }
