package events

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/jroosing/hydradns/internal/ports"
)

// maxBatchSize bounds how many events a single persist call receives:
// await one, then greedily drain up to 99 more without waiting.
const maxBatchSize = 100

// Consumer drains a Channel emitter's events and persists them in batches
// via a QueryLogRepository, without ever letting persistence slow down the
// channel drain loop: each batch is handed to a detached goroutine.
type Consumer struct {
	repo   ports.QueryLogRepository
	logger *slog.Logger

	batches atomic.Uint64
	events  atomic.Uint64
}

// NewConsumer returns a Consumer that persists batches through repo.
func NewConsumer(repo ports.QueryLogRepository, logger *slog.Logger) *Consumer {
	return &Consumer{repo: repo, logger: logger}
}

// Run drains in until it is closed or ctx is cancelled. Each wake persists
// one event plus whatever else is immediately available (up to
// maxBatchSize), handing the batch to a detached goroutine so the drain
// loop never waits on persistence.
func (c *Consumer) Run(ctx context.Context, in <-chan QueryEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-in:
			if !ok {
				return
			}
			batch := make([]QueryEvent, 0, maxBatchSize)
			batch = append(batch, ev)

		drain:
			for len(batch) < maxBatchSize {
				select {
				case ev, ok := <-in:
					if !ok {
						break drain
					}
					batch = append(batch, ev)
				default:
					break drain
				}
			}

			c.batches.Add(1)
			c.events.Add(uint64(len(batch)))
			go c.persist(ctx, batch)
		}
	}
}

// persist is run detached per batch; individual row failures are logged
// but never propagate, decoupling DNS latency from logging storage.
func (c *Consumer) persist(ctx context.Context, batch []QueryEvent) {
	for _, ev := range batch {
		entry := ports.QueryLogEntry{
			Domain:   ev.Domain,
			Type:     ev.Type,
			CacheHit: false,
		}
		if err := c.repo.LogQuery(ctx, entry); err != nil {
			if c.logger != nil {
				c.logger.WarnContext(ctx, "query log persist failed", "domain", ev.Domain, "err", err)
			}
		}
	}
}

// Stats returns the number of batches and events persisted so far.
func (c *Consumer) Stats() (batches, events uint64) {
	return c.batches.Load(), c.events.Load()
}
