// Package mirror copies the hub's view of the fleet into Redis for
// dashboards and other readers that should not load the hub itself.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"collision-hub/internal/hub"
	"collision-hub/internal/interfaces"
	"collision-hub/internal/models"
	"collision-hub/internal/utils"

	"github.com/sourcegraph/conc/pool"
)

// chunkSize is the number of agents written per pipeline.
const chunkSize = 64

// StateSource is the part of the Pose Store the mirror reads.
type StateSource interface {
	Snapshot() []models.AgentState
}

// TickSource provides the last completed tick.
type TickSource interface {
	LastResult() *hub.TickResult
}

type Mirror struct {
	cache      interfaces.CacheService
	states     StateSource
	ticks      TickSource
	interval   time.Duration
	ttl        time.Duration
	maxWriters int
}

// New creates a mirror that refreshes every interval. Agent keys expire
// after three intervals so a stopped hub leaves no stale read model.
func New(cache interfaces.CacheService, states StateSource, ticks TickSource, interval time.Duration) *Mirror {
	if interval <= 0 {
		interval = time.Second
	}
	return &Mirror{
		cache:      cache,
		states:     states,
		ticks:      ticks,
		interval:   interval,
		ttl:        3 * interval,
		maxWriters: 4,
	}
}

// Run syncs periodically until ctx is done, then performs a final sync.
func (m *Mirror) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := m.Sync(flushCtx); err != nil {
				utils.Logger.WithError(err).Warn("Final mirror sync failed")
			}
			cancel()
			return
		case <-ticker.C:
			if err := m.Sync(ctx); err != nil {
				utils.Logger.WithError(err).Warn("Mirror sync failed")
			}
		}
	}
}

// Sync writes the current snapshot and last tick. Chunks are written by a
// bounded set of concurrent pipelines.
func (m *Mirror) Sync(ctx context.Context) error {
	snapshot := m.states.Snapshot()

	p := pool.New().WithErrors().WithContext(ctx).WithMaxGoroutines(m.maxWriters)
	for start := 0; start < len(snapshot); start += chunkSize {
		end := start + chunkSize
		if end > len(snapshot) {
			end = len(snapshot)
		}
		chunk := snapshot[start:end]
		p.Go(func(ctx context.Context) error {
			return m.writeChunk(ctx, chunk)
		})
	}
	if err := p.Wait(); err != nil {
		return err
	}

	if m.ticks == nil {
		return nil
	}
	last := m.ticks.LastResult()
	if last == nil {
		return nil
	}
	data, err := json.Marshal(last)
	if err != nil {
		return fmt.Errorf("encoding last tick: %w", err)
	}
	return m.cache.Set(ctx, LastTickKey, data, m.ttl)
}

func (m *Mirror) writeChunk(ctx context.Context, chunk []models.AgentState) error {
	pipe := m.cache.Pipeline()
	for _, a := range chunk {
		data, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("encoding %s: %w", a.DeviceID, err)
		}
		if err := pipe.Set(ctx, AgentStateKey(a.DeviceID), data, m.ttl); err != nil {
			return err
		}
		if err := pipe.HSet(ctx, AssignmentKey, a.DeviceID, string(a.State)); err != nil {
			return err
		}
	}
	if err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("writing mirror chunk: %w", err)
	}
	return nil
}
