// Package hub runs the periodic snapshot, conflict, resolve and dispatch
// pipeline.
package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"collision-hub/internal/config"
	"collision-hub/internal/conflict"
	"collision-hub/internal/dispatch"
	"collision-hub/internal/metrics"
	"collision-hub/internal/models"
	"collision-hub/internal/resolver"
	"collision-hub/internal/store"
	"collision-hub/internal/utils"

	"github.com/sirupsen/logrus"
)

var (
	// ErrTickSkipped means another tick was still running.
	ErrTickSkipped = errors.New("tick skipped: previous tick still running")

	// ErrFleetIncomplete means the hub is still waiting for the expected
	// fleet to report.
	ErrFleetIncomplete = errors.New("waiting for fleet")
)

// TickResult describes one completed tick.
type TickResult struct {
	Tick       uint64              `json:"tick"`
	At         time.Time           `json:"at"`
	Duration   time.Duration       `json:"duration_ns"`
	Agents     int                 `json:"agents"`
	Conflicts  []conflict.Edge     `json:"conflicts"`
	Assignment resolver.Assignment `json:"assignment"`
	Commands   []models.Command    `json:"commands"`
}

// Options are the hub's tunables, usually taken from config.
type Options struct {
	Interval     time.Duration
	PriorityMode string
	FleetSize    int
	WaitForFleet bool
}

// OptionsFromConfig maps the hub section of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Interval:     cfg.TickInterval,
		PriorityMode: cfg.PriorityMode,
		FleetSize:    cfg.FleetSize,
		WaitForFleet: cfg.WaitForFleet,
	}
}

type Hub struct {
	store      *store.PoseStore
	builder    *conflict.Builder
	dispatcher *dispatch.Dispatcher
	metrics    *metrics.Recorder
	opts       Options

	tickMu  sync.Mutex
	tickSeq atomic.Uint64

	lastMu sync.RWMutex
	last   *TickResult
}

func New(s *store.PoseStore, b *conflict.Builder, d *dispatch.Dispatcher, rec *metrics.Recorder, opts Options) *Hub {
	if opts.Interval <= 0 {
		opts.Interval = 10 * time.Millisecond
	}
	if opts.PriorityMode == "" {
		opts.PriorityMode = config.PriorityRegistration
	}
	return &Hub{
		store:      s,
		builder:    b,
		dispatcher: d,
		metrics:    rec,
		opts:       opts,
	}
}

// Run ticks every interval until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.opts.Interval)
	defer ticker.Stop()

	utils.Logger.WithFields(logrus.Fields{
		"interval":      h.opts.Interval.String(),
		"priority_mode": h.opts.PriorityMode,
		"fleet_size":    h.opts.FleetSize,
	}).Info("🚀 Tick loop started")

	for {
		select {
		case <-ctx.Done():
			utils.Logger.Info("Tick loop stopped")
			return
		case <-ticker.C:
			if _, err := h.Tick(ctx); err != nil {
				h.logTickError(err)
			}
		}
	}
}

func (h *Hub) logTickError(err error) {
	switch {
	case errors.Is(err, ErrTickSkipped):
		utils.Logger.Debug(err.Error())
	case errors.Is(err, ErrFleetIncomplete):
		utils.Logger.Trace(err.Error())
	case errors.Is(err, context.Canceled):
	default:
		utils.Logger.WithError(err).Error("Tick aborted")
	}
}

// Tick runs the pipeline once. Overlapping calls are skipped rather than
// queued. A contract violation anywhere in the pipeline aborts the tick
// before anything is dispatched.
func (h *Hub) Tick(ctx context.Context) (*TickResult, error) {
	if !h.tickMu.TryLock() {
		h.metrics.IncTickSkipped()
		return nil, ErrTickSkipped
	}
	defer h.tickMu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if h.opts.FleetSize > 0 && h.opts.WaitForFleet {
		if _, reported := h.store.Count(); reported < h.opts.FleetSize {
			return nil, fmt.Errorf("%w: %d of %d agents reported", ErrFleetIncomplete, reported, h.opts.FleetSize)
		}
	}

	start := time.Now()
	tick := h.tickSeq.Add(1)

	snapshot := h.store.Snapshot()
	graph, err := h.builder.Build(snapshot)
	if err != nil {
		h.metrics.IncTickAborted()
		return nil, fmt.Errorf("tick %d: build conflicts: %w", tick, err)
	}

	order, err := h.order()
	if err != nil {
		h.metrics.IncTickAborted()
		return nil, fmt.Errorf("tick %d: priority order: %w", tick, err)
	}

	assignment, err := resolver.Resolve(graph, order, h.dispatcher.Previous())
	if err == nil {
		err = resolver.Verify(graph, assignment)
	}
	if err != nil {
		h.metrics.IncTickAborted()
		return nil, fmt.Errorf("tick %d: resolve: %w", tick, err)
	}

	h.store.ApplyAssignment(assignment)
	commands := h.dispatcher.Dispatch(tick, assignment)

	edges := graph.Edges()
	result := &TickResult{
		Tick:       tick,
		At:         start,
		Duration:   time.Since(start),
		Agents:     len(snapshot),
		Conflicts:  edges,
		Assignment: assignment,
		Commands:   commands,
	}
	h.metrics.ObserveTick(result.Duration, len(snapshot), len(edges), len(assignment.Stopped()))

	if len(commands) > 0 {
		utils.Logger.WithFields(logrus.Fields{
			"tick":      tick,
			"commands":  len(commands),
			"conflicts": len(edges),
		}).Debug("Tick dispatched commands")
	}

	h.lastMu.Lock()
	h.last = result
	h.lastMu.Unlock()
	return result, nil
}

// LastResult returns the most recent completed tick, or nil.
func (h *Hub) LastResult() *TickResult {
	h.lastMu.RLock()
	defer h.lastMu.RUnlock()
	return h.last
}

func (h *Hub) order() (*resolver.Order, error) {
	ids := h.store.RankedIDs()
	if h.opts.PriorityMode == config.PriorityDeviceID {
		return resolver.OrderByDeviceID(ids), nil
	}
	return resolver.NewOrder(ids)
}
