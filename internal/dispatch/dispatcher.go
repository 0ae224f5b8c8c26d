// Package dispatch pushes Stop/Resume changes to agents.
//
// Every agent has its own buffered outbox drained by one worker, so a slow
// or unreachable agent never delays commands to the others. Dispatch never
// blocks the tick: if an outbox is full, or a worker gives up on delivery,
// the agent's remembered decision is forgotten and the next tick emits the
// command again.
package dispatch

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"collision-hub/internal/interfaces"
	"collision-hub/internal/metrics"
	"collision-hub/internal/models"
	"collision-hub/internal/utils"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
)

// CommandQoS is the MQTT QoS of outbound commands (at least once).
const CommandQoS byte = 1

// AuditSink receives the outcome of every delivery attempt. It must not
// block for long; the persistence layer buffers and writes in batches.
type AuditSink interface {
	RecordCommand(entry models.CommandLog)
}

// Diff returns a command for every agent whose decision in next differs
// from prev. An agent missing from prev counts as changed. The result is
// sorted by device id.
func Diff(next, prev map[string]models.MotionState) []models.Command {
	var out []models.Command
	for id, state := range next {
		if old, ok := prev[id]; ok && old == state {
			continue
		}
		out = append(out, models.Command{DeviceID: id, State: state})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

type outbound struct {
	cmd  models.Command
	tick uint64
}

// Dispatcher owns the previous assignment and the per-agent outboxes.
type Dispatcher struct {
	publisher    interfaces.MessagePublisher
	topicFor     func(deviceID string) string
	retries      int
	retryBackoff time.Duration
	outboxSize   int
	audit        AuditSink
	metrics      *metrics.Recorder

	mu       sync.Mutex
	prev     map[string]models.MotionState
	outboxes map[string]chan outbound
	closed   bool
	workers  conc.WaitGroup
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithRetries(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.retries = n
		}
	}
}

func WithRetryBackoff(b time.Duration) Option {
	return func(d *Dispatcher) { d.retryBackoff = b }
}

func WithOutboxSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.outboxSize = n
		}
	}
}

func WithAudit(sink AuditSink) Option {
	return func(d *Dispatcher) { d.audit = sink }
}

func WithMetrics(rec *metrics.Recorder) Option {
	return func(d *Dispatcher) { d.metrics = rec }
}

// New creates a dispatcher publishing each agent's commands on
// topicFor(deviceID).
func New(publisher interfaces.MessagePublisher, topicFor func(string) string, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		publisher:    publisher,
		topicFor:     topicFor,
		retries:      3,
		retryBackoff: 20 * time.Millisecond,
		outboxSize:   16,
		prev:         make(map[string]models.MotionState),
		outboxes:     make(map[string]chan outbound),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Previous returns a copy of the last assignment the dispatcher accepted,
// minus any entries invalidated by failed deliveries.
func (d *Dispatcher) Previous() map[string]models.MotionState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return cloneAssignment(d.prev)
}

// Dispatch queues the commands implied by next and returns them. It never
// blocks on delivery.
func (d *Dispatcher) Dispatch(tick uint64, next map[string]models.MotionState) []models.Command {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		utils.Logger.Warn("Dispatch after close ignored")
		return nil
	}

	cmds := Diff(next, d.prev)
	for id, state := range next {
		d.prev[id] = state
	}

	for _, cmd := range cmds {
		ch := d.outboxLocked(cmd.DeviceID)
		select {
		case ch <- outbound{cmd: cmd, tick: tick}:
		default:
			delete(d.prev, cmd.DeviceID)
			d.metrics.IncCommand(string(cmd.State), metrics.CommandDropped)
			utils.ForDevice(cmd.DeviceID).
				WithField("state", cmd.State).
				Warn("Outbox full, command will be re-emitted next tick")
		}
	}
	return cmds
}

// Close stops accepting commands and waits until every queued command has
// been delivered or given up on.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, ch := range d.outboxes {
		close(ch)
	}
	d.mu.Unlock()

	d.workers.Wait()
	utils.Logger.Info("Dispatcher drained")
}

func (d *Dispatcher) outboxLocked(deviceID string) chan outbound {
	ch, ok := d.outboxes[deviceID]
	if !ok {
		ch = make(chan outbound, d.outboxSize)
		d.outboxes[deviceID] = ch
		d.workers.Go(func() { d.drain(deviceID, ch) })
	}
	return ch
}

func (d *Dispatcher) drain(deviceID string, ch <-chan outbound) {
	topic := d.topicFor(deviceID)
	for o := range ch {
		d.deliver(topic, o)
	}
}

func (d *Dispatcher) deliver(topic string, o outbound) {
	log := utils.ForDevice(o.cmd.DeviceID).WithField("state", o.cmd.State).WithField("tick", o.tick)

	payload, err := json.Marshal(o.cmd)
	if err != nil {
		// Command is two plain strings; this cannot fail in practice.
		log.WithError(err).Error("Failed to encode command")
		return
	}

	var lastErr error
	attempts := 0
	for attempts < d.retries {
		attempts++
		if lastErr = d.publisher.Publish(topic, CommandQoS, false, payload); lastErr == nil {
			break
		}
		log.WithError(lastErr).WithField("attempt", attempts).Warn("Command publish failed")
		if attempts < d.retries && d.retryBackoff > 0 {
			time.Sleep(d.retryBackoff * time.Duration(attempts))
		}
	}

	entry := models.CommandLog{
		ID:           uuid.NewString(),
		DeviceID:     o.cmd.DeviceID,
		State:        string(o.cmd.State),
		Tick:         o.tick,
		Attempts:     attempts,
		Delivered:    lastErr == nil,
		DispatchedAt: time.Now(),
	}

	if lastErr != nil {
		entry.Error = lastErr.Error()
		d.invalidate(o.cmd)
		d.metrics.IncCommand(string(o.cmd.State), metrics.CommandFailed)
		log.WithError(lastErr).Error(fmt.Sprintf("Command undelivered after %d attempts", attempts))
	} else {
		d.metrics.IncCommand(string(o.cmd.State), metrics.CommandDelivered)
		log.Debug("Command delivered")
	}

	if d.audit != nil {
		d.audit.RecordCommand(entry)
	}
}

// invalidate forgets cmd's decision so the next tick re-emits it. If a newer
// decision has been queued meanwhile, that one stands.
func (d *Dispatcher) invalidate(cmd models.Command) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.prev[cmd.DeviceID] == cmd.State {
		delete(d.prev, cmd.DeviceID)
	}
}

func cloneAssignment(a map[string]models.MotionState) map[string]models.MotionState {
	out := make(map[string]models.MotionState, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}
