package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"collision-hub/internal/hub"
	"collision-hub/internal/interfaces"
	"collision-hub/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCache struct {
	mu      sync.Mutex
	values  map[string]string
	hashes  map[string]map[string]string
	execs   int
	execErr error
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: map[string]string{}, hashes: map[string]map[string]string{}}
}

func (c *fakeCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = toString(value)
	return nil
}

func (c *fakeCache) HSet(_ context.Context, key, field string, value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hashes[key] == nil {
		c.hashes[key] = map[string]string{}
	}
	c.hashes[key][field] = toString(value)
	return nil
}

func (c *fakeCache) Pipeline() interfaces.CachePipeline {
	return &fakePipeline{cache: c}
}

type fakePipeline struct {
	cache *fakeCache
	ops   []func()
}

func (p *fakePipeline) Set(ctx context.Context, key string, value interface{}, exp time.Duration) error {
	p.ops = append(p.ops, func() { _ = p.cache.Set(ctx, key, value, exp) })
	return nil
}

func (p *fakePipeline) HSet(ctx context.Context, key, field string, value interface{}) error {
	p.ops = append(p.ops, func() { _ = p.cache.HSet(ctx, key, field, value) })
	return nil
}

func (p *fakePipeline) Exec(context.Context) error {
	p.cache.mu.Lock()
	p.cache.execs++
	err := p.cache.execErr
	p.cache.mu.Unlock()
	if err != nil {
		return err
	}
	for _, op := range p.ops {
		op()
	}
	return nil
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

type staticStates []models.AgentState

func (s staticStates) Snapshot() []models.AgentState { return s }

type staticTick struct{ res *hub.TickResult }

func (s staticTick) LastResult() *hub.TickResult { return s.res }

func fleet(n int) staticStates {
	out := make(staticStates, n)
	for i := range out {
		state := models.MotionResume
		if i%3 == 0 {
			state = models.MotionStop
		}
		out[i] = models.AgentState{DeviceID: fmt.Sprintf("agent-%03d", i), X: float64(i), State: state}
	}
	return out
}

func TestSyncWritesEveryAgent(t *testing.T) {
	cache := newFakeCache()
	states := fleet(150)
	m := New(cache, states, staticTick{res: &hub.TickResult{Tick: 42}}, time.Second)

	require.NoError(t, m.Sync(context.Background()))

	assert.Equal(t, 3, cache.execs, "150 agents in chunks of 64")
	assert.Len(t, cache.hashes[AssignmentKey], 150)
	assert.Equal(t, "Stop", cache.hashes[AssignmentKey]["agent-000"])
	assert.Equal(t, "Resume", cache.hashes[AssignmentKey]["agent-001"])

	var got models.AgentState
	require.NoError(t, json.Unmarshal([]byte(cache.values[AgentStateKey("agent-149")]), &got))
	assert.Equal(t, 149.0, got.X)

	assert.Contains(t, cache.values[LastTickKey], `"tick":42`)
}

func TestSyncWithoutTicks(t *testing.T) {
	cache := newFakeCache()
	m := New(cache, fleet(2), staticTick{}, time.Second)

	require.NoError(t, m.Sync(context.Background()))
	_, ok := cache.values[LastTickKey]
	assert.False(t, ok)
}

func TestSyncReportsPipelineErrors(t *testing.T) {
	cache := newFakeCache()
	cache.execErr = errors.New("READONLY You can't write against a read only replica")
	m := New(cache, fleet(10), nil, time.Second)

	err := m.Sync(context.Background())
	assert.ErrorContains(t, err, "READONLY")
}

func TestRunFlushesOnCancel(t *testing.T) {
	cache := newFakeCache()
	m := New(cache, fleet(1), nil, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	cache.mu.Lock()
	defer cache.mu.Unlock()
	assert.Equal(t, "Stop", cache.hashes[AssignmentKey]["agent-000"])
}
