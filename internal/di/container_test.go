package di

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"collision-hub/internal/mirror"
	"collision-hub/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func commandsFor(pub *MockMessagePublisher, topic string) []models.Command {
	var out []models.Command
	for _, m := range pub.GetPublishedMessages() {
		if m.Topic != topic {
			continue
		}
		var cmd models.Command
		if json.Unmarshal(m.Payload, &cmd) == nil {
			out = append(out, cmd)
		}
	}
	return out
}

func TestHubEndToEnd(t *testing.T) {
	c, db, cache, pub, err := NewMockContainer()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, c.HubService.Start(ctx))

	require.Equal(t, 1, pub.Inject("fleet/robot1/report",
		[]byte(`{"device_id":"robot1","x":10,"y":10,"theta":0,"loaded":false,"timestamp":1,"path":[],"battery_level":90}`)))
	pub.Inject("fleet/robot2/report",
		[]byte(`{"device_id":"robot2","x":10.5,"y":10,"theta":0,"loaded":true,"timestamp":1,"path":[],"battery_level":80}`))

	require.Eventually(t, func() bool {
		return len(commandsFor(pub, "fleet/robot2/command")) > 0 &&
			len(commandsFor(pub, "fleet/robot1/command")) > 0
	}, 2*time.Second, time.Millisecond)

	assert.Equal(t, models.MotionStop, commandsFor(pub, "fleet/robot2/command")[0].State)
	assert.Equal(t, models.MotionResume, commandsFor(pub, "fleet/robot1/command")[0].State)

	// A malformed report is answered on the error topic.
	pub.Inject("fleet/robot3/report", []byte(`{"device_id":"robot3","speed":1}`))
	var notices int
	for _, m := range pub.GetPublishedMessages() {
		if m.Topic == "fleet/hub/errors" {
			notices++
			assert.Contains(t, string(m.Payload), `"code":2103`)
		}
	}
	assert.Equal(t, 1, notices)

	cancel()
	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	c.HubService.Shutdown(shutdownCtx)

	assert.False(t, pub.IsConnected())

	logs := db.CommandLogs()
	require.GreaterOrEqual(t, len(logs), 2)
	for _, l := range logs {
		assert.True(t, l.Delivered)
	}

	agents := db.Agents()
	assert.Equal(t, 0, agents["robot1"].Rank)
	assert.Equal(t, 1, agents["robot2"].Rank)

	assert.Equal(t, "Stop", cache.Hash(mirror.AssignmentKey)["robot2"])

	recent, err := db.RecentCommandLogs("robot2", 10)
	require.NoError(t, err)
	require.NotEmpty(t, recent)
	assert.Equal(t, "Stop", recent[len(recent)-1].State)

	rec := httptest.NewRecorder()
	c.OpsServer.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/commands/robot2", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"Stop"`)
}

func TestManifestSeedsPriority(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
agents:
  - device_id: robot2
  - device_id: robot1
`), 0o644))

	cfg := NewTestConfig()
	cfg.ManifestPath = path
	cfg.PersistenceEnabled = false
	c, err := NewTestContainer(cfg, nil, nil, NewMockMessagePublisher())
	require.NoError(t, err)
	defer c.Dispatcher.Close()

	assert.Nil(t, c.Registry)
	assert.Nil(t, c.Mirror)

	c.Store.Update(models.Report{DeviceID: "robot1", X: 10, Y: 10, Timestamp: 1})
	c.Store.Update(models.Report{DeviceID: "robot2", X: 10.5, Y: 10, Timestamp: 1})

	res, err := c.Hub.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.MotionResume, res.Assignment["robot2"])
	assert.Equal(t, models.MotionStop, res.Assignment["robot1"])
}

func TestTopicMatches(t *testing.T) {
	assert.True(t, topicMatches("fleet/+/report", "fleet/a/report"))
	assert.False(t, topicMatches("fleet/+/report", "fleet/a/b/report"))
	assert.True(t, topicMatches("fleet/#", "fleet/a/b"))
	assert.False(t, topicMatches("fleet/+/report", "fleet/a/command"))
}
