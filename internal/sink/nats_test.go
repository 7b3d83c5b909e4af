package sink

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestNATSServer(t *testing.T) *natsserver.Server {
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1, // Random port
		NoLog:  true,
		NoSigs: true,
	}

	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()

	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})

	return server
}

func connect(t *testing.T, server *natsserver.Server) *nats.Conn {
	t.Helper()
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	return nc
}

func TestNATSClient_Publishes(t *testing.T) {
	server := startTestNATSServer(t)
	nc := connect(t, server)

	events, err := nc.SubscribeSync("analytics.events")
	require.NoError(t, err)
	profiles, err := nc.SubscribeSync("analytics.profile")
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	client, err := NewNATSClient(connect(t, server), NATSConfig{
		SubjectPrefix: "analytics",
		DistinctID:    "visitor-1",
	})
	require.NoError(t, err)
	require.True(t, client.IsReady())

	NewAdapter(client).SendTraits(context.Background(), debugTraits(), true)

	msg, err := events.NextMsg(2 * time.Second)
	require.NoError(t, err)
	var event map[string]any
	require.NoError(t, json.Unmarshal(msg.Data, &event))
	assert.Equal(t, EventName, event["event"])
	assert.Equal(t, "visitor-1", event["distinct_id"])
	assert.NotEmpty(t, event["id"])
	props, ok := event["properties"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "react", props["framework_primary"])
	assert.NotContains(t, props, "debug_signals")
	assert.NotContains(t, string(msg.Data), "react-devtools-hook")

	msg, err = profiles.NextMsg(2 * time.Second)
	require.NoError(t, err)
	var profile struct {
		DistinctID string            `json:"distinct_id"`
		Traits     map[string]string `json:"traits"`
	}
	require.NoError(t, json.Unmarshal(msg.Data, &profile))
	assert.Equal(t, "visitor-1", profile.DistinctID)
	assert.Equal(t, "redux", profile.Traits["tech_stack_state_management"])
	assert.Len(t, profile.Traits, 6)
}

func TestNATSClient_Readiness(t *testing.T) {
	server := startTestNATSServer(t)

	noIdentity, err := NewNATSClient(connect(t, server), NATSConfig{SubjectPrefix: "analytics"})
	require.NoError(t, err)
	assert.False(t, noIdentity.IsReady())

	nc := connect(t, server)
	closed, err := NewNATSClient(nc, NATSConfig{SubjectPrefix: "analytics", DistinctID: "v"})
	require.NoError(t, err)
	nc.Close()
	assert.False(t, closed.IsReady())
}

func TestNATSClient_RateLimitDrops(t *testing.T) {
	server := startTestNATSServer(t)
	client, err := NewNATSClient(connect(t, server), NATSConfig{
		SubjectPrefix: "analytics",
		DistinctID:    "visitor-1",
		RateLimit:     0.001,
		Burst:         2,
	})
	require.NoError(t, err)

	ctx := context.Background()
	props := NewEventProperties(debugTraits())
	require.NoError(t, client.CaptureEvent(ctx, EventName, props))
	require.NoError(t, client.CaptureEvent(ctx, EventName, props))
	assert.ErrorIs(t, client.CaptureEvent(ctx, EventName, props), ErrRateLimited)
	assert.NoError(t, client.SetProfileTraits(ctx, NewProfileTraits(debugTraits())),
		"profile updates ride on the event's token")
}

func TestNATSClient_BurstOfOneDeliversEventAndProfile(t *testing.T) {
	server := startTestNATSServer(t)
	nc := connect(t, server)

	events, err := nc.SubscribeSync("analytics.events")
	require.NoError(t, err)
	profiles, err := nc.SubscribeSync("analytics.profile")
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	client, err := NewNATSClient(connect(t, server), NATSConfig{
		SubjectPrefix: "analytics",
		DistinctID:    "visitor-1",
		RateLimit:     0.01,
		Burst:         1,
	})
	require.NoError(t, err)

	counter := resultCounter{}
	a := NewAdapter(client, WithRecorder(counter))
	ctx := context.Background()

	assert.Equal(t, Result(ResultSent), a.SendTraits(ctx, debugTraits(), false))
	assert.Equal(t, resultCounter{ResultSent: 1}, counter)

	_, err = events.NextMsg(2 * time.Second)
	require.NoError(t, err)
	_, err = profiles.NextMsg(2 * time.Second)
	require.NoError(t, err)

	assert.Equal(t, Result(ResultError), a.SendTraits(ctx, debugTraits(), false),
		"a second delivery inside the window is dropped")
	_, err = profiles.NextMsg(100 * time.Millisecond)
	assert.ErrorIs(t, err, nats.ErrTimeout, "a dropped event skips the profile update")
}

func TestNewNATSClient_Validation(t *testing.T) {
	_, err := NewNATSClient(nil, NATSConfig{SubjectPrefix: "a"})
	assert.Error(t, err)

	server := startTestNATSServer(t)
	_, err = NewNATSClient(connect(t, server), NATSConfig{})
	assert.Error(t, err)
}
