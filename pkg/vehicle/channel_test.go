package vehicle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roadscout/pkg/model"
)

var upgrader = websocket.Upgrader{}

func telemetryServer(t *testing.T, samples []model.VehicleData) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, s := range samples {
			if err := conn.WriteJSON(s); err != nil {
				return
			}
		}
		// Hold the connection open so the channel stays Connected.
		time.Sleep(5 * time.Second)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestChannelReceivesTelemetry(t *testing.T) {
	srv := telemetryServer(t, []model.VehicleData{
		{SpeedKmh: 62.5, FuelLevelPct: 48, EngineTempC: 88, RPM: 2100, OdometerKm: 15230},
	})
	c := New(Config{URL: wsURL(srv)})

	got := make(chan model.VehicleData, 1)
	c.OnData(func(d model.VehicleData) { got <- d })
	c.Start(context.Background())
	defer c.Stop()

	select {
	case d := <-got:
		assert.Equal(t, 62.5, d.SpeedKmh)
		assert.Equal(t, 48.0, d.FuelLevelPct)
		assert.False(t, d.ReceivedAt.IsZero())
	case <-time.After(time.Second):
		t.Fatal("no telemetry received")
	}

	assert.Equal(t, StateConnected, c.State())
	d, ok := c.Latest()
	require.True(t, ok)
	assert.Equal(t, 2100.0, d.RPM)
}

func TestChannelLatestGoesStale(t *testing.T) {
	srv := telemetryServer(t, []model.VehicleData{{SpeedKmh: 30}})
	c := New(Config{URL: wsURL(srv), Staleness: 30 * time.Millisecond})

	c.Start(context.Background())
	defer c.Stop()

	require.Eventually(t, func() bool {
		_, ok := c.Latest()
		return ok
	}, time.Second, time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	_, ok := c.Latest()
	assert.False(t, ok, "stale telemetry must not be served")
}

func TestChannelGivesUpAfterMaxAttempts(t *testing.T) {
	c := New(Config{
		URL:         "ws://127.0.0.1:1/vehicle", // nothing listens here
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
	})

	c.Start(context.Background())
	defer c.Stop()

	require.Eventually(t, func() bool { return c.State() == StateFailed }, 2*time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, c.LastError(), ErrGaveUp)
}

func TestChannelStopSynchronous(t *testing.T) {
	srv := telemetryServer(t, []model.VehicleData{{SpeedKmh: 10}})
	c := New(Config{URL: wsURL(srv)})

	c.Start(context.Background())
	require.Eventually(t, func() bool { return c.State() == StateConnected }, time.Second, time.Millisecond)

	c.Stop()
	assert.Equal(t, StateIdle, c.State())
	c.Stop() // idempotent
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "reconnecting", StateReconnecting.String())
}

func TestBackoffCapped(t *testing.T) {
	assert.Equal(t, time.Second, backoff(time.Second, 10*time.Second, 1))
	assert.Equal(t, 4*time.Second, backoff(time.Second, 10*time.Second, 3))
	assert.Equal(t, 10*time.Second, backoff(time.Second, 10*time.Second, 6))
	assert.Equal(t, 10*time.Second, backoff(time.Second, 10*time.Second, 200))
}
