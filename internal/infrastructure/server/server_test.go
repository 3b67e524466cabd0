package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/SessionHost/internal/infrastructure/config"
	"github.com/GriffinCanCode/SessionHost/internal/infrastructure/logging"
)

const leagueID = 5426

type harness struct {
	server *Server
	base   string
	wsURL  string
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Logging.Dir = t.TempDir()
	cfg.Logging.Level = "debug"
	cfg.Archive.Dir = t.TempDir()
	cfg.Window.CloseTimeout = 2 * time.Second
	cfg.RateLimit.Enabled = false
	return cfg
}

func start(t *testing.T, cfg *config.Config) *harness {
	t.Helper()

	logger, err := logging.New(logging.Config{Level: cfg.Logging.Level, Dir: cfg.Logging.Dir})
	require.NoError(t, err)

	s, err := newServer(cfg, logger)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	t.Cleanup(func() {
		cancel()
		<-done
		_ = s.Close()
	})

	addr := ln.Addr().String()
	return &harness{
		server: s,
		base:   "http://" + addr,
		wsURL:  "ws://" + addr + "/ws/" + cfg.Window.Name,
	}
}

func (h *harness) post(t *testing.T, path, body string) int {
	t.Helper()
	resp, err := http.Post(h.base+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode
}

func (h *harness) getJSON(t *testing.T, path string) map[string]any {
	t.Helper()
	resp, err := http.Get(h.base + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (h *harness) state(t *testing.T) string {
	s, _ := h.getJSON(t, "/session")["state"].(string)
	return s
}

func (h *harness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(h.wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// dialAdmitted dials the window and waits until the hub delivers to it.
func (h *harness) dialAdmitted(t *testing.T) *websocket.Conn {
	t.Helper()
	conn := h.dial(t)
	welcome := readUntil(t, conn, "system")
	require.Eventually(t, func() bool {
		connector, _ := h.server.hub.AwaitDisconnect(h.server.config.Window.Name)
		return connector.String() == welcome["connector"]
	}, 3*time.Second, 5*time.Millisecond)
	return conn
}

// readUntil reads messages until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var msg map[string]any
		require.NoError(t, conn.ReadJSON(&msg), "waiting for %q", msgType)
		if msg["type"] == msgType {
			return msg
		}
	}
}

// readTypesUntil collects message types up to and including msgType.
func readTypesUntil(t *testing.T, conn *websocket.Conn, msgType string) []string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var types []string
	for {
		var msg map[string]any
		require.NoError(t, conn.ReadJSON(&msg), "waiting for %q", msgType)
		typ, _ := msg["type"].(string)
		types = append(types, typ)
		if typ == msgType {
			return types
		}
	}
}

// holdLoop blocks the event loop until the returned release func is called.
func (h *harness) holdLoop(t *testing.T) func() {
	t.Helper()
	running := make(chan struct{})
	gate := make(chan struct{})
	require.True(t, h.server.loop.Post(func() {
		close(running)
		<-gate
	}))
	<-running

	var once sync.Once
	release := func() { once.Do(func() { close(gate) }) }
	t.Cleanup(release)
	return release
}

func (h *harness) waitBacklog(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.server.loop.Backlog() == n }, 3*time.Second, 5*time.Millisecond)
}

func count(items []string, want string) int {
	n := 0
	for _, s := range items {
		if s == want {
			n++
		}
	}
	return n
}

func TestLaunchBeforeWindowConnectsIsReplayed(t *testing.T) {
	h := start(t, testConfig(t))

	require.Equal(t, http.StatusAccepted,
		h.post(t, "/events/launched", `{"id":5426,"name":"League of Legends"}`))
	require.Eventually(t, func() bool { return h.state(t) == "active" }, 3*time.Second, 20*time.Millisecond)

	conn := h.dial(t)
	msg := readUntil(t, conn, "session-started")
	assert.Equal(t, "Game was launched: League of Legends 5426", msg["text"])
}

func TestSessionLifecycleArchivesLogs(t *testing.T) {
	cfg := testConfig(t)
	h := start(t, cfg)

	conn := h.dialAdmitted(t)

	require.Equal(t, http.StatusAccepted,
		h.post(t, "/events/launched", `{"id":5426,"name":"League of Legends"}`))
	readUntil(t, conn, "open")
	msg := readUntil(t, conn, "session-started")
	assert.Equal(t, "Game was launched: League of Legends 5426", msg["text"])

	require.Equal(t, http.StatusAccepted,
		h.post(t, "/events/closed", `{"id":5426,"name":"League of Legends"}`))
	readUntil(t, conn, "close")
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "closing"}))

	require.Eventually(t, func() bool {
		archives, _ := h.getJSON(t, "/archives")["archives"].([]any)
		return len(archives) == 1
	}, 3*time.Second, 20*time.Millisecond)

	archives := h.getJSON(t, "/archives")["archives"].([]any)
	assert.True(t, strings.HasPrefix(archives[0].(string), "LeagueofLegends/"), archives[0])
	assert.Equal(t, "idle", h.state(t))

	matches, err := filepath.Glob(filepath.Join(cfg.Archive.Dir, "LeagueofLegends", "*.tar.zst"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestUnconfiguredLaunchIsIgnored(t *testing.T) {
	h := start(t, testConfig(t))

	require.Equal(t, http.StatusAccepted, h.post(t, "/events/launched", `{"id":999999,"name":"Solitaire"}`))
	require.Equal(t, http.StatusAccepted, h.post(t, "/events/post-session", `{"name":"Solitaire"}`))

	// a status read is queued behind both events
	status := h.getJSON(t, "/session")
	assert.Equal(t, "idle", status["state"])
	assert.Equal(t, false, status["has_pending_notification"])
}

func TestSpoolEventsDriveSessions(t *testing.T) {
	cfg := testConfig(t)
	cfg.Detection.SpoolDir = t.TempDir()
	h := start(t, cfg)

	tmp := filepath.Join(cfg.Detection.SpoolDir, ".launch.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte(`{"event":"launched","id":5426,"name":"League of Legends"}`), 0o644))
	require.NoError(t, os.Rename(tmp, filepath.Join(cfg.Detection.SpoolDir, "0001.json")))

	require.Eventually(t, func() bool { return h.state(t) == "active" }, 3*time.Second, 20*time.Millisecond)
}

func TestMetricsAndHealth(t *testing.T) {
	h := start(t, testConfig(t))

	health := h.getJSON(t, "/health")
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, true, health["detection"].(map[string]any)["started"])

	resp, err := http.Get(h.base + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNewServerRejectsMissingCatalog(t *testing.T) {
	cfg := testConfig(t)
	cfg.Catalog.Path = filepath.Join(t.TempDir(), "missing.yaml")

	logger, err := logging.New(logging.Config{Level: "error", Dir: cfg.Logging.Dir})
	require.NoError(t, err)

	_, err = newServer(cfg, logger)
	assert.Error(t, err)
}

func TestLauncherFor(t *testing.T) {
	assert.Nil(t, launcherFor(config.WindowConfig{}))
	assert.NotNil(t, launcherFor(config.WindowConfig{Launch: "overlay --kiosk"}))
}

func TestConnectRacingLaunchDeliversOnce(t *testing.T) {
	h := start(t, testConfig(t))

	release := h.holdLoop(t)
	require.Equal(t, http.StatusAccepted,
		h.post(t, "/events/launched", `{"id":5426,"name":"League of Legends"}`))
	conn := h.dial(t)
	readUntil(t, conn, "system")
	h.waitBacklog(t, 2)
	release()

	// the status read runs after both queued events
	require.Equal(t, "active", h.state(t))
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	types := readTypesUntil(t, conn, "pong")

	assert.Equal(t, 1, count(types, "session-started"), types)
}

func TestStaleCloseKeepsNextSessionWindow(t *testing.T) {
	cfg := testConfig(t)
	cfg.Window.CloseTimeout = 10 * time.Second
	h := start(t, cfg)

	require.Equal(t, http.StatusAccepted,
		h.post(t, "/events/launched", `{"id":5426,"name":"League of Legends"}`))
	first := h.dial(t)
	readUntil(t, first, "session-started")

	// the first window never acknowledges the close
	require.Equal(t, http.StatusAccepted,
		h.post(t, "/events/closed", `{"id":5426,"name":"League of Legends"}`))
	readUntil(t, first, "close")

	require.Equal(t, http.StatusAccepted,
		h.post(t, "/events/launched", `{"id":5426,"name":"League of Legends"}`))
	require.Equal(t, "active", h.state(t))

	second := h.dial(t)
	welcome := readUntil(t, second, "system")
	msg := readUntil(t, second, "session-started")
	assert.Equal(t, "Game was launched: League of Legends 5426", msg["text"])

	// replacing the first peer confirms the earlier close and archives it
	require.Eventually(t, func() bool {
		archives, _ := h.getJSON(t, "/archives")["archives"].([]any)
		return len(archives) == 1
	}, 3*time.Second, 20*time.Millisecond)

	connector, _ := h.server.hub.AwaitDisconnect(cfg.Window.Name)
	assert.Equal(t, welcome["connector"], connector.String())
	assert.Equal(t, "active", h.state(t))

	require.NoError(t, second.WriteJSON(map[string]string{"type": "ping"}))
	readUntil(t, second, "pong")
}
