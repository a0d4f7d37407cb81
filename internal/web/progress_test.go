package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/service"
)

func dialProgress(t *testing.T, srv *httptest.Server, query string, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/progress" + query
	return websocket.DefaultDialer.Dial(url, header)
}

func TestProgress_StreamsJobEvents(t *testing.T) {
	ts := setupTestServer(t, nil)
	bus := service.NewEventBus(10)
	ts.SetEventBus(bus)

	srv := httptest.NewServer(ts.Handler())
	defer srv.Close()

	conn, _, err := dialProgress(t, srv, "?job=wanted", nil)
	require.NoError(t, err)
	defer conn.Close()

	bus.Publish(service.Event{Type: service.EventTypeJobStarted, Source: "pipeline", Data: map[string]interface{}{"job_id": "other"}})
	bus.Publish(service.Event{Type: service.EventTypeJobProgress, Source: "pipeline", Data: map[string]interface{}{"job_id": "wanted", "frames": 25}})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var got service.Event
	require.NoError(t, conn.ReadJSON(&got))

	assert.Equal(t, service.EventTypeJobProgress, got.Type)
	assert.Equal(t, "wanted", got.Data["job_id"])
	assert.EqualValues(t, 25, got.Data["frames"])
}

func TestProgress_AllEventsWithoutFilter(t *testing.T) {
	ts := setupTestServer(t, nil)
	bus := service.NewEventBus(10)
	ts.SetEventBus(bus)

	srv := httptest.NewServer(ts.Handler())
	defer srv.Close()

	conn, _, err := dialProgress(t, srv, "", nil)
	require.NoError(t, err)
	defer conn.Close()

	bus.Publish(service.Event{Type: service.EventTypeScratchCleaned, Source: "scratch-janitor"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var got service.Event
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, service.EventTypeScratchCleaned, got.Type)
}

func TestProgress_ClosedOnShutdown(t *testing.T) {
	ts := setupTestServer(t, nil)
	bus := service.NewEventBus(10)
	ts.SetEventBus(bus)

	srv := httptest.NewServer(ts.Handler())
	defer srv.Close()

	conn, _, err := dialProgress(t, srv, "", nil)
	require.NoError(t, err)
	defer conn.Close()

	bus.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestProgress_RejectsUnknownOrigin(t *testing.T) {
	ts := setupTestServer(t, nil)
	ts.SetEventBus(service.NewEventBus(10))

	srv := httptest.NewServer(ts.Handler())
	defer srv.Close()

	_, resp, err := dialProgress(t, srv, "", http.Header{"Origin": []string{"http://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestProgress_NoEventBus(t *testing.T) {
	ts := setupTestServer(t, nil)

	w := ts.do(httptest.NewRequest(http.MethodGet, "/ws/progress", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
