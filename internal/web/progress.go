package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/service"
)

const (
	progressWriteWait  = 10 * time.Second
	progressPongWait   = 60 * time.Second
	progressPingPeriod = (progressPongWait * 9) / 10
)

// handleProgress streams event bus events over a WebSocket. With ?job=<id>
// only that job's events are sent.
func (s *Server) handleProgress(c *gin.Context) {
	bus := s.GetEventBus()
	if bus == nil {
		respondError(c, &APIError{Status: http.StatusServiceUnavailable, Message: "Eventos no disponibles"})
		return
	}
	jobID := c.Query("job")

	// Subscribe before the handshake completes so no event published after
	// the client sees the upgrade is missed.
	events := bus.SubscribeAll()
	defer bus.UnsubscribeAll(events)

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader has already replied
		s.LogDebug("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	s.LogDebug("Progress client connected", "job_id", jobID, "remote", c.ClientIP())

	// Reads only serve to notice the client going away and to handle pongs
	closed := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(progressPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(progressPongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(progressPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(progressWriteWait))
				return
			}
			if jobID != "" && !eventForJob(event, jobID) {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(progressWriteWait))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(progressWriteWait)); err != nil {
				return
			}
		}
	}
}

func eventForJob(event service.Event, jobID string) bool {
	id, _ := event.Data["job_id"].(string)
	return id == jobID
}

// checkOrigin accepts non-browser clients and the configured CORS origins
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range s.config.CORSOrigins {
		o = strings.TrimRight(o, "/")
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}
