package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"syncpanel/internal/models"
	"syncpanel/internal/service"
)

// PanelStreamHandler serves one sync panel per WebSocket connection. The
// panel lives exactly as long as the connection.
type PanelStreamHandler struct {
	Panels            *service.PanelManager
	Logger            *zap.Logger
	OriginPatterns    []string
	HeartbeatInterval time.Duration
}

type streamCommand struct {
	Action string `json:"action"`
	Kind   string `json:"kind,omitempty"`
	Mode   string `json:"mode,omitempty"`
}

type streamMessage struct {
	Type  string             `json:"type"`
	Panel *service.PanelView `json:"panel,omitempty"`
	Job   *service.JobHandle `json:"job,omitempty"`
	Error string             `json:"error,omitempty"`
}

func (h *PanelStreamHandler) Register(r *gin.Engine) {
	r.GET("/api/v1/stream", h.stream)
}

// @Summary Sync panel stream (WebSocket)
// @Description Opens a panel bound to this connection. Send {"action":"start","kind":"ga4","mode":"new"} to launch a sync; the server pushes panel, tracker, notification and active_jobs messages.
// @Tags panels
// @Param owner query string false "panel owner"
// @Success 101
// @Router /api/v1/stream [get]
func (h *PanelStreamHandler) stream(c *gin.Context) {
	if h.Panels == nil {
		Error(c, http.StatusInternalServerError, "panels unavailable", nil)
		return
	}
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: h.OriginPatterns,
	})
	if err != nil {
		if h.Logger != nil {
			h.Logger.Debug("panel stream upgrade failed", zap.Error(err))
		}
		return
	}
	defer func() { _ = conn.CloseNow() }()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	p := h.Panels.Open(service.PanelOptions{
		Owner:      strings.TrimSpace(c.Query("owner")),
		Persistent: true,
	})
	defer h.Panels.Close(p.ID)

	replies := make(chan streamMessage, 8)
	go func() {
		defer cancel()
		h.readLoop(ctx, conn, p, replies)
	}()

	view := p.View()
	if err := h.write(ctx, conn, streamMessage{Type: "panel", Panel: &view}); err != nil {
		return
	}

	heartbeat := h.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = 20 * time.Second
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		case ev, ok := <-p.Events():
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "panel closed")
				return
			}
			if err := h.write(ctx, conn, ev); err != nil {
				return
			}
		case msg := <-replies:
			if err := h.write(ctx, conn, msg); err != nil {
				return
			}
		case <-ticker.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Ping(pingCtx)
			pingCancel()
			if err != nil {
				if h.Logger != nil {
					h.Logger.Debug("panel stream ping failed", zap.String("panel_id", p.ID), zap.Error(err))
				}
				return
			}
		}
	}
}

func (h *PanelStreamHandler) readLoop(ctx context.Context, conn *websocket.Conn, p *service.SyncPanel, replies chan<- streamMessage) {
	for {
		var cmd streamCommand
		if err := wsjson.Read(ctx, conn, &cmd); err != nil {
			return
		}
		p.Touch()
		var reply streamMessage
		switch strings.ToLower(strings.TrimSpace(cmd.Action)) {
		case "start":
			reply = h.start(ctx, p, cmd)
		case "ping":
			reply = streamMessage{Type: "pong"}
		case "snapshot":
			view := p.View()
			reply = streamMessage{Type: "panel", Panel: &view}
		default:
			reply = streamMessage{Type: "error", Error: "unknown action"}
		}
		select {
		case replies <- reply:
		case <-ctx.Done():
			return
		}
	}
}

func (h *PanelStreamHandler) start(ctx context.Context, p *service.SyncPanel, cmd streamCommand) streamMessage {
	kind, err := service.ParseSyncKind(cmd.Kind)
	if err != nil {
		return streamMessage{Type: "error", Error: err.Error()}
	}
	mode, ok := models.ParseSyncMode(cmd.Mode)
	if !ok {
		return streamMessage{Type: "error", Error: "invalid sync mode"}
	}
	handle, err := p.Start(ctx, kind, mode)
	if err != nil {
		// Launch failures already reached the panel as a notification.
		var le *service.LaunchError
		if errors.As(err, &le) {
			return streamMessage{Type: "start_failed", Error: le.UserMessage}
		}
		return streamMessage{Type: "error", Error: err.Error()}
	}
	return streamMessage{Type: "started", Job: &handle}
}

func (h *PanelStreamHandler) write(ctx context.Context, conn *websocket.Conn, v any) error {
	wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return wsjson.Write(wctx, conn, v)
}
