package paas

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
)

type ctxKey int

const clientCtxKey ctxKey = 1

func WithClient(ctx context.Context, c *Client) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, clientCtxKey, c)
}

func ClientFromContext(ctx context.Context) *Client {
	if ctx == nil {
		return nil
	}
	c, _ := ctx.Value(clientCtxKey).(*Client)
	return c
}

// InjectClientMiddleware makes the platform client reachable from request contexts.
func InjectClientMiddleware(p *Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		if p != nil && c.Request != nil {
			c.Request = c.Request.WithContext(WithClient(c.Request.Context(), p))
		}
		c.Next()
	}
}

// SyncEvent is an audit record about a sync launch or outcome.
type SyncEvent struct {
	Action   string
	Level    string
	PanelID  string
	JobID    string
	SyncType string
	SyncMode string
	Message  string
	Err      error
}

func (e SyncEvent) details() map[string]any {
	d := map[string]any{}
	put := func(k, v string) {
		if v != "" {
			d[k] = v
		}
	}
	put("panel_id", e.PanelID)
	put("job_id", e.JobID)
	put("sync_type", e.SyncType)
	put("sync_mode", e.SyncMode)
	put("message", e.Message)
	if e.Err != nil {
		d["error"] = e.Err.Error()
	}
	return d
}

// RecordSyncEvent writes ev to the platform log when ctx carries a client.
// Failures are ignored; the request that triggered it is never held up for
// more than two seconds.
func RecordSyncEvent(ctx context.Context, ev SyncEvent) {
	p := ClientFromContext(ctx)
	if p == nil || ev.Action == "" {
		return
	}
	level := ev.Level
	if level == "" {
		level = "info"
	}
	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	_ = p.CreateLog(logCtx, LogEntry{
		Action:     ev.Action,
		Level:      level,
		Details:    ev.details(),
		SessionKey: ev.PanelID,
	})
}
