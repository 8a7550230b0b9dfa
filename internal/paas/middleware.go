package paas

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AuthOptions struct {
	Disabled bool
	// RequireGateway rejects requests that did not pass the PaaS gateway.
	RequireGateway bool
}

func RequireBearerMiddleware(opts AuthOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		if opts.Disabled {
			c.Next()
			return
		}
		p := c.Request.URL.Path
		if p == "/healthz" || p == "/readyz" {
			c.Next()
			return
		}
		if !(strings.HasPrefix(p, "/api/") || strings.HasPrefix(p, "/swagger") || p == "/docs") {
			c.Next()
			return
		}
		auth := strings.TrimSpace(c.GetHeader("Authorization"))
		// Browsers cannot set headers on a WebSocket handshake.
		if auth == "" && strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
			if tok := strings.TrimSpace(c.Query("access_token")); tok != "" {
				auth = "Bearer " + tok
			}
		}
		if !strings.HasPrefix(auth, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		if opts.RequireGateway && strings.TrimSpace(c.GetHeader("X-Easyweb3-Project")) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing X-Easyweb3-Project"})
			return
		}
		c.Next()
	}
}

// WriteAuditMiddleware logs every mutating API call to the platform. Panel
// routes carry the panel id as session key so one dashboard's actions group
// together.
func WriteAuditMiddleware(p *Client, logger *zap.Logger) gin.HandlerFunc {
	if p == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.Request.URL.Path
		method := strings.ToUpper(c.Request.Method)
		if !strings.HasPrefix(path, "/api/") {
			return
		}
		if method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions {
			return
		}

		status := c.Writer.Status()
		details := map[string]any{
			"method":   method,
			"route":    c.FullPath(),
			"path":     path,
			"status":   status,
			"duration": time.Since(start).String(),
			"project":  strings.TrimSpace(c.GetHeader("X-Easyweb3-Project")),
			"role":     strings.TrimSpace(c.GetHeader("X-Easyweb3-Role")),
		}
		if kind := c.Param("kind"); kind != "" {
			details["kind"] = kind
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		err := p.CreateLog(ctx, LogEntry{
			Action:     "syncpanel_http_write",
			Level:      levelFromStatus(status),
			Details:    details,
			SessionKey: c.Param("id"),
		})
		if err != nil && logger != nil {
			logger.Debug("paas audit log failed", zap.String("path", path), zap.Error(err))
		}
	}
}

func levelFromStatus(status int) string {
	if status >= 500 {
		return "error"
	}
	if status >= 400 {
		return "warn"
	}
	return "info"
}
