package paas

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func RegisterDocs(r *gin.Engine) {
	r.GET("/docs", func(c *gin.Context) {
		c.Header("Content-Type", "text/markdown; charset=utf-8")
		c.String(http.StatusOK, `# Sync Panel Service

Launches background sync jobs (full, GA4, Agency Analytics) on the job service and
tracks them until they finish. Usually reached through the easyweb3 PaaS Gateway:
- /api/v1/services/syncpanel/

## Auth

All /api/* routes require a Bearer token. The panel stream also accepts
?access_token= on the WebSocket handshake. Health endpoints are public.

## Panels

A panel tracks at most one job. Launching again replaces the tracked job; the
replaced job keeps running on the job service but is no longer polled.

- POST   /api/v1/panels
- GET    /api/v1/panels/:id
- DELETE /api/v1/panels/:id
- POST   /api/v1/panels/:id/sync/:kind?mode=new|complete
- GET    /api/v1/panels/:id/notifications
- GET    /api/v1/panels
- GET    /api/v1/stream?owner= (WebSocket, one panel per connection)

kind is one of full, ga4, agency_analytics. mode defaults to complete.
Stream clients send {"action":"start","kind":"ga4","mode":"new"}.

## Jobs

- GET  /api/v1/sync/jobs/active
- POST /api/v1/sync/jobs/refresh
- GET  /api/v1/sync/history
- GET  /api/v1/sync/history/:job_id

## Settings

- GET /api/v1/system-settings/switches
- PUT /api/v1/system-settings/switches/:name

## Infra

- GET /healthz
- GET /readyz
- GET /swagger/index.html
`)
	})
}
