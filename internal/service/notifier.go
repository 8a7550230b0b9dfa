package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"syncpanel/internal/paas"
)

const (
	LevelSuccess = "success"
	LevelError   = "error"
	LevelWarning = "warning"
)

// Notifier is the user-facing toast sink.
type Notifier interface {
	ShowSuccess(ctx context.Context, message string)
	ShowError(ctx context.Context, message string)
}

// WarningNotifier is implemented by sinks that can show non-terminal notices
// such as a lost job status.
type WarningNotifier interface {
	ShowWarning(ctx context.Context, message string)
}

func notifyWarning(ctx context.Context, n Notifier, message string) {
	if w, ok := n.(WarningNotifier); ok {
		w.ShowWarning(ctx, message)
	}
}

type MultiNotifier []Notifier

func (m MultiNotifier) ShowSuccess(ctx context.Context, message string) {
	for _, n := range m {
		if n != nil {
			n.ShowSuccess(ctx, message)
		}
	}
}

func (m MultiNotifier) ShowError(ctx context.Context, message string) {
	for _, n := range m {
		if n != nil {
			n.ShowError(ctx, message)
		}
	}
}

func (m MultiNotifier) ShowWarning(ctx context.Context, message string) {
	for _, n := range m {
		if n != nil {
			notifyWarning(ctx, n, message)
		}
	}
}

type LogNotifier struct {
	Logger *zap.Logger
}

func (n LogNotifier) ShowSuccess(ctx context.Context, message string) {
	n.log(zap.InfoLevel, LevelSuccess, message)
}

func (n LogNotifier) ShowError(ctx context.Context, message string) {
	n.log(zap.WarnLevel, LevelError, message)
}

func (n LogNotifier) ShowWarning(ctx context.Context, message string) {
	n.log(zap.WarnLevel, LevelWarning, message)
}

func (n LogNotifier) log(lvl zapcore.Level, level, message string) {
	if n.Logger == nil {
		return
	}
	if ce := n.Logger.Check(lvl, "sync notification"); ce != nil {
		ce.Write(zap.String("level", level), zap.String("message", message))
	}
}

// WebhookNotifier posts each notification as JSON to URL.
type WebhookNotifier struct {
	URL     string
	Project string
	HTTP    *http.Client
	Timeout time.Duration
	Logger  *zap.Logger
}

type webhookPayload struct {
	Project string `json:"project"`
	Event   string `json:"event"`
	Message string `json:"message"`
}

func (n *WebhookNotifier) ShowSuccess(ctx context.Context, message string) {
	n.send(ctx, "sync_"+LevelSuccess, message)
}

func (n *WebhookNotifier) ShowError(ctx context.Context, message string) {
	n.send(ctx, "sync_"+LevelError, message)
}

func (n *WebhookNotifier) ShowWarning(ctx context.Context, message string) {
	n.send(ctx, "sync_"+LevelWarning, message)
}

func (n *WebhookNotifier) send(ctx context.Context, event, message string) {
	if n == nil || strings.TrimSpace(n.URL) == "" {
		return
	}
	if err := n.post(ctx, webhookPayload{Project: n.Project, Event: event, Message: message}); err != nil && n.Logger != nil {
		n.Logger.Warn("webhook notification failed", zap.String("event", event), zap.Error(err))
	}
}

func (n *WebhookNotifier) post(ctx context.Context, payload webhookPayload) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	timeout := n.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	// Detached from ctx: a panel teardown must not drop an outcome already decided.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(sendCtx, http.MethodPost, n.URL, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	client := n.HTTP
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook http status %d", resp.StatusCode)
	}
	return nil
}

// PaaSNotifier forwards notifications to the easyweb3 platform: a broadcast to
// the project's channels plus an audit log entry.
type PaaSNotifier struct {
	Client *paas.Client
	Flags  *SystemSettingsService
	Logger *zap.Logger
}

func (n *PaaSNotifier) ShowSuccess(ctx context.Context, message string) {
	n.forward(ctx, LevelSuccess, "info", message)
}

func (n *PaaSNotifier) ShowError(ctx context.Context, message string) {
	n.forward(ctx, LevelError, "warn", message)
}

func (n *PaaSNotifier) ShowWarning(ctx context.Context, message string) {
	n.forward(ctx, LevelWarning, "warn", message)
}

func (n *PaaSNotifier) forward(ctx context.Context, level, logLevel, message string) {
	if n == nil || n.Client == nil {
		return
	}
	if n.Flags != nil && !n.Flags.IsEnabled(ctx, FeaturePaaSNotify, true) {
		return
	}
	event := "sync_" + level
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if err := n.Client.Broadcast(sendCtx, paas.BroadcastRequest{Message: message, Event: event}); err != nil && n.Logger != nil {
		n.Logger.Debug("paas broadcast failed", zap.String("event", event), zap.Error(err))
	}
	paas.RecordSyncEvent(paas.WithClient(sendCtx, n.Client), paas.SyncEvent{
		Action:  "syncpanel_" + event,
		Level:   logLevel,
		Message: message,
	})
}
