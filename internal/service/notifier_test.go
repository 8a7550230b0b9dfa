package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"syncpanel/internal/paas"
)

func TestWebhookNotifier_PostsPayload(t *testing.T) {
	got := make(chan webhookPayload, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method=%s want POST", r.Method)
		}
		var p webhookPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode: %v", err)
		}
		got <- p
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := &WebhookNotifier{URL: srv.URL, Project: "acme"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n.ShowError(ctx, "quota exceeded")

	p := <-got
	if p.Project != "acme" || p.Event != "sync_error" || p.Message != "quota exceeded" {
		t.Fatalf("payload=%+v", p)
	}
}

func TestWebhookNotifier_EmptyURLIsNoop(t *testing.T) {
	var n *WebhookNotifier
	n.ShowSuccess(context.Background(), "ok")
	(&WebhookNotifier{}).ShowWarning(context.Background(), "ok")
}

func TestMultiNotifier_WarningOnlyReachesWarningSinks(t *testing.T) {
	plain := &plainNotifier{}
	rich := newChanNotifier()
	m := MultiNotifier{plain, nil, rich}

	m.ShowSuccess(context.Background(), "done")
	m.ShowWarning(context.Background(), "Sync status unknown: timeout")

	if plain.count() != 1 {
		t.Fatalf("plain sink calls=%d want 1", plain.count())
	}
	notes := rich.drain()
	if len(notes) != 2 || notes[1].level != LevelWarning {
		t.Fatalf("notes=%v", notes)
	}
}

func TestPaaSNotifier_BroadcastsWhenEnabled(t *testing.T) {
	var mu sync.Mutex
	var broadcasts []paas.BroadcastRequest
	logs := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/login":
			_, _ = w.Write([]byte(`{"token":"tok","expires_at":"2099-01-01T00:00:00Z"}`))
		case "/api/v1/notify/broadcast":
			if r.Header.Get("Authorization") != "Bearer tok" {
				t.Errorf("authorization=%q", r.Header.Get("Authorization"))
			}
			var req paas.BroadcastRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			mu.Lock()
			broadcasts = append(broadcasts, req)
			mu.Unlock()
			w.WriteHeader(http.StatusOK)
		case "/api/v1/logs":
			mu.Lock()
			logs++
			mu.Unlock()
			w.WriteHeader(http.StatusCreated)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	repo := newStubRepo()
	flags := &SystemSettingsService{Repo: repo}
	n := &PaaSNotifier{Client: &paas.Client{BaseURL: srv.URL, APIKey: "key"}, Flags: flags}

	n.ShowSuccess(context.Background(), "GA4 sync completed: Clients synced: 3")
	if err := flags.SetEnabled(context.Background(), FeaturePaaSNotify, false); err != nil {
		t.Fatalf("err=%v", err)
	}
	n.ShowError(context.Background(), "quota exceeded")

	mu.Lock()
	defer mu.Unlock()
	if len(broadcasts) != 1 {
		t.Fatalf("broadcasts=%d want 1", len(broadcasts))
	}
	if broadcasts[0].Event != "sync_success" || broadcasts[0].Message != "GA4 sync completed: Clients synced: 3" {
		t.Fatalf("broadcast=%+v", broadcasts[0])
	}
	if logs != 1 {
		t.Fatalf("audit logs=%d want 1", logs)
	}
}

type plainNotifier struct {
	mu sync.Mutex
	n  int
}

func (p *plainNotifier) ShowSuccess(ctx context.Context, message string) { p.inc() }
func (p *plainNotifier) ShowError(ctx context.Context, message string)   { p.inc() }

func (p *plainNotifier) inc() {
	p.mu.Lock()
	p.n++
	p.mu.Unlock()
}

func (p *plainNotifier) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.n
}
