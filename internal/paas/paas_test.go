package paas

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
)

type fakePlatform struct {
	mu      sync.Mutex
	logins  int
	reject  int
	entries []LogEntry
}

func (f *fakePlatform) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		switch r.URL.Path {
		case "/api/v1/auth/login":
			f.logins++
			_, _ = w.Write([]byte(`{"token":"tok","expires_at":"2099-01-01T00:00:00Z"}`))
		case "/api/v1/logs":
			if f.reject > 0 {
				f.reject--
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			var e LogEntry
			if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
				t.Errorf("decode: %v", err)
			}
			f.entries = append(f.entries, e)
			w.WriteHeader(http.StatusCreated)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func TestClient_ReloginOnUnauthorized(t *testing.T) {
	fp := &fakePlatform{reject: 1}
	srv := httptest.NewServer(fp.handler(t))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, APIKey: "key"}
	if err := c.CreateLog(context.Background(), LogEntry{Action: "a", Level: "info"}); err != nil {
		t.Fatalf("err=%v", err)
	}
	if fp.logins != 2 {
		t.Fatalf("logins=%d want 2", fp.logins)
	}
	if len(fp.entries) != 1 || fp.entries[0].Agent != DefaultAgent {
		t.Fatalf("entries=%+v", fp.entries)
	}
}

func TestClient_LoginErrors(t *testing.T) {
	if err := (&Client{APIKey: "k"}).Login(context.Background()); err == nil {
		t.Fatalf("expected error for empty base url")
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusForbidden)
	}))
	defer srv.Close()
	err := (&Client{BaseURL: srv.URL, APIKey: "k"}).Login(context.Background())
	he, ok := err.(*HTTPError)
	if !ok || he.Status != http.StatusForbidden || he.Body != "bad key" {
		t.Fatalf("err=%v", err)
	}
}

func TestRecordSyncEvent(t *testing.T) {
	fp := &fakePlatform{}
	srv := httptest.NewServer(fp.handler(t))
	defer srv.Close()

	RecordSyncEvent(context.Background(), SyncEvent{Action: "ignored"})

	ctx := WithClient(context.Background(), &Client{BaseURL: srv.URL, APIKey: "key", Agent: "panel-test"})
	RecordSyncEvent(ctx, SyncEvent{Action: "syncpanel_sync_started", PanelID: "p1", JobID: "j1", SyncType: "sync_ga4"})

	if len(fp.entries) != 1 {
		t.Fatalf("entries=%d want 1", len(fp.entries))
	}
	e := fp.entries[0]
	if e.Agent != "panel-test" || e.Level != "info" || e.SessionKey != "p1" {
		t.Fatalf("entry=%+v", e)
	}
	if e.Details["job_id"] != "j1" || e.Details["sync_type"] != "sync_ga4" {
		t.Fatalf("details=%v", e.Details)
	}
	if _, ok := e.Details["sync_mode"]; ok {
		t.Fatalf("empty fields should be omitted: %v", e.Details)
	}
}

func TestRequireBearerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequireBearerMiddleware(AuthOptions{RequireGateway: true}))
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/v1/panels", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/v1/stream", func(c *gin.Context) { c.Status(http.StatusOK) })

	cases := []struct {
		path    string
		headers map[string]string
		want    int
	}{
		{"/healthz", nil, http.StatusOK},
		{"/api/v1/panels", nil, http.StatusUnauthorized},
		{"/api/v1/panels", map[string]string{"Authorization": "Bearer x"}, http.StatusUnauthorized},
		{"/api/v1/panels", map[string]string{"Authorization": "Bearer x", "X-Easyweb3-Project": "p"}, http.StatusOK},
		{"/api/v1/stream?access_token=x", map[string]string{"Upgrade": "websocket", "X-Easyweb3-Project": "p"}, http.StatusOK},
		{"/api/v1/stream?access_token=x", map[string]string{"X-Easyweb3-Project": "p"}, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		for k, v := range tc.headers {
			req.Header.Set(k, v)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Fatalf("%s %v: code=%d want %d", tc.path, tc.headers, w.Code, tc.want)
		}
	}
}
