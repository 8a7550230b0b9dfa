package paas

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// DefaultAgent identifies this service in platform audit logs.
const DefaultAgent = "syncpanel-service"

// Client talks to the easyweb3 platform: login, audit logs and notification
// broadcasts. The bearer token is refreshed shortly before it expires and once
// more when the platform answers 401.
type Client struct {
	BaseURL string
	APIKey  string
	Agent   string
	HTTP    *http.Client

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
}

// HTTPError is a non-2xx answer from the platform.
type HTTPError struct {
	Op     string
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s http %d: %s", e.Op, e.Status, e.Body)
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

func (c *Client) Login(ctx context.Context) error {
	base := c.base()
	if base == "" {
		return errors.New("paas base url is empty")
	}
	apiKey := strings.TrimSpace(c.APIKey)
	if apiKey == "" {
		return errors.New("paas api key is empty")
	}

	var lr loginResponse
	if err := c.send(ctx, "/api/v1/auth/login", "", map[string]any{"api_key": apiKey}, "paas login", &lr); err != nil {
		return err
	}
	exp, _ := time.Parse(time.RFC3339, strings.TrimSpace(lr.ExpiresAt))

	c.mu.Lock()
	c.token = strings.TrimSpace(lr.Token)
	c.expiresAt = exp
	c.mu.Unlock()
	return nil
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) EnsureToken(ctx context.Context) error {
	c.mu.RLock()
	tok := c.token
	exp := c.expiresAt
	c.mu.RUnlock()
	if strings.TrimSpace(tok) == "" {
		return c.Login(ctx)
	}
	if !exp.IsZero() && time.Until(exp) < 2*time.Minute {
		return c.Login(ctx)
	}
	return nil
}

// LogEntry is one audit record. Agent defaults to the client's agent name.
type LogEntry struct {
	Agent   string         `json:"agent"`
	Action  string         `json:"action"`
	Level   string         `json:"level"`
	Details map[string]any `json:"details"`
	// SessionKey groups entries of one panel session on the platform.
	SessionKey string         `json:"session_key"`
	Metadata   map[string]any `json:"metadata"`
}

func (c *Client) CreateLog(ctx context.Context, entry LogEntry) error {
	if strings.TrimSpace(entry.Agent) == "" {
		entry.Agent = c.agent()
	}
	if entry.Details == nil {
		entry.Details = map[string]any{}
	}
	if entry.Metadata == nil {
		entry.Metadata = map[string]any{}
	}
	return c.authed(ctx, "/api/v1/logs", entry, "paas create log")
}

type BroadcastRequest struct {
	Message string `json:"message"`
	Event   string `json:"event"`
}

// Broadcast fans a message out to every channel configured for the project.
func (c *Client) Broadcast(ctx context.Context, req BroadcastRequest) error {
	if strings.TrimSpace(req.Message) == "" {
		return errors.New("paas broadcast message is empty")
	}
	return c.authed(ctx, "/api/v1/notify/broadcast", req, "paas broadcast")
}

func (c *Client) authed(ctx context.Context, path string, payload any, op string) error {
	if err := c.EnsureToken(ctx); err != nil {
		return err
	}
	err := c.send(ctx, path, c.Token(), payload, op, nil)
	var he *HTTPError
	if errors.As(err, &he) && he.Status == http.StatusUnauthorized {
		if lerr := c.Login(ctx); lerr != nil {
			return lerr
		}
		err = c.send(ctx, path, c.Token(), payload, op, nil)
	}
	return err
}

func (c *Client) send(ctx context.Context, path, token string, payload any, op string, out any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base()+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

func (c *Client) base() string {
	return strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
}

func (c *Client) agent() string {
	if a := strings.TrimSpace(c.Agent); a != "" {
		return a
	}
	return DefaultAgent
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: 10 * time.Second}
}
