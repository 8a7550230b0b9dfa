package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"syncpanel/internal/models"
)

const (
	defaultEventBuffer = 32
	notificationLimit  = 20
)

type PanelEventType string

const (
	PanelEventNotification PanelEventType = "notification"
	PanelEventTracker      PanelEventType = "tracker"
	PanelEventActiveJobs   PanelEventType = "active_jobs"
)

type PanelNotification struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// PanelEvent is one message on a panel's event stream. Exactly one payload is set.
type PanelEvent struct {
	Type         PanelEventType      `json:"type"`
	Notification *PanelNotification  `json:"notification,omitempty"`
	Tracker      *TrackerSnapshot    `json:"tracker,omitempty"`
	ActiveJobs   *ActiveJobsSnapshot `json:"active_jobs,omitempty"`
}

type PanelView struct {
	ID            string              `json:"id"`
	Owner         string              `json:"owner,omitempty"`
	Trigger       string              `json:"trigger"`
	Persistent    bool                `json:"persistent"`
	CreatedAt     time.Time           `json:"created_at"`
	LastSeen      time.Time           `json:"last_seen"`
	Tracker       TrackerSnapshot     `json:"tracker"`
	Notifications []PanelNotification `json:"notifications"`
}

// SyncPanel is one dashboard view: a launcher and a tracker bound together,
// plus the notifications and events produced for that view.
type SyncPanel struct {
	ID         string
	Owner      string
	Trigger    string
	Persistent bool
	CreatedAt  time.Time

	Launcher *SyncLauncher
	Tracker  *SyncTracker

	mu       sync.Mutex
	notes    []PanelNotification
	lastSeen time.Time
	events   chan PanelEvent
	closed   bool

	closeOnce   sync.Once
	unsubscribe func()
	forwardDone chan struct{}
}

// Start launches a sync from this panel.
func (p *SyncPanel) Start(ctx context.Context, kind SyncKind, mode models.SyncMode) (JobHandle, error) {
	p.Touch()
	return p.Launcher.Start(ctx, kind, mode)
}

// Events streams notifications, tracker updates and active-jobs snapshots.
// When the consumer falls behind the oldest queued event is dropped. The
// channel is closed by Close.
func (p *SyncPanel) Events() <-chan PanelEvent {
	return p.events
}

func (p *SyncPanel) Touch() {
	p.mu.Lock()
	p.lastSeen = time.Now().UTC()
	p.mu.Unlock()
}

func (p *SyncPanel) LastSeen() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSeen
}

func (p *SyncPanel) Notifications() []PanelNotification {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PanelNotification(nil), p.notes...)
}

func (p *SyncPanel) View() PanelView {
	p.mu.Lock()
	view := PanelView{
		ID:            p.ID,
		Owner:         p.Owner,
		Trigger:       p.Trigger,
		Persistent:    p.Persistent,
		CreatedAt:     p.CreatedAt,
		LastSeen:      p.lastSeen,
		Notifications: append([]PanelNotification{}, p.notes...),
	}
	p.mu.Unlock()
	view.Tracker = p.Tracker.Snapshot()
	return view
}

// Close stops tracking, detaches from the registry and closes Events.
func (p *SyncPanel) Close() {
	p.closeOnce.Do(func() {
		p.Tracker.Close()
		if p.unsubscribe != nil {
			p.unsubscribe()
			<-p.forwardDone
		}
		p.mu.Lock()
		p.closed = true
		close(p.events)
		p.mu.Unlock()
	})
}

func (p *SyncPanel) publish(ev PanelEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.events <- ev:
		return
	default:
	}
	select {
	case <-p.events:
	default:
	}
	select {
	case p.events <- ev:
	default:
	}
}

func (p *SyncPanel) note(level, message string) {
	n := PanelNotification{Level: level, Message: message, At: time.Now().UTC()}
	p.mu.Lock()
	p.notes = append(p.notes, n)
	if len(p.notes) > notificationLimit {
		p.notes = append([]PanelNotification(nil), p.notes[len(p.notes)-notificationLimit:]...)
	}
	p.mu.Unlock()
	p.publish(PanelEvent{Type: PanelEventNotification, Notification: &n})
}

func (p *SyncPanel) forward(ch <-chan ActiveJobsSnapshot) {
	defer close(p.forwardDone)
	for snap := range ch {
		p.publish(PanelEvent{Type: PanelEventActiveJobs, ActiveJobs: &snap})
	}
}

// panelNotifier records a notification on the panel and passes it on to the
// process-wide sinks.
type panelNotifier struct {
	panel *SyncPanel
	next  Notifier
}

func (n panelNotifier) ShowSuccess(ctx context.Context, message string) {
	n.panel.note(LevelSuccess, message)
	if n.next != nil {
		n.next.ShowSuccess(ctx, message)
	}
}

func (n panelNotifier) ShowError(ctx context.Context, message string) {
	n.panel.note(LevelError, message)
	if n.next != nil {
		n.next.ShowError(ctx, message)
	}
}

func (n panelNotifier) ShowWarning(ctx context.Context, message string) {
	n.panel.note(LevelWarning, message)
	if n.next != nil {
		notifyWarning(ctx, n.next, message)
	}
}

type PanelOptions struct {
	Owner   string
	Trigger string
	// Persistent panels are never reaped for idleness.
	Persistent bool
}

// PanelManager owns every open panel of the process.
type PanelManager struct {
	Jobs         JobService
	Registry     *ActiveJobsRegistry
	Recorder     JobRecorder
	Notifier     Notifier
	Logger       *zap.Logger
	PollInterval time.Duration
	EventBuffer  int

	mu     sync.Mutex
	panels map[string]*SyncPanel
}

func (m *PanelManager) Open(opts PanelOptions) *SyncPanel {
	now := time.Now().UTC()
	trigger := opts.Trigger
	if trigger == "" {
		trigger = models.SyncTriggerPanel
	}
	buf := m.EventBuffer
	if buf <= 0 {
		buf = defaultEventBuffer
	}
	p := &SyncPanel{
		ID:         uuid.NewString(),
		Owner:      opts.Owner,
		Trigger:    trigger,
		Persistent: opts.Persistent,
		CreatedAt:  now,
		lastSeen:   now,
		events:     make(chan PanelEvent, buf),
	}
	notifier := panelNotifier{panel: p, next: m.Notifier}

	var registry ActiveJobs
	if m.Registry != nil {
		registry = m.Registry
	}
	var recorder JobRecorder
	if m.Recorder != nil {
		recorder = m.Recorder
	}
	var logger *zap.Logger
	if m.Logger != nil {
		logger = m.Logger.With(zap.String("panel_id", p.ID))
	}

	p.Tracker = &SyncTracker{
		Registry: registry,
		Recorder: recorder,
		Notifier: notifier,
		Logger:   logger,
		Interval: m.PollInterval,
		OnUpdate: func(snap TrackerSnapshot) {
			p.publish(PanelEvent{Type: PanelEventTracker, Tracker: &snap})
		},
	}
	p.Launcher = &SyncLauncher{
		Tracker:  p.Tracker,
		Registry: registry,
		Recorder: recorder,
		Notifier: notifier,
		Logger:   logger,
		Trigger:  trigger,
		PanelID:  p.ID,
	}
	if m.Jobs != nil {
		p.Tracker.Jobs = m.Jobs
		p.Launcher.Jobs = m.Jobs
	}
	if m.Registry != nil {
		ch, unsubscribe := m.Registry.Subscribe()
		p.unsubscribe = unsubscribe
		p.forwardDone = make(chan struct{})
		go p.forward(ch)
	}

	m.mu.Lock()
	if m.panels == nil {
		m.panels = map[string]*SyncPanel{}
	}
	m.panels[p.ID] = p
	m.mu.Unlock()

	if m.Logger != nil {
		m.Logger.Info("panel opened",
			zap.String("panel_id", p.ID),
			zap.String("owner", p.Owner),
			zap.String("trigger", p.Trigger),
		)
	}
	return p
}

func (m *PanelManager) Get(id string) (*SyncPanel, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.panels[id]
	return p, ok
}

func (m *PanelManager) List() []PanelView {
	m.mu.Lock()
	panels := make([]*SyncPanel, 0, len(m.panels))
	for _, p := range m.panels {
		panels = append(panels, p)
	}
	m.mu.Unlock()

	out := make([]PanelView, 0, len(panels))
	for _, p := range panels {
		out = append(out, p.View())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Close tears a panel down. It reports false for unknown ids.
func (m *PanelManager) Close(id string) bool {
	m.mu.Lock()
	p, ok := m.panels[id]
	if ok {
		delete(m.panels, id)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	p.Close()
	if m.Logger != nil {
		m.Logger.Info("panel closed", zap.String("panel_id", id))
	}
	return true
}

func (m *PanelManager) CloseAll() {
	m.mu.Lock()
	panels := m.panels
	m.panels = map[string]*SyncPanel{}
	m.mu.Unlock()
	for _, p := range panels {
		p.Close()
	}
}

// ReapIdle closes non-persistent panels that are not tracking a job and have
// not been touched for ttl. It returns how many were closed.
func (m *PanelManager) ReapIdle(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	cutoff := time.Now().UTC().Add(-ttl)
	m.mu.Lock()
	var stale []string
	for id, p := range m.panels {
		if p.Persistent || !p.LastSeen().Before(cutoff) {
			continue
		}
		if p.Tracker.Snapshot().State == TrackerPolling {
			continue
		}
		stale = append(stale, id)
	}
	m.mu.Unlock()

	closed := 0
	for _, id := range stale {
		if m.Close(id) {
			closed++
		}
	}
	if closed > 0 && m.Logger != nil {
		m.Logger.Info("idle panels reaped", zap.Int("count", closed))
	}
	return closed
}
