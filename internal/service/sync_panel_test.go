package service

import (
	"context"
	"testing"
	"time"

	"syncpanel/internal/client/jobservice"
	"syncpanel/internal/config"
	"syncpanel/internal/models"
)

func newTestManager(jobs *stubJobs, n Notifier) *PanelManager {
	return &PanelManager{
		Jobs:         jobs,
		Registry:     NewActiveJobsRegistry(nil, nil),
		Notifier:     n,
		PollInterval: testInterval,
		EventBuffer:  64,
	}
}

func TestSyncPanel_StreamsTrackerAndNotification(t *testing.T) {
	jobs := newStubJobs()
	jobs.startResp = &jobservice.StartJobResponse{JobID: "j1"}
	jobs.script("j1", running("j1", 50, "prompts"), completed("j1", `{"clients_synced":7}`))
	shared := newChanNotifier()
	m := newTestManager(jobs, shared)
	p := m.Open(PanelOptions{Owner: "alice"})
	defer m.CloseAll()

	h, err := p.Start(context.Background(), SyncKindGA4, models.SyncModeComplete)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	waitDone(t, h.Poll.Done())

	var sawTracker, sawActive bool
	var notification *PanelNotification
	deadline := time.After(2 * time.Second)
	for notification == nil || !sawTracker || !sawActive {
		select {
		case ev := <-p.Events():
			switch ev.Type {
			case PanelEventTracker:
				sawTracker = true
			case PanelEventActiveJobs:
				sawActive = true
			case PanelEventNotification:
				notification = ev.Notification
			}
		case <-deadline:
			t.Fatalf("tracker=%v active=%v notification=%v", sawTracker, sawActive, notification)
		}
	}
	if notification.Level != LevelSuccess || notification.Message != "GA4 sync completed: Clients synced: 7" {
		t.Fatalf("notification=%+v", notification)
	}
	if got := p.Notifications(); len(got) != 1 {
		t.Fatalf("buffered notifications=%v", got)
	}
	if notes := shared.drain(); len(notes) != 1 {
		t.Fatalf("shared sink notes=%v want 1", notes)
	}
}

func TestPanelManager_CloseStopsPanel(t *testing.T) {
	jobs := newStubJobs()
	jobs.startResp = &jobservice.StartJobResponse{JobID: "j2"}
	jobs.script("j2", running("j2", 1, ""))
	m := newTestManager(jobs, nil)
	p := m.Open(PanelOptions{})

	h, err := p.Start(context.Background(), SyncKindFull, "")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	waitPoll(t, jobs, "j2")
	if !m.Close(p.ID) {
		t.Fatalf("close reported unknown panel")
	}
	if m.Close(p.ID) {
		t.Fatalf("second close should report false")
	}
	waitDone(t, h.Poll.Done())
	if _, ok := m.Get(p.ID); ok {
		t.Fatalf("panel still registered")
	}
	for range p.Events() {
	}
	polled := jobs.pollCount("j2")
	time.Sleep(10 * testInterval)
	if jobs.pollCount("j2") != polled {
		t.Fatalf("closed panel kept polling")
	}
}

func TestPanelManager_ReapIdle(t *testing.T) {
	m := newTestManager(newStubJobs(), nil)
	idle := m.Open(PanelOptions{})
	fresh := m.Open(PanelOptions{})
	pinned := m.Open(PanelOptions{Persistent: true})
	defer m.CloseAll()

	old := time.Now().UTC().Add(-time.Hour)
	for _, p := range []*SyncPanel{idle, pinned} {
		p.mu.Lock()
		p.lastSeen = old
		p.mu.Unlock()
	}

	if n := m.ReapIdle(30 * time.Minute); n != 1 {
		t.Fatalf("reaped=%d want 1", n)
	}
	if _, ok := m.Get(idle.ID); ok {
		t.Fatalf("idle panel survived")
	}
	if _, ok := m.Get(fresh.ID); !ok {
		t.Fatalf("fresh panel reaped")
	}
	if _, ok := m.Get(pinned.ID); !ok {
		t.Fatalf("persistent panel reaped")
	}
	if len(m.List()) != 2 {
		t.Fatalf("list=%d want 2", len(m.List()))
	}
}

func TestSyncScheduler_LaunchesOnHeadlessPanel(t *testing.T) {
	jobs := newStubJobs()
	jobs.startResp = &jobservice.StartJobResponse{JobID: "c1"}
	jobs.script("c1", running("c1", 10, ""))
	rec := &stubRecorder{}
	m := newTestManager(jobs, nil)
	m.Recorder = rec
	defer m.CloseAll()

	s := &SyncScheduler{Manager: m}
	entries, err := s.Schedule([]config.SyncScheduleSpec{
		{Name: "nightly", Spec: "0 0 3 * * *", Kind: "agency-analytics", Mode: "new"},
	})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(entries) != 1 || entries[0].Name != "nightly" {
		t.Fatalf("entries=%+v", entries)
	}

	entries[0].Run(context.Background())
	entries[0].Run(context.Background())

	if jobs.startCount() != 1 {
		t.Fatalf("starts=%d want 1 while the first run is tracked", jobs.startCount())
	}
	if jobs.starts[0] != models.SyncTypeAgencyAnalytics || jobs.modes[0] != models.SyncModeNew {
		t.Fatalf("start=%s/%s", jobs.starts[0], jobs.modes[0])
	}
	calls := rec.snapshot()
	if len(calls) != 1 || calls[0].trigger != models.SyncTriggerCron {
		t.Fatalf("recorder calls=%+v", calls)
	}
	views := m.List()
	if len(views) != 1 || !views[0].Persistent || views[0].Owner != "cron:nightly" {
		t.Fatalf("panels=%+v", views)
	}
}

func TestSyncScheduler_DisabledSwitchSkipsRun(t *testing.T) {
	jobs := newStubJobs()
	jobs.startResp = &jobservice.StartJobResponse{JobID: "c2"}
	repo := newStubRepo()
	flags := &SystemSettingsService{Repo: repo}
	_ = flags.SetEnabled(context.Background(), FeatureScheduledSync, false)
	m := newTestManager(jobs, nil)
	defer m.CloseAll()

	s := &SyncScheduler{Manager: m, Flags: flags}
	entries, err := s.Schedule([]config.SyncScheduleSpec{{Spec: "@every 1h", Kind: "full"}})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	entries[0].Run(context.Background())
	if jobs.startCount() != 0 {
		t.Fatalf("scheduled sync ran while disabled")
	}
}

func TestSyncScheduler_RejectsBadSchedule(t *testing.T) {
	s := &SyncScheduler{Manager: newTestManager(newStubJobs(), nil)}
	cases := []config.SyncScheduleSpec{
		{Name: "a", Spec: "", Kind: "full"},
		{Name: "b", Spec: "@daily", Kind: "weekly"},
		{Name: "c", Spec: "@daily", Kind: "ga4", Mode: "partial"},
	}
	for _, spec := range cases {
		if _, err := s.Schedule([]config.SyncScheduleSpec{spec}); err == nil {
			t.Fatalf("schedule %s: expected error", spec.Name)
		}
	}
}
