package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"syncpanel/internal/config"
	"syncpanel/internal/models"
)

// SyncScheduler launches configured syncs on cron ticks. Each schedule owns a
// persistent headless panel; a tick is skipped while that panel still tracks
// the previous run.
type SyncScheduler struct {
	Manager *PanelManager
	Flags   *SystemSettingsService
	Logger  *zap.Logger

	schedules []*scheduledSync
}

type scheduledSync struct {
	name  string
	spec  string
	kind  SyncKind
	mode  models.SyncMode
	panel *SyncPanel
}

// Schedule validates specs and opens one panel per schedule. The returned
// jobs are registered on the cron runner by the caller.
func (s *SyncScheduler) Schedule(specs []config.SyncScheduleSpec) ([]ScheduledJob, error) {
	if s.Manager == nil {
		return nil, errors.New("panel manager unavailable")
	}
	out := make([]ScheduledJob, 0, len(specs))
	for i, spec := range specs {
		name := strings.TrimSpace(spec.Name)
		if name == "" {
			name = fmt.Sprintf("schedule-%d", i+1)
		}
		if strings.TrimSpace(spec.Spec) == "" {
			return nil, fmt.Errorf("schedule %s: empty cron spec", name)
		}
		kind, err := ParseSyncKind(spec.Kind)
		if err != nil {
			return nil, fmt.Errorf("schedule %s: %w", name, err)
		}
		mode, ok := models.ParseSyncMode(spec.Mode)
		if !ok {
			return nil, fmt.Errorf("schedule %s: unsupported sync mode: %q", name, spec.Mode)
		}
		item := &scheduledSync{name: name, spec: strings.TrimSpace(spec.Spec), kind: kind, mode: mode}
		out = append(out, ScheduledJob{Name: name, Spec: item.spec, Run: func(ctx context.Context) { s.run(ctx, item) }})
		s.schedules = append(s.schedules, item)
	}
	for _, item := range s.schedules {
		if item.panel == nil {
			item.panel = s.Manager.Open(PanelOptions{
				Owner:      "cron:" + item.name,
				Trigger:    models.SyncTriggerCron,
				Persistent: true,
			})
		}
	}
	return out, nil
}

// ScheduledJob is one cron entry ready to be added to a runner.
type ScheduledJob struct {
	Name string
	Spec string
	Run  func(context.Context)
}

func (s *SyncScheduler) run(ctx context.Context, item *scheduledSync) {
	if s.Flags != nil && !s.Flags.IsEnabled(ctx, FeatureScheduledSync, true) {
		return
	}
	if item.panel == nil {
		return
	}
	if item.panel.Tracker.Snapshot().State == TrackerPolling {
		if s.Logger != nil {
			s.Logger.Info("scheduled sync skipped; previous run still tracked",
				zap.String("schedule", item.name),
			)
		}
		return
	}
	handle, err := item.panel.Start(ctx, item.kind, item.mode)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Warn("scheduled sync failed to start",
				zap.String("schedule", item.name),
				zap.Error(err),
			)
		}
		return
	}
	if s.Logger != nil {
		s.Logger.Info("scheduled sync started",
			zap.String("schedule", item.name),
			zap.String("job_id", handle.JobID),
		)
	}
}

// ReapJob returns a cron job that closes idle panels.
func (s *SyncScheduler) ReapJob(ttl time.Duration) func(context.Context) {
	return func(ctx context.Context) {
		if s.Manager != nil {
			s.Manager.ReapIdle(ttl)
		}
	}
}
