package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"syncpanel/internal/models"
	"syncpanel/internal/repository"
)

func TestSyncHistory_StartThenTerminal(t *testing.T) {
	repo := newStubRepo()
	h := &SyncHistoryService{Repo: repo, Flags: &SystemSettingsService{Repo: repo}}
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	job := models.SyncJob{JobID: "j1", SyncType: models.SyncTypeAll, SyncMode: models.SyncModeComplete, StartedAt: started}
	if err := h.RecordStarted(ctx, job, models.SyncTriggerCron, "p9"); err != nil {
		t.Fatalf("err=%v", err)
	}
	rec, _ := h.Get(ctx, "j1")
	if rec == nil || rec.Status != string(models.JobStatusPending) || rec.Trigger != models.SyncTriggerCron || rec.PanelID != "p9" {
		t.Fatalf("record=%+v", rec)
	}

	job.Status = models.JobStatusCompleted
	job.Result = []byte(`{"summary":{"brands":1}}`)
	if err := h.RecordTerminal(ctx, job, "Sync completed: Brands: 1, Prompts: 0, Responses: 0"); err != nil {
		t.Fatalf("err=%v", err)
	}
	rec, _ = h.Get(ctx, "j1")
	if rec.Status != string(models.JobStatusCompleted) || rec.Progress != 100 {
		t.Fatalf("status=%s progress=%d", rec.Status, rec.Progress)
	}
	if rec.FinishedAt == nil || rec.Message == "" || len(rec.Result) == 0 {
		t.Fatalf("terminal fields missing: %+v", rec)
	}
	if rec.Trigger != models.SyncTriggerCron || !rec.StartedAt.Equal(started) {
		t.Fatalf("start fields overwritten: %+v", rec)
	}

	page, err := h.List(ctx, repository.ListSyncJobRecordsParams{})
	if err != nil || page.Total != 1 || len(page.Items) != 1 {
		t.Fatalf("page=%+v err=%v", page, err)
	}
}

func TestSyncHistory_FailedKeepsErrorMessage(t *testing.T) {
	repo := newStubRepo()
	h := &SyncHistoryService{Repo: repo}
	ctx := context.Background()
	job := models.SyncJob{JobID: "j2", SyncType: models.SyncTypeGA4, SyncMode: models.SyncModeNew}
	_ = h.RecordStarted(ctx, job, "", "")

	job.Status = models.JobStatusFailed
	job.ErrorMessage = "quota exceeded"
	if err := h.RecordTerminal(ctx, job, "quota exceeded"); err != nil {
		t.Fatalf("err=%v", err)
	}
	rec, _ := h.Get(ctx, "j2")
	if rec.ErrorMessage == nil || *rec.ErrorMessage != "quota exceeded" {
		t.Fatalf("error_message=%v", rec.ErrorMessage)
	}
}

func TestSyncHistory_DisabledSwitchSkipsWrites(t *testing.T) {
	repo := newStubRepo()
	flags := &SystemSettingsService{Repo: repo}
	if err := flags.SetEnabled(context.Background(), FeatureSyncHistory, false); err != nil {
		t.Fatalf("err=%v", err)
	}
	h := &SyncHistoryService{Repo: repo, Flags: flags}
	_ = h.RecordStarted(context.Background(), models.SyncJob{JobID: "j3"}, "", "")
	if rec, _ := h.Get(context.Background(), "j3"); rec != nil {
		t.Fatalf("record written while history disabled: %+v", rec)
	}
}

func TestSystemSettings_EnsureDefaultsKeepsOperatorChoice(t *testing.T) {
	repo := newStubRepo()
	s := &SystemSettingsService{Repo: repo}
	ctx := context.Background()
	if err := s.SetEnabled(ctx, FeatureScheduledSync, false); err != nil {
		t.Fatalf("err=%v", err)
	}
	if err := s.EnsureDefaultSwitches(ctx); err != nil {
		t.Fatalf("err=%v", err)
	}
	if s.IsEnabled(ctx, FeatureScheduledSync, true) {
		t.Fatalf("seeding turned an operator-disabled switch back on")
	}
	if !s.IsEnabled(ctx, FeatureSyncHistory, false) || !s.IsEnabled(ctx, FeaturePaaSNotify, false) {
		t.Fatalf("missing switches not seeded")
	}
}

func TestSystemSettings_SwitchesReportDefaultsAndActor(t *testing.T) {
	s := &SystemSettingsService{Repo: newStubRepo()}
	ctx := context.Background()

	before, err := s.Switches(ctx)
	if err != nil || len(before) != 3 {
		t.Fatalf("switches=%+v err=%v", before, err)
	}
	for _, sw := range before {
		if sw.Stored || !sw.Enabled || sw.Description == "" {
			t.Fatalf("unseeded switch=%+v", sw)
		}
	}

	sw, err := s.SetSwitch(ctx, "paas_notify", false, "ops/admin")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if sw.Key != FeaturePaaSNotify || sw.Enabled || !sw.Default || !sw.Stored || sw.UpdatedBy != "ops/admin" {
		t.Fatalf("switch=%+v", sw)
	}
	if _, err := s.SetSwitch(ctx, "teleport", true, ""); !errors.Is(err, ErrUnknownSwitch) {
		t.Fatalf("err=%v want ErrUnknownSwitch", err)
	}
}
