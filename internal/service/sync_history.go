package service

import (
	"context"
	"strings"
	"time"

	"gorm.io/datatypes"

	"syncpanel/internal/models"
	"syncpanel/internal/repository"
)

// SyncHistoryService journals launches and outcomes. It implements JobRecorder.
type SyncHistoryService struct {
	Repo  repository.SyncJobRepository
	Flags *SystemSettingsService
}

type SyncHistoryPage struct {
	Items []models.SyncJobRecord
	Total int64
}

func (s *SyncHistoryService) enabled(ctx context.Context) bool {
	if s == nil || s.Repo == nil {
		return false
	}
	return s.Flags == nil || s.Flags.IsEnabled(ctx, FeatureSyncHistory, true)
}

func (s *SyncHistoryService) RecordStarted(ctx context.Context, job models.SyncJob, trigger, panelID string) error {
	if !s.enabled(ctx) {
		return nil
	}
	started := job.StartedAt
	if started.IsZero() {
		started = time.Now().UTC()
	}
	status := job.Status
	if status == "" {
		status = models.JobStatusPending
	}
	return s.Repo.UpsertSyncJobRecord(ctx, &models.SyncJobRecord{
		JobID:     job.JobID,
		SyncType:  string(job.SyncType),
		SyncMode:  string(job.SyncMode),
		Status:    string(status),
		Trigger:   strings.TrimSpace(trigger),
		PanelID:   strings.TrimSpace(panelID),
		StartedAt: started,
		UpdatedAt: started,
	})
}

func (s *SyncHistoryService) RecordTerminal(ctx context.Context, job models.SyncJob, message string) error {
	if !s.enabled(ctx) {
		return nil
	}
	now := time.Now().UTC()
	item := &models.SyncJobRecord{
		JobID:       job.JobID,
		SyncType:    string(job.SyncType),
		SyncMode:    string(job.SyncMode),
		Status:      string(job.Status),
		CurrentStep: job.CurrentStep,
		Message:     message,
		StartedAt:   job.StartedAt,
		FinishedAt:  &now,
		UpdatedAt:   now,
	}
	if item.StartedAt.IsZero() {
		item.StartedAt = now
	}
	if job.Progress != nil {
		item.Progress = *job.Progress
	}
	if job.Status == models.JobStatusCompleted {
		item.Progress = 100
	}
	if len(job.Result) > 0 {
		item.Result = datatypes.JSON(job.Result)
	}
	if job.ErrorMessage != "" {
		msg := job.ErrorMessage
		item.ErrorMessage = &msg
	}
	return s.Repo.UpsertSyncJobRecord(ctx, item)
}

func (s *SyncHistoryService) List(ctx context.Context, params repository.ListSyncJobRecordsParams) (SyncHistoryPage, error) {
	if s == nil || s.Repo == nil {
		return SyncHistoryPage{}, nil
	}
	items, err := s.Repo.ListSyncJobRecords(ctx, params)
	if err != nil {
		return SyncHistoryPage{}, err
	}
	total, err := s.Repo.CountSyncJobRecords(ctx, params)
	if err != nil {
		return SyncHistoryPage{}, err
	}
	return SyncHistoryPage{Items: items, Total: total}, nil
}

func (s *SyncHistoryService) Get(ctx context.Context, jobID string) (*models.SyncJobRecord, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	return s.Repo.GetSyncJobRecord(ctx, jobID)
}

var _ JobRecorder = (*SyncHistoryService)(nil)
