package repository

import (
	"context"
	"time"

	"syncpanel/internal/models"
)

type SyncJobRepository interface {
	UpsertSyncJobRecord(ctx context.Context, item *models.SyncJobRecord) error
	GetSyncJobRecord(ctx context.Context, jobID string) (*models.SyncJobRecord, error)
	ListSyncJobRecords(ctx context.Context, params ListSyncJobRecordsParams) ([]models.SyncJobRecord, error)
	CountSyncJobRecords(ctx context.Context, params ListSyncJobRecordsParams) (int64, error)
}

type SystemSettingRepository interface {
	UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error
	GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error)
	ListSystemSettings(ctx context.Context, params ListSystemSettingsParams) ([]models.SystemSetting, error)
	CountSystemSettings(ctx context.Context, params ListSystemSettingsParams) (int64, error)
}

type Repository interface {
	SyncJobRepository
	SystemSettingRepository
}

type ListSyncJobRecordsParams struct {
	Limit    int
	Offset   int
	SyncType *string
	Status   *string
	Trigger  *string
	PanelID  *string
	Since    *time.Time
	OrderBy  string
	Asc      *bool
}

type ListSystemSettingsParams struct {
	Limit   int
	Offset  int
	Prefix  *string
	OrderBy string
	Asc     *bool
}
