package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	SyncTriggerPanel = "panel"
	SyncTriggerCron  = "cron"
	SyncTriggerCLI   = "cli"
)

// SyncJobRecord is the persisted journal entry for a launched sync job.
type SyncJobRecord struct {
	JobID        string         `gorm:"primaryKey;type:text"`
	SyncType     string         `gorm:"type:varchar(40);not null;index"`
	SyncMode     string         `gorm:"type:varchar(20);not null"`
	Status       string         `gorm:"type:varchar(20);not null;index"`
	Progress     int            `gorm:"not null;default:0"`
	CurrentStep  string         `gorm:"type:text"`
	Result       datatypes.JSON `gorm:"type:jsonb"`
	ErrorMessage *string        `gorm:"type:text"`
	Message      string         `gorm:"type:text"`
	Trigger      string         `gorm:"type:varchar(20);not null;default:'panel'"`
	PanelID      string         `gorm:"type:varchar(64);index"`
	StartedAt    time.Time      `gorm:"type:timestamptz;not null;index"`
	FinishedAt   *time.Time     `gorm:"type:timestamptz"`
	CreatedAt    time.Time      `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt    time.Time      `gorm:"type:timestamptz;autoUpdateTime"`
}

func (SyncJobRecord) TableName() string {
	return "sync_job_records"
}
