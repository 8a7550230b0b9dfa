package models

import (
	"encoding/json"
	"strings"
	"time"
)

type SyncType string

const (
	SyncTypeAll             SyncType = "sync_all"
	SyncTypeGA4             SyncType = "sync_ga4"
	SyncTypeAgencyAnalytics SyncType = "sync_agency_analytics"
)

type SyncMode string

const (
	// SyncModeNew only pulls entities missing from the local store.
	SyncModeNew SyncMode = "new"
	// SyncModeComplete refreshes everything.
	SyncModeComplete SyncMode = "complete"
)

func ParseSyncMode(value string) (SyncMode, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "":
		return SyncModeComplete, true
	case string(SyncModeNew):
		return SyncModeNew, true
	case string(SyncModeComplete):
		return SyncModeComplete, true
	default:
		return "", false
	}
}

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// SyncJob is one background sync task as seen by a panel.
type SyncJob struct {
	JobID        string          `json:"job_id"`
	SyncType     SyncType        `json:"sync_type"`
	SyncMode     SyncMode        `json:"sync_mode"`
	Status       JobStatus       `json:"status"`
	Progress     *int            `json:"progress,omitempty"`
	CurrentStep  string          `json:"current_step,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	StartedAt    time.Time       `json:"started_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Clone returns a copy that shares no mutable state with j.
func (j SyncJob) Clone() SyncJob {
	out := j
	if j.Progress != nil {
		p := *j.Progress
		out.Progress = &p
	}
	if j.Result != nil {
		out.Result = append(json.RawMessage(nil), j.Result...)
	}
	return out
}
