package service

import (
	"context"
	"fmt"
	"strings"

	"syncpanel/internal/client/jobservice"
	"syncpanel/internal/models"
)

// SyncKind is the user-facing name of a sync; it maps 1:1 onto models.SyncType.
type SyncKind string

const (
	SyncKindFull            SyncKind = "full"
	SyncKindGA4             SyncKind = "ga4"
	SyncKindAgencyAnalytics SyncKind = "agency_analytics"
)

func ParseSyncKind(value string) (SyncKind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "full", "all":
		return SyncKindFull, nil
	case "ga4":
		return SyncKindGA4, nil
	case "agency_analytics", "agency-analytics":
		return SyncKindAgencyAnalytics, nil
	default:
		return "", fmt.Errorf("unsupported sync kind: %q", value)
	}
}

func (k SyncKind) SyncType() models.SyncType {
	switch k {
	case SyncKindFull:
		return models.SyncTypeAll
	case SyncKindGA4:
		return models.SyncTypeGA4
	case SyncKindAgencyAnalytics:
		return models.SyncTypeAgencyAnalytics
	default:
		return ""
	}
}

type JobStarter interface {
	StartJob(ctx context.Context, syncType models.SyncType, mode models.SyncMode) (*jobservice.StartJobResponse, error)
}

type JobStatusFetcher interface {
	GetJobStatus(ctx context.Context, jobID string) (*jobservice.JobStatus, error)
}

type ActiveJobsSource interface {
	ListActiveJobs(ctx context.Context) ([]jobservice.JobStatus, error)
}

// JobService is everything the panels need from the external job backend.
type JobService interface {
	JobStarter
	JobStatusFetcher
	ActiveJobsSource
}

var _ JobService = (*jobservice.Client)(nil)

// JobRecorder journals launches and terminal outcomes.
type JobRecorder interface {
	RecordStarted(ctx context.Context, job models.SyncJob, trigger, panelID string) error
	RecordTerminal(ctx context.Context, job models.SyncJob, message string) error
}

// ActiveJobs is the slice of the shared registry that launchers and trackers mutate.
type ActiveJobs interface {
	AddJob(jobID string, syncType models.SyncType, mode models.SyncMode)
	UpdateJob(job models.SyncJob)
	RefreshJobs(ctx context.Context) error
}
