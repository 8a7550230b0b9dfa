package jobservice

import (
	"encoding/json"

	"syncpanel/internal/models"
)

type StartJobResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}

// JobStatus is the payload of GET /api/v1/sync/status/{job_id}.
type JobStatus struct {
	JobID        string           `json:"job_id"`
	Status       models.JobStatus `json:"status"`
	SyncType     models.SyncType  `json:"sync_type,omitempty"`
	SyncMode     models.SyncMode  `json:"sync_mode,omitempty"`
	Progress     *int             `json:"progress,omitempty"`
	CurrentStep  string           `json:"current_step,omitempty"`
	Result       json.RawMessage  `json:"result,omitempty"`
	ErrorMessage *string          `json:"error_message,omitempty"`
}

type activeJobsResponse struct {
	Jobs []JobStatus `json:"jobs"`
}
