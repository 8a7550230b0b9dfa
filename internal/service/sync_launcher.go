package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"syncpanel/internal/client/jobservice"
	"syncpanel/internal/models"
)

// ErrStartFailure means the job service accepted a start request but did not
// return a job id.
var ErrStartFailure = errors.New("sync start failure")

type StartFailureError struct {
	SyncType models.SyncType
	Message  string
}

func (e *StartFailureError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("start %s: no job id returned (%s)", e.SyncType, e.Message)
	}
	return fmt.Sprintf("start %s: no job id returned", e.SyncType)
}

func (e *StartFailureError) Unwrap() error { return ErrStartFailure }

// LaunchError wraps a failed start call together with the text shown to the user.
type LaunchError struct {
	UserMessage string
	Err         error
}

func (e *LaunchError) Error() string { return e.UserMessage + ": " + e.Err.Error() }

func (e *LaunchError) Unwrap() error { return e.Err }

// UserMessage returns the message a launch error should show to the user.
func UserMessage(err error) string {
	var le *LaunchError
	if errors.As(err, &le) {
		return le.UserMessage
	}
	if err == nil {
		return ""
	}
	return MessageStartFailed
}

type JobHandle struct {
	JobID    string          `json:"job_id"`
	SyncType models.SyncType `json:"sync_type"`
	SyncMode models.SyncMode `json:"sync_mode"`
	Poll     *PollHandle     `json:"-"`
}

// SyncLauncher starts sync jobs and hands them to the panel's tracker.
type SyncLauncher struct {
	Jobs     JobStarter
	Tracker  *SyncTracker
	Registry ActiveJobs
	Recorder JobRecorder
	Notifier Notifier
	Logger   *zap.Logger

	Trigger string
	PanelID string
}

func (l *SyncLauncher) Start(ctx context.Context, kind SyncKind, mode models.SyncMode) (JobHandle, error) {
	syncType := kind.SyncType()
	if syncType == "" {
		return JobHandle{}, fmt.Errorf("unsupported sync kind: %q", kind)
	}
	if mode == "" {
		mode = models.SyncModeComplete
	}
	if mode != models.SyncModeNew && mode != models.SyncModeComplete {
		return JobHandle{}, fmt.Errorf("unsupported sync mode: %q", mode)
	}
	if l.Jobs == nil {
		return JobHandle{}, errors.New("job service unavailable")
	}

	resp, err := l.Jobs.StartJob(ctx, syncType, mode)
	if err != nil {
		msg, ok := jobservice.ErrorDetail(err)
		if !ok {
			msg = MessageStartFailed
		}
		return JobHandle{}, l.fail(ctx, syncType, &LaunchError{UserMessage: msg, Err: err})
	}
	if resp == nil || resp.JobID == "" {
		sf := &StartFailureError{SyncType: syncType}
		if resp != nil {
			sf.Message = resp.Message
		}
		return JobHandle{}, l.fail(ctx, syncType, &LaunchError{
			UserMessage: MessageStartFailed + ": no job id returned",
			Err:         sf,
		})
	}

	handle := JobHandle{JobID: resp.JobID, SyncType: syncType, SyncMode: mode}
	if l.Logger != nil {
		l.Logger.Info("sync job started",
			zap.String("job_id", handle.JobID),
			zap.String("sync_type", string(syncType)),
			zap.String("sync_mode", string(mode)),
			zap.String("panel_id", l.PanelID),
		)
	}
	if l.Registry != nil {
		l.Registry.AddJob(handle.JobID, syncType, mode)
	}
	if l.Recorder != nil {
		now := time.Now().UTC()
		job := models.SyncJob{
			JobID:     handle.JobID,
			SyncType:  syncType,
			SyncMode:  mode,
			Status:    models.JobStatusPending,
			StartedAt: now,
			UpdatedAt: now,
		}
		if err := l.Recorder.RecordStarted(ctx, job, l.trigger(), l.PanelID); err != nil && l.Logger != nil {
			l.Logger.Warn("record sync start failed", zap.String("job_id", handle.JobID), zap.Error(err))
		}
	}
	if l.Tracker != nil {
		handle.Poll = l.Tracker.Track(handle.JobID, syncType, mode)
	}
	return handle, nil
}

func (l *SyncLauncher) fail(ctx context.Context, syncType models.SyncType, err *LaunchError) error {
	if l.Logger != nil {
		l.Logger.Warn("sync start failed",
			zap.String("sync_type", string(syncType)),
			zap.String("panel_id", l.PanelID),
			zap.Error(err.Err),
		)
	}
	if l.Notifier != nil {
		l.Notifier.ShowError(ctx, err.UserMessage)
	}
	return err
}

func (l *SyncLauncher) trigger() string {
	if l.Trigger == "" {
		return models.SyncTriggerPanel
	}
	return l.Trigger
}
