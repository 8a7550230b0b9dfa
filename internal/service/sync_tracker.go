package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"syncpanel/internal/client/jobservice"
	"syncpanel/internal/models"
)

const DefaultPollInterval = 30 * time.Second

// ErrTransportFailure marks a poll that could not learn the job's status.
var ErrTransportFailure = errors.New("sync status unavailable")

type TrackerState string

const (
	TrackerIdle      TrackerState = "idle"
	TrackerPolling   TrackerState = "polling"
	TrackerCompleted TrackerState = "completed"
	TrackerFailed    TrackerState = "failed"
	TrackerLost      TrackerState = "lost"
)

// TrackerOutcome describes how the last tracking session ended.
type TrackerOutcome struct {
	JobID    string          `json:"job_id"`
	SyncType models.SyncType `json:"sync_type"`
	State    TrackerState    `json:"state"`
	Message  string          `json:"message"`
	At       time.Time       `json:"at"`
}

type TrackerSnapshot struct {
	State       TrackerState    `json:"state"`
	Job         *models.SyncJob `json:"job,omitempty"`
	LastOutcome *TrackerOutcome `json:"last_outcome,omitempty"`
	Polls       int             `json:"polls"`
}

// SyncTracker polls the job service for the single job a panel is tracking.
//
// Polls are single-flight: the next one is scheduled only after the previous
// returned. Responses that arrive after the session was replaced or cancelled
// are discarded. Callbacks (Notifier, Registry, Recorder, OnUpdate) run on the
// poll goroutine and must not call Close.
type SyncTracker struct {
	Jobs     JobStatusFetcher
	Notifier Notifier
	Registry ActiveJobs
	Recorder JobRecorder
	Logger   *zap.Logger
	Interval time.Duration
	OnUpdate func(TrackerSnapshot)

	mu      sync.Mutex
	session *pollSession
	job     *models.SyncJob
	last    *TrackerOutcome
	polls   int
	closed  bool
}

type pollSession struct {
	jobID    string
	syncType models.SyncType
	mode     models.SyncMode
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

// PollHandle controls one tracking session.
type PollHandle struct {
	tracker *SyncTracker
	session *pollSession
}

func (h *PollHandle) JobID() string {
	if h == nil || h.session == nil {
		return ""
	}
	return h.session.jobID
}

// Done is closed once the session's poll goroutine has exited.
func (h *PollHandle) Done() <-chan struct{} {
	if h == nil || h.session == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return h.session.done
}

// Cancel stops polling for this session and drops the job if it is still the
// tracked one. It does not cancel the job on the service.
func (h *PollHandle) Cancel() {
	if h == nil || h.session == nil || h.tracker == nil {
		return
	}
	h.tracker.stopSession(h.session)
}

// Track starts polling jobID, replacing any job tracked before. The replaced
// job is abandoned by this tracker, not cancelled on the service.
func (t *SyncTracker) Track(jobID string, syncType models.SyncType, mode models.SyncMode) *PollHandle {
	ctx, cancel := context.WithCancel(context.Background())
	s := &pollSession{
		jobID:    jobID,
		syncType: syncType,
		mode:     mode,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		cancel()
		close(s.done)
		return &PollHandle{tracker: t, session: s}
	}
	prev := t.session
	now := time.Now().UTC()
	t.session = s
	t.job = &models.SyncJob{
		JobID:     jobID,
		SyncType:  syncType,
		SyncMode:  mode,
		Status:    models.JobStatusPending,
		StartedAt: now,
		UpdatedAt: now,
	}
	t.polls = 0
	snap := t.snapshotLocked()
	t.mu.Unlock()

	if prev != nil {
		prev.cancel()
		if t.Logger != nil {
			t.Logger.Info("sync job superseded",
				zap.String("job_id", prev.jobID),
				zap.String("replaced_by", jobID),
			)
		}
	}
	t.emit(snap)

	go t.run(s)
	return &PollHandle{tracker: t, session: s}
}

func (t *SyncTracker) Snapshot() TrackerSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// Close tears the tracker down. When it returns no further poll will be issued.
func (t *SyncTracker) Close() {
	t.mu.Lock()
	t.closed = true
	s := t.session
	t.session = nil
	t.job = nil
	t.mu.Unlock()
	if s != nil {
		s.cancel()
		<-s.done
	}
}

func (t *SyncTracker) interval() time.Duration {
	if t.Interval <= 0 {
		return DefaultPollInterval
	}
	return t.Interval
}

func (t *SyncTracker) run(s *pollSession) {
	defer close(s.done)
	timer := time.NewTimer(t.interval())
	defer timer.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-timer.C:
		}

		if !t.beginPoll(s) {
			return
		}
		status, err := t.Jobs.GetJobStatus(s.ctx, s.jobID)
		if s.ctx.Err() != nil {
			return
		}
		if err != nil {
			t.halt(s, err)
			return
		}
		if t.apply(s, status) {
			return
		}
		timer.Reset(t.interval())
	}
}

func (t *SyncTracker) beginPoll(s *pollSession) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session != s {
		return false
	}
	t.polls++
	return true
}

// apply folds one poll response into the tracked job and reports whether the
// session is over.
func (t *SyncTracker) apply(s *pollSession, st *jobservice.JobStatus) bool {
	if st == nil {
		t.halt(s, fmt.Errorf("%w: empty status", jobservice.ErrMalformedResponse))
		return true
	}
	if !st.Status.Valid() {
		t.halt(s, fmt.Errorf("%w: unknown status %q", jobservice.ErrMalformedResponse, st.Status))
		return true
	}

	t.mu.Lock()
	if t.session != s || t.job == nil {
		t.mu.Unlock()
		return true
	}
	job := t.job
	if job.SyncType == "" && st.SyncType != "" {
		job.SyncType = st.SyncType
	}
	if job.SyncMode == "" && st.SyncMode != "" {
		job.SyncMode = st.SyncMode
	}
	job.Status = st.Status
	if st.Progress != nil {
		p := *st.Progress
		job.Progress = &p
	}
	if st.CurrentStep != "" {
		job.CurrentStep = st.CurrentStep
	}
	job.UpdatedAt = time.Now().UTC()

	if !st.Status.Terminal() {
		view := job.Clone()
		snap := t.snapshotLocked()
		t.mu.Unlock()
		if t.Registry != nil {
			t.Registry.UpdateJob(view)
		}
		t.emit(snap)
		return false
	}

	var message string
	state := TrackerCompleted
	if st.Status == models.JobStatusCompleted {
		job.Result = append([]byte(nil), st.Result...)
		message = SummarizeResult(job.SyncType, job.Result)
	} else {
		state = TrackerFailed
		message = FailureMessage(st.ErrorMessage)
		job.ErrorMessage = message
	}
	final := job.Clone()
	t.finishLocked(s, state, message)
	snap := t.snapshotLocked()
	t.mu.Unlock()

	ctx := context.WithoutCancel(s.ctx)
	if t.Logger != nil {
		t.Logger.Info("sync job finished",
			zap.String("job_id", final.JobID),
			zap.String("sync_type", string(final.SyncType)),
			zap.String("status", string(final.Status)),
			zap.String("message", message),
		)
	}
	if t.Notifier != nil {
		if state == TrackerCompleted {
			t.Notifier.ShowSuccess(ctx, message)
		} else {
			t.Notifier.ShowError(ctx, message)
		}
	}
	if t.Recorder != nil {
		if err := t.Recorder.RecordTerminal(ctx, final, message); err != nil && t.Logger != nil {
			t.Logger.Warn("record sync outcome failed", zap.String("job_id", final.JobID), zap.Error(err))
		}
	}
	if t.Registry != nil {
		t.Registry.UpdateJob(final)
		_ = t.Registry.RefreshJobs(ctx)
	}
	t.emit(snap)
	return true
}

// halt ends the session after a poll could not be completed. There is no retry.
func (t *SyncTracker) halt(s *pollSession, cause error) {
	err := fmt.Errorf("%w: %w", ErrTransportFailure, cause)
	message := "Sync status unknown: " + cause.Error()

	t.mu.Lock()
	if t.session != s {
		t.mu.Unlock()
		return
	}
	t.finishLocked(s, TrackerLost, message)
	snap := t.snapshotLocked()
	t.mu.Unlock()

	if t.Logger != nil {
		t.Logger.Warn("sync status poll failed; tracking stopped",
			zap.String("job_id", s.jobID),
			zap.Error(err),
		)
	}
	if t.Notifier != nil {
		notifyWarning(context.WithoutCancel(s.ctx), t.Notifier, message)
	}
	t.emit(snap)
}

func (t *SyncTracker) finishLocked(s *pollSession, state TrackerState, message string) {
	t.last = &TrackerOutcome{
		JobID:    s.jobID,
		SyncType: s.syncType,
		State:    state,
		Message:  message,
		At:       time.Now().UTC(),
	}
	t.session = nil
	t.job = nil
	s.cancel()
}

func (t *SyncTracker) stopSession(s *pollSession) {
	t.mu.Lock()
	current := t.session == s
	if current {
		t.session = nil
		t.job = nil
	}
	snap := t.snapshotLocked()
	t.mu.Unlock()
	s.cancel()
	if current {
		t.emit(snap)
	}
}

func (t *SyncTracker) snapshotLocked() TrackerSnapshot {
	snap := TrackerSnapshot{State: TrackerIdle, Polls: t.polls}
	if t.session != nil && t.job != nil {
		snap.State = TrackerPolling
		job := t.job.Clone()
		snap.Job = &job
	}
	if t.last != nil {
		last := *t.last
		snap.LastOutcome = &last
	}
	return snap
}

func (t *SyncTracker) emit(snap TrackerSnapshot) {
	if t.OnUpdate != nil {
		t.OnUpdate(snap)
	}
}
