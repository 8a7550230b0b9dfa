package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"syncpanel/internal/client/jobservice"
	"syncpanel/internal/models"
	"syncpanel/internal/repository"
)

type statusStep struct {
	status *jobservice.JobStatus
	err    error
}

// stubJobs scripts the job service. Each job id replays its steps in order and
// repeats the last one once they run out.
type stubJobs struct {
	mu         sync.Mutex
	startResp  *jobservice.StartJobResponse
	startErr   error
	starts     []models.SyncType
	modes      []models.SyncMode
	steps      map[string][]statusStep
	polls      map[string]int
	active     []jobservice.JobStatus
	activeErr  error
	activeHits int
	gate       chan struct{}
	polled     chan string
	inFlight   int
	maxFlight  int
}

func newStubJobs() *stubJobs {
	return &stubJobs{
		steps:  map[string][]statusStep{},
		polls:  map[string]int{},
		polled: make(chan string, 64),
	}
}

func (s *stubJobs) script(jobID string, steps ...statusStep) {
	s.mu.Lock()
	s.steps[jobID] = steps
	s.mu.Unlock()
}

func (s *stubJobs) StartJob(ctx context.Context, syncType models.SyncType, mode models.SyncMode) (*jobservice.StartJobResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts = append(s.starts, syncType)
	s.modes = append(s.modes, mode)
	if s.startErr != nil {
		return nil, s.startErr
	}
	return s.startResp, nil
}

func (s *stubJobs) GetJobStatus(ctx context.Context, jobID string) (*jobservice.JobStatus, error) {
	s.mu.Lock()
	s.inFlight++
	if s.inFlight > s.maxFlight {
		s.maxFlight = s.inFlight
	}
	s.polls[jobID]++
	n := s.polls[jobID]
	steps := s.steps[jobID]
	gate := s.gate
	s.mu.Unlock()

	select {
	case s.polled <- jobID:
	default:
	}
	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	s.inFlight--
	s.mu.Unlock()

	if len(steps) == 0 {
		return nil, errors.New("no script for " + jobID)
	}
	idx := n - 1
	if idx >= len(steps) {
		idx = len(steps) - 1
	}
	return steps[idx].status, steps[idx].err
}

func (s *stubJobs) ListActiveJobs(ctx context.Context) ([]jobservice.JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeHits++
	if s.activeErr != nil {
		return nil, s.activeErr
	}
	return append([]jobservice.JobStatus(nil), s.active...), nil
}

func (s *stubJobs) pollCount(jobID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls[jobID]
}

func (s *stubJobs) startCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.starts)
}

func (s *stubJobs) activeCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeHits
}

func running(jobID string, progress int, step string) statusStep {
	return statusStep{status: &jobservice.JobStatus{
		JobID:       jobID,
		Status:      models.JobStatusRunning,
		Progress:    &progress,
		CurrentStep: step,
	}}
}

func completed(jobID, result string) statusStep {
	return statusStep{status: &jobservice.JobStatus{
		JobID:  jobID,
		Status: models.JobStatusCompleted,
		Result: []byte(result),
	}}
}

func failed(jobID string, message *string) statusStep {
	return statusStep{status: &jobservice.JobStatus{
		JobID:        jobID,
		Status:       models.JobStatusFailed,
		ErrorMessage: message,
	}}
}

type note struct {
	level   string
	message string
}

type chanNotifier struct {
	ch chan note
}

func newChanNotifier() *chanNotifier {
	return &chanNotifier{ch: make(chan note, 32)}
}

func (n *chanNotifier) ShowSuccess(ctx context.Context, message string) {
	n.ch <- note{level: LevelSuccess, message: message}
}

func (n *chanNotifier) ShowError(ctx context.Context, message string) {
	n.ch <- note{level: LevelError, message: message}
}

func (n *chanNotifier) ShowWarning(ctx context.Context, message string) {
	n.ch <- note{level: LevelWarning, message: message}
}

func (n *chanNotifier) drain() []note {
	var out []note
	for {
		select {
		case v := <-n.ch:
			out = append(out, v)
		default:
			return out
		}
	}
}

type recordedCall struct {
	kind    string
	job     models.SyncJob
	trigger string
	panelID string
	message string
}

type stubRecorder struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (r *stubRecorder) RecordStarted(ctx context.Context, job models.SyncJob, trigger, panelID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, recordedCall{kind: "started", job: job, trigger: trigger, panelID: panelID})
	return nil
}

func (r *stubRecorder) RecordTerminal(ctx context.Context, job models.SyncJob, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, recordedCall{kind: "terminal", job: job, message: message})
	return nil
}

func (r *stubRecorder) snapshot() []recordedCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedCall(nil), r.calls...)
}

// stubRepo is an in-memory repository.Repository.
type stubRepo struct {
	mu       sync.Mutex
	records  map[string]models.SyncJobRecord
	settings map[string]models.SystemSetting
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		records:  map[string]models.SyncJobRecord{},
		settings: map[string]models.SystemSetting{},
	}
}

func (r *stubRepo) UpsertSyncJobRecord(ctx context.Context, item *models.SyncJobRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.records[item.JobID]
	if !ok {
		r.records[item.JobID] = *item
		return nil
	}
	prev.Status = item.Status
	prev.Progress = item.Progress
	prev.CurrentStep = item.CurrentStep
	prev.Result = item.Result
	prev.ErrorMessage = item.ErrorMessage
	prev.Message = item.Message
	prev.FinishedAt = item.FinishedAt
	prev.UpdatedAt = item.UpdatedAt
	r.records[item.JobID] = prev
	return nil
}

func (r *stubRepo) GetSyncJobRecord(ctx context.Context, jobID string) (*models.SyncJobRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.records[jobID]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (r *stubRepo) ListSyncJobRecords(ctx context.Context, params repository.ListSyncJobRecordsParams) ([]models.SyncJobRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.SyncJobRecord, 0, len(r.records))
	for _, item := range r.records {
		if params.SyncType != nil && item.SyncType != *params.SyncType {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

func (r *stubRepo) CountSyncJobRecords(ctx context.Context, params repository.ListSyncJobRecordsParams) (int64, error) {
	items, _ := r.ListSyncJobRecords(ctx, params)
	return int64(len(items)), nil
}

func (r *stubRepo) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings[item.Key] = *item
	return nil
}

func (r *stubRepo) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.settings[key]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (r *stubRepo) ListSystemSettings(ctx context.Context, params repository.ListSystemSettingsParams) ([]models.SystemSetting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.SystemSetting, 0, len(r.settings))
	for _, item := range r.settings {
		out = append(out, item)
	}
	return out, nil
}

func (r *stubRepo) CountSystemSettings(ctx context.Context, params repository.ListSystemSettingsParams) (int64, error) {
	items, _ := r.ListSystemSettings(ctx, params)
	return int64(len(items)), nil
}

var _ repository.Repository = (*stubRepo)(nil)

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for tracking to stop")
	}
}

func waitPoll(t *testing.T, jobs *stubJobs, jobID string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case id := <-jobs.polled:
			if id == jobID {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for a poll of %s", jobID)
		}
	}
}

func errText(v string) *string { return &v }
