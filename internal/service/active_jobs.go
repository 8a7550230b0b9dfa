package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"syncpanel/internal/client/jobservice"
	"syncpanel/internal/models"
)

// ActiveJob is one entry of the shared active-jobs list.
type ActiveJob struct {
	JobID       string           `json:"job_id"`
	SyncType    models.SyncType  `json:"sync_type"`
	SyncMode    models.SyncMode  `json:"sync_mode,omitempty"`
	Status      models.JobStatus `json:"status"`
	Progress    *int             `json:"progress,omitempty"`
	CurrentStep string           `json:"current_step,omitempty"`
	AddedAt     time.Time        `json:"added_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// ActiveJobsSnapshot is an immutable view of the registry at Version.
type ActiveJobsSnapshot struct {
	Version uint64      `json:"version"`
	Jobs    []ActiveJob `json:"jobs"`
}

func (s ActiveJobsSnapshot) clone() ActiveJobsSnapshot {
	jobs := make([]ActiveJob, len(s.Jobs))
	for i, j := range s.Jobs {
		if j.Progress != nil {
			p := *j.Progress
			j.Progress = &p
		}
		jobs[i] = j
	}
	return ActiveJobsSnapshot{Version: s.Version, Jobs: jobs}
}

func (s ActiveJobsSnapshot) Get(jobID string) (ActiveJob, bool) {
	for _, j := range s.Jobs {
		if j.JobID == jobID {
			return j, true
		}
	}
	return ActiveJob{}, false
}

// ActiveJobsRegistry is the process-wide list of running sync jobs shared by
// every panel. Each mutation publishes a fresh snapshot to subscribers.
type ActiveJobsRegistry struct {
	Source ActiveJobsSource
	Logger *zap.Logger

	mu      sync.Mutex
	jobs    map[string]ActiveJob
	version uint64
	current ActiveJobsSnapshot
	subs    map[int]chan ActiveJobsSnapshot
	nextSub int
	now     func() time.Time
}

func NewActiveJobsRegistry(source ActiveJobsSource, logger *zap.Logger) *ActiveJobsRegistry {
	return &ActiveJobsRegistry{
		Source: source,
		Logger: logger,
		jobs:   map[string]ActiveJob{},
		subs:   map[int]chan ActiveJobsSnapshot{},
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *ActiveJobsRegistry) AddJob(jobID string, syncType models.SyncType, mode models.SyncMode) {
	jobID = strings.TrimSpace(jobID)
	if r == nil || jobID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.init()
	now := r.now()
	r.jobs[jobID] = ActiveJob{
		JobID:     jobID,
		SyncType:  syncType,
		SyncMode:  mode,
		Status:    models.JobStatusPending,
		AddedAt:   now,
		UpdatedAt: now,
	}
	r.publishLocked()
}

// UpdateJob applies the latest polled state of a job already in the list.
func (r *ActiveJobsRegistry) UpdateJob(job models.SyncJob) {
	if r == nil || job.JobID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.init()
	entry, ok := r.jobs[job.JobID]
	if !ok {
		entry = ActiveJob{JobID: job.JobID, AddedAt: r.now()}
	}
	if job.SyncType != "" {
		entry.SyncType = job.SyncType
	}
	if job.SyncMode != "" {
		entry.SyncMode = job.SyncMode
	}
	entry.Status = job.Status
	if job.Progress != nil {
		p := *job.Progress
		entry.Progress = &p
	}
	entry.CurrentStep = job.CurrentStep
	entry.UpdatedAt = r.now()
	r.jobs[job.JobID] = entry
	r.publishLocked()
}

// RefreshJobs reloads the list from Source. Without a source it drops
// entries whose last known status is terminal.
func (r *ActiveJobsRegistry) RefreshJobs(ctx context.Context) error {
	if r == nil {
		return nil
	}
	if r.Source == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.init()
		for id, j := range r.jobs {
			if j.Status.Terminal() {
				delete(r.jobs, id)
			}
		}
		r.publishLocked()
		return nil
	}

	remote, err := r.Source.ListActiveJobs(ctx)
	if err != nil {
		if r.Logger != nil {
			r.Logger.Warn("refresh active jobs failed", zap.Error(err))
		}
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.init()
	now := r.now()
	next := make(map[string]ActiveJob, len(remote))
	for _, st := range remote {
		if st.JobID == "" || st.Status.Terminal() {
			continue
		}
		next[st.JobID] = mergeRemote(r.jobs[st.JobID], st, now)
	}
	r.jobs = next
	r.publishLocked()
	return nil
}

func mergeRemote(prev ActiveJob, st jobservice.JobStatus, now time.Time) ActiveJob {
	out := prev
	out.JobID = st.JobID
	if st.SyncType != "" {
		out.SyncType = st.SyncType
	}
	if st.SyncMode != "" {
		out.SyncMode = st.SyncMode
	}
	out.Status = st.Status
	if st.Progress != nil {
		p := *st.Progress
		out.Progress = &p
	}
	out.CurrentStep = st.CurrentStep
	if out.AddedAt.IsZero() {
		out.AddedAt = now
	}
	out.UpdatedAt = now
	return out
}

func (r *ActiveJobsRegistry) Snapshot() ActiveJobsSnapshot {
	if r == nil {
		return ActiveJobsSnapshot{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.init()
	return r.current.clone()
}

// Subscribe returns a channel that always holds the newest snapshot not yet
// read; older unread snapshots are replaced. The current snapshot is queued
// immediately. Call the returned func to unsubscribe and close the channel.
func (r *ActiveJobsRegistry) Subscribe() (<-chan ActiveJobsSnapshot, func()) {
	ch := make(chan ActiveJobsSnapshot, 1)
	r.mu.Lock()
	r.init()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch
	ch <- r.current.clone()
	r.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, id)
			r.mu.Unlock()
			close(ch)
		})
	}
}

func (r *ActiveJobsRegistry) init() {
	if r.jobs == nil {
		r.jobs = map[string]ActiveJob{}
	}
	if r.subs == nil {
		r.subs = map[int]chan ActiveJobsSnapshot{}
	}
	if r.now == nil {
		r.now = func() time.Time { return time.Now().UTC() }
	}
	if r.current.Jobs == nil {
		r.current.Jobs = []ActiveJob{}
	}
}

func (r *ActiveJobsRegistry) publishLocked() {
	r.version++
	jobs := make([]ActiveJob, 0, len(r.jobs))
	for _, j := range r.jobs {
		if j.Progress != nil {
			p := *j.Progress
			j.Progress = &p
		}
		jobs = append(jobs, j)
	}
	sort.Slice(jobs, func(i, k int) bool {
		if jobs[i].AddedAt.Equal(jobs[k].AddedAt) {
			return jobs[i].JobID < jobs[k].JobID
		}
		return jobs[i].AddedAt.Before(jobs[k].AddedAt)
	})
	r.current = ActiveJobsSnapshot{Version: r.version, Jobs: jobs}
	for _, ch := range r.subs {
		snap := r.current.clone()
		select {
		case ch <- snap:
		default:
			// Replace the unread stale snapshot with the newest one.
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}
