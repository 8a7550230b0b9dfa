package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"syncpanel/internal/client/jobservice"
	"syncpanel/internal/models"
)

func TestActiveJobsRegistry_SubscribeCoalesces(t *testing.T) {
	r := NewActiveJobsRegistry(nil, nil)
	ch, unsubscribe := r.Subscribe()
	defer unsubscribe()

	first := <-ch
	if first.Version != 0 || len(first.Jobs) != 0 {
		t.Fatalf("initial snapshot=%+v", first)
	}

	r.AddJob("a", models.SyncTypeAll, models.SyncModeComplete)
	r.AddJob("b", models.SyncTypeGA4, models.SyncModeNew)
	r.AddJob("c", models.SyncTypeAgencyAnalytics, models.SyncModeComplete)

	latest := <-ch
	if latest.Version != 3 || len(latest.Jobs) != 3 {
		t.Fatalf("latest=%+v want version 3 with 3 jobs", latest)
	}
	select {
	case extra := <-ch:
		t.Fatalf("unexpected stale snapshot version %d", extra.Version)
	default:
	}
}

func TestActiveJobsRegistry_SnapshotIsImmutable(t *testing.T) {
	r := NewActiveJobsRegistry(nil, nil)
	r.AddJob("a", models.SyncTypeAll, models.SyncModeComplete)
	progress := 10
	r.UpdateJob(models.SyncJob{JobID: "a", Status: models.JobStatusRunning, Progress: &progress})

	snap := r.Snapshot()
	snap.Jobs[0].Status = models.JobStatusFailed
	*snap.Jobs[0].Progress = 99
	progress = 50

	again, _ := r.Snapshot().Get("a")
	if again.Status != models.JobStatusRunning || again.Progress == nil || *again.Progress != 10 {
		t.Fatalf("registry entry mutated through snapshot: %+v", again)
	}
}

func TestActiveJobsRegistry_OrderedByAddTime(t *testing.T) {
	r := NewActiveJobsRegistry(nil, nil)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	r.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	r.AddJob("z", models.SyncTypeAll, models.SyncModeComplete)
	r.AddJob("m", models.SyncTypeGA4, models.SyncModeComplete)
	r.AddJob("a", models.SyncTypeGA4, models.SyncModeComplete)

	jobs := r.Snapshot().Jobs
	if jobs[0].JobID != "z" || jobs[1].JobID != "m" || jobs[2].JobID != "a" {
		t.Fatalf("order=%v want z,m,a", []string{jobs[0].JobID, jobs[1].JobID, jobs[2].JobID})
	}
}

func TestActiveJobsRegistry_RefreshFromSource(t *testing.T) {
	jobs := newStubJobs()
	p := 70
	jobs.active = []jobservice.JobStatus{
		{JobID: "keep", Status: models.JobStatusRunning, SyncType: models.SyncTypeAll, Progress: &p},
		{JobID: "done", Status: models.JobStatusCompleted, SyncType: models.SyncTypeGA4},
		{JobID: "other", Status: models.JobStatusPending, SyncType: models.SyncTypeGA4},
	}
	r := NewActiveJobsRegistry(jobs, nil)
	r.AddJob("keep", models.SyncTypeAll, models.SyncModeComplete)
	r.AddJob("gone", models.SyncTypeGA4, models.SyncModeComplete)
	added, _ := r.Snapshot().Get("keep")

	if err := r.RefreshJobs(context.Background()); err != nil {
		t.Fatalf("err=%v", err)
	}
	snap := r.Snapshot()
	if len(snap.Jobs) != 2 {
		t.Fatalf("jobs=%+v want keep and other", snap.Jobs)
	}
	keep, ok := snap.Get("keep")
	if !ok || keep.Status != models.JobStatusRunning || *keep.Progress != 70 {
		t.Fatalf("keep=%+v", keep)
	}
	if !keep.AddedAt.Equal(added.AddedAt) {
		t.Fatalf("added_at reset on refresh")
	}
	if _, ok := snap.Get("gone"); ok {
		t.Fatalf("job missing from source still listed")
	}
	if _, ok := snap.Get("done"); ok {
		t.Fatalf("terminal job listed as active")
	}
}

func TestActiveJobsRegistry_RefreshErrorKeepsList(t *testing.T) {
	jobs := newStubJobs()
	jobs.activeErr = errors.New("timeout")
	r := NewActiveJobsRegistry(jobs, nil)
	r.AddJob("a", models.SyncTypeAll, models.SyncModeComplete)
	before := r.Snapshot().Version

	if err := r.RefreshJobs(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	snap := r.Snapshot()
	if snap.Version != before || len(snap.Jobs) != 1 {
		t.Fatalf("snapshot changed on failed refresh: %+v", snap)
	}
}

func TestActiveJobsRegistry_RefreshWithoutSourcePrunesTerminal(t *testing.T) {
	r := NewActiveJobsRegistry(nil, nil)
	r.AddJob("a", models.SyncTypeAll, models.SyncModeComplete)
	r.AddJob("b", models.SyncTypeGA4, models.SyncModeComplete)
	r.UpdateJob(models.SyncJob{JobID: "a", Status: models.JobStatusCompleted})

	if err := r.RefreshJobs(context.Background()); err != nil {
		t.Fatalf("err=%v", err)
	}
	snap := r.Snapshot()
	if len(snap.Jobs) != 1 || snap.Jobs[0].JobID != "b" {
		t.Fatalf("jobs=%+v want only b", snap.Jobs)
	}
}

func TestActiveJobsRegistry_UnsubscribeClosesChannel(t *testing.T) {
	r := NewActiveJobsRegistry(nil, nil)
	ch, unsubscribe := r.Subscribe()
	<-ch
	unsubscribe()
	unsubscribe()
	if _, ok := <-ch; ok {
		t.Fatalf("channel still open after unsubscribe")
	}
	r.AddJob("a", models.SyncTypeAll, models.SyncModeComplete)
}
