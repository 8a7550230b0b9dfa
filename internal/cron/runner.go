package cronrunner

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Runner runs named jobs on seconds-enabled cron specs. A job still running
// when its next tick fires is skipped for that tick.
type Runner struct {
	cron    *cron.Cron
	logger  *zap.Logger
	baseCtx context.Context
	names   map[cron.EntryID]string
}

func New(logger *zap.Logger, baseCtx context.Context) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cron:    cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger:  logger,
		baseCtx: baseCtx,
		names:   map[cron.EntryID]string{},
	}
}

// Add registers job under spec. Must be called before Start.
func (r *Runner) Add(name, spec string, job func(context.Context)) (cron.EntryID, error) {
	id, err := r.cron.AddFunc(spec, func() { r.run(name, job) })
	if err != nil {
		return 0, fmt.Errorf("cron %s %q: %w", name, spec, err)
	}
	r.names[id] = name
	return id, nil
}

func (r *Runner) run(name string, job func(context.Context)) {
	if r.baseCtx.Err() != nil {
		return
	}
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("cron job panicked", zap.String("job", name), zap.Any("panic", rec))
			return
		}
		r.logger.Debug("cron job finished", zap.String("job", name), zap.Duration("took", time.Since(start)))
	}()
	job(r.baseCtx)
}

func (r *Runner) Len() int {
	return len(r.cron.Entries())
}

// Next reports when each named job fires next.
func (r *Runner) Next() map[string]time.Time {
	out := make(map[string]time.Time, len(r.names))
	for _, e := range r.cron.Entries() {
		if name, ok := r.names[e.ID]; ok {
			out[name] = e.Next
		}
	}
	return out
}

func (r *Runner) Start() {
	r.logger.Info("cron started", zap.Int("entries", r.Len()))
	r.cron.Start()
}

func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("cron stopped")
}
