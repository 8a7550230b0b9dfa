package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"syncpanel/internal/models"
	"syncpanel/internal/service"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

type cliContext struct {
	Jobs     service.JobService
	Interval time.Duration
	Logger   *zap.Logger
	Out      io.Writer
}

func dispatch(ctx cliContext, args []string) (int, error) {
	switch args[0] {
	case "start":
		return startCmd(ctx, args[1:])
	case "status":
		return statusCmd(ctx, args[1:])
	case "active":
		return activeCmd(ctx)
	case "help", "-h", "--help":
		usage(os.Stdout)
		return exitOK, nil
	default:
		return exitUsage, fmt.Errorf("unknown command: %s", args[0])
	}
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// consoleNotifier prints panel notifications, one per line.
type consoleNotifier struct {
	out io.Writer
}

func (n consoleNotifier) ShowSuccess(ctx context.Context, message string) {
	fmt.Fprintln(n.out, "✔ "+message)
}

func (n consoleNotifier) ShowError(ctx context.Context, message string) {
	fmt.Fprintln(n.out, "✘ "+message)
}

func (n consoleNotifier) ShowWarning(ctx context.Context, message string) {
	fmt.Fprintln(n.out, "! "+message)
}

func startCmd(ctx cliContext, args []string) (int, error) {
	fs := flag.NewFlagSet("syncctl start", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	mode := fs.String("mode", "complete", "new|complete")
	var kindArg string
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		kindArg, args = args[0], args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return exitUsage, err
	}
	if kindArg == "" && fs.NArg() > 0 {
		kindArg = fs.Arg(0)
	}
	kind, err := service.ParseSyncKind(kindArg)
	if err != nil {
		return exitUsage, err
	}
	syncMode, ok := models.ParseSyncMode(*mode)
	if !ok {
		return exitUsage, fmt.Errorf("unsupported sync mode: %q", *mode)
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := &lockedWriter{w: ctx.Out}
	panels := &service.PanelManager{
		Jobs:         ctx.Jobs,
		Registry:     service.NewActiveJobsRegistry(nil, ctx.Logger),
		Notifier:     consoleNotifier{out: out},
		Logger:       ctx.Logger,
		PollInterval: ctx.Interval,
	}
	defer panels.CloseAll()
	panel := panels.Open(service.PanelOptions{Owner: "cli", Trigger: models.SyncTriggerCLI, Persistent: true})

	handle, err := panel.Start(sigCtx, kind, syncMode)
	if err != nil {
		var le *service.LaunchError
		if errors.As(err, &le) {
			// The notifier already printed the message.
			return exitFailed, nil
		}
		return exitUsage, err
	}
	fmt.Fprintf(out, "started %s (%s, %s)\n", handle.JobID, handle.SyncType, handle.SyncMode)

	progCtx, progCancel := context.WithCancel(sigCtx)
	progDone := make(chan struct{})
	go func() {
		defer close(progDone)
		printProgress(progCtx, panel, out)
	}()
	defer func() {
		progCancel()
		<-progDone
	}()

	select {
	case <-handle.Poll.Done():
	case <-sigCtx.Done():
		handle.Poll.Cancel()
		fmt.Fprintf(out, "stopped following %s; the job keeps running on the service\n", handle.JobID)
		return exitFailed, nil
	}

	last := panel.Tracker.Snapshot().LastOutcome
	if last != nil && last.State == service.TrackerCompleted {
		return exitOK, nil
	}
	return exitFailed, nil
}

func printProgress(ctx context.Context, panel *service.SyncPanel, out io.Writer) {
	lastLine := ""
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-panel.Events():
			if !ok {
				return
			}
			if ev.Type != service.PanelEventTracker || ev.Tracker == nil || ev.Tracker.Job == nil {
				continue
			}
			job := ev.Tracker.Job
			line := string(job.Status)
			if job.Progress != nil {
				line += fmt.Sprintf(" %d%%", *job.Progress)
			}
			if job.CurrentStep != "" {
				line += " " + job.CurrentStep
			}
			if line != lastLine {
				fmt.Fprintln(out, "  "+line)
				lastLine = line
			}
		}
	}
}

func statusCmd(ctx cliContext, args []string) (int, error) {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return exitUsage, errors.New("job id required")
	}
	reqCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	st, err := ctx.Jobs.GetJobStatus(reqCtx, strings.TrimSpace(args[0]))
	if err != nil {
		return exitFailed, err
	}
	return exitOK, writeJSON(ctx.Out, st)
}

func activeCmd(ctx cliContext) (int, error) {
	reqCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	jobs, err := ctx.Jobs.ListActiveJobs(reqCtx)
	if err != nil {
		return exitFailed, err
	}
	return exitOK, writeJSON(ctx.Out, map[string]any{"jobs": jobs})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
