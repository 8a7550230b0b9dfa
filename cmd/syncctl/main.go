package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"syncpanel/internal/client/jobservice"
	"syncpanel/internal/logger"
)

func main() {
	var (
		baseURL  = flag.String("base-url", "", "Job service base URL (env: SP_JOB_SERVICE_BASE_URL)")
		apiKey   = flag.String("api-key", "", "Job service API key (env: SP_JOB_SERVICE_API_KEY)")
		interval = flag.Duration("interval", 30*time.Second, "Status poll interval")
		timeout  = flag.Duration("timeout", 15*time.Second, "Per-request timeout")
		verbose  = flag.Bool("v", false, "Verbose logging to stderr")
	)
	flag.Usage = func() { usage(os.Stderr) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage(os.Stderr)
		os.Exit(2)
	}

	host := strings.TrimSpace(*baseURL)
	if host == "" {
		host = strings.TrimSpace(os.Getenv("SP_JOB_SERVICE_BASE_URL"))
	}
	if host == "" {
		host = "http://localhost:8000"
	}
	key := strings.TrimSpace(*apiKey)
	if key == "" {
		key = strings.TrimSpace(os.Getenv("SP_JOB_SERVICE_API_KEY"))
	}

	log := logger.NewCLI(*verbose)
	defer func() { _ = log.Sync() }()

	ctx := cliContext{
		Jobs:     jobservice.NewClient(&http.Client{Timeout: *timeout}, host, key),
		Interval: *interval,
		Logger:   log,
		Out:      os.Stdout,
	}
	code, err := dispatch(ctx, args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
	}
	os.Exit(code)
}

func usage(w *os.File) {
	fmt.Fprint(w, `syncctl [flags] <command> [args]

Flags:
  --base-url   Job service base URL (env: SP_JOB_SERVICE_BASE_URL)
  --api-key    Job service API key (env: SP_JOB_SERVICE_API_KEY)
  --interval   Status poll interval (default 30s)
  --timeout    Per-request timeout (default 15s)
  -v           Verbose logging

Commands:
  start <full|ga4|agency_analytics> [--mode new|complete]
               launch a sync and follow it until it finishes
  status <job_id>
               print the current status of a job
  active       list jobs the service reports as running
`)
}
