package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/dwander/schedule-parser-v2/pkg/buildinfo"
	"github.com/dwander/schedule-parser-v2/pkg/ingest/batch"
	"github.com/dwander/schedule-parser-v2/pkg/logging"
	"github.com/dwander/schedule-parser-v2/pkg/observability"
	"github.com/dwander/schedule-parser-v2/pkg/schedule"
)

// NewBatchCommand creates the batch command.
func NewBatchCommand(deps *CommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	var (
		engineName  string
		concurrency int
		metricsAddr string
		quiet       bool
	)

	cmd := &cobra.Command{
		Use:   "batch <path>",
		Short: "Parse every transcript in a directory",
		Long: `Parse a .txt transcript, or every .txt transcript under a directory, in
parallel. A file that cannot be read or parsed is reported and the run
continues.

With --metrics-addr (or metrics.enabled in the config) the run serves
Prometheus metrics on /metrics and build info on /version while it lasts.

Examples:
  sched batch ./exports
  sched batch ./exports --engine hybrid --concurrency 8 --output json
  sched batch ./exports --metrics-addr localhost:9464`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, deps, args[0], engineName, concurrency, metricsAddr, quiet)
		},
	}

	cmd.Flags().StringVarP(&engineName, "engine", "e", "", "Parsing engine (default from config)")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 0, "Files parsed at once (default from config)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve /metrics and /version on this address during the run")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print per-file progress")

	return cmd
}

func runBatch(cmd *cobra.Command, deps *CommandDeps, path, engineName string, concurrency int, metricsAddr string, quiet bool) error {
	cfg, err := deps.config()
	if err != nil {
		return err
	}
	log := deps.logger()

	engine := cfg.ParsedEngine()
	if engineName != "" {
		if engine, err = schedule.ParseEngine(engineName); err != nil {
			return err
		}
	}
	if concurrency <= 0 {
		concurrency = cfg.Batch.Concurrency
	}
	if metricsAddr == "" && cfg.Metrics.Enabled {
		metricsAddr = cfg.Metrics.Addr
	}

	ctx := cmd.Context()
	if metricsAddr != "" {
		if deps.Metrics == nil {
			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			deps.Metrics = observability.NewParserMetrics(reg)
			stop, err := serveMetrics(ctx, log, metricsAddr, reg)
			if err != nil {
				return err
			}
			defer stop()
		}
	}

	parser, cleanup, err := deps.newParser(ctx, cfg, engine)
	if err != nil {
		return err
	}
	defer cleanup()

	stderr := cmd.ErrOrStderr()
	pcfg := batch.ProcessorConfig{Concurrency: concurrency, Engine: engine}
	if !quiet {
		pcfg.OnProgress = progressPrinter(stderr)
	}

	proc := batch.NewProcessor(parser, log, deps.Metrics, nil, pcfg)
	result, err := proc.Process(ctx, path)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if ok, err := WriteStructured(w, cfg.OutputFormat, result); ok {
		return err
	}
	return writeBatchText(w, result)
}

// progressPrinter prints one line per finished file.
func progressPrinter(w io.Writer) func(batch.ProgressSnapshot) {
	var (
		mu   sync.Mutex
		last int
	)
	return func(s batch.ProgressSnapshot) {
		mu.Lock()
		defer mu.Unlock()
		if s.ProcessedCount <= last || s.Status != batch.RunRunning {
			return
		}
		last = s.ProcessedCount
		fmt.Fprintf(w, "[%d/%d] %.0f%%  %s\n", s.ProcessedCount, s.TotalFiles, s.PercentComplete(), filepath.Base(s.CurrentFile))
	}
}

func writeBatchText(w io.Writer, r *batch.ProcessResult) error {
	if r.TotalFiles == 0 {
		_, err := fmt.Fprintln(w, "No .txt transcripts found.")
		return err
	}

	for _, f := range r.Files {
		switch f.Status {
		case batch.StatusParsed:
			review := 0
			for _, rec := range f.Records {
				if rec.NeedsReview {
					review++
				}
			}
			fmt.Fprintf(w, "✓ %s: %d booking(s)", f.Path, len(f.Records))
			if review > 0 {
				fmt.Fprintf(w, ", %d need review", review)
			}
			fmt.Fprintln(w)
		case batch.StatusEmpty:
			fmt.Fprintf(w, "- %s: no bookings\n", f.Path)
		default:
			fmt.Fprintf(w, "✗ %s: %s (%s)\n", f.Path, f.Status, f.Error)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Job %s: %d file(s), %d parsed, %d empty, %d failed, %d skipped, %d booking(s) in %s\n",
		r.JobID, r.TotalFiles, r.ParsedCount, r.EmptyCount, r.FailedCount, r.SkippedCount, r.RecordCount,
		r.CompletedAt.Sub(r.StartedAt).Round(time.Millisecond))
	return nil
}

// serveMetrics serves reg on /metrics and build info on /version until
// the returned stop function is called.
func serveMetrics(ctx context.Context, log logging.Logger, addr string, reg *prometheus.Registry) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.Handle("/version", buildinfo.Handler("sched"))

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server failed", logging.Err(err))
		}
	}()
	log.Info("Serving metrics", logging.F("addr", ln.Addr().String()))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}, nil
}
