package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dwander/schedule-parser-v2/pkg/ingest/transcript"
	"github.com/dwander/schedule-parser-v2/pkg/logging"
	"github.com/dwander/schedule-parser-v2/pkg/observability"
	"github.com/dwander/schedule-parser-v2/pkg/schedule"
)

// DefaultConcurrency is the default number of concurrent workers.
const DefaultConcurrency = 4

// transcriptExt is the extension of exported KakaoTalk transcripts.
const transcriptExt = ".txt"

// File outcomes.
const (
	StatusParsed  = "parsed"
	StatusEmpty   = "empty"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// RecordParser is the part of schedule.Parser the processor needs.
type RecordParser interface {
	Parse(ctx context.Context, text string, engine schedule.Engine) ([]schedule.Record, error)
}

// ProcessorConfig configures the batch processor.
type ProcessorConfig struct {
	// Concurrency is the number of transcripts parsed at once.
	Concurrency int

	// Engine is used for every file.
	Engine schedule.Engine

	// OnProgress, if set, receives a snapshot after every change.
	OnProgress func(ProgressSnapshot)
}

// FileResult is the outcome for one transcript.
type FileResult struct {
	Path     string            `json:"path" yaml:"path"`
	Status   string            `json:"status" yaml:"status"`
	Encoding string            `json:"encoding,omitempty" yaml:"encoding,omitempty"`
	Records  []schedule.Record `json:"records" yaml:"records"`
	Error    string            `json:"error,omitempty" yaml:"error,omitempty"`
	Duration time.Duration     `json:"duration" yaml:"duration"`
}

// ProcessResult contains the result of a batch run.
type ProcessResult struct {
	JobID        string       `json:"job_id" yaml:"job_id"`
	TotalFiles   int          `json:"total_files" yaml:"total_files"`
	ParsedCount  int          `json:"parsed_count" yaml:"parsed_count"`
	EmptyCount   int          `json:"empty_count" yaml:"empty_count"`
	SkippedCount int          `json:"skipped_count" yaml:"skipped_count"`
	FailedCount  int          `json:"failed_count" yaml:"failed_count"`
	RecordCount  int          `json:"record_count" yaml:"record_count"`
	StartedAt    time.Time    `json:"started_at" yaml:"started_at"`
	CompletedAt  time.Time    `json:"completed_at" yaml:"completed_at"`
	Success      bool         `json:"success" yaml:"success"`
	Files        []FileResult `json:"files" yaml:"files"`
}

// Processor parses many transcripts with bounded concurrency. A file that
// cannot be read or parsed is recorded as failed; it never stops the run.
type Processor struct {
	cfg     ProcessorConfig
	parser  RecordParser
	logger  logging.Logger
	metrics *observability.ParserMetrics
	tracer  *observability.Tracer

	progress *Progress
	mu       sync.Mutex
}

// NewProcessor creates a new batch processor. metrics and tracer may be nil.
func NewProcessor(
	parser RecordParser,
	logger logging.Logger,
	metrics *observability.ParserMetrics,
	tracer *observability.Tracer,
	cfg ProcessorConfig,
) *Processor {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if tracer == nil {
		tracer = observability.NewTracer()
	}

	return &Processor{
		cfg:     cfg,
		parser:  parser,
		logger:  logger.With(logging.F("component", "batch_processor")),
		metrics: metrics,
		tracer:  tracer,
	}
}

// Process parses every transcript at path (a .txt file or a directory
// walked recursively). Files come back in discovery order.
func (p *Processor) Process(ctx context.Context, path string) (*ProcessResult, error) {
	files, err := DiscoverFiles(path)
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}

	result := &ProcessResult{
		JobID:      uuid.New().String(),
		TotalFiles: len(files),
		StartedAt:  time.Now(),
		Files:      make([]FileResult, len(files)),
	}

	ctx, span := p.tracer.StartBatchSpan(ctx, result.JobID, len(files))
	defer span.End()
	helper := observability.NewSpanHelper(span)

	log := p.logger.With(logging.F("job_id", result.JobID))
	log.Info("Starting batch parse",
		logging.F("path", path),
		logging.F("files", len(files)),
		logging.F("engine", p.cfg.Engine.String()),
		logging.F("concurrency", p.cfg.Concurrency))

	p.mu.Lock()
	p.progress = NewProgress(len(files))
	p.mu.Unlock()
	if p.cfg.OnProgress != nil {
		p.progress.SetOnUpdate(p.cfg.OnProgress)
	}
	p.progress.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for i, file := range files {
		g.Go(func() error {
			if gctx.Err() != nil {
				p.record(result, i, FileResult{Path: file, Status: StatusSkipped, Error: gctx.Err().Error()})
				return nil
			}
			p.progress.SetCurrentFile(file)
			p.record(result, i, p.processFile(gctx, log, file))
			return nil
		})
	}
	_ = g.Wait()

	result.CompletedAt = time.Now()
	result.Success = result.FailedCount == 0 && result.SkippedCount == 0

	switch {
	case ctx.Err() != nil:
		p.progress.Cancel()
		helper.SetError(ctx.Err(), "cancelled", false)
	default:
		p.progress.Complete(result.Success)
		helper.SetSuccess()
	}

	log.Info("Batch parse finished",
		logging.F("parsed", result.ParsedCount),
		logging.F("empty", result.EmptyCount),
		logging.F("skipped", result.SkippedCount),
		logging.F("failed", result.FailedCount),
		logging.F("records", result.RecordCount),
		logging.F("duration", result.CompletedAt.Sub(result.StartedAt)))

	return result, nil
}

// Progress returns the progress tracker of the current or last run.
func (p *Processor) Progress() *Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progress
}

// DiscoverFiles finds the transcripts at path. A single file must carry
// the .txt extension; directories are walked recursively and hidden
// entries are skipped.
func DiscoverFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if !info.IsDir() {
		if !isTranscript(path) {
			return nil, fmt.Errorf("file is not a %s transcript: %s", transcriptExt, path)
		}
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, err
		}
		return []string{absPath}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p != path && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && isTranscript(d.Name()) {
			absPath, err := filepath.Abs(p)
			if err != nil {
				return err
			}
			files = append(files, absPath)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return files, nil
}

func isTranscript(name string) bool {
	return strings.EqualFold(filepath.Ext(name), transcriptExt)
}

// processFile reads, decodes and parses a single transcript.
func (p *Processor) processFile(ctx context.Context, log logging.Logger, path string) FileResult {
	start := time.Now()
	res := FileResult{Path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Error("Failed to read transcript", logging.Err(err), logging.F("file", path))
		res.Status = StatusFailed
		res.Error = err.Error()
		res.Duration = time.Since(start)
		return res
	}

	text, enc := transcript.Decode(data)
	res.Encoding = string(enc)

	records, err := p.parser.Parse(ctx, text, p.cfg.Engine)
	res.Duration = time.Since(start)
	if err != nil {
		log.Error("Failed to parse transcript", logging.Err(err), logging.F("file", path))
		res.Status = StatusFailed
		res.Error = err.Error()
		return res
	}

	res.Records = records
	res.Status = StatusParsed
	if len(records) == 0 {
		res.Status = StatusEmpty
	}

	log.Debug("Transcript parsed",
		logging.F("file", path),
		logging.F("encoding", res.Encoding),
		logging.F("records", len(records)))

	return res
}

// record stores a file outcome and updates counts and progress.
func (p *Processor) record(result *ProcessResult, i int, fr FileResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	result.Files[i] = fr
	switch fr.Status {
	case StatusParsed:
		result.ParsedCount++
		result.RecordCount += len(fr.Records)
	case StatusEmpty:
		result.EmptyCount++
	case StatusSkipped:
		result.SkippedCount++
	case StatusFailed:
		result.FailedCount++
	}
	p.progress.Finish(fr.Path, fr.Status)
	p.metrics.RecordBatchFile(fr.Status)
}
