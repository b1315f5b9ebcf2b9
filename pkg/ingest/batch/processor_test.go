package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/korean"

	"github.com/dwander/schedule-parser-v2/pkg/observability"
	"github.com/dwander/schedule-parser-v2/pkg/schedule"
)

var desktopTranscript = strings.Join([]string{
	"[김실장] [오후 2:14] 2024.09.15",
	"그랜드블랑홀",
	"14:00",
	"홍길동 김영희",
	"010-1234-5678",
	"K 세븐스",
	"안현우",
	"김매니저",
	"[안현우] [오후 2:20] 네 확인했습니다",
}, "\n")

// fakeParser returns one record per non-empty line, or err when the text
// contains "boom".
type fakeParser struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeParser) Parse(_ context.Context, text string, _ schedule.Engine) ([]schedule.Record, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()

	if strings.Contains(text, "boom") {
		return nil, errors.New("parser exploded")
	}
	var out []schedule.Record
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, schedule.Record{Memo: line})
		}
	}
	return out, nil
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestProgress(t *testing.T) {
	p := NewProgress(4)
	assert.Equal(t, RunPending, p.Snapshot().Status)

	p.Start()
	p.SetCurrentFile("/chats/a.txt")
	p.Finish("/chats/a.txt", StatusParsed)
	p.Finish("/chats/b.txt", StatusEmpty)
	p.Finish("/chats/c.txt", StatusSkipped)
	p.Finish("/chats/d.txt", StatusFailed)

	s := p.Snapshot()
	assert.Equal(t, RunRunning, s.Status)
	assert.Equal(t, "/chats/a.txt", s.CurrentFile)
	assert.Equal(t, 4, s.ProcessedCount)
	assert.Equal(t, []int{1, 1, 1, 1}, []int{s.ParsedCount, s.EmptyCount, s.SkippedCount, s.FailedCount})
	assert.True(t, s.IsComplete())
	assert.Equal(t, []string{"/chats/a.txt", "/chats/b.txt", "/chats/c.txt", "/chats/d.txt"}, p.ProcessedFiles())

	p.Complete(false)
	assert.Equal(t, RunFailed, p.Snapshot().Status)
}

func TestProgressSnapshot(t *testing.T) {
	p := NewProgress(100)
	p.Start()

	_, ok := p.Snapshot().Remaining()
	assert.False(t, ok, "no estimate before the first file")

	for i := 0; i < 65; i++ {
		status := StatusParsed
		if i%13 == 0 {
			status = StatusFailed
		}
		p.Finish("", status)
	}

	s := p.Snapshot()
	assert.Equal(t, 65, s.ProcessedCount)
	assert.Equal(t, 5, s.FailedCount)
	assert.Equal(t, 60, s.ParsedCount)
	assert.InDelta(t, 65.0, s.PercentComplete(), 1e-9)
	assert.False(t, s.IsComplete())

	remaining, ok := s.Remaining()
	assert.True(t, ok)
	assert.GreaterOrEqual(t, remaining, time.Duration(0))
	assert.Empty(t, p.ProcessedFiles(), "empty paths are not listed")
}

func TestProgressCancel(t *testing.T) {
	p := NewProgress(3)
	p.Start()
	p.Cancel()
	assert.Equal(t, RunCancelled, p.Snapshot().Status)
}

func TestProgressCallback(t *testing.T) {
	p := NewProgress(10)

	var snaps []ProgressSnapshot
	p.SetOnUpdate(func(s ProgressSnapshot) { snaps = append(snaps, s) })

	p.Start()
	p.Finish("a.txt", StatusParsed)

	require.Len(t, snaps, 2)
	assert.Equal(t, RunRunning, snaps[0].Status)
	assert.Equal(t, 0, snaps[0].ProcessedCount)
	assert.Equal(t, 1, snaps[1].ParsedCount)
}

func TestProgressSnapshotIsSuccess(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*Progress)
		want  bool
	}{
		{"completed clean", func(p *Progress) { p.Start(); p.Finish("", StatusParsed); p.Complete(true) }, true},
		{"completed with failures", func(p *Progress) { p.Start(); p.Finish("", StatusFailed); p.Complete(false) }, false},
		{"still running", func(p *Progress) { p.Start() }, false},
		{"completed before any file", func(p *Progress) { p.Complete(true) }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProgress(10)
			tt.setup(p)
			assert.Equal(t, tt.want, p.Snapshot().IsSuccess())
		})
	}

	assert.Zero(t, NewProgress(0).Snapshot().PercentComplete())
}

func TestDiscoverFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), []byte("a"))
	writeFile(t, filepath.Join(dir, "nested", "B.TXT"), []byte("b"))
	writeFile(t, filepath.Join(dir, "notes.md"), []byte("c"))
	writeFile(t, filepath.Join(dir, ".cache", "x.txt"), []byte("d"))
	writeFile(t, filepath.Join(dir, ".hidden.txt"), []byte("e"))

	files, err := DiscoverFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, filepath.Join(dir, "a.txt"), files[0])
	assert.Equal(t, filepath.Join(dir, "nested", "B.TXT"), files[1])

	single, err := DiscoverFiles(filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.txt")}, single)

	_, err = DiscoverFiles(filepath.Join(dir, "notes.md"))
	assert.Error(t, err)

	_, err = DiscoverFiles(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestProcessor_Process(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "01.txt"), []byte("line one\nline two"))
	writeFile(t, filepath.Join(dir, "02.txt"), []byte("   \n"))
	writeFile(t, filepath.Join(dir, "03.txt"), []byte("boom"))

	reg := prometheus.NewRegistry()
	metrics := observability.NewParserMetrics(reg)
	parser := &fakeParser{}

	var last ProgressSnapshot
	var mu sync.Mutex
	proc := NewProcessor(parser, nil, metrics, nil, ProcessorConfig{
		Concurrency: 2,
		Engine:      schedule.EngineHybrid,
		OnProgress: func(s ProgressSnapshot) {
			mu.Lock()
			last = s
			mu.Unlock()
		},
	})

	result, err := proc.Process(context.Background(), dir)
	require.NoError(t, err)

	assert.NotEmpty(t, result.JobID)
	assert.Equal(t, 3, result.TotalFiles)
	assert.Equal(t, 1, result.ParsedCount)
	assert.Equal(t, 1, result.EmptyCount)
	assert.Equal(t, 1, result.FailedCount)
	assert.Equal(t, 2, result.RecordCount)
	assert.False(t, result.Success)
	assert.False(t, result.CompletedAt.Before(result.StartedAt))

	require.Len(t, result.Files, 3)
	assert.Equal(t, StatusParsed, result.Files[0].Status)
	assert.Equal(t, "utf-8", result.Files[0].Encoding)
	assert.Equal(t, StatusEmpty, result.Files[1].Status)
	assert.Equal(t, StatusFailed, result.Files[2].Status)
	assert.Equal(t, "parser exploded", result.Files[2].Error)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.BatchFilesTotal.WithLabelValues(StatusParsed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.BatchFilesTotal.WithLabelValues(StatusEmpty)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.BatchFilesTotal.WithLabelValues(StatusFailed)))

	snap := proc.Progress().Snapshot()
	assert.Equal(t, RunFailed, snap.Status)
	assert.Equal(t, 3, snap.ProcessedCount)

	mu.Lock()
	assert.Equal(t, RunFailed, last.Status)
	mu.Unlock()
}

func TestProcessor_DecodesEUCKR(t *testing.T) {
	dir := t.TempDir()
	encoded, err := korean.EUCKR.NewEncoder().String("김해메르시앙\n12시")
	require.NoError(t, err)
	writeFile(t, filepath.Join(dir, "old.txt"), []byte(encoded))

	parser := &fakeParser{}
	result, err := NewProcessor(parser, nil, nil, nil, ProcessorConfig{}).Process(context.Background(), dir)
	require.NoError(t, err)

	require.Len(t, result.Files, 1)
	assert.Equal(t, "euc-kr", result.Files[0].Encoding)
	require.Len(t, parser.texts, 1)
	assert.Equal(t, "김해메르시앙\n12시", parser.texts[0])
}

func TestProcessor_RealParser(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "chat.txt"), []byte(desktopTranscript))

	parser := schedule.NewParser(schedule.Options{})
	result, err := NewProcessor(parser, nil, nil, nil, ProcessorConfig{Engine: schedule.EngineClassic}).
		Process(context.Background(), dir)
	require.NoError(t, err)

	assert.True(t, result.Success)
	require.Len(t, result.Files, 1)
	require.Len(t, result.Files[0].Records, 1)
	rec := result.Files[0].Records[0]
	assert.Equal(t, "2024.09.15", rec.Date)
	assert.Equal(t, "그랜드블랑", rec.Location)
	assert.Equal(t, "김매니저", rec.Manager)
}

func TestProcessor_Cancelled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), []byte("a"))
	writeFile(t, filepath.Join(dir, "b.txt"), []byte("b"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	parser := &fakeParser{}
	proc := NewProcessor(parser, nil, nil, nil, ProcessorConfig{Concurrency: 1})
	result, err := proc.Process(ctx, dir)
	require.NoError(t, err)

	assert.Equal(t, 2, result.SkippedCount)
	assert.False(t, result.Success)
	assert.Empty(t, parser.texts)
	assert.Equal(t, RunCancelled, proc.Progress().Snapshot().Status)
}

func TestProcessor_EmptyDirectory(t *testing.T) {
	result, err := NewProcessor(&fakeParser{}, nil, nil, nil, ProcessorConfig{}).
		Process(context.Background(), t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 0, result.TotalFiles)
	assert.True(t, result.Success)
	assert.Empty(t, result.Files)
}

func TestNewProcessor_Defaults(t *testing.T) {
	proc := NewProcessor(&fakeParser{}, nil, nil, nil, ProcessorConfig{})
	if proc.cfg.Concurrency != DefaultConcurrency {
		t.Errorf("unexpected default concurrency: %d", proc.cfg.Concurrency)
	}
	if proc.Progress() != nil {
		t.Error("progress should be nil before the first run")
	}
}
