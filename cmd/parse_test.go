package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/dwander/schedule-parser-v2/config"
	"github.com/dwander/schedule-parser-v2/credentials"
	scherrors "github.com/dwander/schedule-parser-v2/pkg/errors"
	"github.com/dwander/schedule-parser-v2/pkg/llm"
	"github.com/dwander/schedule-parser-v2/pkg/logging"
	"github.com/dwander/schedule-parser-v2/pkg/schedule"
)

const testEncryptionKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

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

// newTestDeps returns deps with default configuration, a credential store
// under a temp dir and no API key in the environment.
func newTestDeps(t *testing.T) *CommandDeps {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("SCHED_CONFIG_DIR", dir)
	t.Setenv(credentials.EncryptionKeyEnv, testEncryptionKey)
	t.Setenv(credentials.APIKeyEnv, "")
	t.Setenv(credentials.PassphraseEnv, "")

	return &CommandDeps{
		Config:     config.DefaultConfig(),
		Logger:     logging.NewNopLogger(),
		ConfigPath: filepath.Join(dir, "config.yaml"),
		OpenStore:  credentials.OpenDefaultStore,
		NewProvider: func(llm.Config, string) (llm.Provider, error) {
			t.Fatal("NewProvider should not be called")
			return nil, nil
		},
		ReadSecret: func(string) (string, error) {
			t.Fatal("ReadSecret should not be called")
			return "", nil
		},
		Stdin: strings.NewReader(""),
		Now: func() time.Time {
			return time.Date(2025, time.September, 17, 10, 0, 0, 0, time.UTC)
		},
	}
}

// execute runs c with args and returns stdout.
func execute(t *testing.T, c *cobra.Command, args ...string) (string, error) {
	t.Helper()

	var out, errOut bytes.Buffer
	c.SetOut(&out)
	c.SetErr(&errOut)
	c.SetArgs(args)
	err := c.ExecuteContext(context.Background())
	return out.String(), err
}

func TestParseCommand_Text(t *testing.T) {
	deps := newTestDeps(t)
	deps.Stdin = strings.NewReader(desktopTranscript)

	out, err := execute(t, NewParseCommand(deps))
	require.NoError(t, err)

	assert.Contains(t, out, "1 booking(s) [engine: classic]")
	assert.Contains(t, out, "#1  2024.09.15 14:00  그랜드블랑")
	assert.Contains(t, out, "신랑신부  홍길동 김영희")
	assert.Contains(t, out, "계약자    김매니저")
	assert.Contains(t, out, "촬영비    150,000원")
	assert.NotContains(t, out, "검토 필요")
}

func TestParseCommand_JSON(t *testing.T) {
	deps := newTestDeps(t)
	deps.Config.OutputFormat = config.OutputFormatJSON

	path := filepath.Join(t.TempDir(), "chat.txt")
	require.NoError(t, os.WriteFile(path, []byte(desktopTranscript), 0600))

	out, err := execute(t, NewParseCommand(deps), path)
	require.NoError(t, err)

	var got ParseOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "classic", got.Engine)
	assert.Equal(t, "utf-8", got.Encoding)
	assert.Equal(t, 1, got.Count)
	assert.Equal(t, 0, got.Review)
	require.Len(t, got.Records, 1)
	assert.Equal(t, "2024.09.15", got.Records[0].Date)
	assert.Equal(t, "010-1234-5678", got.Records[0].Contact)
	assert.Equal(t, 150000, got.Records[0].Price)
}

func TestParseCommand_YAML(t *testing.T) {
	deps := newTestDeps(t)
	deps.Config.OutputFormat = config.OutputFormatYAML
	deps.Stdin = strings.NewReader(desktopTranscript)

	out, err := execute(t, NewParseCommand(deps), "-")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	assert.Equal(t, "classic", got["engine"])
	assert.Equal(t, 1, got["count"])
}

func TestParseCommand_NoBookings(t *testing.T) {
	deps := newTestDeps(t)
	deps.Stdin = strings.NewReader("안녕하세요\n잘 지내시죠?")

	out, err := execute(t, NewParseCommand(deps))
	require.NoError(t, err)
	assert.Equal(t, "No bookings found.\n", out)
}

func TestParseCommand_Errors(t *testing.T) {
	t.Run("unknown engine", func(t *testing.T) {
		deps := newTestDeps(t)
		deps.Stdin = strings.NewReader(desktopTranscript)

		_, err := execute(t, NewParseCommand(deps), "--engine", "gpt")
		require.Error(t, err)
		assert.True(t, scherrors.IsUnknownEngine(err))
	})

	t.Run("empty input", func(t *testing.T) {
		deps := newTestDeps(t)
		deps.Stdin = strings.NewReader("  \n")

		_, err := execute(t, NewParseCommand(deps))
		require.Error(t, err)
		assert.True(t, scherrors.IsNoInput(err))
	})

	t.Run("missing file", func(t *testing.T) {
		deps := newTestDeps(t)

		_, err := execute(t, NewParseCommand(deps), filepath.Join(t.TempDir(), "missing.txt"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reading transcript")
	})
}

func TestParseCommand_HybridWithoutKeyKeepsClassic(t *testing.T) {
	deps := newTestDeps(t)
	deps.Config.OutputFormat = config.OutputFormatJSON
	deps.Stdin = strings.NewReader("김해메르시앙 12시")

	out, err := execute(t, NewParseCommand(deps), "--engine", "hybrid")
	require.NoError(t, err)

	var got ParseOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "hybrid", got.Engine)
	require.Len(t, got.Records, 1)
	assert.Equal(t, "김해메르시앙", got.Records[0].Location)
	assert.True(t, got.Records[0].NeedsReview)
	assert.Equal(t, 1, got.Review)
}

// stubProvider answers every completion with content.
type stubProvider struct {
	content string
	calls   int
	closed  bool
}

func (p *stubProvider) Name() string  { return "stub" }
func (p *stubProvider) Model() string { return "gpt-4.1-nano" }
func (p *stubProvider) Close() error  { p.closed = true; return nil }

func (p *stubProvider) Complete(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.calls++
	return &llm.CompletionResponse{Content: p.content, Model: "gpt-4.1-nano", FinishReason: "stop"}, nil
}

func TestParseCommand_HybridUsesReformatter(t *testing.T) {
	deps := newTestDeps(t)
	deps.Config.OutputFormat = config.OutputFormatJSON
	deps.Stdin = strings.NewReader("김해메르시앙 12시")
	t.Setenv(credentials.APIKeyEnv, "sk-test-1234567890")

	provider := &stubProvider{content: strings.Join([]string{
		"2025.10.18",
		"김해메르시앙",
		"12:00",
		"김철수 이영희",
		"K 세븐스",
		"안현우",
		"김실장",
	}, "\n")}
	var gotKey string
	deps.NewProvider = func(_ llm.Config, apiKey string) (llm.Provider, error) {
		gotKey = apiKey
		return provider, nil
	}

	out, err := execute(t, NewParseCommand(deps), "--engine", "hybrid")
	require.NoError(t, err)

	assert.Equal(t, "sk-test-1234567890", gotKey)
	assert.Equal(t, 1, provider.calls)
	assert.True(t, provider.closed)

	var got ParseOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got.Records, 1)
	assert.Equal(t, "김철수 이영희", got.Records[0].Couple)
	assert.Equal(t, "2025.10.18", got.Records[0].Date)
	assert.Equal(t, 140000, got.Records[0].Price)
	assert.False(t, got.Records[0].NeedsReview)
}

func TestSortRecords(t *testing.T) {
	records := []schedule.Record{
		{Date: "2025.10.18", Time: "15:00", Couple: "c"},
		{Date: "", Time: "09:00", Couple: "none"},
		{Date: "2025.09.20", Time: "11:00", Couple: "a"},
		{Date: "2025.10.18", Time: "10:30", Couple: "b"},
	}

	SortRecords(records)

	var order []string
	for _, r := range records {
		order = append(order, r.Couple)
	}
	assert.Equal(t, []string{"a", "b", "c", "none"}, order)
}

func TestFormatWon(t *testing.T) {
	tests := map[int]string{
		0:       "0원",
		500:     "500원",
		1000:    "1,000원",
		140000:  "140,000원",
		1500000: "1,500,000원",
	}
	for in, want := range tests {
		assert.Equal(t, want, formatWon(in))
	}
}

func TestReadTranscript(t *testing.T) {
	text, enc, err := readTranscript(strings.NewReader("\ufeff안녕\r\n"), "-")
	require.NoError(t, err)
	assert.Equal(t, "안녕\n", text)
	assert.Equal(t, "utf-8", string(enc))

	_, _, err = readTranscript(nil, "")
	assert.True(t, scherrors.IsNoInput(err))
}
