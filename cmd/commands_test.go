package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwander/schedule-parser-v2/config"
	"github.com/dwander/schedule-parser-v2/credentials"
	scherrors "github.com/dwander/schedule-parser-v2/pkg/errors"
	"github.com/dwander/schedule-parser-v2/pkg/ingest/batch"
	"github.com/dwander/schedule-parser-v2/pkg/pricing"
)

func TestDetectCommand(t *testing.T) {
	deps := newTestDeps(t)
	deps.Stdin = strings.NewReader(desktopTranscript)

	out, err := execute(t, NewDetectCommand(deps))
	require.NoError(t, err)

	assert.Contains(t, out, "Format:   desktop")
	assert.Contains(t, out, "desktop=2")
	assert.Contains(t, out, "Messages: 2")
	assert.Contains(t, out, "김실장")
	assert.Contains(t, out, "안현우")
	assert.Contains(t, out, "Manager:")
}

func TestDetectCommand_CompactJSON(t *testing.T) {
	deps := newTestDeps(t)
	deps.Config.OutputFormat = config.OutputFormatJSON
	deps.Stdin = strings.NewReader("10월 25일 13시 하우스 천장근 이현주 - 박병찬 작가\n")

	out, err := execute(t, NewDetectCommand(deps))
	require.NoError(t, err)

	var got struct {
		Detection struct {
			Format string `json:"format"`
		} `json:"detection"`
		Manager json.RawMessage `json:"manager"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "compact", got.Detection.Format)
	assert.Empty(t, got.Manager)
}

func TestPriceCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "after rate change",
			args: []string{"--brand", "K 세븐스", "--album", "30P", "--date", "2025.10.18"},
			want: "Price:  140,000원",
		},
		{
			name: "before rate change with default album",
			args: []string{"--brand", "K 세븐스", "--date", "2025.08.30"},
			want: "Price:  150,000원",
		},
		{
			name: "unknown brand",
			args: []string{"--brand", "없는브랜드", "--date", "2025.10.18"},
			want: `No rate for brand "없는브랜드"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, NewPriceCommand(newTestDeps(t)), tt.args...)
			require.NoError(t, err)
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestPriceCommand_JSON(t *testing.T) {
	deps := newTestDeps(t)
	deps.Config.OutputFormat = config.OutputFormatJSON

	out, err := execute(t, NewPriceCommand(deps), "--brand", "K 세븐스", "--date", "2025.09.01")
	require.NoError(t, err)

	var q pricing.Quote
	require.NoError(t, json.Unmarshal([]byte(out), &q))
	assert.Equal(t, 140000, q.Price)
	assert.True(t, q.AfterCutover)
	assert.Equal(t, "30P", q.Album)
}

func TestPriceCommand_RequiresBrandAndDate(t *testing.T) {
	_, err := execute(t, NewPriceCommand(newTestDeps(t)), "--brand", "K 세븐스")
	require.Error(t, err)
	assert.True(t, scherrors.IsValidation(err))
}

func writeTranscripts(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chat.txt"), []byte(desktopTranscript), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "smalltalk.txt"), []byte("안녕하세요\n잘 지내시죠?"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte(desktopTranscript), 0600))
	return dir
}

func TestBatchCommand_Text(t *testing.T) {
	dir := writeTranscripts(t)

	out, err := execute(t, NewBatchCommand(newTestDeps(t)), dir, "--quiet")
	require.NoError(t, err)

	assert.Contains(t, out, "✓ "+filepath.Join(dir, "chat.txt")+": 1 booking(s)")
	assert.Contains(t, out, "- "+filepath.Join(dir, "smalltalk.txt")+": no bookings")
	assert.NotContains(t, out, "notes.md")
	assert.Contains(t, out, "2 file(s), 1 parsed, 1 empty, 0 failed, 0 skipped, 1 booking(s)")
}

func TestBatchCommand_JSON(t *testing.T) {
	dir := writeTranscripts(t)
	deps := newTestDeps(t)
	deps.Config.OutputFormat = config.OutputFormatJSON

	out, err := execute(t, NewBatchCommand(deps), dir, "--concurrency", "2", "--quiet")
	require.NoError(t, err)

	var got batch.ProcessResult
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.NotEmpty(t, got.JobID)
	assert.Equal(t, 2, got.TotalFiles)
	assert.Equal(t, 1, got.ParsedCount)
	assert.Equal(t, 1, got.EmptyCount)
	assert.Equal(t, 1, got.RecordCount)
	assert.True(t, got.Success)
}

func TestBatchCommand_Errors(t *testing.T) {
	t.Run("unknown engine", func(t *testing.T) {
		_, err := execute(t, NewBatchCommand(newTestDeps(t)), t.TempDir(), "--engine", "magic")
		assert.True(t, scherrors.IsUnknownEngine(err))
	})

	t.Run("missing path", func(t *testing.T) {
		_, err := execute(t, NewBatchCommand(newTestDeps(t)), filepath.Join(t.TempDir(), "nope"))
		assert.Error(t, err)
	})
}

func TestAuthCommand_SetKeyStatusClear(t *testing.T) {
	deps := newTestDeps(t)

	out, err := execute(t, NewAuthCommand(deps), "set-key", "--key", "sk-abcdefgh1234", "--non-interactive")
	require.NoError(t, err)
	assert.Contains(t, out, "API key saved.")
	assert.Contains(t, out, "sk-a...1234")
	assert.Contains(t, out, credentials.KeyID("sk-abcdefgh1234"))
	assert.NotContains(t, out, "sk-abcdefgh1234")

	deps.Config.OutputFormat = config.OutputFormatJSON
	out, err = execute(t, NewAuthCommand(deps), "status")
	require.NoError(t, err)

	var st AuthStatus
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.True(t, st.Active)
	assert.True(t, st.Stored)
	assert.Equal(t, credentials.SourceStore, st.Source)
	assert.Equal(t, "sk-a...1234", st.Key)
	assert.Equal(t, "openai", st.Provider)
	assert.Empty(t, st.StoreError)

	deps.Config.OutputFormat = config.OutputFormatText
	out, err = execute(t, NewAuthCommand(deps), "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "Stored API key removed.")

	out, err = execute(t, NewAuthCommand(deps), "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Key:      none")
	assert.Contains(t, out, "Stored:   no")

	out, err = execute(t, NewAuthCommand(deps), "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "No stored API key found.")
}

func TestAuthCommand_SetKeyPrompts(t *testing.T) {
	deps := newTestDeps(t)
	var prompts []string
	deps.ReadSecret = func(prompt string) (string, error) {
		prompts = append(prompts, prompt)
		return "sk-prompted-key-9999", nil
	}

	_, err := execute(t, NewAuthCommand(deps), "set-key")
	require.NoError(t, err)
	assert.Equal(t, []string{"API key: "}, prompts)

	store, err := credentials.OpenDefaultStore()
	require.NoError(t, err)
	creds, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-prompted-key-9999", creds.APIKey)
}

func TestAuthCommand_SetKeyPassphrase(t *testing.T) {
	deps := newTestDeps(t)
	t.Setenv(credentials.PassphraseEnv, "correct horse battery staple")

	out, err := execute(t, NewAuthCommand(deps), "set-key", "--key", "sk-passphrase-0001", "--passphrase", "--non-interactive")
	require.NoError(t, err)
	assert.Contains(t, out, "Passphrase")

	// OpenDefaultStore picks the passphrase up from the environment.
	key, source, err := deps.apiKey()
	require.NoError(t, err)
	assert.Equal(t, "sk-passphrase-0001", key)
	assert.Equal(t, credentials.SourceStore, source)
}

func TestAuthCommand_SetKeyErrors(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		check func(error) bool
	}{
		{"no key non-interactive", []string{"set-key", "--non-interactive"}, scherrors.IsNoInput},
		{"too short", []string{"set-key", "--key", "abc"}, scherrors.IsValidation},
		{"whitespace", []string{"set-key", "--key", "sk-abc def-123"}, scherrors.IsValidation},
		{"passphrase non-interactive", []string{"set-key", "--key", "sk-abcdefgh1234", "--passphrase", "--non-interactive"}, scherrors.IsNoInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, NewAuthCommand(newTestDeps(t)), tt.args...)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
		})
	}
}

func TestAuthStatus_EnvKeyWins(t *testing.T) {
	deps := newTestDeps(t)
	t.Setenv(credentials.APIKeyEnv, "sk-from-environment")
	deps.Config.OutputFormat = config.OutputFormatJSON

	out, err := execute(t, NewAuthCommand(deps), "status")
	require.NoError(t, err)

	var st AuthStatus
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.True(t, st.Active)
	assert.False(t, st.Stored)
	assert.Equal(t, credentials.SourceEnv, st.Source)
}

func TestConfigCommand_InitSetShow(t *testing.T) {
	deps := newTestDeps(t)

	out, err := execute(t, NewConfigCommand(deps), "init")
	require.NoError(t, err)
	assert.Contains(t, out, deps.ConfigPath)
	assert.FileExists(t, deps.ConfigPath)

	_, err = execute(t, NewConfigCommand(deps), "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")

	_, err = execute(t, NewConfigCommand(deps), "init", "--force")
	require.NoError(t, err)

	out, err = execute(t, NewConfigCommand(deps), "set", "engine", "hybrid")
	require.NoError(t, err)
	assert.Equal(t, "Set engine = hybrid\n", out)

	_, err = execute(t, NewConfigCommand(deps), "set", "batch.concurrency", "8")
	require.NoError(t, err)

	cfg, err := config.ReadConfigFile(deps.ConfigPath)
	require.NoError(t, err)
	assert.Equal(t, "hybrid", cfg.Engine)
	assert.Equal(t, 8, cfg.Batch.Concurrency)

	deps.Config.OutputFormat = config.OutputFormatJSON
	out, err = execute(t, NewConfigCommand(deps), "show")
	require.NoError(t, err)

	var shown config.Config
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.Equal(t, config.OutputFormatJSON, shown.OutputFormat)
	assert.Equal(t, "KPAG(업무용)", shown.Manager.DefaultName)
}

func TestConfigCommand_SetDoesNotPersistEnv(t *testing.T) {
	deps := newTestDeps(t)
	t.Setenv("SCHED_ENGINE", "ai_only")

	_, err := execute(t, NewConfigCommand(deps), "set", "album.default", "40P")
	require.NoError(t, err)

	data, err := os.ReadFile(deps.ConfigPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "default: 40P")
	assert.Contains(t, string(data), "engine: classic")
}

func TestConfigCommand_SetErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown key", []string{"set", "colour", "blue"}},
		{"invalid engine", []string{"set", "engine", "gpt"}},
		{"invalid concurrency", []string{"set", "batch.concurrency", "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := newTestDeps(t)
			_, err := execute(t, NewConfigCommand(deps), tt.args...)
			require.Error(t, err)
			assert.True(t, scherrors.IsValidation(err), "unexpected error: %v", err)
			assert.NoFileExists(t, deps.ConfigPath)
		})
	}
}
