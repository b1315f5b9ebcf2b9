package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dwander/schedule-parser-v2/config"
	scherrors "github.com/dwander/schedule-parser-v2/pkg/errors"
	"github.com/dwander/schedule-parser-v2/pkg/ingest/transcript"
)

// WriteStructured writes v as JSON or YAML. It reports false for the text
// format so the caller renders its own view.
func WriteStructured(w io.Writer, format config.OutputFormat, v any) (bool, error) {
	switch format {
	case config.OutputFormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return true, enc.Encode(v)
	case config.OutputFormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return true, enc.Encode(v)
	default:
		return false, nil
	}
}

// readTranscript reads a transcript from path, or from stdin when path is
// empty or "-", and decodes it to normalized UTF-8.
func readTranscript(stdin io.Reader, path string) (string, transcript.Encoding, error) {
	var (
		data []byte
		err  error
	)
	if path == "" || path == "-" {
		if stdin == nil {
			return "", "", fmt.Errorf("%w: no input", scherrors.ErrNoInput)
		}
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", "", fmt.Errorf("reading transcript: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", "", fmt.Errorf("%w: transcript is empty", scherrors.ErrNoInput)
	}

	text, enc := transcript.Decode(data)
	return text, enc, nil
}

func valueOrDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// formatWon renders a price as "150,000원".
func formatWon(n int) string {
	s := fmt.Sprintf("%d", n)
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String() + "원"
}
