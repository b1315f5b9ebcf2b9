// Package transcript provides format detection, decoding and speaker
// segmentation for KakaoTalk chat exports and compact schedule messages.
package transcript

import "strings"

// Format identifies the grammar a transcript is written in.
type Format int

const (
	// FormatUnknown means no structural signature was found.
	FormatUnknown Format = iota
	// FormatDesktop is the PC export: "[speaker] [오후 2:14] message".
	FormatDesktop
	// FormatMobile is the phone export: "2024년 9월 1일 오후 2:14, speaker : message".
	FormatMobile
	// FormatCompact is speakerless one-line booking shorthand.
	FormatCompact
)

var formatNames = [...]string{
	FormatUnknown: "unknown",
	FormatDesktop: "desktop",
	FormatMobile:  "mobile",
	FormatCompact: "compact",
}

// String returns the lowercase name of the format.
func (f Format) String() string {
	if int(f) >= 0 && int(f) < len(formatNames) {
		return formatNames[f]
	}
	return "unknown"
}

// MarshalText encodes the format by name in JSON and YAML output.
func (f Format) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// HasSpeakers reports whether the format carries a speaker prefix per turn.
func (f Format) HasSpeakers() bool {
	switch f {
	case FormatDesktop, FormatMobile:
		return true
	default:
		return false
	}
}

// Block is one speaker turn: the speaker and the lines of their message.
type Block struct {
	Speaker string   `json:"speaker"`
	Lines   []string `json:"lines"`
}

// Text joins the block lines with newlines.
func (b Block) Text() string {
	return strings.Join(b.Lines, "\n")
}

// Detection is the outcome of format detection, including the per-format
// signature counts it was decided from.
type Detection struct {
	Format  Format `json:"format"`
	Desktop int    `json:"desktop_lines"`
	Mobile  int    `json:"mobile_lines"`
	Compact int    `json:"compact_lines"`
	Scanned int    `json:"scanned_lines"`
}
