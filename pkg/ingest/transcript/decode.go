package transcript

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Encoding names the byte encoding a transcript was read from.
type Encoding string

const (
	EncodingUTF8  Encoding = "utf-8"
	EncodingUTF16 Encoding = "utf-16"
	EncodingEUCKR Encoding = "euc-kr"
)

var (
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// Decode converts raw transcript bytes to normalized text. UTF-16 exports
// are recognised by their byte-order mark, valid UTF-8 is taken as is (minus
// any BOM), and anything else is read as EUC-KR, which older Windows
// KakaoTalk builds wrote. The result is passed through Normalize.
func Decode(data []byte) (string, Encoding) {
	var (
		decoder transform.Transformer
		enc     Encoding
	)

	switch {
	case bytes.HasPrefix(data, bomUTF16LE) || bytes.HasPrefix(data, bomUTF16BE):
		decoder = unicode.BOMOverride(unicode.UTF8.NewDecoder())
		enc = EncodingUTF16
	case utf8.Valid(data):
		decoder = unicode.BOMOverride(unicode.UTF8.NewDecoder())
		enc = EncodingUTF8
	default:
		decoder = korean.EUCKR.NewDecoder()
		enc = EncodingEUCKR
	}

	out, _, err := transform.Bytes(decoder, data)
	if err != nil {
		// Undecodable input degrades to replacement characters rather than
		// failing the parse.
		return Normalize(strings.ToValidUTF8(string(data), "�")), EncodingUTF8
	}
	return Normalize(string(out)), enc
}

// Normalize composes Hangul to NFC and converts CRLF and CR line endings to
// LF. macOS exports are decomposed (NFD), which would otherwise defeat every
// [가-힣] pattern. Normalize is idempotent.
func Normalize(text string) string {
	text = norm.NFC.String(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}
