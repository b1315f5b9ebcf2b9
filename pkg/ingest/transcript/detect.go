package transcript

import (
	"regexp"
	"strings"
)

// DetectLineLimit is the number of leading lines inspected by Detect.
const DetectLineLimit = 50

// Speaker-prefix and compact-line signatures.
var (
	// [홍길동] [오후 2:14] message
	desktopLineRegex = regexp.MustCompile(`^\[([^\]]+)\]\s*\[(오전|오후)\s*\d{1,2}:\d{2}\]`)

	// 2024년 9월 1일 오후 2:14, 홍길동 : message
	mobileLineRegex = regexp.MustCompile(`^\d{4}년\s*\d{1,2}월\s*\d{1,2}일\s*(오전|오후)\s*\d{1,2}:\d{2},\s*([^:]+?)\s*:\s*(.*)$`)

	compactSignatures = []*regexp.Regexp{
		// 10월 25일 13시 하우스 천장근 이현주 - 박병찬 작가 (also 13시30분, 13:30시)
		regexp.MustCompile(`^\d{1,2}월\s*\d{1,2}일\s*\d{1,2}(?:시\d{1,2}분|:\d{2}시|시)\s+.+\s+[가-힣]+\s+[가-힣]+\s*-\s*[가-힣]+\s*작가`),
		// 해운대 그랜드조선호텔 12시
		regexp.MustCompile(`^[가-힣\s"]+\s+\d{1,2}시(?:\d{1,2}분)?(?:\s+[가-힣\s]*)?$`),
		// 11월29일 토요일 ...
		regexp.MustCompile(`^\d{1,2}월\d{1,2}일\s+[가-힣]+`),
	}
)

// DetectFormat classifies a transcript. See Detect for the counts behind
// the decision.
func DetectFormat(text string) Format {
	return Detect(text).Format
}

// Detect scans the first DetectLineLimit lines of text and counts the lines
// matching each format signature. Any compact line wins outright, since
// compact messages routinely carry date-like fragments that would otherwise
// be misread. Otherwise the larger of desktop and mobile wins, desktop on a
// tie.
func Detect(text string) Detection {
	var d Detection

	lines := strings.Split(text, "\n")
	if len(lines) > DetectLineLimit {
		lines = lines[:DetectLineLimit]
	}

	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		d.Scanned++

		switch {
		case desktopLineRegex.MatchString(line):
			d.Desktop++
		case mobileLineRegex.MatchString(line):
			d.Mobile++
		case isCompactLine(line):
			d.Compact++
		}
	}

	switch {
	case d.Compact > 0:
		d.Format = FormatCompact
	case d.Desktop > 0 && d.Desktop >= d.Mobile:
		d.Format = FormatDesktop
	case d.Mobile > 0:
		d.Format = FormatMobile
	default:
		d.Format = FormatUnknown
	}
	return d
}

func isCompactLine(line string) bool {
	for _, re := range compactSignatures {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}
