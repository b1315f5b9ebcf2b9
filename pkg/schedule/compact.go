package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var monthHeaderRegex = regexp.MustCompile(`^(\d{1,2})월$`)

// compactPattern is one of the one-line shorthand grammars. All three
// capture month, day, hour, venue, groom, bride and photographer; minute is
// optional.
type compactPattern struct {
	re        *regexp.Regexp
	hasMinute bool
}

const compactTail = `\s+(.+?)\s+([가-힣]+)\s+([가-힣]+)\s*-\s*([가-힣]+)\s*작가`

// compactPatterns are tried in order, most specific first.
var compactPatterns = []compactPattern{
	// 11월 15일 13시30분 이리스 컨벤션 김지환 김민정 - 박병찬 작가
	{re: regexp.MustCompile(`^(\d{1,2})월\s*(\d{1,2})일\s*(\d{1,2})시(\d{1,2})분` + compactTail), hasMinute: true},
	// 11월 22일 13:30시 이리스 서성준 배지원 - 박병찬 작가
	{re: regexp.MustCompile(`^(\d{1,2})월\s*(\d{1,2})일\s*(\d{1,2}):(\d{2})시` + compactTail), hasMinute: true},
	// 10월 25일 13시 하우스 천장근 이현주 - 박병찬 작가
	{re: regexp.MustCompile(`^(\d{1,2})월\s*(\d{1,2})일\s*(\d{1,2})시` + compactTail)},
}

// ExtractCompact parses speakerless shorthand, one booking per line. The
// year is taken from opts.Now. Bare month headers ("10월") are skipped.
// A line none of the grammars accept goes to ExtractFlexible when
// opts.Flexible is set and is dropped otherwise.
func ExtractCompact(text string, opts ExtractOptions) []Record {
	opts = opts.withDefaults()
	year := opts.Now().Year()

	var records []Record
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || monthHeaderRegex.MatchString(line) {
			continue
		}

		if r, ok := matchCompactLine(line, year); ok {
			records = append(records, r)
			continue
		}

		if !opts.Flexible {
			continue
		}
		if r, ok := ExtractFlexible(line, opts); ok {
			records = append(records, r)
		}
	}
	return records
}

func matchCompactLine(line string, year int) (Record, bool) {
	for _, p := range compactPatterns {
		m := p.re.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		hour, _ := strconv.Atoi(m[3])
		minute := 0
		rest := m[4:]
		if p.hasMinute {
			minute, _ = strconv.Atoi(m[4])
			rest = m[5:]
		}
		venue, groom, bride, photographer := rest[0], rest[1], rest[2], rest[3]

		return Record{
			Date:         fmt.Sprintf("%d.%02d.%02d", year, month, day),
			Time:         fmt.Sprintf("%02d:%02d", hour, minute),
			Location:     CleanLocation(strings.TrimSpace(venue)),
			Couple:       strings.TrimSpace(groom) + " " + strings.TrimSpace(bride),
			Photographer: strings.TrimSpace(photographer),
			NeedsReview:  true,
			ReviewReason: reasonCompact,
		}, true
	}
	return Record{}, false
}
