package schedule

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Entities are the spans a Tagger found in one message.
type Entities struct {
	Persons   []string `json:"persons"`
	Locations []string `json:"locations"`
	Dates     []string `json:"dates"`
	Times     []string `json:"times"`
}

// Tagger finds person, location, date and time phrases in free text. It
// backs the tagged path of ExtractFlexible; without one only the keyword
// heuristics run.
type Tagger interface {
	Tag(text string) Entities
}

// TaggerFunc adapts a function to the Tagger interface.
type TaggerFunc func(text string) Entities

// Tag calls f(text).
func (f TaggerFunc) Tag(text string) Entities {
	return f(text)
}

var (
	emojiRegex      = regexp.MustCompile(`[🎉📍👰🤵📸💕💰⭐\x{1F3FB}\x{FE0F}]`)
	monthDayGap     = regexp.MustCompile(`(\d+월)(\d+일)`)
	dayWeekdayGap   = regexp.MustCompile(`(\d+일)(토요일|일요일|월요일|화요일|수요일|목요일|금요일)`)
	periodHourGap   = regexp.MustCompile(`(오전|오후)(\d+시)`)
	typoReplacer    = strings.NewReplacer("알범", "앨범", "오후3시", "오후 3시", "2시반", "2시30분", "해보이소", "해보세요")
	taggedDateRegex = regexp.MustCompile(`오늘|내일|모레|\d{4}[.\-/]\d{1,2}[.\-/]\d{1,2}|\d{1,2}월\s*\d{1,2}일|[월화수목금토일]요일`)
	taggedTimeRegex = regexp.MustCompile(`(?:오전|오후)?\s*\d{1,2}시(?:\s*\d{1,2}분|반)?|\d{1,2}:\d{2}`)
)

// NormalizeMessage prepares a chat message for tagging: emoji are removed,
// common typos fixed and number+unit tokens spaced ("10월25일" becomes
// "10월 25일", "오후3시" becomes "오후 3시").
func NormalizeMessage(text string) string {
	text = emojiRegex.ReplaceAllString(text, "")
	text = typoReplacer.Replace(text)
	text = monthDayGap.ReplaceAllString(text, "$1 $2")
	text = dayWeekdayGap.ReplaceAllString(text, "$1 $2")
	text = periodHourGap.ReplaceAllString(text, "$1 $2")
	return strings.TrimSpace(text)
}

// locationKeywords mark a token as a venue.
var locationKeywords = []string{
	"호텔", "웨딩홀", "컨벤션", "교회", "성당", "채플", "스튜디오", "홀", "센터", "타워",
	"그랜드", "메르시앙", "플로팅", "이리스", "하우스", "팰리스", "레지던스", "플레이스",
}

var regionNames = []string{"김해", "창원", "부산", "해운대", "센텀", "광주", "대구", "서울", "인천", "대전"}

// commonSurnames are the family names a person token must start with.
const commonSurnames = "김이박최정강조윤장임한오서신권황안송류전홍고문양손배백허유남심노하곽성차주우구민진지엄채원천방공현함변염여추도소석선설마길연위표명기반라왕금옥육인맹제모탁국어은편용"

var personStopwords = map[string]bool{
	"스케줄": true, "촬영비": true, "출장비": true, "입니다": true, "있으면": true,
	"주세요": true, "가능한": true, "연락처": true, "문의드": true, "확인해": true,
	"오전에": true, "오후에": true, "내일은": true, "오늘은": true, "모레는": true,
}

var particleSuffixes = []string{"에서", "으로", "에", "로"}

// RuleTagger is a gazetteer and pattern tagger for Korean booking chat. It
// recognises relative and absolute dates, 오전/오후 times, venue tokens by
// keyword or region name, and three-syllable names starting with a common
// surname.
type RuleTagger struct{}

// NewRuleTagger returns the built-in tagger.
func NewRuleTagger() *RuleTagger {
	return &RuleTagger{}
}

// Tag implements Tagger.
func (RuleTagger) Tag(text string) Entities {
	var e Entities
	e.Dates = dedupe(trimAll(taggedDateRegex.FindAllString(text, -1)))
	e.Times = dedupe(trimAll(taggedTimeRegex.FindAllString(text, -1)))

	for _, field := range strings.Fields(text) {
		token := strings.TrimFunc(field, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		})
		if token == "" {
			continue
		}
		switch {
		case isLocationToken(stripParticle(token)):
			e.Locations = append(e.Locations, stripParticle(token))
		case isPersonToken(token):
			e.Persons = append(e.Persons, token)
		}
	}
	e.Locations = dedupe(e.Locations)
	e.Persons = dedupe(e.Persons)
	return e
}

func stripParticle(token string) string {
	for _, p := range particleSuffixes {
		if trimmed := strings.TrimSuffix(token, p); trimmed != token && utf8.RuneCountInString(trimmed) >= 2 {
			return trimmed
		}
	}
	return token
}

func isLocationToken(token string) bool {
	if containsAny(token, locationKeywords) {
		return true
	}
	for _, region := range regionNames {
		if strings.HasPrefix(token, region) {
			return true
		}
	}
	return false
}

func isPersonToken(token string) bool {
	if utf8.RuneCountInString(token) != 3 || !isHangul(token) {
		return false
	}
	if personStopwords[token] || containsAny(token, locationKeywords) {
		return false
	}
	first, _ := utf8.DecodeRuneInString(token)
	if !strings.ContainsRune(commonSurnames, first) {
		return false
	}
	last, _ := utf8.DecodeLastRuneInString(token)
	return !strings.ContainsRune("시구동홀층관점", last)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func trimAll(values []string) []string {
	for i, v := range values {
		values[i] = strings.TrimSpace(v)
	}
	return values
}

// dedupe drops repeats and empty strings, keeping first-seen order.
func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(values))
	out := values[:0]
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
