package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dwander/schedule-parser-v2/pkg/pricing"
)

const unknownVenue = "장소 미상"

// noise phrases of price quotes and "please get back to me" messages
var heuristicNoise = compileAll(
	`혹시나.*연락`, `문의.*드려`, `연락.*주세요`, `가능.*것.*있으면`,
	`\d+만원`, `촬영비`, `출장비`, `추가.*입니다`, `건당.*입니다`,
)

var taggedNoise = compileAll(
	`취소`, `죄송`, `다시 연락`, `문의.*드려`, `혹시나`,
	`가능한 날`, `대략적인`, `얼마인지`, `비용.*궁금`,
)

var (
	monthDayRegex  = regexp.MustCompile(`(\d{1,2})월\s*(\d{1,2})일`)
	fullDateRegex  = regexp.MustCompile(`(\d{4})[-./](\d{1,2})[-./](\d{1,2})`)
	shortDateRegex = regexp.MustCompile(`(\d{1,2})[-./](\d{1,2})`)
	weekdayRegex   = regexp.MustCompile(`([월화수목금토일])요일?`)

	colonTimeRegex  = regexp.MustCompile(`(\d{1,2}):(\d{2})`)
	hourMinuteRegex = regexp.MustCompile(`(\d{1,2})시(\d{1,2})분`)
	hourRegex       = regexp.MustCompile(`(\d{1,2})시`)
	periodTimeRegex = regexp.MustCompile(`(오전|오후)?\s*(\d{1,2})시\s*(?:(\d{1,2})분|(반))?`)
	anyHourRegex    = regexp.MustCompile(`\d+시`)

	photographerRegex = regexp.MustCompile(`([가-힣]+)\s*작가`)
	hangulWordRegex   = regexp.MustCompile(`[가-힣]{2,4}`)

	regionVenueRegex = regexp.MustCompile(`(김해|창원|부산|해운대|센텀|광주|대구|서울|인천|대전)(?:\s*[가-힣]*)?`)

	taggedBrandRegexes = compileAll(
		`앨범[:\s]*([가-힣A-Za-z\s\-]+)`,
		`브랜드[:\s]*([가-힣A-Za-z\s\-]+)`,
		`(그래피|K세븐스|비세븐스|에이프리미엄|세컨드플로우)`,
	)
	taggedVenueRegexes = compileAll(
		`([가-힣\s]+(?:호텔|웨딩홀|컨벤션|센터|플레이스|채플))`,
		`([가-힣]+\s*[가-힣]*(?:호텔|웨딩홀))`,
	)
)

// venuePatterns are tried in order; the first match wins.
var venuePatterns = compileAll(
	`([가-힣]{2,}(?:호텔|센터|컨벤션|웨딩홀|교회|성당|예식장|리조트|펜션))`,
	`([가-힣]{2,}(?:메르시앙|그랜드|조선|롯데|신라|하얏트|힐튼))`,
	`([가-힣]+(?:\s*["']?[a-zA-Z0-9가-힣]+["']?)?(?:홀|룸|관|동))`,
)

var venueTopics = []string{"촬영", "스케줄", "웨딩", "예식"}

var nonNameWords = map[string]bool{
	"스케줄": true, "촬영": true, "연락": true, "출장비": true, "만원": true,
	"추가": true, "입니다": true, "있으면": true, "주세요": true, "가능": true,
	"작가": true, "내일": true, "오늘": true, "모레": true, "어제": true,
	"오전": true, "오후": true, "저녁": true,
}

// Verb stems that never start a name ("부탁드려요", "감사합니다").
var nonNamePrefixes = []string{"부탁", "감사", "확인", "문의", "예약"}

func isNonNameWord(w string) bool {
	if nonNameWords[w] {
		return true
	}
	for _, p := range nonNamePrefixes {
		if strings.HasPrefix(w, p) {
			return true
		}
	}
	return false
}

var weekdayByRune = map[rune]time.Weekday{
	'월': time.Monday, '화': time.Tuesday, '수': time.Wednesday, '목': time.Thursday,
	'금': time.Friday, '토': time.Saturday, '일': time.Sunday,
}

var weekdayNames = []struct {
	name string
	day  time.Weekday
}{
	{"월요일", time.Monday}, {"화요일", time.Tuesday}, {"수요일", time.Wednesday},
	{"목요일", time.Thursday}, {"금요일", time.Friday}, {"토요일", time.Saturday},
	{"일요일", time.Sunday},
}

// ExtractFlexible reads one booking out of a loosely worded message such as
// "김해메르시앙 12시" or "내일 오후 2시반 신라호텔 김철수 이영희". It tries the
// tagged path when opts.Tagger is set and falls back to keyword heuristics.
// The result is always flagged for review since some fields are guessed.
func ExtractFlexible(text string, opts ExtractOptions) (Record, bool) {
	opts = opts.withDefaults()
	if utf8.RuneCountInString(strings.TrimSpace(text)) < 3 {
		return Record{}, false
	}
	if opts.Tagger != nil {
		if r, ok := extractTagged(text, opts); ok {
			return r, true
		}
	}
	return extractHeuristic(text, opts)
}

// components are the fields the heuristic pass found in a message.
type components struct {
	date         string
	dateGuessed  bool
	time         string
	venue        string
	photographer string
	names        []string
}

func extractHeuristic(text string, opts ExtractOptions) (Record, bool) {
	if matchesAny(heuristicNoise, text) {
		return Record{}, false
	}

	c := readComponents(text, opts.Now())

	readDate := c.date != "" && !c.dateGuessed
	signals := 0
	for _, present := range []bool{readDate, c.time != "", c.venue != ""} {
		if present {
			signals++
		}
	}
	anchored := c.photographer != "" && (c.time != "" || c.venue != "")
	if !(readDate || c.time != "") || signals < 2 {
		if !anchored {
			return Record{}, false
		}
	}

	r := Record{
		Date:         c.date,
		Time:         c.time,
		Location:     CleanLocation(c.venue),
		Photographer: c.photographer,
		NeedsReview:  true,
	}
	if len(c.names) >= 2 {
		r.Couple = SeparateCoupleNames(c.names[0] + " " + c.names[1])
	}
	if r.Photographer == "" && len(c.names) >= 3 {
		r.Photographer = c.names[len(c.names)-1]
	}

	var reasons []string
	if c.dateGuessed {
		reasons = append(reasons, "날짜 추측됨")
	}
	if r.Couple == "" {
		reasons = append(reasons, "커플 정보 없음")
	}
	if r.Photographer == "" {
		reasons = append(reasons, "작가 정보 없음")
	}
	if r.Location == "" {
		reasons = append(reasons, "장소 정보 없음")
	}
	r.ReviewReason = joinReason(reasonFlexible, reasons)
	return r, true
}

func readComponents(text string, now time.Time) components {
	var c components
	scan := phoneRegex.ReplaceAllString(text, " ")

	c.date = readDate(scan, now.Year())
	if c.date == "" {
		c.dateGuessed = true
		if m := weekdayRegex.FindStringSubmatch(scan); m != nil {
			r, _ := utf8.DecodeRuneInString(m[1])
			c.date = nextWeekday(now, weekdayByRune[r]).Format(pricing.DateLayout)
		} else {
			c.date = nextWeekday(now, time.Saturday).Format(pricing.DateLayout)
		}
	}

	c.time = readTime(scan)
	c.venue = readVenue(scan)

	if m := photographerRegex.FindStringSubmatch(scan); m != nil {
		c.photographer = m[1]
	}

	var names []string
	for _, w := range hangulWordRegex.FindAllString(scan, -1) {
		if isNonNameWord(w) || w == c.photographer || strings.Contains(c.venue, w) {
			continue
		}
		names = append(names, w)
	}
	c.names = dedupe(names)
	return c
}

// readDate formats the first explicit date in text, or returns "".
func readDate(text string, year int) string {
	if m := monthDayRegex.FindStringSubmatch(text); m != nil {
		if d := formatDate(strconv.Itoa(year), m[1], m[2]); d != "" {
			return d
		}
	}
	if m := fullDateRegex.FindStringSubmatch(text); m != nil {
		if d := formatDate(m[1], m[2], m[3]); d != "" {
			return d
		}
	}
	if m := shortDateRegex.FindStringSubmatch(text); m != nil {
		return formatDate(strconv.Itoa(year), m[1], m[2])
	}
	return ""
}

func formatDate(year, month, day string) string {
	y, _ := strconv.Atoi(year)
	mo, _ := strconv.Atoi(month)
	d, _ := strconv.Atoi(day)
	if mo < 1 || mo > 12 || d < 1 || d > 31 {
		return ""
	}
	return fmt.Sprintf("%04d.%02d.%02d", y, mo, d)
}

// readTime returns the first time in text as HH:MM. "N시간" durations are
// not times.
func readTime(text string) string {
	if m := colonTimeRegex.FindStringSubmatch(text); m != nil {
		if t := formatTime(m[1], m[2]); t != "" {
			return t
		}
	}
	if m := hourMinuteRegex.FindStringSubmatch(text); m != nil {
		if t := formatTime(m[1], m[2]); t != "" {
			return t
		}
	}
	for _, loc := range hourRegex.FindAllStringSubmatchIndex(text, -1) {
		if strings.HasPrefix(text[loc[1]:], "간") {
			continue
		}
		if t := formatTime(text[loc[2]:loc[3]], "0"); t != "" {
			return t
		}
	}
	return ""
}

func formatTime(hour, minute string) string {
	h, _ := strconv.Atoi(hour)
	m, _ := strconv.Atoi(minute)
	return clockTime(h, m)
}

func clockTime(h, m int) string {
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return ""
	}
	return fmt.Sprintf("%02d:%02d", h, m)
}

func readVenue(text string) string {
	for _, re := range venuePatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	if m := regionVenueRegex.FindString(text); m != "" {
		return strings.TrimSpace(m)
	}
	for _, topic := range venueTopics {
		if strings.Contains(text, topic) {
			return topic + " 관련"
		}
	}
	return ""
}

// nextWeekday returns the next day strictly after now that falls on day.
func nextWeekday(now time.Time, day time.Weekday) time.Time {
	ahead := int(day) - int(now.Weekday())
	if ahead <= 0 {
		ahead += 7
	}
	return now.AddDate(0, 0, ahead)
}

func extractTagged(text string, opts ExtractOptions) (Record, bool) {
	normalized := NormalizeMessage(text)
	if matchesAny(taggedNoise, normalized) {
		return Record{}, false
	}

	e := opts.Tagger.Tag(normalized)
	now := opts.Now()

	hasDate := len(e.Dates) > 0 || containsAny(normalized, []string{"내일", "오늘", "일요일", "토요일", "월요일"})
	hasTime := len(e.Times) > 0 || anyHourRegex.MatchString(normalized)
	hasVenue := len(e.Locations) > 0
	core := 0
	for _, present := range []bool{hasDate, hasTime, hasVenue} {
		if present {
			core++
		}
	}
	if core < 2 {
		return Record{}, false
	}

	date := taggedDate(e, normalized, now)
	hhmm := taggedTime(e, normalized)
	if date == "" && hhmm == "" {
		return Record{}, false
	}

	venue := taggedVenue(e, normalized)
	if venue == "" && hhmm != "" {
		venue = unknownVenue
	}

	var couple string
	switch {
	case len(e.Persons) >= 2:
		couple = e.Persons[0] + " " + e.Persons[1]
	case len(e.Persons) == 1:
		couple = e.Persons[0]
	}

	var reasons []string
	if date == "" {
		reasons = append(reasons, "날짜 정보 없음")
	}
	if hhmm == "" {
		reasons = append(reasons, "시간 정보 없음")
	}
	if venue == "" || venue == unknownVenue {
		reasons = append(reasons, "장소 정보 없음")
	}
	if couple == "" {
		reasons = append(reasons, "커플 정보 없음")
	}

	r := Record{
		Date:     date,
		Time:     hhmm,
		Location: CleanLocation(venue),
		Brand:    taggedBrand(normalized),
	}
	if couple != "" {
		r.Couple = SeparateCoupleNames(couple)
	}
	if len(reasons) > 0 {
		r.NeedsReview = true
		r.ReviewReason = joinReason(reasonTagged, reasons)
	}
	return r, true
}

func taggedDate(e Entities, text string, now time.Time) string {
	for _, d := range e.Dates {
		switch {
		case strings.Contains(d, "내일"):
			return now.AddDate(0, 0, 1).Format(pricing.DateLayout)
		case strings.Contains(d, "오늘"):
			return now.Format(pricing.DateLayout)
		case strings.Contains(d, "모레"):
			return now.AddDate(0, 0, 2).Format(pricing.DateLayout)
		}
	}

	if d := readDate(phoneRegex.ReplaceAllString(text, " "), now.Year()); d != "" {
		return d
	}

	for _, w := range weekdayNames {
		if strings.Contains(text, w.name) {
			return nextWeekday(now, w.day).Format(pricing.DateLayout)
		}
	}
	return ""
}

func taggedTime(e Entities, text string) string {
	for _, t := range e.Times {
		if hhmm := periodTime(t); hhmm != "" {
			return hhmm
		}
	}
	return periodTime(text)
}

// periodTime reads "오후 2시30분", "2시반" or "11시" from s. 오후 adds twelve
// hours except at noon; 오전 12시 is midnight.
func periodTime(s string) string {
	m := periodTimeRegex.FindStringSubmatch(s)
	if m == nil {
		if c := colonTimeRegex.FindStringSubmatch(s); c != nil {
			return formatTime(c[1], c[2])
		}
		return ""
	}
	hour, _ := strconv.Atoi(m[2])
	minute := 0
	switch {
	case m[4] != "":
		minute = 30
	case m[3] != "":
		minute, _ = strconv.Atoi(m[3])
	}
	switch {
	case m[1] == "오후" && hour != 12:
		hour += 12
	case m[1] == "오전" && hour == 12:
		hour = 0
	}
	return clockTime(hour, minute)
}

func taggedVenue(e Entities, text string) string {
	clean := func(s string) string {
		s = strings.ReplaceAll(s, "에서", "")
		return strings.TrimSpace(strings.ReplaceAll(s, "에", ""))
	}
	for _, loc := range e.Locations {
		if containsAny(loc, []string{"호텔", "웨딩홀", "컨벤션", "센터", "플레이스"}) {
			return clean(loc)
		}
	}
	if len(e.Locations) > 0 {
		return clean(e.Locations[0])
	}
	for _, re := range taggedVenueRegexes {
		if m := re.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

func taggedBrand(text string) string {
	for _, re := range taggedBrandRegexes {
		if m := re.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

func matchesAny(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
