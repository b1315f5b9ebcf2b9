package schedule

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultAlbum is the album assumed when only "기본" or a bare brand is given.
const DefaultAlbum = "30P"

var (
	dateRegex        = regexp.MustCompile(`(\d{4}\.\d{2}\.\d{2})`)
	exactDateRegex   = regexp.MustCompile(`^\d{4}\.\d{2}\.\d{2}$`)
	exactTimeRegex   = regexp.MustCompile(`^\d{2}:\d{2}$`)
	hangulWordsRegex = regexp.MustCompile(`^[가-힣]+\s+[가-힣]+\s+[가-힣]+$`)
	hangulNameRegex  = regexp.MustCompile(`^[가-힣]{2,4}$`)

	phoneRegex         = regexp.MustCompile(`010[- .]?\d{4}[- .]?\d{4}`)
	parentheticalRegex = regexp.MustCompile(`\([^)]*\)`)
	invisibleRegex     = regexp.MustCompile(`\x{202D}|\x{202C}`)
	exclusiveHallRegex = regexp.MustCompile(`단독홀?`)
	whitespaceRegex    = regexp.MustCompile(`\s+`)
	nonDigitRegex      = regexp.MustCompile(`[^0-9]`)

	brandRegex = regexp.MustCompile(strings.Join([]string{
		`K\s*\[\s*세븐스\s*\]`,
		`K\s*세븐스`,
		`B\s*세븐스`,
		`A\s*세븐스프리미엄`,
		`더그라피`,
		`세컨플로우`,
	}, "|"))
	albumRegex       = regexp.MustCompile(`(?i)기본\s*\d{2,3}P|\d{2,3}P`)
	basicAlbumRegex  = regexp.MustCompile(`(?i)기본\s*(\d{2,3}P)`)
	bracketOnlyRegex = regexp.MustCompile(`^[\[\]\s]*$`)
)

// photographerExcluded are 2–4 syllable memo keywords that look like names.
var photographerExcluded = map[string]bool{
	"폐백없음": true, "폐백있음": true, "폐백진행": true, "폐백제외": true,
	"폐백미정": true, "폐백생략": true, "선촬영": true, "홀스냅": true,
	"주례없음": true, "주례있음": true, "플래시컷": true, "플라워샤워": true,
}

var venueReplacer = strings.NewReplacer("더블유", "센텀", "그랜드 블랑", "그랜드블랑")

// ExtractDate returns the first YYYY.MM.DD found anywhere in line, or "".
func ExtractDate(line string) string {
	return dateRegex.FindString(strings.TrimSpace(line))
}

// IsValidDate reports whether line contains a YYYY.MM.DD date.
func IsValidDate(line string) bool {
	return ExtractDate(line) != ""
}

// IsValidTime reports whether line is exactly HH:MM.
func IsValidTime(line string) bool {
	return exactTimeRegex.MatchString(strings.TrimSpace(line))
}

// IsValidCouple reports whether line looks like the couple line of a
// booking: no digits and one of
//   - one Hangul name of 2–10 syllables,
//   - two names of at most 10 characters each,
//   - three Hangul parts where a single-syllable given name was split off
//     either name ("배승희 윤 정", "이 준 이주연"),
//   - four or more Hangul syllables typed without a space.
func IsValidCouple(line string) bool {
	line = strings.TrimSpace(line)
	if strings.IndexFunc(line, unicode.IsDigit) >= 0 {
		return false
	}

	parts := strings.Fields(line)
	switch len(parts) {
	case 1:
		n := utf8.RuneCountInString(parts[0])
		return n >= 2 && n <= 10 && isHangul(parts[0]) || n >= 4 && isHangul(line)
	case 2:
		return utf8.RuneCountInString(parts[0]) <= 10 && utf8.RuneCountInString(parts[1]) <= 10
	case 3:
		if !hangulWordsRegex.MatchString(line) {
			return false
		}
		return splitGivenName(parts) != ""
	default:
		return false
	}
}

// splitGivenName rejoins a single-syllable given name that was typed with an
// inner space, returning "" when parts do not have that shape.
func splitGivenName(parts []string) string {
	one := func(s string) bool { return utf8.RuneCountInString(s) == 1 }
	switch {
	case one(parts[1]) && one(parts[2]):
		return parts[0] + " " + parts[1] + parts[2]
	case one(parts[0]) && one(parts[1]):
		return parts[0] + parts[1] + " " + parts[2]
	default:
		return ""
	}
}

// SeparateCoupleNames normalizes a couple line to "groom bride":
// "배승희 윤 정" becomes "배승희 윤정", "이 준 이주연" becomes "이준 이주연",
// and names typed without a space ("오세준이지선") are split, preferring a
// three-syllable first name. Anything else is returned trimmed.
func SeparateCoupleNames(couple string) string {
	couple = strings.TrimSpace(couple)

	if hangulWordsRegex.MatchString(couple) {
		if joined := splitGivenName(strings.Fields(couple)); joined != "" {
			return joined
		}
	}

	if strings.Contains(couple, " ") {
		return couple
	}

	runes := []rune(couple)
	if len(runes) < 4 || !isHangul(couple) {
		return couple
	}
	if len(runes) == 6 {
		return string(runes[:3]) + " " + string(runes[3:])
	}

	var splits []int
	if len(runes) >= 5 {
		splits = append(splits, 3)
	}
	splits = append(splits, 2)

	for _, at := range splits {
		first, second := len(runes[:at]), len(runes[at:])
		if first >= 2 && first <= 4 && second >= 2 && second <= 4 {
			return string(runes[:at]) + " " + string(runes[at:])
		}
	}
	return couple
}

// IsValidPhotographerName reports whether name is a 2–4 syllable Hangul
// name that is not a known memo keyword.
func IsValidPhotographerName(name string) bool {
	name = strings.TrimSpace(name)
	if photographerExcluded[name] {
		return false
	}
	return hangulNameRegex.MatchString(name)
}

// photographerCandidate strips a phone number, parenthesized roles such as
// "(메인)" and invisible direction marks from line.
func photographerCandidate(line string) string {
	name := strings.TrimSpace(phoneRegex.ReplaceAllString(line, ""))
	name = strings.TrimSpace(parentheticalRegex.ReplaceAllString(name, ""))
	return strings.TrimSpace(invisibleRegex.ReplaceAllString(name, ""))
}

// ParseContact finds a 010 mobile number in line and formats it as
// 010-XXXX-XXXX. It returns "" when there is none.
func ParseContact(line string) string {
	m := phoneRegex.FindString(line)
	if m == "" {
		return ""
	}
	digits := nonDigitRegex.ReplaceAllString(m, "")
	if len(digits) == 11 && strings.HasPrefix(digits, "010") {
		return digits[:3] + "-" + digits[3:7] + "-" + digits[7:]
	}
	return m
}

// CleanLocation removes parenthesized notes, "단독"/"단독홀" and a trailing
// "홀", then applies the venue name standardizations.
//
//	CleanLocation("그랜드 블랑홀(17층)") == "그랜드블랑"
func CleanLocation(location string) string {
	if location == "" {
		return location
	}
	location = strings.TrimSpace(parentheticalRegex.ReplaceAllString(location, ""))
	location = strings.TrimSpace(exclusiveHallRegex.ReplaceAllString(location, ""))
	if strings.HasSuffix(location, "홀") {
		location = strings.TrimSpace(strings.TrimSuffix(location, "홀"))
	}
	return strings.TrimSpace(venueReplacer.Replace(location))
}

// StandardizeManager applies the venue spelling fix used for contractor
// names ("그랜드 블랑" → "그랜드블랑").
func StandardizeManager(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(name), "그랜드 블랑", "그랜드블랑")
}

// MatchesBrand reports whether line mentions a known package brand.
func MatchesBrand(line string) bool {
	return brandRegex.MatchString(line)
}

// ParseBrandAlbum extracts the package brand and album from line using
// DefaultAlbum for the implicit cases.
func ParseBrandAlbum(line string) (brand, album string) {
	return parseBrandAlbum(line, DefaultAlbum)
}

// parseBrandAlbum extracts brand and album from line. Brackets are stripped
// from the brand and whitespace is collapsed; the album is upper-cased with
// "기본 30P" tightened to "기본30P". A bare "기본", or a brand alone on the
// line, implies defaultAlbum.
func parseBrandAlbum(line, defaultAlbum string) (brand, album string) {
	brandMatch := brandRegex.FindString(line)
	if brandMatch != "" {
		brand = strings.NewReplacer("[", "", "]", "").Replace(brandMatch)
		brand = whitespaceRegex.ReplaceAllString(strings.TrimSpace(brand), " ")
	}

	if m := albumRegex.FindString(line); m != "" {
		album = whitespaceRegex.ReplaceAllString(strings.ToUpper(m), " ")
		if strings.Contains(album, "기본") {
			album = basicAlbumRegex.ReplaceAllString(album, "기본$1")
		}
	}

	if album == "" && strings.Contains(line, "기본") {
		album = defaultAlbum
	}

	if brand != "" && album == "" {
		rest := strings.TrimSpace(strings.ReplaceAll(line, brandMatch, ""))
		if rest == "" || bracketOnlyRegex.MatchString(rest) {
			album = defaultAlbum
		}
	}

	return brand, album
}

func isHangul(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '가' || r > '힣' {
			return false
		}
	}
	return true
}
