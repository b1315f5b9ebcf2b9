package schedule

import (
	"strings"

	"github.com/dwander/schedule-parser-v2/pkg/pricing"
)

// coreLines is the number of lines every booking span starts with: date,
// venue, time and couple.
const coreLines = 4

// ExtractBlock runs the subtractive block parser over one manager turn (or
// any text in the manager grammar). Each YYYY.MM.DD line opens a booking
// span. A span whose first four lines are not a valid date, venue, time
// and couple is dropped.
//
// When text has no date line at all and opts.Flexible is set, the whole
// text is handed to ExtractFlexible instead.
func ExtractBlock(text string, opts ExtractOptions) []Record {
	opts = opts.withDefaults()
	lines := blockLines(text)

	var starts []int
	for i, line := range lines {
		if d := ExtractDate(line); d != "" {
			starts = append(starts, i)
			lines[i] = d
		}
	}

	if len(starts) == 0 {
		if !opts.Flexible {
			return nil
		}
		if r, ok := ExtractFlexible(text, opts); ok {
			return []Record{r}
		}
		return nil
	}

	var records []Record
	for i, start := range starts {
		end := len(lines)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		if r, ok := extractSpan(lines[start:end], opts); ok {
			records = append(records, r)
		}
	}
	return records
}

func blockLines(text string) []string {
	var lines []string
	for _, raw := range strings.Split(text, "\n") {
		if strings.HasPrefix(raw, "---") {
			continue
		}
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

func extractSpan(span []string, opts ExtractOptions) (Record, bool) {
	if len(span) < coreLines {
		return Record{}, false
	}
	date, venue, hhmm, couple := span[0], span[1], span[2], span[3]
	if !IsValidDate(date) || venue == "" || !IsValidTime(hhmm) || !IsValidCouple(couple) {
		return Record{}, false
	}

	r := Record{
		Date:     date,
		Location: CleanLocation(venue),
		Time:     hhmm,
		Couple:   SeparateCoupleNames(couple),
	}

	rest := newLineSet(span[coreLines:])
	takeManager(rest, &r)
	takeContact(rest, &r)
	takeBrandAlbum(rest, &r, opts.DefaultAlbum)
	takePhotographers(rest, &r)
	collectMemo(rest, &r)

	flagMissingBusinessFields(&r)

	if r.Brand != "" && r.Album != "" && r.Date != "" {
		r.Price = pricing.Calculate(r.Brand, r.Album, r.Date)
	}
	return r, true
}

// lineSet is the remainder of one booking span. Each extraction step claims
// the lines it consumed so later steps never see them.
type lineSet struct {
	lines   []string
	claimed []bool
}

func newLineSet(lines []string) *lineSet {
	return &lineSet{lines: lines, claimed: make([]bool, len(lines))}
}

func (s *lineSet) claim(i int) {
	s.claimed[i] = true
}

// unclaimed returns the indexes not yet consumed, in line order.
func (s *lineSet) unclaimed() []int {
	var idx []int
	for i := range s.lines {
		if !s.claimed[i] {
			idx = append(idx, i)
		}
	}
	return idx
}

// takeManager claims the last line as the contracting manager.
func takeManager(s *lineSet, r *Record) {
	idx := s.unclaimed()
	if len(idx) == 0 {
		return
	}
	last := idx[len(idx)-1]
	r.Manager = StandardizeManager(s.lines[last])
	s.claim(last)
}

// takeContact claims the first remaining line when it holds a phone number.
// Numbers further down are left for the memo.
func takeContact(s *lineSet, r *Record) {
	idx := s.unclaimed()
	if len(idx) == 0 {
		return
	}
	if contact := ParseContact(s.lines[idx[0]]); contact != "" {
		r.Contact = contact
		s.claim(idx[0])
	}
}

// takeBrandAlbum claims every line naming a brand or an album. A later line
// overrides an earlier one field by field.
func takeBrandAlbum(s *lineSet, r *Record, defaultAlbum string) {
	for _, i := range s.unclaimed() {
		brand, album := parseBrandAlbum(s.lines[i], defaultAlbum)
		if brand == "" && album == "" {
			continue
		}
		if brand != "" {
			r.Brand = brand
		}
		if album != "" {
			r.Album = album
		}
		s.claim(i)
	}
}

// takePhotographers claims every line that reduces to a photographer name.
// A name pairs with the next remaining line when that is a name too
// ("안현우" / "김민수(서브)" gives "안현우, 김민수"). Any later name or pair
// replaces the earlier one.
func takePhotographers(s *lineSet, r *Record) {
	idx := s.unclaimed()
	for k := 0; k < len(idx); k++ {
		name := photographerCandidate(s.lines[idx[k]])
		if !IsValidPhotographerName(name) {
			continue
		}
		s.claim(idx[k])
		r.Photographer = name

		if k+1 < len(idx) {
			next := photographerCandidate(s.lines[idx[k+1]])
			if IsValidPhotographerName(next) {
				s.claim(idx[k+1])
				r.Photographer = name + ", " + next
				k++
			}
		}
	}
}

// collectMemo keeps whatever no step consumed. A memo is intentional content,
// so it does not flag the record by itself.
func collectMemo(s *lineSet, r *Record) {
	var memo []string
	for _, i := range s.unclaimed() {
		memo = append(memo, s.lines[i])
		s.claim(i)
	}
	r.Memo = strings.TrimSpace(strings.Join(memo, "\n"))
}

func flagMissingBusinessFields(r *Record) {
	var missing []string
	if r.Brand == "" {
		missing = append(missing, labelBrand)
	}
	if r.Album == "" {
		missing = append(missing, labelAlbum)
	}
	if r.Photographer == "" {
		missing = append(missing, labelPhotographer)
	}
	if r.Manager == "" {
		missing = append(missing, labelManager)
	}
	if len(missing) > 0 {
		r.NeedsReview = true
		r.ReviewReason = reasonMissingFields + strings.Join(missing, ", ")
	}
}
