// Package schedule turns KakaoTalk transcripts exchanged between a studio
// manager and photographers into wedding-shoot booking records.
//
// A Parser detects the transcript format, picks the manager speaker, runs the
// subtractive block parser over the manager's turns (or the compact and
// flexible extractors over speakerless text) and merges the candidates by
// (date, time, couple). Malformed input never yields an error: candidates
// that fail structural checks are dropped, and incomplete ones are kept with
// NeedsReview set.
package schedule

import "strings"

// Record is one booking extracted from a transcript.
type Record struct {
	Date         string `json:"date" yaml:"date"`
	Location     string `json:"location" yaml:"location"`
	Time         string `json:"time" yaml:"time"`
	Couple       string `json:"couple" yaml:"couple"`
	Contact      string `json:"contact" yaml:"contact"`
	Brand        string `json:"brand" yaml:"brand"`
	Album        string `json:"album" yaml:"album"`
	Photographer string `json:"photographer" yaml:"photographer"`
	Manager      string `json:"manager" yaml:"manager"`
	Memo         string `json:"memo" yaml:"memo"`
	Price        int    `json:"price" yaml:"price"`
	NeedsReview  bool   `json:"needsReview" yaml:"needsReview"`
	ReviewReason string `json:"reviewReason" yaml:"reviewReason"`
}

// Key returns the deduplication key. Two records with the same key describe
// the same booking.
func (r Record) Key() string {
	return r.Date + "|" + r.Time + "|" + r.Couple
}

// HasRequired reports whether date, time, location and couple are all set.
func (r Record) HasRequired() bool {
	return r.Date != "" && r.Time != "" && r.Location != "" && r.Couple != ""
}

// MissingRequired lists which of date, time, location and couple are empty.
func (r Record) MissingRequired() []string {
	var missing []string
	if r.Date == "" {
		missing = append(missing, "date")
	}
	if r.Time == "" {
		missing = append(missing, "time")
	}
	if r.Location == "" {
		missing = append(missing, "location")
	}
	if r.Couple == "" {
		missing = append(missing, "couple")
	}
	return missing
}

// emittable reports whether r may leave the engine. A record without both
// date and time cannot be scheduled.
func (r Record) emittable() bool {
	return r.Date != "" || r.Time != ""
}

// review reason prefixes and labels
const (
	reasonMissingFields = "필수 필드 누락: "
	reasonCompact       = "간결한 형식: 브랜드, 앨범, 계약자 정보 누락"
	reasonFlexible      = "유연한 파서"
	reasonTagged        = "NLP"

	labelBrand        = "브랜드"
	labelAlbum        = "앨범"
	labelPhotographer = "작가"
	labelManager      = "계약자"
)

func joinReason(prefix string, reasons []string) string {
	if len(reasons) == 0 {
		return prefix
	}
	return prefix + ": " + strings.Join(reasons, ", ")
}
