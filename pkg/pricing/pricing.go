// Package pricing computes the per-shoot rate of a booking from its package
// brand, album size and shoot date.
//
// Rates changed on CutoverDate. Shoots on or after that date use the new
// table; earlier shoots keep the old one. Album page count only matters for
// the 더그라피 and 세컨플로우 families.
package pricing

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the canonical booking date layout (YYYY.MM.DD).
const DateLayout = "2006.01.02"

// DefaultAlbumPages is assumed when the album carries no page count.
const DefaultAlbumPages = 30

// CutoverDate is the first shoot date priced with the new table.
var CutoverDate = time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC)

var albumPagesRegex = regexp.MustCompile(`(\d+)[Pp]`)

// Family identifies a brand price family.
type Family string

const (
	FamilyUnknown        Family = ""
	FamilyKSevens        Family = "k세븐스"
	FamilyBSevens        Family = "b세븐스"
	FamilyASevensPremium Family = "a세븐스프리미엄"
	FamilyGraphy         Family = "더그라피"
	FamilySecondFlow     Family = "세컨플로우"
)

// family is one row of the price table. Keys are matched as substrings of
// the normalized brand, in table order.
type family struct {
	id    Family
	keys  []string
	price func(pages int, afterCutover bool) int
}

func kSevensPrice(afterCutover bool) int {
	if afterCutover {
		return 140000
	}
	return 150000
}

func tieredAlbumPrice(pages int, afterCutover bool) int {
	switch {
	case pages <= 30:
		return 170000
	case pages <= 40:
		if afterCutover {
			return 190000
		}
		return 200000
	case pages >= 50:
		if afterCutover {
			return 240000
		}
		return 250000
	default:
		return 170000
	}
}

var families = []family{
	{
		id:   FamilyKSevens,
		keys: []string{"k세븐스"},
		price: func(_ int, after bool) int {
			return kSevensPrice(after)
		},
	},
	{
		id:   FamilyBSevens,
		keys: []string{"b세븐스"},
		price: func(_ int, after bool) int {
			return kSevensPrice(after) + 20000
		},
	},
	{
		id:   FamilyASevensPremium,
		keys: []string{"a세븐스프리미엄"},
		price: func(int, bool) int {
			return 190000
		},
	},
	{
		id:    FamilyGraphy,
		keys:  []string{"더그라피"},
		price: tieredAlbumPrice,
	},
	{
		id:    FamilySecondFlow,
		keys:  []string{"세컨플로우"},
		price: tieredAlbumPrice,
	},
}

// Quote is a computed price with the inputs it was derived from.
type Quote struct {
	Brand        string `json:"brand" yaml:"brand"`
	Album        string `json:"album" yaml:"album"`
	Date         string `json:"date" yaml:"date"`
	Family       Family `json:"family" yaml:"family"`
	AlbumPages   int    `json:"album_pages" yaml:"album_pages"`
	AfterCutover bool   `json:"after_cutover" yaml:"after_cutover"`
	Price        int    `json:"price" yaml:"price"`
}

// Calculate returns the shoot rate for brand, album and date. An unknown
// brand or an unparseable date yields 0.
func Calculate(brand, album, date string) int {
	return Explain(brand, album, date).Price
}

// Explain is Calculate with the intermediate decisions exposed.
func Explain(brand, album, date string) Quote {
	q := Quote{
		Brand:      brand,
		Album:      album,
		Date:       date,
		AlbumPages: AlbumPages(album),
	}

	shootDate, err := time.Parse(DateLayout, strings.TrimSpace(date))
	if err != nil {
		return q
	}
	q.AfterCutover = !shootDate.Before(CutoverDate)

	f, ok := lookupFamily(NormalizeBrand(brand))
	if !ok {
		return q
	}
	q.Family = f.id
	q.Price = f.price(q.AlbumPages, q.AfterCutover)
	return q
}

// NormalizeBrand lowercases brand and removes spaces and square brackets,
// so "K [ 세븐스 ]" and "k세븐스" compare equal.
func NormalizeBrand(brand string) string {
	brand = strings.ToLower(brand)
	return strings.NewReplacer(" ", "", "[", "", "]", "").Replace(brand)
}

// AlbumPages reads the page count from an album label such as "기본30P" or
// "40p", defaulting to DefaultAlbumPages.
func AlbumPages(album string) int {
	m := albumPagesRegex.FindStringSubmatch(album)
	if m == nil {
		return DefaultAlbumPages
	}
	pages, err := strconv.Atoi(m[1])
	if err != nil {
		return DefaultAlbumPages
	}
	return pages
}

func lookupFamily(normalized string) (family, bool) {
	for _, f := range families {
		for _, key := range f.keys {
			if strings.Contains(normalized, key) {
				return f, true
			}
		}
	}
	return family{}, false
}
