package schedule

// scoreRule awards weight when a record field is present and well formed.
type scoreRule struct {
	field  string
	weight int
	has    func(r Record) bool
}

// scoreRules are summed by Score. Core fields outweigh business fields,
// which outweigh contact and memo.
var scoreRules = []scoreRule{
	{"date", 10, func(r Record) bool { return IsValidDate(r.Date) }},
	{"location", 5, func(r Record) bool { return r.Location != "" }},
	{"time", 10, func(r Record) bool { return IsValidTime(r.Time) }},
	{"couple", 10, func(r Record) bool { return r.Couple != "" && IsValidCouple(r.Couple) }},
	{"brand", 8, func(r Record) bool { return r.Brand != "" }},
	{"album", 8, func(r Record) bool { return r.Album != "" }},
	{"photographer", 8, func(r Record) bool { return r.Photographer != "" }},
	{"manager", 8, func(r Record) bool { return r.Manager != "" }},
	{"contact", 5, func(r Record) bool { return ParseContact(r.Contact) != "" }},
	{"memo", 2, func(r Record) bool { return r.Memo != "" }},
}

// Score is the completeness of r: the summed weight of its populated
// fields.
func Score(r Record) int {
	total := 0
	for _, rule := range scoreRules {
		if rule.has(r) {
			total += rule.weight
		}
	}
	return total
}

// Better reports whether incoming should replace existing for the same key.
// The higher score wins; on a tie a record that needs no review wins; when
// that ties too the incoming record wins.
func Better(existing, incoming Record) bool {
	es, is := Score(existing), Score(incoming)
	if is != es {
		return is > es
	}
	if existing.NeedsReview != incoming.NeedsReview {
		return !incoming.NeedsReview
	}
	return true
}

// Merger deduplicates records by Key, keeping the Better candidate and the
// order in which keys were first seen. The zero value is ready to use.
type Merger struct {
	order   []string
	records map[string]Record
}

// Add offers r to the merger. Records with neither date nor time are
// ignored.
func (m *Merger) Add(r Record) {
	if !r.emittable() {
		return
	}
	if m.records == nil {
		m.records = make(map[string]Record)
	}
	key := r.Key()
	existing, ok := m.records[key]
	if !ok {
		m.order = append(m.order, key)
		m.records[key] = r
		return
	}
	if Better(existing, r) {
		m.records[key] = r
	}
}

// AddAll offers every record in rs, in order.
func (m *Merger) AddAll(rs []Record) {
	for _, r := range rs {
		m.Add(r)
	}
}

// Len returns the number of distinct keys.
func (m *Merger) Len() int {
	return len(m.order)
}

// Records returns the merged records in first-seen key order.
func (m *Merger) Records() []Record {
	out := make([]Record, 0, len(m.order))
	for _, key := range m.order {
		out = append(out, m.records[key])
	}
	return out
}
