package schedule

import (
	"strings"

	"github.com/dwander/schedule-parser-v2/pkg/ingest/transcript"
)

// DefaultManager is the speaker label assumed when no speaker writes
// booking-shaped lines.
const DefaultManager = "KPAG(업무용)"

var venueKeywords = []string{"홀", "층", "컨벤션", "웨딩", "더"}

// managerRule scores one line of a speaker turn.
type managerRule struct {
	name   string
	weight int
	match  func(line string) bool
}

// managerRules are evaluated in order per line; the first match wins.
var managerRules = []managerRule{
	{name: "date", weight: 3, match: exactDateRegex.MatchString},
	{name: "time", weight: 2, match: exactTimeRegex.MatchString},
	{name: "brand", weight: 2, match: MatchesBrand},
	{name: "venue", weight: 1, match: func(line string) bool {
		for _, kw := range venueKeywords {
			if strings.Contains(line, kw) {
				return true
			}
		}
		return false
	}},
}

// SpeakerScore is one speaker's accumulated manager score.
type SpeakerScore struct {
	Speaker string `json:"speaker"`
	Score   int    `json:"score"`
}

// ManagerResult is the outcome of manager identification.
type ManagerResult struct {
	Speaker  string         `json:"speaker"`
	Score    int            `json:"score"`
	Fallback bool           `json:"fallback"`
	Scores   []SpeakerScore `json:"scores,omitempty"`
}

// IdentifyManager picks the speaker whose turns look most like booking
// blocks. Speakers are ranked by total rule weight over their lines; the
// first-seen speaker wins a tie. When nobody scores, fallback is returned
// with Fallback set.
func IdentifyManager(blocks []transcript.Block, fallback string) ManagerResult {
	if fallback == "" {
		fallback = DefaultManager
	}

	var scores []SpeakerScore
	index := make(map[string]int)

	for _, b := range blocks {
		i, ok := index[b.Speaker]
		if !ok {
			i = len(scores)
			index[b.Speaker] = i
			scores = append(scores, SpeakerScore{Speaker: b.Speaker})
		}
		for _, line := range b.Lines {
			scores[i].Score += scoreManagerLine(strings.TrimSpace(line))
		}
	}

	var ranked []SpeakerScore
	for _, s := range scores {
		if s.Score > 0 {
			ranked = append(ranked, s)
		}
	}
	if len(ranked) == 0 {
		return ManagerResult{Speaker: fallback, Fallback: true}
	}

	best := ranked[0]
	for _, s := range ranked[1:] {
		if s.Score > best.Score {
			best = s
		}
	}
	return ManagerResult{Speaker: best.Speaker, Score: best.Score, Scores: ranked}
}

func scoreManagerLine(line string) int {
	for _, r := range managerRules {
		if r.match(line) {
			return r.weight
		}
	}
	return 0
}
