package transcript

import (
	"strings"
)

// Segment splits a chat transcript into speaker turns. A line carrying the
// format's speaker prefix opens a new block; following unprefixed lines are
// continuation lines of the same message. Compact transcripts have no
// speakers and yield nil. Unknown transcripts are read with the desktop
// grammar.
func Segment(text string, format Format) []Block {
	switch format {
	case FormatCompact:
		return nil
	case FormatMobile:
		return segmentWith(text, matchMobile)
	default:
		return segmentWith(text, matchDesktop)
	}
}

// Speakers returns the distinct speakers of blocks in first-seen order.
func Speakers(blocks []Block) []string {
	seen := make(map[string]bool)
	speakers := make([]string, 0)
	for _, b := range blocks {
		if !seen[b.Speaker] {
			seen[b.Speaker] = true
			speakers = append(speakers, b.Speaker)
		}
	}
	return speakers
}

// prefixMatcher reports whether line opens a new turn, returning the
// speaker and the message text that follows the prefix.
type prefixMatcher func(line string) (speaker, content string, ok bool)

func matchDesktop(line string) (string, string, bool) {
	loc := desktopLineRegex.FindStringSubmatchIndex(line)
	if loc == nil {
		return "", "", false
	}
	speaker := line[loc[2]:loc[3]]
	return speaker, strings.TrimSpace(line[loc[1]:]), true
}

func matchMobile(line string) (string, string, bool) {
	m := mobileLineRegex.FindStringSubmatch(line)
	if m == nil {
		return "", "", false
	}
	return strings.TrimSpace(m[2]), strings.TrimSpace(m[3]), true
}

func segmentWith(text string, match prefixMatcher) []Block {
	var (
		blocks  []Block
		current *Block
	)

	flush := func() {
		if current != nil && current.Speaker != "" && len(current.Lines) > 0 {
			blocks = append(blocks, *current)
		}
	}

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if speaker, content, ok := match(line); ok {
			flush()
			current = &Block{Speaker: speaker, Lines: make([]string, 0, 4)}
			if content != "" {
				current.Lines = append(current.Lines, content)
			}
			continue
		}

		// Lines before the first prefix have no speaker and are dropped.
		if current != nil {
			current.Lines = append(current.Lines, line)
		}
	}
	flush()

	return blocks
}
