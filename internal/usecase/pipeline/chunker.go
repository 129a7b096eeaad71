package pipeline

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/johnquangdev/meeting-minutes/internal/domain/entities"
)

// TranscriptChunk is a contiguous time range of the transcript sized for one LLM call
type TranscriptChunk struct {
	Index int
	Start float64
	End   float64
	Text  string
}

// EstimateTextTokens approximates tokens as one per four characters
func EstimateTextTokens(s string) int {
	return (utf8.RuneCountInString(s) + 3) / 4
}

// ChunkTranscript splits the transcript into time-ordered chunks of at most maxTokens
// estimated tokens. Lines are never split; an oversized line forms its own chunk.
func ChunkTranscript(segments []entities.AnnotatedSegment, maxTokens int) []TranscriptChunk {
	chunks := make([]TranscriptChunk, 0)
	var (
		lines  []string
		tokens int
		start  float64
		end    float64
	)

	flush := func() {
		if len(lines) == 0 {
			return
		}
		chunks = append(chunks, TranscriptChunk{
			Index: len(chunks),
			Start: start,
			End:   end,
			Text:  strings.Join(lines, "\n"),
		})
		lines = nil
		tokens = 0
	}

	for _, seg := range segments {
		line := FormatLine(seg)
		n := EstimateTextTokens(line) + 1
		if len(lines) > 0 && tokens+n > maxTokens {
			flush()
		}
		if len(lines) == 0 {
			start = seg.Start
		}
		lines = append(lines, line)
		tokens += n
		end = seg.End
	}
	flush()
	return chunks
}

// excerptGap marks transcript lines left out of an excerpt
const excerptGap = "[...]"

// SpeakerExcerpt returns transcript text for speaker identification. The whole
// transcript is returned when it fits in maxTokens. Otherwise the first line of every
// speaker is kept, then further lines are taken round-robin across speakers in their
// order of first appearance until the budget is spent. Kept lines stay in time order.
func SpeakerExcerpt(segments []entities.AnnotatedSegment, maxTokens int) string {
	lines := make([]string, len(segments))
	costs := make([]int, len(segments))
	total := 0
	for i, seg := range segments {
		lines[i] = FormatLine(seg)
		costs[i] = EstimateTextTokens(lines[i]) + 1
		total += costs[i]
	}
	if total <= maxTokens {
		return strings.Join(lines, "\n")
	}

	var speakers []string
	bySpeaker := make(map[string][]int)
	for i, seg := range segments {
		if _, ok := bySpeaker[seg.SpeakerLabel]; !ok {
			speakers = append(speakers, seg.SpeakerLabel)
		}
		bySpeaker[seg.SpeakerLabel] = append(bySpeaker[seg.SpeakerLabel], i)
	}

	keep := make([]bool, len(segments))
	used := 0
	for _, s := range speakers {
		i := bySpeaker[s][0]
		keep[i] = true
		used += costs[i]
	}

fill:
	for round := 1; ; round++ {
		added := false
		for _, s := range speakers {
			idx := bySpeaker[s]
			if round >= len(idx) {
				continue
			}
			i := idx[round]
			if used+costs[i] > maxTokens {
				break fill
			}
			keep[i] = true
			used += costs[i]
			added = true
		}
		if !added {
			break
		}
	}

	out := make([]string, 0, len(segments))
	for i, line := range lines {
		switch {
		case keep[i]:
			out = append(out, line)
		case len(out) == 0 || out[len(out)-1] != excerptGap:
			out = append(out, excerptGap)
		}
	}
	return strings.Join(out, "\n")
}

// MergeReports concatenates per-chunk report sections in chunk order
func MergeReports(sections []string) string {
	parts := make([]string, 0, len(sections))
	for _, s := range sections {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}

// MergeDecisions unions per-chunk decision lists in chunk order. Decisions with the
// same normalized text are one decision: a missing proposer is filled from the
// duplicate and a definitive outcome (adopted/rejected) replaces a deferred one or an
// earlier definitive one.
func MergeDecisions(chunks [][]entities.Decision) []entities.Decision {
	merged := make([]entities.Decision, 0)
	index := make(map[string]int)

	for _, decisions := range chunks {
		for _, d := range decisions {
			key := decisionKey(d.Text)
			if key == "" {
				continue
			}
			i, seen := index[key]
			if !seen {
				index[key] = len(merged)
				merged = append(merged, d)
				continue
			}

			existing := &merged[i]
			if existing.Proposer == "" {
				existing.Proposer = d.Proposer
			}
			if d.Outcome != entities.OutcomeDeferred && d.Outcome != "" {
				existing.Outcome = d.Outcome
			}
			if existing.Timestamp == "" {
				existing.Timestamp = d.Timestamp
			}
		}
	}
	return merged
}

// decisionKey lowercases and strips punctuation and repeated whitespace
func decisionKey(text string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		default:
			space = true
		}
	}
	return b.String()
}
