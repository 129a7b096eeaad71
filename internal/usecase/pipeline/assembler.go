package pipeline

import (
	"fmt"
	"math"
	"strings"

	"github.com/johnquangdev/meeting-minutes/internal/domain/entities"
)

// Assemble combines transcribed segments with the speaker mapping into the final
// annotated transcript. Unmapped labels pass through unchanged.
func Assemble(segments []entities.TranscribedSegment, mapping entities.SpeakerMapping) []entities.AnnotatedSegment {
	out := make([]entities.AnnotatedSegment, len(segments))
	for i, seg := range segments {
		out[i] = entities.AnnotatedSegment{
			Start:        seg.Start,
			End:          seg.End,
			Speaker:      mapping.Resolve(seg.SpeakerLabel),
			SpeakerLabel: seg.SpeakerLabel,
			Text:         seg.Text,
		}
	}
	return out
}

// FormatTimestamp renders seconds as HH:MM:SS
func FormatTimestamp(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

// FormatLine renders one transcript line as "[HH:MM:SS - HH:MM:SS] Speaker: text"
func FormatLine(seg entities.AnnotatedSegment) string {
	return fmt.Sprintf("[%s - %s] %s: %s", FormatTimestamp(seg.Start), FormatTimestamp(seg.End), seg.Speaker, seg.Text)
}

// FormatTranscript renders the whole transcript, one line per segment
func FormatTranscript(segments []entities.AnnotatedSegment) string {
	var b strings.Builder
	for i, seg := range segments {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(FormatLine(seg))
	}
	return b.String()
}
