package pipeline

import (
	"fmt"

	apperrors "github.com/johnquangdev/meeting-minutes/errors"
	"github.com/johnquangdev/meeting-minutes/internal/domain/entities"
	"github.com/johnquangdev/meeting-minutes/pkg/ai"
)

// MergeConsecutiveSegments joins adjacent segments of the same speaker separated by at
// most maxGap seconds. maxGap <= 0 disables merging.
func MergeConsecutiveSegments(segments []entities.Segment, maxGap float64) []entities.Segment {
	if maxGap <= 0 || len(segments) < 2 {
		return append([]entities.Segment(nil), segments...)
	}

	merged := make([]entities.Segment, 0, len(segments))
	current := segments[0]
	for _, next := range segments[1:] {
		if next.SpeakerLabel == current.SpeakerLabel && next.Start-current.End <= maxGap {
			if next.End > current.End {
				current.End = next.End
			}
			continue
		}
		merged = append(merged, current)
		current = next
	}
	return append(merged, current)
}

// normalizeDiarization converts provider segments to domain segments, sorted by start.
// A segment with start >= end means the provider output is unusable.
func normalizeDiarization(service string, raw []ai.SpeakerSegment) ([]entities.Segment, error) {
	segments := make([]entities.Segment, 0, len(raw))
	for i, r := range raw {
		seg := entities.Segment{Start: r.Start, End: r.End, SpeakerLabel: r.Speaker}
		if err := seg.Validate(); err != nil {
			return nil, &apperrors.FailureError{Service: service, Message: fmt.Sprintf("invalid segment %d: %v", i, err)}
		}
		segments = append(segments, seg)
	}
	entities.SortSegments(segments)
	return segments, nil
}

// countOverlaps counts segments starting before the previous one ended
func countOverlaps(segments []entities.Segment) int {
	n := 0
	for i := 1; i < len(segments); i++ {
		if segments[i].Start < segments[i-1].End {
			n++
		}
	}
	return n
}

func toWireSegments(segments []entities.Segment) []ai.SpeakerSegment {
	out := make([]ai.SpeakerSegment, len(segments))
	for i, s := range segments {
		out[i] = ai.SpeakerSegment{Start: s.Start, End: s.End, Speaker: s.SpeakerLabel}
	}
	return out
}
