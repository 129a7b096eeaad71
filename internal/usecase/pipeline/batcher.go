package pipeline

import (
	"math"
	"strings"

	apperrors "github.com/johnquangdev/meeting-minutes/errors"
	"github.com/johnquangdev/meeting-minutes/internal/domain/entities"
)

// Batch is a size-bounded group of consecutive segments. Index is the batch's
// position in the original order.
type Batch struct {
	Index    int
	Segments []entities.Segment
}

// BatchResult is the transcription of one batch, one text per input segment
type BatchResult struct {
	Batch Batch
	Texts []string
}

// SizeEstimator estimates the provider-side input size of one segment
type SizeEstimator func(entities.Segment) int

// DurationEstimator estimates size from audio duration (tokens per second of audio)
func DurationEstimator(tokensPerSecond int) SizeEstimator {
	return func(s entities.Segment) int {
		return EstimateTokens(s, tokensPerSecond)
	}
}

// EstimateTokens returns the estimated token cost of transcribing s
func EstimateTokens(s entities.Segment, tokensPerSecond int) int {
	d := s.Duration()
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d * float64(tokensPerSecond)))
}

// MakeBatches greedily packs consecutive segments into batches whose estimated size
// stays within budget. A segment that alone exceeds budget forms its own batch;
// segments are never split and order is preserved.
func MakeBatches(segments []entities.Segment, budget int, estimate SizeEstimator) []Batch {
	batches := make([]Batch, 0)
	var (
		current []entities.Segment
		size    int
	)

	for _, seg := range segments {
		n := estimate(seg)
		if len(current) > 0 && size+n > budget {
			batches = append(batches, Batch{Index: len(batches), Segments: current})
			current = nil
			size = 0
		}
		current = append(current, seg)
		size += n
	}
	if len(current) > 0 {
		batches = append(batches, Batch{Index: len(batches), Segments: current})
	}
	return batches
}

// Merge concatenates batch results in batch order onto the original segments.
// Any count or order mismatch is an AssemblyError.
func Merge(results []BatchResult) ([]entities.TranscribedSegment, error) {
	total := 0
	for _, r := range results {
		total += len(r.Batch.Segments)
	}

	merged := make([]entities.TranscribedSegment, 0, total)
	for i, r := range results {
		if r.Batch.Index != i {
			return nil, apperrors.NewAssemblyError("batch %d found at position %d", r.Batch.Index, i)
		}
		if len(r.Texts) != len(r.Batch.Segments) {
			return nil, apperrors.NewAssemblyError("batch %d returned %d segments, expected %d",
				r.Batch.Index, len(r.Texts), len(r.Batch.Segments))
		}
		for j, seg := range r.Batch.Segments {
			merged = append(merged, entities.TranscribedSegment{
				Segment: seg,
				Text:    strings.TrimSpace(r.Texts[j]),
			})
		}
	}
	return merged, nil
}
