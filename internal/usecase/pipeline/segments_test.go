package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/johnquangdev/meeting-minutes/errors"
	"github.com/johnquangdev/meeting-minutes/internal/domain/entities"
	"github.com/johnquangdev/meeting-minutes/pkg/ai"
)

func TestMergeConsecutiveSegments(t *testing.T) {
	segments := []entities.Segment{
		{Start: 0, End: 4, SpeakerLabel: "A"},
		{Start: 6, End: 10, SpeakerLabel: "A"},
		{Start: 20, End: 25, SpeakerLabel: "A"},
		{Start: 25, End: 30, SpeakerLabel: "B"},
		{Start: 31, End: 33, SpeakerLabel: "A"},
	}

	merged := MergeConsecutiveSegments(segments, 5)

	assert.Equal(t, []entities.Segment{
		{Start: 0, End: 10, SpeakerLabel: "A"},
		{Start: 20, End: 25, SpeakerLabel: "A"},
		{Start: 25, End: 30, SpeakerLabel: "B"},
		{Start: 31, End: 33, SpeakerLabel: "A"},
	}, merged)
}

func TestMergeConsecutiveSegmentsDisabled(t *testing.T) {
	segments := []entities.Segment{
		{Start: 0, End: 4, SpeakerLabel: "A"},
		{Start: 4, End: 8, SpeakerLabel: "A"},
	}

	merged := MergeConsecutiveSegments(segments, 0)
	assert.Equal(t, segments, merged)

	merged[0].End = 99
	assert.Equal(t, 4.0, segments[0].End, "result must not alias the input")
}

func TestNormalizeDiarizationSortsSegments(t *testing.T) {
	segments, err := normalizeDiarization("diarization", []ai.SpeakerSegment{
		{Start: 5, End: 9, Speaker: "SPEAKER_01"},
		{Start: 0, End: 5, Speaker: "SPEAKER_00"},
	})

	require.NoError(t, err)
	assert.Equal(t, []entities.Segment{
		{Start: 0, End: 5, SpeakerLabel: "SPEAKER_00"},
		{Start: 5, End: 9, SpeakerLabel: "SPEAKER_01"},
	}, segments)
	assert.Zero(t, countOverlaps(segments))
}

func TestNormalizeDiarizationRejectsEmptySegments(t *testing.T) {
	_, err := normalizeDiarization("diarization", []ai.SpeakerSegment{
		{Start: 0, End: 5, Speaker: "SPEAKER_00"},
		{Start: 7, End: 7, Speaker: "SPEAKER_01"},
	})

	var failure *apperrors.FailureError
	require.ErrorAs(t, err, &failure)
	assert.Contains(t, failure.Message, "invalid segment 1")
}

func TestCountOverlaps(t *testing.T) {
	assert.Equal(t, 1, countOverlaps([]entities.Segment{
		{Start: 0, End: 5},
		{Start: 4, End: 8},
		{Start: 8, End: 9},
	}))
}
