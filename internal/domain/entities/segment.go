package entities

import (
	"fmt"
	"sort"
	"strings"
)

// Segment is one contiguous time range attributed to a single speaker
type Segment struct {
	Start        float64 `json:"start"`
	End          float64 `json:"end"`
	SpeakerLabel string  `json:"speaker"`
}

// Duration returns the segment length in seconds
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// Validate checks start < end
func (s Segment) Validate() error {
	if !(s.Start < s.End) {
		return fmt.Errorf("segment [%.3f, %.3f] has non-positive duration", s.Start, s.End)
	}
	return nil
}

// SortSegments orders segments by start time, keeping the relative order of ties
func SortSegments(segments []Segment) {
	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].Start < segments[j].Start
	})
}

// TranscribedSegment is a Segment with its transcribed text
type TranscribedSegment struct {
	Segment
	Text string `json:"text"`
}

// SpeakerMapping maps raw diarization labels (SPEAKER_00) to human names.
// It may be partial.
type SpeakerMapping map[string]string

// Resolve returns the mapped name for label, or label itself when unmapped
func (m SpeakerMapping) Resolve(label string) string {
	if name, ok := m[label]; ok {
		if name = strings.TrimSpace(name); name != "" {
			return name
		}
	}
	return label
}

// AnnotatedSegment is one line of the final transcript
type AnnotatedSegment struct {
	Start        float64 `json:"start"`
	End          float64 `json:"end"`
	Speaker      string  `json:"speaker"`
	SpeakerLabel string  `json:"speaker_label"`
	Text         string  `json:"text"`
}
