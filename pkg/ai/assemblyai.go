package ai

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"strings"

	aai "github.com/AssemblyAI/assemblyai-go-sdk"

	apperrors "github.com/johnquangdev/meeting-minutes/errors"
)

const assemblyAIService = "assemblyai"

// AssemblyAIBackend runs diarization as an AssemblyAI transcript with speaker labels.
// Completed transcripts are reported in the diarization output shape.
type AssemblyAIBackend struct {
	client *aai.Client
}

// NewAssemblyAIBackend creates a backend for the public API
func NewAssemblyAIBackend(apiKey string) *AssemblyAIBackend {
	return &AssemblyAIBackend{client: aai.NewClient(apiKey)}
}

// NewAssemblyAIBackendWithClient wraps an existing SDK client
func NewAssemblyAIBackendWithClient(client *aai.Client) *AssemblyAIBackend {
	return &AssemblyAIBackend{client: client}
}

// Name returns the service name
func (b *AssemblyAIBackend) Name() string {
	return assemblyAIService
}

// Submit accepts a DiarizationInput and starts a speaker-labelled transcript
func (b *AssemblyAIBackend) Submit(ctx context.Context, input interface{}) (string, error) {
	in, ok := input.(DiarizationInput)
	if !ok {
		return "", &apperrors.SubmissionError{Service: assemblyAIService, Message: fmt.Sprintf("unsupported input %T", input)}
	}

	params := &aai.TranscriptOptionalParams{
		SpeakerLabels: aai.Bool(true),
	}
	transcript, err := b.client.Transcripts.SubmitFromURL(ctx, in.AudioURL, params)
	if err != nil {
		return "", b.classify(ctx, err)
	}
	return deref(transcript.ID), nil
}

// Status fetches the transcript and converts its utterances into segments
func (b *AssemblyAIBackend) Status(ctx context.Context, jobID string) (*JobState, error) {
	transcript, err := b.client.Transcripts.Get(ctx, jobID)
	if err != nil {
		return nil, b.classify(ctx, err)
	}

	state := &JobState{ID: jobID}
	switch transcript.Status {
	case aai.TranscriptStatusQueued:
		state.Status = JobStatusInQueue
	case aai.TranscriptStatusProcessing:
		state.Status = JobStatusInProgress
	case aai.TranscriptStatusError:
		state.Status = JobStatusFailed
		state.Error = deref(transcript.Error)
	case aai.TranscriptStatusCompleted:
		out := DiarizationOutput{Segments: make([]SpeakerSegment, 0, len(transcript.Utterances))}
		for _, u := range transcript.Utterances {
			if u.Start == nil || u.End == nil {
				continue
			}
			out.Segments = append(out.Segments, SpeakerSegment{
				Start:   float64(*u.Start) / 1000,
				End:     float64(*u.End) / 1000,
				Speaker: speakerLabel(deref(u.Speaker)),
			})
		}
		raw, err := json.Marshal(out)
		if err != nil {
			return nil, fmt.Errorf("encode diarization output: %w", err)
		}
		state.Status = JobStatusCompleted
		state.Output = raw
	default:
		state.Status = JobStatusInProgress
	}
	return state, nil
}

func (b *AssemblyAIBackend) classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var apiErr aai.APIError
	if stdErrors.As(err, &apiErr) {
		return classifyStatus(assemblyAIService, apiErr.Status, []byte(apiErr.Message))
	}
	return &apperrors.TransientError{Service: assemblyAIService, Message: "request failed", Err: err}
}

// speakerLabel turns AssemblyAI's "A", "B" labels into SPEAKER_A style labels
func speakerLabel(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "SPEAKER_UNKNOWN"
	}
	if strings.HasPrefix(s, "SPEAKER_") {
		return s
	}
	return "SPEAKER_" + s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
