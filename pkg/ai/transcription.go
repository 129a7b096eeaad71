package ai

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/johnquangdev/meeting-minutes/errors"
)

// TranscriptionInput is the per-batch transcription job payload
type TranscriptionInput struct {
	Task        string           `json:"task"`
	AudioURL    string           `json:"audio_url"`
	Segments    []SpeakerSegment `json:"segments"`
	Model       string           `json:"model"`
	Prompt      string           `json:"prompt"`
	Temperature float64          `json:"temperature"`
}

// SegmentText is one transcribed segment on the wire
type SegmentText struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
	Text    string  `json:"text"`
}

// TranscriptionOutput is the terminal transcription result
type TranscriptionOutput struct {
	Transcriptions []SegmentText `json:"transcriptions"`
	Error          string        `json:"error,omitempty"`
}

// TranscriptionSettings are sent with every batch. MaxWait bounds each batch job.
type TranscriptionSettings struct {
	Model       string
	Prompt      string
	Temperature float64
	MaxWait     time.Duration
}

// TranscriptionClient transcribes segment batches
type TranscriptionClient struct {
	jobs     *JobClient
	settings TranscriptionSettings
	logger   *zap.Logger
}

// NewTranscriptionClient creates a client
func NewTranscriptionClient(jobs *JobClient, settings TranscriptionSettings, logger *zap.Logger) *TranscriptionClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TranscriptionClient{
		jobs:     jobs,
		settings: settings,
		logger:   logger,
	}
}

// TranscribeBatch submits one batch and waits for its transcriptions. The response is
// returned as the provider sent it; count checks belong to the caller.
func (c *TranscriptionClient) TranscribeBatch(ctx context.Context, audioURL string, segments []SpeakerSegment) ([]SegmentText, error) {
	jobID, err := c.jobs.Submit(ctx, TranscriptionInput{
		Task:        "transcription",
		AudioURL:    audioURL,
		Segments:    segments,
		Model:       c.settings.Model,
		Prompt:      c.settings.Prompt,
		Temperature: c.settings.Temperature,
	})
	if err != nil {
		return nil, err
	}

	raw, err := c.jobs.AwaitResult(ctx, jobID, c.settings.MaxWait)
	if err != nil {
		return nil, err
	}

	var out TranscriptionOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &apperrors.FailureError{Service: c.jobs.Service(), JobID: jobID, Message: "unreadable transcription output: " + err.Error()}
	}
	if out.Error != "" {
		return nil, &apperrors.FailureError{Service: c.jobs.Service(), JobID: jobID, Message: out.Error}
	}

	c.logger.Debug("batch transcribed",
		zap.String("remote_job_id", jobID),
		zap.Int("segments_in", len(segments)),
		zap.Int("segments_out", len(out.Transcriptions)),
	)
	return out.Transcriptions, nil
}
