package ai

import (
	"context"
	"encoding/json"
	"time"

	apperrors "github.com/johnquangdev/meeting-minutes/errors"
)

// SpeakerSegment is a diarized time range on the wire
type SpeakerSegment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
}

// DiarizationInput is the diarization job payload
type DiarizationInput struct {
	Task     string `json:"task"`
	AudioURL string `json:"audio_url"`
	Model    string `json:"model,omitempty"`
}

// DiarizationOutput is the terminal diarization result
type DiarizationOutput struct {
	Segments []SpeakerSegment `json:"segments"`
	Error    string           `json:"error,omitempty"`
}

// DiarizationClient runs speaker diarization as an asynchronous job
type DiarizationClient struct {
	jobs  *JobClient
	model string
}

// NewDiarizationClient wraps a job client bound to a diarization backend
func NewDiarizationClient(jobs *JobClient, model string) *DiarizationClient {
	return &DiarizationClient{jobs: jobs, model: model}
}

// Submit starts diarization of audioURL and returns the remote job id
func (c *DiarizationClient) Submit(ctx context.Context, audioURL string) (string, error) {
	return c.jobs.Submit(ctx, DiarizationInput{
		Task:     "diarization",
		AudioURL: audioURL,
		Model:    c.model,
	})
}

// Await waits for a diarization job and decodes its segments
func (c *DiarizationClient) Await(ctx context.Context, jobID string, maxWait time.Duration) ([]SpeakerSegment, error) {
	raw, err := c.jobs.AwaitResult(ctx, jobID, maxWait)
	if err != nil {
		return nil, err
	}

	var out DiarizationOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &apperrors.FailureError{Service: c.jobs.Service(), JobID: jobID, Message: "unreadable diarization output: " + err.Error()}
	}
	if out.Error != "" {
		return nil, &apperrors.FailureError{Service: c.jobs.Service(), JobID: jobID, Message: out.Error}
	}
	return out.Segments, nil
}
