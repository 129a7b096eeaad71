package ai

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/johnquangdev/meeting-minutes/errors"
)

// RunPodBackend talks to a serverless endpoint exposing POST {base}/run and
// GET {base}/status/{id}
type RunPodBackend struct {
	service string
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewRunPodBackend creates a backend for one endpoint. service names the endpoint in
// logs and errors.
func NewRunPodBackend(service, baseURL, apiKey string, timeout time.Duration) *RunPodBackend {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RunPodBackend{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type runRequest struct {
	Input interface{} `json:"input"`
}

// Name returns the service name
func (b *RunPodBackend) Name() string {
	return b.service
}

// Submit posts input as {"input": ...} and returns the job id
func (b *RunPodBackend) Submit(ctx context.Context, input interface{}) (string, error) {
	var resp JobState
	if err := doJSON(ctx, b.client, b.service, http.MethodPost, b.baseURL+"/run", b.header(), runRequest{Input: input}, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", &apperrors.SubmissionError{Service: b.service, Message: "response carried no job id"}
	}
	return resp.ID, nil
}

// Status fetches the current state of jobID. It never caches.
func (b *RunPodBackend) Status(ctx context.Context, jobID string) (*JobState, error) {
	var state JobState
	endpoint := b.baseURL + "/status/" + url.PathEscape(jobID)
	if err := doJSON(ctx, b.client, b.service, http.MethodGet, endpoint, b.header(), nil, &state); err != nil {
		return nil, err
	}
	if state.ID == "" {
		state.ID = jobID
	}
	return &state, nil
}

func (b *RunPodBackend) header() http.Header {
	h := http.Header{}
	if b.apiKey != "" {
		h.Set("Authorization", "Bearer "+b.apiKey)
	}
	return h
}
