package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	apperrors "github.com/johnquangdev/meeting-minutes/errors"
)

func TestRunPodSubmitSendsInputEnvelope(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/run" {
			t.Fatalf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Fatalf("unexpected auth header %q", got)
		}
		var payload struct {
			Input DiarizationInput `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("invalid payload: %v", err)
		}
		if payload.Input.Task != "diarization" || payload.Input.AudioURL != "https://s3/audio.wav" {
			t.Fatalf("unexpected input %+v", payload.Input)
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "rp-123", "status": "IN_QUEUE"})
	}))
	defer ts.Close()

	b := NewRunPodBackend("diarization", ts.URL+"/", "test-key", time.Second)
	id, err := b.Submit(context.Background(), DiarizationInput{Task: "diarization", AudioURL: "https://s3/audio.wav"})
	require.NoError(t, err)
	assert.Equal(t, "rp-123", id)
}

func TestRunPodErrorClassification(t *testing.T) {
	cases := []struct {
		status    int
		body      string
		retryable bool
	}{
		{http.StatusUnauthorized, `{"error":"invalid api key"}`, false},
		{http.StatusNotFound, `not found`, false},
		{http.StatusBadRequest, `{"error":{"message":"audio_url missing"}}`, false},
		{http.StatusServiceUnavailable, ``, true},
		{http.StatusTooManyRequests, `{"error":"slow down"}`, true},
		{http.StatusTooManyRequests, `{"error":"monthly quota exceeded"}`, false},
	}

	for _, tc := range cases {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			w.Write([]byte(tc.body))
		}))

		_, err := NewRunPodBackend("diarization", ts.URL, "k", time.Second).Submit(context.Background(), DiarizationInput{})
		ts.Close()

		require.Error(t, err, tc.status)
		assert.Equal(t, tc.retryable, apperrors.IsRetryable(err), "status %d body %s", tc.status, tc.body)
		if !tc.retryable {
			var sub *apperrors.SubmissionError
			assert.True(t, errors.As(err, &sub))
		}
	}
}

func TestRunPodNetworkErrorIsTransient(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := ts.URL
	ts.Close()

	_, err := NewRunPodBackend("diarization", url, "k", time.Second).Status(context.Background(), "x")
	assert.True(t, apperrors.IsRetryable(err))
}

func TestDiarizationClientEndToEnd(t *testing.T) {
	var polls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/run":
			json.NewEncoder(w).Encode(map[string]string{"id": "rp-1"})
		case r.URL.Path == "/status/rp-1":
			if atomic.AddInt32(&polls, 1) < 2 {
				json.NewEncoder(w).Encode(map[string]string{"id": "rp-1", "status": "IN_PROGRESS"})
				return
			}
			w.Write([]byte(`{"id":"rp-1","status":"COMPLETED","output":{"segments":[
				{"start":0.0,"end":5.0,"speaker":"SPEAKER_00"},
				{"start":5.0,"end":9.0,"speaker":"SPEAKER_01"}]}}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer ts.Close()

	jobs := NewJobClient(NewRunPodBackend("diarization", ts.URL, "k", time.Second), time.Millisecond, 5*time.Millisecond, zaptest.NewLogger(t))
	c := NewDiarizationClient(jobs, "pyannote/speaker-diarization-3.1")

	id, err := c.Submit(context.Background(), "https://s3/audio.wav")
	require.NoError(t, err)

	segments, err := c.Await(context.Background(), id, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []SpeakerSegment{
		{Start: 0, End: 5, Speaker: "SPEAKER_00"},
		{Start: 5, End: 9, Speaker: "SPEAKER_01"},
	}, segments)
}

func TestDiarizationClientOutputError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"rp-1","status":"COMPLETED","output":{"error":"unsupported task"}}`))
	}))
	defer ts.Close()

	jobs := NewJobClient(NewRunPodBackend("diarization", ts.URL, "k", time.Second), time.Millisecond, time.Millisecond, zaptest.NewLogger(t))
	_, err := NewDiarizationClient(jobs, "").Await(context.Background(), "rp-1", time.Second)

	var failure *apperrors.FailureError
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, "unsupported task", failure.Message)
}

func TestTranscribeBatch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/run" {
			var payload struct {
				Input TranscriptionInput `json:"input"`
			}
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				t.Fatalf("invalid payload: %v", err)
			}
			if payload.Input.Task != "transcription" || len(payload.Input.Segments) != 2 || payload.Input.Model != "voxtral-small-latest" {
				t.Fatalf("unexpected input %+v", payload.Input)
			}
			if payload.Input.Prompt != "verbatim" || payload.Input.Temperature != 0.2 {
				t.Fatalf("settings not forwarded: %+v", payload.Input)
			}
			json.NewEncoder(w).Encode(map[string]string{"id": "tr-1"})
			return
		}
		w.Write([]byte(`{"id":"tr-1","status":"COMPLETED","output":{"transcriptions":[
			{"start":0,"end":5,"speaker":"SPEAKER_00","text":"Bonjour"},
			{"start":5,"end":9,"speaker":"SPEAKER_01","text":"Merci"}]}}`))
	}))
	defer ts.Close()

	jobs := NewJobClient(NewRunPodBackend("transcription", ts.URL, "k", time.Second), time.Millisecond, time.Millisecond, zaptest.NewLogger(t))
	c := NewTranscriptionClient(jobs, TranscriptionSettings{
		Model:       "voxtral-small-latest",
		Prompt:      "verbatim",
		Temperature: 0.2,
		MaxWait:     time.Second,
	}, zaptest.NewLogger(t))

	out, err := c.TranscribeBatch(context.Background(), "https://s3/audio.wav", []SpeakerSegment{
		{Start: 0, End: 5, Speaker: "SPEAKER_00"},
		{Start: 5, End: 9, Speaker: "SPEAKER_01"},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "Merci", out[1].Text)
}
