package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/johnquangdev/meeting-minutes/errors"
)

const maxErrorBody = 300

// doJSON sends in as a JSON body (when non-nil) and decodes the response into out.
// Failures are classified into the pipeline error taxonomy.
func doJSON(ctx context.Context, client *http.Client, service, method, url string, header http.Header, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", service, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return &apperrors.SubmissionError{Service: service, Message: "invalid request: " + err.Error(), Err: err}
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return transportError(ctx, service, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(ctx, service, err)
	}

	if err := classifyStatus(service, resp.StatusCode, raw); err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &apperrors.FailureError{Service: service, Message: "unreadable response: " + err.Error()}
	}
	return nil
}

// transportError wraps network failures as transient, except caller cancellation
func transportError(ctx context.Context, service string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return &apperrors.TransientError{Service: service, Message: "request failed", Err: err}
}

// classifyStatus maps an HTTP status to the pipeline error taxonomy.
// 408, 429 and 5xx are transient unless the provider says the quota is exhausted.
func classifyStatus(service string, status int, body []byte) error {
	if status < 400 {
		return nil
	}

	msg := errorMessage(body)
	if msg == "" {
		msg = http.StatusText(status)
	}

	switch {
	case status == http.StatusTooManyRequests && strings.Contains(strings.ToLower(msg), "quota"):
		return &apperrors.SubmissionError{Service: service, StatusCode: status, Message: msg}
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= 500:
		return &apperrors.TransientError{Service: service, Message: fmt.Sprintf("status %d: %s", status, msg)}
	default:
		return &apperrors.SubmissionError{Service: service, StatusCode: status, Message: msg}
	}
}

// errorMessage extracts a short message from common error body shapes:
// {"error":"..."}, {"error":{"message":"..."}}, {"message":"..."} or plain text.
func errorMessage(body []byte) string {
	var shaped struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &shaped); err == nil {
		if len(shaped.Error) > 0 {
			var s string
			if json.Unmarshal(shaped.Error, &s) == nil && s != "" {
				return truncate(s)
			}
			var nested struct {
				Message string `json:"message"`
			}
			if json.Unmarshal(shaped.Error, &nested) == nil && nested.Message != "" {
				return truncate(nested.Message)
			}
		}
		if shaped.Message != "" {
			return truncate(shaped.Message)
		}
	}
	return truncate(strings.TrimSpace(string(body)))
}

func truncate(s string) string {
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}
