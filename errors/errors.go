package errors

import (
	"fmt"
	"net/http"
	"time"
)

// AppError is the HTTP-facing error type of the application
type AppError struct {
	Raw       error
	HTTPCode  int
	Code      ErrorCode
	Message   string
	Details   map[string]string
	Timestamp time.Time
}

// Error implements error interface
func (e AppError) Error() string {
	if e.Raw != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code.String(), e.Message, e.Raw)
	}
	return fmt.Sprintf("[%s] %s", e.Code.String(), e.Message)
}

// Unwrap exposes the underlying error
func (e AppError) Unwrap() error {
	return e.Raw
}

// WithDetail adds a detail to the error
func (e AppError) WithDetail(key, value string) AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// General Errors
func ErrInternal(err error) AppError {
	return AppError{
		Raw:      err,
		HTTPCode: http.StatusInternalServerError,
		Code:     ErrorCode_INTERNAL,
		Message:  "Internal server error",
	}
}

func ErrInvalidArgument(message string) AppError {
	return AppError{
		HTTPCode: http.StatusBadRequest,
		Code:     ErrorCode_INVALID_ARGUMENT,
		Message:  message,
	}
}

func ErrInvalidPayload() AppError {
	return AppError{
		HTTPCode: http.StatusBadRequest,
		Code:     ErrorCode_INVALID_PAYLOAD,
		Message:  "Invalid payload",
	}
}

// Upload Errors
func ErrMissingAudioFile() AppError {
	return AppError{
		HTTPCode: http.StatusBadRequest,
		Code:     ErrorCode_UPLOAD_MISSING_AUDIO,
		Message:  "Audio file is required",
	}
}

func ErrUnsupportedAudioFormat(ext string) AppError {
	return AppError{
		HTTPCode: http.StatusUnsupportedMediaType,
		Code:     ErrorCode_UPLOAD_UNSUPPORTED_FORMAT,
		Message:  "Unsupported audio format",
	}.WithDetail("extension", ext)
}

func ErrUploadTooLarge(limit int64) AppError {
	return AppError{
		HTTPCode: http.StatusRequestEntityTooLarge,
		Code:     ErrorCode_UPLOAD_TOO_LARGE,
		Message:  "Uploaded file exceeds the size limit",
	}.WithDetail("limit_bytes", fmt.Sprintf("%d", limit))
}

// Job Errors
func ErrJobNotFound(jobID string) AppError {
	return AppError{
		HTTPCode: http.StatusNotFound,
		Code:     ErrorCode_JOB_NOT_FOUND,
		Message:  "Job not found",
	}.WithDetail("job_id", jobID)
}

func ErrJobAlreadyRunning(jobID string) AppError {
	return AppError{
		HTTPCode: http.StatusConflict,
		Code:     ErrorCode_JOB_ALREADY_RUNNING,
		Message:  "A processing run is already active for this job",
	}.WithDetail("job_id", jobID)
}

func ErrJobTerminal(jobID, stage string) AppError {
	err := AppError{
		HTTPCode: http.StatusConflict,
		Code:     ErrorCode_JOB_TERMINAL,
		Message:  "Job is in a terminal stage",
	}.WithDetail("job_id", jobID)
	if stage != "" {
		err = err.WithDetail("stage", stage)
	}
	return err
}

func ErrTranscriptNotReady(jobID string) AppError {
	return AppError{
		HTTPCode: http.StatusConflict,
		Code:     ErrorCode_TRANSCRIPT_NOT_READY,
		Message:  "Transcript is not available yet",
	}.WithDetail("job_id", jobID)
}

// Download Errors
func ErrInvalidDownloadToken() AppError {
	return AppError{
		HTTPCode: http.StatusUnauthorized,
		Code:     ErrorCode_DOWNLOAD_INVALID_TOKEN,
		Message:  "Invalid or expired download link",
	}
}

func ErrDocumentNotFound(name string) AppError {
	return AppError{
		HTTPCode: http.StatusNotFound,
		Code:     ErrorCode_DOCUMENT_NOT_FOUND,
		Message:  "Document not found",
	}.WithDetail("document", name)
}

// Integration Errors
func ErrStorageFailed(operation string, err error) AppError {
	return AppError{
		Raw:      err,
		HTTPCode: http.StatusInternalServerError,
		Code:     ErrorCode_INTEGRATION_STORAGE_FAILED,
		Message:  fmt.Sprintf("Storage operation failed: %s", operation),
	}
}

func ErrDBQueryFailed(query string, err error) AppError {
	return AppError{
		Raw:      err,
		HTTPCode: http.StatusInternalServerError,
		Code:     ErrorCode_DB_QUERY_FAILED,
		Message:  "Database query failed",
	}.WithDetail("query", query)
}
