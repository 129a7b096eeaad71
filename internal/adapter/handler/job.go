package handler

import (
	"context"
	stdErrors "errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/johnquangdev/meeting-minutes/errors"
	"github.com/johnquangdev/meeting-minutes/internal/adapter/dto/job"
	"github.com/johnquangdev/meeting-minutes/internal/adapter/presenter"
	"github.com/johnquangdev/meeting-minutes/internal/domain/entities"
	"github.com/johnquangdev/meeting-minutes/internal/usecase/pipeline"
	"github.com/johnquangdev/meeting-minutes/pkg/jwt"
)

const (
	defaultListLimit = 50
	// context documents are plain text fed to the LLM prompts
	maxContextDocumentBytes = 1 << 20
)

var allowedAudioExtensions = map[string]string{
	".wav":  "audio/wav",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".webm": "audio/webm",
}

// ObjectStorage is the part of object storage the job endpoints use
type ObjectStorage interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error
	PresignedURL(ctx context.Context, objectName string, downloadName string) (string, error)
	Exists(ctx context.Context, objectName string) (bool, error)
}

// Job handles meeting processing job requests
type Job struct {
	service        pipeline.Service
	storage        ObjectStorage
	tokens         *jwt.Manager
	maxUploadBytes int64
	logger         *zap.Logger
}

// NewJobHandler creates a new job handler
func NewJobHandler(service pipeline.Service, storage ObjectStorage, tokens *jwt.Manager, maxUploadBytes int64, logger *zap.Logger) *Job {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Job{
		service:        service,
		storage:        storage,
		tokens:         tokens,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// Upload handles POST /jobs
// @Summary      Upload a meeting recording
// @Description  Stores the audio with optional context documents and starts processing in the background
// @Tags         Jobs
// @Accept       multipart/form-data
// @Produce      json
// @Param        audio_file        formData  file    true   "Meeting audio (wav, mp3, m4a, flac, ogg, webm)"
// @Param        participant_list  formData  string  false  "Participant list (text or file)"
// @Param        vote_record       formData  string  false  "Vote record (text or file)"
// @Param        agenda            formData  string  false  "Agenda (text or file)"
// @Param        chair             formData  string  false  "Meeting chair"
// @Param        meeting_date      formData  string  false  "Meeting date (YYYY-MM-DD)"
// @Success      202  {object}  common.SuccessResponse{data=job.UploadJobResponse}  "Job accepted"
// @Failure      400  {object}  common.ErrorResponse  "Missing audio or invalid form"
// @Failure      413  {object}  common.ErrorResponse  "Upload too large"
// @Failure      415  {object}  common.ErrorResponse  "Unsupported audio format"
// @Failure      500  {object}  common.ErrorResponse  "Failed to store upload"
// @Router       /jobs [post]
func (h *Job) Upload(c echo.Context) error {
	ctx := c.Request().Context()

	if h.maxUploadBytes > 0 {
		c.Request().Body = http.MaxBytesReader(c.Response(), c.Request().Body, h.maxUploadBytes+maxContextDocumentBytes*4)
	}

	file, err := c.FormFile("audio_file")
	if err != nil {
		return HandleError(h.logger, c, h.formError(err))
	}
	if h.maxUploadBytes > 0 && file.Size > h.maxUploadBytes {
		return HandleError(h.logger, c, errors.ErrUploadTooLarge(h.maxUploadBytes))
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	contentType, ok := allowedAudioExtensions[ext]
	if !ok {
		return HandleError(h.logger, c, errors.ErrUnsupportedAudioFormat(ext))
	}

	var req job.UploadJobRequest
	if err := c.Bind(&req); err != nil {
		return HandleError(h.logger, c, errors.ErrInvalidPayload())
	}
	if err := c.Validate(&req); err != nil {
		return HandleError(h.logger, c, err)
	}

	inputs := entities.ContextDocuments{
		Chair:       strings.TrimSpace(req.Chair),
		MeetingDate: req.MeetingDate,
	}
	for field, dst := range map[string]*string{
		"participant_list": &inputs.ParticipantList,
		"vote_record":      &inputs.VoteRecord,
		"agenda":           &inputs.Agenda,
	} {
		text, err := readContextDocument(c, field)
		if err != nil {
			return HandleError(h.logger, c, errors.ErrInvalidArgument(err.Error()))
		}
		*dst = text
	}

	src, err := file.Open()
	if err != nil {
		return HandleError(h.logger, c, errors.ErrInternal(err))
	}
	defer src.Close()

	objectName := fmt.Sprintf("uploads/%s%s", uuid.NewString(), ext)
	if err := h.storage.UploadFile(ctx, objectName, src, file.Size, contentType); err != nil {
		return HandleError(h.logger, c, errors.ErrStorageFailed("upload", err))
	}

	pc, err := h.service.Submit(ctx, pipeline.SubmitRequest{
		SourceObject:   objectName,
		SourceFilename: filepath.Base(file.Filename),
		Inputs:         inputs,
	})
	if err != nil {
		if pc == nil {
			return HandleError(h.logger, c, errors.ErrInternal(err))
		}
		return HandleError(h.logger, c, toAppError(err, pc.ID.String()))
	}

	h.logger.Info("📤 Upload accepted",
		zap.String("job_id", pc.ID.String()),
		zap.String("object", objectName),
		zap.Int64("size", file.Size),
	)

	return HandleAccepted(h.logger, c, job.UploadJobResponse{
		JobID: pc.ID.String(),
		Stage: string(pc.Stage),
	})
}

func (h *Job) formError(err error) error {
	var maxErr *http.MaxBytesError
	if stdErrors.As(err, &maxErr) {
		return errors.ErrUploadTooLarge(h.maxUploadBytes)
	}
	if stdErrors.Is(err, http.ErrMissingFile) {
		return errors.ErrMissingAudioFile()
	}
	return errors.ErrInvalidPayload()
}

// readContextDocument reads a context document sent either as a file part or a text field
func readContextDocument(c echo.Context, field string) (string, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		if stdErrors.Is(err, http.ErrMissingFile) {
			return strings.TrimSpace(c.FormValue(field)), nil
		}
		return "", fmt.Errorf("invalid %s: %w", field, err)
	}
	return readTextPart(fh, field)
}

func readTextPart(fh *multipart.FileHeader, field string) (string, error) {
	if fh.Size > maxContextDocumentBytes {
		return "", fmt.Errorf("%s exceeds %d bytes", field, maxContextDocumentBytes)
	}
	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", field, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxContextDocumentBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", field, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Get handles GET /jobs/:id
// @Summary      Get job status
// @Description  Returns the stage, per-stage records, failure reason and document download links
// @Tags         Jobs
// @Produce      json
// @Param        id   path      string  true  "Job ID"
// @Success      200  {object}  common.SuccessResponse{data=job.JobResponse}
// @Failure      400  {object}  common.ErrorResponse  "Invalid job ID"
// @Failure      404  {object}  common.ErrorResponse  "Job not found"
// @Router       /jobs/{id} [get]
func (h *Job) Get(c echo.Context) error {
	id, err := parseJobID(c)
	if err != nil {
		return HandleError(h.logger, c, err)
	}

	pc, err := h.service.Get(c.Request().Context(), id)
	if err != nil {
		return HandleError(h.logger, c, toAppError(err, id.String()))
	}

	return HandleSuccess(h.logger, c, presenter.ToJobResponse(pc, h.downloadLinks(c, pc)))
}

// downloadLinks signs one download token per rendered document
func (h *Job) downloadLinks(c echo.Context, pc *entities.ProcessingContext) map[string]string {
	docs := pc.Documents.Data()
	links := make(map[string]string, len(docs))
	if h.tokens == nil {
		return links
	}

	for name := range docs {
		token, err := h.tokens.GenerateDownloadToken(pc.ID, name)
		if err != nil {
			h.logger.Warn("failed to sign download token",
				zap.String("job_id", pc.ID.String()),
				zap.String("document", name),
				zap.Error(err),
			)
			continue
		}
		links[name] = c.Echo().Reverse("downloads.get", token)
	}
	return links
}

// List handles GET /jobs
// @Summary      List jobs
// @Description  Returns the job history, newest first
// @Tags         Jobs
// @Produce      json
// @Param        limit  query     int  false  "Maximum number of jobs (1-200, default 50)"
// @Success      200    {object}  common.SuccessResponse{data=job.JobListResponse}
// @Failure      400    {object}  common.ErrorResponse  "Invalid query"
// @Router       /jobs [get]
func (h *Job) List(c echo.Context) error {
	req := job.ListJobsRequest{Limit: defaultListLimit}
	if err := c.Bind(&req); err != nil {
		return HandleError(h.logger, c, errors.ErrInvalidArgument("invalid query parameters"))
	}
	if err := c.Validate(&req); err != nil {
		return HandleError(h.logger, c, err)
	}

	contexts, err := h.service.List(c.Request().Context(), req.Limit)
	if err != nil {
		return HandleError(h.logger, c, errors.ErrDBQueryFailed("list jobs", err))
	}

	return HandleSuccess(h.logger, c, presenter.ToJobListResponse(contexts))
}

// Transcript handles GET /jobs/:id/transcript
// @Summary      Get job transcript
// @Description  Returns the speaker-attributed transcript once transcription has completed
// @Tags         Jobs
// @Produce      json
// @Param        id   path      string  true  "Job ID"
// @Success      200  {object}  common.SuccessResponse{data=job.TranscriptResponse}
// @Failure      404  {object}  common.ErrorResponse  "Job not found"
// @Failure      409  {object}  common.ErrorResponse  "Transcript not ready"
// @Router       /jobs/{id}/transcript [get]
func (h *Job) Transcript(c echo.Context) error {
	id, err := parseJobID(c)
	if err != nil {
		return HandleError(h.logger, c, err)
	}

	segments, err := h.service.Transcript(c.Request().Context(), id)
	if err != nil {
		return HandleError(h.logger, c, toAppError(err, id.String()))
	}

	return HandleSuccess(h.logger, c, presenter.ToTranscriptResponse(id.String(), segments))
}

// Resume handles POST /jobs/:id/resume
// @Summary      Resume a job
// @Description  Restarts a non-terminal job from its last committed stage
// @Tags         Jobs
// @Produce      json
// @Param        id   path      string  true  "Job ID"
// @Success      202  {object}  common.SuccessResponse{data=job.UploadJobResponse}
// @Failure      404  {object}  common.ErrorResponse  "Job not found"
// @Failure      409  {object}  common.ErrorResponse  "Run already active or job terminal"
// @Router       /jobs/{id}/resume [post]
func (h *Job) Resume(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := parseJobID(c)
	if err != nil {
		return HandleError(h.logger, c, err)
	}

	pc, err := h.service.Get(ctx, id)
	if err != nil {
		return HandleError(h.logger, c, toAppError(err, id.String()))
	}
	if pc.Stage.IsTerminal() {
		return HandleError(h.logger, c, errors.ErrJobTerminal(id.String(), string(pc.Stage)))
	}

	if err := h.service.Resume(ctx, id); err != nil {
		return HandleError(h.logger, c, toAppError(err, id.String()))
	}

	h.logger.Info("🔄 Resume requested",
		zap.String("job_id", id.String()),
		zap.String("stage", string(pc.Stage)),
	)

	return HandleAccepted(h.logger, c, job.UploadJobResponse{
		JobID: id.String(),
		Stage: string(pc.Stage),
	})
}

// Download handles GET /downloads/:token
// @Summary      Download a document
// @Description  Redirects to a short-lived object storage URL for a rendered document
// @Tags         Downloads
// @Param        token  path  string  true  "Signed download token"
// @Success      302
// @Failure      401  {object}  common.ErrorResponse  "Invalid or expired link"
// @Failure      404  {object}  common.ErrorResponse  "Job or document not found"
// @Router       /downloads/{token} [get]
func (h *Job) Download(c echo.Context) error {
	ctx := c.Request().Context()
	if h.tokens == nil {
		return HandleError(h.logger, c, errors.ErrInvalidDownloadToken())
	}

	claims, err := h.tokens.ValidateDownloadToken(c.Param("token"))
	if err != nil {
		h.logger.Warn("rejected download token", zap.Error(err))
		return HandleError(h.logger, c, errors.ErrInvalidDownloadToken())
	}

	pc, err := h.service.Get(ctx, claims.JobID)
	if err != nil {
		return HandleError(h.logger, c, toAppError(err, claims.JobID.String()))
	}

	objectName, ok := pc.Documents.Data()[claims.Document]
	if !ok {
		return HandleError(h.logger, c, errors.ErrDocumentNotFound(claims.Document))
	}

	exists, err := h.storage.Exists(ctx, objectName)
	if err != nil {
		return HandleError(h.logger, c, errors.ErrStorageFailed("stat", err))
	}
	if !exists {
		return HandleError(h.logger, c, errors.ErrDocumentNotFound(claims.Document))
	}

	url, err := h.storage.PresignedURL(ctx, objectName, path.Base(objectName))
	if err != nil {
		return HandleError(h.logger, c, errors.ErrStorageFailed("presign", err))
	}

	return c.Redirect(http.StatusFound, url)
}

func parseJobID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, errors.ErrInvalidArgument("Invalid job ID")
	}
	return id, nil
}
