package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/johnquangdev/meeting-minutes/errors"
	"github.com/johnquangdev/meeting-minutes/pkg/config"
)

// Storage is the object storage used by the normalizer
type Storage interface {
	DownloadFile(ctx context.Context, objectName string, localPath string) error
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error
	GetFileURL(ctx context.Context, objectName string) (string, error)
}

// Normalizer converts uploads to 16 kHz mono PCM WAV with ffmpeg. Without an ffmpeg
// binary configured the upload is used as is.
type Normalizer struct {
	cfg     *config.MediaConfig
	storage Storage
	logger  *zap.Logger
}

// NewNormalizer creates a normalizer
func NewNormalizer(cfg *config.MediaConfig, storage Storage, logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{cfg: cfg, storage: storage, logger: logger}
}

// NormalizedObject is where the normalized audio of a job is stored
func NormalizedObject(jobID uuid.UUID) string {
	return fmt.Sprintf("normalized/%s.wav", jobID)
}

// Normalize produces the normalized artifact and a URL the remote services can fetch
func (n *Normalizer) Normalize(ctx context.Context, jobID uuid.UUID, sourceObject string) (string, string, error) {
	if n.cfg.FFmpegPath == "" {
		url, err := n.storage.GetFileURL(ctx, sourceObject)
		if err != nil {
			return "", "", storageError(err)
		}
		n.logger.Debug("ffmpeg not configured, using upload as normalized audio", zap.String("job_id", jobID.String()))
		return sourceObject, url, nil
	}

	dir, err := os.MkdirTemp(n.cfg.WorkDir, "normalize-")
	if err != nil {
		return "", "", fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "input"+filepath.Ext(sourceObject))
	out := filepath.Join(dir, "normalized.wav")

	if err := n.storage.DownloadFile(ctx, sourceObject, in); err != nil {
		return "", "", storageError(err)
	}

	if err := n.convert(ctx, in, out); err != nil {
		return "", "", err
	}

	info, err := os.Stat(out)
	if err != nil {
		return "", "", &apperrors.FailureError{Service: "ffmpeg", Message: "no output produced"}
	}
	if n.cfg.MaxNormalizedBytes > 0 && info.Size() > n.cfg.MaxNormalizedBytes {
		return "", "", &apperrors.FailureError{
			Service: "ffmpeg",
			Message: fmt.Sprintf("normalized audio is %d bytes, above the %d byte limit", info.Size(), n.cfg.MaxNormalizedBytes),
		}
	}

	f, err := os.Open(out)
	if err != nil {
		return "", "", fmt.Errorf("failed to open normalized audio: %w", err)
	}
	defer f.Close()

	object := NormalizedObject(jobID)
	if err := n.storage.UploadFile(ctx, object, f, info.Size(), "audio/wav"); err != nil {
		return "", "", storageError(err)
	}
	url, err := n.storage.GetFileURL(ctx, object)
	if err != nil {
		return "", "", storageError(err)
	}

	n.logger.Info("audio normalized",
		zap.String("job_id", jobID.String()),
		zap.String("object", object),
		zap.Int64("bytes", info.Size()),
	)
	return object, url, nil
}

func (n *Normalizer) convert(ctx context.Context, in, out string) error {
	cmd := exec.CommandContext(ctx, n.cfg.FFmpegPath,
		"-nostdin", "-y",
		"-i", in,
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		out,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &apperrors.FailureError{Service: "ffmpeg", Message: fmt.Sprintf("%v: %s", err, lastLines(stderr.String(), 3))}
	}
	return nil
}

func storageError(err error) error {
	return &apperrors.TransientError{Service: "storage", Message: "object storage unavailable", Err: err}
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
