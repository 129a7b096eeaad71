package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/johnquangdev/meeting-minutes/internal/domain/entities"
)

var (
	// ErrContextExists is returned by Create for a duplicate job identifier
	ErrContextExists = errors.New("processing context already exists")
	// ErrLeaseLost is returned by Commit/RenewRun when the caller no longer owns the run
	ErrLeaseLost = errors.New("run lease lost")
)

// ProcessingContextRepository is the durable store of processing contexts.
//
// A run must hold the lease obtained by ClaimRun for every Commit; a commit from a run
// whose lease was lost or taken over is rejected with ErrLeaseLost.
type ProcessingContextRepository interface {
	Create(ctx context.Context, pc *entities.ProcessingContext) error
	// Get returns (nil, nil) when no context exists for id
	Get(ctx context.Context, id uuid.UUID) (*entities.ProcessingContext, error)
	// List returns contexts newest first
	List(ctx context.Context, limit int) ([]entities.ProcessingContext, error)
	// ListResumable returns non-terminal contexts that no run currently holds
	ListResumable(ctx context.Context, limit int) ([]entities.ProcessingContext, error)

	// ClaimRun atomically sets the active run marker when none is held (or the holder's
	// lease expired). It reports false when another run is active.
	ClaimRun(ctx context.Context, id uuid.UUID, runID string, ttl time.Duration) (bool, error)
	RenewRun(ctx context.Context, id uuid.UUID, runID string, ttl time.Duration) error
	ReleaseRun(ctx context.Context, id uuid.UUID, runID string) error

	// Commit persists the full context, fenced by runID
	Commit(ctx context.Context, pc *entities.ProcessingContext, runID string) error
}
