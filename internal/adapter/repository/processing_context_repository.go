package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/johnquangdev/meeting-minutes/internal/domain/entities"
	"github.com/johnquangdev/meeting-minutes/internal/domain/repositories"
)

// ProcessingContextRepository stores processing contexts in Postgres. The run lease
// lives on the row (active_run_id, lease_expires_at) so claims are a single
// conditional UPDATE.
type ProcessingContextRepository struct {
	db *gorm.DB
}

// NewProcessingContextRepository creates a new processing context repository
func NewProcessingContextRepository(db *gorm.DB) *ProcessingContextRepository {
	return &ProcessingContextRepository{db: db}
}

var _ repositories.ProcessingContextRepository = (*ProcessingContextRepository)(nil)

var terminalStages = []entities.Stage{entities.StageDone, entities.StageFailed}

// Create inserts a new context
func (r *ProcessingContextRepository) Create(ctx context.Context, pc *entities.ProcessingContext) error {
	if pc == nil {
		return errors.New("processing context cannot be nil")
	}
	err := r.db.WithContext(ctx).Create(pc).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return repositories.ErrContextExists
	}
	return err
}

// Get retrieves a context by ID
func (r *ProcessingContextRepository) Get(ctx context.Context, id uuid.UUID) (*entities.ProcessingContext, error) {
	var pc entities.ProcessingContext
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&pc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pc, nil
}

// List retrieves contexts newest first
func (r *ProcessingContextRepository) List(ctx context.Context, limit int) ([]entities.ProcessingContext, error) {
	var contexts []entities.ProcessingContext
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&contexts).Error; err != nil {
		return nil, err
	}
	return contexts, nil
}

// ListResumable retrieves non-terminal contexts with no live lease, least recently updated first
func (r *ProcessingContextRepository) ListResumable(ctx context.Context, limit int) ([]entities.ProcessingContext, error) {
	var contexts []entities.ProcessingContext
	query := r.db.WithContext(ctx).
		Where("stage NOT IN ?", terminalStages).
		Where("(active_run_id IS NULL OR active_run_id = '' OR lease_expires_at < ?)", time.Now().UTC()).
		Order("updated_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&contexts).Error; err != nil {
		return nil, err
	}
	return contexts, nil
}

// ClaimRun atomically takes the run lease when it is free or expired.
// If no rows are affected, another run holds it.
func (r *ProcessingContextRepository) ClaimRun(ctx context.Context, id uuid.UUID, runID string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&entities.ProcessingContext{}).
		Where("id = ?", id).
		Where("(active_run_id IS NULL OR active_run_id = '' OR lease_expires_at < ?)", now).
		Updates(map[string]interface{}{
			"active_run_id":    runID,
			"lease_expires_at": now.Add(ttl),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// RenewRun extends the lease held by runID
func (r *ProcessingContextRepository) RenewRun(ctx context.Context, id uuid.UUID, runID string, ttl time.Duration) error {
	result := r.db.WithContext(ctx).
		Model(&entities.ProcessingContext{}).
		Where("id = ? AND active_run_id = ?", id, runID).
		UpdateColumn("lease_expires_at", time.Now().UTC().Add(ttl))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return repositories.ErrLeaseLost
	}
	return nil
}

// ReleaseRun clears the lease held by runID
func (r *ProcessingContextRepository) ReleaseRun(ctx context.Context, id uuid.UUID, runID string) error {
	result := r.db.WithContext(ctx).
		Model(&entities.ProcessingContext{}).
		Where("id = ? AND active_run_id = ?", id, runID).
		UpdateColumns(map[string]interface{}{
			"active_run_id":    "",
			"lease_expires_at": nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return repositories.ErrLeaseLost
	}
	return nil
}

// Commit writes every column of pc, fenced by the run lease
func (r *ProcessingContextRepository) Commit(ctx context.Context, pc *entities.ProcessingContext, runID string) error {
	pc.UpdatedAt = time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(pc).
		Where("active_run_id = ?", runID).
		Select("*").
		Omit("id", "created_at", "active_run_id", "lease_expires_at").
		Updates(pc)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return repositories.ErrLeaseLost
	}
	return nil
}
