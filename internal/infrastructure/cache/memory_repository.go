package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/johnquangdev/meeting-minutes/internal/domain/entities"
	"github.com/johnquangdev/meeting-minutes/internal/domain/repositories"
)

// MemoryContextRepository keeps processing contexts in process memory, with run
// leases held in a MemoryStore. Contexts do not survive a restart.
type MemoryContextRepository struct {
	mu       sync.Mutex
	contexts map[uuid.UUID]*entities.ProcessingContext
	leases   *MemoryStore
}

// NewMemoryContextRepository creates an empty repository
func NewMemoryContextRepository() *MemoryContextRepository {
	return &MemoryContextRepository{
		contexts: make(map[uuid.UUID]*entities.ProcessingContext),
		leases:   NewMemoryStore(),
	}
}

var _ repositories.ProcessingContextRepository = (*MemoryContextRepository)(nil)

func leaseKey(id uuid.UUID) string {
	return "pipeline:lease:" + id.String()
}

// Create stores a new context
func (r *MemoryContextRepository) Create(ctx context.Context, pc *entities.ProcessingContext) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.contexts[pc.ID]; exists {
		return repositories.ErrContextExists
	}
	r.contexts[pc.ID] = pc.Clone()
	return nil
}

// Get returns a copy of the stored context
func (r *MemoryContextRepository) Get(ctx context.Context, id uuid.UUID) (*entities.ProcessingContext, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pc, ok := r.contexts[id]
	if !ok {
		return nil, nil
	}
	return r.withLease(pc), nil
}

// List returns contexts newest first
func (r *MemoryContextRepository) List(ctx context.Context, limit int) ([]entities.ProcessingContext, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.collect(limit, func(*entities.ProcessingContext) bool { return true }), nil
}

// ListResumable returns non-terminal contexts with no live lease, oldest first
func (r *MemoryContextRepository) ListResumable(ctx context.Context, limit int) ([]entities.ProcessingContext, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.collect(0, func(pc *entities.ProcessingContext) bool {
		if pc.Stage.IsTerminal() {
			return false
		}
		_, held := r.leases.Get(leaseKey(pc.ID))
		return !held
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ClaimRun takes the lease when it is free or expired
func (r *MemoryContextRepository) ClaimRun(ctx context.Context, id uuid.UUID, runID string, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.contexts[id]; !ok {
		return false, nil
	}
	return r.leases.SetNX(leaseKey(id), runID, ttl), nil
}

// RenewRun extends the lease held by runID
func (r *MemoryContextRepository) RenewRun(ctx context.Context, id uuid.UUID, runID string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.leases.Expire(leaseKey(id), runID, ttl) {
		return repositories.ErrLeaseLost
	}
	return nil
}

// ReleaseRun drops the lease held by runID
func (r *MemoryContextRepository) ReleaseRun(ctx context.Context, id uuid.UUID, runID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.leases.CompareAndDelete(leaseKey(id), runID) {
		return repositories.ErrLeaseLost
	}
	return nil
}

// Commit replaces the stored context when runID holds the lease
func (r *MemoryContextRepository) Commit(ctx context.Context, pc *entities.ProcessingContext, runID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if holder, held := r.leases.Get(leaseKey(pc.ID)); !held || holder != runID {
		return repositories.ErrLeaseLost
	}
	if _, ok := r.contexts[pc.ID]; !ok {
		return repositories.ErrLeaseLost
	}

	stored := pc.Clone()
	stored.UpdatedAt = time.Now().UTC()
	r.contexts[pc.ID] = stored
	return nil
}

// Close releases the lease store
func (r *MemoryContextRepository) Close() {
	r.leases.Close()
}

func (r *MemoryContextRepository) withLease(pc *entities.ProcessingContext) *entities.ProcessingContext {
	c := pc.Clone()
	c.ActiveRunID, _ = r.leases.Get(leaseKey(pc.ID))
	return c
}

func (r *MemoryContextRepository) collect(limit int, keep func(*entities.ProcessingContext) bool) []entities.ProcessingContext {
	out := make([]entities.ProcessingContext, 0, len(r.contexts))
	for _, pc := range r.contexts {
		if keep(pc) {
			out = append(out, *r.withLease(pc))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
