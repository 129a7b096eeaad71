package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/johnquangdev/meeting-minutes/internal/domain/repositories"
	"github.com/johnquangdev/meeting-minutes/internal/domain/repositories/repotest"
)

func TestMemoryStoreSetNX(t *testing.T) {
	ms := NewMemoryStore()
	defer ms.Close()

	now := time.Now()
	ms.now = func() time.Time { return now }

	assert.True(t, ms.SetNX("lease", "a", time.Minute))
	assert.False(t, ms.SetNX("lease", "b", time.Minute))

	assert.False(t, ms.Expire("lease", "b", time.Hour))
	assert.True(t, ms.Expire("lease", "a", time.Hour))

	now = now.Add(30 * time.Minute)
	v, ok := ms.Get("lease")
	assert.True(t, ok, "renewed lease still live")
	assert.Equal(t, "a", v)

	now = now.Add(time.Hour)
	_, ok = ms.Get("lease")
	assert.False(t, ok)
	assert.True(t, ms.SetNX("lease", "b", time.Minute), "expired key can be taken")
}

func TestMemoryStoreCompareAndDelete(t *testing.T) {
	ms := NewMemoryStore()
	defer ms.Close()

	ms.Set("k", "v1", time.Minute)
	assert.False(t, ms.CompareAndDelete("k", "v2"))
	assert.True(t, ms.CompareAndDelete("k", "v1"))
	_, ok := ms.Get("k")
	assert.False(t, ok)

	ms.Close()
	ms.Close()
}

func TestMemoryContextRepository(t *testing.T) {
	repotest.Run(t, func(t *testing.T) repositories.ProcessingContextRepository {
		repo := NewMemoryContextRepository()
		t.Cleanup(repo.Close)
		return repo
	})
}
