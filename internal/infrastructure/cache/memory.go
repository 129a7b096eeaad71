package cache

import (
	"sync"
	"time"
)

// MemoryStore is a simple in-memory key-value store with expiration
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*memoryItem
	stop  chan struct{}
	once  sync.Once
	now   func() time.Time
}

type memoryItem struct {
	value      string
	expireTime time.Time
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	store := &MemoryStore{
		items: make(map[string]*memoryItem),
		stop:  make(chan struct{}),
		now:   time.Now,
	}

	// Start cleanup goroutine to remove expired items
	go store.cleanupExpired()

	return store
}

// Set stores a key-value pair with expiration
func (ms *MemoryStore) Set(key string, value string, expiration time.Duration) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.items[key] = &memoryItem{
		value:      value,
		expireTime: ms.now().Add(expiration),
	}
}

// SetNX stores the pair only when key is absent or expired, and reports whether it did
func (ms *MemoryStore) SetNX(key string, value string, expiration time.Duration) bool {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if item, exists := ms.items[key]; exists && !ms.now().After(item.expireTime) {
		return false
	}
	ms.items[key] = &memoryItem{
		value:      value,
		expireTime: ms.now().Add(expiration),
	}
	return true
}

// Expire extends key to expiration if it still holds value
func (ms *MemoryStore) Expire(key string, value string, expiration time.Duration) bool {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	item, exists := ms.items[key]
	if !exists || item.value != value || ms.now().After(item.expireTime) {
		return false
	}
	item.expireTime = ms.now().Add(expiration)
	return true
}

// Get retrieves a value by key (returns empty string if not found or expired)
func (ms *MemoryStore) Get(key string) (string, bool) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	item, exists := ms.items[key]
	if !exists {
		return "", false
	}

	// Check if expired
	if ms.now().After(item.expireTime) {
		return "", false
	}

	return item.value, true
}

// Delete removes a key
func (ms *MemoryStore) Delete(key string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	delete(ms.items, key)
}

// CompareAndDelete removes key only if it holds value
func (ms *MemoryStore) CompareAndDelete(key string, value string) bool {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	item, exists := ms.items[key]
	if !exists || item.value != value {
		return false
	}
	delete(ms.items, key)
	return true
}

// Close stops the cleanup goroutine
func (ms *MemoryStore) Close() {
	ms.once.Do(func() { close(ms.stop) })
}

// cleanupExpired periodically removes expired items
func (ms *MemoryStore) cleanupExpired() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ms.stop:
			return
		case <-ticker.C:
			ms.mu.Lock()
			now := ms.now()
			for key, item := range ms.items {
				if now.After(item.expireTime) {
					delete(ms.items, key)
				}
			}
			ms.mu.Unlock()
		}
	}
}
