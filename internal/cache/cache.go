package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

// Cache stores rendered catalog responses. A miss is ("", nil).
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) error
	GenerateKey(operation, key string) string
}

func generateKey(serviceName, operation, key string) string {
	return fmt.Sprintf("%s:%s:%s", serviceName, operation, key)
}

// GetJSON decodes a cached value into dst and reports whether it was a hit.
// Errors are logged and treated as a miss so the caller falls back to the database.
func GetJSON(ctx context.Context, c Cache, key string, dst interface{}) bool {
	raw, err := c.Get(ctx, key)
	if err != nil {
		log.Printf("[CACHE] [WARN] get %s: %v", key, err)
		return false
	}
	if raw == "" {
		return false
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		log.Printf("[CACHE] [WARN] decode %s: %v", key, err)
		return false
	}
	return true
}

// SetJSON encodes value and stores it; failures are only logged.
func SetJSON(ctx context.Context, c Cache, key string, value interface{}, ttl time.Duration) {
	body, err := json.Marshal(value)
	if err != nil {
		log.Printf("[CACHE] [WARN] encode %s: %v", key, err)
		return
	}
	if err := c.Set(ctx, key, string(body), ttl); err != nil {
		log.Printf("[CACHE] [WARN] set %s: %v", key, err)
	}
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

type memoryCache struct {
	mu          sync.Mutex
	entries     map[string]memoryEntry
	serviceName string
	now         func() time.Time
}

// NewMemoryCache is the in-process cache used when no Redis address is configured.
func NewMemoryCache(serviceName string) Cache {
	return &memoryCache{
		entries:     make(map[string]memoryEntry),
		serviceName: serviceName,
		now:         time.Now,
	}
}

func (m *memoryCache) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return "", nil
	}
	if !entry.expiresAt.IsZero() && m.now().After(entry.expiresAt) {
		delete(m.entries, key)
		return "", nil
	}
	return entry.value, nil
}

func (m *memoryCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	var str string
	switch v := value.(type) {
	case string:
		str = v
	case []byte:
		str = string(v)
	default:
		str = fmt.Sprint(v)
	}

	entry := memoryEntry{value: str}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}

	m.mu.Lock()
	m.entries[key] = entry
	m.mu.Unlock()
	return nil
}

func (m *memoryCache) DeletePrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		}
	}
	return nil
}

func (m *memoryCache) GenerateKey(operation, key string) string {
	return generateKey(m.serviceName, operation, key)
}
