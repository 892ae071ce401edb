package store

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// Memory is a process-local KV backed by go-cache.
type Memory struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewMemory returns an in-memory store. A ttl of zero keeps entries forever.
func NewMemory(ttl time.Duration) *Memory {
	expiration := cache.NoExpiration
	cleanup := time.Duration(0)
	if ttl > 0 {
		expiration = ttl
		cleanup = ttl / 2
	}
	return &Memory{
		cache: cache.New(expiration, cleanup),
		ttl:   expiration,
	}
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	v, found := m.cache.Get(key)
	if !found {
		return "", ErrNotFound
	}
	return v.(string), nil
}

func (m *Memory) Put(_ context.Context, key, value string) error {
	m.cache.Set(key, value, m.ttl)
	return nil
}

func (m *Memory) PutIfAbsent(_ context.Context, key, value string) (bool, error) {
	// go-cache's Add fails when a live entry exists
	if err := m.cache.Add(key, value, m.ttl); err != nil {
		return false, nil
	}
	return true, nil
}

func (m *Memory) Remove(_ context.Context, key string) error {
	m.cache.Delete(key)
	return nil
}
