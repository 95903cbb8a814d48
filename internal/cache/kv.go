package cache

import (
	"context"
	"time"
)

// KV is the in-memory key-value surface for the session cache. Values are
// copied on the way in and out so callers cannot alias stored bytes.
type KV struct {
	lru *LRUCache[[]byte]
}

const defaultKVSize = 1024

func NewKV(ttl time.Duration) *KV {
	return &KV{lru: NewLRUCache[[]byte](defaultKVSize, ttl)}
}

// Cleaner exposes the underlying cache for registration with a Manager.
func (k *KV) Cleaner() Cleaner { return k.lru }

func (k *KV) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := k.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (k *KV) Set(_ context.Context, key string, value []byte) error {
	k.lru.Set(key, append([]byte(nil), value...))
	return nil
}

func (k *KV) Delete(_ context.Context, key string) error {
	k.lru.Delete(key)
	return nil
}
