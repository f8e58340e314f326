package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var ErrNotFound = errors.New("cache entry not found")

// DynamicValue computes the value of an entry. Dynamic entries are refreshed
// once expired instead of being evicted.
type DynamicValue[V any] func(ctx context.Context) (V, error)

type entry[V any] struct {
	mu        sync.Mutex
	expiresAt time.Time
	v         V
	fn        DynamicValue[V]
	computed  bool
	ttl       time.Duration
}

func (e *entry[V]) isExpired() bool {
	return time.Since(e.expiresAt) > 0
}

func (e *entry[V]) isDynamic() bool {
	return e.fn != nil
}

func (e *entry[V]) refresh(ctx context.Context) error {
	v, err := e.fn(ctx)
	if err != nil {
		return err
	}
	e.v = v
	e.computed = true
	e.expiresAt = time.Now().Add(e.ttl)
	return nil
}

// Memory is an in-process cache of V values safe for concurrent use.
type Memory[V any] struct {
	m          sync.Map
	defaultTTL time.Duration
}

// NewMemory creates a cache expiring entries every second until ctx is done.
func NewMemory[V any](ctx context.Context, defaultTTL time.Duration) *Memory[V] {
	cache := &Memory[V]{defaultTTL: defaultTTL}

	go cache.expirer(ctx)

	return cache
}

func (m *Memory[V]) ttl(ttl []time.Duration) time.Duration {
	if len(ttl) > 0 {
		return ttl[0]
	}
	return m.defaultTTL
}

// Set stores v under k for ttl, or the default ttl when omitted.
func (m *Memory[V]) Set(k string, v V, ttl ...time.Duration) {
	d := m.ttl(ttl)
	m.m.Store(k, &entry[V]{expiresAt: time.Now().Add(d), v: v, ttl: d})
	slog.Debug("new cache entry", "key", k)
}

// SetDynamic stores fn under k. fn is first called by the next Get.
func (m *Memory[V]) SetDynamic(k string, fn DynamicValue[V], ttl ...time.Duration) {
	m.m.Store(k, &entry[V]{expiresAt: time.Now(), fn: fn, ttl: m.ttl(ttl)})
	slog.Debug("new dynamic cache entry", "key", k)
}

// GetOrSet returns the value of key, computing and storing it with valueFunc when missing.
func (m *Memory[V]) GetOrSet(ctx context.Context, key string, valueFunc DynamicValue[V], ttl ...time.Duration) (V, error) {
	v, err := m.Get(ctx, key)
	if !errors.Is(err, ErrNotFound) {
		return v, err
	}

	v, err = valueFunc(ctx)
	if err != nil {
		var zero V
		return zero, err
	}
	m.Set(key, v, ttl...)
	return v, nil
}

func (m *Memory[V]) Get(ctx context.Context, k string) (V, error) {
	var zero V

	loaded, found := m.m.Load(k)
	if !found {
		return zero, ErrNotFound
	}
	e := loaded.(*entry[V])

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.isExpired() {
		return e.v, nil
	}

	if !e.isDynamic() {
		slog.Debug("cache expired", "key", k)
		m.m.CompareAndDelete(k, e)
		return zero, ErrNotFound
	}

	if err := e.refresh(ctx); err != nil {
		if !e.computed {
			return zero, err
		}
		slog.Warn("serving stale dynamic entry", "key", k, "err", err.Error())
		return e.v, nil
	}
	slog.Debug("dynamic entry refreshed", "key", k)

	return e.v, nil
}

// Delete removes k from the cache.
func (m *Memory[V]) Delete(k string) {
	m.m.Delete(k)
}

// expirer evicts expired static entries and refreshes dynamic entries that
// were already computed once.
func (m *Memory[V]) expirer(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		m.m.Range(func(k, loaded any) bool {
			e := loaded.(*entry[V])
			if !e.mu.TryLock() {
				// a Get is refreshing it
				return true
			}
			defer e.mu.Unlock()

			switch {
			case !e.isExpired():
			case !e.isDynamic():
				slog.Debug("cache expired", "key", k)
				m.m.CompareAndDelete(k, e)
			case !e.computed:
			default:
				if err := e.refresh(ctx); err != nil {
					slog.Warn("failed to refresh dynamic entry", "key", k, "err", err.Error())
					// retry on the next period
					e.expiresAt = time.Now().Add(e.ttl)
				}
			}

			return true
		})
	}
}
