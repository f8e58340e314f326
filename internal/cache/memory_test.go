package cache

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/superdango/embodied-flows/model/catalog"
)

func TestMemory(t *testing.T) {
	slog.SetLogLoggerLevel(slog.LevelDebug)

	memory := NewMemory[string](t.Context(), time.Second)
	memory.Set("k1", "v1", 0)

	// should be expired as TTL is 0 second
	_, err := memory.Get(t.Context(), "k1")
	assert.ErrorIs(t, err, ErrNotFound)

	memory.Set("k1", "v1")
	v, err := memory.Get(t.Context(), "k1")
	assert.NoError(t, err)
	assert.Equal(t, "v1", v)

	memory.SetDynamic("d1", func(ctx context.Context) (string, error) {
		return "v1", nil
	}, 0)

	// even if d1 is expired, value is dynamically refreshed
	v, err = memory.Get(t.Context(), "d1")
	assert.NoError(t, err)
	assert.Equal(t, "v1", v)

	memory.SetDynamic("d2", func(ctx context.Context) (string, error) {
		return "", errors.New("expected error")
	})
	_, err = memory.Get(t.Context(), "d2")
	assert.ErrorContains(t, err, "expected error")

	v, err = memory.GetOrSet(t.Context(), "k2", func(ctx context.Context) (string, error) {
		return "v2", nil
	})
	assert.NoError(t, err)
	assert.Equal(t, "v2", v)

	v, err = memory.GetOrSet(t.Context(), "k2", func(ctx context.Context) (string, error) {
		return "", errors.New("already set")
	})
	assert.NoError(t, err)
	assert.Equal(t, "v2", v)

	memory.Delete("k2")
	_, err = memory.Get(t.Context(), "k2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryExpirer(t *testing.T) {
	refreshes := new(atomic.Int64)
	memory := NewMemory[int](t.Context(), 10*time.Millisecond)
	memory.Set("static", 1)
	memory.SetDynamic("dynamic", func(ctx context.Context) (int, error) {
		return int(refreshes.Add(1)), nil
	})

	v, err := memory.Get(t.Context(), "dynamic")
	assert.NoError(t, err)
	assert.Equal(t, 1, v)

	assert.Eventually(t, func() bool {
		_, found := memory.m.Load("static")
		return !found && refreshes.Load() > 1
	}, 5*time.Second, 50*time.Millisecond)
}

func TestCatalogSource(t *testing.T) {
	loads := new(atomic.Int64)
	source := catalog.SourceFunc(func(ctx context.Context) (*catalog.Catalog, error) {
		loads.Add(1)
		return catalog.Parse(strings.NewReader(strings.Join(catalog.Columns, ",") + "\nsand,Sand,Aggregates,kg,1600,0.37,0.49,0.03,,,,,,\n"))
	})

	cached := NewCatalogSource(t.Context(), "test", source, time.Hour)
	assert.Equal(t, "test", cached.String())

	for range 3 {
		c, err := cached.Load(t.Context())
		assert.NoError(t, err)
		assert.Equal(t, 1, c.Len())
	}
	assert.Equal(t, int64(1), loads.Load())

	failing := NewCatalogSource(t.Context(), "failing", catalog.SourceFunc(func(ctx context.Context) (*catalog.Catalog, error) {
		return nil, errors.New("bucket not found")
	}), time.Hour)
	_, err := failing.Load(t.Context())
	assert.ErrorContains(t, err, "bucket not found")
}
