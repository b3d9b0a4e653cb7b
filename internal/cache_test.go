package internal

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tt "github.com/dlinter/dlin/internal/types"
)

func sampleIssues(filename string) []tt.Issue {
	return []tt.Issue{{
		Rule:     "BP001",
		Name:     "pinned-base-image",
		Category: tt.CategoryBestPractice,
		Filename: filename,
		Line:     1,
		EndLine:  1,
		Severity: tt.SeverityWarning,
		Message:  "test issue",
	}}
}

func TestCache(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	cacheDir := filepath.Join(tmpDir, "cache")

	cache, err := NewCache(cacheDir, time.Hour)
	require.NoError(t, err)

	t.Run("SetAndGet", func(t *testing.T) {
		filename := writeFile(t, tmpDir, "Dockerfile", "FROM python\n")
		issues := sampleIssues(filename)

		require.NoError(t, cache.Set(filename, issues))

		cached, found := cache.Get(filename)
		assert.True(t, found)
		assert.Equal(t, issues, cached)
	})

	t.Run("Persistence", func(t *testing.T) {
		filename := writeFile(t, tmpDir, "Dockerfile.persist", "FROM python\n")
		issues := sampleIssues(filename)
		require.NoError(t, cache.Set(filename, issues))

		reopened, err := NewCache(cacheDir, time.Hour)
		require.NoError(t, err)

		cached, found := reopened.Get(filename)
		require.True(t, found)
		assert.Equal(t, issues[0].Rule, cached[0].Rule)
		assert.Equal(t, issues[0].Severity, cached[0].Severity)
		assert.Equal(t, issues[0].Category, cached[0].Category)
	})

	t.Run("FileModification", func(t *testing.T) {
		filename := writeFile(t, tmpDir, "Dockerfile.mod", "FROM python\n")
		require.NoError(t, cache.Set(filename, sampleIssues(filename)))

		require.NoError(t, os.WriteFile(filename, []byte("FROM python:3.12\n"), 0o644))

		_, found := cache.Get(filename)
		assert.False(t, found)
	})

	t.Run("Variant", func(t *testing.T) {
		variantCache, err := NewCache(filepath.Join(tmpDir, "variant"), time.Hour)
		require.NoError(t, err)

		filename := writeFile(t, tmpDir, "Dockerfile.variant", "FROM python\n")
		variantCache.SetVariant("a")
		require.NoError(t, variantCache.Set(filename, sampleIssues(filename)))

		variantCache.SetVariant("b")
		_, found := variantCache.Get(filename)
		assert.False(t, found)
	})
}

func TestCacheExpiry(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	cache, err := NewCache(filepath.Join(tmpDir, "cache"), time.Hour)
	require.NoError(t, err)

	filename := writeFile(t, tmpDir, "Dockerfile", "FROM python\n")
	require.NoError(t, cache.Set(filename, sampleIssues(filename)))

	cache.SetMaxAge(time.Nanosecond)
	time.Sleep(time.Millisecond)

	_, found := cache.Get(filename)
	assert.False(t, found)
	assert.Equal(t, 0, cache.Len())
}

func TestCacheDependencies(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	cacheDir := filepath.Join(tmpDir, "cache")
	config := writeFile(t, tmpDir, ".dlin.yaml", "name: dlin\n")
	filename := writeFile(t, tmpDir, "Dockerfile", "FROM python\n")

	cache, err := NewCache(cacheDir, time.Hour, config)
	require.NoError(t, err)
	require.NoError(t, cache.Set(filename, sampleIssues(filename)))

	reopened, err := NewCache(cacheDir, time.Hour, config)
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.Len())

	require.NoError(t, os.WriteFile(config, []byte("name: changed\n"), 0o644))

	_, found := reopened.Get(filename)
	assert.False(t, found)

	changed, err := NewCache(cacheDir, time.Hour, config)
	require.NoError(t, err)
	assert.Equal(t, 0, changed.Len())
}

func TestCacheCorruptFile(t *testing.T) {
	t.Parallel()

	cacheDir := t.TempDir()
	writeFile(t, cacheDir, cacheFileName, "definitely not msgpack")

	cache, err := NewCache(cacheDir, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, cache.Len())
}

func TestCacheInvalidateAll(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	cache, err := NewCache(filepath.Join(tmpDir, "cache"), time.Hour)
	require.NoError(t, err)

	filename := writeFile(t, tmpDir, "Dockerfile", "FROM python\n")
	require.NoError(t, cache.Set(filename, sampleIssues(filename)))
	require.NoError(t, cache.InvalidateAll())

	_, found := cache.Get(filename)
	assert.False(t, found)
}

func TestNilCache(t *testing.T) {
	t.Parallel()

	var cache *Cache
	cache.SetVariant("x")
	cache.SetMaxAge(time.Second)
	assert.NoError(t, cache.Set("Dockerfile", nil))
	_, found := cache.Get("Dockerfile")
	assert.False(t, found)
	assert.Equal(t, 0, cache.Len())
	assert.NoError(t, cache.InvalidateAll())
}

func TestCacheWithEngine(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	cache, err := NewCache(filepath.Join(tmpDir, "cache"), time.Hour)
	require.NoError(t, err)

	engine := newTestEngine(t, nil)
	engine.SetCache(cache)

	filename := writeFile(t, tmpDir, "Dockerfile", untaggedInstall)

	issues, err := engine.Run(filename)
	require.NoError(t, err)
	require.NotEmpty(t, issues)
	assert.Equal(t, 1, cache.Len())

	cached, err := engine.Run(filename)
	require.NoError(t, err)
	assert.Equal(t, issues, cached)

	// a configuration change must not serve stale results
	engine.IgnoreRule("BP001")
	filtered, err := engine.Run(filename)
	require.NoError(t, err)
	assert.Len(t, filtered, len(issues)-1)
	assert.NotContains(t, ruleIDs(filtered), "BP001")
}

func TestCacheConcurrency(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	cache, err := NewCache(filepath.Join(tmpDir, "cache"), time.Hour)
	require.NoError(t, err)

	filename := writeFile(t, tmpDir, "Dockerfile", "FROM python\n")
	issues := sampleIssues(filename)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, cache.Set(filename, issues))
		}()
		go func() {
			defer wg.Done()
			_, _ = cache.Get(filename)
		}()
	}
	wg.Wait()

	cached, found := cache.Get(filename)
	assert.True(t, found)
	assert.Equal(t, issues, cached)
}
