package bench

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner answers docker CLI calls from canned outputs keyed by the
// subcommand and the image tag.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []string
	sizes   map[string]string
	layers  map[string]int
	failing map[string]bool
}

func (f *fakeRunner) Run(_ context.Context, stdin []byte, _ string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, strings.Join(args, " "))
	tag := args[len(args)-1]
	switch args[0] {
	case "build":
		tag = args[4]
		if f.failing[tag] || len(stdin) == 0 {
			return nil, errors.New("exit status 1")
		}
		return nil, nil
	case "image":
		return []byte(f.sizes[tag] + "\n"), nil
	case "history":
		return []byte(strings.Repeat("sha256:abc\n", f.layers[tag])), nil
	case "rmi":
		return nil, nil
	}
	return nil, errors.New("unexpected command")
}

func newFakeBuilder(r *fakeRunner) *DockerBuilder {
	b := NewDockerBuilder("", "", nil)
	b.runner = r
	return b
}

func TestDockerBuilder_Build(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{
		sizes:  map[string]string{"app": "10485760"},
		layers: map[string]int{"app": 7},
	}
	b := newFakeBuilder(runner)

	result := b.Build(context.Background(), []byte("FROM alpine:3\n"), "app")
	require.True(t, result.OK(), result.Error)
	assert.Equal(t, "app", result.ImageTag)
	assert.Equal(t, uint64(10485760), result.ImageSize)
	assert.InDelta(t, 10.0, result.SizeMB(), 0.001)
	assert.Equal(t, 7, result.LayerCount)

	assert.Equal(t, []string{
		"build --rm --force-rm -t app -f - .",
		"image inspect --format {{.Size}} app",
		"history -q app",
		"rmi -f app",
	}, runner.calls)
}

func TestDockerBuilder_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		runner  *fakeRunner
		wantErr string
		cleanup bool
	}{
		{
			name:    "build fails",
			runner:  &fakeRunner{failing: map[string]bool{"app": true}},
			wantErr: "build failed",
		},
		{
			name:    "bad size",
			runner:  &fakeRunner{sizes: map[string]string{"app": "huge"}},
			wantErr: "unexpected image size",
			cleanup: true,
		},
		{
			name:    "negative size",
			runner:  &fakeRunner{sizes: map[string]string{"app": "-1"}},
			wantErr: "unexpected image size",
			cleanup: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result := newFakeBuilder(tt.runner).Build(context.Background(), []byte("FROM x:1\n"), "app")
			assert.False(t, result.OK())
			assert.Contains(t, result.Error, tt.wantErr)
			assert.Zero(t, result.LayerCount)
			assert.Equal(t, tt.cleanup, containsCall(tt.runner.calls, "rmi -f app"))
		})
	}
}

func TestDockerBuilder_Keep(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{sizes: map[string]string{"app": "1"}}
	b := newFakeBuilder(runner)
	b.Keep = true

	result := b.Build(context.Background(), []byte("FROM x:1\n"), "app")
	require.True(t, result.OK())
	assert.False(t, containsCall(runner.calls, "rmi -f app"))
}

func containsCall(calls []string, call string) bool {
	for _, c := range calls {
		if c == call {
			return true
		}
	}
	return false
}

type staticBuilder map[string]Result

func (s staticBuilder) Build(_ context.Context, _ []byte, tag string) Result {
	r := s[tag]
	r.ImageTag = tag
	return r
}

func TestCompare(t *testing.T) {
	t.Parallel()

	b := staticBuilder{
		"p-original":  {ImageSize: 200, LayerCount: 10, BuildDuration: 3 * time.Second},
		"p-optimized": {ImageSize: 150, LayerCount: 6, BuildDuration: 2 * time.Second},
	}
	c := Compare(context.Background(), b, []byte("a"), []byte("b"), "p")

	require.True(t, c.OK())
	assert.Equal(t, "p-original", c.Original.ImageTag)
	assert.Equal(t, "p-optimized", c.Optimized.ImageTag)
	assert.Equal(t, int64(-50), c.SizeDelta)
	assert.Equal(t, -4, c.LayerDelta)
	assert.Equal(t, -time.Second, c.DurationDelta)
	assert.InDelta(t, 25.0, c.SizeReduction(), 0.001)
}

func TestCompareWithFailure(t *testing.T) {
	t.Parallel()

	b := staticBuilder{
		"p-original":  {ImageSize: 200, LayerCount: 10},
		"p-optimized": {Error: "build failed: exit status 1"},
	}
	c := Compare(context.Background(), b, []byte("a"), []byte("b"), "p")

	assert.False(t, c.OK())
	assert.Zero(t, c.SizeDelta)
	assert.Zero(t, c.SizeReduction())
	assert.Equal(t, uint64(200), c.Original.ImageSize)
}

func TestCompareDefaultPrefix(t *testing.T) {
	t.Parallel()

	c := Compare(context.Background(), staticBuilder{}, nil, nil, "")
	assert.True(t, strings.HasPrefix(c.Original.ImageTag, "dlin-bench-"))
	assert.True(t, strings.HasSuffix(c.Optimized.ImageTag, "-optimized"))
}
