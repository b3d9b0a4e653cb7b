package bench

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"fortio.org/safecast"
	"go.uber.org/zap"
)

// Runner executes an external command with stdin and returns its stdout.
type Runner interface {
	Run(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %s", name, lastLine(msg))
	}
	return stdout.Bytes(), nil
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

var ErrDockerUnavailable = errors.New("docker CLI not found")

// DockerBuilder builds images with the docker CLI. The Dockerfile is passed
// on stdin, so ContextDir only has to contain the files it copies. Images
// are removed after measurement unless Keep is set.
type DockerBuilder struct {
	Binary     string
	ContextDir string
	Keep       bool

	runner Runner
	logger *zap.Logger
}

func NewDockerBuilder(binary, contextDir string, logger *zap.Logger) *DockerBuilder {
	if binary == "" {
		binary = "docker"
	}
	if contextDir == "" {
		contextDir = "."
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DockerBuilder{
		Binary:     binary,
		ContextDir: contextDir,
		runner:     execRunner{},
		logger:     logger,
	}
}

// Available checks that the docker binary can be found.
func (d *DockerBuilder) Available() error {
	if _, err := exec.LookPath(d.Binary); err != nil {
		return fmt.Errorf("%w: %s", ErrDockerUnavailable, d.Binary)
	}
	return nil
}

func (d *DockerBuilder) Build(ctx context.Context, dockerfile []byte, tag string) Result {
	result := Result{ImageTag: tag}

	d.logger.Info("building image", zap.String("tag", tag))
	start := time.Now()
	_, err := d.runner.Run(ctx, dockerfile, d.Binary, "build", "--rm", "--force-rm", "-t", tag, "-f", "-", d.ContextDir)
	if err != nil {
		result.Error = fmt.Sprintf("build failed: %v", err)
		return result
	}
	result.BuildDuration = time.Since(start)

	defer d.cleanup(tag)

	out, err := d.runner.Run(ctx, nil, d.Binary, "image", "inspect", "--format", "{{.Size}}", tag)
	if err != nil {
		result.Error = fmt.Sprintf("inspect failed: %v", err)
		return result
	}
	size, err := strconv.ParseInt(strings.TrimSpace(string(out)), 10, 64)
	if err != nil {
		result.Error = fmt.Sprintf("unexpected image size %q", strings.TrimSpace(string(out)))
		return result
	}
	if result.ImageSize, err = safecast.Conv[uint64](size); err != nil {
		result.Error = fmt.Sprintf("unexpected image size %d", size)
		return result
	}

	out, err = d.runner.Run(ctx, nil, d.Binary, "history", "-q", tag)
	if err != nil {
		result.Error = fmt.Sprintf("history failed: %v", err)
		return result
	}
	for _, line := range strings.Split(string(out), "\n") {
		if strings.TrimSpace(line) != "" {
			result.LayerCount++
		}
	}

	d.logger.Info("build finished",
		zap.String("tag", tag),
		zap.Uint64("size", result.ImageSize),
		zap.Int("layers", result.LayerCount),
		zap.Duration("duration", result.BuildDuration),
	)
	return result
}

func (d *DockerBuilder) cleanup(tag string) {
	if d.Keep {
		return
	}
	// the build context may already be cancelled; removal must still run
	if _, err := d.runner.Run(context.Background(), nil, d.Binary, "rmi", "-f", tag); err != nil {
		d.logger.Warn("could not remove image", zap.String("tag", tag), zap.Error(err))
	}
}
