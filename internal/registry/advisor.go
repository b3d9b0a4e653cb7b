package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dlinter/dlin/internal/instruction"
	"github.com/dlinter/dlin/internal/rules"
	tt "github.com/dlinter/dlin/internal/types"
)

// DefaultTimeout bounds a single registry lookup.
const DefaultTimeout = 5 * time.Second

// Meta describes the diagnostic produced by the advisor.
var Meta = rules.Meta{
	ID:          "REG001",
	Name:        "newer-base-image",
	Category:    tt.CategoryBestPractice,
	Severity:    tt.SeverityInfo,
	Description: "A newer patch release of the base image is available",
	Explanation: "Patch releases of base images usually carry security fixes only. " +
		"Moving to the newest patch of the same minor version keeps the image current " +
		"without changing its major or minor version.",
}

// Advisor suggests newer patch tags for the base images of a Dockerfile.
// Results are cached per image reference for the lifetime of the advisor.
type Advisor struct {
	lookup  Lookup
	timeout time.Duration
	logger  *zap.Logger

	mu    sync.Mutex
	cache map[string][]string
}

func NewAdvisor(lookup Lookup, timeout time.Duration, logger *zap.Logger) *Advisor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Advisor{
		lookup:  lookup,
		timeout: timeout,
		logger:  logger,
		cache:   make(map[string][]string),
	}
}

// Check reports a REG001 issue for every FROM whose tag has a newer patch
// release. Images referring to earlier stages, digest-pinned images and
// images without a full version tag are skipped.
func (a *Advisor) Check(ctx context.Context, seq instruction.Sequence) []tt.Issue {
	var issues []tt.Issue
	aliases := make(map[string]struct{})
	for _, inst := range seq {
		if inst.Kind != instruction.From || inst.Image == nil {
			continue
		}
		img := inst.Image
		_, isStage := aliases[strings.ToLower(img.Name)]
		if img.Alias != "" {
			aliases[strings.ToLower(img.Alias)] = struct{}{}
		}
		if isStage || img.IsScratch() || img.Tag == "" || img.Digest != "" ||
			strings.Contains(img.Name+img.Tag, "$") {
			continue
		}

		newer := a.newer(ctx, img.Name, img.Tag)
		if len(newer) == 0 {
			continue
		}
		issues = append(issues, Meta.Issue(inst,
			fmt.Sprintf("Newer version available: %s:%s (current %s)", img.Name, newer[0], img.Tag),
			fmt.Sprintf("Use 'FROM %s:%s'", img.Name, newer[0])))
	}
	return issues
}

func (a *Advisor) newer(ctx context.Context, image, tag string) []string {
	key := image + ":" + tag

	a.mu.Lock()
	cached, ok := a.cache[key]
	a.mu.Unlock()
	if ok {
		return cached
	}

	lookupCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	newer, err := a.lookup.Lookup(lookupCtx, image, tag)
	if err != nil {
		a.logger.Debug("registry lookup failed",
			zap.String("image", key),
			zap.Error(err),
		)
		newer = nil
	}

	a.mu.Lock()
	a.cache[key] = newer
	a.mu.Unlock()
	return newer
}
