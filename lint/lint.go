package lint

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/dlinter/dlin/internal"
	"github.com/dlinter/dlin/internal/registry"
	tt "github.com/dlinter/dlin/internal/types"
	"github.com/dlinter/dlin/scanner"
)

type LintEngine interface {
	Run(filePath string) ([]tt.Issue, error)
	RunSource(source []byte) ([]tt.Issue, error)
	IgnoreRule(rule string)
	IgnorePath(path string)
}

// New builds a lint engine from cfg. The registry advisor and the result
// cache are attached when the configuration enables them.
func New(logger *zap.Logger, cfg Config) (*internal.Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	engine, err := internal.NewEngine(logger, cfg.Rules, cfg.Optimizer.Disable)
	if err != nil {
		return nil, err
	}

	if cfg.Registry.Enabled {
		client := registry.NewClient(registry.NewRemoteTagLister())
		engine.SetAdvisor(registry.NewAdvisor(client, cfg.Registry.Timeout, logger))
	}

	if cfg.Cache.Enabled {
		cache, err := newCache(cfg)
		if err != nil {
			// linting without a cache is still correct
			logger.Warn("cache disabled", zap.Error(err))
		} else {
			engine.SetCache(cache)
		}
	}

	return engine, nil
}

func newCache(cfg Config) (*internal.Cache, error) {
	dir := cfg.Cache.Dir
	if dir == "" {
		var err error
		if dir, err = internal.DefaultCacheDir(); err != nil {
			return nil, fmt.Errorf("error locating cache directory: %w", err)
		}
	}

	var deps []string
	if cfg.path != "" {
		deps = append(deps, cfg.path)
	}
	return internal.NewCache(dir, cfg.Cache.MaxAge, deps...)
}

func ProcessSources(
	ctx context.Context,
	logger *zap.Logger,
	engine LintEngine,
	sources [][]byte,
	processor func(LintEngine, []byte) ([]tt.Issue, error),
) ([]tt.Issue, error) {
	var allIssues []tt.Issue
	for i, source := range sources {
		if err := ctx.Err(); err != nil {
			return allIssues, err
		}
		issues, err := processor(engine, source)
		if err != nil {
			if logger != nil {
				logger.Error("Error processing source", zap.Int("source", i), zap.Error(err))
			}
			return nil, err
		}
		allIssues = append(allIssues, issues...)
	}

	return allIssues, nil
}

func ProcessFiles(
	ctx context.Context,
	logger *zap.Logger,
	engine LintEngine,
	paths []string,
	processor func(LintEngine, string) ([]tt.Issue, error),
) ([]tt.Issue, error) {
	var allIssues []tt.Issue
	for _, path := range paths {
		issues, err := ProcessPath(ctx, logger, engine, path, processor)
		allIssues = append(allIssues, issues...)
		if err != nil {
			if logger != nil {
				logger.Error("Error processing path", zap.String("path", path), zap.Error(err))
			}
			return allIssues, err
		}
	}

	return allIssues, nil
}

// ProcessPath lints a single file, or every Dockerfile below a directory.
// Files named explicitly are linted whatever their name. On cancellation
// the issues collected so far are returned together with ctx.Err().
func ProcessPath(
	ctx context.Context,
	logger *zap.Logger,
	engine LintEngine,
	path string,
	processor func(LintEngine, string) ([]tt.Issue, error),
) ([]tt.Issue, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("error accessing %s: %w", path, err)
	}

	if !info.IsDir() {
		issues, err := processor(engine, path)
		if err != nil {
			return []tt.Issue{}, err
		}
		return issues, nil
	}

	found, err := scanner.New(path).Scan()
	if err != nil {
		return nil, fmt.Errorf("error walking directory %s: %w", path, err)
	}
	files := make([]string, len(found))
	for i, f := range found {
		files[i] = f.Path
	}

	return processConcurrently(ctx, logger, engine, path, files, processor)
}

type fileResult struct {
	issues []tt.Issue
	err    error
}

func processConcurrently(
	ctx context.Context,
	logger *zap.Logger,
	engine LintEngine,
	description string,
	files []string,
	processor func(LintEngine, string) ([]tt.Issue, error),
) ([]tt.Issue, error) {
	bar := newProgressBar(len(files), description)

	// results are indexed by file so the output order does not depend on
	// scheduling
	results := make([]fileResult, len(files))

	// limit the number of workers
	sem := make(chan struct{}, runtime.NumCPU())
	var wg sync.WaitGroup

	var ctxErr error
dispatch:
	for i, filePath := range files {
		if err := ctx.Err(); err != nil {
			ctxErr = err
			break
		}
		select {
		case <-ctx.Done():
			ctxErr = ctx.Err()
			break dispatch
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(i int, fp string) {
			defer wg.Done()
			defer func() { <-sem }()

			fileIssues, err := processor(engine, fp)
			if err != nil && logger != nil {
				logger.Error("Error processing file", zap.String("file", fp), zap.Error(err))
			}
			results[i] = fileResult{issues: fileIssues, err: err}
			if bar != nil {
				_ = bar.Add(1)
			}
		}(i, filePath)
	}
	wg.Wait()

	if bar != nil {
		_ = bar.Finish()
	}

	issues := make([]tt.Issue, 0)
	var errs []error
	for _, r := range results {
		if r.err != nil {
			errs = append(errs, r.err)
			continue
		}
		issues = append(issues, r.issues...)
	}

	if ctxErr != nil {
		return issues, ctxErr
	}
	return issues, errors.Join(errs...)
}

// newProgressBar returns nil unless stderr is a terminal.
func newProgressBar(total int, description string) *progressbar.ProgressBar {
	if total < 2 || !term.IsTerminal(int(os.Stderr.Fd())) {
		return nil
	}

	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(description),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}

func ProcessFile(engine LintEngine, filePath string) ([]tt.Issue, error) {
	return engine.Run(filePath)
}

func ProcessSource(engine LintEngine, source []byte) ([]tt.Issue, error) {
	return engine.RunSource(source)
}
