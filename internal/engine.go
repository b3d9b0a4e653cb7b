package internal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dlinter/dlin/internal/instruction"
	"github.com/dlinter/dlin/internal/nolint"
	"github.com/dlinter/dlin/internal/optimizer"
	"github.com/dlinter/dlin/internal/parser"
	"github.com/dlinter/dlin/internal/rules"
	tt "github.com/dlinter/dlin/internal/types"
)

// Engine manages the linting process.
type Engine struct {
	logger       *zap.Logger
	catalog      *rules.Catalog
	severities   map[string]tt.Severity
	mu           sync.RWMutex
	ignoredRules map[string]bool
	ignoredPaths []string
	pipeline     *optimizer.Pipeline
	cache        *Cache
	advisor      Advisor
}

// Advisor produces issues that depend on services outside the Dockerfile,
// such as a container registry.
type Advisor interface {
	Check(ctx context.Context, seq instruction.Sequence) []tt.Issue
}

// NewEngine creates a new lint engine. Rule keys in cfg may be ids or names;
// unknown keys are logged and skipped. disabledPasses names optimizer passes
// to leave out of the pipeline.
func NewEngine(logger *zap.Logger, cfg map[string]tt.ConfigRule, disabledPasses []string) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	pipeline, err := optimizer.New(disabledPasses...)
	if err != nil {
		return nil, fmt.Errorf("error creating optimizer: %w", err)
	}

	engine := &Engine{
		logger:       logger,
		catalog:      rules.Default(),
		severities:   make(map[string]tt.Severity),
		ignoredRules: make(map[string]bool),
		pipeline:     pipeline,
	}
	engine.applyRules(cfg)

	return engine, nil
}

func (e *Engine) applyRules(cfg map[string]tt.ConfigRule) {
	for key, rule := range cfg {
		r, ok := e.catalog.Lookup(key)
		if !ok {
			// Unknown rule, continue to the next one
			e.logger.Warn("unknown rule in configuration", zap.String("rule", key))
			continue
		}
		if rule.Severity == nil {
			continue
		}
		e.severities[r.Meta().ID] = *rule.Severity
	}
}

// Severity returns the effective severity of a rule after configuration.
func (e *Engine) Severity(meta rules.Meta) tt.Severity {
	if sev, ok := e.severities[meta.ID]; ok {
		return sev
	}
	return meta.Severity
}

// Rules returns the metadata of every rule with its effective severity, in
// registration order. Rules switched off are reported with SeverityOff.
func (e *Engine) Rules() []rules.Meta {
	metas := e.catalog.Metas()
	for i := range metas {
		metas[i].Severity = e.Severity(metas[i])
		if e.isIgnored(metas[i]) {
			metas[i].Severity = tt.SeverityOff
		}
	}
	return metas
}

func (e *Engine) enabledRules() []rules.Rule {
	var enabled []rules.Rule
	for _, r := range e.catalog.Rules() {
		meta := r.Meta()
		if e.Severity(meta) == tt.SeverityOff || e.isIgnored(meta) {
			continue
		}
		enabled = append(enabled, r)
	}
	return enabled
}

func (e *Engine) isIgnored(meta rules.Meta) bool {
	return e.isIgnoredKey(meta.ID, meta.Name)
}

func (e *Engine) isIgnoredKey(keys ...string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, key := range keys {
		if e.ignoredRules[key] || e.ignoredRules[strings.ToLower(key)] {
			return true
		}
	}
	return false
}

// Check evaluates every enabled rule against seq. Rules run concurrently,
// each isolated from the others' failures, and the result is ordered by
// line, then rule id, then registration order.
func (e *Engine) Check(seq instruction.Sequence) []tt.Issue {
	enabled := e.enabledRules()
	results := make([][]tt.Issue, len(enabled))

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, r := range enabled {
		g.Go(func() error {
			results[i] = e.runRule(r, seq)
			return nil
		})
	}
	_ = g.Wait()

	var allIssues []tt.Issue
	for i, issues := range results {
		sev := e.Severity(enabled[i].Meta())
		for _, issue := range issues {
			issue.Severity = sev
			allIssues = append(allIssues, issue)
		}
	}

	sortIssues(allIssues)
	return allIssues
}

func sortIssues(issues []tt.Issue) {
	sort.SliceStable(issues, func(a, b int) bool {
		if issues[a].Line != issues[b].Line {
			return issues[a].Line < issues[b].Line
		}
		return issues[a].Rule < issues[b].Rule
	})
}

func (e *Engine) runRule(r rules.Rule, seq instruction.Sequence) (issues []tt.Issue) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error("rule panicked",
				zap.String("rule", r.Meta().ID),
				zap.Any("panic", rec),
			)
			issues = nil
		}
	}()
	return r.Check(seq)
}

// Run applies all lint rules to the given file and returns a slice of Issues.
func (e *Engine) Run(filename string) ([]tt.Issue, error) {
	if e.isIgnoredPath(filename) {
		return nil, nil
	}

	e.cache.SetVariant(e.fingerprint())
	if issues, ok := e.cache.Get(filename); ok {
		e.logger.Debug("cache hit", zap.String("file", filename))
		return issues, nil
	}

	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}

	issues := e.lint(string(content))
	for i := range issues {
		issues[i].Filename = filename
	}

	if err := e.cache.Set(filename, issues); err != nil {
		e.logger.Warn("failed to update cache", zap.String("file", filename), zap.Error(err))
	}

	return issues, nil
}

// RunSource applies all lint rules to the given source and returns a slice of Issues.
func (e *Engine) RunSource(source []byte) ([]tt.Issue, error) {
	return e.lint(string(source)), nil
}

func (e *Engine) lint(text string) []tt.Issue {
	seq := parser.Parse(text)
	issues := e.Check(seq)
	if e.advisor != nil {
		for _, issue := range e.advisor.Check(context.Background(), seq) {
			if !e.isIgnoredKey(issue.Rule, issue.Name) {
				issues = append(issues, issue)
			}
		}
		sortIssues(issues)
	}
	nolintMgr := nolint.ParseComments(text, seq)
	return filterNolintIssues(nolintMgr, issues)
}

// Optimize runs the rewrite pipeline over source.
func (e *Engine) Optimize(source []byte) optimizer.Result {
	return e.pipeline.Optimize(parser.Parse(string(source)))
}

// IgnoreRule disables a rule by id or name.
func (e *Engine) IgnoreRule(rule string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if r, ok := e.catalog.Lookup(rule); ok {
		e.ignoredRules[r.Meta().ID] = true
		return
	}
	e.ignoredRules[strings.ToLower(rule)] = true
}

// IgnorePath skips files matching a glob pattern or lying under a directory.
func (e *Engine) IgnorePath(path string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ignoredPaths = append(e.ignoredPaths, filepath.Clean(path))
}

func (e *Engine) isIgnoredPath(filename string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	clean := filepath.Clean(filename)
	for _, pattern := range e.ignoredPaths {
		if ok, _ := filepath.Match(pattern, clean); ok {
			return true
		}
		if ok, _ := filepath.Match(pattern, filepath.Base(clean)); ok {
			return true
		}
		if clean == pattern || strings.HasPrefix(clean, pattern+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// fingerprint identifies the effective rule configuration.
func (e *Engine) fingerprint() string {
	var b strings.Builder
	for _, r := range e.enabledRules() {
		meta := r.Meta()
		fmt.Fprintf(&b, "%s=%s;", meta.ID, e.Severity(meta))
	}
	if e.advisor != nil {
		b.WriteString("advisor;")
	}
	return b.String()
}

// SetAdvisor adds the issues of a to every lint run. They are subject to
// IgnoreRule and nolint comments like the built-in rules.
func (e *Engine) SetAdvisor(a Advisor) {
	e.advisor = a
}

// SetCache enables result caching. A nil cache disables it.
func (e *Engine) SetCache(c *Cache) {
	e.cache = c
}

// filterNolintIssues filters issues based on nolint comments.
func filterNolintIssues(mgr *nolint.Manager, issues []tt.Issue) []tt.Issue {
	if mgr == nil {
		return issues
	}
	filtered := make([]tt.Issue, 0, len(issues))
	for _, issue := range issues {
		if !mgr.IsNolint(issue.Line, issue.Rule, issue.Name) {
			filtered = append(filtered, issue)
		}
	}
	return filtered
}

// SourceCode stores the content of a source code file.
type SourceCode struct {
	Lines []string
}

// ReadSourceCode reads the content of a file and returns it as a `SourceCode` struct.
func ReadSourceCode(filename string) (*SourceCode, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return NewSourceCode(string(content)), nil
}

// NewSourceCode splits text into lines, dropping carriage returns.
func NewSourceCode(text string) *SourceCode {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	return &SourceCode{Lines: lines}
}
