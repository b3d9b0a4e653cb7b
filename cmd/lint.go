package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dlinter/dlin/formatter"
	tt "github.com/dlinter/dlin/internal/types"
	"github.com/dlinter/dlin/lint"
)

// stdinPath makes lint read a Dockerfile from standard input.
const stdinPath = "-"

var (
	ignoreRules    string
	ignorePaths    string
	lintFormat     string
	lintJSONOutput bool
	explain        bool
	outPath        string
	checkUpdates   bool
	useCache       bool
)

var lintCmd = &cobra.Command{
	Use:   "lint [paths...]",
	Short: "Lint Dockerfiles",
	Long: `Lint Dockerfiles and report best-practice, performance and security issues.
Directories are searched for Dockerfiles recursively. Use "-" to read from standard input.`,
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			fmt.Println("error: Please provide file or directory paths")
			os.Exit(1)
		}

		format, err := formatter.ParseFormat(lintFormat)
		if err != nil {
			logger.Fatal("Invalid output format", zap.Error(err))
		}
		if lintJSONOutput {
			format = formatter.FormatJSON
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		engine, err := loadEngine(func(cfg *lint.Config) {
			if checkUpdates {
				cfg.Registry.Enabled = true
			}
			if useCache {
				cfg.Cache.Enabled = true
			}
		})
		if err != nil {
			logger.Fatal("Failed to initialize lint engine", zap.Error(err))
		}

		applyIgnores(engine, ignoreRules, ignorePaths)

		opts := reportOptions{format: format, explain: explain, output: outPath}
		count, err := runNormalLintProcess(ctx, logger, engine, args, opts, os.Stdin, os.Stdout)
		if err != nil {
			logger.Error("Error processing files", zap.Error(err))
			os.Exit(1)
		}
		if count > 0 {
			os.Exit(1)
		}
	},
}

func init() {
	lintCmd.Flags().StringVar(&ignoreRules, "ignore", "", "Comma-separated list of lint rules to ignore")
	lintCmd.Flags().StringVar(&ignorePaths, "ignore-paths", "", "Comma-separated list of paths to ignore")
	lintCmd.Flags().StringVar(&lintFormat, "format", "text", "Output format (text|json|sarif)")
	lintCmd.Flags().BoolVar(&lintJSONOutput, "json", false, "Output issues in JSON format (same as --format json)")
	lintCmd.Flags().BoolVar(&explain, "explain", false, "Include rule explanations in text output")
	lintCmd.Flags().StringVarP(&outPath, "output", "o", "", "Write the report to a file")
	lintCmd.Flags().BoolVar(&checkUpdates, "check-updates", false, "Query registries for newer base image tags")
	lintCmd.Flags().BoolVar(&useCache, "cache", false, "Reuse results for unchanged files")
}

func applyIgnores(engine lint.LintEngine, rules, paths string) {
	for _, rule := range splitList(rules) {
		engine.IgnoreRule(rule)
	}
	for _, path := range splitList(paths) {
		engine.IgnorePath(path)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

type reportOptions struct {
	format  formatter.Format
	explain bool
	output  string
}

// runNormalLintProcess lints paths and reports the issues. It returns the
// number of issues reported.
func runNormalLintProcess(
	ctx context.Context,
	logger *zap.Logger,
	engine lint.LintEngine,
	paths []string,
	opts reportOptions,
	stdin io.Reader,
	stdout io.Writer,
) (int, error) {
	var (
		issues []tt.Issue
		source []byte
		err    error
	)

	if len(paths) == 1 && paths[0] == stdinPath {
		source, err = io.ReadAll(stdin)
		if err != nil {
			return 0, fmt.Errorf("error reading standard input: %w", err)
		}
		issues, err = lint.ProcessSources(ctx, logger, engine, [][]byte{source}, lint.ProcessSource)
	} else {
		issues, err = lint.ProcessFiles(ctx, logger, engine, paths, lint.ProcessFile)
	}
	if err != nil && len(issues) == 0 {
		return 0, err
	}

	// issues collected before a failure are still reported
	if printErr := printIssues(issues, source, opts, stdout); printErr != nil {
		err = errors.Join(err, printErr)
	}
	return len(issues), err
}

func printIssues(issues []tt.Issue, stdinSource []byte, opts reportOptions, stdout io.Writer) error {
	w := stdout
	if opts.output != "" {
		f, err := os.Create(opts.output)
		if err != nil {
			return fmt.Errorf("error creating output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	reporter := formatter.NewReporter(w, opts.format).WithExplanations(opts.explain)
	if stdinSource != nil {
		reporter = reporter.WithStdin(stdinSource)
	}
	return reporter.Report(issues)
}
