package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dlinter/dlin/internal/fixer"
	"github.com/dlinter/dlin/scanner"
)

var (
	dryRun      bool
	fixOutput   string
	inPlace     bool
	fixJSONMode bool
)

var errOutputWithManyFiles = errors.New("--output needs exactly one Dockerfile")

var fixCmd = &cobra.Command{
	Use:   "fix [paths...]",
	Short: "Rewrite Dockerfiles with the optimizer",
	Long: `Rewrite Dockerfiles through the optimizer passes.
The rewritten file is printed unless --in-place or --output is given.
Comment lines are not carried over to the rewritten file.`,
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			fmt.Println("error: Please provide file or directory paths")
			os.Exit(1)
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		engine, err := loadEngine(nil)
		if err != nil {
			logger.Fatal("Failed to initialize lint engine", zap.Error(err))
		}

		fix := fixer.New(engine, os.Stdout, logger)
		fix.DryRun = dryRun
		fix.Output = fixOutput
		fix.InPlace = inPlace
		fix.JSON = fixJSONMode

		if err := runAutoFix(ctx, logger, fix, args); err != nil {
			logger.Error("error fixing files", zap.Error(err))
			os.Exit(1)
		}
	},
}

func init() {
	fixCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Run in dry-run mode (show changes without applying them)")
	fixCmd.Flags().StringVarP(&fixOutput, "output", "o", "", "Write the optimized Dockerfile to this path")
	fixCmd.Flags().BoolVar(&inPlace, "in-place", false, "Overwrite the Dockerfiles")
	fixCmd.Flags().BoolVar(&fixJSONMode, "json", false, "Output changes in JSON format")
}

func runAutoFix(ctx context.Context, logger *zap.Logger, fix *fixer.Fixer, paths []string) error {
	files, err := collectDockerfiles(paths)
	if err != nil {
		return err
	}
	if fix.Output != "" && len(files) != 1 {
		return errOutputWithManyFiles
	}

	var errs []error
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := fix.Fix(file); err != nil {
			logger.Error("error fixing file", zap.String("file", file), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", file, err))
		}
	}
	return errors.Join(errs...)
}

// collectDockerfiles expands directories into the Dockerfiles they contain.
func collectDockerfiles(paths []string) ([]string, error) {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("error accessing %s: %w", path, err)
		}
		if !info.IsDir() {
			files = append(files, path)
			continue
		}
		found, err := scanner.New(path).Scan()
		if err != nil {
			return nil, fmt.Errorf("error walking directory %s: %w", path, err)
		}
		for _, f := range found {
			files = append(files, f.Path)
		}
	}
	return files, nil
}
