package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dlinter/dlin/internal/bench"
	"github.com/dlinter/dlin/internal/fixer"
)

var (
	benchContext string
	dockerBinary string
	keepImages   bool
	benchJSON    bool
)

var benchCmd = &cobra.Command{
	Use:   "bench <Dockerfile>",
	Short: "Build a Dockerfile before and after optimization and compare the images",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		engine, err := loadEngine(nil)
		if err != nil {
			logger.Fatal("Failed to initialize lint engine", zap.Error(err))
		}

		builder := bench.NewDockerBuilder(dockerBinary, benchContext, logger)
		builder.Keep = keepImages
		if err := builder.Available(); err != nil {
			fmt.Println("error:", err)
			os.Exit(1)
		}

		c, err := runBenchmark(ctx, engine, builder, args[0])
		if err != nil {
			logger.Error("Error running benchmark", zap.Error(err))
			os.Exit(1)
		}
		if err := printComparison(os.Stdout, c, benchJSON); err != nil {
			logger.Error("Error printing benchmark", zap.Error(err))
		}
		if !c.OK() {
			os.Exit(1)
		}
	},
}

func init() {
	benchCmd.Flags().StringVar(&benchContext, "context", ".", "Build context directory")
	benchCmd.Flags().StringVar(&dockerBinary, "docker", "docker", "Docker CLI binary")
	benchCmd.Flags().BoolVar(&keepImages, "keep", false, "Keep the benchmark images")
	benchCmd.Flags().BoolVar(&benchJSON, "json", false, "Output the comparison in JSON format")
}

func runBenchmark(ctx context.Context, opt fixer.Optimizer, b bench.Builder, path string) (bench.Comparison, error) {
	original, err := os.ReadFile(path)
	if err != nil {
		return bench.Comparison{}, fmt.Errorf("error reading %s: %w", path, err)
	}
	optimized := opt.Optimize(original)
	return bench.Compare(ctx, b, original, []byte(optimized.Text()), ""), nil
}

func printComparison(w io.Writer, c bench.Comparison, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(c)
	}

	row := func(label string, r bench.Result) {
		if !r.OK() {
			fmt.Fprintf(w, "%-10s %s: build failed: %s\n", label, r.ImageTag, r.Error)
			return
		}
		fmt.Fprintf(w, "%-10s %8.2f MB  %3d layers  %s\n", label, r.SizeMB(), r.LayerCount, r.BuildDuration.Round(time.Millisecond))
	}
	row("original", c.Original)
	row("optimized", c.Optimized)

	if c.OK() {
		fmt.Fprintf(w, "size reduction: %.1f%%, layers: %+d, build time: %v\n",
			c.SizeReduction(), c.LayerDelta, c.DurationDelta.Round(time.Millisecond))
	}
	return nil
}
