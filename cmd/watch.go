package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dlinter/dlin/formatter"
	"github.com/dlinter/dlin/internal"
	tt "github.com/dlinter/dlin/internal/types"
)

var watchCmd = &cobra.Command{
	Use:   "watch [paths...]",
	Short: "Lint Dockerfiles again whenever they change",
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			args = []string{"."}
		}

		// runs until interrupted; --timeout does not apply
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		engine, err := loadEngine(nil)
		if err != nil {
			logger.Fatal("Failed to initialize lint engine", zap.Error(err))
		}
		applyIgnores(engine, ignoreRules, ignorePaths)

		watcher := internal.NewWatcher(engine, logger, printWatchResult(os.Stdout))
		if err := watcher.Watch(ctx, args...); err != nil {
			logger.Error("Error watching files", zap.Error(err))
			os.Exit(1)
		}
	},
}

func init() {
	watchCmd.Flags().StringVar(&ignoreRules, "ignore", "", "Comma-separated list of lint rules to ignore")
	watchCmd.Flags().StringVar(&ignorePaths, "ignore-paths", "", "Comma-separated list of paths to ignore")
}

// printWatchResult renders every re-lint as text. Results arrive from timer
// goroutines, so writes are serialized.
func printWatchResult(w io.Writer) internal.ResultFunc {
	var mu sync.Mutex
	reporter := formatter.NewReporter(w, formatter.FormatText)
	ok := color.New(color.FgGreen)

	return func(filename string, issues []tt.Issue, err error) {
		mu.Lock()
		defer mu.Unlock()

		if err != nil {
			fmt.Fprintf(w, "%s: %v\n", filename, err)
			return
		}
		if len(issues) == 0 {
			ok.Fprintf(w, "%s: no issues\n", filename)
			return
		}
		if err := reporter.Report(issues); err != nil {
			logger.Error("Error reporting issues", zap.String("file", filename), zap.Error(err))
		}
	}
}
