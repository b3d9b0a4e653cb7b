package fixer

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/dlinter/dlin/internal/optimizer"
)

// Optimizer rewrites Dockerfile source.
type Optimizer interface {
	Optimize(source []byte) optimizer.Result
}

// Fixer applies the optimizer to Dockerfiles.
//
// With DryRun set only the change log is printed. Otherwise the rewritten
// Dockerfile goes to Output when set, back to the source file when InPlace is
// set, or to the writer otherwise.
type Fixer struct {
	DryRun  bool
	InPlace bool
	Output  string
	JSON    bool

	optimizer Optimizer
	out       io.Writer
	logger    *zap.Logger
}

func New(opt Optimizer, out io.Writer, logger *zap.Logger) *Fixer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fixer{
		optimizer: opt,
		out:       out,
		logger:    logger,
	}
}

// Report is the JSON form of a fix.
type Report struct {
	File    string             `json:"file"`
	Changes []optimizer.Change `json:"changes"`
	Content string             `json:"content,omitempty"`
}

func (f *Fixer) Fix(filename string) (optimizer.Result, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return optimizer.Result{}, fmt.Errorf("failed to read file: %w", err)
	}

	result := f.optimizer.Optimize(content)
	f.logger.Debug("optimized dockerfile",
		zap.String("file", filename),
		zap.Int("changes", len(result.Changes)),
	)

	switch {
	case f.DryRun:
		return result, f.printChanges(filename, result)
	case f.Output != "":
		if err := writeFile(f.Output, []byte(result.Text()), 0o644); err != nil {
			return result, err
		}
	case f.InPlace:
		if !result.Changed() {
			return result, nil
		}
		mode := os.FileMode(0o644)
		if info, err := os.Stat(filename); err == nil {
			mode = info.Mode().Perm()
		}
		if err := writeFile(filename, []byte(result.Text()), mode); err != nil {
			return result, err
		}
	default:
		if f.JSON {
			return result, f.printJSON(filename, result, true)
		}
		if _, err := io.WriteString(f.out, result.Text()); err != nil {
			return result, fmt.Errorf("failed to write output: %w", err)
		}
		return result, nil
	}

	return result, f.printChanges(filename, result)
}

func (f *Fixer) printChanges(filename string, result optimizer.Result) error {
	if f.JSON {
		return f.printJSON(filename, result, false)
	}

	if !result.Changed() {
		_, err := fmt.Fprintf(f.out, "%s: already optimal\n", filename)
		return err
	}

	verb := "Applied"
	if f.DryRun {
		verb = "Would apply"
	}
	if _, err := fmt.Fprintf(f.out, "%s %d change(s) to %s:\n", verb, len(result.Changes), filename); err != nil {
		return err
	}
	for _, c := range result.Changes {
		if _, err := fmt.Fprintf(f.out, "  %s\n", c); err != nil {
			return err
		}
	}
	return nil
}

func (f *Fixer) printJSON(filename string, result optimizer.Result, withContent bool) error {
	report := Report{File: filename, Changes: result.Changes}
	if report.Changes == nil {
		report.Changes = []optimizer.Change{}
	}
	if withContent {
		report.Content = result.Text()
	}

	enc := json.NewEncoder(f.out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// writeFile replaces path atomically through a temporary file in the same
// directory.
func writeFile(path string, data []byte, mode os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".dlin-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace file: %w", err)
	}
	return nil
}
