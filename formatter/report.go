package formatter

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dlinter/dlin/internal"
	tt "github.com/dlinter/dlin/internal/types"
)

// Format represents the output format for reporting issues.
type Format int

const (
	// FormatText outputs issues with source snippets.
	FormatText Format = iota
	FormatJSON
	// FormatSARIF outputs issues in SARIF 2.1.0 (Static Analysis Results Interchange Format).
	FormatSARIF
)

func (f Format) String() string {
	switch f {
	case FormatText:
		return "text"
	case FormatJSON:
		return "json"
	case FormatSARIF:
		return "sarif"
	default:
		return "unknown"
	}
}

// ParseFormat converts a format name into a Format.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "sarif":
		return FormatSARIF, nil
	}
	return FormatText, fmt.Errorf("unsupported format %q", name)
}

// SourceFunc loads the lines of a file for snippets.
type SourceFunc func(filename string) (*internal.SourceCode, error)

// Reporter writes issues in one of the supported formats.
type Reporter struct {
	writer  io.Writer
	format  Format
	explain bool
	source  SourceFunc
	stdin   *internal.SourceCode
}

func NewReporter(writer io.Writer, format Format) *Reporter {
	return &Reporter{
		writer: writer,
		format: format,
		source: internal.ReadSourceCode,
	}
}

// WithExplanations includes rule explanations in text output.
func (r *Reporter) WithExplanations(explain bool) *Reporter {
	r.explain = explain
	return r
}

// WithSource replaces how source files are loaded for snippets.
func (r *Reporter) WithSource(fn SourceFunc) *Reporter {
	r.source = fn
	return r
}

// WithStdin sets the source used for issues that carry no filename.
func (r *Reporter) WithStdin(content []byte) *Reporter {
	r.stdin = internal.NewSourceCode(string(content))
	return r
}

// Report writes the issues. Issues are expected in reporting order, grouped
// by file.
func (r *Reporter) Report(issues []tt.Issue) error {
	switch r.format {
	case FormatText:
		return r.reportText(issues)
	case FormatJSON:
		return r.reportJSON(issues)
	case FormatSARIF:
		return r.reportSARIF(issues)
	default:
		return fmt.Errorf("unsupported format: %s", r.format)
	}
}

func (r *Reporter) reportText(issues []tt.Issue) error {
	sources := make(map[string]*internal.SourceCode)
	for _, issue := range issues {
		sc, ok := sources[issue.Filename]
		if !ok {
			sc = r.load(issue.Filename)
			sources[issue.Filename] = sc
		}
		text := GenerateFormattedIssue([]tt.Issue{issue}, sc, r.explain)
		if _, err := io.WriteString(r.writer, text); err != nil {
			return fmt.Errorf("failed to write text output: %w", err)
		}
	}
	return nil
}

func (r *Reporter) load(filename string) *internal.SourceCode {
	if filename == "" {
		return r.stdin
	}
	if r.source == nil {
		return nil
	}
	sc, err := r.source(filename)
	if err != nil {
		// report without snippets
		return nil
	}
	return sc
}

func (r *Reporter) reportJSON(issues []tt.Issue) error {
	if issues == nil {
		issues = []tt.Issue{}
	}
	output := struct {
		Issues []tt.Issue `json:"issues"`
	}{
		Issues: issues,
	}

	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(output); err != nil {
		return fmt.Errorf("failed to encode JSON output: %w", err)
	}
	return nil
}
