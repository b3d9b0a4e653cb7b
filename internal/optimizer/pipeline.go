// Package optimizer rewrites an instruction sequence through a fixed list of
// conservative passes.
//
// Pass order is part of the contract: later passes rely on the shape left
// by earlier ones (the cleanup pass expects merged RUNs, the update pass
// checks the output of every pass before it). Passes never mutate their
// input; rewritten instructions are new values.
package optimizer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dlinter/dlin/internal/instruction"
)

// ErrUnknownPass is returned when a configuration names a pass that does not
// exist.
var ErrUnknownPass = errors.New("unknown optimizer pass")

// Change records one rewrite performed by a pass.
type Change struct {
	Pass        string `json:"pass"`
	Line        int    `json:"line"`
	EndLine     int    `json:"end_line,omitempty"`
	Description string `json:"description"`
}

func (c Change) String() string {
	if c.EndLine > c.Line {
		return fmt.Sprintf("lines %d-%d [%s] %s", c.Line, c.EndLine, c.Pass, c.Description)
	}
	return fmt.Sprintf("line %d [%s] %s", c.Line, c.Pass, c.Description)
}

// Pass is one ordered transformation step.
type Pass interface {
	Name() string
	Apply(seq instruction.Sequence) (instruction.Sequence, []Change)
}

type passFunc struct {
	name  string
	apply func(name string, seq instruction.Sequence) (instruction.Sequence, []Change)
}

func (p passFunc) Name() string {
	return p.name
}

func (p passFunc) Apply(seq instruction.Sequence) (instruction.Sequence, []Change) {
	return p.apply(p.name, seq)
}

// Pass names, in pipeline order.
const (
	PassMergeRun        = "merge-run"
	PassPinBaseImage    = "pin-base-image"
	PassAptCacheCleanup = "apt-cache-cleanup"
	PassExposeProtocol  = "expose-protocol"
	PassAddToCopy       = "add-to-copy"
	PassCombineMetadata = "combine-metadata"
	PassStripSudo       = "strip-sudo"
	PassAptUpdate       = "apt-update"
)

// Passes returns a fresh list of every pass in pipeline order.
func Passes() []Pass {
	return []Pass{
		passFunc{PassMergeRun, mergeRun},
		passFunc{PassPinBaseImage, pinBaseImage},
		passFunc{PassAptCacheCleanup, aptCacheCleanup},
		passFunc{PassExposeProtocol, exposeProtocol},
		passFunc{PassAddToCopy, addToCopy},
		passFunc{PassCombineMetadata, combineMetadata},
		passFunc{PassStripSudo, stripSudo},
		passFunc{PassAptUpdate, aptUpdate},
	}
}

// PassNames returns the pass names in pipeline order.
func PassNames() []string {
	passes := Passes()
	names := make([]string, len(passes))
	for i, p := range passes {
		names[i] = p.Name()
	}
	return names
}

// Result is the output of a pipeline run.
type Result struct {
	Instructions instruction.Sequence `json:"-"`
	Changes      []Change             `json:"changes"`
}

// Changed reports whether any pass rewrote the sequence.
func (r Result) Changed() bool {
	return len(r.Changes) > 0
}

// Text renders the rewritten sequence as Dockerfile text.
func (r Result) Text() string {
	return instruction.Render(r.Instructions)
}

// Pipeline runs the enabled passes in order.
type Pipeline struct {
	passes []Pass
}

// New creates a pipeline with every pass enabled except the ones named in
// disabled. Unknown names are rejected.
func New(disabled ...string) (*Pipeline, error) {
	off := make(map[string]struct{}, len(disabled))
	known := make(map[string]struct{})
	for _, name := range PassNames() {
		known[name] = struct{}{}
	}
	for _, name := range disabled {
		name = strings.ToLower(strings.TrimSpace(name))
		if _, ok := known[name]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPass, name)
		}
		off[name] = struct{}{}
	}

	p := &Pipeline{}
	for _, pass := range Passes() {
		if _, skip := off[pass.Name()]; skip {
			continue
		}
		p.passes = append(p.passes, pass)
	}
	return p, nil
}

// Enabled returns the names of the passes this pipeline runs, in order.
func (p *Pipeline) Enabled() []string {
	names := make([]string, len(p.passes))
	for i, pass := range p.passes {
		names[i] = pass.Name()
	}
	return names
}

// Optimize runs every enabled pass in order. The input is not modified.
func (p *Pipeline) Optimize(seq instruction.Sequence) Result {
	current := seq.Clone()
	var changes []Change
	for _, pass := range p.passes {
		next, cs := pass.Apply(current)
		current = next
		changes = append(changes, cs...)
	}
	return Result{Instructions: current, Changes: changes}
}
