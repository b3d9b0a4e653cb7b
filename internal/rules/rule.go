// Package rules contains the catalog of Dockerfile checks.
//
// Every rule is a pure function of the instruction sequence it receives: it
// keeps no state between calls and never observes another rule's output.
// Rules only relate an instruction to earlier instructions, since a
// Dockerfile executes top to bottom.
package rules

import (
	"github.com/dlinter/dlin/internal/instruction"
	tt "github.com/dlinter/dlin/internal/types"
)

// Meta describes a rule independently of its evaluation.
type Meta struct {
	// ID is the stable identifier, such as "BP001".
	ID string
	// Name is a kebab-case alias, such as "pinned-base-image".
	Name        string
	Category    tt.Category
	Severity    tt.Severity
	Description string
	Explanation string
}

// Rule is the capability shared by every check in the catalog.
type Rule interface {
	Meta() Meta
	Check(seq instruction.Sequence) []tt.Issue
}

// CheckFunc evaluates a rule over the whole sequence.
type CheckFunc func(m Meta, seq instruction.Sequence) []tt.Issue

// InstructionCheckFunc evaluates a rule over one instruction in isolation.
type InstructionCheckFunc func(m Meta, inst instruction.Instruction) []tt.Issue

type sequenceRule struct {
	meta  Meta
	check CheckFunc
}

func (r *sequenceRule) Meta() Meta {
	return r.meta
}

func (r *sequenceRule) Check(seq instruction.Sequence) []tt.Issue {
	return r.check(r.meta, seq)
}

// SequenceRule builds a rule that needs the whole sequence, for existence
// and ordering checks.
//
//nolint:ireturn
func SequenceRule(meta Meta, check CheckFunc) Rule {
	return &sequenceRule{meta: meta, check: check}
}

type instructionRule struct {
	meta  Meta
	kinds map[instruction.Kind]struct{}
	check InstructionCheckFunc
}

func (r *instructionRule) Meta() Meta {
	return r.meta
}

func (r *instructionRule) Check(seq instruction.Sequence) []tt.Issue {
	var issues []tt.Issue
	for _, inst := range seq {
		if _, ok := r.kinds[inst.Kind]; !ok {
			continue
		}
		issues = append(issues, r.check(r.meta, inst)...)
	}
	return issues
}

// InstructionRule builds a local predicate applied to every instruction of
// the given kinds.
//
//nolint:ireturn
func InstructionRule(meta Meta, check InstructionCheckFunc, kinds ...instruction.Kind) Rule {
	set := make(map[instruction.Kind]struct{}, len(kinds))
	for _, k := range kinds {
		set[k] = struct{}{}
	}
	return &instructionRule{meta: meta, kinds: set, check: check}
}

// Issue creates an issue for this rule anchored at inst.
func (m Meta) Issue(inst instruction.Instruction, message, suggestion string) tt.Issue {
	end := inst.EndLine
	if end < inst.Line {
		end = inst.Line
	}
	return tt.Issue{
		Rule:        m.ID,
		Name:        m.Name,
		Category:    m.Category,
		Severity:    m.Severity,
		Line:        inst.Line,
		EndLine:     end,
		Message:     message,
		Explanation: m.Explanation,
		Suggestion:  suggestion,
	}
}
