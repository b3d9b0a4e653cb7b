package nolint

import (
	"errors"
	"math"
	"strings"

	"github.com/dlinter/dlin/internal/instruction"
)

const nolintDirective = "nolint"

var (
	errNotNolint   = errors.New("not a nolint comment")
	errInvalidForm = errors.New("invalid nolint comment format")
	errNoRules     = errors.New("invalid nolint comment: no rules specified after colon")
)

// Manager manages nolint scopes and checks if a line is nolinted.
type Manager struct {
	scopes []nolintScope
}

// nolintScope represents a range of lines where nolint applies.
type nolintScope struct {
	rules map[string]struct{} // empty => apply to all lint rules
	start int
	end   int
}

// ParseComments collects the nolint comments of a Dockerfile.
//
// A comment written before the first instruction applies to the whole file.
// Any other comment applies to the instruction that follows it, or to the
// instruction it sits in when placed inside a continuation.
func ParseComments(text string, seq instruction.Sequence) *Manager {
	manager := &Manager{}
	firstLine := math.MaxInt
	if len(seq) > 0 {
		firstLine = seq[0].Line
	}

	for i, line := range strings.Split(text, "\n") {
		lineNo := i + 1
		rules, err := parseComment(line)
		if err != nil {
			// ignore anything that is not a valid nolint comment
			continue
		}

		ns := nolintScope{rules: rules, start: lineNo, end: lineNo}
		switch inst, ok := scopeTarget(seq, lineNo); {
		case lineNo < firstLine:
			ns.start, ns.end = 1, math.MaxInt
		case ok:
			ns.start = min(ns.start, inst.Line)
			ns.end = inst.EndLine
		}
		manager.scopes = append(manager.scopes, ns)
	}
	return manager
}

// scopeTarget finds the instruction covering lineNo, or the first one
// starting after it.
func scopeTarget(seq instruction.Sequence, lineNo int) (instruction.Instruction, bool) {
	for _, inst := range seq {
		if inst.EndLine >= lineNo {
			return inst, true
		}
	}
	return instruction.Instruction{}, false
}

// parseComment extracts the rule list of a `# nolint` or `# nolint:A,B`
// comment line.
func parseComment(line string) (map[string]struct{}, error) {
	text := strings.TrimSpace(line)
	if !strings.HasPrefix(text, "#") {
		return nil, errNotNolint
	}
	text = strings.TrimSpace(strings.TrimPrefix(text, "#"))
	rest, ok := strings.CutPrefix(text, nolintDirective)
	if !ok {
		return nil, errNotNolint
	}

	// A nolint comment can either have a list of rules after a colon (:)
	// or if no rules are specified, it applies to all rules
	if rest != "" && rest[0] != ':' && rest[0] != ' ' && rest[0] != '\t' {
		return nil, errInvalidForm
	}
	if strings.HasPrefix(rest, ":") {
		rest = strings.TrimSpace(strings.TrimPrefix(rest, ":"))
		if rest == "" {
			return nil, errNoRules
		}
		return parseIgnoreRuleNames(rest), nil
	}
	return parseIgnoreRuleNames(""), nil
}

// parseIgnoreRuleNames parses the rule list from the nolint comment.
// Names are matched case-insensitively.
func parseIgnoreRuleNames(text string) map[string]struct{} {
	rulesMap := make(map[string]struct{})
	if text == "" {
		return rulesMap
	}
	for _, rule := range strings.Split(text, ",") {
		rule = strings.ToLower(strings.TrimSpace(rule))
		if rule != "" {
			rulesMap[rule] = struct{}{}
		}
	}
	return rulesMap
}

// IsNolint checks if a given line is nolinted for a rule, identified by any
// of its keys (id or name).
func (m *Manager) IsNolint(line int, keys ...string) bool {
	if m == nil {
		return false
	}
	for _, ns := range m.scopes {
		if line < ns.start || line > ns.end {
			continue
		}
		// If the rules list is empty, nolint applies to all rules
		if len(ns.rules) == 0 {
			return true
		}
		for _, key := range keys {
			if _, exists := ns.rules[strings.ToLower(key)]; exists {
				return true
			}
		}
	}
	return false
}
