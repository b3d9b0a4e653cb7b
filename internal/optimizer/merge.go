package optimizer

import (
	"fmt"
	"strings"

	"github.com/dlinter/dlin/internal/instruction"
	"github.com/dlinter/dlin/internal/shell"
)

// continuation ends a physical line inside inst and indents the next one.
func continuation(inst instruction.Instruction) string {
	return " " + string(inst.EscapeChar()) + "\n    "
}

// mergeRun collapses every maximal run of consecutive shell-form RUN
// instructions into one.
func mergeRun(name string, seq instruction.Sequence) (instruction.Sequence, []Change) {
	out := make(instruction.Sequence, 0, len(seq))
	var changes []Change

	for i := 0; i < len(seq); {
		if !seq[i].IsShellRun() {
			out = append(out, seq[i])
			i++
			continue
		}
		j := i + 1
		for j < len(seq) && seq[j].IsShellRun() {
			j++
		}
		if j-i == 1 {
			out = append(out, seq[i])
			i = j
			continue
		}

		group := seq[i:j]
		cmds := make([]string, len(group))
		for k, inst := range group {
			cmds[k] = inst.Value
		}
		merged := instruction.Instruction{
			Line:    group[0].Line,
			EndLine: group[len(group)-1].EndLine,
			Kind:    instruction.Run,
			Raw:     group[0].Keyword() + " " + strings.Join(cmds, continuation(group[0])+strings.TrimLeft(shell.ChainOperator, " ")),
			Value:   shell.Chain(cmds...),
			Escape:  group[0].Escape,
		}
		out = append(out, merged)
		changes = append(changes, Change{
			Pass:        name,
			Line:        merged.Line,
			EndLine:     merged.EndLine,
			Description: fmt.Sprintf("Combined %d RUN instructions (lines %d-%d)", len(group), merged.Line, merged.EndLine),
		})
		i = j
	}
	return out, changes
}

var metadataKinds = map[instruction.Kind]struct{}{
	instruction.Label: {},
	instruction.Env:   {},
	instruction.Arg:   {},
}

// combineMetadata collapses consecutive LABEL, ENV or ARG instructions of the
// same kind into one. A group ends before an instruction that references a
// variable set earlier in the group, since within one instruction the
// reference would still see the previous value.
func combineMetadata(name string, seq instruction.Sequence) (instruction.Sequence, []Change) {
	out := make(instruction.Sequence, 0, len(seq))
	var changes []Change

	var (
		group  []instruction.Instruction
		tokens []string
		keys   []string
	)
	flush := func() {
		switch len(group) {
		case 0:
		case 1:
			out = append(out, group[0])
		default:
			first, last := group[0], group[len(group)-1]
			value := strings.Join(tokens, " ")
			merged := instruction.Instruction{
				Line:    first.Line,
				EndLine: last.EndLine,
				Kind:    first.Kind,
				Raw:     first.Keyword() + " " + value,
				Value:   value,
				Escape:  first.Escape,
			}
			out = append(out, merged)
			changes = append(changes, Change{
				Pass:        name,
				Line:        merged.Line,
				EndLine:     merged.EndLine,
				Description: fmt.Sprintf("Combined %d %s instructions (lines %d-%d)", len(group), first.Kind, merged.Line, merged.EndLine),
			})
		}
		group, tokens, keys = nil, nil, nil
	}

	for _, inst := range seq {
		toks, ok := metadataPairs(inst)
		if !ok {
			flush()
			out = append(out, inst)
			continue
		}
		if len(group) > 0 && (group[0].Kind != inst.Kind || referencesAny(inst.Value, keys)) {
			flush()
		}
		group = append(group, inst)
		tokens = append(tokens, toks...)
		for _, tok := range toks {
			key, _, _ := strings.Cut(tok, "=")
			keys = append(keys, strings.Trim(key, `"'`))
		}
	}
	flush()

	return out, changes
}

// metadataPairs splits a LABEL, ENV or ARG value into its key=value tokens.
// The boolean is false when the instruction has another kind or any token is
// not a pair. ARG also accepts a bare name.
func metadataPairs(inst instruction.Instruction) ([]string, bool) {
	if _, ok := metadataKinds[inst.Kind]; !ok {
		return nil, false
	}
	toks, ok := shell.SplitQuoted(inst.Value)
	if !ok || len(toks) == 0 {
		return nil, false
	}
	for _, tok := range toks {
		eq := strings.IndexByte(tok, '=')
		switch {
		case eq > 0:
		case eq < 0 && inst.Kind == instruction.Arg && !strings.ContainsAny(tok, `"'`):
		default:
			return nil, false
		}
	}
	return toks, true
}

func referencesAny(value string, keys []string) bool {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if strings.Contains(value, "${"+key+"}") || strings.Contains(value, "${"+key+":") {
			return true
		}
		for rest := value; ; {
			i := strings.Index(rest, "$"+key)
			if i < 0 {
				break
			}
			rest = rest[i+1+len(key):]
			if rest == "" || !isNameChar(rest[0]) {
				return true
			}
		}
	}
	return false
}

func isNameChar(c byte) bool {
	return c == '_' || ('0' <= c && c <= '9') || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}
