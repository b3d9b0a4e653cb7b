package optimizer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dlinter/dlin/internal/instruction"
	"github.com/dlinter/dlin/internal/shell"
)

const defaultTag = "latest"

var portToken = regexp.MustCompile(`\S+`)

// rewriteFunc returns the replacement for one instruction and a change
// description, or ok=false to keep it unchanged.
type rewriteFunc func(inst instruction.Instruction) (out instruction.Instruction, desc string, ok bool)

// rewriteEach applies fn to every instruction, keeping the count unchanged.
// Instructions with here-documents are left alone.
func rewriteEach(name string, seq instruction.Sequence, fn rewriteFunc) (instruction.Sequence, []Change) {
	out := make(instruction.Sequence, len(seq))
	var changes []Change
	for i, inst := range seq {
		if inst.Heredoc {
			out[i] = inst
			continue
		}
		next, desc, ok := fn(inst)
		if !ok {
			out[i] = inst
			continue
		}
		out[i] = next
		changes = append(changes, Change{Pass: name, Line: inst.Line, EndLine: inst.EndLine, Description: desc})
	}
	return out, changes
}

// pinBaseImage appends the default tag to FROM instructions that carry
// neither a tag nor a digest.
func pinBaseImage(name string, seq instruction.Sequence) (instruction.Sequence, []Change) {
	aliases := make(map[string]struct{})
	return rewriteEach(name, seq, func(inst instruction.Instruction) (instruction.Instruction, string, bool) {
		if inst.Kind != instruction.From || inst.Image == nil {
			return inst, "", false
		}
		img := *inst.Image
		_, isStage := aliases[strings.ToLower(img.Name)]
		if img.Alias != "" {
			aliases[strings.ToLower(img.Alias)] = struct{}{}
		}
		if isStage || img.Name == "" || img.IsScratch() || img.Tag != "" || img.Digest != "" ||
			strings.Contains(img.Name, "$") {
			return inst, "", false
		}

		img.Tag = defaultTag
		parts := []string{}
		for _, f := range strings.Fields(inst.Value) {
			if !strings.HasPrefix(f, "--") {
				break
			}
			parts = append(parts, f)
		}
		parts = append(parts, img.Reference())
		if img.Alias != "" {
			parts = append(parts, "AS", img.Alias)
		}

		out := inst
		out.Value = strings.Join(parts, " ")
		out.Raw = inst.Keyword() + " " + out.Value
		out.Image = &img
		return out, fmt.Sprintf("Pinned base image '%s' to '%s'", inst.Image.Name, img.Reference()), true
	})
}

// aptCacheCleanup appends removal of the apt lists to RUN instructions that
// install packages without cleaning up.
func aptCacheCleanup(name string, seq instruction.Sequence) (instruction.Sequence, []Change) {
	return rewriteEach(name, seq, func(inst instruction.Instruction) (instruction.Instruction, string, bool) {
		if inst.Kind != instruction.Run || inst.IsExecForm() ||
			!shell.HasAptInstall(inst.Value) || shell.HasAptCleanup(inst.Value) {
			return inst, "", false
		}
		out := inst
		out.Value = inst.Value + shell.ChainOperator + shell.AptListsCleanup
		if strings.Contains(inst.Raw, "\n") {
			out.Raw = inst.Raw + continuation(inst) + strings.TrimLeft(shell.ChainOperator, " ") + shell.AptListsCleanup
		} else {
			out.Raw = inst.Raw + shell.ChainOperator + shell.AptListsCleanup
		}
		return out, "Appended apt cache cleanup", true
	})
}

// exposeProtocol adds /tcp to every EXPOSE port without a protocol.
func exposeProtocol(name string, seq instruction.Sequence) (instruction.Sequence, []Change) {
	return rewriteEach(name, seq, func(inst instruction.Instruction) (instruction.Instruction, string, bool) {
		if inst.Kind != instruction.Expose {
			return inst, "", false
		}
		var fixed []string
		addProto := func(tok string) string {
			port, cont := strings.CutSuffix(tok, `\`)
			if port == "" || strings.Contains(port, "/") {
				return tok
			}
			fixed = append(fixed, port)
			if cont {
				return port + "/tcp" + `\`
			}
			return port + "/tcp"
		}

		value := portToken.ReplaceAllStringFunc(inst.Value, addProto)
		if len(fixed) == 0 {
			return inst, "", false
		}
		desc := fmt.Sprintf("Added /tcp to exposed port(s) %s", strings.Join(fixed, ", "))

		kw := inst.Keyword()
		body := strings.TrimPrefix(strings.TrimLeft(inst.Raw, " \t"), kw)

		out := inst
		out.Value = value
		out.Raw = kw + portToken.ReplaceAllStringFunc(body, addProto)
		return out, desc, true
	})
}

// addToCopy replaces ADD with COPY, keeping the arguments as written.
func addToCopy(name string, seq instruction.Sequence) (instruction.Sequence, []Change) {
	return rewriteEach(name, seq, func(inst instruction.Instruction) (instruction.Instruction, string, bool) {
		if inst.Kind != instruction.Add {
			return inst, "", false
		}
		return inst.WithKind(instruction.Copy), "Replaced ADD with COPY", true
	})
}

// stripSudo removes a leading sudo from RUN commands.
func stripSudo(name string, seq instruction.Sequence) (instruction.Sequence, []Change) {
	return rewriteEach(name, seq, func(inst instruction.Instruction) (instruction.Instruction, string, bool) {
		if inst.Kind != instruction.Run || inst.IsExecForm() {
			return inst, "", false
		}
		flags, cmd := splitFlags(inst.Value)
		rest, ok := shell.StripLeadingSudo(cmd)
		if !ok {
			return inst, "", false
		}
		pos := commandStart(inst.Raw, inst.EscapeChar())
		rawRest, rawOK := shell.StripLeadingSudo(inst.Raw[pos:])
		if !rawOK {
			return inst, "", false
		}

		out := inst
		out.Value = flags + rest
		out.Raw = inst.Raw[:pos] + rawRest
		return out, "Removed leading sudo", true
	})
}

// aptUpdate prepends apt-get update to RUN instructions that install
// packages without refreshing the index first.
func aptUpdate(name string, seq instruction.Sequence) (instruction.Sequence, []Change) {
	return rewriteEach(name, seq, func(inst instruction.Instruction) (instruction.Instruction, string, bool) {
		if inst.Kind != instruction.Run || inst.IsExecForm() ||
			!shell.HasAptInstall(inst.Value) || shell.UpdatesBeforeInstall(inst.Value) {
			return inst, "", false
		}
		prefix := shell.AptUpdate + shell.ChainOperator
		flags, cmd := splitFlags(inst.Value)
		pos := commandStart(inst.Raw, inst.EscapeChar())

		out := inst
		out.Value = flags + prefix + cmd
		out.Raw = inst.Raw[:pos] + prefix + inst.Raw[pos:]
		return out, "Prepended apt-get update before apt-get install", true
	})
}

// splitFlags separates the leading `--` options of a value, keeping their
// trailing space, from the command that follows.
func splitFlags(value string) (string, string) {
	rest := value
	for {
		trimmed := strings.TrimLeft(rest, " \t")
		if !strings.HasPrefix(trimmed, "--") {
			break
		}
		end := strings.IndexAny(trimmed, " \t")
		if end < 0 {
			return value, ""
		}
		rest = trimmed[end:]
	}
	cmd := strings.TrimLeft(rest, " \t")
	return value[:len(value)-len(cmd)], cmd
}

// commandStart returns the offset in raw where the command text begins,
// after the keyword and any flags. Flags may continue onto later physical
// lines, in which case the offset lies on the first line holding command
// text.
func commandStart(raw string, escape byte) int {
	i := len(raw) - len(strings.TrimLeft(raw, " \t"))
	i = skipWord(raw, i)
	for {
		i = skipSeparators(raw, i, escape)
		if !strings.HasPrefix(raw[i:], "--") {
			return i
		}
		i = skipWord(raw, i)
	}
}

func skipWord(raw string, i int) int {
	for i < len(raw) && raw[i] != ' ' && raw[i] != '\t' && raw[i] != '\n' {
		i++
	}
	return i
}

// skipSeparators moves past blanks and line continuations.
func skipSeparators(raw string, i int, escape byte) int {
	for i < len(raw) {
		switch {
		case raw[i] == ' ' || raw[i] == '\t' || raw[i] == '\n':
			i++
		case raw[i] == escape && strings.HasPrefix(strings.TrimLeft(raw[i+1:], " \t"), "\n"):
			i = len(raw) - len(strings.TrimLeft(raw[i+1:], " \t"))
		default:
			return i
		}
	}
	return i
}
