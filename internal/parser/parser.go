// Package parser converts Dockerfile text into an instruction sequence.
//
// Parsing never fails: unrecognized directives become instructions of kind
// instruction.Unknown carrying their raw text, so no input is dropped.
// Here-documents (RUN <<EOF) stay part of the instruction that opens them,
// and an `# escape=` directive switches the continuation character.
package parser

import (
	"regexp"
	"strings"

	"github.com/dlinter/dlin/internal/instruction"
)

// defaultEscape marks a line continuation unless an escape directive at the
// top of the file selects another character.
const defaultEscape = '\\'

// fromPattern splits a FROM value into
// [--platform=P] image[:tag][@digest] [AS alias].
//
// The tag may not contain '/', so a registry port such as
// "localhost:5000/app" stays part of the image name.
var fromPattern = regexp.MustCompile(
	`^((?:--[A-Za-z-]+(?:=\S*)?\s+)*)([^\s@]+?)(?::([^\s:/@]+))?(?:@(\S+))?(?:\s+(?i:as)\s+(\S+))?\s*$`,
)

var (
	directivePattern = regexp.MustCompile(`^#\s*([A-Za-z]+)\s*=\s*(\S*)\s*$`)
	heredocPattern   = regexp.MustCompile(`<<(-?)(["']?)([A-Za-z_][A-Za-z0-9_]*)(["']?)`)
)

// heredocKinds accept here-documents after the keyword.
var heredocKinds = map[instruction.Kind]bool{
	instruction.Run:  true,
	instruction.Copy: true,
	instruction.Add:  true,
}

type heredoc struct {
	delimiter string
	stripTabs bool
}

// pending accumulates the physical lines of one logical instruction.
type pending struct {
	start    int
	end      int
	raw      []string
	segments []string
	// here-documents still waiting for their delimiter line
	heredocs []heredoc
	body     []string
}

func (p *pending) empty() bool {
	return len(p.raw) == 0
}

func (p *pending) add(lineNo int, physical, segment string) {
	if p.empty() {
		p.start = lineNo
	}
	p.end = lineNo
	p.raw = append(p.raw, physical)
	if segment != "" {
		p.segments = append(p.segments, segment)
	}
}

// openHeredocs registers the here-documents started by the completed header
// and reports whether body lines follow.
func (p *pending) openHeredocs() bool {
	if len(p.segments) == 0 {
		return false
	}
	keyword, _, _ := strings.Cut(p.segments[0], " ")
	if !heredocKinds[instruction.LookupKind(keyword)] {
		return false
	}
	header := strings.Join(p.segments, " ")
	for _, m := range heredocPattern.FindAllStringSubmatchIndex(header, -1) {
		openQuote, delimiter, closeQuote := header[m[4]:m[5]], header[m[6]:m[7]], header[m[8]:m[9]]
		// <<< is a here-string
		if openQuote != closeQuote || (m[0] > 0 && header[m[0]-1] == '<') {
			continue
		}
		p.heredocs = append(p.heredocs, heredoc{delimiter: delimiter, stripTabs: m[3] > m[2]})
	}
	return len(p.heredocs) > 0
}

// addBody appends one here-document line, closing the current document on
// its delimiter.
func (p *pending) addBody(lineNo int, physical string) {
	p.end = lineNo
	p.raw = append(p.raw, physical)
	p.body = append(p.body, physical)

	line := physical
	if p.heredocs[0].stripTabs {
		line = strings.TrimLeft(line, "\t")
	}
	if line == p.heredocs[0].delimiter {
		p.heredocs = p.heredocs[1:]
	}
}

func (p *pending) flush(escape byte) instruction.Instruction {
	joined := strings.Join(p.segments, " ")
	if len(p.body) > 0 {
		joined += "\n" + strings.Join(p.body, "\n")
	}
	inst := buildInstruction(p.start, p.end, strings.Join(p.raw, "\n"), joined)
	inst.Heredoc = len(p.body) > 0
	if escape != defaultEscape {
		inst.Escape = escape
	}
	*p = pending{}
	return inst
}

// Parse converts text into the ordered instruction sequence.
func Parse(text string) instruction.Sequence {
	var (
		seq instruction.Sequence
		buf pending
	)

	lines := strings.Split(text, "\n")
	escape := escapeDirective(lines)
	marker := string(escape)

	for i, physical := range lines {
		lineNo := i + 1
		physical = strings.TrimSuffix(physical, "\r")

		if len(buf.heredocs) > 0 {
			buf.addBody(lineNo, physical)
			if len(buf.heredocs) == 0 {
				seq = append(seq, buf.flush(escape))
			}
			continue
		}

		trimmed := strings.TrimSpace(physical)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		if strings.HasSuffix(trimmed, marker) {
			segment := strings.TrimSpace(strings.TrimSuffix(trimmed, marker))
			buf.add(lineNo, physical, segment)
			continue
		}

		buf.add(lineNo, physical, trimmed)
		if buf.openHeredocs() {
			continue
		}
		seq = append(seq, buf.flush(escape))
	}

	// a continuation or here-document left open at EOF still produces an
	// instruction
	if !buf.empty() {
		seq = append(seq, buf.flush(escape))
	}

	return seq
}

// escapeDirective returns the continuation character chosen by an
// `# escape=` parser directive. Directives are only read from the comment
// lines at the very top of the file.
func escapeDirective(lines []string) byte {
	escape := byte(defaultEscape)
	for _, line := range lines {
		m := directivePattern.FindStringSubmatch(strings.TrimSpace(strings.TrimSuffix(line, "\r")))
		if m == nil {
			break
		}
		if strings.EqualFold(m[1], "escape") && (m[2] == "`" || m[2] == `\`) {
			escape = m[2][0]
		}
	}
	return escape
}

func buildInstruction(start, end int, raw, joined string) instruction.Instruction {
	keyword, rest, _ := strings.Cut(joined, " ")
	if idx := strings.IndexAny(keyword, "\t"); idx >= 0 {
		rest = keyword[idx:] + " " + rest
		keyword = keyword[:idx]
	}

	inst := instruction.Instruction{
		Line:    start,
		EndLine: end,
		Kind:    instruction.LookupKind(keyword),
		Raw:     raw,
		Value:   strings.TrimSpace(rest),
	}

	if inst.Kind == instruction.From {
		inst.Image = parseBaseImage(inst.Value)
	}

	return inst
}

// parseBaseImage extracts the structured fields of a FROM value. A value
// that does not match the expected shape still yields its first token as
// the image name.
func parseBaseImage(value string) *instruction.BaseImage {
	m := fromPattern.FindStringSubmatch(value)
	if m == nil {
		img := &instruction.BaseImage{}
		if fields := strings.Fields(value); len(fields) > 0 {
			img.Name = fields[0]
		}
		return img
	}

	img := &instruction.BaseImage{
		Name:   m[2],
		Tag:    m[3],
		Digest: m[4],
		Alias:  m[5],
	}
	for _, flag := range strings.Fields(m[1]) {
		if v, ok := strings.CutPrefix(flag, "--platform="); ok {
			img.Platform = v
		}
	}
	return img
}
