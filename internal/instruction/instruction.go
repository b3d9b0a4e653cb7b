// Package instruction defines the typed, order-preserving representation of a
// parsed Dockerfile.
//
// An Instruction is created once by the parser and never modified afterwards.
// Consumers that need derived facts (flags, stage boundaries, presence of a
// directive) compute them by scanning through the helpers in this package.
package instruction

import (
	"encoding/json"
	"strings"
)

// Kind is the closed set of directive types.
type Kind int

const (
	Unknown Kind = iota
	From
	Run
	Cmd
	Label
	Maintainer
	Expose
	Env
	Add
	Copy
	Entrypoint
	Volume
	User
	Workdir
	Arg
	Onbuild
	Stopsignal
	Healthcheck
	Shell
)

var kindKeywords = [...]string{
	Unknown:     "UNKNOWN",
	From:        "FROM",
	Run:         "RUN",
	Cmd:         "CMD",
	Label:       "LABEL",
	Maintainer:  "MAINTAINER",
	Expose:      "EXPOSE",
	Env:         "ENV",
	Add:         "ADD",
	Copy:        "COPY",
	Entrypoint:  "ENTRYPOINT",
	Volume:      "VOLUME",
	User:        "USER",
	Workdir:     "WORKDIR",
	Arg:         "ARG",
	Onbuild:     "ONBUILD",
	Stopsignal:  "STOPSIGNAL",
	Healthcheck: "HEALTHCHECK",
	Shell:       "SHELL",
}

var keywordKinds = func() map[string]Kind {
	m := make(map[string]Kind, len(kindKeywords))
	for k, kw := range kindKeywords {
		if Kind(k) == Unknown {
			continue
		}
		m[kw] = Kind(k)
	}
	return m
}()

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindKeywords) {
		return kindKeywords[Unknown]
	}
	return kindKeywords[k]
}

// LookupKind matches a directive keyword case-insensitively.
// Unrecognized keywords map to Unknown.
func LookupKind(keyword string) Kind {
	if k, ok := keywordKinds[strings.ToUpper(keyword)]; ok {
		return k
	}
	return Unknown
}

// BaseImage holds the structured fields of a FROM instruction.
type BaseImage struct {
	Platform string
	Name     string
	// Tag is empty when the source carries no explicit tag.
	Tag    string
	Digest string
	Alias  string
}

// Reference renders the image reference without platform or alias.
func (b BaseImage) Reference() string {
	ref := b.Name
	if b.Tag != "" {
		ref += ":" + b.Tag
	}
	if b.Digest != "" {
		ref += "@" + b.Digest
	}
	return ref
}

// IsScratch reports whether the image is the empty "scratch" base.
func (b BaseImage) IsScratch() bool {
	return strings.EqualFold(b.Name, "scratch")
}

// Instruction is one logical directive: a physical line, or several
// physical lines joined by continuation markers.
type Instruction struct {
	// Line is the 1-based number of the first physical line.
	Line int
	// EndLine is the number of the last physical line.
	EndLine int
	Kind    Kind
	// Raw is the verbatim source text, continuation markers included.
	Raw string
	// Value is the argument text with continuations joined and trimmed.
	Value string
	// Image is set only for FROM instructions.
	Image *BaseImage
	// Heredoc is set when the instruction carries here-document bodies.
	// Their lines follow the header in both Raw and Value, separated by
	// newlines.
	Heredoc bool
	// Escape is the continuation character when an escape directive
	// changed it. Zero means a backslash.
	Escape byte
}

// New builds a fresh single-line instruction of the given kind.
func New(kind Kind, value string, line int) Instruction {
	return Instruction{
		Line:    line,
		EndLine: line,
		Kind:    kind,
		Raw:     kind.String() + " " + value,
		Value:   value,
	}
}

// Keyword returns the directive keyword as written in the source.
func (i Instruction) Keyword() string {
	raw := strings.TrimSpace(i.Raw)
	if idx := strings.IndexAny(raw, " \t"); idx >= 0 {
		return raw[:idx]
	}
	return strings.TrimSuffix(raw, string(i.EscapeChar()))
}

// EscapeChar returns the line continuation character of the instruction.
func (i Instruction) EscapeChar() byte {
	if i.Escape == 0 {
		return '\\'
	}
	return i.Escape
}

// IsExecForm reports whether the value is written as a JSON array, as in
// `CMD ["nginx", "-g", "daemon off;"]`.
func (i Instruction) IsExecForm() bool {
	v := strings.TrimSpace(i.Value)
	return strings.HasPrefix(v, "[") && strings.HasSuffix(v, "]")
}

// Flags returns the leading `--name=value` (or bare `--name`) options of
// the value, such as `--from=builder` or `--chown=app:app`.
func (i Instruction) Flags() map[string]string {
	flags := make(map[string]string)
	for _, f := range strings.Fields(i.Value) {
		if !strings.HasPrefix(f, "--") {
			break
		}
		name, value, _ := strings.Cut(strings.TrimPrefix(f, "--"), "=")
		flags[strings.ToLower(name)] = value
	}
	return flags
}

// HasFlags reports whether the value starts with any `--` option.
func (i Instruction) HasFlags() bool {
	return strings.HasPrefix(strings.TrimSpace(i.Value), "--")
}

// Args returns the whitespace-separated arguments following any leading
// flags.
func (i Instruction) Args() []string {
	fields := strings.Fields(i.Value)
	for len(fields) > 0 && strings.HasPrefix(fields[0], "--") {
		fields = fields[1:]
	}
	return fields
}

// Sources splits a COPY or ADD value into its source paths and destination,
// in either the shell or the exec (JSON array) form. Leading flags are
// ignored. A value with fewer than two arguments has no sources.
func (i Instruction) Sources() ([]string, string) {
	var args []string
	if rest := strings.TrimSpace(strings.Join(i.Args(), " ")); strings.HasPrefix(rest, "[") {
		if err := json.Unmarshal([]byte(rest), &args); err != nil {
			args = i.Args()
		}
	} else {
		args = i.Args()
	}
	if len(args) < 2 {
		return nil, strings.Join(args, "")
	}
	return args[:len(args)-1], args[len(args)-1]
}

// IsShellRun reports whether the instruction is a RUN in shell form without
// options, the only form whose commands can be chained safely.
func (i Instruction) IsShellRun() bool {
	return i.Kind == Run && !i.IsExecForm() && !i.HasFlags() && !i.Heredoc
}

// Contains reports whether the value contains substr.
func (i Instruction) Contains(substr string) bool {
	return strings.Contains(i.Value, substr)
}

// WithKind returns a copy of the instruction with its kind and keyword
// replaced, keeping the raw layout of the arguments.
func (i Instruction) WithKind(kind Kind) Instruction {
	out := i
	out.Kind = kind
	kw := i.Keyword()
	out.Raw = kind.String() + strings.TrimPrefix(strings.TrimLeft(i.Raw, " \t"), kw)
	if kind != From {
		out.Image = nil
	}
	return out
}
