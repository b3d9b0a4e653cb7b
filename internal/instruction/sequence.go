package instruction

import (
	"strings"
)

// Sequence is the ordered list of instructions of one Dockerfile.
type Sequence []Instruction

// Has reports whether any instruction of the given kind exists.
func (s Sequence) Has(kind Kind) bool {
	return s.First(kind) >= 0
}

// First returns the index of the first instruction of the given kind, or -1.
func (s Sequence) First(kind Kind) int {
	for i, inst := range s {
		if inst.Kind == kind {
			return i
		}
	}
	return -1
}

// OfKind returns the instructions of the given kind in order.
func (s Sequence) OfKind(kind Kind) []Instruction {
	var out []Instruction
	for _, inst := range s {
		if inst.Kind == kind {
			out = append(out, inst)
		}
	}
	return out
}

// Clone returns a shallow copy that can be appended to freely.
func (s Sequence) Clone() Sequence {
	out := make(Sequence, len(s))
	copy(out, s)
	return out
}

// Stage is a contiguous range of the sequence starting at a FROM
// instruction. Instructions before the first FROM (global ARGs) belong to
// no stage.
type Stage struct {
	// Index is the zero-based stage number.
	Index int
	// Alias is the name introduced by `AS <name>`, empty if none.
	Alias string
	// Start is the index of the FROM instruction in the sequence.
	Start int
	// End is one past the last instruction of the stage.
	End int
}

// Named reports whether the stage carries an alias.
func (st Stage) Named() bool {
	return st.Alias != ""
}

// Stages splits the sequence at each FROM instruction.
func (s Sequence) Stages() []Stage {
	var stages []Stage
	for i, inst := range s {
		if inst.Kind != From {
			continue
		}
		if n := len(stages); n > 0 {
			stages[n-1].End = i
		}
		st := Stage{Index: len(stages), Start: i, End: len(s)}
		if inst.Image != nil {
			st.Alias = inst.Image.Alias
		}
		stages = append(stages, st)
	}
	return stages
}

// StageOf returns the stage that contains the instruction at index idx.
// The boolean is false for instructions before the first FROM.
func (s Sequence) StageOf(idx int) (Stage, bool) {
	for _, st := range s.Stages() {
		if idx >= st.Start && idx < st.End {
			return st, true
		}
	}
	return Stage{}, false
}

// Render reproduces Dockerfile text from the raw form of each instruction.
// A non-default continuation character is restored as an escape directive.
func Render(s Sequence) string {
	if len(s) == 0 {
		return ""
	}
	var b strings.Builder
	if s[0].Escape != 0 {
		b.WriteString("# escape=")
		b.WriteByte(s[0].Escape)
		b.WriteByte('\n')
	}
	for _, inst := range s {
		b.WriteString(inst.Raw)
		b.WriteByte('\n')
	}
	return b.String()
}
