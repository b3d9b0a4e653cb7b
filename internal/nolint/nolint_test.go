package nolint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlinter/dlin/internal/parser"
)

func manager(src string) *Manager {
	return ParseComments(src, parser.Parse(src))
}

func TestParseNolintRules(t *testing.T) {
	t.Parallel()

	result := parseIgnoreRuleNames("BP001, sec003,,pinned-base-image")
	assert.Equal(t, map[string]struct{}{
		"bp001":             {},
		"sec003":            {},
		"pinned-base-image": {},
	}, result)
}

func TestParseComment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line  string
		rules []string
		err   error
	}{
		{"# nolint", []string{}, nil},
		{"#nolint", []string{}, nil},
		{"  # nolint:BP001,SEC002", []string{"bp001", "sec002"}, nil},
		{"# nolint: PERF001", []string{"perf001"}, nil},
		{"# nolint explained elsewhere", []string{}, nil},
		{"# nolint:", nil, errNoRules},
		{"# nolinter", nil, errInvalidForm},
		{"# regular comment", nil, errNotNolint},
		{"RUN echo # nolint", nil, errNotNolint},
	}

	for _, tc := range tests {
		rules, err := parseComment(tc.line)
		if tc.err != nil {
			assert.ErrorIs(t, err, tc.err, tc.line)
			continue
		}
		require.NoError(t, err, tc.line)
		assert.Len(t, rules, len(tc.rules), tc.line)
		for _, r := range tc.rules {
			assert.Contains(t, rules, r, tc.line)
		}
	}
}

func TestIsNolint(t *testing.T) {
	t.Parallel()

	src := `FROM python
# nolint:SEC003
RUN apt-get install -y curl
RUN apt-get install -y git
# nolint
RUN sudo make \
    install
RUN apt-get install -y \
    # nolint:perf003
    vim
`
	m := manager(src)

	assert.True(t, m.IsNolint(3, "SEC003"))
	assert.False(t, m.IsNolint(3, "PERF002", "apt-cache-cleanup"))
	assert.False(t, m.IsNolint(4, "SEC003"))
	assert.True(t, m.IsNolint(6, "SEC004"))
	assert.True(t, m.IsNolint(7, "anything"))
	assert.True(t, m.IsNolint(8, "PERF003"))
	assert.True(t, m.IsNolint(10, "perf003"))
	assert.False(t, m.IsNolint(8, "PERF002"))
	assert.False(t, m.IsNolint(1, "BP001"))
}

func TestFileLevelNolint(t *testing.T) {
	t.Parallel()

	src := "# nolint:BP004,root-user\n\nFROM alpine:3\nRUN true\n"
	m := manager(src)

	assert.True(t, m.IsNolint(1, "BP004"))
	assert.True(t, m.IsNolint(3, "SEC001", "root-user"))
	assert.True(t, m.IsNolint(100, "BP004"))
	assert.False(t, m.IsNolint(3, "BP001"))
}

func TestNolintWithoutFollowingInstruction(t *testing.T) {
	t.Parallel()

	m := manager("FROM a:1\n# nolint\n")
	assert.True(t, m.IsNolint(2, "x"))
	assert.False(t, m.IsNolint(1, "x"))

	var nilManager *Manager
	assert.False(t, nilManager.IsNolint(1, "x"))
}
