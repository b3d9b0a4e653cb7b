package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlinter/dlin/internal/instruction"
	tt "github.com/dlinter/dlin/internal/types"
)

func TestCatalogOrder(t *testing.T) {
	t.Parallel()

	expected := []string{
		"BP001", "BP002", "BP003", "BP004", "BP005", "BP006", "BP007", "BP008",
		"BP009", "BP010", "BP011", "BP012",
		"PERF001", "PERF002", "PERF003", "PERF004", "PERF005", "PERF006", "PERF007",
		"SEC001", "SEC002", "SEC003", "SEC004", "SEC005", "SEC006",
	}

	c := Default()
	require.Equal(t, len(expected), c.Len())

	for i, m := range c.Metas() {
		assert.Equal(t, expected[i], m.ID)
		assert.Equal(t, i, c.Index(m.ID))
		assert.NotEmpty(t, m.Name, m.ID)
		assert.NotEmpty(t, m.Description, m.ID)
		assert.NotEmpty(t, m.Explanation, m.ID)
		assert.NotEqual(t, tt.SeverityOff, m.Severity, m.ID)
	}
}

func TestCatalogCategories(t *testing.T) {
	t.Parallel()

	for _, m := range Default().Metas() {
		switch {
		case m.ID[:2] == "BP":
			assert.Equal(t, tt.CategoryBestPractice, m.Category, m.ID)
		case m.ID[:4] == "PERF":
			assert.Equal(t, tt.CategoryPerformance, m.Category, m.ID)
		case m.ID[:3] == "SEC":
			assert.Equal(t, tt.CategorySecurity, m.Category, m.ID)
		default:
			t.Errorf("unexpected rule id %s", m.ID)
		}
	}
}

func TestCatalogLookup(t *testing.T) {
	t.Parallel()

	c := Default()

	tests := []struct {
		key string
		id  string
		ok  bool
	}{
		{"SEC003", "SEC003", true},
		{"sec003", "SEC003", true},
		{"pinned-base-image", "BP001", true},
		{"Pinned-Base-Image", "BP001", true},
		{"REG001", "", false},
		{"", "", false},
	}

	for _, tc := range tests {
		r, ok := c.Lookup(tc.key)
		assert.Equal(t, tc.ok, ok, tc.key)
		if tc.ok {
			assert.Equal(t, tc.id, r.Meta().ID)
		}
	}
}

func TestCatalogRulesIsCopy(t *testing.T) {
	t.Parallel()

	c := Default()
	rs := c.Rules()
	rs[0] = nil
	assert.NotNil(t, c.Rules()[0])
	assert.Same(t, c, Default())
}

func TestNewCatalogRejectsDuplicates(t *testing.T) {
	t.Parallel()

	noop := func(Meta, instruction.Sequence) []tt.Issue { return nil }
	a := SequenceRule(Meta{ID: "X001", Name: "first"}, noop)
	b := SequenceRule(Meta{ID: "X002", Name: "first"}, noop)

	_, err := NewCatalog(a, b)
	assert.ErrorIs(t, err, ErrDuplicateRule)

	c, err := NewCatalog(a)
	assert.NoError(t, err)
	assert.Equal(t, 1, c.Len())
}
