package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseSeverity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    Severity
		wantErr bool
	}{
		{"error", SeverityError, false},
		{"WARNING", SeverityWarning, false},
		{" info ", SeverityInfo, false},
		{"off", SeverityOff, false},
		{"fatal", SeverityOff, true},
		{"", SeverityOff, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			got, err := ParseSeverity(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSeverityText(t *testing.T) {
	t.Parallel()

	text, err := SeverityWarning.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "warning", string(text))

	_, err = Severity(42).MarshalText()
	assert.Error(t, err)
	assert.Equal(t, "unknown", Severity(42).String())
}

func TestIssueJSON(t *testing.T) {
	t.Parallel()

	issue := Issue{
		Rule:     "BP001",
		Name:     "pinned-base-image",
		Category: CategoryBestPractice,
		Line:     1,
		Severity: SeverityWarning,
		Message:  "base image is not pinned",
	}
	data, err := json.Marshal(issue)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"rule_id": "BP001",
		"name": "pinned-base-image",
		"category": "best-practice",
		"line_number": 1,
		"severity": "warning",
		"message": "base image is not pinned"
	}`, string(data))

	assert.Equal(t, "1: warning [BP001] base image is not pinned", issue.String())
	issue.Filename = "Dockerfile"
	assert.Equal(t, "Dockerfile:1: warning [BP001] base image is not pinned", issue.String())
}

func TestCategoryText(t *testing.T) {
	t.Parallel()

	var c Category
	require.NoError(t, c.UnmarshalText([]byte("security")))
	assert.Equal(t, CategorySecurity, c)
	assert.Error(t, c.UnmarshalText([]byte("style")))
}

func TestConfigRuleYAML(t *testing.T) {
	t.Parallel()

	var cfg map[string]ConfigRule
	err := yaml.Unmarshal([]byte("BP004:\n  severity: off\nSEC001:\n  severity: error\nBP001: {}\n"), &cfg)
	require.NoError(t, err)
	assert.Equal(t, RuleSeverity(SeverityOff), cfg["BP004"])
	assert.Equal(t, RuleSeverity(SeverityError), cfg["SEC001"])
	assert.Nil(t, cfg["BP001"].Severity, "an empty section leaves the severity unset")

	out, err := yaml.Marshal(map[string]ConfigRule{"BP001": {}})
	require.NoError(t, err)
	assert.Equal(t, "BP001: {}\n", string(out))

	err = yaml.Unmarshal([]byte("BP004:\n  severity: loud\n"), &cfg)
	assert.Error(t, err)
}
