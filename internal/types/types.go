package types

import (
	"fmt"
	"strings"
)

// Issue represents a lint issue found in a Dockerfile.
type Issue struct {
	Rule        string   `json:"rule_id"`
	Name        string   `json:"name"`
	Category    Category `json:"category"`
	Filename    string   `json:"filename,omitempty"`
	Line        int      `json:"line_number"`
	EndLine     int      `json:"end_line,omitempty"`
	Severity    Severity `json:"severity"`
	Message     string   `json:"message"`
	Explanation string   `json:"explanation,omitempty"`
	Suggestion  string   `json:"fix_suggestion,omitempty"`
}

func (i Issue) String() string {
	if i.Filename != "" {
		return fmt.Sprintf("%s:%d: %s [%s] %s", i.Filename, i.Line, i.Severity, i.Rule, i.Message)
	}
	return fmt.Sprintf("%d: %s [%s] %s", i.Line, i.Severity, i.Rule, i.Message)
}

// Severity is the importance level attached to an issue.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityInfo
	// SeverityOff disables a rule. It is only meaningful in configuration.
	SeverityOff
)

var severityNames = map[Severity]string{
	SeverityError:   "error",
	SeverityWarning: "warning",
	SeverityInfo:    "info",
	SeverityOff:     "off",
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseSeverity converts a severity name (case-insensitive) into a Severity.
func ParseSeverity(name string) (Severity, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for sev, sevName := range severityNames {
		if sevName == n {
			return sev, nil
		}
	}
	return SeverityOff, fmt.Errorf("unknown severity %q", name)
}

func (s Severity) MarshalText() ([]byte, error) {
	if _, ok := severityNames[s]; !ok {
		return nil, fmt.Errorf("invalid severity value %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(text []byte) error {
	sev, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = sev
	return nil
}

// Category groups rules by the kind of defect they detect.
type Category int

const (
	CategoryBestPractice Category = iota
	CategoryPerformance
	CategorySecurity
)

func (c Category) String() string {
	switch c {
	case CategoryBestPractice:
		return "best-practice"
	case CategoryPerformance:
		return "performance"
	case CategorySecurity:
		return "security"
	default:
		return "unknown"
	}
}

func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Category) UnmarshalText(text []byte) error {
	for _, cat := range []Category{CategoryBestPractice, CategoryPerformance, CategorySecurity} {
		if cat.String() == string(text) {
			*c = cat
			return nil
		}
	}
	return fmt.Errorf("unknown category %q", string(text))
}

// ConfigRule is the per-rule section of the configuration file. A nil
// Severity leaves the rule at its default.
type ConfigRule struct {
	Severity *Severity `yaml:"severity,omitempty" toml:"severity,omitempty"`
}

// RuleSeverity returns a ConfigRule overriding the severity with s.
func RuleSeverity(s Severity) ConfigRule {
	return ConfigRule{Severity: &s}
}
