package formatter

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"unicode"

	"github.com/fatih/color"

	"github.com/dlinter/dlin/internal"
	tt "github.com/dlinter/dlin/internal/types"
)

const tabWidth = 8

// rule set
const (
	MissingLabel = "BP004"
)

var (
	errorStyle      = color.New(color.FgRed, color.Bold)
	warningStyle    = color.New(color.FgHiYellow, color.Bold)
	infoStyle       = color.New(color.FgHiCyan, color.Bold)
	ruleStyle       = color.New(color.FgYellow, color.Bold)
	fileStyle       = color.New(color.FgCyan, color.Bold)
	lineStyle       = color.New(color.FgHiBlue, color.Bold)
	messageStyle    = color.New(color.FgRed, color.Bold)
	suggestionStyle = color.New(color.FgGreen, color.Bold)
)

// issueFormatter is the interface that wraps the IssueTemplate method.
// Implementations of this interface are responsible for formatting specific types of lint issues.
type issueFormatter interface {
	IssueTemplate() string
}

// getIssueFormatter is a factory function that returns the appropriate IssueFormatter
// based on the given rule.
// If no specific formatter is found for the given rule, it returns a GeneralIssueFormatter.
func getIssueFormatter(issue tt.Issue) issueFormatter {
	switch {
	case issue.Rule == MissingLabel:
		return &WholeFileFormatter{}
	case issue.EndLine > issue.Line:
		return &RangeFormatter{}
	default:
		return &GeneralIssueFormatter{}
	}
}

// GenerateFormattedIssue formats a slice of issues into a human-readable string.
// It uses the appropriate formatter for each issue based on its rule. With
// explain set, the rule explanation is printed below each issue.
func GenerateFormattedIssue(issues []tt.Issue, snippet *internal.SourceCode, explain bool) string {
	var builder strings.Builder
	for _, issue := range issues {
		formatter := getIssueFormatter(issue)
		builder.WriteString(buildIssue(issue, snippet, formatter, explain))
	}
	return builder.String()
}

/***** Issue Formatter Builder *****/

type IssueData struct {
	Severity        string
	Rule            string
	Name            string
	Filename        string
	Padding         string
	StartLine       int
	EndLine         int
	MaxLineNumWidth int
	Message         string
	Suggestion      string
	Explanation     string
	SnippetLines    []string
	CommonIndent    string
}

func buildIssue(issue tt.Issue, snippet *internal.SourceCode, formatter issueFormatter, explain bool) string {
	if snippet == nil {
		snippet = &internal.SourceCode{}
	}
	startLine := issue.Line
	endLine := max(issue.EndLine, issue.Line)
	maxLineNumWidth := calculateMaxLineNumWidth(endLine)
	padding := strings.Repeat(" ", maxLineNumWidth+1)

	var commonIndent string
	if isValidLineRange(startLine, endLine, snippet.Lines) {
		commonIndent = findCommonIndent(snippet.Lines[startLine-1 : endLine])
	}

	data := IssueData{
		Severity:        issue.Severity.String(),
		Rule:            issue.Rule,
		Name:            issue.Name,
		Filename:        issue.Filename,
		StartLine:       startLine,
		EndLine:         endLine,
		Message:         issue.Message,
		Suggestion:      issue.Suggestion,
		MaxLineNumWidth: maxLineNumWidth,
		Padding:         padding,
		CommonIndent:    commonIndent,
		SnippetLines:    snippet.Lines,
	}
	if explain {
		data.Explanation = issue.Explanation
	}

	funcMap := template.FuncMap{
		"header":              header,
		"suggestion":          suggestion,
		"explanation":         explanation,
		"snippet":             codeSnippet,
		"underlineAndMessage": underlineAndMessage,
		"message":             message,
	}

	issueTemplate := formatter.IssueTemplate()
	tmpl := template.Must(template.New("issue").Funcs(funcMap).Parse(issueTemplate))

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Sprintf("Error formatting issue: %v", err)
	}
	return buf.String()
}

// utils functions used in the text templates

func header(rule, name, severity string, maxLineNumWidth int, filename string, startLine int) string {
	var endString string
	switch severity {
	case "error":
		endString = errorStyle.Sprint("error")
	case "warning":
		endString = warningStyle.Sprint("warning")
	default:
		endString = infoStyle.Sprint(severity)
	}

	endString += ruleStyle.Sprintf("[%s]", rule)
	if name != "" {
		endString += ": " + ruleStyle.Sprint(name)
	}
	endString += "\n"

	if filename == "" {
		filename = "<stdin>"
	}
	padding := strings.Repeat(" ", maxLineNumWidth)
	endString += lineStyle.Sprintf("%s--> ", padding)
	endString += fileStyle.Sprintf("%s:%d", filename, startLine)

	return endString
}

func codeSnippet(snippetLines []string, startLine int, endLine int, maxLineNumWidth int, commonIndent string, padding string) string {
	var endString strings.Builder
	endString.WriteString(lineStyle.Sprintf("%s|\n", padding))

	for i := startLine; i <= endLine; i++ {
		if i-1 < 0 || i-1 >= len(snippetLines) {
			continue
		}

		line := expandTabs(strings.TrimPrefix(snippetLines[i-1], commonIndent))
		lineNum := fmt.Sprintf("%*d", maxLineNumWidth, i)

		endString.WriteString(lineStyle.Sprintf("%s | ", lineNum))
		endString.WriteString(line + "\n")
	}

	return endString.String()
}

// underlineAndMessage underlines the widest snippet line and prints the
// message below it.
func underlineAndMessage(msg string, padding string, startLine int, endLine int, snippetLines []string, commonIndent string) string {
	var endString string
	if !isValidLineRange(startLine, endLine, snippetLines) {
		return message(msg, padding)
	}

	width := 0
	for i := startLine; i <= endLine; i++ {
		line := expandTabs(strings.TrimPrefix(snippetLines[i-1], commonIndent))
		width = max(width, len([]rune(strings.TrimRight(line, " \\"))))
	}

	endString = lineStyle.Sprintf("%s| ", padding)
	endString += messageStyle.Sprintf("%s\n", strings.Repeat("~", max(width, 1)))
	endString += lineStyle.Sprintf("%s= ", padding)
	endString += messageStyle.Sprintf("%s\n", msg)

	return endString
}

func message(msg string, padding string) string {
	return lineStyle.Sprintf("%s= ", padding) + messageStyle.Sprintf("%s\n", msg)
}

func suggestion(suggestion string, padding string) string {
	if suggestion == "" {
		return ""
	}
	return lineStyle.Sprintf("%s= ", padding) + suggestionStyle.Sprint("help: ") + suggestion + "\n"
}

func explanation(text string) string {
	if text == "" {
		return ""
	}
	return suggestionStyle.Sprint("Explanation: ") + text + "\n"
}

func isValidLineRange(startLine int, endLine int, snippetLines []string) bool {
	return startLine > 0 &&
		endLine > 0 &&
		startLine <= endLine &&
		startLine <= len(snippetLines) &&
		endLine <= len(snippetLines)
}

func calculateMaxLineNumWidth(endLine int) int {
	return len(fmt.Sprintf("%d", endLine))
}

func expandTabs(line string) string {
	var expanded strings.Builder
	col := 0
	for _, ch := range line {
		if ch == '\t' {
			spaces := tabWidth - (col % tabWidth)
			expanded.WriteString(strings.Repeat(" ", spaces))
			col += spaces
			continue
		}
		expanded.WriteRune(ch)
		col++
	}
	return expanded.String()
}

// findCommonIndent finds the common indent in the code snippet.
func findCommonIndent(lines []string) string {
	if len(lines) == 0 {
		return ""
	}

	// find first non-empty line's indent
	var firstIndent []rune
	for _, line := range lines {
		trimmed := strings.TrimLeftFunc(line, unicode.IsSpace)
		if trimmed != "" {
			firstIndent = []rune(line[:len(line)-len(trimmed)])
			break
		}
	}

	if len(firstIndent) == 0 {
		return ""
	}

	// search common indent for all non-empty lines
	for _, line := range lines {
		trimmed := strings.TrimLeftFunc(line, unicode.IsSpace)
		if trimmed == "" {
			continue
		}

		currentIndent := []rune(line[:len(line)-len(trimmed)])
		firstIndent = commonPrefix(firstIndent, currentIndent)

		if len(firstIndent) == 0 {
			break
		}
	}

	return string(firstIndent)
}

// commonPrefix finds the common prefix of two strings.
func commonPrefix(a, b []rune) []rune {
	minLen := min(len(a), len(b))
	for i := 0; i < minLen; i++ {
		if a[i] != b[i] {
			return a[:i]
		}
	}
	return a[:minLen]
}
