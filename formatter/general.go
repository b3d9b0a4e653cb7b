package formatter

type GeneralIssueFormatter struct{}

func (f *GeneralIssueFormatter) IssueTemplate() string {
	return `{{header .Rule .Name .Severity .MaxLineNumWidth .Filename .StartLine}}
{{snippet .SnippetLines .StartLine .StartLine .MaxLineNumWidth .CommonIndent .Padding -}}
{{underlineAndMessage .Message .Padding .StartLine .StartLine .SnippetLines .CommonIndent -}}
{{suggestion .Suggestion .Padding -}}
{{explanation .Explanation}}
`
}

// RangeFormatter shows every physical line of a multi-line instruction, or
// of a run of instructions.
type RangeFormatter struct{}

func (f *RangeFormatter) IssueTemplate() string {
	return `{{header .Rule .Name .Severity .MaxLineNumWidth .Filename .StartLine}}
{{snippet .SnippetLines .StartLine .EndLine .MaxLineNumWidth .CommonIndent .Padding -}}
{{underlineAndMessage .Message .Padding .StartLine .EndLine .SnippetLines .CommonIndent -}}
{{suggestion .Suggestion .Padding -}}
{{explanation .Explanation}}
`
}

// WholeFileFormatter is used for rules about the Dockerfile as a whole,
// where the anchoring line carries no meaning of its own.
type WholeFileFormatter struct{}

func (f *WholeFileFormatter) IssueTemplate() string {
	return `{{header .Rule .Name .Severity .MaxLineNumWidth .Filename .StartLine}}
{{message .Message .Padding -}}
{{suggestion .Suggestion .Padding -}}
{{explanation .Explanation}}
`
}
