// Package shell holds the command-line heuristics shared by the rules and
// the optimizer. All checks are textual; nothing here executes or parses
// shell grammar.
package shell

import (
	"regexp"
	"strings"
)

const (
	// ChainOperator sequences commands inside one RUN instruction.
	ChainOperator = " && "

	AptUpdate       = "apt-get update"
	AptListsCleanup = "rm -rf /var/lib/apt/lists/*"

	aptListsDir = "rm -rf /var/lib/apt/lists"
)

var (
	aptInstallPattern = regexp.MustCompile(`\bapt-get\s+(?:-\S+\s+)*install\b`)
	aptUpdatePattern  = regexp.MustCompile(`\bapt-get\s+(?:-\S+\s+)*update\b`)
	pipInstallPattern = regexp.MustCompile(`\bpip[0-9.]*\s+install\b`)
	pkgInstallPattern = regexp.MustCompile(`\b(?:apt-get\s+(?:-\S+\s+)*install|apk\s+add|(?:yum|dnf|microdnf)\s+(?:-\S+\s+)*install)\b`)
	pipeShellPattern  = regexp.MustCompile(`\b(?:curl|wget)\b[^|;&]*\|\s*(?:sudo\s+)?(?:ba|z|da|k)?sh\b`)
	sudoPattern       = regexp.MustCompile(`(?:^|[\s;&|(])sudo\s`)
	depInstallPattern = regexp.MustCompile(
		`\b(?:pip[0-9.]*\s+install|npm\s+(?:install|ci|i)|yarn\s+install|pnpm\s+install|` +
			`bundle\s+install|composer\s+install|go\s+mod\s+download|poetry\s+install|cargo\s+fetch)\b`)
)

// Chain joins commands with the chaining operator.
func Chain(cmds ...string) string {
	parts := make([]string, 0, len(cmds))
	for _, c := range cmds {
		if c = strings.TrimSpace(c); c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, ChainOperator)
}

// HasAptInstall reports whether cmd invokes `apt-get install`.
func HasAptInstall(cmd string) bool {
	return aptInstallPattern.MatchString(cmd)
}

// HasAptUpdate reports whether cmd invokes `apt-get update`.
func HasAptUpdate(cmd string) bool {
	return aptUpdatePattern.MatchString(cmd)
}

// UpdatesBeforeInstall reports whether an `apt-get update` appears before the
// first `apt-get install` in cmd.
func UpdatesBeforeInstall(cmd string) bool {
	install := aptInstallPattern.FindStringIndex(cmd)
	if install == nil {
		return false
	}
	update := aptUpdatePattern.FindStringIndex(cmd)
	return update != nil && update[0] < install[0]
}

// HasAptCleanup is a substring test for removal of the apt lists directory.
func HasAptCleanup(cmd string) bool {
	return strings.Contains(cmd, aptListsDir)
}

// HasPipInstall reports whether cmd invokes `pip install` (any pip variant).
func HasPipInstall(cmd string) bool {
	return pipInstallPattern.MatchString(cmd)
}

// HasPackageInstall reports whether cmd installs OS packages with one of the
// common package managers.
func HasPackageInstall(cmd string) bool {
	return pkgInstallPattern.MatchString(cmd)
}

// HasDependencyInstall reports whether cmd installs OS packages or
// language-level dependencies.
func HasDependencyInstall(cmd string) bool {
	return HasPackageInstall(cmd) || depInstallPattern.MatchString(cmd)
}

// PipesIntoShell reports whether cmd downloads a script and pipes it into a
// shell interpreter.
func PipesIntoShell(cmd string) bool {
	return pipeShellPattern.MatchString(cmd)
}

// UsesSudo reports whether cmd invokes sudo anywhere.
func UsesSudo(cmd string) bool {
	return sudoPattern.MatchString(cmd)
}

// StripLeadingSudo removes a leading `sudo ` token. Invocations carrying sudo
// options (`sudo -u app ...`) are left untouched.
func StripLeadingSudo(cmd string) (string, bool) {
	trimmed := strings.TrimSpace(cmd)
	rest, ok := strings.CutPrefix(trimmed, "sudo ")
	if !ok {
		return cmd, false
	}
	rest = strings.TrimSpace(rest)
	if rest == "" || strings.HasPrefix(rest, "-") {
		return cmd, false
	}
	return rest, true
}

// ContainsWord reports whether word appears in cmd as a whitespace separated
// token.
func ContainsWord(cmd, word string) bool {
	for _, f := range strings.Fields(cmd) {
		if f == word {
			return true
		}
	}
	return false
}

// SplitQuoted splits s on whitespace outside single or double quotes, keeping
// the quotes in the tokens. The boolean is false for unbalanced quotes or a
// trailing escape.
func SplitQuoted(s string) ([]string, bool) {
	var (
		toks  []string
		cur   strings.Builder
		quote rune
		esc   bool
	)
	for _, r := range s {
		switch {
		case esc:
			esc = false
			cur.WriteRune(r)
		case r == '\\' && quote != '\'':
			esc = true
			cur.WriteRune(r)
		case quote != 0:
			if r == quote {
				quote = 0
			}
			cur.WriteRune(r)
		case r == '"' || r == '\'':
			quote = r
			cur.WriteRune(r)
		case r == ' ' || r == '\t':
			if cur.Len() > 0 {
				toks = append(toks, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if quote != 0 || esc {
		return nil, false
	}
	if cur.Len() > 0 {
		toks = append(toks, cur.String())
	}
	return toks, true
}
