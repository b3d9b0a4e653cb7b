package rules

import (
	"fmt"
	"strings"

	"github.com/dlinter/dlin/internal/instruction"
	"github.com/dlinter/dlin/internal/shell"
	tt "github.com/dlinter/dlin/internal/types"
)

// secretKeywords is matched against upper-cased variable names.
var secretKeywords = []string{
	"PASSWORD", "PASSWD", "SECRET", "TOKEN", "API_KEY", "APIKEY",
	"PRIVATE_KEY", "ACCESS_KEY", "CREDENTIAL",
}

func rootUser() Rule {
	meta := Meta{
		ID:          "SEC001",
		Name:        "root-user",
		Category:    tt.CategorySecurity,
		Severity:    tt.SeverityWarning,
		Description: "The final image should not run as root",
		Explanation: "A process running as root inside the container is root on the host if it escapes " +
			"the container. Create an unprivileged user and switch to it with USER.",
	}
	return SequenceRule(meta, func(m Meta, seq instruction.Sequence) []tt.Issue {
		stages := seq.Stages()
		if len(stages) == 0 {
			return nil
		}
		final := stages[len(stages)-1]
		last := -1
		for i := final.Start; i < final.End; i++ {
			if seq[i].Kind == instruction.User {
				last = i
			}
		}
		if last < 0 {
			return []tt.Issue{m.Issue(seq[final.Start],
				"The final stage does not switch to a non-root USER",
				"Add 'USER <name>' with an unprivileged user before the end of the stage")}
		}
		user, _, _ := strings.Cut(strings.TrimSpace(seq[last].Value), ":")
		if user != "root" && user != "0" {
			return nil
		}
		return []tt.Issue{m.Issue(seq[last],
			"The final stage runs as root",
			"Switch to an unprivileged user")}
	})
}

func secretInEnv() Rule {
	meta := Meta{
		ID:          "SEC002",
		Name:        "secret-in-env",
		Category:    tt.CategorySecurity,
		Severity:    tt.SeverityError,
		Description: "Secrets must not be passed through ENV or ARG",
		Explanation: "ENV values are stored in the image configuration and ARG values in the build " +
			"history, both readable by anyone who can pull the image. Use build secrets " +
			"(RUN --mount=type=secret) instead. This check matches variable names against a keyword " +
			"list and may report false positives.",
	}
	return InstructionRule(meta, func(m Meta, inst instruction.Instruction) []tt.Issue {
		var issues []tt.Issue
		for _, key := range variableNames(inst) {
			upper := strings.ToUpper(key)
			for _, kw := range secretKeywords {
				if strings.Contains(upper, kw) {
					issues = append(issues, m.Issue(inst,
						fmt.Sprintf("%s '%s' looks like it holds a secret", inst.Kind, key),
						"Pass the value with a build secret mount instead"))
					break
				}
			}
		}
		return issues
	}, instruction.Env, instruction.Arg)
}

// variableNames returns the keys declared by an ENV or ARG value. Both the
// `KEY=value ...` form and the legacy `ENV KEY value` form are handled.
// Words inside quoted values are never keys.
func variableNames(inst instruction.Instruction) []string {
	toks, ok := shell.SplitQuoted(inst.Value)
	if !ok {
		toks = strings.Fields(inst.Value)
	}
	if len(toks) == 0 {
		return nil
	}
	if inst.Kind == instruction.Env && !strings.Contains(toks[0], "=") {
		return toks[:1]
	}
	if !ok {
		key, _, _ := strings.Cut(toks[0], "=")
		return []string{key}
	}
	var keys []string
	for _, tok := range toks {
		key, _, found := strings.Cut(tok, "=")
		if !found && inst.Kind != instruction.Arg {
			continue
		}
		if key == "" || strings.ContainsAny(key, `"'`) {
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

func installWithoutUpdate() Rule {
	meta := Meta{
		ID:          "SEC003",
		Name:        "install-without-update",
		Category:    tt.CategorySecurity,
		Severity:    tt.SeverityError,
		Description: "apt-get install must follow apt-get update",
		Explanation: "Installing from stale package lists can fail or pull outdated packages with known " +
			"vulnerabilities. Run apt-get update in the same RUN, chained with &&.",
	}
	return SequenceRule(meta, func(m Meta, seq instruction.Sequence) []tt.Issue {
		var issues []tt.Issue
		updated := false
		for _, inst := range seq {
			if inst.Kind != instruction.Run {
				continue
			}
			if shell.HasAptInstall(inst.Value) && !updated && !shell.UpdatesBeforeInstall(inst.Value) {
				issues = append(issues, m.Issue(inst,
					"apt-get install without a preceding apt-get update",
					"Use 'apt-get update && apt-get install ...' in the same RUN"))
			}
			if shell.HasAptUpdate(inst.Value) {
				updated = true
			}
		}
		return issues
	})
}

func sudoUsage() Rule {
	meta := Meta{
		ID:          "SEC004",
		Name:        "sudo-usage",
		Category:    tt.CategorySecurity,
		Severity:    tt.SeverityWarning,
		Description: "Avoid sudo in RUN instructions",
		Explanation: "RUN already executes as the current USER. sudo adds an unpredictable TTY and " +
			"signal-forwarding behavior and suggests the image carries a sudo binary it does not need.",
	}
	return InstructionRule(meta, func(m Meta, inst instruction.Instruction) []tt.Issue {
		if !shell.UsesSudo(inst.Value) {
			return nil
		}
		return []tt.Issue{m.Issue(inst,
			"RUN uses sudo",
			"Switch USER for the privileged commands instead of using sudo")}
	}, instruction.Run)
}

func curlPipeShell() Rule {
	meta := Meta{
		ID:          "SEC005",
		Name:        "curl-pipe-shell",
		Category:    tt.CategorySecurity,
		Severity:    tt.SeverityWarning,
		Description: "Do not pipe downloaded scripts into a shell",
		Explanation: "Piping a remote script straight into a shell executes whatever the server returns, " +
			"without any integrity check.",
	}
	return InstructionRule(meta, func(m Meta, inst instruction.Instruction) []tt.Issue {
		if !shell.PipesIntoShell(inst.Value) {
			return nil
		}
		return []tt.Issue{m.Issue(inst,
			"Downloaded script is piped into a shell",
			"Download the script, verify its checksum, then execute it")}
	}, instruction.Run)
}

func remoteAdd() Rule {
	meta := Meta{
		ID:          "SEC006",
		Name:        "remote-add",
		Category:    tt.CategorySecurity,
		Severity:    tt.SeverityWarning,
		Description: "Avoid ADD with remote URLs",
		Explanation: "ADD fetches URLs without verifying their content. Download with curl or wget in a " +
			"RUN and check the checksum, or use ADD --checksum.",
	}
	return InstructionRule(meta, func(m Meta, inst instruction.Instruction) []tt.Issue {
		if _, ok := inst.Flags()["checksum"]; ok {
			return nil
		}
		srcs, _ := inst.Sources()
		for _, src := range srcs {
			if isRemoteSource(src) {
				return []tt.Issue{m.Issue(inst,
					fmt.Sprintf("ADD fetches remote source '%s'", src),
					"Download with curl and verify a checksum, or use 'ADD --checksum=sha256:...'")}
			}
		}
		return nil
	}, instruction.Add)
}
