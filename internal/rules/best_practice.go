package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dlinter/dlin/internal/instruction"
	tt "github.com/dlinter/dlin/internal/types"
)

var windowsAbsPath = regexp.MustCompile(`^[A-Za-z]:[\\/]`)

func pinnedBaseImage() Rule {
	meta := Meta{
		ID:          "BP001",
		Name:        "pinned-base-image",
		Category:    tt.CategoryBestPractice,
		Severity:    tt.SeverityWarning,
		Description: "Base images should be pinned to a specific tag or digest",
		Explanation: "Untagged images and the `latest` tag resolve to whatever was pushed most recently, " +
			"so two builds of the same Dockerfile can produce different images. " +
			"Pin a version tag, or a digest for fully reproducible builds.",
	}
	return SequenceRule(meta, func(m Meta, seq instruction.Sequence) []tt.Issue {
		var issues []tt.Issue
		aliases := make(map[string]struct{})
		for _, inst := range seq {
			if inst.Kind != instruction.From || inst.Image == nil {
				continue
			}
			img := inst.Image
			_, isStage := aliases[strings.ToLower(img.Name)]
			if img.Alias != "" {
				aliases[strings.ToLower(img.Alias)] = struct{}{}
			}
			if isStage || img.IsScratch() || img.Name == "" || strings.Contains(img.Name, "$") {
				continue
			}
			if img.Digest != "" {
				continue
			}
			switch {
			case img.Tag == "":
				issues = append(issues, m.Issue(inst,
					fmt.Sprintf("Base image '%s' has no tag", img.Name),
					fmt.Sprintf("Pin a specific version, e.g. 'FROM %s:<version>'", img.Name)))
			case strings.EqualFold(img.Tag, "latest"):
				issues = append(issues, m.Issue(inst,
					fmt.Sprintf("Base image '%s' uses the 'latest' tag", img.Name),
					fmt.Sprintf("Replace ':latest' with a specific version of '%s'", img.Name)))
			}
		}
		return issues
	})
}

func missingHealthcheck() Rule {
	meta := Meta{
		ID:          "BP002",
		Name:        "missing-healthcheck",
		Category:    tt.CategoryBestPractice,
		Severity:    tt.SeverityWarning,
		Description: "Images exposing ports should declare a HEALTHCHECK",
		Explanation: "Without a HEALTHCHECK, orchestrators only know whether the process is running, " +
			"not whether the service behind the exposed port actually responds.",
	}
	return SequenceRule(meta, func(m Meta, seq instruction.Sequence) []tt.Issue {
		first := seq.First(instruction.Expose)
		if first < 0 || seq.Has(instruction.Healthcheck) {
			return nil
		}
		return []tt.Issue{m.Issue(seq[first],
			"Ports are exposed but no HEALTHCHECK is defined",
			"Add e.g. 'HEALTHCHECK CMD curl -f http://localhost/ || exit 1'")}
	})
}

func exposeWithoutProtocol() Rule {
	meta := Meta{
		ID:          "BP003",
		Name:        "expose-without-protocol",
		Category:    tt.CategoryBestPractice,
		Severity:    tt.SeverityInfo,
		Description: "EXPOSE should state the transport protocol explicitly",
		Explanation: "EXPOSE defaults to TCP. Writing '/tcp' or '/udp' documents the intent and avoids " +
			"surprises for UDP services.",
	}
	return InstructionRule(meta, func(m Meta, inst instruction.Instruction) []tt.Issue {
		var bare []string
		for _, port := range inst.Args() {
			if !strings.Contains(port, "/") {
				bare = append(bare, port)
			}
		}
		if len(bare) == 0 {
			return nil
		}
		return []tt.Issue{m.Issue(inst,
			fmt.Sprintf("EXPOSE %s does not specify a protocol", strings.Join(bare, " ")),
			fmt.Sprintf("Use 'EXPOSE %s/tcp' (or /udp)", bare[0]))}
	}, instruction.Expose)
}

func missingLabel() Rule {
	meta := Meta{
		ID:          "BP004",
		Name:        "missing-label",
		Category:    tt.CategoryBestPractice,
		Severity:    tt.SeverityInfo,
		Description: "Images should carry LABEL metadata",
		Explanation: "Labels such as maintainer, version and source make images discoverable and " +
			"traceable back to the code that produced them.",
	}
	return SequenceRule(meta, func(m Meta, seq instruction.Sequence) []tt.Issue {
		if len(seq) == 0 || seq.Has(instruction.Label) {
			return nil
		}
		issue := m.Issue(seq[0], "No LABEL instruction found",
			`Add metadata, e.g. 'LABEL org.opencontainers.image.source="..."'`)
		issue.Line = 1
		issue.EndLine = 1
		return []tt.Issue{issue}
	})
}

func relativeWorkdir() Rule {
	meta := Meta{
		ID:          "BP005",
		Name:        "relative-workdir",
		Category:    tt.CategoryBestPractice,
		Severity:    tt.SeverityWarning,
		Description: "WORKDIR should use an absolute path",
		Explanation: "A relative WORKDIR is resolved against the previous WORKDIR, which makes the " +
			"effective directory depend on instructions that may change elsewhere in the file.",
	}
	return InstructionRule(meta, func(m Meta, inst instruction.Instruction) []tt.Issue {
		dir := strings.Trim(strings.TrimSpace(inst.Value), `"'`)
		if dir == "" || isAbsoluteDir(dir) {
			return nil
		}
		return []tt.Issue{m.Issue(inst,
			fmt.Sprintf("WORKDIR '%s' is a relative path", dir),
			fmt.Sprintf("Use an absolute path, e.g. 'WORKDIR /%s'", strings.TrimPrefix(dir, "./")))}
	}, instruction.Workdir)
}

func isAbsoluteDir(dir string) bool {
	return strings.HasPrefix(dir, "/") || strings.HasPrefix(dir, "$") || windowsAbsPath.MatchString(dir)
}

func undefinedStageReference() Rule {
	meta := Meta{
		ID:          "BP006",
		Name:        "undefined-stage-reference",
		Category:    tt.CategoryBestPractice,
		Severity:    tt.SeverityError,
		Description: "COPY --from must reference a stage defined earlier",
		Explanation: "Stages are built top to bottom. A COPY --from that names a stage defined later " +
			"(or never) is either an error or silently pulls an image of the same name from a registry.",
	}
	return SequenceRule(meta, func(m Meta, seq instruction.Sequence) []tt.Issue {
		var issues []tt.Issue
		aliases := make(map[string]struct{})
		stages := 0
		for _, inst := range seq {
			switch inst.Kind {
			case instruction.From:
				stages++
				if inst.Image != nil && inst.Image.Alias != "" {
					aliases[strings.ToLower(inst.Image.Alias)] = struct{}{}
				}
			case instruction.Copy:
				ref, ok := inst.Flags()["from"]
				if !ok || ref == "" || isExternalImageRef(ref) {
					continue
				}
				if n, err := strconv.Atoi(ref); err == nil {
					if n >= 0 && n < stages {
						continue
					}
					issues = append(issues, m.Issue(inst,
						fmt.Sprintf("COPY --from=%s references stage index %d, but only %d stage(s) precede it", ref, n, stages),
						"Reference an earlier stage by index or alias"))
					continue
				}
				if _, ok := aliases[strings.ToLower(ref)]; ok {
					continue
				}
				issues = append(issues, m.Issue(inst,
					fmt.Sprintf("COPY --from=%s references a stage that is not defined before this instruction", ref),
					fmt.Sprintf("Define 'FROM <image> AS %s' before this COPY", ref)))
			}
		}
		return issues
	})
}

// isExternalImageRef reports whether a --from value names an image rather
// than a stage.
func isExternalImageRef(ref string) bool {
	return strings.ContainsAny(ref, ":/@$")
}

func duplicateStageAlias() Rule {
	meta := Meta{
		ID:          "BP007",
		Name:        "duplicate-stage-alias",
		Category:    tt.CategoryBestPractice,
		Severity:    tt.SeverityError,
		Description: "Stage aliases must be unique",
		Explanation: "Stage names are case-insensitive. Declaring the same alias twice makes " +
			"COPY --from and --target ambiguous.",
	}
	return SequenceRule(meta, func(m Meta, seq instruction.Sequence) []tt.Issue {
		var issues []tt.Issue
		seen := make(map[string]int)
		for _, inst := range seq {
			if inst.Kind != instruction.From || inst.Image == nil || inst.Image.Alias == "" {
				continue
			}
			key := strings.ToLower(inst.Image.Alias)
			if line, ok := seen[key]; ok {
				issues = append(issues, m.Issue(inst,
					fmt.Sprintf("Stage alias '%s' is already defined at line %d", inst.Image.Alias, line),
					"Rename one of the stages"))
				continue
			}
			seen[key] = inst.Line
		}
		return issues
	})
}

func shellFormCommand() Rule {
	meta := Meta{
		ID:          "BP008",
		Name:        "shell-form-command",
		Category:    tt.CategoryBestPractice,
		Severity:    tt.SeverityInfo,
		Description: "CMD and ENTRYPOINT should use the exec (JSON array) form",
		Explanation: "The shell form runs the process as a child of /bin/sh -c, so it does not " +
			"receive signals such as SIGTERM and the container cannot shut down gracefully.",
	}
	return InstructionRule(meta, func(m Meta, inst instruction.Instruction) []tt.Issue {
		if inst.Value == "" || inst.IsExecForm() {
			return nil
		}
		return []tt.Issue{m.Issue(inst,
			fmt.Sprintf("%s uses the shell form", inst.Kind),
			fmt.Sprintf(`Use the exec form, e.g. %s ["executable", "arg"]`, inst.Kind))}
	}, instruction.Cmd, instruction.Entrypoint)
}

func multipleCommands() Rule {
	meta := Meta{
		ID:          "BP009",
		Name:        "multiple-commands",
		Category:    tt.CategoryBestPractice,
		Severity:    tt.SeverityWarning,
		Description: "Only the last CMD or ENTRYPOINT of a stage takes effect",
		Explanation: "When a stage declares CMD or ENTRYPOINT more than once, every declaration " +
			"except the last one is silently ignored.",
	}
	return SequenceRule(meta, func(m Meta, seq instruction.Sequence) []tt.Issue {
		var issues []tt.Issue
		for _, st := range seq.Stages() {
			for _, kind := range []instruction.Kind{instruction.Cmd, instruction.Entrypoint} {
				last := -1
				for i := st.Start; i < st.End; i++ {
					if seq[i].Kind != kind {
						continue
					}
					if last >= 0 {
						issues = append(issues, m.Issue(seq[last],
							fmt.Sprintf("%s is overridden by a later %s at line %d", kind, kind, seq[i].Line),
							fmt.Sprintf("Remove the redundant %s", kind)))
					}
					last = i
				}
			}
		}
		return issues
	})
}

func unknownInstruction() Rule {
	meta := Meta{
		ID:          "BP010",
		Name:        "unknown-instruction",
		Category:    tt.CategoryBestPractice,
		Severity:    tt.SeverityError,
		Description: "Unrecognized instruction",
		Explanation: "The builder rejects unknown instructions. This is usually a typo in the keyword.",
	}
	return InstructionRule(meta, func(m Meta, inst instruction.Instruction) []tt.Issue {
		return []tt.Issue{m.Issue(inst,
			fmt.Sprintf("Unknown instruction '%s'", inst.Keyword()),
			"Check the spelling of the instruction keyword")}
	}, instruction.Unknown)
}

func deprecatedMaintainer() Rule {
	meta := Meta{
		ID:          "BP011",
		Name:        "deprecated-maintainer",
		Category:    tt.CategoryBestPractice,
		Severity:    tt.SeverityWarning,
		Description: "MAINTAINER is deprecated",
		Explanation: "MAINTAINER has been deprecated in favor of a label, which is visible to " +
			"standard image inspection tools.",
	}
	return InstructionRule(meta, func(m Meta, inst instruction.Instruction) []tt.Issue {
		return []tt.Issue{m.Issue(inst,
			"MAINTAINER is deprecated",
			fmt.Sprintf(`Use 'LABEL org.opencontainers.image.authors="%s"'`, strings.Trim(inst.Value, `"`)))}
	}, instruction.Maintainer)
}

func fromFirst() Rule {
	meta := Meta{
		ID:          "BP012",
		Name:        "from-first",
		Category:    tt.CategoryBestPractice,
		Severity:    tt.SeverityError,
		Description: "FROM must be the first instruction",
		Explanation: "Only ARG may appear before the first FROM. Anything else is rejected by the builder.",
	}
	return SequenceRule(meta, func(m Meta, seq instruction.Sequence) []tt.Issue {
		for _, inst := range seq {
			switch inst.Kind {
			case instruction.Arg:
				continue
			case instruction.From:
				return nil
			default:
				return []tt.Issue{m.Issue(inst,
					fmt.Sprintf("%s appears before the first FROM", inst.Keyword()),
					"Move FROM to the top of the file (only ARG may precede it)")}
			}
		}
		return nil
	})
}
