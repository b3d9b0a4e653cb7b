package rules

import (
	"fmt"
	"strings"

	"github.com/dlinter/dlin/internal/instruction"
	"github.com/dlinter/dlin/internal/shell"
	tt "github.com/dlinter/dlin/internal/types"
)

// buildTools are package names that are only needed to compile software.
var buildTools = []string{
	"build-essential", "gcc", "g++", "make", "cmake", "clang",
	"autoconf", "automake", "libtool", "pkg-config", "musl-dev",
}

var archiveSuffixes = []string{
	".tar", ".tar.gz", ".tgz", ".tar.bz2", ".tbz2", ".tar.xz", ".txz", ".tar.zst",
}

func combineRun() Rule {
	meta := Meta{
		ID:          "PERF001",
		Name:        "combine-run",
		Category:    tt.CategoryPerformance,
		Severity:    tt.SeverityInfo,
		Description: "Consecutive RUN instructions can be combined",
		Explanation: "Every RUN creates a new image layer. Chaining related commands with && in one RUN " +
			"reduces the layer count and lets cleanup commands actually shrink the image.",
	}
	return SequenceRule(meta, func(m Meta, seq instruction.Sequence) []tt.Issue {
		var issues []tt.Issue
		for i := 0; i < len(seq); {
			if !seq[i].IsShellRun() {
				i++
				continue
			}
			j := i + 1
			for j < len(seq) && seq[j].IsShellRun() {
				j++
			}
			if n := j - i; n >= 2 {
				issues = append(issues, m.Issue(seq[i],
					fmt.Sprintf("%d consecutive RUN instructions (lines %d-%d) can be combined", n, seq[i].Line, seq[j-1].EndLine),
					"Chain the commands with && in a single RUN"))
			}
			i = j
		}
		return issues
	})
}

func aptCacheCleanup() Rule {
	meta := Meta{
		ID:          "PERF002",
		Name:        "apt-cache-cleanup",
		Category:    tt.CategoryPerformance,
		Severity:    tt.SeverityWarning,
		Description: "apt-get install should remove the package lists in the same layer",
		Explanation: "The apt package lists stay in the layer unless they are deleted by the same RUN " +
			"that created them. Deleting them in a later RUN does not reduce the image size.",
	}
	return InstructionRule(meta, func(m Meta, inst instruction.Instruction) []tt.Issue {
		if !shell.HasAptInstall(inst.Value) || shell.HasAptCleanup(inst.Value) {
			return nil
		}
		return []tt.Issue{m.Issue(inst,
			"apt-get install without removing /var/lib/apt/lists",
			"Append '&& "+shell.AptListsCleanup+"' to this RUN")}
	}, instruction.Run)
}

func aptNoInstallRecommends() Rule {
	meta := Meta{
		ID:          "PERF003",
		Name:        "apt-no-install-recommends",
		Category:    tt.CategoryPerformance,
		Severity:    tt.SeverityInfo,
		Description: "apt-get install should use --no-install-recommends",
		Explanation: "Recommended packages are rarely needed inside a container and can add a large " +
			"amount of weight to the image.",
	}
	return InstructionRule(meta, func(m Meta, inst instruction.Instruction) []tt.Issue {
		if !shell.HasAptInstall(inst.Value) || inst.Contains("--no-install-recommends") {
			return nil
		}
		return []tt.Issue{m.Issue(inst,
			"apt-get install without --no-install-recommends",
			"Use 'apt-get install -y --no-install-recommends ...'")}
	}, instruction.Run)
}

func broadCopyBeforeInstall() Rule {
	meta := Meta{
		ID:          "PERF004",
		Name:        "broad-copy-before-install",
		Category:    tt.CategoryPerformance,
		Severity:    tt.SeverityWarning,
		Description: "Copying the whole build context before installing dependencies defeats the layer cache",
		Explanation: "Any change to any file in the context invalidates the cached install layer. Copy only " +
			"the dependency manifests first, install, and copy the rest of the sources afterwards.",
	}
	return SequenceRule(meta, func(m Meta, seq instruction.Sequence) []tt.Issue {
		var issues []tt.Issue
		reported := make(map[int]struct{})
		for _, st := range seq.Stages() {
			for i := st.Start; i < st.End; i++ {
				if seq[i].Kind != instruction.Run || !shell.HasDependencyInstall(seq[i].Value) {
					continue
				}
				for j := st.Start; j < i; j++ {
					if _, done := reported[j]; done || !isBroadCopy(seq[j]) {
						continue
					}
					reported[j] = struct{}{}
					issues = append(issues, m.Issue(seq[j],
						fmt.Sprintf("COPY of the whole build context precedes the dependency install at line %d", seq[i].Line),
						"Copy dependency manifests first (e.g. 'COPY requirements.txt .'), install, then copy the sources"))
				}
			}
		}
		return issues
	})
}

func isBroadCopy(inst instruction.Instruction) bool {
	if inst.Kind != instruction.Copy {
		return false
	}
	if _, ok := inst.Flags()["from"]; ok {
		return false
	}
	srcs, _ := inst.Sources()
	for _, src := range srcs {
		if src == "." || src == "./" {
			return true
		}
	}
	return false
}

func addInsteadOfCopy() Rule {
	meta := Meta{
		ID:          "PERF005",
		Name:        "add-instead-of-copy",
		Category:    tt.CategoryPerformance,
		Severity:    tt.SeverityInfo,
		Description: "Use COPY for local files",
		Explanation: "ADD also extracts archives and fetches URLs. For plain local files COPY is more " +
			"predictable and states the intent precisely.",
	}
	return InstructionRule(meta, func(m Meta, inst instruction.Instruction) []tt.Issue {
		srcs, _ := inst.Sources()
		if len(srcs) == 0 {
			return nil
		}
		for _, src := range srcs {
			if isRemoteSource(src) || isArchive(src) {
				return nil
			}
		}
		return []tt.Issue{m.Issue(inst,
			"ADD used for local files",
			"Replace ADD with COPY")}
	}, instruction.Add)
}

func isRemoteSource(src string) bool {
	s := strings.ToLower(src)
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "git@")
}

func isArchive(src string) bool {
	s := strings.ToLower(src)
	for _, suffix := range archiveSuffixes {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}
	return false
}

func pipNoCacheDir() Rule {
	meta := Meta{
		ID:          "PERF006",
		Name:        "pip-no-cache-dir",
		Category:    tt.CategoryPerformance,
		Severity:    tt.SeverityInfo,
		Description: "pip install should use --no-cache-dir",
		Explanation: "pip keeps downloaded wheels in its cache directory, which ends up in the image layer.",
	}
	return SequenceRule(meta, func(m Meta, seq instruction.Sequence) []tt.Issue {
		var issues []tt.Issue
		envDisabled := false
		for _, inst := range seq {
			switch inst.Kind {
			case instruction.Env, instruction.Arg:
				if strings.Contains(inst.Value, "PIP_NO_CACHE_DIR") {
					envDisabled = true
				}
			case instruction.Run:
				if envDisabled || !shell.HasPipInstall(inst.Value) || inst.Contains("--no-cache-dir") {
					continue
				}
				issues = append(issues, m.Issue(inst,
					"pip install without --no-cache-dir",
					"Use 'pip install --no-cache-dir ...'"))
			}
		}
		return issues
	})
}

func buildToolsInFinalImage() Rule {
	meta := Meta{
		ID:          "PERF007",
		Name:        "build-tools-in-final-image",
		Category:    tt.CategoryPerformance,
		Severity:    tt.SeverityWarning,
		Description: "Build tooling should be installed in a separate build stage",
		Explanation: "Compilers and build tools are only needed while building. Install them in a named " +
			"build stage and copy the artifacts into a slim runtime stage. This check is a keyword " +
			"heuristic and may report false positives.",
	}
	return SequenceRule(meta, func(m Meta, seq instruction.Sequence) []tt.Issue {
		var issues []tt.Issue
		for _, st := range seq.Stages() {
			if st.Named() {
				continue
			}
			for i := st.Start; i < st.End; i++ {
				inst := seq[i]
				if inst.Kind != instruction.Run || !shell.HasPackageInstall(inst.Value) {
					continue
				}
				var found []string
				for _, tool := range buildTools {
					if shell.ContainsWord(inst.Value, tool) {
						found = append(found, tool)
					}
				}
				if len(found) == 0 {
					continue
				}
				issues = append(issues, m.Issue(inst,
					fmt.Sprintf("Build tools installed in an unnamed stage: %s", strings.Join(found, ", ")),
					"Move the build into a 'FROM <image> AS builder' stage and copy only the artifacts"))
			}
		}
		return issues
	})
}
