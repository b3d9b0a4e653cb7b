package optimizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlinter/dlin/internal/instruction"
	"github.com/dlinter/dlin/internal/parser"
)

func passByName(t *testing.T, name string) Pass {
	t.Helper()
	for _, p := range Passes() {
		if p.Name() == name {
			return p
		}
	}
	t.Fatalf("pass %q not found", name)
	return nil
}

func optimize(t *testing.T, src string, disabled ...string) Result {
	t.Helper()
	p, err := New(disabled...)
	require.NoError(t, err)
	return p.Optimize(parser.Parse(src))
}

func passNames(changes []Change) []string {
	names := make([]string, len(changes))
	for i, c := range changes {
		names[i] = c.Pass
	}
	return names
}

func TestPassOrder(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{
		"merge-run",
		"pin-base-image",
		"apt-cache-cleanup",
		"expose-protocol",
		"add-to-copy",
		"combine-metadata",
		"strip-sudo",
		"apt-update",
	}, PassNames())
}

func TestUntaggedBaseImage(t *testing.T) {
	t.Parallel()

	res := optimize(t, "FROM python")
	assert.Equal(t, "FROM python:latest\n", res.Text())
	require.Len(t, res.Changes, 1)
	assert.Equal(t, PassPinBaseImage, res.Changes[0].Pass)
	assert.Equal(t, 1, res.Changes[0].Line)
	require.NotNil(t, res.Instructions[0].Image)
	assert.Equal(t, "latest", res.Instructions[0].Image.Tag)
}

func TestSplitInstall(t *testing.T) {
	t.Parallel()

	seq := parser.Parse("RUN apt-get install -y curl")

	out, changes := passByName(t, PassAptUpdate).Apply(seq)
	require.Len(t, changes, 1)
	assert.Equal(t, "RUN apt-get update && apt-get install -y curl", out[0].Raw)
	assert.Equal(t, "apt-get update && apt-get install -y curl", out[0].Value)

	res := optimize(t, "RUN apt-get install -y curl")
	assert.Equal(t, "RUN apt-get update && apt-get install -y curl && rm -rf /var/lib/apt/lists/*\n", res.Text())
	assert.Equal(t, []string{PassAptCacheCleanup, PassAptUpdate}, passNames(res.Changes))
}

func TestMergeThenCleanup(t *testing.T) {
	t.Parallel()

	src := `FROM ubuntu:22.04
RUN apt-get update
RUN apt-get install -y curl
RUN curl -fsSL https://example.com/install.sh | bash`

	res := optimize(t, src)
	require.Len(t, res.Instructions, 2)

	run := res.Instructions[1]
	assert.Equal(t, instruction.Run, run.Kind)
	assert.Equal(t, 2, run.Line)
	assert.Equal(t, 4, run.EndLine)
	assert.Equal(t,
		"apt-get update && apt-get install -y curl && curl -fsSL https://example.com/install.sh | bash && rm -rf /var/lib/apt/lists/*",
		run.Value)
	assert.Equal(t, 1, strings.Count(res.Text(), "rm -rf /var/lib/apt/lists/*"))
	assert.Equal(t, "RUN apt-get update \\\n    && apt-get install -y curl \\\n"+
		"    && curl -fsSL https://example.com/install.sh | bash \\\n    && rm -rf /var/lib/apt/lists/*", run.Raw)

	assert.Equal(t, []string{PassMergeRun, PassAptCacheCleanup}, passNames(res.Changes))
	assert.Equal(t, 2, res.Changes[0].Line)
	assert.Equal(t, 4, res.Changes[0].EndLine)
}

func TestMergeRunIdempotent(t *testing.T) {
	t.Parallel()

	src := `FROM a:1
RUN a
RUN b
COPY x y
RUN c
RUN d
RUN e
RUN ["exec", "form"]
RUN f`

	merge := passByName(t, PassMergeRun)
	once, changes := merge.Apply(parser.Parse(src))
	assert.Len(t, changes, 2)
	assert.Len(t, once, 6)

	twice, again := merge.Apply(once)
	assert.Empty(t, again)
	assert.Equal(t, once, twice)
}

func TestMergeRunSkipsFlaggedRuns(t *testing.T) {
	t.Parallel()

	src := "FROM a:1\nRUN a\nRUN --mount=type=cache,target=/root/.cache b\nRUN c"
	out, changes := passByName(t, PassMergeRun).Apply(parser.Parse(src))
	assert.Empty(t, changes)
	assert.Len(t, out, 4)
}

func TestPinBaseImage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		src      string
		expected string
		changed  int
	}{
		{"untagged", "FROM python", "FROM python:latest\n", 1},
		{"tagged latest", "FROM python:latest", "FROM python:latest\n", 0},
		{"tagged", "FROM python:3.12", "FROM python:3.12\n", 0},
		{"digest", "FROM python@sha256:abc", "FROM python@sha256:abc\n", 0},
		{"scratch", "FROM scratch", "FROM scratch\n", 0},
		{
			"platform and alias",
			"FROM --platform=linux/amd64 golang as build",
			"FROM --platform=linux/amd64 golang:latest AS build\n",
			1,
		},
		{"earlier alias", "FROM golang:1.22 AS build\nFROM build", "FROM golang:1.22 AS build\nFROM build\n", 0},
		{"registry port", "FROM localhost:5000/app", "FROM localhost:5000/app:latest\n", 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			out, changes := passByName(t, PassPinBaseImage).Apply(parser.Parse(tc.src))
			assert.Equal(t, tc.expected, instruction.Render(out))
			assert.Len(t, changes, tc.changed)
		})
	}
}

func TestAptCacheCleanup(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		src      string
		expected string
	}{
		{
			"single line",
			"RUN apt-get install -y curl",
			"RUN apt-get install -y curl && rm -rf /var/lib/apt/lists/*\n",
		},
		{
			"already clean",
			"RUN apt-get install -y curl && rm -rf /var/lib/apt/lists/*",
			"RUN apt-get install -y curl && rm -rf /var/lib/apt/lists/*\n",
		},
		{
			"continuation",
			"RUN apt-get update && \\\n    apt-get install -y curl",
			"RUN apt-get update && \\\n    apt-get install -y curl \\\n    && rm -rf /var/lib/apt/lists/*\n",
		},
		{
			"no install",
			"RUN apt-get update",
			"RUN apt-get update\n",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			out, _ := passByName(t, PassAptCacheCleanup).Apply(parser.Parse(tc.src))
			assert.Equal(t, tc.expected, instruction.Render(out))
		})
	}
}

func TestExposeProtocol(t *testing.T) {
	t.Parallel()

	out, changes := passByName(t, PassExposeProtocol).Apply(parser.Parse("EXPOSE 80 53/udp 443"))
	assert.Equal(t, "EXPOSE 80/tcp 53/udp 443/tcp\n", instruction.Render(out))
	assert.Equal(t, "80/tcp 53/udp 443/tcp", out[0].Value)
	require.Len(t, changes, 1)
	assert.Contains(t, changes[0].Description, "80, 443")

	out, changes = passByName(t, PassExposeProtocol).Apply(parser.Parse("EXPOSE 80 \\\n  8080"))
	assert.Equal(t, "EXPOSE 80/tcp \\\n  8080/tcp\n", instruction.Render(out))
	assert.Len(t, changes, 1)

	_, changes = passByName(t, PassExposeProtocol).Apply(parser.Parse("EXPOSE 80/tcp"))
	assert.Empty(t, changes)
}

func TestAddToCopy(t *testing.T) {
	t.Parallel()

	out, changes := passByName(t, PassAddToCopy).Apply(parser.Parse("ADD --chown=app:app src/ /app/"))
	assert.Equal(t, "COPY --chown=app:app src/ /app/\n", instruction.Render(out))
	assert.Equal(t, instruction.Copy, out[0].Kind)
	assert.Equal(t, "--chown=app:app src/ /app/", out[0].Value)
	assert.Len(t, changes, 1)
}

func TestCombineMetadata(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		src      string
		expected string
		changes  int
	}{
		{
			"env and label groups",
			"ENV A=1\nENV B=2\nLABEL x=1\nLABEL y=\"two words\"",
			"ENV A=1 B=2\nLABEL x=1 y=\"two words\"\n",
			2,
		},
		{
			"reference splits group",
			"ENV A=1\nENV B=$A\nENV C=${B}/bin",
			"ENV A=1\nENV B=$A\nENV C=${B}/bin\n",
			0,
		},
		{
			"prefix is not a reference",
			"ENV A=1\nENV B=$AB",
			"ENV A=1 B=$AB\n",
			1,
		},
		{
			"bare arg",
			"ARG VERSION\nARG PORT=80",
			"ARG VERSION PORT=80\n",
			1,
		},
		{
			"legacy env form",
			"ENV A 1\nENV B=2",
			"ENV A 1\nENV B=2\n",
			0,
		},
		{
			"different kinds",
			"ENV A=1\nARG B=2",
			"ENV A=1\nARG B=2\n",
			0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			out, changes := passByName(t, PassCombineMetadata).Apply(parser.Parse(tc.src))
			assert.Equal(t, tc.expected, instruction.Render(out))
			assert.Len(t, changes, tc.changes)
		})
	}
}

func TestStripSudo(t *testing.T) {
	t.Parallel()

	out, changes := passByName(t, PassStripSudo).Apply(parser.Parse("RUN sudo apt-get update"))
	assert.Equal(t, "RUN apt-get update\n", instruction.Render(out))
	assert.Equal(t, "apt-get update", out[0].Value)
	assert.Len(t, changes, 1)

	_, changes = passByName(t, PassStripSudo).Apply(parser.Parse("RUN sudo -u app make"))
	assert.Empty(t, changes)
}

func TestRunFlagsArePreserved(t *testing.T) {
	t.Parallel()

	res := optimize(t, "RUN --mount=type=cache,target=/var/cache/apt apt-get install -y curl")
	require.Len(t, res.Instructions, 1)
	assert.Equal(t,
		"--mount=type=cache,target=/var/cache/apt apt-get update && apt-get install -y curl && rm -rf /var/lib/apt/lists/*",
		res.Instructions[0].Value)
	assert.Equal(t, "RUN "+res.Instructions[0].Value, res.Instructions[0].Raw)
}

func TestRunFlagsOnContinuedLines(t *testing.T) {
	t.Parallel()

	src := "RUN --mount=type=cache,target=/var/cache/apt \\\n" +
		"    --mount=type=cache,target=/var/lib/apt \\\n" +
		"    apt-get install -y curl"

	res := optimize(t, src)
	require.Len(t, res.Instructions, 1)
	assert.Equal(t,
		"RUN --mount=type=cache,target=/var/cache/apt \\\n"+
			"    --mount=type=cache,target=/var/lib/apt \\\n"+
			"    apt-get update && apt-get install -y curl \\\n"+
			"    && rm -rf /var/lib/apt/lists/*\n",
		res.Text())

	// reparsing the output yields the same instruction
	again := parser.Parse(res.Text())
	require.Len(t, again, 1)
	assert.Equal(t, res.Instructions[0].Value, again[0].Value)

	out, changes := passByName(t, PassStripSudo).Apply(parser.Parse(
		"RUN --network=none \\\n    sudo make install"))
	require.Len(t, changes, 1)
	assert.Equal(t, "RUN --network=none \\\n    make install\n", instruction.Render(out))
}

func TestHeredocLeftAlone(t *testing.T) {
	t.Parallel()

	src := "FROM debian:12\n" +
		"RUN echo start\n" +
		"RUN <<EOF\n" +
		"sudo apt-get install -y curl\n" +
		"EOF\n" +
		"RUN echo done\n"

	res := optimize(t, src, PassPinBaseImage)
	assert.Empty(t, res.Changes)
	assert.Equal(t, src, res.Text())
}

func TestEscapeDirectiveContinuation(t *testing.T) {
	t.Parallel()

	src := "# escape=`\n" +
		"FROM mcr.microsoft.com/windows/servercore:ltsc2022\n" +
		"RUN echo a\n" +
		"RUN echo b\n"

	res := optimize(t, src)
	assert.Equal(t, "# escape=`\n"+
		"FROM mcr.microsoft.com/windows/servercore:ltsc2022\n"+
		"RUN echo a `\n    && echo b\n", res.Text())
	assert.Equal(t, []string{PassMergeRun}, passNames(res.Changes))

	// the rewritten text parses back with the same escape character
	again := parser.Parse(res.Text())
	require.Len(t, again, 2)
	assert.Equal(t, "echo a && echo b", again[1].Value)
}

func TestDisabledPasses(t *testing.T) {
	t.Parallel()

	p, err := New("strip-sudo", " Apt-Update ")
	require.NoError(t, err)
	assert.NotContains(t, p.Enabled(), PassStripSudo)
	assert.NotContains(t, p.Enabled(), PassAptUpdate)
	assert.Len(t, p.Enabled(), 6)

	res := p.Optimize(parser.Parse("RUN sudo make install"))
	assert.Equal(t, "RUN sudo make install\n", res.Text())
	assert.False(t, res.Changed())

	_, err = New("bogus")
	assert.ErrorIs(t, err, ErrUnknownPass)
}

const fixture = `FROM --platform=linux/amd64 golang AS build
WORKDIR /src
COPY go.mod go.sum ./
RUN go mod download
COPY . .
RUN go build -o /out/app ./cmd/app
FROM debian:12
ENV APP_HOME=/app
ENV PORT=8080
LABEL org.opencontainers.image.title="demo app"
LABEL version=1
RUN sudo apt-get install -y \
    ca-certificates
RUN useradd app
ADD config.yaml /etc/app/
EXPOSE 8080 9090/udp
COPY --from=build /out/app /usr/local/bin/app
USER app
CMD ["app"]
`

func TestPipelineFixture(t *testing.T) {
	t.Parallel()

	seq := parser.Parse(fixture)
	before := seq.Clone()

	res := optimize(t, fixture)

	assert.Equal(t, before, seq, "input sequence must not be modified")
	assert.Len(t, seq, 18)
	assert.Len(t, res.Instructions, 15)
	assert.Equal(t, []string{
		PassMergeRun,
		PassPinBaseImage,
		PassAptCacheCleanup,
		PassExposeProtocol,
		PassAddToCopy,
		PassCombineMetadata,
		PassCombineMetadata,
		PassStripSudo,
		PassAptUpdate,
	}, passNames(res.Changes))

	var run instruction.Instruction
	for _, inst := range res.Instructions {
		if inst.Kind == instruction.Run && inst.Line == 12 {
			run = inst
		}
	}
	assert.Equal(t,
		"apt-get update && apt-get install -y ca-certificates && useradd app && rm -rf /var/lib/apt/lists/*",
		run.Value)
}

func TestRenderedOutputReparses(t *testing.T) {
	t.Parallel()

	res := optimize(t, fixture)
	reparsed := parser.Parse(res.Text())
	require.Len(t, reparsed, len(res.Instructions))
	for i := range reparsed {
		assert.Equal(t, res.Instructions[i].Kind, reparsed[i].Kind, "instruction %d", i)
		assert.Equal(t, res.Instructions[i].Value, reparsed[i].Value, "instruction %d", i)
	}
}

func TestPassCountGuarantee(t *testing.T) {
	t.Parallel()

	seq := parser.Parse(fixture)
	merging := map[string]bool{PassMergeRun: true, PassCombineMetadata: true}
	for _, p := range Passes() {
		out, changes := p.Apply(seq)
		if merging[p.Name()] {
			assert.LessOrEqual(t, len(out), len(seq), p.Name())
		} else {
			assert.Len(t, out, len(seq), p.Name())
		}
		for _, c := range changes {
			assert.Positive(t, c.Line, p.Name())
		}
	}
}

func TestChangeString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "line 3 [add-to-copy] Replaced ADD with COPY",
		Change{Pass: PassAddToCopy, Line: 3, EndLine: 3, Description: "Replaced ADD with COPY"}.String())
	assert.Equal(t, "lines 2-4 [merge-run] Combined 3 RUN instructions (lines 2-4)",
		Change{Pass: PassMergeRun, Line: 2, EndLine: 4, Description: "Combined 3 RUN instructions (lines 2-4)"}.String())
}
