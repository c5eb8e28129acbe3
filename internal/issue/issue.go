// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/glamour"
)

type Id int

const (
	BuildFileInvalidId Id = iota + 1
	UnknownVariantId
	ArtifactFetchFailedId
	ChecksumMismatchId
	ArchiveInvalidId
	UnexpectedLayoutId
	DictionaryInvalidId
	CompositionFailedId
	DependencyCycleId
	ContainerEngineNotFoundId
	StagingFailedId
	EngineLaunchFailedId
)

type MarkdownMsg string

type HttpLink string

type Issue struct {
	id       Id          // ID used to look up the issue
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	docLinks []HttpLink  // upstream documentation for the failing component
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) Render(stylePath string) (string, error) {
	var md strings.Builder
	md.WriteString(string(i.mdMsg))
	if len(i.docLinks) > 0 {
		md.WriteString("\n\n## See also\n")
		for _, link := range i.docLinks {
			md.WriteString("- <" + string(link) + ">\n")
		}
	}
	return render(md.String(), stylePath)
}

var (
	render = glamour.Render

	buildFileInvalidIssue = &Issue{
		id: BuildFileInvalidId,
		mdMsg: `
# Build file is invalid

The build file did not validate against the schema. The error above names
the offending field as a path such as ` + "`dependencies[1].version`" + `.

## Things you can try
- Print the effective configuration:
~~~
$ vvimage config show
~~~
- Start from a fresh default:
~~~
$ vvimage config init --force
~~~`,
	}

	unknownVariantIssue = &Issue{
		id: UnknownVariantId,
		mdMsg: `
# Unknown variant

The requested variant is not one of the supported targets. Nothing under the
artifact target was modified, so rerunning with a valid value is safe.

## Supported variants
- ` + "`cpu-x64`" + `
- ` + "`cpu-arm64`" + `
- ` + "`cpu-armhf`" + `
- ` + "`gpu-cuda-x64`",
	}

	artifactFetchFailedIssue = &Issue{
		id: ArtifactFetchFailedId,
		mdMsg: `
# Could not download an artifact

The release archive could not be downloaded completely. Partial downloads are
discarded.

## Things you can try
- Check that the version exists upstream and the URL template renders a real asset
- Retry once network access to the release host is available
- Point the artifact store at a cache that already holds the artifact`,
		docLinks: []HttpLink{"https://github.com/VOICEVOX/voicevox_core/releases"},
	}

	checksumMismatchIssue = &Issue{
		id: ChecksumMismatchId,
		mdMsg: `
# Checksum mismatch

The downloaded archive does not match the pinned SHA256 digest. The archive
was deleted and the target left untouched.

## Things you can try
- Verify the ` + "`sha256`" + ` value in the build file against the upstream release
- Make sure the version and variant select the asset the digest was taken from`,
	}

	archiveInvalidIssue = &Issue{
		id: ArchiveInvalidId,
		mdMsg: `
# Archive could not be extracted

The archive is truncated, uses an unsupported format, or contains entries
that would escape the extraction directory.

## Supported formats
- ` + "`.zip`" + `
- ` + "`.tar.gz`" + ` / ` + "`.tgz`" + `
- ` + "`.tar.zst`",
	}

	unexpectedLayoutIssue = &Issue{
		id: UnexpectedLayoutId,
		mdMsg: `
# Unexpected archive layout

The extracted archive did not contain the files the engine expects, or it
contained more than one candidate for the same file.

## Things you can try
- Check that the variant matches the downloaded asset
- Compare the archive contents with the descriptor ` + "`layout`" + ` list`,
	}

	dictionaryInvalidIssue = &Issue{
		id: DictionaryInvalidId,
		mdMsg: `
# Dictionary assembly failed

A user CSV entry is malformed or the dictionary compiler failed.

## CSV entry shape
Each line needs at least 13 comma-separated columns. The surface form must
be non-empty and the left-id, right-id and cost columns must be integers.

## Things you can try
- Validate the overlays on their own:
~~~
$ vvimage dict --check --overlay my_words.csv
~~~
- Make sure ` + "`mecab-dict-index`" + ` is installed in the dictionary build stage`,
		docLinks: []HttpLink{"https://taku910.github.io/mecab/dic.html"},
	}

	compositionFailedIssue = &Issue{
		id: CompositionFailedId,
		mdMsg: `
# Image composition failed

A build stage did not publish the artifact directory the final layout
requires, or the loader could not resolve a shared library dependency.

## Things you can try
- Run the stages one by one with ` + "`vvimage resolve`" + ` to see which artifact is missing
- Run with ` + "`--verbose`" + ` to print each stage and the library search path`,
	}

	dependencyCycleIssue = &Issue{
		id: DependencyCycleId,
		mdMsg: `
# Build stages form a cycle

At least two stages declare each other as inputs, so no build order exists.

## Things you can try
- Remove one of the ` + "`inputs`" + ` edges listed in the error`,
	}

	containerEngineNotFoundIssue = &Issue{
		id: ContainerEngineNotFoundId,
		mdMsg: `
# No container engine found

Neither ` + "`docker`" + ` nor ` + "`podman`" + ` is available on PATH.

## Things you can try
- Install Docker or Podman
- Set ` + "`container_engine`" + ` in the build file to the engine you have
- Render the Dockerfile and build it elsewhere:
~~~
$ vvimage image dockerfile > Dockerfile
~~~`,
	}

	stagingFailedIssue = &Issue{
		id: StagingFailedId,
		mdMsg: `
# Runtime staging failed

The entrypoint could not prepare the runtime user's home directory, so the
engine was not started.

## Things you can try
- Check that the image defines the runtime user (` + "`VV_USER`" + `)
- Check that the default user dictionary exists at ` + "`VV_DEFAULT_USER_DICT`" + `
- Run the container as root so ownership can be changed`,
	}

	engineLaunchFailedIssue = &Issue{
		id: EngineLaunchFailedId,
		mdMsg: `
# Engine could not be started

Staging completed but the engine binary could not be executed.

## Things you can try
- Check ` + "`VV_ENGINE_BIN`" + ` points at an executable inside the image
- Set ` + "`VV_LAUNCH_MODE=child`" + ` on platforms that cannot replace the process`,
	}

	issues = map[Id]*Issue{
		buildFileInvalidIssue.Id():        buildFileInvalidIssue,
		unknownVariantIssue.Id():          unknownVariantIssue,
		artifactFetchFailedIssue.Id():     artifactFetchFailedIssue,
		checksumMismatchIssue.Id():        checksumMismatchIssue,
		archiveInvalidIssue.Id():          archiveInvalidIssue,
		unexpectedLayoutIssue.Id():        unexpectedLayoutIssue,
		dictionaryInvalidIssue.Id():       dictionaryInvalidIssue,
		compositionFailedIssue.Id():       compositionFailedIssue,
		dependencyCycleIssue.Id():         dependencyCycleIssue,
		containerEngineNotFoundIssue.Id(): containerEngineNotFoundIssue,
		stagingFailedIssue.Id():           stagingFailedIssue,
		engineLaunchFailedIssue.Id():      engineLaunchFailedIssue,
	}
)

// Values returns every catalogued issue ordered by Id.
func Values() []*Issue {
	ids := slices.Sorted(maps.Keys(issues))
	out := make([]*Issue, 0, len(ids))
	for _, id := range ids {
		out = append(out, issues[id])
	}
	return out
}

func Get(id Id) *Issue {
	return issues[id]
}
