// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/slices"
)

const (
	DescriptorNotFoundId Id = iota + 1
	InvalidPackageNameId
	SelfCheckFailedId
	MissingPartId
	ArchiveHashMismatchId
	ContentMismatchId
	ReadOnlyContentId
	LicenseNotCompliantId
	LicenseListUnavailableId
	BuildListNotFoundId
	BuildScriptFailedId
	ConfigLoadFailedId
	RemoteUnavailableId
	PermissionDeniedId
)

type (
	Id int

	MarkdownMsg string

	HttpLink string

	// Issue is a help page shown under an error the user can act on.
	Issue struct {
		id       Id
		mdMsg    MarkdownMsg
		docLinks []HttpLink
		extLinks []HttpLink
	}
)

var (
	render = glamour.Render

	descriptorNotFoundIssue = &Issue{
		id: DescriptorNotFoundId,
		mdMsg: `
# No PackageInfo.json found!

Every package source folder needs a descriptor at its root.

## Minimal descriptor:
~~~json
{
  "PackageName": "zlib-1.2.13-rev1-linux",
  "URL": "https://zlib.net",
  "License": "Zlib",
  "LicenseFile": "zlib/LICENSE"
}
~~~

## Things you can try:
- Check that you passed the package folder, not its parent
- Let the build script write the descriptor before packing`,
	}

	invalidPackageNameIssue = &Issue{
		id: InvalidPackageNameId,
		mdMsg: `
# Invalid package name!

The PackageName field is used to name the four package files, so it must be
a plain file name.

## Rules:
- Not empty
- No path separators
- Not "." or ".."`,
	}

	selfCheckFailedIssue = &Issue{
		id: SelfCheckFailedId,
		mdMsg: `
# The package failed its own validation!

The files were written, but validating them right after packing failed.
That usually means the source changed while it was being packed, or the
output folder sits on a filesystem that does not keep what was written.

## Things you can try:
- Pack again from a quiescent source folder
- Validate the result on its own:
~~~
$ tpkg validate <name> --folder <output>
~~~`,
	}

	missingPartIssue = &Issue{
		id: MissingPartId,
		mdMsg: `
# Package files are missing!

A package consists of four files that must sit side by side:

- ` + "`<name>.tar.xz`" + `
- ` + "`<name>.tar.xz.SHA256SUMS`" + `
- ` + "`<name>.tar.xz.content.SHA256SUMS`" + `
- ` + "`<name>.PackageInfo.json`" + `

## Things you can try:
- Check the name for typos
- Re-download the package; the descriptor is published last, so an
  interrupted upload leaves it out`,
	}

	archiveHashMismatchIssue = &Issue{
		id: ArchiveHashMismatchId,
		mdMsg: `
# Archive hash mismatch!

The archive does not match the hash recorded next to it. The download was
truncated or the file was modified after it was packed.

## Things you can try:
- Delete the local copy and download it again
- If the mismatch is on the server, repack and upload the package`,
	}

	contentMismatchIssue = &Issue{
		id: ContentMismatchId,
		mdMsg: `
# Package content does not match its manifest!

Files were added, removed or changed between the content manifest and the
archive (or the extracted folder).

## Things you can try:
- Run with --verbose to list the offending paths
- Repack the package from its source folder`,
	}

	readOnlyContentIssue = &Issue{
		id: ReadOnlyContentId,
		mdMsg: `
# Package files are read-only!

Packages are stored writable so they can be cleaned up and replaced. A file
in the archive lacks write permission.

## Things you can try:
- Repack with the current tool, which normalises permissions`,
	}

	licenseNotCompliantIssue = &Issue{
		id: LicenseNotCompliantId,
		mdMsg: `
# License not recognised!

The License field must be an SPDX identifier, or "Custom" together with a
LicenseFile.

## Things you can try:
- Look the license up in the SPDX list
- Use "Custom" and ship the license text in the package`,
		extLinks: []HttpLink{"https://spdx.org/licenses/"},
	}

	licenseListUnavailableIssue = &Issue{
		id: LicenseListUnavailableId,
		mdMsg: `
# The SPDX license list could not be fetched!

License identifiers were not verified. Packing and validation still ran.

## Things you can try:
- Check your network connection or proxy settings
- Point spdx_url at a mirror in your configuration`,
	}

	buildListNotFoundIssue = &Issue{
		id: BuildListNotFoundId,
		mdMsg: `
# No build list found!

Build lists are named ` + "`package_build_list_host_<platform>.json`" + ` (or
` + "`.toml`" + `) and live in the search path.

## Things you can try:
- Set search_path in your configuration
- Pass --search-path on the command line`,
	}

	buildScriptFailedIssue = &Issue{
		id: BuildScriptFailedId,
		mdMsg: `
# Build script failed!

The script listed in the build list exited with a non-zero status. Its
output above tells why.

## Things you can try:
- Run the printed command line by hand from the script's folder
- Check build_interpreter in your configuration`,
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

The configuration file exists but could not be parsed or did not match the
schema.

## Things you can try:
- Print the effective configuration:
~~~
$ tpkg config show
~~~
- Remove the file to fall back to defaults`,
	}

	remoteUnavailableIssue = &Issue{
		id: RemoteUnavailableId,
		mdMsg: `
# Package server unreachable!

None of the configured package servers answered.

## Things you can try:
- Check LY_PACKAGE_SERVER_URLS (servers are separated by ';')
- For S3 buckets, check AWS_PROFILE and your credentials`,
	}

	permissionDeniedIssue = &Issue{
		id: PermissionDeniedId,
		mdMsg: `
# Permission denied!

The output or temporary folder is not writable.

## Things you can try:
- Check folder permissions
- Choose another output_folder`,
	}

	issues = map[Id]*Issue{
		descriptorNotFoundIssue.Id():     descriptorNotFoundIssue,
		invalidPackageNameIssue.Id():     invalidPackageNameIssue,
		selfCheckFailedIssue.Id():        selfCheckFailedIssue,
		missingPartIssue.Id():            missingPartIssue,
		archiveHashMismatchIssue.Id():    archiveHashMismatchIssue,
		contentMismatchIssue.Id():        contentMismatchIssue,
		readOnlyContentIssue.Id():        readOnlyContentIssue,
		licenseNotCompliantIssue.Id():    licenseNotCompliantIssue,
		licenseListUnavailableIssue.Id(): licenseListUnavailableIssue,
		buildListNotFoundIssue.Id():      buildListNotFoundIssue,
		buildScriptFailedIssue.Id():      buildScriptFailedIssue,
		configLoadFailedIssue.Id():       configLoadFailedIssue,
		remoteUnavailableIssue.Id():      remoteUnavailableIssue,
		permissionDeniedIssue.Id():       permissionDeniedIssue,
	}
)

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

// Render turns the page into terminal output using a glamour style.
func (i *Issue) Render(stylePath string) (string, error) {
	md := string(i.mdMsg)
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		md += "\n\n## See also:\n"
		for _, link := range i.docLinks {
			md += "\n- " + string(link)
		}
		for _, link := range i.extLinks {
			md += "\n- " + string(link)
		}
	}
	return render(md, stylePath)
}

// Values returns every catalogued issue ordered by id.
func Values() []*Issue {
	out := make([]*Issue, 0, len(issues))
	for _, is := range issues {
		out = append(out, is)
	}
	slices.SortFunc(out, func(a, b *Issue) int { return int(a.id) - int(b.id) })
	return out
}

func Get(id Id) *Issue {
	return issues[id]
}
