/*
Package s9pk implements appmgr's package archive format: a single binary
file (conventionally named "<package-id>.s9pk") laid out as a fixed-size
header, a table of contents, and five sections (manifest, license, icon,
docker images, and an optional instructions document).

Layout on disk:

	[ magic (8 bytes) | format version (u16) | TOC ]
	[ manifest section   (CBOR)            ]
	[ license section     (text)            ]
	[ icon section        (raw bytes)       ]
	[ docker images section (tar stream)    ]
	[ instructions section (markdown, optional) ]

The table of contents records each section's absolute byte offset and
length so a reader can seek directly to any section without reading the
ones before it — most appmgr operations only need the manifest, and
install-time validation streams the (potentially multi-gigabyte) docker
images section straight into the container runtime rather than buffering
it.

Writer writes the file in a single forward pass: NewWriter writes a
placeholder header first (so later offsets are known), each section is
written in turn while its position and length are recorded, and only at
the end does Writer.Finish seek back to the start and rewrite the header
with the now-complete table of contents.

Validation rules (manifest id matches the archive's filename stem, the
manifest's os_version_required is satisfied by the current appmgr version,
asset paths can't escape the package's own directory, the public and
shared directories can't be ancestors of one another) are enforced before
any section is unpacked.

Reader.Validate confirms every table-of-contents entry actually fits
within the underlying file before any section is unpacked, catching a
truncated download. Reader.HashStr computes a sha256 digest over the
archive's section content, independent of Validate, and is used to key
the on-disk download cache (CachePath) so a repeated install of the same
package and version can detect whether a previously staged file is still
current.
*/
package s9pk
