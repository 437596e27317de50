package s9pk

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/start9labs/appmgr/internal/model"
)

// Reader exposes an s9pk archive's sections via seek-and-bound reads
// against r, which must support Seek (an *os.File opened for reading
// satisfies this).
type Reader struct {
	r         io.ReadSeeker
	toc       [numSections]tocEntry
	validated bool
	hash      string
}

// Open parses the header and table of contents and validates the magic
// and format version, without reading any section's content. r's position
// need not be at the start of the archive.
func Open(r io.ReadSeeker) (*Reader, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("s9pk: seeking to header: %w", err)
	}
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("s9pk: reading header: %w", err)
	}
	if string(header[0:8]) != string(magic[:]) {
		return nil, fmt.Errorf("s9pk: not an s9pk file (bad magic)")
	}
	version := binary.BigEndian.Uint16(header[8:10])
	if version != formatVersion {
		return nil, fmt.Errorf("s9pk: unsupported format version %d", version)
	}

	rd := &Reader{r: r}
	off := 10
	for i := range rd.toc {
		rd.toc[i] = tocEntry{
			Position: binary.BigEndian.Uint64(header[off : off+8]),
			Length:   binary.BigEndian.Uint64(header[off+8 : off+16]),
		}
		off += 16
	}
	return rd, nil
}

// Validate confirms the archive is internally consistent beyond the
// magic/version check Open already performed: every table-of-contents
// entry must fall within the underlying file's actual extent, catching a
// truncated or otherwise corrupted download before any section is
// unpacked. It also sets an internal validated flag, which nothing reads:
// Manifest/Icon/DockerImages/Instructions work whether or not Validate has
// run.
func (rd *Reader) Validate() error {
	size, err := rd.r.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("s9pk: seeking to end for validation: %w", err)
	}
	for _, entry := range rd.toc {
		if entry.Length == 0 {
			continue
		}
		if int64(entry.Position+entry.Length) > size {
			return fmt.Errorf("s9pk: table of contents entry extends past end of file")
		}
	}
	if _, err := rd.r.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("s9pk: seeking back to start after validation: %w", err)
	}
	rd.validated = true
	return nil
}

// HashStr returns a hex-encoded sha256 digest over the archive's section
// content (the header's table of contents is excluded, since rewriting it
// in Writer.Finish is the one mutation a file on disk ever undergoes after
// its sections are written). The daemon's install stores it beside the
// staged copy at CachePath and skips re-staging an archive whose digest
// matches the stored one. The digest is computed once and cached on rd.
func (rd *Reader) HashStr() (string, error) {
	if rd.hash != "" {
		return rd.hash, nil
	}

	pos, err := rd.r.Seek(0, io.SeekCurrent)
	if err != nil {
		return "", fmt.Errorf("s9pk: saving position before hashing: %w", err)
	}

	h := sha256.New()
	for _, kind := range sectionOrder {
		sec, err := rd.section(kind)
		if err != nil {
			if rd.toc[kind].Length == 0 {
				continue
			}
			return "", fmt.Errorf("s9pk: hashing %s section: %w", kind, err)
		}
		if _, err := io.Copy(h, sec); err != nil {
			return "", fmt.Errorf("s9pk: hashing %s section: %w", kind, err)
		}
	}

	if _, err := rd.r.Seek(pos, io.SeekStart); err != nil {
		return "", fmt.Errorf("s9pk: restoring position after hashing: %w", err)
	}

	rd.hash = hex.EncodeToString(h.Sum(nil))
	return rd.hash, nil
}

func (rd *Reader) section(kind SectionKind) (io.Reader, error) {
	entry := rd.toc[kind]
	if entry.Length == 0 {
		return nil, fmt.Errorf("s9pk: %s section is absent", kind)
	}
	if _, err := rd.r.Seek(int64(entry.Position), io.SeekStart); err != nil {
		return nil, fmt.Errorf("s9pk: seeking to %s section: %w", kind, err)
	}
	return io.LimitReader(rd.r, int64(entry.Length)), nil
}

// HasInstructions reports whether the archive includes an instructions
// section.
func (rd *Reader) HasInstructions() bool {
	return rd.toc[SectionInstructions].Length > 0
}

// Manifest reads and CBOR-decodes the manifest section.
func (rd *Reader) Manifest() (*model.Manifest, error) {
	sec, err := rd.section(SectionManifest)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(sec)
	if err != nil {
		return nil, fmt.Errorf("s9pk: reading manifest section: %w", err)
	}
	var m model.Manifest
	if err := cbor.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("s9pk: decoding manifest: %w", err)
	}
	return &m, nil
}

// License returns a reader over the license section's raw bytes.
func (rd *Reader) License() (io.Reader, error) {
	return rd.section(SectionLicense)
}

// Icon returns a reader over the icon section's raw bytes.
func (rd *Reader) Icon() (io.Reader, error) {
	return rd.section(SectionIcon)
}

// DockerImages returns a reader over the docker-save tar stream, suitable
// for piping straight into the container runtime's image-load call.
func (rd *Reader) DockerImages() (io.Reader, error) {
	return rd.section(SectionDockerImages)
}

// Instructions returns a reader over the optional markdown instructions
// document.
func (rd *Reader) Instructions() (io.Reader, error) {
	return rd.section(SectionInstructions)
}
