package s9pk

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/start9labs/appmgr/internal/model"
)

// Writer builds an s9pk archive in a single forward pass over w, which
// must also support Seek (an *os.File opened for writing satisfies this).
type Writer struct {
	w    io.WriteSeeker
	toc  [numSections]tocEntry
	pos  uint64
	done bool
}

func NewWriter(w io.WriteSeeker) (*Writer, error) {
	// Reserve space for the header now; it's rewritten with real offsets
	// once every section has been written, so the placeholder's exact
	// content doesn't matter beyond its length.
	if _, err := w.Write(make([]byte, headerSize)); err != nil {
		return nil, fmt.Errorf("s9pk: reserving header: %w", err)
	}
	return &Writer{w: w, pos: uint64(headerSize)}, nil
}

// WriteManifest CBOR-encodes m and writes it as the manifest section.
func (wr *Writer) WriteManifest(m *model.Manifest) error {
	data, err := cbor.Marshal(m)
	if err != nil {
		return fmt.Errorf("s9pk: encoding manifest: %w", err)
	}
	return wr.writeSection(SectionManifest, data)
}

// WriteLicense writes the package's license text as the license section.
func (wr *Writer) WriteLicense(data []byte) error {
	return wr.writeSection(SectionLicense, data)
}

// WriteIcon writes raw icon bytes as the icon section.
func (wr *Writer) WriteIcon(data []byte) error {
	return wr.writeSection(SectionIcon, data)
}

// WriteDockerImages streams r (a tar archive of `docker save` output) as
// the docker images section without buffering it in memory.
func (wr *Writer) WriteDockerImages(r io.Reader) error {
	return wr.streamSection(SectionDockerImages, r)
}

// WriteInstructions writes an optional markdown instructions document. If
// never called, the instructions section is recorded as absent.
func (wr *Writer) WriteInstructions(data []byte) error {
	return wr.writeSection(SectionInstructions, data)
}

func (wr *Writer) writeSection(kind SectionKind, data []byte) error {
	n, err := wr.w.Write(data)
	if err != nil {
		return fmt.Errorf("s9pk: writing %s section: %w", kind, err)
	}
	wr.toc[kind] = tocEntry{Position: wr.pos, Length: uint64(n)}
	wr.pos += uint64(n)
	return nil
}

func (wr *Writer) streamSection(kind SectionKind, r io.Reader) error {
	n, err := io.Copy(wr.w, r)
	if err != nil {
		return fmt.Errorf("s9pk: streaming %s section: %w", kind, err)
	}
	wr.toc[kind] = tocEntry{Position: wr.pos, Length: uint64(n)}
	wr.pos += uint64(n)
	return nil
}

// Finish seeks back to the start of the file and writes the final header
// with the now-complete table of contents. It must be called exactly once
// after every section has been written.
func (wr *Writer) Finish() error {
	if wr.done {
		return fmt.Errorf("s9pk: Finish called twice")
	}
	wr.done = true

	header := make([]byte, headerSize)
	copy(header[0:8], magic[:])
	binary.BigEndian.PutUint16(header[8:10], formatVersion)
	off := 10
	for _, entry := range wr.toc {
		binary.BigEndian.PutUint64(header[off:off+8], entry.Position)
		binary.BigEndian.PutUint64(header[off+8:off+16], entry.Length)
		off += 16
	}

	if _, err := wr.w.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("s9pk: seeking to header: %w", err)
	}
	if _, err := wr.w.Write(header); err != nil {
		return fmt.Errorf("s9pk: writing final header: %w", err)
	}
	return nil
}
