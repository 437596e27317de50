package s9pk

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/start9labs/appmgr/internal/model"
)

// memFile is a minimal in-memory io.ReadWriteSeeker, standing in for the
// *os.File a real install/pack operation would use.
type memFile struct {
	buf []byte
	pos int64
}

func (m *memFile) Write(p []byte) (int, error) {
	end := m.pos + int64(len(p))
	if end > int64(len(m.buf)) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	n := copy(m.buf[m.pos:end], p)
	m.pos = end
	return n, nil
}

func (m *memFile) Read(p []byte) (int, error) {
	if m.pos >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[m.pos:])
	m.pos += int64(n)
	return n, nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = m.pos
	case io.SeekEnd:
		base = int64(len(m.buf))
	}
	m.pos = base + offset
	return m.pos, nil
}

func sampleManifest() *model.Manifest {
	return &model.Manifest{
		Id:                "hello-world",
		Title:             "Hello World",
		Version:           model.MustParseVersion("1.0.0.0"),
		OsVersionRequired: model.MustParseVersionRange(">=0.3.0.0"),
		Description:       "a test package",
	}
}

func TestWriterReaderRoundTrip(t *testing.T) {
	f := &memFile{}
	w, err := NewWriter(f)
	require.NoError(t, err)

	require.NoError(t, w.WriteManifest(sampleManifest()))
	require.NoError(t, w.WriteLicense([]byte("MIT")))
	require.NoError(t, w.WriteIcon([]byte{0xDE, 0xAD, 0xBE, 0xEF}))
	require.NoError(t, w.WriteDockerImages(strings.NewReader("fake tar stream")))
	require.NoError(t, w.WriteInstructions([]byte("# Hello\n")))
	require.NoError(t, w.Finish())

	rd, err := Open(f)
	require.NoError(t, err)

	m, err := rd.Manifest()
	require.NoError(t, err)
	assert.Equal(t, model.PackageId("hello-world"), m.Id)

	license, err := rd.License()
	require.NoError(t, err)
	licenseData, err := io.ReadAll(license)
	require.NoError(t, err)
	assert.Equal(t, "MIT", string(licenseData))

	icon, err := rd.Icon()
	require.NoError(t, err)
	iconData, err := io.ReadAll(icon)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, iconData)

	images, err := rd.DockerImages()
	require.NoError(t, err)
	imagesData, err := io.ReadAll(images)
	require.NoError(t, err)
	assert.Equal(t, "fake tar stream", string(imagesData))

	assert.True(t, rd.HasInstructions())
	instr, err := rd.Instructions()
	require.NoError(t, err)
	instrData, err := io.ReadAll(instr)
	require.NoError(t, err)
	assert.Equal(t, "# Hello\n", string(instrData))
}

func TestWriterWithoutInstructionsLeavesSectionAbsent(t *testing.T) {
	f := &memFile{}
	w, err := NewWriter(f)
	require.NoError(t, err)
	require.NoError(t, w.WriteManifest(sampleManifest()))
	require.NoError(t, w.WriteLicense([]byte("MIT")))
	require.NoError(t, w.WriteIcon([]byte{1}))
	require.NoError(t, w.WriteDockerImages(bytes.NewReader(nil)))
	require.NoError(t, w.Finish())

	rd, err := Open(f)
	require.NoError(t, err)
	assert.False(t, rd.HasInstructions())
}

func TestReaderValidateAndHashStrRoundTrip(t *testing.T) {
	f := &memFile{}
	w, err := NewWriter(f)
	require.NoError(t, err)
	require.NoError(t, w.WriteManifest(sampleManifest()))
	require.NoError(t, w.WriteLicense([]byte("MIT")))
	require.NoError(t, w.WriteIcon([]byte{0xDE, 0xAD, 0xBE, 0xEF}))
	require.NoError(t, w.WriteDockerImages(strings.NewReader("fake tar stream")))
	require.NoError(t, w.Finish())

	rd, err := Open(f)
	require.NoError(t, err)
	require.NoError(t, rd.Validate())

	hash, err := rd.HashStr()
	require.NoError(t, err)
	assert.NotEmpty(t, hash)

	// Hashing doesn't disturb the reader: every accessor still works and a
	// second HashStr call returns the identical digest.
	m, err := rd.Manifest()
	require.NoError(t, err)
	assert.Equal(t, model.PackageId("hello-world"), m.Id)

	hash2, err := rd.HashStr()
	require.NoError(t, err)
	assert.Equal(t, hash, hash2)
}

func TestReaderHashStrDiffersForDifferentContent(t *testing.T) {
	build := func(icon byte) *Reader {
		f := &memFile{}
		w, err := NewWriter(f)
		require.NoError(t, err)
		require.NoError(t, w.WriteManifest(sampleManifest()))
		require.NoError(t, w.WriteLicense([]byte("MIT")))
		require.NoError(t, w.WriteIcon([]byte{icon}))
		require.NoError(t, w.WriteDockerImages(strings.NewReader("fake tar stream")))
		require.NoError(t, w.Finish())
		rd, err := Open(f)
		require.NoError(t, err)
		return rd
	}

	h1, err := build(1).HashStr()
	require.NoError(t, err)
	h2, err := build(2).HashStr()
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestReaderValidateRejectsTruncatedFile(t *testing.T) {
	f := &memFile{}
	w, err := NewWriter(f)
	require.NoError(t, err)
	require.NoError(t, w.WriteManifest(sampleManifest()))
	require.NoError(t, w.WriteLicense([]byte("MIT")))
	require.NoError(t, w.WriteIcon([]byte{0xDE, 0xAD, 0xBE, 0xEF}))
	require.NoError(t, w.WriteDockerImages(strings.NewReader("fake tar stream")))
	require.NoError(t, w.Finish())

	f.buf = f.buf[:len(f.buf)-5]

	rd, err := Open(f)
	require.NoError(t, err)
	assert.Error(t, rd.Validate())
}

func TestCachePathIncludesPackageAndVersion(t *testing.T) {
	p := CachePath(model.PackageId("hello-world"), model.MustParseVersion("1.2.3.0"))
	assert.Contains(t, p, "hello-world")
	assert.Contains(t, p, "1.2.3.0")
}

func TestValidatePathRejectsTraversal(t *testing.T) {
	assert.NoError(t, ValidatePath("assets/logo.png"))
	assert.Error(t, ValidatePath("../etc/passwd"))
	assert.Error(t, ValidatePath("/etc/passwd"))
	assert.Error(t, ValidatePath("assets/../../etc/passwd"))
}

func TestValidateManifestRequiresIdMatchesFilename(t *testing.T) {
	m := sampleManifest()
	err := ValidateManifest(m, "hello-world", model.MustParseVersion("0.3.2.0"))
	assert.NoError(t, err)

	err = ValidateManifest(m, "other-name", model.MustParseVersion("0.3.2.0"))
	assert.Error(t, err)
}

func TestValidateManifestRejectsIncompatibleOsVersion(t *testing.T) {
	m := sampleManifest()
	err := ValidateManifest(m, "hello-world", model.MustParseVersion("0.2.0.0"))
	assert.Error(t, err)
}

func TestValidateManifestRejectsNestedPublicAndShared(t *testing.T) {
	current := model.MustParseVersion("0.3.2.0")

	m := sampleManifest()
	m.Assets.Public = "www"
	m.Assets.Shared = "www/shared"
	assert.Error(t, ValidateManifest(m, "hello-world", current))

	m.Assets.Public = "exports/www"
	m.Assets.Shared = "exports"
	assert.Error(t, ValidateManifest(m, "hello-world", current))

	m.Assets.Public = "www"
	m.Assets.Shared = "shared"
	assert.NoError(t, ValidateManifest(m, "hello-world", current))
}

func TestValidateManifestRejectsTraversingAssetPaths(t *testing.T) {
	m := sampleManifest()
	m.Assets.License = "../LICENSE.md"
	assert.Error(t, ValidateManifest(m, "hello-world", model.MustParseVersion("0.3.2.0")))
}
