package volume

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/start9labs/appmgr/internal/model"
)

func sampleVolumes() *model.Volumes {
	vs := model.NewVolumes()
	vs.Set("main", model.DataVolume(false))
	vs.Set("backups", model.BackupVolume(false))
	return vs
}

// useTempRoots points model's volume/backup roots at a scratch directory
// for the duration of the test, so tests never touch real system paths.
func useTempRoots(t *testing.T) {
	t.Helper()
	origPkg, origBackup := model.PkgVolumeDir, model.BackupDir
	dir := t.TempDir()
	model.PkgVolumeDir = filepath.Join(dir, "volumes")
	model.BackupDir = filepath.Join(dir, "backups")
	t.Cleanup(func() {
		model.PkgVolumeDir, model.BackupDir = origPkg, origBackup
	})
}

func TestEnsureOwnedCreatesDataAndBackupDirs(t *testing.T) {
	useTempRoots(t)
	r := NewResolver()
	err := r.EnsureOwned("hello-world", sampleVolumes())
	require.NoError(t, err)

	dataPath, _ := model.DataVolume(false).PathFor("hello-world", "main")
	backupPath, _ := model.BackupVolume(false).PathFor("hello-world", "backups")
	assert.DirExists(t, dataPath)
	assert.DirExists(t, backupPath)
}

func TestResolveReturnsHostPathsForEveryVolume(t *testing.T) {
	r := NewResolver()
	mounts, err := r.Resolve("hello-world", sampleVolumes())
	require.NoError(t, err)

	expectedData, _ := model.DataVolume(false).PathFor("hello-world", "main")
	expectedBackup, _ := model.BackupVolume(false).PathFor("hello-world", "backups")
	assert.Equal(t, expectedData, mounts["main"].HostPath)
	assert.False(t, mounts["main"].ReadOnly)
	assert.Equal(t, expectedBackup, mounts["backups"].HostPath)
}

func TestResolveSandboxedForcesEveryVolumeReadOnly(t *testing.T) {
	r := NewResolver()
	mounts, err := r.ResolveSandboxed("hello-world", sampleVolumes())
	require.NoError(t, err)

	for id, m := range mounts {
		assert.True(t, m.ReadOnly, "volume %s should be mounted read-only", id)
	}
}

func TestResolveForBackupCreatePolarity(t *testing.T) {
	r := NewResolver()
	mounts, err := r.ResolveForBackup("hello-world", sampleVolumes(), false)
	require.NoError(t, err)

	assert.True(t, mounts["main"].ReadOnly)
	assert.False(t, mounts[string(model.BackupVolumeId)].ReadOnly)
}

func TestResolveForBackupRestorePolarity(t *testing.T) {
	r := NewResolver()
	mounts, err := r.ResolveForBackup("hello-world", sampleVolumes(), true)
	require.NoError(t, err)

	assert.False(t, mounts["main"].ReadOnly)
	assert.True(t, mounts[string(model.BackupVolumeId)].ReadOnly)
}

func TestResolveHandlesNilVolumes(t *testing.T) {
	r := NewResolver()
	mounts, err := r.Resolve("hello-world", nil)
	require.NoError(t, err)
	assert.Empty(t, mounts)
}

func TestPurgeRemovesOwnedDirectories(t *testing.T) {
	useTempRoots(t)
	r := NewResolver()
	require.NoError(t, r.EnsureOwned("hello-world", sampleVolumes()))

	dataPath, _ := model.DataVolume(false).PathFor("hello-world", "main")
	require.NoError(t, r.Purge("hello-world"))

	_, err := os.Stat(dataPath)
	assert.True(t, os.IsNotExist(err))
}
