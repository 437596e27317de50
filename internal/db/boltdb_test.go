package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/start9labs/appmgr/internal/model"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestUpdateCommitsOnSuccess(t *testing.T) {
	d := openTestDB(t)

	err := d.Update(func(tx *Tx) error {
		tx.SetPackage("hello-world", &model.PackageDataEntry{Kind: model.PackageDataInstalled})
		return nil
	})
	require.NoError(t, err)

	err = d.View(func(tx *Tx) error {
		entry, err := tx.Package("hello-world")
		require.NoError(t, err)
		assert.Equal(t, model.PackageDataInstalled, entry.Kind)
		return nil
	})
	require.NoError(t, err)
}

func TestUpdateRollsBackOnDryRun(t *testing.T) {
	d := openTestDB(t)

	err := d.Update(func(tx *Tx) error {
		tx.SetPackage("hello-world", &model.PackageDataEntry{Kind: model.PackageDataInstalled})
		return ErrDryRun
	})
	assert.ErrorIs(t, err, ErrDryRun)

	err = d.View(func(tx *Tx) error {
		_, err := tx.Package("hello-world")
		assert.Error(t, err)
		return nil
	})
	require.NoError(t, err)
}

func TestBrokenPackagesRoundTrip(t *testing.T) {
	d := openTestDB(t)

	err := d.Update(func(tx *Tx) error {
		tx.SetPackage("a", &model.PackageDataEntry{Kind: model.PackageDataInstalled})
		tx.SetBroken("a", true)
		assert.Equal(t, 1, tx.BrokenCount())
		return nil
	})
	require.NoError(t, err)

	err = d.Update(func(tx *Tx) error {
		tx.SetBroken("a", false)
		assert.Equal(t, 0, tx.BrokenCount())
		return nil
	})
	require.NoError(t, err)
}

func TestDeletePackageClearsBrokenToo(t *testing.T) {
	d := openTestDB(t)

	err := d.Update(func(tx *Tx) error {
		tx.SetPackage("a", &model.PackageDataEntry{Kind: model.PackageDataInstalled})
		tx.SetBroken("a", true)
		tx.DeletePackage("a")
		return nil
	})
	require.NoError(t, err)

	err = d.View(func(tx *Tx) error {
		_, err := tx.Package("a")
		assert.Error(t, err)
		assert.Equal(t, 0, tx.BrokenCount())
		return nil
	})
	require.NoError(t, err)
}
