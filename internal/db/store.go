package db

import (
	"errors"

	"github.com/start9labs/appmgr/internal/apperr"
	"github.com/start9labs/appmgr/internal/model"
)

// ErrDryRun is returned by an Update callback to force a rollback after
// computing what the transaction *would* have changed — configure()'s
// dry-run mode runs its full propagation pass against a real Tx and
// returns this instead of nil so nothing it touched is ever committed.
var ErrDryRun = errors.New("db: dry run, no changes committed")

// Package looks up one package's entry, returning a NotFound apperr if it
// isn't present.
func (t *Tx) Package(id model.PackageId) (*model.PackageDataEntry, error) {
	entry, ok := t.doc.PackageData[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "package "+string(id)+" not found", nil)
	}
	return entry, nil
}

// SetPackage upserts a package's entry.
func (t *Tx) SetPackage(id model.PackageId, entry *model.PackageDataEntry) {
	t.doc.PackageData[id] = entry
}

// DeletePackage removes a package's entry entirely, used once a remove
// operation has torn down its container and volumes.
func (t *Tx) DeletePackage(id model.PackageId) {
	delete(t.doc.PackageData, id)
	delete(t.doc.BrokenPackages, id)
}

// InstalledIds returns every package id currently in the Installed state,
// the population the dependency and reconciler engines iterate over.
func (t *Tx) InstalledIds() []model.PackageId {
	ids := make([]model.PackageId, 0, len(t.doc.PackageData))
	for id, entry := range t.doc.PackageData {
		if entry.Kind == model.PackageDataInstalled {
			ids = append(ids, id)
		}
	}
	return ids
}

// SetBroken records whether id currently has an unsatisfied non-optional
// dependency.
func (t *Tx) SetBroken(id model.PackageId, broken bool) {
	if broken {
		t.doc.BrokenPackages[id] = struct{}{}
	} else {
		delete(t.doc.BrokenPackages, id)
	}
}

// BrokenCount reports how many packages are currently marked broken, for
// the metrics collector.
func (t *Tx) BrokenCount() int {
	return len(t.doc.BrokenPackages)
}

// ServerInfo returns a pointer to the host-wide metadata record so callers
// can read or mutate it in place within an Update.
func (t *Tx) ServerInfo() *model.ServerInfo {
	return &t.doc.ServerInfo
}
