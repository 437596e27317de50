package daemon

import (
	"github.com/start9labs/appmgr/internal/db"
	"github.com/start9labs/appmgr/internal/model"
)

// txStore wraps one *db.Tx for the lifetime of a single Update call and
// gives it the narrow shape internal/configure.Store expects
// (internal/reconciler.Store is served by dbReconcilerStore below).
// configure only ever needs a
// package's InstalledPackageDataEntry, never the Installing/Updating/
// Removing variants db.Tx's PackageDataEntry also represents, so
// get/put translate between the two at the boundary.
type txStore struct {
	tx *db.Tx
}

func newTxStore(tx *db.Tx) *txStore { return &txStore{tx: tx} }

func (s *txStore) get(id model.PackageId) (*model.InstalledPackageDataEntry, bool) {
	entry, err := s.tx.Package(id)
	if err != nil || entry.Kind != model.PackageDataInstalled || entry.Installed == nil {
		return nil, false
	}
	return entry.Installed, true
}

func (s *txStore) put(id model.PackageId, installed *model.InstalledPackageDataEntry) {
	static := model.LocalStaticFiles(id, installed.Manifest.Version)
	if iconType := installed.Manifest.Assets.IconType; iconType != "" {
		// unpackPublicAssets writes the icon as icon.<IconType>.
		static.Icon += "." + iconType
	}
	s.tx.SetPackage(id, &model.PackageDataEntry{
		Kind:        model.PackageDataInstalled,
		StaticFiles: static,
		Installed:   installed,
	})
}

func (s *txStore) allInstalledIds() []model.PackageId {
	var ids []model.PackageId
	for _, id := range s.tx.InstalledIds() {
		if _, ok := s.get(id); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Get/Put/AllInstalledIds satisfy internal/configure.Store.
func (s *txStore) Get(id model.PackageId) (*model.InstalledPackageDataEntry, bool) { return s.get(id) }
func (s *txStore) Put(id model.PackageId, entry *model.InstalledPackageDataEntry)  { s.put(id, entry) }
func (s *txStore) AllInstalledIds() []model.PackageId                             { return s.allInstalledIds() }

// manifestSourceFor builds a manifestSource closure reading through tx, for
// the action-runner adapters to resolve a package id to its manifest
// without holding a reference to the whole store.
func manifestSourceFor(tx *db.Tx) manifestSource {
	store := newTxStore(tx)
	return func(id model.PackageId) (model.Manifest, bool) {
		entry, ok := store.get(id)
		if !ok {
			return model.Manifest{}, false
		}
		return entry.Manifest, true
	}
}

// dbReconcilerStore implements internal/reconciler.Store directly against
// the whole database rather than one transaction, since the reconciler's
// two loops run continuously in their own goroutines rather than inside a
// single caller-owned Update. Each method opens its own short transaction;
// the reconciler never needs more than single-record atomicity, only
// Synchronize/Health's own mutex serializes a whole sweep.
type dbReconcilerStore struct {
	database *db.DB
}

func newDBReconcilerStore(database *db.DB) *dbReconcilerStore {
	return &dbReconcilerStore{database: database}
}

func (s *dbReconcilerStore) Entry(id model.PackageId) (*model.InstalledPackageDataEntry, bool) {
	var entry *model.InstalledPackageDataEntry
	var ok bool
	_ = s.database.View(func(tx *db.Tx) error {
		entry, ok = newTxStore(tx).get(id)
		return nil
	})
	return entry, ok
}

func (s *dbReconcilerStore) SetEntry(id model.PackageId, entry *model.InstalledPackageDataEntry) {
	_ = s.database.Update(func(tx *db.Tx) error {
		newTxStore(tx).put(id, entry)
		return nil
	})
}

func (s *dbReconcilerStore) AllInstalledIds() []model.PackageId {
	var ids []model.PackageId
	_ = s.database.View(func(tx *db.Tx) error {
		ids = newTxStore(tx).allInstalledIds()
		return nil
	})
	return ids
}

func (s *dbReconcilerStore) SetBroken(id model.PackageId, broken bool) {
	_ = s.database.Update(func(tx *db.Tx) error {
		tx.SetBroken(id, broken)
		return nil
	})
}

// manifestSourceForDB is manifestSourceFor's db-wide counterpart, for the
// same reason dbReconcilerStore exists: the reconciler's action-runner
// adapters live for the process's whole lifetime, not one transaction.
func manifestSourceForDB(database *db.DB) manifestSource {
	return func(id model.PackageId) (model.Manifest, bool) {
		var manifest model.Manifest
		var ok bool
		_ = database.View(func(tx *db.Tx) error {
			var entry *model.InstalledPackageDataEntry
			entry, ok = newTxStore(tx).get(id)
			if ok {
				manifest = entry.Manifest
			}
			return nil
		})
		return manifest, ok
	}
}

// statusSource implements internal/metrics.StatusSource against the
// database, feeding the periodic package-count and broken-package gauges.
type statusSource struct {
	database *db.DB
}

func newStatusSource(database *db.DB) *statusSource {
	return &statusSource{database: database}
}

func (s *statusSource) PackageStatuses() (map[model.PackageId]model.MainStatusKind, error) {
	out := make(map[model.PackageId]model.MainStatusKind)
	err := s.database.View(func(tx *db.Tx) error {
		store := newTxStore(tx)
		for _, id := range store.allInstalledIds() {
			entry, _ := store.get(id)
			out[id] = entry.Status.Kind
		}
		return nil
	})
	return out, err
}

func (s *statusSource) BrokenPackageCount() (int, error) {
	var n int
	err := s.database.View(func(tx *db.Tx) error {
		n = tx.BrokenCount()
		return nil
	})
	return n, err
}
