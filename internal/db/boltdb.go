package db

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/start9labs/appmgr/internal/model"
)

var (
	bucketDocument = []byte("document")
	keyDatabase    = []byte("database")
)

// DB is the BoltDB-backed handle on appmgr's single database document.
type DB struct {
	bolt *bolt.DB
}

// Open opens (creating if absent) the database file at <dataDir>/appmgr.db
// and seeds it with an empty model.Database on first use.
func Open(dataDir string) (*DB, error) {
	path := filepath.Join(dataDir, "appmgr.db")
	bdb, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("db: opening %s: %w", path, err)
	}

	err = bdb.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketDocument)
		if err != nil {
			return fmt.Errorf("db: creating bucket: %w", err)
		}
		if b.Get(keyDatabase) != nil {
			return nil
		}
		data, err := json.Marshal(model.NewDatabase())
		if err != nil {
			return fmt.Errorf("db: seeding initial document: %w", err)
		}
		return b.Put(keyDatabase, data)
	})
	if err != nil {
		bdb.Close()
		return nil, err
	}

	return &DB{bolt: bdb}, nil
}

// Close closes the underlying database file.
func (d *DB) Close() error {
	return d.bolt.Close()
}

// Tx is a decoded snapshot of the database document, valid for the
// duration of one View or Update call.
type Tx struct {
	doc *model.Database
}

// Get returns the transaction's document. Under View the caller must treat
// it as read-only; under Update, mutations are persisted when fn returns
// nil.
func (t *Tx) Get() *model.Database {
	return t.doc
}

// View runs fn against a read-only snapshot of the document. Concurrent
// Views never block each other or a concurrent Update.
func (d *DB) View(fn func(*Tx) error) error {
	return d.bolt.View(func(btx *bolt.Tx) error {
		doc, err := decode(btx)
		if err != nil {
			return err
		}
		return fn(&Tx{doc: doc})
	})
}

// Update runs fn against a decoded copy of the document and, if fn returns
// nil, re-encodes and commits the (possibly mutated) document in the same
// bbolt write transaction. If fn returns an error — including the
// ErrDryRun sentinel configure() uses to preview a change without applying
// it — bbolt rolls the transaction back and the document is left
// untouched.
func (d *DB) Update(fn func(*Tx) error) error {
	return d.bolt.Update(func(btx *bolt.Tx) error {
		doc, err := decode(btx)
		if err != nil {
			return err
		}
		tx := &Tx{doc: doc}
		if err := fn(tx); err != nil {
			return err
		}
		return encode(btx, tx.doc)
	})
}

func decode(btx *bolt.Tx) (*model.Database, error) {
	b := btx.Bucket(bucketDocument)
	data := b.Get(keyDatabase)
	if data == nil {
		return model.NewDatabase(), nil
	}
	var doc model.Database
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("db: decoding document: %w", err)
	}
	return &doc, nil
}

func encode(btx *bolt.Tx, doc *model.Database) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("db: encoding document: %w", err)
	}
	return btx.Bucket(bucketDocument).Put(keyDatabase, data)
}
