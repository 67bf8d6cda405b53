package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/hailam/taflmagic/internal/magic"
	"github.com/hailam/taflmagic/internal/tablefile"
)

// Storage keys
const (
	tablePrefix = "table/"
)

// ErrTableNotFound is returned when no table is stored under a name.
var ErrTableNotFound = errors.New("table not found")

// Storage wraps BadgerDB for persistent table storage
type Storage struct {
	db *badger.DB
}

// NewStorage opens the store in the platform data directory
func NewStorage() (*Storage, error) {
	dbDir, err := GetDatabaseDir()
	if err != nil {
		return nil, err
	}
	return Open(dbDir)
}

// Open opens the store in dir. An empty dir keeps everything in memory.
func Open(dir string) (*Storage, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil // Disable logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open table store: %w", err)
	}

	return &Storage{db: db}, nil
}

// Close closes the database
func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func tableKey(name string) []byte {
	return []byte(tablePrefix + name)
}

// SaveTable stores t under name, replacing any previous table.
func (s *Storage) SaveTable(name string, t *magic.Table) error {
	if name == "" {
		return errors.New("table name must not be empty")
	}

	data, err := tablefile.MarshalCompressed(t)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(tableKey(name), data)
	})
}

// LoadTable loads the table stored under name. Corrupt values are reported
// with tablefile.ErrFormat.
func (s *Storage) LoadTable(name string) (*magic.Table, error) {
	var data []byte

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(tableKey(name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %q", ErrTableNotFound, name)
		}
		if err != nil {
			return err
		}

		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	return tablefile.UnmarshalCompressed(data)
}

// DeleteTable removes the table stored under name.
func (s *Storage) DeleteTable(name string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(tableKey(name)); errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %q", ErrTableNotFound, name)
		}
		return txn.Delete(tableKey(name))
	})
}

// ListTables returns the names of all stored tables in key order.
func (s *Storage) ListTables() ([]string, error) {
	var names []string

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(tablePrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			names = append(names, strings.TrimPrefix(key, tablePrefix))
		}
		return nil
	})

	return names, err
}
