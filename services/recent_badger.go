package services

import (
	"errors"

	"github.com/dgraph-io/badger/v4"
)

var recentKey = []byte("recent_visitors")

// BadgerRecentStore persists the recent-visitor list in an embedded badger
// database under a single key.
type BadgerRecentStore struct {
	db *badger.DB
}

// OpenBadgerRecentStore opens (or creates) the store in dir. An empty dir
// opens an in-memory database.
func OpenBadgerRecentStore(dir string) (*BadgerRecentStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerRecentStore{db: db}, nil
}

func (s *BadgerRecentStore) Load() ([]RecentEntry, error) {
	var entries []RecentEntry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recentKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entries)
		})
	})
	return entries, err
}

func (s *BadgerRecentStore) Save(entries []RecentEntry) error {
	b, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recentKey, b)
	})
}

func (s *BadgerRecentStore) Close() error {
	return s.db.Close()
}
