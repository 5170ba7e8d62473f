// Package store persists users and messages in BadgerDB.
//
// Keys are plain strings with zero-padded numeric segments so that a prefix
// scan returns records in chronological order:
//
//	user:<username>                      user record (JSON)
//	msg:<id>                             message record (JSON), id %020d
//	conv:<a>|<b>:<id>                    conversation index, a < b
//	unread:<receiver>:<sender>:<id>      unread index, removed on read
//	partner:<user>:<other>               partner set
package store

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// Open opens (or creates) the BadgerDB database in dir.
func Open(dir string) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir).WithLoggingLevel(badger.ERROR)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	return db, nil
}
