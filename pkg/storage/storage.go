// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.

// Package storage implements the StorageRead collaborator (§6): a read-only
// view of committed account state the Validation Pipeline consults to admit
// or reject inbound transactions. It is backed by goleveldb, the same
// embedded store the teacher's core/mempool.go reaches for via
// heavy.CreateDBConnection().
package storage

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"

	"github.com/meridian-chain/meridian/pkg/core/types"
)

// AccountState is the sender-side state the Validation Pipeline needs.
type AccountState struct {
	SequenceNumber uint64
	Balance        uint64
}

// Reader is the StorageRead contract consumed by the Validation Pipeline.
type Reader interface {
	GetAccountState(sender types.Address) (AccountState, error)
}

// LevelDB is a Reader backed by an on-disk leveldb instance, keyed by
// account address.
type LevelDB struct {
	db *leveldb.DB
}

// Open opens (creating if necessary) a leveldb-backed account store at path.
func Open(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errors.Wrap(err, "open account state db")
	}
	return &LevelDB{db: db}, nil
}

// Close releases the underlying leveldb handle.
func (s *LevelDB) Close() error {
	return s.db.Close()
}

// GetAccountState fetches the (sequence_number, balance) pair for sender, or
// an error if the account is unknown to storage.
func (s *LevelDB) GetAccountState(sender types.Address) (AccountState, error) {
	raw, err := s.db.Get(sender[:], nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return AccountState{}, errors.Errorf("unknown account %s", sender.String())
		}
		return AccountState{}, errors.Wrap(err, "get account state")
	}

	var state AccountState
	if err := json.Unmarshal(raw, &state); err != nil {
		return AccountState{}, errors.Wrap(err, "decode account state")
	}
	return state, nil
}

// PutAccountState writes sender's current state, used by tests and by the
// block-commit path (out of scope here, but the write side lives alongside
// the reader it backs).
func (s *LevelDB) PutAccountState(sender types.Address, state AccountState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return errors.Wrap(err, "encode account state")
	}
	return s.db.Put(sender[:], raw, nil)
}
