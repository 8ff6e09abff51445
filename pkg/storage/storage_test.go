package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-chain/meridian/pkg/core/types"
)

func TestPutAndGetAccountState(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()

	db, err := Open(filepath.Join(dir, "accounts"))
	require.NoError(err)
	defer db.Close()

	var addr types.Address
	addr[0] = 7

	require.NoError(db.PutAccountState(addr, AccountState{SequenceNumber: 3, Balance: 100}))

	state, err := db.GetAccountState(addr)
	require.NoError(err)
	require.Equal(uint64(3), state.SequenceNumber)
	require.Equal(uint64(100), state.Balance)
}

func TestGetUnknownAccountErrors(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()

	db, err := Open(filepath.Join(dir, "accounts"))
	require.NoError(err)
	defer db.Close()

	var addr types.Address
	_, err = db.GetAccountState(addr)
	require.Error(err)
}
