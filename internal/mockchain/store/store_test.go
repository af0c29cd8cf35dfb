package store

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenzhangda16/web3-faucet/internal/mockchain/model"
)

func TestMemStore_AppendAndRead(t *testing.T) {
	s := NewMemStore()

	_, ok, err := s.Head()
	require.NoError(t, err)
	assert.False(t, ok)

	from, to := common.HexToAddress("0x01"), common.HexToAddress("0x02")
	tx := model.Tx{
		Hash:   common.HexToHash("0xaa"),
		TxBody: model.TxBody{From: from, To: to, Amount: big.NewInt(5)},
		Status: model.StatusSuccess,
	}
	blk := model.BuildBlock(1, common.Hash{}, []model.Tx{tx}, 100, 0)
	require.NoError(t, s.AppendBlock(blk, map[common.Address]model.Account{
		to: {Balance: big.NewInt(5), Nonce: 0},
	}))

	n, ok, err := s.Head()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(1), n)

	byNum, err := s.BlockByNumber(1)
	require.NoError(t, err)
	assert.Equal(t, blk.Hash, byNum.Hash)

	byHash, err := s.BlockByHash(blk.Hash)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), byHash.Header.Number)

	r, err := s.Receipt(tx.Hash)
	require.NoError(t, err)
	assert.Equal(t, blk.Hash, r.BlockHash)
	assert.Equal(t, to, r.To)
	assert.Equal(t, model.StatusSuccess, r.Status)

	acct, err := s.Account(to)
	require.NoError(t, err)
	assert.Equal(t, "5", acct.Balance.String())
}

func TestMemStore_Missing(t *testing.T) {
	s := NewMemStore()

	_, err := s.BlockByNumber(7)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.BlockByHash(common.HexToHash("0x01"))
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Receipt(common.HexToHash("0x01"))
	assert.ErrorIs(t, err, ErrNotFound)

	acct, err := s.Account(common.HexToAddress("0x09"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), acct.Balance.Int64())
	assert.Zero(t, acct.Nonce)
}

func TestKeyBlockSortsNumerically(t *testing.T) {
	assert.Less(t, string(KeyBlock(9)), string(KeyBlock(10)))
}
