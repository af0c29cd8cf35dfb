package ledger

import (
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenzhangda16/web3-faucet/internal/mockchain/model"
	"github.com/chenzhangda16/web3-faucet/internal/mockchain/store"
	"github.com/chenzhangda16/web3-faucet/internal/wallet"
)

func newLedger(t *testing.T, funded ...*ecdsa.PrivateKey) (*Ledger, *store.MemStore) {
	t.Helper()
	st := store.NewMemStore()
	l, err := New(st, big.NewInt(1))
	require.NoError(t, err)

	alloc := map[common.Address]*big.Int{}
	for _, k := range funded {
		alloc[crypto.PubkeyToAddress(k.PublicKey)] = big.NewInt(100)
	}
	_, err = l.Genesis(alloc, 1000)
	require.NoError(t, err)
	return l, st
}

func key(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	k, err := crypto.GenerateKey()
	require.NoError(t, err)
	return k
}

func transfer(t *testing.T, k *ecdsa.PrivateKey, to common.Address, amount int64, nonce uint64) model.Tx {
	t.Helper()
	tx, err := model.SignTx(model.TxBody{To: to, Amount: big.NewInt(amount), Nonce: nonce, Timestamp: 1}, k)
	require.NoError(t, err)
	return tx
}

func balance(t *testing.T, l *Ledger, addr common.Address) int64 {
	t.Helper()
	acct, _, err := l.Account(addr)
	require.NoError(t, err)
	return acct.Balance.Int64()
}

func TestSealAppliesTransfers(t *testing.T) {
	alice := key(t)
	bob := common.HexToAddress("0xb0b")
	l, st := newLedger(t, alice)
	from := crypto.PubkeyToAddress(alice.PublicKey)

	tx := transfer(t, alice, bob, 40, 0)
	require.NoError(t, l.Submit(tx))
	assert.Equal(t, 1, l.Pending())

	_, next, err := l.Account(from)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), next)

	blk, err := l.Seal(1001, 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), blk.Header.Number)
	require.Len(t, blk.Txs, 1)
	assert.Equal(t, model.StatusSuccess, blk.Txs[0].Status)
	assert.Zero(t, l.Pending())

	assert.Equal(t, int64(59), balance(t, l, from))
	assert.Equal(t, int64(40), balance(t, l, bob))

	r, err := st.Receipt(tx.Hash)
	require.NoError(t, err)
	assert.Equal(t, blk.Hash, r.BlockHash)
	assert.Equal(t, model.StatusSuccess, r.Status)
}

func TestSubmitRejects(t *testing.T) {
	alice, mallory := key(t), key(t)
	l, _ := newLedger(t, alice)
	bob := common.HexToAddress("0xb0b")

	assert.ErrorIs(t, l.Submit(transfer(t, alice, bob, 10, 1)), ErrNonce)
	assert.ErrorIs(t, l.Submit(transfer(t, alice, bob, 100, 0)), ErrInsufficientFunds)
	assert.ErrorIs(t, l.Submit(transfer(t, mallory, bob, 1, 0)), ErrInsufficientFunds)

	forged := transfer(t, mallory, bob, 1, 0)
	forged.TxBody.From = crypto.PubkeyToAddress(alice.PublicKey)
	forged.Hash = model.HashTxCanonical(forged.TxBody)
	assert.ErrorIs(t, l.Submit(forged), model.ErrBadSignature)

	ok := transfer(t, alice, bob, 1, 0)
	require.NoError(t, l.Submit(ok))
	assert.ErrorIs(t, l.Submit(ok), ErrKnownTx)
}

func TestOvercommittedSenderFails(t *testing.T) {
	alice := key(t)
	l, _ := newLedger(t, alice)
	bob := common.HexToAddress("0xb0b")

	require.NoError(t, l.Submit(transfer(t, alice, bob, 60, 0)))
	require.NoError(t, l.Submit(transfer(t, alice, bob, 60, 1)))

	blk, err := l.Seal(0, 0)
	require.NoError(t, err)
	require.Len(t, blk.Txs, 2)
	assert.Equal(t, model.StatusSuccess, blk.Txs[0].Status)
	assert.Equal(t, model.StatusFailed, blk.Txs[1].Status)
	assert.Greater(t, blk.Header.Timestamp, int64(1000))

	from := crypto.PubkeyToAddress(alice.PublicKey)
	// 100 - 61 for the first tx, then the fee of the failed one.
	assert.Equal(t, int64(38), balance(t, l, from))
	acct, next, err := l.Account(from)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), acct.Nonce)
	assert.Equal(t, uint64(2), next)
}

func TestHeadSurvivesReopen(t *testing.T) {
	l, st := newLedger(t)
	blk, err := l.Seal(2000, 0)
	require.NoError(t, err)

	again, err := New(st, nil)
	require.NoError(t, err)
	head, ok := again.Head()
	require.True(t, ok)
	assert.Equal(t, blk.Hash, head.Hash)

	g, err := again.Genesis(nil, 0)
	require.NoError(t, err)
	assert.Equal(t, blk.Hash, g.Hash)
}

func TestSealWithoutGenesis(t *testing.T) {
	l, err := New(store.NewMemStore(), nil)
	require.NoError(t, err)
	_, err = l.Seal(1, 0)
	assert.ErrorIs(t, err, ErrNoGenesis)
}

func TestPrefund(t *testing.T) {
	alloc, err := Prefund(wallet.TestMnemonic, 3, wallet.Ether(10000))
	require.NoError(t, err)
	require.Len(t, alloc, 3)
	bal, ok := alloc[common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")]
	require.True(t, ok)
	assert.Equal(t, wallet.Ether(10000).String(), bal.String())
}
