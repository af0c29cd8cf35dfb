// Package ledger owns the mock chain's account state and mempool. It is the single
// writer of the store.
package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chenzhangda16/web3-faucet/internal/mockchain/model"
	"github.com/chenzhangda16/web3-faucet/internal/mockchain/store"
)

var (
	ErrKnownTx           = errors.New("known transaction")
	ErrNonce             = errors.New("invalid nonce")
	ErrInsufficientFunds = errors.New("insufficient funds for amount + fee")
	ErrMempoolFull       = errors.New("mempool full")
	ErrNoGenesis         = errors.New("chain has no genesis block")
)

// DefaultFee is charged per transaction: 21000 gas at 1 gwei.
var DefaultFee = big.NewInt(21_000_000_000_000)

const maxPending = 10_000

type Ledger struct {
	mu sync.Mutex
	st store.Store

	fee  *big.Int
	head model.Block
	ok   bool

	pending []model.Tx
	known   map[common.Hash]struct{}
	nonces  map[common.Address]uint64 // next pending nonce per sender with queued txs
}

func New(st store.Store, fee *big.Int) (*Ledger, error) {
	if fee == nil {
		fee = DefaultFee
	}
	l := &Ledger{
		st:     st,
		fee:    new(big.Int).Set(fee),
		known:  make(map[common.Hash]struct{}),
		nonces: make(map[common.Address]uint64),
	}

	n, ok, err := st.Head()
	if err != nil {
		return nil, err
	}
	if ok {
		blk, err := st.BlockByNumber(n)
		if err != nil {
			return nil, fmt.Errorf("load head %d: %w", n, err)
		}
		l.head, l.ok = blk, true
	}
	return l, nil
}

func (l *Ledger) Fee() *big.Int { return new(big.Int).Set(l.fee) }

// Genesis writes block 0 with alloc as initial balances. It is a no-op on a store
// that already has a head.
func (l *Ledger) Genesis(alloc map[common.Address]*big.Int, ts int64) (model.Block, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ok {
		return l.head, nil
	}
	accts := make(map[common.Address]model.Account, len(alloc))
	for addr, bal := range alloc {
		accts[addr] = model.Account{Balance: new(big.Int).Set(bal)}
	}
	blk := model.BuildBlock(0, common.Hash{}, nil, ts, 0)
	if err := l.st.AppendBlock(blk, accts); err != nil {
		return model.Block{}, err
	}
	l.head, l.ok = blk, true
	return blk, nil
}

func (l *Ledger) Head() (model.Block, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.head, l.ok
}

// Account returns the mined state of addr and the nonce its next transaction must use.
func (l *Ledger) Account(addr common.Address) (model.Account, uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acct, err := l.st.Account(addr)
	if err != nil {
		return model.Account{}, 0, err
	}
	return acct, l.nextNonce(addr, acct), nil
}

func (l *Ledger) nextNonce(addr common.Address, acct model.Account) uint64 {
	if n, ok := l.nonces[addr]; ok {
		return n
	}
	return acct.Nonce
}

// Submit admits a signed transaction into the mempool. The balance check is against
// mined state only; a sender that overcommits has its later txs mined as failed.
func (l *Ledger) Submit(tx model.Tx) error {
	if err := model.Verify(tx); err != nil {
		return err
	}
	if tx.TxBody.Amount == nil || tx.TxBody.Amount.Sign() < 0 {
		return errors.New("invalid amount")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, dup := l.known[tx.Hash]; dup {
		return ErrKnownTx
	}
	if _, err := l.st.Receipt(tx.Hash); err == nil {
		return ErrKnownTx
	}
	if len(l.pending) >= maxPending {
		return ErrMempoolFull
	}

	from := tx.TxBody.From
	acct, err := l.st.Account(from)
	if err != nil {
		return err
	}
	if want := l.nextNonce(from, acct); tx.TxBody.Nonce != want {
		return fmt.Errorf("%w: have %d, want %d", ErrNonce, tx.TxBody.Nonce, want)
	}
	cost := new(big.Int).Add(tx.TxBody.Amount, l.fee)
	if acct.Balance.Cmp(cost) < 0 {
		return ErrInsufficientFunds
	}

	tx.BlockNum, tx.Status = 0, ""
	l.pending = append(l.pending, tx)
	l.known[tx.Hash] = struct{}{}
	l.nonces[from] = tx.TxBody.Nonce + 1
	return nil
}

func (l *Ledger) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Seal mines every pending transaction into a new block on top of the head. ts is
// bumped past the head's timestamp if needed.
func (l *Ledger) Seal(ts int64, nonce uint64) (model.Block, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.ok {
		return model.Block{}, ErrNoGenesis
	}
	if ts <= l.head.Header.Timestamp {
		ts = l.head.Header.Timestamp + 1
	}
	number := l.head.Header.Number + 1

	touched := make(map[common.Address]model.Account)
	load := func(addr common.Address) (model.Account, error) {
		if a, ok := touched[addr]; ok {
			return a, nil
		}
		a, err := l.st.Account(addr)
		if err != nil {
			return model.Account{}, err
		}
		touched[addr] = a
		return a, nil
	}

	txs := make([]model.Tx, 0, len(l.pending))
	for _, tx := range l.pending {
		from, err := load(tx.TxBody.From)
		if err != nil {
			return model.Block{}, err
		}
		cost := new(big.Int).Add(tx.TxBody.Amount, l.fee)
		if from.Balance.Cmp(cost) >= 0 {
			from.Balance.Sub(from.Balance, cost)
			from.Nonce++
			touched[tx.TxBody.From] = from

			to, err := load(tx.TxBody.To)
			if err != nil {
				return model.Block{}, err
			}
			to.Balance.Add(to.Balance, tx.TxBody.Amount)
			touched[tx.TxBody.To] = to
			tx.Status = model.StatusSuccess
		} else {
			charge := l.fee
			if from.Balance.Cmp(charge) < 0 {
				charge = from.Balance
			}
			from.Balance = new(big.Int).Sub(from.Balance, charge)
			from.Nonce++
			touched[tx.TxBody.From] = from
			tx.Status = model.StatusFailed
		}
		tx.BlockNum = number
		txs = append(txs, tx)
	}

	blk := model.BuildBlock(number, l.head.Hash, txs, ts, nonce)
	if err := l.st.AppendBlock(blk, touched); err != nil {
		return model.Block{}, err
	}

	l.head = blk
	l.pending = nil
	clear(l.known)
	clear(l.nonces)
	return blk, nil
}
