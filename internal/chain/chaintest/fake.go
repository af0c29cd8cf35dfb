// Package chaintest provides an in-memory chain for exercising the faucet without a node.
package chaintest

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"

	"github.com/chenzhangda16/web3-faucet/internal/chain"
)

var ErrUnavailable = errors.New("chaintest: node unavailable")

// Sent is one transaction handed to the fake node, mined or not.
type Sent struct {
	Hash   common.Hash
	From   common.Address
	To     common.Address
	Amount *big.Int
}

// Chain is a single-node chain whose blocks are produced explicitly by the test.
// Submitted transfers only move balances once mined with StatusSuccess.
type Chain struct {
	mu sync.Mutex

	nonce    uint64
	number   uint64
	balances map[common.Address]*big.Int
	sent     map[common.Hash]Sent
	order    []common.Hash
	mined    map[common.Hash]bool
	receipts map[common.Hash]*chain.Receipt
	blocks   map[common.Hash]*chain.Block

	submitErr     error
	balanceFails  int
	receiptFails  int
	blockFails    int
	subscribeErrs int

	subs      []*subscription
	subsTotal int
}

func New() *Chain {
	return &Chain{
		balances: make(map[common.Address]*big.Int),
		sent:     make(map[common.Hash]Sent),
		mined:    make(map[common.Hash]bool),
		receipts: make(map[common.Hash]*chain.Receipt),
		blocks:   make(map[common.Hash]*chain.Block),
	}
}

// AddressFor is the address of the signer at index. Higher index, higher address.
func AddressFor(index uint32) common.Address {
	return common.BigToAddress(new(big.Int).SetUint64(0x1000 + uint64(index)))
}

// Backend wires the fake as every part of a chain.Backend. Push stays nil.
func (c *Chain) Backend() chain.Backend {
	return chain.Backend{Reader: c, Signers: c, Poll: (*feed)(c)}
}

// PushBackend is Backend with the feed also installed as the push feed.
func (c *Chain) PushBackend() chain.Backend {
	b := c.Backend()
	b.Push = (*feed)(c)
	return b
}

func (c *Chain) SetBalance(addr common.Address, wei *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[addr] = new(big.Int).Set(wei)
}

func (c *Chain) Balance(addr common.Address) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balanceLocked(addr)
}

func (c *Chain) balanceLocked(addr common.Address) *big.Int {
	if b, ok := c.balances[addr]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// FailSubmits makes every following Transfer fail with err; nil restores success.
func (c *Chain) FailSubmits(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitErr = err
}

// FailBalanceQueries makes the next n BalanceAt calls fail.
func (c *Chain) FailBalanceQueries(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balanceFails = n
}

// FailReceiptQueries makes the next n TransactionReceipt calls fail.
func (c *Chain) FailReceiptQueries(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.receiptFails = n
}

// FailBlockQueries makes the next n BlockByHash calls fail with a transient error.
func (c *Chain) FailBlockQueries(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blockFails = n
}

// FailSubscribes makes the next n SubscribeBlocks calls fail.
func (c *Chain) FailSubscribes(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribeErrs = n
}

// Sent returns submitted transactions in submission order.
func (c *Chain) Sent() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Sent, 0, len(c.order))
	for _, h := range c.order {
		out = append(out, c.sent[h])
	}
	return out
}

// Submit records a transfer from any address, as if an outsider sent it.
func (c *Chain) Submit(from, to common.Address, amount *big.Int) common.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitLocked(from, to, amount)
}

func (c *Chain) submitLocked(from, to common.Address, amount *big.Int) common.Hash {
	c.nonce++
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], c.nonce)
	h := crypto.Keccak256Hash(from.Bytes(), to.Bytes(), n[:])
	c.sent[h] = Sent{Hash: h, From: from, To: to, Amount: new(big.Int).Set(amount)}
	c.order = append(c.order, h)
	return h
}

// Tx returns the chain view of a submitted transaction.
func (c *Chain) Tx(hash common.Hash) chain.Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.sent[hash]
	to := s.To
	return chain.Transaction{Hash: hash, From: s.From, To: &to}
}

// Mine puts the given transactions into a new block, all with status, records their
// receipts, applies balances for successful ones and announces the block to every
// live subscription.
func (c *Chain) Mine(status chain.Status, hashes ...common.Hash) common.Hash {
	c.mu.Lock()
	c.number++
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], c.number)
	bh := crypto.Keccak256Hash([]byte("block"), n[:])

	b := &chain.Block{Hash: bh, Number: c.number}
	for _, h := range hashes {
		s, ok := c.sent[h]
		if !ok {
			c.mu.Unlock()
			panic(fmt.Sprintf("chaintest: mine unknown tx %s", h))
		}
		to := s.To
		c.mined[h] = true
		b.Transactions = append(b.Transactions, chain.Transaction{Hash: h, From: s.From, To: &to})
		c.receipts[h] = &chain.Receipt{TxHash: h, BlockHash: bh, BlockNumber: c.number, To: &to, Status: status}
		if status == chain.StatusSuccess {
			from := c.balanceLocked(s.From)
			c.balances[s.From] = from.Sub(from, s.Amount)
			dst := c.balanceLocked(s.To)
			c.balances[s.To] = dst.Add(dst, s.Amount)
		}
	}
	c.blocks[bh] = b
	subs := append([]*subscription(nil), c.subs...)
	c.mu.Unlock()

	for _, s := range subs {
		s.deliver(bh)
	}
	return bh
}

// MinePending mines every not yet mined transaction into one block. It returns false
// when there was nothing to mine.
func (c *Chain) MinePending(status chain.Status) (common.Hash, bool) {
	c.mu.Lock()
	var pending []common.Hash
	for _, h := range c.order {
		if !c.mined[h] {
			pending = append(pending, h)
		}
	}
	c.mu.Unlock()
	if len(pending) == 0 {
		return common.Hash{}, false
	}
	return c.Mine(status, pending...), true
}

// Reorg forgets a block so fetching it reports chain.ErrNotFound.
func (c *Chain) Reorg(block common.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.blocks[block]; ok {
		for _, tx := range b.Transactions {
			delete(c.receipts, tx.Hash)
		}
	}
	delete(c.blocks, block)
}

// KillSubscriptions ends every live subscription with ErrUnavailable.
func (c *Chain) KillSubscriptions() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()
	for _, s := range subs {
		s.kill(ErrUnavailable)
	}
}

// Subscriptions is the number of subscriptions ever established.
func (c *Chain) Subscriptions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subsTotal
}

// ---- chain.Reader ----

func (c *Chain) BalanceAt(_ context.Context, addr common.Address) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.balanceFails > 0 {
		c.balanceFails--
		return nil, ErrUnavailable
	}
	return c.balanceLocked(addr), nil
}

func (c *Chain) TransactionReceipt(_ context.Context, hash common.Hash) (*chain.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.receiptFails > 0 {
		c.receiptFails--
		return nil, ErrUnavailable
	}
	r, ok := c.receipts[hash]
	if !ok {
		return nil, chain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (c *Chain) BlockByHash(_ context.Context, hash common.Hash) (*chain.Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.blockFails > 0 {
		c.blockFails--
		return nil, ErrUnavailable
	}
	b, ok := c.blocks[hash]
	if !ok {
		return nil, chain.ErrNotFound
	}
	cp := *b
	cp.Transactions = append([]chain.Transaction(nil), b.Transactions...)
	return &cp, nil
}

// ---- chain.SignerSource ----

func (c *Chain) Signer(_ context.Context, index uint32) (chain.Signer, error) {
	return &signer{c: c, addr: AddressFor(index)}, nil
}

type signer struct {
	c    *Chain
	addr common.Address
}

func (s *signer) Address() common.Address { return s.addr }

func (s *signer) Transfer(ctx context.Context, to common.Address, amount *big.Int) (common.Hash, error) {
	if err := ctx.Err(); err != nil {
		return common.Hash{}, err
	}
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	if s.c.submitErr != nil {
		return common.Hash{}, s.c.submitErr
	}
	return s.c.submitLocked(s.addr, to, amount), nil
}

// ---- chain.BlockFeed ----

type feed Chain

func (f *feed) SubscribeBlocks(_ context.Context, ch chan<- common.Hash) (ethereum.Subscription, error) {
	c := (*Chain)(f)
	c.mu.Lock()
	if c.subscribeErrs > 0 {
		c.subscribeErrs--
		c.mu.Unlock()
		return nil, ErrUnavailable
	}
	s := &subscription{hashes: make(chan common.Hash, 64), killed: make(chan error, 1)}
	c.subs = append(c.subs, s)
	c.subsTotal++
	c.mu.Unlock()

	return event.NewSubscription(func(quit <-chan struct{}) error {
		for {
			select {
			case <-quit:
				return nil
			case err := <-s.killed:
				return err
			case h := <-s.hashes:
				select {
				case ch <- h:
				case <-quit:
					return nil
				}
			}
		}
	}), nil
}

type subscription struct {
	hashes chan common.Hash
	killed chan error
}

func (s *subscription) deliver(h common.Hash) {
	select {
	case s.hashes <- h:
	default:
	}
}

func (s *subscription) kill(err error) {
	select {
	case s.killed <- err:
	default:
	}
}
