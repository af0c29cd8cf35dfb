package faucet

import (
	"bytes"
	"container/heap"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chenzhangda16/web3-faucet/internal/chain"
)

// ClientPool holds the available clients ordered by their last known balance. The
// richest client is always handed out first; equal balances go to the higher address.
type ClientPool struct {
	h      clientHeap
	byAddr map[common.Address]*poolEntry
}

type poolEntry struct {
	balance *big.Int
	client  chain.Signer
	addr    common.Address
	index   int
}

// PoolEntry is a read-only view of one pooled client.
type PoolEntry struct {
	Address common.Address `json:"address"`
	Balance *big.Int       `json:"balance"`
}

func NewClientPool() *ClientPool {
	return &ClientPool{byAddr: make(map[common.Address]*poolEntry)}
}

// Push inserts client, or updates its balance when it is already pooled.
func (p *ClientPool) Push(balance *big.Int, client chain.Signer) {
	addr := client.Address()
	bal := new(big.Int).Set(balance)
	if e, ok := p.byAddr[addr]; ok {
		e.balance = bal
		e.client = client
		heap.Fix(&p.h, e.index)
		return
	}
	e := &poolEntry{balance: bal, client: client, addr: addr}
	heap.Push(&p.h, e)
	p.byAddr[addr] = e
}

// Pop removes the richest client.
func (p *ClientPool) Pop() (*big.Int, chain.Signer, bool) {
	if len(p.h) == 0 {
		return nil, nil, false
	}
	e := heap.Pop(&p.h).(*poolEntry)
	delete(p.byAddr, e.addr)
	return e.balance, e.client, true
}

func (p *ClientPool) Peek() (*big.Int, chain.Signer, bool) {
	if len(p.h) == 0 {
		return nil, nil, false
	}
	return p.h[0].balance, p.h[0].client, true
}

// HasClientFor reports whether the richest client can cover req.
func (p *ClientPool) HasClientFor(req TransferRequest) bool {
	bal, _, ok := p.Peek()
	return ok && bal.Cmp(req.RequiredFunds()) >= 0
}

func (p *ClientPool) Len() int { return len(p.h) }

// Snapshot lists the pool in hand-out order.
func (p *ClientPool) Snapshot() []PoolEntry {
	entries := make([]*poolEntry, len(p.h))
	copy(entries, p.h)
	sort.Slice(entries, func(i, j int) bool { return before(entries[i], entries[j]) })

	out := make([]PoolEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, PoolEntry{Address: e.addr, Balance: new(big.Int).Set(e.balance)})
	}
	return out
}

func before(a, b *poolEntry) bool {
	if c := a.balance.Cmp(b.balance); c != 0 {
		return c > 0
	}
	return bytes.Compare(a.addr[:], b.addr[:]) > 0
}

// clientHeap implements heap.Interface as a max-heap.
type clientHeap []*poolEntry

func (h clientHeap) Len() int           { return len(h) }
func (h clientHeap) Less(i, j int) bool { return before(h[i], h[j]) }

func (h clientHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *clientHeap) Push(x any) {
	e := x.(*poolEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *clientHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}
