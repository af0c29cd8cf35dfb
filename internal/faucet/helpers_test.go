package faucet

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/chenzhangda16/web3-faucet/internal/chain"
	"github.com/chenzhangda16/web3-faucet/internal/chain/chaintest"
	"github.com/chenzhangda16/web3-faucet/internal/events"
	"github.com/chenzhangda16/web3-faucet/internal/ready"
	"github.com/chenzhangda16/web3-faucet/internal/wallet"
)

var (
	ether    = wallet.Ether
	outsider = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

func recipient(n int64) common.Address {
	return common.BigToAddress(big.NewInt(0xbeef00 + n))
}

func testConfig() Config {
	return Config{
		NumClients:         3,
		GrantAmount:        ether(1),
		TransactionTimeout: time.Hour,
		SweepInterval:      10 * time.Millisecond,
		ExecutorIdle:       5 * time.Millisecond,
		ReconnectBackoff:   5 * time.Millisecond,
		ResubscribeBackoff: 5 * time.Millisecond,
		RetryBackoff:       time.Millisecond,
	}
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: time.Unix(1_700_000_000, 0)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	t     *testing.T
	ctx   context.Context
	c     *chaintest.Chain
	f     *Faucet
	sink  *events.MemorySink
	clock *clock
}

// newHarness builds a faucet with empty state, skipping startup funding, so each test
// can lay out pool, queue and being-funded set itself.
func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	c := chaintest.New()
	sink := events.NewMemorySink(256)
	clk := newClock()
	f := &Faucet{
		cfg:     cfg.withDefaults(),
		backend: c.Backend(),
		sink:    sink,
		now:     clk.Now,
		ready:   &ready.Once{},
		lg:      zerolog.Nop(),
		state:   newState(),
	}
	return &harness{t: t, ctx: context.Background(), c: c, f: f, sink: sink, clock: clk}
}

func (h *harness) client(index uint32) chain.Signer {
	s, err := h.c.Signer(h.ctx, index)
	require.NoError(h.t, err)
	return s
}

// pooled puts client index into the pool with balance, on chain and in state.
func (h *harness) pooled(index uint32, balance *big.Int) chain.Signer {
	s := h.client(index)
	h.c.SetBalance(s.Address(), balance)
	h.f.update(func(st *State) { st.pool.Push(balance, s) })
	h.f.managed = append(h.f.managed, s.Address())
	return s
}

// waiting parks client index in beingFunded with a FundingRequest queued for it.
func (h *harness) waiting(index uint32, balance, avg *big.Int) chain.Signer {
	s := h.client(index)
	h.c.SetBalance(s.Address(), balance)
	h.f.update(func(st *State) {
		st.beingFunded[s.Address()] = s
		st.queue.PushBack(FundingRequest{Recipient: s.Address(), AverageWalletBalance: avg})
	})
	h.f.managed = append(h.f.managed, s.Address())
	return s
}

func (h *harness) enqueue(req TransferRequest) {
	h.f.update(func(st *State) { st.queue.PushBack(req) })
}

func (h *harness) custody() {
	h.t.Helper()
	require.NoError(h.t, h.f.checkCustody())
}

func (h *harness) queue() []TransferRequest {
	h.f.mu.RLock()
	defer h.f.mu.RUnlock()
	return h.f.state.queue.Snapshot()
}

func (h *harness) pool() []PoolEntry {
	h.f.mu.RLock()
	defer h.f.mu.RUnlock()
	return h.f.state.pool.Snapshot()
}

func (h *harness) inflight() map[common.Hash]Transfer {
	h.f.mu.RLock()
	defer h.f.mu.RUnlock()
	out := make(map[common.Hash]Transfer, len(h.f.state.inflight))
	for k, v := range h.f.state.inflight {
		out[k] = v
	}
	return out
}

func (h *harness) beingFunded() []common.Address {
	h.f.mu.RLock()
	defer h.f.mu.RUnlock()
	var out []common.Address
	for addr := range h.f.state.beingFunded {
		out = append(out, addr)
	}
	return out
}

// mineAndReconcile mines hash with status and feeds the transaction to handleTx.
func (h *harness) mineAndReconcile(hash common.Hash, status chain.Status) {
	h.t.Helper()
	h.c.Mine(status, hash)
	require.NoError(h.t, h.f.handleTx(h.ctx, h.c.Tx(hash)))
}

func eqWei(t *testing.T, want, got *big.Int, msgAndArgs ...any) {
	t.Helper()
	require.NotNil(t, got, msgAndArgs...)
	require.Equal(t, want.String(), got.String(), msgAndArgs...)
}

func addresses(entries []PoolEntry) []common.Address {
	out := make([]common.Address, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Address)
	}
	return out
}
