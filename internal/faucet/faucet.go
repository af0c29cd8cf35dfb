// Package faucet runs a pool of signer clients that serve grant requests and fund each
// other, reconciling every submitted transfer against the blocks the node announces.
package faucet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/chenzhangda16/web3-faucet/internal/chain"
	"github.com/chenzhangda16/web3-faucet/internal/events"
	"github.com/chenzhangda16/web3-faucet/internal/ready"
	"github.com/chenzhangda16/web3-faucet/internal/retry"
	"github.com/chenzhangda16/web3-faucet/pkg/obs"
)

type Config struct {
	NumClients        int
	FirstAccountIndex uint32
	// GrantAmount is the wei sent per faucet request.
	GrantAmount *big.Int

	TransactionTimeout time.Duration // inflight age after which a transfer is recovered
	SweepInterval      time.Duration // default 60s

	ExecutorIdle       time.Duration // default 1s
	ReconnectBackoff   time.Duration // default 1s
	ResubscribeBackoff time.Duration // default 5s
	RetryBackoff       time.Duration // default 1s; balance, receipt and block queries

	// ReadyFifo, when set, receives one line once block monitoring is up.
	ReadyFifo string
}

// MinFundingBalance is the balance a client needs before it is put into service.
func (c Config) MinFundingBalance() *big.Int {
	return new(big.Int).Lsh(c.GrantAmount, 1)
}

func (c Config) withDefaults() Config {
	if c.SweepInterval <= 0 {
		c.SweepInterval = 60 * time.Second
	}
	if c.ExecutorIdle <= 0 {
		c.ExecutorIdle = time.Second
	}
	if c.ReconnectBackoff <= 0 {
		c.ReconnectBackoff = time.Second
	}
	if c.ResubscribeBackoff <= 0 {
		c.ResubscribeBackoff = 5 * time.Second
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Second
	}
	if c.TransactionTimeout < 0 {
		c.TransactionTimeout = 0
	}
	return c
}

type Option func(*Faucet)

// WithSink sets where lifecycle events go. The default drops them.
func WithSink(s events.Sink) Option {
	return func(f *Faucet) { f.sink = s }
}

// WithClock replaces time.Now for inflight ages.
func WithClock(now func() time.Time) Option {
	return func(f *Faucet) { f.now = now }
}

type Faucet struct {
	cfg      Config
	backend  chain.Backend
	requests <-chan common.Address
	sink     events.Sink
	now      func() time.Time
	ready    *ready.Once
	lg       zerolog.Logger

	// managed lists every client address derived at startup.
	managed []common.Address

	mu    sync.RWMutex
	state *State
}

// New derives the clients, reads their balances and decides which of them need funding
// before they can serve requests. It blocks until every balance has been read.
func New(ctx context.Context, cfg Config, backend chain.Backend, requests <-chan common.Address, opts ...Option) (*Faucet, error) {
	cfg = cfg.withDefaults()
	if cfg.NumClients <= 0 {
		return nil, fmt.Errorf("faucet: need at least one client, got %d", cfg.NumClients)
	}
	if cfg.GrantAmount == nil || cfg.GrantAmount.Sign() <= 0 {
		return nil, errors.New("faucet: grant amount must be positive")
	}
	if backend.Reader == nil || backend.Signers == nil || backend.Poll == nil {
		return nil, errors.New("faucet: backend needs a reader, a signer source and a poll feed")
	}

	f := &Faucet{
		cfg:      cfg,
		backend:  backend,
		requests: requests,
		sink:     events.NopSink{},
		now:      time.Now,
		ready:    &ready.Once{Path: cfg.ReadyFifo},
		lg:       obs.Logger("faucet"),
		state:    newState(),
	}
	for _, o := range opts {
		o(f)
	}

	if err := f.fundClients(ctx); err != nil {
		return nil, err
	}
	return f, nil
}

// Run drives the faucet until ctx is cancelled or one activity fails.
func (f *Faucet) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return f.monitorTransactions(ctx) })
	g.Go(func() error { return f.monitorFaucetRequests(ctx) })
	g.Go(func() error { return f.monitorTransactionTimeouts(ctx) })
	g.Go(func() error { return f.executeTransfersLoop(ctx) })
	return g.Wait()
}

func (f *Faucet) Status() Status {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state.status()
}

// Clients returns the managed client addresses.
func (f *Faucet) Clients() []common.Address {
	return append([]common.Address(nil), f.managed...)
}

// checkCustody is State.checkCustody over the managed clients.
func (f *Faucet) checkCustody() error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state.checkCustody(f.managed)
}

// update runs fn under the write lock and refreshes the state gauges.
func (f *Faucet) update(fn func(s *State)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f.state)
	f.state.observe()
}

func (f *Faucet) requestTransfer(req TransferRequest) {
	f.lg.Info().Stringer("request", req).Msg("adding transfer to queue")
	f.update(func(s *State) { s.queue.PushBack(req) })
}

func (f *Faucet) retryPolicy(what string, attrs func(e *zerolog.Event)) retry.Policy {
	return retry.Fixed(f.cfg.RetryBackoff).WithOnRetry(func(attempt int, wait time.Duration, err error) {
		e := f.lg.Warn().Err(err).Int("attempt", attempt).Dur("wait", wait)
		attrs(e)
		e.Msg(what + " failed, will retry")
	})
}

// balance queries addr until it succeeds. It only fails when ctx is done.
func (f *Faucet) balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	p := f.retryPolicy("balance query", func(e *zerolog.Event) { e.Str("address", addr.Hex()) })
	return retry.Value(ctx, p, func(ctx context.Context) (*big.Int, error) {
		return f.backend.Reader.BalanceAt(ctx, addr)
	})
}

// receipt waits for the receipt of hash, tolerating both node errors and a receipt
// that is not yet indexed.
func (f *Faucet) receipt(ctx context.Context, hash common.Hash) (*chain.Receipt, error) {
	p := f.retryPolicy("receipt query", func(e *zerolog.Event) { e.Str("tx", hash.Hex()) })
	return retry.Value(ctx, p, func(ctx context.Context) (*chain.Receipt, error) {
		return f.backend.Reader.TransactionReceipt(ctx, hash)
	})
}

func (f *Faucet) emit(ctx context.Context, typ string, v any) {
	if err := f.sink.Emit(ctx, typ, v); err != nil {
		f.lg.Warn().Err(err).Str("event", typ).Msg("emit event failed")
	}
}

func transferEvent(hash common.Hash, sender common.Address, req TransferRequest, amount *big.Int) events.Transfer {
	ev := events.Transfer{
		Kind:      req.Kind(),
		Sender:    sender.Hex(),
		Recipient: req.To().Hex(),
	}
	if hash != (common.Hash{}) {
		ev.TxHash = hash.Hex()
	}
	if amount != nil {
		ev.Amount = amount.String()
	}
	return ev
}

// sleep waits for d or ctx, whichever is first, and reports whether d elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
