package faucet

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chenzhangda16/web3-faucet/internal/events"
	"github.com/chenzhangda16/web3-faucet/internal/metrics"
)

func (f *Faucet) monitorTransactionTimeouts(ctx context.Context) error {
	t := time.NewTicker(f.cfg.SweepInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if err := f.recoverTimedOut(ctx); err != nil {
				return err
			}
		}
	}
}

// recoverTimedOut requeues the request of every transfer inflight for longer than
// TransactionTimeout and returns its sender to the pool. The transaction itself is not
// cancelled; if it is mined later it is treated like any outside transfer.
func (f *Faucet) recoverTimedOut(ctx context.Context) error {
	type stale struct {
		hash common.Hash
		t    Transfer
	}

	now := f.now()
	var expired []stale
	f.mu.RLock()
	for h, t := range f.state.inflight {
		if now.Sub(t.SubmittedAt) > f.cfg.TransactionTimeout {
			expired = append(expired, stale{hash: h, t: t})
		}
	}
	f.mu.RUnlock()

	for _, e := range expired {
		balance, err := f.balance(ctx, e.t.Sender.Address())
		if err != nil {
			return err
		}

		recovered := false
		f.update(func(s *State) {
			if _, ok := s.inflight[e.hash]; !ok {
				return
			}
			s.queue.PushBack(e.t.Request)
			delete(s.inflight, e.hash)
			s.pool.Push(balance, e.t.Sender)
			recovered = true
		})
		if !recovered {
			continue
		}

		metrics.Timeouts.Inc()
		f.lg.Warn().
			Str("tx", e.hash.Hex()).
			Stringer("request", e.t.Request).
			Dur("age", now.Sub(e.t.SubmittedAt)).
			Msg("transfer timed out, requeued")
		f.emit(ctx, events.TransferTimeout, transferEvent(e.hash, e.t.Sender.Address(), e.t.Request, nil))
	}
	return nil
}
