package faucet

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chenzhangda16/web3-faucet/internal/events"
	"github.com/chenzhangda16/web3-faucet/internal/metrics"
	"github.com/chenzhangda16/web3-faucet/internal/wallet"
)

// executeTransfersLoop waits for block monitoring to be up, then keeps matching the
// queue head with the richest client.
func (f *Faucet) executeTransfersLoop(ctx context.Context) error {
	for !f.monitoringStarted() {
		f.lg.Info().Msg("waiting for transaction monitoring to start")
		if !sleep(ctx, f.cfg.ExecutorIdle) {
			return ctx.Err()
		}
	}

	for {
		_, err := f.executeTransfer(ctx)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var submitErr *RPCSubmitError
		switch {
		case errors.As(err, &submitErr):
			f.lg.Error().Err(err).Msg("failed to execute transfer")
		case errors.Is(err, ErrNoClient):
			f.lg.Info().Msg("no clients to handle transfer requests")
		case errors.Is(err, ErrNoRequests):
		}
		if !sleep(ctx, f.cfg.ExecutorIdle) {
			return ctx.Err()
		}
	}
}

func (f *Faucet) monitoringStarted() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state.monitoringStarted
}

// executeTransfer submits the head request from the richest client. The client is
// owned by no container while the node round trip is in progress; on rejection both
// client and request are put back before returning.
func (f *Faucet) executeTransfer(ctx context.Context) (common.Hash, error) {
	f.mu.Lock()
	s := f.state
	head, ok := s.queue.Peek()
	if !ok {
		f.mu.Unlock()
		return common.Hash{}, ErrNoRequests
	}
	if !s.pool.HasClientFor(head) {
		f.mu.Unlock()
		return common.Hash{}, ErrNoClient
	}
	balance, sender, _ := s.pool.Pop()
	req, _ := s.queue.PopFront()
	s.observe()
	f.mu.Unlock()

	amount := req.sendAmount(balance)
	hash, err := sender.Transfer(ctx, req.To(), amount)
	if err != nil {
		f.update(func(s *State) {
			s.pool.Push(balance, sender)
			s.queue.PushBack(req)
		})
		metrics.SubmitErrors.Inc()

		ev := transferEvent(common.Hash{}, sender.Address(), req, amount)
		ev.Error = err.Error()
		f.emit(ctx, events.TransferRejected, ev)
		return common.Hash{}, &RPCSubmitError{Request: req, Sender: sender.Address(), Msg: err.Error(), err: err}
	}

	// A block carrying hash may be reconciled before this insert lands; the timeout
	// sweep then recovers the sender.
	f.update(func(s *State) {
		s.inflight[hash] = Transfer{Sender: sender, Request: req, SubmittedAt: f.now()}
	})
	metrics.TransfersSubmitted.WithLabelValues(req.Kind()).Inc()
	f.lg.Info().
		Stringer("request", req).
		Str("sender", sender.Address().Hex()).
		Str("amount", wallet.FormatEther(amount)).
		Str("tx", hash.Hex()).
		Msg("sending transfer")
	f.emit(ctx, events.TransferSubmitted, transferEvent(hash, sender.Address(), req, amount))
	return hash, nil
}
