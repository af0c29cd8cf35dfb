package faucet

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chenzhangda16/web3-faucet/internal/chain"
	"github.com/chenzhangda16/web3-faucet/internal/events"
	"github.com/chenzhangda16/web3-faucet/internal/metrics"
	"github.com/chenzhangda16/web3-faucet/internal/wallet"
)

// handleTx reconciles one mined transaction. It matters when it is one of our inflight
// transfers or when it pays a client that is waiting for funds. Node queries happen
// without the lock; every commit re-checks the state it depends on.
func (f *Faucet) handleTx(ctx context.Context, tx chain.Transaction) error {
	f.mu.RLock()
	transfer, inflight := f.state.inflight[tx.Hash]
	relevant := inflight
	if !relevant && tx.To != nil {
		_, relevant = f.state.beingFunded[*tx.To]
	}
	f.mu.RUnlock()

	if !relevant {
		return nil
	}

	receipt, err := f.receipt(ctx, tx.Hash)
	if err != nil {
		return err
	}
	if !inflight {
		return f.handleExternalTransfer(ctx, receipt)
	}
	return f.settleTransfer(ctx, tx.Hash, transfer, receipt)
}

// handleExternalTransfer promotes a being-funded client paid by someone else once its
// balance reaches MinFundingBalance.
func (f *Faucet) handleExternalTransfer(ctx context.Context, receipt *chain.Receipt) error {
	if receipt.To == nil {
		return nil
	}
	to := *receipt.To

	f.mu.RLock()
	_, waiting := f.state.beingFunded[to]
	f.mu.RUnlock()
	if !waiting {
		f.lg.Debug().Str("tx", receipt.TxHash.Hex()).Msg("irrelevant transaction")
		return nil
	}

	balance, err := f.balance(ctx, to)
	if err != nil {
		return err
	}
	if balance.Cmp(f.cfg.MinFundingBalance()) < 0 {
		f.lg.Warn().
			Str("address", to.Hex()).
			Str("balance", wallet.FormatEther(balance)).
			Msg("balance too low to make client available")
		return nil
	}

	promoted := false
	f.update(func(s *State) {
		client, ok := s.beingFunded[to]
		if !ok {
			return
		}
		if !s.queue.RemoveFirstFunding(to) {
			f.lg.Warn().Str("address", to.Hex()).Msg("funding request not found in queue")
		}
		delete(s.beingFunded, to)
		s.pool.Push(balance, client)
		promoted = true
	})
	if !promoted {
		f.lg.Debug().Str("address", to.Hex()).Msg("client already available")
		return nil
	}

	f.lg.Info().Str("address", to.Hex()).Str("balance", wallet.FormatEther(balance)).Msg("funded client with external transfer")
	f.emit(ctx, events.ClientFunded, events.Funded{Address: to.Hex(), Balance: balance.String(), Via: "external"})
	return nil
}

// settleTransfer frees the sender of a mined inflight transfer with its new balance. A
// failed transfer is queued again; a successful funding transfer also puts the funded
// client into service.
func (f *Faucet) settleTransfer(ctx context.Context, hash common.Hash, t Transfer, receipt *chain.Receipt) error {
	f.lg.Info().Stringer("request", t.Request).Str("status", receipt.Status.String()).Msg("received receipt")

	senderBalance, err := f.balance(ctx, t.Sender.Address())
	if err != nil {
		return err
	}

	var (
		recipient        common.Address
		recipientBalance *big.Int
	)
	if fr, ok := t.Request.(FundingRequest); ok && receipt.Status == chain.StatusSuccess {
		recipient = fr.Recipient
		if recipientBalance, err = f.balance(ctx, recipient); err != nil {
			return err
		}
	}

	settled, funded := false, false
	f.update(func(s *State) {
		if _, ok := s.inflight[hash]; ok {
			delete(s.inflight, hash)
			s.pool.Push(senderBalance, t.Sender)
			if receipt.Status == chain.StatusFailed {
				s.queue.PushBack(t.Request)
			}
			settled = true
		}

		if recipientBalance == nil {
			return
		}
		client, ok := s.beingFunded[recipient]
		if !ok {
			f.lg.Warn().Str("address", recipient.Hex()).Msg("received funding transfer for unknown client")
			return
		}
		delete(s.beingFunded, recipient)
		s.queue.RemoveFirstFunding(recipient)
		s.pool.Push(recipientBalance, client)
		funded = true
	})

	if !settled {
		f.lg.Info().Str("tx", hash.Hex()).Msg("transfer already recovered by timeout sweep")
	}
	if funded {
		f.lg.Info().Str("address", recipient.Hex()).Str("balance", wallet.FormatEther(recipientBalance)).Msg("funded client")
		f.emit(ctx, events.ClientFunded, events.Funded{Address: recipient.Hex(), Balance: recipientBalance.String(), Via: "transfer"})
	}

	metrics.Confirmations.WithLabelValues(receipt.Status.String()).Inc()
	ev := transferEvent(hash, t.Sender.Address(), t.Request, nil)
	switch receipt.Status {
	case chain.StatusSuccess:
		f.emit(ctx, events.TransferConfirmed, ev)
	case chain.StatusFailed:
		f.lg.Warn().Str("tx", hash.Hex()).Stringer("request", t.Request).Msg("transfer failed, will resend")
		f.emit(ctx, events.TransferFailed, ev)
	default:
		f.lg.Warn().Str("tx", hash.Hex()).Msg("transfer has no execution status, not resending")
		f.emit(ctx, events.TransferUnresolved, ev)
	}
	return nil
}
