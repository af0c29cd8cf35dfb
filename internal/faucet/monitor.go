package faucet

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/chenzhangda16/web3-faucet/internal/chain"
	"github.com/chenzhangda16/web3-faucet/internal/metrics"
	"github.com/chenzhangda16/web3-faucet/internal/retry"
)

// monitorTransactions follows the node's new blocks and reconciles each of their
// transactions. A lost subscription is re-established after ResubscribeBackoff, a
// failed subscribe is retried after ReconnectBackoff, forever.
func (f *Faucet) monitorTransactions(ctx context.Context) error {
	feed, name := f.backend.Poll, "poll"
	if f.backend.Push != nil {
		feed, name = f.backend.Push, "push"
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		hashes := make(chan common.Hash, 64)
		sub, err := feed.SubscribeBlocks(ctx, hashes)
		if err != nil {
			f.lg.Error().Err(err).Str("feed", name).Msg("error connecting to block stream")
			if !sleep(ctx, f.cfg.ReconnectBackoff) {
				return ctx.Err()
			}
			continue
		}
		metrics.MonitorSubscriptions.WithLabelValues(name).Inc()
		f.startMonitoring(ctx, name)

		err = f.consumeBlocks(ctx, sub, hashes)
		sub.Unsubscribe()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.lg.Warn().Err(err).Str("feed", name).Msg("block stream ended, will resubscribe")
		if !sleep(ctx, f.cfg.ResubscribeBackoff) {
			return ctx.Err()
		}
	}
}

func (f *Faucet) startMonitoring(ctx context.Context, feed string) {
	f.mu.Lock()
	first := !f.state.monitoringStarted
	f.state.monitoringStarted = true
	f.mu.Unlock()

	if first {
		f.lg.Info().Str("feed", feed).Msg("transaction monitoring started")
		f.ready.Signal(ctx)
	} else {
		f.lg.Info().Str("feed", feed).Msg("block stream re-established")
	}
}

// consumeBlocks returns when the subscription ends, with its error (nil when the feed
// closed cleanly).
func (f *Faucet) consumeBlocks(ctx context.Context, sub ethereum.Subscription, hashes <-chan common.Hash) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return err
		case h := <-hashes:
			if err := f.handleBlock(ctx, h); err != nil {
				return err
			}
		}
	}
}

// handleBlock reconciles every transaction of the block. A block the node no longer
// knows was reorganized away and is skipped. Only ctx errors are returned.
func (f *Faucet) handleBlock(ctx context.Context, hash common.Hash) error {
	p := f.retryPolicy("block query", func(e *zerolog.Event) { e.Str("block", hash.Hex()) })
	p.Classify = func(err error) retry.Class {
		if errors.Is(err, chain.ErrNotFound) {
			return retry.Fatal
		}
		return retry.Retryable
	}
	block, err := retry.Value(ctx, p, func(ctx context.Context) (*chain.Block, error) {
		return f.backend.Reader.BlockByHash(ctx, hash)
	})
	if errors.Is(err, chain.ErrNotFound) {
		metrics.ReorgDroppedBlocks.Inc()
		f.lg.Warn().Str("block", hash.Hex()).Msg("block not found, dropped by reorg")
		return nil
	}
	if err != nil {
		return err
	}

	f.lg.Debug().Uint64("number", block.Number).Int("txs", len(block.Transactions)).Msg("got block")
	for _, tx := range block.Transactions {
		if err := f.handleTx(ctx, tx); err != nil {
			return err
		}
	}
	return nil
}
