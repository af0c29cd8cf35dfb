package faucet

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chenzhangda16/web3-faucet/internal/chain"
	"github.com/chenzhangda16/web3-faucet/internal/wallet"
)

// fundClients partitions the derived clients. Every client below the desired balance
// is parked in beingFunded with a FundingRequest queued for it; the rest go to the
// pool. The desired balance is 80% of the average, but never less than
// MinFundingBalance.
func (f *Faucet) fundClients(ctx context.Context) error {
	type observed struct {
		balance *big.Int
		client  chain.Signer
	}

	n := f.cfg.NumClients
	clients := make([]observed, 0, n)
	total := new(big.Int)
	for i := 0; i < n; i++ {
		index := f.cfg.FirstAccountIndex + uint32(i)
		client, err := f.backend.Signers.Signer(ctx, index)
		if err != nil {
			return fmt.Errorf("faucet: derive client %d: %w", index, err)
		}
		// Freshly started nodes may fail balance queries for a while.
		bal, err := f.balance(ctx, client.Address())
		if err != nil {
			return err
		}
		f.lg.Info().
			Uint32("index", index).
			Str("address", client.Address().Hex()).
			Str("balance", wallet.FormatEther(bal)).
			Msg("created client")

		total.Add(total, bal)
		clients = append(clients, observed{balance: bal, client: client})
	}

	desired := new(big.Int).Quo(total, big.NewInt(int64(n)))
	desired.Mul(desired, big.NewInt(8))
	desired.Quo(desired, big.NewInt(10))
	if floor := f.cfg.MinFundingBalance(); desired.Cmp(floor) < 0 {
		desired = floor
	}
	f.lg.Info().Str("desired", wallet.FormatEther(desired)).Int("clients", n).Msg("balancing clients")

	managed := make([]common.Address, 0, n)
	f.update(func(s *State) {
		for _, c := range clients {
			addr := c.client.Address()
			managed = append(managed, addr)
			if c.balance.Cmp(desired) < 0 {
				f.lg.Info().Str("address", addr.Hex()).Msg("queuing funding transfer")
				s.queue.PushBack(FundingRequest{Recipient: addr, AverageWalletBalance: desired})
				s.beingFunded[addr] = c.client
				continue
			}
			s.pool.Push(c.balance, c.client)
		}
	})
	f.managed = managed
	return nil
}
