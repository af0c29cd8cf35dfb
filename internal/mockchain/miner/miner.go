package miner

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/chenzhangda16/web3-faucet/internal/mockchain/generator"
	"github.com/chenzhangda16/web3-faucet/internal/mockchain/ledger"
	"github.com/chenzhangda16/web3-faucet/internal/mockchain/model"
	"github.com/chenzhangda16/web3-faucet/pkg/obs"
	"github.com/chenzhangda16/web3-faucet/pkg/rng"
)

// Publisher is told about every block once it is stored.
type Publisher interface {
	Publish(blk model.Block)
}

type Miner struct {
	ledger *ledger.Ledger
	txgen  *generator.TxGen
	rf     *rng.Factory
	tick   time.Duration
	pub    Publisher

	// maxNoise bounds the background transfers added per block; 0 disables them.
	maxNoise int
	lg       zerolog.Logger
}

// NewMiner builds a miner; txgen may be nil when no background traffic is wanted.
func NewMiner(l *ledger.Ledger, txgen *generator.TxGen, rf *rng.Factory, tick time.Duration, maxNoise int, pub Publisher) *Miner {
	if txgen == nil {
		maxNoise = 0
	}
	return &Miner{
		ledger:   l,
		txgen:    txgen,
		rf:       rf,
		tick:     tick,
		pub:      pub,
		maxNoise: maxNoise,
		lg:       obs.Logger("miner"),
	}
}

func (m *Miner) nonceOf(addr common.Address) (uint64, error) {
	_, n, err := m.ledger.Account(addr)
	return n, err
}

func (m *Miner) addNoise(ts int64) {
	if m.maxNoise <= 0 {
		return
	}
	n := m.rf.R(rng.TxCount).Intn(m.maxNoise + 1)
	for i := 0; i < n; i++ {
		var (
			tx  model.Tx
			err error
		)
		if m.rf.R(rng.Choose).Float64() < 0.1 {
			tx, err = m.txgen.SelfLoopTx(m.nonceOf, ts)
		} else {
			tx, err = m.txgen.RandomTx(m.nonceOf, ts)
		}
		if err == nil {
			err = m.ledger.Submit(tx)
		}
		if err != nil {
			m.lg.Debug().Err(err).Msg("noise tx dropped")
		}
	}
}

// MineOne seals one block at ts and publishes it.
func (m *Miner) MineOne(ts int64) (model.Block, error) {
	m.addNoise(ts)

	blk, err := m.ledger.Seal(ts, m.rf.R(rng.BlockNonce).Uint64())
	if err != nil {
		return model.Block{}, err
	}
	m.lg.Debug().
		Uint64("number", blk.Header.Number).
		Str("hash", blk.Hash.Hex()).
		Int("txs", len(blk.Txs)).
		Msg("mined")
	if m.pub != nil {
		m.pub.Publish(blk)
	}
	return blk, nil
}

func (m *Miner) Run(ctx context.Context) error {
	head, ok := m.ledger.Head()
	if !ok {
		return ledger.ErrNoGenesis
	}
	lastTs := head.Header.Timestamp

	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	m.lg.Info().Uint64("head", head.Header.Number).Dur("tick", m.tick).Msg("mining")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case now := <-ticker.C:
			ts := now.Unix()
			if ts <= lastTs {
				ts = lastTs + 1 // keep timestamps strictly increasing
			}
			if _, err := m.MineOne(ts); err != nil {
				return err
			}
			lastTs = ts
		}
	}
}
