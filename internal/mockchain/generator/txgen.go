// Package generator produces background traffic for the mock chain so blocks carry
// transactions the faucet has to ignore.
package generator

import (
	"math/big"
	"math/rand"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chenzhangda16/web3-faucet/internal/mockchain/model"
	"github.com/chenzhangda16/web3-faucet/internal/wallet"
	"github.com/chenzhangda16/web3-faucet/pkg/rng"
)

// NonceFunc returns the nonce the next transaction from addr must carry.
type NonceFunc func(addr common.Address) (uint64, error)

type TxGen struct {
	keys  []wallet.Key
	sinks []common.Address

	rFrom *rand.Rand
	rTo   *rand.Rand
	rAmt  *rand.Rand
}

// NewTxGen sends from keys to either another key or one of sinks. keys must be funded
// at genesis.
func NewTxGen(keys []wallet.Key, sinks []common.Address, rf *rng.Factory) *TxGen {
	return &TxGen{
		keys:  keys,
		sinks: sinks,
		rFrom: rf.R(rng.FromPick),
		rTo:   rf.R(rng.ToPick),
		rAmt:  rf.R(rng.Amount),
	}
}

func (g *TxGen) Senders() []common.Address {
	out := make([]common.Address, len(g.keys))
	for i, k := range g.keys {
		out[i] = k.Address
	}
	return out
}

// amount is between 1 and 1000 gwei.
func (g *TxGen) amount() *big.Int {
	return new(big.Int).Mul(big.NewInt(1+g.rAmt.Int63n(1000)), big.NewInt(1_000_000_000))
}

func (g *TxGen) RandomTx(nonceOf NonceFunc, ts int64) (model.Tx, error) {
	from := g.keys[g.rFrom.Intn(len(g.keys))]

	var to common.Address
	n := len(g.keys) + len(g.sinks)
	for {
		i := g.rTo.Intn(n)
		if i < len(g.keys) {
			to = g.keys[i].Address
		} else {
			to = g.sinks[i-len(g.keys)]
		}
		if to != from.Address || n == 1 {
			break
		}
	}
	return g.sign(from, to, nonceOf, ts)
}

func (g *TxGen) SelfLoopTx(nonceOf NonceFunc, ts int64) (model.Tx, error) {
	a := g.keys[g.rFrom.Intn(len(g.keys))]
	return g.sign(a, a.Address, nonceOf, ts)
}

func (g *TxGen) sign(from wallet.Key, to common.Address, nonceOf NonceFunc, ts int64) (model.Tx, error) {
	nonce, err := nonceOf(from.Address)
	if err != nil {
		return model.Tx{}, err
	}
	return model.SignTx(model.TxBody{
		To:        to,
		Amount:    g.amount(),
		Nonce:     nonce,
		Timestamp: ts,
	}, from.Private)
}
