package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chenzhangda16/web3-faucet/internal/wallet"
)

// Prefund allocates amount to the first count accounts derived from mnemonic, the way
// local dev nodes fund their test accounts.
func Prefund(mnemonic string, count int, amount *big.Int) (map[common.Address]*big.Int, error) {
	hd, err := wallet.NewHD(mnemonic)
	if err != nil {
		return nil, err
	}
	keys, err := hd.DeriveRange(0, count)
	if err != nil {
		return nil, err
	}
	alloc := make(map[common.Address]*big.Int, len(keys))
	for _, k := range keys {
		alloc[k.Address] = new(big.Int).Set(amount)
	}
	return alloc, nil
}
