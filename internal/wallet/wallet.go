// Package wallet derives the faucet's signing keys from a BIP-39 mnemonic along the
// standard Ethereum path m/44'/60'/0'/0/index.
package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
)

// TestMnemonic is the well-known development mnemonic; its first accounts are prefunded
// by anvil, hardhat and the bundled mock chain.
const TestMnemonic = "test test test test test test test test test test test junk"

var ErrBadMnemonic = errors.New("wallet: invalid mnemonic")

// Key is one derived account.
type Key struct {
	Index   uint32
	Address common.Address
	Private *ecdsa.PrivateKey
}

// HD holds the BIP-32 account node m/44'/60'/0'/0 so deriving many indices only walks
// the last level.
type HD struct {
	account *hdkeychain.ExtendedKey
}

func NewHD(mnemonic string) (*HD, error) {
	mnemonic = strings.Join(strings.Fields(mnemonic), " ")
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrBadMnemonic
	}
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadMnemonic, err)
	}
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("wallet: master key: %w", err)
	}

	node := master
	for _, step := range []uint32{
		hdkeychain.HardenedKeyStart + 44,
		hdkeychain.HardenedKeyStart + 60,
		hdkeychain.HardenedKeyStart + 0,
		0,
	} {
		if node, err = node.Derive(step); err != nil {
			return nil, fmt.Errorf("wallet: derive account node: %w", err)
		}
	}
	return &HD{account: node}, nil
}

func (h *HD) Derive(index uint32) (Key, error) {
	child, err := h.account.Derive(index)
	if err != nil {
		return Key{}, fmt.Errorf("wallet: derive index %d: %w", index, err)
	}
	priv, err := child.ECPrivKey()
	if err != nil {
		return Key{}, fmt.Errorf("wallet: private key %d: %w", index, err)
	}
	key, err := crypto.ToECDSA(priv.Serialize())
	if err != nil {
		return Key{}, fmt.Errorf("wallet: convert key %d: %w", index, err)
	}
	return Key{
		Index:   index,
		Address: crypto.PubkeyToAddress(key.PublicKey),
		Private: key,
	}, nil
}

// DeriveRange derives count keys starting at first.
func (h *HD) DeriveRange(first uint32, count int) ([]Key, error) {
	keys := make([]Key, 0, count)
	for i := 0; i < count; i++ {
		k, err := h.Derive(first + uint32(i))
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}
