package evm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/chenzhangda16/web3-faucet/internal/chain"
	"github.com/chenzhangda16/web3-faucet/internal/wallet"
)

// transferGas is the intrinsic gas of a plain value transfer, used when the node cannot
// estimate.
const transferGas = 21000

// Signers derives one Signer per account index.
type Signers struct {
	client *Client
	hd     *wallet.HD
}

func NewSigners(client *Client, hd *wallet.HD) *Signers {
	return &Signers{client: client, hd: hd}
}

func (s *Signers) Signer(_ context.Context, index uint32) (chain.Signer, error) {
	key, err := s.hd.Derive(index)
	if err != nil {
		return nil, err
	}
	return &Signer{client: s.client, key: key}, nil
}

// Signer sends legacy value transfers. The nonce is read from the node's pending state
// on every send; a client is never used by two senders at once.
type Signer struct {
	client *Client
	key    wallet.Key
}

func (s *Signer) Address() common.Address { return s.key.Address }

func (s *Signer) Transfer(ctx context.Context, to common.Address, amount *big.Int) (common.Hash, error) {
	nonce, err := s.client.eth.PendingNonceAt(ctx, s.key.Address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pending nonce: %w", err)
	}
	gasPrice, err := s.client.eth.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("gas price: %w", err)
	}

	// Contract wallets may spend more than the intrinsic gas in their receive hook.
	gas, err := s.client.eth.EstimateGas(ctx, ethereum.CallMsg{From: s.key.Address, To: &to, Value: amount})
	if err != nil || gas < transferGas {
		gas = transferGas
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    amount,
		Gas:      gas,
		GasPrice: gasPrice,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(s.client.chainID), s.key.Private)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign: %w", err)
	}
	if err := s.client.eth.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, err
	}
	return signed.Hash(), nil
}
