package client

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chenzhangda16/web3-faucet/internal/chain"
	"github.com/chenzhangda16/web3-faucet/internal/mockchain/model"
	"github.com/chenzhangda16/web3-faucet/internal/wallet"
)

type Signers struct {
	client *Client
	hd     *wallet.HD
}

func NewSigners(c *Client, hd *wallet.HD) *Signers {
	return &Signers{client: c, hd: hd}
}

func (s *Signers) Signer(_ context.Context, index uint32) (chain.Signer, error) {
	key, err := s.hd.Derive(index)
	if err != nil {
		return nil, err
	}
	return &Signer{client: s.client, key: key}, nil
}

type Signer struct {
	client *Client
	key    wallet.Key
}

func (s *Signer) Address() common.Address { return s.key.Address }

func (s *Signer) Transfer(ctx context.Context, to common.Address, amount *big.Int) (common.Hash, error) {
	acct, err := s.client.Account(ctx, s.key.Address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pending nonce: %w", err)
	}
	tx, err := model.SignTx(model.TxBody{
		To:        to,
		Amount:    new(big.Int).Set(amount),
		Nonce:     acct.PendingNonce,
		Timestamp: time.Now().Unix(),
	}, s.key.Private)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign: %w", err)
	}
	return s.client.SendTx(ctx, tx)
}
