// Package evm is the go-ethereum JSON-RPC backend.
package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/chenzhangda16/web3-faucet/internal/chain"
	"github.com/chenzhangda16/web3-faucet/internal/wallet"
)

type Options struct {
	HTTPURL string
	// WSURL enables the newHeads push feed when set.
	WSURL        string
	PollInterval time.Duration
	Mnemonic     string
}

// Client answers queries over one HTTP connection. Receipts and blocks are decoded
// from the raw JSON so chains with non-standard transaction types still work.
type Client struct {
	eth     *ethclient.Client
	rpc     *rpc.Client
	chainID *big.Int
}

func NewClient(rc *rpc.Client, chainID *big.Int) *Client {
	return &Client{eth: ethclient.NewClient(rc), rpc: rc, chainID: chainID}
}

// Dial connects to url and reads the chain id.
func Dial(ctx context.Context, url string) (*Client, error) {
	rc, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("evm: dial %s: %w", url, err)
	}
	id, err := ethclient.NewClient(rc).ChainID(ctx)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("evm: chain id: %w", err)
	}
	return NewClient(rc, id), nil
}

func (c *Client) Close()            { c.rpc.Close() }
func (c *Client) ChainID() *big.Int { return new(big.Int).Set(c.chainID) }

func (c *Client) BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error) {
	return c.eth.BalanceAt(ctx, addr, nil)
}

type rpcReceipt struct {
	TxHash      common.Hash     `json:"transactionHash"`
	BlockHash   common.Hash     `json:"blockHash"`
	BlockNumber hexutil.Uint64  `json:"blockNumber"`
	To          *common.Address `json:"to"`
	Status      *hexutil.Uint64 `json:"status"`
}

func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*chain.Receipt, error) {
	var raw *rpcReceipt
	if err := c.rpc.CallContext(ctx, &raw, "eth_getTransactionReceipt", hash); err != nil {
		return nil, mapNotFound(err)
	}
	if raw == nil {
		return nil, chain.ErrNotFound
	}
	r := &chain.Receipt{
		TxHash:      raw.TxHash,
		BlockHash:   raw.BlockHash,
		BlockNumber: uint64(raw.BlockNumber),
		To:          raw.To,
		Status:      chain.StatusUnknown,
	}
	// Pre-Byzantium receipts carry a state root instead of a status.
	if raw.Status != nil {
		switch *raw.Status {
		case 1:
			r.Status = chain.StatusSuccess
		case 0:
			r.Status = chain.StatusFailed
		}
	}
	return r, nil
}

type rpcTx struct {
	Hash common.Hash     `json:"hash"`
	From common.Address  `json:"from"`
	To   *common.Address `json:"to"`
}

type rpcBlock struct {
	Hash         common.Hash    `json:"hash"`
	Number       hexutil.Uint64 `json:"number"`
	Transactions []rpcTx        `json:"transactions"`
}

func (c *Client) BlockByHash(ctx context.Context, hash common.Hash) (*chain.Block, error) {
	var raw *rpcBlock
	if err := c.rpc.CallContext(ctx, &raw, "eth_getBlockByHash", hash, true); err != nil {
		return nil, mapNotFound(err)
	}
	if raw == nil {
		return nil, chain.ErrNotFound
	}
	b := &chain.Block{Hash: raw.Hash, Number: uint64(raw.Number)}
	for _, tx := range raw.Transactions {
		b.Transactions = append(b.Transactions, chain.Transaction{Hash: tx.Hash, From: tx.From, To: tx.To})
	}
	return b, nil
}

func mapNotFound(err error) error {
	if errors.Is(err, ethereum.NotFound) {
		return chain.ErrNotFound
	}
	return err
}

// NewBackend dials the node and assembles a chain.Backend signing with keys derived
// from opts.Mnemonic.
func NewBackend(ctx context.Context, opts Options) (chain.Backend, func(), error) {
	c, err := Dial(ctx, opts.HTTPURL)
	if err != nil {
		return chain.Backend{}, nil, err
	}
	hd, err := wallet.NewHD(opts.Mnemonic)
	if err != nil {
		c.Close()
		return chain.Backend{}, nil, err
	}

	b := chain.Backend{
		Reader:  c,
		Signers: NewSigners(c, hd),
		Poll:    NewPollFeed(c.rpc, opts.PollInterval),
	}
	closers := []func(){c.Close}

	if opts.WSURL != "" {
		ws, err := rpc.DialContext(ctx, opts.WSURL)
		if err != nil {
			c.Close()
			return chain.Backend{}, nil, fmt.Errorf("evm: dial %s: %w", opts.WSURL, err)
		}
		b.Push = NewHeadFeed(ethclient.NewClient(ws))
		closers = append(closers, ws.Close)
	}

	return b, func() {
		for _, fn := range closers {
			fn()
		}
	}, nil
}
