// Package client talks to a mock chain node over its HTTP and WebSocket API and
// exposes it as a chain.Backend.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chenzhangda16/web3-faucet/internal/chain"
	"github.com/chenzhangda16/web3-faucet/internal/mockchain/model"
	"github.com/chenzhangda16/web3-faucet/internal/mockchain/rpc"
	"github.com/chenzhangda16/web3-faucet/internal/wallet"
)

type Options struct {
	URL          string // e.g. http://127.0.0.1:8080
	WSURL        string // e.g. ws://127.0.0.1:8080/ws/blocks; empty disables push
	PollInterval time.Duration
	Mnemonic     string
}

type Client struct {
	base string
	hc   *http.Client
}

func New(base string) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		hc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// StatusError is a non-2xx answer from the node.
type StatusError struct {
	Path   string
	Code   int
	Reason string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("mockchain %s status=%d: %s", e.Path, e.Code, e.Reason)
}

func (c *Client) do(req *http.Request, path string, out any) error {
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return chain.ErrNotFound
	}
	if resp.StatusCode >= 400 {
		var body struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &body) != nil || body.Error == "" {
			body.Error = strings.TrimSpace(string(raw))
		}
		return &StatusError{Path: path, Code: resp.StatusCode, Reason: body.Error}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, path, out)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, path, out)
}

func (c *Client) ChainHead(ctx context.Context) (rpc.ChainHead, error) {
	var out rpc.ChainHead
	err := c.getJSON(ctx, "/chain/head", &out)
	return out, err
}

func (c *Client) BlockByNumber(ctx context.Context, n uint64) (model.Block, error) {
	var blk model.Block
	err := c.getJSON(ctx, "/block/by-number/"+strconv.FormatUint(n, 10), &blk)
	return blk, err
}

func (c *Client) Account(ctx context.Context, addr common.Address) (rpc.AccountResp, error) {
	var out rpc.AccountResp
	err := c.getJSON(ctx, "/account/"+addr.Hex(), &out)
	return out, err
}

func (c *Client) SendTx(ctx context.Context, tx model.Tx) (common.Hash, error) {
	var out rpc.SendTxResp
	if err := c.postJSON(ctx, "/tx", tx, &out); err != nil {
		return common.Hash{}, err
	}
	return out.Hash, nil
}

// -------------------- chain.Reader --------------------

func (c *Client) BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error) {
	acct, err := c.Account(ctx, addr)
	if err != nil {
		return nil, err
	}
	bal, ok := new(big.Int).SetString(acct.Balance, 10)
	if !ok {
		return nil, fmt.Errorf("mockchain: bad balance %q", acct.Balance)
	}
	return bal, nil
}

func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*chain.Receipt, error) {
	var r model.Receipt
	if err := c.getJSON(ctx, "/tx/"+hash.Hex()+"/receipt", &r); err != nil {
		return nil, err
	}
	to := r.To
	return &chain.Receipt{
		TxHash:      r.TxHash,
		BlockHash:   r.BlockHash,
		BlockNumber: r.BlockNumber,
		To:          &to,
		Status:      status(r.Status),
	}, nil
}

func (c *Client) BlockByHash(ctx context.Context, hash common.Hash) (*chain.Block, error) {
	var blk model.Block
	if err := c.getJSON(ctx, "/block/by-hash/"+hash.Hex(), &blk); err != nil {
		return nil, err
	}
	out := &chain.Block{
		Hash:         blk.Hash,
		Number:       blk.Header.Number,
		Transactions: make([]chain.Transaction, 0, len(blk.Txs)),
	}
	for _, tx := range blk.Txs {
		to := tx.TxBody.To
		out.Transactions = append(out.Transactions, chain.Transaction{
			Hash: tx.Hash,
			From: tx.TxBody.From,
			To:   &to,
		})
	}
	return out, nil
}

func status(s string) chain.Status {
	switch s {
	case model.StatusSuccess:
		return chain.StatusSuccess
	case model.StatusFailed:
		return chain.StatusFailed
	default:
		return chain.StatusUnknown
	}
}

// NewBackend checks the node is reachable and wires reader, signers and feeds.
func NewBackend(ctx context.Context, opts Options) (chain.Backend, func(), error) {
	if opts.URL == "" {
		return chain.Backend{}, nil, errors.New("mockchain: url is empty")
	}
	c := New(opts.URL)
	if _, err := c.ChainHead(ctx); err != nil {
		return chain.Backend{}, nil, fmt.Errorf("mockchain: %s unreachable: %w", opts.URL, err)
	}
	hd, err := wallet.NewHD(opts.Mnemonic)
	if err != nil {
		return chain.Backend{}, nil, err
	}

	b := chain.Backend{
		Reader:  c,
		Signers: NewSigners(c, hd),
		Poll:    NewPollFeed(c, opts.PollInterval),
	}
	if opts.WSURL != "" {
		b.Push = NewWSFeed(opts.WSURL)
	}
	return b, func() { c.hc.CloseIdleConnections() }, nil
}
