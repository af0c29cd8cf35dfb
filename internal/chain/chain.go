// Package chain defines what the faucet needs from a blockchain node, independent of
// the backend that provides it (go-ethereum JSON-RPC or the bundled mock chain).
package chain

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// ErrNotFound is returned when a block or receipt is not (or no longer) known to the node.
var ErrNotFound = errors.New("chain: not found")

// Status is the execution outcome recorded in a receipt.
type Status int

const (
	StatusUnknown Status = iota
	StatusFailed
	StatusSuccess
)

func (s Status) String() string {
	switch s {
	case StatusFailed:
		return "failed"
	case StatusSuccess:
		return "success"
	default:
		return "unknown"
	}
}

type Transaction struct {
	Hash common.Hash
	From common.Address
	// To is nil for contract creations.
	To *common.Address
}

type Block struct {
	Hash         common.Hash
	Number       uint64
	Transactions []Transaction
}

type Receipt struct {
	TxHash      common.Hash
	BlockHash   common.Hash
	BlockNumber uint64
	To          *common.Address
	Status      Status
}

// Reader is the request/response side of a node.
type Reader interface {
	BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error)
	// TransactionReceipt returns ErrNotFound while the transaction is unmined.
	TransactionReceipt(ctx context.Context, hash common.Hash) (*Receipt, error)
	// BlockByHash returns ErrNotFound when the hash is unknown, e.g. after a reorg.
	BlockByHash(ctx context.Context, hash common.Hash) (*Block, error)
}

// Signer is one managed account able to send value transfers.
type Signer interface {
	Address() common.Address
	Transfer(ctx context.Context, to common.Address, amount *big.Int) (common.Hash, error)
}

// SignerSource derives signers at consecutive positions of one seed.
type SignerSource interface {
	Signer(ctx context.Context, index uint32) (Signer, error)
}

// BlockFeed delivers hashes of newly added blocks until the returned subscription
// fails or is unsubscribed. The subscription's Err channel receives the failure
// (or is closed) when the feed ends.
type BlockFeed interface {
	SubscribeBlocks(ctx context.Context, ch chan<- common.Hash) (ethereum.Subscription, error)
}

// Backend bundles everything a faucet needs from one node. Push may be nil.
type Backend struct {
	Reader  Reader
	Signers SignerSource
	Push    BlockFeed
	Poll    BlockFeed
}
