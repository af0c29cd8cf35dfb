package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

type BlockHeader struct {
	Number     uint64      `json:"number"`
	ParentHash common.Hash `json:"parent_hash"`
	Timestamp  int64       `json:"timestamp"`
	TxRoot     common.Hash `json:"tx_root"`
	Nonce      uint64      `json:"nonce"`
}

type Block struct {
	Header BlockHeader `json:"header"`
	Hash   common.Hash `json:"hash"`
	Txs    []Tx        `json:"txs"`
}

type Tx struct {
	Hash      common.Hash   `json:"hash"`
	TxBody    TxBody        `json:"tx_body"`
	Signature hexutil.Bytes `json:"signature"`
	// BlockNum and Status are set once the tx is mined.
	BlockNum uint64 `json:"block_num,omitempty"`
	Status   string `json:"status,omitempty"`
}

type TxBody struct {
	From      common.Address `json:"from"`
	To        common.Address `json:"to"`
	Amount    *big.Int       `json:"amount"`
	Nonce     uint64         `json:"nonce"`
	Timestamp int64          `json:"timestamp"`
}

type Receipt struct {
	TxHash      common.Hash    `json:"tx_hash"`
	BlockHash   common.Hash    `json:"block_hash"`
	BlockNumber uint64         `json:"block_number"`
	From        common.Address `json:"from"`
	To          common.Address `json:"to"`
	Status      string         `json:"status"`
}

type Account struct {
	Balance *big.Int `json:"balance"`
	Nonce   uint64   `json:"nonce"`
}

func (a Account) Copy() Account {
	b := new(big.Int)
	if a.Balance != nil {
		b.Set(a.Balance)
	}
	return Account{Balance: b, Nonce: a.Nonce}
}
