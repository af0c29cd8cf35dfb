// Package store persists the mock chain: canonical blocks, a hash index, receipts and
// account state.
package store

import (
	"errors"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chenzhangda16/web3-faucet/internal/mockchain/model"
)

var ErrNotFound = errors.New("store: not found")

type Store interface {
	// Head returns the number of the newest block; ok is false on an empty store.
	Head() (n uint64, ok bool, err error)
	BlockByNumber(n uint64) (model.Block, error)
	BlockByHash(h common.Hash) (model.Block, error)
	Receipt(tx common.Hash) (model.Receipt, error)
	// Account returns the zero account for unknown addresses.
	Account(a common.Address) (model.Account, error)
	// AppendBlock writes blk, its receipts and the touched accounts atomically and
	// moves the head to blk.
	AppendBlock(blk model.Block, accounts map[common.Address]model.Account) error
	Close() error
}

type kv interface {
	get(key []byte) ([]byte, bool, error)
}

type batch interface {
	Put(key, value []byte)
}

func writeBlock(b batch, blk model.Block, accounts map[common.Address]model.Account) error {
	raw, err := model.EncodeBlock(blk)
	if err != nil {
		return err
	}
	num := strconv.FormatUint(blk.Header.Number, 10)
	b.Put(KeyBlock(blk.Header.Number), raw)
	b.Put(KeyHash(blk.Hash), []byte(num))

	for _, tx := range blk.Txs {
		r, err := model.EncodeReceipt(model.Receipt{
			TxHash:      tx.Hash,
			BlockHash:   blk.Hash,
			BlockNumber: blk.Header.Number,
			From:        tx.TxBody.From,
			To:          tx.TxBody.To,
			Status:      tx.Status,
		})
		if err != nil {
			return err
		}
		b.Put(KeyTx(tx.Hash), r)
	}

	for addr, acct := range accounts {
		raw, err := model.EncodeAccount(acct)
		if err != nil {
			return err
		}
		b.Put(KeyAcct(addr), raw)
	}

	b.Put(KeyHead(), []byte(num))
	return nil
}

func readHead(s kv) (uint64, bool, error) {
	val, ok, err := s.get(KeyHead())
	if err != nil || !ok {
		return 0, false, err
	}
	n, err := strconv.ParseUint(string(val), 10, 64)
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

func readBlock(s kv, n uint64) (model.Block, error) {
	raw, ok, err := s.get(KeyBlock(n))
	if err != nil {
		return model.Block{}, err
	}
	if !ok {
		return model.Block{}, ErrNotFound
	}
	return model.DecodeBlock(raw)
}

func readBlockByHash(s kv, h common.Hash) (model.Block, error) {
	val, ok, err := s.get(KeyHash(h))
	if err != nil {
		return model.Block{}, err
	}
	if !ok {
		return model.Block{}, ErrNotFound
	}
	n, err := strconv.ParseUint(string(val), 10, 64)
	if err != nil {
		return model.Block{}, err
	}
	return readBlock(s, n)
}

func readReceipt(s kv, h common.Hash) (model.Receipt, error) {
	raw, ok, err := s.get(KeyTx(h))
	if err != nil {
		return model.Receipt{}, err
	}
	if !ok {
		return model.Receipt{}, ErrNotFound
	}
	return model.DecodeReceipt(raw)
}

func readAccount(s kv, a common.Address) (model.Account, error) {
	raw, ok, err := s.get(KeyAcct(a))
	if err != nil {
		return model.Account{}, err
	}
	if !ok {
		return model.Account{}.Copy(), nil
	}
	acct, err := model.DecodeAccount(raw)
	if err != nil {
		return model.Account{}, err
	}
	return acct.Copy(), nil
}
