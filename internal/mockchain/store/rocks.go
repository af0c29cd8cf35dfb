package store

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/tecbot/gorocksdb"

	"github.com/chenzhangda16/web3-faucet/internal/mockchain/model"
)

type RocksStore struct {
	db *gorocksdb.DB
	ro *gorocksdb.ReadOptions
	wo *gorocksdb.WriteOptions
}

var _ Store = (*RocksStore)(nil)

func Open(path string) (*RocksStore, error) {
	opts := gorocksdb.NewDefaultOptions()
	opts.SetCreateIfMissing(true)

	db, err := gorocksdb.OpenDb(opts, path)
	if err != nil {
		return nil, err
	}

	wo := gorocksdb.NewDefaultWriteOptions()
	wo.SetSync(true)

	return &RocksStore{
		db: db,
		ro: gorocksdb.NewDefaultReadOptions(),
		wo: wo,
	}, nil
}

func (s *RocksStore) Close() error {
	if s.ro != nil {
		s.ro.Destroy()
	}
	if s.wo != nil {
		s.wo.Destroy()
	}
	if s.db != nil {
		s.db.Close()
	}
	return nil
}

func (s *RocksStore) get(key []byte) ([]byte, bool, error) {
	val, err := s.db.Get(s.ro, key)
	if err != nil {
		return nil, false, err
	}
	defer val.Free()

	if !val.Exists() {
		return nil, false, nil
	}
	// val.Data() is owned by RocksDB and invalid after Free.
	return append([]byte(nil), val.Data()...), true, nil
}

func (s *RocksStore) Head() (uint64, bool, error)                    { return readHead(s) }
func (s *RocksStore) BlockByNumber(n uint64) (model.Block, error)    { return readBlock(s, n) }
func (s *RocksStore) BlockByHash(h common.Hash) (model.Block, error) { return readBlockByHash(s, h) }
func (s *RocksStore) Receipt(h common.Hash) (model.Receipt, error)   { return readReceipt(s, h) }
func (s *RocksStore) Account(a common.Address) (model.Account, error) {
	return readAccount(s, a)
}

func (s *RocksStore) AppendBlock(blk model.Block, accounts map[common.Address]model.Account) error {
	wb := gorocksdb.NewWriteBatch()
	defer wb.Destroy()

	if err := writeBlock(wb, blk, accounts); err != nil {
		return err
	}
	return s.db.Write(s.wo, wb)
}
