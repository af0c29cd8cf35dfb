package store

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chenzhangda16/web3-faucet/internal/mockchain/model"
)

// MemStore keeps everything in a map. Used by tests and by -db "".
type MemStore struct {
	mu sync.RWMutex
	m  map[string][]byte
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{m: make(map[string][]byte)}
}

func (s *MemStore) get(key []byte) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[string(key)]
	return v, ok, nil
}

func (s *MemStore) Head() (uint64, bool, error)                    { return readHead(s) }
func (s *MemStore) BlockByNumber(n uint64) (model.Block, error)    { return readBlock(s, n) }
func (s *MemStore) BlockByHash(h common.Hash) (model.Block, error) { return readBlockByHash(s, h) }
func (s *MemStore) Receipt(h common.Hash) (model.Receipt, error)   { return readReceipt(s, h) }
func (s *MemStore) Account(a common.Address) (model.Account, error) {
	return readAccount(s, a)
}

type memBatch map[string][]byte

func (b memBatch) Put(key, value []byte) { b[string(key)] = value }

func (s *MemStore) AppendBlock(blk model.Block, accounts map[common.Address]model.Account) error {
	b := memBatch{}
	if err := writeBlock(b, blk, accounts); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range b {
		s.m[k] = v
	}
	return nil
}

func (s *MemStore) Close() error { return nil }
