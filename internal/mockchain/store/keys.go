package store

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

const (
	keyHead = "meta:head"
)

func KeyHead() []byte { return []byte(keyHead) }

func KeyBlock(n uint64) []byte {
	return []byte(fmt.Sprintf("block:%020d", n)) // fixed width keeps lexical order = numeric order
}

func KeyHash(h common.Hash) []byte    { return []byte("hash:" + h.Hex()) }
func KeyTx(h common.Hash) []byte      { return []byte("tx:" + h.Hex()) }
func KeyAcct(a common.Address) []byte { return []byte("acct:" + a.Hex()) }
