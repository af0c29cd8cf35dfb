package rng

import (
	"hash/fnv"
	"math/rand"
	"sync"
	"time"
)

type Mode int

const (
	Deterministic Mode = iota
	Real
)

// Stream names used by the mock chain.
const (
	AddrPool   = "addr_pool"
	FromPick   = "from_pick"
	ToPick     = "to_pick"
	Amount     = "amount"
	TxCount    = "tx_count"
	Choose     = "choose_loop_vs_rand"
	BlockNonce = "block_nonce"
)

type Factory struct {
	baseSeed int64
	mode     Mode

	mu      sync.Mutex
	streams map[string]*rand.Rand
}

func New(mode Mode, seed int64) *Factory {
	if mode == Real {
		// seeded from the clock once here, never per draw
		seed = time.Now().UnixNano()
	}
	return &Factory{
		baseSeed: seed,
		mode:     mode,
		streams:  make(map[string]*rand.Rand),
	}
}

// R returns the named stream, creating it on first use. Streams are independent, so
// adding draws to one does not shift the others. A *rand.Rand is not safe for
// concurrent use; hot paths should fetch their streams once and keep them.
func (f *Factory) R(name string) *rand.Rand {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r, ok := f.streams[name]; ok {
		return r
	}
	s := deriveSeed(f.baseSeed, name)
	r := rand.New(rand.NewSource(s))
	f.streams[name] = r
	return r
}

func deriveSeed(base int64, name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64()) ^ base
}
