package generator

import (
	"math/rand"

	"github.com/ethereum/go-ethereum/common"
)

// GenAddrs returns n pseudo-random addresses nobody holds a key for.
func GenAddrs(n int, r *rand.Rand) []common.Address {
	out := make([]common.Address, n)
	for i := range out {
		_, _ = r.Read(out[i][:])
	}
	return out
}
