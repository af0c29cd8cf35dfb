package faucet

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenzhangda16/web3-faucet/internal/chain"
	"github.com/chenzhangda16/web3-faucet/internal/chain/chaintest"
)

func signers(t *testing.T, n int) []chain.Signer {
	c := chaintest.New()
	out := make([]chain.Signer, n)
	for i := range out {
		s, err := c.Signer(context.Background(), uint32(i))
		require.NoError(t, err)
		out[i] = s
	}
	return out
}

func TestClientPool_PopsRichestFirst(t *testing.T) {
	s := signers(t, 3)
	p := NewClientPool()
	p.Push(ether(7), s[0])
	p.Push(ether(10), s[1])
	p.Push(ether(3), s[2])

	bal, c, ok := p.Pop()
	require.True(t, ok)
	eqWei(t, ether(10), bal)
	assert.Equal(t, s[1].Address(), c.Address())

	bal, _, _ = p.Pop()
	eqWei(t, ether(7), bal)
	bal, _, _ = p.Pop()
	eqWei(t, ether(3), bal)

	_, _, ok = p.Pop()
	assert.False(t, ok)
}

func TestClientPool_TieBreaksOnHigherAddress(t *testing.T) {
	s := signers(t, 3)
	p := NewClientPool()
	for _, c := range s {
		p.Push(ether(5), c)
	}
	_, c, _ := p.Pop()
	assert.Equal(t, s[2].Address(), c.Address())
}

func TestClientPool_PushUpdatesExisting(t *testing.T) {
	s := signers(t, 2)
	p := NewClientPool()
	p.Push(ether(10), s[0])
	p.Push(ether(5), s[1])
	p.Push(ether(1), s[0])

	assert.Equal(t, 2, p.Len())
	_, c, _ := p.Pop()
	assert.Equal(t, s[1].Address(), c.Address())
}

func TestClientPool_PushCopiesBalance(t *testing.T) {
	s := signers(t, 1)
	p := NewClientPool()
	bal := ether(4)
	p.Push(bal, s[0])
	bal.SetInt64(0)

	got, _, _ := p.Peek()
	eqWei(t, ether(4), got)
}

func TestClientPool_HasClientFor(t *testing.T) {
	s := signers(t, 1)
	p := NewClientPool()
	req := FaucetRequest{Recipient: recipient(1), Amount: ether(5)}

	assert.False(t, p.HasClientFor(req), "empty pool")

	p.Push(ether(9), s[0])
	assert.False(t, p.HasClientFor(req))

	p.Push(ether(10), s[0])
	assert.True(t, p.HasClientFor(req), "balance equal to required funds is enough")
	assert.Equal(t, 1, p.Len(), "HasClientFor must not remove")
}

func TestClientPool_ManyRandomBalances(t *testing.T) {
	s := signers(t, 50)
	p := NewClientPool()
	for i, c := range s {
		p.Push(big.NewInt(int64((i*37)%50)), c)
	}
	last := big.NewInt(1 << 62)
	for p.Len() > 0 {
		bal, _, _ := p.Pop()
		require.True(t, bal.Cmp(last) <= 0)
		last = bal
	}
}
