package intake

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenzhangda16/web3-faucet/internal/metrics"
)

func TestMailbox_AcceptsWithoutReader(t *testing.T) {
	m := NewMailbox()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	const n = 10_000
	sent := make(chan struct{})
	go func() {
		for i := 0; i < n; i++ {
			m.In() <- common.BigToAddress(big.NewInt(int64(i + 1)))
		}
		close(sent)
	}()

	select {
	case <-sent:
	case <-time.After(5 * time.Second):
		t.Fatal("senders blocked with nobody reading")
	}
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.RequestBacklog) == n
	}, time.Second, 5*time.Millisecond)

	for i := 0; i < n; i++ {
		got := <-m.Out()
		require.Equal(t, common.BigToAddress(big.NewInt(int64(i+1))), got, "order kept")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
