package faucet

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenzhangda16/web3-faucet/internal/chain"
	"github.com/chenzhangda16/web3-faucet/internal/events"
)

func TestHandleTx_FundingConfirmed(t *testing.T) {
	h := newHarness(t, testConfig())
	sender := h.pooled(0, ether(100))
	funded := h.waiting(1, ether(0), ether(40))

	hash, err := h.f.executeTransfer(h.ctx)
	require.NoError(t, err)
	h.custody()

	h.mineAndReconcile(hash, chain.StatusSuccess)

	assert.Empty(t, h.inflight())
	assert.Empty(t, h.beingFunded())
	assert.Empty(t, h.queue())
	pool := h.pool()
	require.Len(t, pool, 2)
	balances := map[string]string{}
	for _, e := range pool {
		balances[e.Address.Hex()] = e.Balance.String()
	}
	assert.Equal(t, ether(50).String(), balances[sender.Address().Hex()])
	assert.Equal(t, ether(50).String(), balances[funded.Address().Hex()])
	assert.ElementsMatch(t,
		[]string{events.TransferSubmitted, events.ClientFunded, events.TransferConfirmed},
		h.sink.Types())
	h.custody()
}

func TestHandleTx_FundingConfirmedDropsQueuedFunding(t *testing.T) {
	h := newHarness(t, testConfig())
	h.pooled(0, ether(100))
	funded := h.waiting(1, ether(0), ether(40))

	hash, err := h.f.executeTransfer(h.ctx)
	require.NoError(t, err)

	grant := FaucetRequest{Recipient: recipient(7), Amount: ether(1)}
	h.enqueue(FundingRequest{Recipient: funded.Address(), AverageWalletBalance: ether(40)})
	h.enqueue(grant)
	require.Len(t, h.queue(), 2)

	h.mineAndReconcile(hash, chain.StatusSuccess)

	assert.Empty(t, h.beingFunded())
	assert.Contains(t, addresses(h.pool()), funded.Address())
	q := h.queue()
	require.Len(t, q, 1, "only the still-queued funding request is dropped")
	assert.Equal(t, grant, q[0])
	h.custody()
}

func TestHandleTx_FaucetConfirmed(t *testing.T) {
	h := newHarness(t, testConfig())
	sender := h.pooled(0, ether(10))
	h.enqueue(FaucetRequest{Recipient: recipient(1), Amount: ether(1)})

	hash, err := h.f.executeTransfer(h.ctx)
	require.NoError(t, err)
	h.mineAndReconcile(hash, chain.StatusSuccess)

	assert.Empty(t, h.inflight())
	assert.Empty(t, h.queue())
	pool := h.pool()
	require.Len(t, pool, 1)
	assert.Equal(t, sender.Address(), pool[0].Address)
	eqWei(t, ether(9), pool[0].Balance, "sender re-enters with its fresh balance")
	eqWei(t, ether(1), h.c.Balance(recipient(1)))
	h.custody()
}

func TestHandleTx_FailedTransferIsRequeued(t *testing.T) {
	h := newHarness(t, testConfig())
	sender := h.pooled(0, ether(10))
	req := FaucetRequest{Recipient: recipient(1), Amount: ether(1)}
	h.enqueue(req)

	hash, err := h.f.executeTransfer(h.ctx)
	require.NoError(t, err)
	h.mineAndReconcile(hash, chain.StatusFailed)

	assert.Empty(t, h.inflight())
	assert.Equal(t, []TransferRequest{req}, h.queue())
	pool := h.pool()
	require.Len(t, pool, 1)
	assert.Equal(t, sender.Address(), pool[0].Address)
	eqWei(t, ether(10), pool[0].Balance)
	assert.Contains(t, h.sink.Types(), events.TransferFailed)
	h.custody()
}

func TestHandleTx_FailedFundingKeepsRecipientWaiting(t *testing.T) {
	h := newHarness(t, testConfig())
	h.pooled(0, ether(100))
	funded := h.waiting(1, ether(0), ether(40))

	hash, err := h.f.executeTransfer(h.ctx)
	require.NoError(t, err)
	h.mineAndReconcile(hash, chain.StatusFailed)

	assert.Equal(t, []common.Address{funded.Address()}, h.beingFunded())
	q := h.queue()
	require.Len(t, q, 1)
	assert.Equal(t, KindFunding, q[0].Kind())
	h.custody()
}

func TestHandleTx_UnknownStatusFreesSenderOnly(t *testing.T) {
	h := newHarness(t, testConfig())
	h.pooled(0, ether(10))
	h.enqueue(FaucetRequest{Recipient: recipient(1), Amount: ether(1)})

	hash, err := h.f.executeTransfer(h.ctx)
	require.NoError(t, err)
	h.mineAndReconcile(hash, chain.StatusUnknown)

	assert.Empty(t, h.inflight())
	assert.Empty(t, h.queue(), "not resent")
	assert.Len(t, h.pool(), 1)
	assert.Contains(t, h.sink.Types(), events.TransferUnresolved)
	h.custody()
}

func TestHandleTx_IrrelevantTransaction(t *testing.T) {
	h := newHarness(t, testConfig())
	h.pooled(0, ether(10))
	h.c.SetBalance(outsider, ether(5))

	hash := h.c.Submit(outsider, recipient(7), ether(1))
	// Receipt queries would fail forever; an irrelevant tx must not issue any.
	h.c.FailReceiptQueries(1 << 30)
	h.c.Mine(chain.StatusSuccess, hash)
	require.NoError(t, h.f.handleTx(h.ctx, h.c.Tx(hash)))

	assert.Len(t, h.pool(), 1)
	assert.Empty(t, h.sink.Types())
	h.custody()
}

func TestHandleTx_RetriesReceipt(t *testing.T) {
	h := newHarness(t, testConfig())
	h.pooled(0, ether(10))
	h.enqueue(FaucetRequest{Recipient: recipient(1), Amount: ether(1)})

	hash, err := h.f.executeTransfer(h.ctx)
	require.NoError(t, err)
	h.c.FailReceiptQueries(3)
	h.c.FailBalanceQueries(2)
	h.mineAndReconcile(hash, chain.StatusSuccess)

	assert.Empty(t, h.inflight())
	h.custody()
}

func TestHandleTx_ExternalFundingPromotesClient(t *testing.T) {
	h := newHarness(t, testConfig())
	h.pooled(0, ether(1))
	waiting := h.waiting(1, ether(0), ether(40))
	grant := FaucetRequest{Recipient: waiting.Address(), Amount: ether(1)}
	h.enqueue(grant)

	h.c.SetBalance(outsider, ether(100))
	hash := h.c.Submit(outsider, waiting.Address(), ether(5))
	h.mineAndReconcile(hash, chain.StatusSuccess)

	assert.Empty(t, h.beingFunded())
	assert.Equal(t, []TransferRequest{grant}, h.queue(), "only the funding request is dropped")
	pool := h.pool()
	require.Len(t, pool, 2)
	assert.Equal(t, waiting.Address(), pool[0].Address)
	eqWei(t, ether(5), pool[0].Balance)
	assert.Equal(t, []string{events.ClientFunded}, h.sink.Types())
	h.custody()
}

func TestHandleTx_ExternalFundingBelowThreshold(t *testing.T) {
	h := newHarness(t, testConfig())
	waiting := h.waiting(0, ether(0), ether(40))

	h.c.SetBalance(outsider, ether(100))
	// MinFundingBalance is 2 ether with a 1 ether grant.
	hash := h.c.Submit(outsider, waiting.Address(), ether(1))
	h.mineAndReconcile(hash, chain.StatusSuccess)

	assert.Len(t, h.beingFunded(), 1)
	assert.Len(t, h.queue(), 1)
	assert.Empty(t, h.pool())
	h.custody()
}

func TestHandleTx_ConfirmationAfterTimeoutRecovery(t *testing.T) {
	cfg := testConfig()
	cfg.TransactionTimeout = 0
	h := newHarness(t, cfg)
	h.pooled(0, ether(100))
	funded := h.waiting(1, ether(0), ether(40))

	hash, err := h.f.executeTransfer(h.ctx)
	require.NoError(t, err)
	h.clock.Advance(time.Second)
	require.NoError(t, h.f.recoverTimedOut(h.ctx))
	require.Len(t, h.queue(), 1, "funding requeued by the sweep")
	h.custody()

	// The original transfer lands anyway: it is now an outside payment to a waiting client.
	h.mineAndReconcile(hash, chain.StatusSuccess)

	assert.Empty(t, h.beingFunded())
	assert.Empty(t, h.queue(), "requeued funding dropped once the client is funded")
	assert.Len(t, h.pool(), 2)
	assert.Contains(t, addresses(h.pool()), funded.Address())
	h.custody()
}

func TestSettleTransfer_SkipsSenderAlreadyRecovered(t *testing.T) {
	cfg := testConfig()
	cfg.TransactionTimeout = 0
	h := newHarness(t, cfg)
	sender := h.pooled(0, ether(10))
	h.enqueue(FaucetRequest{Recipient: recipient(1), Amount: ether(1)})

	first, err := h.f.executeTransfer(h.ctx)
	require.NoError(t, err)
	stale := h.inflight()[first]

	h.clock.Advance(time.Second)
	require.NoError(t, h.f.recoverTimedOut(h.ctx))

	// The requeued request goes out again from the same client.
	second, err := h.f.executeTransfer(h.ctx)
	require.NoError(t, err)
	require.Equal(t, sender.Address(), h.inflight()[second].Sender.Address())

	// A late receipt for the first attempt must not pull the sender out of its new
	// inflight transfer.
	h.c.Mine(chain.StatusSuccess, first)
	receipt, err := h.c.TransactionReceipt(h.ctx, first)
	require.NoError(t, err)
	require.NoError(t, h.f.settleTransfer(h.ctx, first, stale, receipt))

	assert.Contains(t, h.inflight(), second)
	assert.Empty(t, h.pool())
	h.custody()
}
