package evm

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenzhangda16/web3-faucet/internal/chain"
	"github.com/chenzhangda16/web3-faucet/internal/wallet"
)

var testChainID = big.NewInt(31337)

// ethService answers the handful of eth_ methods the backend uses.
type ethService struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int
	nonces   map[common.Address]uint64
	receipts map[common.Hash]map[string]any
	blocks   map[common.Hash]map[string]any
	sent     []*types.Transaction
	changes  [][]common.Hash
	filters  int
	heads    []*types.Header
	sendErr  error

	estimate    uint64
	estimateErr error
	estimated   []map[string]any
}

func newEthService() *ethService {
	return &ethService{
		balances: map[common.Address]*big.Int{},
		nonces:   map[common.Address]uint64{},
		receipts: map[common.Hash]map[string]any{},
		blocks:   map[common.Hash]map[string]any{},
	}
}

func (s *ethService) ChainId() *hexutil.Big { return (*hexutil.Big)(testChainID) }

func (s *ethService) GasPrice() *hexutil.Big { return (*hexutil.Big)(big.NewInt(1_000_000_000)) }

func (s *ethService) EstimateGas(args map[string]any, _ *string) (hexutil.Uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.estimated = append(s.estimated, args)
	if s.estimateErr != nil {
		return 0, s.estimateErr
	}
	if s.estimate == 0 {
		return hexutil.Uint64(transferGas), nil
	}
	return hexutil.Uint64(s.estimate), nil
}

func (s *ethService) GetBalance(addr common.Address, _ string) *hexutil.Big {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.balances[addr]; ok {
		return (*hexutil.Big)(b)
	}
	return (*hexutil.Big)(new(big.Int))
}

func (s *ethService) GetTransactionCount(addr common.Address, _ string) hexutil.Uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return hexutil.Uint64(s.nonces[addr])
}

func (s *ethService) SendRawTransaction(raw hexutil.Bytes) (common.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return common.Hash{}, s.sendErr
	}
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return common.Hash{}, err
	}
	s.sent = append(s.sent, tx)
	return tx.Hash(), nil
}

func (s *ethService) GetTransactionReceipt(hash common.Hash) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.receipts[hash]
}

func (s *ethService) GetBlockByHash(hash common.Hash, _ bool) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocks[hash]
}

func (s *ethService) NewBlockFilter() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters++
	return "0x1"
}

func (s *ethService) GetFilterChanges(id string) ([]common.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != "0x1" {
		return nil, errors.New("filter not found")
	}
	if len(s.changes) == 0 {
		return []common.Hash{}, nil
	}
	next := s.changes[0]
	s.changes = s.changes[1:]
	return next, nil
}

func (s *ethService) UninstallFilter(string) bool { return true }

func (s *ethService) NewHeads(ctx context.Context) (*rpc.Subscription, error) {
	notifier, ok := rpc.NotifierFromContext(ctx)
	if !ok {
		return nil, rpc.ErrNotificationsUnsupported
	}
	sub := notifier.CreateSubscription()
	s.mu.Lock()
	heads := append([]*types.Header(nil), s.heads...)
	s.mu.Unlock()
	go func() {
		for _, h := range heads {
			_ = notifier.Notify(sub.ID, h)
		}
	}()
	return sub, nil
}

func startNode(t *testing.T) (*ethService, *rpc.Client) {
	t.Helper()
	svc := newEthService()
	srv := rpc.NewServer()
	require.NoError(t, srv.RegisterName("eth", svc))
	rc := rpc.DialInProc(srv)
	t.Cleanup(func() {
		rc.Close()
		srv.Stop()
	})
	return svc, rc
}

func TestClient_BalanceAt(t *testing.T) {
	svc, rc := startNode(t)
	addr := common.HexToAddress("0x01")
	svc.balances[addr] = wallet.Ether(7)

	c := NewClient(rc, testChainID)
	bal, err := c.BalanceAt(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, wallet.Ether(7).String(), bal.String())
}

func TestClient_TransactionReceipt(t *testing.T) {
	svc, rc := startNode(t)
	to := common.HexToAddress("0x02")
	ok, failed, legacy := common.Hash{1}, common.Hash{2}, common.Hash{3}
	svc.receipts[ok] = map[string]any{"transactionHash": ok, "blockHash": common.Hash{9}, "blockNumber": "0x5", "to": to, "status": "0x1"}
	svc.receipts[failed] = map[string]any{"transactionHash": failed, "blockNumber": "0x5", "to": to, "status": "0x0"}
	svc.receipts[legacy] = map[string]any{"transactionHash": legacy, "blockNumber": "0x5", "root": common.Hash{7}}

	c := NewClient(rc, testChainID)
	ctx := context.Background()

	r, err := c.TransactionReceipt(ctx, ok)
	require.NoError(t, err)
	assert.Equal(t, chain.StatusSuccess, r.Status)
	assert.Equal(t, uint64(5), r.BlockNumber)
	require.NotNil(t, r.To)
	assert.Equal(t, to, *r.To)

	r, err = c.TransactionReceipt(ctx, failed)
	require.NoError(t, err)
	assert.Equal(t, chain.StatusFailed, r.Status)

	r, err = c.TransactionReceipt(ctx, legacy)
	require.NoError(t, err)
	assert.Equal(t, chain.StatusUnknown, r.Status)
	assert.Nil(t, r.To)

	_, err = c.TransactionReceipt(ctx, common.Hash{4})
	assert.ErrorIs(t, err, chain.ErrNotFound)
}

func TestClient_BlockByHash(t *testing.T) {
	svc, rc := startNode(t)
	bh := common.Hash{0xb}
	to := common.HexToAddress("0x03")
	svc.blocks[bh] = map[string]any{
		"hash":   bh,
		"number": "0x10",
		"transactions": []map[string]any{
			{"hash": common.Hash{1}, "from": common.HexToAddress("0x04"), "to": to, "type": "0x7e"},
			{"hash": common.Hash{2}, "from": common.HexToAddress("0x04"), "to": nil},
		},
	}

	c := NewClient(rc, testChainID)
	b, err := c.BlockByHash(context.Background(), bh)
	require.NoError(t, err)
	assert.Equal(t, uint64(16), b.Number)
	require.Len(t, b.Transactions, 2)
	assert.Equal(t, to, *b.Transactions[0].To)
	assert.Nil(t, b.Transactions[1].To)

	_, err = c.BlockByHash(context.Background(), common.Hash{0xc})
	assert.ErrorIs(t, err, chain.ErrNotFound)
}

func TestSigner_TransferSignsForDerivedAccount(t *testing.T) {
	svc, rc := startNode(t)
	hd, err := wallet.NewHD(wallet.TestMnemonic)
	require.NoError(t, err)

	c := NewClient(rc, testChainID)
	s, err := NewSigners(c, hd).Signer(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"), s.Address())
	svc.nonces[s.Address()] = 4

	to := common.HexToAddress("0x05")
	hash, err := s.Transfer(context.Background(), to, wallet.Ether(2))
	require.NoError(t, err)

	require.Len(t, svc.sent, 1)
	tx := svc.sent[0]
	assert.Equal(t, hash, tx.Hash())
	assert.Equal(t, uint64(4), tx.Nonce())
	assert.Equal(t, uint64(transferGas), tx.Gas())
	assert.Equal(t, wallet.Ether(2).String(), tx.Value().String())
	assert.Equal(t, to, *tx.To())

	from, err := types.Sender(types.LatestSignerForChainID(testChainID), tx)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), from)
}

func TestSigner_TransferUsesGasEstimate(t *testing.T) {
	svc, rc := startNode(t)
	svc.estimate = 45_000
	hd, err := wallet.NewHD(wallet.TestMnemonic)
	require.NoError(t, err)

	s, err := NewSigners(NewClient(rc, testChainID), hd).Signer(context.Background(), 0)
	require.NoError(t, err)
	to := common.HexToAddress("0x06")
	_, err = s.Transfer(context.Background(), to, wallet.Ether(1))
	require.NoError(t, err)

	require.Len(t, svc.sent, 1)
	assert.Equal(t, uint64(45_000), svc.sent[0].Gas())
	require.Len(t, svc.estimated, 1)
	assert.True(t, strings.EqualFold(s.Address().Hex(), svc.estimated[0]["from"].(string)))
	assert.True(t, strings.EqualFold(to.Hex(), svc.estimated[0]["to"].(string)))
}

func TestSigner_TransferFallsBackWhenEstimateFails(t *testing.T) {
	svc, rc := startNode(t)
	svc.estimateErr = errors.New("execution reverted")
	hd, err := wallet.NewHD(wallet.TestMnemonic)
	require.NoError(t, err)

	s, err := NewSigners(NewClient(rc, testChainID), hd).Signer(context.Background(), 0)
	require.NoError(t, err)
	_, err = s.Transfer(context.Background(), common.HexToAddress("0x06"), wallet.Ether(1))
	require.NoError(t, err)

	require.Len(t, svc.sent, 1)
	assert.Equal(t, uint64(transferGas), svc.sent[0].Gas())
}

func TestSigner_TransferReportsRejection(t *testing.T) {
	svc, rc := startNode(t)
	svc.sendErr = errors.New("insufficient funds for gas * price + value")
	hd, err := wallet.NewHD(wallet.TestMnemonic)
	require.NoError(t, err)

	s, err := NewSigners(NewClient(rc, testChainID), hd).Signer(context.Background(), 0)
	require.NoError(t, err)
	_, err = s.Transfer(context.Background(), common.HexToAddress("0x05"), wallet.Ether(1))
	assert.ErrorContains(t, err, "insufficient funds")
}

func TestPollFeed_DeliversFilterChanges(t *testing.T) {
	svc, rc := startNode(t)
	svc.changes = [][]common.Hash{{{1}, {2}}, {}, {{3}}}

	ch := make(chan common.Hash, 8)
	sub, err := NewPollFeed(rc, 5*time.Millisecond).SubscribeBlocks(context.Background(), ch)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	var got []common.Hash
	for len(got) < 3 {
		select {
		case h := <-ch:
			got = append(got, h)
		case err := <-sub.Err():
			t.Fatalf("subscription ended: %v", err)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for hashes")
		}
	}
	assert.Equal(t, []common.Hash{{1}, {2}, {3}}, got)
	assert.Equal(t, 1, svc.filters)
}

func TestHeadFeed_DeliversHeaderHashes(t *testing.T) {
	svc, rc := startNode(t)
	for i := int64(1); i <= 2; i++ {
		svc.heads = append(svc.heads, &types.Header{Number: big.NewInt(i), Difficulty: big.NewInt(0), Time: uint64(i)})
	}

	ch := make(chan common.Hash, 8)
	sub, err := NewHeadFeed(ethclient.NewClient(rc)).SubscribeBlocks(context.Background(), ch)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	for _, want := range svc.heads {
		select {
		case h := <-ch:
			assert.Equal(t, want.Hash(), h)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for head")
		}
	}
}
