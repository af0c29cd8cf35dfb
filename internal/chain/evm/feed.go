package evm

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"
)

// HeadFeed pushes new block hashes from an eth_subscribe("newHeads") subscription.
type HeadFeed struct {
	eth *ethclient.Client
}

func NewHeadFeed(eth *ethclient.Client) *HeadFeed { return &HeadFeed{eth: eth} }

func (f *HeadFeed) SubscribeBlocks(ctx context.Context, ch chan<- common.Hash) (ethereum.Subscription, error) {
	headers := make(chan *types.Header, 16)
	sub, err := f.eth.SubscribeNewHead(ctx, headers)
	if err != nil {
		return nil, err
	}
	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer sub.Unsubscribe()
		for {
			select {
			case <-quit:
				return nil
			case err := <-sub.Err():
				return err
			case h := <-headers:
				select {
				case ch <- h.Hash():
				case <-quit:
					return nil
				}
			}
		}
	}), nil
}

// PollFeed installs a block filter and polls it for new block hashes.
type PollFeed struct {
	rpc      *rpc.Client
	interval time.Duration
	timeout  time.Duration
}

func NewPollFeed(rc *rpc.Client, interval time.Duration) *PollFeed {
	if interval <= 0 {
		interval = 7 * time.Second
	}
	return &PollFeed{rpc: rc, interval: interval, timeout: 10 * time.Second}
}

// SubscribeBlocks ends the subscription on the first failed poll, e.g. when the node
// dropped the filter; the caller installs a new one.
func (f *PollFeed) SubscribeBlocks(ctx context.Context, ch chan<- common.Hash) (ethereum.Subscription, error) {
	var id string
	if err := f.rpc.CallContext(ctx, &id, "eth_newBlockFilter"); err != nil {
		return nil, err
	}

	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer f.uninstall(id)

		t := time.NewTicker(f.interval)
		defer t.Stop()
		for {
			select {
			case <-quit:
				return nil
			case <-t.C:
			}

			var hashes []common.Hash
			if err := f.call(&hashes, "eth_getFilterChanges", id); err != nil {
				return err
			}
			for _, h := range hashes {
				select {
				case ch <- h:
				case <-quit:
					return nil
				}
			}
		}
	}), nil
}

func (f *PollFeed) call(result any, method string, args ...any) error {
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()
	return f.rpc.CallContext(ctx, result, method, args...)
}

func (f *PollFeed) uninstall(id string) {
	var ok bool
	_ = f.call(&ok, "eth_uninstallFilter", id)
}
