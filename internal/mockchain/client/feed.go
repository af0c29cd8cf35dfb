package client

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/gorilla/websocket"

	"github.com/chenzhangda16/web3-faucet/internal/mockchain/rpc"
)

// WSFeed pushes block hashes from the node's /ws/blocks stream.
type WSFeed struct {
	url    string
	dialer websocket.Dialer
}

func NewWSFeed(url string) *WSFeed {
	return &WSFeed{
		url:    url,
		dialer: websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

func (f *WSFeed) SubscribeBlocks(ctx context.Context, ch chan<- common.Hash) (ethereum.Subscription, error) {
	conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return nil, err
	}

	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer conn.Close()

		heads := make(chan rpc.HeadMsg)
		errc := make(chan error, 1)
		go func() {
			for {
				var m rpc.HeadMsg
				if err := conn.ReadJSON(&m); err != nil {
					errc <- err
					return
				}
				select {
				case heads <- m:
				case <-quit:
					return
				}
			}
		}()

		for {
			select {
			case <-quit:
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second))
				return nil
			case err := <-errc:
				return err
			case m := <-heads:
				select {
				case ch <- m.Hash:
				case <-quit:
					return nil
				}
			}
		}
	}), nil
}

// PollFeed walks /chain/head and reports every block after the head seen at
// subscription time.
type PollFeed struct {
	c        *Client
	interval time.Duration
}

func NewPollFeed(c *Client, interval time.Duration) *PollFeed {
	if interval <= 0 {
		interval = 7 * time.Second
	}
	return &PollFeed{c: c, interval: interval}
}

// SubscribeBlocks ends the subscription on the first failed request.
func (f *PollFeed) SubscribeBlocks(ctx context.Context, ch chan<- common.Hash) (ethereum.Subscription, error) {
	head, err := f.c.ChainHead(ctx)
	if err != nil {
		return nil, err
	}
	last := head.HeadNum

	return event.NewSubscription(func(quit <-chan struct{}) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			select {
			case <-quit:
				cancel()
			case <-ctx.Done():
			}
		}()

		t := time.NewTicker(f.interval)
		defer t.Stop()
		for {
			select {
			case <-quit:
				return nil
			case <-t.C:
			}

			head, err := f.c.ChainHead(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			for n := last + 1; n <= head.HeadNum; n++ {
				blk, err := f.c.BlockByNumber(ctx, n)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return err
				}
				select {
				case ch <- blk.Hash:
				case <-quit:
					return nil
				}
				last = n
			}
		}
	}), nil
}
