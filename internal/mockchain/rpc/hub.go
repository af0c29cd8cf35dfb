package rpc

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chenzhangda16/web3-faucet/internal/mockchain/model"
)

// HeadMsg is what /ws/blocks sends for every new block.
type HeadMsg struct {
	Number    uint64      `json:"number"`
	Hash      common.Hash `json:"hash"`
	Timestamp int64       `json:"timestamp"`
}

// Hub fans new blocks out to WebSocket subscribers. A subscriber whose buffer is full
// is dropped; it sees its connection close and has to reconnect.
type Hub struct {
	mu     sync.Mutex
	subs   map[chan HeadMsg]struct{}
	closed bool
}

const subBuffer = 64

func NewHub() *Hub {
	return &Hub{subs: make(map[chan HeadMsg]struct{})}
}

func (h *Hub) Publish(blk model.Block) {
	msg := HeadMsg{Number: blk.Header.Number, Hash: blk.Hash, Timestamp: blk.Header.Timestamp}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- msg:
		default:
			delete(h.subs, ch)
			close(ch)
		}
	}
}

// subscribe returns nil after Close.
func (h *Hub) subscribe() chan HeadMsg {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	ch := make(chan HeadMsg, subBuffer)
	h.subs[ch] = struct{}{}
	return ch
}

func (h *Hub) unsubscribe(ch chan HeadMsg) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close ends every subscription. Hijacked WebSocket connections are not closed by
// http.Server.Shutdown, so call this on shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}
