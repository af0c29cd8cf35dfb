package faucet

import (
	"container/list"

	"github.com/ethereum/go-ethereum/common"
)

// TransferQueue is the FIFO backlog of requests waiting for a client.
type TransferQueue struct {
	l *list.List
}

func NewTransferQueue() *TransferQueue {
	return &TransferQueue{l: list.New()}
}

func (q *TransferQueue) PushBack(req TransferRequest) { q.l.PushBack(req) }

func (q *TransferQueue) Peek() (TransferRequest, bool) {
	e := q.l.Front()
	if e == nil {
		return nil, false
	}
	return e.Value.(TransferRequest), true
}

func (q *TransferQueue) PopFront() (TransferRequest, bool) {
	e := q.l.Front()
	if e == nil {
		return nil, false
	}
	return q.l.Remove(e).(TransferRequest), true
}

// RemoveFirstFunding drops the oldest queued FundingRequest to addr. Faucet requests
// to the same address are left alone.
func (q *TransferQueue) RemoveFirstFunding(addr common.Address) bool {
	for e := q.l.Front(); e != nil; e = e.Next() {
		if fr, ok := e.Value.(FundingRequest); ok && fr.Recipient == addr {
			q.l.Remove(e)
			return true
		}
	}
	return false
}

func (q *TransferQueue) Len() int { return q.l.Len() }

func (q *TransferQueue) Snapshot() []TransferRequest {
	out := make([]TransferRequest, 0, q.l.Len())
	for e := q.l.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(TransferRequest))
	}
	return out
}
