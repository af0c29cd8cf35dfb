package faucet

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrNoRequests means the queue is empty.
	ErrNoRequests = errors.New("faucet: no transfer requests")
	// ErrNoClient means no pooled client can cover the request at the head of the queue.
	ErrNoClient = errors.New("faucet: no client can serve the next request")
)

// RPCSubmitError is returned when the node rejected a transfer. Both the client and
// the request have been put back by the time it is returned.
type RPCSubmitError struct {
	Request TransferRequest
	Sender  common.Address
	Msg     string

	err error
}

func (e *RPCSubmitError) Error() string {
	return fmt.Sprintf("faucet: submit %s from %s: %s", e.Request, e.Sender.Hex(), e.Msg)
}

func (e *RPCSubmitError) Unwrap() error { return e.err }
