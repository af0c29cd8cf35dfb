package intake

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chenzhangda16/web3-faucet/internal/metrics"
)

// Mailbox relays inbound addresses to the faucet without a capacity limit. Senders
// only wait for the relay loop to take the address, never for the faucet.
type Mailbox struct {
	in  chan common.Address
	out chan common.Address
}

func NewMailbox() *Mailbox {
	return &Mailbox{in: make(chan common.Address), out: make(chan common.Address)}
}

func (m *Mailbox) In() chan<- common.Address  { return m.in }
func (m *Mailbox) Out() <-chan common.Address { return m.out }

// Run relays until ctx is done. Addresses still held are dropped with the process.
func (m *Mailbox) Run(ctx context.Context) error {
	var backlog []common.Address
	for {
		var (
			out  chan common.Address
			next common.Address
		)
		if len(backlog) > 0 {
			out, next = m.out, backlog[0]
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case addr := <-m.in:
			backlog = append(backlog, addr)
		case out <- next:
			backlog[0] = common.Address{}
			backlog = backlog[1:]
		}
		metrics.RequestBacklog.Set(float64(len(backlog)))
	}
}
