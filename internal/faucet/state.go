package faucet

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chenzhangda16/web3-faucet/internal/chain"
	"github.com/chenzhangda16/web3-faucet/internal/metrics"
)

// Transfer is a submitted transfer awaiting its receipt.
type Transfer struct {
	Sender      chain.Signer
	Request     TransferRequest
	SubmittedAt time.Time
}

// State is everything the faucet's activities share. Each managed client is owned by
// exactly one of pool, beingFunded or one inflight transfer, except while the executor
// holds it for a submission.
type State struct {
	pool              *ClientPool
	inflight          map[common.Hash]Transfer
	beingFunded       map[common.Address]chain.Signer
	queue             *TransferQueue
	monitoringStarted bool
}

func newState() *State {
	return &State{
		pool:        NewClientPool(),
		inflight:    make(map[common.Hash]Transfer),
		beingFunded: make(map[common.Address]chain.Signer),
		queue:       NewTransferQueue(),
	}
}

func (s *State) observe() {
	metrics.PoolClients.Set(float64(s.pool.Len()))
	metrics.QueueDepth.Set(float64(s.queue.Len()))
	metrics.InflightTransfers.Set(float64(len(s.inflight)))
	metrics.BeingFundedClients.Set(float64(len(s.beingFunded)))
}

// checkCustody verifies that every managed address has exactly one owner and that no
// container holds anything else.
func (s *State) checkCustody(managed []common.Address) error {
	owners := make(map[common.Address]int, len(managed))
	for _, e := range s.pool.Snapshot() {
		owners[e.Address]++
	}
	for addr := range s.beingFunded {
		owners[addr]++
	}
	for _, t := range s.inflight {
		owners[t.Sender.Address()]++
	}

	known := make(map[common.Address]bool, len(managed))
	for _, addr := range managed {
		known[addr] = true
		if n := owners[addr]; n != 1 {
			return fmt.Errorf("client %s has %d owners", addr.Hex(), n)
		}
	}
	for addr := range owners {
		if !known[addr] {
			return fmt.Errorf("unmanaged address %s held", addr.Hex())
		}
	}
	return nil
}

// Status is a point-in-time summary for the status endpoint.
type Status struct {
	PoolClients       int         `json:"pool_clients"`
	QueueDepth        int         `json:"queue_depth"`
	Inflight          int         `json:"inflight"`
	BeingFunded       int         `json:"being_funded"`
	MonitoringStarted bool        `json:"monitoring_started"`
	Pool              []PoolEntry `json:"pool"`
}

func (s *State) status() Status {
	return Status{
		PoolClients:       s.pool.Len(),
		QueueDepth:        s.queue.Len(),
		Inflight:          len(s.inflight),
		BeingFunded:       len(s.beingFunded),
		MonitoringStarted: s.monitoringStarted,
		Pool:              s.pool.Snapshot(),
	}
}
