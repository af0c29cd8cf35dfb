package faucet

import (
	"context"
)

// monitorFaucetRequests turns every inbound address into a grant request.
func (f *Faucet) monitorFaucetRequests(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case addr, ok := <-f.requests:
			if !ok {
				f.lg.Warn().Msg("request channel closed, no more faucet requests")
				return nil
			}
			f.requestTransfer(FaucetRequest{Recipient: addr, Amount: f.cfg.GrantAmount})
		}
	}
}
