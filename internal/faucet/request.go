package faucet

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chenzhangda16/web3-faucet/internal/wallet"
)

const (
	KindFaucet  = "faucet"
	KindFunding = "funding"
)

// TransferRequest is a pending value transfer. It is implemented by FaucetRequest and
// FundingRequest only.
type TransferRequest interface {
	To() common.Address
	// RequiredFunds is the minimum sender balance needed to serve the request.
	RequiredFunds() *big.Int
	Kind() string
	String() string
	// sendAmount is the value to transfer given the sender's last known balance.
	sendAmount(senderBalance *big.Int) *big.Int
}

// FaucetRequest is a fixed grant to an outside address.
type FaucetRequest struct {
	Recipient common.Address
	Amount    *big.Int
}

func (r FaucetRequest) To() common.Address { return r.Recipient }
func (r FaucetRequest) Kind() string       { return KindFaucet }

// RequiredFunds is twice the grant so the sender keeps enough left for gas and its own
// next transfer.
func (r FaucetRequest) RequiredFunds() *big.Int {
	return new(big.Int).Lsh(r.Amount, 1)
}

func (r FaucetRequest) sendAmount(*big.Int) *big.Int {
	return new(big.Int).Set(r.Amount)
}

func (r FaucetRequest) String() string {
	return fmt.Sprintf("faucet(to=%s amount=%s)", r.Recipient.Hex(), wallet.FormatEther(r.Amount))
}

// FundingRequest tops up one of the faucet's own clients. The sender gives away half
// of its balance.
type FundingRequest struct {
	Recipient            common.Address
	AverageWalletBalance *big.Int
}

func (r FundingRequest) To() common.Address { return r.Recipient }
func (r FundingRequest) Kind() string       { return KindFunding }

func (r FundingRequest) RequiredFunds() *big.Int {
	return new(big.Int).Set(r.AverageWalletBalance)
}

func (r FundingRequest) sendAmount(senderBalance *big.Int) *big.Int {
	return new(big.Int).Rsh(senderBalance, 1)
}

func (r FundingRequest) String() string {
	return fmt.Sprintf("funding(to=%s avg=%s)", r.Recipient.Hex(), wallet.FormatEther(r.AverageWalletBalance))
}
