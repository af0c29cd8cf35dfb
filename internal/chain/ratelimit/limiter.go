// Package ratelimit throttles and instruments the queries the faucet sends to a node.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"

	"github.com/chenzhangda16/web3-faucet/internal/chain"
	"github.com/chenzhangda16/web3-faucet/internal/metrics"
)

// Limiter wraps a token-bucket rate limiter for RPC calls.
type Limiter struct {
	limiter *rate.Limiter
}

// NewLimiter allows rps requests per second with a burst of burst. rps <= 0 disables
// limiting.
func NewLimiter(rps float64, burst int) *Limiter {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{limiter: rate.NewLimiter(limit, burst)}
}

// Wait blocks until the limiter allows one event, or ctx is done.
// Uses Reserve() to guarantee exactly one token is consumed per call.
func (l *Limiter) Wait(ctx context.Context) error {
	r := l.limiter.Reserve()
	if !r.OK() {
		return fmt.Errorf("rate: cannot reserve token")
	}
	delay := r.Delay()
	if delay > 0 {
		metrics.RPCRateLimitWaits.Inc()
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			r.Cancel()
			return ctx.Err()
		}
	}
	return nil
}

// RecordRPCCall records an RPC call metric with status classification.
func RecordRPCCall(method string, err error) {
	metrics.RPCCalls.WithLabelValues(method, ClassifyRPCError(err)).Inc()
}

// ClassifyRPCError classifies an RPC error into a category.
func ClassifyRPCError(err error) string {
	if err == nil {
		return "ok"
	}
	if errors.Is(err, chain.ErrNotFound) {
		return "not_found"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		return "timeout"
	case strings.Contains(lower, "rate limit") || strings.Contains(lower, "429") || strings.Contains(lower, "too many requests"):
		return "rate_limited"
	case strings.Contains(lower, "500") || strings.Contains(lower, "502") || strings.Contains(lower, "503") || strings.Contains(lower, "internal server error"):
		return "server_error"
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "network is unreachable") || strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "broken pipe") || strings.Contains(lower, "eof"):
		return "network_error"
	default:
		return "client_error"
	}
}

// Reader is a chain.Reader that waits for the limiter before every query and records
// its outcome.
type Reader struct {
	next chain.Reader
	lim  *Limiter
}

func Wrap(next chain.Reader, lim *Limiter) *Reader {
	return &Reader{next: next, lim: lim}
}

func (r *Reader) BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error) {
	if err := r.lim.Wait(ctx); err != nil {
		return nil, err
	}
	bal, err := r.next.BalanceAt(ctx, addr)
	RecordRPCCall("balance", err)
	return bal, err
}

func (r *Reader) TransactionReceipt(ctx context.Context, hash common.Hash) (*chain.Receipt, error) {
	if err := r.lim.Wait(ctx); err != nil {
		return nil, err
	}
	rc, err := r.next.TransactionReceipt(ctx, hash)
	RecordRPCCall("receipt", err)
	return rc, err
}

func (r *Reader) BlockByHash(ctx context.Context, hash common.Hash) (*chain.Block, error) {
	if err := r.lim.Wait(ctx); err != nil {
		return nil, err
	}
	b, err := r.next.BlockByHash(ctx, hash)
	RecordRPCCall("block", err)
	return b, err
}

// Signers hands out signers whose transfers share the reader's limiter. A transfer is
// paced and recorded as one "transfer" call, however many requests the backend needs
// to build and send it.
type Signers struct {
	next chain.SignerSource
	lim  *Limiter
}

func WrapSigners(next chain.SignerSource, lim *Limiter) *Signers {
	return &Signers{next: next, lim: lim}
}

func (s *Signers) Signer(ctx context.Context, index uint32) (chain.Signer, error) {
	sg, err := s.next.Signer(ctx, index)
	if err != nil {
		return nil, err
	}
	return &Signer{next: sg, lim: s.lim}, nil
}

type Signer struct {
	next chain.Signer
	lim  *Limiter
}

func (s *Signer) Address() common.Address { return s.next.Address() }

func (s *Signer) Transfer(ctx context.Context, to common.Address, amount *big.Int) (common.Hash, error) {
	if err := s.lim.Wait(ctx); err != nil {
		return common.Hash{}, err
	}
	h, err := s.next.Transfer(ctx, to, amount)
	RecordRPCCall("transfer", err)
	return h, err
}
