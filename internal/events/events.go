// Package events carries transfer lifecycle events out of the faucet. Emission is best
// effort; nothing downstream is ever read back by the faucet.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	TransferSubmitted  = "transfer_submitted"
	TransferRejected   = "transfer_rejected"
	TransferConfirmed  = "transfer_confirmed"
	TransferFailed     = "transfer_failed"
	TransferUnresolved = "transfer_unresolved"
	TransferTimeout    = "transfer_timeout"
	ClientFunded       = "client_funded"
)

type Sink interface {
	Emit(ctx context.Context, typ string, v any) error
	Close() error
}

type Envelope struct {
	ID   uuid.UUID       `json:"id"`
	Type string          `json:"type"` // e.g. "transfer_submitted"
	TS   int64           `json:"ts"`   // unix milli
	Data json.RawMessage `json:"data"`
}

// Wrap encodes v into a fresh envelope.
func Wrap(typ string, v any) (Envelope, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		ID:   uuid.New(),
		Type: typ,
		TS:   time.Now().UnixMilli(),
		Data: data,
	}, nil
}

// Transfer is the payload of every transfer_* event. Amounts are decimal wei.
type Transfer struct {
	TxHash    string `json:"tx_hash,omitempty"`
	Kind      string `json:"kind"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount,omitempty"`
	Error     string `json:"error,omitempty"`
}

type Funded struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
	// Via is "transfer" when one of our own funding transfers confirmed, "external"
	// otherwise.
	Via string `json:"via"`
}

type NopSink struct{}

func (NopSink) Emit(context.Context, string, any) error { return nil }
func (NopSink) Close() error                            { return nil }

// MemorySink records envelopes in memory for tests.
type MemorySink struct {
	ch chan Envelope
}

func NewMemorySink(capacity int) *MemorySink {
	return &MemorySink{ch: make(chan Envelope, capacity)}
}

// Emit drops the event when the buffer is full.
func (s *MemorySink) Emit(_ context.Context, typ string, v any) error {
	env, err := Wrap(typ, v)
	if err != nil {
		return err
	}
	select {
	case s.ch <- env:
	default:
	}
	return nil
}

func (s *MemorySink) Close() error { return nil }

// Drain returns everything emitted so far.
func (s *MemorySink) Drain() []Envelope {
	var out []Envelope
	for {
		select {
		case env := <-s.ch:
			out = append(out, env)
		default:
			return out
		}
	}
}

// Types returns the types of Drain's envelopes in order.
func (s *MemorySink) Types() []string {
	var out []string
	for _, env := range s.Drain() {
		out = append(out, env.Type)
	}
	return out
}
