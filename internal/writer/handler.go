package writer

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"github.com/chenzhangda16/web3-faucet/internal/events"
	"github.com/chenzhangda16/web3-faucet/pkg/obs"
)

type EventStore interface {
	InsertEvent(ctx context.Context, env events.Envelope) error
}

// Handler is the consumer group handler feeding the event topic into a store.
type Handler struct {
	store EventStore
	lg    zerolog.Logger
}

func NewHandler(store EventStore) *Handler {
	return &Handler{store: store, lg: obs.Logger("writer")}
}

func (h *Handler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *Handler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *Handler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for msg := range claim.Messages() {
		var env events.Envelope
		if err := json.Unmarshal(msg.Value, &env); err != nil || env.Type == "" {
			h.lg.Warn().Err(err).Int64("offset", msg.Offset).Msg("bad envelope")
			sess.MarkMessage(msg, "")
			continue
		}

		if err := h.store.InsertEvent(ctx, env); err != nil {
			// Returning ends the claim; the unmarked message is redelivered after the
			// rebalance.
			h.lg.Error().Err(err).Str("type", env.Type).Msg("insert failed")
			return err
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}
