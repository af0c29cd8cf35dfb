// kafka_consume tails the faucet event topic and prints one line per envelope.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog/log"

	"github.com/chenzhangda16/web3-faucet/internal/config"
	"github.com/chenzhangda16/web3-faucet/internal/events"
	"github.com/chenzhangda16/web3-faucet/pkg/obs"
)

type Handler struct{}

func (Handler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (Handler) Cleanup(sarama.ConsumerGroupSession) error { return nil }
func (Handler) ConsumeClaim(
	s sarama.ConsumerGroupSession,
	c sarama.ConsumerGroupClaim,
) error {
	for msg := range c.Messages() {
		var env events.Envelope
		if err := json.Unmarshal(msg.Value, &env); err != nil {
			log.Warn().Err(err).Bytes("value", msg.Value).Int64("offset", msg.Offset).Msg("not an envelope")
		} else {
			log.Info().
				Str("type", env.Type).
				Str("id", env.ID.String()).
				RawJSON("data", env.Data).
				Int32("partition", msg.Partition).
				Int64("offset", msg.Offset).
				Msg("event")
		}
		s.MarkMessage(msg, "")
	}
	return nil
}

func main() {
	obs.Init("kafka_consume")

	var (
		brokers = flag.String("brokers", "localhost:9092", "kafka brokers, comma separated")
		topic   = flag.String("topic", "faucet.events", "event topic")
		group   = flag.String("group", "faucet-test_tools", "consumer group")
	)
	flag.Parse()

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_8_0_0
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest

	grp, err := sarama.NewConsumerGroup(config.SplitCSV(*brokers), *group, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("consumer group")
	}
	defer grp.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	for ctx.Err() == nil {
		if err := grp.Consume(ctx, []string{*topic}, Handler{}); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) || ctx.Err() != nil {
				return
			}
			log.Fatal().Err(err).Msg("consume")
		}
	}
}
