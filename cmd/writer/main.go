package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog/log"

	"github.com/chenzhangda16/web3-faucet/internal/config"
	"github.com/chenzhangda16/web3-faucet/internal/writer"
	"github.com/chenzhangda16/web3-faucet/pkg/obs"
)

func main() {
	obs.Init("writer")

	var (
		brokers = flag.String("brokers", "127.0.0.1:9092", "kafka brokers, comma separated")
		topic   = flag.String("topic", "faucet.events", "event topic")
		group   = flag.String("group", "faucet.writer", "consumer group")
	)
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pg, err := writer.NewPGWriterFromEnv(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("pg init failed")
	}
	defer func() { _ = pg.Close() }()

	if err := pg.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("ensure schema failed")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRange()}
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest

	cg, err := sarama.NewConsumerGroup(config.SplitCSV(*brokers), *group, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("consumer group init failed")
	}
	defer func() { _ = cg.Close() }()

	h := writer.NewHandler(pg)

	log.Info().Str("topic", *topic).Str("group", *group).Str("brokers", *brokers).Msg("writer start")

	for ctx.Err() == nil {
		if err := cg.Consume(ctx, []string{*topic}, h); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				break
			}
			log.Warn().Err(err).Msg("consume failed")
			time.Sleep(300 * time.Millisecond)
		}
	}
	log.Info().Err(ctx.Err()).Msg("writer exit")
}
