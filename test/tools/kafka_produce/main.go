// kafka_produce publishes faucet requests, one message per address argument.
package main

import (
	"flag"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog/log"

	"github.com/chenzhangda16/web3-faucet/internal/config"
	"github.com/chenzhangda16/web3-faucet/internal/intake"
	"github.com/chenzhangda16/web3-faucet/pkg/obs"
)

func main() {
	obs.Init("kafka_produce")

	var (
		brokers = flag.String("brokers", "localhost:9092", "kafka brokers, comma separated")
		topic   = flag.String("topic", "faucet.requests", "request topic")
	)
	flag.Parse()
	if flag.NArg() == 0 {
		log.Fatal().Msg("usage: kafka_produce [-brokers b] [-topic t] <address>...")
	}

	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll

	producer, err := sarama.NewSyncProducer(config.SplitCSV(*brokers), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("producer")
	}
	defer producer.Close()

	for _, arg := range flag.Args() {
		addr, err := intake.ParseAddress(arg)
		if err != nil {
			log.Error().Err(err).Str("arg", arg).Msg("skipped")
			continue
		}
		msg := &sarama.ProducerMessage{
			Topic: *topic,
			Key:   sarama.StringEncoder(addr.Hex()),
			Value: sarama.StringEncoder(addr.Hex()),
		}
		partition, offset, err := producer.SendMessage(msg)
		if err != nil {
			log.Fatal().Err(err).Msg("send")
		}
		log.Info().Str("address", addr.Hex()).Int32("partition", partition).Int64("offset", offset).Msg("sent")
	}
}
