package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/chenzhangda16/web3-faucet/internal/chain"
	"github.com/chenzhangda16/web3-faucet/internal/chain/evm"
	"github.com/chenzhangda16/web3-faucet/internal/chain/ratelimit"
	"github.com/chenzhangda16/web3-faucet/internal/config"
	"github.com/chenzhangda16/web3-faucet/internal/events"
	"github.com/chenzhangda16/web3-faucet/internal/faucet"
	"github.com/chenzhangda16/web3-faucet/internal/intake"
	mockclient "github.com/chenzhangda16/web3-faucet/internal/mockchain/client"
	"github.com/chenzhangda16/web3-faucet/internal/web"
	"github.com/chenzhangda16/web3-faucet/pkg/obs"
)

func main() {
	obs.Init("faucet")

	var (
		cfgPath = flag.String("config", "", "YAML config file (optional)")
		envFile = flag.String("env", ".env", "dotenv file loaded before FAUCET_* variables are read")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath, *envFile)
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("faucet stopped")
	}
	log.Info().Msg("faucet exit")
}

func run(ctx context.Context, cfg config.Config) error {
	backend, closeBackend, err := dialBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeBackend()

	lim := ratelimit.NewLimiter(cfg.Chain.RateLimit, cfg.Chain.RateBurst)
	backend.Reader = ratelimit.Wrap(backend.Reader, lim)
	backend.Signers = ratelimit.WrapSigners(backend.Signers, lim)

	mailbox := intake.NewMailbox()

	var (
		sink     events.Sink = events.NopSink{}
		consumer *intake.Consumer
	)
	if cfg.Kafka.Enabled() {
		ks, err := events.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.EventTopic, nil)
		if err != nil {
			return fmt.Errorf("kafka sink: %w", err)
		}
		sink = ks

		consumer, err = intake.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Group, cfg.Kafka.RequestTopic, mailbox.In())
		if err != nil {
			_ = sink.Close()
			return fmt.Errorf("kafka consumer: %w", err)
		}
		defer func() { _ = consumer.Close() }()
	}
	defer func() { _ = sink.Close() }()

	log.Info().
		Str("backend", cfg.Chain.Backend).
		Int("clients", cfg.NumClients).
		Str("grant", cfg.GrantAmount).
		Bool("kafka", cfg.Kafka.Enabled()).
		Msg("funding clients")

	f, err := faucet.New(ctx, faucet.Config{
		NumClients:         cfg.NumClients,
		FirstAccountIndex:  cfg.FirstAccountIndex,
		GrantAmount:        cfg.Grant(),
		TransactionTimeout: cfg.TransactionTimeout.D(),
		SweepInterval:      cfg.SweepInterval.D(),
		ReadyFifo:          cfg.ReadyFifo,
	}, backend, mailbox.Out(), faucet.WithSink(sink))
	if err != nil {
		return fmt.Errorf("faucet init: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return mailbox.Run(gctx) })
	g.Go(func() error { return f.Run(gctx) })
	g.Go(func() error {
		return web.NewServer(mailbox.In(), f).ListenAndServe(gctx, fmt.Sprintf(":%d", cfg.Port))
	})
	if consumer != nil {
		g.Go(func() error { return consumer.Run(gctx) })
	}
	return g.Wait()
}

func dialBackend(ctx context.Context, cfg config.Config) (chain.Backend, func(), error) {
	dialCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	switch cfg.Chain.Backend {
	case config.BackendMockchain:
		return mockclient.NewBackend(dialCtx, mockclient.Options{
			URL:          cfg.Chain.HTTPURL,
			WSURL:        cfg.Chain.WSURL,
			PollInterval: cfg.PollInterval.D(),
			Mnemonic:     cfg.Mnemonic,
		})
	default:
		return evm.NewBackend(dialCtx, evm.Options{
			HTTPURL:      cfg.Chain.HTTPURL,
			WSURL:        cfg.Chain.WSURL,
			PollInterval: cfg.PollInterval.D(),
			Mnemonic:     cfg.Mnemonic,
		})
	}
}
