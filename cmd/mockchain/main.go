package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/chenzhangda16/web3-faucet/internal/mockchain/generator"
	"github.com/chenzhangda16/web3-faucet/internal/mockchain/ledger"
	"github.com/chenzhangda16/web3-faucet/internal/mockchain/miner"
	"github.com/chenzhangda16/web3-faucet/internal/mockchain/rpc"
	"github.com/chenzhangda16/web3-faucet/internal/mockchain/store"
	"github.com/chenzhangda16/web3-faucet/internal/wallet"
	"github.com/chenzhangda16/web3-faucet/pkg/obs"
	"github.com/chenzhangda16/web3-faucet/pkg/rng"
)

// noiseFirstIndex keeps background senders clear of the accounts a faucet manages.
const noiseFirstIndex = 1000

func main() {
	obs.Init("mockchain")

	var (
		dbPath   = flag.String("db", "./data/mockchain.db", "rocksdb path; empty keeps the chain in memory")
		rpcAddr  = flag.String("rpc", ":8080", "rpc listen addr")
		mnemonic = flag.String("mnemonic", wallet.TestMnemonic, "seed for prefunded and noise accounts")
		prefund  = flag.Int("prefund", 10, "number of accounts funded at genesis")
		fundEth  = flag.String("prefund-ether", "10000", "genesis balance per prefunded account, in ether")
		noiseAcc = flag.Int("noise-accounts", 20, "background senders, derived from index 1000 on")
		noise    = flag.Int("noise", 5, "max background transfers per block; 0 disables")
		sinks    = flag.Int("sinks", 100, "keyless addresses receiving background transfers")
		det      = flag.Bool("det", false, "reproducible background traffic")
		seed     = flag.Int64("seed", 1, "seed for deterministic generation")
		tick     = flag.Duration("tick", 1*time.Second, "block interval")
	)
	flag.Parse()

	st, err := openStore(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Str("db", *dbPath).Msg("open store")
	}
	defer func() { _ = st.Close() }()

	l, err := ledger.New(st, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("load ledger")
	}

	amount, err := wallet.ParseEther(*fundEth)
	if err != nil {
		log.Fatal().Err(err).Msg("prefund-ether")
	}
	alloc, err := ledger.Prefund(*mnemonic, *prefund, amount)
	if err != nil {
		log.Fatal().Err(err).Msg("prefund")
	}

	rf := rng.New(map[bool]rng.Mode{true: rng.Deterministic, false: rng.Real}[*det], *seed)

	var txgen *generator.TxGen
	if *noise > 0 && *noiseAcc > 0 {
		hd, err := wallet.NewHD(*mnemonic)
		if err != nil {
			log.Fatal().Err(err).Msg("mnemonic")
		}
		keys, err := hd.DeriveRange(noiseFirstIndex, *noiseAcc)
		if err != nil {
			log.Fatal().Err(err).Msg("derive noise accounts")
		}
		for _, k := range keys {
			alloc[k.Address] = wallet.Ether(1000)
		}
		txgen = generator.NewTxGen(keys, generator.GenAddrs(*sinks, rf.R(rng.AddrPool)), rf)
	}

	// no-op when the store already holds a chain
	head, err := l.Genesis(alloc, time.Now().Unix())
	if err != nil {
		log.Fatal().Err(err).Msg("genesis")
	}
	log.Info().
		Str("head_hash", head.Hash.Hex()).
		Uint64("head", head.Header.Number).
		Int("prefunded", *prefund).
		Msg("chain loaded")

	hub := rpc.NewHub()
	m := miner.NewMiner(l, txgen, rf, *tick, *noise, hub)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	srv := &http.Server{
		Addr:              *rpcAddr,
		Handler:           rpc.NewServer(st, l, hub).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	// single writer
	g.Go(func() error { return m.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		log.Info().Str("addr", *rpcAddr).Str("db", *dbPath).Msg("mockchain rpc listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("mockchain stopped")
	}
}

func openStore(path string) (store.Store, error) {
	if path == "" {
		return store.NewMemStore(), nil
	}
	return store.Open(path)
}
