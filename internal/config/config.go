// Package config loads the faucet's settings: built-in defaults, then an optional YAML
// file, then FAUCET_* environment variables (optionally read from a .env file).
package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/chenzhangda16/web3-faucet/internal/wallet"
)

const (
	BackendEVM       = "evm"
	BackendMockchain = "mockchain"
)

type Config struct {
	NumClients        int    `yaml:"num_clients"`
	Mnemonic          string `yaml:"mnemonic"`
	FirstAccountIndex uint32 `yaml:"first_account_index"`
	Port              int    `yaml:"port"`
	// GrantAmount is in ether, e.g. "100" or "0.5".
	GrantAmount        string   `yaml:"grant_amount"`
	TransactionTimeout Duration `yaml:"transaction_timeout"`
	PollInterval       Duration `yaml:"poll_interval"`
	SweepInterval      Duration `yaml:"sweep_interval"`

	Chain ChainConfig `yaml:"chain"`
	Kafka KafkaConfig `yaml:"kafka"`

	ReadyFifo string `yaml:"ready_fifo"`
}

type ChainConfig struct {
	Backend   string  `yaml:"backend"`
	HTTPURL   string  `yaml:"http_url"`
	WSURL     string  `yaml:"ws_url"`
	RateLimit float64 `yaml:"rate_limit"` // requests per second, 0 = unlimited
	RateBurst int     `yaml:"rate_burst"`
}

// KafkaConfig is optional; without brokers the faucet neither consumes requests from
// Kafka nor publishes events.
type KafkaConfig struct {
	Brokers      []string `yaml:"brokers"`
	RequestTopic string   `yaml:"request_topic"`
	EventTopic   string   `yaml:"event_topic"`
	Group        string   `yaml:"group"`
}

func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

func Default() Config {
	return Config{
		NumClients:         10,
		Port:               8111,
		GrantAmount:        "100",
		TransactionTimeout: Duration(300 * time.Second),
		PollInterval:       Duration(7 * time.Second),
		SweepInterval:      Duration(60 * time.Second),
		Chain: ChainConfig{
			Backend:   BackendEVM,
			RateBurst: 10,
		},
		Kafka: KafkaConfig{
			RequestTopic: "faucet.requests",
			EventTopic:   "faucet.events",
			Group:        "faucet",
		},
	}
}

// Load builds the configuration. path may be empty (no YAML file). envFile is loaded
// into the process environment first when it exists; variables already set win.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("load env (%s): %w", envFile, err)
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.NumClients <= 0 {
		errs = append(errs, fmt.Errorf("num_clients must be positive, got %d", c.NumClients))
	}
	if strings.TrimSpace(c.Mnemonic) == "" {
		errs = append(errs, errors.New("mnemonic is required"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port out of range: %d", c.Port))
	}
	if amt, err := wallet.ParseEther(c.GrantAmount); err != nil {
		errs = append(errs, err)
	} else if amt.Sign() == 0 {
		errs = append(errs, errors.New("grant_amount must be positive"))
	}
	if c.Chain.HTTPURL == "" {
		errs = append(errs, errors.New("chain.http_url is required"))
	}
	switch c.Chain.Backend {
	case BackendEVM, BackendMockchain:
	default:
		errs = append(errs, fmt.Errorf("unknown chain.backend %q", c.Chain.Backend))
	}
	if c.PollInterval <= 0 || c.SweepInterval <= 0 {
		errs = append(errs, errors.New("poll_interval and sweep_interval must be positive"))
	}
	if c.Kafka.Enabled() && (c.Kafka.RequestTopic == "" || c.Kafka.EventTopic == "" || c.Kafka.Group == "") {
		errs = append(errs, errors.New("kafka topics and group are required with brokers"))
	}
	return errors.Join(errs...)
}

// Grant is GrantAmount in wei. Only valid after Validate.
func (c Config) Grant() *big.Int {
	amt, err := wallet.ParseEther(c.GrantAmount)
	if err != nil {
		return new(big.Int)
	}
	return amt
}

// MinFundingBalance is twice the grant, in wei.
func (c Config) MinFundingBalance() *big.Int {
	return new(big.Int).Lsh(c.Grant(), 1)
}

func applyEnv(c *Config, lookup func(string) (string, bool)) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *Duration) {
		if v, ok := lookup(key); ok {
			d, err := ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	integer("FAUCET_NUM_CLIENTS", &c.NumClients)
	str("FAUCET_MNEMONIC", &c.Mnemonic)
	if v, ok := lookup("FAUCET_FIRST_ACCOUNT_INDEX"); ok {
		n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 32)
		if err != nil {
			errs = append(errs, fmt.Errorf("FAUCET_FIRST_ACCOUNT_INDEX: %w", err))
		} else {
			c.FirstAccountIndex = uint32(n)
		}
	}
	integer("FAUCET_PORT", &c.Port)
	str("FAUCET_GRANT_AMOUNT", &c.GrantAmount)
	duration("FAUCET_TRANSACTION_TIMEOUT", &c.TransactionTimeout)
	duration("FAUCET_POLL_INTERVAL", &c.PollInterval)
	duration("FAUCET_SWEEP_INTERVAL", &c.SweepInterval)

	str("FAUCET_CHAIN_BACKEND", &c.Chain.Backend)
	str("FAUCET_HTTP_URL", &c.Chain.HTTPURL)
	str("FAUCET_WS_URL", &c.Chain.WSURL)
	if v, ok := lookup("FAUCET_RPC_RATE_LIMIT"); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("FAUCET_RPC_RATE_LIMIT: %w", err))
		} else {
			c.Chain.RateLimit = f
		}
	}
	integer("FAUCET_RPC_RATE_BURST", &c.Chain.RateBurst)

	if v, ok := lookup("FAUCET_KAFKA_BROKERS"); ok {
		c.Kafka.Brokers = SplitCSV(v)
	}
	str("FAUCET_KAFKA_REQUEST_TOPIC", &c.Kafka.RequestTopic)
	str("FAUCET_KAFKA_EVENT_TOPIC", &c.Kafka.EventTopic)
	str("FAUCET_KAFKA_GROUP", &c.Kafka.Group)

	str("FAUCET_READY_FIFO", &c.ReadyFifo)

	return errors.Join(errs...)
}

func SplitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, x := range parts {
		x = strings.TrimSpace(x)
		if x != "" {
			out = append(out, x)
		}
	}
	return out
}
