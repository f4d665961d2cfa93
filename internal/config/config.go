// Package config merges flags, LAUNCHSCOPE_* environment variables, a config
// file and an optional .env file into one Config.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"launchscope/internal/model"
)

// EVMConfig configures the EVM launchpad source.
type EVMConfig struct {
	RPCURL       string
	WSURL        string
	Launchpad    string
	BlockSpan    uint64
	PollInterval time.Duration
}

// SolanaConfig configures the Solana launchpad source.
type SolanaConfig struct {
	RPCURL   string
	WSURL    string
	Program  string
	PageSize int
}

// RPCConfig configures rate limiting and retries for every chain client.
type RPCConfig struct {
	RequestsPerSecond int
	MinInterval       time.Duration
	CallTimeout       time.Duration
	RetryInitial      time.Duration
	RetryMultiplier   float64
	RetryMaxDelay     time.Duration
	MaxRetries        int
}

// BackfillConfig configures historical replay.
type BackfillConfig struct {
	From              uint64
	To                uint64
	Overwrite         bool
	ItemDelay         time.Duration
	Checkpoint        string
	CheckpointEnabled bool
}

// ListenerConfig configures live reconnects.
type ListenerConfig struct {
	ReconnectBase time.Duration
	ReconnectMax  time.Duration
}

// StoreConfig selects persistence backends.
type StoreConfig struct {
	Kind          string
	Out           string
	AuditOut      string
	PostgresDSN   string
	ClickHouseDSN string
	RedisAddr     string
	KafkaBrokers  []string
	KafkaTopic    string
}

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	Chain          string
	EVM            EVMConfig
	Solana         SolanaConfig
	RPC            RPCConfig
	Backfill       BackfillConfig
	Listener       ListenerConfig
	Store          StoreConfig
	TopTransfers   int
	KnownAddresses []string
	FetchMetadata  bool
	MetricsAddr    string
	LogLevel       string
}

// Store kinds.
const (
	StoreMemory   = "memory"
	StoreJSONL    = "jsonl"
	StorePostgres = "postgres"
)

// Load merges config file, environment variables, and flags into Config.
// A .env file in the working directory is loaded first when present.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("LAUNCHSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("chain", "all")
	v.SetDefault("evm-launchpad", "0xF66DeA7b3e897cD44A5a231c61B6B4423d613259")
	v.SetDefault("evm-block-span", uint64(2000))
	v.SetDefault("evm-poll-interval", 12*time.Second)
	v.SetDefault("solana-program", "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P")
	v.SetDefault("solana-page-size", 1000)
	v.SetDefault("rps", 10)
	v.SetDefault("min-interval", 50*time.Millisecond)
	v.SetDefault("call-timeout", 30*time.Second)
	v.SetDefault("retry-initial", 500*time.Millisecond)
	v.SetDefault("retry-multiplier", 2.0)
	v.SetDefault("retry-max-delay", 10*time.Second)
	v.SetDefault("max-retries", 5)
	v.SetDefault("item-delay", 200*time.Millisecond)
	v.SetDefault("checkpoint", "./data/checkpoint.json")
	v.SetDefault("checkpoint-enabled", true)
	v.SetDefault("top-transfers", 10)
	v.SetDefault("reconnect-base", time.Second)
	v.SetDefault("reconnect-max", time.Minute)
	v.SetDefault("store", StoreJSONL)
	v.SetDefault("out", "./data/launches.jsonl")
	v.SetDefault("audit-out", "./data/degradations.jsonl")
	v.SetDefault("kafka-topic", "launches")
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		Chain: strings.ToLower(strings.TrimSpace(v.GetString("chain"))),
		EVM: EVMConfig{
			RPCURL:       v.GetString("evm-rpc"),
			WSURL:        v.GetString("evm-ws"),
			Launchpad:    v.GetString("evm-launchpad"),
			BlockSpan:    v.GetUint64("evm-block-span"),
			PollInterval: v.GetDuration("evm-poll-interval"),
		},
		Solana: SolanaConfig{
			RPCURL:   v.GetString("solana-rpc"),
			WSURL:    v.GetString("solana-ws"),
			Program:  v.GetString("solana-program"),
			PageSize: v.GetInt("solana-page-size"),
		},
		RPC: RPCConfig{
			RequestsPerSecond: v.GetInt("rps"),
			MinInterval:       v.GetDuration("min-interval"),
			CallTimeout:       v.GetDuration("call-timeout"),
			RetryInitial:      v.GetDuration("retry-initial"),
			RetryMultiplier:   v.GetFloat64("retry-multiplier"),
			RetryMaxDelay:     v.GetDuration("retry-max-delay"),
			MaxRetries:        v.GetInt("max-retries"),
		},
		Backfill: BackfillConfig{
			From:              v.GetUint64("from"),
			To:                v.GetUint64("to"),
			Overwrite:         v.GetBool("overwrite"),
			ItemDelay:         v.GetDuration("item-delay"),
			Checkpoint:        v.GetString("checkpoint"),
			CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		},
		Listener: ListenerConfig{
			ReconnectBase: v.GetDuration("reconnect-base"),
			ReconnectMax:  v.GetDuration("reconnect-max"),
		},
		Store: StoreConfig{
			Kind:          strings.ToLower(v.GetString("store")),
			Out:           v.GetString("out"),
			AuditOut:      v.GetString("audit-out"),
			PostgresDSN:   v.GetString("pg-dsn"),
			ClickHouseDSN: v.GetString("clickhouse-dsn"),
			RedisAddr:     v.GetString("redis-addr"),
			KafkaBrokers:  getStringSlice(v, "kafka-brokers"),
			KafkaTopic:    v.GetString("kafka-topic"),
		},
		TopTransfers:   v.GetInt("top-transfers"),
		KnownAddresses: getStringSlice(v, "known-address"),
		FetchMetadata:  v.GetBool("fetch-metadata"),
		MetricsAddr:    v.GetString("metrics-addr"),
		LogLevel:       v.GetString("log-level"),
	}

	return cfg, nil
}

// Chains returns the chains selected by the chain key.
func (c Config) Chains() ([]model.Chain, error) {
	if c.Chain == "" || c.Chain == "all" {
		return []model.Chain{model.ChainEVM, model.ChainSolana}, nil
	}
	chain, err := model.ParseChain(c.Chain)
	if err != nil {
		return nil, err
	}
	return []model.Chain{chain}, nil
}

// Validate checks the settings the selected chains and store need.
func (c Config) Validate() error {
	chains, err := c.Chains()
	if err != nil {
		return err
	}
	for _, chain := range chains {
		switch chain {
		case model.ChainEVM:
			if c.EVM.RPCURL == "" {
				return fmt.Errorf("evm-rpc is required")
			}
			if c.EVM.Launchpad == "" {
				return fmt.Errorf("evm-launchpad is required")
			}
		case model.ChainSolana:
			if c.Solana.RPCURL == "" {
				return fmt.Errorf("solana-rpc is required")
			}
			if c.Solana.Program == "" {
				return fmt.Errorf("solana-program is required")
			}
		}
	}
	if c.RPC.RequestsPerSecond <= 0 {
		return fmt.Errorf("rps must be greater than zero")
	}
	if c.RPC.MaxRetries < 0 {
		return fmt.Errorf("max-retries must not be negative")
	}
	switch c.Store.Kind {
	case StoreMemory:
	case StoreJSONL:
		if c.Store.Out == "" {
			return fmt.Errorf("out is required for the jsonl store")
		}
	case StorePostgres:
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("pg-dsn is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store %q", c.Store.Kind)
	}
	if len(c.Store.KafkaBrokers) > 0 && c.Store.KafkaTopic == "" {
		return fmt.Errorf("kafka-topic is required with kafka-brokers")
	}
	if c.Backfill.To != 0 && c.Backfill.From > c.Backfill.To {
		return fmt.Errorf("from %d is after to %d", c.Backfill.From, c.Backfill.To)
	}
	return nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	return cleanStrings(strings.Split(input, ","))
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
