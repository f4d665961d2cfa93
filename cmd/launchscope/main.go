package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"launchscope/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "launchscope",
		Short:        "Launchpad token launch indexer for EVM and Solana",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	addCommonFlags(root.PersistentFlags())

	backfillCmd := &cobra.Command{
		Use:   "backfill",
		Short: "Replay launchpad history into the launch store",
		RunE:  runBackfill,
	}
	addBackfillFlags(backfillCmd.Flags())
	root.AddCommand(backfillCmd)

	listenCmd := &cobra.Command{
		Use:   "listen",
		Short: "Follow new launches live",
		RunE:  runListen,
	}
	addListenFlags(listenCmd.Flags())
	root.AddCommand(listenCmd)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Backfill from the last checkpoint and keep listening",
		RunE:  runAll,
	}
	addBackfillFlags(runCmd.Flags())
	addListenFlags(runCmd.Flags())
	root.AddCommand(runCmd)

	refreshCmd := &cobra.Command{
		Use:   "refresh",
		Short: "Recompute creator holdings for stored launches",
		RunE:  runRefresh,
	}
	refreshCmd.Flags().Bool("all", false, "refresh every stored launch of the selected chains")
	refreshCmd.Flags().Duration("interval", 0, "repeat --all at this interval, 0 runs once")
	refreshCmd.Flags().String("id", "", "launch id to refresh")
	refreshCmd.Flags().String("token", "", "token address")
	refreshCmd.Flags().String("creator", "", "creator address")
	refreshCmd.Flags().String("initial", "", "creator initial allocation in whole tokens")
	refreshCmd.Flags().String("description", "", "launch description to recover missing fields from")
	refreshCmd.Flags().Uint64("since", 0, "only count transfers after this block or slot (default: the stored launch position)")
	refreshCmd.Flags().String("exclude-tx", "", "launch transaction to leave out of the movement scan")
	root.AddCommand(refreshCmd)

	decodeCmd := &cobra.Command{
		Use:   "decode <base58-data>",
		Short: "Decode a launchpad instruction payload",
		Args:  cobra.ExactArgs(1),
		RunE:  runDecode,
	}
	decodeCmd.Flags().StringSlice("accounts", nil, "instruction accounts in order (comma-separated)")
	root.AddCommand(decodeCmd)

	return root
}

func addCommonFlags(fs *pflag.FlagSet) {
	fs.String("chain", "all", "chain to index (evm, solana, all)")
	fs.String("evm-rpc", "", "EVM RPC URL")
	fs.String("evm-ws", "", "EVM websocket URL for log subscriptions")
	fs.String("evm-launchpad", "", "EVM launchpad contract address")
	fs.Uint64("evm-block-span", 2000, "blocks per eth_getLogs query")
	fs.Duration("evm-poll-interval", 12*time.Second, "EVM poll interval without a websocket")
	fs.String("solana-rpc", "", "Solana RPC URL")
	fs.String("solana-ws", "", "Solana websocket URL, derived from solana-rpc when empty")
	fs.String("solana-program", "", "Solana launchpad program id")
	fs.Int("solana-page-size", 1000, "signatures per getSignaturesForAddress page")
	fs.Int("rps", 10, "RPC requests per second per chain")
	fs.Duration("min-interval", 50*time.Millisecond, "minimum spacing between RPC requests")
	fs.Duration("call-timeout", 30*time.Second, "timeout of a single RPC attempt")
	fs.Duration("retry-initial", 500*time.Millisecond, "initial retry backoff")
	fs.Float64("retry-multiplier", 2, "retry backoff multiplier")
	fs.Duration("retry-max-delay", 10*time.Second, "maximum retry backoff")
	fs.Int("max-retries", 5, "maximum retry attempts")
	fs.Int("top-transfers", 10, "destinations classified per creator")
	fs.StringSlice("known-address", nil, "known addresses as address=label:category (comma-separated)")
	fs.Bool("fetch-metadata", false, "fetch off-chain metadata for launch images")
	fs.String("store", config.StoreJSONL, "launch store (memory, jsonl, postgres)")
	fs.String("out", "./data/launches.jsonl", "launches JSONL path")
	fs.String("audit-out", "./data/degradations.jsonl", "degradations JSONL path")
	fs.String("pg-dsn", "", "Postgres DSN")
	fs.String("clickhouse-dsn", "", "ClickHouse DSN for stats history")
	fs.String("redis-addr", "", "Redis address for the token metadata cache")
	fs.StringSlice("kafka-brokers", nil, "Kafka brokers for launch notifications (comma-separated)")
	fs.String("kafka-topic", "launches", "Kafka topic for launch notifications")
	fs.String("metrics-addr", "", "listen address of the metrics endpoint")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
}

func addBackfillFlags(fs *pflag.FlagSet) {
	fs.Uint64("from", 0, "first block or slot (inclusive), 0 resumes from the checkpoint")
	fs.Uint64("to", 0, "last block or slot (inclusive), 0 means latest")
	fs.Bool("overwrite", false, "replace launches that are already stored")
	fs.Duration("item-delay", 200*time.Millisecond, "pause between backfilled events")
	fs.String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	fs.Bool("checkpoint-enabled", true, "enable checkpointing")
}

func addListenFlags(fs *pflag.FlagSet) {
	fs.Duration("reconnect-base", time.Second, "initial reconnect delay")
	fs.Duration("reconnect-max", time.Minute, "maximum reconnect delay")
}

// setup loads and validates the configuration and builds the logger.
func setup(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// exitErr hides the cancellation error of an interrupted run.
func exitErr(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
