package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"launchscope/internal/model"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Chain != "all" || cfg.Store.Kind != StoreJSONL {
		t.Fatalf("unexpected defaults: chain=%s store=%s", cfg.Chain, cfg.Store.Kind)
	}
	if cfg.Solana.Program != "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P" {
		t.Fatalf("program = %s", cfg.Solana.Program)
	}
	if cfg.RPC.MaxRetries != 5 || cfg.RPC.RetryInitial != 500*time.Millisecond {
		t.Fatalf("unexpected retry defaults: %+v", cfg.RPC)
	}
	if cfg.TopTransfers != 10 {
		t.Fatalf("top transfers = %d", cfg.TopTransfers)
	}
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "launchscope.yaml")
	content := "evm-rpc: http://file\nrps: 3\nknown-address:\n  - 0xabc=Desk:exchange\n"
	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("LAUNCHSCOPE_EVM_RPC", "http://env")
	t.Setenv("LAUNCHSCOPE_KAFKA_BROKERS", "a:9092, b:9092")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("rps", 10, "")
	flags.String("solana-rpc", "", "")
	if err := flags.Parse([]string{"--rps=7", "--solana-rpc=http://flag"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load(file, flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.EVM.RPCURL != "http://env" {
		t.Fatalf("env should override file, got %s", cfg.EVM.RPCURL)
	}
	if cfg.RPC.RequestsPerSecond != 7 {
		t.Fatalf("flag should override file, got %d", cfg.RPC.RequestsPerSecond)
	}
	if cfg.Solana.RPCURL != "http://flag" {
		t.Fatalf("solana rpc = %s", cfg.Solana.RPCURL)
	}
	if len(cfg.Store.KafkaBrokers) != 2 || cfg.Store.KafkaBrokers[1] != "b:9092" {
		t.Fatalf("kafka brokers = %v", cfg.Store.KafkaBrokers)
	}
	if len(cfg.KnownAddresses) != 1 || cfg.KnownAddresses[0] != "0xabc=Desk:exchange" {
		t.Fatalf("known addresses = %v", cfg.KnownAddresses)
	}
}

func validConfig() Config {
	return Config{
		Chain:  "all",
		EVM:    EVMConfig{RPCURL: "http://evm", Launchpad: "0xF66DeA7b3e897cD44A5a231c61B6B4423d613259"},
		Solana: SolanaConfig{RPCURL: "http://sol", Program: "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"},
		RPC:    RPCConfig{RequestsPerSecond: 5},
		Store:  StoreConfig{Kind: StoreMemory},
	}
}

func TestValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := map[string]func(*Config){
		"unknown chain":      func(c *Config) { c.Chain = "btc" },
		"missing evm rpc":    func(c *Config) { c.EVM.RPCURL = "" },
		"missing solana rpc": func(c *Config) { c.Solana.RPCURL = "" },
		"zero rps":           func(c *Config) { c.RPC.RequestsPerSecond = 0 },
		"postgres no dsn":    func(c *Config) { c.Store.Kind = StorePostgres },
		"unknown store":      func(c *Config) { c.Store.Kind = "sqlite" },
		"inverted window":    func(c *Config) { c.Backfill.From, c.Backfill.To = 10, 5 },
	}
	for name, mutate := range cases {
		cfg := validConfig()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}

	cfg := validConfig()
	cfg.Chain = "solana"
	cfg.EVM.RPCURL = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("solana only should not need evm rpc: %v", err)
	}
	chains, _ := cfg.Chains()
	if len(chains) != 1 || chains[0] != model.ChainSolana {
		t.Fatalf("chains = %v", chains)
	}
}
