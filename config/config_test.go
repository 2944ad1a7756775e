package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/BurntSushi/toml"
)

func TestLoadCreatesDefaultConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ValidatorKey == "" {
		t.Fatalf("expected a generated validator key")
	}
	if cfg.WorldID != DefaultWorldID {
		t.Fatalf("unexpected default world id: %s", cfg.WorldID)
	}
	if cfg.TickIntervalMS != DefaultTickIntervalMS {
		t.Fatalf("unexpected default tick interval: %d", cfg.TickIntervalMS)
	}
	if cfg.SlotsPerEpoch != DefaultSlotsPerEpoch {
		t.Fatalf("unexpected default slots per epoch: %d", cfg.SlotsPerEpoch)
	}
	if cfg.SnapshotEveryTicks != DefaultSnapshotEveryTicks {
		t.Fatalf("unexpected default snapshot cadence: %d", cfg.SnapshotEveryTicks)
	}
	if cfg.MempoolCapacity != DefaultMempoolCapacity {
		t.Fatalf("unexpected default mempool capacity: %d", cfg.MempoolCapacity)
	}
	if cfg.MaxActionsPerTick != DefaultMaxActionsPerTick {
		t.Fatalf("unexpected default max actions per tick: %d", cfg.MaxActionsPerTick)
	}
	if err := ValidateConfig(cfg.Global); err != nil {
		t.Fatalf("expected generated defaults to pass validation: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file to be written: %v", err)
	}
}

func TestLoadBackfillsPartialConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `ListenAddress = ":6001"
RPCAddress = ":8080"
DataDir = "./data"
WorldID = "asteroid-belt-1"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.WorldID != "asteroid-belt-1" {
		t.Fatalf("expected WorldID to be preserved, got %s", cfg.WorldID)
	}
	if cfg.ValidatorKey == "" {
		t.Fatalf("expected a generated validator key")
	}
	if cfg.TickIntervalMS != DefaultTickIntervalMS {
		t.Fatalf("unexpected backfilled tick interval: %d", cfg.TickIntervalMS)
	}
	if cfg.MempoolBudget != DefaultMempoolBudget {
		t.Fatalf("unexpected backfilled mempool budget: %d", cfg.MempoolBudget)
	}

	// The backfill must have been persisted, so a second Load sees the
	// same values without generating a new validator key.
	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload config: %v", err)
	}
	if reloaded.ValidatorKey != cfg.ValidatorKey {
		t.Fatalf("expected validator key to be stable across reloads")
	}
}

func TestLoadParsesRewardAndRedeemSections(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `ListenAddress = ":6001"
RPCAddress = ":8080"
DataDir = "./data"
ValidatorKey = "aa"

[Reward]
MinSelfSimCompute = 10
ComputeWeightM1 = 0.5
ComputeWeightM2 = 0.25
StakedCapEnabled = true
StakedCapRatio = 2.0
MinUptimeRatio = 0.9
EpochDurationSeconds = 3600
ComputeWeight = 0.4
StorageWeight = 0.3
UptimeWeight = 0.2
ReliabilityWeight = 0.1

[Redeem]
CreditsToPowerNumerator = 1
CreditsToPowerDenominator = 100
MinRedeemUnit = 50
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Reward.MinSelfSimCompute != 10 || cfg.Reward.ComputeWeightM1 != 0.5 {
		t.Fatalf("unexpected reward params: %+v", cfg.Reward)
	}
	if !cfg.Reward.StakedCapEnabled {
		t.Fatalf("expected staked cap enabled")
	}
	if cfg.Redeem.MinRedeemUnit != 50 || cfg.Redeem.CreditsToPowerDenominator != 100 {
		t.Fatalf("unexpected redeem params: %+v", cfg.Redeem)
	}
}

func TestLoadParsesBootstrapPeers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `ListenAddress = ":6001"
RPCAddress = ":8080"
DataDir = "./data"
ValidatorKey = "aa"
BootstrapPeers = ["seed-1.local:6001", "seed-2.local:6001"]
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if len(cfg.BootstrapPeers) != 2 || cfg.BootstrapPeers[0] != "seed-1.local:6001" {
		t.Fatalf("unexpected bootstrap peers: %v", cfg.BootstrapPeers)
	}
}

func TestConfigRoundTripsThroughTOML(t *testing.T) {
	cfg := Config{
		ListenAddress: ":6001",
		WorldID:       "w1",
		Global:        defaultGlobal(),
	}
	path := filepath.Join(t.TempDir(), "roundtrip.toml")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		f.Close()
		t.Fatalf("encode config: %v", err)
	}
	f.Close()

	var decoded Config
	if _, err := toml.DecodeFile(path, &decoded); err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if decoded.WorldID != "w1" {
		t.Fatalf("unexpected world id after round trip: %s", decoded.WorldID)
	}
	if err := ValidateConfig(decoded.Global); err != nil {
		t.Fatalf("expected round-tripped global defaults to validate: %v", err)
	}
}
