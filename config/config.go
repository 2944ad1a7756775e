package config

import (
	"encoding/hex"
	"os"

	"github.com/eng-cc/agent-world/crypto"
	"github.com/eng-cc/agent-world/reward"

	"github.com/BurntSushi/toml"
)

// Default tunables applied whenever the corresponding field is left at its
// zero value, either by createDefault or by Load filling gaps in an
// existing file.
const (
	DefaultTickIntervalMS         = 1000
	DefaultSlotsPerEpoch          = 10
	DefaultSnapshotEveryTicks     = 100
	DefaultMempoolCapacity        = 1024
	DefaultMempoolBudget          = 500
	DefaultMaxActionsPerTick      = 64
	DefaultWorldID                = "default"
	defaultGovernanceQuorumBPS        = 5000
	defaultGovernancePassThresholdBPS = 5000
	defaultGovernanceVotingPeriodSecs = 3600
	defaultSlashingMinWindowSecs      = 60
	defaultSlashingMaxWindowSecs      = 3600
	defaultMempoolMaxBytes           = 1 << 20
	defaultBlocksMaxTxs              = 1024
)

// Config is the worldnode daemon's on-disk configuration. It bundles
// networking, storage, and validator identity with the world-runtime and
// reward-subsystem tunables core/engine and consensus/pos need at startup.
type Config struct {
	ListenAddress  string   `toml:"ListenAddress"`
	RPCAddress     string   `toml:"RPCAddress"`
	ViewerAddress  string   `toml:"ViewerAddress"`
	DataDir        string   `toml:"DataDir"`
	ValidatorKey   string   `toml:"ValidatorKey"`
	BootstrapPeers []string `toml:"BootstrapPeers"`

	WorldID     string `toml:"WorldID"`
	NodeID      string `toml:"NodeID"`
	GenesisFile string `toml:"GenesisFile"`

	TickIntervalMS      uint64 `toml:"TickIntervalMS"`
	SlotsPerEpoch       uint64 `toml:"SlotsPerEpoch"`
	SnapshotEveryTicks  uint64 `toml:"SnapshotEveryTicks"`
	MempoolCapacity     int    `toml:"MempoolCapacity"`
	MempoolBudget       int    `toml:"MempoolBudget"`
	MaxActionsPerTick   int    `toml:"MaxActionsPerTick"`

	Reward reward.Params       `toml:"Reward"`
	Redeem reward.RedeemParams `toml:"Redeem"`

	Global Global `toml:"Global"`
}

// Load loads the configuration from the given path, generating a default
// file (with a freshly minted validator key) the first time it is run, and
// backfilling any field a hand-edited file left at its zero value.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	rewrite := false
	if cfg.ValidatorKey == "" {
		key, err := crypto.GeneratePrivateKey()
		if err != nil {
			return nil, err
		}
		cfg.ValidatorKey = hex.EncodeToString(key.Bytes())
		rewrite = true
	}
	if cfg.applyDefaults() {
		rewrite = true
	}

	if rewrite {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, os.ModePerm)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		if err := toml.NewEncoder(f).Encode(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// applyDefaults backfills zero-valued fields with module defaults. It
// reports whether it changed anything, so Load only rewrites the file when
// necessary.
func (cfg *Config) applyDefaults() bool {
	changed := false
	if cfg.WorldID == "" {
		cfg.WorldID = DefaultWorldID
		changed = true
	}
	if cfg.TickIntervalMS == 0 {
		cfg.TickIntervalMS = DefaultTickIntervalMS
		changed = true
	}
	if cfg.SlotsPerEpoch == 0 {
		cfg.SlotsPerEpoch = DefaultSlotsPerEpoch
		changed = true
	}
	if cfg.SnapshotEveryTicks == 0 {
		cfg.SnapshotEveryTicks = DefaultSnapshotEveryTicks
		changed = true
	}
	if cfg.MempoolCapacity == 0 {
		cfg.MempoolCapacity = DefaultMempoolCapacity
		changed = true
	}
	if cfg.MempoolBudget == 0 {
		cfg.MempoolBudget = DefaultMempoolBudget
		changed = true
	}
	if cfg.MaxActionsPerTick == 0 {
		cfg.MaxActionsPerTick = DefaultMaxActionsPerTick
		changed = true
	}
	if cfg.Global == (Global{}) {
		cfg.Global = defaultGlobal()
		changed = true
	}
	return changed
}

func defaultGlobal() Global {
	return Global{
		Governance: Governance{
			QuorumBPS:        defaultGovernanceQuorumBPS,
			PassThresholdBPS: defaultGovernancePassThresholdBPS,
			VotingPeriodSecs: defaultGovernanceVotingPeriodSecs,
		},
		Slashing: Slashing{
			MinWindowSecs: defaultSlashingMinWindowSecs,
			MaxWindowSecs: defaultSlashingMaxWindowSecs,
		},
		Mempool: Mempool{MaxBytes: defaultMempoolMaxBytes},
		Blocks:  Blocks{MaxTxs: defaultBlocksMaxTxs},
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ListenAddress:  ":6001",
		RPCAddress:     ":8080",
		DataDir:        "./nhb-data",
		ValidatorKey:   hex.EncodeToString(key.Bytes()),
		BootstrapPeers: []string{},
	}
	cfg.applyDefaults()

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
