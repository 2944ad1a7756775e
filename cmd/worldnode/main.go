package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/eng-cc/agent-world/config"
	"github.com/eng-cc/agent-world/consensus/pos"
	consensusstore "github.com/eng-cc/agent-world/consensus/store"
	"github.com/eng-cc/agent-world/core/engine"
	"github.com/eng-cc/agent-world/core/genesis"
	"github.com/eng-cc/agent-world/core/state"
	"github.com/eng-cc/agent-world/core/types"
	"github.com/eng-cc/agent-world/crypto"
	"github.com/eng-cc/agent-world/distfs"
	"github.com/eng-cc/agent-world/mempool"
	"github.com/eng-cc/agent-world/node"
	"github.com/eng-cc/agent-world/observability/logging"
	"github.com/eng-cc/agent-world/p2p"
	"github.com/eng-cc/agent-world/storage"
	"github.com/eng-cc/agent-world/viewer"
)

func main() {
	configFile := flag.String("config", "./config.toml", "path to the worldnode configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	env := strings.TrimSpace(os.Getenv("NHB_ENV"))
	if env == "" {
		env = "development"
	}
	log := logging.SetupRotatingFile("worldnode", env, filepath.Join(cfg.DataDir, "worldnode.log"), 100, 5, 28)

	if err := run(cfg, log); err != nil {
		log.Error("worldnode exiting", "err", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	if err := config.ValidateConfig(cfg.Global); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	privKeyBytes, err := hex.DecodeString(cfg.ValidatorKey)
	if err != nil {
		return fmt.Errorf("decode validator key: %w", err)
	}
	priv, err := crypto.PrivateKeyFromBytes(privKeyBytes)
	if err != nil {
		return fmt.Errorf("load validator key: %w", err)
	}

	nodeID := types.NodeID(cfg.NodeID)
	if nodeID == "" {
		nodeID = types.NodeID(hex.EncodeToString(priv.PubKey().Bytes()))
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "worldstate"))
	if err != nil {
		return fmt.Errorf("open world database: %w", err)
	}
	defer db.Close()

	world, genesisHead, validators, err := loadOrBootstrapWorld(db, cfg, log)
	if err != nil {
		return err
	}

	stakes := make(map[types.NodeID]uint64, len(validators))
	for _, v := range validators {
		stakes[v.NodeID] = v.Stake
	}

	pool := mempool.New(cfg.MempoolCapacity)
	eng := engine.New(world, pool, engine.Config{
		MaxActionsPerTick:  cfg.MaxActionsPerTick,
		SnapshotEveryTicks: cfg.SnapshotEveryTicks,
		Validators:         stakes,
		RewardParams:       cfg.Reward,
		RedeemParams:       cfg.Redeem,
	}, log)

	blobs := distfs.NewBlobStore(db)

	n, err := node.New(node.Config{
		WorldID:       cfg.WorldID,
		NodeID:        nodeID,
		Engine:        eng,
		Mempool:       pool,
		Validators:    stakes,
		GenesisHead:   genesisHead,
		MempoolBudget: cfg.MempoolBudget,
		Logger:        log,
		Blobs:         blobs,
	})
	if err != nil {
		return fmt.Errorf("construct node: %w", err)
	}

	consensusEngine := pos.NewEngine(cfg.WorldID, nodeID, priv, n)
	for _, v := range validators {
		consensusEngine.BindValidator(v.NodeID, v.PubKey)
	}

	handler := node.NewHandler(n, consensusEngine)

	peerstore, err := p2p.NewPeerstore(filepath.Join(cfg.DataDir, "peerstore"), 0, 0)
	if err != nil {
		return fmt.Errorf("open peerstore: %w", err)
	}

	server := p2p.NewServer(handler, priv, p2p.ServerConfig{
		WorldID:       cfg.WorldID,
		ListenAddress: cfg.ListenAddress,
		ClientVersion: "agent-world/worldnode",
		Seeds:         cfg.BootstrapPeers,
	})
	server.SetPeerstore(peerstore)
	handler.SetServer(server)

	tickInterval := time.Duration(cfg.TickIntervalMS) * time.Millisecond
	loop := node.NewLoop(n, consensusEngine, handler, server, tickInterval, cfg.SlotsPerEpoch)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := server.Start(); err != nil {
			log.Error("p2p server stopped", "err", err)
			stop()
		}
	}()

	var viewerServer *viewer.Server
	if cfg.ViewerAddress != "" {
		viewerServer = viewer.NewServer(viewer.NewHub(log), log, cfg.WorldID, 1)

		viewerListener, err := net.Listen("tcp", cfg.ViewerAddress)
		if err != nil {
			return fmt.Errorf("open viewer listener: %w", err)
		}
		go viewerServer.ListenTCP(viewerListener)
		go func() {
			<-ctx.Done()
			viewerListener.Close()
		}()
	}

	snapshotEvery := tickInterval * time.Duration(cfg.SnapshotEveryTicks)
	if snapshotEvery <= 0 {
		snapshotEvery = time.Minute
	}
	go runSnapshotLoop(ctx, db, eng, n, snapshotEvery, viewerServer, log)

	if cfg.RPCAddress != "" {
		adminRouter := newAdminRouter(cfg.WorldID, nodeID, n, eng, len(stakes))
		if viewerServer != nil {
			adminRouter.PathPrefix("/viewer/").Handler(http.StripPrefix("/viewer", viewerServer.Router()))
		}
		go runAdminServer(ctx, cfg.RPCAddress, adminRouter, log)
	}

	log.Info("worldnode running", "world_id", cfg.WorldID, "node_id", string(nodeID), "listen", cfg.ListenAddress)
	loop.Run(ctx)
	log.Info("worldnode shutting down")

	if err := saveWorldState(db, eng, n.LastHead()); err != nil {
		log.Error("final world snapshot failed", "err", err)
	}
	return nil
}

// runSnapshotLoop periodically persists the running World so a restart can
// resume from the last completed tick instead of replaying genesis. When a
// viewer server is active it also broadcasts the same snapshot as a wire
// Frame: core/engine does not yet surface per-tick emitted events to callers
// outside Step, so this is periodic full-snapshot streaming rather than true
// live per-event streaming (see DESIGN.md's viewer section).
func runSnapshotLoop(ctx context.Context, db storage.Database, eng *engine.Engine, n *node.Node, every time.Duration, vs *viewer.Server, log *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := saveWorldState(db, eng, n.LastHead()); err != nil {
				log.Error("periodic world snapshot failed", "err", err)
			}
			if vs != nil {
				publishViewerSnapshot(vs, eng, log)
			}
		}
	}
}

// publishViewerSnapshot JSON-encodes the current World and broadcasts it to
// every connected viewer as a Snapshot frame.
func publishViewerSnapshot(vs *viewer.Server, eng *engine.Engine, log *slog.Logger) {
	snap := eng.Snapshot()
	payload, err := json.Marshal(snap)
	if err != nil {
		log.Error("encode viewer snapshot failed", "err", err)
		return
	}
	f, err := viewer.NewSnapshotFrame(snap.Tick, payload)
	if err != nil {
		log.Error("build viewer snapshot frame failed", "err", err)
		return
	}
	vs.Publish(f)
}

// loadOrBootstrapWorld restores a previously persisted World and validator
// set, or builds both fresh from cfg.GenesisFile when the database is
// empty. On resume the validator set comes from consensus/store alone; the
// genesis file is not read, so edits to it after the first run are not
// detected or logged.
func loadOrBootstrapWorld(db storage.Database, cfg *config.Config, log *slog.Logger) (*state.World, types.Head, []genesis.ValidatorGenesis, error) {
	consensusStore := consensusstore.New(db)

	if world, head, ok, err := loadWorldState(db); err != nil {
		return nil, types.Head{}, nil, fmt.Errorf("load persisted world: %w", err)
	} else if ok {
		storedValidators, ok, err := consensusStore.LoadValidators()
		if err != nil {
			return nil, types.Head{}, nil, fmt.Errorf("load persisted validator set: %w", err)
		}
		if !ok {
			return nil, types.Head{}, nil, fmt.Errorf("world snapshot present without a recorded validator set")
		}
		log.Info("resumed world from persisted snapshot", "tick", world.Tick, "height", head.Height)
		return world, head, validatorGenesisFromStore(storedValidators), nil
	}

	if cfg.GenesisFile == "" {
		return nil, types.Head{}, nil, fmt.Errorf("no persisted world found and GenesisFile is not configured")
	}
	spec, err := genesis.Load(cfg.GenesisFile)
	if err != nil {
		return nil, types.Head{}, nil, fmt.Errorf("load genesis spec: %w", err)
	}
	world, validators, err := genesis.BuildGenesisWorld(spec)
	if err != nil {
		return nil, types.Head{}, nil, fmt.Errorf("build genesis world: %w", err)
	}
	head := types.Head{WorldID: cfg.WorldID, Height: 0, BlockHash: types.GenesisParentHash}

	if err := consensusStore.SaveValidators(validatorStoreFromGenesis(validators)); err != nil {
		return nil, types.Head{}, nil, fmt.Errorf("persist genesis validator set: %w", err)
	}
	log.Info("bootstrapped world from genesis", "world_id", spec.WorldID, "validators", len(validators))
	return world, head, validators, nil
}

func validatorStoreFromGenesis(validators []genesis.ValidatorGenesis) []consensusstore.Validator {
	out := make([]consensusstore.Validator, 0, len(validators))
	for _, v := range validators {
		out = append(out, consensusstore.Validator{
			Address: []byte(v.NodeID),
			PubKey:  v.PubKey,
			Power:   v.Stake,
			Moniker: string(v.NodeID),
		})
	}
	return out
}

func validatorGenesisFromStore(validators []consensusstore.Validator) []genesis.ValidatorGenesis {
	out := make([]genesis.ValidatorGenesis, 0, len(validators))
	for _, v := range validators {
		out = append(out, genesis.ValidatorGenesis{
			NodeID: types.NodeID(v.Address),
			PubKey: v.PubKey,
			Stake:  v.Power,
		})
	}
	return out
}
