// Command node starts a stakechain node.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/tolelom/stakechain/blockchain"
	"github.com/tolelom/stakechain/config"
	"github.com/tolelom/stakechain/crypto/certgen"
	"github.com/tolelom/stakechain/events"
	"github.com/tolelom/stakechain/indexer"
	"github.com/tolelom/stakechain/network"
	"github.com/tolelom/stakechain/rpc"
	"github.com/tolelom/stakechain/storage"
	"github.com/tolelom/stakechain/validator"
	"github.com/tolelom/stakechain/vm"
	"github.com/tolelom/stakechain/wallet"
)

func main() {
	cfgPath := flag.String("config", "config.json", "path to config file")
	keyPath := flag.String("key", "validator.key", "path to keystore file")
	genKey := flag.Bool("genkey", false, "generate a new validator key and exit")
	genCerts := flag.String("gencerts", "", "generate CA + node TLS certs into the given directory and exit (requires node ID from config)")
	flag.Parse()

	// Read keystore password from environment (not CLI flags — they leak via ps).
	password := os.Getenv("TOL_PASSWORD")
	if password == "" {
		log.Println("WARNING: TOL_PASSWORD not set — keystore will use an empty password")
	}

	// ---- generate key mode ----
	if *genKey {
		w, err := wallet.Generate()
		if err != nil {
			log.Fatal(err)
		}
		if err := wallet.SaveKey(*keyPath, password, w.PrivKey()); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("Generated key. Public key (validator address): %s\n", w.PubKey())
		fmt.Printf("Saved to: %s\n", *keyPath)
		return
	}

	// ---- generate certs mode ----
	if *genCerts != "" {
		cfgForCerts, err := loadConfig(*cfgPath)
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		if err := certgen.GenerateAll(*genCerts, cfgForCerts.NodeID, nil); err != nil {
			log.Fatalf("gencerts: %v", err)
		}
		fmt.Printf("Certificates generated in %s for node %q\n", *genCerts, cfgForCerts.NodeID)
		return
	}

	// ---- load config ----
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- load validator key (identifies this node to peers; block
	// production itself is not this node's job) ----
	if _, err := wallet.LoadKey(*keyPath, password); err != nil {
		log.Fatalf("load key: %v", err)
	}

	// ---- open DB ----
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("mkdir data dir: %v", err)
	}
	db, err := storage.NewLevelDB(cfg.DataDir + "/chain")
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	blockStore := storage.NewLevelBlockStore(db)
	state := storage.NewStateDB(db)
	history := storage.NewLevelHistoryStore(db)

	// ---- events ----
	emitter := events.NewEmitter()

	// ---- mempool ----
	mempool := blockchain.NewMempool()

	// ---- blockchain + validator pipeline ----
	// The pipeline needs ExpectedNextBlockType/ElectionHeadHash off the
	// blockchain it validates for, and the blockchain needs the pipeline to
	// validate into: wire them together after construction rather than
	// trying to build both in one step.
	epochCfg := blockchain.Config{
		MacroBlocksPerEpoch:   cfg.MacroBlocksPerEpoch,
		ElectionEpochInterval: cfg.ElectionEpochInterval,
	}
	bc := blockchain.New(blockStore, nil, state, history, epochCfg, nil)
	pipeline := validator.NewPipeline(bc, vm.Default(), cfg.Genesis.NetworkID, cfg.MacroBlocksPerEpoch, cfg.ElectionEpochInterval)
	bc.SetValidator(pipeline)
	bc.SetEmitter(emitter)
	if err := bc.Init(); err != nil {
		log.Fatalf("blockchain init: %v", err)
	}

	// ---- genesis block (if fresh chain) ----
	if bc.Tip() == nil {
		genesisBlock, err := config.BuildGenesisBlock(cfg, state, history)
		if err != nil {
			log.Fatalf("genesis: %v", err)
		}
		if err := bc.CommitGenesis(genesisBlock); err != nil {
			log.Fatalf("commit genesis: %v", err)
		}
		log.Printf("Genesis block committed: %s", genesisBlock.Hash())
	}

	// ---- indexer ----
	idx := indexer.New(db, bc, emitter)

	// ---- TLS ----
	tlsCfg, err := config.LoadTLSConfig(cfg.TLS)
	if err != nil {
		log.Fatalf("tls: %v", err)
	}
	if tlsCfg != nil {
		log.Println("mTLS enabled for P2P")
	}

	// ---- network ----
	p2pAddr := fmt.Sprintf(":%d", cfg.P2PPort)
	node := network.NewNode(cfg.NodeID, p2pAddr, mempool, tlsCfg)
	_ = network.NewSyncer(node, bc)
	macroSyncer := network.NewMacroSyncer(node, bc)
	if err := node.Start(); err != nil {
		log.Fatalf("p2p start: %v", err)
	}
	defer node.Stop()
	log.Printf("P2P listening on %s", p2pAddr)

	// ---- connect to seed peers ----
	for _, sp := range cfg.SeedPeers {
		if err := node.AddPeer(sp.ID, sp.Addr); err != nil {
			log.Printf("seed peer %s (%s): %v", sp.ID, sp.Addr, err)
			continue
		}
		// Trigger macro-block sync with the newly connected peer: fetch
		// macro blocks epoch by epoch first, then fall through to ordinary
		// micro-block sync once the peer has nothing further to offer.
		if peer := node.Peer(sp.ID); peer != nil {
			macroSyncer.InitiateSync(peer)
		}
		log.Printf("Connected to seed peer %s (%s)", sp.ID, sp.Addr)
	}

	// ---- RPC ----
	rpcAddr := fmt.Sprintf(":%d", cfg.RPCPort)
	rpcHandler := rpc.NewHandler(bc, mempool, state, idx, cfg.Genesis.NetworkID)
	rpcServer := rpc.NewServer(rpcAddr, rpcHandler, cfg.RPCAuthToken)
	if err := rpcServer.Start(); err != nil {
		log.Fatalf("rpc start: %v", err)
	}
	defer rpcServer.Stop()
	log.Printf("RPC listening on %s", rpcAddr)
	if cfg.RPCAuthToken != "" {
		log.Println("RPC Bearer token authentication enabled")
	}

	// This node only validates and relays blocks it receives from peers —
	// block production/proposal is someone else's job (a separate proposer
	// process driving the validator set this pipeline checks against).
	log.Println("Node running: validating and relaying blocks from peers")

	// ---- graceful shutdown ----
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("Shutting down...")

	// Deferred calls run in LIFO: rpcServer.Stop → node.Stop → db.Close
	log.Println("Shutdown complete.")
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("Config file not found at %s, using defaults.", path)
			return config.DefaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}
