package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/banshee-data/outbreak-cluster/internal/outbreak"
	"github.com/banshee-data/outbreak-cluster/internal/outbreak/infer"
	"github.com/banshee-data/outbreak-cluster/internal/outbreak/pipeline"
	"github.com/banshee-data/outbreak-cluster/internal/outbreak/rpcapi"
	"github.com/banshee-data/outbreak-cluster/internal/outbreak/store/sqlite"
)

var (
	listen       = flag.String("listen", ":8090", "Listen address for the outbreak RPC surface")
	dbPathFlag   = flag.String("db-path", "outbreak.db", "path to sqlite DB file (created if missing)")
	configFile   = flag.String("config", "", "path to a JSON file overriding the default pipeline tuning parameters")
	defaultCause = flag.String("default-cause", "unknown", "cause reported by the stand-in inferer when the stand-in cannot otherwise attribute one")
)

// loadConfig starts from outbreak.DefaultConfig and layers the JSON
// file named by --config on top, following internal/config/tuning.go's
// "file overrides defaults, fields are optional" convention. The
// outbreak.Config fields are all required-with-defaults rather than
// pointer-optional, so an omitted field in the file simply keeps the
// default already in place before Unmarshal runs.
func loadConfig(path string) (outbreak.Config, error) {
	cfg := outbreak.DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return outbreak.Config{}, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return outbreak.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return outbreak.Config{}, err
	}
	return cfg, nil
}

func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.SetOutput(os.Stdout)

	cfg, err := loadConfig(*configFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	store, err := sqlite.Open(*dbPathFlag)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer store.Close()

	// The stand-in inferer/embedder in internal/outbreak/infer satisfy
	// pipeline.Engine's collaborator interfaces with no external model
	// call; a deployment with a real LLM and embedding model swaps these
	// two values without touching the pipeline or this entry point.
	inferer := infer.DeterministicInferer{Cause: *defaultCause}
	embedder := infer.DeterministicEmbedder{}

	// store satisfies ReportReader, ReportWriter, store.RunStore and
	// store.History all at once: one database file, one connection pool.
	engine := pipeline.NewEngine(store, store, inferer, embedder, store, store, cfg)
	server := rpcapi.NewServer(engine)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Start(ctx, *listen); err != nil {
			log.Printf("RPC server error: %v", err)
		}
	}()

	log.Printf("outbreak-server listening on %s (db=%s)", *listen, *dbPathFlag)
	wg.Wait()
	log.Printf("graceful shutdown complete")
}
