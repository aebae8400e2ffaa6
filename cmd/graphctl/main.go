package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"policy-graph/internal/extract"
	"policy-graph/internal/pipeline"
	"policy-graph/internal/source"
	"policy-graph/internal/store"
	"policy-graph/pkg/config"
	"policy-graph/pkg/logger"
)

const usage = `Usage: graphctl <command>

Commands:
  build     incremental build, processes only unseen documents
  rebuild   full rebuild, replaces the snapshot
  repair    merge duplicate nodes left by older normalization rules
  stats     print snapshot stats
  clear     drop the snapshot
`

func main() {
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Env); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Get()

	graphStore, err := openStore(cfg)
	if err != nil {
		log.Fatal("Failed to open graph store", zap.Error(err))
	}
	defer graphStore.Close()

	ctx := context.Background()

	switch flag.Arg(0) {
	case "build":
		runBuild(ctx, cfg, graphStore, true)
	case "rebuild":
		runBuild(ctx, cfg, graphStore, false)
	case "repair":
		removed, err := graphStore.RepairDuplicates(ctx)
		if err != nil {
			log.Fatal("Repair failed", zap.Error(err))
		}
		fmt.Printf("removed %d duplicate node(s)\n", removed)
	case "stats":
		stats, err := graphStore.Stats(ctx)
		if err != nil {
			log.Fatal("Failed to read stats", zap.Error(err))
		}
		printJSON(stats)
	case "clear":
		if err := graphStore.Clear(ctx); err != nil {
			log.Fatal("Failed to clear snapshot", zap.Error(err))
		}
		fmt.Println("snapshot cleared")
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func runBuild(ctx context.Context, cfg *config.Config, graphStore store.GraphStore, incremental bool) {
	log := logger.Get()

	llm := extract.NewClient(cfg.ExtractionBaseURL, cfg.ExtractionAPIKey, cfg.ExtractionModel, cfg.ExtractionTimeout)
	extractor := extract.NewExtractor(llm, cfg.MaxTextLength)
	docs := source.NewRAGFlowClient(cfg.RAGFlowBaseURL, cfg.RAGFlowAPIKey, cfg.RAGFlowDataset, cfg.RAGFlowTimeout)
	orchestrator := pipeline.NewOrchestrator(docs, extractor, graphStore, cfg.ExtractWorkers)

	summary, err := orchestrator.Run(ctx, pipeline.Options{
		Incremental: incremental,
		Progress: func(done, total int, name string) {
			fmt.Printf("[%d/%d] %s\n", done, total, name)
		},
	})
	if err != nil {
		log.Fatal("Build failed", zap.Error(err))
	}
	printJSON(summary)
}

func openStore(cfg *config.Config) (store.GraphStore, error) {
	switch cfg.StoreBackend {
	case "neo4j":
		return store.NewNeo4jStore(context.Background(), cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
	case "sqlite":
		return store.NewSQLiteStore(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(data))
}
