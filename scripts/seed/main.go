package main

import (
	"context"
	"flag"
	"fmt"

	"go.uber.org/zap"

	"policy-graph/internal/graph"
	"policy-graph/internal/store"
	"policy-graph/pkg/config"
	"policy-graph/pkg/logger"
)

// Seeds the graph store with a small sample snapshot so the enhance and
// stats endpoints have something to work with before the first real build.
// Run with: go run scripts/seed/main.go
func main() {
	force := flag.Bool("force", false, "Overwrite an existing snapshot")
	flag.Parse()

	if err := logger.Init("development"); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()
	log := logger.Get()
	log.Info("Starting graph seeding...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	graphStore, err := openStore(cfg)
	if err != nil {
		log.Fatal("Failed to open graph store", zap.Error(err))
	}
	defer graphStore.Close()

	ctx := context.Background()

	existing, err := graphStore.Load(ctx)
	if err != nil {
		log.Fatal("Failed to load current snapshot", zap.Error(err))
	}
	if !existing.IsEmpty() && !*force {
		log.Info("Snapshot already exists, use -force to overwrite",
			zap.Int("nodes", existing.NodeCount))
		return
	}

	saved, err := graphStore.Save(ctx, sampleSnapshot(), false)
	if err != nil {
		log.Fatal("Failed to save sample snapshot", zap.Error(err))
	}

	log.Info("Seeding complete",
		zap.Int("nodes", saved.NodeCount),
		zap.Int("edges", saved.EdgeCount),
	)
}

func sampleSnapshot() *graph.Snapshot {
	return graph.NewBuilder().Build([]graph.DocumentResult{{
		DocID: "seed",
		Result: graph.ExtractionResult{
			Entities: []graph.Entity{
				{Label: "Urban Renewal Framework", Type: graph.NodeTypePolicy, Description: "sample framework policy"},
				{Label: "City Planning Bureau", Type: graph.NodeTypeAuthority},
				{Label: "Harbor District", Type: graph.NodeTypeRegion},
				{Label: "Mixed-Use Zoning", Type: graph.NodeTypeConcept},
				{Label: "Waterfront Revitalization", Type: graph.NodeTypeProject},
			},
			Relations: []graph.Relation{
				{SourceLabel: "Urban Renewal Framework", TargetLabel: "City Planning Bureau", Type: graph.RelationIssuedBy},
				{SourceLabel: "Urban Renewal Framework", TargetLabel: "Harbor District", Type: graph.RelationAppliesTo},
				{SourceLabel: "Urban Renewal Framework", TargetLabel: "Mixed-Use Zoning", Type: graph.RelationReferences},
				{SourceLabel: "Waterfront Revitalization", TargetLabel: "Harbor District", Type: graph.RelationAffects},
			},
		},
	}})
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
