package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"policy-graph/internal/enhance"
	"policy-graph/internal/extract"
	"policy-graph/internal/pipeline"
	"policy-graph/internal/source"
	"policy-graph/internal/store"
	"policy-graph/pkg/config"
	"policy-graph/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	// Initialize logger
	if err := logger.Init(cfg.Env); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting knowledge graph API server...")

	// Graph store backend
	graphStore, err := openStore(cfg)
	if err != nil {
		log.Fatal("Failed to open graph store", zap.Error(err))
	}
	defer graphStore.Close()

	// Extraction pipeline
	llm := extract.NewClient(cfg.ExtractionBaseURL, cfg.ExtractionAPIKey, cfg.ExtractionModel, cfg.ExtractionTimeout)
	extractor := extract.NewExtractor(llm, cfg.MaxTextLength)
	docs := source.NewRAGFlowClient(cfg.RAGFlowBaseURL, cfg.RAGFlowAPIKey, cfg.RAGFlowDataset, cfg.RAGFlowTimeout)
	orchestrator := pipeline.NewOrchestrator(docs, extractor, graphStore, cfg.ExtractWorkers)
	enhancer := enhance.NewEnhancer(extractor, cfg.RelationLimit)

	router := setupRouter(cfg, orchestrator, enhancer, graphStore)

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.String("port", cfg.Port), zap.String("store", cfg.StoreBackend))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
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
