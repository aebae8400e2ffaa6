package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// App
	Port string
	Env  string

	// Extraction service (OpenAI-compatible endpoint, e.g. DashScope
	// compatible mode or a LiteLLM proxy)
	ExtractionBaseURL string
	ExtractionAPIKey  string
	ExtractionModel   string
	ExtractionTimeout time.Duration
	MaxTextLength     int

	// Document source (RAGFlow)
	RAGFlowBaseURL string
	RAGFlowAPIKey  string
	RAGFlowDataset string
	RAGFlowTimeout time.Duration

	// Graph store
	StoreBackend  string // sqlite or neo4j
	SQLitePath    string
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string

	// Build / enhancement tunables
	ExtractWorkers int
	RelationLimit  int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		Env:               getEnv("ENV", "development"),
		ExtractionBaseURL: getEnv("EXTRACTION_BASE_URL", "https://dashscope.aliyuncs.com/compatible-mode"),
		ExtractionAPIKey:  getEnv("EXTRACTION_API_KEY", ""),
		ExtractionModel:   getEnv("EXTRACTION_MODEL", "qwen-plus"),
		ExtractionTimeout: getEnvDuration("EXTRACTION_TIMEOUT", 120*time.Second),
		MaxTextLength:     getEnvInt("MAX_TEXT_LENGTH", 32000),
		RAGFlowBaseURL:    getEnv("RAGFLOW_BASE_URL", "http://localhost:9380"),
		RAGFlowAPIKey:     getEnv("RAGFLOW_API_KEY", ""),
		RAGFlowDataset:    getEnv("RAGFLOW_DATASET_ID", ""),
		RAGFlowTimeout:    getEnvDuration("RAGFLOW_TIMEOUT", 30*time.Second),
		StoreBackend:      getEnv("GRAPH_STORE", "sqlite"),
		SQLitePath:        getEnv("SQLITE_PATH", "data/policy_graph.db"),
		Neo4jURI:          getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:         getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword:     getEnv("NEO4J_PASSWORD", "password"),
		ExtractWorkers:    getEnvInt("EXTRACT_WORKERS", 4),
		RelationLimit:     getEnvInt("RELATION_LIMIT", 10),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.ExtractionBaseURL == "" {
		return fmt.Errorf("EXTRACTION_BASE_URL is required")
	}
	if c.ExtractionModel == "" {
		return fmt.Errorf("EXTRACTION_MODEL is required")
	}
	if c.RAGFlowBaseURL == "" {
		return fmt.Errorf("RAGFLOW_BASE_URL is required")
	}
	switch c.StoreBackend {
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite store")
		}
	case "neo4j":
		if c.Neo4jURI == "" {
			return fmt.Errorf("NEO4J_URI is required for the neo4j store")
		}
	default:
		return fmt.Errorf("GRAPH_STORE must be sqlite or neo4j, got %q", c.StoreBackend)
	}
	if c.MaxTextLength < 0 {
		return fmt.Errorf("MAX_TEXT_LENGTH must be >= 0")
	}
	if c.ExtractWorkers < 1 {
		return fmt.Errorf("EXTRACT_WORKERS must be >= 1")
	}
	if c.RelationLimit < 1 {
		return fmt.Errorf("RELATION_LIMIT must be >= 1")
	}
	// API keys are optional for development against local proxies
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
