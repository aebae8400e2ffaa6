package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"policy-graph/internal/enhance"
	"policy-graph/internal/pipeline"
	"policy-graph/internal/store"
	"policy-graph/pkg/config"
	perrors "policy-graph/pkg/errors"
	"policy-graph/pkg/logger"
)

func setupRouter(cfg *config.Config, orchestrator *pipeline.Orchestrator, enhancer *enhance.Enhancer, graphStore store.GraphStore) *gin.Engine {
	log := logger.Get()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(ginLogger(log))
	router.Use(gin.Recovery())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		// Run a build over the document source
		api.POST("/graph/build", func(c *gin.Context) {
			var req struct {
				Incremental bool `json:"incremental"`
			}
			if c.Request.ContentLength > 0 {
				if err := c.ShouldBindJSON(&req); err != nil {
					c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
					return
				}
			}

			summary, err := orchestrator.Run(c.Request.Context(), pipeline.Options{Incremental: req.Incremental})
			if err != nil {
				var busy *perrors.ErrConcurrentBuild
				if errors.As(err, &busy) {
					c.JSON(http.StatusConflict, gin.H{"error": "a graph build is already in progress"})
					return
				}
				log.Error("Graph build failed", zap.Error(err))
				c.JSON(http.StatusBadGateway, gin.H{"error": "graph build failed"})
				return
			}

			c.JSON(http.StatusOK, summary)
		})

		// Snapshot stats, cheap read
		api.GET("/graph/stats", func(c *gin.Context) {
			stats, err := graphStore.Stats(c.Request.Context())
			if err != nil {
				log.Error("Failed to read graph stats", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read stats"})
				return
			}
			c.JSON(http.StatusOK, stats)
		})

		// Full snapshot
		api.GET("/graph", func(c *gin.Context) {
			snapshot, err := graphStore.Load(c.Request.Context())
			if err != nil {
				log.Error("Failed to load graph snapshot", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load snapshot"})
				return
			}
			c.JSON(http.StatusOK, snapshot)
		})

		// Merge duplicates persisted under older normalization rules
		api.POST("/graph/repair", func(c *gin.Context) {
			removed, err := graphStore.RepairDuplicates(c.Request.Context())
			if err != nil {
				var busy *perrors.ErrConcurrentBuild
				if errors.As(err, &busy) {
					c.JSON(http.StatusConflict, gin.H{"error": "a graph build is already in progress"})
					return
				}
				log.Error("Graph repair failed", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "graph repair failed"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"removed_nodes": removed})
		})

		// Drop the snapshot entirely
		api.DELETE("/graph", func(c *gin.Context) {
			if err := graphStore.Clear(c.Request.Context()); err != nil {
				var busy *perrors.ErrConcurrentBuild
				if errors.As(err, &busy) {
					c.JSON(http.StatusConflict, gin.H{"error": "a graph build is already in progress"})
					return
				}
				log.Error("Failed to clear graph", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear graph"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "cleared"})
		})

		// Enrich a question with graph context
		api.POST("/chat/enhance", func(c *gin.Context) {
			var req struct {
				Question string `json:"question" binding:"required"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			snapshot, err := graphStore.Load(c.Request.Context())
			if err != nil {
				log.Error("Failed to load graph snapshot", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load snapshot"})
				return
			}

			result := enhancer.Enhance(c.Request.Context(), req.Question, snapshot)
			c.JSON(http.StatusOK, result)
		})
	}

	return router
}

// ginLogger is a custom logger middleware for Gin
func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Info("HTTP Request",
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}
