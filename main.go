package main

import (
	"log"
	"net/http"

	"stock-insight/internal/api"
	"stock-insight/internal/config"
	"stock-insight/internal/database"
	"stock-insight/internal/predict"
	"stock-insight/internal/services/auth"
	"stock-insight/internal/services/marketdata"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	// Initialize configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.Initialize(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Initialize services
	authSvc := auth.NewService(cfg.JWTSecret)
	marketSvc := marketdata.NewService(cfg.MarketAPIBase, cfg.MarketAPIToken)

	runner := predict.NewCommandRunner(cfg.PythonBin, cfg.ModelScript)
	runner.Timeout = cfg.PredictTimeout

	// Initialize Gin router
	r := gin.Default()

	// CORS middleware
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API routes
	apiGroup := r.Group("/api/v1")
	handler := api.SetupRoutes(apiGroup, db, authSvc, marketSvc, runner)

	// Prediction run progress stream
	r.GET("/ws/predict", handler.PredictProgressWS)

	log.Printf("Server starting on port %s", cfg.Port)
	log.Fatal(http.ListenAndServe(":"+cfg.Port, r))
}
