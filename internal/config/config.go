package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseURL string
	JWTSecret   string
	Port        string
	Environment string

	// 外部预测模型配置
	PythonBin      string        // 运行模型的解释器
	ModelScript    string        // 模型脚本路径
	PredictTimeout time.Duration // 单次预测运行的最长时间

	// 第三方行情数据配置
	MarketAPIBase  string
	MarketAPIToken string
}

func Load() *Config {
	// Default MySQL connection string
	defaultDSN := "root:stock123@tcp(127.0.0.1:3306)/stock_insight?charset=utf8mb4&parseTime=True&loc=Local"

	timeoutSec := 300
	if v := os.Getenv("PREDICT_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			timeoutSec = n
		}
	}

	return &Config{
		DatabaseURL: getEnv("DATABASE_URL", defaultDSN),
		JWTSecret:   getEnv("JWT_SECRET", "your-secret-key"),
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),

		PythonBin:      getEnv("PYTHON_BIN", "python3"),
		ModelScript:    getEnv("MODEL_SCRIPT", "model/model.py"),
		PredictTimeout: time.Duration(timeoutSec) * time.Second,

		MarketAPIBase:  getEnv("MARKET_API_BASE", "https://api.marketdata.cn/api/v1/"),
		MarketAPIToken: getEnv("MARKET_API_TOKEN", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
