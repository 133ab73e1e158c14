package main

import (
	"context"
	"fmt"
	"log"

	"stock-insight/internal/config"
	"stock-insight/internal/database"
	"stock-insight/internal/predict"

	"github.com/joho/godotenv"
)

// 手动触发一次完整的预测流程，不经过HTTP服务
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	cfg := config.Load()

	db, err := database.Initialize(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	runner := predict.NewCommandRunner(cfg.PythonBin, cfg.ModelScript)
	runner.Timeout = cfg.PredictTimeout

	pipeline := predict.NewPipeline(predict.NewGormSink(db), runner).
		WithObserver(func(stage string) {
			log.Printf("stage: %s", stage)
		})

	summary, err := pipeline.Run(context.Background())
	if err != nil {
		if pe := predict.AsError(err); pe != nil {
			log.Fatalf("预测失败 [%s]: %s", pe.Code, pe.Message)
		}
		log.Fatalf("预测失败: %v", err)
	}

	fmt.Printf("价格预测: %d 条\n", summary.PriceCount)
	for _, p := range summary.PriceSamples {
		fmt.Printf("  %s %s -> %.4f\n", p.StockID, p.Date, p.PredictedPrice)
	}
	fmt.Printf("因子预测: %d 条\n", summary.FactorCount)
	for _, f := range summary.FactorSamples {
		fmt.Printf("  %s %s TTM=%.4f PE=%.4f PB=%.4f PCF=%.4f\n", f.StockID, f.Date, f.TTM, f.PE, f.PB, f.PCF)
	}
}
