// classify runs messages through the intent classifier from the command
// line, against whichever LLM the environment configures. Useful for
// checking rule coverage and fallback prompts without a running bot.
//
// Usage:
//
//	classify "訂 20kg 瓦斯兩桶" "查詢訂單" ...
//
// With no arguments a built-in sample set is used.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/luckygas/gasdesk/cmd/mainconfig"
	"github.com/luckygas/gasdesk/internal/app/bootstrap"
	"github.com/luckygas/gasdesk/internal/bot/intent"
	appconfig "github.com/luckygas/gasdesk/internal/config"
	"github.com/luckygas/gasdesk/pkg/logging"
)

var sampleMessages = []string{
	"訂 20kg 瓦斯兩桶",
	"我要訂瓦斯",
	"查詢訂單",
	"庫存還有多少",
	"取消",
	"我要找人工客服",
	"明天有送嗎",
	"綁定 0912345678",
	"哈囉",
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		log.Fatalf("load AWS config: %v", err)
	}

	llmClient, err := bootstrap.BuildLLMClient(ctx, cfg, awsCfg, logger)
	if err != nil {
		log.Fatalf("build LLM client: %v", err)
	}
	if llmClient == nil {
		fmt.Println("no LLM configured; rule stage only")
	}

	classifier := intent.NewClassifier(llmClient, bootstrap.ClassifierModelID(cfg), logger.Logger,
		intent.WithFallbackTimeout(cfg.ClassifierTimeout))

	messages := os.Args[1:]
	if len(messages) == 0 {
		messages = sampleMessages
	}

	for _, text := range messages {
		start := time.Now()
		result := classifier.Classify(ctx, text, intent.Context{})
		elapsed := time.Since(start).Round(time.Millisecond)

		fmt.Printf("%-30q -> %-18s stage=%-8s confidence=%.2f (%v)\n",
			text, result.Type, result.Stage, result.Confidence, elapsed)
		if result.Entities.Product != "" || result.Entities.Quantity != 0 {
			fmt.Printf("%34s product=%q quantity=%d\n", "", result.Entities.Product, result.Entities.Quantity)
		}
	}
}
