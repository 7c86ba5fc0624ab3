package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/legacyosint/osint-chatbot/internal/api"
	"github.com/legacyosint/osint-chatbot/internal/auth"
	"github.com/legacyosint/osint-chatbot/internal/config"
	"github.com/legacyosint/osint-chatbot/internal/provider"
	"github.com/legacyosint/osint-chatbot/internal/redis"
	"github.com/legacyosint/osint-chatbot/internal/service/assistant"
	"github.com/legacyosint/osint-chatbot/internal/service/chat"
	"github.com/legacyosint/osint-chatbot/internal/storage"
	"github.com/legacyosint/osint-chatbot/internal/worker"
)

const defaultTokenTTL = 24 * time.Hour

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("load .env: %v", err)
	}

	cfgPath := os.Getenv("OSINTCHAT_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbType := os.Getenv("OSINTCHAT_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	log.Printf("dbType: %s\n", dbType)
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	// the token cache is optional, auth falls back to the database
	var cache *redis.Client
	if cfg.Redis.Enabled {
		cache, err = redis.NewClient(cfg)
		if err != nil {
			log.Printf("redis unavailable, token cache disabled: %v", err)
			cache = nil
		} else {
			defer cache.Close()
		}
	}

	ctx := context.Background()
	gemini, err := provider.NewGemini(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
	if err != nil {
		log.Fatalf("init gemini client: %v", err)
	}

	assistantService := assistant.NewService(db)
	authService := auth.NewService(db, cache, defaultTokenTTL)

	refiner := chat.NewRefiner(assistantService, gemini)
	dispatcher := worker.NewDispatcher(
		cfg.Chat.MinWorkers,
		cfg.Chat.MaxWorkers,
		cfg.Chat.QueueSize,
		refiner,
		time.Duration(cfg.Chat.WorkerIdleTimeout)*time.Minute,
	)

	assembler := chat.NewAssembler(assistantService, cfg.Chat.HistoryWindow)
	orchestrator := chat.NewOrchestrator(assistantService, gemini, assembler, dispatcher)

	handler := api.NewHandler(assistantService, authService, orchestrator, dispatcher)

	router := gin.Default()
	handler.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8080"
	}
	log.Printf("listening on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
