package main

import (
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"finker/internal/api"
	"finker/internal/auth"
	"finker/internal/chat"
	"finker/internal/config"
	"finker/internal/db"
	"finker/internal/llm"
	"finker/internal/markdown"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.New()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	database, err := db.New(cfg.DBPath)
	if err != nil {
		logger.Fatal("failed to initialize database",
			zap.Error(err),
			zap.String("dbPath", cfg.DBPath))
	}
	defer database.Close()

	llmService, err := llm.New(llm.Options{
		BaseURL:     cfg.OpenAIBaseURL,
		Token:       cfg.OpenAIAPIKey,
		Model:       cfg.OpenAIModel,
		Temperature: cfg.LLMTemperature,
		MaxTokens:   cfg.LLMMaxTokens,
		Timeout:     cfg.LLMTimeout,
	}, logger)
	if err != nil {
		logger.Fatal("failed to initialize LLM service", zap.Error(err))
	}

	renderer := markdown.New()
	chatService := chat.New(database, llmService, renderer, logger)

	issuer := auth.NewTokenIssuer(cfg.SessionSecret, cfg.SessionTTL)
	authService := auth.NewService(database, issuer)

	handler := api.NewHandler(database, chatService, authService, issuer, renderer, logger, cfg.SessionTTL)

	router := gin.New()
	router.Use(gin.Recovery(), api.RequestLogger(logger))
	router.LoadHTMLGlob("web/templates/*.html")
	router.Static("/static", "web/static")
	handler.Register(router)

	logger.Info("starting server", zap.String("addr", cfg.Addr))
	if err := router.Run(cfg.Addr); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}
