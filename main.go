package main

import (
	"context"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gmaps-reviews-analyzer/config"
	"gmaps-reviews-analyzer/llm/anthropic"
	"gmaps-reviews-analyzer/scraper/apify"
	"gmaps-reviews-analyzer/server"
	"gmaps-reviews-analyzer/services"
	"gmaps-reviews-analyzer/storage"
	"gmaps-reviews-analyzer/utils"
)

func main() {
	logger := utils.NewLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Configuration error: %v", err)
		os.Exit(1)
	}

	logger.Info("=== Google Maps Reviews Analyzer starting ===")
	logger.Info("Config: actor=%s model=%s dates=%s output=%s",
		cfg.ApifyActorID, cfg.AnthropicModel, cfg.DateStrategy, cfg.OutputDir)

	files, err := storage.NewCSVStore(cfg.OutputDir)
	if err != nil {
		logger.Error("Failed to create CSV store: %v", err)
		os.Exit(1)
	}

	var db storage.TableStore
	if cfg.PostgresEnabled {
		pg, err := storage.NewPostgresWriter(cfg.DSN(), logger)
		if err != nil {
			logger.Error("Failed to connect to PostgreSQL: %v", err)
			os.Exit(1)
		}
		defer pg.Close()
		db = pg
		logger.Info("PostgreSQL persistence enabled (table: reviews)")
	}

	scraper, err := apify.NewHTTPClient("", cfg.ApifyAPIKey, cfg.ApifyActorID,
		time.Duration(cfg.ApifyTimeoutSec)*time.Second, logger)
	if err != nil {
		logger.Error("Failed to create Apify client: %v", err)
		os.Exit(1)
	}

	llmClient := anthropic.NewHTTPClient(cfg.AnthropicAPIKey, cfg.AnthropicModel,
		cfg.AnthropicMaxTok, cfg.AnthropicTemp,
		anthropic.WithTimeout(time.Duration(cfg.LLMTimeoutSec)*time.Second))

	var dates services.DateAssigner
	if cfg.DateStrategy == "published" {
		dates = services.NewPublishedDates(rand.NewSource(time.Now().UnixNano()))
	} else {
		dates = services.NewSyntheticDates(rand.NewSource(time.Now().UnixNano()))
	}

	builder := services.NewTableBuilder(dates, logger)
	insights := services.NewInsightService(logger)
	analyzer := services.NewAnalyzer(llmClient, files, logger)
	prompts := config.NewPromptStore(cfg.PromptPath)

	srv := server.New(cfg.ServerPort, scraper, builder, insights, analyzer,
		files, db, prompts, logger)

	if db != nil {
		stored, err := db.FetchAll()
		if err != nil {
			logger.Warn("Could not reload stored reviews: %v", err)
		} else {
			srv.Restore(stored)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Error("Server failed: %v", err)
		os.Exit(1)
	case sig := <-stop:
		logger.Info("Received %s, shutting down", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Shutdown error: %v", err)
		}
	}
}
