package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vsc-eco/vsc-farm/services/ledger"
)

func main() {
	var (
		configPath = flag.String("config", "", "YAML config file")
		envFile    = flag.String("env", ".env", "Environment file with FARM_* overrides")
		port       = flag.String("port", "", "HTTP server port (overrides config)")
		dataDir    = flag.String("data-dir", "", "LevelDB state directory, in-memory when empty (overrides config)")
		webhook    = flag.String("webhook", "", "Transfer webhook URL (overrides config)")
	)
	flag.Parse()

	cfg, err := ledger.LoadConfig(*configPath)
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	if err := cfg.ApplyEnv(*envFile); err != nil {
		log.Fatal("Failed to apply environment:", err)
	}
	if *port != "" {
		cfg.Port = *port
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *webhook != "" {
		cfg.TransferWebhook = *webhook
	}

	store, err := cfg.OpenStore()
	if err != nil {
		log.Fatal("Failed to open state store:", err)
	}

	var sender ledger.Sender = ledger.LogSender{}
	if cfg.TransferWebhook != "" {
		sender = ledger.NewWebhookSender(cfg.TransferWebhook)
		log.Printf("Delivering transfers to %s", cfg.TransferWebhook)
	} else {
		log.Printf("Warning: No transfer webhook configured, transfers are only logged")
	}

	svc, err := ledger.NewService(cfg, store, sender)
	if err != nil {
		log.Fatal("Failed to create ledger service:", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.Start(ctx); err != nil {
		log.Fatal("Failed to start ledger service:", err)
	}

	server := ledger.NewServer(svc, cfg.Port)

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Starting farm ledger on port %s...", cfg.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start:", err)
		}
	}()

	<-c
	log.Println("Shutting down farm ledger...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	cancel()
	if err := svc.Close(); err != nil {
		log.Printf("Failed to close state store: %v", err)
	}

	log.Println("Farm ledger stopped")
}
