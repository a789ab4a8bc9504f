package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/vsc-eco/vsc-farm/services/indexer"
)

func main() {
	var (
		wsEndpoint = flag.String("ws-endpoint", "ws://localhost:8082/api/v1/events", "Ledger websocket event feed")
		httpPort   = flag.String("http-port", "8081", "HTTP server port")
	)
	flag.Parse()

	svc := indexer.NewService(*wsEndpoint, *httpPort)

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		log.Printf("Starting indexer service on HTTP port %s, following %s...", *httpPort, *wsEndpoint)
		if err := svc.Start(ctx); err != nil {
			log.Printf("Indexer stopped with error: %v", err)
		}
	}()

	<-c
	log.Println("Shutting down indexer service...")

	cancel()
	<-done

	log.Println("Indexer service stopped")
}
