package indexer

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vsc-eco/vsc-farm/contracts/farm"
)

const reconnectDelay = 2 * time.Second

// Service indexes the ledger's event feed into read models
type Service struct {
	wsURL   string
	readers []ReadModel
	mu      sync.RWMutex
	server  *Server
}

type ReadModel interface {
	HandleEvent(event farm.Event) error
	QueryFarms() ([]FarmSummary, error)
	QueryAccount(account string) (AccountSummary, error)
}

// FarmSummary is the indexed history of one farm. Totals are cumulative
// over every event seen.
type FarmSummary struct {
	FarmID       uint64                 `json:"farm_id"`
	Creator      string                 `json:"creator"`
	StakingToken string                 `json:"staking_token"`
	TotalStaked  farm.Amount            `json:"total_staked"`
	Stakers      int                    `json:"stakers"`
	Funded       map[string]farm.Amount `json:"funded"`
	Claimed      map[string]farm.Amount `json:"claimed"`
	Ended        bool                   `json:"ended"`
	CreatedAt    uint64                 `json:"created_at"`
	UpdatedAt    uint64                 `json:"updated_at"`
}

// AccountSummary is the indexed activity of one account.
type AccountSummary struct {
	Account string                 `json:"account"`
	Stakes  map[uint64]farm.Amount `json:"stakes"`
	Claimed map[string]farm.Amount `json:"claimed"`
	Owed    map[string]farm.Amount `json:"owed"`
	Storage farm.Amount            `json:"storage"`
}

// NewService creates a new indexer service
func NewService(wsURL string, port string) *Service {
	svc := &Service{
		wsURL:   wsURL,
		readers: make([]ReadModel, 0),
	}

	// Add default farm read model
	svc.AddReader(NewFarmReadModel())

	// Create HTTP server
	svc.server = NewServer(svc, port)

	return svc
}

// AddReader adds a read model to the indexer
func (s *Service) AddReader(reader ReadModel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readers = append(s.readers, reader)
}

// Start serves HTTP in the background and follows the event feed until ctx
// is done, reconnecting after every failure.
func (s *Service) Start(ctx context.Context) error {
	// Start HTTP server in background
	go func() {
		if err := s.server.Start(); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	for {
		if err := s.startIndexing(ctx); err != nil {
			log.Printf("Event feed error: %v", err)
		}
		select {
		case <-ctx.Done():
			return s.server.Stop(context.Background())
		case <-time.After(reconnectDelay):
		}
	}
}

// startIndexing reads events from one feed connection until it breaks.
func (s *Service) startIndexing(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	// unblock the read below on shutdown
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	log.Printf("Following ledger events at %s", s.wsURL)
	for {
		var event farm.Event
		if err := conn.ReadJSON(&event); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		s.handleEvent(event)
	}
}

// handleEvent processes an incoming ledger event
func (s *Service) handleEvent(event farm.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, reader := range s.readers {
		if err := reader.HandleEvent(event); err != nil {
			log.Printf("Error handling event in reader: %v", err)
		}
	}
}

// QueryFarms returns all indexed farms
func (s *Service) QueryFarms() ([]FarmSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	allFarms := make([]FarmSummary, 0)
	for _, reader := range s.readers {
		farms, err := reader.QueryFarms()
		if err != nil {
			continue // Skip readers that don't support this query
		}
		allFarms = append(allFarms, farms...)
	}

	return allFarms, nil
}

// QueryAccount returns the account summary from the first reader that
// knows it.
func (s *Service) QueryAccount(account string) (AccountSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, reader := range s.readers {
		summary, err := reader.QueryAccount(account)
		if err == nil {
			return summary, true
		}
	}
	return AccountSummary{}, false
}
