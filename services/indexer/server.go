package indexer

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// Server provides HTTP API for indexer read models
type Server struct {
	indexer *Service
	http    *http.Server
}

// NewServer creates a new HTTP server for the indexer
func NewServer(svc *Service, port string) *Server {
	s := &Server{
		indexer: svc,
	}

	r := mux.NewRouter()

	// Farm endpoints
	r.HandleFunc("/api/v1/farms", s.handleGetFarms).Methods("GET")
	r.HandleFunc("/api/v1/farms/{id}", s.handleGetFarm).Methods("GET")

	// Account endpoints
	r.HandleFunc("/api/v1/accounts/{account}", s.handleGetAccount).Methods("GET")

	// Health check
	r.HandleFunc("/health", s.handleHealth).Methods("GET")

	s.http = &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	return s.http.ListenAndServe()
}

// Stop stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// handleGetFarms returns all farms
func (s *Server) handleGetFarms(w http.ResponseWriter, r *http.Request) {
	farms, err := s.indexer.QueryFarms()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(farms)
}

// handleGetFarm returns a specific farm
func (s *Server) handleGetFarm(w http.ResponseWriter, r *http.Request) {
	farmID, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid farm id", http.StatusBadRequest)
		return
	}

	// Get the first read model that supports farm lookups
	s.indexer.mu.RLock()
	defer s.indexer.mu.RUnlock()
	for _, reader := range s.indexer.readers {
		if farmReader, ok := reader.(*FarmReadModel); ok {
			if f, exists := farmReader.GetFarm(farmID); exists {
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(f)
				return
			}
		}
	}

	http.Error(w, "Farm not found", http.StatusNotFound)
}

// handleGetAccount returns one account's indexed activity
func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	summary, ok := s.indexer.QueryAccount(mux.Vars(r)["account"])
	if !ok {
		http.Error(w, "Account not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}

// handleHealth provides health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "farm-indexer",
	})
}
