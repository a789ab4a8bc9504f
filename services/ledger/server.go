package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/vsc-eco/vsc-farm/contracts/farm"
	"github.com/vsc-eco/vsc-farm/schemas"
)

const defaultPageLimit = 50

// Server provides the HTTP API for the farm ledger
type Server struct {
	ledger  *Service
	handler http.Handler
	http    *http.Server
}

// NewServer creates a new HTTP server for the ledger service
func NewServer(svc *Service, port string) *Server {
	s := &Server{
		ledger: svc,
	}

	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()

	// Farms
	api.HandleFunc("/farms", s.handleCreateFarm).Methods("POST")
	api.HandleFunc("/farms", s.handleListFarms).Methods("GET")
	api.HandleFunc("/farms/{id}", s.handleGetFarm).Methods("GET")
	api.HandleFunc("/farms/{id}/claim", s.handleClaim).Methods("POST")
	api.HandleFunc("/farms/{id}/withdraw", s.handleWithdraw).Methods("POST")

	// Accounts
	api.HandleFunc("/accounts/{account}/stakes", s.handleListStakes).Methods("GET")
	api.HandleFunc("/accounts/{account}/stakes/{id}", s.handleGetStake).Methods("GET")
	api.HandleFunc("/accounts/{account}/storage", s.handleStorageBalance).Methods("GET")
	api.HandleFunc("/accounts/{account}/storage", s.handleStorageDeposit).Methods("POST")
	api.HandleFunc("/accounts/{account}/storage/withdraw", s.handleStorageWithdraw).Methods("POST")
	api.HandleFunc("/accounts/{account}/owed", s.handleOwed).Methods("GET")
	api.HandleFunc("/accounts/{account}/owed/redeem", s.handleRedeemOwed).Methods("POST")

	// Transfers
	api.HandleFunc("/transfers/incoming", s.handleIncomingTransfer).Methods("POST")
	api.HandleFunc("/transfers/pending", s.handlePendingTransfers).Methods("GET")
	api.HandleFunc("/transfers/{id}/resolve", s.handleResolveTransfer).Methods("POST")

	// Event feed
	api.Handle("/events", svc.Hub()).Methods("GET")

	if svc.cfg.Metrics {
		r.Handle("/metrics", svc.Metrics().Handler()).Methods("GET")
	}

	// Health check
	r.HandleFunc("/health", s.handleHealth).Methods("GET")

	s.handler = handlers.RecoveryHandler()(handlers.CORS(
		handlers.AllowedOrigins(svc.cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)(r))

	s.http = &http.Server{
		Addr:    ":" + port,
		Handler: s.handler,
	}

	return s
}

// Handler returns the wrapped router.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	return s.http.ListenAndServe()
}

// Stop stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps ledger errors to status codes.
func writeError(w http.ResponseWriter, err error) {
	var storageErr *farm.InsufficientStorageError
	switch {
	case farm.IsValidation(err), errors.Is(err, farm.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &storageErr):
		http.Error(w, err.Error(), http.StatusPaymentRequired)
	case errors.Is(err, farm.ErrFarmNotFound),
		errors.Is(err, farm.ErrStakeNotFound),
		errors.Is(err, farm.ErrTransferNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, farm.ErrFarmEnded),
		errors.Is(err, farm.ErrTokenMismatch),
		errors.Is(err, farm.ErrLockupNotExpired),
		errors.Is(err, farm.ErrInsufficientStake),
		errors.Is(err, farm.ErrInsufficientFunds),
		errors.Is(err, farm.ErrNothingOwed):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func pathID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return 0, &farm.ValidationError{Field: "id", Message: "farm id must be an unsigned integer"}
	}
	return id, nil
}

func queryUint(r *http.Request, name string, def uint64) (uint64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, &farm.ValidationError{Field: name, Message: "must be an unsigned integer"}
	}
	return n, nil
}

func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &farm.ValidationError{Field: "body", Message: "Invalid request body"}
	}
	return nil
}

type receiptResponse struct {
	*farm.Receipt
	FarmID *uint64 `json:"farm_id,omitempty"`
}

// handleCreateFarm validates the farm against the input schema before
// decoding it.
func (s *Server) handleCreateFarm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller string          `json:"caller"`
		Farm   json.RawMessage `json:"farm"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := schemas.ValidateFarmInput(req.Farm); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var in farm.FarmInput
	if err := json.Unmarshal(req.Farm, &in); err != nil {
		http.Error(w, "Invalid farm input", http.StatusBadRequest)
		return
	}

	id, receipt, err := s.ledger.CreateFarm(req.Caller, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, receiptResponse{Receipt: receipt, FarmID: &id})
}

func (s *Server) handleListFarms(w http.ResponseWriter, r *http.Request) {
	from, err := queryUint(r, "from", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := queryUint(r, "limit", defaultPageLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	at, err := queryUint(r, "at", 0)
	if err != nil {
		writeError(w, err)
		return
	}

	farms, err := s.ledger.ListFarms(from, limit, at)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, farms)
}

func (s *Server) handleGetFarm(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	at, err := queryUint(r, "at", 0)
	if err != nil {
		writeError(w, err)
		return
	}

	view, err := s.ledger.GetFarm(id, at)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Caller string `json:"caller"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	receipt, err := s.ledger.Claim(req.Caller, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Caller string      `json:"caller"`
		Amount farm.Amount `json:"amount"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	receipt, err := s.ledger.Withdraw(req.Caller, id, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleListStakes(w http.ResponseWriter, r *http.Request) {
	from, err := queryUint(r, "from", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := queryUint(r, "limit", defaultPageLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	at, err := queryUint(r, "at", 0)
	if err != nil {
		writeError(w, err)
		return
	}

	stakes, err := s.ledger.ListStakesByUser(mux.Vars(r)["account"], from, limit, at)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stakes)
}

func (s *Server) handleGetStake(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	at, err := queryUint(r, "at", 0)
	if err != nil {
		writeError(w, err)
		return
	}

	view, err := s.ledger.GetStakeInfo(mux.Vars(r)["account"], id, at)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleStorageBalance(w http.ResponseWriter, r *http.Request) {
	bal, err := s.ledger.StorageBalanceOf(mux.Vars(r)["account"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bal)
}

func (s *Server) handleStorageDeposit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount farm.Amount `json:"amount"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	receipt, err := s.ledger.StorageDeposit(mux.Vars(r)["account"], req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// handleStorageWithdraw withdraws everything available when the body or
// its amount is omitted.
func (s *Server) handleStorageWithdraw(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount *farm.Amount `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	receipt, err := s.ledger.StorageWithdraw(mux.Vars(r)["account"], req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleOwed(w http.ResponseWriter, r *http.Request) {
	owed, err := s.ledger.OwedBalances(mux.Vars(r)["account"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, owed)
}

func (s *Server) handleRedeemOwed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	receipt, err := s.ledger.RedeemOwed(mux.Vars(r)["account"], req.Token)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// handleIncomingTransfer is called by a token service after it moved
// tokens to the ledger. A response with a non-zero refund tells the token
// service to hand that part back to the sender; an error status means the
// whole transfer was rejected.
func (s *Server) handleIncomingTransfer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token  string      `json:"token"`
		Sender string      `json:"sender"`
		Amount farm.Amount `json:"amount"`
		Msg    string      `json:"msg"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	receipt, err := s.ledger.OnTransfer(req.Token, req.Sender, req.Amount, req.Msg)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handlePendingTransfers(w http.ResponseWriter, r *http.Request) {
	pending, err := s.ledger.PendingTransfers()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pending)
}

func (s *Server) handleResolveTransfer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Success bool `json:"success"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := s.ledger.ResolveTransfer(mux.Vars(r)["id"], req.Success); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"resolved": true})
}

// handleHealth provides health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "farm-ledger",
	})
}
