package ledger

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/vsc-eco/vsc-farm/contracts/farm"
	"github.com/vsc-eco/vsc-farm/internal/kv"
)

// Service runs the farm ledger behind the HTTP API. It stamps calls with
// the wall clock, publishes committed events and hands outbound transfers
// to the dispatcher. Calls run one at a time so events are published in
// commit order.
type Service struct {
	mu         sync.Mutex
	cfg        Config
	store      kv.Store
	contract   *farm.Contract
	hub        *Hub
	metrics    *Metrics
	dispatcher *Dispatcher
	now        func() time.Time
}

// NewService creates the ledger over store. A nil sender leaves transfers
// pending until an outcome is posted to the resolve endpoint.
func NewService(cfg Config, store kv.Store, sender Sender) (*Service, error) {
	ccfg, err := cfg.ContractConfig()
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:      cfg,
		store:    store,
		contract: farm.New(store, ccfg),
		hub:      NewHub(),
		metrics:  NewMetrics(),
		now:      time.Now,
	}
	if sender != nil {
		s.dispatcher = NewDispatcher(sender, cfg.DispatchQueue)
	}
	return s, nil
}

// SetClock replaces the wall clock, for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Hub returns the event hub.
func (s *Service) Hub() *Hub { return s.hub }

// Metrics returns the service collectors.
func (s *Service) Metrics() *Metrics { return s.metrics }

// Start queues every transfer still pending from a previous run and starts
// delivering. Pending transfers that did not fit in the queue are picked up
// every RequeueInterval. It returns immediately; delivery stops when ctx is
// done.
func (s *Service) Start(ctx context.Context) error {
	pending, err := s.contract.PendingTransfers()
	if err != nil {
		return err
	}
	s.metrics.setPending(len(pending))

	if s.dispatcher == nil {
		if len(pending) > 0 {
			log.Printf("%d transfers pending, waiting for outcomes", len(pending))
		}
		return nil
	}

	for _, tr := range pending {
		if !s.dispatcher.Enqueue(tr) {
			log.Printf("Dispatch queue full, remaining transfers wait for the next requeue")
			break
		}
	}
	go s.dispatcher.Run(ctx, s.ResolveTransfer)

	interval := s.cfg.RequeueInterval
	if interval <= 0 {
		interval = DefaultConfig().RequeueInterval
	}
	go s.dispatcher.Requeue(ctx, interval, s.contract.PendingTransfers)
	return nil
}

// Close disconnects event subscribers and closes the store.
func (s *Service) Close() error {
	s.hub.Close()
	return s.store.Close()
}

func (s *Service) env(caller string) farm.Env {
	return farm.Env{Caller: caller, Timestamp: uint64(s.now().UnixNano())}
}

// call runs fn and publishes its receipt under the service lock.
func (s *Service) call(method string, fn func() (*farm.Receipt, error)) (*farm.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := fn()
	s.after(method, r, err)
	return r, err
}

func (s *Service) after(method string, r *farm.Receipt, err error) {
	s.metrics.observeCall(method, err)
	if err != nil || r == nil {
		return
	}

	for _, ev := range r.Events {
		log.Printf("%s farm=%d account=%s token=%s amount=%s", ev.Method, ev.FarmID, ev.Account, ev.Token, ev.Amount)
		switch ev.Method {
		case farm.EventTransferSettled:
			s.metrics.transferResolved(true)
		case farm.EventTransferFailed:
			s.metrics.transferResolved(false)
		}
	}
	s.hub.Broadcast(r.Events)

	s.metrics.transferIssued(len(r.Transfers))
	if s.dispatcher == nil {
		return
	}
	for _, tr := range r.Transfers {
		if !s.dispatcher.Enqueue(tr) {
			log.Printf("Dispatch queue full, transfer %s waits for the next requeue", tr.ID)
		}
	}
}

func (s *Service) CreateFarm(caller string, in farm.FarmInput) (uint64, *farm.Receipt, error) {
	var id uint64
	r, err := s.call("create_farm", func() (r *farm.Receipt, err error) {
		id, r, err = s.contract.CreateFarm(s.env(caller), in)
		return r, err
	})
	return id, r, err
}

// OnTransfer handles an inbound transfer of token from sender.
func (s *Service) OnTransfer(token, sender string, amount farm.Amount, msg string) (*farm.Receipt, error) {
	return s.call("on_transfer", func() (*farm.Receipt, error) {
		return s.contract.OnTransfer(s.env(token), sender, amount, msg)
	})
}

func (s *Service) Claim(caller string, farmID uint64) (*farm.Receipt, error) {
	return s.call("claim", func() (*farm.Receipt, error) {
		return s.contract.Claim(s.env(caller), farmID)
	})
}

func (s *Service) Withdraw(caller string, farmID uint64, amount farm.Amount) (*farm.Receipt, error) {
	return s.call("withdraw", func() (*farm.Receipt, error) {
		return s.contract.Withdraw(s.env(caller), farmID, amount)
	})
}

func (s *Service) StorageDeposit(account string, amount farm.Amount) (*farm.Receipt, error) {
	return s.call("storage_deposit", func() (*farm.Receipt, error) {
		return s.contract.StorageDeposit(s.env(account), amount)
	})
}

func (s *Service) StorageWithdraw(account string, amount *farm.Amount) (*farm.Receipt, error) {
	return s.call("storage_withdraw", func() (*farm.Receipt, error) {
		return s.contract.StorageWithdraw(s.env(account), amount)
	})
}

// ResolveTransfer records the outcome of an outbound transfer, whether it
// comes from the dispatcher or from the resolve endpoint.
func (s *Service) ResolveTransfer(id string, ok bool) error {
	_, err := s.call("resolve_transfer", func() (*farm.Receipt, error) {
		return s.contract.ResolveTransfer(s.env(""), id, ok)
	})
	if err == nil && s.dispatcher != nil {
		s.dispatcher.Done(id)
	}
	return err
}

func (s *Service) RedeemOwed(account, token string) (*farm.Receipt, error) {
	return s.call("redeem_owed", func() (*farm.Receipt, error) {
		return s.contract.RedeemOwed(s.env(account), token)
	})
}

// nowNanos returns the projection instant for a view: at when non-zero,
// otherwise the current time.
func (s *Service) nowNanos(atSec uint64) (uint64, error) {
	if atSec > 0 {
		return farm.SecondsToNanos("at", atSec)
	}
	return uint64(s.now().UnixNano()), nil
}

func (s *Service) GetFarm(farmID, atSec uint64) (*farm.FarmView, error) {
	now, err := s.nowNanos(atSec)
	if err != nil {
		return nil, err
	}
	return s.contract.GetFarm(now, farmID)
}

func (s *Service) ListFarms(from, limit, atSec uint64) ([]farm.FarmView, error) {
	now, err := s.nowNanos(atSec)
	if err != nil {
		return nil, err
	}
	return s.contract.ListFarms(now, from, limit)
}

func (s *Service) GetStakeInfo(account string, farmID, atSec uint64) (*farm.StakeInfoView, error) {
	now, err := s.nowNanos(atSec)
	if err != nil {
		return nil, err
	}
	return s.contract.GetStakeInfo(now, account, farmID)
}

func (s *Service) ListStakesByUser(account string, from, limit, atSec uint64) ([]farm.StakeInfoView, error) {
	now, err := s.nowNanos(atSec)
	if err != nil {
		return nil, err
	}
	return s.contract.ListStakesByUser(now, account, from, limit)
}

func (s *Service) StorageBalanceOf(account string) (*farm.StorageBalanceView, error) {
	return s.contract.StorageBalanceOf(account)
}

func (s *Service) OwedBalances(account string) ([]farm.OwedBalance, error) {
	return s.contract.OwedBalances(account)
}

func (s *Service) PendingTransfers() ([]farm.Transfer, error) {
	return s.contract.PendingTransfers()
}
