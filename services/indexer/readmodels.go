package indexer

import (
	"errors"
	"sort"
	"sync"

	"github.com/vsc-eco/vsc-farm/contracts/farm"
)

var errUnknownAccount = errors.New("account not indexed")

// FarmReadModel folds ledger events into farm and account summaries
type FarmReadModel struct {
	mu       sync.RWMutex
	farms    map[uint64]*FarmSummary
	accounts map[string]*AccountSummary
}

// NewFarmReadModel creates a new farm read model
func NewFarmReadModel() *FarmReadModel {
	return &FarmReadModel{
		farms:    make(map[uint64]*FarmSummary),
		accounts: make(map[string]*AccountSummary),
	}
}

func (rm *FarmReadModel) account(name string) *AccountSummary {
	a, ok := rm.accounts[name]
	if !ok {
		a = &AccountSummary{
			Account: name,
			Stakes:  make(map[uint64]farm.Amount),
			Claimed: make(map[string]farm.Amount),
			Owed:    make(map[string]farm.Amount),
		}
		rm.accounts[name] = a
	}
	return a
}

// HandleEvent processes ledger events and updates read models
func (rm *FarmReadModel) HandleEvent(event farm.Event) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	switch event.Method {
	case farm.EventFarmCreated:
		rm.farms[event.FarmID] = &FarmSummary{
			FarmID:       event.FarmID,
			Creator:      event.Account,
			StakingToken: event.Token,
			Funded:       make(map[string]farm.Amount),
			Claimed:      make(map[string]farm.Amount),
			CreatedAt:    event.Timestamp,
			UpdatedAt:    event.Timestamp,
		}
		return nil

	case farm.EventStorageDeposited:
		a := rm.account(event.Account)
		a.Storage = a.Storage.Add(event.Amount)
		return nil

	case farm.EventStorageWithdrawn:
		a := rm.account(event.Account)
		a.Storage = a.Storage.Sub(event.Amount)
		return nil

	case farm.EventTransferFailed:
		a := rm.account(event.Account)
		a.Owed[event.Token] = a.Owed[event.Token].Add(event.Amount)
		return nil

	case farm.EventOwedRedeemed:
		a := rm.account(event.Account)
		delete(a.Owed, event.Token)
		return nil

	case farm.EventTransferSettled:
		return nil
	}

	f, ok := rm.farms[event.FarmID]
	if !ok {
		// events from before this indexer started
		return nil
	}
	f.UpdatedAt = event.Timestamp

	switch event.Method {
	case farm.EventRewardAdded:
		f.Funded[event.Token] = f.Funded[event.Token].Add(event.Amount)

	case farm.EventStaked:
		a := rm.account(event.Account)
		if _, staked := a.Stakes[event.FarmID]; !staked {
			f.Stakers++
		}
		a.Stakes[event.FarmID] = a.Stakes[event.FarmID].Add(event.Amount)
		f.TotalStaked = f.TotalStaked.Add(event.Amount)

	case farm.EventWithdrawn:
		a := rm.account(event.Account)
		staked, ok := a.Stakes[event.FarmID]
		if !ok {
			// a stake this indexer never saw
			break
		}
		left := staked.Sub(event.Amount)
		if left.IsZero() {
			delete(a.Stakes, event.FarmID)
			f.Stakers--
		} else {
			a.Stakes[event.FarmID] = left
		}
		f.TotalStaked = f.TotalStaked.Sub(staked.Sub(left))

	case farm.EventClaimed:
		a := rm.account(event.Account)
		a.Claimed[event.Token] = a.Claimed[event.Token].Add(event.Amount)
		f.Claimed[event.Token] = f.Claimed[event.Token].Add(event.Amount)

	case farm.EventFarmEnded:
		f.Ended = true
	}

	return nil
}

// QueryFarms returns all indexed farms in id order
func (rm *FarmReadModel) QueryFarms() ([]FarmSummary, error) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	farms := make([]FarmSummary, 0, len(rm.farms))
	for _, f := range rm.farms {
		farms = append(farms, copyFarm(f))
	}
	sort.Slice(farms, func(i, j int) bool { return farms[i].FarmID < farms[j].FarmID })

	return farms, nil
}

// GetFarm returns a specific farm by id
func (rm *FarmReadModel) GetFarm(farmID uint64) (FarmSummary, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	f, exists := rm.farms[farmID]
	if !exists {
		return FarmSummary{}, false
	}
	return copyFarm(f), true
}

// QueryAccount returns the activity of one account
func (rm *FarmReadModel) QueryAccount(account string) (AccountSummary, error) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	a, exists := rm.accounts[account]
	if !exists {
		return AccountSummary{}, errUnknownAccount
	}

	out := *a
	out.Stakes = make(map[uint64]farm.Amount, len(a.Stakes))
	for k, v := range a.Stakes {
		out.Stakes[k] = v
	}
	out.Claimed = copyTotals(a.Claimed)
	out.Owed = copyTotals(a.Owed)
	return out, nil
}

func copyFarm(f *FarmSummary) FarmSummary {
	out := *f
	out.Funded = copyTotals(f.Funded)
	out.Claimed = copyTotals(f.Claimed)
	return out
}

func copyTotals(in map[string]farm.Amount) map[string]farm.Amount {
	out := make(map[string]farm.Amount, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
