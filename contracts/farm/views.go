package farm

import (
	"encoding/json"
	"sort"
	"strings"
)

// FarmView is the read-only form of a farm. Durations and instants are in
// seconds.
type FarmView struct {
	FarmID              uint64   `json:"farm_id"`
	StakingToken        string   `json:"staking_token"`
	RewardTokens        []string `json:"reward_tokens"`
	RewardPerSession    []Amount `json:"reward_per_session"`
	SessionIntervalSec  uint64   `json:"session_interval_sec"`
	StartAtSec          uint64   `json:"start_at_sec"`
	LastDistributionSec uint64   `json:"last_distribution_sec"`
	TotalStaked         Amount   `json:"total_staked"`
	RewardPerShare      []Amount `json:"reward_per_share"`
	RemainingReward     []Amount `json:"remaining_reward"`
	LockupPeriodSec     uint64   `json:"lockup_period_sec"`
	Status              Status   `json:"status"`
}

func newFarmView(id uint64, f *Farm) FarmView {
	return FarmView{
		FarmID:              id,
		StakingToken:        f.StakingToken,
		RewardTokens:        f.RewardTokens,
		RewardPerSession:    f.RewardPerSession,
		SessionIntervalSec:  f.SessionInterval / nanosPerSecond,
		StartAtSec:          f.StartTime / nanosPerSecond,
		LastDistributionSec: f.LastDistribution / nanosPerSecond,
		TotalStaked:         f.TotalStaked,
		RewardPerShare:      f.RewardPerShare,
		RemainingReward:     f.RemainingReward,
		LockupPeriodSec:     f.LockupPeriod / nanosPerSecond,
		Status:              f.Status,
	}
}

// StakeInfoView is the read-only form of a stake with rewards projected to
// the query time.
type StakeInfoView struct {
	FarmID         uint64   `json:"farm_id"`
	Account        string   `json:"account"`
	Amount         Amount   `json:"amount"`
	LockupEndSec   uint64   `json:"lockup_end_sec"`
	RewardDebt     []Amount `json:"reward_debt"`
	AccruedRewards []Amount `json:"accrued_rewards"`
	RewardTokens   []string `json:"reward_tokens"`
}

func newStakeInfoView(account string, farmID uint64, s *Stake, projected *Farm) StakeInfoView {
	sim := s.clone()
	settle(sim, projected)
	return StakeInfoView{
		FarmID:         farmID,
		Account:        account,
		Amount:         s.Amount,
		LockupEndSec:   s.LockupEnd / nanosPerSecond,
		RewardDebt:     s.RewardDebt,
		AccruedRewards: sim.AccruedRewards,
		RewardTokens:   projected.RewardTokens,
	}
}

// StorageBalanceView reports an account's prepaid storage.
type StorageBalanceView struct {
	Account   string `json:"account"`
	Deposit   Amount `json:"deposit"`
	UsedBytes uint64 `json:"used_bytes"`
	Locked    Amount `json:"locked"`
	Available Amount `json:"available"`
}

// OwedBalance is a failed transfer amount waiting to be redeemed.
type OwedBalance struct {
	Token  string `json:"token"`
	Amount Amount `json:"amount"`
}

func (c *Contract) read() (*txn, func()) {
	c.mu.RLock()
	return newTxn(c.store), c.mu.RUnlock
}

// FarmCount returns the number of farms ever created.
func (c *Contract) FarmCount() (uint64, error) {
	tx, done := c.read()
	defer done()
	return tx.getUint(keyFarmCount)
}

// GetFarm returns the farm as it would look after a catch-up at now.
func (c *Contract) GetFarm(now, farmID uint64) (*FarmView, error) {
	tx, done := c.read()
	defer done()

	f, err := tx.loadFarm(farmID)
	if err != nil {
		return nil, err
	}
	v := newFarmView(farmID, project(f, now))
	return &v, nil
}

// ListFarms returns up to limit farms starting at id from, projected to now.
func (c *Contract) ListFarms(now, from, limit uint64) ([]FarmView, error) {
	tx, done := c.read()
	defer done()

	count, err := tx.getUint(keyFarmCount)
	if err != nil {
		return nil, err
	}
	end := count
	if from < count && limit < count-from {
		end = from + limit
	}

	out := make([]FarmView, 0)
	for id := from; id < end; id++ {
		f, err := tx.loadFarm(id)
		if err != nil {
			return nil, err
		}
		out = append(out, newFarmView(id, project(f, now)))
	}
	return out, nil
}

// GetStakeInfo returns account's stake in the farm with accrued rewards
// projected to now.
func (c *Contract) GetStakeInfo(now uint64, account string, farmID uint64) (*StakeInfoView, error) {
	tx, done := c.read()
	defer done()

	s, err := loadPosition(tx, account, farmID)
	if err != nil {
		return nil, err
	}
	f, err := tx.loadFarm(farmID)
	if err != nil {
		return nil, err
	}
	v := newStakeInfoView(account, farmID, s, project(f, now))
	return &v, nil
}

// ListStakesByUser pages through account's stakes in farm id order.
func (c *Contract) ListStakesByUser(now uint64, account string, from, limit uint64) ([]StakeInfoView, error) {
	if err := validateAccount("account", account); err != nil {
		return nil, err
	}

	tx, done := c.read()
	defer done()

	out := make([]StakeInfoView, 0)
	var skipped uint64
	var walkErr error
	prefix := stakePrefix(account)
	err := tx.iterate(prefix, func(key string, raw []byte) bool {
		if uint64(len(out)) >= limit {
			return false
		}
		if skipped < from {
			skipped++
			return true
		}
		farmID, err := parseID(strings.TrimPrefix(key, prefix))
		if err != nil {
			walkErr = err
			return false
		}
		var s Stake
		if err := json.Unmarshal(raw, &s); err != nil {
			walkErr = err
			return false
		}
		f, err := tx.loadFarm(farmID)
		if err != nil {
			walkErr = err
			return false
		}
		out = append(out, newStakeInfoView(account, farmID, &s, project(f, now)))
		return true
	})
	if err != nil {
		return nil, err
	}
	if walkErr != nil {
		return nil, walkErr
	}
	return out, nil
}

// StorageBalanceOf reports account's prepaid storage.
func (c *Contract) StorageBalanceOf(account string) (*StorageBalanceView, error) {
	tx, done := c.read()
	defer done()

	bal, err := tx.loadStorage(account)
	if err != nil {
		return nil, err
	}
	return &StorageBalanceView{
		Account:   account,
		Deposit:   bal.Deposit,
		UsedBytes: bal.UsedBytes,
		Locked:    bal.Locked(c.cfg.StorageByteCost),
		Available: bal.Available(c.cfg.StorageByteCost),
	}, nil
}

// OwedBalances lists what failed transfers left owed to account.
func (c *Contract) OwedBalances(account string) ([]OwedBalance, error) {
	tx, done := c.read()
	defer done()

	out := make([]OwedBalance, 0)
	var decodeErr error
	prefix := owedPrefix(account)
	err := tx.iterate(prefix, func(key string, raw []byte) bool {
		var a Amount
		if decodeErr = a.UnmarshalJSON(raw); decodeErr != nil {
			return false
		}
		out = append(out, OwedBalance{Token: strings.TrimPrefix(key, prefix), Amount: a})
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, decodeErr
}

// PendingTransfers lists outbound transfers still waiting for an outcome,
// oldest first.
func (c *Contract) PendingTransfers() ([]Transfer, error) {
	tx, done := c.read()
	defer done()

	out := make([]Transfer, 0)
	err := tx.iterate(keyTransferPfx, func(key string, raw []byte) bool {
		var tr Transfer
		if err := json.Unmarshal(raw, &tr); err == nil {
			out = append(out, tr)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}
