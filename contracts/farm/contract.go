package farm

import (
	"fmt"
	"math"
	"sync"

	"github.com/vsc-eco/vsc-farm/internal/kv"
	"github.com/vsc-eco/vsc-farm/schemas"
)

// Config parameterises a Contract.
type Config struct {
	// StorageByteCost is charged per byte of state in native units.
	StorageByteCost Amount
}

// DefaultConfig returns the production configuration.
func DefaultConfig() Config {
	return Config{StorageByteCost: DefaultStorageByteCost}
}

// Env is the context a call executes in. Timestamp is unix nanoseconds.
type Env struct {
	Caller    string
	Timestamp uint64
}

// Contract is the farm ledger. Mutating calls run one at a time and either
// commit every write or none.
type Contract struct {
	mu    sync.RWMutex
	store kv.Store
	cfg   Config
}

// New creates a ledger over store.
func New(store kv.Store, cfg Config) *Contract {
	return &Contract{store: store, cfg: cfg}
}

// Config returns the ledger configuration.
func (c *Contract) Config() Config { return c.cfg }

func (c *Contract) exec(fn func(tx *txn, r *Receipt) error) (*Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx := newTxn(c.store)
	r := &Receipt{}
	if err := fn(tx, r); err != nil {
		return nil, err
	}
	if err := tx.commit(c.store); err != nil {
		return nil, err
	}
	return r, nil
}

// SecondsToNanos converts an API instant or duration in seconds, rejecting
// values that do not fit in uint64 nanoseconds.
func SecondsToNanos(field string, sec uint64) (uint64, error) {
	if sec > math.MaxUint64/nanosPerSecond {
		return 0, &ValidationError{Field: field, Message: "value out of range"}
	}
	return sec * nanosPerSecond, nil
}

func addClamped(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}

// admit charges bytes of new state to account's prepaid storage.
func (c *Contract) admit(tx *txn, account string, bytes uint64) error {
	bal, err := tx.loadStorage(account)
	if err != nil {
		return err
	}
	cost := NewAmount(bal.UsedBytes).Add(NewAmount(bytes)).Mul(c.cfg.StorageByteCost)
	if bal.Deposit.Lt(cost) {
		return &InsufficientStorageError{Need: cost.Sub(bal.Deposit)}
	}
	bal.UsedBytes = addClamped(bal.UsedBytes, bytes)
	return tx.saveStorage(account, bal)
}

func (c *Contract) release(tx *txn, account string, bytes uint64) error {
	bal, err := tx.loadStorage(account)
	if err != nil {
		return err
	}
	if bal.UsedBytes < bytes {
		bal.UsedBytes = 0
	} else {
		bal.UsedBytes -= bytes
	}
	return tx.saveStorage(account, bal)
}

// CreateFarm registers a new farm and charges its storage to the caller.
// The reward pool starts empty; funding arrives through ADD_REWARD transfers.
func (c *Contract) CreateFarm(env Env, in FarmInput) (uint64, *Receipt, error) {
	if err := in.Validate(); err != nil {
		return 0, nil, err
	}
	if err := validateAccount("caller", env.Caller); err != nil {
		return 0, nil, err
	}
	lockup, err := SecondsToNanos("lockup_period_sec", in.LockupPeriodSec)
	if err != nil {
		return 0, nil, err
	}
	interval, err := SecondsToNanos("session_interval_sec", in.SessionIntervalSec)
	if err != nil {
		return 0, nil, err
	}
	start, err := SecondsToNanos("start_at_sec", in.StartAtSec)
	if err != nil {
		return 0, nil, err
	}

	var farmID uint64
	r, err := c.exec(func(tx *txn, r *Receipt) error {
		n := len(in.RewardTokens)
		if err := c.admit(tx, env.Caller, farmStorageBytes(n)); err != nil {
			return err
		}

		id, err := tx.getUint(keyFarmCount)
		if err != nil {
			return fmt.Errorf("farm count: %w", err)
		}
		tx.setUint(keyFarmCount, id+1)

		last := start
		if in.StartAtSec == 0 {
			last = env.Timestamp
		}
		f := &Farm{
			StakingToken:     in.StakingToken,
			RewardTokens:     append([]string(nil), in.RewardTokens...),
			RewardPerSession: append([]Amount(nil), in.RewardPerSession...),
			SessionInterval:  interval,
			StartTime:        start,
			LastDistribution: last,
			RewardPerShare:   make([]Amount, n),
			LockupPeriod:     lockup,
			RemainingReward:  make([]Amount, n),
			Status:           StatusActive,
		}
		if err := tx.saveFarm(id, f); err != nil {
			return err
		}

		farmID = id
		r.Events = append(r.Events, Event{
			Method:    EventFarmCreated,
			FarmID:    id,
			Account:   env.Caller,
			Token:     in.StakingToken,
			Timestamp: env.Timestamp,
		})
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	return farmID, r, nil
}

// OnTransfer handles an inbound token transfer. env.Caller is the token
// being transferred. A message that cannot be routed declines the transfer:
// the receipt refunds the full amount and no state changes. Any error means
// the transfer was not accepted.
func (c *Contract) OnTransfer(env Env, sender string, amount Amount, msg string) (*Receipt, error) {
	memo, err := schemas.ParseTransferMemo(msg)
	if err != nil {
		return &Receipt{Refund: amount}, nil
	}
	if err := validateToken("token", env.Caller); err != nil {
		return nil, err
	}
	if err := validateAccount("sender", sender); err != nil {
		return nil, err
	}
	if amount.IsZero() {
		return nil, &ValidationError{Field: "amount", Message: "amount must be greater than 0"}
	}

	return c.exec(func(tx *txn, r *Receipt) error {
		switch memo.Action {
		case MsgStake:
			return c.stake(tx, r, env.Timestamp, env.Caller, sender, memo.FarmID, amount)
		case MsgAddReward:
			return c.fund(tx, r, env.Timestamp, env.Caller, sender, memo.FarmID, amount)
		}
		return fmt.Errorf("action %s: %w", memo.Action, ErrInvalidInput)
	})
}

// fund adds amount to the reward pool of the slot paying token. It does not
// catch the farm up. Ended farms take no new rewards.
func (c *Contract) fund(tx *txn, r *Receipt, now uint64, token, sender string, farmID uint64, amount Amount) error {
	f, err := tx.loadFarm(farmID)
	if err != nil {
		return err
	}
	if f.Status == StatusEnded {
		return fmt.Errorf("farm %d: %w", farmID, ErrFarmEnded)
	}
	slot, ok := f.rewardSlot(token)
	if !ok {
		return fmt.Errorf("%s is not a reward token of farm %d: %w", token, farmID, ErrTokenMismatch)
	}
	f.RemainingReward[slot] = f.RemainingReward[slot].Add(amount)
	if err := tx.saveFarm(farmID, f); err != nil {
		return err
	}

	r.Events = append(r.Events, Event{
		Method:    EventRewardAdded,
		FarmID:    farmID,
		Account:   sender,
		Token:     token,
		Amount:    amount,
		Timestamp: now,
	})
	return nil
}

func (c *Contract) stake(tx *txn, r *Receipt, now uint64, token, account string, farmID uint64, amount Amount) error {
	f, err := tx.loadFarm(farmID)
	if err != nil {
		return err
	}
	if f.Status == StatusEnded {
		return fmt.Errorf("farm %d: %w", farmID, ErrFarmEnded)
	}
	if f.StakingToken != token {
		return fmt.Errorf("farm %d stakes %s, got %s: %w", farmID, f.StakingToken, token, ErrTokenMismatch)
	}

	s, err := tx.loadStake(account, farmID)
	if err != nil {
		return err
	}
	if s == nil {
		if err := c.admit(tx, account, stakeStorageBytes(len(f.RewardTokens))); err != nil {
			return err
		}
	}

	if f, err = catchUp(tx, r, farmID, now); err != nil {
		return err
	}

	lockupEnd := addClamped(now, f.LockupPeriod)
	if s == nil {
		s = newStake(len(f.RewardTokens), lockupEnd)
	}
	// A new stake has no principal yet, so this only sets its debt baseline.
	settle(s, f)

	s.Amount = s.Amount.Add(amount)
	f.TotalStaked = f.TotalStaked.Add(amount)
	if lockupEnd > s.LockupEnd {
		s.LockupEnd = lockupEnd
	}

	if err := tx.saveStake(account, farmID, s); err != nil {
		return err
	}
	if err := tx.saveFarm(farmID, f); err != nil {
		return err
	}

	r.Events = append(r.Events, Event{
		Method:    EventStaked,
		FarmID:    farmID,
		Account:   account,
		Token:     token,
		Amount:    amount,
		Timestamp: now,
	})
	return nil
}

// loadPosition resolves the farm and the caller's stake in it.
func loadPosition(tx *txn, account string, farmID uint64) (*Stake, error) {
	if _, err := tx.loadFarm(farmID); err != nil {
		return nil, err
	}
	s, err := tx.loadStake(account, farmID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("%s in farm %d: %w", account, farmID, ErrStakeNotFound)
	}
	return s, nil
}

// Claim pays out everything the caller has accrued in the farm.
func (c *Contract) Claim(env Env, farmID uint64) (*Receipt, error) {
	if err := validateAccount("caller", env.Caller); err != nil {
		return nil, err
	}

	return c.exec(func(tx *txn, r *Receipt) error {
		s, err := loadPosition(tx, env.Caller, farmID)
		if err != nil {
			return err
		}
		f, err := catchUp(tx, r, farmID, env.Timestamp)
		if err != nil {
			return err
		}
		settle(s, f)

		for i, token := range f.RewardTokens {
			amount := s.AccruedRewards[i]
			if amount.IsZero() {
				continue
			}
			s.AccruedRewards[i] = Amount{}
			err := issueTransfer(tx, r, Transfer{
				Kind:      TransferReward,
				Receiver:  env.Caller,
				Token:     token,
				Amount:    amount,
				FarmID:    farmID,
				Slot:      i,
				CreatedAt: env.Timestamp,
			})
			if err != nil {
				return err
			}
			r.Events = append(r.Events, Event{
				Method:    EventClaimed,
				FarmID:    farmID,
				Account:   env.Caller,
				Token:     token,
				Amount:    amount,
				Timestamp: env.Timestamp,
			})
		}
		return tx.saveStake(env.Caller, farmID, s)
	})
}

// Withdraw returns amount of principal once the lockup has passed. Taking
// the principal to zero removes the stake together with any accrued rewards
// that were not claimed first.
func (c *Contract) Withdraw(env Env, farmID uint64, amount Amount) (*Receipt, error) {
	if err := validateAccount("caller", env.Caller); err != nil {
		return nil, err
	}
	if amount.IsZero() {
		return nil, &ValidationError{Field: "amount", Message: "amount must be greater than 0"}
	}

	return c.exec(func(tx *txn, r *Receipt) error {
		s, err := loadPosition(tx, env.Caller, farmID)
		if err != nil {
			return err
		}
		if env.Timestamp < s.LockupEnd {
			return fmt.Errorf("farm %d: %w", farmID, ErrLockupNotExpired)
		}
		if amount.Gt(s.Amount) {
			return fmt.Errorf("withdraw %s of %s: %w", amount, s.Amount, ErrInsufficientStake)
		}

		f, err := catchUp(tx, r, farmID, env.Timestamp)
		if err != nil {
			return err
		}
		settle(s, f)

		s.Amount = s.Amount.Sub(amount)
		f.TotalStaked = f.TotalStaked.Sub(amount)

		if s.Amount.IsZero() {
			tx.deleteStake(env.Caller, farmID)
			if err := c.release(tx, env.Caller, stakeStorageBytes(len(f.RewardTokens))); err != nil {
				return err
			}
		} else if err := tx.saveStake(env.Caller, farmID, s); err != nil {
			return err
		}
		if err := tx.saveFarm(farmID, f); err != nil {
			return err
		}

		err = issueTransfer(tx, r, Transfer{
			Kind:      TransferPrincipal,
			Receiver:  env.Caller,
			Token:     f.StakingToken,
			Amount:    amount,
			FarmID:    farmID,
			CreatedAt: env.Timestamp,
		})
		if err != nil {
			return err
		}
		r.Events = append(r.Events, Event{
			Method:    EventWithdrawn,
			FarmID:    farmID,
			Account:   env.Caller,
			Token:     f.StakingToken,
			Amount:    amount,
			Timestamp: env.Timestamp,
		})
		return nil
	})
}

// StorageDeposit credits amount of the native token to the caller's
// prepaid storage.
func (c *Contract) StorageDeposit(env Env, amount Amount) (*Receipt, error) {
	if err := validateAccount("caller", env.Caller); err != nil {
		return nil, err
	}
	if amount.IsZero() {
		return nil, &ValidationError{Field: "amount", Message: "amount must be greater than 0"}
	}

	return c.exec(func(tx *txn, r *Receipt) error {
		bal, err := tx.loadStorage(env.Caller)
		if err != nil {
			return err
		}
		bal.Deposit = bal.Deposit.Add(amount)
		if err := tx.saveStorage(env.Caller, bal); err != nil {
			return err
		}
		r.Events = append(r.Events, Event{
			Method:    EventStorageDeposited,
			Account:   env.Caller,
			Token:     NativeToken,
			Amount:    amount,
			Timestamp: env.Timestamp,
		})
		return nil
	})
}

// StorageWithdraw returns unlocked storage deposit to the caller. A nil
// amount withdraws everything available.
func (c *Contract) StorageWithdraw(env Env, amount *Amount) (*Receipt, error) {
	if err := validateAccount("caller", env.Caller); err != nil {
		return nil, err
	}

	return c.exec(func(tx *txn, r *Receipt) error {
		bal, err := tx.loadStorage(env.Caller)
		if err != nil {
			return err
		}
		available := bal.Available(c.cfg.StorageByteCost)
		out := available
		if amount != nil {
			out = *amount
		}
		if out.Gt(available) {
			return fmt.Errorf("withdraw %s of %s: %w", out, available, ErrInsufficientFunds)
		}
		if out.IsZero() {
			return nil
		}

		bal.Deposit = bal.Deposit.Sub(out)
		if err := tx.saveStorage(env.Caller, bal); err != nil {
			return err
		}
		err = issueTransfer(tx, r, Transfer{
			Kind:      TransferStorage,
			Receiver:  env.Caller,
			Token:     NativeToken,
			Amount:    out,
			CreatedAt: env.Timestamp,
		})
		if err != nil {
			return err
		}
		r.Events = append(r.Events, Event{
			Method:    EventStorageWithdrawn,
			Account:   env.Caller,
			Token:     NativeToken,
			Amount:    out,
			Timestamp: env.Timestamp,
		})
		return nil
	})
}

// ResolveTransfer records the outcome of a pending outbound transfer. A
// failed transfer is credited to the receiver's owed balance for the token,
// from where RedeemOwed can send it again. Farm accounting is not touched.
func (c *Contract) ResolveTransfer(env Env, id string, ok bool) (*Receipt, error) {
	return c.exec(func(tx *txn, r *Receipt) error {
		tr, err := tx.loadTransfer(id)
		if err != nil {
			return err
		}
		tx.del(transferKey(id))

		ev := Event{
			Method:    EventTransferSettled,
			FarmID:    tr.FarmID,
			Account:   tr.Receiver,
			Token:     tr.Token,
			Amount:    tr.Amount,
			Timestamp: env.Timestamp,
		}
		if !ok {
			owed, err := tx.loadOwed(tr.Receiver, tr.Token)
			if err != nil {
				return err
			}
			if err := tx.saveOwed(tr.Receiver, tr.Token, owed.Add(tr.Amount)); err != nil {
				return err
			}
			ev.Method = EventTransferFailed
		}
		r.Events = append(r.Events, ev)
		return nil
	})
}

// RedeemOwed sends the caller everything owed to them in token.
func (c *Contract) RedeemOwed(env Env, token string) (*Receipt, error) {
	if err := validateAccount("caller", env.Caller); err != nil {
		return nil, err
	}
	if err := validateToken("token", token); err != nil {
		return nil, err
	}

	return c.exec(func(tx *txn, r *Receipt) error {
		owed, err := tx.loadOwed(env.Caller, token)
		if err != nil {
			return err
		}
		if owed.IsZero() {
			return fmt.Errorf("%s in %s: %w", env.Caller, token, ErrNothingOwed)
		}
		if err := tx.saveOwed(env.Caller, token, Amount{}); err != nil {
			return err
		}
		err = issueTransfer(tx, r, Transfer{
			Kind:      TransferOwed,
			Receiver:  env.Caller,
			Token:     token,
			Amount:    owed,
			CreatedAt: env.Timestamp,
		})
		if err != nil {
			return err
		}
		r.Events = append(r.Events, Event{
			Method:    EventOwedRedeemed,
			Account:   env.Caller,
			Token:     token,
			Amount:    owed,
			Timestamp: env.Timestamp,
		})
		return nil
	})
}
