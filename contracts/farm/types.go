package farm

import "fmt"

// Status is the lifecycle state of a farm. Ended is terminal.
type Status uint8

const (
	StatusActive Status = iota
	StatusEnded
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "Active"
	case StatusEnded:
		return "Ended"
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

func (s Status) MarshalText() ([]byte, error) {
	switch s {
	case StatusActive, StatusEnded:
		return []byte(s.String()), nil
	}
	return nil, fmt.Errorf("unknown farm status %d", uint8(s))
}

func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "Active":
		*s = StatusActive
	case "Ended":
		*s = StatusEnded
	default:
		return fmt.Errorf("unknown farm status %q", text)
	}
	return nil
}

// Farm is the persisted state of one farm. Instants and durations are unix
// nanoseconds.
type Farm struct {
	StakingToken     string   `json:"staking_token"`
	RewardTokens     []string `json:"reward_tokens"`
	RewardPerSession []Amount `json:"reward_per_session"`
	SessionInterval  uint64   `json:"session_interval"`
	StartTime        uint64   `json:"start_time"`
	LastDistribution uint64   `json:"last_distribution"`
	TotalStaked      Amount   `json:"total_staked"`
	// RewardPerShare is scaled by Multiplier().
	RewardPerShare  []Amount `json:"reward_per_share"`
	LockupPeriod    uint64   `json:"lockup_period"`
	RemainingReward []Amount `json:"remaining_reward"`
	Status          Status   `json:"status"`
}

// Clone returns a deep copy so projections never alias persisted slices.
func (f *Farm) Clone() *Farm {
	c := *f
	c.RewardTokens = append([]string(nil), f.RewardTokens...)
	c.RewardPerSession = append([]Amount(nil), f.RewardPerSession...)
	c.RewardPerShare = append([]Amount(nil), f.RewardPerShare...)
	c.RemainingReward = append([]Amount(nil), f.RemainingReward...)
	return &c
}

// rewardSlot returns the index of token in the reward list.
func (f *Farm) rewardSlot(token string) (int, bool) {
	for i, t := range f.RewardTokens {
		if t == token {
			return i, true
		}
	}
	return 0, false
}

func (f *Farm) exhausted() bool {
	for _, r := range f.RemainingReward {
		if !r.IsZero() {
			return false
		}
	}
	return true
}

// Stake is one account's position in one farm.
type Stake struct {
	Amount         Amount   `json:"amount"`
	LockupEnd      uint64   `json:"lockup_end"`
	RewardDebt     []Amount `json:"reward_debt"`
	AccruedRewards []Amount `json:"accrued_rewards"`
}

func newStake(slots int, lockupEnd uint64) *Stake {
	return &Stake{
		LockupEnd:      lockupEnd,
		RewardDebt:     make([]Amount, slots),
		AccruedRewards: make([]Amount, slots),
	}
}

func (s *Stake) clone() *Stake {
	c := *s
	c.RewardDebt = append([]Amount(nil), s.RewardDebt...)
	c.AccruedRewards = append([]Amount(nil), s.AccruedRewards...)
	return &c
}

// FarmInput is the creation request for a farm.
type FarmInput struct {
	StakingToken       string   `json:"staking_token"`
	RewardTokens       []string `json:"reward_tokens"`
	LockupPeriodSec    uint64   `json:"lockup_period_sec"`
	RewardPerSession   []Amount `json:"reward_per_session"`
	SessionIntervalSec uint64   `json:"session_interval_sec"`
	StartAtSec         uint64   `json:"start_at_sec"`
}

// Validate checks the input shape before any state is touched.
func (in FarmInput) Validate() error {
	if in.SessionIntervalSec == 0 {
		return &ValidationError{Field: "session_interval_sec", Message: "session interval must be greater than 0"}
	}
	if len(in.RewardTokens) != len(in.RewardPerSession) {
		return &ValidationError{Field: "reward_per_session", Message: "must provide reward_per_session for each reward token"}
	}
	if err := validateToken("staking_token", in.StakingToken); err != nil {
		return err
	}
	seen := make(map[string]bool, len(in.RewardTokens))
	for _, t := range in.RewardTokens {
		if err := validateToken("reward_tokens", t); err != nil {
			return err
		}
		if seen[t] {
			return &ValidationError{Field: "reward_tokens", Message: "duplicate reward token " + t}
		}
		seen[t] = true
	}
	return nil
}

// StorageBalance is an account's prepaid storage. UsedBytes is the state
// currently charged against Deposit.
type StorageBalance struct {
	Deposit   Amount `json:"deposit"`
	UsedBytes uint64 `json:"used_bytes"`
}

// Locked is the part of the deposit backing UsedBytes at the given byte cost.
func (b StorageBalance) Locked(byteCost Amount) Amount {
	return NewAmount(b.UsedBytes).Mul(byteCost)
}

// Available is the withdrawable part of the deposit.
func (b StorageBalance) Available(byteCost Amount) Amount {
	return b.Deposit.Sub(b.Locked(byteCost))
}

// Transfer is an outbound token movement scheduled by a committed call.
// Its outcome arrives later through Contract.ResolveTransfer.
type Transfer struct {
	ID        string       `json:"id"`
	Kind      TransferKind `json:"kind"`
	Receiver  string       `json:"receiver"`
	Token     string       `json:"token"`
	Amount    Amount       `json:"amount"`
	FarmID    uint64       `json:"farm_id"`
	Slot      int          `json:"slot"`
	CreatedAt uint64       `json:"created_at"`
}

type TransferKind string

const (
	TransferReward    TransferKind = "reward"
	TransferPrincipal TransferKind = "principal"
	TransferStorage   TransferKind = "storage"
	TransferOwed      TransferKind = "owed"
)

// Event is a structured record of a committed state change.
type Event struct {
	Method    string `json:"method"`
	FarmID    uint64 `json:"farm_id"`
	Account   string `json:"account,omitempty"`
	Token     string `json:"token,omitempty"`
	Amount    Amount `json:"amount"`
	Timestamp uint64 `json:"timestamp"`
}

const (
	EventFarmCreated      = "farm_created"
	EventRewardAdded      = "reward_added"
	EventStaked           = "staked"
	EventClaimed          = "claimed"
	EventWithdrawn        = "withdrawn"
	EventFarmEnded        = "farm_ended"
	EventTransferSettled  = "transfer_settled"
	EventTransferFailed   = "transfer_failed"
	EventStorageDeposited = "storage_deposited"
	EventStorageWithdrawn = "storage_withdrawn"
	EventOwedRedeemed     = "owed_redeemed"
)

// Receipt collects the side effects of a committed call.
type Receipt struct {
	Transfers []Transfer `json:"transfers,omitempty"`
	Events    []Event    `json:"events,omitempty"`
	// Refund is the part of an inbound transfer handed back to the sender.
	Refund Amount `json:"refund"`
}
