package farm

import "github.com/vsc-eco/vsc-farm/schemas"

// multiplier scales reward_per_share so integer division keeps precision.
var multiplier = NewAmount(1_000_000_000_000)

// Multiplier returns the fixed-point scale of reward_per_share, 10^12.
func Multiplier() Amount { return multiplier }

// Inbound transfer actions, carried as "<ACTION>:<farm_id>".
const (
	MsgStake     = schemas.ActionStake
	MsgAddReward = schemas.ActionAddReward
)

// NativeToken identifies the token storage deposits are paid in.
const NativeToken = "native"

// DefaultStorageByteCost is the price of one byte of state in native units.
var DefaultStorageByteCost = NewAmount(10_000_000_000_000_000_000)

const nanosPerSecond = uint64(1_000_000_000)

// farmStorageBytes estimates the persisted size of a farm with n reward slots.
func farmStorageBytes(n int) uint64 {
	slots := uint64(n)
	return 40 + // staking token
		48 + // reward token list header
		16*slots + // reward_per_session
		16*slots + // reward_per_share
		32 + // session interval, start and last distribution
		32*slots + // reward token ids
		16*slots + // remaining_reward
		8 // status
}

// stakeStorageBytes estimates the persisted size of a stake with n reward slots.
func stakeStorageBytes(n int) uint64 {
	slots := uint64(n)
	return 40 + // map key
		16 + // amount
		8 + // lockup_end
		16*slots + // reward_debt
		16*slots // accrued_rewards
}
