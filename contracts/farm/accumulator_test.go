package farm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const sec = uint64(1_000_000_000)

func testFarm(rate, remaining, staked uint64) *Farm {
	return &Farm{
		StakingToken:     "stake.token",
		RewardTokens:     []string{"reward.token"},
		RewardPerSession: []Amount{NewAmount(rate)},
		SessionInterval:  10 * sec,
		RewardPerShare:   []Amount{{}},
		RemainingReward:  []Amount{NewAmount(remaining)},
		TotalStaked:      NewAmount(staked),
		Status:           StatusActive,
	}
}

func TestRewardPerShareIncrement(t *testing.T) {
	assert.True(t, RewardPerShareIncrement(NewAmount(100), Amount{}).IsZero())
	assert.True(t, RewardPerShareIncrement(Amount{}, NewAmount(100)).IsZero())
	assert.True(t, RewardPerShareIncrement(NewAmount(200), NewAmount(100)).Eq(NewAmount(2).Mul(multiplier)))
	// floor(1 * 10^12 / 3)
	assert.Equal(t, "333333333333", RewardPerShareIncrement(NewAmount(1), NewAmount(3)).String())
}

func TestMultiplierIsFixed(t *testing.T) {
	m := Multiplier()
	assert.Equal(t, "1000000000000", m.String())

	m = m.Add(NewAmount(1))
	assert.Equal(t, "1000000000001", m.String())
	assert.Equal(t, "1000000000000", Multiplier().String())
}

func TestSessionsElapsed(t *testing.T) {
	assert.Equal(t, uint64(0), SessionsElapsed(0, 9*sec, 10*sec))
	assert.Equal(t, uint64(1), SessionsElapsed(0, 10*sec, 10*sec))
	assert.Equal(t, uint64(2), SessionsElapsed(5*sec, 25*sec, 10*sec))
	assert.Equal(t, uint64(0), SessionsElapsed(30*sec, 25*sec, 10*sec))
	assert.Equal(t, uint64(0), SessionsElapsed(0, 25*sec, 0))
}

func TestAdvance(t *testing.T) {
	t.Run("ended farm untouched", func(t *testing.T) {
		f := testFarm(100, 1000, 100)
		f.Status = StatusEnded
		assert.False(t, advance(f, 100*sec))
		assert.Equal(t, uint64(0), f.LastDistribution)
		assert.True(t, f.RewardPerShare[0].IsZero())
	})

	t.Run("not started", func(t *testing.T) {
		f := testFarm(100, 1000, 100)
		f.StartTime = 100 * sec
		f.LastDistribution = 100 * sec
		advance(f, 50*sec)
		assert.Equal(t, 100*sec, f.LastDistribution)
		assert.True(t, f.RewardPerShare[0].IsZero())
	})

	t.Run("no stakers fast forwards", func(t *testing.T) {
		f := testFarm(100, 1000, 0)
		advance(f, 95*sec)
		assert.Equal(t, 95*sec, f.LastDistribution)
		assert.True(t, f.RemainingReward[0].Eq(NewAmount(1000)))
	})

	t.Run("partial session is kept", func(t *testing.T) {
		f := testFarm(100, 1000, 100)
		advance(f, 25*sec)
		assert.Equal(t, 20*sec, f.LastDistribution)
		assert.True(t, f.RemainingReward[0].Eq(NewAmount(800)))
		assert.True(t, f.RewardPerShare[0].Eq(NewAmount(2).Mul(multiplier)))
	})

	t.Run("distribution capped by pool", func(t *testing.T) {
		f := testFarm(100, 150, 100)
		ended := advance(f, 50*sec)
		assert.True(t, ended)
		assert.Equal(t, StatusEnded, f.Status)
		assert.True(t, f.RemainingReward[0].IsZero())
		assert.Equal(t, "1500000000000", f.RewardPerShare[0].String())
	})

	t.Run("saturating rate", func(t *testing.T) {
		f := testFarm(0, 1000, 1)
		f.RewardPerSession[0] = MaxAmount()
		advance(f, 30*sec)
		assert.True(t, f.RemainingReward[0].IsZero())
		assert.True(t, f.RewardPerShare[0].Eq(NewAmount(1000).Mul(multiplier)))
	})
}

func TestProjectionMatchesCatchUp(t *testing.T) {
	f := testFarm(70, 10_000, 333)
	f.RewardTokens = append(f.RewardTokens, "second.token")
	f.RewardPerSession = append(f.RewardPerSession, NewAmount(3))
	f.RewardPerShare = append(f.RewardPerShare, Amount{})
	f.RemainingReward = append(f.RemainingReward, NewAmount(7))

	for _, now := range []uint64{0, 9 * sec, 10 * sec, 33 * sec, 500 * sec, 5000 * sec} {
		projected := project(f, now)
		advance(f, now)
		assert.Equal(t, f, projected, "now=%d", now)
	}
}

func TestProjectionDoesNotMutate(t *testing.T) {
	f := testFarm(100, 1000, 100)
	before := f.Clone()
	p := project(f, 100*sec)
	assert.Equal(t, before, f)
	assert.NotEqual(t, before.RewardPerShare, p.RewardPerShare)
}

func TestRewardPerShareIsMonotonic(t *testing.T) {
	f := testFarm(13, 1_000_000, 7)
	prev := f.RewardPerShare[0]
	for now := uint64(0); now <= 2000*sec; now += 7 * sec {
		advance(f, now)
		assert.False(t, f.RewardPerShare[0].Lt(prev))
		prev = f.RewardPerShare[0]
		f.TotalStaked = f.TotalStaked.Add(NewAmount(now % 5))
	}
}

func TestAdvanceIsIdempotent(t *testing.T) {
	f := testFarm(100, 1000, 100)
	advance(f, 35*sec)
	once := f.Clone()
	advance(f, 35*sec)
	assert.Equal(t, once, f)
}

func TestSettle(t *testing.T) {
	f := testFarm(100, 1000, 100)
	f.RewardPerShare[0] = NewAmount(3).Mul(multiplier)

	s := newStake(1, 0)
	s.Amount = NewAmount(50)
	s.RewardDebt[0] = multiplier
	s.AccruedRewards[0] = NewAmount(5)

	settle(s, f)
	assert.Equal(t, "105", s.AccruedRewards[0].String())
	assert.True(t, s.RewardDebt[0].Eq(f.RewardPerShare[0]))

	settle(s, f)
	assert.Equal(t, "105", s.AccruedRewards[0].String())
}
