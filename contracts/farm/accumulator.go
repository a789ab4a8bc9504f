package farm

// RewardPerShareIncrement converts a distributed amount into per-share
// credit scaled by multiplier. The multiplication happens before the single
// floor division; a zero total yields no credit.
func RewardPerShareIncrement(distributed, totalStaked Amount) Amount {
	if totalStaked.IsZero() || distributed.IsZero() {
		return Amount{}
	}
	return distributed.Mul(multiplier).Div(totalStaked)
}

// SessionsElapsed is the number of whole sessions between last and now.
func SessionsElapsed(last, now, interval uint64) uint64 {
	if interval == 0 || now <= last {
		return 0
	}
	return (now - last) / interval
}

// advance brings f up to now in place and reports whether this call moved
// the farm to Ended. Catch-up and projection both run through here, which
// keeps a projection identical to the catch-up that follows it.
func advance(f *Farm, now uint64) bool {
	if f.Status == StatusEnded || now < f.StartTime {
		return false
	}
	if f.TotalStaked.IsZero() {
		if now > f.LastDistribution {
			f.LastDistribution = now
		}
		return false
	}

	sessions := SessionsElapsed(f.LastDistribution, now, f.SessionInterval)
	if sessions == 0 {
		return false
	}

	n := NewAmount(sessions)
	for i := range f.RewardTokens {
		distributed := n.Mul(f.RewardPerSession[i]).Min(f.RemainingReward[i])
		if distributed.IsZero() {
			continue
		}
		f.RewardPerShare[i] = f.RewardPerShare[i].Add(RewardPerShareIncrement(distributed, f.TotalStaked))
		f.RemainingReward[i] = f.RemainingReward[i].Sub(distributed)
	}

	f.LastDistribution += sessions * f.SessionInterval
	if f.LastDistribution > now {
		f.LastDistribution = now
	}

	if f.exhausted() {
		f.Status = StatusEnded
		return true
	}
	return false
}

// project returns f as a catch-up at now would leave it. f is not modified.
func project(f *Farm, now uint64) *Farm {
	c := f.Clone()
	advance(c, now)
	return c
}

// pending is the credit a stake has earned since its debt baseline in slot i.
func pending(s *Stake, rewardPerShare Amount, debt Amount) Amount {
	return s.Amount.Mul(rewardPerShare.Sub(debt)).Div(multiplier)
}

// settle moves earned credit into AccruedRewards and resets the debt
// baseline to the farm's current reward_per_share.
func settle(s *Stake, f *Farm) {
	for i := range f.RewardPerShare {
		s.AccruedRewards[i] = s.AccruedRewards[i].Add(pending(s, f.RewardPerShare[i], s.RewardDebt[i]))
		s.RewardDebt[i] = f.RewardPerShare[i]
	}
}
