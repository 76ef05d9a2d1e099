package state

import "DexLedger/internal/fpmath"

// TraderFees carries a trader's quoted fee schedule in basis points. A
// schedule is valid through ValidUntil (engine timestamp); stale schedules
// are refreshed from the fee engine before settlement uses them.
type TraderFees struct {
	ValidUntil  int64
	MakerFeeBps int32
	TakerFeeBps int32
}

const defaultFeeBandBps = 10000

// MakerFee returns the maker fee rate, zeroed when outside the group's band.
func (f TraderFees) MakerFee(group *MarketProductGroup) fpmath.Fractional {
	return fpmath.Bps(int64(withinOrZero(f.MakerFeeBps, group.MinMakerFeeBps, group.MaxMakerFeeBps)))
}

// TakerFee returns the taker fee rate, zeroed when outside the group's band.
func (f TraderFees) TakerFee(group *MarketProductGroup) fpmath.Fractional {
	return fpmath.Bps(int64(withinOrZero(f.TakerFeeBps, group.MinTakerFeeBps, group.MaxTakerFeeBps)))
}

func withinOrZero(fee, min, max int32) int32 {
	if min == 0 && max == 0 {
		min, max = -defaultFeeBandBps, defaultFeeBandBps
	}
	if fee < min || fee > max {
		return 0
	}
	return fee
}

// IsExpired reports whether the schedule needs a refresh at the given time.
func (f TraderFees) IsExpired(now int64) bool { return f.ValidUntil <= now }
