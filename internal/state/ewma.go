package state

import "DexLedger/internal/fpmath"

// ewmaRound is the significant-figure budget applied to EWMA weights.
const ewmaRound = 2

// PriceEwma tracks the best bid/ask observed per slot and exponentially
// weighted moving averages of both over the configured windows. Mark prices
// for risk checks come from here.
type PriceEwma struct {
	EwmaBid [4]fpmath.Fractional
	EwmaAsk [4]fpmath.Fractional

	Bid fpmath.Fractional
	Ask fpmath.Fractional

	Slot    uint64
	PrevBid fpmath.Fractional
	PrevAsk fpmath.Fractional
}

// Initialize resets the tracker to the empty-book sentinels at the given slot.
func (p *PriceEwma) Initialize(slot uint64) {
	p.Slot = slot
	p.Bid, p.Ask = NoBidPrice, NoAskPrice
	p.PrevBid, p.PrevAsk = NoBidPrice, NoAskPrice
	for i := range p.EwmaBid {
		p.EwmaBid[i] = NoBidPrice
		p.EwmaAsk[i] = NoAskPrice
	}
}

// UpdatePrices rolls the averages forward to slot and records the latest best
// bid and ask. Averages blend the previously stored prices when the slot
// advances; within a slot only a sentinel side is re-seeded from the new
// observation.
func (p *PriceEwma) UpdatePrices(slot uint64, windows [4]uint64, bid, ask fpmath.Fractional) {
	elapsed := fpmath.FromInt(int64(slot) - int64(p.Slot))
	if slot > p.Slot {
		ewmaTransform(&p.EwmaBid, windows, p.Bid, elapsed)
		ewmaTransform(&p.EwmaAsk, windows, p.Ask, elapsed)
		p.PrevBid, p.PrevAsk = p.Bid, p.Ask
	} else {
		if p.Bid.Eq(NoBidPrice) {
			ewmaTransform(&p.EwmaBid, windows, bid, elapsed)
		}
		if p.Ask.Eq(NoAskPrice) {
			ewmaTransform(&p.EwmaAsk, windows, ask, elapsed)
		}
	}
	p.Bid, p.Ask = bid, ask
	p.Slot = slot
}

func isPriceSentinel(x fpmath.Fractional) bool {
	return x.Eq(NoBidPrice) || x.Eq(NoAskPrice)
}

// ewmaTransform blends curr into each window's running average with weight
// exp(-elapsed/window). Sentinel prices never blend: a sentinel observation
// leaves the averages alone and a sentinel average is seeded outright.
func ewmaTransform(ewma *[4]fpmath.Fractional, windows [4]uint64, curr fpmath.Fractional, elapsed fpmath.Fractional) {
	if isPriceSentinel(curr) {
		return
	}
	for i := range windows {
		if isPriceSentinel(ewma[i]) {
			ewma[i] = curr
			continue
		}
		x, err := elapsed.CheckedDiv(fpmath.FromInt(int64(windows[i])))
		if err != nil {
			continue
		}
		w, err := x.RoundSF(ewmaRound).Neg().ExpApprox()
		if err != nil {
			continue
		}
		weight := w.RoundSF(ewmaRound)
		prev := weight.SaturatingMul(ewma[i])
		next := fpmath.FromInt(1).SaturatingSub(weight).SaturatingMul(curr)
		ewma[i] = prev.SaturatingAdd(next)
	}
}
