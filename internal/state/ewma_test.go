package state_test

import (
	"testing"

	"DexLedger/internal/fpmath"
	"DexLedger/internal/state"
)

func TestPriceEwmaInitialize(t *testing.T) {
	var p state.PriceEwma
	p.Initialize(42)

	if p.Slot != 42 {
		t.Errorf("slot = %d, want 42", p.Slot)
	}
	if !p.Bid.Eq(state.NoBidPrice) || !p.Ask.Eq(state.NoAskPrice) {
		t.Errorf("fresh tracker should hold sentinels")
	}
	for i := range p.EwmaBid {
		if !p.EwmaBid[i].Eq(state.NoBidPrice) || !p.EwmaAsk[i].Eq(state.NoAskPrice) {
			t.Errorf("window %d should hold sentinels", i)
		}
	}
}

func TestPriceEwmaSeedsOnFirstObservation(t *testing.T) {
	var p state.PriceEwma
	p.Initialize(100)

	bid, ask := fpmath.FromInt(99), fpmath.FromInt(101)
	p.UpdatePrices(100, state.DefaultEwmaWindows, bid, ask)
	if !p.Bid.Eq(bid) || !p.Ask.Eq(ask) {
		t.Fatalf("stored prices = %v/%v", p.Bid, p.Ask)
	}
	// Same slot with a sentinel stored price seeds the averages directly.
	for i := range p.EwmaBid {
		if !p.EwmaBid[i].Eq(bid) {
			t.Errorf("bid window %d = %v, want seeded 99", i, p.EwmaBid[i])
		}
		if !p.EwmaAsk[i].Eq(ask) {
			t.Errorf("ask window %d = %v, want seeded 101", i, p.EwmaAsk[i])
		}
	}
}

func TestPriceEwmaBlendsAcrossSlots(t *testing.T) {
	var p state.PriceEwma
	p.Initialize(0)

	p.UpdatePrices(0, state.DefaultEwmaWindows, fpmath.FromInt(100), fpmath.FromInt(102))
	p.UpdatePrices(10, state.DefaultEwmaWindows, fpmath.FromInt(200), fpmath.FromInt(202))

	if !p.PrevBid.Eq(fpmath.FromInt(100)) {
		t.Errorf("prev bid = %v, want 100", p.PrevBid)
	}
	if !p.Bid.Eq(fpmath.FromInt(200)) {
		t.Errorf("bid = %v, want 200", p.Bid)
	}

	// The roll blended the slot-0 price (100) into the seeded average, so
	// the averages still read 100; a second roll must pull them toward 200.
	ewmaBefore := p.EwmaBid[0]
	p.UpdatePrices(20, state.DefaultEwmaWindows, fpmath.FromInt(200), fpmath.FromInt(202))
	if p.EwmaBid[0].Cmp(ewmaBefore) <= 0 {
		t.Errorf("average should rise toward 200: %v -> %v", ewmaBefore, p.EwmaBid[0])
	}
	if p.EwmaBid[0].Cmp(fpmath.FromInt(200)) >= 0 {
		t.Errorf("average should stay below the new price: %v", p.EwmaBid[0])
	}
}

func TestPriceEwmaSentinelObservationLeavesAverageAlone(t *testing.T) {
	var p state.PriceEwma
	p.Initialize(0)

	p.UpdatePrices(0, state.DefaultEwmaWindows, fpmath.FromInt(100), fpmath.FromInt(102))
	// Book empties: the sentinel must not pollute the averages.
	p.UpdatePrices(5, state.DefaultEwmaWindows, state.NoBidPrice, state.NoAskPrice)
	p.UpdatePrices(10, state.DefaultEwmaWindows, fpmath.FromInt(110), fpmath.FromInt(112))

	if !p.EwmaBid[0].Eq(fpmath.FromInt(100)) {
		t.Errorf("bid average = %v, want untouched 100", p.EwmaBid[0])
	}
	if !p.Bid.Eq(fpmath.FromInt(110)) {
		t.Errorf("stored bid = %v, want 110", p.Bid)
	}
}
