package state_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"DexLedger/internal/book"
	"DexLedger/internal/fpmath"
	"DexLedger/internal/state"
)

func groupWithOutright(t *testing.T, name string) (state.MarketProductGroup, int, uuid.UUID) {
	t.Helper()
	g := state.NewMarketProductGroup(uuid.New(), "test-group", 6)
	key := uuid.New()
	idx, err := g.AddProduct(outrightProduct(name, key))
	if err != nil {
		t.Fatalf("add product: %v", err)
	}
	return g, idx, key
}

func activate(t *testing.T, trg *state.TraderRiskGroup, g *state.MarketProductGroup, idx int, key uuid.UUID) {
	t.Helper()
	o := g.Products[idx].Outright
	err := trg.ActivateIfUninitialized(idx, key, o.CumFundingPerShare, o.CumSocialLossPerShare, g.ActiveCombos())
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
}

func TestActivatePrefersUninitializedSlot(t *testing.T) {
	g, idx, key := groupWithOutright(t, "BTC-PERP")
	trg := state.NewTraderRiskGroup(uuid.New(), g.Key)

	activate(t, &trg, &g, idx, key)
	if !trg.IsActiveProduct(idx) {
		t.Fatalf("product should be active after binding")
	}
	slot := trg.ActiveProducts[idx]
	if !trg.Positions[slot].Initialized || trg.Positions[slot].ProductKey != key {
		t.Fatalf("slot %d not bound: %+v", slot, trg.Positions[slot])
	}

	// Re-activating an already-bound product is a no-op.
	activate(t, &trg, &g, idx, key)
	if got := trg.ActiveProducts[idx]; got != slot {
		t.Errorf("rebinding moved the slot: %d -> %d", slot, got)
	}
}

func TestActivateRecyclesClosedSlot(t *testing.T) {
	g := state.NewMarketProductGroup(uuid.New(), "test-group", 6)
	trg := state.NewTraderRiskGroup(uuid.New(), g.Key)

	keys := make([]uuid.UUID, state.MaxTraderPositions)
	for i := range keys {
		keys[i] = uuid.New()
		idx, err := g.AddProduct(outrightProduct(fmt.Sprintf("P-%02d", i), keys[i]))
		if err != nil {
			t.Fatalf("add: %v", err)
		}
		activate(t, &trg, &g, idx, keys[i])
	}

	// All slots bound; a fresh product cannot activate while each position
	// is live.
	for i := range trg.Positions {
		trg.Positions[i].Position = fpmath.FromInt(1)
	}
	extraKey := uuid.New()
	extraIdx, err := g.AddProduct(outrightProduct("EXTRA", extraKey))
	if err != nil {
		t.Fatalf("add extra: %v", err)
	}
	err = trg.ActivateIfUninitialized(extraIdx, extraKey, fpmath.Zero, fpmath.Zero, g.ActiveCombos())
	if !errors.Is(err, state.ErrAllPositionsOccupied) {
		t.Fatalf("occupied accounts should refuse: %v", err)
	}

	// Closing one position frees its slot for recycling.
	trg.Positions[5].Position = fpmath.Zero
	err = trg.ActivateIfUninitialized(extraIdx, extraKey, fpmath.Zero, fpmath.Zero, g.ActiveCombos())
	if err != nil {
		t.Fatalf("recycle: %v", err)
	}
	if trg.ActiveProducts[extraIdx] != 5 {
		t.Errorf("expected slot 5 recycled, got %d", trg.ActiveProducts[extraIdx])
	}
	if trg.Positions[5].ProductKey != extraKey {
		t.Errorf("slot 5 still holds the old product")
	}
}

func TestActivateSkipsSlotWithRestingOrders(t *testing.T) {
	g := state.NewMarketProductGroup(uuid.New(), "test-group", 6)
	trg := state.NewTraderRiskGroup(uuid.New(), g.Key)

	indices := make([]int, state.MaxTraderPositions)
	for i := range indices {
		key := uuid.New()
		idx, err := g.AddProduct(outrightProduct(fmt.Sprintf("P-%02d", i), key))
		if err != nil {
			t.Fatalf("add: %v", err)
		}
		indices[i] = idx
		activate(t, &trg, &g, idx, key)
		trg.Positions[trg.ActiveProducts[idx]].Position = fpmath.FromInt(1)
	}

	// Slot 3's position closes but an order still rests on its product.
	trg.Positions[3].Position = fpmath.Zero
	restingIdx := trg.Positions[3].ProductIndex
	if err := trg.AddOpenOrder(restingIdx, orderID(1), 0); err != nil {
		t.Fatalf("add order: %v", err)
	}
	// Slot 9 closes cleanly.
	trg.Positions[9].Position = fpmath.Zero

	extraKey := uuid.New()
	extraIdx, err := g.AddProduct(outrightProduct("EXTRA", extraKey))
	if err != nil {
		t.Fatalf("add extra: %v", err)
	}
	if err := trg.ActivateIfUninitialized(extraIdx, extraKey, fpmath.Zero, fpmath.Zero, g.ActiveCombos()); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if trg.ActiveProducts[extraIdx] != 9 {
		t.Errorf("slot with resting orders must not be recycled: got %d", trg.ActiveProducts[extraIdx])
	}
}

func TestApplyFundingSettlesIntoCash(t *testing.T) {
	g, idx, key := groupWithOutright(t, "BTC-PERP")
	trg := state.NewTraderRiskGroup(uuid.New(), g.Key)
	activate(t, &trg, &g, idx, key)

	slot := int(trg.ActiveProducts[idx])
	trg.Positions[slot].Position = fpmath.FromInt(10)
	trg.CashBalance = fpmath.FromInt(1000)

	o := &g.Products[idx].Outright
	if err := o.ApplyNewFunding(frac(25, 2), 6); err != nil {
		t.Fatalf("funding: %v", err)
	}
	if err := trg.ApplyFunding(&g, slot); err != nil {
		t.Fatalf("apply: %v", err)
	}
	// 10 shares * 0.25 credited.
	if !trg.CashBalance.Eq(frac(10025, 1)) {
		t.Errorf("cash = %v, want 1002.5", trg.CashBalance)
	}
	if !trg.Positions[slot].LastCumFundingSnapshot.Eq(o.CumFundingPerShare) {
		t.Errorf("snapshot not rolled")
	}

	// Reapplying with unchanged accumulators is a no-op.
	if err := trg.ApplyFunding(&g, slot); err != nil {
		t.Fatalf("reapply: %v", err)
	}
	if !trg.CashBalance.Eq(frac(10025, 1)) {
		t.Errorf("cash moved on idempotent reapply: %v", trg.CashBalance)
	}
}

func TestApplyFundingSocialLossDebits(t *testing.T) {
	g, idx, key := groupWithOutright(t, "BTC-PERP")
	g.Products[idx].Outright.OpenLongInterest = fpmath.FromInt(10)
	g.Products[idx].Outright.OpenShortInterest = fpmath.FromInt(10)
	trg := state.NewTraderRiskGroup(uuid.New(), g.Key)
	activate(t, &trg, &g, idx, key)

	slot := int(trg.ActiveProducts[idx])
	trg.Positions[slot].Position = fpmath.FromInt(4)
	trg.CashBalance = fpmath.FromInt(100)

	if err := g.Products[idx].Outright.ApplySocialLoss(fpmath.FromInt(20), 6); err != nil {
		t.Fatalf("social loss: %v", err)
	}
	if err := trg.ApplyFunding(&g, slot); err != nil {
		t.Fatalf("apply: %v", err)
	}
	// 20 over 20 open interest = 1 per share, 4 shares debited.
	if !trg.CashBalance.Eq(fpmath.FromInt(96)) {
		t.Errorf("cash = %v, want 96", trg.CashBalance)
	}
}

func TestApplyFundingRetiresExpiredPosition(t *testing.T) {
	g, idx, key := groupWithOutright(t, "BTC-PERP")
	o := &g.Products[idx].Outright
	o.OpenLongInterest = fpmath.FromInt(10)
	o.OpenShortInterest = fpmath.FromInt(10)
	o.Status = state.ProductExpired

	trg := state.NewTraderRiskGroup(uuid.New(), g.Key)
	activate(t, &trg, &g, idx, key)
	slot := int(trg.ActiveProducts[idx])
	trg.Positions[slot].Position = fpmath.FromInt(3)
	if err := trg.AddOpenOrder(idx, orderID(7), 0); err != nil {
		t.Fatalf("add order: %v", err)
	}

	// A draining queue defers retirement.
	o.NumQueueEvents = 2
	if err := trg.ApplyFunding(&g, slot); err != nil {
		t.Fatalf("apply while draining: %v", err)
	}
	if !trg.IsActiveProduct(idx) {
		t.Fatalf("position retired while queue events remain")
	}

	o.NumQueueEvents = 0
	if err := trg.ApplyFunding(&g, slot); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if trg.IsActiveProduct(idx) {
		t.Errorf("expired position should be retired")
	}
	if !o.OpenLongInterest.Eq(fpmath.FromInt(7)) {
		t.Errorf("open interest = %v, want 7", o.OpenLongInterest)
	}
	if trg.OpenOrders.Products[idx].HeadIndex != state.Sentinel {
		t.Errorf("open orders should be cleared on retirement")
	}
}

func TestBookQtyAccounting(t *testing.T) {
	g, idx, key := groupWithOutright(t, "BTC-PERP")
	trg := state.NewTraderRiskGroup(uuid.New(), g.Key)
	activate(t, &trg, &g, idx, key)

	if err := trg.AdjustBookQty(idx, fpmath.FromInt(5), book.Bid); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if err := trg.AdjustBookQty(idx, fpmath.FromInt(2), book.Ask); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if err := trg.DecrementBookSize(idx, book.Bid, fpmath.FromInt(3)); err != nil {
		t.Fatalf("decrement: %v", err)
	}
	meta := trg.OpenOrders.Products[idx]
	if !meta.BidQtyInBook.Eq(fpmath.FromInt(2)) || !meta.AskQtyInBook.Eq(fpmath.FromInt(2)) {
		t.Errorf("book qty = bid %v ask %v, want 2/2", meta.BidQtyInBook, meta.AskQtyInBook)
	}
}

func TestOpenOrderCapPerProduct(t *testing.T) {
	g, idx, key := groupWithOutright(t, "BTC-PERP")
	trg := state.NewTraderRiskGroup(uuid.New(), g.Key)
	activate(t, &trg, &g, idx, key)

	for i := 0; i < state.MaxOpenOrdersPerPosition; i++ {
		if err := trg.AddOpenOrder(idx, orderID(uint64(i+1)), 0); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}
	if err := trg.AddOpenOrder(idx, orderID(9999), 0); !errors.Is(err, state.ErrTooManyOpenOrders) {
		t.Errorf("per-product cap: err = %v", err)
	}
	if trg.OpenOrders.TotalOpenOrders != state.MaxOpenOrdersPerPosition {
		t.Errorf("total = %d", trg.OpenOrders.TotalOpenOrders)
	}

	if err := trg.RemoveOpenOrder(idx, orderID(1)); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := trg.AddOpenOrder(idx, orderID(9999), 0); err != nil {
		t.Errorf("freed capacity should admit a new order: %v", err)
	}
}
