package state_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"DexLedger/internal/fpmath"
	"DexLedger/internal/state"
)

func outrightProduct(name string, key uuid.UUID) state.Product {
	return state.Product{
		Kind: state.KindOutright,
		Outright: state.Outright{
			Metadata: state.ProductMetadata{
				Key:          key,
				Name:         name,
				TickSize:     frac(1, 1),
				BaseDecimals: 4,
			},
			Status: state.ProductInitialized,
		},
	}
}

func TestAddAndFindProduct(t *testing.T) {
	g := state.NewMarketProductGroup(uuid.New(), "test-group", 6)

	key := uuid.New()
	idx, err := g.AddProduct(outrightProduct("BTC-PERP", key))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if idx != 0 {
		t.Errorf("first product should land at slot 0, got %d", idx)
	}

	foundIdx, p, err := g.FindProductIndex(key)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if foundIdx != idx || p.Metadata().Name != "BTC-PERP" {
		t.Errorf("found (%d, %s)", foundIdx, p.Metadata().Name)
	}

	if _, _, err := g.FindProductIndex(uuid.New()); !errors.Is(err, state.ErrMissingMarketProduct) {
		t.Errorf("unknown key: err = %v", err)
	}
}

func TestAddProductRejectsDuplicateName(t *testing.T) {
	g := state.NewMarketProductGroup(uuid.New(), "test-group", 6)
	if _, err := g.AddProduct(outrightProduct("ETH-PERP", uuid.New())); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := g.AddProduct(outrightProduct("ETH-PERP", uuid.New())); !errors.Is(err, state.ErrDuplicateProductName) {
		t.Errorf("duplicate name: err = %v", err)
	}
}

func TestRegistrySlotReuse(t *testing.T) {
	g := state.NewMarketProductGroup(uuid.New(), "test-group", 6)

	keys := make([]uuid.UUID, state.MaxProducts)
	for i := range keys {
		keys[i] = uuid.New()
		if _, err := g.AddProduct(outrightProduct(fmt.Sprintf("P-%03d", i), keys[i])); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}
	if _, err := g.AddProduct(outrightProduct("overflow", uuid.New())); !errors.Is(err, state.ErrFullMarketProductGroup) {
		t.Fatalf("full group: err = %v", err)
	}

	if err := g.DeactivateProduct(keys[37]); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, _, err := g.FindProductIndex(keys[37]); !errors.Is(err, state.ErrMissingMarketProduct) {
		t.Errorf("deactivated product still findable")
	}
	idx, err := g.AddProduct(outrightProduct("replacement", uuid.New()))
	if err != nil {
		t.Fatalf("re-add: %v", err)
	}
	if idx != 37 {
		t.Errorf("replacement should reuse slot 37, got %d", idx)
	}
}

func TestGroupExpiryThroughComboLegs(t *testing.T) {
	g := state.NewMarketProductGroup(uuid.New(), "test-group", 6)

	legKey := uuid.New()
	legIdx, err := g.AddProduct(outrightProduct("LEG-A", legKey))
	if err != nil {
		t.Fatalf("add leg: %v", err)
	}
	otherIdx, err := g.AddProduct(outrightProduct("LEG-B", uuid.New()))
	if err != nil {
		t.Fatalf("add leg: %v", err)
	}

	combo := state.Product{Kind: state.KindCombo}
	combo.Combo.Metadata = state.ProductMetadata{Key: uuid.New(), Name: "SPREAD"}
	combo.Combo.NumLegs = 2
	combo.Combo.Legs[0] = state.Leg{ProductIndex: legIdx, ProductKey: legKey, Ratio: 1}
	combo.Combo.Legs[1] = state.Leg{ProductIndex: otherIdx, Ratio: -1}
	comboIdx, err := g.AddProduct(combo)
	if err != nil {
		t.Fatalf("add combo: %v", err)
	}

	if g.IsExpired(&g.Products[comboIdx]) {
		t.Fatalf("combo with live legs should not be expired")
	}
	g.Products[legIdx].Outright.Status = state.ProductExpired
	if !g.IsExpired(&g.Products[comboIdx]) {
		t.Errorf("combo must expire with any of its legs")
	}

	count := 0
	for range g.ActiveCombos() {
		count++
	}
	if count != 1 {
		t.Errorf("active combos = %d, want 1", count)
	}
}

func TestTraderFeeBands(t *testing.T) {
	g := state.NewMarketProductGroup(uuid.New(), "test-group", 6)
	g.MinMakerFeeBps, g.MaxMakerFeeBps = -5, 20
	g.MinTakerFeeBps, g.MaxTakerFeeBps = 0, 100

	fees := state.TraderFees{MakerFeeBps: 10, TakerFeeBps: 40}
	if !fees.MakerFee(&g).Eq(fpmath.Bps(10)) {
		t.Errorf("maker fee = %v, want 10 bps", fees.MakerFee(&g))
	}
	if !fees.TakerFee(&g).Eq(fpmath.Bps(40)) {
		t.Errorf("taker fee = %v, want 40 bps", fees.TakerFee(&g))
	}

	// Out of band collapses to zero rather than clamping.
	out := state.TraderFees{MakerFeeBps: 30, TakerFeeBps: -1}
	if !out.MakerFee(&g).IsZero() || !out.TakerFee(&g).IsZero() {
		t.Errorf("out-of-band fees should zero: %v %v", out.MakerFee(&g), out.TakerFee(&g))
	}

	// An unconfigured band falls back to +/-10000 bps.
	blank := state.NewMarketProductGroup(uuid.New(), "blank", 6)
	wide := state.TraderFees{MakerFeeBps: 9999, TakerFeeBps: -9999}
	if wide.MakerFee(&blank).IsZero() || wide.TakerFee(&blank).IsZero() {
		t.Errorf("default band should admit 9999 bps")
	}

	if !(state.TraderFees{ValidUntil: 10}).IsExpired(10) {
		t.Errorf("schedule expiring now is stale")
	}
	if (state.TraderFees{ValidUntil: 11}).IsExpired(10) {
		t.Errorf("future schedule is fresh")
	}
}
