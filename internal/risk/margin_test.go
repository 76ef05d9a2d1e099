package risk_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"DexLedger/internal/book"
	"DexLedger/internal/fpmath"
	"DexLedger/internal/risk"
	"DexLedger/internal/state"
)

// marketWithPosition builds a one-product group and a trader holding size at
// the given settled mark price, with the given cash balance.
func marketWithPosition(t *testing.T, cash, size, mark int64) (state.MarketProductGroup, state.TraderRiskGroup) {
	t.Helper()
	g := state.NewMarketProductGroup(uuid.New(), "test-group", 6)
	key := uuid.New()
	idx, err := g.AddProduct(state.Product{
		Kind: state.KindOutright,
		Outright: state.Outright{
			Metadata: state.ProductMetadata{Key: key, Name: "BTC-PERP", BaseDecimals: 4},
			Status:   state.ProductInitialized,
		},
	})
	if err != nil {
		t.Fatalf("add product: %v", err)
	}
	prices := g.Prices(idx)
	prices.Initialize(0)
	prices.PrevBid = fpmath.FromInt(mark)
	prices.PrevAsk = fpmath.FromInt(mark)

	trg := state.NewTraderRiskGroup(uuid.New(), g.Key)
	o := g.Products[idx].Outright
	err = trg.ActivateIfUninitialized(idx, key, o.CumFundingPerShare, o.CumSocialLossPerShare, g.ActiveCombos())
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	trg.Positions[trg.ActiveProducts[idx]].Position = fpmath.FromInt(size)
	trg.CashBalance = fpmath.FromInt(cash)
	return g, trg
}

func TestCheckHealthGrades(t *testing.T) {
	engine := risk.NewMarginRiskEngine()

	// Position of 1 at mark 200: margin requirement 200, so the account is
	// healthy at portfolio value >= 100 and liquidatable below 40.
	cases := []struct {
		name   string
		cash   int64
		health risk.HealthStatus
		action risk.ActionStatus
	}{
		{"healthy", 1000, risk.Healthy, risk.Approved},
		{"boundary healthy", -100, risk.Healthy, risk.Approved},
		{"unhealthy", -150, risk.Unhealthy, risk.NotApproved},
		{"liquidatable", -170, risk.Liquidatable, risk.NotApproved},
		{"underwater", -250, risk.Liquidatable, risk.NotApproved},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g, trg := marketWithPosition(t, tc.cash, 1, 200)
			info, err := engine.CheckHealth(context.Background(), risk.HealthRequest{Group: &g, Trader: &trg})
			if err != nil {
				t.Fatalf("check: %v", err)
			}
			if info.Health != tc.health || info.Action != tc.action {
				t.Errorf("verdict = %v/%v, want %v/%v", info.Health, info.Action, tc.health, tc.action)
			}
		})
	}
}

func TestRestingOrdersRaiseMarginRequirement(t *testing.T) {
	engine := risk.NewMarginRiskEngine()
	g, trg := marketWithPosition(t, -100, 1, 200)

	// At the healthy boundary; resting another unit on the ask doubles the
	// requirement and tips the account over.
	idx := trg.Positions[trg.ActiveProducts[0]].ProductIndex
	if err := trg.AdjustBookQty(idx, fpmath.FromInt(1), book.Ask); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	info, err := engine.CheckHealth(context.Background(), risk.HealthRequest{Group: &g, Trader: &trg})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if info.Health != risk.Unhealthy {
		t.Errorf("health = %v, want Unhealthy with resting exposure", info.Health)
	}
}

func TestCheckLiquidationPositiveEquity(t *testing.T) {
	engine := risk.NewMarginRiskEngine()
	g, trg := marketWithPosition(t, -170, 1, 200)

	info, err := engine.CheckLiquidation(context.Background(), risk.HealthRequest{Group: &g, Trader: &trg})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if info.Health != risk.Liquidatable || info.Action != risk.Approved {
		t.Fatalf("verdict = %v/%v", info.Health, info.Action)
	}
	// Portfolio value 30: price 30*(0.9-0.2) = 21, loss 10% of that.
	if !info.LiquidationPrice.Eq(fpmath.Fractional{M: 21, Exp: 0}) {
		t.Errorf("liquidation price = %v, want 21", info.LiquidationPrice)
	}
	if !info.TotalSocialLoss.Eq(fpmath.Fractional{M: 21, Exp: 1}) {
		t.Errorf("social loss = %v, want 2.1", info.TotalSocialLoss)
	}
	// The single position absorbs the entire loss.
	found := false
	for _, sl := range info.SocialLosses {
		if sl.ProductIndex == state.MaxProducts {
			continue
		}
		found = true
		if !sl.Amount.Eq(info.TotalSocialLoss) {
			t.Errorf("position loss = %v, want %v", sl.Amount, info.TotalSocialLoss)
		}
	}
	if !found {
		t.Errorf("no per-position social loss recorded")
	}
}

func TestCheckLiquidationNegativeEquity(t *testing.T) {
	engine := risk.NewMarginRiskEngine()
	g, trg := marketWithPosition(t, -250, 1, 200)

	info, err := engine.CheckLiquidation(context.Background(), risk.HealthRequest{Group: &g, Trader: &trg})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	// Portfolio value -50: price -50*(1-0.2) = -40, socialized in full.
	if !info.LiquidationPrice.Eq(fpmath.FromInt(-40)) {
		t.Errorf("liquidation price = %v, want -40", info.LiquidationPrice)
	}
	if !info.TotalSocialLoss.Eq(fpmath.FromInt(-40)) {
		t.Errorf("social loss = %v, want -40", info.TotalSocialLoss)
	}
}

func TestCheckLiquidationRequiresExposure(t *testing.T) {
	engine := risk.NewMarginRiskEngine()
	g := state.NewMarketProductGroup(uuid.New(), "test-group", 6)
	trg := state.NewTraderRiskGroup(uuid.New(), g.Key)
	trg.CashBalance = fpmath.FromInt(-10)

	_, err := engine.CheckLiquidation(context.Background(), risk.HealthRequest{Group: &g, Trader: &trg})
	if !errors.Is(err, risk.ErrNoPositionsToLiquidate) {
		t.Errorf("err = %v, want ErrNoPositionsToLiquidate", err)
	}
}

func TestHealthyLiquidationNotApproved(t *testing.T) {
	engine := risk.NewMarginRiskEngine()
	g, trg := marketWithPosition(t, 1000, 1, 200)

	info, err := engine.CheckLiquidation(context.Background(), risk.HealthRequest{Group: &g, Trader: &trg})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if info.Health != risk.Healthy {
		t.Errorf("health = %v, want Healthy", info.Health)
	}
	if info.Action == risk.Approved {
		t.Errorf("healthy account must not be approved for liquidation")
	}
}

func TestConstantFeeEngine(t *testing.T) {
	engine := risk.NewConstantFeeEngine(-2, 8)
	fees, err := engine.Fees(context.Background(), risk.FeeParams{})
	if err != nil {
		t.Fatalf("fees: %v", err)
	}
	if fees.MakerFeeBps != -2 || fees.TakerFeeBps != 8 {
		t.Errorf("rates = %d/%d", fees.MakerFeeBps, fees.TakerFeeBps)
	}
	if fees.ValidUntil == 0 {
		t.Errorf("quote should carry a validity horizon")
	}
}
