package state_test

import (
	"testing"

	"DexLedger/internal/fpmath"
	"DexLedger/internal/state"
)

func frac(m int64, exp uint64) fpmath.Fractional {
	return fpmath.Fractional{M: m, Exp: exp}
}

func TestApplyNewFundingPrecisionGate(t *testing.T) {
	o := state.Outright{Metadata: state.ProductMetadata{BaseDecimals: 4}}

	// Base 4, cash 6: the running per-share total must stay exact at two
	// fractional digits so position * funding lands on the cash grid.
	if err := o.ApplyNewFunding(frac(125, 2), 6); err != nil {
		t.Fatalf("funding at cash precision: %v", err)
	}
	if !o.CumFundingPerShare.Eq(frac(125, 2)) {
		t.Errorf("cum funding = %v", o.CumFundingPerShare)
	}

	if err := o.ApplyNewFunding(frac(1, 2), 6); err != nil {
		t.Fatalf("funding within precision: %v", err)
	}
	if err := o.ApplyNewFunding(frac(1, 3), 6); err == nil {
		t.Errorf("sub-settleable funding increment should be rejected")
	}
}

func TestApplySocialLossDustCarry(t *testing.T) {
	o := state.Outright{
		Metadata:          state.ProductMetadata{BaseDecimals: 0},
		OpenLongInterest:  frac(15, 1),
		OpenShortInterest: frac(15, 1),
	}

	// Loss 1 over open interest 3 at two cash decimals: 0.33 per share, the
	// last cent stays behind as dust.
	if err := o.ApplySocialLoss(fpmath.FromInt(1), 2); err != nil {
		t.Fatalf("social loss: %v", err)
	}
	if !o.CumSocialLossPerShare.Eq(frac(33, 2)) {
		t.Errorf("per share = %v, want 0.33", o.CumSocialLossPerShare)
	}
	if !o.Dust.Eq(frac(1, 2)) {
		t.Errorf("dust = %v, want 0.01", o.Dust)
	}

	// A second loss of 1 pools with the carried cent: 1.01 over 3 is another
	// 0.33 per share with 0.02 left over.
	if err := o.ApplySocialLoss(fpmath.FromInt(1), 2); err != nil {
		t.Fatalf("social loss: %v", err)
	}
	if !o.CumSocialLossPerShare.Eq(frac(66, 2)) {
		t.Errorf("per share = %v, want 0.66", o.CumSocialLossPerShare)
	}
	if !o.Dust.Eq(frac(2, 2)) {
		t.Errorf("dust = %v, want 0.02", o.Dust)
	}
}

func TestApplySocialLossNoOpenInterest(t *testing.T) {
	o := state.Outright{Metadata: state.ProductMetadata{BaseDecimals: 0}}
	if err := o.ApplySocialLoss(fpmath.FromInt(5), 2); err != nil {
		t.Fatalf("social loss: %v", err)
	}
	if !o.CumSocialLossPerShare.IsZero() {
		t.Errorf("no open interest: loss must stay in dust")
	}
	if !o.Dust.Eq(fpmath.FromInt(5)) {
		t.Errorf("dust = %v, want 5", o.Dust)
	}
}

func TestUpdateOpenInterestChange(t *testing.T) {
	cases := []struct {
		name                  string
		oi, size              int64
		buyerShort, sellerLong int64
		want                  int64
	}{
		{"both opening", 10, 4, 0, 0, 14},
		{"both closing", 10, 4, 4, 4, 6},
		{"buyer flips", 10, 4, 1, 9, 9},
		{"seller flips", 10, 4, 9, 1, 9},
		{"partial unwind both", 10, 4, 1, 1, 12},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := state.Outright{
				OpenLongInterest:  fpmath.FromInt(tc.oi),
				OpenShortInterest: fpmath.FromInt(tc.oi),
			}
			err := o.UpdateOpenInterestChange(
				fpmath.FromInt(tc.size),
				fpmath.FromInt(tc.buyerShort),
				fpmath.FromInt(tc.sellerLong),
			)
			if err != nil {
				t.Fatalf("update: %v", err)
			}
			if !o.OpenLongInterest.Eq(fpmath.FromInt(tc.want)) {
				t.Errorf("long interest = %v, want %d", o.OpenLongInterest, tc.want)
			}
			if !o.OpenShortInterest.Eq(o.OpenLongInterest) {
				t.Errorf("short interest must track long interest")
			}
		})
	}
}
