package risk

import (
	"context"
	"time"

	"DexLedger/internal/state"
)

// ConstantFeeEngine quotes the same maker/taker rates to every trader. The
// quote carries a short validity horizon so settlement can skip re-quoting
// within a batch.
type ConstantFeeEngine struct {
	MakerFeeBps int32
	TakerFeeBps int32
	Validity    time.Duration

	now func() time.Time
}

// NewConstantFeeEngine returns an engine quoting the given basis-point rates,
// valid for one second.
func NewConstantFeeEngine(makerBps, takerBps int32) *ConstantFeeEngine {
	return &ConstantFeeEngine{
		MakerFeeBps: makerBps,
		TakerFeeBps: takerBps,
		Validity:    time.Second,
		now:         time.Now,
	}
}

func (e *ConstantFeeEngine) Fees(_ context.Context, _ FeeParams) (state.TraderFees, error) {
	return state.TraderFees{
		ValidUntil:  e.now().Unix() + int64(e.Validity/time.Second),
		MakerFeeBps: e.MakerFeeBps,
		TakerFeeBps: e.TakerFeeBps,
	}, nil
}
