package core

import (
	"DexLedger/internal/book"
	"DexLedger/internal/fpmath"
	"DexLedger/internal/state"
)

// bookLimitPrice converts a market limit price into the book's fp32
// shifted-tick space: trunc((price + offset) / tick) << 32. exact reports
// whether the price was tick aligned.
func bookLimitPrice(price fpmath.Fractional, meta *state.ProductMetadata) (fp32 uint64, exact bool, err error) {
	shifted, err := price.CheckedAdd(meta.PriceOffset)
	if err != nil {
		return 0, false, err
	}
	ticks, err := shifted.CheckedDiv(meta.TickSize)
	if err != nil {
		return 0, false, err
	}
	whole := ticks.RoundSF(0)
	if whole.M < 0 || whole.M >= 1<<32 {
		return 0, false, ErrInvalidLimitPrice
	}
	return uint64(whole.M) << 32, whole.Eq(ticks), nil
}

// bookPriceToMarket recovers the market price of a resting fp32 tick price.
func bookPriceToMarket(priceFP32 uint64, meta *state.ProductMetadata) (fpmath.Fractional, error) {
	p, err := fpmath.FromInt(int64(priceFP32 >> 32)).CheckedMul(meta.TickSize)
	if err != nil {
		return fpmath.Zero, err
	}
	return p.CheckedSub(meta.PriceOffset)
}

// bookExtremes returns the best bid and ask in market prices, falling back to
// the empty-side sentinels the EWMA tracker expects.
func bookExtremes(bk book.Book, meta *state.ProductMetadata) (bid, ask fpmath.Fractional, err error) {
	bid, ask = state.NoBidPrice, state.NoAskPrice
	if p, ok := bk.BestBid(); ok {
		if bid, err = bookPriceToMarket(p, meta); err != nil {
			return
		}
	}
	if p, ok := bk.BestAsk(); ok {
		if ask, err = bookPriceToMarket(p, meta); err != nil {
			return
		}
	}
	return
}

// baseQtyToMarket converts integer lots to a base-decimals quantity.
func baseQtyToMarket(lots uint64, meta *state.ProductMetadata) fpmath.Fractional {
	return fpmath.New(int64(lots), meta.BaseDecimals)
}

// quoteToMarket converts a book quote size to cash units. The book prices in
// shifted ticks, so the offset contribution is subtracted back out:
// quote·tick − base·offset.
func quoteToMarket(quoteBook, baseLots uint64, meta *state.ProductMetadata) (fpmath.Fractional, error) {
	q, err := fpmath.New(int64(quoteBook), meta.BaseDecimals).CheckedMul(meta.TickSize)
	if err != nil {
		return fpmath.Zero, err
	}
	off, err := meta.PriceOffset.CheckedMul(baseQtyToMarket(baseLots, meta))
	if err != nil {
		return fpmath.Zero, err
	}
	return q.CheckedSub(off)
}
