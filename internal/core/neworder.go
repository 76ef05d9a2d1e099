package core

import (
	"context"
	"math"

	"DexLedger/internal/book"
	"DexLedger/internal/event"
	"DexLedger/internal/fpmath"
	"DexLedger/internal/ledger"
	"DexLedger/internal/risk"
)

// handleNewOrder places an order on one product's book. Matched quantity
// lands in the trader's pending position and pending cash; the matching
// counterparties settle later when the queue is consumed. The whole
// instruction is rejected if the account fails its post-trade health check.
func (c *DeterministicCore) handleNewOrder(ctx context.Context, e *event.NewOrder) (*ledger.Batch, error) {
	txn, err := c.beginTxn(e.Group)
	if err != nil {
		return nil, err
	}
	idx, product, err := txn.group.FindProductIndex(e.Product)
	if err != nil {
		return nil, err
	}
	meta := product.Metadata()

	minBase := fpmath.New(int64(c.cfg.MinBaseOrderSize), meta.BaseDecimals)
	if e.MaxBaseQty.Cmp(minBase) < 0 {
		return nil, ErrOrderTooSmall
	}
	if txn.group.IsExpired(product) {
		return nil, ErrProductExpired
	}

	trader, err := txn.trader(e.Trader)
	if err != nil {
		return nil, err
	}
	bk, err := txn.book(e.Product)
	if err != nil {
		return nil, err
	}

	callback := book.CallbackInfo{
		TraderID:      e.Trader,
		OpenOrdersIdx: uint16(trader.OpenOrders.NextIndex()),
	}
	limitFP32, exact, err := bookLimitPrice(e.LimitPrice, meta)
	if err != nil {
		return nil, err
	}
	if !exact {
		c.log.Warn().
			Str("product", e.Product.String()).
			Str("limit_price", e.LimitPrice.String()).
			Msg("limit price not tick aligned, truncating")
	}
	maxBase, err := e.MaxBaseQty.Round(meta.BaseDecimals)
	if err != nil {
		return nil, err
	}

	queueLenBefore := len(bk.Events())
	summary, err := bk.NewOrder(book.NewOrderParams{
		MaxBaseQty:        uint64(maxBase.M),
		MaxQuoteQty:       math.MaxUint64,
		LimitPriceFP32:    limitFP32,
		Side:              e.Side,
		OrderType:         e.OrderType,
		SelfTradeBehavior: e.SelfTradeBehavior,
		MatchLimit:        e.MatchLimit,
		Callback:          callback,
	})
	if err != nil {
		return nil, err
	}
	newEvents := uint64(len(bk.Events()) - queueLenBefore)

	bid, ask, err := bookExtremes(bk, meta)
	if err != nil {
		return nil, err
	}
	txn.group.Prices(idx).UpdatePrices(e.Slot, txn.group.EwmaWindows, bid, ask)

	matchedBaseLots := summary.TotalBaseQty - summary.TotalBaseQtyPosted
	matchedQuoteLots := summary.TotalQuoteQty - book.FP32Mul(summary.TotalBaseQtyPosted, limitFP32)
	matchedBase := baseQtyToMarket(matchedBaseLots, meta)
	matchedQuote, err := quoteToMarket(matchedQuoteLots, matchedBaseLots, meta)
	if err != nil {
		return nil, err
	}
	totalBase := baseQtyToMarket(summary.TotalBaseQty, meta)
	postedBase := baseQtyToMarket(summary.TotalBaseQtyPosted, meta)

	// Book-size snapshot before the post, the risk engine nets new exposure
	// against what was already resting.
	oldAskInBook := trader.OpenOrders.Products[idx].AskQtyInBook
	oldBidInBook := trader.OpenOrders.Products[idx].BidQtyInBook
	if summary.TotalBaseQtyPosted > 0 {
		if err := trader.AdjustBookQty(idx, postedBase, e.Side); err != nil {
			return nil, err
		}
	}

	crossed := !matchedQuote.IsZero()

	for ratio, legIdx := range product.RatiosAndIndices(idx) {
		outright, err := txn.group.Products[legIdx].AsOutright()
		if err != nil {
			return nil, err
		}
		outright.NumQueueEvents += newEvents

		if err := trader.ActivateIfUninitialized(
			legIdx,
			outright.Metadata.Key,
			outright.CumFundingPerShare,
			outright.CumSocialLossPerShare,
			txn.group.ActiveCombos(),
		); err != nil {
			return nil, err
		}

		if crossed {
			delta, err := matchedBase.CheckedMul(fpmath.FromInt(ratio))
			if err != nil {
				return nil, err
			}
			pos := &trader.Positions[trader.ActiveProducts[legIdx]]
			if e.Side == book.Bid {
				pos.PendingPosition, err = pos.PendingPosition.CheckedAdd(delta)
			} else {
				pos.PendingPosition, err = pos.PendingPosition.CheckedSub(delta)
			}
			if err != nil {
				return nil, err
			}
		}
	}

	if crossed || trader.Fees.ValidUntil == 0 {
		now := e.Timestamp.Unix()
		if trader.Fees.IsExpired(now) {
			matched := fpmath.Zero
			if crossed {
				matched = matchedQuote
			}
			fees, err := c.feeEngine.Fees(ctx, risk.FeeParams{
				Group:        e.Group,
				Trader:       e.Trader,
				ProductIndex: idx,
				Side:         e.Side,
				IsAggressor:  true,
				MatchedQty:   matched,
			})
			if err != nil {
				return nil, err
			}
			trader.Fees = fees
		}
		if crossed {
			fee, err := trader.Fees.TakerFee(txn.group).CheckedMul(matchedQuote)
			if err != nil {
				return nil, err
			}
			if trader.PendingFees, err = trader.PendingFees.CheckedAdd(fee); err != nil {
				return nil, err
			}
		}
	}

	if crossed {
		if e.Side == book.Bid {
			trader.PendingCashBalance, err = trader.PendingCashBalance.CheckedSub(matchedQuote)
		} else {
			trader.PendingCashBalance, err = trader.PendingCashBalance.CheckedAdd(matchedQuote)
		}
		if err != nil {
			return nil, err
		}
		if trader.PendingCashBalance, err = trader.PendingCashBalance.Round(txn.group.Decimals); err != nil {
			return nil, err
		}
	}

	if summary.PostedOrderID != nil {
		if err := trader.AddOpenOrder(idx, *summary.PostedOrderID, trader.ClientOrderID); err != nil {
			return nil, err
		}
		trader.ClientOrderID++
	}

	if err := txn.settleAllFunding(trader); err != nil {
		return nil, err
	}

	info, err := c.riskEngine.CheckHealth(ctx, risk.HealthRequest{
		Group:  txn.group,
		Trader: trader,
		Order: &risk.OrderInfo{
			TotalOrderQty:   totalBase,
			MatchedOrderQty: matchedBase,
			OldAskQtyInBook: oldAskInBook,
			OldBidQtyInBook: oldBidInBook,
			Side:            e.Side,
			IsCombo:         product.IsCombo(),
			ProductIndex:    idx,
			Operation:       risk.OpNewOrder,
		},
	})
	if err != nil {
		return nil, err
	}
	if info.Action != risk.Approved {
		return nil, ErrRiskCheckRejected
	}
	txn.group.SequenceNumber++

	batch := c.journalGen.Begin(e.IdempotencyKey(), e.Timestamp.Unix())
	if err := txn.flushFunding(batch); err != nil {
		return nil, err
	}
	txn.commit()
	return batch.Build(), nil
}
