package core

import (
	"context"
	"errors"

	"DexLedger/internal/book"
	"DexLedger/internal/event"
	"DexLedger/internal/fpmath"
	"DexLedger/internal/ledger"
	"DexLedger/internal/risk"
	"DexLedger/internal/state"
)

// handleConsumeOrderbookEvents drains up to MaxIterations entries from one
// product's queue. Fills settle matched cash between maker and taker, charge
// both fees, move pending position to settled position, and adjust open
// interest. Outs release book-size accounting and, on deletes, the order
// ledger slot. Consumption stops early at the first event whose account is
// unknown so the queue never loses an entry.
func (c *DeterministicCore) handleConsumeOrderbookEvents(ctx context.Context, e *event.ConsumeOrderbookEvents) (*ledger.Batch, error) {
	txn, err := c.beginTxn(e.Group)
	if err != nil {
		return nil, err
	}
	idx, product, err := txn.group.FindProductIndex(e.Product)
	if err != nil {
		return nil, err
	}
	meta := product.Metadata()
	bk, err := txn.book(e.Product)
	if err != nil {
		return nil, err
	}

	queue := bk.Events()
	iterations := len(queue)
	if uint64(iterations) > e.MaxIterations {
		iterations = int(e.MaxIterations)
	}

	batch := c.journalGen.Begin(e.IdempotencyKey(), e.Timestamp.Unix())
	completed := 0
	fills, outs := 0, 0

	for i := 0; i < iterations; i++ {
		ev := queue[i]
		var err error
		switch ev.Kind {
		case book.EventFill:
			err = c.settleFill(ctx, txn, batch, e, idx, product, meta, &ev)
		case book.EventOut:
			err = c.settleOut(txn, idx, product, meta, &ev)
		}
		if err != nil {
			if errors.Is(err, ErrMissingTraderAccount) && completed > 0 {
				break
			}
			return nil, err
		}
		if ev.Kind == book.EventFill {
			fills++
		} else {
			outs++
		}

		for _, legIdx := range product.RatiosAndIndices(idx) {
			outright, err := txn.group.Products[legIdx].AsOutright()
			if err != nil {
				return nil, err
			}
			if outright.NumQueueEvents > 0 {
				outright.NumQueueEvents--
			}
		}
		completed++
	}

	if completed == 0 {
		return nil, ErrNoOp
	}
	bk.PopEvents(completed)
	txn.group.SequenceNumber++

	if err := txn.flushFunding(batch); err != nil {
		return nil, err
	}
	txn.commit()

	if c.metrics != nil {
		market := e.Group.String()
		c.metrics.OrderbookFills.WithLabelValues(market).Add(float64(fills))
		c.metrics.OrderbookOutEvents.WithLabelValues(market).Add(float64(outs))
	}
	return batch.Build(), nil
}

func (c *DeterministicCore) settleFill(
	ctx context.Context,
	txn *instructionTxn,
	batch *ledger.BatchBuilder,
	e *event.ConsumeOrderbookEvents,
	idx int,
	product *state.Product,
	meta *state.ProductMetadata,
	ev *book.Event,
) error {
	maker, err := txn.trader(ev.MakerCallback.TraderID)
	if err != nil {
		return err
	}
	taker, err := txn.trader(ev.TakerCallback.TraderID)
	if err != nil {
		return err
	}
	selfTrade := ev.MakerCallback.TraderID == ev.TakerCallback.TraderID

	base := baseQtyToMarket(ev.BaseSize, meta)
	quote, err := quoteToMarket(ev.QuoteSize, ev.BaseSize, meta)
	if err != nil {
		return err
	}

	now := e.Timestamp.Unix()
	if maker.Fees.IsExpired(now) {
		fees, err := c.feeEngine.Fees(ctx, risk.FeeParams{
			Group:        e.Group,
			Trader:       ev.MakerCallback.TraderID,
			ProductIndex: idx,
			Side:         ev.TakerSide.Opposite(),
			IsAggressor:  false,
			MatchedQty:   quote,
		})
		if err != nil {
			return err
		}
		maker.Fees = fees
	}

	buyer, seller := maker, taker
	if ev.TakerSide == book.Bid {
		buyer, seller = taker, maker
	}

	if !selfTrade {
		if seller.CashBalance, err = seller.CashBalance.CheckedAdd(quote); err != nil {
			return err
		}
		if buyer.CashBalance, err = buyer.CashBalance.CheckedSub(quote); err != nil {
			return err
		}
		amount, err := ledger.CashAmount(quote, txn.group.Decimals)
		if err != nil {
			return err
		}
		batch.TradeSettlement(buyer.Key, seller.Key, amount)
	}

	// The taker reserved this cash when the order crossed; settlement
	// releases the reservation.
	if ev.TakerSide == book.Bid {
		taker.PendingCashBalance, err = taker.PendingCashBalance.CheckedAdd(quote)
	} else {
		taker.PendingCashBalance, err = taker.PendingCashBalance.CheckedSub(quote)
	}
	if err != nil {
		return err
	}

	takerFee := taker.PendingFees
	if taker.CashBalance, err = taker.CashBalance.CheckedSub(takerFee); err != nil {
		return err
	}
	makerFee, err := maker.Fees.MakerFee(txn.group).CheckedMul(quote)
	if err != nil {
		return err
	}
	if maker.CashBalance, err = maker.CashBalance.CheckedSub(makerFee); err != nil {
		return err
	}
	collected, err := makerFee.CheckedAdd(takerFee)
	if err != nil {
		return err
	}
	if txn.group.CollectedFees, err = txn.group.CollectedFees.CheckedAdd(collected); err != nil {
		return err
	}
	taker.PendingFees = fpmath.Zero

	takerFeeAmount, err := ledger.CashAmount(takerFee, txn.group.Decimals)
	if err != nil {
		return err
	}
	makerFeeAmount, err := ledger.CashAmount(makerFee, txn.group.Decimals)
	if err != nil {
		return err
	}
	batch.Fee(txn.group.Key, taker.Key, takerFeeAmount)
	batch.Fee(txn.group.Key, maker.Key, makerFeeAmount)

	if txn.group.IsExpired(product) {
		return nil
	}

	if err := maker.DecrementBookSize(idx, ev.TakerSide.Opposite(), base); err != nil {
		return err
	}

	for ratio, legIdx := range product.RatiosAndIndices(idx) {
		outright, err := txn.group.Products[legIdx].AsOutright()
		if err != nil {
			return err
		}
		makerSlot := maker.ActiveProducts[legIdx]
		takerSlot := taker.ActiveProducts[legIdx]
		if makerSlot == state.SlotUnset || takerSlot == state.SlotUnset {
			return state.ErrPositionNotFound
		}
		if err := txn.settleFunding(maker, int(makerSlot)); err != nil {
			return err
		}
		if !selfTrade {
			if err := txn.settleFunding(taker, int(takerSlot)); err != nil {
				return err
			}
		}

		legBase, err := base.CheckedMul(fpmath.FromInt(ratio))
		if err != nil {
			return err
		}
		buyerPos := &buyer.Positions[buyer.ActiveProducts[legIdx]]
		sellerPos := &seller.Positions[seller.ActiveProducts[legIdx]]

		if !selfTrade {
			if ratio > 0 {
				err = outright.UpdateOpenInterestChange(
					legBase,
					buyerPos.Position.Min(fpmath.Zero).Abs(),
					sellerPos.Position.Max(fpmath.Zero),
				)
			} else {
				err = outright.UpdateOpenInterestChange(
					legBase.Abs(),
					sellerPos.Position.Min(fpmath.Zero).Abs(),
					buyerPos.Position.Max(fpmath.Zero),
				)
			}
			if err != nil {
				return err
			}
			if sellerPos.Position, err = sellerPos.Position.CheckedSub(legBase); err != nil {
				return err
			}
			if buyerPos.Position, err = buyerPos.Position.CheckedAdd(legBase); err != nil {
				return err
			}
		}

		// Unwind the pending exposure reserved when the taker's order
		// crossed. Bids reserved +ratio per lot, asks -ratio.
		takerPos := &taker.Positions[takerSlot]
		pendingRatio := -ratio
		if ev.TakerSide == book.Ask {
			pendingRatio = ratio
		}
		pendingDelta, err := base.CheckedMul(fpmath.FromInt(pendingRatio))
		if err != nil {
			return err
		}
		if takerPos.PendingPosition, err = takerPos.PendingPosition.CheckedAdd(pendingDelta); err != nil {
			return err
		}
	}
	return nil
}

func (c *DeterministicCore) settleOut(
	txn *instructionTxn,
	idx int,
	product *state.Product,
	meta *state.ProductMetadata,
	ev *book.Event,
) error {
	if (!ev.Delete && ev.BaseSize == 0) || txn.group.IsExpired(product) {
		return nil
	}
	owner, err := txn.trader(ev.Callback.TraderID)
	if err != nil {
		return err
	}
	if ev.BaseSize != 0 {
		if err := owner.DecrementBookSize(idx, ev.Side, baseQtyToMarket(ev.BaseSize, meta)); err != nil {
			return err
		}
	}
	if ev.Delete {
		return owner.RemoveOpenOrderByIndex(idx, int(ev.Callback.OpenOrdersIdx), ev.OrderID)
	}
	return nil
}
