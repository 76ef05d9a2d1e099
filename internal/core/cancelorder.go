package core

import (
	"context"

	"DexLedger/internal/event"
	"DexLedger/internal/ledger"
	"DexLedger/internal/risk"
)

// handleCancelOrder removes a resting order. The owner may always cancel;
// anyone else may only cancel against an account that no longer passes its
// health check, which lets keepers strip exposure off unhealthy accounts
// before liquidation.
func (c *DeterministicCore) handleCancelOrder(ctx context.Context, e *event.CancelOrder) (*ledger.Batch, error) {
	txn, err := c.beginTxn(e.Group)
	if err != nil {
		return nil, err
	}
	idx, product, err := txn.group.FindProductIndex(e.Product)
	if err != nil {
		return nil, err
	}
	meta := product.Metadata()

	trader, err := txn.trader(e.Trader)
	if err != nil {
		return nil, err
	}

	voluntary := e.Initiator == e.Trader
	if !voluntary {
		if err := txn.settleAllFunding(trader); err != nil {
			return nil, err
		}
		info, err := c.riskEngine.CheckHealth(ctx, risk.HealthRequest{
			Group:  txn.group,
			Trader: trader,
			Order:  &risk.OrderInfo{ProductIndex: idx, Operation: risk.OpCheckHealth},
		})
		if err != nil {
			return nil, err
		}
		if info.Health == risk.Healthy {
			return nil, ErrHealthyAccountCancel
		}
	}

	bk, err := txn.book(e.Product)
	if err != nil {
		return nil, err
	}
	summary, err := bk.CancelOrder(e.OrderID)
	if err != nil {
		return nil, err
	}

	bid, ask, err := bookExtremes(bk, meta)
	if err != nil {
		return nil, err
	}
	txn.group.Prices(idx).UpdatePrices(e.Slot, txn.group.EwmaWindows, bid, ask)

	if err := trader.RemoveOpenOrder(idx, e.OrderID); err != nil {
		return nil, err
	}
	side := e.OrderID.SideOf()
	if err := trader.DecrementBookSize(idx, side, baseQtyToMarket(summary.TotalBaseQty, meta)); err != nil {
		return nil, err
	}
	txn.group.SequenceNumber++

	batch := c.journalGen.Begin(e.IdempotencyKey(), e.Timestamp.Unix())
	if err := txn.flushFunding(batch); err != nil {
		return nil, err
	}
	txn.commit()

	if c.metrics != nil {
		reason := "voluntary"
		if !voluntary {
			reason = "third_party"
		}
		c.metrics.OrdersCancelled.WithLabelValues(e.Group.String(), reason).Inc()
	}
	return batch.Build(), nil
}
