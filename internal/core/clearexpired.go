package core

import (
	"DexLedger/internal/book"
	"DexLedger/internal/event"
	"DexLedger/internal/ledger"
)

// handleClearExpiredOrderbook force-cancels resting orders on an expired
// product, best orders first, a bounded number per instruction. Trader order
// ledgers are not touched here; they drain when funding settlement retires
// the expired positions.
func (c *DeterministicCore) handleClearExpiredOrderbook(e *event.ClearExpiredOrderbook) (*ledger.Batch, error) {
	txn, err := c.beginTxn(e.Group)
	if err != nil {
		return nil, err
	}
	_, product, err := txn.group.FindProductIndex(e.Product)
	if err != nil {
		return nil, err
	}
	if !txn.group.IsExpired(product) {
		return nil, ErrProductNotExpired
	}
	bk, err := txn.book(e.Product)
	if err != nil {
		return nil, err
	}

	cancelled := 0
	for i := 0; i < e.NumOrdersToCancel; i++ {
		id, ok := bk.ExtremeOrder(book.Bid)
		if !ok {
			id, ok = bk.ExtremeOrder(book.Ask)
		}
		if !ok {
			break
		}
		if _, err := bk.CancelOrder(id); err != nil {
			return nil, err
		}
		cancelled++
	}
	if cancelled == 0 {
		return nil, ErrOrderbookEmpty
	}

	batch := c.journalGen.Begin(e.IdempotencyKey(), e.Timestamp.Unix())
	txn.commit()

	if c.metrics != nil {
		c.metrics.OrdersCancelled.WithLabelValues(e.Group.String(), "expired").Add(float64(cancelled))
	}
	return batch.Build(), nil
}
