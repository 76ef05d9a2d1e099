package core

import (
	"DexLedger/internal/event"
	"DexLedger/internal/ledger"
	"DexLedger/internal/state"
)

// handleUpdateProductFunding accrues a funding payment on an outright's
// per-share accumulator. No cash moves here; traders settle against the
// accumulator lazily. Expired freezes the product in the same instruction.
func (c *DeterministicCore) handleUpdateProductFunding(e *event.UpdateProductFunding) (*ledger.Batch, error) {
	txn, err := c.beginTxn(e.Group)
	if err != nil {
		return nil, err
	}

	_, outright, err := txn.group.FindOutright(e.Product)
	if err != nil {
		return nil, err
	}
	if outright.IsExpired() {
		return nil, ErrProductExpired
	}
	if err := outright.ApplyNewFunding(e.Amount, txn.group.Decimals); err != nil {
		return nil, err
	}
	if e.Expired {
		outright.Status = state.ProductExpired
	}
	txn.group.SequenceNumber++

	batch := c.journalGen.Begin(e.IdempotencyKey(), e.Timestamp.Unix())
	txn.commit()

	if c.metrics != nil {
		c.metrics.FundingApplications.WithLabelValues(e.Group.String()).Inc()
	}
	return batch.Build(), nil
}

// handleUpdateTraderFunding settles one account against every product's
// funding and social-loss accumulators.
func (c *DeterministicCore) handleUpdateTraderFunding(e *event.UpdateTraderFunding) (*ledger.Batch, error) {
	txn, err := c.beginTxn(e.Group)
	if err != nil {
		return nil, err
	}
	trader, err := txn.trader(e.Trader)
	if err != nil {
		return nil, err
	}

	if err := txn.settleAllFunding(trader); err != nil {
		return nil, err
	}
	txn.group.SequenceNumber++

	batch := c.journalGen.Begin(e.IdempotencyKey(), e.Timestamp.Unix())
	if err := txn.flushFunding(batch); err != nil {
		return nil, err
	}
	txn.commit()
	return batch.Build(), nil
}
