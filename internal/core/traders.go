package core

import (
	"DexLedger/internal/event"
	"DexLedger/internal/ledger"
	"DexLedger/internal/state"
)

// handleInitializeTraderRiskGroup registers a trader account against the
// group with zeroed balances and an empty open-orders ledger.
func (c *DeterministicCore) handleInitializeTraderRiskGroup(e *event.InitializeTraderRiskGroup) (*ledger.Batch, error) {
	txn, err := c.beginTxn(e.Group)
	if err != nil {
		return nil, err
	}

	if txn.hasTrader(e.Trader) {
		return nil, ErrTraderAlreadyExists
	}
	trader := state.NewTraderRiskGroup(e.Trader, e.Group)
	txn.traders[e.Trader] = &trader

	batch := c.journalGen.Begin(e.IdempotencyKey(), e.Timestamp.Unix())
	txn.commit()
	return batch.Build(), nil
}
