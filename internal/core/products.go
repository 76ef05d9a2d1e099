package core

import (
	"bytes"

	"DexLedger/internal/book"
	"DexLedger/internal/event"
	"DexLedger/internal/fpmath"
	"DexLedger/internal/ledger"
	"DexLedger/internal/state"
)

// handleInitializeProduct lists an outright. The tick size must settle the
// minimum order notional exactly at cash decimals, otherwise matched quote
// quantities could accrue sub-cash residue.
func (c *DeterministicCore) handleInitializeProduct(e *event.InitializeProduct) (*ledger.Batch, error) {
	txn, err := c.beginTxn(e.Group)
	if err != nil {
		return nil, err
	}

	if e.TickSize.Sign() <= 0 {
		return nil, ErrProductPrecision
	}
	minNotional, err := fpmath.FromInt(int64(c.cfg.MinBaseOrderSize)).CheckedMul(e.TickSize)
	if err != nil {
		return nil, err
	}
	if _, err := minNotional.Round(txn.group.Decimals); err != nil {
		return nil, ErrProductPrecision
	}

	for _, p := range txn.group.ActiveProducts() {
		if p.Metadata().Key == e.Product {
			return nil, ErrDuplicateProduct
		}
	}

	outright := state.Outright{
		Metadata: state.ProductMetadata{
			Key:          e.Product,
			Name:         e.Name,
			TickSize:     e.TickSize,
			BaseDecimals: e.BaseDecimals,
			PriceOffset:  e.PriceOffset,
		},
		Status: state.ProductInitialized,
	}
	outright.Metadata.Prices.Initialize(e.Slot)

	if _, err := txn.group.AddProduct(state.Product{Kind: state.KindOutright, Outright: outright}); err != nil {
		return nil, err
	}
	txn.books[e.Product] = book.NewMemoryBook()
	txn.group.SequenceNumber++

	batch := c.journalGen.Begin(e.IdempotencyKey(), e.Timestamp.Unix())
	txn.commit()
	return batch.Build(), nil
}

// handleInitializeCombo lists a spread over existing outrights. Leg ratios
// must be coprime so a combo lot is the smallest unit expressible in its legs,
// and legs must arrive sorted by product key so equivalent combos hash alike.
func (c *DeterministicCore) handleInitializeCombo(e *event.InitializeCombo) (*ledger.Batch, error) {
	txn, err := c.beginTxn(e.Group)
	if err != nil {
		return nil, err
	}

	if len(e.Legs) < 2 || len(e.Legs) > state.MaxLegs {
		return nil, ErrComboTooFewLegs
	}
	g := int64(0)
	for _, leg := range e.Legs {
		g = gcd(g, abs64(leg.Ratio))
	}
	if g != 1 {
		return nil, ErrComboRatiosNotCoprime
	}
	for i := 1; i < len(e.Legs); i++ {
		if bytes.Compare(e.Legs[i-1].Product[:], e.Legs[i].Product[:]) >= 0 {
			return nil, ErrComboLegsUnsorted
		}
	}

	for _, p := range txn.group.ActiveProducts() {
		if p.Metadata().Key == e.Product {
			return nil, ErrDuplicateProduct
		}
	}

	combo := state.Combo{
		Metadata: state.ProductMetadata{
			Key:          e.Product,
			Name:         e.Name,
			TickSize:     e.TickSize,
			BaseDecimals: e.BaseDecimals,
			PriceOffset:  e.PriceOffset,
		},
		NumLegs: len(e.Legs),
	}
	for i, leg := range e.Legs {
		idx, _, err := txn.group.FindOutright(leg.Product)
		if err != nil {
			return nil, err
		}
		combo.Legs[i] = state.Leg{ProductIndex: idx, ProductKey: leg.Product, Ratio: leg.Ratio}
	}
	combo.Metadata.Prices.Initialize(e.Slot)

	if _, err := txn.group.AddProduct(state.Product{Kind: state.KindCombo, Combo: combo}); err != nil {
		return nil, err
	}
	txn.books[e.Product] = book.NewMemoryBook()
	txn.group.SequenceNumber++

	batch := c.journalGen.Begin(e.IdempotencyKey(), e.Timestamp.Unix())
	txn.commit()
	return batch.Build(), nil
}

// handleRemoveProduct delists an expired product once every position against
// it has been retired and no active combo references it.
func (c *DeterministicCore) handleRemoveProduct(e *event.RemoveProduct) (*ledger.Batch, error) {
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
	if product.Kind == state.KindOutright {
		if !product.Outright.IsRemovable() {
			return nil, ErrProductInUse
		}
		for _, combo := range txn.group.ActiveCombos() {
			if combo.HasLeg(e.Product) {
				return nil, ErrProductInUse
			}
		}
	}

	if err := txn.group.DeactivateProduct(e.Product); err != nil {
		return nil, err
	}
	txn.removedBooks = append(txn.removedBooks, e.Product)
	txn.group.SequenceNumber++

	batch := c.journalGen.Begin(e.IdempotencyKey(), e.Timestamp.Unix())
	txn.commit()
	return batch.Build(), nil
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func abs64(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}
