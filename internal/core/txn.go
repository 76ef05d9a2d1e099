package core

import (
	"github.com/google/uuid"

	"DexLedger/internal/book"
	"DexLedger/internal/fpmath"
	"DexLedger/internal/ledger"
	"DexLedger/internal/state"
)

// instructionTxn is the working set of one instruction: value copies of the
// market product group and every touched trader account, plus clones of every
// touched book. Handlers mutate the copies freely; commit swaps them in only
// when the whole instruction succeeded, so a failed instruction leaves no
// trace.
type instructionTxn struct {
	core  *DeterministicCore
	group *state.MarketProductGroup

	traders map[uuid.UUID]*state.TraderRiskGroup
	books   map[uuid.UUID]book.Book

	removedBooks []uuid.UUID

	// Funding settled into cash during the instruction, per trader, in
	// first-touched order so journal emission is deterministic.
	funding      map[uuid.UUID]fpmath.Fractional
	fundingOrder []uuid.UUID
}

func (c *DeterministicCore) beginTxn(groupKey uuid.UUID) (*instructionTxn, error) {
	orig, ok := c.groups[groupKey]
	if !ok {
		return nil, ErrMissingMarketProductGroup
	}
	work := *orig
	return &instructionTxn{
		core:    c,
		group:   &work,
		traders: make(map[uuid.UUID]*state.TraderRiskGroup),
		books:   make(map[uuid.UUID]book.Book),
		funding: make(map[uuid.UUID]fpmath.Fractional),
	}, nil
}

// trader returns the working copy of an account, creating it on first touch.
func (t *instructionTxn) trader(key uuid.UUID) (*state.TraderRiskGroup, error) {
	if tr, ok := t.traders[key]; ok {
		return tr, nil
	}
	orig, ok := t.core.traders[key]
	if !ok {
		return nil, ErrMissingTraderAccount
	}
	work := *orig
	t.traders[key] = &work
	return &work, nil
}

func (t *instructionTxn) hasTrader(key uuid.UUID) bool {
	if _, ok := t.traders[key]; ok {
		return true
	}
	_, ok := t.core.traders[key]
	return ok
}

// book returns the working clone of a product's orderbook.
func (t *instructionTxn) book(productKey uuid.UUID) (book.Book, error) {
	if b, ok := t.books[productKey]; ok {
		return b, nil
	}
	orig, ok := t.core.books[productKey]
	if !ok {
		return nil, ErrMissingOrderbook
	}
	clone := orig.Clone()
	t.books[productKey] = clone
	return clone, nil
}

// settleFunding applies funding for one position slot and accrues the
// resulting cash movement for the instruction's journal batch.
func (t *instructionTxn) settleFunding(tr *state.TraderRiskGroup, positionIndex int) error {
	before := tr.CashBalance
	if err := tr.ApplyFunding(t.group, positionIndex); err != nil {
		return err
	}
	return t.accrueFunding(tr.Key, before, tr.CashBalance)
}

// settleAllFunding applies funding across every position slot.
func (t *instructionTxn) settleAllFunding(tr *state.TraderRiskGroup) error {
	before := tr.CashBalance
	if err := tr.ApplyAllFunding(t.group); err != nil {
		return err
	}
	return t.accrueFunding(tr.Key, before, tr.CashBalance)
}

func (t *instructionTxn) accrueFunding(key uuid.UUID, before, after fpmath.Fractional) error {
	delta, err := after.CheckedSub(before)
	if err != nil {
		return err
	}
	if delta.IsZero() {
		return nil
	}
	acc, ok := t.funding[key]
	if !ok {
		t.fundingOrder = append(t.fundingOrder, key)
	}
	if acc, err = acc.CheckedAdd(delta); err != nil {
		return err
	}
	t.funding[key] = acc
	return nil
}

// flushFunding emits one funding journal per trader touched by settlement.
func (t *instructionTxn) flushFunding(b *ledger.BatchBuilder) error {
	for _, key := range t.fundingOrder {
		amt, err := ledger.CashAmount(t.funding[key], t.group.Decimals)
		if err != nil {
			return err
		}
		b.Funding(t.group.Key, key, amt)
	}
	return nil
}

// commit swaps the working copies into the core's live state.
func (t *instructionTxn) commit() {
	if orig, ok := t.core.groups[t.group.Key]; ok {
		*orig = *t.group
	} else {
		t.core.groups[t.group.Key] = t.group
	}
	for key, tr := range t.traders {
		if orig, ok := t.core.traders[key]; ok {
			*orig = *tr
		} else {
			t.core.traders[key] = tr
		}
	}
	for key, b := range t.books {
		t.core.books[key] = b
	}
	for _, key := range t.removedBooks {
		delete(t.core.books, key)
	}
}
