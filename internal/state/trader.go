package state

import (
	"iter"

	"github.com/google/uuid"

	"DexLedger/internal/book"
	"DexLedger/internal/fpmath"
)

// TraderPosition is one product the trader holds or is accumulating.
type TraderPosition struct {
	Initialized            bool
	ProductKey             uuid.UUID
	Position               fpmath.Fractional
	PendingPosition        fpmath.Fractional
	ProductIndex           int
	LastCumFundingSnapshot fpmath.Fractional
	LastSocialLossSnapshot fpmath.Fractional
}

// IsActive reports whether any settled or pending position remains.
func (p *TraderPosition) IsActive() bool {
	return !p.Position.IsZero() || !p.PendingPosition.IsZero()
}

// TraderRiskGroup is a trader's account on a market product group: cash,
// positions, fee schedule, and the open-orders ledger.
type TraderRiskGroup struct {
	Key                uuid.UUID
	MarketProductGroup uuid.UUID

	// ActiveProducts maps a product index to its position slot, SlotUnset
	// when the trader has no position there.
	ActiveProducts [MaxProducts]uint8

	TotalDeposited     fpmath.Fractional
	TotalWithdrawn     fpmath.Fractional
	CashBalance        fpmath.Fractional
	PendingCashBalance fpmath.Fractional
	PendingFees        fpmath.Fractional

	Fees TraderFees

	Positions [MaxTraderPositions]TraderPosition

	ClientOrderID uint64
	OpenOrders    OpenOrders
}

// NewTraderRiskGroup returns an initialized account with no positions.
func NewTraderRiskGroup(key, group uuid.UUID) TraderRiskGroup {
	t := TraderRiskGroup{Key: key, MarketProductGroup: group}
	for i := range t.ActiveProducts {
		t.ActiveProducts[i] = SlotUnset
	}
	t.OpenOrders.Initialize()
	return t
}

// IsActiveProduct reports whether the trader has a position slot bound to the
// product index.
func (t *TraderRiskGroup) IsActiveProduct(index int) bool {
	if index < 0 || index >= MaxProducts {
		return false
	}
	return t.ActiveProducts[index] != SlotUnset
}

// FindPositionIndex locates the position slot holding the product key.
func (t *TraderRiskGroup) FindPositionIndex(productKey uuid.UUID) (int, bool) {
	for i := range t.Positions {
		if t.Positions[i].ProductKey == productKey {
			return i, true
		}
	}
	return 0, false
}

// ApplyFunding settles accrued funding and social loss for one position slot
// into the cash balance. When the product has expired and its event queue has
// drained, the position is retired: open interest is netted out and every
// order ledger entry touching the product is cleared.
func (t *TraderRiskGroup) ApplyFunding(group *MarketProductGroup, positionIndex int) error {
	pos := &t.Positions[positionIndex]
	productIndex := pos.ProductIndex
	product, err := group.Products[productIndex].AsOutright()
	if err != nil {
		return err
	}
	fundingMoved := !pos.LastCumFundingSnapshot.Eq(product.CumFundingPerShare)
	socialLossMoved := !pos.LastSocialLossSnapshot.Eq(product.CumSocialLossPerShare)
	if (fundingMoved || socialLossMoved) && (!product.IsExpired() || product.NumQueueEvents == 0) {
		owed, err := accruedFunding(pos, product)
		if err != nil {
			return err
		}
		if t.CashBalance, err = t.CashBalance.CheckedAdd(owed); err != nil {
			return err
		}
		pos.LastCumFundingSnapshot = product.CumFundingPerShare
		pos.LastSocialLossSnapshot = product.CumSocialLossPerShare
	}
	if product.IsExpired() && product.NumQueueEvents == 0 {
		productKey := pos.ProductKey
		if pos.Position.Sign() > 0 {
			if product.OpenLongInterest, err = product.OpenLongInterest.CheckedSub(pos.Position); err != nil {
				return err
			}
		} else {
			if product.OpenShortInterest, err = product.OpenShortInterest.CheckedAdd(pos.Position); err != nil {
				return err
			}
		}
		t.OpenOrders.Clear(productIndex)
		for comboIndex, combo := range group.ActiveCombos() {
			if combo.HasLeg(productKey) {
				t.OpenOrders.Clear(comboIndex)
			}
		}
		return t.ClearPosition(productKey)
	}
	return nil
}

// accruedFunding is the cash owed to the position since its last snapshots.
// Funding credits, social loss debits.
func accruedFunding(pos *TraderPosition, product *Outright) (fpmath.Fractional, error) {
	owed, err := product.CumFundingPerShare.CheckedSub(pos.LastCumFundingSnapshot)
	if err != nil {
		return fpmath.Zero, err
	}
	if owed, err = owed.CheckedAdd(pos.LastSocialLossSnapshot); err != nil {
		return fpmath.Zero, err
	}
	if owed, err = owed.CheckedSub(product.CumSocialLossPerShare); err != nil {
		return fpmath.Zero, err
	}
	return owed.CheckedMul(pos.Position)
}

// ApplyAllFunding settles every initialized position slot.
func (t *TraderRiskGroup) ApplyAllFunding(group *MarketProductGroup) error {
	for i := range t.Positions {
		if !t.Positions[i].Initialized {
			continue
		}
		if err := t.ApplyFunding(group, i); err != nil {
			return err
		}
	}
	return nil
}

// ComputeUnsettledFunding sums the funding owed across all positions without
// settling it.
func (t *TraderRiskGroup) ComputeUnsettledFunding(group *MarketProductGroup) (fpmath.Fractional, error) {
	funding := fpmath.Zero
	for i := range t.Positions {
		pos := &t.Positions[i]
		if !pos.Initialized {
			continue
		}
		product, err := group.Products[pos.ProductIndex].AsOutright()
		if err != nil {
			return fpmath.Zero, err
		}
		owed, err := accruedFunding(pos, product)
		if err != nil {
			return fpmath.Zero, err
		}
		if funding, err = funding.CheckedAdd(owed); err != nil {
			return fpmath.Zero, err
		}
	}
	return funding, nil
}

// AddOpenOrder records a resting order against the product, bounded per
// product.
func (t *TraderRiskGroup) AddOpenOrder(index int, id book.OrderID, clientID uint64) error {
	if t.OpenOrders.Products[index].NumOpenOrders >= MaxOpenOrdersPerPosition {
		return ErrTooManyOpenOrders
	}
	t.OpenOrders.Products[index].NumOpenOrders++
	t.OpenOrders.TotalOpenOrders++
	return t.OpenOrders.AddOpenOrder(index, id, clientID)
}

// RemoveOpenOrder drops a resting order from the product's ledger.
func (t *TraderRiskGroup) RemoveOpenOrder(index int, id book.OrderID) error {
	if t.OpenOrders.Products[index].NumOpenOrders == 0 {
		return ErrNoMoreOpenOrders
	}
	t.OpenOrders.Products[index].NumOpenOrders--
	if t.OpenOrders.TotalOpenOrders > 0 {
		t.OpenOrders.TotalOpenOrders--
	}
	return t.OpenOrders.RemoveOpenOrder(index, id)
}

// RemoveOpenOrderByIndex drops a resting order whose arena slot is already
// known, skipping the list scan.
func (t *TraderRiskGroup) RemoveOpenOrderByIndex(index, nodeIndex int, id book.OrderID) error {
	if t.OpenOrders.Products[index].NumOpenOrders == 0 {
		return ErrNoMoreOpenOrders
	}
	if err := t.OpenOrders.RemoveOpenOrderByIndex(index, nodeIndex, id); err != nil {
		return err
	}
	t.OpenOrders.Products[index].NumOpenOrders--
	if t.OpenOrders.TotalOpenOrders > 0 {
		t.OpenOrders.TotalOpenOrders--
	}
	return nil
}

// ActivateIfUninitialized binds the product to a position slot if it has
// none. Prefers an untouched slot; failing that, recycles a slot whose
// position has fully closed and which no resting order, outright or through a
// combo leg, still references.
func (t *TraderRiskGroup) ActivateIfUninitialized(
	productIndex int,
	productKey uuid.UUID,
	funding, socialLoss fpmath.Fractional,
	activeCombos iter.Seq2[int, *Combo],
) error {
	if t.IsActiveProduct(productIndex) {
		return nil
	}
	hasUninitialized := false
	for i := range t.Positions {
		if !t.Positions[i].Initialized {
			hasUninitialized = true
			break
		}
	}
	var combosWithOpenOrders []*Combo
	if !hasUninitialized {
		for idx, combo := range activeCombos {
			if t.OpenOrders.Products[idx].NumOpenOrders > 0 {
				combosWithOpenOrders = append(combosWithOpenOrders, combo)
			}
		}
	}

	for i := range t.Positions {
		pos := &t.Positions[i]
		if pos.Initialized {
			if hasUninitialized || pos.IsActive() {
				continue
			}
			if t.OpenOrders.Products[pos.ProductIndex].NumOpenOrders > 0 {
				continue
			}
			referenced := false
			for _, combo := range combosWithOpenOrders {
				if combo.HasLeg(pos.ProductKey) {
					referenced = true
					break
				}
			}
			if referenced {
				continue
			}
		}
		t.ActiveProducts[productIndex] = uint8(i)
		*pos = TraderPosition{
			Initialized:            true,
			ProductKey:             productKey,
			ProductIndex:           productIndex,
			LastCumFundingSnapshot: funding,
			LastSocialLossSnapshot: socialLoss,
		}
		return nil
	}
	return ErrAllPositionsOccupied
}

// AdjustBookQty adds qty to the trader's resting size on one side of a
// product.
func (t *TraderRiskGroup) AdjustBookQty(productIndex int, qty fpmath.Fractional, side book.Side) error {
	meta := &t.OpenOrders.Products[productIndex]
	var err error
	if side == book.Bid {
		meta.BidQtyInBook, err = meta.BidQtyInBook.CheckedAdd(qty)
	} else {
		meta.AskQtyInBook, err = meta.AskQtyInBook.CheckedAdd(qty)
	}
	return err
}

// DecrementBookSize removes qty from the trader's resting size on one side of
// a product.
func (t *TraderRiskGroup) DecrementBookSize(productIndex int, side book.Side, qty fpmath.Fractional) error {
	meta := &t.OpenOrders.Products[productIndex]
	var err error
	if side == book.Bid {
		meta.BidQtyInBook, err = meta.BidQtyInBook.CheckedSub(qty)
	} else {
		meta.AskQtyInBook, err = meta.AskQtyInBook.CheckedSub(qty)
	}
	return err
}

// ClearPosition retires the slot bound to the product key.
func (t *TraderRiskGroup) ClearPosition(productKey uuid.UUID) error {
	i, ok := t.FindPositionIndex(productKey)
	if !ok {
		return ErrPositionNotFound
	}
	t.ActiveProducts[t.Positions[i].ProductIndex] = SlotUnset
	t.Positions[i] = TraderPosition{}
	return nil
}
