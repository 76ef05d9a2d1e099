package state

import (
	"iter"

	"github.com/google/uuid"

	"DexLedger/internal/fpmath"
)

// ProductStatus is the lifecycle state of a listed product.
type ProductStatus uint8

const (
	ProductUninitialized ProductStatus = iota
	ProductInitialized
	ProductExpired
)

func (s ProductStatus) String() string {
	switch s {
	case ProductUninitialized:
		return "uninitialized"
	case ProductInitialized:
		return "initialized"
	case ProductExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// ProductKind discriminates the two product shapes sharing a registry slot.
type ProductKind uint8

const (
	KindNone ProductKind = iota
	KindOutright
	KindCombo
)

// ProductMetadata is shared by outrights and combos.
type ProductMetadata struct {
	Key            uuid.UUID
	Name           string
	TickSize       fpmath.Fractional
	BaseDecimals   uint64
	PriceOffset    fpmath.Fractional
	ContractVolume fpmath.Fractional
	Prices         PriceEwma
}

// Outright is a product on a single underlying.
type Outright struct {
	Metadata              ProductMetadata
	NumQueueEvents        uint64
	Status                ProductStatus
	Dust                  fpmath.Fractional
	CumFundingPerShare    fpmath.Fractional
	CumSocialLossPerShare fpmath.Fractional
	OpenLongInterest      fpmath.Fractional
	OpenShortInterest     fpmath.Fractional
}

// ApplyNewFunding accumulates a funding payment per share and enforces that
// the running total stays payable without rounding at settlement scale.
func (o *Outright) ApplyNewFunding(amountPerShare fpmath.Fractional, cashDecimals uint64) error {
	sum, err := o.CumFundingPerShare.CheckedAdd(amountPerShare)
	if err != nil {
		return err
	}
	o.CumFundingPerShare = sum
	if !o.CumFundingPerShare.HasPrecision(int64(o.Metadata.BaseDecimals) - int64(cashDecimals)) {
		return ErrFundingPrecision
	}
	return nil
}

// ApplySocialLoss spreads a realized loss across open interest, carrying the
// sub-share remainder as dust until enough accumulates to distribute.
func (o *Outright) ApplySocialLoss(loss fpmath.Fractional, cashDecimals uint64) error {
	dust, err := o.Dust.CheckedAdd(loss)
	if err != nil {
		return err
	}
	o.Dust, err = dust.RoundUnchecked(cashDecimals)
	if err != nil {
		return err
	}
	oi, err := o.OpenLongInterest.CheckedAdd(o.OpenShortInterest)
	if err != nil {
		return err
	}
	oi, err = oi.RoundUnchecked(o.Metadata.BaseDecimals)
	if err != nil {
		return err
	}
	if oi.IsZero() {
		return nil
	}
	multiplier := o.Dust.M / oi.M
	o.Dust.M %= oi.M
	perShare := fpmath.Fractional{M: multiplier * pow10i(o.Metadata.BaseDecimals), Exp: cashDecimals}
	o.CumSocialLossPerShare, err = o.CumSocialLossPerShare.CheckedAdd(perShare)
	return err
}

// IsRemovable reports whether no open interest remains on either side.
func (o *Outright) IsRemovable() bool {
	return o.OpenLongInterest.IsZero() && o.OpenShortInterest.IsZero()
}

func (o *Outright) IsExpired() bool { return o.Status == ProductExpired }

// UpdateOpenInterestChange adjusts open interest for a trade of tradeSize
// between a buyer currently short buyerShort and a seller currently long
// sellerLong. Long and short interest are kept equal.
func (o *Outright) UpdateOpenInterestChange(tradeSize, buyerShort, sellerLong fpmath.Fractional) error {
	var err error
	oi := o.OpenLongInterest
	switch {
	case buyerShort.Cmp(tradeSize) < 0 && sellerLong.Cmp(tradeSize) < 0:
		if oi, err = oi.CheckedAdd(tradeSize); err != nil {
			return err
		}
		if oi, err = oi.CheckedSub(buyerShort); err != nil {
			return err
		}
		oi, err = oi.CheckedSub(sellerLong)
	case buyerShort.Cmp(tradeSize) < 0:
		oi, err = oi.CheckedSub(buyerShort)
	case sellerLong.Cmp(tradeSize) < 0:
		oi, err = oi.CheckedSub(sellerLong)
	default:
		oi, err = oi.CheckedSub(tradeSize)
	}
	if err != nil {
		return err
	}
	o.OpenLongInterest = oi
	o.OpenShortInterest = oi
	return nil
}

// Leg is one component of a combo: an outright index with a signed weight.
type Leg struct {
	ProductIndex int
	ProductKey   uuid.UUID
	Ratio        int64
}

// Combo is a product whose fills settle into several outright positions.
type Combo struct {
	Metadata ProductMetadata
	NumLegs  int
	Legs     [MaxLegs]Leg
}

// ActiveLegs returns the populated prefix of the leg array.
func (c *Combo) ActiveLegs() []Leg { return c.Legs[:c.NumLegs] }

func (c *Combo) HasLeg(productKey uuid.UUID) bool {
	for _, l := range c.ActiveLegs() {
		if l.ProductKey == productKey {
			return true
		}
	}
	return false
}

// Product is one registry slot: either an outright or a combo.
type Product struct {
	Kind     ProductKind
	Outright Outright
	Combo    Combo
}

func (p *Product) IsCombo() bool { return p.Kind == KindCombo }

// Metadata returns the shared metadata of whichever shape occupies the slot.
func (p *Product) Metadata() *ProductMetadata {
	if p.Kind == KindCombo {
		return &p.Combo.Metadata
	}
	return &p.Outright.Metadata
}

func (p *Product) AsOutright() (*Outright, error) {
	if p.Kind != KindOutright {
		return nil, ErrProductNotOutright
	}
	return &p.Outright, nil
}

func (p *Product) AsCombo() (*Combo, error) {
	if p.Kind != KindCombo {
		return nil, ErrProductNotCombo
	}
	return &p.Combo, nil
}

// BestBid and BestAsk return the latest observed book extremes.
func (p *Product) BestBid() fpmath.Fractional { return p.Metadata().Prices.Bid }
func (p *Product) BestAsk() fpmath.Fractional { return p.Metadata().Prices.Ask }

// PrevBestBid returns the bid as of the slot before the given one.
func (p *Product) PrevBestBid(slot uint64) fpmath.Fractional {
	if slot > p.Metadata().Prices.Slot {
		return p.Metadata().Prices.Bid
	}
	return p.Metadata().Prices.PrevBid
}

// PrevBestAsk returns the ask as of the slot before the given one.
func (p *Product) PrevBestAsk(slot uint64) fpmath.Fractional {
	if slot > p.Metadata().Prices.Slot {
		return p.Metadata().Prices.Ask
	}
	return p.Metadata().Prices.PrevAsk
}

// RatiosAndIndices yields (ratio, outright index) pairs: the single (1, self)
// pair for an outright, or each leg's weighting for a combo.
func (p *Product) RatiosAndIndices(selfIndex int) iter.Seq2[int64, int] {
	return func(yield func(int64, int) bool) {
		if p.Kind != KindCombo {
			yield(1, selfIndex)
			return
		}
		for _, l := range p.Combo.ActiveLegs() {
			if !yield(l.Ratio, l.ProductIndex) {
				return
			}
		}
	}
}

func pow10i(n uint64) int64 {
	r := int64(1)
	for ; n > 0; n-- {
		r *= 10
	}
	return r
}
