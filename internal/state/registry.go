package state

import (
	"iter"

	"github.com/google/uuid"

	"DexLedger/internal/fpmath"
)

// MarketProductGroup is the root of a market's shared state: the product
// arena, fee configuration, and the group-wide sequence number. It is a plain
// value so instruction handlers can mutate a copy and commit by assignment.
type MarketProductGroup struct {
	Key           uuid.UUID
	Name          string
	Decimals      uint64
	CollectedFees fpmath.Fractional

	ActiveFlags Bitset
	EwmaWindows [4]uint64
	Products    [MaxProducts]Product

	MaxMakerFeeBps int32
	MinMakerFeeBps int32
	MaxTakerFeeBps int32
	MinTakerFeeBps int32

	SequenceNumber uint64
}

// NewMarketProductGroup returns an empty group with the default EWMA windows.
func NewMarketProductGroup(key uuid.UUID, name string, decimals uint64) MarketProductGroup {
	return MarketProductGroup{
		Key:         key,
		Name:        name,
		Decimals:    decimals,
		EwmaWindows: DefaultEwmaWindows,
	}
}

// IsExpired reports whether the product, or any outright leg of a combo, has
// expired.
func (g *MarketProductGroup) IsExpired(p *Product) bool {
	if p.Kind != KindCombo {
		return p.Outright.IsExpired()
	}
	for _, l := range p.Combo.ActiveLegs() {
		if g.Products[l.ProductIndex].Outright.IsExpired() {
			return true
		}
	}
	return false
}

// FindProductIndex locates an active product by key.
func (g *MarketProductGroup) FindProductIndex(key uuid.UUID) (int, *Product, error) {
	for idx, p := range g.ActiveProducts() {
		if p.Metadata().Key == key {
			return idx, p, nil
		}
	}
	return 0, nil, ErrMissingMarketProduct
}

// FindOutright locates an active outright by key.
func (g *MarketProductGroup) FindOutright(key uuid.UUID) (int, *Outright, error) {
	idx, p, err := g.FindProductIndex(key)
	if err != nil {
		return 0, nil, err
	}
	o, err := p.AsOutright()
	return idx, o, err
}

// FindCombo locates an active combo by key.
func (g *MarketProductGroup) FindCombo(key uuid.UUID) (int, *Combo, error) {
	idx, p, err := g.FindProductIndex(key)
	if err != nil {
		return 0, nil, err
	}
	c, err := p.AsCombo()
	return idx, c, err
}

// ActiveProducts yields every occupied registry slot in index order.
func (g *MarketProductGroup) ActiveProducts() iter.Seq2[int, *Product] {
	return func(yield func(int, *Product) bool) {
		for idx := range g.Products {
			if !g.ActiveFlags.Contains(idx) {
				continue
			}
			if !yield(idx, &g.Products[idx]) {
				return
			}
		}
	}
}

// ActiveOutrights yields the occupied outright slots.
func (g *MarketProductGroup) ActiveOutrights() iter.Seq2[int, *Outright] {
	return func(yield func(int, *Outright) bool) {
		for idx, p := range g.ActiveProducts() {
			if p.Kind != KindOutright {
				continue
			}
			if !yield(idx, &p.Outright) {
				return
			}
		}
	}
}

// ActiveCombos yields the occupied combo slots.
func (g *MarketProductGroup) ActiveCombos() iter.Seq2[int, *Combo] {
	return func(yield func(int, *Combo) bool) {
		for idx, p := range g.ActiveProducts() {
			if p.Kind != KindCombo {
				continue
			}
			if !yield(idx, &p.Combo) {
				return
			}
		}
	}
}

// AddProduct places the product in the lowest free slot. Names must be unique
// among active products.
func (g *MarketProductGroup) AddProduct(p Product) (int, error) {
	for _, existing := range g.ActiveProducts() {
		if existing.Metadata().Name == p.Metadata().Name {
			return 0, ErrDuplicateProductName
		}
	}
	idx, err := g.ActiveFlags.FindFirstClearAndSet()
	if err != nil {
		return 0, ErrFullMarketProductGroup
	}
	g.Products[idx] = p
	return idx, nil
}

// DeactivateProduct clears the product's slot.
func (g *MarketProductGroup) DeactivateProduct(key uuid.UUID) error {
	idx, _, err := g.FindProductIndex(key)
	if err != nil {
		return err
	}
	if err := g.ActiveFlags.Clear(idx); err != nil {
		return err
	}
	g.Products[idx] = Product{}
	return nil
}

// Prices returns the EWMA tracker of the product at idx.
func (g *MarketProductGroup) Prices(idx int) *PriceEwma {
	return &g.Products[idx].Metadata().Prices
}
