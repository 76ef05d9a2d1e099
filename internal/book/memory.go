package book

import (
	"errors"
	"math/bits"
	"sort"
)

var ErrPostOnlyCrossed = errors.New("book: post-only order would cross")

type restingOrder struct {
	id       OrderID
	baseQty  uint64
	callback CallbackInfo
}

// level is one fp32 price with a FIFO order queue.
type level struct {
	price  uint64
	orders []restingOrder
}

// MemoryBook is the in-process price-time-priority matcher. Bids are kept
// best-first (descending price), asks ascending. The event queue grows on
// matches and shrinks only via PopEvents, mirroring the primitive's
// crank-driven consumption.
type MemoryBook struct {
	bids   []level
	asks   []level
	seq    uint64
	events []Event
}

func NewMemoryBook() *MemoryBook {
	return &MemoryBook{}
}

func (b *MemoryBook) sideLevels(s Side) *[]level {
	if s == Bid {
		return &b.bids
	}
	return &b.asks
}

// crosses reports whether a taker at limit crosses a maker level price.
func crosses(takerSide Side, limit, levelPrice uint64) bool {
	if takerSide == Bid {
		return levelPrice <= limit
	}
	return levelPrice >= limit
}

func (b *MemoryBook) NewOrder(params NewOrderParams) (OrderSummary, error) {
	if params.MaxBaseQty == 0 {
		return OrderSummary{}, ErrZeroQuantity
	}

	opposite := b.sideLevels(params.Side.Opposite())
	if params.OrderType == PostOnly && len(*opposite) > 0 &&
		crosses(params.Side, params.LimitPriceFP32, (*opposite)[0].price) {
		return OrderSummary{}, ErrPostOnlyCrossed
	}

	remainingBase := params.MaxBaseQty
	remainingQuote := params.MaxQuoteQty
	matchLimit := params.MatchLimit
	if matchLimit == 0 {
		matchLimit = ^uint64(0)
	}

	var matchedBase, matchedQuote uint64

levels:
	for len(*opposite) > 0 && remainingBase > 0 && matchLimit > 0 {
		lvl := &(*opposite)[0]
		if !crosses(params.Side, params.LimitPriceFP32, lvl.price) {
			break
		}
		for len(lvl.orders) > 0 && remainingBase > 0 && matchLimit > 0 {
			maker := &lvl.orders[0]

			take := remainingBase
			if maker.baseQty < take {
				take = maker.baseQty
			}
			if capped := maxBaseForQuote(remainingQuote, lvl.price); capped < take {
				take = capped
			}
			if take == 0 {
				break levels
			}

			if maker.callback.TraderID == params.Callback.TraderID {
				switch params.SelfTradeBehavior {
				case AbortTransaction:
					return OrderSummary{}, ErrSelfTradeAborted
				case CancelProvide:
					b.events = append(b.events, Event{
						Kind:    EventOut,
						Side:    params.Side.Opposite(),
						OrderID: maker.id,
						// BaseSize is the quantity leaving the book.
						BaseSize: maker.baseQty,
						Callback: maker.callback,
						Delete:   true,
					})
					lvl.orders = lvl.orders[1:]
					matchLimit--
					continue
				case DecrementTake:
					maker.baseQty -= take
					remainingBase -= take
					deleted := maker.baseQty == 0
					b.events = append(b.events, Event{
						Kind:     EventOut,
						Side:     params.Side.Opposite(),
						OrderID:  maker.id,
						BaseSize: take,
						Callback: maker.callback,
						Delete:   deleted,
					})
					if deleted {
						lvl.orders = lvl.orders[1:]
					}
					matchLimit--
					continue
				}
			}

			quote := FP32Mul(take, lvl.price)
			b.events = append(b.events, Event{
				Kind:          EventFill,
				TakerSide:     params.Side,
				QuoteSize:     quote,
				BaseSize:      take,
				MakerOrderID:  maker.id,
				MakerCallback: maker.callback,
				TakerCallback: params.Callback,
			})

			maker.baseQty -= take
			remainingBase -= take
			remainingQuote -= quote
			matchedBase += take
			matchedQuote += quote
			matchLimit--

			if maker.baseQty == 0 {
				b.events = append(b.events, Event{
					Kind:     EventOut,
					Side:     params.Side.Opposite(),
					OrderID:  maker.id,
					Callback: maker.callback,
					Delete:   true,
				})
				lvl.orders = lvl.orders[1:]
			}
		}
		if len(lvl.orders) == 0 {
			*opposite = (*opposite)[1:]
		}
	}

	summary := OrderSummary{
		TotalBaseQty:  matchedBase,
		TotalQuoteQty: matchedQuote,
	}

	if params.OrderType == FillOrKill && remainingBase > 0 {
		return OrderSummary{}, errors.New("book: fill-or-kill not fully matched")
	}

	post := remainingBase > 0 &&
		(params.OrderType == Limit || params.OrderType == PostOnly)
	if post {
		b.seq++
		id := NewOrderID(params.LimitPriceFP32, b.seq, params.Side)
		b.insert(params.Side, restingOrder{
			id:       id,
			baseQty:  remainingBase,
			callback: params.Callback,
		})
		summary.PostedOrderID = &id
		summary.TotalBaseQtyPosted = remainingBase
		summary.TotalBaseQty += remainingBase
		summary.TotalQuoteQty += FP32Mul(remainingBase, params.LimitPriceFP32)
	}

	return summary, nil
}

// maxBaseForQuote returns the largest base quantity whose quote cost at the
// given fp32 price stays within quoteBudget.
func maxBaseForQuote(quoteBudget, priceFP32 uint64) uint64 {
	if priceFP32 == 0 {
		return ^uint64(0)
	}
	hi := quoteBudget >> 32
	lo := quoteBudget << 32
	if hi >= priceFP32 {
		return ^uint64(0)
	}
	q, _ := bits.Div64(hi, lo, priceFP32)
	return q
}

func (b *MemoryBook) insert(side Side, o restingOrder) {
	levels := b.sideLevels(side)
	price := o.id.Price
	idx := sort.Search(len(*levels), func(i int) bool {
		if side == Bid {
			return (*levels)[i].price <= price
		}
		return (*levels)[i].price >= price
	})
	if idx < len(*levels) && (*levels)[idx].price == price {
		(*levels)[idx].orders = append((*levels)[idx].orders, o)
		return
	}
	*levels = append(*levels, level{})
	copy((*levels)[idx+1:], (*levels)[idx:])
	(*levels)[idx] = level{price: price, orders: []restingOrder{o}}
}

func (b *MemoryBook) CancelOrder(id OrderID) (OrderSummary, error) {
	levels := b.sideLevels(id.SideOf())
	for li := range *levels {
		lvl := &(*levels)[li]
		if lvl.price != id.Price {
			continue
		}
		for oi := range lvl.orders {
			if lvl.orders[oi].id != id {
				continue
			}
			removed := lvl.orders[oi].baseQty
			lvl.orders = append(lvl.orders[:oi], lvl.orders[oi+1:]...)
			if len(lvl.orders) == 0 {
				*levels = append((*levels)[:li], (*levels)[li+1:]...)
			}
			return OrderSummary{
				TotalBaseQty:  removed,
				TotalQuoteQty: FP32Mul(removed, id.Price),
			}, nil
		}
	}
	return OrderSummary{}, ErrOrderNotFound
}

func (b *MemoryBook) BestBid() (uint64, bool) {
	if len(b.bids) == 0 {
		return 0, false
	}
	return b.bids[0].price, true
}

func (b *MemoryBook) BestAsk() (uint64, bool) {
	if len(b.asks) == 0 {
		return 0, false
	}
	return b.asks[0].price, true
}

func (b *MemoryBook) ExtremeOrder(side Side) (OrderID, bool) {
	levels := *b.sideLevels(side)
	if len(levels) == 0 || len(levels[0].orders) == 0 {
		return OrderID{}, false
	}
	return levels[0].orders[0].id, true
}

func (b *MemoryBook) Events() []Event {
	return b.events
}

func (b *MemoryBook) PopEvents(n int) {
	if n >= len(b.events) {
		b.events = b.events[:0]
		return
	}
	b.events = append(b.events[:0], b.events[n:]...)
}

// Clone deep-copies the book so an instruction can be aborted without
// touching the committed state.
func (b *MemoryBook) Clone() Book {
	c := &MemoryBook{
		seq:    b.seq,
		bids:   make([]level, len(b.bids)),
		asks:   make([]level, len(b.asks)),
		events: append([]Event(nil), b.events...),
	}
	for i, lvl := range b.bids {
		c.bids[i] = level{price: lvl.price, orders: append([]restingOrder(nil), lvl.orders...)}
	}
	for i, lvl := range b.asks {
		c.asks[i] = level{price: lvl.price, orders: append([]restingOrder(nil), lvl.orders...)}
	}
	return c
}

// OrderSnapshot is one resting order in a book snapshot.
type OrderSnapshot struct {
	ID       OrderID
	BaseQty  uint64
	Callback CallbackInfo
}

// Snapshot is the serializable resting state of a book. Queued events are
// included so a restored book replays its unconsumed queue.
type Snapshot struct {
	Seq    uint64
	Orders []OrderSnapshot
	Events []Event
}

// Snapshot captures the book's resting orders and pending event queue.
func (b *MemoryBook) Snapshot() Snapshot {
	s := Snapshot{Seq: b.seq, Events: append([]Event(nil), b.events...)}
	for _, side := range [][]level{b.bids, b.asks} {
		for _, lvl := range side {
			for _, o := range lvl.orders {
				s.Orders = append(s.Orders, OrderSnapshot{ID: o.id, BaseQty: o.baseQty, Callback: o.callback})
			}
		}
	}
	return s
}

// RestoreMemoryBook rebuilds a book from a snapshot.
func RestoreMemoryBook(s Snapshot) *MemoryBook {
	b := &MemoryBook{seq: s.Seq, events: append([]Event(nil), s.Events...)}
	for _, o := range s.Orders {
		b.insert(o.ID.SideOf(), restingOrder{id: o.ID, baseQty: o.BaseQty, callback: o.Callback})
	}
	return b
}

// RestingQty reports total resting base quantity on a side. Test helper and
// expiry-cleanup convenience.
func (b *MemoryBook) RestingQty(side Side) uint64 {
	var total uint64
	for _, lvl := range *b.sideLevels(side) {
		for _, o := range lvl.orders {
			total += o.baseQty
		}
	}
	return total
}
