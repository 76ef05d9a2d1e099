// Package book defines the order-book primitive the clearing engine drives:
// a narrow call/result contract over an opaque price-time-priority matcher,
// plus an in-process implementation. Prices cross this boundary in a 32.32
// fixed-point tick space; quantities are integer lots in the product's base
// decimals.
package book

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/google/uuid"
)

var (
	ErrOrderNotFound    = errors.New("book: order not found")
	ErrSelfTradeAborted = errors.New("book: self trade aborted")
	ErrZeroQuantity     = errors.New("book: zero quantity order")
)

// Side of the book an order rests on or takes from.
type Side uint8

const (
	Bid Side = iota
	Ask
)

func (s Side) String() string {
	if s == Bid {
		return "bid"
	}
	return "ask"
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Bid {
		return Ask
	}
	return Bid
}

// OrderType mirrors the order modes the matcher accepts.
type OrderType uint8

const (
	Limit OrderType = iota
	ImmediateOrCancel
	FillOrKill
	PostOnly
)

// SelfTradeBehavior selects what happens when an order would match the same
// trader's resting order.
type SelfTradeBehavior uint8

const (
	// DecrementTake cancels the overlapping quantity on both sides without
	// generating a fill.
	DecrementTake SelfTradeBehavior = iota
	// CancelProvide removes the resting maker order and keeps taking.
	CancelProvide
	// AbortTransaction fails the whole instruction.
	AbortTransaction
)

// sideBit marks bids in the sequence half of an order id.
const sideBit = uint64(1) << 63

// OrderID is a 128-bit order identity: the fp32 limit price in the upper
// half and a per-book sequence in the lower half. The sequence's top bit
// encodes the side, so ownership of price levels never needs a book lookup.
type OrderID struct {
	Price uint64
	Seq   uint64
}

// NewOrderID builds an id for a resting order.
func NewOrderID(priceFP32 uint64, seq uint64, side Side) OrderID {
	if side == Bid {
		seq |= sideBit
	} else {
		seq &^= sideBit
	}
	return OrderID{Price: priceFP32, Seq: seq}
}

// SideOf recovers the side encoded in the id.
func (id OrderID) SideOf() Side {
	if id.Seq&sideBit != 0 {
		return Bid
	}
	return Ask
}

func (id OrderID) IsZero() bool {
	return id.Price == 0 && id.Seq == 0
}

func (id OrderID) String() string {
	return fmt.Sprintf("%016x%016x", id.Price, id.Seq)
}

// FP32Mul multiplies an integer quantity by an fp32 price, returning an
// integer quote quantity (truncated).
func FP32Mul(a uint64, bFP32 uint64) uint64 {
	hi, lo := bits.Mul64(a, bFP32)
	return hi<<32 | lo>>32
}

// CallbackInfo ties book events back to the owning trader account and the
// open-orders slot the engine reserved for the order.
type CallbackInfo struct {
	TraderID      uuid.UUID
	OpenOrdersIdx uint16
}

// NewOrderParams is the request shape of the primitive's new-order call.
type NewOrderParams struct {
	MaxBaseQty        uint64
	MaxQuoteQty       uint64
	LimitPriceFP32    uint64
	Side              Side
	OrderType         OrderType
	SelfTradeBehavior SelfTradeBehavior
	MatchLimit        uint64
	Callback          CallbackInfo
}

// OrderSummary is the result shape of new-order and cancel calls.
// TotalBaseQty covers both matched and posted quantity; TotalQuoteQty
// includes the posted portion priced at the limit, which callers subtract
// back out to recover the matched quote quantity.
type OrderSummary struct {
	PostedOrderID      *OrderID
	TotalBaseQty       uint64
	TotalBaseQtyPosted uint64
	TotalQuoteQty      uint64
}

// EventKind discriminates queue entries.
type EventKind uint8

const (
	EventFill EventKind = iota
	EventOut
)

// Event is one entry of the book's event queue. Fill events carry both
// parties' callbacks; Out events report an order leaving the book.
type Event struct {
	Kind EventKind

	// Fill fields.
	TakerSide     Side
	QuoteSize     uint64
	BaseSize      uint64
	MakerOrderID  OrderID
	MakerCallback CallbackInfo
	TakerCallback CallbackInfo

	// Out fields (BaseSize is shared: remaining size removed). Callback
	// identifies the owner of the order leaving the book.
	Side     Side
	OrderID  OrderID
	Callback CallbackInfo
	Delete   bool
}

// Book is the matching primitive contract consumed by the engine. All calls
// are synchronous; Clone supports the engine's all-or-nothing instruction
// commit.
type Book interface {
	NewOrder(params NewOrderParams) (OrderSummary, error)
	CancelOrder(id OrderID) (OrderSummary, error)

	BestBid() (uint64, bool)
	BestAsk() (uint64, bool)

	// ExtremeOrder returns the best resting order id on a side, if any.
	ExtremeOrder(side Side) (OrderID, bool)

	Events() []Event
	PopEvents(n int)

	Clone() Book
}
