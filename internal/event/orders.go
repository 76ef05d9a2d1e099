package event

import (
	"time"

	"github.com/google/uuid"

	"DexLedger/internal/book"
	"DexLedger/internal/fpmath"
)

// NewOrder places an order on one product's book for a trader account.
// Idempotency key: instruction_id (UUID assigned at ingestion).
type NewOrder struct {
	InstructionID uuid.UUID // Idempotency key
	Group         uuid.UUID
	Trader        uuid.UUID
	Product       uuid.UUID
	Side          book.Side
	// The max quantity of base lots to match and post
	MaxBaseQty fpmath.Fractional
	// The order's limit price in the product's price space
	LimitPrice        fpmath.Fractional
	OrderType         book.OrderType
	SelfTradeBehavior book.SelfTradeBehavior
	// The maximum number of resting orders to match against
	MatchLimit uint64
	// Book time used for moving-average price updates
	Slot      uint64
	Sequence  int64
	Timestamp time.Time // Versioned input timestamp (NOT wall-clock)
}

func (n *NewOrder) IdempotencyKey() string {
	return n.InstructionID.String()
}

func (n *NewOrder) EventType() EventType {
	return EventTypeNewOrder
}

func (n *NewOrder) MarketID() *string {
	m := n.Group.String()
	return &m
}

func (n *NewOrder) SourceSequence() int64 {
	return n.Sequence
}

// CancelOrder removes a resting order. The order id is carried redundantly
// so the handler never scans the trader's open-orders ledger. Initiator is
// the signer; a cancel by anyone other than the owner only succeeds against
// an account that fails its health check.
type CancelOrder struct {
	InstructionID uuid.UUID
	Group         uuid.UUID
	Trader        uuid.UUID
	Product       uuid.UUID
	Initiator     uuid.UUID
	OrderID       book.OrderID
	Slot          uint64
	Sequence      int64
	Timestamp     time.Time
}

func (c *CancelOrder) IdempotencyKey() string {
	return c.InstructionID.String()
}

func (c *CancelOrder) EventType() EventType {
	return EventTypeCancelOrder
}

func (c *CancelOrder) MarketID() *string {
	m := c.Group.String()
	return &m
}

func (c *CancelOrder) SourceSequence() int64 {
	return c.Sequence
}

// ConsumeOrderbookEvents drains up to MaxIterations entries from one
// product's event queue, settling fills and outs into trader accounts.
type ConsumeOrderbookEvents struct {
	InstructionID uuid.UUID
	Group         uuid.UUID
	Product       uuid.UUID
	// The maximum number of queue events to consume
	MaxIterations uint64
	// Account credited with the crank reward
	RewardTarget uuid.UUID
	Slot         uint64
	Sequence     int64
	Timestamp    time.Time
}

func (c *ConsumeOrderbookEvents) IdempotencyKey() string {
	return c.InstructionID.String()
}

func (c *ConsumeOrderbookEvents) EventType() EventType {
	return EventTypeConsumeOrderbookEvents
}

func (c *ConsumeOrderbookEvents) MarketID() *string {
	m := c.Group.String()
	return &m
}

func (c *ConsumeOrderbookEvents) SourceSequence() int64 {
	return c.Sequence
}

// ClearExpiredOrderbook force-cancels resting orders on an expired product,
// a bounded number per instruction.
type ClearExpiredOrderbook struct {
	InstructionID     uuid.UUID
	Group             uuid.UUID
	Product           uuid.UUID
	NumOrdersToCancel int
	Slot              uint64
	Sequence          int64
	Timestamp         time.Time
}

func (c *ClearExpiredOrderbook) IdempotencyKey() string {
	return c.InstructionID.String()
}

func (c *ClearExpiredOrderbook) EventType() EventType {
	return EventTypeClearExpiredOrderbook
}

func (c *ClearExpiredOrderbook) MarketID() *string {
	m := c.Group.String()
	return &m
}

func (c *ClearExpiredOrderbook) SourceSequence() int64 {
	return c.Sequence
}
