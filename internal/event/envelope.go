package event

import (
	"time"
)

// EventType discriminator for instruction payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeInitializeProduct
	EventTypeInitializeCombo
	EventTypeRemoveProduct
	EventTypeInitializeTraderRiskGroup
	EventTypeNewOrder
	EventTypeCancelOrder
	EventTypeConsumeOrderbookEvents
	EventTypeClearExpiredOrderbook
	EventTypeDepositFunds
	EventTypeWithdrawFunds
	EventTypeUpdateProductFunding
	EventTypeUpdateTraderFunding
	EventTypeTransferFullPosition
	EventTypeSweepFees
)

// EventEnvelope wraps every instruction in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Instruction type discriminator
	EventType EventType

	// Market product group context (nullable for global events)
	MarketID *string

	// Versioned input timestamp (NOT wall-clock)
	Timestamp time.Time

	// Upstream sequence for ordering validation
	SourceSequence int64

	// Protobuf-encoded instruction-specific data
	Payload []byte

	// SHA-256 of state AFTER applying this instruction
	StateHash [32]byte

	// Previous envelope's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all instruction payloads must implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// MarketID returns the market product group context (nil for global events)
	MarketID() *string

	// SourceSequence returns upstream ordering key
	SourceSequence() int64
}

func (et EventType) String() string {
	switch et {
	case EventTypeInitializeProduct:
		return "InitializeProduct"
	case EventTypeInitializeCombo:
		return "InitializeCombo"
	case EventTypeRemoveProduct:
		return "RemoveProduct"
	case EventTypeInitializeTraderRiskGroup:
		return "InitializeTraderRiskGroup"
	case EventTypeNewOrder:
		return "NewOrder"
	case EventTypeCancelOrder:
		return "CancelOrder"
	case EventTypeConsumeOrderbookEvents:
		return "ConsumeOrderbookEvents"
	case EventTypeClearExpiredOrderbook:
		return "ClearExpiredOrderbook"
	case EventTypeDepositFunds:
		return "DepositFunds"
	case EventTypeWithdrawFunds:
		return "WithdrawFunds"
	case EventTypeUpdateProductFunding:
		return "UpdateProductFunding"
	case EventTypeUpdateTraderFunding:
		return "UpdateTraderFunding"
	case EventTypeTransferFullPosition:
		return "TransferFullPosition"
	case EventTypeSweepFees:
		return "SweepFees"
	default:
		return "Unknown"
	}
}
