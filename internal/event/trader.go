package event

import (
	"time"

	"github.com/google/uuid"
)

// InitializeTraderRiskGroup registers a trader account against a market
// product group with zeroed balances and an empty open-orders ledger.
type InitializeTraderRiskGroup struct {
	InstructionID uuid.UUID
	Group         uuid.UUID
	Trader        uuid.UUID
	Sequence      int64
	Timestamp     time.Time
}

func (i *InitializeTraderRiskGroup) IdempotencyKey() string {
	return i.InstructionID.String()
}

func (i *InitializeTraderRiskGroup) EventType() EventType {
	return EventTypeInitializeTraderRiskGroup
}

func (i *InitializeTraderRiskGroup) MarketID() *string {
	m := i.Group.String()
	return &m
}

func (i *InitializeTraderRiskGroup) SourceSequence() int64 {
	return i.Sequence
}

// TransferFullPosition liquidates an unhealthy account: the liquidator
// absorbs every position and the liquidatee is left with residual cash.
type TransferFullPosition struct {
	InstructionID uuid.UUID
	Group         uuid.UUID
	Liquidator    uuid.UUID
	Liquidatee    uuid.UUID
	Sequence      int64
	Timestamp     time.Time
}

func (t *TransferFullPosition) IdempotencyKey() string {
	return t.InstructionID.String()
}

func (t *TransferFullPosition) EventType() EventType {
	return EventTypeTransferFullPosition
}

func (t *TransferFullPosition) MarketID() *string {
	m := t.Group.String()
	return &m
}

func (t *TransferFullPosition) SourceSequence() int64 {
	return t.Sequence
}
