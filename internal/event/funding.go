package event

import (
	"time"

	"github.com/google/uuid"

	"DexLedger/internal/fpmath"
)

// UpdateProductFunding applies a funding payment to an outright product's
// per-share accumulator. Expired marks the product expired in the same
// instruction, freezing further funding.
type UpdateProductFunding struct {
	InstructionID uuid.UUID
	Group         uuid.UUID
	Product       uuid.UUID
	Amount        fpmath.Fractional
	Expired       bool
	Sequence      int64
	Timestamp     time.Time
}

func (u *UpdateProductFunding) IdempotencyKey() string {
	return u.InstructionID.String()
}

func (u *UpdateProductFunding) EventType() EventType {
	return EventTypeUpdateProductFunding
}

func (u *UpdateProductFunding) MarketID() *string {
	m := u.Group.String()
	return &m
}

func (u *UpdateProductFunding) SourceSequence() int64 {
	return u.Sequence
}

// UpdateTraderFunding settles one trader account against every product's
// funding and social-loss accumulators.
type UpdateTraderFunding struct {
	InstructionID uuid.UUID
	Group         uuid.UUID
	Trader        uuid.UUID
	Sequence      int64
	Timestamp     time.Time
}

func (u *UpdateTraderFunding) IdempotencyKey() string {
	return u.InstructionID.String()
}

func (u *UpdateTraderFunding) EventType() EventType {
	return EventTypeUpdateTraderFunding
}

func (u *UpdateTraderFunding) MarketID() *string {
	m := u.Group.String()
	return &m
}

func (u *UpdateTraderFunding) SourceSequence() int64 {
	return u.Sequence
}
