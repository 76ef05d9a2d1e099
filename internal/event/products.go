package event

import (
	"time"

	"github.com/google/uuid"

	"DexLedger/internal/fpmath"
)

// InitializeProduct lists a new outright product in the group's registry.
type InitializeProduct struct {
	InstructionID uuid.UUID
	Group         uuid.UUID
	Product       uuid.UUID
	Name          string
	TickSize      fpmath.Fractional
	// PriceOffset allows negative prices in ticks down to -PriceOffset
	PriceOffset  fpmath.Fractional
	BaseDecimals uint64
	Slot         uint64
	Sequence     int64
	Timestamp    time.Time
}

func (i *InitializeProduct) IdempotencyKey() string {
	return i.InstructionID.String()
}

func (i *InitializeProduct) EventType() EventType {
	return EventTypeInitializeProduct
}

func (i *InitializeProduct) MarketID() *string {
	m := i.Group.String()
	return &m
}

func (i *InitializeProduct) SourceSequence() int64 {
	return i.Sequence
}

// ComboLeg pairs an existing outright product with its signed ratio in the
// spread.
type ComboLeg struct {
	Product uuid.UUID
	Ratio   int64
}

// InitializeCombo lists a spread product over existing outrights.
type InitializeCombo struct {
	InstructionID uuid.UUID
	Group         uuid.UUID
	Product       uuid.UUID
	Name          string
	TickSize      fpmath.Fractional
	PriceOffset   fpmath.Fractional
	BaseDecimals  uint64
	Legs          []ComboLeg
	Slot          uint64
	Sequence      int64
	Timestamp     time.Time
}

func (i *InitializeCombo) IdempotencyKey() string {
	return i.InstructionID.String()
}

func (i *InitializeCombo) EventType() EventType {
	return EventTypeInitializeCombo
}

func (i *InitializeCombo) MarketID() *string {
	m := i.Group.String()
	return &m
}

func (i *InitializeCombo) SourceSequence() int64 {
	return i.Sequence
}

// RemoveProduct delists an expired, fully settled product.
type RemoveProduct struct {
	InstructionID uuid.UUID
	Group         uuid.UUID
	Product       uuid.UUID
	Sequence      int64
	Timestamp     time.Time
}

func (r *RemoveProduct) IdempotencyKey() string {
	return r.InstructionID.String()
}

func (r *RemoveProduct) EventType() EventType {
	return EventTypeRemoveProduct
}

func (r *RemoveProduct) MarketID() *string {
	m := r.Group.String()
	return &m
}

func (r *RemoveProduct) SourceSequence() int64 {
	return r.Sequence
}
