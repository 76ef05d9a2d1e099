package event

import (
	"time"

	"github.com/google/uuid"

	"DexLedger/internal/fpmath"
)

// DepositFunds credits cash collateral to a trader account from the group
// vault. Quantity is in cash units and must be positive.
type DepositFunds struct {
	InstructionID uuid.UUID
	Group         uuid.UUID
	Trader        uuid.UUID
	Quantity      fpmath.Fractional
	Sequence      int64
	Timestamp     time.Time
}

func (d *DepositFunds) IdempotencyKey() string {
	return d.InstructionID.String()
}

func (d *DepositFunds) EventType() EventType {
	return EventTypeDepositFunds
}

func (d *DepositFunds) MarketID() *string {
	m := d.Group.String()
	return &m
}

func (d *DepositFunds) SourceSequence() int64 {
	return d.Sequence
}

// WithdrawFunds debits cash collateral from a trader account. The account
// must pass a post-withdrawal health check.
type WithdrawFunds struct {
	InstructionID uuid.UUID
	Group         uuid.UUID
	Trader        uuid.UUID
	Quantity      fpmath.Fractional
	Sequence      int64
	Timestamp     time.Time
}

func (w *WithdrawFunds) IdempotencyKey() string {
	return w.InstructionID.String()
}

func (w *WithdrawFunds) EventType() EventType {
	return EventTypeWithdrawFunds
}

func (w *WithdrawFunds) MarketID() *string {
	m := w.Group.String()
	return &m
}

func (w *WithdrawFunds) SourceSequence() int64 {
	return w.Sequence
}

// SweepFees moves the group's collected fees to the fee collector account.
type SweepFees struct {
	InstructionID uuid.UUID
	Group         uuid.UUID
	FeeCollector  uuid.UUID
	Sequence      int64
	Timestamp     time.Time
}

func (s *SweepFees) IdempotencyKey() string {
	return s.InstructionID.String()
}

func (s *SweepFees) EventType() EventType {
	return EventTypeSweepFees
}

func (s *SweepFees) MarketID() *string {
	m := s.Group.String()
	return &m
}

func (s *SweepFees) SourceSequence() int64 {
	return s.Sequence
}
