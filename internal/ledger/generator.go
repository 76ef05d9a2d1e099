package ledger

import (
	"fmt"

	"github.com/google/uuid"

	"DexLedger/internal/fpmath"
)

// CashAmount converts a Fractional cash quantity to its fixed-point mantissa
// at the given cash decimals. The conversion truncates toward zero.
func CashAmount(f fpmath.Fractional, decimals uint64) (int64, error) {
	rounded, err := f.RoundUnchecked(decimals)
	if err != nil {
		return 0, fmt.Errorf("cash amount %v at %d decimals: %w", f, decimals, err)
	}
	return rounded.M, nil
}

// JournalGenerator creates balanced journal batches from instruction outcomes
type JournalGenerator struct {
	sequence int64
	tracker  *BalanceTracker
}

func NewJournalGenerator(startSequence int64, tracker *BalanceTracker) *JournalGenerator {
	return &JournalGenerator{
		sequence: startSequence,
		tracker:  tracker,
	}
}

// SetSequence overwrites the journal sequence (snapshot restore only)
func (jg *JournalGenerator) SetSequence(seq int64) {
	jg.sequence = seq
}

// Begin opens a batch builder for one instruction's cash effects. Every
// instruction produces exactly one batch; the builder skips zero-amount legs
// and flips debit/credit on negative amounts so callers can pass signed
// deltas straight from the clearing math.
func (jg *JournalGenerator) Begin(eventRef string, timestamp int64) *BatchBuilder {
	return &BatchBuilder{
		gen: jg,
		batch: &Batch{
			BatchID:   uuid.New(),
			EventRef:  eventRef,
			Sequence:  jg.sequence,
			Timestamp: timestamp,
			Journals:  make([]Journal, 0, 4),
		},
	}
}

// BatchBuilder accumulates journals for a single instruction
type BatchBuilder struct {
	gen   *JournalGenerator
	batch *Batch
}

func (b *BatchBuilder) transfer(debit, credit AccountKey, amount int64, jt JournalType) {
	if amount == 0 {
		return
	}
	if amount < 0 {
		debit, credit = credit, debit
		amount = -amount
	}
	b.batch.Journals = append(b.batch.Journals, Journal{
		JournalID:     uuid.New(),
		BatchID:       b.batch.BatchID,
		EventRef:      b.batch.EventRef,
		Sequence:      b.batch.Sequence,
		DebitAccount:  debit,
		CreditAccount: credit,
		AssetID:       debit.AssetID,
		Amount:        amount,
		JournalType:   jt,
		Timestamp:     b.batch.Timestamp,
	})
}

// Deposit credits a trader's cash from the external deposit boundary
func (b *BatchBuilder) Deposit(trader uuid.UUID, amount int64) {
	b.transfer(
		NewTraderAccountKey(trader, SubTypeCash, CashAsset),
		NewExternalAccountKey(SubTypeExternalDeposits, CashAsset),
		amount,
		JournalTypeDeposit,
	)
}

// Withdrawal debits a trader's cash to the external withdrawal boundary
func (b *BatchBuilder) Withdrawal(trader uuid.UUID, amount int64) {
	b.transfer(
		NewExternalAccountKey(SubTypeExternalWithdrawals, CashAsset),
		NewTraderAccountKey(trader, SubTypeCash, CashAsset),
		amount,
		JournalTypeWithdrawal,
	)
}

// TradeSettlement moves matched quote cash from buyer to seller
func (b *BatchBuilder) TradeSettlement(buyer, seller uuid.UUID, quote int64) {
	b.transfer(
		NewTraderAccountKey(seller, SubTypeCash, CashAsset),
		NewTraderAccountKey(buyer, SubTypeCash, CashAsset),
		quote,
		JournalTypeTradeSettlement,
	)
}

// Fee moves a fee from a trader into the group's fee pool. Negative amounts
// are maker rebates and flow the other way.
func (b *BatchBuilder) Fee(group, trader uuid.UUID, amount int64) {
	b.transfer(
		NewExchangeAccountKey(group, SubTypeFeePool, CashAsset),
		NewTraderAccountKey(trader, SubTypeCash, CashAsset),
		amount,
		JournalTypeFee,
	)
}

// Funding settles accrued funding into a trader's cash. Positive amounts
// credit the trader from the group's funding pool.
func (b *BatchBuilder) Funding(group, trader uuid.UUID, amount int64) {
	b.transfer(
		NewTraderAccountKey(trader, SubTypeCash, CashAsset),
		NewExchangeAccountKey(group, SubTypeFundingPool, CashAsset),
		amount,
		JournalTypeFunding,
	)
}

// SocialLoss records a socialized haircut against the group's loss pool
func (b *BatchBuilder) SocialLoss(group, trader uuid.UUID, amount int64) {
	b.transfer(
		NewExchangeAccountKey(group, SubTypeSocializedLoss, CashAsset),
		NewTraderAccountKey(trader, SubTypeCash, CashAsset),
		amount,
		JournalTypeSocialLoss,
	)
}

// LiquidationTransfer moves residual cash from the liquidatee to the liquidator
func (b *BatchBuilder) LiquidationTransfer(liquidatee, liquidator uuid.UUID, amount int64) {
	b.transfer(
		NewTraderAccountKey(liquidator, SubTypeCash, CashAsset),
		NewTraderAccountKey(liquidatee, SubTypeCash, CashAsset),
		amount,
		JournalTypeLiquidationTransfer,
	)
}

// FeeSweep drains the group's fee pool to the fee collector
func (b *BatchBuilder) FeeSweep(group, collector uuid.UUID, amount int64) {
	b.transfer(
		NewTraderAccountKey(collector, SubTypeCash, CashAsset),
		NewExchangeAccountKey(group, SubTypeFeePool, CashAsset),
		amount,
		JournalTypeFeeSweep,
	)
}

// Build finalizes the batch and advances the journal sequence
func (b *BatchBuilder) Build() *Batch {
	b.gen.sequence++
	return b.batch
}
