package ledger_test

import (
	"testing"

	"github.com/google/uuid"

	"DexLedger/internal/fpmath"
	"DexLedger/internal/ledger"
)

// ============================================================================
// Test: AccountKey
// ============================================================================

func TestAccountKey_TraderPath(t *testing.T) {
	trader := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")
	key := ledger.NewTraderAccountKey(trader, ledger.SubTypeCash, ledger.CashAsset)

	path := key.AccountPath()
	expected := "trader:550e8400-e29b-41d4-a716-446655440000:cash:USDC"
	if path != expected {
		t.Errorf("got %q, want %q", path, expected)
	}
}

func TestAccountKey_ExchangePath(t *testing.T) {
	group := uuid.MustParse("11111111-2222-3333-4444-555555555555")
	key := ledger.NewExchangeAccountKey(group, ledger.SubTypeFeePool, ledger.CashAsset)

	path := key.AccountPath()
	expected := "exchange:11111111-2222-3333-4444-555555555555:fee_pool:USDC"
	if path != expected {
		t.Errorf("got %q, want %q", path, expected)
	}
}

func TestAccountKey_ExternalPath(t *testing.T) {
	key := ledger.NewExternalAccountKey(ledger.SubTypeExternalDeposits, ledger.CashAsset)

	path := key.AccountPath()
	if path != "external:deposits:USDC" {
		t.Errorf("got %q, want %q", path, "external:deposits:USDC")
	}
}

func TestGetAssetID_Unknown(t *testing.T) {
	_, ok := ledger.GetAssetID("DOGE")
	if ok {
		t.Error("DOGE should not be a known asset")
	}
}

// ============================================================================
// Test: CashAmount
// ============================================================================

func TestCashAmount(t *testing.T) {
	amt, err := ledger.CashAmount(fpmath.Fractional{M: 12345, Exp: 2}, 6)
	if err != nil {
		t.Fatalf("cash amount: %v", err)
	}
	// 123.45 at six decimals
	if amt != 123_450_000 {
		t.Errorf("got %d, want 123450000", amt)
	}

	neg, err := ledger.CashAmount(fpmath.FromInt(-7), 2)
	if err != nil {
		t.Fatalf("cash amount: %v", err)
	}
	if neg != -700 {
		t.Errorf("got %d, want -700", neg)
	}
}

// ============================================================================
// Test: BalanceTracker + generator
// ============================================================================

func TestGeneratorDepositCreditsTrader(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	jg := ledger.NewJournalGenerator(0, bt)
	trader := uuid.New()

	b := jg.Begin("instr-1", 1000)
	b.Deposit(trader, 1_000_000)
	batch := b.Build()

	if err := bt.ApplyBatch(batch); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := bt.GetTraderCash(trader, ledger.CashAsset); got != 1_000_000 {
		t.Errorf("cash = %d, want 1_000_000", got)
	}
}

func TestGeneratorFillSettlesBothSides(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	jg := ledger.NewJournalGenerator(0, bt)
	group := uuid.New()
	buyer, seller := uuid.New(), uuid.New()

	b := jg.Begin("instr-2", 1001)
	b.Deposit(buyer, 500)
	b.Deposit(seller, 500)
	b.TradeSettlement(buyer, seller, 200)
	b.Fee(group, seller, -2) // maker rebate
	b.Fee(group, buyer, 8)
	batch := b.Build()

	if err := bt.ApplyBatch(batch); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := bt.GetTraderCash(buyer, ledger.CashAsset); got != 292 {
		t.Errorf("buyer cash = %d, want 292", got)
	}
	if got := bt.GetTraderCash(seller, ledger.CashAsset); got != 702 {
		t.Errorf("seller cash = %d, want 702", got)
	}
	if got := bt.GetCollectedFees(group, ledger.CashAsset); got != 6 {
		t.Errorf("fee pool = %d, want 6", got)
	}
}

func TestGeneratorSkipsZeroLegs(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	jg := ledger.NewJournalGenerator(0, bt)

	b := jg.Begin("instr-3", 1002)
	b.Funding(uuid.New(), uuid.New(), 0)
	batch := b.Build()

	if len(batch.Journals) != 0 {
		t.Errorf("zero-amount legs should be dropped, got %d journals", len(batch.Journals))
	}
}

func TestBalanceTracker_GlobalBalanceZeroSum(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	jg := ledger.NewJournalGenerator(0, bt)
	group := uuid.New()
	trader := uuid.New()

	b := jg.Begin("instr-4", 1003)
	b.Deposit(trader, 1_000_000)
	b.Fee(group, trader, 1_500)
	b.Funding(group, trader, -300)
	b.Withdrawal(trader, 10_000)
	if err := bt.ApplyBatch(b.Build()); err != nil {
		t.Fatalf("apply: %v", err)
	}

	totals := bt.ComputeGlobalBalance()
	for aid, total := range totals {
		if total != 0 {
			t.Errorf("asset %d has non-zero global balance: %d", aid, total)
		}
	}
}

// ============================================================================
// Test: Batch Validation
// ============================================================================

func TestBatchValidate_EmptyBatch_Fails(t *testing.T) {
	batch := &ledger.Batch{
		BatchID:  uuid.New(),
		Journals: []ledger.Journal{},
	}

	if err := batch.Validate(); err == nil {
		t.Error("empty batch should fail validation")
	}
}

func TestBatchValidate_NonPositiveAmount_Fails(t *testing.T) {
	for _, amount := range []int64{0, -100} {
		batchID := uuid.New()
		batch := &ledger.Batch{
			BatchID: batchID,
			Journals: []ledger.Journal{
				{
					JournalID:     uuid.New(),
					BatchID:       batchID,
					DebitAccount:  ledger.NewTraderAccountKey(uuid.New(), ledger.SubTypeCash, ledger.CashAsset),
					CreditAccount: ledger.NewExternalAccountKey(ledger.SubTypeExternalDeposits, ledger.CashAsset),
					AssetID:       ledger.CashAsset,
					Amount:        amount,
				},
			},
		}
		if err := batch.Validate(); err == nil {
			t.Errorf("amount %d should fail validation", amount)
		}
	}
}

func TestBatchValidate_SelfTransfer_Fails(t *testing.T) {
	batchID := uuid.New()
	sameAccount := ledger.NewTraderAccountKey(uuid.New(), ledger.SubTypeCash, ledger.CashAsset)

	batch := &ledger.Batch{
		BatchID: batchID,
		Journals: []ledger.Journal{
			{
				JournalID:     uuid.New(),
				BatchID:       batchID,
				DebitAccount:  sameAccount,
				CreditAccount: sameAccount,
				AssetID:       ledger.CashAsset,
				Amount:        100,
			},
		},
	}

	if err := batch.Validate(); err == nil {
		t.Error("self-transfer should fail validation")
	}
}

func TestBatchValidate_MismatchedBatchID_Fails(t *testing.T) {
	batchID := uuid.New()
	batch := &ledger.Batch{
		BatchID: batchID,
		Journals: []ledger.Journal{
			{
				JournalID:     uuid.New(),
				BatchID:       uuid.New(), // Different batch ID
				DebitAccount:  ledger.NewTraderAccountKey(uuid.New(), ledger.SubTypeCash, ledger.CashAsset),
				CreditAccount: ledger.NewExternalAccountKey(ledger.SubTypeExternalDeposits, ledger.CashAsset),
				AssetID:       ledger.CashAsset,
				Amount:        100,
			},
		},
	}

	if err := batch.Validate(); err == nil {
		t.Error("mismatched batch ID should fail validation")
	}
}

// ============================================================================
// Test: InvariantValidator
// ============================================================================

func TestInvariantValidator_GlobalBalanceZero(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	v := ledger.NewInvariantValidator(bt)

	// Empty ledger — should pass
	if err := v.ValidateGlobalBalance(); err != nil {
		t.Errorf("empty ledger should have zero global balance: %v", err)
	}

	jg := ledger.NewJournalGenerator(0, bt)
	trader := uuid.New()
	b := jg.Begin("instr-5", 1004)
	b.Deposit(trader, 1_000_000)
	if err := bt.ApplyBatch(b.Build()); err != nil {
		t.Fatalf("apply: %v", err)
	}

	// Still zero-sum
	if err := v.ValidateGlobalBalance(); err != nil {
		t.Errorf("balanced ledger should have zero global balance: %v", err)
	}
}

func TestInvariantValidator_TraderCashCrossCheck(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	v := ledger.NewInvariantValidator(bt)
	jg := ledger.NewJournalGenerator(0, bt)
	trader := uuid.New()

	b := jg.Begin("instr-6", 1005)
	b.Deposit(trader, 4_200)
	if err := bt.ApplyBatch(b.Build()); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if err := v.ValidateTraderCash(trader, ledger.CashAsset, 4_200); err != nil {
		t.Errorf("cross-check should pass: %v", err)
	}
	if err := v.ValidateTraderCash(trader, ledger.CashAsset, 4_201); err == nil {
		t.Error("cross-check should fail on mismatch")
	}
}
