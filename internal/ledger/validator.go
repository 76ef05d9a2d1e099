package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// InvariantValidator checks ledger invariants
type InvariantValidator struct {
	tracker *BalanceTracker
}

func NewInvariantValidator(tracker *BalanceTracker) *InvariantValidator {
	return &InvariantValidator{
		tracker: tracker,
	}
}

// ValidateBatchBalance verifies batch is balanced
func (v *InvariantValidator) ValidateBatchBalance(batch *Batch) error {
	return batch.Validate()
}

// ValidateGlobalBalance verifies system is zero-sum
func (v *InvariantValidator) ValidateGlobalBalance() error {
	totals := v.tracker.ComputeGlobalBalance()

	for assetID, total := range totals {
		if total != 0 {
			assetName, _ := GetAssetName(assetID)
			return fmt.Errorf("global balance for %s is non-zero: %d", assetName, total)
		}
	}

	return nil
}

// ValidateTraderCash cross-checks the ledger's view of a trader's cash against
// the clearing state's balance mantissa
func (v *InvariantValidator) ValidateTraderCash(trader uuid.UUID, assetID AssetID, want int64) error {
	got := v.tracker.GetTraderCash(trader, assetID)
	if got != want {
		return fmt.Errorf("trader %s cash mismatch: ledger=%d state=%d", trader, got, want)
	}
	return nil
}

// ValidateFeePoolNonNegative checks the group's fee pool never goes negative
func (v *InvariantValidator) ValidateFeePoolNonNegative(group uuid.UUID, assetID AssetID) error {
	return v.tracker.ValidateNonNegative(NewExchangeAccountKey(group, SubTypeFeePool, assetID))
}
