package core

import (
	"context"

	"DexLedger/internal/event"
	"DexLedger/internal/ledger"
	"DexLedger/internal/risk"
)

// handleDepositFunds credits collateral. Deposits never require a risk check
// and do not advance the group sequence.
func (c *DeterministicCore) handleDepositFunds(e *event.DepositFunds) (*ledger.Batch, error) {
	txn, err := c.beginTxn(e.Group)
	if err != nil {
		return nil, err
	}
	trader, err := txn.trader(e.Trader)
	if err != nil {
		return nil, err
	}

	qty, err := e.Quantity.Round(txn.group.Decimals)
	if err != nil {
		return nil, err
	}
	if qty.Sign() <= 0 {
		return nil, ErrInvalidQuantity
	}

	if trader.TotalDeposited, err = trader.TotalDeposited.CheckedAdd(qty); err != nil {
		return nil, err
	}
	if trader.CashBalance, err = trader.CashBalance.CheckedAdd(qty); err != nil {
		return nil, err
	}

	amount, err := ledger.CashAmount(qty, txn.group.Decimals)
	if err != nil {
		return nil, err
	}
	batch := c.journalGen.Begin(e.IdempotencyKey(), e.Timestamp.Unix())
	batch.Deposit(e.Trader, amount)

	txn.commit()
	return batch.Build(), nil
}

// handleWithdrawFunds debits collateral. Funding is settled first so the
// health check sees the true cash balance, and the account must remain
// healthy with the cash gone.
func (c *DeterministicCore) handleWithdrawFunds(ctx context.Context, e *event.WithdrawFunds) (*ledger.Batch, error) {
	txn, err := c.beginTxn(e.Group)
	if err != nil {
		return nil, err
	}
	trader, err := txn.trader(e.Trader)
	if err != nil {
		return nil, err
	}

	qty, err := e.Quantity.Round(txn.group.Decimals)
	if err != nil {
		return nil, err
	}
	if qty.Sign() <= 0 {
		return nil, ErrInvalidQuantity
	}

	if err := txn.settleAllFunding(trader); err != nil {
		return nil, err
	}
	if trader.CashBalance, err = trader.CashBalance.CheckedSub(qty); err != nil {
		return nil, err
	}

	info, err := c.riskEngine.CheckHealth(ctx, risk.HealthRequest{Group: txn.group, Trader: trader})
	if err != nil {
		return nil, err
	}
	if info.Health != risk.Healthy || info.Action != risk.Approved {
		return nil, ErrRiskCheckRejected
	}

	if trader.TotalWithdrawn, err = trader.TotalWithdrawn.CheckedAdd(qty); err != nil {
		return nil, err
	}

	amount, err := ledger.CashAmount(qty, txn.group.Decimals)
	if err != nil {
		return nil, err
	}
	batch := c.journalGen.Begin(e.IdempotencyKey(), e.Timestamp.Unix())
	if err := txn.flushFunding(batch); err != nil {
		return nil, err
	}
	batch.Withdrawal(e.Trader, amount)
	txn.group.SequenceNumber++

	txn.commit()
	return batch.Build(), nil
}

// handleSweepFees drains the sweepable portion of the group's collected fees
// to the fee collector. Sub-cash residue stays behind until it accumulates.
func (c *DeterministicCore) handleSweepFees(e *event.SweepFees) (*ledger.Batch, error) {
	txn, err := c.beginTxn(e.Group)
	if err != nil {
		return nil, err
	}

	feesToSweep, err := txn.group.CollectedFees.RoundUnchecked(txn.group.Decimals)
	if err != nil {
		return nil, err
	}
	if txn.group.CollectedFees, err = txn.group.CollectedFees.CheckedSub(feesToSweep); err != nil {
		return nil, err
	}

	amount, err := ledger.CashAmount(feesToSweep, txn.group.Decimals)
	if err != nil {
		return nil, err
	}
	batch := c.journalGen.Begin(e.IdempotencyKey(), e.Timestamp.Unix())
	batch.FeeSweep(txn.group.Key, e.FeeCollector, amount)
	txn.group.SequenceNumber++

	txn.commit()
	return batch.Build(), nil
}
