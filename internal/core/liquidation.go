package core

import (
	"context"

	"DexLedger/internal/event"
	"DexLedger/internal/fpmath"
	"DexLedger/internal/ledger"
	"DexLedger/internal/risk"
	"DexLedger/internal/state"
)

// handleTransferFullPosition liquidates an account: the liquidator absorbs
// every settled position and pays the liquidation price for the portfolio,
// keeping whatever the positions are actually worth as the incentive. When
// the portfolio value is negative the shortfall beyond the account's cash is
// socialized across the open interest of each losing product.
func (c *DeterministicCore) handleTransferFullPosition(ctx context.Context, e *event.TransferFullPosition) (*ledger.Batch, error) {
	txn, err := c.beginTxn(e.Group)
	if err != nil {
		return nil, err
	}
	liquidatee, err := txn.trader(e.Liquidatee)
	if err != nil {
		return nil, err
	}
	liquidator, err := txn.trader(e.Liquidator)
	if err != nil {
		return nil, err
	}

	if liquidatee.OpenOrders.TotalOpenOrders != 0 {
		return nil, ErrTraderHasOpenOrders
	}
	if err := txn.settleAllFunding(liquidatee); err != nil {
		return nil, err
	}
	if err := txn.settleAllFunding(liquidator); err != nil {
		return nil, err
	}
	cashBefore := liquidatee.CashBalance

	liqInfo, err := c.riskEngine.CheckLiquidation(ctx, risk.HealthRequest{Group: txn.group, Trader: liquidatee})
	if err != nil {
		return nil, err
	}
	if liqInfo.Health != risk.Liquidatable || liqInfo.Action != risk.Approved {
		return nil, ErrAccountNotLiquidatable
	}

	expectedTotal := liqInfo.TotalSocialLoss
	accumulated := fpmath.Zero

	for i := range liquidatee.Positions {
		pos := &liquidatee.Positions[i]
		if !pos.Initialized {
			continue
		}
		if !pos.PendingPosition.IsZero() {
			return nil, ErrTraderStillActive
		}
		if pos.Position.IsZero() {
			continue
		}

		outright, err := txn.group.Products[pos.ProductIndex].AsOutright()
		if err != nil {
			return nil, err
		}
		if err := liquidator.ActivateIfUninitialized(
			pos.ProductIndex,
			pos.ProductKey,
			outright.CumFundingPerShare,
			outright.CumSocialLossPerShare,
			txn.group.ActiveCombos(),
		); err != nil {
			return nil, err
		}
		liqPos := &liquidator.Positions[liquidator.ActiveProducts[pos.ProductIndex]]

		// The transfer is a trade between liquidatee and liquidator at the
		// liquidatee's full size, with the liquidator on the opposite side.
		if pos.Position.Sign() > 0 {
			err = outright.UpdateOpenInterestChange(
				pos.Position.Abs(),
				liqPos.Position.Min(fpmath.Zero).Abs(),
				pos.Position.Max(fpmath.Zero),
			)
		} else {
			err = outright.UpdateOpenInterestChange(
				pos.Position.Abs(),
				pos.Position.Min(fpmath.Zero).Abs(),
				liqPos.Position.Max(fpmath.Zero),
			)
		}
		if err != nil {
			return nil, err
		}
		if liqPos.Position, err = liqPos.Position.CheckedAdd(pos.Position); err != nil {
			return nil, err
		}
		if liqPos.Position.IsZero() && liqPos.PendingPosition.IsZero() {
			if err := liquidator.ClearPosition(pos.ProductKey); err != nil {
				return nil, err
			}
		}
		pos.Position = fpmath.Zero

		sl := liqInfo.SocialLosses[i]
		if sl.ProductIndex != state.MaxProducts {
			if sl.ProductIndex != pos.ProductIndex {
				return nil, ErrProductIndexMismatch
			}
			if outright.OpenLongInterest.IsZero() {
				// No open interest left to absorb the loss; roll it back
				// into the liquidatee's residual instead.
				if expectedTotal, err = expectedTotal.CheckedSub(sl.Amount); err != nil {
					return nil, err
				}
			} else {
				if accumulated, err = accumulated.CheckedAdd(sl.Amount); err != nil {
					return nil, err
				}
				if err := outright.ApplySocialLoss(sl.Amount, txn.group.Decimals); err != nil {
					return nil, err
				}
			}
		}
	}

	for i := range liquidatee.ActiveProducts {
		liquidatee.ActiveProducts[i] = state.SlotUnset
	}
	liquidatee.Positions = [state.MaxTraderPositions]state.TraderPosition{}

	if !accumulated.Eq(expectedTotal) {
		return nil, ErrInvalidSocialLossCalculation
	}
	if !liquidatee.PendingCashBalance.IsZero() {
		return nil, ErrTraderStillActive
	}

	// P is what the liquidator pays for the portfolio, S the socialized
	// shortfall. The liquidatee keeps A = max(P - S, 0); the liquidator's
	// cash moves by cashBefore - P.
	liqPrice := liqInfo.LiquidationPrice
	residual := fpmath.Zero
	if liqPrice.Sign() > 0 {
		if residual, err = liqPrice.CheckedSub(expectedTotal); err != nil {
			return nil, err
		}
	}
	transfer, err := cashBefore.CheckedSub(liqPrice)
	if err != nil {
		return nil, err
	}
	if liquidator.CashBalance, err = liquidator.CashBalance.CheckedAdd(transfer); err != nil {
		return nil, err
	}
	liquidatee.CashBalance = residual

	socialized, err := liqPrice.CheckedSub(residual)
	if err != nil {
		return nil, err
	}
	transferAmount, err := ledger.CashAmount(transfer, txn.group.Decimals)
	if err != nil {
		return nil, err
	}
	socializedAmount, err := ledger.CashAmount(socialized, txn.group.Decimals)
	if err != nil {
		return nil, err
	}
	batch := c.journalGen.Begin(e.IdempotencyKey(), e.Timestamp.Unix())
	if err := txn.flushFunding(batch); err != nil {
		return nil, err
	}
	batch.LiquidationTransfer(e.Liquidatee, e.Liquidator, transferAmount)
	batch.SocialLoss(txn.group.Key, e.Liquidatee, socializedAmount)

	info, err := c.riskEngine.CheckHealth(ctx, risk.HealthRequest{
		Group:  txn.group,
		Trader: liquidator,
		Order:  &risk.OrderInfo{Operation: risk.OpPositionTransfer},
	})
	if err != nil {
		return nil, err
	}
	if info.Action != risk.Approved {
		return nil, ErrRiskCheckRejected
	}
	txn.group.SequenceNumber++

	txn.commit()

	if c.metrics != nil {
		market := e.Group.String()
		c.metrics.LiquidationTransfers.WithLabelValues(market).Inc()
		if socialized.Sign() > 0 {
			c.metrics.SocialLossEvents.WithLabelValues(market).Inc()
		}
	}
	return batch.Build(), nil
}
