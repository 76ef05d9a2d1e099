package risk

import (
	"context"

	"DexLedger/internal/fpmath"
	"DexLedger/internal/state"
)

// MarginRiskEngine grades accounts on mark-price portfolio margin. The margin
// requirement is the absolute dollar value of every position plus the larger
// resting side of each product's open orders; health compares portfolio value
// (cash, pending cash, and marked positions) against fractions of that
// requirement.
type MarginRiskEngine struct {
	// HealthThreshold and LiquidationThreshold are multiples of the margin
	// requirement below which an account turns Unhealthy and Liquidatable.
	HealthThreshold      fpmath.Fractional
	LiquidationThreshold fpmath.Fractional

	// Alpha, Beta, Gamma shape the liquidation price and the socialized
	// fraction of an underwater account.
	Alpha fpmath.Fractional
	Beta  fpmath.Fractional
	Gamma fpmath.Fractional
}

// NewMarginRiskEngine returns an engine with the standard parameters.
func NewMarginRiskEngine() *MarginRiskEngine {
	return &MarginRiskEngine{
		HealthThreshold:      fpmath.Fractional{M: 5, Exp: 1},
		LiquidationThreshold: fpmath.Fractional{M: 2, Exp: 1},
		Alpha:                fpmath.Fractional{M: 9, Exp: 1},
		Beta:                 fpmath.Fractional{M: 2, Exp: 1},
		Gamma:                fpmath.Fractional{M: 1, Exp: 1},
	}
}

// accountHealth is the intermediate margin computation shared by both modes.
type accountHealth struct {
	marginReq         fpmath.Fractional
	portfolioValue    fpmath.Fractional
	totalAbsDollarPos fpmath.Fractional
	absDollarPos      [state.MaxProducts]fpmath.Fractional
}

func (e *MarginRiskEngine) CheckHealth(_ context.Context, req HealthRequest) (HealthInfo, error) {
	h, err := computeHealth(req.Trader, req.Group)
	if err != nil {
		return HealthInfo{}, err
	}
	healthThreshold, err := e.HealthThreshold.CheckedMul(h.marginReq)
	if err != nil {
		return HealthInfo{}, err
	}
	liqThreshold, err := e.LiquidationThreshold.CheckedMul(h.marginReq)
	if err != nil {
		return HealthInfo{}, err
	}
	switch {
	case h.portfolioValue.Cmp(healthThreshold) >= 0:
		return HealthInfo{Health: Healthy, Action: Approved}, nil
	case h.portfolioValue.Cmp(liqThreshold) >= 0:
		return HealthInfo{Health: Unhealthy, Action: NotApproved}, nil
	default:
		return HealthInfo{Health: Liquidatable, Action: NotApproved}, nil
	}
}

func (e *MarginRiskEngine) CheckLiquidation(_ context.Context, req HealthRequest) (LiquidationInfo, error) {
	h, err := computeHealth(req.Trader, req.Group)
	if err != nil {
		return LiquidationInfo{}, err
	}
	healthThreshold, err := e.HealthThreshold.CheckedMul(h.marginReq)
	if err != nil {
		return LiquidationInfo{}, err
	}
	liqThreshold, err := e.LiquidationThreshold.CheckedMul(h.marginReq)
	if err != nil {
		return LiquidationInfo{}, err
	}

	var liqPrice fpmath.Fractional
	if h.portfolioValue.Sign() >= 0 {
		discount, err := e.Alpha.CheckedSub(e.Beta)
		if err != nil {
			return LiquidationInfo{}, err
		}
		liqPrice = h.portfolioValue.Mul(discount)
	} else {
		discount, err := fpmath.FromInt(1).CheckedSub(e.Beta)
		if err != nil {
			return LiquidationInfo{}, err
		}
		liqPrice = h.portfolioValue.Mul(discount)
	}
	socialLoss := liqPrice
	if liqPrice.Sign() > 0 {
		socialLoss = liqPrice.Mul(e.Gamma)
	}

	if h.totalAbsDollarPos.IsZero() {
		return LiquidationInfo{}, ErrNoPositionsToLiquidate
	}

	info := LiquidationInfo{
		TotalSocialLoss:  socialLoss,
		LiquidationPrice: liqPrice,
	}
	for i := range info.SocialLosses {
		info.SocialLosses[i] = SocialLoss{ProductIndex: state.MaxProducts}
	}

	switch {
	case h.portfolioValue.Cmp(liqThreshold) <= 0:
		info.Health = Liquidatable
		info.Action = Approved
		for i := range req.Trader.Positions {
			pos := &req.Trader.Positions[i]
			if !pos.Initialized {
				continue
			}
			weighted, err := socialLoss.CheckedMul(h.absDollarPos[pos.ProductIndex])
			if err != nil {
				return LiquidationInfo{}, err
			}
			amount, err := weighted.CheckedDiv(h.totalAbsDollarPos)
			if err != nil {
				return LiquidationInfo{}, err
			}
			info.SocialLosses[i] = SocialLoss{ProductIndex: pos.ProductIndex, Amount: amount}
		}
	case h.portfolioValue.Cmp(healthThreshold) <= 0:
		info.Health = Unhealthy
		info.Action = NotApproved
	default:
		info.Health = Healthy
		info.Action = NotApproved
	}
	return info, nil
}

// markPrice prefers the previous slot's settled bid/ask midpoint and falls
// back to the live prices, then to zero when the book has never been quoted.
func markPrice(group *state.MarketProductGroup, idx int) fpmath.Fractional {
	prices := group.Products[idx].Metadata().Prices
	if mid, ok := midpoint(prices.PrevBid, prices.PrevAsk); ok {
		return mid
	}
	mid, _ := midpoint(prices.Bid, prices.Ask)
	return mid
}

func midpoint(bid, ask fpmath.Fractional) (fpmath.Fractional, bool) {
	hasAsk := ask.Cmp(state.NoAskPrice) < 0
	hasBid := bid.Cmp(state.NoBidPrice) > 0
	switch {
	case hasAsk && hasBid:
		sum, err := ask.CheckedAdd(bid)
		if err != nil || sum.Exp+1 > fpmath.ExpUpperLimit {
			return fpmath.Zero, true
		}
		return fpmath.Fractional{M: sum.M * 5, Exp: sum.Exp + 1}, true
	case hasAsk:
		return ask, true
	case hasBid:
		return bid, true
	default:
		return fpmath.Zero, false
	}
}

func computeHealth(trader *state.TraderRiskGroup, group *state.MarketProductGroup) (accountHealth, error) {
	var h accountHealth
	pv, err := trader.CashBalance.CheckedAdd(trader.PendingCashBalance)
	if err != nil {
		return h, err
	}
	h.portfolioValue = pv

	for i := range trader.Positions {
		pos := &trader.Positions[i]
		if !pos.Initialized {
			continue
		}
		idx := pos.ProductIndex
		price := markPrice(group, idx)
		size, err := pos.Position.CheckedAdd(pos.PendingPosition)
		if err != nil {
			return h, err
		}
		value, err := price.CheckedMul(size)
		if err != nil {
			return h, err
		}
		h.absDollarPos[idx] = value.Abs()

		if h.portfolioValue, err = h.portfolioValue.CheckedAdd(value); err != nil {
			return h, err
		}
		if h.marginReq, err = h.marginReq.CheckedAdd(h.absDollarPos[idx]); err != nil {
			return h, err
		}
		if h.totalAbsDollarPos, err = h.totalAbsDollarPos.CheckedAdd(h.absDollarPos[idx]); err != nil {
			return h, err
		}

		meta := trader.OpenOrders.Products[idx]
		restingQty := meta.AskQtyInBook.Max(meta.BidQtyInBook)
		restingValue, err := restingQty.CheckedMul(price)
		if err != nil {
			return h, err
		}
		if h.marginReq, err = h.marginReq.CheckedAdd(restingValue); err != nil {
			return h, err
		}
	}

	// Open combo orders margin at the larger resting side too.
	for idx := range group.ActiveCombos() {
		meta := trader.OpenOrders.Products[idx]
		open, err := meta.AskQtyInBook.CheckedAdd(meta.BidQtyInBook)
		if err != nil {
			return h, err
		}
		if open.Sign() <= 0 {
			continue
		}
		price := markPrice(group, idx)
		restingValue, err := meta.AskQtyInBook.Max(meta.BidQtyInBook).CheckedMul(price)
		if err != nil {
			return h, err
		}
		if h.marginReq, err = h.marginReq.CheckedAdd(restingValue.Abs()); err != nil {
			return h, err
		}
	}
	return h, nil
}
