// Package risk defines the pluggable fee and account-health engines consulted
// by the clearing core, plus the built-in reference implementations.
package risk

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"DexLedger/internal/book"
	"DexLedger/internal/fpmath"
	"DexLedger/internal/state"
)

var ErrNoPositionsToLiquidate = errors.New("risk: account has no dollar position to liquidate")

// OperationType tells the engine which instruction triggered the check.
type OperationType int

const (
	OpNewOrder OperationType = iota
	OpCancelOrder
	OpCheckHealth
	OpPositionTransfer
	OpConsumeEvents
)

func (o OperationType) String() string {
	switch o {
	case OpNewOrder:
		return "new_order"
	case OpCancelOrder:
		return "cancel_order"
	case OpCheckHealth:
		return "check_health"
	case OpPositionTransfer:
		return "position_transfer"
	case OpConsumeEvents:
		return "consume_events"
	default:
		return "unknown"
	}
}

// HealthStatus grades an account.
type HealthStatus int

const (
	Healthy HealthStatus = iota
	Unhealthy
	Liquidatable
	NotLiquidatable
)

func (h HealthStatus) String() string {
	switch h {
	case Healthy:
		return "Healthy"
	case Unhealthy:
		return "Unhealthy"
	case Liquidatable:
		return "Liquidatable"
	case NotLiquidatable:
		return "NotLiquidatable"
	default:
		return "Unknown"
	}
}

// ActionStatus says whether the triggering instruction may proceed.
type ActionStatus int

const (
	NotApproved ActionStatus = iota
	Approved
)

func (a ActionStatus) String() string {
	if a == Approved {
		return "Approved"
	}
	return "NotApproved"
}

// OrderInfo describes the order that prompted a health check.
type OrderInfo struct {
	TotalOrderQty   fpmath.Fractional
	MatchedOrderQty fpmath.Fractional
	OldAskQtyInBook fpmath.Fractional
	OldBidQtyInBook fpmath.Fractional
	Side            book.Side
	IsCombo         bool
	ProductIndex    int
	Operation       OperationType
}

// HealthRequest is a snapshot of the account under evaluation. Engines read
// but never mutate it.
type HealthRequest struct {
	Group  *state.MarketProductGroup
	Trader *state.TraderRiskGroup
	Order  *OrderInfo
}

// HealthInfo is the verdict of an order/health-mode check.
type HealthInfo struct {
	Health HealthStatus
	Action ActionStatus
}

// SocialLoss is a per-product share of the loss an underwater liquidation
// socializes. Unused entries carry ProductIndex == state.MaxProducts.
type SocialLoss struct {
	ProductIndex int
	Amount       fpmath.Fractional
}

// LiquidationInfo is the verdict of a liquidation-mode check.
type LiquidationInfo struct {
	Health           HealthStatus
	Action           ActionStatus
	TotalSocialLoss  fpmath.Fractional
	LiquidationPrice fpmath.Fractional
	SocialLosses     [state.MaxTraderPositions]SocialLoss
}

// FeeParams identifies the trade a fee quote is for.
type FeeParams struct {
	Group        uuid.UUID
	Trader       uuid.UUID
	ProductIndex int
	Side         book.Side
	IsAggressor  bool
	MatchedQty   fpmath.Fractional
}

// FeeEngine quotes a trader's fee schedule.
type FeeEngine interface {
	Fees(ctx context.Context, params FeeParams) (state.TraderFees, error)
}

// RiskEngine grades account health before and after clearing operations.
type RiskEngine interface {
	CheckHealth(ctx context.Context, req HealthRequest) (HealthInfo, error)
	CheckLiquidation(ctx context.Context, req HealthRequest) (LiquidationInfo, error)
}
