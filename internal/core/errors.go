package core

import "errors"

var (
	ErrMissingMarketProductGroup = errors.New("core: unknown market product group")
	ErrMissingTraderAccount      = errors.New("core: unknown trader account")
	ErrMissingOrderbook          = errors.New("core: no orderbook for product")
	ErrTraderAlreadyExists       = errors.New("core: trader account already exists")

	ErrProductExpired        = errors.New("core: product is expired")
	ErrProductNotExpired     = errors.New("core: product is not expired")
	ErrProductPrecision      = errors.New("core: tick size and min order size do not settle at cash decimals")
	ErrDuplicateProduct      = errors.New("core: product key already listed")
	ErrComboTooFewLegs       = errors.New("core: combo needs at least two legs")
	ErrComboRatiosNotCoprime = errors.New("core: combo ratios must have gcd 1")
	ErrComboLegsUnsorted     = errors.New("core: combo legs must be sorted by product key")
	ErrProductInUse          = errors.New("core: product still has open interest or combo references")

	ErrOrderTooSmall        = errors.New("core: order below minimum base size")
	ErrInvalidLimitPrice    = errors.New("core: limit price outside the representable tick range")
	ErrRiskCheckRejected    = errors.New("core: risk engine did not approve the operation")
	ErrHealthyAccountCancel = errors.New("core: orders can only be cancelled by their owner while the account is healthy")

	ErrNoOp           = errors.New("core: no events to consume")
	ErrOrderbookEmpty = errors.New("core: orderbook is empty")

	ErrInsufficientFunds = errors.New("core: insufficient funds")
	ErrInvalidQuantity   = errors.New("core: quantity must be positive")

	ErrAccountNotLiquidatable       = errors.New("core: account is not liquidatable")
	ErrTraderHasOpenOrders          = errors.New("core: liquidatee still has open orders")
	ErrTraderStillActive            = errors.New("core: liquidatee has pending balances")
	ErrProductIndexMismatch         = errors.New("core: social loss product index mismatch")
	ErrInvalidSocialLossCalculation = errors.New("core: social loss total does not match per-product amounts")
)
