package state

import "errors"

var (
	ErrMissingMarketProduct   = errors.New("state: missing market product")
	ErrFullMarketProductGroup = errors.New("state: market product group has no empty slot")
	ErrDuplicateProductName   = errors.New("state: duplicate product name")
	ErrProductNotOutright     = errors.New("state: expected an outright product")
	ErrProductNotCombo        = errors.New("state: expected a combo product")
	ErrInactiveProduct        = errors.New("state: product is inactive")

	ErrTooManyOpenOrders = errors.New("state: too many open orders")
	ErrNoMoreOpenOrders  = errors.New("state: no more open orders")
	ErrInvalidOrderID    = errors.New("state: order id does not match node")
	ErrOpenOrderNotFound = errors.New("state: open order not found")

	ErrAllPositionsOccupied = errors.New("state: all trader positions are occupied")
	ErrPositionNotFound     = errors.New("state: trader position not found")
	ErrFundingPrecision     = errors.New("state: funding precision exceeds limit")

	ErrBitsetRange = errors.New("state: bitset index out of range")
	ErrBitsetFull  = errors.New("state: bitset is full")
)
