// Package state holds the clearing engine's in-memory market state: the
// product registry, per-trader risk accounts, and the open-orders ledger.
// All of it is value-typed so an instruction can work on a struct copy and
// commit by assignment.
package state

import (
	"math"

	"DexLedger/internal/fpmath"
)

const (
	// NameLen bounds product names.
	NameLen = 16

	// MaxProducts is the registry arena capacity.
	MaxProducts = 256

	// MaxTraderPositions bounds position slots per trader account.
	MaxTraderPositions = 16

	// MaxOpenOrders is the shared open-order node arena per trader.
	MaxOpenOrders = 1024

	// MaxOpenOrdersPerPosition bounds resting orders per product.
	MaxOpenOrdersPerPosition = 256

	// MaxLegs bounds combo legs.
	MaxLegs = 4

	// Sentinel is the reserved open-orders node index; a Prev of Sentinel
	// marks a list head.
	Sentinel = 0

	// SlotUnset marks an unused entry of a trader's product→slot map.
	SlotUnset = math.MaxUint8
)

// EWMA windows in slots.
const (
	Slots1Min  = 150
	Slots5Min  = 750
	Slots15Min = 2250
	Slots60Min = 9000
)

// DefaultEwmaWindows is the standard rolling-window configuration.
var DefaultEwmaWindows = [4]uint64{Slots1Min, Slots5Min, Slots15Min, Slots60Min}

// NoBidPrice and NoAskPrice are the sentinel prices of an empty book side.
// They participate in EWMA updates specially: a sentinel never blends.
var (
	NoBidPrice = fpmath.Fractional{M: math.MinInt64, Exp: 0}
	NoAskPrice = fpmath.Fractional{M: math.MaxInt64, Exp: 0}
)
