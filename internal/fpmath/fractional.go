// Package fpmath implements the exact decimal arithmetic used by the
// clearing engine. Values are (mantissa, exponent) pairs representing
// m * 10^-exp with exp in [0, 15]. Checked operations fail loudly on
// overflow or precision loss; the saturating/unchecked variants exist only
// for informational paths (EWMA blending, display).
package fpmath

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"
)

const (
	// DivisionPrecision is the extra precision applied to dividends before
	// integer division.
	DivisionPrecision = 10
	// FloatingPrecision bounds the exponent of unchecked reductions.
	FloatingPrecision = 10
	// SqrtPrecision is the added precision of Sqrt. Must stay even.
	SqrtPrecision = 4
	// ExpUpperLimit is the largest representable exponent.
	ExpUpperLimit = 15
)

var (
	ErrOverflow       = errors.New("fpmath: numerical overflow")
	ErrDivisionByZero = errors.New("fpmath: division by zero")
	ErrRound          = errors.New("fpmath: rounding loses precision")
	ErrSqrtNegative   = errors.New("fpmath: sqrt of negative value")
	ErrParse          = errors.New("fpmath: invalid decimal string")
)

var pow10 = [19]int64{
	1,
	10,
	100,
	1_000,
	10_000,
	100_000,
	1_000_000,
	10_000_000,
	100_000_000,
	1_000_000_000,
	10_000_000_000,
	100_000_000_000,
	1_000_000_000_000,
	10_000_000_000_000,
	100_000_000_000_000,
	1_000_000_000_000_000,
	10_000_000_000_000_000,
	100_000_000_000_000_000,
	1_000_000_000_000_000_000,
}

// Pow10 returns 10^n for n in [0, 18].
func Pow10(n uint64) int64 {
	return pow10[n]
}

// Fractional is a fixed-point decimal: M * 10^-Exp.
// The zero value is canonical zero.
type Fractional struct {
	M   int64
	Exp uint64
}

// Zero is canonical zero.
var Zero = Fractional{}

// New builds a Fractional. The exponent bound is a programmer-error check,
// not a runtime data check, hence the panic.
func New(m int64, exp uint64) Fractional {
	if exp > ExpUpperLimit {
		panic(fmt.Sprintf("fpmath: exponent %d exceeds %d", exp, ExpUpperLimit))
	}
	return Fractional{M: m, Exp: exp}
}

// FromInt builds a whole-number Fractional.
func FromInt(x int64) Fractional {
	return Fractional{M: x, Exp: 0}
}

// Bps interprets x as basis points (1 bps = 10^-4).
func Bps(x int64) Fractional {
	return Fractional{M: x, Exp: 4}
}

// big.Int intermediates are pooled; the checked paths run on every fill.
var intPool = sync.Pool{
	New: func() interface{} { return new(big.Int) },
}

func getBig() *big.Int  { return intPool.Get().(*big.Int) }
func putBig(v *big.Int) { v.SetInt64(0); intPool.Put(v) }

var (
	bigMaxI64  = big.NewInt(1).SetInt64(1<<62 - 1 + 1<<62) // i64 max
	bigMinI64  = new(big.Int).Neg(new(big.Int).Add(bigMaxI64, big.NewInt(1)))
	bigMaxU128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
)

func fitsInt64(v *big.Int) bool {
	return v.Cmp(bigMinI64) >= 0 && v.Cmp(bigMaxI64) <= 0
}

func (f Fractional) IsZero() bool     { return f.M == 0 }
func (f Fractional) IsNegative() bool { return f.M < 0 }

// Sign returns +1 for non-negative values, -1 otherwise.
func (f Fractional) Sign() int {
	if f.M < 0 {
		return -1
	}
	return 1
}

// Neg returns -f.
func (f Fractional) Neg() Fractional {
	return Fractional{M: -f.M, Exp: f.Exp}
}

// Abs returns |f|.
func (f Fractional) Abs() Fractional {
	if f.M < 0 {
		return Fractional{M: -f.M, Exp: f.Exp}
	}
	return f
}

func (f Fractional) Min(other Fractional) Fractional {
	if f.Cmp(other) > 0 {
		return other
	}
	return f
}

func (f Fractional) Max(other Fractional) Fractional {
	if f.Cmp(other) > 0 {
		return f
	}
	return other
}

// Cmp compares cross-scaled mantissas, so 5.0 and 5.00 compare equal.
func (f Fractional) Cmp(other Fractional) int {
	switch {
	case !f.IsNegative() && other.IsNegative():
		return 1
	case f.IsNegative() && !other.IsNegative():
		return -1
	}
	if f.M == 0 {
		switch {
		case other.M > 0:
			return -1
		case other.M < 0:
			return 1
		}
		return 0
	}
	if other.M == 0 {
		if f.M > 0 {
			return 1
		}
		return -1
	}
	lhs := getBig().SetInt64(f.M)
	lhs.Mul(lhs, big.NewInt(pow10[other.Exp]))
	rhs := getBig().SetInt64(other.M)
	rhs.Mul(rhs, big.NewInt(pow10[f.Exp]))
	c := lhs.Cmp(rhs)
	putBig(lhs)
	putBig(rhs)
	return c
}

// Eq is scale-invariant equality.
func (f Fractional) Eq(other Fractional) bool {
	if f.M == other.M && f.Exp == other.Exp {
		return true
	}
	if f.M == 0 || other.M == 0 {
		return f.M == 0 && other.M == 0
	}
	return f.Cmp(other) == 0
}

// Reduced strips trailing zeros from the mantissa. Zero reduces to {0, 0}.
func (f Fractional) Reduced() Fractional {
	if f.M == 0 {
		return Zero
	}
	for f.M%10 == 0 && f.Exp > 0 {
		f.M /= 10
		f.Exp--
	}
	return f
}

// roundUp rescales the mantissa to the given larger exponent.
func (f Fractional) roundUp(digits uint64) (int64, error) {
	diff := digits - f.Exp
	scaled := getBig().SetInt64(f.M)
	scaled.Mul(scaled, big.NewInt(pow10[diff]))
	defer putBig(scaled)
	if !fitsInt64(scaled) {
		return 0, ErrOverflow
	}
	return scaled.Int64(), nil
}

// reduceFromBig strips powers of ten until the value fits i64 with a legal
// exponent, failing when a non-zero digit would have to be dropped.
func reduceFromBig(m *big.Int, exp uint64) (Fractional, error) {
	if m.Sign() == 0 {
		return Zero, nil
	}
	rem := getBig()
	defer putBig(rem)
	for _, chunk := range []uint64{16, 8, 4, 2} {
		if exp < chunk {
			continue
		}
		p := big.NewInt(pow10[chunk])
		if rem.Mod(m, p); rem.Sign() == 0 {
			m.Div(m, p)
			exp -= chunk
		}
	}
	ten := big.NewInt(10)
	for exp > 0 {
		if rem.Mod(m, ten); rem.Sign() != 0 {
			break
		}
		m.Div(m, ten)
		exp--
	}
	if !fitsInt64(m) || exp > ExpUpperLimit {
		return Zero, ErrOverflow
	}
	return Fractional{M: m.Int64(), Exp: exp}, nil
}

// reduceFromBigLossy drops least-significant digits until the value fits.
func reduceFromBigLossy(m *big.Int, exp uint64) (Fractional, error) {
	if m.Sign() == 0 {
		return Zero, nil
	}
	ten := big.NewInt(10)
	for exp > FloatingPrecision || (!fitsInt64(m) && exp > 0) {
		m.Div(m, ten)
		exp--
	}
	if !fitsInt64(m) {
		return Zero, ErrOverflow
	}
	return Fractional{M: m.Int64(), Exp: exp}, nil
}

// CheckedAdd rescales to the larger exponent and adds. A sum exceeding i64
// is reduced back into range or fails with ErrOverflow.
func (f Fractional) CheckedAdd(other Fractional) (Fractional, error) {
	return f.checkedCombine(other, false)
}

// CheckedSub rescales to the larger exponent and subtracts.
func (f Fractional) CheckedSub(other Fractional) (Fractional, error) {
	return f.checkedCombine(other, true)
}

func (f Fractional) checkedCombine(other Fractional, sub bool) (Fractional, error) {
	a := getBig()
	b := getBig()
	defer putBig(a)
	defer putBig(b)

	var exp uint64
	switch {
	case f.Exp > other.Exp:
		a.SetInt64(f.M)
		b.SetInt64(other.M)
		b.Mul(b, big.NewInt(pow10[f.Exp-other.Exp]))
		exp = f.Exp
	case f.Exp < other.Exp:
		a.SetInt64(f.M)
		a.Mul(a, big.NewInt(pow10[other.Exp-f.Exp]))
		b.SetInt64(other.M)
		exp = other.Exp
	default:
		a.SetInt64(f.M)
		b.SetInt64(other.M)
		exp = f.Exp
	}
	if sub {
		a.Sub(a, b)
	} else {
		a.Add(a, b)
	}
	if fitsInt64(a) {
		return Fractional{M: a.Int64(), Exp: exp}, nil
	}
	return reduceFromBig(a, exp)
}

// CheckedMul reduces both operands, multiplies as a wide integer and
// reduces the product back into range.
func (f Fractional) CheckedMul(other Fractional) (Fractional, error) {
	if f.M == 0 || other.M == 0 {
		return Zero, nil
	}
	m := getBig().SetInt64(f.M)
	defer putBig(m)
	m.Mul(m, big.NewInt(other.M))
	return reduceFromBig(m, f.Exp+other.Exp)
}

// Mul is the unchecked product: where CheckedMul would fail it drops
// precision, and underflows to zero when nothing representable remains.
// Display and EWMA paths only.
func (f Fractional) Mul(other Fractional) Fractional {
	fr := f.Reduced()
	or := other.Reduced()
	if fr.M == 0 || or.M == 0 {
		return Zero
	}
	m := getBig().SetInt64(fr.M)
	defer putBig(m)
	m.Mul(m, big.NewInt(or.M))
	v, err := reduceFromBigLossy(m, fr.Exp+or.Exp)
	if err != nil {
		return Zero
	}
	return v
}

// SaturatingAdd clamps to the i64 maximum instead of failing.
func (f Fractional) SaturatingAdd(other Fractional) Fractional {
	v, err := f.CheckedAdd(other)
	if err != nil {
		return Fractional{M: 1<<63 - 1, Exp: 0}
	}
	return v
}

// SaturatingSub clamps to the i64 maximum instead of failing.
func (f Fractional) SaturatingSub(other Fractional) Fractional {
	v, err := f.CheckedSub(other)
	if err != nil {
		return Fractional{M: 1<<63 - 1, Exp: 0}
	}
	return v
}

// SaturatingMul clamps to the i64 maximum instead of failing.
func (f Fractional) SaturatingMul(other Fractional) Fractional {
	v, err := f.CheckedMul(other)
	if err != nil {
		return Fractional{M: 1<<63 - 1, Exp: 0}
	}
	return v
}

// CheckedDiv scales the dividend by DivisionPrecision extra digits before
// integer division, then reduces. The result carries at most
// DivisionPrecision fractional digits beyond the exponent difference.
func (f Fractional) CheckedDiv(other Fractional) (Fractional, error) {
	if other.M == 0 {
		return Zero, ErrDivisionByZero
	}
	sign := int64(f.Sign() * other.Sign())

	dividend := getBig().SetInt64(f.M)
	defer putBig(dividend)
	dividend.Abs(dividend)

	expDiff := int64(f.Exp) - int64(other.Exp)
	extra := DivisionPrecision - min64(expDiff, 0)
	dividend.Mul(dividend, big.NewInt(pow10[extra]))
	if dividend.Cmp(bigMaxU128) > 0 {
		return Zero, ErrOverflow
	}

	divisor := getBig().SetInt64(f.absM(other.M))
	defer putBig(divisor)
	dividend.Div(dividend, divisor)

	exp := uint64(expDiff - min64(expDiff, 0) + DivisionPrecision)
	v, err := reduceFromBig(dividend, exp)
	if err != nil {
		return Zero, err
	}
	if sign < 0 {
		v.M = -v.M
	}
	return v, nil
}

// Div is the unchecked quotient, rounded (lossy) to FloatingPrecision.
// Division by zero and overflow collapse to zero; informational paths only.
func (f Fractional) Div(other Fractional) Fractional {
	fr := f.Reduced()
	or := other.Reduced()
	v, err := fr.CheckedDiv(or)
	if err != nil {
		return Zero
	}
	return v.RoundSF(FloatingPrecision)
}

func (Fractional) absM(m int64) int64 {
	if m < 0 {
		return -m
	}
	return m
}

// RoundUnchecked rescales to exactly `digits` fractional digits, truncating
// toward zero when digits < Exp.
func (f Fractional) RoundUnchecked(digits uint64) (Fractional, error) {
	if digits > ExpUpperLimit {
		return Zero, ErrOverflow
	}
	if digits >= f.Exp {
		scaled := getBig().SetInt64(f.M)
		defer putBig(scaled)
		scaled.Mul(scaled, big.NewInt(pow10[digits-f.Exp]))
		if !fitsInt64(scaled) {
			return Zero, ErrOverflow
		}
		return Fractional{M: scaled.Int64(), Exp: digits}, nil
	}
	return Fractional{M: f.M / pow10[f.Exp-digits], Exp: digits}, nil
}

// Round rescales to exactly `digits` fractional digits and fails with
// ErrRound if the value is not exactly representable there.
func (f Fractional) Round(digits uint64) (Fractional, error) {
	v, err := f.RoundUnchecked(digits)
	if err != nil {
		return Zero, err
	}
	if !v.Eq(f) {
		return Zero, ErrRound
	}
	return v, nil
}

// RoundSF truncates to at most `digits` fractional digits. Lossy.
func (f Fractional) RoundSF(digits uint64) Fractional {
	if digits >= f.Exp {
		return f
	}
	return Fractional{M: f.M / pow10[f.Exp-digits], Exp: digits}
}

// ToInt truncates toward zero.
func (f Fractional) ToInt() int64 {
	i, _ := f.ToIntWithRemainder()
	return i
}

// ToIntWithRemainder returns the integer part and the fractional remainder.
func (f Fractional) ToIntWithRemainder() (int64, Fractional) {
	reduced := f.Reduced()
	whole := reduced.M / pow10[reduced.Exp]
	rem, _ := f.CheckedSub(FromInt(whole))
	return whole, rem
}

// HasPrecision reports whether the value is exactly representable at the
// given precision. Positive precision means multiples of 10^precision;
// negative means at most -precision fractional digits.
func (f Fractional) HasPrecision(precision int64) bool {
	if precision > 0 {
		reduced := f.Reduced()
		scaled := getBig().SetInt64(reduced.M)
		defer putBig(scaled)
		mod := getBig()
		defer putBig(mod)
		p := big.NewInt(pow10[uint64(precision)+reduced.Exp])
		mod.Mod(scaled, p)
		return reduced.Exp+uint64(precision) <= 18 && mod.Sign() == 0
	}
	_, err := f.Round(uint64(-precision))
	return err == nil
}

// intSqrt is a bisection integer square root over wide integers.
func intSqrt(m *big.Int) (*big.Int, error) {
	if m.Sign() < 0 {
		return nil, ErrSqrtNegative
	}
	return new(big.Int).Sqrt(m), nil
}

// Sqrt computes the square root to SqrtPrecision added digits. The exponent
// is first normalized to even so the result exponent is integral.
func (f Fractional) Sqrt() (Fractional, error) {
	if f.M < 0 {
		return Zero, ErrSqrtNegative
	}
	exp := f.Exp
	m := getBig().SetInt64(f.M)
	defer putBig(m)

	if exp%2 != 0 {
		if fitsInt64(m) {
			m.Mul(m, big.NewInt(10))
			exp++
		} else {
			m.Div(m, big.NewInt(10))
			exp--
		}
	}
	addExp := uint64(2)
	for i := 0; i < SqrtPrecision/2; i++ {
		next := getBig().Set(m)
		next.Mul(next, big.NewInt(100))
		if !fitsInt64(next) {
			putBig(next)
			break
		}
		m.Set(next)
		putBig(next)
		addExp += 2
	}
	exp += addExp - 2

	root, err := intSqrt(m)
	if err != nil {
		return Zero, err
	}
	if !fitsInt64(root) {
		return Zero, ErrOverflow
	}
	return Fractional{M: root.Int64(), Exp: exp / 2}, nil
}

// ExpApprox approximates e^x on the negative range used by EWMA weights. It
// is a coarse piecewise curve, not a general-purpose exponential.
func (f Fractional) ExpApprox() (Fractional, error) {
	x := f
	switch {
	case x.Cmp(New(-1, 0)) > 0:
		one := New(1, 0)
		sq := x.Mul(x).Mul(New(5, 1))
		v, err := one.CheckedAdd(x)
		if err != nil {
			return Zero, err
		}
		return v.CheckedAdd(sq)
	case x.Cmp(New(-15, 1)) > 0:
		return New(22, 2), nil
	case x.Cmp(New(-2, 0)) > 0:
		return New(13, 2), nil
	case x.Cmp(New(-25, 1)) > 0:
		return New(8, 2), nil
	case x.Cmp(New(-3, 0)) > 0:
		return New(5, 2), nil
	default:
		return Zero, nil
	}
}

// String renders the value as a plain decimal. Parse(String(f)) recovers a
// value equal to f.
func (f Fractional) String() string {
	if f.Exp == 0 {
		return strconv.FormatInt(f.M, 10)
	}
	base := pow10[f.Exp]
	whole := f.M / base
	frac := f.M % base
	if frac < 0 {
		frac = -frac
	}
	sign := ""
	if f.M < 0 && whole == 0 {
		sign = "-"
	}
	return fmt.Sprintf("%s%d.%0*d", sign, whole, int(f.Exp), frac)
}

// Parse reads a plain decimal string.
func Parse(s string) (Fractional, error) {
	lhs, rhs, found := strings.Cut(s, ".")
	if !found {
		m, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Zero, fmt.Errorf("%w: %q", ErrParse, s)
		}
		return Fractional{M: m, Exp: 0}, nil
	}
	if uint64(len(rhs)) > ExpUpperLimit {
		return Zero, fmt.Errorf("%w: %q", ErrParse, s)
	}
	m, err := strconv.ParseInt(lhs+rhs, 10, 64)
	if err != nil {
		return Zero, fmt.Errorf("%w: %q", ErrParse, s)
	}
	if strings.HasPrefix(strings.TrimSpace(lhs), "-") && m > 0 {
		m = -m
	}
	return Fractional{M: m, Exp: uint64(len(rhs))}, nil
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
