package fpmath_test

import (
	"math"
	"testing"

	"DexLedger/internal/fpmath"
)

func TestScaleInvariantEquality(t *testing.T) {
	a := fpmath.New(500, 2)
	b := fpmath.New(5, 0)
	if !a.Eq(b) {
		t.Errorf("500e-2 should equal 5e0")
	}
	if a.Cmp(b) != 0 {
		t.Errorf("Cmp(500e-2, 5e0) = %d, want 0", a.Cmp(b))
	}
	if !fpmath.New(0, 5).Eq(fpmath.Zero) {
		t.Errorf("zero at any exponent should equal canonical zero")
	}
}

func TestAddSubRoundTrip(t *testing.T) {
	cases := []struct {
		a, b fpmath.Fractional
	}{
		{fpmath.New(1000, 0), fpmath.New(25, 2)},
		{fpmath.New(-4231, 3), fpmath.New(9, 1)},
		{fpmath.New(1, 9), fpmath.New(1<<31, 0)},
	}
	for _, tc := range cases {
		sum, err := tc.a.CheckedAdd(tc.b)
		if err != nil {
			t.Fatalf("CheckedAdd(%v, %v): %v", tc.a, tc.b, err)
		}
		back, err := sum.CheckedSub(tc.b)
		if err != nil {
			t.Fatalf("CheckedSub(%v, %v): %v", sum, tc.b, err)
		}
		if !back.Eq(tc.a) {
			t.Errorf("(%v + %v) - %v = %v, want %v", tc.a, tc.b, tc.b, back, tc.a)
		}
	}
}

func TestCheckedAddOverflowReduces(t *testing.T) {
	// 2^31 at exp 0 plus dust at exp 9 still fits after rescale.
	num := fpmath.New(1<<31, 0)
	dust := fpmath.New(1, 9)
	sum, err := num.CheckedAdd(dust)
	if err != nil {
		t.Fatalf("CheckedAdd: %v", err)
	}
	if sum.Cmp(num) <= 0 {
		t.Errorf("sum %v not greater than %v", sum, num)
	}

	// One more digit of dust cannot be represented alongside 2^31.
	dust = fpmath.New(1, 10)
	if _, err := num.CheckedAdd(dust); err == nil {
		t.Errorf("expected overflow adding 1e-10 to 2^31")
	}
}

func TestRoundExact(t *testing.T) {
	v, err := fpmath.New(1256000000000000, 12).Round(6)
	if err != nil {
		t.Fatalf("Round(6): %v", err)
	}
	if v.M != 1256000000 || v.Exp != 6 {
		t.Errorf("Round(6) = {%d, %d}, want {1256000000, 6}", v.M, v.Exp)
	}
}

func TestRoundInexactFails(t *testing.T) {
	if _, err := fpmath.New(1, 12).Round(6); err == nil {
		t.Errorf("Round(6) of 1e-12 should fail")
	}
}

func TestRoundSF(t *testing.T) {
	m := fpmath.New(math.MaxInt64, 7)

	v := m.RoundSF(10)
	if v.M != math.MaxInt64 || v.Exp != 7 {
		t.Errorf("RoundSF(10) = {%d, %d}, want unchanged", v.M, v.Exp)
	}

	v = m.RoundSF(4)
	if v.M != math.MaxInt64/1000 || v.Exp != 4 {
		t.Errorf("RoundSF(4) = {%d, %d}, want {%d, 4}", v.M, v.Exp, int64(math.MaxInt64/1000))
	}
}

func TestCheckedDiv(t *testing.T) {
	v, err := fpmath.New(1<<62, 4).CheckedDiv(fpmath.New(1<<34, 0))
	if err != nil {
		t.Fatalf("CheckedDiv: %v", err)
	}
	if !v.Eq(fpmath.New(1<<28, 4)) {
		t.Errorf("CheckedDiv = %v, want %v", v, fpmath.New(1<<28, 4))
	}

	if _, err := fpmath.New(1, 0).CheckedDiv(fpmath.Zero); err == nil {
		t.Errorf("division by zero should fail")
	}
}

func TestCheckedMulOverflow(t *testing.T) {
	a := fpmath.New(1<<40, fpmath.ExpUpperLimit)
	b := fpmath.New(1<<35, fpmath.ExpUpperLimit)
	if _, err := a.CheckedMul(b); err == nil {
		t.Errorf("expected overflow from CheckedMul")
	}
	// The unchecked product degrades instead of failing.
	if a.Mul(b).Cmp(fpmath.Zero) <= 0 {
		t.Errorf("unchecked Mul should round down to a positive value")
	}
}

func TestMulUnderflowToZero(t *testing.T) {
	a := fpmath.New(1, fpmath.ExpUpperLimit)
	b := fpmath.New(1, fpmath.ExpUpperLimit)
	if got := a.Mul(b); !got.IsZero() {
		t.Errorf("Mul underflow = %v, want 0", got)
	}
}

func TestSqrt(t *testing.T) {
	v, err := fpmath.New(4, 0).Sqrt()
	if err != nil {
		t.Fatalf("Sqrt: %v", err)
	}
	if !v.Eq(fpmath.New(2, 0)) {
		t.Errorf("sqrt(4) = %v, want 2", v)
	}

	v, err = fpmath.New(2, 0).Sqrt()
	if err != nil {
		t.Fatalf("Sqrt: %v", err)
	}
	if !v.Eq(fpmath.New(141, 2)) {
		t.Errorf("sqrt(2) = %v, want 1.41 at sqrt precision", v)
	}

	if _, err := fpmath.New(-1, 0).Sqrt(); err == nil {
		t.Errorf("sqrt of negative should fail")
	}
}

func TestExpApproximation(t *testing.T) {
	// exp(0) == 1 on the quadratic branch.
	v, err := fpmath.Zero.ExpApprox()
	if err != nil {
		t.Fatalf("Exp: %v", err)
	}
	if !v.Eq(fpmath.New(1, 0)) {
		t.Errorf("exp(0) = %v, want 1", v)
	}

	// The piecewise tail is monotonically decreasing.
	prev := v
	for _, x := range []fpmath.Fractional{
		fpmath.New(-5, 1), fpmath.New(-12, 1), fpmath.New(-18, 1),
		fpmath.New(-22, 1), fpmath.New(-28, 1), fpmath.New(-4, 0),
	} {
		got, err := x.ExpApprox()
		if err != nil {
			t.Fatalf("Exp(%v): %v", x, err)
		}
		if got.Cmp(prev) > 0 {
			t.Errorf("exp(%v) = %v not decreasing from %v", x, got, prev)
		}
		prev = got
	}
}

func TestStringParseRoundTrip(t *testing.T) {
	cases := []fpmath.Fractional{
		fpmath.New(0, 0),
		fpmath.New(5, 0),
		fpmath.New(500, 2),
		fpmath.New(-5, 1),
		fpmath.New(-1256, 3),
		fpmath.New(123456789, 8),
		fpmath.New(1, 15),
	}
	for _, f := range cases {
		parsed, err := fpmath.Parse(f.String())
		if err != nil {
			t.Fatalf("Parse(%q): %v", f.String(), err)
		}
		if !parsed.Eq(f) {
			t.Errorf("Parse(Format(%v)) = %v", f, parsed)
		}
	}

	if _, err := fpmath.Parse("not-a-number"); err == nil {
		t.Errorf("expected parse failure")
	}
}

func TestToIntWithRemainder(t *testing.T) {
	whole, rem := fpmath.New(12345, 2).ToIntWithRemainder()
	if whole != 123 {
		t.Errorf("whole = %d, want 123", whole)
	}
	if !rem.Eq(fpmath.New(45, 2)) {
		t.Errorf("rem = %v, want 0.45", rem)
	}
}

func TestHasPrecision(t *testing.T) {
	if !fpmath.New(125, 2).HasPrecision(-2) {
		t.Errorf("1.25 should have two fractional digits of precision")
	}
	if fpmath.New(125, 2).HasPrecision(-1) {
		t.Errorf("1.25 should not fit one fractional digit")
	}
	if !fpmath.New(120, 0).HasPrecision(1) {
		t.Errorf("120 is a multiple of 10")
	}
	if fpmath.New(125, 0).HasPrecision(1) {
		t.Errorf("125 is not a multiple of 10")
	}
}

func TestBps(t *testing.T) {
	if !fpmath.Bps(10_000).Eq(fpmath.New(1, 0)) {
		t.Errorf("10000 bps should equal 1")
	}
}
