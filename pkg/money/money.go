// File: pkg/money/money.go
// ============================================
package money

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	nanoPerUnit = 1_000_000_000
	maxNano     = nanoPerUnit - 1
	nanoDigits  = 9
)

// Money is a fixed point amount: Units + Nano*1e-9.
// Values produced by this package always carry Nano with the same sign
// as the whole amount and |Nano| < 1e9.
type Money struct {
	Units int64 `json:"units"`
	Nano  int32 `json:"nano"`
}

// Zero is the zero amount.
var Zero = Money{}

// New builds a normalized amount from a units/nano pair.
func New(units int64, nano int32) Money {
	return normalize(units, int64(nano))
}

// FromInt converts a whole number (for example a lot count).
func FromInt(n int64) Money {
	return Money{Units: n}
}

// Parse reads a decimal string such as "5.90" or "-0.13".
// Digits past the ninth fractional place are truncated.
func Parse(s string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Zero, fmt.Errorf("parse money %q: %w", s, err)
	}
	return FromDecimal(d), nil
}

// MustParse is Parse for literals known to be valid.
func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

// FromDecimal truncates d to nine fractional digits.
func FromDecimal(d decimal.Decimal) Money {
	d = d.Truncate(nanoDigits)
	units := d.IntPart()
	frac := d.Sub(decimal.NewFromInt(units)).Shift(nanoDigits).IntPart()
	return normalize(units, frac)
}

// Decimal returns the exact decimal value.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Units, 0).Add(decimal.New(int64(m.Nano), -nanoDigits))
}

func normalize(units, nano int64) Money {
	units += nano / nanoPerUnit
	nano %= nanoPerUnit
	switch {
	case units > 0 && nano < 0:
		units--
		nano += nanoPerUnit
	case units < 0 && nano > 0:
		units++
		nano -= nanoPerUnit
	}
	return Money{Units: units, Nano: int32(nano)}
}

// Add returns m + o.
func (m Money) Add(o Money) Money {
	units := m.Units + o.Units
	nano := int64(m.Nano) + int64(o.Nano)
	if nano > maxNano {
		nano -= nanoPerUnit
		units++
	}
	return normalize(units, nano)
}

// Sub returns m - o.
func (m Money) Sub(o Money) Money {
	units := m.Units - o.Units
	nano := int64(m.Nano) - int64(o.Nano)
	if nano < 0 {
		nano += nanoPerUnit
		units--
	}
	return normalize(units, nano)
}

// Mul returns m * o truncated to nine fractional digits.
//
// The product is split into a units-scale term (a.Units*b.Units and
// a.Units*b.Nano) and a nano-scale term (a.Nano*b.Units and
// a.Nano*b.Nano rescaled by 1e9). Every partial product fits int64 for
// operands below ~9e8 units.
func (m Money) Mul(o Money) Money {
	neg := (m.Sign() < 0) != (o.Sign() < 0)
	a, b := m.Abs(), o.Abs()
	an, bn := int64(a.Nano), int64(b.Nano)

	whole := a.Units * b.Units
	unitScale := a.Units * bn
	nanoScale := an*b.Units + an*bn/nanoPerUnit

	res := normalize(whole, unitScale+nanoScale)
	if neg {
		return res.Neg()
	}
	return res
}

// MulInt returns m * n.
func (m Money) MulInt(n int64) Money {
	return m.Mul(FromInt(n))
}

// DivFloor returns how many whole times o fits into m.
// It returns 0 when o is not positive.
func (m Money) DivFloor(o Money) int64 {
	if o.Sign() <= 0 {
		return 0
	}
	return m.Decimal().Div(o.Decimal()).Floor().IntPart()
}

// Neg returns -m.
func (m Money) Neg() Money {
	return normalize(-m.Units, -int64(m.Nano))
}

// Abs returns |m|.
func (m Money) Abs() Money {
	if m.Sign() < 0 {
		return m.Neg()
	}
	return normalize(m.Units, int64(m.Nano))
}

// Sign returns -1, 0 or 1.
func (m Money) Sign() int {
	n := normalize(m.Units, int64(m.Nano))
	switch {
	case n.Units > 0 || (n.Units == 0 && n.Nano > 0):
		return 1
	case n.Units < 0 || (n.Units == 0 && n.Nano < 0):
		return -1
	default:
		return 0
	}
}

// IsZero reports whether m == 0.
func (m Money) IsZero() bool {
	return m.Sign() == 0
}

// Cmp compares m and o.
func (m Money) Cmp(o Money) int {
	return m.Sub(o).Sign()
}

// String renders the amount with trailing fractional zeros trimmed.
func (m Money) String() string {
	n := normalize(m.Units, int64(m.Nano))
	sign := ""
	if n.Sign() < 0 {
		sign = "-"
		n = n.Neg()
	}
	if n.Nano == 0 {
		return sign + strconv.FormatInt(n.Units, 10)
	}
	frac := strings.TrimRight(fmt.Sprintf("%09d", n.Nano), "0")
	return fmt.Sprintf("%s%d.%s", sign, n.Units, frac)
}
