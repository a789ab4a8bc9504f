package farm

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/holiman/uint256"
)

// Amount is an unsigned token quantity. Arithmetic saturates at the numeric
// bounds instead of wrapping.
type Amount struct {
	v uint256.Int
}

var maxAmount = func() Amount {
	var a Amount
	a.v.SetAllOne()
	return a
}()

// NewAmount returns an Amount holding v.
func NewAmount(v uint64) Amount {
	var a Amount
	a.v.SetUint64(v)
	return a
}

// MaxAmount returns the saturation bound.
func MaxAmount() Amount { return maxAmount }

// ParseAmount parses a base-10 integer string.
func ParseAmount(s string) (Amount, error) {
	var a Amount
	if err := a.v.SetFromDecimal(s); err != nil {
		return Amount{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return a, nil
}

// Add returns a+b, clamped to MaxAmount.
func (a Amount) Add(b Amount) Amount {
	var out Amount
	if _, overflow := out.v.AddOverflow(&a.v, &b.v); overflow {
		return maxAmount
	}
	return out
}

// Sub returns a-b, clamped at zero.
func (a Amount) Sub(b Amount) Amount {
	var out Amount
	if _, underflow := out.v.SubOverflow(&a.v, &b.v); underflow {
		return Amount{}
	}
	return out
}

// Mul returns a*b, clamped to MaxAmount.
func (a Amount) Mul(b Amount) Amount {
	var out Amount
	if _, overflow := out.v.MulOverflow(&a.v, &b.v); overflow {
		return maxAmount
	}
	return out
}

// Div returns floor(a/b). Division by zero yields zero.
func (a Amount) Div(b Amount) Amount {
	var out Amount
	out.v.Div(&a.v, &b.v)
	return out
}

// Min returns the smaller of a and b.
func (a Amount) Min(b Amount) Amount {
	if a.v.Lt(&b.v) {
		return a
	}
	return b
}

func (a Amount) Eq(b Amount) bool { return a.v.Eq(&b.v) }
func (a Amount) Lt(b Amount) bool { return a.v.Lt(&b.v) }
func (a Amount) Gt(b Amount) bool { return a.v.Gt(&b.v) }
func (a Amount) IsZero() bool     { return a.v.IsZero() }

// Bytes32 returns the big-endian 32 byte encoding.
func (a Amount) Bytes32() [32]byte { return a.v.Bytes32() }

func (a Amount) String() string { return a.v.Dec() }

// MarshalJSON encodes the amount as a quoted decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(a.v.Dec())), nil
}

// UnmarshalJSON accepts a quoted decimal string or a bare JSON integer.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	} else {
		s = string(data)
	}
	v, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}
