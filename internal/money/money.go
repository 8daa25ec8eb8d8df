package money

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Amount is a currency value in minor units (cents).
type Amount int64

// FromFloat converts a decimal amount to minor units, rounding half away from zero.
func FromFloat(f float64) Amount {
	return Amount(math.Round(f * 100))
}

// Parse reads a decimal string such as "12.50".
func Parse(s string) (Amount, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return FromFloat(f), nil
}

func (a Amount) Float() float64 { return float64(a) / 100 }

func (a Amount) Mul(n int) Amount { return a * Amount(n) }

// Percent returns p percent of a, rounded to the nearest minor unit.
func (a Amount) Percent(p float64) Amount {
	return Amount(math.Round(float64(a) * p / 100))
}

func Min(a, b Amount) Amount {
	if a < b {
		return a
	}
	return b
}

func (a Amount) String() string {
	return strconv.FormatFloat(a.Float(), 'f', 2, 64)
}

// MarshalJSON encodes the amount as a number with two decimals.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}
	*a = FromFloat(f)
	return nil
}
