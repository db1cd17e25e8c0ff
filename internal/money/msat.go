// Package money provides millisatoshi amounts as used on the lightningd
// RPC and event surfaces. Amounts appear on the wire both as bare numbers
// and as suffixed strings like "12000msat"; this package normalizes both.
package money

import (
	"fmt"
	"strconv"
	"strings"
)

// Millisatoshi is an amount in the smallest lightning unit.
type Millisatoshi int64

const (
	MsatPerSat = Millisatoshi(1000)
)

// FromSat converts whole satoshis to millisatoshis.
func FromSat(sat int64) Millisatoshi {
	return Millisatoshi(sat) * MsatPerSat
}

// Sat returns the amount in whole satoshis, truncating sub-satoshi precision.
func (m Millisatoshi) Sat() int64 {
	return int64(m) / int64(MsatPerSat)
}

func (m Millisatoshi) String() string {
	return strconv.FormatInt(int64(m), 10) + "msat"
}

// Parse reads a lightningd amount string. The "msat" suffix is optional and
// matched case-insensitively; lightningd emits lowercase but plugin payloads
// have been observed uppercased.
func Parse(s string) (Millisatoshi, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.TrimSuffix(v, "msat")
	if v == "" {
		return 0, fmt.Errorf("empty millisatoshi amount")
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse millisatoshi %q: %w", s, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative millisatoshi amount %q", s)
	}
	return Millisatoshi(n), nil
}

// PercentCeil returns p percent of m, rounded up to the next millisatoshi.
func (m Millisatoshi) PercentCeil(p float64) Millisatoshi {
	if m <= 0 || p <= 0 {
		return 0
	}
	raw := float64(m) * p / 100
	out := Millisatoshi(raw)
	if float64(out) < raw {
		out++
	}
	return out
}
