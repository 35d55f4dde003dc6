package modbus

import (
	"fmt"
	"strings"
)

// WordOrder selects which of two consecutive registers holds the high 16 bits
// of a 32-bit value.
type WordOrder string

const (
	WordOrderHiLo WordOrder = "hi_lo" // first register is the high word
	WordOrderLoHi WordOrder = "lo_hi" // first register is the low word
)

// ParseWordOrder parses "hi_lo" or "lo_hi". An empty string selects hi_lo.
func ParseWordOrder(s string) (WordOrder, error) {
	switch WordOrder(strings.ToLower(strings.TrimSpace(s))) {
	case "", WordOrderHiLo:
		return WordOrderHiLo, nil
	case WordOrderLoHi:
		return WordOrderLoHi, nil
	default:
		return "", fmt.Errorf("invalid word order %q: expected %q or %q", s, WordOrderHiLo, WordOrderLoHi)
	}
}

// AssembleUint32 combines two registers into an unsigned 32-bit value.
func AssembleUint32(word0, word1 uint16, order WordOrder) uint32 {
	hi, lo := uint32(word0)&0xFFFF, uint32(word1)&0xFFFF
	if order == WordOrderLoHi {
		hi, lo = lo, hi
	}
	return hi<<16 | lo
}

// formatPrintHEX formats a byte slice into a hex dump with byte indices.
func formatPrintHEX(data []byte) string {
	if len(data) == 0 {
		return ""
	}

	var builder strings.Builder
	for i, b := range data {
		if i > 0 {
			builder.WriteByte(' ')
		}
		fmt.Fprintf(&builder, "%02X[%02d]", b, i)
	}
	return builder.String()
}
