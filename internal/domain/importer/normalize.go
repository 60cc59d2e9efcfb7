package importer

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Field length limits from the target schema.
const (
	CallNumberMaxLen = 8
	SymbolMaxLen     = 4
	UsernameMaxLen   = 32
	SourceMaxLen     = 128
)

// Date layouts the legacy exports are known to use, tried in order.
var (
	// ReceiptDateLayouts covers the accession register ("02 Jan 2006").
	ReceiptDateLayouts = []string{"2 Jan 2006"}

	// BorrowDateLayouts covers the circulation export, which switched
	// from four-digit to two-digit years at some point.
	BorrowDateLayouts = []string{
		"1/2/2006 15:04:05",
		"1/2/06 15:04:05",
	}
)

// ParseBoolFlag reports whether raw is the integer flag "1". Empty,
// zero and unparsable input all read as false; malformed flags never
// fail a row.
func ParseBoolFlag(raw string) bool {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	return err == nil && n == 1
}

// ParseDecimal parses raw as an optional decimal amount. The returned
// value is invalid (absent) when raw does not parse.
func ParseDecimal(raw string) decimal.NullDecimal {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// ParseYear extracts a publication year from free text such as
// "New Delhi 1998" by parsing the last whitespace-separated token.
// Returns nil when no token parses, or when the year is the legacy
// "no year" sentinel 0.
func ParseYear(raw string) *int {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil
	}
	year, err := strconv.Atoi(fields[len(fields)-1])
	if err != nil || year == 0 {
		return nil
	}
	return &year
}

// ParseDate tries each layout in order and returns the first parse that
// succeeds, or nil when every layout fails. Callers are responsible for
// warning about the row when that happens; a bad date never aborts an
// import.
func ParseDate(raw string, layouts []string) *time.Time {
	raw = strings.TrimSpace(raw)
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}

// Truncate returns the first n characters of s.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
