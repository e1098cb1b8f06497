package importer

// normalize.go coerces raw export cells into typed values.
//
// ERP exports are messy:
//   - Currency markers and thousands separators in amounts
//   - Accounting negatives written as "(500)"
//   - "NULL" or "-" where a value is absent
//   - Excel formula prefixes (="P-001")
//   - Dates in whichever regional format the exporting desktop used
//
// Amount coercion never fails: anything unparseable becomes zero so one bad
// cell cannot abort an import.

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// numericRegex validates that a string is a plain decimal after cleanup.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

// TwoDigitYearPivot: two-digit years that would land more than this many
// years in the future are put in the previous century.
var TwoDigitYearPivot = 20

var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06", "02-Jan-06",
	}
	fourDigitYearLayouts = []string{
		"2006-01-02", "2006/01/02", "2006.01.02", "20060102",
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"02-Jan-2006", "2-Jan-2006", "Jan 2, 2006", "2 Jan 2006",
		"2006-01-02 15:04:05", "2006-01-02 15:04:05.000", time.RFC3339,
	}
)

// nullPlaceholders are the spellings exports use for "no value".
var nullPlaceholders = map[string]bool{
	"":     true,
	"-":    true,
	"null": true,
}

// currencyMarkers are stripped from amounts before parsing. Longer markers
// first so "PKR" is not left as "PK".
var currencyMarkers = []string{"PKR", "Rs.", "Rs", "$", "€", "£"}

// ParseAmount converts an export amount to a decimal.
//
//	"1,234.56" → 1234.56
//	"(500)"    → -500 (accounting negative)
//	"NULL", "-", "" → 0
//	"abc"      → 0
func ParseAmount(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if nullPlaceholders[strings.ToLower(s)] {
		return decimal.Zero
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	for _, m := range currencyMarkers {
		s = strings.ReplaceAll(s, m, "")
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")

	if !numericRegex.MatchString(s) {
		return decimal.Zero
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	if negative {
		d = d.Neg()
	}
	return d
}

// ParseDate parses the date formats seen in exports. Returns false when the
// cell is empty, a placeholder, or unrecognized.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if nullPlaceholders[strings.ToLower(s)] {
		return time.Time{}, false
	}

	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}

	pivotYear := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return t, true
		}
	}

	return time.Time{}, false
}

// ParseText returns a trimmed display value with "NULL"/"-" placeholders
// mapped to "".
func ParseText(s string) string {
	s = strings.TrimSpace(s)
	if nullPlaceholders[strings.ToLower(s)] {
		return ""
	}
	return s
}

// CleanCell removes common spreadsheet artifacts from a cell:
//   - surrounding whitespace
//   - the Excel formula wrapper ="..." or a bare leading '='
//   - surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") && len(s) >= 3 {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.TrimSpace(strings.Trim(s, `"'`))
}
