package render

import (
	"fmt"
	"html/template"
	"math"
	"strconv"
	"strings"
	"time"
)

// defaultDateLayout is applied when a template calls formatDate without an
// explicit layout.
const defaultDateLayout = "2006-01-02"

// currencySymbols maps the ISO codes with dedicated symbols. Any other code
// renders as "CODE amount".
var currencySymbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
}

// Helpers returns the FuncMap of built-in template functions available to
// every document template: currency formatting, date formatting, and the
// barcode placeholder.
func Helpers() template.FuncMap {
	return template.FuncMap{
		"formatCurrency": formatCurrency,
		"formatDate":     formatDate,
		"barcode":        barcode,
		"mul":            mul,
	}
}

// formatCurrency renders an amount as a localized symbol string with two
// decimal places and thousands separators. The currency code is optional and
// defaults to USD.
func formatCurrency(amount any, code ...string) (string, error) {
	value, err := toFloat(amount)
	if err != nil {
		return "", fmt.Errorf("formatCurrency: %w", err)
	}

	currency := "USD"
	if len(code) > 0 && code[0] != "" {
		currency = strings.ToUpper(code[0])
	}

	formatted := groupThousands(value)
	if symbol, ok := currencySymbols[currency]; ok {
		return symbol + formatted, nil
	}
	return currency + " " + formatted, nil
}

// formatDate renders a date with the given Go reference layout, defaulting to
// 2006-01-02. The value may be a time.Time or a string in RFC 3339 or
// date-only form (JSON payloads carry dates as strings).
func formatDate(value any, layout ...string) (string, error) {
	t, err := toTime(value)
	if err != nil {
		return "", fmt.Errorf("formatDate: %w", err)
	}

	l := defaultDateLayout
	if len(layout) > 0 && layout[0] != "" {
		l = layout[0]
	}
	return t.Format(l), nil
}

// barcode produces a literal marker string. Real barcode encoding is out of
// scope.
func barcode(text any) string {
	return fmt.Sprintf("[BARCODE: %v]", text)
}

// mul multiplies two numeric values. Go templates have no arithmetic, and
// line totals (quantity times unit price) are a staple of the sample
// templates.
func mul(a, b any) (float64, error) {
	x, err := toFloat(a)
	if err != nil {
		return 0, fmt.Errorf("mul: %w", err)
	}
	y, err := toFloat(b)
	if err != nil {
		return 0, fmt.Errorf("mul: %w", err)
	}
	return x * y, nil
}

// toFloat coerces the numeric types a JSON payload or Go caller can supply.
func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot parse %q as a number", n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("cannot format %T as a number", v)
	}
}

// toTime coerces the date representations a JSON payload or Go caller can
// supply.
func toTime(v any) (time.Time, error) {
	switch d := v.(type) {
	case time.Time:
		return d, nil
	case string:
		for _, layout := range []string{time.RFC3339, defaultDateLayout} {
			if t, err := time.Parse(layout, d); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("cannot parse %q as a date", d)
	default:
		return time.Time{}, fmt.Errorf("cannot format %T as a date", v)
	}
}

// groupThousands formats a value with two decimal places and comma-separated
// thousands groups, e.g. 1234567.5 -> "1,234,567.50".
func groupThousands(value float64) string {
	negative := math.Signbit(value)
	s := strconv.FormatFloat(math.Abs(value), 'f', 2, 64)

	intPart, fracPart, _ := strings.Cut(s, ".")
	var b strings.Builder
	if negative {
		b.WriteByte('-')
	}
	for i, digit := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(digit)
	}
	b.WriteByte('.')
	b.WriteString(fracPart)
	return b.String()
}
