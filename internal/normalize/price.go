package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var minorUnitThreshold = decimal.NewFromInt(1000)

// Price converts a raw price into a major-unit decimal string without trailing
// zeros ("29.9"). Whole amounts keep one fraction digit ("30.0") so the output
// is never mistaken for minor units when normalized again. Integral values of
// 1000 or more are treated as minor units. ok is false when nothing numeric
// can be recovered.
func Price(raw any) (string, bool) {
	var (
		d        decimal.Decimal
		integral bool
	)
	switch v := raw.(type) {
	case nil:
		return "", false
	case json.Number:
		parsed, err := decimal.NewFromString(v.String())
		if err != nil {
			return "", false
		}
		d, integral = parsed, !strings.ContainsAny(v.String(), ".eE")
	case int:
		d, integral = decimal.NewFromInt(int64(v)), true
	case int64:
		d, integral = decimal.NewFromInt(v), true
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "", false
		}
		d, integral = decimal.NewFromFloat(v), false
	case string:
		cleaned, ok := cleanPriceText(v)
		if !ok {
			return "", false
		}
		parsed, err := decimal.NewFromString(cleaned)
		if err != nil {
			return "", false
		}
		d, integral = parsed, !strings.Contains(cleaned, ".")
	default:
		return "", false
	}
	if integral && d.GreaterThanOrEqual(minorUnitThreshold) {
		d = d.Div(decimal.NewFromInt(100))
	}
	out := d.String()
	if !strings.Contains(out, ".") {
		out += ".0"
	}
	return out, true
}

// cleanPriceText strips currency symbols and resolves comma/period usage to a
// plain decimal literal.
func cleanPriceText(s string) (string, bool) {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	t := strings.TrimRight(b.String(), ".,")
	if t == "" {
		return "", false
	}
	commas, dots := strings.Count(t, ","), strings.Count(t, ".")
	switch {
	case commas > 0 && dots > 0:
		// The right-most separator is the decimal point.
		if strings.LastIndex(t, ",") > strings.LastIndex(t, ".") {
			t = strings.ReplaceAll(t, ".", "")
			t = strings.Replace(t, ",", ".", 1)
		} else {
			t = strings.ReplaceAll(t, ",", "")
		}
	case commas == 1:
		t = strings.Replace(t, ",", ".", 1)
	case commas > 1:
		t = strings.ReplaceAll(t, ",", "")
	case dots > 1:
		last := strings.LastIndex(t, ".")
		t = strings.ReplaceAll(t[:last], ".", "") + t[last:]
	}
	if strings.Count(t, ".") > 1 {
		return "", false
	}
	if _, err := strconv.ParseFloat(t, 64); err != nil {
		return "", false
	}
	return t, true
}
