package currency

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Position controls where the currency symbol is rendered relative to the amount.
type Position string

const (
	PositionLeft       Position = "left"
	PositionLeftSpace  Position = "left_space"
	PositionRight      Position = "right"
	PositionRightSpace Position = "right_space"
)

// Options groups the locale-style formatting settings shared by all amount helpers.
type Options struct {
	ThousandsSep string
	DecimalSep   string
	Decimals     int
	Position     Position
}

// DefaultOptions returns the formatting defaults used when no configuration is present.
func DefaultOptions() Options {
	return Options{ThousandsSep: ",", DecimalSep: ".", Decimals: 2, Position: PositionLeft}
}

func (o Options) normalised() Options {
	if o.ThousandsSep == "" && o.DecimalSep == "" {
		o.DecimalSep = "."
	}
	if o.DecimalSep == "" {
		o.DecimalSep = "."
	}
	if o.Decimals < 0 {
		o.Decimals = 2
	}
	switch o.Position {
	case PositionLeft, PositionLeftSpace, PositionRight, PositionRightSpace:
	default:
		o.Position = PositionLeft
	}
	return o
}

var symbols = map[string]string{
	"AED": "د.إ",
	"ARS": "$",
	"AUD": "$",
	"BDT": "৳",
	"BGN": "лв.",
	"BRL": "R$",
	"CAD": "$",
	"CHF": "CHF",
	"CLP": "$",
	"CNY": "¥",
	"COP": "$",
	"CZK": "Kč",
	"DKK": "DKK",
	"DOP": "RD$",
	"EGP": "EGP",
	"EUR": "€",
	"GBP": "£",
	"HKD": "$",
	"HRK": "Kn",
	"HUF": "Ft",
	"IDR": "Rp",
	"ILS": "₪",
	"INR": "₹",
	"ISK": "Kr.",
	"JPY": "¥",
	"KES": "KSh",
	"KRW": "₩",
	"MXN": "$",
	"MYR": "RM",
	"NGN": "₦",
	"NOK": "kr",
	"NPR": "₨",
	"NZD": "$",
	"PHP": "₱",
	"PKR": "₨",
	"PLN": "zł",
	"RON": "lei",
	"RUB": "₽",
	"SAR": "ر.س",
	"SEK": "kr",
	"SGD": "$",
	"THB": "฿",
	"TRY": "₺",
	"TWD": "NT$",
	"UAH": "₴",
	"USD": "$",
	"VND": "₫",
	"ZAR": "R",
}

// Symbol returns the display symbol for the provided ISO currency code. Unknown
// codes fall back to the dollar sign, matching the behaviour merchants expect
// for unconfigured stores.
func Symbol(code string) string {
	if s, ok := symbols[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return s
	}
	return "$"
}

// Codes lists the supported ISO currency codes in no particular order.
func Codes() []string {
	out := make([]string, 0, len(symbols))
	for code := range symbols {
		out = append(out, code)
	}
	return out
}

// ParseAmount converts a user-facing decimal string into a normalised amount.
// The separators in Options drive the interpretation: a decimal comma with a
// dot or space thousands separator is handled, as is the plain decimal-dot
// form. Stray currency symbols and letters are stripped before parsing.
func ParseAmount(value string, opts Options) (float64, error) {
	opts = opts.normalised()
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, fmt.Errorf("currency: empty amount")
	}

	negative := strings.HasPrefix(trimmed, "-")

	if opts.DecimalSep == "," && strings.Contains(trimmed, ",") {
		if (opts.ThousandsSep == "." || opts.ThousandsSep == " ") && strings.Contains(trimmed, opts.ThousandsSep) {
			trimmed = strings.ReplaceAll(trimmed, opts.ThousandsSep, "")
		} else if opts.ThousandsSep == "" && strings.Contains(trimmed, ".") {
			trimmed = strings.ReplaceAll(trimmed, ".", "")
		}
		trimmed = strings.ReplaceAll(trimmed, ",", ".")
	} else if opts.ThousandsSep == "," {
		trimmed = strings.ReplaceAll(trimmed, ",", "")
	}

	var b strings.Builder
	for _, r := range trimmed {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return 0, fmt.Errorf("currency: no digits in %q", value)
	}

	amount, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("currency: parse %q: %w", value, err)
	}
	factor := math.Pow10(opts.Decimals)
	amount = math.Round(amount*factor) / factor
	if negative {
		amount = -amount
	}
	return amount, nil
}

// FormatAmount renders the amount with the configured decimals and separators,
// without any currency symbol.
func FormatAmount(amount float64, opts Options) string {
	opts = opts.normalised()
	negative := amount < 0 || math.Signbit(amount)
	fixed := strconv.FormatFloat(math.Abs(amount), 'f', opts.Decimals, 64)

	whole := fixed
	frac := ""
	if idx := strings.IndexByte(fixed, '.'); idx >= 0 {
		whole, frac = fixed[:idx], fixed[idx+1:]
	}
	if opts.ThousandsSep != "" {
		whole = groupThousands(whole, opts.ThousandsSep)
	}
	out := whole
	if frac != "" {
		out += opts.DecimalSep + frac
	}
	if negative {
		out = "-" + out
	}
	return out
}

// Price renders a display string for the amount in the given currency: the
// symbol is placed per the configured position and negative amounts carry a
// leading minus sign outside the symbol placement.
func Price(amount float64, code string, opts Options) string {
	opts = opts.normalised()
	negative := amount < 0 || math.Signbit(amount)
	formatted := FormatAmount(math.Abs(amount), opts)
	symbol := Symbol(code)

	var price string
	switch opts.Position {
	case PositionLeft:
		price = symbol + formatted
	case PositionLeftSpace:
		price = symbol + " " + formatted
	case PositionRight:
		price = formatted + symbol
	case PositionRightSpace:
		price = formatted + " " + symbol
	}
	if negative {
		price = "-" + price
	}
	return price
}

func groupThousands(digits, sep string) string {
	n := len(digits)
	if n <= 3 {
		return digits
	}
	var b strings.Builder
	first := n % 3
	if first > 0 {
		b.WriteString(digits[:first])
	}
	for i := first; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteString(sep)
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
