package view

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/cartstore/internal/domain"
)

// DefaultCurrencySymbol используется, если символ валюты не задан.
const DefaultCurrencySymbol = "€"

// FormatPrice форматирует сумму в европейском стиле: "1.234,56 €".
func FormatPrice(amount decimal.Decimal, symbol string) string {
	if symbol == "" {
		symbol = DefaultCurrencySymbol
	}

	fixed := domain.RoundMinor(amount).StringFixed(domain.MinorUnitScale)
	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign = "-"
		fixed = fixed[1:]
	}

	intPart, fracPart, _ := strings.Cut(fixed, ".")
	return sign + groupThousands(intPart) + "," + fracPart + " " + symbol
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}

	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
