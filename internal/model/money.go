package model

import (
	"fmt"
	"math"
)

// FormatUSD форматирует сумму в центах как "$1,234.56".
func FormatUSD(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}

	dollars := cents / 100
	rest := cents % 100

	s := fmt.Sprintf("%d", dollars)
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}

	return fmt.Sprintf("%s$%s.%02d", sign, s, rest)
}

// PercentOf возвращает процент от суммы в центах с округлением до цента.
func PercentOf(cents int64, percent float64) int64 {
	return int64(math.Round(float64(cents) * percent / 100))
}

// CentsToDollars переводит центы в доллары для JSON-ответов.
func CentsToDollars(cents int64) float64 {
	return float64(cents) / 100
}

// DollarsToCents переводит сумму в долларах в центы с округлением.
func DollarsToCents(v float64) int64 {
	return int64(math.Round(v * 100))
}
