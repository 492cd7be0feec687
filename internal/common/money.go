// Package common — money.go содержит утилиты для денежных сумм.
// Все суммы в системе хранятся в центах (int64), плавающая точка не используется.
package common

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	hundred  = decimal.NewFromInt(100)
	maxCents = decimal.NewFromInt(math.MaxInt64)
)

// ParseDecimalCents переводит десятичную строку провайдера ("15.00") в центы.
// Округление — до ближайшего цента. Пустая или нечисловая строка — ошибка.
//
// Примеры:
//
//	ParseDecimalCents("15.00")  → 1500
//	ParseDecimalCents("49.995") → 5000
//	ParseDecimalCents("abc")    → ошибка
//	ParseDecimalCents("-1.00")  → ошибка
//
// Суммы вне диапазона int64 — ошибка, а не переполнение.
func ParseDecimalCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("пустая сумма")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("сумма %q не является числом: %w", s, err)
	}
	cents := d.Mul(hundred).Round(0)
	if cents.IsNegative() || cents.GreaterThan(maxCents) {
		return 0, fmt.Errorf("сумма %q вне допустимого диапазона", s)
	}
	return cents.IntPart(), nil
}

// FormatDecimal переводит центы в строку с двумя знаками ("1500" → "15.00").
// Такой формат ожидает провайдер в поле valor.original.
func FormatDecimal(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// FormatBRL форматирует сумму для людей: FormatBRL(123456) → "R$ 1.234,56".
func FormatBRL(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%sR$ %s,%02d", sign, FormatNumber(cents/100), cents%100)
}

// FormatNumber форматирует число с разделителями тысяч (точками).
// Пример: FormatNumber(2350) → "2.350"
func FormatNumber(n int64) string {
	if n < 0 {
		return "-" + FormatNumber(-n)
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%s.%03d", FormatNumber(n/1000), n%1000)
}
