// Package common содержит общие утилиты, используемые во всём проекте.
// Сюда входят: работа с часовым поясом, проверка CPF, нормализация ключей PIX.
package common

import (
	"context"
	"strings"
	"time"
)

// DefaultTimezone — часовой пояс, в котором оператор видит extratos.
const DefaultTimezone = "America/Sao_Paulo"

// LoadLocation загружает часовой пояс по имени.
// Если tzdata недоступна (минимальный контейнер) — используем UTC-3 вручную.
func LoadLocation(name string) *time.Location {
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("BRT", -3*60*60)
	}
	return loc
}

// StartOfDay возвращает полночь того же дня в указанном поясе.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// FormatDateTime форматирует время как "02/01/2006 15:04" в указанном поясе.
func FormatDateTime(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("02/01/2006 15:04")
}

// OnlyDigits удаляет из строки всё, кроме цифр ("123.456.789-09" → "12345678909").
func OnlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsValidCPF проверяет CPF по контрольным цифрам.
// Принимает как маскированный, так и «чистый» ввод.
//
// Правила:
//   - ровно 11 цифр;
//   - все цифры одинаковые (111.111.111-11) — невалидно;
//   - 10-я и 11-я цифры совпадают с рассчитанными по модулю 11.
func IsValidCPF(cpf string) bool {
	cpf = OnlyDigits(cpf)
	if len(cpf) != 11 {
		return false
	}
	if strings.Count(cpf, cpf[:1]) == 11 {
		return false
	}

	digit := func(n int) int {
		sum := 0
		for i := 0; i < n; i++ {
			sum += int(cpf[i]-'0') * (n + 1 - i)
		}
		r := (sum * 10) % 11
		if r == 10 {
			r = 0
		}
		return r
	}

	return digit(9) == int(cpf[9]-'0') && digit(10) == int(cpf[10]-'0')
}

// Типы ключей PIX
const (
	KeyTypeCPF    = "cpf"
	KeyTypeEmail  = "email"
	KeyTypePhone  = "phone"
	KeyTypeRandom = "random"
)

// NormalizeKeyType приводит тип ключа PIX к каноническому виду.
// Поддерживает старые написания из формы: "telefone" → "phone", "aleatoria" → "random".
// Пустая строка допустима (ключ не указан). Второе значение false — тип неизвестен.
func NormalizeKeyType(t string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "":
		return "", true
	case "cpf":
		return KeyTypeCPF, true
	case "email", "e-mail":
		return KeyTypeEmail, true
	case "phone", "telefone", "celular":
		return KeyTypePhone, true
	case "random", "aleatoria", "aleatória", "evp":
		return KeyTypeRandom, true
	default:
		return "", false
	}
}

type ctxKey string

const requestIDKey ctxKey = "request_id"

// WithRequestID сохраняет id запроса в контексте (для корреляции логов).
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID возвращает id запроса из контекста или пустую строку.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
