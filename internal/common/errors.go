// Package common — errors.go определяет ошибки, общие для всех модулей.
// Обработчики различают типы проблем через errors.Is, а HTTP-слой
// переводит каждую ошибку в статус и стабильный машинный код.
package common

import (
	"errors"
	"fmt"
)

// Ошибки входных данных и доступа
var (
	// ErrInvalidInput — не хватает полей или они некорректны
	ErrInvalidInput = errors.New("некорректные входные данные")
	// ErrBelowMinimum — сумма платежа ниже минимальной (R$ 10,00)
	ErrBelowMinimum = errors.New("сумма ниже минимальной")
	// ErrUnauthorized — нет сессии, сессия истекла или неверный X-APP-KEY
	ErrUnauthorized = errors.New("требуется авторизация")
	// ErrForbidden — сессия есть, но CSRF-токен отсутствует или не совпадает
	ErrForbidden = errors.New("неверный CSRF-токен")
	// ErrInvalidCredentials — неверный логин или пароль
	ErrInvalidCredentials = errors.New("неверный логин или пароль")
	// ErrTooManyAttempts — слишком много попыток входа с одного адреса
	ErrTooManyAttempts = errors.New("слишком много попыток, подождите")
)

// Ошибки поиска и бизнес-правил
var (
	// ErrNotFound — запись (banca, pagamento) не найдена
	ErrNotFound = errors.New("запись не найдена")
	// ErrTokenNotFound — токен платежа неизвестен, истёк или уже использован
	ErrTokenNotFound = errors.New("токен не найден")
	// ErrNotCompleted — провайдер ещё не подтвердил оплату
	ErrNotCompleted = errors.New("оплата ещё не завершена")
	// ErrAmountMismatch — заявленная сумма не совпадает с суммой у провайдера
	ErrAmountMismatch = errors.New("сумма не совпадает с оплаченной")
	// ErrConflict — нарушение уникальности (повторная запись того же платежа)
	ErrConflict = errors.New("конфликт состояния")
)

// Ошибки внешних систем
var (
	// ErrUpstream — провайдер PIX недоступен или ответил ошибкой
	ErrUpstream = errors.New("ошибка провайдера PIX")
	// ErrUpstreamData — провайдер вернул данные, которые нельзя проверить
	ErrUpstreamData = errors.New("некорректные данные провайдера PIX")
	// ErrStorage — сбой транзакции хранилища
	ErrStorage = errors.New("ошибка хранилища")
)

// InvalidInput оборачивает ErrInvalidInput понятным описанием поля.
func InvalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// Storage оборачивает сбой хранилища, сохраняя исходную ошибку в цепочке.
func Storage(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
