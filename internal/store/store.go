package store

import (
	"context"
	"time"
)

// Store — операции над тремя наборами данных и атомарные переходы между стадиями.
//
// Ошибки: common.ErrNotFound (нет записи), common.ErrConflict (нарушение
// уникальности), common.ErrStorage (сбой транзакции, частичных изменений нет).
type Store interface {
	// InsertDeposit добавляет депозит, внесённый оператором вручную.
	InsertDeposit(ctx context.Context, d *Deposit) error
	// ConfirmDeposit одной транзакцией добавляет депозит и запись выписки kind=deposit.
	// chargeRef уникален: повторная запись того же платежа даёт ErrConflict.
	ConfirmDeposit(ctx context.Context, d *Deposit, chargeRef string) (*LedgerEntry, error)
	GetDeposit(ctx context.Context, id string) (*Deposit, error)
	// ListDeposits — по убыванию createdAt.
	ListDeposits(ctx context.Context) ([]Deposit, error)
	// SetAdjustedAmount задаёт (или сбрасывает при nil) исправленную сумму.
	SetAdjustedAmount(ctx context.Context, id string, cents *int64) (*Deposit, error)
	DeleteDeposit(ctx context.Context, id string) error
	// AdvanceDeposit переносит депозит в выплаты (status=unpaid) с тем же id.
	// override, если задан и не отрицателен, заменяет рассчитанную сумму.
	AdvanceDeposit(ctx context.Context, id string, override *int64) (*Payout, error)

	GetPayout(ctx context.Context, id string) (*Payout, error)
	// ListPayouts — по убыванию createdAt.
	ListPayouts(ctx context.Context) ([]Payout, error)
	// SetPayoutStatus меняет статус выплаты. Запись выписки создаётся и
	// возвращается только на переходе unpaid→paid; иначе entry == nil.
	SetPayoutStatus(ctx context.Context, id string, status PayoutStatus, at time.Time) (*Payout, *LedgerEntry, error)
	// RevertPayout возвращает выплату в депозиты (сумма выплаты становится
	// и depositoCents, и bancaCents).
	RevertPayout(ctx context.Context, id string) (*Deposit, error)
	DeletePayout(ctx context.Context, id string) error
	// ArchivePayout удаляет выплату, только если она оплачена не позже cutoff.
	// false без ошибки — выплаты уже нет или она не подходит.
	ArchivePayout(ctx context.Context, id string, cutoff time.Time) (bool, error)
	// ArchivePaidPayouts удаляет все оплаченные не позже cutoff выплаты.
	ArchivePaidPayouts(ctx context.Context, cutoff time.Time) ([]string, error)

	// ListLedger — выписка по фильтру, по убыванию createdAt.
	ListLedger(ctx context.Context, f LedgerFilter) ([]LedgerEntry, error)

	Ping(ctx context.Context) error
}
