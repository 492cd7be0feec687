package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bancapix/server/internal/common"
)

// PostgresStore — реализация Store поверх pgxpool.
// Каждый переход между стадиями — одна транзакция с SELECT ... FOR UPDATE
// по исходной строке: второй конкурентный переход того же id ждёт
// фиксации первого и получает ErrNotFound.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgres создаёт хранилище поверх готового пула.
func NewPostgres(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

const uniqueViolation = "23505"

// wrapErr переводит ошибки pgx в ошибки домена.
func wrapErr(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return common.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", common.ErrConflict, pgErr.ConstraintName)
	}
	return common.Storage(op, err)
}

const depositColumns = `id, payer_name, deposited_cents, adjusted_cents, key_type, key_value, message, created_at`

func scanDeposit(row pgx.Row) (*Deposit, error) {
	var d Deposit
	err := row.Scan(&d.ID, &d.PayerName, &d.DepositedCents, &d.AdjustedCents,
		&d.KeyType, &d.KeyValue, &d.Message, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

const payoutColumns = `id, payer_name, amount_cents, key_type, key_value, message, status, paid_at, created_at`

func scanPayout(row pgx.Row) (*Payout, error) {
	var p Payout
	err := row.Scan(&p.ID, &p.PayerName, &p.AmountCents, &p.KeyType, &p.KeyValue,
		&p.Message, &p.Status, &p.PaidAt, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func insertDeposit(ctx context.Context, q interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
}, d *Deposit) error {
	_, err := q.Exec(ctx, `
		INSERT INTO deposits (`+depositColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, d.ID, d.PayerName, d.DepositedCents, d.AdjustedCents, d.KeyType, d.KeyValue, d.Message, d.CreatedAt)
	return err
}

func insertEntry(ctx context.Context, tx pgx.Tx, e *LedgerEntry) error {
	var chargeRef *string
	if e.ChargeRef != "" {
		chargeRef = &e.ChargeRef
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO ledger_entries (id, ref_id, kind, payer_name, amount_cents, charge_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.RefID, e.Kind, e.PayerName, e.AmountCents, chargeRef, e.CreatedAt)
	return err
}

// InsertDeposit добавляет депозит, внесённый оператором.
func (s *PostgresStore) InsertDeposit(ctx context.Context, d *Deposit) error {
	if err := insertDeposit(ctx, s.db, d); err != nil {
		return wrapErr("вставка депозита", err)
	}
	return nil
}

// ConfirmDeposit записывает подтверждённый депозит и запись выписки атомарно.
func (s *PostgresStore) ConfirmDeposit(ctx context.Context, d *Deposit, chargeRef string) (*LedgerEntry, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, wrapErr("начало транзакции", err)
	}
	defer tx.Rollback(ctx)

	if err := insertDeposit(ctx, tx, d); err != nil {
		return nil, wrapErr("вставка депозита", err)
	}

	entry := &LedgerEntry{
		ID:          uuid.NewString(),
		RefID:       d.ID,
		Kind:        KindDeposit,
		PayerName:   d.PayerName,
		AmountCents: d.DepositedCents,
		ChargeRef:   chargeRef,
		CreatedAt:   d.CreatedAt,
	}
	if err := insertEntry(ctx, tx, entry); err != nil {
		return nil, wrapErr("запись выписки", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, wrapErr("фиксация депозита", err)
	}
	return entry, nil
}

func (s *PostgresStore) GetDeposit(ctx context.Context, id string) (*Deposit, error) {
	d, err := scanDeposit(s.db.QueryRow(ctx,
		`SELECT `+depositColumns+` FROM deposits WHERE id = $1`, id))
	if err != nil {
		return nil, wrapErr("получение депозита", err)
	}
	return d, nil
}

func (s *PostgresStore) ListDeposits(ctx context.Context) ([]Deposit, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+depositColumns+` FROM deposits ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, wrapErr("список депозитов", err)
	}
	defer rows.Close()

	list := make([]Deposit, 0)
	for rows.Next() {
		d, err := scanDeposit(rows)
		if err != nil {
			return nil, wrapErr("чтение депозита", err)
		}
		list = append(list, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("список депозитов", err)
	}
	return list, nil
}

func (s *PostgresStore) SetAdjustedAmount(ctx context.Context, id string, cents *int64) (*Deposit, error) {
	d, err := scanDeposit(s.db.QueryRow(ctx, `
		UPDATE deposits SET adjusted_cents = $2
		WHERE id = $1
		RETURNING `+depositColumns, id, cents))
	if err != nil {
		return nil, wrapErr("изменение суммы", err)
	}
	return d, nil
}

func (s *PostgresStore) DeleteDeposit(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM deposits WHERE id = $1`, id)
	if err != nil {
		return wrapErr("удаление депозита", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	return nil
}

// AdvanceDeposit: блокируем депозит, вставляем выплату с тем же id, удаляем депозит.
func (s *PostgresStore) AdvanceDeposit(ctx context.Context, id string, override *int64) (*Payout, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, wrapErr("начало транзакции", err)
	}
	defer tx.Rollback(ctx)

	d, err := scanDeposit(tx.QueryRow(ctx,
		`SELECT `+depositColumns+` FROM deposits WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, wrapErr("блокировка депозита", err)
	}

	p := payoutFromDeposit(d, override)
	_, err = tx.Exec(ctx, `
		INSERT INTO payouts (`+payoutColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, p.ID, p.PayerName, p.AmountCents, p.KeyType, p.KeyValue, p.Message, p.Status, p.PaidAt, p.CreatedAt)
	if err != nil {
		return nil, wrapErr("вставка выплаты", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM deposits WHERE id = $1`, id); err != nil {
		return nil, wrapErr("удаление депозита", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, wrapErr("фиксация перевода в выплаты", err)
	}
	return p, nil
}

func (s *PostgresStore) GetPayout(ctx context.Context, id string) (*Payout, error) {
	p, err := scanPayout(s.db.QueryRow(ctx,
		`SELECT `+payoutColumns+` FROM payouts WHERE id = $1`, id))
	if err != nil {
		return nil, wrapErr("получение выплаты", err)
	}
	return p, nil
}

func (s *PostgresStore) ListPayouts(ctx context.Context) ([]Payout, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+payoutColumns+` FROM payouts ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, wrapErr("список выплат", err)
	}
	defer rows.Close()

	list := make([]Payout, 0)
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, wrapErr("чтение выплаты", err)
		}
		list = append(list, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("список выплат", err)
	}
	return list, nil
}

// SetPayoutStatus меняет статус под блокировкой строки, чтобы два
// одновременных «оплачено» не создали две записи выписки.
func (s *PostgresStore) SetPayoutStatus(ctx context.Context, id string, status PayoutStatus, at time.Time) (*Payout, *LedgerEntry, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, nil, wrapErr("начало транзакции", err)
	}
	defer tx.Rollback(ctx)

	p, err := scanPayout(tx.QueryRow(ctx,
		`SELECT `+payoutColumns+` FROM payouts WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, nil, wrapErr("блокировка выплаты", err)
	}

	if p.Status == status {
		// Повторная установка того же статуса ничего не меняет
		return p, nil, nil
	}

	var entry *LedgerEntry
	switch status {
	case StatusPaid:
		p.Status = StatusPaid
		p.PaidAt = &at
		entry = &LedgerEntry{
			ID:          uuid.NewString(),
			RefID:       p.ID,
			Kind:        KindPayout,
			PayerName:   p.PayerName,
			AmountCents: p.AmountCents,
			CreatedAt:   at,
		}
		if err := insertEntry(ctx, tx, entry); err != nil {
			return nil, nil, wrapErr("запись выписки", err)
		}
	case StatusUnpaid:
		p.Status = StatusUnpaid
		p.PaidAt = nil
	default:
		return nil, nil, common.InvalidInput("неизвестный статус %q", status)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE payouts SET status = $2, paid_at = $3 WHERE id = $1`,
		p.ID, p.Status, p.PaidAt,
	); err != nil {
		return nil, nil, wrapErr("изменение статуса", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, wrapErr("фиксация статуса", err)
	}
	return p, entry, nil
}

// RevertPayout: блокируем выплату, возвращаем депозит с тем же id, удаляем выплату.
func (s *PostgresStore) RevertPayout(ctx context.Context, id string) (*Deposit, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, wrapErr("начало транзакции", err)
	}
	defer tx.Rollback(ctx)

	p, err := scanPayout(tx.QueryRow(ctx,
		`SELECT `+payoutColumns+` FROM payouts WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, wrapErr("блокировка выплаты", err)
	}

	d := depositFromPayout(p)
	if err := insertDeposit(ctx, tx, d); err != nil {
		return nil, wrapErr("вставка депозита", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM payouts WHERE id = $1`, id); err != nil {
		return nil, wrapErr("удаление выплаты", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, wrapErr("фиксация возврата", err)
	}
	return d, nil
}

func (s *PostgresStore) DeletePayout(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM payouts WHERE id = $1`, id)
	if err != nil {
		return wrapErr("удаление выплаты", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ArchivePayout(ctx context.Context, id string, cutoff time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM payouts
		WHERE id = $1 AND status = 'paid' AND paid_at <= $2
	`, id, cutoff)
	if err != nil {
		return false, wrapErr("архивация выплаты", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) ArchivePaidPayouts(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		DELETE FROM payouts
		WHERE status = 'paid' AND paid_at <= $1
		RETURNING id
	`, cutoff)
	if err != nil {
		return nil, wrapErr("архивация выплат", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, wrapErr("архивация выплат", err)
	}
	return ids, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (s *PostgresStore) ListLedger(ctx context.Context, f LedgerFilter) ([]LedgerEntry, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Kind != "" {
		add("kind = $%d", f.Kind)
	}
	if name := strings.TrimSpace(f.Name); name != "" {
		add("payer_name ILIKE '%%' || $%d || '%%'", likeEscaper.Replace(name))
	}
	if !f.From.IsZero() {
		add("created_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("created_at < $%d", f.To)
	}

	query := `SELECT id, ref_id, kind, payer_name, amount_cents, COALESCE(charge_ref, ''), created_at FROM ledger_entries`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, f.EffectiveLimit())
	query += fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d", len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("выписка", err)
	}
	defer rows.Close()

	list := make([]LedgerEntry, 0)
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.ID, &e.RefID, &e.Kind, &e.PayerName, &e.AmountCents, &e.ChargeRef, &e.CreatedAt); err != nil {
			return nil, wrapErr("чтение выписки", err)
		}
		list = append(list, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("выписка", err)
	}
	return list, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return common.Storage("ping", err)
	}
	return nil
}
