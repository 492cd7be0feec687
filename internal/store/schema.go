package store

import "github.com/bancapix/server/internal/db/postgres"

// Migrations — схема хранилища. SQL встроен в код для упрощения деплоя.
var Migrations = []postgres.Migration{
	{Version: 1, SQL: migration001Deposits},
	{Version: 2, SQL: migration002Payouts},
	{Version: 3, SQL: migration003Ledger},
	{Version: 4, SQL: migration004LoginAttempts},
}

// Суммы везде в центах (BIGINT), никакой плавающей точки.
var migration001Deposits = `
CREATE TABLE IF NOT EXISTS deposits (
    id TEXT PRIMARY KEY,
    payer_name TEXT NOT NULL CHECK (payer_name <> ''),
    deposited_cents BIGINT NOT NULL CHECK (deposited_cents >= 0),
    adjusted_cents BIGINT,
    key_type TEXT NOT NULL DEFAULT '',
    key_value TEXT NOT NULL DEFAULT '',
    message TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_deposits_created_at ON deposits(created_at DESC);
`

var migration002Payouts = `
CREATE TABLE IF NOT EXISTS payouts (
    id TEXT PRIMARY KEY,
    payer_name TEXT NOT NULL,
    amount_cents BIGINT NOT NULL,
    key_type TEXT NOT NULL DEFAULT '',
    key_value TEXT NOT NULL DEFAULT '',
    message TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'unpaid' CHECK (status IN ('unpaid', 'paid')),
    paid_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL,
    CHECK ((status = 'paid') = (paid_at IS NOT NULL))
);
CREATE INDEX IF NOT EXISTS idx_payouts_created_at ON payouts(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_payouts_paid_at ON payouts(paid_at) WHERE status = 'paid';
`

var migration003Ledger = `
CREATE TABLE IF NOT EXISTS ledger_entries (
    id TEXT PRIMARY KEY,
    ref_id TEXT NOT NULL,
    kind TEXT NOT NULL CHECK (kind IN ('deposit', 'payout')),
    payer_name TEXT NOT NULL,
    amount_cents BIGINT NOT NULL,
    charge_ref TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_ledger_created_at ON ledger_entries(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_ledger_ref_id ON ledger_entries(ref_id);
CREATE UNIQUE INDEX IF NOT EXISTS uq_ledger_charge_ref ON ledger_entries(charge_ref) WHERE charge_ref IS NOT NULL;
`

var migration004LoginAttempts = `
CREATE TABLE IF NOT EXISTS login_attempts (
    id BIGSERIAL PRIMARY KEY,
    username TEXT NOT NULL,
    remote_ip TEXT NOT NULL,
    success BOOLEAN NOT NULL DEFAULT FALSE,
    attempted_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_login_attempts_ip ON login_attempts(remote_ip, attempted_at DESC);
`
