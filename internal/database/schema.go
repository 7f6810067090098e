package database

import "fmt"

// InitSchema creates all tables if they don't exist. Accounts own every
// other row transitively; the cascade rules below implement account
// deletion without application-level cleanup.
func InitSchema(db *DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id               TEXT PRIMARY KEY,
			name             TEXT NOT NULL,
			cash_balance     TEXT NOT NULL DEFAULT '0',
			cashflow_reserve TEXT NOT NULL DEFAULT '0',
			created_at       INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS underlyings (
			id               TEXT PRIMARY KEY,
			account_id       TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			symbol           TEXT NOT NULL,
			current_price    TEXT,
			price_updated_at INTEGER,
			created_at       INTEGER NOT NULL,
			UNIQUE (account_id, symbol)
		)`,
		`CREATE TABLE IF NOT EXISTS strategy_cycles (
			id            TEXT PRIMARY KEY,
			account_id    TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			underlying_id TEXT NOT NULL REFERENCES underlyings(id) ON DELETE CASCADE,
			status        TEXT NOT NULL DEFAULT 'OPEN',
			opened_at     INTEGER NOT NULL,
			finalized_at  INTEGER,
			realized_pnl  TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cycles_underlying_status
			ON strategy_cycles(underlying_id, status)`,
		`CREATE TABLE IF NOT EXISTS option_legs (
			id             TEXT PRIMARY KEY,
			cycle_id       TEXT NOT NULL REFERENCES strategy_cycles(id) ON DELETE CASCADE,
			call_put       TEXT NOT NULL,
			strike         TEXT NOT NULL,
			expiration     INTEGER NOT NULL,
			quantity       INTEGER NOT NULL,
			open_contracts INTEGER NOT NULL,
			status         TEXT NOT NULL DEFAULT 'OPEN',
			opened_at      INTEGER NOT NULL,
			closed_at      INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS stock_lots (
			id            TEXT PRIMARY KEY,
			account_id    TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			underlying_id TEXT NOT NULL REFERENCES underlyings(id) ON DELETE CASCADE,
			cycle_id      TEXT REFERENCES strategy_cycles(id) ON DELETE SET NULL,
			open_quantity INTEGER NOT NULL,
			remaining     INTEGER NOT NULL,
			cost_basis    TEXT NOT NULL,
			opened_at     INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_lots_underlying_remaining
			ON stock_lots(underlying_id, remaining)`,
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			id          TEXT PRIMARY KEY,
			account_id  TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			cycle_id    TEXT REFERENCES strategy_cycles(id) ON DELETE SET NULL,
			entry_type  TEXT NOT NULL,
			amount      TEXT NOT NULL,
			occurred_at INTEGER NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at  INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_account_occurred
			ON ledger_entries(account_id, occurred_at)`,
		`CREATE TABLE IF NOT EXISTS reinvest_signals (
			id             TEXT PRIMARY KEY,
			account_id     TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			cycle_id       TEXT UNIQUE REFERENCES strategy_cycles(id) ON DELETE CASCADE,
			amount         TEXT NOT NULL,
			status         TEXT NOT NULL DEFAULT 'PENDING',
			partial_amount TEXT,
			notes          TEXT NOT NULL DEFAULT '',
			created_at     INTEGER NOT NULL,
			resolved_at    INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS wheel_targets (
			account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			category   TEXT NOT NULL,
			target_pct TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (account_id, category)
		)`,
		`CREATE TABLE IF NOT EXISTS wheel_classifications (
			account_id    TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			underlying_id TEXT NOT NULL REFERENCES underlyings(id) ON DELETE CASCADE,
			category      TEXT NOT NULL,
			updated_at    INTEGER NOT NULL,
			PRIMARY KEY (account_id, underlying_id)
		)`,
		`CREATE TABLE IF NOT EXISTS wheel_snapshots (
			account_id TEXT PRIMARY KEY REFERENCES accounts(id) ON DELETE CASCADE,
			payload    BLOB NOT NULL,
			taken_at   INTEGER NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	return nil
}
