package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // pure Go SQLite driver
)

// CurrentVersion is the current schema version.
const CurrentVersion = 3

// OpenDB opens the SQLite database at path with WAL journaling and a
// busy timeout, matching spec §4.1/§5's ~5s coarse busy timeout.
func OpenDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return db, nil
}

// Migrate brings db up to CurrentVersion, initializing it fresh if no
// schema_version table exists yet.
func Migrate(db *sql.DB) error {
	var tableName string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&tableName)
	if err == sql.ErrNoRows {
		return initDB(db)
	}
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	current, err := schemaVersion(db)
	if err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}
	if current == 0 {
		return initDB(db)
	}
	if current == CurrentVersion {
		return nil
	}
	if current < CurrentVersion {
		return runMigrations(db, current, CurrentVersion)
	}
	return nil
}

func schemaVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query schema version: %w", err)
	}
	return version, nil
}

// initDB creates every table idempotently and stamps CurrentVersion,
// all in one transaction (teacher idiom: internal/schema.InitDB).
func initDB(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL,
			applied_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return fmt.Errorf("create version table: %w", err)
	}

	for _, stmt := range createTableStatements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	for _, stmt := range createIndexStatements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}

	if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", CurrentVersion); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}

	return tx.Commit()
}

// runMigrations applies additive-only column/table changes, never
// dropping or renaming, per spec §4.1.
func runMigrations(db *sql.DB, startVersion, endVersion int) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// v1 -> v2: agent heartbeat tracking, added after the initial cut
	// shipped without it.
	if startVersion < 2 && endVersion >= 2 {
		if _, err := tx.Exec(`ALTER TABLE agents ADD COLUMN heartbeat_at TEXT`); err != nil {
			return fmt.Errorf("add heartbeat_at column: %w", err)
		}
	}

	// v2 -> v3: agents keyed on name alone couldn't hold two
	// team-qualified agents sharing a bare name, making AmbiguousRecipient
	// unreachable. Rebuild with the agents table keyed on (team, name) —
	// SQLite has no ALTER TABLE for primary keys, so this is the one
	// exception to the additive-only rule: rename, recreate, copy, drop.
	if startVersion < 3 && endVersion >= 3 {
		if _, err := tx.Exec(`ALTER TABLE agents RENAME TO agents_v2`); err != nil {
			return fmt.Errorf("rename agents table: %w", err)
		}
		if _, err := tx.Exec(`CREATE TABLE agents (
			name             TEXT NOT NULL,
			team             TEXT NOT NULL DEFAULT '',
			role             TEXT,
			description      TEXT,
			status           TEXT,
			registered_at    TEXT NOT NULL,
			last_seen_at     TEXT,
			last_inbox_check TEXT,
			heartbeat_at     TEXT,
			PRIMARY KEY (team, name)
		)`); err != nil {
			return fmt.Errorf("recreate agents table: %w", err)
		}
		if _, err := tx.Exec(`
			INSERT INTO agents (name, team, role, description, status, registered_at, last_seen_at, last_inbox_check, heartbeat_at)
			SELECT name, COALESCE(team, ''), role, description, status, registered_at, last_seen_at, last_inbox_check, heartbeat_at
			FROM agents_v2`); err != nil {
			return fmt.Errorf("copy agents rows: %w", err)
		}
		if _, err := tx.Exec(`DROP TABLE agents_v2`); err != nil {
			return fmt.Errorf("drop old agents table: %w", err)
		}
	}

	if _, err := tx.Exec("UPDATE schema_version SET version = ?", endVersion); err != nil {
		return fmt.Errorf("bump schema version: %w", err)
	}

	return tx.Commit()
}

var createTableStatements = []string{
	`CREATE TABLE IF NOT EXISTS agents (
		name             TEXT NOT NULL,
		team             TEXT NOT NULL DEFAULT '',
		role             TEXT,
		description      TEXT,
		status           TEXT,
		registered_at    TEXT NOT NULL,
		last_seen_at     TEXT,
		last_inbox_check TEXT,
		heartbeat_at     TEXT,
		PRIMARY KEY (team, name)
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		sender         TEXT NOT NULL,
		recipient      TEXT NOT NULL,
		body           TEXT NOT NULL,
		created_at     TEXT NOT NULL,
		read_flag      INTEGER NOT NULL DEFAULT 0,
		is_cc          INTEGER NOT NULL DEFAULT 0,
		cc_original_to TEXT,
		task_id        TEXT,
		reply_to       INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS broadcast_reads (
		reader     TEXT NOT NULL,
		message_id INTEGER NOT NULL,
		read_at    TEXT NOT NULL,
		PRIMARY KEY (reader, message_id)
	)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		id           TEXT PRIMARY KEY,
		project      TEXT,
		title        TEXT NOT NULL,
		description  TEXT,
		assigned_to  TEXT,
		created_by   TEXT NOT NULL,
		status       TEXT NOT NULL,
		result       TEXT,
		created_at   TEXT NOT NULL,
		updated_at   TEXT NOT NULL,
		completed_at TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS handshakes (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		initiator    TEXT NOT NULL,
		message_id   INTEGER NOT NULL,
		created_at   TEXT NOT NULL,
		status       TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS handshake_acks (
		handshake_id INTEGER NOT NULL,
		acker        TEXT NOT NULL,
		acked_at     TEXT NOT NULL,
		PRIMARY KEY (handshake_id, acker)
	)`,
	`CREATE TABLE IF NOT EXISTS contracts (
		project    TEXT NOT NULL DEFAULT '',
		name       TEXT NOT NULL,
		kind       TEXT NOT NULL,
		owner      TEXT NOT NULL,
		spec       TEXT NOT NULL,
		version    INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (project, name, kind)
	)`,
	`CREATE TABLE IF NOT EXISTS spawn_policy (
		scope     TEXT PRIMARY KEY,
		enabled   INTEGER NOT NULL,
		max       INTEGER NOT NULL,
		set_by    TEXT,
		set_at    TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS minion_log (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		pilot        TEXT NOT NULL,
		description  TEXT,
		status       TEXT NOT NULL,
		spawned_at   TEXT NOT NULL,
		completed_at TEXT,
		result       TEXT
	)`,
}

var createIndexStatements = []string{
	`CREATE INDEX IF NOT EXISTS idx_messages_recipient ON messages(recipient, read_flag)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_task ON messages(task_id)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,
	`CREATE INDEX IF NOT EXISTS idx_handshake_acks_handshake ON handshake_acks(handshake_id)`,
	`CREATE INDEX IF NOT EXISTS idx_minion_log_pilot_status ON minion_log(pilot, status)`,
}
