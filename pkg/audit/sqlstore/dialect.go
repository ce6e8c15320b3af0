package sqlstore

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

const (
	sqliteDriverName = "sqlite3_fieldaudit"

	// sqliteLowerFunc folds the full Unicode range. SQLite's LOWER only folds ASCII.
	sqliteLowerFunc = "fold_lower"
)

func init() {
	sql.Register(sqliteDriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc(sqliteLowerFunc, strings.ToLower, true)
		},
	})
}

// Dialect is a supported SQL flavour
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite3"
)

// ParseDialect maps a driver name to a Dialect
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres", "postgresql", "pq":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return "", fmt.Errorf("unsupported sql driver %q", driver)
}

// DriverName returns the database/sql driver registered for d. SQLite uses
// a driver that also installs the Unicode lower-casing function.
func (d Dialect) DriverName() string {
	if d == SQLite {
		return sqliteDriverName
	}
	return string(d)
}

// lower returns the case-folding SQL function matching strings.ToLower
func (d Dialect) lower() string {
	if d == SQLite {
		return sqliteLowerFunc
	}
	return "LOWER"
}

// placeholder returns the nth (1-based) bind parameter
func (d Dialect) placeholder(n int) string {
	if d == Postgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (d Dialect) schema() string {
	idColumn := "id BIGSERIAL PRIMARY KEY"
	if d == SQLite {
		idColumn = "id INTEGER PRIMARY KEY AUTOINCREMENT"
	}

	return `
	CREATE TABLE IF NOT EXISTS audit_logs (
		` + idColumn + `,
		occurred_at BIGINT NOT NULL,
		actor_id VARCHAR(255) NOT NULL DEFAULT '',
		actor_email VARCHAR(255) NOT NULL,
		actor_name VARCHAR(255) NOT NULL DEFAULT '',
		action VARCHAR(20) NOT NULL,
		entity_type VARCHAR(50) NOT NULL,
		entity_id VARCHAR(255) NOT NULL DEFAULT '',
		changes TEXT,
		old_values TEXT,
		new_values TEXT,
		description TEXT NOT NULL DEFAULT '',
		severity VARCHAR(20) NOT NULL,
		ip_address VARCHAR(45) NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		endpoint TEXT NOT NULL DEFAULT '',
		http_method VARCHAR(10) NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_audit_logs_occurred_at ON audit_logs(occurred_at DESC);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_actor_id ON audit_logs(actor_id);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_entity ON audit_logs(entity_type, entity_id);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_action ON audit_logs(action);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_severity ON audit_logs(severity);
	`
}
