// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package sqldb

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle/infer"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle/txn"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// Dialect captures the SQL differences between database families.
type Dialect interface {
	Name() string
	// IsolationStmt sets the isolation level of the session's transactions.
	IsolationStmt(level txn.IsolationLevel) string
	QuoteIdent(name string) string
	// Placeholder returns the i-th (1-based) bind parameter marker.
	Placeholder(i int) string
	// CreateTableLike creates an empty copy of like, keys included.
	CreateTableLike(name, like string) string
	AddIntColumn(table, column string, zeroDefault bool) string
	DropTable(name string) string
	// ListTables selects the base tables of the current schema.
	ListTables() string
	// ListColumns selects the columns of the table given as first parameter
	// in ordinal order.
	ListColumns() string
	// ShowWarnings returns the warnings of the session's last statement, or
	// "" when the family does not report warnings.
	ShowWarnings() string
	// IsDeadlock reports whether err aborted the transaction to resolve a
	// lock conflict.
	IsDeadlock(err error) bool
	// SupportsReplace reports whether REPLACE statements are available.
	SupportsReplace() bool
	Behavior() infer.Behavior
}

// Dialects lists the supported dialect names.
var Dialects = []string{"mysql", "postgres"}

// DialectByName returns the named dialect. TiDB and MariaDB use "mysql",
// CockroachDB uses "postgres".
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "mysql", "tidb", "mariadb":
		return MySQL, nil
	case "postgres", "postgresql", "cockroach", "cockroachdb":
		return Postgres, nil
	}
	return nil, errors.Newf("unknown dialect %q (supported: %s)", name, strings.Join(Dialects, ", "))
}

var (
	// MySQL is the dialect of MySQL, MariaDB and TiDB.
	MySQL Dialect = mysqlDialect{}
	// Postgres is the dialect of PostgreSQL and CockroachDB.
	Postgres Dialect = postgresDialect{}
)

type mysqlDialect struct{}

func (mysqlDialect) Name() string { return "mysql" }

func (mysqlDialect) IsolationStmt(level txn.IsolationLevel) string {
	return "SET SESSION TRANSACTION ISOLATION LEVEL " + level.String()
}

func (mysqlDialect) QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (mysqlDialect) Placeholder(int) string { return "?" }

func (d mysqlDialect) CreateTableLike(name, like string) string {
	return fmt.Sprintf("CREATE TABLE %s LIKE %s", d.QuoteIdent(name), d.QuoteIdent(like))
}

func (d mysqlDialect) AddIntColumn(table, column string, zeroDefault bool) string {
	def := "NULL"
	if zeroDefault {
		def = "0"
	}
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s INT DEFAULT %s", d.QuoteIdent(table), d.QuoteIdent(column), def)
}

func (d mysqlDialect) DropTable(name string) string {
	return "DROP TABLE IF EXISTS " + d.QuoteIdent(name)
}

func (mysqlDialect) ListTables() string {
	return "SELECT table_name FROM information_schema.tables " +
		"WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE' ORDER BY table_name"
}

func (mysqlDialect) ListColumns() string {
	return "SELECT column_name FROM information_schema.columns " +
		"WHERE table_schema = DATABASE() AND table_name = ? ORDER BY ordinal_position"
}

func (mysqlDialect) ShowWarnings() string { return "SHOW WARNINGS" }

// ER_LOCK_DEADLOCK.
const mysqlDeadlock = 1213

func (mysqlDialect) IsDeadlock(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDeadlock
	}
	return err != nil && strings.Contains(err.Error(), "Deadlock found")
}

func (mysqlDialect) SupportsReplace() bool { return true }

func (mysqlDialect) Behavior() infer.Behavior { return infer.MySQLBehavior }

type postgresDialect struct{}

func (postgresDialect) Name() string { return "postgres" }

func (postgresDialect) IsolationStmt(level txn.IsolationLevel) string {
	return "SET SESSION CHARACTERISTICS AS TRANSACTION ISOLATION LEVEL " + level.String()
}

func (postgresDialect) QuoteIdent(name string) string {
	return pq.QuoteIdentifier(name)
}

func (postgresDialect) Placeholder(i int) string { return fmt.Sprintf("$%d", i) }

func (d postgresDialect) CreateTableLike(name, like string) string {
	return fmt.Sprintf("CREATE TABLE %s (LIKE %s INCLUDING ALL)", d.QuoteIdent(name), d.QuoteIdent(like))
}

func (d postgresDialect) AddIntColumn(table, column string, zeroDefault bool) string {
	def := "NULL"
	if zeroDefault {
		def = "0"
	}
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s INT DEFAULT %s", d.QuoteIdent(table), d.QuoteIdent(column), def)
}

func (d postgresDialect) DropTable(name string) string {
	return "DROP TABLE IF EXISTS " + d.QuoteIdent(name)
}

func (postgresDialect) ListTables() string {
	return "SELECT table_name FROM information_schema.tables " +
		"WHERE table_schema = current_schema() AND table_type = 'BASE TABLE' ORDER BY table_name"
}

func (postgresDialect) ListColumns() string {
	return "SELECT column_name FROM information_schema.columns " +
		"WHERE table_schema = current_schema() AND table_name = $1 ORDER BY ordinal_position"
}

func (postgresDialect) ShowWarnings() string { return "" }

const (
	pgDeadlockDetected     = "40P01"
	pgSerializationFailure = "40001"
)

// IsDeadlock also accepts serialization failures: both abort the
// transaction in favor of a conflicting one.
func (postgresDialect) IsDeadlock(err error) bool {
	var code string
	var pqErr *pq.Error
	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &pqErr):
		code = string(pqErr.Code)
	case errors.As(err, &pgErr):
		code = pgErr.Code
	default:
		return err != nil && strings.Contains(err.Error(), "deadlock detected")
	}
	return code == pgDeadlockDetected || code == pgSerializationFailure
}

func (postgresDialect) SupportsReplace() bool { return false }

func (postgresDialect) Behavior() infer.Behavior { return infer.PostgresBehavior }
