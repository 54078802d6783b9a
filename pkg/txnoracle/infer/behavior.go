// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package infer

// AbortMode is how a transaction behaves after the database aborted it.
type AbortMode int

const (
	// AbortAutoCommit runs every later statement as its own auto-committed
	// transaction; COMMIT and ROLLBACK are no-ops. MySQL and its relatives
	// behave like this after a deadlock.
	AbortAutoCommit AbortMode = iota
	// AbortErrorUntilEnd fails every later statement until COMMIT or
	// ROLLBACK ends the transaction, as PostgreSQL does.
	AbortErrorUntilEnd
)

// Behavior captures the dialect-specific parts of the inference.
type Behavior struct {
	Abort AbortMode
	// AbortedTxnError is the error text of statements issued in an aborted
	// transaction under AbortErrorUntilEnd.
	AbortedTxnError string
	// AbortOnError aborts a transaction on any statement error, not only on
	// deadlocks.
	AbortOnError bool
	// ParseStatements enables rewriting statements on the MySQL syntax tree.
	ParseStatements bool
}

// MySQLBehavior is the behavior of MySQL, MariaDB and TiDB.
var MySQLBehavior = Behavior{
	Abort:           AbortAutoCommit,
	ParseStatements: true,
}

// PostgresBehavior is the behavior of PostgreSQL and CockroachDB.
var PostgresBehavior = Behavior{
	Abort:           AbortErrorUntilEnd,
	AbortedTxnError: "current transaction is aborted, commands ignored until end of transaction block",
	AbortOnError:    true,
}
