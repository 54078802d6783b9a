// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package txn

import (
	"context"
	"fmt"
	"strings"
)

// Conn is a database session owned exclusively by one Transaction.
type Conn interface {
	// Exec runs a statement that returns no rows.
	Exec(ctx context.Context, query string) error
	// Query runs a statement and returns its rows formatted with FormatDatum.
	Query(ctx context.Context, query string) ([][]string, error)
	// Warnings returns the warnings the session reported for the last
	// statement. Sessions without warning support return nil.
	Warnings(ctx context.Context) ([][]string, error)
	Close() error
}

// ReservedPrefix starts the names of the oracle's scratch tables. Tables
// named with it are never user tables.
const ReservedPrefix = "_txo_"

// Table describes a base table as seen by schema reflection.
type Table struct {
	Name    string
	Columns []string
}

// Database is the schema reflection and full-scan capability over the
// database under test.
type Database interface {
	// Tables returns the user tables in a stable order.
	Tables(ctx context.Context) ([]Table, error)
	// Scan returns every row of table, in table column order.
	Scan(ctx context.Context, table Table) ([][]any, error)
}

// Transaction is an ordered list of statements run on one dedicated
// connection.
type Transaction struct {
	ID         int
	Statements []*Statement
	Conn       Conn
}

// NewTransaction builds a transaction from statement texts. Every statement
// shares the expected error set.
func NewTransaction(id int, conn Conn, queries []string, expected ErrorSet) (*Transaction, error) {
	t := &Transaction{ID: id, Conn: conn}
	for i, q := range queries {
		s, err := NewStatement(t, i, q, expected)
		if err != nil {
			return nil, err
		}
		t.Statements = append(t.Statements, s)
	}
	return t, nil
}

// Close closes the transaction's connection.
func (t *Transaction) Close() error {
	if t.Conn == nil {
		return nil
	}
	return t.Conn.Close()
}

func (t *Transaction) String() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Transaction{%d}:", t.ID)
	for _, s := range t.Statements {
		fmt.Fprintf(&buf, "\n  %s", s)
	}
	return buf.String()
}

// Schedule is an interleaving of the statements of several transactions which
// preserves the order of statements within each transaction.
type Schedule []*Statement

// String renders the schedule as a list of statement ids.
func (s Schedule) String() string {
	ids := make([]string, len(s))
	for i, stmt := range s {
		ids[i] = stmt.ID()
	}
	return "[" + strings.Join(ids, ", ") + "]"
}

// TxnOrder renders the schedule as the "-" joined sequence of transaction ids
// used by reproduction cases.
func (s Schedule) TxnOrder() string {
	ids := make([]string, len(s))
	for i, stmt := range s {
		ids[i] = fmt.Sprint(stmt.Txn().ID)
	}
	return strings.Join(ids, "-")
}

// Equal returns whether both schedules reference the same statements in the
// same order.
func (s Schedule) Equal(o Schedule) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}
