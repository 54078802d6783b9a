// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package infer

import (
	"context"

	"github.com/cockroachdb/txnoracle/pkg/txnoracle/txn"
)

// Columns the oracle adds to scratch tables.
const (
	// RowIDColumn carries the synthetic row id. Rows inserted by a replayed
	// statement have it NULL.
	RowIDColumn = txn.ReservedPrefix + "rid"
	// MarkerColumn is set to 1 by a rewritten UPDATE on every row it touches.
	MarkerColumn = txn.ReservedPrefix + "upd"
)

// Sandbox executes replayed statements against scratch tables in the
// database under test. Only tables named with txn.ReservedPrefix are ever
// created, modified or dropped through it.
type Sandbox interface {
	// Reset drops every scratch table.
	Reset(ctx context.Context) error
	// CreateTable creates an empty table with the schema of like, including
	// its keys.
	CreateTable(ctx context.Context, name string, like txn.Table) error
	// AddIntColumn adds an integer column defaulting to 0 when zeroDefault is
	// set and to NULL otherwise.
	AddIntColumn(ctx context.Context, table, column string, zeroDefault bool) error
	// Load inserts rows whose values are listed in columns order.
	Load(ctx context.Context, table string, columns []string, rows [][]any) error
	// Rows returns every row of table projected on columns.
	Rows(ctx context.Context, table string, columns []string) ([][]any, error)
	DropTable(ctx context.Context, name string) error

	// Exec, Query and Warnings run replayed statements. Their errors are
	// application errors of the statement.
	Exec(ctx context.Context, query string) error
	Query(ctx context.Context, query string) ([][]string, error)
	// Warnings returns the warnings of the last Exec or Query. An error is a
	// bookkeeping failure.
	Warnings(ctx context.Context) ([][]string, error)
}
