// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package sqldb

import (
	"context"
	gosql "database/sql"
	"strings"

	"github.com/cockroachdb/cockroach-go/v2/crdb"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle/infer"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle/txn"
)

// Sandbox manages the oracle's scratch tables. Replayed statements run on a
// dedicated session so that warnings refer to them; bookkeeping uses the
// pool.
type Sandbox struct {
	db   *DB
	conn *Conn
}

var _ infer.Sandbox = (*Sandbox)(nil)

// Sandbox opens a sandbox. It must be closed after use.
func (d *DB) Sandbox(ctx context.Context) (*Sandbox, error) {
	c, err := d.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return &Sandbox{db: d, conn: c.(*Conn)}, nil
}

// Close releases the sandbox session.
func (s *Sandbox) Close() error {
	return s.conn.Close()
}

// Reset drops every table with the reserved prefix.
func (s *Sandbox) Reset(ctx context.Context) error {
	names, err := s.db.tableNames(ctx)
	if err != nil {
		return errors.Wrap(err, "listing tables")
	}
	for _, n := range names {
		if strings.HasPrefix(n, txn.ReservedPrefix) {
			if err := s.DropTable(ctx, n); err != nil {
				return err
			}
		}
	}
	return nil
}

// CreateTable implements infer.Sandbox.
func (s *Sandbox) CreateTable(ctx context.Context, name string, like txn.Table) error {
	return s.db.Exec(ctx, s.db.dialect.CreateTableLike(name, like.Name))
}

// AddIntColumn implements infer.Sandbox.
func (s *Sandbox) AddIntColumn(ctx context.Context, table, column string, zeroDefault bool) error {
	return s.db.Exec(ctx, s.db.dialect.AddIntColumn(table, column, zeroDefault))
}

// Load implements infer.Sandbox. Batches are inserted in one transaction,
// retried on serialization failures.
func (s *Sandbox) Load(ctx context.Context, table string, columns []string, rows [][]any) error {
	return crdb.ExecuteTx(ctx, s.db.db, nil /* txopts */, func(tx *gosql.Tx) error {
		return insertRows(ctx, tx, s.db.dialect, table, columns, rows)
	})
}

// Rows implements infer.Sandbox.
func (s *Sandbox) Rows(ctx context.Context, table string, columns []string) ([][]any, error) {
	return selectAll(ctx, s.db.db, s.db.dialect, table, columns)
}

// DropTable implements infer.Sandbox.
func (s *Sandbox) DropTable(ctx context.Context, name string) error {
	return s.db.Exec(ctx, s.db.dialect.DropTable(name))
}

// Exec implements infer.Sandbox.
func (s *Sandbox) Exec(ctx context.Context, query string) error {
	return s.conn.Exec(ctx, query)
}

// Query implements infer.Sandbox.
func (s *Sandbox) Query(ctx context.Context, query string) ([][]string, error) {
	return s.conn.Query(ctx, query)
}

// Warnings implements infer.Sandbox.
func (s *Sandbox) Warnings(ctx context.Context) ([][]string, error) {
	return s.conn.Warnings(ctx)
}
