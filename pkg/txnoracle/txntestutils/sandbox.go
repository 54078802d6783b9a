// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package txntestutils

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle/txn"
)

// MemSandbox manages scratch tables inside a MemDB. Its statements bypass
// the isolation mode.
type MemSandbox struct {
	db   *MemDB
	conn *MemConn
}

// Sandbox returns a scratch-table manager for db.
func (db *MemDB) Sandbox() *MemSandbox {
	return &MemSandbox{db: db, conn: &MemConn{db: db, noLocks: true}}
}

// Reset drops every table with the reserved prefix.
func (s *MemSandbox) Reset(context.Context) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, name := range append([]string(nil), s.db.mu.order...) {
		if strings.HasPrefix(name, txn.ReservedPrefix) {
			s.db.dropTableLocked(name)
		}
	}
	return nil
}

// CreateTable creates an empty table with the columns of like.
func (s *MemSandbox) CreateTable(_ context.Context, name string, like txn.Table) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.mu.tables[strings.ToLower(name)]; ok {
		return errors.Newf("Table '%s' already exists", name)
	}
	s.db.createTableLocked(name, like.Columns)
	return nil
}

// AddIntColumn appends an integer column, defaulting to 0 when zeroDefault
// is set and to NULL otherwise.
func (s *MemSandbox) AddIntColumn(_ context.Context, table, column string, zeroDefault bool) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	t, err := s.db.tableLocked(table)
	if err != nil {
		return err
	}
	var def any
	if zeroDefault {
		def = int64(0)
	}
	t.columns = append(t.columns, column)
	t.defaults = append(t.defaults, def)
	for i := range t.rows {
		t.rows[i] = append(t.rows[i], def)
	}
	return nil
}

// Load appends rows whose values are given in columns order.
func (s *MemSandbox) Load(_ context.Context, table string, columns []string, rows [][]any) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	t, err := s.db.tableLocked(table)
	if err != nil {
		return err
	}
	idx := make([]int, len(columns))
	for i, c := range columns {
		if idx[i], err = t.column(c); err != nil {
			return err
		}
	}
	for _, r := range rows {
		if len(r) != len(columns) {
			return errors.Newf("row has %d values, want %d", len(r), len(columns))
		}
		row := append([]any(nil), t.defaults...)
		for i, v := range r {
			row[idx[i]] = v
		}
		t.rows = append(t.rows, row)
	}
	return nil
}

// Rows returns the rows of a table projected on columns.
func (s *MemSandbox) Rows(_ context.Context, table string, columns []string) ([][]any, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	t, err := s.db.tableLocked(table)
	if err != nil {
		return nil, err
	}
	idx := make([]int, len(columns))
	for i, c := range columns {
		if idx[i], err = t.column(c); err != nil {
			return nil, err
		}
	}
	res := make([][]any, len(t.rows))
	for i, row := range t.rows {
		res[i] = make([]any, len(idx))
		for j, k := range idx {
			res[i][j] = row[k]
		}
	}
	return res, nil
}

// DropTable drops a table if it exists.
func (s *MemSandbox) DropTable(_ context.Context, name string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.dropTableLocked(name)
	return nil
}

// Exec runs a statement on the scratch tables.
func (s *MemSandbox) Exec(ctx context.Context, query string) error {
	return s.conn.Exec(ctx, query)
}

// Query runs a query on the scratch tables.
func (s *MemSandbox) Query(ctx context.Context, query string) ([][]string, error) {
	return s.conn.Query(ctx, query)
}

// Warnings returns the warnings of the last Exec or Query.
func (s *MemSandbox) Warnings(ctx context.Context) ([][]string, error) {
	return s.conn.Warnings(ctx)
}
