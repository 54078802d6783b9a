// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package sqldb connects the oracle to a live database through
// database/sql. It provides schema reflection, full scans and restores,
// dedicated per-transaction connections, and the scratch-table sandbox the
// oracle replays statements in.
package sqldb

import (
	"context"
	gosql "database/sql"
	"strings"

	"github.com/cockroachdb/cockroach-go/v2/crdb"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle/txn"
	"github.com/cockroachdb/txnoracle/pkg/util/log"

	// Registered drivers.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
)

// Drivers lists the database/sql drivers Open accepts.
var Drivers = []string{"mysql", "postgres", "pgx"}

// loadBatchSize bounds the rows per INSERT when loading a table.
const loadBatchSize = 100

// DB is a database under test.
type DB struct {
	db      *gosql.DB
	dialect Dialect
}

var _ txn.Database = (*DB)(nil)

// Open connects to dsn with the named driver and checks the connection.
func Open(ctx context.Context, driver, dsn string, dialect Dialect) (*DB, error) {
	known := false
	for _, d := range Drivers {
		known = known || d == driver
	}
	if !known {
		return nil, errors.Newf("unsupported driver %q (supported: %s)", driver, strings.Join(Drivers, ", "))
	}
	db, err := gosql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s database", driver)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "connecting to %s database", driver)
	}
	log.Infof(ctx, "connected to %s database (%s dialect)", driver, dialect.Name())
	return &DB{db: db, dialect: dialect}, nil
}

// Dialect returns the dialect the database was opened with.
func (d *DB) Dialect() Dialect { return d.dialect }

// SQL returns the underlying connection pool.
func (d *DB) SQL() *gosql.DB { return d.db }

// Close closes the connection pool.
func (d *DB) Close() error { return d.db.Close() }

// Tables implements txn.Database. Tables with the reserved prefix are
// omitted.
func (d *DB) Tables(ctx context.Context) ([]txn.Table, error) {
	names, err := d.tableNames(ctx)
	if err != nil {
		return nil, err
	}
	var tables []txn.Table
	for _, n := range names {
		if strings.HasPrefix(n, txn.ReservedPrefix) {
			continue
		}
		cols, err := d.columns(ctx, n)
		if err != nil {
			return nil, err
		}
		tables = append(tables, txn.Table{Name: n, Columns: cols})
	}
	return tables, nil
}

func (d *DB) tableNames(ctx context.Context) ([]string, error) {
	return queryStrings(ctx, d.db, d.dialect.ListTables())
}

func (d *DB) columns(ctx context.Context, table string) ([]string, error) {
	cols, err := queryStrings(ctx, d.db, d.dialect.ListColumns(), table)
	if err != nil {
		return nil, errors.Wrapf(err, "listing columns of %s", table)
	}
	return cols, nil
}

// Scan implements txn.Database.
func (d *DB) Scan(ctx context.Context, table txn.Table) ([][]any, error) {
	return selectAll(ctx, d.db, d.dialect, table.Name, table.Columns)
}

// Restore replaces the rows of table with rows.
func (d *DB) Restore(ctx context.Context, table txn.Table, rows [][]any) error {
	return errors.Wrapf(crdb.ExecuteTx(ctx, d.db, nil /* txopts */, func(tx *gosql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+d.dialect.QuoteIdent(table.Name)); err != nil {
			return err
		}
		return insertRows(ctx, tx, d.dialect, table.Name, table.Columns, rows)
	}), "restoring %s", table.Name)
}

// Exec runs a statement on the pool.
func (d *DB) Exec(ctx context.Context, query string, args ...any) error {
	_, err := d.db.ExecContext(ctx, query, args...)
	return err
}

// Connect implements the connection factory of schedule generation: every
// call returns a dedicated session.
func (d *DB) Connect(ctx context.Context) (txn.Conn, error) {
	c, err := d.db.Conn(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "opening session")
	}
	return &Conn{conn: c, dialect: d.dialect}, nil
}

// Conn is a dedicated session of a DB.
type Conn struct {
	conn    *gosql.Conn
	dialect Dialect
}

var _ txn.Conn = (*Conn)(nil)

// Exec implements txn.Conn.
func (c *Conn) Exec(ctx context.Context, query string) error {
	_, err := c.conn.ExecContext(ctx, query)
	return err
}

// Query implements txn.Conn.
func (c *Conn) Query(ctx context.Context, query string) ([][]string, error) {
	return queryMatrix(ctx, c.conn, query)
}

// Warnings implements txn.Conn.
func (c *Conn) Warnings(ctx context.Context) ([][]string, error) {
	q := c.dialect.ShowWarnings()
	if q == "" {
		return nil, nil
	}
	return queryMatrix(ctx, c.conn, q)
}

// Close implements txn.Conn.
func (c *Conn) Close() error {
	return c.conn.Close()
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*gosql.Rows, error)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (gosql.Result, error)
}

func queryStrings(ctx context.Context, q queryer, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// scanRows reads every row. Byte slices are converted to strings so that
// values can be bound again as parameters.
func scanRows(rows *gosql.Rows) ([][]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	res := [][]any{}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		res = append(res, vals)
	}
	return res, rows.Err()
}

func queryMatrix(ctx context.Context, q queryer, query string) ([][]string, error) {
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	vals, err := scanRows(rows)
	if err != nil {
		return nil, err
	}
	return txn.FormatRows(vals), nil
}

func columnList(d Dialect, columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = d.QuoteIdent(c)
	}
	return strings.Join(quoted, ", ")
}

func selectAll(
	ctx context.Context, q queryer, d Dialect, table string, columns []string,
) ([][]any, error) {
	query := "SELECT " + columnList(d, columns) + " FROM " + d.QuoteIdent(table)
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrapf(err, "scanning %s", table)
	}
	defer rows.Close()
	return scanRows(rows)
}

// insertRows inserts rows in batches of multi-row INSERT statements.
func insertRows(
	ctx context.Context, e execer, d Dialect, table string, columns []string, rows [][]any,
) error {
	head := "INSERT INTO " + d.QuoteIdent(table) + " (" + columnList(d, columns) + ") VALUES "
	for start := 0; start < len(rows); start += loadBatchSize {
		end := start + loadBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		var buf strings.Builder
		buf.WriteString(head)
		args := make([]any, 0, (end-start)*len(columns))
		for i, row := range rows[start:end] {
			if len(row) != len(columns) {
				return errors.AssertionFailedf("row has %d values, want %d", len(row), len(columns))
			}
			if i > 0 {
				buf.WriteString(", ")
			}
			buf.WriteByte('(')
			for j, v := range row {
				if j > 0 {
					buf.WriteString(", ")
				}
				args = append(args, v)
				buf.WriteString(d.Placeholder(len(args)))
			}
			buf.WriteByte(')')
		}
		if _, err := e.ExecContext(ctx, buf.String(), args...); err != nil {
			return err
		}
	}
	return nil
}
