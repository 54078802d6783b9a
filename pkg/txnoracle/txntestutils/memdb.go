// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package txntestutils provides an in-memory stand-in for the database under
// test. MemDB understands a small subset of MySQL (single-table SELECT,
// UPDATE, DELETE, INSERT and REPLACE with equality predicates), treats a
// column named "id" as the primary key, and isolates transactions with
// coarse locks according to its Mode.
package txntestutils

import (
	"context"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle/txn"
	"github.com/cockroachdb/txnoracle/pkg/util/syncutil"
)

// Mode selects how MemDB isolates concurrent transactions.
type Mode int

const (
	// Unisolated applies every statement immediately; reads observe the
	// uncommitted writes of other transactions.
	Unisolated Mode = iota
	// TableLocks makes writes take an exclusive lock on their table that is
	// held until the transaction ends. Reads take no locks.
	TableLocks
	// Serial makes BEGIN take a database-wide lock that is held until the
	// transaction ends, so transactions run one at a time.
	Serial
)

// DeadlockMessage is the error text of a deadlock victim.
const DeadlockMessage = "Deadlock found when trying to get lock; try restarting transaction"

// IsDeadlock classifies errors returned by MemDB connections.
func IsDeadlock(err error) bool {
	return err != nil && strings.Contains(err.Error(), "Deadlock found")
}

type memTable struct {
	name     string
	columns  []string
	defaults []any
	rows     [][]any
}

func (t *memTable) clone() *memTable {
	c := &memTable{
		name:     t.name,
		columns:  append([]string(nil), t.columns...),
		defaults: append([]any(nil), t.defaults...),
	}
	c.rows = cloneRows(t.rows)
	return c
}

func cloneRows(rows [][]any) [][]any {
	res := make([][]any, len(rows))
	for i, r := range rows {
		res[i] = append([]any(nil), r...)
	}
	return res
}

// MemDB is an in-memory database. It is safe for concurrent use by its
// connections.
type MemDB struct {
	mode Mode
	mu   struct {
		syncutil.Mutex
		tables map[string]*memTable
		order  []string
		locks  map[string]*MemConn
		waits  map[*MemConn]string
	}
	cond *sync.Cond
}

// NewMemDB returns an empty database.
func NewMemDB(mode Mode) *MemDB {
	db := &MemDB{mode: mode}
	db.mu.tables = make(map[string]*memTable)
	db.mu.locks = make(map[string]*MemConn)
	db.mu.waits = make(map[*MemConn]string)
	db.cond = sync.NewCond(&db.mu)
	return db
}

// CreateTable creates a table holding rows.
func (db *MemDB) CreateTable(name string, columns []string, rows ...[]any) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.createTableLocked(name, columns)
	db.mu.tables[strings.ToLower(name)].rows = cloneRows(rows)
}

func (db *MemDB) createTableLocked(name string, columns []string) {
	key := strings.ToLower(name)
	if _, ok := db.mu.tables[key]; !ok {
		db.mu.order = append(db.mu.order, name)
	}
	db.mu.tables[key] = &memTable{
		name:     name,
		columns:  append([]string(nil), columns...),
		defaults: make([]any, len(columns)),
	}
}

func (db *MemDB) dropTableLocked(name string) {
	key := strings.ToLower(name)
	if _, ok := db.mu.tables[key]; !ok {
		return
	}
	delete(db.mu.tables, key)
	for i, n := range db.mu.order {
		if strings.EqualFold(n, name) {
			db.mu.order = append(db.mu.order[:i], db.mu.order[i+1:]...)
			break
		}
	}
}

func (db *MemDB) tableLocked(name string) (*memTable, error) {
	t, ok := db.mu.tables[strings.ToLower(unquote(name))]
	if !ok {
		return nil, errors.Newf("Table '%s' doesn't exist", unquote(name))
	}
	return t, nil
}

// Tables implements txn.Database. Tables are returned in creation order.
func (db *MemDB) Tables(context.Context) ([]txn.Table, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var res []txn.Table
	for _, name := range db.mu.order {
		if strings.HasPrefix(name, txn.ReservedPrefix) {
			continue
		}
		t := db.mu.tables[strings.ToLower(name)]
		res = append(res, txn.Table{Name: t.name, Columns: append([]string(nil), t.columns...)})
	}
	return res, nil
}

// Scan implements txn.Database.
func (db *MemDB) Scan(_ context.Context, table txn.Table) ([][]any, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	t, err := db.tableLocked(table.Name)
	if err != nil {
		return nil, err
	}
	return cloneRows(t.rows), nil
}

// Restore replaces the content of a table.
func (db *MemDB) Restore(_ context.Context, table txn.Table, rows [][]any) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	t, err := db.tableLocked(table.Name)
	if err != nil {
		return err
	}
	t.rows = cloneRows(rows)
	return nil
}

// Connect opens a session.
func (db *MemDB) Connect(context.Context) (txn.Conn, error) {
	return &MemConn{db: db}, nil
}

// acquireLocked takes the named lock for c, waiting while another session
// holds it. A wait that would close a cycle aborts c as a deadlock victim.
func (db *MemDB) acquireLocked(c *MemConn, name string) error {
	db.mu.AssertHeld()
	for {
		if c.closed {
			delete(db.mu.waits, c)
			return errors.New("connection is closed")
		}
		holder, ok := db.mu.locks[name]
		if !ok || holder == c {
			if !ok {
				db.mu.locks[name] = c
				c.held = append(c.held, name)
			}
			delete(db.mu.waits, c)
			return nil
		}
		if db.waitsForLocked(holder, c) {
			delete(db.mu.waits, c)
			db.endTxnLocked(c, false /* commit */)
			return errors.New(DeadlockMessage)
		}
		db.mu.waits[c] = name
		db.cond.Wait()
	}
}

// waitsForLocked reports whether from transitively waits for target.
func (db *MemDB) waitsForLocked(from, target *MemConn) bool {
	seen := map[*MemConn]bool{}
	for cur := from; !seen[cur]; {
		seen[cur] = true
		name, ok := db.mu.waits[cur]
		if !ok {
			return false
		}
		holder := db.mu.locks[name]
		if holder == target {
			return true
		}
		if holder == nil {
			return false
		}
		cur = holder
	}
	return false
}

func (db *MemDB) releaseLocked(c *MemConn) {
	db.mu.AssertHeld()
	for _, name := range c.held {
		if db.mu.locks[name] == c {
			delete(db.mu.locks, name)
		}
	}
	c.held = nil
	db.cond.Broadcast()
}

func (db *MemDB) endTxnLocked(c *MemConn, commit bool) {
	if !commit {
		for key, rows := range c.undo {
			if t, ok := db.mu.tables[key]; ok {
				t.rows = rows
			}
		}
	}
	c.undo = nil
	c.inTxn = false
	db.releaseLocked(c)
}

// MemConn is a session of a MemDB.
type MemConn struct {
	db *MemDB
	// noLocks sessions ignore the isolation mode.
	noLocks bool

	// Fields below are guarded by db.mu.
	inTxn    bool
	held     []string
	undo     map[string][][]any
	warnings [][]string
	closed   bool
}

var _ txn.Conn = (*MemConn)(nil)

// Exec implements txn.Conn.
func (c *MemConn) Exec(ctx context.Context, query string) error {
	_, err := c.run(ctx, query)
	return err
}

// Query implements txn.Conn.
func (c *MemConn) Query(ctx context.Context, query string) ([][]string, error) {
	return c.run(ctx, query)
}

// Warnings implements txn.Conn.
func (c *MemConn) Warnings(context.Context) ([][]string, error) {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	return c.warnings, nil
}

// Close implements txn.Conn. An open transaction is rolled back.
func (c *MemConn) Close() error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.db.endTxnLocked(c, false /* commit */)
	return nil
}

func (c *MemConn) run(_ context.Context, query string) ([][]string, error) {
	db := c.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if c.closed {
		return nil, errors.New("connection is closed")
	}
	c.warnings = nil
	q := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(query), ";"))
	upper := strings.ToUpper(q)
	switch {
	case upper == "BEGIN" || strings.HasPrefix(upper, "START TRANSACTION"):
		if c.inTxn {
			db.endTxnLocked(c, true /* commit */)
		}
		c.inTxn = true
		if db.mode == Serial && !c.noLocks {
			return nil, db.acquireLocked(c, "db")
		}
		return nil, nil
	case upper == "COMMIT":
		db.endTxnLocked(c, true /* commit */)
		return nil, nil
	case upper == "ROLLBACK":
		db.endTxnLocked(c, false /* commit */)
		return nil, nil
	case strings.HasPrefix(upper, "SET"):
		return nil, nil
	case strings.HasPrefix(upper, "SELECT"):
		return db.selectLocked(q)
	}
	w, err := parseWrite(q)
	if err != nil {
		return nil, err
	}
	t, err := db.tableLocked(w.table)
	if err != nil {
		return nil, err
	}
	if !c.noLocks {
		autocommit := !c.inTxn
		var lock string
		switch db.mode {
		case TableLocks:
			lock = "t:" + strings.ToLower(t.name)
		case Serial:
			if autocommit {
				lock = "db"
			}
		}
		if lock != "" {
			if err := db.acquireLocked(c, lock); err != nil {
				return nil, err
			}
			if autocommit {
				defer db.releaseLocked(c)
			}
		}
		// The table may have been replaced while waiting.
		if t, err = db.tableLocked(w.table); err != nil {
			return nil, err
		}
	}
	next, warnings, err := w.apply(t)
	if err != nil {
		return nil, err
	}
	if c.inTxn && !c.noLocks {
		key := strings.ToLower(t.name)
		if c.undo == nil {
			c.undo = make(map[string][][]any)
		}
		if _, ok := c.undo[key]; !ok {
			c.undo[key] = t.rows
		}
	}
	t.rows = next
	c.warnings = warnings
	return nil, nil
}

func (db *MemDB) selectLocked(q string) ([][]string, error) {
	s, err := parseSelect(q)
	if err != nil {
		return nil, err
	}
	t, err := db.tableLocked(s.table)
	if err != nil {
		return nil, err
	}
	proj := make([]int, 0, len(t.columns))
	if len(s.columns) == 1 && s.columns[0] == "*" {
		for i := range t.columns {
			proj = append(proj, i)
		}
	} else {
		for _, c := range s.columns {
			idx, err := t.column(c)
			if err != nil {
				return nil, err
			}
			proj = append(proj, idx)
		}
	}
	match, err := s.where.compile(t)
	if err != nil {
		return nil, err
	}
	res := [][]string{}
	for _, row := range t.rows {
		if !match(row) {
			continue
		}
		out := make([]string, len(proj))
		for i, idx := range proj {
			out[i] = txn.FormatDatum(row[idx])
		}
		res = append(res, out)
	}
	return res, nil
}

func (t *memTable) column(name string) (int, error) {
	name = unquote(name)
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = unquote(name[i+1:])
	}
	for i, c := range t.columns {
		if strings.EqualFold(c, name) {
			return i, nil
		}
	}
	return 0, errors.Newf("Unknown column '%s' in 'field list'", name)
}

func (t *memTable) pk() int {
	for i, c := range t.columns {
		if strings.EqualFold(c, "id") {
			return i
		}
	}
	return -1
}
