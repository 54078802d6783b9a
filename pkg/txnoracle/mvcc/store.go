// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package mvcc holds the oracle's shadow multi-version history of every
// table row and decides which versions a transaction can see.
//
// Every row carries a synthetic RowID that stays stable across updates. A
// write never modifies a record in place; it appends a new Record with a
// higher version, and a delete appends a record flagged Deleted. Records are
// only ever removed when their owning transaction rolls back or is aborted.
package mvcc

import "github.com/cockroachdb/errors"

// RowID is the synthetic identity of a row.
type RowID int64

// InitialTxnID owns the versions of the rows present before any
// transaction ran.
const InitialTxnID = 0

// Record is one version of a row.
type Record struct {
	RowID   RowID
	Values  []any
	Version int
	Deleted bool
	TxnID   int
}

// Row is a materialized row: its id and column values.
type Row struct {
	RowID  RowID
	Values []any
}

// Visibility reports whether the versions written by a transaction are
// visible to a reader.
type Visibility func(txnID int) bool

type table struct {
	columns []string
	nextID  RowID
	// order lists row ids in creation order.
	order   []RowID
	records map[RowID][]Record
}

// Store is the version history of a set of tables for one oracle run. It is
// not safe for concurrent use.
type Store struct {
	tables map[string]*table
	names  []string
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{tables: make(map[string]*table)}
}

// Seed registers a table and records every row as version 0 of the initial
// transaction. Row ids are assigned from 1 in row order.
func (s *Store) Seed(name string, columns []string, rows [][]any) error {
	if _, ok := s.tables[name]; ok {
		return errors.AssertionFailedf("table %q seeded twice", name)
	}
	for _, row := range rows {
		if len(row) != len(columns) {
			return errors.AssertionFailedf("table %q: row has %d values, want %d", name, len(row), len(columns))
		}
	}
	tab := &table{
		columns: append([]string(nil), columns...),
		records: make(map[RowID][]Record),
	}
	s.tables[name] = tab
	s.names = append(s.names, name)
	for _, row := range rows {
		id := tab.allocate()
		tab.records[id] = []Record{{RowID: id, Values: cloneValues(row), TxnID: InitialTxnID}}
	}
	return nil
}

func (t *table) allocate() RowID {
	t.nextID++
	t.order = append(t.order, t.nextID)
	return t.nextID
}

func (s *Store) table(name string) (*table, error) {
	tab, ok := s.tables[name]
	if !ok {
		return nil, errors.AssertionFailedf("unknown table %q", name)
	}
	return tab, nil
}

// Tables returns the seeded table names in seeding order.
func (s *Store) Tables() []string {
	return append([]string(nil), s.names...)
}

// Columns returns the column names of a table.
func (s *Store) Columns(name string) ([]string, error) {
	tab, err := s.table(name)
	if err != nil {
		return nil, err
	}
	return tab.columns, nil
}

// NewRowID allocates a fresh row id in a table.
func (s *Store) NewRowID(name string) (RowID, error) {
	tab, err := s.table(name)
	if err != nil {
		return 0, err
	}
	return tab.allocate(), nil
}

// Append adds a version record. The row id must have been allocated by Seed
// or NewRowID.
func (s *Store) Append(name string, rec Record) error {
	tab, err := s.table(name)
	if err != nil {
		return err
	}
	if rec.RowID <= 0 || rec.RowID > tab.nextID {
		return errors.AssertionFailedf("table %q: row id %d was never allocated", name, rec.RowID)
	}
	if len(rec.Values) != len(tab.columns) {
		return errors.AssertionFailedf("table %q: record has %d values, want %d",
			name, len(rec.Values), len(tab.columns))
	}
	rec.Values = cloneValues(rec.Values)
	tab.records[rec.RowID] = append(tab.records[rec.RowID], rec)
	return nil
}

// Purge removes every record written by a transaction.
func (s *Store) Purge(txnID int) {
	for _, tab := range s.tables {
		for id, recs := range tab.records {
			kept := recs[:0]
			for _, r := range recs {
				if r.TxnID != txnID {
					kept = append(kept, r)
				}
			}
			if len(kept) == 0 {
				delete(tab.records, id)
			} else {
				tab.records[id] = kept
			}
		}
	}
}

// Records returns the history of one row in append order.
func (s *Store) Records(name string, id RowID) []Record {
	tab, ok := s.tables[name]
	if !ok {
		return nil
	}
	return tab.records[id]
}

// Visible materializes the rows of a table as seen through vis: for each row
// id the visible record with the highest version is authoritative, and the
// row is absent when that record is a deletion or no record is visible. Rows
// are returned in row id order.
func (s *Store) Visible(name string, vis Visibility) ([]Row, error) {
	tab, err := s.table(name)
	if err != nil {
		return nil, err
	}
	return tab.materialize(vis), nil
}

// Latest materializes the final state of a table: the highest version of
// every row regardless of its writer.
func (s *Store) Latest(name string) ([]Row, error) {
	return s.Visible(name, func(int) bool { return true })
}

func (t *table) materialize(vis Visibility) []Row {
	rows := []Row{}
	for _, id := range t.order {
		var best *Record
		recs := t.records[id]
		for i := range recs {
			r := &recs[i]
			if !vis(r.TxnID) {
				continue
			}
			// Later appends win ties between records of the same version.
			if best == nil || r.Version >= best.Version {
				best = r
			}
		}
		if best == nil || best.Deleted {
			continue
		}
		rows = append(rows, Row{RowID: id, Values: cloneValues(best.Values)})
	}
	return rows
}

func cloneValues(vals []any) []any {
	if vals == nil {
		return nil
	}
	return append(make([]any, 0, len(vals)), vals...)
}
