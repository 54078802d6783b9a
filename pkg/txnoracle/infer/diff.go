// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package infer

import (
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle/mvcc"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle/txn"
)

// Affected lists the rows a write statement produced new versions for.
type Affected struct {
	// Updated holds existing rows with their new values.
	Updated []mvcc.Row
	// Deleted holds removed rows with their values before the statement.
	Deleted []mvcc.Row
	// Inserted holds the values of new rows, which have no row id yet.
	Inserted [][]any
}

// Empty reports whether the statement touched no row.
func (a Affected) Empty() bool {
	return len(a.Updated) == 0 && len(a.Deleted) == 0 && len(a.Inserted) == 0
}

// Diff computes the rows affected by a write of type typ. before is the
// scratch table content the statement ran on. Every row of after holds ncols
// column values followed by the row id and, for UPDATE, the marker.
func Diff(typ txn.StatementType, before []mvcc.Row, after [][]any, ncols int) (Affected, error) {
	var a Affected
	width := ncols + 1
	if typ == txn.Update {
		width++
	}
	prior := make(map[mvcc.RowID][]any, len(before))
	for _, r := range before {
		prior[r.RowID] = r.Values
	}
	present := make(map[mvcc.RowID]bool, len(after))
	for _, row := range after {
		if len(row) != width {
			return Affected{}, errors.AssertionFailedf("scratch row has %d values, want %d", len(row), width)
		}
		id, ok, err := rowID(row[ncols])
		if err != nil {
			return Affected{}, err
		}
		vals := row[:ncols]
		if !ok {
			if typ == txn.Update || typ == txn.Delete {
				return Affected{}, errors.AssertionFailedf("%s produced a row without row id", typ)
			}
			a.Inserted = append(a.Inserted, vals)
			continue
		}
		present[id] = true
		switch typ {
		case txn.Update:
			if txn.FormatDatum(row[ncols+1]) == "1" {
				a.Updated = append(a.Updated, mvcc.Row{RowID: id, Values: vals})
			}
		case txn.Insert, txn.Replace:
			if old, ok := prior[id]; ok && !sameValues(old, vals) {
				a.Updated = append(a.Updated, mvcc.Row{RowID: id, Values: vals})
			}
		}
	}
	if typ == txn.Delete || typ == txn.Replace {
		for _, r := range before {
			if !present[r.RowID] {
				a.Deleted = append(a.Deleted, r)
			}
		}
	}
	return a, nil
}

func sameValues(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if txn.FormatDatum(a[i]) != txn.FormatDatum(b[i]) {
			return false
		}
	}
	return true
}

// rowID decodes a row id value as returned by the driver.
func rowID(v any) (mvcc.RowID, bool, error) {
	switch t := v.(type) {
	case nil:
		return 0, false, nil
	case int64:
		return mvcc.RowID(t), true, nil
	case int32:
		return mvcc.RowID(t), true, nil
	case int:
		return mvcc.RowID(t), true, nil
	case uint64:
		return mvcc.RowID(t), true, nil
	case []byte:
		return parseRowID(string(t))
	case string:
		return parseRowID(t)
	}
	return 0, false, errors.AssertionFailedf("unexpected row id value %v (%T)", v, v)
}

func parseRowID(s string) (mvcc.RowID, bool, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false, errors.Wrapf(err, "decoding row id %q", s)
	}
	return mvcc.RowID(id), true, nil
}
