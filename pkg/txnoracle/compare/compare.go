// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package compare checks an observed execution against the inferred one.
package compare

import (
	"fmt"
	"slices"
	"strings"

	"github.com/cockroachdb/txnoracle/pkg/txnoracle/txn"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"golang.org/x/exp/maps"
)

// Options tunes Results.
type Options struct {
	// Warnings makes warnings part of the comparison.
	Warnings bool
}

// Difference is one disagreement between the actual and expected results.
type Difference struct {
	// Stmt is the statement id, empty for final-state differences.
	Stmt string
	// Table is set for final-state differences.
	Table string
	// What names the compared aspect: "rows", "error", "warnings",
	// "missing", "unexpected" or "final state".
	What     string
	Actual   string
	Expected string
}

// Subject names what differs: a statement id or a table.
func (d Difference) Subject() string {
	if d.Table != "" {
		return "table " + d.Table
	}
	return d.Stmt
}

func (d Difference) String() string {
	return fmt.Sprintf("%s: %s differ\n  actual:   %s\n  expected: %s", d.Subject(), d.What, d.Actual, d.Expected)
}

// rowOrder sorts rows so that multisets compare equal regardless of order.
var rowOrder = cmpopts.SortSlices(func(a, b []string) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
})

// SameRows reports whether a and b hold the same rows, ignoring order.
func SameRows(a, b [][]string) bool {
	return cmp.Equal(a, b, rowOrder, cmpopts.EquateEmpty())
}

// ErrorMatches reports whether an actual error text agrees with the expected
// one. Drivers may decorate messages, so the expected text only has to be
// contained in the actual one.
func ErrorMatches(actual, expected string) bool {
	if actual == expected {
		return true
	}
	return expected != "" && strings.Contains(actual, expected)
}

// Results compares the completed statements of actual with the statements of
// expected, matching them by statement id, and then the final states. Blocked
// entries of actual are ignored; their completion is recorded separately.
func Results(actual, expected *txn.TestResult, opts Options) []Difference {
	var diffs []Difference
	exp := make(map[string]*txn.StatementResult, len(expected.Statements))
	for _, r := range expected.Statements {
		exp[r.Stmt.ID()] = r
	}
	seen := make(map[string]bool, len(exp))
	for _, a := range actual.Statements {
		if a.Blocked {
			continue
		}
		id := a.Stmt.ID()
		seen[id] = true
		e, ok := exp[id]
		if !ok {
			diffs = append(diffs, Difference{
				Stmt: id, What: "unexpected", Actual: "completed", Expected: "not executed",
			})
			continue
		}
		diffs = append(diffs, statement(id, a, e, opts)...)
	}
	for _, e := range expected.Statements {
		if id := e.Stmt.ID(); !seen[id] {
			diffs = append(diffs, Difference{
				Stmt: id, What: "missing", Actual: "not completed", Expected: "completed",
			})
		}
	}
	return append(diffs, finalState(actual.FinalState, expected.FinalState)...)
}

func statement(id string, a, e *txn.StatementResult, opts Options) []Difference {
	var diffs []Difference
	if a.Stmt.Type().IsRead() && !SameRows(a.Rows, e.Rows) {
		diffs = append(diffs, Difference{
			Stmt: id, What: "rows", Actual: txn.FormatMatrix(a.Rows), Expected: txn.FormatMatrix(e.Rows),
		})
	}
	if !ErrorMatches(a.Err, e.Err) {
		diffs = append(diffs, Difference{
			Stmt: id, What: "error", Actual: orNone(a.Err), Expected: orNone(e.Err),
		})
	}
	if opts.Warnings && !cmp.Equal(a.Warnings, e.Warnings, cmpopts.EquateEmpty()) {
		diffs = append(diffs, Difference{
			Stmt: id, What: "warnings", Actual: txn.FormatMatrix(a.Warnings), Expected: txn.FormatMatrix(e.Warnings),
		})
	}
	return diffs
}

// FinalStates compares only the final states of actual and expected.
func FinalStates(actual, expected *txn.TestResult) []Difference {
	return finalState(actual.FinalState, expected.FinalState)
}

func finalState(actual, expected map[string][][]string) []Difference {
	names := make(map[string]struct{}, len(actual))
	for n := range actual {
		names[n] = struct{}{}
	}
	for n := range expected {
		names[n] = struct{}{}
	}
	sorted := maps.Keys(names)
	slices.Sort(sorted)

	var diffs []Difference
	for _, n := range sorted {
		a, e := actual[n], expected[n]
		if !SameRows(a, e) {
			diffs = append(diffs, Difference{
				Table: n, What: "final state", Actual: txn.FormatMatrix(a), Expected: txn.FormatMatrix(e),
			})
		}
	}
	return diffs
}

func orNone(s string) string {
	if s == "" {
		return "<none>"
	}
	return s
}
