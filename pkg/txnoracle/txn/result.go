// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package txn

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/exp/maps"
)

// StatementResult is the outcome of one statement, either observed by the
// harness or inferred by the oracle.
type StatementResult struct {
	Stmt *Statement
	// Rows holds the result rows of reads.
	Rows [][]string
	// Err is the error text, empty on success.
	Err      string
	Warnings [][]string
	// Blocked is set when the statement did not complete within the wait
	// threshold at the time it was recorded.
	Blocked bool
	// Deadlock is set when the database aborted the transaction as a deadlock
	// victim on this statement.
	Deadlock bool
}

// HasError returns whether the statement failed.
func (r *StatementResult) HasError() bool {
	return r.Err != ""
}

func (r *StatementResult) String() string {
	var buf strings.Builder
	buf.WriteString(r.Stmt.String())
	if r.Blocked {
		buf.WriteString(" (blocked)")
	}
	if r.Deadlock {
		buf.WriteString(" (deadlock)")
	}
	if r.Stmt.Type().IsRead() {
		fmt.Fprintf(&buf, "\n    rows: %s", FormatMatrix(r.Rows))
	}
	if r.Err != "" {
		fmt.Fprintf(&buf, "\n    error: %s", r.Err)
	}
	if len(r.Warnings) > 0 {
		fmt.Fprintf(&buf, "\n    warnings: %s", FormatMatrix(r.Warnings))
	}
	return buf.String()
}

// TestResult is the outcome of running, or inferring, one schedule.
type TestResult struct {
	Isolation IsolationLevel
	// Statements are in completion order, which can differ from the schedule.
	Statements []*StatementResult
	// FinalState maps each table name to its rows at the end of the run.
	FinalState map[string][][]string
	// Stalled is set by the harness when it gave up on permanently blocked
	// transactions.
	Stalled bool
}

func (r *TestResult) String() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "isolation: %s", r.Isolation)
	if r.Stalled {
		buf.WriteString(" (stalled)")
	}
	for _, s := range r.Statements {
		fmt.Fprintf(&buf, "\n  %s", s)
	}
	names := maps.Keys(r.FinalState)
	slices.Sort(names)
	for _, name := range names {
		fmt.Fprintf(&buf, "\n  %s: %s", name, FormatMatrix(r.FinalState[name]))
	}
	return buf.String()
}

// FormatDatum renders a scanned driver value. NULL is rendered as "NULL".
func FormatDatum(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

// FormatRows renders rows with FormatDatum. Empty inputs render as an empty,
// non-nil slice.
func FormatRows(rows [][]any) [][]string {
	res := [][]string{}
	for _, row := range rows {
		strs := make([]string, len(row))
		for i, v := range row {
			strs[i] = FormatDatum(v)
		}
		res = append(res, strs)
	}
	return res
}

// FormatMatrix renders rows on one line, as in [[1 NULL] [2 3]].
func FormatMatrix(rows [][]string) string {
	parts := make([]string, len(rows))
	for i, row := range rows {
		parts[i] = "[" + strings.Join(row, " ") + "]"
	}
	return "[" + strings.Join(parts, " ") + "]"
}
