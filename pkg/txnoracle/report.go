// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package txnoracle

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle/compare"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle/schedule"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle/txn"
	"github.com/olekukonko/tablewriter"
	"github.com/pmezard/go-difflib/difflib"
)

// Report describes a schedule whose execution the oracle rejected.
type Report struct {
	Isolation txn.IsolationLevel
	Txns      []*txn.Transaction
	Schedule  txn.Schedule
	Actual    *txn.TestResult
	Expected  *txn.TestResult
	// Differences between Actual and Expected.
	Differences []compare.Difference
	// Unexpected holds the observed statements that failed with an error
	// outside their expected set.
	Unexpected []*txn.StatementResult
}

// Failed returns whether the report holds anything to complain about.
func (r *Report) Failed() bool {
	return len(r.Differences) > 0 || len(r.Unexpected) > 0
}

// Diff renders a unified diff of the expected and actual results.
func (r *Report) Diff() string {
	if r.Actual == nil || r.Expected == nil {
		return ""
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(r.Expected.String() + "\n"),
		B:        difflib.SplitLines(r.Actual.String() + "\n"),
		FromFile: "expected",
		ToFile:   "actual",
		Context:  3,
	})
	if err != nil {
		return fmt.Sprintf("<diff failed: %v>", err)
	}
	return diff
}

// Case renders the reproduction case of the report.
func (r *Report) Case() string {
	var buf strings.Builder
	if err := schedule.FormatCase(&buf, r.Txns, r.Schedule); err != nil {
		return fmt.Sprintf("<formatting case failed: %v>", err)
	}
	return buf.String()
}

func (r *Report) String() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "isolation: %s\n", r.Isolation)
	fmt.Fprintf(&buf, "schedule: %s\n", r.Schedule.TxnOrder())
	for _, t := range r.Txns {
		fmt.Fprintf(&buf, "%s\n", t)
	}
	if len(r.Unexpected) > 0 {
		buf.WriteString("unexpected errors:\n")
		for _, s := range r.Unexpected {
			fmt.Fprintf(&buf, "  %s: %s\n", s.Stmt.ID(), s.Err)
		}
	}
	if len(r.Differences) > 0 {
		buf.WriteString("differences:\n")
		r.writeDifferences(&buf)
	}
	if diff := r.Diff(); diff != "" {
		buf.WriteString(diff)
	}
	buf.WriteString("reproduction case:\n")
	buf.WriteString(r.Case())
	return buf.String()
}

// writeDifferences renders the differences as a table.
func (r *Report) writeDifferences(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader([]string{"subject", "differs in", "actual", "expected"})
	for _, d := range r.Differences {
		table.Append([]string{d.Subject(), d.What, d.Actual, d.Expected})
	}
	table.Render()
}

// WriteFiles writes the report as <n>.report.txt and its reproduction case
// as <n>.case.txt under dir.
func (r *Report) WriteFiles(dir string, n int) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "creating report directory")
	}
	files := []struct {
		name, content string
	}{
		{fmt.Sprintf("%d.report.txt", n), r.String()},
		{fmt.Sprintf("%d.case.txt", n), r.Case()},
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f.name), []byte(f.content), 0644); err != nil {
			return errors.Wrapf(err, "writing %s", f.name)
		}
	}
	return nil
}

// MismatchError is returned when an observed result disagrees with the
// inferred one or a statement failed unexpectedly.
type MismatchError struct {
	Report *Report
}

func (e *MismatchError) Error() string {
	r := e.Report
	return fmt.Sprintf("mismatch under %s for schedule %s: %d difference(s), %d unexpected error(s)",
		r.Isolation.Alias(), r.Schedule.TxnOrder(), len(r.Differences), len(r.Unexpected))
}

func newMismatchError(r *Report) error {
	return errors.WithDetail(&MismatchError{Report: r}, r.String())
}
