// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package txnoracle

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/txnoracle/pkg/testutils/skip"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle/infer"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle/schedule"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle/txn"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle/txntestutils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func memTarget(mode txntestutils.Mode) (*txntestutils.MemDB, Target) {
	db := txntestutils.NewMemDB(mode)
	b := infer.MySQLBehavior
	b.ParseStatements = false
	return db, Target{
		DB:       db,
		Sandbox:  db.Sandbox(),
		Behavior: b,
		IsolationStmt: func(l txn.IsolationLevel) string {
			return "SET SESSION TRANSACTION ISOLATION LEVEL " + l.String()
		},
		IsDeadlock:  txntestutils.IsDeadlock,
		MySQLSyntax: true,
	}
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	return 0
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.NumSchedules = 4
	opts.WaitThreshold = 50 * time.Millisecond
	opts.Workload.NumRows = 3
	return opts
}

// parseCase parses a reproduction case.
func parseCase(t *testing.T, text string) *schedule.Case {
	t.Helper()
	c, err := schedule.ParseCase(strings.NewReader(text))
	require.NoError(t, err)
	return c
}

const dirtyReadCase = `
1
BEGIN
UPDATE t SET v = 11 WHERE id = 1
ROLLBACK
END
2
BEGIN
SELECT v FROM t WHERE id = 1
COMMIT
END
1-1-2-2-1-2
END
`

// A database that runs transactions one at a time is correct under both
// isolation levels, whatever the workload.
func TestCheckSerial(t *testing.T) {
	skip.UnderShort(t)
	ctx := context.Background()
	db, target := memTarget(txntestutils.Serial)
	initial := [][]any{{int64(1), int64(1), int64(2)}, {int64(2), int64(3), int64(4)}, {int64(3), int64(5), int64(6)}}
	db.CreateTable("t0", []string{"id", "c0", "c1"}, initial...)
	db.CreateTable("t1", []string{"id", "c0", "c1"}, initial...)

	reg := prometheus.NewRegistry()
	o, err := New(target, testOptions(), NewMetrics(reg))
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 3; i++ {
		require.NoError(t, o.Check(ctx, rng))
	}
	require.Positive(t, counterValue(t, reg, "txnoracle_schedules_total"))
	require.Zero(t, counterValue(t, reg, "txnoracle_mismatches_total"))
	require.Zero(t, counterValue(t, reg, "txnoracle_unexpected_errors_total"))

	for _, name := range []string{"t0", "t1"} {
		rows, err := db.Scan(ctx, txn.Table{Name: name})
		require.NoError(t, err)
		require.Equal(t, initial, rows, "%s was not restored", name)
	}
}

// Reads of uncommitted writes are caught under both levels.
func TestReproduceDirtyRead(t *testing.T) {
	ctx := context.Background()
	db, target := memTarget(txntestutils.Unisolated)
	db.CreateTable("t", []string{"id", "v"}, []any{int64(1), int64(10)})

	reg := prometheus.NewRegistry()
	opts := testOptions()
	opts.ReportDir = t.TempDir()
	o, err := New(target, opts, NewMetrics(reg))
	require.NoError(t, err)

	err = o.Reproduce(ctx, parseCase(t, dirtyReadCase))
	require.Error(t, err)
	var mm *MismatchError
	require.True(t, errors.As(err, &mm))
	r := mm.Report
	require.Equal(t, txn.ReadCommitted, r.Isolation)
	require.Empty(t, r.Unexpected)
	require.Len(t, r.Differences, 1)
	d := r.Differences[0]
	require.Equal(t, "2-1", d.Stmt)
	require.Equal(t, "[[11]]", d.Actual)
	require.Equal(t, "[[10]]", d.Expected)
	require.Contains(t, errors.FlattenDetails(err), "reproduction case:")
	require.Contains(t, r.Diff(), "-    rows: [[10]]")
	require.Contains(t, r.Diff(), "+    rows: [[11]]")
	require.Equal(t, 2.0, counterValue(t, reg, "txnoracle_mismatches_total"))

	// One report per isolation level, each with a case that parses back.
	for _, n := range []string{"1", "2"} {
		_, err := os.Stat(filepath.Join(opts.ReportDir, n+".report.txt"))
		require.NoError(t, err)
		data, err := os.ReadFile(filepath.Join(opts.ReportDir, n+".case.txt"))
		require.NoError(t, err)
		c := parseCase(t, string(data))
		require.Equal(t, []int{1, 1, 2, 2, 1, 2}, c.Order)
	}

	rows, err := db.Scan(ctx, txn.Table{Name: "t"})
	require.NoError(t, err)
	require.Equal(t, [][]any{{int64(1), int64(10)}}, rows)
}

// The same case passes when the second transaction waits for the first.
func TestReproduceSerial(t *testing.T) {
	db, target := memTarget(txntestutils.Serial)
	db.CreateTable("t", []string{"id", "v"}, []any{int64(1), int64(10)})

	reg := prometheus.NewRegistry()
	o, err := New(target, testOptions(), NewMetrics(reg))
	require.NoError(t, err)
	require.NoError(t, o.Reproduce(context.Background(), parseCase(t, dirtyReadCase)))
	require.Equal(t, 2.0, counterValue(t, reg, "txnoracle_schedules_total"))
	require.Equal(t, 2.0, counterValue(t, reg, "txnoracle_blocked_statements_total"))
}

func TestReproduceUnexpectedError(t *testing.T) {
	db, target := memTarget(txntestutils.Unisolated)
	db.CreateTable("t", []string{"id", "v"}, []any{int64(1), int64(10)})

	reg := prometheus.NewRegistry()
	opts := testOptions()
	opts.ExpectedErrors = nil
	o, err := New(target, opts, NewMetrics(reg))
	require.NoError(t, err)

	err = o.Reproduce(context.Background(), parseCase(t, `
1
BEGIN
INSERT INTO t VALUES (1, 5)
COMMIT
END
1-1-1
END
`))
	var mm *MismatchError
	require.True(t, errors.As(err, &mm))
	require.Empty(t, mm.Report.Differences)
	require.Len(t, mm.Report.Unexpected, 1)
	require.Contains(t, mm.Report.Unexpected[0].Err, "Duplicate entry")
	require.Zero(t, counterValue(t, reg, "txnoracle_mismatches_total"))
	require.Equal(t, 2.0, counterValue(t, reg, "txnoracle_unexpected_errors_total"))
}

func TestNew(t *testing.T) {
	_, target := memTarget(txntestutils.Unisolated)

	_, err := New(Target{}, DefaultOptions(), nil)
	require.Error(t, err)

	opts := DefaultOptions()
	opts.Isolation = "serializable"
	_, err = New(target, opts, nil)
	require.ErrorContains(t, err, `invalid isolation level "serializable"`)

	opts.Isolation = "rr"
	o, err := New(target, opts, nil)
	require.NoError(t, err)
	require.Equal(t, []txn.IsolationLevel{txn.RepeatableRead}, o.levels)
	require.NotNil(t, o.Metrics())
}

func TestCheckEmptyDatabase(t *testing.T) {
	_, target := memTarget(txntestutils.Unisolated)
	o, err := New(target, DefaultOptions(), nil)
	require.NoError(t, err)
	err = o.Check(context.Background(), rand.New(rand.NewSource(0)))
	require.ErrorContains(t, err, "has no tables")
}

// A rollback that undoes the committed write of another transaction.
const clobberCase = `
1
BEGIN
UPDATE t SET v = 11 WHERE id = 1
ROLLBACK
END
2
BEGIN
UPDATE t SET v = 22 WHERE id = 2
COMMIT
END
1-2-1-2-2-1
END
`

func writeSerializableOptions() Options {
	opts := testOptions()
	opts.Oracle = OracleWriteSerializable
	return opts
}

func TestReproduceWriteSerializable(t *testing.T) {
	ctx := context.Background()
	for _, tc := range []struct {
		name     string
		mode     txntestutils.Mode
		text     string
		expected string
	}{
		// The rollback restores the table as it was before the first write,
		// losing the committed update of row 2.
		{"lost-write", txntestutils.Unisolated, clobberCase, "[[1 10] [2 22]]"},
		{"table-locks", txntestutils.TableLocks, clobberCase, ""},
		// Dirty reads leave the final state alone.
		{"dirty-read", txntestutils.Unisolated, dirtyReadCase, ""},
	} {
		t.Run(tc.name, func(t *testing.T) {
			db, target := memTarget(tc.mode)
			db.CreateTable("t", []string{"id", "v"}, []any{int64(1), int64(10)}, []any{int64(2), int64(20)})

			reg := prometheus.NewRegistry()
			o, err := New(target, writeSerializableOptions(), NewMetrics(reg))
			require.NoError(t, err)
			err = o.Reproduce(ctx, parseCase(t, tc.text))
			if tc.expected == "" {
				require.NoError(t, err)
				require.Zero(t, counterValue(t, reg, "txnoracle_mismatches_total"))
			} else {
				var mm *MismatchError
				require.True(t, errors.As(err, &mm), "%v", err)
				require.Len(t, mm.Report.Differences, 1)
				d := mm.Report.Differences[0]
				require.Equal(t, "t", d.Table)
				require.Equal(t, "final state", d.What)
				require.Equal(t, "[[1 10] [2 20]]", d.Actual)
				require.Equal(t, tc.expected, d.Expected)
				require.Equal(t, 2.0, counterValue(t, reg, "txnoracle_mismatches_total"))
			}
			// Serial reruns are not counted as schedules.
			require.Equal(t, 2.0, counterValue(t, reg, "txnoracle_schedules_total"))

			rows, err := db.Scan(ctx, txn.Table{Name: "t"})
			require.NoError(t, err)
			require.Equal(t, [][]any{{int64(1), int64(10)}, {int64(2), int64(20)}}, rows)
		})
	}
}

func TestCheckSerialWriteSerializable(t *testing.T) {
	skip.UnderShort(t)
	db, target := memTarget(txntestutils.Serial)
	initial := [][]any{{int64(1), int64(1), int64(2)}, {int64(2), int64(3), int64(4)}, {int64(3), int64(5), int64(6)}}
	db.CreateTable("t0", []string{"id", "c0", "c1"}, initial...)

	reg := prometheus.NewRegistry()
	o, err := New(target, writeSerializableOptions(), NewMetrics(reg))
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 3; i++ {
		require.NoError(t, o.Check(context.Background(), rng))
	}
	require.Positive(t, o.SchedulesChecked())
	require.Zero(t, counterValue(t, reg, "txnoracle_mismatches_total"))
}

func TestSerialSchedule(t *testing.T) {
	mk := func(id int, queries ...string) *txn.Transaction {
		tx, err := txn.NewTransaction(id, nil, queries, nil)
		require.NoError(t, err)
		return tx
	}
	t1 := mk(1, "BEGIN", "UPDATE t SET v = 11 WHERE id = 1", "UPDATE t SET v = 12 WHERE id = 2", "COMMIT")
	t2 := mk(2, "BEGIN", "UPDATE t SET v = 22 WHERE id = 2", "UPDATE t SET v = 21 WHERE id = 1", "SELECT * FROM t", "COMMIT")
	t3 := mk(3, "BEGIN", "DELETE FROM t WHERE id = 1", "COMMIT")
	done := func(s *txn.Statement) *txn.StatementResult { return &txn.StatementResult{Stmt: s} }
	observed := &txn.TestResult{Statements: []*txn.StatementResult{
		done(t1.Statements[0]),
		done(t2.Statements[0]),
		done(t3.Statements[0]),
		done(t1.Statements[1]),
		done(t2.Statements[1]),
		{Stmt: t1.Statements[2], Blocked: true},
		{Stmt: t2.Statements[2], Deadlock: true, Err: txntestutils.DeadlockMessage},
		done(t1.Statements[2]),
		done(t2.Statements[3]),
		done(t3.Statements[1]),
		done(t1.Statements[3]),
		done(t2.Statements[4]),
	}}

	// Transaction 3 never finished and is left out.
	for _, tc := range []struct {
		abort    infer.AbortMode
		expected string
	}{
		{infer.AbortAutoCommit, "[2-0, 2-1, 2-2, 2-5, 2-3, 1-0, 1-1, 1-2, 1-3, 2-4]"},
		{infer.AbortErrorUntilEnd, "[2-0, 2-1, 2-2, 2-5, 1-0, 1-1, 1-2, 1-3]"},
	} {
		s, err := serialSchedule(observed, tc.abort)
		require.NoError(t, err)
		require.Equal(t, tc.expected, s.String())
		rollback := s[3]
		require.Equal(t, "ROLLBACK", rollback.Query)
		require.Equal(t, txn.Rollback, rollback.Type())
		require.Same(t, t2, rollback.Txn())
	}
}
