// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package infer

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/cockroachdb/datadriven"
	"github.com/cockroachdb/txnoracle/pkg/testutils"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle/mvcc"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle/txn"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle/txntestutils"
	"github.com/stretchr/testify/require"
)

func parseValue(s string) any {
	if s == "NULL" {
		return nil
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v
	}
	return s
}

// TestInfer runs the scripts under testdata/infer. Each file starts from an
// empty database.
//
//	table name=<name>   first input line lists the columns, the others rows
//	txn id=<id>         one statement per input line
//	infer isolation=<RC|RR> [behavior=<mysql|postgres>] [parse]
//	                    one observed completion per input line, as
//	                    "<stmt id> [blocked|deadlock]"
func TestInfer(t *testing.T) {
	ctx := context.Background()
	datadriven.Walk(t, testutils.TestDataPath(t, "infer"), func(t *testing.T, path string) {
		var tables []txn.Table
		initial := make(map[string][][]any)
		stmts := make(map[string]*txn.Statement)
		sb := txntestutils.NewMemDB(txntestutils.Unisolated).Sandbox()

		datadriven.RunTest(t, path, func(t *testing.T, d *datadriven.TestData) string {
			switch d.Cmd {
			case "table":
				var name string
				d.ScanArgs(t, "name", &name)
				lines := strings.Split(d.Input, "\n")
				tables = append(tables, txn.Table{Name: name, Columns: strings.Fields(lines[0])})
				for _, l := range lines[1:] {
					var row []any
					for _, f := range strings.Fields(l) {
						row = append(row, parseValue(f))
					}
					initial[name] = append(initial[name], row)
				}
				return ""

			case "txn":
				var id int
				d.ScanArgs(t, "id", &id)
				tx, err := txn.NewTransaction(id, nil, strings.Split(d.Input, "\n"), nil)
				require.NoError(t, err)
				for _, s := range tx.Statements {
					stmts[s.ID()] = s
				}
				return ""

			case "infer":
				var level, behavior string
				d.ScanArgs(t, "isolation", &level)
				b := MySQLBehavior
				if d.HasArg("behavior") {
					d.ScanArgs(t, "behavior", &behavior)
					if behavior == "postgres" {
						b = PostgresBehavior
					}
				}
				b.ParseStatements = d.HasArg("parse")
				iso, err := txn.ParseIsolationLevel(level)
				require.NoError(t, err)

				observed := &txn.TestResult{Isolation: iso}
				for _, l := range strings.Split(d.Input, "\n") {
					fields := strings.Fields(l)
					s, ok := stmts[fields[0]]
					require.True(t, ok, "unknown statement %s", fields[0])
					sr := &txn.StatementResult{Stmt: s}
					for _, f := range fields[1:] {
						switch f {
						case "blocked":
							sr.Blocked = true
						case "deadlock":
							sr.Deadlock = true
							sr.Err = txntestutils.DeadlockMessage
						default:
							d.Fatalf(t, "unknown flag %s", f)
						}
					}
					observed.Statements = append(observed.Statements, sr)
				}
				res, err := Infer(ctx, sb, b, tables, initial, observed)
				if err != nil {
					return "error: " + err.Error()
				}
				return res.String()

			default:
				d.Fatalf(t, "unknown command %s", d.Cmd)
				return ""
			}
		})
	})
}

func makeTxn(t *testing.T, id int, queries ...string) *txn.Transaction {
	tx, err := txn.NewTransaction(id, nil, queries, nil)
	require.NoError(t, err)
	return tx
}

func TestInferPassThrough(t *testing.T) {
	ctx := context.Background()
	sb := txntestutils.NewMemDB(txntestutils.Unisolated).Sandbox()
	tables := []txn.Table{{Name: "t", Columns: []string{"id", "v"}}}
	initial := map[string][][]any{"t": {{int64(1), int64(10)}}}

	tx := makeTxn(t, 1,
		"BEGIN",
		"SET @x = 1",
		"INSERT INTO missing VALUES (1)",
		"COMMIT",
	)
	observed := &txn.TestResult{Isolation: txn.ReadCommitted}
	for _, s := range tx.Statements {
		observed.Statements = append(observed.Statements, &txn.StatementResult{Stmt: s})
	}
	observed.Statements[1].Warnings = [][]string{{"Note", "1", "set"}}
	observed.Statements[2].Err = "Table 'missing' doesn't exist"

	res, err := Infer(ctx, sb, MySQLBehavior, tables, initial, observed)
	require.NoError(t, err)
	require.Len(t, res.Statements, 4)
	require.Equal(t, observed.Statements[1].Warnings, res.Statements[1].Warnings)
	require.Equal(t, "Table 'missing' doesn't exist", res.Statements[2].Err)
	require.Equal(t, [][]string{{"1", "10"}}, res.FinalState["t"])
}

func TestInferIdempotent(t *testing.T) {
	ctx := context.Background()
	sb := txntestutils.NewMemDB(txntestutils.Unisolated).Sandbox()
	tables := []txn.Table{{Name: "t", Columns: []string{"id", "v"}}}
	initial := map[string][][]any{"t": {{int64(1), int64(10)}, {int64(2), int64(20)}}}

	t1 := makeTxn(t, 1, "BEGIN", "UPDATE t SET v = 11 WHERE id = 1", "INSERT INTO t VALUES (3, 30)", "COMMIT")
	t2 := makeTxn(t, 2, "BEGIN", "SELECT * FROM t", "DELETE FROM t WHERE id = 2", "COMMIT")
	observed := &txn.TestResult{Isolation: txn.RepeatableRead}
	schedule := txn.Schedule{
		t1.Statements[0], t2.Statements[0], t1.Statements[1], t2.Statements[1],
		t1.Statements[2], t1.Statements[3], t2.Statements[2], t2.Statements[3],
	}
	for _, s := range schedule {
		observed.Statements = append(observed.Statements, &txn.StatementResult{Stmt: s})
	}

	b := MySQLBehavior
	b.ParseStatements = false
	first, err := Infer(ctx, sb, b, tables, initial, observed)
	require.NoError(t, err)
	second, err := Infer(ctx, sb, b, tables, initial, observed)
	require.NoError(t, err)
	require.Equal(t, first.String(), second.String())

	require.Equal(t, [][]string{{"1", "10"}, {"2", "20"}}, first.Statements[3].Rows)
	require.Equal(t, [][]string{{"1", "11"}, {"3", "30"}}, first.FinalState["t"])
}

func TestDiff(t *testing.T) {
	before := []mvcc.Row{
		{RowID: 1, Values: []any{int64(1), int64(10)}},
		{RowID: 2, Values: []any{int64(2), int64(20)}},
	}

	t.Run("update", func(t *testing.T) {
		a, err := Diff(txn.Update, before, [][]any{
			{int64(1), int64(11), int64(1), int64(1)},
			{int64(2), int64(20), int64(2), int64(0)},
		}, 2)
		require.NoError(t, err)
		require.Equal(t, []mvcc.Row{{RowID: 1, Values: []any{int64(1), int64(11)}}}, a.Updated)
		require.Empty(t, a.Deleted)
		require.Empty(t, a.Inserted)
	})

	t.Run("replace", func(t *testing.T) {
		a, err := Diff(txn.Replace, before, [][]any{
			{int64(2), int64(20), []byte("2")},
			{int64(1), int64(15), nil},
		}, 2)
		require.NoError(t, err)
		require.Equal(t, before[:1], a.Deleted)
		require.Equal(t, [][]any{{int64(1), int64(15)}}, a.Inserted)
		require.Empty(t, a.Updated)

		// The old row id gets a deletion and the new content a fresh row id;
		// no record of the old row is rewritten in place.
		r := &run{store: mvcc.NewStore()}
		require.NoError(t, r.store.Seed("t", []string{"id", "v"}, [][]any{
			{int64(1), int64(10)}, {int64(2), int64(20)},
		}))
		require.NoError(t, r.record("t", 1 /* seq */, 7 /* txnID */, a))
		require.Equal(t, []mvcc.Record{
			{RowID: 1, Values: []any{int64(1), int64(10)}, TxnID: mvcc.InitialTxnID},
			{RowID: 1, Values: []any{int64(1), int64(10)}, Version: 1, Deleted: true, TxnID: 7},
		}, r.store.Records("t", 1))
		require.Equal(t, []mvcc.Record{
			{RowID: 3, Values: []any{int64(1), int64(15)}, Version: 1, TxnID: 7},
		}, r.store.Records("t", 3))
		latest, err := r.store.Latest("t")
		require.NoError(t, err)
		require.Equal(t, []mvcc.Row{
			{RowID: 2, Values: []any{int64(2), int64(20)}},
			{RowID: 3, Values: []any{int64(1), int64(15)}},
		}, latest)
	})

	t.Run("upsert", func(t *testing.T) {
		a, err := Diff(txn.Insert, before, [][]any{
			{int64(1), int64(10), int64(1)},
			{int64(2), int64(21), int64(2)},
		}, 2)
		require.NoError(t, err)
		require.Equal(t, []mvcc.Row{{RowID: 2, Values: []any{int64(2), int64(21)}}}, a.Updated)
		require.Empty(t, a.Deleted)
	})

	t.Run("delete", func(t *testing.T) {
		a, err := Diff(txn.Delete, before, [][]any{{int64(2), int64(20), int64(2)}}, 2)
		require.NoError(t, err)
		require.Equal(t, before[:1], a.Deleted)
		require.False(t, a.Empty())
	})

	t.Run("errors", func(t *testing.T) {
		_, err := Diff(txn.Delete, before, [][]any{{int64(2), int64(20), nil}}, 2)
		require.Error(t, err)
		_, err = Diff(txn.Update, before, [][]any{{int64(2), int64(20), int64(2)}}, 2)
		require.Error(t, err)
	})
}
