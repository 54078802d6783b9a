// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package workload

import (
	"context"
	"math/rand"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle/txn"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle/txntestutils"
	"github.com/stretchr/testify/require"
)

type recordingExecer struct {
	stmts []string
	fail  string
}

func (r *recordingExecer) Exec(_ context.Context, query string, _ ...any) error {
	if r.fail != "" && strings.HasPrefix(query, r.fail) {
		return errors.New("boom")
	}
	r.stmts = append(r.stmts, query)
	return nil
}

func TestSetup(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.NumRows = 3

	var db recordingExecer
	require.NoError(t, Setup(ctx, &db, rand.New(rand.NewSource(1)), cfg))
	require.Len(t, db.stmts, 3*cfg.NumTables)
	require.Equal(t, "DROP TABLE IF EXISTS t0", db.stmts[0])
	require.Equal(t, "CREATE TABLE t0 (id INT PRIMARY KEY, c0 INT, c1 INT)", db.stmts[1])
	require.True(t, strings.HasPrefix(db.stmts[2], "INSERT INTO t0 VALUES (1, "), db.stmts[2])
	require.Equal(t, 3, strings.Count(db.stmts[2], "("))
	require.Equal(t, "CREATE TABLE t1 (id INT PRIMARY KEY, c0 INT, c1 INT)", db.stmts[4])

	// Identical seeds produce identical tables.
	var again recordingExecer
	require.NoError(t, Setup(ctx, &again, rand.New(rand.NewSource(1)), cfg))
	require.Equal(t, db.stmts, again.stmts)

	failing := recordingExecer{fail: "CREATE"}
	require.ErrorContains(t, Setup(ctx, &failing, rand.New(rand.NewSource(1)), cfg),
		`executing "CREATE TABLE t0 (id INT PRIMARY KEY, c0 INT, c1 INT)": boom`)
}

func TestValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	cfg := DefaultConfig()
	cfg.MaxStatements = 0
	require.EqualError(t, cfg.Validate(), "max_statements must be >0, got 0")
	cfg = DefaultConfig()
	cfg.Ops.Commit, cfg.Ops.Rollback = 0, 0
	require.EqualError(t, cfg.Validate(), "commit and rollback weights are both zero")

	_, err := NewGenerator(DefaultConfig(), nil, true)
	require.EqualError(t, err, "no tables to generate statements for")
	cfg = DefaultConfig()
	cfg.Ops = OperationConfig{Replace: 1, Commit: 1}
	_, err = NewGenerator(cfg, []txn.Table{{Name: "t0", Columns: []string{"id"}}}, false)
	require.EqualError(t, err, "every statement weight is zero")
}

// TestGenerate checks that generated bodies are well formed and that every
// statement runs against a database holding the tables.
func TestGenerate(t *testing.T) {
	ctx := context.Background()
	tables := []txn.Table{
		{Name: "t0", Columns: []string{"id", "c0", "c1"}},
		{Name: "t1", Columns: []string{"id", "c0"}},
	}
	for _, mysqlSyntax := range []bool{false, true} {
		g, err := NewGenerator(DefaultConfig(), tables, mysqlSyntax)
		require.NoError(t, err)
		rng := rand.New(rand.NewSource(42))
		for i := 0; i < 200; i++ {
			db := txntestutils.NewMemDB(txntestutils.Unisolated)
			db.CreateTable("t0", tables[0].Columns, []any{int64(1), int64(1), int64(1)})
			db.CreateTable("t1", tables[1].Columns, []any{int64(1), int64(1)})
			conn, err := db.Connect(ctx)
			require.NoError(t, err)

			body, err := g.Generate(rng)
			require.NoError(t, err)
			require.GreaterOrEqual(t, len(body), 3)
			require.LessOrEqual(t, len(body), DefaultConfig().MaxStatements+2)
			require.Equal(t, "BEGIN", body[0])
			require.Contains(t, []string{"COMMIT", "ROLLBACK"}, body[len(body)-1])

			for _, q := range body {
				typ, err := txn.Classify(q)
				require.NoError(t, err)
				if !mysqlSyntax {
					require.NotEqual(t, txn.Replace, typ, q)
					require.NotContains(t, q, "IGNORE")
					require.NotContains(t, q, "DUPLICATE")
				}
				if typ.IsRead() {
					_, err = conn.Query(ctx, q)
				} else {
					err = conn.Exec(ctx, q)
				}
				if err != nil {
					require.Contains(t, err.Error(), "Duplicate entry", q)
				}
			}
		}
	}
}
