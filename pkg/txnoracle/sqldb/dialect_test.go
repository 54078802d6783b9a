// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package sqldb

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle/infer"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle/txn"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

func TestDialectByName(t *testing.T) {
	for name, want := range map[string]Dialect{
		"mysql":       MySQL,
		"TiDB":        MySQL,
		"mariadb":     MySQL,
		"postgres":    Postgres,
		"cockroachdb": Postgres,
	} {
		d, err := DialectByName(name)
		require.NoError(t, err)
		require.Equal(t, want, d, name)
	}
	_, err := DialectByName("sqlite")
	require.EqualError(t, err, `unknown dialect "sqlite" (supported: mysql, postgres)`)
}

func TestIsDeadlock(t *testing.T) {
	testCases := []struct {
		d    Dialect
		err  error
		want bool
	}{
		{MySQL, &mysql.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock"}, true},
		{MySQL, errors.Wrap(&mysql.MySQLError{Number: 1213}, "executing 2-1"), true},
		{MySQL, &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, false},
		{MySQL, errors.New("Deadlock found when trying to get lock; try restarting transaction"), true},
		{MySQL, nil, false},
		{Postgres, &pq.Error{Code: "40P01"}, true},
		{Postgres, &pq.Error{Code: "40001"}, true},
		{Postgres, &pq.Error{Code: "23505"}, false},
		{Postgres, errors.Wrap(&pgconn.PgError{Code: "40P01"}, "executing 1-2"), true},
		{Postgres, &pgconn.PgError{Code: "25P02"}, false},
		{Postgres, errors.New("ERROR: deadlock detected"), true},
		{Postgres, nil, false},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.want, tc.d.IsDeadlock(tc.err), "%s: %v", tc.d.Name(), tc.err)
	}
}

func TestStatements(t *testing.T) {
	require.Equal(t, "SET SESSION TRANSACTION ISOLATION LEVEL REPEATABLE READ",
		MySQL.IsolationStmt(txn.RepeatableRead))
	require.Equal(t, "SET SESSION CHARACTERISTICS AS TRANSACTION ISOLATION LEVEL READ COMMITTED",
		Postgres.IsolationStmt(txn.ReadCommitted))

	require.Equal(t, "CREATE TABLE `_txo_1_2_t` LIKE `t`", MySQL.CreateTableLike("_txo_1_2_t", "t"))
	require.Equal(t, `CREATE TABLE "_txo_1_2_t" (LIKE "t" INCLUDING ALL)`, Postgres.CreateTableLike("_txo_1_2_t", "t"))

	require.Equal(t, "ALTER TABLE `s` ADD COLUMN `_txo_upd` INT DEFAULT 0", MySQL.AddIntColumn("s", "_txo_upd", true))
	require.Equal(t, `ALTER TABLE "s" ADD COLUMN "_txo_rid" INT DEFAULT NULL`, Postgres.AddIntColumn("s", "_txo_rid", false))

	require.Equal(t, "`a``b`", MySQL.QuoteIdent("a`b"))
	require.Equal(t, `"a""b"`, Postgres.QuoteIdent(`a"b`))
	require.Equal(t, "?", MySQL.Placeholder(3))
	require.Equal(t, "$3", Postgres.Placeholder(3))

	require.Equal(t, "SHOW WARNINGS", MySQL.ShowWarnings())
	require.Empty(t, Postgres.ShowWarnings())
	require.True(t, MySQL.SupportsReplace())
	require.False(t, Postgres.SupportsReplace())
	require.Equal(t, infer.AbortAutoCommit, MySQL.Behavior().Abort)
	require.Equal(t, infer.AbortErrorUntilEnd, Postgres.Behavior().Abort)
}
