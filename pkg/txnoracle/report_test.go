// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package txnoracle

import (
	"testing"

	"github.com/cockroachdb/txnoracle/pkg/txnoracle/compare"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle/txn"
	"github.com/stretchr/testify/require"
)

func TestReportString(t *testing.T) {
	r := &Report{
		Isolation: txn.RepeatableRead,
		Differences: []compare.Difference{
			{Stmt: "2-1", What: "rows", Actual: "[[11]]", Expected: "[[10]]"},
			{Table: "t", What: "final state", Actual: "[[1 11]]", Expected: "[[1 10]]"},
		},
	}
	require.True(t, r.Failed())
	s := r.String()
	require.Contains(t, s, "differences:\n")
	require.Contains(t, s, "differs in")
	require.Contains(t, s, "table t")
	require.Contains(t, s, "[[1 10]]")
	require.Contains(t, s, "reproduction case:\n")
	// Without both results there is nothing to diff.
	require.Empty(t, r.Diff())

	require.False(t, (&Report{}).Failed())
}
