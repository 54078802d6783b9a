// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package mvcc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func values(rows []Row) [][]any {
	res := make([][]any, len(rows))
	for i, r := range rows {
		res[i] = r.Values
	}
	return res
}

func TestStoreVisibility(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Seed("t", []string{"id", "c0"}, [][]any{{1, 10}, {2, 20}}))
	tr := NewTracker()

	// Transaction 1 updates row 1 and deletes row 2; transaction 2 inserts.
	require.NoError(t, s.Append("t", Record{RowID: 1, Values: []any{1, 11}, Version: 1, TxnID: 1}))
	require.NoError(t, s.Append("t", Record{RowID: 2, Values: []any{2, 20}, Version: 2, TxnID: 1, Deleted: true}))
	id, err := s.NewRowID("t")
	require.NoError(t, err)
	require.Equal(t, RowID(3), id)
	require.NoError(t, s.Append("t", Record{RowID: id, Values: []any{3, 30}, Version: 3, TxnID: 2}))

	tr.EstablishSnapshot(3)
	read := func(vis Visibility) [][]any {
		rows, err := s.Visible("t", vis)
		require.NoError(t, err)
		return values(rows)
	}

	require.Equal(t, [][]any{{1, 10}, {2, 20}}, read(tr.ReadCommitted(3)))
	require.Equal(t, [][]any{{1, 11}}, read(tr.ReadCommitted(1)))
	require.Equal(t, [][]any{{1, 10}, {2, 20}, {3, 30}}, read(tr.ReadCommitted(2)))

	tr.Commit(1)
	require.Equal(t, [][]any{{1, 11}}, read(tr.ReadCommitted(3)))
	// The snapshot of 3 predates the commit.
	require.Equal(t, [][]any{{1, 10}, {2, 20}}, read(tr.SnapshotRead(3)))
	// Without a snapshot a snapshot read sees the committed state.
	require.False(t, tr.HasSnapshot(2))
	require.Equal(t, [][]any{{1, 11}, {3, 30}}, read(tr.SnapshotRead(2)))

	latest, err := s.Latest("t")
	require.NoError(t, err)
	require.Equal(t, [][]any{{1, 11}, {3, 30}}, values(latest))
}

func TestStorePurge(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Seed("t", []string{"id"}, [][]any{{1}}))
	require.NoError(t, s.Append("t", Record{RowID: 1, Values: []any{5}, Version: 1, TxnID: 7}))
	id, err := s.NewRowID("t")
	require.NoError(t, err)
	require.NoError(t, s.Append("t", Record{RowID: id, Values: []any{6}, Version: 2, TxnID: 7}))
	require.Len(t, s.Records("t", 1), 2)

	s.Purge(7)
	require.Len(t, s.Records("t", 1), 1)
	require.Empty(t, s.Records("t", id))
	latest, err := s.Latest("t")
	require.NoError(t, err)
	require.Equal(t, [][]any{{1}}, values(latest))
}

func TestStoreAppendCopiesValues(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Seed("t", []string{"c"}, nil))
	id, err := s.NewRowID("t")
	require.NoError(t, err)
	vals := []any{1}
	require.NoError(t, s.Append("t", Record{RowID: id, Values: vals, Version: 1, TxnID: 1}))
	vals[0] = 2
	require.Equal(t, []any{1}, s.Records("t", id)[0].Values)
}

func TestStoreErrors(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Seed("t", []string{"a", "b"}, nil))
	require.Error(t, s.Seed("t", []string{"a"}, nil))
	require.Error(t, s.Seed("u", []string{"a"}, [][]any{{1, 2}}))
	require.Error(t, s.Append("t", Record{RowID: 1, Values: []any{1, 2}}))
	id, err := s.NewRowID("t")
	require.NoError(t, err)
	require.Error(t, s.Append("t", Record{RowID: id, Values: []any{1}}))
	require.Error(t, s.Append("missing", Record{RowID: 1}))
	_, err = s.Visible("missing", func(int) bool { return true })
	require.Error(t, err)
	require.Equal(t, []string{"t"}, s.Tables())
}

func TestStoreSameVersionLaterAppendWins(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Seed("t", []string{"c"}, [][]any{{1}}))
	require.NoError(t, s.Append("t", Record{RowID: 1, Values: []any{2}, Version: 4, TxnID: 1}))
	require.NoError(t, s.Append("t", Record{RowID: 1, Values: []any{3}, Version: 4, TxnID: 1}))
	latest, err := s.Latest("t")
	require.NoError(t, err)
	require.Equal(t, [][]any{{3}}, values(latest))
}
