// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package txnoracle

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/txnoracle/pkg/txnoracle/txn"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle/workload"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadOptions(t *testing.T) {
	expected := DefaultOptions()
	expected.Dialect = "postgres"
	expected.Driver = "pgx"
	expected.NumSchedules = 3
	expected.WaitThreshold = 500 * time.Millisecond
	expected.Isolation = "RR"
	expected.Oracle = OracleWriteSerializable
	expected.Workload.NumTables = 1
	expected.Workload.Ops.Replace = 0

	for _, tc := range []struct {
		name, content string
	}{
		{"opts.yaml", `
driver: pgx
dialect: postgres
num_schedules: 3
wait_threshold: 500ms
isolation: RR
oracle: write-serializable
workload:
  num_tables: 1
  ops:
    replace: 0
`},
		{"opts.toml", `
driver = "pgx"
dialect = "postgres"
num_schedules = 3
wait_threshold = "500ms"
isolation = "RR"
oracle = "write-serializable"

[workload]
num_tables = 1

[workload.ops]
replace = 0
`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			opts, err := LoadOptions(writeFile(t, tc.name, tc.content))
			require.NoError(t, err)
			require.Equal(t, expected, opts)
		})
	}
}

func TestLoadOptionsErrors(t *testing.T) {
	_, err := LoadOptions(writeFile(t, "opts.json", `{}`))
	require.ErrorContains(t, err, `unsupported options file extension ".json"`)

	_, err = LoadOptions(writeFile(t, "opts.yaml", "num_schedules: 0\n"))
	require.ErrorContains(t, err, "num_schedules must be >0, got 0")

	_, err = LoadOptions(writeFile(t, "opts.yaml", "oracle: serial\n"))
	require.ErrorContains(t, err, `oracle must be infer or write-serializable, got "serial"`)

	_, err = LoadOptions(writeFile(t, "opts.yml", "workload:\n  max_statements: 0\n"))
	require.ErrorContains(t, err, "max_statements must be >0, got 0")

	_, err = LoadOptions(writeFile(t, "opts.toml", "num_schedules = [\n"))
	require.ErrorContains(t, err, "parsing")

	_, err = LoadOptions(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "reading options")
}

func TestIsolationLevels(t *testing.T) {
	for _, tc := range []struct {
		isolation string
		expected  []txn.IsolationLevel
	}{
		{"", txn.IsolationLevels},
		{"Random", txn.IsolationLevels},
		{"RC", []txn.IsolationLevel{txn.ReadCommitted}},
		{"repeatable read", []txn.IsolationLevel{txn.RepeatableRead}},
	} {
		opts := Options{Isolation: tc.isolation}
		levels, err := opts.isolationLevels()
		require.NoError(t, err)
		require.Equal(t, tc.expected, levels, "isolation %q", tc.isolation)
	}
}

func TestDefaultOptionsValid(t *testing.T) {
	opts := DefaultOptions()
	require.NoError(t, opts.Validate())
	require.Equal(t, workload.DefaultConfig(), opts.Workload)
	require.True(t, opts.expectedErrors().Matches("Duplicate entry '1' for key 'PRIMARY'"))
}
