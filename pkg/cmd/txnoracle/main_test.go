// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/txnoracle/pkg/txnoracle"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func parseFlags(t *testing.T, args ...string) (*cliContext, *pflag.FlagSet) {
	t.Helper()
	cli := &cliContext{opts: txnoracle.DefaultOptions()}
	fs := pflag.NewFlagSet("txnoracle", pflag.ContinueOnError)
	cli.addFlags(fs)
	require.NoError(t, fs.Parse(args))
	return cli, fs
}

func TestResolveFlagsOverrideConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
dialect: postgres
driver: pgx
num_schedules: 7
expected_errors: ["from file"]
workload:
  num_rows: 9
`), 0644))

	cli, fs := parseFlags(t,
		"--config", path,
		"--schedules", "3",
		"--expected-errors", "a,b",
		"--wait-threshold", "250ms",
	)
	require.NoError(t, cli.resolve(fs))

	// From the file.
	require.Equal(t, "postgres", cli.opts.Dialect)
	require.Equal(t, "pgx", cli.opts.Driver)
	require.Equal(t, 9, cli.opts.Workload.NumRows)
	// From the flags.
	require.Equal(t, 3, cli.opts.NumSchedules)
	require.Equal(t, []string{"a", "b"}, cli.opts.ExpectedErrors)
	require.Equal(t, 250*time.Millisecond, cli.opts.WaitThreshold)
	// Defaults.
	require.Equal(t, txnoracle.IsolationRandom, cli.opts.Isolation)
	require.Equal(t, txnoracle.OracleInfer, cli.opts.Oracle)
}

func TestResolveWithoutConfig(t *testing.T) {
	cli, fs := parseFlags(t, "--isolation", "RC", "-v", "2")
	require.NoError(t, cli.resolve(fs))
	require.Equal(t, "RC", cli.opts.Isolation)
	require.Equal(t, 2, cli.opts.Verbosity)

	cli, fs = parseFlags(t, "--oracle", "write-serializable")
	require.NoError(t, cli.resolve(fs))
	require.Equal(t, txnoracle.OracleWriteSerializable, cli.opts.Oracle)

	cli, fs = parseFlags(t, "--schedules", "0")
	require.ErrorContains(t, cli.resolve(fs), "num_schedules must be >0")

	cli, fs = parseFlags(t, "--oracle", "serial")
	require.ErrorContains(t, cli.resolve(fs), "oracle must be infer or write-serializable")
}

func TestCommands(t *testing.T) {
	cmd := makeTxnOracleCommand()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	require.ElementsMatch(t, []string{"setup", "run", "reproduce"}, names)
}

func TestSummary(t *testing.T) {
	require.Equal(t,
		"PASS 1,200 iteration(s), 12,000 schedule(s) (100/s), 0 failure(s) in 2m0s, seed 42",
		summary("PASS", 1200, 12000, 0, 2*time.Minute, 42))
}
