// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// txnoracle checks the transaction isolation of a MySQL or PostgreSQL
// compatible database by running random interleavings of concurrent
// transactions and comparing the results with an inferred expectation.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/cockroachdb/txnoracle/pkg/txnoracle"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle/sqldb"
	"github.com/cockroachdb/txnoracle/pkg/util/log"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func makeTxnOracleCommand() *cobra.Command {
	cli := &cliContext{opts: txnoracle.DefaultOptions()}
	command := &cobra.Command{
		Use:   "txnoracle [command] (flags)",
		Short: "txnoracle tests transaction isolation with random schedules.",
		Long: `txnoracle tests the transaction isolation of a database.

It generates a few transactions over the tables of the database under test,
runs many interleavings of their statements concurrently, and compares what
every statement returned with what READ COMMITTED or REPEATABLE READ says it
should have returned.

Typical usage:
    txnoracle setup --dsn 'root@tcp(localhost:4000)/test'
        Create and fill the tables t0, t1, ... used by the workload.

    txnoracle run --dsn 'root@tcp(localhost:4000)/test' --iterations 100 --report-dir reports
        Check 100 sets of transactions, writing a report and a reproduction
        case for every failure.

    txnoracle reproduce --dsn 'root@tcp(localhost:4000)/test' reports/1.case.txt
        Replay a reproduction case under both isolation levels.
`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cli.resolve(cmd.Flags()); err != nil {
				return err
			}
			log.SetFormat(cli.opts.LogFormat)
			log.SetVerbosity(cli.opts.Verbosity)
			return nil
		},
	}
	cli.addFlags(command.PersistentFlags())

	command.AddCommand(makeSetupCommand(cli))
	command.AddCommand(makeRunCommand(cli))
	command.AddCommand(makeReproduceCommand(cli))
	return command
}

// open connects to the database under test and opens the scratch sandbox.
func (c *cliContext) open(ctx context.Context) (*sqldb.DB, *sqldb.Sandbox, error) {
	dialect, err := sqldb.DialectByName(c.opts.Dialect)
	if err != nil {
		return nil, nil, err
	}
	db, err := sqldb.Open(ctx, c.opts.Driver, c.opts.DSN, dialect)
	if err != nil {
		return nil, nil, err
	}
	sb, err := db.Sandbox(ctx)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return db, sb, nil
}

func main() {
	if err := makeTxnOracleCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("ERROR:"), err)
		os.Exit(1)
	}
}
