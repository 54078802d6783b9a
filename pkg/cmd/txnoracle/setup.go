// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package main

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/cockroachdb/txnoracle/pkg/txnoracle/sqldb"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle/workload"
	"github.com/cockroachdb/txnoracle/pkg/util/humanizeutil"
	"github.com/cockroachdb/txnoracle/pkg/util/log"
	"github.com/cockroachdb/txnoracle/pkg/util/timeutil"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func makeSetupCommand(cli *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Create and fill the workload tables, dropping existing ones.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			dialect, err := sqldb.DialectByName(cli.opts.Dialect)
			if err != nil {
				return err
			}
			db, err := sqldb.Open(ctx, cli.opts.Driver, cli.opts.DSN, dialect)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			seed := cli.opts.Seed
			if seed == 0 {
				seed = timeutil.Now().UnixNano()
			}
			log.Infof(ctx, "setting up with seed %d", seed)
			start := timeutil.Now()
			cfg := cli.opts.Workload
			if err := workload.Setup(ctx, db, rand.New(rand.NewSource(seed)), cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s created %s table(s) of %s row(s) in %s\n",
				color.GreenString("OK"),
				humanizeutil.Count(int64(cfg.NumTables)),
				humanizeutil.Count(int64(cfg.NumRows)),
				humanizeutil.Duration(timeutil.Since(start)))
			return nil
		},
	}
}
