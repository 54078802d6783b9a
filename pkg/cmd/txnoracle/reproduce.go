// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/logtags"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle/schedule"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func makeReproduceCommand(cli *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reproduce <case-file>...",
		Short: "Replay reproduction cases under both isolation levels.",
		Long: `Replay reproduction cases under both isolation levels.

A case file lists every transaction as its id, one statement per line and
END, followed by the schedule as dash-joined transaction ids and END. The
run command writes one for every failure.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.reproduce(context.Background(), cmd.OutOrStdout(), args)
		},
	}
}

func readCase(path string) (*schedule.Case, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening case")
	}
	defer f.Close()
	c, err := schedule.ParseCase(f)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	return c, nil
}

func (c *cliContext) reproduce(ctx context.Context, out io.Writer, paths []string) error {
	cases := make([]*schedule.Case, len(paths))
	for i, path := range paths {
		var err error
		if cases[i], err = readCase(path); err != nil {
			return err
		}
	}

	db, sb, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	defer func() { _ = sb.Close() }()
	o, err := txnoracle.New(txnoracle.SQLTarget(db, sb), c.opts, nil)
	if err != nil {
		return err
	}

	var failures int
	for i, rc := range cases {
		err := o.Reproduce(logtags.AddTag(ctx, "case", paths[i]), rc)
		var mm *txnoracle.MismatchError
		switch {
		case err == nil:
			fmt.Fprintf(out, "%s %s\n", color.GreenString("PASS"), paths[i])
		case errors.As(err, &mm):
			failures++
			fmt.Fprintf(out, "%s %s: %v\n%s\n", color.RedString("FAIL"), paths[i], err, errors.FlattenDetails(err))
		default:
			return errors.Wrapf(err, "reproducing %s", paths[i])
		}
	}
	if failures > 0 {
		return errors.Newf("%d of %d case(s) failed", failures, len(cases))
	}
	return nil
}
