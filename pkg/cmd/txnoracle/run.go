// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/logtags"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle"
	"github.com/cockroachdb/txnoracle/pkg/util/humanizeutil"
	"github.com/cockroachdb/txnoracle/pkg/util/log"
	"github.com/cockroachdb/txnoracle/pkg/util/timeutil"
	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func makeRunCommand(cli *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Check random schedules of random transactions.",
		Long: `Check random schedules of random transactions.

Every iteration generates transactions over the existing tables and checks
up to --schedules distinct interleavings of them. Failures are printed, and
written to --report-dir when it is set, and the run continues with the next
iteration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			return cli.run(ctx, cmd.OutOrStdout())
		},
	}
}

func (c *cliContext) run(ctx context.Context, out io.Writer) error {
	db, sb, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	defer func() { _ = sb.Close() }()

	reg := prometheus.NewRegistry()
	if c.opts.MetricsAddr != "" {
		srv := serveMetrics(ctx, c.opts.MetricsAddr, reg)
		defer func() { _ = srv.Close() }()
	}
	o, err := txnoracle.New(txnoracle.SQLTarget(db, sb), c.opts, txnoracle.NewMetrics(reg))
	if err != nil {
		return err
	}

	seed := c.opts.Seed
	if seed == 0 {
		seed = timeutil.Now().UnixNano()
	}
	log.Infof(ctx, "running with seed %d", seed)
	rng := rand.New(rand.NewSource(seed))

	start := timeutil.Now()
	var iterations, failures int64
	for i := 0; c.opts.Iterations == 0 || i < c.opts.Iterations; i++ {
		if ctx.Err() != nil {
			break
		}
		err := o.Check(logtags.AddTag(ctx, "iter", i), rng)
		var mm *txnoracle.MismatchError
		switch {
		case err == nil:
		case errors.As(err, &mm):
			failures++
			fmt.Fprintf(out, "%s %v\n%s\n", color.RedString("FAIL"), mm, mm.Report)
		case ctx.Err() != nil:
			log.Infof(ctx, "interrupted: %v", err)
		default:
			return errors.Wrapf(err, "iteration %d", i)
		}
		iterations++
	}

	status := color.GreenString("PASS")
	if failures > 0 {
		status = color.RedString("FAIL")
	}
	fmt.Fprintf(out, "%s\n", summary(status, iterations, o.SchedulesChecked(), failures, timeutil.Since(start), seed))
	if failures > 0 {
		return errors.Newf("%d of %d iteration(s) failed", failures, iterations)
	}
	return nil
}

func summary(status string, iterations, schedules, failures int64, elapsed time.Duration, seed int64) string {
	return fmt.Sprintf("%s %s iteration(s), %s schedule(s) (%s), %s failure(s) in %s, seed %d",
		status,
		humanizeutil.Count(iterations),
		humanizeutil.Count(schedules),
		humanizeutil.Rate(schedules, elapsed),
		humanizeutil.Count(failures),
		humanizeutil.Duration(elapsed),
		seed)
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf(ctx, "serving metrics: %v", err)
		}
	}()
	log.Infof(ctx, "serving metrics on %s/metrics", addr)
	return srv
}
