// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package main

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle/sqldb"
	"github.com/spf13/pflag"
)

// cliContext holds the options shared by every command.
type cliContext struct {
	configFile string
	opts       txnoracle.Options
}

func (c *cliContext) addFlags(fs *pflag.FlagSet) {
	o := &c.opts
	fs.StringVar(&c.configFile, "config", "", "YAML (.yaml, .yml) or TOML (.toml) options file; flags override its values")
	fs.StringVar(&o.Driver, "driver", o.Driver, "database/sql driver, one of "+strings.Join(sqldb.Drivers, ", "))
	fs.StringVar(&o.DSN, "dsn", o.DSN, "data source name of the database under test")
	fs.StringVar(&o.Dialect, "dialect", o.Dialect, "SQL dialect, one of "+strings.Join(sqldb.Dialects, ", "))
	fs.IntVar(&o.NumSchedules, "schedules", o.NumSchedules, "distinct schedules checked per iteration")
	fs.IntVar(&o.FixedTransactions, "txns", o.FixedTransactions, "transactions per iteration, 0 for a random count")
	fs.DurationVar(&o.WaitThreshold, "wait-threshold", o.WaitThreshold, "time after which a statement is presumed blocked")
	fs.IntVar(&o.MaxStalledPolls, "max-stalled-polls", o.MaxStalledPolls, "give up on a schedule after this many polls without progress, 0 to wait forever")
	fs.StringVar(&o.Isolation, "isolation", o.Isolation, "isolation level: random, RC or RR")
	fs.StringVar(&o.Oracle, "oracle", o.Oracle, "expected-result oracle: "+txnoracle.OracleInfer+" or "+txnoracle.OracleWriteSerializable)
	fs.IntVar(&o.Iterations, "iterations", o.Iterations, "iterations to run, 0 to run until interrupted")
	fs.Int64Var(&o.Seed, "seed", o.Seed, "random seed, 0 for a time-based seed")
	fs.StringSliceVar(&o.ExpectedErrors, "expected-errors", o.ExpectedErrors, "error substrings statements may legitimately return")
	fs.BoolVar(&o.CompareWarnings, "compare-warnings", o.CompareWarnings, "also compare statement warnings")
	fs.StringVar(&o.ReportDir, "report-dir", o.ReportDir, "directory receiving failure reports and reproduction cases")
	fs.StringVar(&o.MetricsAddr, "metrics-addr", o.MetricsAddr, "address serving prometheus metrics on /metrics")
	fs.StringVar(&o.LogFormat, "log-format", o.LogFormat, "log format: text or json")
	fs.IntVarP(&o.Verbosity, "verbosity", "v", o.Verbosity, "log verbosity")
	fs.IntVar(&o.Workload.NumTables, "tables", o.Workload.NumTables, "tables created by setup")
	fs.IntVar(&o.Workload.NumColumns, "columns", o.Workload.NumColumns, "value columns per table")
	fs.IntVar(&o.Workload.NumRows, "rows", o.Workload.NumRows, "rows per table")
	fs.IntVar(&o.Workload.MaxStatements, "max-statements", o.Workload.MaxStatements, "maximum statements per transaction besides BEGIN and its end")
}

// resolve loads the options file, if any, and applies the flags set on the
// command line on top of it.
func (c *cliContext) resolve(fs *pflag.FlagSet) error {
	if c.configFile == "" {
		return c.opts.Validate()
	}
	type setFlag struct {
		value string
		slice []string
	}
	set := make(map[string]setFlag)
	fs.Visit(func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			set[f.Name] = setFlag{slice: sv.GetSlice()}
			return
		}
		set[f.Name] = setFlag{value: f.Value.String()}
	})

	opts, err := txnoracle.LoadOptions(c.configFile)
	if err != nil {
		return err
	}
	// The flags point into c.opts, so reapplying them overrides the file.
	c.opts = opts
	for name, v := range set {
		f := fs.Lookup(name)
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			if err := sv.Replace(v.slice); err != nil {
				return errors.Wrapf(err, "reapplying --%s", name)
			}
			continue
		}
		if err := f.Value.Set(v.value); err != nil {
			return errors.Wrapf(err, "reapplying --%s", name)
		}
	}
	return c.opts.Validate()
}
