// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package txnoracle checks the transaction isolation of a database by
// running random interleavings of concurrent transactions and comparing what
// the database did with what a shadow model of the isolation level says it
// should have done.
//
// One iteration (Oracle.Check) generates a few transactions over the tables
// of the database under test, then for each of a number of distinct
// schedules of their statements:
//
//  1. captures the initial contents of every table,
//  2. executes the schedule under an isolation level, recording statement
//     outcomes in completion order,
//  3. restores the initial contents,
//  4. replays the recorded completions against scratch copies of the tables
//     to infer what every statement should have returned,
//  5. compares both results.
//
// With Options.Oracle set to OracleWriteSerializable, steps 4 and 5 instead
// rerun the transactions one at a time in the order they finished and
// compare only the final contents of the tables.
//
// Disagreements and statement errors outside the expected set are returned
// as a *MismatchError carrying a Report.
package txnoracle

import (
	"context"
	"math/rand"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/logtags"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle/compare"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle/harness"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle/infer"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle/schedule"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle/sqldb"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle/txn"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle/workload"
	"github.com/cockroachdb/txnoracle/pkg/util/log"
	"github.com/cockroachdb/txnoracle/pkg/util/timeutil"
)

// Database is the database under test.
type Database interface {
	txn.Database
	// Restore replaces the rows of table.
	Restore(ctx context.Context, table txn.Table, rows [][]any) error
	// Connect opens a dedicated connection for one transaction.
	Connect(ctx context.Context) (txn.Conn, error)
}

// Target bundles the database under test with its dialect-specific
// behavior.
type Target struct {
	DB       Database
	Sandbox  infer.Sandbox
	Behavior infer.Behavior
	// IsolationStmt returns the statement setting a session's isolation
	// level.
	IsolationStmt func(txn.IsolationLevel) string
	IsDeadlock    func(error) bool
	// MySQLSyntax allows MySQL-only statements in generated workloads.
	MySQLSyntax bool
}

// SQLTarget builds the target of a database opened with sqldb.Open.
func SQLTarget(db *sqldb.DB, sb *sqldb.Sandbox) Target {
	d := db.Dialect()
	return Target{
		DB:            db,
		Sandbox:       sb,
		Behavior:      d.Behavior(),
		IsolationStmt: d.IsolationStmt,
		IsDeadlock:    d.IsDeadlock,
		MySQLSyntax:   d.SupportsReplace(),
	}
}

// Oracle checks schedules against one target. It is not safe for concurrent
// use: every schedule runs against the same tables.
type Oracle struct {
	target  Target
	opts    Options
	levels  []txn.IsolationLevel
	metrics *Metrics
	exec    *harness.Executor

	// checked counts the schedules checked so far.
	checked int64
	// failures numbers the reports written to opts.ReportDir.
	failures int
}

// New validates opts and creates an Oracle. A nil metrics is replaced by
// unregistered metrics.
func New(target Target, opts Options, metrics *Metrics) (*Oracle, error) {
	if target.DB == nil || target.Sandbox == nil {
		return nil, errors.AssertionFailedf("target needs a database and a sandbox")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	levels, err := opts.isolationLevels()
	if err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Oracle{
		target:  target,
		opts:    opts,
		levels:  levels,
		metrics: metrics,
		exec: &harness.Executor{
			WaitThreshold:   opts.WaitThreshold,
			MaxStalledPolls: opts.MaxStalledPolls,
			IsolationStmt:   target.IsolationStmt,
			IsDeadlock:      target.IsDeadlock,
			Database:        target.DB,
		},
	}, nil
}

// Metrics returns the metrics the oracle updates.
func (o *Oracle) Metrics() *Metrics { return o.metrics }

// SchedulesChecked returns the number of schedules executed and compared so
// far, failed ones included.
func (o *Oracle) SchedulesChecked() int64 { return o.checked }

// txnSet owns the connections of one set of transactions.
type txnSet struct {
	txns   []*txn.Transaction
	closed bool
}

func (s *txnSet) close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	var err error
	for _, t := range s.txns {
		if cerr := t.Close(); cerr != nil {
			err = errors.CombineErrors(err, errors.Wrapf(cerr, "closing transaction %d", t.ID))
		}
	}
	return err
}

// Check runs one iteration: it generates transactions over the current
// tables and checks up to Options.NumSchedules distinct schedules of them.
// It stops at the first failing schedule.
func (o *Oracle) Check(ctx context.Context, rng *rand.Rand) (retErr error) {
	tables, err := o.tables(ctx)
	if err != nil {
		return err
	}
	gen, err := workload.NewGenerator(o.opts.Workload, tables, o.target.MySQLSyntax)
	if err != nil {
		return err
	}
	txns, err := schedule.GenerateTransactions(ctx, rng, schedule.Config{
		FixedTransactions: o.opts.FixedTransactions,
		ExpectedErrors:    o.opts.expectedErrors(),
	}, gen, o.target.DB.Connect)
	if err != nil {
		return err
	}
	set := &txnSet{txns: txns}
	defer func() {
		if err := set.close(); err != nil && retErr == nil {
			retErr = err
		}
	}()

	schedules := schedule.Gen(rng, txns, o.opts.NumSchedules)
	log.Infof(ctx, "checking %d schedule(s) of %d transaction(s)", len(schedules), len(txns))
	for _, t := range txns {
		log.VEventf(ctx, 2, "%s", t)
	}
	for i, s := range schedules {
		level := o.levels[rng.Intn(len(o.levels))]
		sctx := logtags.AddTag(ctx, "schedule", i)
		stalled, err := o.checkSchedule(sctx, tables, set, s, level)
		if err != nil {
			return err
		}
		if stalled {
			log.Warningf(sctx, "abandoning the remaining %d schedule(s)", len(schedules)-i-1)
			return nil
		}
	}
	return nil
}

// Reproduce runs a reproduction case under every isolation level, restoring
// the tables between runs. Failures of all levels are combined.
func (o *Oracle) Reproduce(ctx context.Context, c *schedule.Case) error {
	tables, err := o.tables(ctx)
	if err != nil {
		return err
	}
	var errs error
	for _, level := range txn.IsolationLevels {
		err := o.reproduce(logtags.AddTag(ctx, "repro", nil), tables, c, level)
		errs = errors.CombineErrors(errs, err)
	}
	return errs
}

func (o *Oracle) reproduce(
	ctx context.Context, tables []txn.Table, c *schedule.Case, level txn.IsolationLevel,
) (retErr error) {
	txns, err := c.Transactions(ctx, o.target.DB.Connect, o.opts.expectedErrors())
	if err != nil {
		return err
	}
	set := &txnSet{txns: txns}
	defer func() {
		if err := set.close(); err != nil && retErr == nil {
			retErr = err
		}
	}()
	s, err := c.Schedule(txns)
	if err != nil {
		return err
	}
	_, err = o.checkSchedule(ctx, tables, set, s, level)
	return err
}

func (o *Oracle) tables(ctx context.Context) ([]txn.Table, error) {
	tables, err := o.target.DB.Tables(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "listing tables")
	}
	if len(tables) == 0 {
		return nil, errors.New("the database under test has no tables")
	}
	return tables, nil
}

// checkSchedule executes one schedule and compares it with its expected
// result. The tables are restored to their initial contents before it
// returns. stalled reports that the run gave up on blocked transactions,
// whose connections are then closed.
func (o *Oracle) checkSchedule(
	ctx context.Context, tables []txn.Table, set *txnSet, s txn.Schedule, level txn.IsolationLevel,
) (stalled bool, _ error) {
	start := timeutil.Now()
	log.VEventf(ctx, 1, "executing %s under %s", s.TxnOrder(), level)
	initial, err := o.capture(ctx, tables)
	if err != nil {
		return false, err
	}

	actual, err := o.exec.Execute(ctx, set.txns, s, level)
	if err != nil {
		err = errors.Wrap(err, "executing schedule")
		return false, errors.CombineErrors(err, o.restore(ctx, tables, initial))
	}
	o.metrics.recordExecution(actual)
	if actual.Stalled {
		// Abandoned statements hold locks that would block the restore.
		if err := set.close(); err != nil {
			log.Warningf(ctx, "closing stalled transactions: %v", err)
		}
	}
	if err := o.restore(ctx, tables, initial); err != nil {
		return false, err
	}

	expected, diffs, err := o.expect(ctx, tables, set, initial, actual)
	if err != nil {
		return false, err
	}
	report := &Report{
		Isolation:   level,
		Txns:        set.txns,
		Schedule:    s,
		Actual:      actual,
		Expected:    expected,
		Differences: diffs,
		Unexpected:  unexpectedErrors(actual),
	}
	o.checked++
	o.metrics.observeSchedule(timeutil.Since(start))
	if !report.Failed() {
		log.VEventf(ctx, 1, "schedule %s passed", s.TxnOrder())
		return actual.Stalled, nil
	}

	if len(report.Differences) > 0 {
		o.metrics.Mismatches.Inc()
	}
	o.metrics.UnexpectedErrors.Add(float64(len(report.Unexpected)))
	if o.opts.ReportDir != "" {
		o.failures++
		if err := report.WriteFiles(o.opts.ReportDir, o.failures); err != nil {
			log.Errorf(ctx, "writing report: %v", err)
		}
	}
	return actual.Stalled, newMismatchError(report)
}

// expect computes the expected result of actual with the configured oracle
// and the differences between both.
func (o *Oracle) expect(
	ctx context.Context,
	tables []txn.Table,
	set *txnSet,
	initial map[string][][]any,
	actual *txn.TestResult,
) (*txn.TestResult, []compare.Difference, error) {
	if o.opts.Oracle == OracleWriteSerializable {
		if actual.Stalled {
			// The transactions' connections are closed; there is nothing to
			// rerun.
			actual.FinalState = nil
			return &txn.TestResult{Isolation: actual.Isolation}, nil, nil
		}
		expected, err := o.runSerial(ctx, tables, set, initial, actual)
		if err != nil {
			return nil, nil, err
		}
		return expected, compare.FinalStates(actual, expected), nil
	}

	expected, err := infer.Infer(ctx, o.target.Sandbox, o.target.Behavior, tables, initial, actual)
	if err != nil {
		return nil, nil, errors.Wrap(err, "inferring expected result")
	}
	if actual.Stalled {
		// The final state depends on what the abandoned transactions did.
		actual.FinalState, expected.FinalState = nil, nil
	}
	return expected, compare.Results(actual, expected, compare.Options{Warnings: o.opts.CompareWarnings}), nil
}

func (o *Oracle) capture(ctx context.Context, tables []txn.Table) (map[string][][]any, error) {
	initial := make(map[string][][]any, len(tables))
	for _, t := range tables {
		rows, err := o.target.DB.Scan(ctx, t)
		if err != nil {
			return nil, errors.Wrapf(err, "capturing %s", t.Name)
		}
		initial[t.Name] = rows
	}
	return initial, nil
}

func (o *Oracle) restore(ctx context.Context, tables []txn.Table, initial map[string][][]any) error {
	for _, t := range tables {
		if err := o.target.DB.Restore(ctx, t, initial[t.Name]); err != nil {
			return errors.Wrapf(err, "restoring %s", t.Name)
		}
	}
	return nil
}

// unexpectedErrors returns the completed statements whose error is outside
// their expected set.
func unexpectedErrors(res *txn.TestResult) []*txn.StatementResult {
	var out []*txn.StatementResult
	for _, s := range res.Statements {
		if s.Blocked || !s.HasError() {
			continue
		}
		if !s.Stmt.ExpectedErrors.Matches(s.Err) {
			out = append(out, s)
		}
	}
	return out
}
