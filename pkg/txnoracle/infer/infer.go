// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package infer recomputes what a concurrent execution should have produced.
//
// Infer replays the statements of an observed execution in their observed
// completion order against an mvcc.Store seeded with the initial table
// contents. Each statement runs on scratch copies of the tables it
// references, filled with exactly the row versions the isolation level lets
// its transaction see. Reads report what they return there; writes are
// diffed to append new versions to the store.
package infer

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/logtags"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle/mvcc"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle/sqlrewrite"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle/txn"
	"github.com/cockroachdb/txnoracle/pkg/util/log"
)

// run is the state of one Infer call.
type run struct {
	sb      Sandbox
	b       Behavior
	rw      *sqlrewrite.Rewriter
	level   txn.IsolationLevel
	tables  map[string]txn.Table
	names   []string
	store   *mvcc.Store
	tracker *mvcc.Tracker
	aborted map[int]bool
}

// Infer computes the expected result of observed. tables and initial
// describe the database before the execution; initial maps table names to
// their rows in column order. Statements observed as blocked are skipped:
// only their completion counts.
func Infer(
	ctx context.Context,
	sb Sandbox,
	b Behavior,
	tables []txn.Table,
	initial map[string][][]any,
	observed *txn.TestResult,
) (*txn.TestResult, error) {
	ctx = logtags.AddTag(ctx, "infer", observed.Isolation.Alias())
	r := &run{
		sb:      sb,
		b:       b,
		rw:      sqlrewrite.New(b.ParseStatements),
		level:   observed.Isolation,
		tables:  make(map[string]txn.Table, len(tables)),
		store:   mvcc.NewStore(),
		tracker: mvcc.NewTracker(),
		aborted: make(map[int]bool),
	}
	if err := sb.Reset(ctx); err != nil {
		return nil, errors.Wrap(err, "resetting sandbox")
	}
	for _, t := range tables {
		r.tables[t.Name] = t
		r.names = append(r.names, t.Name)
		if err := r.store.Seed(t.Name, t.Columns, initial[t.Name]); err != nil {
			return nil, err
		}
	}

	res := &txn.TestResult{
		Isolation:  observed.Isolation,
		FinalState: make(map[string][][]string, len(tables)),
	}
	seq := 0
	for _, obs := range observed.Statements {
		if obs.Blocked {
			continue
		}
		seq++
		sr, err := r.replay(ctx, seq, obs)
		if err != nil {
			return nil, errors.Wrapf(err, "replaying %s", obs.Stmt.ID())
		}
		res.Statements = append(res.Statements, sr)
	}

	// Rolled back and aborted transactions were purged; every other record
	// counts, whether or not its transaction finished.
	for _, name := range r.names {
		rows, err := r.store.Latest(name)
		if err != nil {
			return nil, err
		}
		vals := make([][]any, len(rows))
		for i, row := range rows {
			vals[i] = row.Values
		}
		res.FinalState[name] = txn.FormatRows(vals)
	}
	return res, nil
}

func (r *run) abort(txnID int) {
	r.store.Purge(txnID)
	r.tracker.Commit(txnID)
	r.aborted[txnID] = true
}

func (r *run) replay(
	ctx context.Context, seq int, obs *txn.StatementResult,
) (*txn.StatementResult, error) {
	stmt := obs.Stmt
	id := stmt.Txn().ID
	res := &txn.StatementResult{Stmt: stmt}
	log.VEventf(ctx, 2, "replaying %s (seq %d)", stmt, seq)

	if obs.Deadlock {
		// The victim is chosen by the database; take its word for it.
		res.Err = obs.Err
		res.Warnings = obs.Warnings
		res.Deadlock = true
		r.abort(id)
		return res, nil
	}
	if r.aborted[id] {
		switch typ := stmt.Type(); {
		case r.b.Abort == AbortErrorUntilEnd && (typ == txn.Commit || typ == txn.Rollback):
			delete(r.aborted, id)
			return res, nil
		case r.b.Abort == AbortErrorUntilEnd:
			res.Err = r.b.AbortedTxnError
			return res, nil
		case typ == txn.Begin || typ == txn.Commit || typ == txn.Rollback:
			return res, nil
		}
	}

	var err error
	switch stmt.Type() {
	case txn.Begin:
		r.tracker.EstablishSnapshot(id)
	case txn.Commit:
		r.tracker.Commit(id)
	case txn.Rollback:
		r.store.Purge(id)
		r.tracker.Commit(id)
	case txn.Select, txn.SelectForUpdate:
		err = r.read(ctx, seq, stmt, res)
	case txn.Insert, txn.Update, txn.Delete, txn.Replace:
		err = r.write(ctx, seq, stmt, obs, res)
	default:
		// Nothing to model; the observation stands.
		res.Rows, res.Err, res.Warnings = obs.Rows, obs.Err, obs.Warnings
	}
	if err != nil {
		return nil, err
	}
	if res.Err != "" && r.b.AbortOnError && !r.aborted[id] {
		r.abort(id)
	}
	return res, nil
}

func scratchName(txnID, seq int, table string) string {
	return fmt.Sprintf("%s%d_%d_%s", txn.ReservedPrefix, txnID, seq, table)
}

// view describes one scratch table built for a statement.
type view struct {
	table   txn.Table
	scratch string
	rowID   bool
	rows    []mvcc.Row
}

// withViews creates a scratch table per view, runs fn and drops the tables
// again. A failure to drop is reported unless fn failed first.
func (r *run) withViews(ctx context.Context, views []*view, fn func() error) (retErr error) {
	defer func() {
		for _, v := range views {
			if err := r.sb.DropTable(ctx, v.scratch); err != nil && retErr == nil {
				retErr = errors.Wrapf(err, "dropping %s", v.scratch)
			}
		}
	}()
	for _, v := range views {
		if err := r.sb.CreateTable(ctx, v.scratch, v.table); err != nil {
			return errors.Wrapf(err, "creating %s", v.scratch)
		}
		cols := v.table.Columns
		vals := make([][]any, len(v.rows))
		if v.rowID {
			if err := r.sb.AddIntColumn(ctx, v.scratch, RowIDColumn, false /* zeroDefault */); err != nil {
				return errors.Wrapf(err, "adding row id to %s", v.scratch)
			}
			cols = append(append([]string(nil), cols...), RowIDColumn)
			for i, row := range v.rows {
				vals[i] = append(append([]any(nil), row.Values...), int64(row.RowID))
			}
		} else {
			for i, row := range v.rows {
				vals[i] = row.Values
			}
		}
		if len(vals) > 0 {
			if err := r.sb.Load(ctx, v.scratch, cols, vals); err != nil {
				return errors.Wrapf(err, "loading %s", v.scratch)
			}
		}
	}
	return fn()
}

func (r *run) views(
	seq, txnID int, names []string, vis mvcc.Visibility, withRowID string,
) ([]*view, map[string]string, error) {
	views := make([]*view, 0, len(names))
	scratch := make(map[string]string, len(names))
	for _, n := range names {
		rows, err := r.store.Visible(n, vis)
		if err != nil {
			return nil, nil, err
		}
		v := &view{table: r.tables[n], scratch: scratchName(txnID, seq, n), rowID: n == withRowID, rows: rows}
		views = append(views, v)
		scratch[n] = v.scratch
	}
	return views, scratch, nil
}

func (r *run) warnings(ctx context.Context, scratch map[string]string) ([][]string, error) {
	ws, err := r.sb.Warnings(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetching warnings")
	}
	for _, w := range ws {
		for i := range w {
			w[i] = sqlrewrite.RestoreNames(w[i], scratch)
		}
	}
	return ws, nil
}

func (r *run) read(ctx context.Context, seq int, stmt *txn.Statement, res *txn.StatementResult) error {
	id := stmt.Txn().ID
	vis := r.tracker.ReadCommitted(id)
	if r.level.UsesSnapshot() && stmt.Type() == txn.Select && !r.aborted[id] {
		r.tracker.EstablishSnapshot(id)
		vis = r.tracker.SnapshotRead(id)
	}
	names := r.rw.Tables(stmt.Query, r.names)
	views, scratch, err := r.views(seq, id, names, vis, "" /* withRowID */)
	if err != nil {
		return err
	}
	return r.withViews(ctx, views, func() error {
		rows, qerr := r.sb.Query(ctx, r.rw.RenameTables(stmt.Query, scratch))
		if qerr != nil {
			res.Err = sqlrewrite.RestoreNames(qerr.Error(), scratch)
		} else {
			res.Rows = rows
		}
		res.Warnings, err = r.warnings(ctx, scratch)
		return err
	})
}

func (r *run) write(
	ctx context.Context, seq int, stmt *txn.Statement, obs, res *txn.StatementResult,
) error {
	id := stmt.Txn().ID
	target, ok := r.rw.Target(stmt.Query, r.names)
	if !ok {
		// No known table to model, e.g. a write to a missing table.
		res.Err, res.Warnings = obs.Err, obs.Warnings
		return nil
	}
	// Writes are current reads at every isolation level.
	names := r.rw.Tables(stmt.Query, r.names)
	views, scratch, err := r.views(seq, id, names, r.tracker.ReadCommitted(id), target)
	if err != nil {
		return err
	}
	var before []mvcc.Row
	for _, v := range views {
		if v.rowID {
			before = v.rows
		}
	}
	table := r.tables[target]
	return r.withViews(ctx, views, func() error {
		q := stmt.Query
		cols := append(append([]string(nil), table.Columns...), RowIDColumn)
		switch stmt.Type() {
		case txn.Insert, txn.Replace:
			if q, err = r.rw.ExplicitInsertColumns(q, target, table.Columns); err != nil {
				return err
			}
		case txn.Update:
			if err := r.sb.AddIntColumn(ctx, scratch[target], MarkerColumn, true /* zeroDefault */); err != nil {
				return errors.Wrapf(err, "adding marker to %s", scratch[target])
			}
			if q, err = r.rw.AddUpdateMarker(q, MarkerColumn); err != nil {
				return err
			}
			cols = append(cols, MarkerColumn)
		}
		q = r.rw.RenameTables(q, scratch)
		log.VEventf(ctx, 3, "rewritten %s: %s", stmt.ID(), q)

		execErr := r.sb.Exec(ctx, q)
		if res.Warnings, err = r.warnings(ctx, scratch); err != nil {
			return err
		}
		if execErr != nil {
			res.Err = sqlrewrite.RestoreNames(execErr.Error(), scratch)
			return nil
		}
		after, err := r.sb.Rows(ctx, scratch[target], cols)
		if err != nil {
			return errors.Wrapf(err, "reading %s", scratch[target])
		}
		affected, err := Diff(stmt.Type(), before, after, len(table.Columns))
		if err != nil {
			return err
		}
		return r.record(target, seq, id, affected)
	})
}

func (r *run) record(table string, seq, txnID int, a Affected) error {
	appendRec := func(rec mvcc.Record) error {
		rec.Version, rec.TxnID = seq, txnID
		return r.store.Append(table, rec)
	}
	for _, row := range a.Deleted {
		if err := appendRec(mvcc.Record{RowID: row.RowID, Values: row.Values, Deleted: true}); err != nil {
			return err
		}
	}
	for _, row := range a.Updated {
		if err := appendRec(mvcc.Record{RowID: row.RowID, Values: row.Values}); err != nil {
			return err
		}
	}
	for _, vals := range a.Inserted {
		rid, err := r.store.NewRowID(table)
		if err != nil {
			return err
		}
		if err := appendRec(mvcc.Record{RowID: rid, Values: vals}); err != nil {
			return err
		}
	}
	return nil
}
