// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package harness executes a schedule against a live database and records
// what each statement did, in the order statements completed.
//
// Every transaction runs on its own worker goroutine and connection. The
// dispatcher hands statements to workers in schedule order and waits a
// bounded time for each one. A statement that does not complete in time is
// presumed blocked on a lock: its transaction is set aside and the
// dispatcher moves on, checking on it again whenever another statement
// completes.
//
// Nothing distinguishes a lock wait from a statement that is merely slow, so
// under scheduler jitter a slow statement can be reported as blocked.
package harness

import (
	"context"
	"slices"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/logtags"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle/txn"
	"github.com/cockroachdb/txnoracle/pkg/util/log"
	"github.com/cockroachdb/txnoracle/pkg/util/timeutil"
	"golang.org/x/exp/maps"
	"golang.org/x/sync/errgroup"
)

// DefaultWaitThreshold is the WaitThreshold of a zero Executor.
const DefaultWaitThreshold = 2 * time.Second

// Executor runs schedules. The zero value is usable for databases without
// warnings, deadlock reporting or final-state capture.
type Executor struct {
	// WaitThreshold bounds every wait for a statement to complete.
	WaitThreshold time.Duration
	// MaxStalledPolls ends a run after this many consecutive polls of the
	// blocked transactions completed nothing while no other statement could
	// be dispatched. Zero waits forever.
	MaxStalledPolls int
	// IsolationStmt returns the statement that sets the session isolation
	// level, or "" when none is needed.
	IsolationStmt func(txn.IsolationLevel) string
	// IsDeadlock reports whether a statement error made its transaction a
	// deadlock victim.
	IsDeadlock func(error) bool
	// Database, when set, is scanned for the final state.
	Database txn.Database
}

func (e *Executor) waitThreshold() time.Duration {
	if e.WaitThreshold <= 0 {
		return DefaultWaitThreshold
	}
	return e.WaitThreshold
}

type response struct {
	res *txn.StatementResult
	// err is an infrastructure failure; statement errors are in res.
	err error
}

// worker owns one transaction. At most one statement is in flight at a time,
// so done never holds more than one response.
type worker struct {
	tx       *txn.Transaction
	reqs     chan *txn.Statement
	done     chan response
	inflight *txn.Statement
}

// Execute runs schedule, which interleaves the statements of txns, at the
// given isolation level. Statement errors are part of the result; the
// returned error reports an infrastructure failure. When the run stalls
// (see MaxStalledPolls) the result is marked Stalled, the statements still
// in flight are abandoned and their transactions' connections should be
// closed by the caller.
func (e *Executor) Execute(
	ctx context.Context, txns []*txn.Transaction, schedule txn.Schedule, level txn.IsolationLevel,
) (*txn.TestResult, error) {
	ctx = logtags.AddTag(ctx, "exec", level.Alias())
	if e.IsolationStmt != nil {
		if stmt := e.IsolationStmt(level); stmt != "" {
			for _, tx := range txns {
				if err := tx.Conn.Exec(ctx, stmt); err != nil {
					return nil, errors.Wrapf(err, "setting isolation of transaction %d", tx.ID)
				}
			}
		}
	}

	r := &run{
		e:        e,
		workers:  make(map[int]*worker, len(txns)),
		blocked:  make(map[int]*worker),
		pending:  append(txn.Schedule(nil), schedule...),
		res:      &txn.TestResult{Isolation: level},
		stallLog: log.Every(5 * time.Second),
	}
	defer r.timer.Stop()
	for _, tx := range txns {
		r.workers[tx.ID] = &worker{
			tx:   tx,
			reqs: make(chan *txn.Statement),
			done: make(chan response, 1),
		}
	}
	for _, s := range schedule {
		if _, ok := r.workers[s.Txn().ID]; !ok {
			return nil, errors.AssertionFailedf("%s belongs to no scheduled transaction", s.ID())
		}
	}

	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var g errgroup.Group
	g.SetLimit(len(txns))
	for _, w := range r.workers {
		g.Go(func() error { return e.work(workCtx, w) })
	}

	stalled, err := r.loop(ctx)
	if err != nil {
		return nil, err
	}
	for _, w := range r.workers {
		close(w.reqs)
	}
	if stalled {
		log.Warningf(ctx, "run stalled with %d blocked transaction(s)", len(r.blocked))
		r.res.Stalled = true
	} else if err := g.Wait(); err != nil {
		return nil, err
	}

	if e.Database != nil {
		if r.res.FinalState, err = finalState(ctx, e.Database); err != nil {
			return nil, err
		}
	}
	return r.res, nil
}

func finalState(ctx context.Context, db txn.Database) (map[string][][]string, error) {
	tables, err := db.Tables(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "listing tables")
	}
	state := make(map[string][][]string, len(tables))
	for _, t := range tables {
		rows, err := db.Scan(ctx, t)
		if err != nil {
			return nil, errors.Wrapf(err, "scanning %s", t.Name)
		}
		state[t.Name] = txn.FormatRows(rows)
	}
	return state, nil
}

// work serves the statements of one transaction until its request channel is
// closed.
func (e *Executor) work(ctx context.Context, w *worker) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("transaction %d panicked: %v", w.tx.ID, r)
			w.done <- response{err: err}
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case stmt, ok := <-w.reqs:
			if !ok {
				return nil
			}
			res, err := e.exec(ctx, w.tx.Conn, stmt)
			w.done <- response{res: res, err: err}
		}
	}
}

func (e *Executor) exec(
	ctx context.Context, conn txn.Conn, stmt *txn.Statement,
) (*txn.StatementResult, error) {
	res := &txn.StatementResult{Stmt: stmt}
	var err error
	if stmt.Type().IsRead() {
		res.Rows, err = conn.Query(ctx, stmt.Query)
	} else {
		err = conn.Exec(ctx, stmt.Query)
	}
	if err != nil {
		res.Err = err.Error()
		res.Deadlock = e.IsDeadlock != nil && e.IsDeadlock(err)
	}
	if res.Warnings, err = conn.Warnings(ctx); err != nil {
		return nil, errors.Wrapf(err, "fetching warnings of %s", stmt.ID())
	}
	return res, nil
}

// run is the dispatcher state of one Execute call.
type run struct {
	e       *Executor
	workers map[int]*worker
	// pending holds the schedule entries not dispatched yet, in order.
	pending txn.Schedule
	blocked map[int]*worker
	res     *txn.TestResult
	timer   timeutil.Timer

	// stallLog limits the warnings of a run that makes no progress.
	stallLog log.EveryN
}

// loop dispatches the schedule until every statement completed, or until
// the run stalled.
func (r *run) loop(ctx context.Context) (stalled bool, _ error) {
	stalledPolls := 0
	for len(r.pending) > 0 || len(r.blocked) > 0 {
		progressed, err := r.pass(ctx)
		if err != nil {
			return false, err
		}
		if progressed {
			stalledPolls = 0
			continue
		}
		// Everything left belongs to blocked transactions.
		n, err := r.pollBlocked(ctx)
		if err != nil {
			return false, err
		}
		if n > 0 {
			stalledPolls = 0
			continue
		}
		stalledPolls++
		if r.stallLog.ShouldLog() {
			log.Warningf(ctx, "no progress after %d poll(s) of %d blocked transaction(s)",
				stalledPolls, len(r.blocked))
		}
		if r.e.MaxStalledPolls > 0 && stalledPolls >= r.e.MaxStalledPolls {
			return true, nil
		}
	}
	return false, nil
}

// pass walks the pending entries once. It ends early after the first
// completion, so that the next pass restarts from the earliest entry that
// may have been unblocked. It reports whether any entry was consumed.
func (r *run) pass(ctx context.Context) (progressed bool, _ error) {
	for i := 0; i < len(r.pending); {
		stmt := r.pending[i]
		id := stmt.Txn().ID
		if _, ok := r.blocked[id]; ok {
			i++
			continue
		}
		w := r.workers[id]
		log.VEventf(ctx, 3, "dispatching %s", stmt.ID())
		select {
		case w.reqs <- stmt:
		case <-ctx.Done():
			return false, ctx.Err()
		}
		w.inflight = stmt
		r.pending = append(r.pending[:i], r.pending[i+1:]...)
		progressed = true

		completed, err := r.wait(ctx, w)
		if err != nil {
			return false, err
		}
		if !completed {
			log.VEventf(ctx, 2, "%s blocked", stmt.ID())
			r.blocked[id] = w
			r.res.Statements = append(r.res.Statements, &txn.StatementResult{Stmt: stmt, Blocked: true})
			continue
		}
		if _, err := r.pollBlocked(ctx); err != nil {
			return false, err
		}
		return true, nil
	}
	return progressed, nil
}

// pollBlocked gives every blocked transaction, in id order, one more bounded
// wait. It returns how many of them completed.
func (r *run) pollBlocked(ctx context.Context) (int, error) {
	ids := maps.Keys(r.blocked)
	slices.Sort(ids)
	n := 0
	for _, id := range ids {
		completed, err := r.wait(ctx, r.blocked[id])
		if err != nil {
			return n, err
		}
		if completed {
			log.VEventf(ctx, 2, "transaction %d unblocked", id)
			delete(r.blocked, id)
			n++
		}
	}
	return n, nil
}

// wait waits up to the threshold for the in-flight statement of w and
// records its result when it completes.
func (r *run) wait(ctx context.Context, w *worker) (completed bool, _ error) {
	r.timer.Reset(r.e.waitThreshold())
	select {
	case resp := <-w.done:
		if resp.err != nil {
			return false, resp.err
		}
		w.inflight = nil
		r.res.Statements = append(r.res.Statements, resp.res)
		return true, nil
	case <-r.timer.C:
		r.timer.Read = true
		return false, nil
	case <-ctx.Done():
		return false, errors.Wrapf(ctx.Err(), "waiting for %s", w.inflight.ID())
	}
}
