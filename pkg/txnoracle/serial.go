// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package txnoracle

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle/infer"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle/txn"
	"github.com/cockroachdb/txnoracle/pkg/util/log"
)

// serialSchedule orders the transactions of an observed run one after the
// other, each at the point it finished:
//
//   - a transaction that ended with COMMIT or ROLLBACK contributes all its
//     statements up to that one;
//   - a deadlock victim contributes its statements up to the deadlocked one,
//     followed by a ROLLBACK;
//   - statements a victim issued after the deadlock run on their own when
//     abort is infer.AbortAutoCommit. Under infer.AbortErrorUntilEnd they are
//     dropped up to the end of the aborted transaction.
//
// Blocked statements and transactions that never finished are left out.
func serialSchedule(observed *txn.TestResult, abort infer.AbortMode) (txn.Schedule, error) {
	var s txn.Schedule
	// victims maps deadlock victims to whether their statements still belong
	// to the aborted transaction.
	victims := make(map[int]bool)
	for _, r := range observed.Statements {
		if r.Blocked {
			continue
		}
		tx := r.Stmt.Txn()
		typ := r.Stmt.Type()
		ends := typ == txn.Commit || typ == txn.Rollback
		inAborted, victim := victims[tx.ID]
		switch {
		case r.Deadlock:
			s = append(s, tx.Statements[:r.Stmt.Index()+1]...)
			rollback, err := txn.NewStatement(tx, len(tx.Statements), "ROLLBACK", nil)
			if err != nil {
				return nil, err
			}
			s = append(s, rollback)
			victims[tx.ID] = abort == infer.AbortErrorUntilEnd && !ends
		case victim && inAborted:
			victims[tx.ID] = !ends
		case victim:
			s = append(s, r.Stmt)
		case ends:
			s = append(s, tx.Statements[:r.Stmt.Index()+1]...)
		}
	}
	return s, nil
}

// runSerial reruns the transactions of actual one at a time and returns the
// result. The tables are restored to initial before it returns.
func (o *Oracle) runSerial(
	ctx context.Context,
	tables []txn.Table,
	set *txnSet,
	initial map[string][][]any,
	actual *txn.TestResult,
) (*txn.TestResult, error) {
	s, err := serialSchedule(actual, o.target.Behavior.Abort)
	if err != nil {
		return nil, errors.Wrap(err, "building serial schedule")
	}
	log.VEventf(ctx, 1, "executing serial schedule %s", s.TxnOrder())
	expected, err := o.exec.Execute(ctx, set.txns, s, actual.Isolation)
	if err != nil {
		err = errors.Wrap(err, "executing serial schedule")
		return nil, errors.CombineErrors(err, o.restore(ctx, tables, initial))
	}
	if expected.Stalled {
		if err := set.close(); err != nil {
			log.Warningf(ctx, "closing stalled transactions: %v", err)
		}
	}
	if err := o.restore(ctx, tables, initial); err != nil {
		return nil, err
	}
	if expected.Stalled {
		return nil, errors.Newf("serial schedule %s stalled", s.TxnOrder())
	}
	return expected, nil
}
