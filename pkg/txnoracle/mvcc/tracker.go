// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package mvcc

// Tracker records which transactions have finished and the snapshot each
// transaction reads from. A transaction counts as finished once it committed,
// rolled back or was aborted; the versions of the latter two are purged so
// treating them as committed exposes nothing.
type Tracker struct {
	committed map[int]struct{}
	snapshots map[int]map[int]struct{}
}

// NewTracker returns a Tracker in which only the initial transaction has
// committed.
func NewTracker() *Tracker {
	return &Tracker{
		committed: map[int]struct{}{InitialTxnID: {}},
		snapshots: make(map[int]map[int]struct{}),
	}
}

// Commit marks a transaction finished.
func (t *Tracker) Commit(txnID int) {
	t.committed[txnID] = struct{}{}
}

// Committed reports whether a transaction has finished.
func (t *Tracker) Committed(txnID int) bool {
	_, ok := t.committed[txnID]
	return ok
}

// EstablishSnapshot fixes the snapshot of a transaction to the currently
// committed transactions plus itself. It is a no-op when the snapshot is
// already fixed.
func (t *Tracker) EstablishSnapshot(txnID int) {
	if _, ok := t.snapshots[txnID]; ok {
		return
	}
	snap := make(map[int]struct{}, len(t.committed)+1)
	for id := range t.committed {
		snap[id] = struct{}{}
	}
	snap[txnID] = struct{}{}
	t.snapshots[txnID] = snap
}

// HasSnapshot reports whether the snapshot of a transaction is fixed.
func (t *Tracker) HasSnapshot(txnID int) bool {
	_, ok := t.snapshots[txnID]
	return ok
}

// ReadCommitted is the visibility of a current read by reader: the initial
// transaction, reader itself and every transaction committed at call time.
// Later commits become visible to the returned function too.
func (t *Tracker) ReadCommitted(reader int) Visibility {
	return func(txnID int) bool {
		return txnID == InitialTxnID || txnID == reader || t.Committed(txnID)
	}
}

// SnapshotRead is the visibility of a snapshot read by reader. Without a
// fixed snapshot it falls back to the committed transactions, which is what
// the snapshot would contain if it were fixed now.
func (t *Tracker) SnapshotRead(reader int) Visibility {
	snap, ok := t.snapshots[reader]
	if !ok {
		return t.ReadCommitted(reader)
	}
	return func(txnID int) bool {
		if txnID == InitialTxnID || txnID == reader {
			return true
		}
		_, ok := snap[txnID]
		return ok
	}
}
