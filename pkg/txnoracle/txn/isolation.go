// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package txn

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// IsolationLevel is a transaction isolation level the oracle can model.
type IsolationLevel int

const (
	ReadCommitted IsolationLevel = iota
	RepeatableRead
)

// IsolationLevels lists every supported level.
var IsolationLevels = []IsolationLevel{ReadCommitted, RepeatableRead}

// String returns the SQL name of the level.
func (l IsolationLevel) String() string {
	switch l {
	case ReadCommitted:
		return "READ COMMITTED"
	case RepeatableRead:
		return "REPEATABLE READ"
	}
	return "UNKNOWN"
}

// Alias returns the short name used on the command line and in reports.
func (l IsolationLevel) Alias() string {
	switch l {
	case ReadCommitted:
		return "RC"
	case RepeatableRead:
		return "RR"
	}
	return "?"
}

// UsesSnapshot returns whether plain reads use a transaction-wide snapshot.
func (l IsolationLevel) UsesSnapshot() bool {
	return l == RepeatableRead
}

// ParseIsolationLevel accepts an alias (RC, RR) or SQL name of a level.
func ParseIsolationLevel(s string) (IsolationLevel, error) {
	norm := strings.Join(strings.Fields(strings.ToUpper(strings.ReplaceAll(s, "_", " "))), " ")
	for _, l := range IsolationLevels {
		if norm == l.Alias() || norm == l.String() {
			return l, nil
		}
	}
	return 0, errors.Newf("invalid isolation level %q", s)
}
