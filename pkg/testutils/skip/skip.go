// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package skip

import (
	"os"
	"testing"
)

// UnderShort skips this test if the -short flag is specified.
func UnderShort(t testing.TB, args ...interface{}) {
	if testing.Short() {
		t.Skip(append([]interface{}{"disabled under -short"}, args...))
	}
}

// UnlessEnv skips this test unless the environment variable is set, and
// returns its value otherwise. Tests against a live database use it to pick
// up a DSN.
func UnlessEnv(t testing.TB, name string) string {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		t.Skipf("%s not set", name)
	}
	return v
}
