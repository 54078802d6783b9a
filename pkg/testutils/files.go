// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package testutils

import (
	"os"
	"path/filepath"
)

// TestFataler is the part of testing.TB that helpers need to fail a test.
type TestFataler interface {
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})
	Helper()
}

// TestDataPath returns a path to an asset in the testdata directory of the
// package under test. It fails the test when the asset does not exist.
func TestDataPath(t TestFataler, relative ...string) string {
	t.Helper()
	relative = append([]string{"testdata"}, relative...)
	path := filepath.Join(relative...)
	if _, err := os.Stat(path); err != nil {
		t.Fatal(err)
	}
	return path
}
