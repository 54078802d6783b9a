// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package log

import "os"

var exitOverride struct {
	f func(int)
}

// SetExitFunc allows setting a function that will be called to exit the
// process when a Fatal message is generated.
func SetExitFunc(f func(int)) {
	logging.mu.Lock()
	defer logging.mu.Unlock()
	exitOverride.f = f
}

// ResetExitFunc undoes any prior call to SetExitFunc.
func ResetExitFunc() {
	logging.mu.Lock()
	defer logging.mu.Unlock()
	exitOverride.f = nil
}

func exit(code int) {
	logging.mu.Lock()
	f := exitOverride.f
	logging.mu.Unlock()
	if f != nil {
		f(code)
		return
	}
	os.Exit(code)
}
