// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package schedule

import "math/rand"

func newRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}
