// Copyright 2016 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package humanizeutil renders counts, rates and durations for people.
package humanizeutil

import (
	"math"
	"time"

	"github.com/dustin/go-humanize"
)

// Count renders n with thousands separators, e.g. 1,234,567.
func Count(n int64) string {
	return humanize.Comma(n)
}

// Rate renders n events over d as a per-second rate with one decimal.
func Rate(n int64, d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	perSec := float64(n) / d.Seconds()
	return humanize.Commaf(math.Round(perSec*10)/10) + "/s"
}

// Duration formats a duration in a user-friendly way. The result is not exact
// and the granularity is no smaller than microseconds.
//
// Examples:
//
//	0              ->  "0µs"
//	123456ns       ->  "123µs"
//	12345678ns     ->  "12ms"
//	12345678912ns  ->  "12.3s"
func Duration(val time.Duration) string {
	val = val.Round(time.Microsecond)
	switch {
	case val == 0:
		return "0µs"
	case val < time.Millisecond:
		return val.String()
	case val < time.Second:
		return val.Round(time.Millisecond).String()
	case val < time.Minute:
		return val.Round(100 * time.Millisecond).String()
	}
	return val.Round(time.Second).String()
}
