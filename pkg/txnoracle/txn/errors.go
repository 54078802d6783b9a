// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package txn

import (
	"sort"
	"strings"
)

// ErrorSet is a set of error message substrings.
type ErrorSet map[string]struct{}

// MakeErrorSet returns a set containing subs.
func MakeErrorSet(subs ...string) ErrorSet {
	set := ErrorSet(map[string]struct{}{})
	for _, s := range subs {
		set.Add(s)
	}
	return set
}

func (set ErrorSet) Add(sub string) {
	set[sub] = struct{}{}
}

func (set ErrorSet) Merge(other ErrorSet) {
	for sub := range other {
		set[sub] = struct{}{}
	}
}

// Matches returns whether msg contains any substring of the set.
func (set ErrorSet) Matches(msg string) bool {
	for sub := range set {
		if strings.Contains(msg, sub) {
			return true
		}
	}
	return false
}

func (set ErrorSet) Empty() bool {
	return len(set) == 0
}

func (set ErrorSet) StringSlice() []string {
	subs := make([]string, 0, len(set))
	for sub := range set {
		subs = append(subs, sub)
	}
	sort.Strings(subs)
	return subs
}

func (set ErrorSet) String() string {
	return strings.Join(set.StringSlice(), ",")
}
