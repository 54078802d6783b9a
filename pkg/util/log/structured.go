// Copyright 2015 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package log

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/logtags"
)

// FormatWithContextTags formats the string and prepends the context
// tags.
func FormatWithContextTags(ctx context.Context, format string, args ...interface{}) string {
	var buf strings.Builder
	formatTags(ctx, &buf)
	if len(args) == 0 {
		buf.WriteString(format)
	} else {
		fmt.Fprintf(&buf, format, args...)
	}
	return buf.String()
}

// formatTags writes the tags of ctx as "[k=v,k2] ". Nothing is written when
// ctx carries no tags.
func formatTags(ctx context.Context, buf *strings.Builder) {
	tags := logtags.FromContext(ctx)
	if tags == nil || len(tags.Get()) == 0 {
		return
	}
	buf.WriteByte('[')
	for i, t := range tags.Get() {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(t.Key())
		if v := t.Value(); v != nil {
			if !isSingleLetter(t.Key()) {
				buf.WriteByte('=')
			}
			fmt.Fprint(buf, v)
		}
	}
	buf.WriteString("] ")
}

// isSingleLetter is true for keys such as "n" that are rendered glued to
// their value ("n1").
func isSingleLetter(key string) bool {
	return len(key) == 1
}
