// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/cockroachdb/logtags"
	"github.com/stretchr/testify/require"
)

func TestFormatWithContextTags(t *testing.T) {
	ctx := context.Background()
	require.Equal(t, "hello 1", FormatWithContextTags(ctx, "hello %d", 1))

	ctx = logtags.AddTag(ctx, "n", 1)
	ctx = logtags.AddTag(ctx, "schedule", 3)
	ctx = logtags.AddTag(ctx, "rr", nil)
	require.Equal(t, "[n1,schedule=3,rr] 100% done", FormatWithContextTags(ctx, "%d%% done", 100))
	require.Equal(t, "[n1,schedule=3,rr] done", FormatWithContextTags(ctx, "done"))
}

func TestOutput(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(OrigStderr)
	ctx := logtags.AddTag(context.Background(), "txn", 2)

	Infof(ctx, "executed %s", "BEGIN")
	require.Contains(t, buf.String(), "[txn=2] executed BEGIN")

	buf.Reset()
	VEventf(ctx, 2, "hidden")
	require.Empty(t, buf.String())
	SetVerbosity(2)
	defer SetVerbosity(0)
	require.True(t, V(2))
	VEventf(ctx, 2, "shown")
	require.Contains(t, buf.String(), "shown")

	buf.Reset()
	SetFormat(FormatJSON)
	defer SetFormat(FormatText)
	Warningf(ctx, "careful")
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "[txn=2] careful", entry["msg"])
	require.Equal(t, "warning", entry["level"])
}

func TestFatalfExitOverride(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(OrigStderr)
	code := 0
	SetExitFunc(func(c int) { code = c })
	defer ResetExitFunc()
	Fatalf(context.Background(), "boom")
	require.Equal(t, 2, code)
	require.Contains(t, buf.String(), "boom")
}

func TestEveryN(t *testing.T) {
	e := Every(time.Minute)
	now := time.Now()
	require.True(t, e.shouldLog(now))
	require.False(t, e.shouldLog(now.Add(time.Second)))
	require.True(t, e.shouldLog(now.Add(2*time.Minute)))
}
