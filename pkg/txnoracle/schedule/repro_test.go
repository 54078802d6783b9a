// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package schedule

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/cockroachdb/datadriven"
	"github.com/cockroachdb/txnoracle/pkg/testutils"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle/txn"
	"github.com/stretchr/testify/require"
)

// TestCase runs the reproduction-case scripts under testdata/case. The
// "parse" command parses its input, rebuilds the schedule and prints the
// transactions, the schedule and the re-formatted case.
func TestCase(t *testing.T) {
	ctx := context.Background()
	var closed int
	connect := func(context.Context) (txn.Conn, error) { return nopConn{closed: &closed}, nil }
	datadriven.RunTest(t, testutils.TestDataPath(t, "case"), func(t *testing.T, d *datadriven.TestData) string {
		switch d.Cmd {
		case "parse":
			c, err := ParseCase(strings.NewReader(d.Input))
			if err != nil {
				return fmt.Sprintf("error: %v", err)
			}
			txns, err := c.Transactions(ctx, connect, nil)
			if err != nil {
				return fmt.Sprintf("error: %v", err)
			}
			s, err := c.Schedule(txns)
			if err != nil {
				return fmt.Sprintf("error: %v", err)
			}
			var buf strings.Builder
			for _, tx := range txns {
				fmt.Fprintf(&buf, "%s\n", tx)
			}
			fmt.Fprintf(&buf, "schedule: %s\n", s)
			if d.HasArg("format") {
				require.NoError(t, FormatCase(&buf, txns, s))
			}
			return buf.String()
		default:
			d.Fatalf(t, "unknown command %s", d.Cmd)
			return ""
		}
	})
}

func TestFormatCaseRoundTrip(t *testing.T) {
	ctx := context.Background()
	txns := makeTxns(t, 3, 2, 1)
	s := GenOne(newRand(7), txns)

	var buf strings.Builder
	require.NoError(t, FormatCase(&buf, txns, s))
	c, err := ParseCase(strings.NewReader(buf.String()))
	require.NoError(t, err)
	var closed int
	parsed, err := c.Transactions(ctx, func(context.Context) (txn.Conn, error) {
		return nopConn{closed: &closed}, nil
	}, nil)
	require.NoError(t, err)
	rebuilt, err := c.Schedule(parsed)
	require.NoError(t, err)
	require.Equal(t, s.String(), rebuilt.String())
	require.Equal(t, s.TxnOrder(), rebuilt.TxnOrder())
}

// A statement that fails to build releases every connection opened so far,
// including its own.
func TestCaseTransactionsCloseOnError(t *testing.T) {
	c, err := ParseCase(strings.NewReader(`
1
BEGIN
COMMIT
END
2
SELECT * FROM t FOR SHARE
END
1-1-2
END
`))
	require.NoError(t, err)
	var opened, closed int
	_, err = c.Transactions(context.Background(), func(context.Context) (txn.Conn, error) {
		opened++
		return nopConn{closed: &closed}, nil
	}, nil)
	require.ErrorContains(t, err, `invalid postfix "FOR SHARE"`)
	require.Equal(t, 2, opened)
	require.Equal(t, 2, closed)
}
