// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package schedule

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle/txn"
)

// caseTerminator ends every block of a reproduction case.
const caseTerminator = "END"

// CaseTxn is one transaction of a reproduction case.
type CaseTxn struct {
	ID         int
	Statements []string
}

// Case is a reproduction case: a fixed set of transactions and the order in
// which their statements are submitted.
//
// The text form is one block per transaction (its id on a line, then one
// statement per line, then END), followed by the schedule as a line of
// dash-joined transaction ids and a final END:
//
//	1
//	BEGIN
//	UPDATE t SET c0 = 1
//	COMMIT
//	END
//	2
//	BEGIN
//	SELECT * FROM t
//	COMMIT
//	END
//	1-2-1-2-2-1
//	END
type Case struct {
	Txns  []CaseTxn
	Order []int
}

// ParseCase reads a reproduction case. Blank lines between blocks are
// ignored.
func ParseCase(r io.Reader) (*Case, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		lines = append(lines, strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading reproduction case")
	}

	c := &Case{}
	pos := 0
	nextNonBlank := func() (string, int, bool) {
		for pos < len(lines) {
			l := lines[pos]
			pos++
			if l != "" {
				return l, pos, true
			}
		}
		return "", pos, false
	}
	for {
		head, lineNo, ok := nextNonBlank()
		if !ok {
			return nil, errors.New("reproduction case has no schedule")
		}
		// A header immediately followed by END is the schedule.
		save := pos
		follow, _, ok := nextNonBlank()
		if !ok || follow == caseTerminator {
			if !ok {
				return nil, errors.Newf("line %d: schedule is not terminated by %s", lineNo, caseTerminator)
			}
			order, err := parseOrder(head)
			if err != nil {
				return nil, errors.Wrapf(err, "line %d", lineNo)
			}
			c.Order = order
			if rest, restNo, ok := nextNonBlank(); ok {
				return nil, errors.Newf("line %d: unexpected content after schedule: %q", restNo, rest)
			}
			return c, nil
		}
		pos = save
		id, err := strconv.Atoi(head)
		if err != nil {
			return nil, errors.Newf("line %d: invalid transaction id %q", lineNo, head)
		}
		for _, t := range c.Txns {
			if t.ID == id {
				return nil, errors.Newf("line %d: duplicate transaction id %d", lineNo, id)
			}
		}
		ct := CaseTxn{ID: id}
		terminated := false
		for pos < len(lines) {
			l := lines[pos]
			pos++
			if l == "" {
				continue
			}
			if l == caseTerminator {
				terminated = true
				break
			}
			ct.Statements = append(ct.Statements, l)
		}
		if !terminated {
			return nil, errors.Newf("line %d: transaction %d is not terminated by %s", lineNo, id, caseTerminator)
		}
		c.Txns = append(c.Txns, ct)
	}
}

func parseOrder(s string) ([]int, error) {
	parts := strings.Split(s, "-")
	order := make([]int, len(parts))
	for i, p := range parts {
		id, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, errors.Newf("invalid schedule %q", s)
		}
		order[i] = id
	}
	return order, nil
}

// FormatCase writes txns and schedule in the reproduction-case format.
func FormatCase(w io.Writer, txns []*txn.Transaction, schedule txn.Schedule) error {
	var buf strings.Builder
	for _, t := range txns {
		fmt.Fprintf(&buf, "%d\n", t.ID)
		for _, s := range t.Statements {
			fmt.Fprintf(&buf, "%s\n", s.Query)
		}
		fmt.Fprintf(&buf, "%s\n", caseTerminator)
	}
	fmt.Fprintf(&buf, "%s\n%s\n", schedule.TxnOrder(), caseTerminator)
	_, err := io.WriteString(w, buf.String())
	return err
}

// Transactions builds the case's transactions, each on a connection from
// connect.
func (c *Case) Transactions(
	ctx context.Context, connect ConnFactory, expected txn.ErrorSet,
) (_ []*txn.Transaction, retErr error) {
	txns := make([]*txn.Transaction, 0, len(c.Txns))
	defer func() {
		if retErr != nil {
			for _, t := range txns {
				_ = t.Close()
			}
		}
	}()
	for _, ct := range c.Txns {
		conn, err := connect(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "opening connection for transaction %d", ct.ID)
		}
		t, err := txn.NewTransaction(ct.ID, conn, ct.Statements, expected)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, nil
}

// Schedule rebuilds the case's schedule over txns. It fails when the order
// names an unknown transaction or does not consume every statement exactly
// once.
func (c *Case) Schedule(txns []*txn.Transaction) (txn.Schedule, error) {
	byID := make(map[int]*txn.Transaction, len(txns))
	total := 0
	for _, t := range txns {
		byID[t.ID] = t
		total += len(t.Statements)
	}
	if len(c.Order) != total {
		return nil, errors.Newf("schedule has %d entries but transactions have %d statements",
			len(c.Order), total)
	}
	next := make(map[int]int, len(txns))
	schedule := make(txn.Schedule, 0, total)
	for _, id := range c.Order {
		t, ok := byID[id]
		if !ok {
			return nil, errors.Newf("schedule references unknown transaction %d", id)
		}
		idx := next[id]
		if idx >= len(t.Statements) {
			return nil, errors.Newf("schedule references transaction %d more than %d times",
				id, len(t.Statements))
		}
		schedule = append(schedule, t.Statements[idx])
		next[id] = idx + 1
	}
	return schedule, nil
}
