// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package schedule generates transactions and random interleavings of their
// statements.
//
// A schedule is a linear extension of the per-transaction statement chains:
// every transaction's statements appear in their original relative order.
// The number of distinct schedules of transactions with k_1..k_n statements
// is the multinomial coefficient (Σk_i)! / Π(k_i!).
package schedule

import (
	"context"
	"math"
	"math/big"
	"math/rand"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle/txn"
	"github.com/zeebo/xxh3"
)

// BodyGenerator produces the statement texts of one transaction, bracketed by
// BEGIN and COMMIT or ROLLBACK.
type BodyGenerator interface {
	Generate(rng *rand.Rand) ([]string, error)
}

// ConnFactory opens a dedicated connection for a new transaction.
type ConnFactory func(ctx context.Context) (txn.Conn, error)

// Config configures GenerateTransactions.
type Config struct {
	// FixedTransactions, when positive, replaces the random transaction count.
	FixedTransactions int
	// ExpectedErrors is attached to every generated statement.
	ExpectedErrors txn.ErrorSet
}

// candidateTxnCounts biases the number of transactions towards 2 and 3.
var candidateTxnCounts = []int{1, 2, 2, 2, 2, 3, 3, 3, 4, 5}

// GenerateTransactions creates a set of transactions with ids 1..n, each on
// its own connection. On error every connection opened so far is closed.
func GenerateTransactions(
	ctx context.Context, rng *rand.Rand, cfg Config, bodies BodyGenerator, connect ConnFactory,
) (_ []*txn.Transaction, retErr error) {
	n := candidateTxnCounts[rng.Intn(len(candidateTxnCounts))]
	if cfg.FixedTransactions > 0 {
		n = cfg.FixedTransactions
	}
	txns := make([]*txn.Transaction, 0, n)
	defer func() {
		if retErr != nil {
			for _, t := range txns {
				_ = t.Close()
			}
		}
	}()
	for id := 1; id <= n; id++ {
		queries, err := bodies.Generate(rng)
		if err != nil {
			return nil, errors.Wrapf(err, "generating body of transaction %d", id)
		}
		conn, err := connect(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "opening connection for transaction %d", id)
		}
		t, err := txn.NewTransaction(id, conn, queries, cfg.ExpectedErrors)
		if err != nil {
			_ = conn.Close()
			return nil, errors.Wrapf(err, "building transaction %d", id)
		}
		txns = append(txns, t)
	}
	return txns, nil
}

// GenOne produces one random schedule of txns: it repeatedly picks a
// transaction uniformly among those with statements left and emits its next
// statement.
func GenOne(rng *rand.Rand, txns []*txn.Transaction) txn.Schedule {
	remaining := make([]*txn.Transaction, 0, len(txns))
	next := make(map[*txn.Transaction]int, len(txns))
	total := 0
	for _, t := range txns {
		if len(t.Statements) > 0 {
			remaining = append(remaining, t)
		}
		total += len(t.Statements)
	}
	schedule := make(txn.Schedule, 0, total)
	for len(remaining) > 0 {
		i := rng.Intn(len(remaining))
		t := remaining[i]
		idx := next[t]
		schedule = append(schedule, t.Statements[idx])
		if idx+1 < len(t.Statements) {
			next[t] = idx + 1
		} else {
			remaining = append(remaining[:i], remaining[i+1:]...)
		}
	}
	return schedule
}

// Gen produces min(n, Count(txns)) pairwise distinct schedules.
func Gen(rng *rand.Rand, txns []*txn.Transaction, n int) []txn.Schedule {
	if c := Count(txns); n > c {
		n = c
	}
	if n <= 0 {
		return nil
	}
	schedules := make([]txn.Schedule, 0, n)
	seen := make(map[uint64][]int, n)
	for len(schedules) < n {
		s := GenOne(rng, txns)
		fp := fingerprint(s)
		dup := false
		for _, idx := range seen[fp] {
			if schedules[idx].Equal(s) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		seen[fp] = append(seen[fp], len(schedules))
		schedules = append(schedules, s)
	}
	return schedules
}

func fingerprint(s txn.Schedule) uint64 {
	h := xxh3.New()
	var buf []byte
	for _, stmt := range s {
		buf = strconv.AppendInt(buf[:0], int64(stmt.Txn().ID), 10)
		buf = append(buf, '-')
		buf = strconv.AppendInt(buf, int64(stmt.Index()), 10)
		buf = append(buf, ',')
		_, _ = h.Write(buf)
	}
	return h.Sum64()
}

// Count returns the number of distinct schedules of txns. It saturates at
// math.MaxInt.
func Count(txns []*txn.Transaction) int {
	sizes := make([]int, len(txns))
	for i, t := range txns {
		sizes[i] = len(t.Statements)
	}
	return Multinomial(sizes...)
}

// Multinomial computes (Σk)! / Π(k_i!) exactly and saturates at math.MaxInt.
func Multinomial(ks ...int) int {
	total := int64(0)
	for _, k := range ks {
		total += int64(k)
	}
	res := new(big.Int).MulRange(1, total)
	for _, k := range ks {
		res.Quo(res, new(big.Int).MulRange(1, int64(k)))
	}
	if !res.IsInt64() || res.Int64() > math.MaxInt {
		return math.MaxInt
	}
	return int(res.Int64())
}
