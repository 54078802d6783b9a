// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package workload creates the tables the oracle tests against and
// generates random transaction bodies over them.
package workload

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle/schedule"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle/txn"
	"github.com/cockroachdb/txnoracle/pkg/util/log"
)

// Config configures table setup and statement generation.
type Config struct {
	NumTables  int `yaml:"num_tables" toml:"num_tables"`
	NumColumns int `yaml:"num_columns" toml:"num_columns"`
	NumRows    int `yaml:"num_rows" toml:"num_rows"`
	// MaxValue bounds generated column values and keys. Keys up to twice
	// NumRows are used so that inserts both collide and succeed.
	MaxValue int `yaml:"max_value" toml:"max_value"`
	// MaxStatements bounds the statements between BEGIN and the end of a
	// transaction.
	MaxStatements int `yaml:"max_statements" toml:"max_statements"`

	Ops OperationConfig `yaml:"ops" toml:"ops"`
}

// OperationConfig configures the relative probabilities of producing various
// statements. Zero disables a statement.
type OperationConfig struct {
	// Select reads the rows matching an equality predicate.
	Select int `yaml:"select" toml:"select"`
	// SelectForUpdate is a locking Select.
	SelectForUpdate int `yaml:"select_for_update" toml:"select_for_update"`
	// Update sets one column of the rows matching a predicate.
	Update int `yaml:"update" toml:"update"`
	// Insert adds a row whose key likely exists.
	Insert int `yaml:"insert" toml:"insert"`
	// InsertIgnore is an INSERT IGNORE. MySQL syntax only.
	InsertIgnore int `yaml:"insert_ignore" toml:"insert_ignore"`
	// Upsert is an INSERT ... ON DUPLICATE KEY UPDATE. MySQL syntax only.
	Upsert int `yaml:"upsert" toml:"upsert"`
	// Delete removes the rows matching a predicate.
	Delete int `yaml:"delete" toml:"delete"`
	// Replace is a REPLACE. MySQL syntax only.
	Replace int `yaml:"replace" toml:"replace"`

	// Commit and Rollback weigh how a transaction ends.
	Commit   int `yaml:"commit" toml:"commit"`
	Rollback int `yaml:"rollback" toml:"rollback"`
}

// DefaultConfig returns a config producing small, conflict-prone workloads.
func DefaultConfig() Config {
	return Config{
		NumTables:     2,
		NumColumns:    2,
		NumRows:       4,
		MaxValue:      10,
		MaxStatements: 3,
		Ops: OperationConfig{
			Select:          10,
			SelectForUpdate: 3,
			Update:          10,
			Insert:          5,
			InsertIgnore:    2,
			Upsert:          2,
			Delete:          4,
			Replace:         2,
			Commit:          4,
			Rollback:        1,
		},
	}
}

// Validate checks that cfg can produce a workload.
func (cfg Config) Validate() error {
	switch {
	case cfg.NumTables < 1:
		return errors.Newf("num_tables must be >0, got %d", cfg.NumTables)
	case cfg.NumColumns < 1:
		return errors.Newf("num_columns must be >0, got %d", cfg.NumColumns)
	case cfg.NumRows < 0:
		return errors.Newf("num_rows must be >=0, got %d", cfg.NumRows)
	case cfg.MaxValue < 1:
		return errors.Newf("max_value must be >0, got %d", cfg.MaxValue)
	case cfg.MaxStatements < 1:
		return errors.Newf("max_statements must be >0, got %d", cfg.MaxStatements)
	case cfg.Ops.Commit+cfg.Ops.Rollback <= 0:
		return errors.New("commit and rollback weights are both zero")
	}
	return nil
}

// TableName returns the name of the i-th generated table.
func TableName(i int) string { return "t" + strconv.Itoa(i) }

// SetupStatements returns the DDL and DML that (re)create the tables:
// t<i>(id INT PRIMARY KEY, c0 INT, ...) with NumRows random rows each.
func SetupStatements(rng *rand.Rand, cfg Config) ([]string, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var stmts []string
	for i := 0; i < cfg.NumTables; i++ {
		name := TableName(i)
		cols := []string{"id INT PRIMARY KEY"}
		for c := 0; c < cfg.NumColumns; c++ {
			cols = append(cols, fmt.Sprintf("c%d INT", c))
		}
		stmts = append(stmts,
			"DROP TABLE IF EXISTS "+name,
			fmt.Sprintf("CREATE TABLE %s (%s)", name, strings.Join(cols, ", ")),
		)
		if cfg.NumRows == 0 {
			continue
		}
		tuples := make([]string, cfg.NumRows)
		for r := range tuples {
			vals := []string{strconv.Itoa(r + 1)}
			for c := 0; c < cfg.NumColumns; c++ {
				vals = append(vals, strconv.Itoa(rng.Intn(cfg.MaxValue+1)))
			}
			tuples[r] = "(" + strings.Join(vals, ", ") + ")"
		}
		stmts = append(stmts, fmt.Sprintf("INSERT INTO %s VALUES %s", name, strings.Join(tuples, ", ")))
	}
	return stmts, nil
}

// Execer runs setup statements.
type Execer interface {
	Exec(ctx context.Context, query string, args ...any) error
}

// Setup creates the tables of cfg.
func Setup(ctx context.Context, db Execer, rng *rand.Rand, cfg Config) error {
	stmts, err := SetupStatements(rng, cfg)
	if err != nil {
		return err
	}
	for _, s := range stmts {
		log.VEventf(ctx, 2, "setup: %s", s)
		if err := db.Exec(ctx, s); err != nil {
			return errors.Wrapf(err, "executing %q", s)
		}
	}
	log.Infof(ctx, "created %d table(s) with %d row(s) each", cfg.NumTables, cfg.NumRows)
	return nil
}

type opGenFunc func(g *Generator, rng *rand.Rand, t txn.Table) string

type opGen struct {
	fn     opGenFunc
	weight int
}

func addOpGen(valid *[]opGen, fn opGenFunc, weight int) {
	if weight > 0 {
		*valid = append(*valid, opGen{fn: fn, weight: weight})
	}
}

func selectOp(rng *rand.Rand, ops []opGen) opGenFunc {
	var total int
	for _, x := range ops {
		total += x.weight
	}
	target := rng.Intn(total)
	var sum int
	for _, x := range ops {
		sum += x.weight
		if sum > target {
			return x.fn
		}
	}
	panic(`unreachable`)
}

// Generator produces transaction bodies over a fixed set of tables. The
// first column of every table is taken to be its primary key.
type Generator struct {
	cfg    Config
	tables []txn.Table
	ops    []opGen
}

var _ schedule.BodyGenerator = (*Generator)(nil)

// NewGenerator returns a Generator over tables. MySQL-only statements are
// produced only when mysqlSyntax is set.
func NewGenerator(cfg Config, tables []txn.Table, mysqlSyntax bool) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(tables) == 0 {
		return nil, errors.New("no tables to generate statements for")
	}
	g := &Generator{cfg: cfg, tables: tables}
	addOpGen(&g.ops, randSelect, cfg.Ops.Select)
	addOpGen(&g.ops, randSelectForUpdate, cfg.Ops.SelectForUpdate)
	addOpGen(&g.ops, randUpdate, cfg.Ops.Update)
	addOpGen(&g.ops, randInsert, cfg.Ops.Insert)
	addOpGen(&g.ops, randDelete, cfg.Ops.Delete)
	if mysqlSyntax {
		addOpGen(&g.ops, randInsertIgnore, cfg.Ops.InsertIgnore)
		addOpGen(&g.ops, randUpsert, cfg.Ops.Upsert)
		addOpGen(&g.ops, randReplace, cfg.Ops.Replace)
	}
	if len(g.ops) == 0 {
		return nil, errors.New("every statement weight is zero")
	}
	return g, nil
}

// Generate implements schedule.BodyGenerator.
func (g *Generator) Generate(rng *rand.Rand) ([]string, error) {
	n := 1 + rng.Intn(g.cfg.MaxStatements)
	body := make([]string, 0, n+2)
	body = append(body, "BEGIN")
	for i := 0; i < n; i++ {
		t := g.tables[rng.Intn(len(g.tables))]
		body = append(body, selectOp(rng, g.ops)(g, rng, t))
	}
	if rng.Intn(g.cfg.Ops.Commit+g.cfg.Ops.Rollback) < g.cfg.Ops.Commit {
		body = append(body, "COMMIT")
	} else {
		body = append(body, "ROLLBACK")
	}
	return body, nil
}

func (g *Generator) randKey(rng *rand.Rand) string {
	return strconv.Itoa(1 + rng.Intn(2*g.cfg.NumRows+1))
}

func (g *Generator) randValue(rng *rand.Rand) string {
	return strconv.Itoa(rng.Intn(g.cfg.MaxValue + 1))
}

// randPredicate compares the key, or occasionally another column, with a
// value.
func (g *Generator) randPredicate(rng *rand.Rand, t txn.Table) string {
	if len(t.Columns) > 1 && rng.Intn(4) == 0 {
		return fmt.Sprintf("%s = %s", t.Columns[1+rng.Intn(len(t.Columns)-1)], g.randValue(rng))
	}
	return fmt.Sprintf("%s = %s", t.Columns[0], g.randKey(rng))
}

func (g *Generator) randTuple(rng *rand.Rand, t txn.Table) string {
	vals := []string{g.randKey(rng)}
	for range t.Columns[1:] {
		vals = append(vals, g.randValue(rng))
	}
	return "(" + strings.Join(vals, ", ") + ")"
}

func (g *Generator) randAssignment(rng *rand.Rand, t txn.Table) string {
	col := t.Columns[0]
	if len(t.Columns) > 1 {
		col = t.Columns[1+rng.Intn(len(t.Columns)-1)]
		return fmt.Sprintf("%s = %s", col, g.randValue(rng))
	}
	return fmt.Sprintf("%s = %s", col, g.randKey(rng))
}

func randSelect(g *Generator, rng *rand.Rand, t txn.Table) string {
	return fmt.Sprintf("SELECT * FROM %s WHERE %s", t.Name, g.randPredicate(rng, t))
}

func randSelectForUpdate(g *Generator, rng *rand.Rand, t txn.Table) string {
	return randSelect(g, rng, t) + " FOR UPDATE"
}

func randUpdate(g *Generator, rng *rand.Rand, t txn.Table) string {
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s", t.Name, g.randAssignment(rng, t), g.randPredicate(rng, t))
}

func randInsert(g *Generator, rng *rand.Rand, t txn.Table) string {
	return fmt.Sprintf("INSERT INTO %s VALUES %s", t.Name, g.randTuple(rng, t))
}

func randInsertIgnore(g *Generator, rng *rand.Rand, t txn.Table) string {
	return fmt.Sprintf("INSERT IGNORE INTO %s VALUES %s", t.Name, g.randTuple(rng, t))
}

func randUpsert(g *Generator, rng *rand.Rand, t txn.Table) string {
	return fmt.Sprintf("INSERT INTO %s VALUES %s ON DUPLICATE KEY UPDATE %s",
		t.Name, g.randTuple(rng, t), g.randAssignment(rng, t))
}

func randDelete(g *Generator, rng *rand.Rand, t txn.Table) string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s", t.Name, g.randPredicate(rng, t))
}

func randReplace(g *Generator, rng *rand.Rand, t txn.Table) string {
	return fmt.Sprintf("REPLACE INTO %s VALUES %s", t.Name, g.randTuple(rng, t))
}
