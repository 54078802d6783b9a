// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package txntestutils

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle/txn"
)

var (
	selectRE = regexp.MustCompile(`(?is)^SELECT\s+(.+?)\s+FROM\s+([^\s;]+?)(?:\s+WHERE\s+(.+?))?(?:\s+FOR\s+UPDATE)?$`)
	updateRE = regexp.MustCompile(`(?is)^UPDATE\s+(\S+)\s+SET\s+(.+?)(?:\s+WHERE\s+(.+?))?$`)
	deleteRE = regexp.MustCompile(`(?is)^DELETE\s+FROM\s+(\S+?)(?:\s+WHERE\s+(.+?))?$`)
	insertRE = regexp.MustCompile(`(?is)^(INSERT|REPLACE)(\s+IGNORE)?\s+INTO\s+([^\s(]+)\s*(?:\(([^)]*)\))?\s*VALUES?\s*(.+?)(?:\s+ON\s+DUPLICATE\s+KEY\s+UPDATE\s+(.+))?$`)
	tupleRE  = regexp.MustCompile(`\(([^()]*)\)`)
	andRE    = regexp.MustCompile(`(?i)\s+AND\s+`)
	intRE    = regexp.MustCompile(`^-?\d+$`)
)

func syntaxError(q string) error {
	return errors.Newf("You have an error in your SQL syntax near '%s'", q)
}

func unquote(ident string) string {
	return strings.Trim(strings.TrimSpace(ident), "`\"")
}

// splitList splits s at commas outside of quotes and parentheses.
func splitList(s string) []string {
	var parts []string
	depth, start := 0, 0
	inQuote := false
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '\'':
			inQuote = !inQuote
		case inQuote:
		case c == '(':
			depth++
		case c == ')':
			depth--
		case c == ',' && depth == 0:
			parts = append(parts, strings.TrimSpace(s[start:i]))
			start = i + 1
		}
	}
	if rest := strings.TrimSpace(s[start:]); rest != "" || len(parts) > 0 {
		parts = append(parts, rest)
	}
	return parts
}

func parseLiteral(s string) (any, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.EqualFold(s, "NULL"):
		return nil, nil
	case len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'':
		return strings.ReplaceAll(s[1:len(s)-1], "''", "'"), nil
	case intRE.MatchString(s):
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, syntaxError(s)
		}
		return v, nil
	}
	return nil, syntaxError(s)
}

func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return false
	}
	return txn.FormatDatum(a) == txn.FormatDatum(b)
}

type assignment struct {
	column string
	value  any
}

func parseAssignments(s string) ([]assignment, error) {
	var res []assignment
	for _, part := range splitList(s) {
		eq := strings.IndexByte(part, '=')
		if eq < 0 {
			return nil, syntaxError(part)
		}
		v, err := parseLiteral(part[eq+1:])
		if err != nil {
			return nil, err
		}
		res = append(res, assignment{column: strings.TrimSpace(part[:eq]), value: v})
	}
	return res, nil
}

// predicate is a conjunction of column = literal terms.
type predicate []assignment

func parsePredicate(s string) (predicate, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var p predicate
	for _, term := range andRE.Split(s, -1) {
		a, err := parseAssignments(term)
		if err != nil || len(a) != 1 {
			return nil, syntaxError(term)
		}
		p = append(p, a[0])
	}
	return p, nil
}

func (p predicate) compile(t *memTable) (func([]any) bool, error) {
	idx := make([]int, len(p))
	for i, a := range p {
		c, err := t.column(a.column)
		if err != nil {
			return nil, err
		}
		idx[i] = c
	}
	return func(row []any) bool {
		for i, a := range p {
			if !equalValues(row[idx[i]], a.value) {
				return false
			}
		}
		return true
	}, nil
}

type selectStmt struct {
	columns []string
	table   string
	where   predicate
}

func parseSelect(q string) (*selectStmt, error) {
	m := selectRE.FindStringSubmatch(q)
	if m == nil {
		return nil, syntaxError(q)
	}
	s := &selectStmt{table: m[2]}
	for _, c := range splitList(m[1]) {
		s.columns = append(s.columns, strings.TrimSpace(c))
	}
	var err error
	s.where, err = parsePredicate(m[3])
	return s, err
}

type writeKind int

const (
	writeUpdate writeKind = iota
	writeDelete
	writeInsert
	writeReplace
)

type writeStmt struct {
	kind    writeKind
	table   string
	set     []assignment
	where   predicate
	ignore  bool
	columns []string
	tuples  [][]any
	onDup   []assignment
}

func parseWrite(q string) (*writeStmt, error) {
	if m := updateRE.FindStringSubmatch(q); m != nil {
		set, err := parseAssignments(m[2])
		if err != nil {
			return nil, err
		}
		where, err := parsePredicate(m[3])
		if err != nil {
			return nil, err
		}
		return &writeStmt{kind: writeUpdate, table: m[1], set: set, where: where}, nil
	}
	if m := deleteRE.FindStringSubmatch(q); m != nil {
		where, err := parsePredicate(m[2])
		if err != nil {
			return nil, err
		}
		return &writeStmt{kind: writeDelete, table: m[1], where: where}, nil
	}
	if m := insertRE.FindStringSubmatch(q); m != nil {
		w := &writeStmt{kind: writeInsert, table: m[3], ignore: m[2] != ""}
		if strings.EqualFold(m[1], "REPLACE") {
			w.kind = writeReplace
		}
		w.columns = splitList(m[4])
		tuples := tupleRE.FindAllStringSubmatch(m[5], -1)
		if len(tuples) == 0 {
			return nil, syntaxError(q)
		}
		for _, tup := range tuples {
			var vals []any
			for _, lit := range splitList(tup[1]) {
				v, err := parseLiteral(lit)
				if err != nil {
					return nil, err
				}
				vals = append(vals, v)
			}
			w.tuples = append(w.tuples, vals)
		}
		if m[6] != "" {
			var err error
			if w.onDup, err = parseAssignments(m[6]); err != nil {
				return nil, err
			}
		}
		return w, nil
	}
	return nil, syntaxError(q)
}

func duplicateError(v any) error {
	return errors.Newf("Duplicate entry '%s' for key 'PRIMARY'", txn.FormatDatum(v))
}

func findPK(rows [][]any, pk int, v any, skip int) int {
	for i, r := range rows {
		if i != skip && equalValues(r[pk], v) {
			return i
		}
	}
	return -1
}

func assign(t *memTable, row []any, set []assignment) error {
	for _, a := range set {
		idx, err := t.column(a.column)
		if err != nil {
			return err
		}
		row[idx] = a.value
	}
	return nil
}

// apply computes the new rows of t. t itself is left untouched.
func (w *writeStmt) apply(t *memTable) ([][]any, [][]string, error) {
	rows := cloneRows(t.rows)
	pk := t.pk()
	var warnings [][]string
	switch w.kind {
	case writeUpdate:
		match, err := w.where.compile(t)
		if err != nil {
			return nil, nil, err
		}
		for i, row := range rows {
			if !match(row) {
				continue
			}
			if err := assign(t, row, w.set); err != nil {
				return nil, nil, err
			}
			if pk >= 0 && findPK(rows, pk, row[pk], i) >= 0 {
				return nil, nil, duplicateError(row[pk])
			}
		}
		return rows, warnings, nil
	case writeDelete:
		match, err := w.where.compile(t)
		if err != nil {
			return nil, nil, err
		}
		kept := rows[:0]
		for _, row := range rows {
			if !match(row) {
				kept = append(kept, row)
			}
		}
		return kept, warnings, nil
	}

	colIdx := make([]int, 0, len(t.columns))
	if len(w.columns) == 0 {
		for i := range t.columns {
			colIdx = append(colIdx, i)
		}
	} else {
		for _, c := range w.columns {
			idx, err := t.column(c)
			if err != nil {
				return nil, nil, err
			}
			colIdx = append(colIdx, idx)
		}
	}
	for n, tup := range w.tuples {
		if len(tup) != len(colIdx) {
			return nil, nil, errors.Newf("Column count doesn't match value count at row %d", n+1)
		}
		row := append([]any(nil), t.defaults...)
		for i, idx := range colIdx {
			row[idx] = tup[i]
		}
		dup := -1
		if pk >= 0 {
			dup = findPK(rows, pk, row[pk], -1)
		}
		switch {
		case dup < 0:
			rows = append(rows, row)
		case w.kind == writeReplace:
			rows = append(rows[:dup], rows[dup+1:]...)
			rows = append(rows, row)
		case w.onDup != nil:
			if err := assign(t, rows[dup], w.onDup); err != nil {
				return nil, nil, err
			}
		case w.ignore:
			warnings = append(warnings, []string{"Warning", "1062", duplicateError(row[pk]).Error()})
		default:
			return nil, nil, duplicateError(row[pk])
		}
	}
	return rows, warnings, nil
}
