// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package sqlrewrite rewrites workload statements so that they can be
// replayed against scratch copies of the tables they reference.
//
// Statements in the MySQL dialect are rewritten on the vitess syntax tree.
// Statements the parser rejects, and every statement when the parser is
// disabled, fall back to identifier-boundary textual rewriting.
package sqlrewrite

import (
	"regexp"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"vitess.io/vitess/go/vt/sqlparser"
)

// Rewriter rewrites statement text.
type Rewriter struct {
	parse bool
}

// New returns a Rewriter. When parse is false only textual rewriting is
// used.
func New(parse bool) *Rewriter {
	return &Rewriter{parse: parse}
}

func (r *Rewriter) parseStmt(query string) (sqlparser.Statement, bool) {
	if !r.parse {
		return nil, false
	}
	stmt, err := sqlparser.Parse(query)
	if err != nil {
		return nil, false
	}
	return stmt, true
}

func lookupFold(names []string, name string) (string, bool) {
	for _, n := range names {
		if strings.EqualFold(n, name) {
			return n, true
		}
	}
	return "", false
}

// Tables returns the names among known that query references, in the order
// of known.
func (r *Rewriter) Tables(query string, known []string) []string {
	found := make(map[string]bool)
	if stmt, ok := r.parseStmt(query); ok {
		sqlparser.Rewrite(stmt, func(cursor *sqlparser.Cursor) bool {
			switch node := cursor.Node().(type) {
			case *sqlparser.ColName:
				return false
			case sqlparser.TableName:
				if n, ok := lookupFold(known, node.Name.String()); ok {
					found[n] = true
				}
				return false
			}
			return true
		}, nil)
	} else {
		for _, n := range known {
			if identRE(n).MatchString(query) {
				found[n] = true
			}
		}
	}
	var res []string
	for _, n := range known {
		if found[n] {
			res = append(res, n)
		}
	}
	return res
}

// Target returns the table a write statement modifies. Parsed INSERT, UPDATE
// and DELETE statements name it explicitly; otherwise it is the first table
// among known that the statement references.
func (r *Rewriter) Target(query string, known []string) (string, bool) {
	if stmt, ok := r.parseStmt(query); ok {
		if n, ok := lookupFold(known, writeTarget(stmt)); ok {
			return n, true
		}
		var target string
		sqlparser.Rewrite(stmt, func(cursor *sqlparser.Cursor) bool {
			if target != "" {
				return false
			}
			switch node := cursor.Node().(type) {
			case *sqlparser.ColName:
				return false
			case sqlparser.TableName:
				if n, ok := lookupFold(known, node.Name.String()); ok {
					target = n
				}
				return false
			}
			return true
		}, nil)
		return target, target != ""
	}
	best, bestPos := "", -1
	for _, n := range known {
		loc := identRE(n).FindStringIndex(query)
		if loc != nil && (bestPos < 0 || loc[0] < bestPos) {
			best, bestPos = n, loc[0]
		}
	}
	return best, bestPos >= 0
}

// writeTarget returns the name of the table a parsed write modifies, or ""
// when the statement does not say.
func writeTarget(stmt sqlparser.Statement) string {
	switch s := stmt.(type) {
	case *sqlparser.Insert:
		return s.Table.Name.String()
	case *sqlparser.Update:
		if len(s.TableExprs) > 0 {
			return firstTable(s.TableExprs[0])
		}
	case *sqlparser.Delete:
		if len(s.Targets) > 0 {
			return s.Targets[0].Name.String()
		}
		if len(s.TableExprs) > 0 {
			return firstTable(s.TableExprs[0])
		}
	}
	return ""
}

func firstTable(expr sqlparser.TableExpr) string {
	switch e := expr.(type) {
	case *sqlparser.AliasedTableExpr:
		if tn, ok := e.Expr.(sqlparser.TableName); ok {
			return tn.Name.String()
		}
	case *sqlparser.JoinTableExpr:
		return firstTable(e.LeftExpr)
	case *sqlparser.ParenTableExpr:
		if len(e.Exprs) > 0 {
			return firstTable(e.Exprs[0])
		}
	}
	return ""
}

// RenameTables replaces every reference to a table in names, including
// column qualifiers, with its mapped name.
func (r *Rewriter) RenameTables(query string, names map[string]string) string {
	if len(names) == 0 {
		return query
	}
	keys := make([]string, 0, len(names))
	for k := range names {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if stmt, ok := r.parseStmt(query); ok {
		res := sqlparser.Rewrite(stmt, func(cursor *sqlparser.Cursor) bool {
			node, ok := cursor.Node().(sqlparser.TableName)
			if !ok {
				return true
			}
			if n, ok := lookupFold(keys, node.Name.String()); ok {
				cursor.Replace(sqlparser.TableName{
					Name:      sqlparser.NewTableIdent(names[n]),
					Qualifier: node.Qualifier,
				})
			}
			return false
		}, nil)
		return sqlparser.String(res)
	}
	for _, k := range keys {
		query = identRE(k).ReplaceAllLiteralString(query, names[k])
	}
	return query
}

// RestoreNames maps scratch names appearing in a message, typically an error
// or warning text, back to the original table names. names maps original to
// scratch names as passed to RenameTables.
func RestoreNames(msg string, names map[string]string) string {
	scratch := make([]string, 0, len(names))
	orig := make(map[string]string, len(names))
	for k, v := range names {
		scratch = append(scratch, v)
		orig[v] = k
	}
	// Longer names first so that no scratch name is clobbered by a prefix.
	sort.Slice(scratch, func(i, j int) bool {
		if len(scratch[i]) != len(scratch[j]) {
			return len(scratch[i]) > len(scratch[j])
		}
		return scratch[i] < scratch[j]
	})
	for _, s := range scratch {
		msg = strings.ReplaceAll(msg, s, orig[s])
	}
	return msg
}

var whereRE = regexp.MustCompile(`(?is)\sWHERE\s`)
var tailRE = regexp.MustCompile(`(?is)\s(ORDER\s+BY|LIMIT)\s`)

// AddUpdateMarker extends the SET list of an UPDATE with "marker = 1" so that
// the rows it touched can be told apart afterwards.
func (r *Rewriter) AddUpdateMarker(query, marker string) (string, error) {
	if stmt, ok := r.parseStmt(query); ok {
		upd, ok := stmt.(*sqlparser.Update)
		if !ok {
			return "", errors.Newf("not an UPDATE statement: %q", query)
		}
		upd.Exprs = append(upd.Exprs, &sqlparser.UpdateExpr{
			Name: &sqlparser.ColName{Name: sqlparser.NewColIdent(marker)},
			Expr: &sqlparser.Literal{Type: sqlparser.IntVal, Val: []byte("1")},
		})
		return sqlparser.String(upd), nil
	}
	if !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "UPDATE") {
		return "", errors.Newf("not an UPDATE statement: %q", query)
	}
	query = strings.TrimRight(strings.TrimSpace(query), ";")
	set := ", " + marker + " = 1"
	if loc := whereRE.FindStringIndex(query); loc != nil {
		return query[:loc[0]] + set + query[loc[0]:], nil
	}
	if loc := tailRE.FindStringIndex(query); loc != nil {
		return query[:loc[0]] + set + query[loc[0]:], nil
	}
	return query + set, nil
}

// ExplicitInsertColumns gives an INSERT or REPLACE without a column list the
// explicit list columns, so that it still targets the same columns of a table
// that gained extra columns.
func (r *Rewriter) ExplicitInsertColumns(query, table string, columns []string) (string, error) {
	if stmt, ok := r.parseStmt(query); ok {
		ins, ok := stmt.(*sqlparser.Insert)
		if !ok {
			return "", errors.Newf("not an INSERT or REPLACE statement: %q", query)
		}
		if len(ins.Columns) > 0 {
			return query, nil
		}
		cols := make(sqlparser.Columns, len(columns))
		for i, c := range columns {
			cols[i] = sqlparser.NewColIdent(c)
		}
		ins.Columns = cols
		return sqlparser.String(ins), nil
	}
	re := regexp.MustCompile(`(?is)^(\s*(?:INSERT|REPLACE)(?:\s+(?:LOW_PRIORITY|DELAYED|HIGH_PRIORITY|IGNORE))*(?:\s+INTO)?\s+` +
		quotedIdent(table) + `)(\s*)(.*)$`)
	m := re.FindStringSubmatchIndex(query)
	if m == nil {
		return "", errors.Newf("cannot locate target table %q in %q", table, query)
	}
	head, rest := query[:m[3]], query[m[6]:]
	upperRest := strings.ToUpper(rest)
	if strings.HasPrefix(rest, "(") && !strings.HasPrefix(strings.TrimSpace(upperRest[1:]), "SELECT") {
		return query, nil
	}
	if strings.HasPrefix(upperRest, "SET") {
		return query, nil
	}
	return head + " (" + strings.Join(columns, ", ") + ") " + rest, nil
}

// identRE matches name as a whole identifier. Quotes around it are left in
// place.
func identRE(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(name) + `\b`)
}

func quotedIdent(name string) string {
	q := regexp.QuoteMeta(name)
	return "(?:`" + q + "`|\"" + q + "\"|" + q + `\b)`
}
