// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package txn

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
)

// StatementType classifies a statement by its leading keyword.
type StatementType int

const (
	// Unknown is any statement whose leading keyword is not recognized.
	Unknown StatementType = iota
	Begin
	Commit
	Rollback
	Select
	// SelectForUpdate is a SELECT with a trailing FOR UPDATE clause.
	SelectForUpdate
	Insert
	Update
	Delete
	Replace
	Set
)

var _ redact.SafeValue = StatementType(0)

// SafeValue implements redact.SafeValue.
func (StatementType) SafeValue() {}

func (t StatementType) String() string {
	switch t {
	case Begin:
		return "BEGIN"
	case Commit:
		return "COMMIT"
	case Rollback:
		return "ROLLBACK"
	case Select:
		return "SELECT"
	case SelectForUpdate:
		return "SELECT_FOR_UPDATE"
	case Insert:
		return "INSERT"
	case Update:
		return "UPDATE"
	case Delete:
		return "DELETE"
	case Replace:
		return "REPLACE"
	case Set:
		return "SET"
	default:
		return "UNKNOWN"
	}
}

// IsRead returns whether statements of this type produce result rows.
func (t StatementType) IsRead() bool {
	return t == Select || t == SelectForUpdate
}

// IsWrite returns whether statements of this type modify table rows.
func (t StatementType) IsWrite() bool {
	switch t {
	case Insert, Update, Delete, Replace:
		return true
	}
	return false
}

var keywordTypes = map[string]StatementType{
	"BEGIN":    Begin,
	"COMMIT":   Commit,
	"ROLLBACK": Rollback,
	"SELECT":   Select,
	"INSERT":   Insert,
	"UPDATE":   Update,
	"DELETE":   Delete,
	"REPLACE":  Replace,
	"SET":      Set,
}

var forClauseRE = regexp.MustCompile(`\sFOR\s`)

// Classify derives the StatementType of a query from its leading keyword. A
// SELECT with a FOR suffix is only accepted when the suffix is exactly FOR
// UPDATE.
func Classify(query string) (StatementType, error) {
	stmt := strings.ToUpper(strings.ReplaceAll(query, ";", ""))
	fields := strings.Fields(stmt)
	if len(fields) == 0 {
		return Unknown, nil
	}
	if fields[0] == "START" && len(fields) > 1 && fields[1] == "TRANSACTION" {
		return Begin, nil
	}
	typ, ok := keywordTypes[fields[0]]
	if !ok {
		return Unknown, nil
	}
	if typ != Select {
		return typ, nil
	}
	loc := forClauseRE.FindStringIndex(stmt)
	if loc == nil {
		return Select, nil
	}
	postfix := strings.Join(strings.Fields(stmt[loc[0]:]), " ")
	if postfix != "FOR UPDATE" {
		return Unknown, errors.Newf("invalid postfix %q in %q", postfix, query)
	}
	return SelectForUpdate, nil
}

// Statement is one statement of a Transaction. It is immutable once
// constructed.
type Statement struct {
	txn   *Transaction
	index int
	typ   StatementType

	// Query is the statement text as sent to the database.
	Query string
	// ExpectedErrors are the error substrings the statement may legitimately
	// produce.
	ExpectedErrors ErrorSet
}

// NewStatement classifies query and binds it to t at the given position.
func NewStatement(t *Transaction, index int, query string, expected ErrorSet) (*Statement, error) {
	typ, err := Classify(query)
	if err != nil {
		return nil, err
	}
	if expected == nil {
		expected = MakeErrorSet()
	}
	return &Statement{txn: t, index: index, typ: typ, Query: query, ExpectedErrors: expected}, nil
}

// Txn returns the transaction the statement belongs to.
func (s *Statement) Txn() *Transaction { return s.txn }

// Type returns the statement classification.
func (s *Statement) Type() StatementType { return s.typ }

// Index returns the position of the statement within its transaction.
func (s *Statement) Index() int { return s.index }

// ID identifies the statement as "<txn id>-<index>".
func (s *Statement) ID() string {
	return fmt.Sprintf("%d-%d", s.txn.ID, s.index)
}

func (s *Statement) String() string {
	return fmt.Sprintf("%s: %s", s.ID(), s.Query)
}
