// Package cnf implements the canonical predicate form used for filters and
// join conditions: a conjunction of clauses, each a disjunction of
// possibly-negated expression literals.
package cnf

import (
	"sort"

	"github.com/xmutable/engine/internal/ast"
)

// Literal is (negated?, Expr).
type Literal struct {
	Negated bool
	Expr    ast.Expr
}

// Clause is a disjunction of Literals.
type Clause struct {
	Literals []Literal
}

// NewClause builds a clause (a disjunction) out of lits; most WHERE
// predicates decompose into one-literal clauses, with real disjunctions (OR)
// rarer.
func NewClause(lits ...Literal) Clause {
	return Clause{Literals: append([]Literal(nil), lits...)}
}

// CNF is a conjunction of Clauses.
type CNF struct {
	Clauses []Clause
}

// New builds a CNF out of clauses.
func New(clauses ...Clause) CNF {
	return CNF{Clauses: append([]Clause(nil), clauses...)}
}

// IsEmpty reports whether this CNF has no clauses (a trivial "true" filter).
func (c CNF) IsEmpty() bool { return len(c.Clauses) == 0 }

// And is the logical AND of two CNFs: clause-list concatenation.
func And(a, b CNF) CNF {
	out := CNF{Clauses: make([]Clause, 0, len(a.Clauses)+len(b.Clauses))}
	out.Clauses = append(out.Clauses, a.Clauses...)
	out.Clauses = append(out.Clauses, b.Clauses...)
	return out
}

// TablesReferenced unions every literal's referenced tables across every
// clause: used by the query graph builder to route a clause.
func (c Clause) TablesReferenced() map[string]bool {
	out := map[string]bool{}
	for _, lit := range c.Literals {
		for t := range lit.Expr.TablesReferenced() {
			out[t] = true
		}
	}
	return out
}

func (c CNF) TablesReferenced() map[string]bool {
	out := map[string]bool{}
	for _, clause := range c.Clauses {
		for t := range clause.TablesReferenced() {
			out[t] = true
		}
	}
	return out
}

// clauseKey produces an order-independent identity string for a clause so
// CNF equality can ignore clause order. A literal's Expr is keyed by its
// String() if it has one, and otherwise by exprIdentity (its sorted
// referenced tables plus its type name).
func clauseKey(c Clause) string {
	type stringer interface{ String() string }
	parts := make([]string, 0, len(c.Literals))
	for _, lit := range c.Literals {
		key := ""
		if s, ok := lit.Expr.(stringer); ok {
			key = s.String()
		} else {
			key = exprIdentity(lit.Expr)
		}
		if lit.Negated {
			key = "!" + key
		}
		parts = append(parts, key)
	}
	sort.Strings(parts)
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "|"
		}
		out += p
	}
	return out
}

func exprIdentity(e ast.Expr) string {
	// Fallback identity: pointer address rendered via %p-equivalent through
	// the fmt package is avoided here to keep this package free of fmt;
	// tables-referenced plus type name is enough to disambiguate typical
	// filter/join literals for equality testing in tests and EXPLAIN-less
	// comparisons. Exact AST equality belongs to the (out-of-scope) parser.
	tables := make([]string, 0, len(e.TablesReferenced()))
	for t := range e.TablesReferenced() {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	key := ""
	for _, t := range tables {
		key += t + ","
	}
	if e.Type() != nil {
		key += e.Type().String()
	}
	return key
}

// Equal compares two CNFs ignoring clause order.
func Equal(a, b CNF) bool {
	if len(a.Clauses) != len(b.Clauses) {
		return false
	}
	ak := make([]string, len(a.Clauses))
	bk := make([]string, len(b.Clauses))
	for i, c := range a.Clauses {
		ak[i] = clauseKey(c)
	}
	for i, c := range b.Clauses {
		bk[i] = clauseKey(c)
	}
	sort.Strings(ak)
	sort.Strings(bk)
	for i := range ak {
		if ak[i] != bk[i] {
			return false
		}
	}
	return true
}
