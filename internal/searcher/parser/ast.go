package parser

import (
	"strconv"
	"strings"
)

// Node is a query AST node.
type Node interface {
	String() string
	node()
}

// Term matches documents containing Value, in Field when Field is set.
type Term struct {
	Field string
	Value string
}

// Phrase matches documents containing every one of Terms. Word adjacency
// is not enforced.
type Phrase struct {
	Field string
	Terms []string
}

// And matches documents matched by every child.
type And struct {
	Children []Node
}

// Or matches documents matched by any child.
type Or struct {
	Children []Node
}

// Not matches documents not matched by Child.
type Not struct {
	Child Node
}

// Empty matches nothing. It is what a blank query parses to.
type Empty struct{}

func (Term) node()   {}
func (Phrase) node() {}
func (And) node()    {}
func (Or) node()     {}
func (Not) node()    {}
func (Empty) node()  {}

func (t Term) String() string {
	if t.Field == "" {
		return t.Value
	}
	return t.Field + ":" + t.Value
}

func (p Phrase) String() string {
	q := strconv.Quote(strings.Join(p.Terms, " "))
	if p.Field == "" {
		return q
	}
	return p.Field + ":" + q
}

func (a And) String() string { return joinNodes(a.Children, " AND ") }

func (o Or) String() string { return joinNodes(o.Children, " OR ") }

func (n Not) String() string { return "NOT " + n.Child.String() }

func (Empty) String() string { return "" }

func joinNodes(nodes []Node, sep string) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = n.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}

// Query is a parsed query. String renders a canonical form: two inputs
// that differ only in spacing, case of terms, implicit versus explicit
// AND, or redundant parentheses render the same.
type Query struct {
	Root Node
	Raw  string
}

func (q Query) String() string {
	return q.Root.String()
}

// IsEmpty reports whether the query can match nothing by construction.
func (q Query) IsEmpty() bool {
	_, ok := q.Root.(Empty)
	return ok || q.Root == nil
}

// FieldTerm pairs a term with the field it is restricted to ("" for any).
type FieldTerm struct {
	Field string
	Term  string
}

// PositiveTerms lists the terms that contribute to scoring: every term
// not beneath a Not, in first-seen order, without repeats.
func (q Query) PositiveTerms() []FieldTerm {
	var out []FieldTerm
	seen := make(map[FieldTerm]struct{})
	add := func(ft FieldTerm) {
		if _, ok := seen[ft]; ok {
			return
		}
		seen[ft] = struct{}{}
		out = append(out, ft)
	}
	var walk func(Node)
	walk = func(n Node) {
		switch n := n.(type) {
		case Term:
			add(FieldTerm{Field: n.Field, Term: n.Value})
		case Phrase:
			for _, t := range n.Terms {
				add(FieldTerm{Field: n.Field, Term: t})
			}
		case And:
			for _, c := range n.Children {
				walk(c)
			}
		case Or:
			for _, c := range n.Children {
				walk(c)
			}
		}
	}
	walk(q.Root)
	return out
}
