// Package parser turns query text into a boolean AST.
//
// Grammar, loosest binding first:
//
//	or      := and ( "OR" and )*
//	and     := unary ( ["AND"] unary )*
//	unary   := ( "NOT" | "-" ) unary | primary
//	primary := "(" or ")" | [field ":"] ( word | "\"" words "\"" )
//
// Operators are recognised only in upper case. Words are normalised with
// the tokenizer the index was built with; a word that normalises to
// nothing (a stop word, punctuation) is dropped from the query.
package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
)

// MalformedQueryError reports where and why a query could not be parsed.
// Position is a byte offset into the raw query.
type MalformedQueryError struct {
	Position int
	Reason   string
}

func (e *MalformedQueryError) Error() string {
	return fmt.Sprintf("malformed query at position %d: %s", e.Position, e.Reason)
}

func (e *MalformedQueryError) Unwrap() error {
	return apperrors.ErrMalformedQuery
}

// Parser parses queries for indexes built with one tokenizer.
type Parser struct {
	tokenizer tokenizer.Tokenizer
}

// New returns a Parser normalising words with tok.
func New(tok tokenizer.Tokenizer) *Parser {
	return &Parser{tokenizer: tok}
}

// Parse parses raw. Blank input yields a Query whose root is Empty.
func (p *Parser) Parse(raw string) (Query, error) {
	if strings.TrimSpace(raw) == "" {
		return Query{Root: Empty{}, Raw: raw}, nil
	}
	tokens, err := lex(raw)
	if err != nil {
		return Query{}, err
	}
	st := &state{tokens: tokens, tokenizer: p.tokenizer}
	root, err := st.parseOr()
	if err != nil {
		return Query{}, err
	}
	if tok := st.peek(); tok.kind != tokEOF {
		return Query{}, unexpected(tok)
	}
	if root == nil {
		root = Empty{}
	}
	return Query{Root: root, Raw: raw}, nil
}

// IsMalformed reports whether err came from Parse rejecting its input.
func IsMalformed(err error) bool {
	var mq *MalformedQueryError
	return errors.As(err, &mq)
}

type state struct {
	tokens    []lexToken
	pos       int
	tokenizer tokenizer.Tokenizer
}

func (s *state) peek() lexToken {
	return s.tokens[s.pos]
}

func (s *state) next() lexToken {
	tok := s.tokens[s.pos]
	if tok.kind != tokEOF {
		s.pos++
	}
	return tok
}

func unexpected(tok lexToken) error {
	if tok.kind == tokEOF {
		return &MalformedQueryError{Position: tok.pos, Reason: "unexpected end of query"}
	}
	return &MalformedQueryError{Position: tok.pos, Reason: "unexpected " + tok.kind.String()}
}

// Sub-parsers return a nil Node when every word beneath them was dropped
// during normalisation.

func (s *state) parseOr() (Node, error) {
	var children []Node
	for {
		child, err := s.parseAnd()
		if err != nil {
			return nil, err
		}
		if child != nil {
			children = append(children, child)
		}
		if s.peek().kind != tokOr {
			break
		}
		op := s.next()
		if !startsUnary(s.peek().kind) {
			return nil, &MalformedQueryError{Position: op.pos, Reason: "OR must be followed by a term"}
		}
	}
	return orOf(children), nil
}

func (s *state) parseAnd() (Node, error) {
	if !startsUnary(s.peek().kind) {
		return nil, unexpected(s.peek())
	}
	var children []Node
	for {
		child, err := s.parseUnary()
		if err != nil {
			return nil, err
		}
		if child != nil {
			children = append(children, child)
		}
		switch kind := s.peek().kind; {
		case kind == tokAnd:
			op := s.next()
			if !startsUnary(s.peek().kind) {
				return nil, &MalformedQueryError{Position: op.pos, Reason: "AND must be followed by a term"}
			}
		case startsUnary(kind):
		default:
			return andOf(children), nil
		}
	}
}

func startsUnary(k tokenKind) bool {
	return k == tokNot || k == tokLParen || k == tokWord || k == tokPhrase
}

func (s *state) parseUnary() (Node, error) {
	if s.peek().kind != tokNot {
		return s.parsePrimary()
	}
	op := s.next()
	if !startsUnary(s.peek().kind) {
		return nil, &MalformedQueryError{Position: op.pos, Reason: "NOT must be followed by a term"}
	}
	child, err := s.parseUnary()
	if err != nil || child == nil {
		return nil, err
	}
	if inner, ok := child.(Not); ok {
		return inner.Child, nil
	}
	return Not{Child: child}, nil
}

func (s *state) parsePrimary() (Node, error) {
	tok := s.next()
	switch tok.kind {
	case tokLParen:
		if s.peek().kind == tokRParen {
			return nil, &MalformedQueryError{Position: tok.pos, Reason: "empty group"}
		}
		inner, err := s.parseOr()
		if err != nil {
			return nil, err
		}
		if s.peek().kind != tokRParen {
			return nil, &MalformedQueryError{Position: tok.pos, Reason: "missing closing parenthesis"}
		}
		s.next()
		return inner, nil
	case tokWord, tokPhrase:
		return s.normalise(tok), nil
	default:
		return nil, unexpected(tok)
	}
}

func (s *state) normalise(tok lexToken) Node {
	terms := tokenizer.Terms(s.tokenizer, tok.text)
	switch len(terms) {
	case 0:
		return nil
	case 1:
		return Term{Field: tok.field, Value: terms[0]}
	default:
		return Phrase{Field: tok.field, Terms: terms}
	}
}

// andOf and orOf flatten nested nodes of the same operator and collapse
// single-child groups.
func andOf(children []Node) Node {
	var flat []Node
	for _, c := range children {
		if a, ok := c.(And); ok {
			flat = append(flat, a.Children...)
			continue
		}
		flat = append(flat, c)
	}
	switch len(flat) {
	case 0:
		return nil
	case 1:
		return flat[0]
	}
	return And{Children: flat}
}

func orOf(children []Node) Node {
	var flat []Node
	for _, c := range children {
		if o, ok := c.(Or); ok {
			flat = append(flat, o.Children...)
			continue
		}
		flat = append(flat, c)
	}
	switch len(flat) {
	case 0:
		return nil
	case 1:
		return flat[0]
	}
	return Or{Children: flat}
}
