// Package tokenizer turns field text into normalised terms. The same
// Tokenizer must be used to build an index and to parse queries against
// it, so strategies are selected by name from configuration.
package tokenizer

import (
	"fmt"
	"strings"
	"unicode"
)

// Strategy names accepted by New.
const (
	Simple       = "simple"
	Stemming     = "stemming"
	Bleve        = "bleve"
	BleveEnglish = "bleve-en"
)

// Token is a single normalised term and its position among the terms of
// the text it came from.
type Token struct {
	Term     string
	Position int
}

// Tokenizer splits text into normalised terms.
type Tokenizer interface {
	Name() string
	Tokenize(text string) []Token
}

// New returns the strategy registered under name. An empty name selects
// the simple strategy.
func New(name string) (Tokenizer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", Simple:
		return SimpleTokenizer{}, nil
	case Stemming:
		return StemmingTokenizer{}, nil
	case Bleve:
		return NewBleve()
	case BleveEnglish:
		return NewBleveEnglish()
	default:
		return nil, fmt.Errorf("unknown tokenizer %q", name)
	}
}

// Terms returns just the terms of Tokenize, in order.
func Terms(t Tokenizer, text string) []string {
	tokens := t.Tokenize(text)
	terms := make([]string, len(tokens))
	for i, tok := range tokens {
		terms[i] = tok.Term
	}
	return terms
}

// SimpleTokenizer lower-cases text and splits it on anything that is not
// a letter or digit.
type SimpleTokenizer struct{}

func (SimpleTokenizer) Name() string { return Simple }

func (SimpleTokenizer) Tokenize(text string) []Token {
	words := splitWords(strings.ToLower(text))
	tokens := make([]Token, len(words))
	for i, w := range words {
		tokens[i] = Token{Term: w, Position: i}
	}
	return tokens
}

func splitWords(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
