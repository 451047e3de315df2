package parser

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokLParen
	tokRParen
	tokAnd
	tokOr
	tokNot
	tokWord
	tokPhrase
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of query"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	case tokAnd:
		return "AND"
	case tokOr:
		return "OR"
	case tokNot:
		return "NOT"
	case tokWord:
		return "term"
	case tokPhrase:
		return "phrase"
	}
	return "unknown"
}

type lexToken struct {
	kind  tokenKind
	field string
	text  string
	pos   int
}

// lex splits raw into tokens. Words run until whitespace, a parenthesis or
// a quote. A word of the form field:value carries its field separately; a
// word ending in ':' followed directly by a quote starts a field phrase.
func lex(raw string) ([]lexToken, error) {
	var tokens []lexToken
	i := 0
	for i < len(raw) {
		r, size := utf8.DecodeRuneInString(raw[i:])
		switch {
		case unicode.IsSpace(r):
			i += size
		case r == '(':
			tokens = append(tokens, lexToken{kind: tokLParen, pos: i})
			i++
		case r == ')':
			tokens = append(tokens, lexToken{kind: tokRParen, pos: i})
			i++
		case r == '"':
			text, next, err := readQuoted(raw, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, lexToken{kind: tokPhrase, text: text, pos: i})
			i = next
		case r == '-' && i+1 < len(raw) && startsOperand(raw[i+1:]):
			tokens = append(tokens, lexToken{kind: tokNot, pos: i})
			i++
		default:
			start := i
			for i < len(raw) {
				r, size := utf8.DecodeRuneInString(raw[i:])
				if unicode.IsSpace(r) || r == '(' || r == ')' || r == '"' {
					break
				}
				i += size
			}
			tok, next, err := classifyWord(raw, start, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
			i = next
		}
	}
	tokens = append(tokens, lexToken{kind: tokEOF, pos: len(raw)})
	return tokens, nil
}

func startsOperand(rest string) bool {
	r, _ := utf8.DecodeRuneInString(rest)
	return !unicode.IsSpace(r) && r != ')' && r != '-'
}

func readQuoted(raw string, open int) (string, int, error) {
	end := strings.IndexByte(raw[open+1:], '"')
	if end < 0 {
		return "", 0, &MalformedQueryError{Position: open, Reason: "unterminated quote"}
	}
	return raw[open+1 : open+1+end], open + 1 + end + 1, nil
}

func classifyWord(raw string, start, end int) (lexToken, int, error) {
	word := raw[start:end]
	switch word {
	case "AND":
		return lexToken{kind: tokAnd, pos: start}, end, nil
	case "OR":
		return lexToken{kind: tokOr, pos: start}, end, nil
	case "NOT":
		return lexToken{kind: tokNot, pos: start}, end, nil
	}

	colon := strings.IndexByte(word, ':')
	if colon < 0 {
		return lexToken{kind: tokWord, text: word, pos: start}, end, nil
	}
	field, value := word[:colon], word[colon+1:]
	if field == "" {
		return lexToken{}, 0, &MalformedQueryError{Position: start, Reason: "empty field name"}
	}
	if value != "" {
		return lexToken{kind: tokWord, field: field, text: value, pos: start}, end, nil
	}
	if end < len(raw) && raw[end] == '"' {
		text, next, err := readQuoted(raw, end)
		if err != nil {
			return lexToken{}, 0, err
		}
		return lexToken{kind: tokPhrase, field: field, text: text, pos: start}, next, nil
	}
	return lexToken{}, 0, &MalformedQueryError{Position: end, Reason: "missing value after field " + field}
}
