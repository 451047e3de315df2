package tokenizer

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
)

// BleveTokenizer delegates to a registered bleve analyzer. The standard
// analyzer applies unicode word segmentation, lower-casing and English
// stop-word removal; the "en" analyzer adds possessive handling and
// Porter stemming.
type BleveTokenizer struct {
	name     string
	analyzer analysis.Analyzer
}

// NewBleve wraps bleve's standard analyzer.
func NewBleve() (*BleveTokenizer, error) {
	return newBleveTokenizer(Bleve, standard.Name)
}

// NewBleveEnglish wraps bleve's English analyzer.
func NewBleveEnglish() (*BleveTokenizer, error) {
	return newBleveTokenizer(BleveEnglish, en.AnalyzerName)
}

func newBleveTokenizer(name, analyzerName string) (*BleveTokenizer, error) {
	mapping := bleve.NewIndexMapping()
	analyzer := mapping.AnalyzerNamed(analyzerName)
	if analyzer == nil {
		return nil, fmt.Errorf("bleve analyzer %q is not registered", analyzerName)
	}
	return &BleveTokenizer{name: name, analyzer: analyzer}, nil
}

func (b *BleveTokenizer) Name() string { return b.name }

// Tokenize renumbers positions from zero over the emitted terms; bleve's
// own positions count removed stop words.
func (b *BleveTokenizer) Tokenize(text string) []Token {
	stream := b.analyzer.Analyze([]byte(text))
	tokens := make([]Token, 0, len(stream))
	for _, tok := range stream {
		if len(tok.Term) == 0 {
			continue
		}
		tokens = append(tokens, Token{Term: string(tok.Term), Position: len(tokens)})
	}
	return tokens
}
