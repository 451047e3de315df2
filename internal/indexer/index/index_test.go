package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/tokenizer"
)

func buildMemoryIndex(t *testing.T, order []string) *Index {
	t.Helper()
	docs := map[string]map[string]string{
		"1": {"body": "the cat sat"},
		"2": {"body": "the dog sat", "title": "dog"},
	}
	m := NewMemoryIndex(tokenizer.Simple)
	for _, id := range order {
		for field, text := range docs[id] {
			m.AddField(id, field, tokenizer.SimpleTokenizer{}.Tokenize(text))
		}
	}
	idx, err := m.Freeze()
	require.NoError(t, err)
	return idx
}

func TestFreezeProducesSortedPostings(t *testing.T) {
	idx := buildMemoryIndex(t, []string{"2", "1"})

	assert.Equal(t, []string{"cat", "dog", "sat", "the"}, idx.Terms())
	assert.Equal(t, []string{"1", "2"}, idx.DocIDs("sat"))
	assert.Equal(t, 2, idx.DocumentCount())
	assert.Equal(t, 3.5, idx.AverageDocumentLength())
	assert.Equal(t, 4, idx.DocLength("2"))

	dog := idx.Postings("dog")
	require.Len(t, dog, 2)
	assert.Equal(t, Posting{DocID: "2", Field: "body", Frequency: 1, Positions: []int{1}}, dog[0])
	assert.Equal(t, Posting{DocID: "2", Field: "title", Frequency: 1, Positions: []int{0}}, dog[1])
	assert.Equal(t, []string{"2"}, idx.DocIDs("dog"))
	assert.Equal(t, 1, idx.DocFreq("dog"))

	for _, term := range idx.Terms() {
		assert.NoError(t, idx.Postings(term).Check(), term)
	}
}

func TestFingerprintIgnoresInsertionOrder(t *testing.T) {
	a := buildMemoryIndex(t, []string{"1", "2"})
	b := buildMemoryIndex(t, []string{"2", "1"})
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.Equal(t, a.Entries(), b.Entries())
}

func TestMissingTerm(t *testing.T) {
	idx := buildMemoryIndex(t, []string{"1"})
	assert.Empty(t, idx.Postings("zebra"))
	assert.Empty(t, idx.DocIDs("zebra"))
	assert.False(t, idx.HasDocument("2"))
}

func TestNewRejectsBadEntries(t *testing.T) {
	lens := map[string]int{"1": 1, "2": 1}

	_, err := New([]TermEntry{{Term: "a", Postings: PostingList{
		{DocID: "2", Field: "body", Frequency: 1},
		{DocID: "1", Field: "body", Frequency: 1},
	}}}, lens, tokenizer.Simple)
	assert.ErrorContains(t, err, "out of order")

	_, err = New([]TermEntry{{Term: "a", Postings: PostingList{
		{DocID: "1", Field: "body", Frequency: 1},
		{DocID: "1", Field: "body", Frequency: 2},
	}}}, lens, tokenizer.Simple)
	assert.ErrorContains(t, err, "duplicate")

	_, err = New([]TermEntry{{Term: "a", Postings: PostingList{
		{DocID: "3", Field: "body", Frequency: 1},
	}}}, lens, tokenizer.Simple)
	assert.ErrorContains(t, err, "no length")
}

func TestPostingListField(t *testing.T) {
	pl := PostingList{
		{DocID: "1", Field: "body", Frequency: 1},
		{DocID: "1", Field: "title", Frequency: 1},
		{DocID: "2", Field: "title", Frequency: 3},
	}
	assert.Equal(t, []string{"1", "2"}, pl.Field("title").DocIDs())
	assert.Equal(t, []string{"1"}, pl.Field("body").DocIDs())
}
