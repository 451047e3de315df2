package index

import (
	"cmp"
	"fmt"
)

// Posting records one term's occurrences in one field of one document.
type Posting struct {
	DocID     string `json:"d"`
	Field     string `json:"f"`
	Frequency int    `json:"n"`
	Positions []int  `json:"p"`
}

// PostingList is ordered by (DocID, Field) with no repeated pair.
type PostingList []Posting

// TermEntry pairs a term with its postings.
type TermEntry struct {
	Term     string
	Postings PostingList
}

// DocStats carries the per-document numbers ranking needs.
type DocStats struct {
	DocID    string
	DocLen   int
	TermFreq int
}

func comparePostings(a, b Posting) int {
	if c := cmp.Compare(a.DocID, b.DocID); c != 0 {
		return c
	}
	return cmp.Compare(a.Field, b.Field)
}

// Check reports the first ordering or duplication violation in pl.
func (pl PostingList) Check() error {
	for i := 1; i < len(pl); i++ {
		switch c := comparePostings(pl[i-1], pl[i]); {
		case c == 0:
			return fmt.Errorf("duplicate posting for document %q field %q", pl[i].DocID, pl[i].Field)
		case c > 0:
			return fmt.Errorf("postings out of order at %d: %q/%q after %q/%q",
				i, pl[i].DocID, pl[i].Field, pl[i-1].DocID, pl[i-1].Field)
		}
	}
	for _, p := range pl {
		if p.Frequency <= 0 {
			return fmt.Errorf("posting for %q has frequency %d", p.DocID, p.Frequency)
		}
	}
	return nil
}

// DocIDs returns the distinct document IDs in ascending order.
func (pl PostingList) DocIDs() []string {
	ids := make([]string, 0, len(pl))
	for _, p := range pl {
		if n := len(ids); n > 0 && ids[n-1] == p.DocID {
			continue
		}
		ids = append(ids, p.DocID)
	}
	return ids
}

// Field returns the postings that belong to field, still in order.
func (pl PostingList) Field(field string) PostingList {
	out := make(PostingList, 0, len(pl))
	for _, p := range pl {
		if p.Field == field {
			out = append(out, p)
		}
	}
	return out
}
