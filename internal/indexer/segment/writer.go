// Package segment persists a Ready index generation as a single .spdx file
// and loads it back. Layout: a 64-byte header, the JSON postings of every
// term back to back, a JSON term dictionary, a JSON metadata block with
// document lengths, and a 32-byte footer carrying a CRC32 of dictionary
// and metadata.
package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/index"
)

const (
	MagicBytes    uint32 = 0x53504458
	FormatVersion uint32 = 2
	HeaderSize    int    = 64
	FooterSize    int    = 32
	fileExt              = ".spdx"
)

// SegmentHeader is the 64-byte header written at the start of every segment.
type SegmentHeader struct {
	Magic      uint32
	Version    uint32
	TermCount  uint32
	DocCount   uint32
	DictOffset int64
	DictSize   int64
	PostOffset int64
	PostSize   int64
	MetaOffset int64
	Generation uint64
}

// DictEntry maps a term to its postings offset, length, and document frequency
// in the segment file.
type DictEntry struct {
	Term       string `json:"t"`
	PostOffset int64  `json:"o"`
	PostLen    int    `json:"l"`
	DocFreq    int    `json:"d"`
}

// Meta is everything besides postings needed to rebuild the index.
type Meta struct {
	Tokenizer   string         `json:"tokenizer"`
	Fingerprint string         `json:"fingerprint"`
	DocLengths  map[string]int `json:"doc_lengths"`
	CreatedAt   int64          `json:"created_at"`
}

// Writer serialises index generations into .spdx files.
type Writer struct {
	dataDir string
}

// NewWriter creates a Writer that writes segments into the given directory.
func NewWriter(dataDir string) *Writer {
	return &Writer{dataDir: dataDir}
}

// FileName is the segment file name for a generation.
func FileName(generation uint64) string {
	return fmt.Sprintf("gen_%020d%s", generation, fileExt)
}

// Write atomically creates the segment for generation and returns its path.
// It writes to a .tmp file first and renames on success.
func (w *Writer) Write(generation uint64, idx *index.Index) (string, error) {
	if idx == nil || idx.DocumentCount() == 0 {
		return "", fmt.Errorf("cannot write empty segment")
	}
	segmentName := FileName(generation)
	finalPath := filepath.Join(w.dataDir, segmentName)
	tmpPath := finalPath + ".tmp"

	if err := os.MkdirAll(w.dataDir, 0755); err != nil {
		return "", fmt.Errorf("creating segment directory: %w", err)
	}
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp segment file: %w", err)
	}
	committed := false
	defer func() {
		f.Close()
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	entries := idx.Entries()
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.Write(headerBytes); err != nil {
		return "", fmt.Errorf("writing header: %w", err)
	}

	postingsStart := int64(HeaderSize)
	pos := postingsStart
	dict := make([]DictEntry, 0, len(entries))
	for _, entry := range entries {
		postingsData, err := json.Marshal(entry.Postings)
		if err != nil {
			return "", fmt.Errorf("marshaling postings for term %q: %w", entry.Term, err)
		}
		if _, err := f.Write(postingsData); err != nil {
			return "", fmt.Errorf("writing postings for term %q: %w", entry.Term, err)
		}
		dict = append(dict, DictEntry{
			Term:       entry.Term,
			PostOffset: pos - postingsStart,
			PostLen:    len(postingsData),
			DocFreq:    idx.DocFreq(entry.Term),
		})
		pos += int64(len(postingsData))
	}
	postingsSize := pos - postingsStart

	dictData, err := json.Marshal(dict)
	if err != nil {
		return "", fmt.Errorf("marshaling dictionary: %w", err)
	}
	if _, err := f.Write(dictData); err != nil {
		return "", fmt.Errorf("writing dictionary: %w", err)
	}
	dictStart := pos
	pos += int64(len(dictData))

	createdAt := time.Now().Unix()
	metaData, err := json.Marshal(Meta{
		Tokenizer:   idx.Tokenizer(),
		Fingerprint: idx.Fingerprint(),
		DocLengths:  idx.DocLengths(),
		CreatedAt:   createdAt,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling metadata: %w", err)
	}
	if _, err := f.Write(metaData); err != nil {
		return "", fmt.Errorf("writing metadata: %w", err)
	}
	metaStart := pos

	crc := crc32.NewIEEE()
	crc.Write(dictData)
	crc.Write(metaData)
	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc.Sum32())
	binary.LittleEndian.PutUint32(footer[4:8], uint32(idx.DocumentCount()))
	binary.LittleEndian.PutUint64(footer[8:16], uint64(len(metaData)))
	binary.LittleEndian.PutUint64(footer[16:24], uint64(createdAt))
	if _, err := f.Write(footer); err != nil {
		return "", fmt.Errorf("writing footer: %w", err)
	}

	binary.LittleEndian.PutUint32(headerBytes[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(headerBytes[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(headerBytes[8:12], uint32(len(entries)))
	binary.LittleEndian.PutUint32(headerBytes[12:16], uint32(idx.DocumentCount()))
	binary.LittleEndian.PutUint64(headerBytes[16:24], uint64(dictStart))
	binary.LittleEndian.PutUint64(headerBytes[24:32], uint64(len(dictData)))
	binary.LittleEndian.PutUint64(headerBytes[32:40], uint64(postingsStart))
	binary.LittleEndian.PutUint64(headerBytes[40:48], uint64(postingsSize))
	binary.LittleEndian.PutUint64(headerBytes[48:56], uint64(metaStart))
	binary.LittleEndian.PutUint64(headerBytes[56:64], generation)
	if _, err := f.WriteAt(headerBytes, 0); err != nil {
		return "", fmt.Errorf("updating header: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("syncing segment file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing segment file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("renaming segment file: %w", err)
	}
	committed = true
	return finalPath, nil
}
