package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/index"
)

type Reader struct {
	file     *os.File
	filePath string
	header   SegmentHeader
	dict     []DictEntry
	meta     Meta
	postBase int64
}

// OpenReader opens a segment, checks its magic, version and checksum, and
// loads its dictionary and metadata.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening segment file: %w", err)
	}
	r, err := readSegment(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func readSegment(f *os.File, path string) (*Reader, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat segment: %w", err)
	}
	if info.Size() < int64(HeaderSize+FooterSize) {
		return nil, fmt.Errorf("invalid segment file %s: too short", path)
	}

	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	magic := binary.LittleEndian.Uint32(headerBytes[0:4])
	if magic != MagicBytes {
		return nil, fmt.Errorf("invalid segment file: bad magic bytes %x", magic)
	}
	header := SegmentHeader{
		Magic:      magic,
		Version:    binary.LittleEndian.Uint32(headerBytes[4:8]),
		TermCount:  binary.LittleEndian.Uint32(headerBytes[8:12]),
		DocCount:   binary.LittleEndian.Uint32(headerBytes[12:16]),
		DictOffset: int64(binary.LittleEndian.Uint64(headerBytes[16:24])),
		DictSize:   int64(binary.LittleEndian.Uint64(headerBytes[24:32])),
		PostOffset: int64(binary.LittleEndian.Uint64(headerBytes[32:40])),
		PostSize:   int64(binary.LittleEndian.Uint64(headerBytes[40:48])),
		MetaOffset: int64(binary.LittleEndian.Uint64(headerBytes[48:56])),
		Generation: binary.LittleEndian.Uint64(headerBytes[56:64]),
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported segment version %d", header.Version)
	}

	footer := make([]byte, FooterSize)
	if _, err := f.ReadAt(footer, info.Size()-int64(FooterSize)); err != nil {
		return nil, fmt.Errorf("reading footer: %w", err)
	}
	checksum := binary.LittleEndian.Uint32(footer[0:4])
	metaSize := int64(binary.LittleEndian.Uint64(footer[8:16]))

	dictBytes := make([]byte, header.DictSize)
	if _, err := f.ReadAt(dictBytes, header.DictOffset); err != nil {
		return nil, fmt.Errorf("reading dictionary: %w", err)
	}
	metaBytes := make([]byte, metaSize)
	if _, err := f.ReadAt(metaBytes, header.MetaOffset); err != nil {
		return nil, fmt.Errorf("reading metadata: %w", err)
	}
	crc := crc32.NewIEEE()
	crc.Write(dictBytes)
	crc.Write(metaBytes)
	if crc.Sum32() != checksum {
		return nil, fmt.Errorf("segment %s: checksum mismatch", path)
	}

	var dict []DictEntry
	if err := json.Unmarshal(dictBytes, &dict); err != nil {
		return nil, fmt.Errorf("parsing dictionary: %w", err)
	}
	var meta Meta
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return nil, fmt.Errorf("parsing metadata: %w", err)
	}
	return &Reader{
		file:     f,
		filePath: path,
		header:   header,
		dict:     dict,
		meta:     meta,
		postBase: header.PostOffset,
	}, nil
}

// Search returns the postings of one term without loading the rest.
func (r *Reader) Search(term string) (index.PostingList, error) {
	i := sort.Search(len(r.dict), func(i int) bool {
		return r.dict[i].Term >= term
	})
	if i >= len(r.dict) || r.dict[i].Term != term {
		return nil, nil
	}
	return r.readPostings(r.dict[i])
}

func (r *Reader) readPostings(entry DictEntry) (index.PostingList, error) {
	postingsBytes := make([]byte, entry.PostLen)
	if _, err := r.file.ReadAt(postingsBytes, r.postBase+entry.PostOffset); err != nil {
		return nil, fmt.Errorf("reading postings for %q: %w", entry.Term, err)
	}
	var postings index.PostingList
	if err := json.Unmarshal(postingsBytes, &postings); err != nil {
		return nil, fmt.Errorf("parsing postings for %q: %w", entry.Term, err)
	}
	return postings, nil
}

// Load reads every term and rebuilds the immutable index.
func (r *Reader) Load() (*index.Index, error) {
	entries := make([]index.TermEntry, 0, len(r.dict))
	for _, entry := range r.dict {
		postings, err := r.readPostings(entry)
		if err != nil {
			return nil, err
		}
		entries = append(entries, index.TermEntry{Term: entry.Term, Postings: postings})
	}
	idx, err := index.New(entries, r.meta.DocLengths, r.meta.Tokenizer)
	if err != nil {
		return nil, fmt.Errorf("rebuilding index from %s: %w", r.filePath, err)
	}
	if r.meta.Fingerprint != "" && idx.Fingerprint() != r.meta.Fingerprint {
		return nil, fmt.Errorf("segment %s: fingerprint mismatch", r.filePath)
	}
	return idx, nil
}

func (r *Reader) Generation() uint64 {
	return r.header.Generation
}

func (r *Reader) Tokenizer() string {
	return r.meta.Tokenizer
}

func (r *Reader) Terms() int {
	return len(r.dict)
}

func (r *Reader) DocCount() uint32 {
	return r.header.DocCount
}

func (r *Reader) Close() error {
	return r.file.Close()
}

// Latest returns the path of the newest generation segment in dir, or ""
// when there is none.
func Latest(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("listing %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "gen_") && strings.HasSuffix(e.Name(), fileExt) {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", nil
	}
	// zero-padded generation numbers sort lexically
	slices.Sort(names)
	return filepath.Join(dir, names[len(names)-1]), nil
}

// Prune removes every segment in dir except the newest keep files.
func Prune(dir string, keep int) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("listing %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), fileExt) {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	for len(names) > keep {
		if err := os.Remove(filepath.Join(dir, names[0])); err != nil {
			return fmt.Errorf("removing %s: %w", names[0], err)
		}
		names = names[1:]
	}
	return nil
}
