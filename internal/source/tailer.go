// Package source turns external data into documents for the search service:
// appended lines of JSON-lines log files, and rows of a SQL table.
package source

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/document"
)

// MessageField holds the raw line when a log line is not a JSON object.
const MessageField = "msg"

// LogTailer reads log files incrementally. It remembers, per file, the
// offset just past the last complete line it consumed, and keeps every
// document it produced so the whole corpus can be re-indexed.
type LogTailer struct {
	mu      sync.Mutex
	offsets map[string]int64
	names   map[string]string
	paths   map[string]string
	docs    map[string]document.Document
	logger  *slog.Logger
}

func NewLogTailer() *LogTailer {
	return &LogTailer{
		offsets: make(map[string]int64),
		names:   make(map[string]string),
		paths:   make(map[string]string),
		docs:    make(map[string]document.Document),
		logger:  slog.Default().With("component", "log-tailer"),
	}
}

// Tail reads the bytes appended to path since the previous call and
// returns one document per new non-blank line. A trailing line without a
// newline is left for the next call. A file that shrank is assumed to have
// been rotated and is read again from the start.
//
// Document IDs name the file by the cleaned path first passed for it, so
// a relative path stays relative to the directory the tailer ran in.
func (t *LogTailer) Tail(path string) ([]document.Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	name, known := t.names[abs]
	if !known {
		name = filepath.ToSlash(filepath.Clean(path))
		if prev, ok := t.paths[name]; ok && prev != abs {
			return nil, fmt.Errorf("%s and %s are both named %q", prev, abs, name)
		}
	}

	f, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", abs, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", abs, err)
	}

	offset := t.offsets[abs]
	if info.Size() < offset {
		t.logger.Warn("log file shrank, reading from start", "path", abs, "size", info.Size(), "offset", offset)
		offset = 0
		t.dropFile(name)
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seeking %s: %w", abs, err)
	}
	buf, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", abs, err)
	}

	complete := bytes.LastIndexByte(buf, '\n') + 1
	var docs []document.Document
	pos := 0
	for pos < complete {
		end := pos + bytes.IndexByte(buf[pos:complete], '\n')
		line := bytes.TrimRight(buf[pos:end], "\r")
		if len(bytes.TrimSpace(line)) > 0 {
			doc := document.Document{
				ID:     Pointer{File: name, Offset: offset + int64(pos)}.String(),
				Fields: parseLine(line),
			}
			t.docs[doc.ID] = doc
			docs = append(docs, doc)
		}
		pos = end + 1
	}

	t.offsets[abs] = offset + int64(complete)
	t.names[abs] = name
	t.paths[name] = abs
	t.logger.Debug("tailed log file",
		"path", abs,
		"new_lines", len(docs),
		"offset", t.offsets[abs],
		"pending_bytes", len(buf)-complete,
	)
	return docs, nil
}

func (t *LogTailer) dropFile(name string) {
	prefix := name + ":"
	maps.DeleteFunc(t.docs, func(id string, _ document.Document) bool {
		return strings.HasPrefix(id, prefix)
	})
}

// Documents returns every document tailed so far in ascending ID order.
func (t *LogTailer) Documents() []document.Document {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]document.Document, 0, len(t.docs))
	for _, id := range slices.Sorted(maps.Keys(t.docs)) {
		out = append(out, t.docs[id])
	}
	return out
}

// Offset reports how far into path the tailer has consumed.
func (t *LogTailer) Offset(path string) int64 {
	abs, err := filepath.Abs(path)
	if err != nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.offsets[abs]
}

// ReadRecord returns the raw log line ptr refers to. The file must have
// been tailed by t.
func (t *LogTailer) ReadRecord(ptr Pointer) (string, error) {
	t.mu.Lock()
	path, ok := t.paths[ptr.File]
	t.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("no tailed file named %q", ptr.File)
	}
	return ReadLine(path, ptr.Offset)
}

// ReadLine returns the line of path starting at offset, without its
// newline.
func ReadLine(path string, offset int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return "", fmt.Errorf("seeking %s: %w", path, err)
	}
	var sb strings.Builder
	buf := make([]byte, 4096)
	for {
		n, err := f.Read(buf)
		if i := bytes.IndexByte(buf[:n], '\n'); i >= 0 {
			sb.Write(buf[:i])
			break
		}
		sb.Write(buf[:n])
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", path, err)
		}
	}
	return strings.TrimRight(sb.String(), "\r"), nil
}

// Pointer locates a log line: the file's slash-separated path as it was
// tailed and the byte offset the line starts at. Its string form is the
// document ID.
type Pointer struct {
	File   string
	Offset int64
}

func (p Pointer) String() string {
	return p.File + ":" + strconv.FormatInt(p.Offset, 10)
}

// ParsePointer reverses Pointer.String.
func ParsePointer(id string) (Pointer, error) {
	i := strings.LastIndexByte(id, ':')
	if i <= 0 {
		return Pointer{}, fmt.Errorf("document id %q is not a log pointer", id)
	}
	off, err := strconv.ParseInt(id[i+1:], 10, 64)
	if err != nil || off < 0 {
		return Pointer{}, fmt.Errorf("document id %q has no valid offset", id)
	}
	return Pointer{File: id[:i], Offset: off}, nil
}

// Resolve returns the file path, joining relative pointers onto dir.
func (p Pointer) Resolve(dir string) string {
	file := filepath.FromSlash(p.File)
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(dir, file)
}

// parseLine maps a JSON object's scalar values to fields. Keys that cannot
// be field names are skipped. Anything else,
// including objects with no scalar values, is kept whole under msg.
func parseLine(line []byte) map[string]string {
	text := strings.ToValidUTF8(string(line), "�")
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil || dec.More() {
		return map[string]string{MessageField: text}
	}
	fields := make(map[string]string, len(obj))
	for key, val := range obj {
		if !usableFieldName(key) {
			continue
		}
		switch v := val.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				fields[key] = v
			}
		case json.Number:
			fields[key] = v.String()
		case bool:
			fields[key] = strconv.FormatBool(v)
		}
	}
	if len(fields) == 0 {
		return map[string]string{MessageField: text}
	}
	return fields
}

func usableFieldName(key string) bool {
	return strings.TrimSpace(key) != "" && len(key) <= 128 && !strings.ContainsAny(key, ": \t\n\"()")
}
