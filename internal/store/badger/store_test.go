package badger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/document"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreAddGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Add(ctx, document.New("1", map[string]string{"body": "the cat sat", "level": "info"}))
	require.NoError(t, err)

	doc, err := s.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "the cat sat", doc.Fields["body"])
	assert.Equal(t, "info", doc.Fields["level"])

	_, err = s.Get(ctx, "2")
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)
}

func TestStoreRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Add(ctx, document.New("1", map[string]string{"body": "a"}))
	require.NoError(t, err)
	_, err = s.Add(ctx, document.New("1", map[string]string{"body": "b"}))
	assert.ErrorIs(t, err, apperrors.ErrInvalidDocument)

	_, err = s.Add(ctx, document.New("2", nil))
	assert.ErrorIs(t, err, apperrors.ErrInvalidDocument)
	assert.Equal(t, 1, s.Len())
}

func TestStoreIterateInIDOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for _, id := range []string{"b", "c", "a"} {
		_, err := s.Add(ctx, document.New(id, map[string]string{"body": id}))
		require.NoError(t, err)
	}

	var ids []string
	for doc, err := range s.Iterate(ctx) {
		require.NoError(t, err)
		ids = append(ids, doc.ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)

	for doc, err := range s.Iterate(ctx) {
		require.NoError(t, err)
		assert.Equal(t, "a", doc.ID)
		break
	}
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(dir)
	require.NoError(t, err)
	_, err = s.Add(ctx, document.New("1", map[string]string{"body": "persisted"}))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()
	doc, err := s.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "persisted", doc.Fields["body"])
}

func TestPerGenerationRemovesDirOnClose(t *testing.T) {
	root := t.TempDir()
	open := PerGeneration(root)

	s, closeFn, err := open(3)
	require.NoError(t, err)
	_, err = s.Add(context.Background(), document.New("a", map[string]string{"body": "x"}))
	require.NoError(t, err)
	dir := filepath.Join(root, "gen_00000000000000000003")
	assert.DirExists(t, dir)

	require.NoError(t, closeFn())
	assert.NoDirExists(t, dir)
}
