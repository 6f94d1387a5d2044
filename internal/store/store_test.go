package store

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s := New(dir, nil)
	require.NoError(t, s.EnsureSpace(""))
	return s
}

func TestWritePageCreatesRevisionOne(t *testing.T) {
	s := newTestStore(t)

	rev, err := s.WritePage("", "Welcome", "hello\n", "0001")
	require.NoError(t, err)
	assert.Equal(t, 1, rev)

	text, rev, err := s.ReadPage("", "Welcome")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", text)
	assert.Equal(t, 1, rev)
}

func TestWritePageRevisionsAreConsecutive(t *testing.T) {
	s := newTestStore(t)

	for i, body := range []string{"one\n", "two\n", "three\n"} {
		rev, err := s.WritePage("", "Page", body, "0001")
		require.NoError(t, err)
		assert.Equal(t, i+1, rev)
	}

	for rev, want := range map[int]string{1: "one\n", 2: "two\n", 3: "three\n"} {
		got, err := s.ReadPageRevision("", "Page", rev)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestEmptyBodyDeletesButKeepsHistory(t *testing.T) {
	s := newTestStore(t)

	_, err := s.WritePage("", "Page", "content\n", "0001")
	require.NoError(t, err)

	rev, err := s.WritePage("", "Page", "", "0001")
	require.NoError(t, err)
	assert.Equal(t, 2, rev)

	_, _, err = s.ReadPage("", "Page")
	assert.ErrorIs(t, err, ErrNotFound)

	hist, err := s.History("", "Page")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, 1, hist[0].Number)
}

func TestWriteAfterDeleteContinuesMonotonically(t *testing.T) {
	s := newTestStore(t)

	_, err := s.WritePage("", "Page", "v1\n", "0001")
	require.NoError(t, err)
	_, err = s.WritePage("", "Page", "", "0001")
	require.NoError(t, err)

	rev, err := s.WritePage("", "Page", "v3\n", "0001")
	require.NoError(t, err)
	assert.Equal(t, 3, rev)

	text, rev, err := s.ReadPage("", "Page")
	require.NoError(t, err)
	assert.Equal(t, "v3\n", text)
	assert.Equal(t, 3, rev)
}

func TestWriteFileOverwritesInPlace(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.WriteFile("", "jupiter.jpg", []byte("aaa"), "image/jpeg", "0001"))
	data, mime, err := s.ReadFile("", "jupiter.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("aaa"), data)
	assert.Equal(t, "image/jpeg", mime)

	require.NoError(t, s.WriteFile("", "jupiter.jpg", []byte("bbb"), "image/jpeg", "0001"))
	data, _, err = s.ReadFile("", "jupiter.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("bbb"), data)
}

func TestListPagesRebuildsIndexIdempotently(t *testing.T) {
	s := newTestStore(t)
	_, err := s.WritePage("", "Alpha", "a\n", "0001")
	require.NoError(t, err)
	_, err = s.WritePage("", "Beta", "b\n", "0001")
	require.NoError(t, err)

	names, err := s.ListPages("")
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha", "Beta"}, names)

	require.NoError(t, os.Remove(s.indexPath("")))

	namesAgain, err := s.ListPages("")
	require.NoError(t, err)
	assert.Equal(t, names, namesAgain)
}

func TestReadChangesNewestFirst(t *testing.T) {
	s := newTestStore(t)
	_, err := s.WritePage("", "A", "1\n", "0001")
	require.NoError(t, err)
	_, err = s.WritePage("", "B", "2\n", "0002")
	require.NoError(t, err)

	entries, err := s.ReadChanges("", 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "B", entries[0].Name)
	assert.Equal(t, "A", entries[1].Name)
}

func TestReadChangesToleratesTornTail(t *testing.T) {
	s := newTestStore(t)
	_, err := s.WritePage("", "A", "1\n", "0001")
	require.NoError(t, err)

	f, err := os.OpenFile(s.changesPath(""), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("not-a-valid-line-at-all\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	entries, err := s.ReadChanges("", 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "A", entries[0].Name)
}

func TestValidateNameRejectsReservedShapes(t *testing.T) {
	assert.Error(t, ValidateName(""))
	assert.Error(t, ValidateName("a/b"))
	assert.Error(t, ValidateName(".hidden"))
	assert.Error(t, ValidateName("a\x00b"))
	assert.NoError(t, ValidateName("Normal_Page"))
}
