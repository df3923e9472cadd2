package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveReadList(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "store"))
	require.NoError(t, err)

	path, err := s.Save(20, []byte("Second\nbody"))
	require.NoError(t, err)
	assert.Equal(t, s.PathFor(20), path)
	_, err = s.Save(3, []byte("Third"))
	require.NoError(t, err)

	data, err := s.Read(20)
	require.NoError(t, err)
	assert.Equal(t, "Second\nbody", string(data))

	numbers, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []int{3, 20}, numbers)
	assert.True(t, s.Has(3))
	assert.False(t, s.Has(4))
}

// TestListIgnoresStrayFiles tests that only rfc_<n>.txt names are listed
func TestListIgnoresStrayFiles(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	require.NoError(t, err)

	for _, name := range []string{"notes.txt", "rfc_x.txt", "rfc_5.md", "rfc_7.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte("x"), 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(root, "rfc_8.txt"), 0755))

	numbers, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []int{7}, numbers)
}

func TestReadMissing(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	_, err = s.Read(1)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestTitle(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	s.Save(1, []byte("  Internet Protocol  \r\nrest"))
	s.Save(2, []byte("\nsecond line"))
	assert.Equal(t, "Internet Protocol", s.Title(1))
	assert.Equal(t, "RFC 2", s.Title(2))
	assert.Equal(t, "RFC 3", s.Title(3))
}

func TestNumberFromPath(t *testing.T) {
	n, ok := NumberFromPath("/samples/rfc_sample_791.txt")
	assert.True(t, ok)
	assert.Equal(t, 791, n)

	_, ok = NumberFromPath("readme.txt")
	assert.False(t, ok)
}

func TestImport(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	src := filepath.Join(t.TempDir(), "doc.txt")
	require.NoError(t, os.WriteFile(src, []byte("Doc"), 0644))

	path, err := s.Import(9, src)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Doc", string(data))

	_, err = s.Import(10, filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestImportDir(t *testing.T) {
	sample := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(sample, "rfc_sample_791.txt"), []byte("IP"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(sample, "rfc_793.txt"), []byte("TCP"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(sample, "README.txt"), []byte("skip"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(sample, "rfc_1.md"), []byte("skip"), 0644))

	s, err := New(filepath.Join(t.TempDir(), "store"))
	require.NoError(t, err)

	imported, skipped, err := s.ImportDir(sample)
	require.NoError(t, err)
	assert.Equal(t, 2, imported)
	assert.Equal(t, []string{filepath.Join(sample, "README.txt")}, skipped)

	numbers, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []int{791, 793}, numbers)
	assert.Equal(t, "TCP", s.Title(793))

	_, _, err = s.ImportDir(filepath.Join(sample, "absent"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
