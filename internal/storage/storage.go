// CRC: crc-Storage.md, Spec: main.md
package storage

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const (
	filePrefix = "rfc_"
	fileSuffix = ".txt"
)

// Store keeps RFC files on disk as <root>/rfc_<n>.txt
// CRC: crc-Storage.md
type Store struct {
	root string
}

// New creates the root directory if needed
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &Store{root: root}, nil
}

// Root returns the store directory
func (s *Store) Root() string {
	return s.root
}

// PathFor returns the file path for RFC n
func (s *Store) PathFor(n int) string {
	return filepath.Join(s.root, filePrefix+strconv.Itoa(n)+fileSuffix)
}

// Save writes data for RFC n, replacing any previous copy
func (s *Store) Save(n int, data []byte) (string, error) {
	path := s.PathFor(n)
	tmp, err := os.CreateTemp(s.root, ".rfc-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to write RFC %d: %w", n, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to write RFC %d: %w", n, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to store RFC %d: %w", n, err)
	}
	return path, nil
}

// Import copies the file at source into the store as RFC n
func (s *Store) Import(n int, source string) (string, error) {
	data, err := os.ReadFile(source)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", source, err)
	}
	return s.Save(n, data)
}

// ImportDir copies every *.txt file in dir into the store, numbering each by
// the "_<n>" suffix of its name. Files without a number are returned as skipped.
func (s *Store) ImportDir(dir string) (imported int, skipped []string, err error) {
	if _, err := os.Stat(dir); err != nil {
		return 0, nil, fmt.Errorf("seed directory: %w", err)
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	if err != nil {
		return 0, nil, err
	}

	for _, path := range matches {
		n, ok := NumberFromPath(path)
		if !ok {
			skipped = append(skipped, path)
			continue
		}
		if _, err := s.Import(n, path); err != nil {
			return imported, skipped, err
		}
		imported++
	}
	return imported, skipped, nil
}

// Read returns the content of RFC n; the error wraps os.ErrNotExist when absent
func (s *Store) Read(n int) ([]byte, error) {
	return os.ReadFile(s.PathFor(n))
}

// Stat returns file info for RFC n
func (s *Store) Stat(n int) (os.FileInfo, error) {
	return os.Stat(s.PathFor(n))
}

// Has reports whether RFC n is stored locally
func (s *Store) Has(n int) bool {
	info, err := s.Stat(n)
	return err == nil && !info.IsDir()
}

// List returns the stored RFC numbers in ascending order
func (s *Store) List() ([]int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var numbers []int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if n, ok := parseName(e.Name()); ok {
			numbers = append(numbers, n)
		}
	}
	sort.Ints(numbers)
	return numbers, nil
}

// Title returns the first line of RFC n, or "RFC <n>" when it is empty
func (s *Store) Title(n int) string {
	data, err := s.Read(n)
	if err != nil {
		return DefaultTitle(n)
	}
	return TitleOf(data, n)
}

// TitleOf returns the trimmed first line of data, or "RFC <n>" when it is empty
func TitleOf(data []byte, n int) string {
	sc := bufio.NewScanner(bytes.NewReader(data))
	if sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			return line
		}
	}
	return DefaultTitle(n)
}

// DefaultTitle is the title used when a file has none
func DefaultTitle(n int) string {
	return "RFC " + strconv.Itoa(n)
}

// NumberFromPath extracts n from a path whose base name ends in _<n>.txt
func NumberFromPath(path string) (int, bool) {
	base := strings.TrimSuffix(filepath.Base(path), fileSuffix)
	i := strings.LastIndex(base, "_")
	if i < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(base[i+1:])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func parseName(name string) (int, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
