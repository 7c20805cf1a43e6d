// Package titles reads and writes the per-season title, url and team list files.
package titles

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var seasonNames = [...]string{"Winter", "Spring", "Summer", "Fall"}

// Season is one broadcast quarter.
type Season struct {
	Year    int
	Quarter int
}

// NewSeason validates quarter in 1..4.
func NewSeason(year, quarter int) (Season, error) {
	if quarter < 1 || quarter > 4 {
		return Season{}, fmt.Errorf("quarter must be between 1 and 4, got %d", quarter)
	}
	if year <= 0 {
		return Season{}, fmt.Errorf("year must be positive, got %d", year)
	}
	return Season{Year: year, Quarter: quarter}, nil
}

// String returns a display name such as "Spring 2017".
func (s Season) String() string {
	if s.Quarter < 1 || s.Quarter > 4 {
		return fmt.Sprintf("%d-%d", s.Year, s.Quarter)
	}
	return fmt.Sprintf("%s %d", seasonNames[s.Quarter-1], s.Year)
}

// FileName returns <year>-<quarter>[-ignore][-urls].txt.
func (s Season) FileName(ignored, urls bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d-%d", s.Year, s.Quarter)
	if ignored {
		b.WriteString("-ignore")
	}
	if urls {
		b.WriteString("-urls")
	}
	b.WriteString(".txt")
	return b.String()
}

// Label returns the list name without extension, e.g. "2017-2-ignore".
func (s Season) Label(ignored bool) string {
	return strings.TrimSuffix(s.FileName(ignored, false), ".txt")
}

// Store resolves list files below a directory.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Path returns the full path of a season list file.
func (s *Store) Path(season Season, ignored, urls bool) string {
	return filepath.Join(s.dir, season.FileName(ignored, urls))
}

// Exists reports whether the list file is already present.
func (s *Store) Exists(season Season, ignored, urls bool) bool {
	_, err := os.Stat(s.Path(season, ignored, urls))
	return err == nil
}

// Titles reads the season's title list.
func (s *Store) Titles(season Season, ignored bool) ([]string, error) {
	return readFile(s.Path(season, ignored, false))
}

// URLs reads the season's resolved url list.
func (s *Store) URLs(season Season, ignored bool) ([]string, error) {
	return readFile(s.Path(season, ignored, true))
}

// WriteURLs creates the season's url list. It fails when the file already exists.
func (s *Store) WriteURLs(season Season, ignored bool, urls []string) (string, error) {
	path := s.Path(season, ignored, true)
	// #nosec G304 -- path is built from the configured titles directory.
	fd, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create url list: %w", err)
	}
	w := bufio.NewWriter(fd)
	for _, u := range urls {
		if _, err := w.WriteString(u + "\n"); err != nil {
			_ = fd.Close()
			return "", fmt.Errorf("write url list: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = fd.Close()
		return "", fmt.Errorf("flush url list: %w", err)
	}
	if err := fd.Close(); err != nil {
		return "", fmt.Errorf("close url list: %w", err)
	}
	return path, nil
}

// ReadLines returns the trimmed non-blank lines of r.
func ReadLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan lines: %w", err)
	}
	return lines, nil
}

func readFile(path string) ([]string, error) {
	// #nosec G304 -- path is built from the configured titles directory.
	fd, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open list %s: %w", path, err)
	}
	defer func() { _ = fd.Close() }()
	lines, err := ReadLines(fd)
	if err != nil {
		return nil, fmt.Errorf("read list %s: %w", path, err)
	}
	return lines, nil
}

// IsExist reports whether err was caused by an existing output file.
func IsExist(err error) bool {
	return errors.Is(err, os.ErrExist)
}
