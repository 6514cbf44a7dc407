package snapshot

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/user/cian-crawler/internal/domain"
)

// Store is the filesystem hand-off between the fetch and load stages:
// one <city>_<code> directory per region, one page_<i>.html per fetched
// page. Snapshots are written once and never mutated; they are retained
// after loading as an audit artifact.
type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: root}
}

func (s *Store) dir(r domain.Region) string {
	return filepath.Join(s.root, fmt.Sprintf("%s_%d", r.City, r.Code))
}

// Path returns the snapshot file path for a (region, page) pair. Used
// both for I/O and as the processed-marker key.
func (s *Store) Path(r domain.Region, page int) string {
	return filepath.Join(s.dir(r), fmt.Sprintf("page_%d.html", page))
}

// Write persists one page's markup, creating the region directory on
// demand.
func (s *Store) Write(r domain.Region, page int, markup string) error {
	if err := os.MkdirAll(s.dir(r), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir for %s_%d: %w", r.City, r.Code, err)
	}
	if err := os.WriteFile(s.Path(r, page), []byte(markup), 0o644); err != nil {
		return fmt.Errorf("write snapshot page %d for %s_%d: %w", page, r.City, r.Code, err)
	}
	return nil
}

// Read returns the markup of one saved page.
func (s *Store) Read(r domain.Region, page int) (string, error) {
	b, err := os.ReadFile(s.Path(r, page))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Pages lists the saved page indices for a region. The fetcher writes
// contiguous indices starting at 1, so the list is derived from the file
// count. A missing region directory means nothing was fetched — not an
// error.
func (s *Store) Pages(r domain.Region) ([]int, error) {
	entries, err := os.ReadDir(s.dir(r))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	n := 0
	for _, e := range entries {
		var page int
		if _, err := fmt.Sscanf(e.Name(), "page_%d.html", &page); err == nil {
			n++
		}
	}
	pages := make([]int, 0, n)
	for i := 1; i <= n; i++ {
		pages = append(pages, i)
	}
	return pages, nil
}
