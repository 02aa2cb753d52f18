// Package inventory provides the read-only medication list the scheduling
// core needs when validating prescribed medicines at outcome recording.
// Replenishment and stock bookkeeping live elsewhere.
package inventory

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

type Item struct {
	Name  string
	Stock int
}

// Store holds the medication list loaded from inventory.csv.
type Store struct {
	items map[string]Item
}

var inventoryHeader = []string{"medicationName", "stock"}

func Load(dataDir string) (*Store, error) {
	path := filepath.Join(dataDir, "inventory.csv")

	s := &Store{items: make(map[string]Item)}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(inventoryHeader)

	if _, err := r.Read(); err != nil {
		if err == io.EOF {
			return s, nil
		}
		return nil, fmt.Errorf("read %s header: %w", path, err)
	}

	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		stock, err := strconv.Atoi(rec[1])
		if err != nil {
			return nil, fmt.Errorf("%s: bad stock %q for %s: %w", path, rec[1], rec[0], err)
		}
		s.items[rec[0]] = Item{Name: rec[0], Stock: stock}
	}

	return s, nil
}

// Has reports whether the medication exists in the inventory list.
func (s *Store) Has(name string) bool {
	_, ok := s.items[name]
	return ok
}

// List returns every inventory item.
func (s *Store) List() []Item {
	out := make([]Item, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, it)
	}
	return out
}
