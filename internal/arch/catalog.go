package arch

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"sync"
)

//go:embed catalog/*.yaml
var catalogFS embed.FS

// Catalog holds the table-driven architectures shipped with the binary.
type Catalog struct {
	tables []*Table

	// index maps architecture names to catalog entries for fast lookup
	index map[string]*Table
}

var (
	// globalCatalog is the singleton catalog
	globalCatalog *Catalog
	// globalCatalogOnce ensures we only load the catalog once
	globalCatalogOnce sync.Once
	// globalCatalogErr stores any error from loading
	globalCatalogErr error
)

// LoadCatalog parses the embedded architecture specs. It is safe to call
// multiple times; the catalog is loaded only once.
func LoadCatalog() (*Catalog, error) {
	globalCatalogOnce.Do(func() {
		globalCatalog, globalCatalogErr = loadCatalog(catalogFS)
	})
	return globalCatalog, globalCatalogErr
}

func loadCatalog(fsys fs.FS) (*Catalog, error) {
	files, err := fs.Glob(fsys, "catalog/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to list architecture catalog: %w", err)
	}
	sort.Strings(files)

	c := &Catalog{index: make(map[string]*Table)}
	for _, name := range files {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		t, err := ParseSpec(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if _, dup := c.index[t.Name()]; dup {
			return nil, fmt.Errorf("%s: duplicate architecture %q", name, t.Name())
		}
		c.tables = append(c.tables, t)
		c.index[t.Name()] = t
	}
	return c, nil
}

// Get retrieves an architecture by name.
func (c *Catalog) Get(name string) (*Table, bool) {
	t, ok := c.index[name]
	return t, ok
}

// List returns all catalog architectures in file order.
func (c *Catalog) List() []*Table {
	return c.tables
}

// Count returns the number of catalog entries.
func (c *Catalog) Count() int {
	return len(c.tables)
}
