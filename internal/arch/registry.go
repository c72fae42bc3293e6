package arch

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	registryMu sync.RWMutex
	registered = map[string]Architecture{}
)

// Register makes a user-supplied architecture available to Lookup. It
// replaces a previous registration with the same name but cannot shadow a
// built-in architecture.
func Register(a Architecture) error {
	name := strings.ToLower(a.Name())
	if isBuiltin(name) {
		return fmt.Errorf("architecture %q is built in", name)
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	registered[name] = a
	return nil
}

func isBuiltin(name string) bool {
	switch name {
	case RSAS78K0Name, DummyName:
		return true
	}
	if c, err := LoadCatalog(); err == nil {
		_, ok := c.Get(name)
		return ok
	}
	return false
}

// Lookup returns the architecture registered under name. Built-ins are
// returned as fresh values so callers may tune them (e.g. Dummy costs).
func Lookup(name string) (Architecture, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case RSAS78K0Name, "rsas78k0", "78k0r":
		return NewRSAS78K0(), nil
	case DummyName:
		return NewDummy(), nil
	}

	c, err := LoadCatalog()
	if err != nil {
		return nil, err
	}
	if t, ok := c.Get(name); ok {
		return t, nil
	}

	registryMu.RLock()
	a, ok := registered[name]
	registryMu.RUnlock()
	if ok {
		return a, nil
	}
	return nil, fmt.Errorf("unknown architecture %q (available: %s)", name, strings.Join(Names(), ", "))
}

// Names returns every architecture name Lookup accepts, sorted.
func Names() []string {
	names := []string{RSAS78K0Name, DummyName}
	if c, err := LoadCatalog(); err == nil {
		for _, t := range c.List() {
			names = append(names, t.Name())
		}
	}
	registryMu.RLock()
	for name := range registered {
		names = append(names, name)
	}
	registryMu.RUnlock()
	sort.Strings(names)
	return names
}
