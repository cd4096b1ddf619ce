package runtime

import (
	"sync"

	"github.com/lemonberrylabs/axiom/pkg/expr"
)

// ProgramCache holds parsed programs keyed by resource name. An entry is
// reused only while its revision matches.
type ProgramCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	revision string
	program  *expr.Program
}

// NewProgramCache creates an empty cache.
func NewProgramCache() *ProgramCache {
	return &ProgramCache{entries: make(map[string]cacheEntry)}
}

// Get returns the parsed program for name at revision, parsing source on
// a miss. Parsed programs are never mutated, so callers may share them.
func (c *ProgramCache) Get(name, revision, source string) (*expr.Program, error) {
	c.mu.RLock()
	e, ok := c.entries[name]
	c.mu.RUnlock()
	if ok && e.revision == revision {
		return e.program, nil
	}

	prog, err := expr.ParseProgram(source)
	if err != nil {
		return nil, err
	}
	c.Put(name, revision, prog)
	return prog, nil
}

// Put stores a parsed program.
func (c *ProgramCache) Put(name, revision string, prog *expr.Program) {
	c.mu.Lock()
	c.entries[name] = cacheEntry{revision: revision, program: prog}
	c.mu.Unlock()
}

// Delete drops the entry for name.
func (c *ProgramCache) Delete(name string) {
	c.mu.Lock()
	delete(c.entries, name)
	c.mu.Unlock()
}
