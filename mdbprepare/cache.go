// Package mdbprepare implements the per-session LRU cache of server
// prepared statements, reference-counted with evict-then-close semantics
// (spec 4.5 "Prepare cache").
package mdbprepare

import (
	"container/list"
	"sync"

	"github.com/dbbouncer/mdbclient/mdbcolumn"
)

// Result is a server-prepared statement's identity and metadata (spec 3
// "PrepareResult").
type Result struct {
	StatementID uint32
	ParamCount  int
	Columns     []*mdbcolumn.Definition

	refCount int
	evicted  bool
}

// Closer sends COM_STMT_CLOSE for a statement id that has been evicted
// from the cache while still referenced, once its last reference drops
// (spec 4.5: "decrementUse ... send COM_STMT_CLOSE").
type Closer interface {
	CloseStatement(statementID uint32)
}

// Cache is an LRU of prepared statements keyed by SQL text, bounded to a
// fixed capacity.
type Cache struct {
	mu       sync.Mutex
	capacity int
	closer   Closer

	ll    *list.List // list of *entry, front = most recently used
	index map[string]*list.Element
}

type entry struct {
	sql    string
	result *Result
}

// New returns a Cache bounded to capacity entries. capacity <= 0 disables
// caching (Get always misses, Put never retains an entry).
func New(capacity int, closer Closer) *Cache {
	return &Cache{
		capacity: capacity,
		closer:   closer,
		ll:       list.New(),
		index:    make(map[string]*list.Element),
	}
}

// Get returns the cached Result for sql and increments its reference
// count, or (nil, false) on a cache miss (spec 4.5: "get(sql, stmt)").
func (c *Cache) Get(sql string) (*Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[sql]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(el)
	e := el.Value.(*entry)
	e.result.refCount++
	return e.result, true
}

// Put inserts result under sql, or — if a concurrent caller already won
// the race to prepare the same SQL — returns the winner's Result instead
// and the caller must discard its own already-prepared statement (spec
// 4.5: "if the same SQL races to prepare, the losing caller gets the
// winner's PrepareResult and must discard its own").
func (c *Cache) Put(sql string, result *Result) *Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[sql]; ok {
		c.ll.MoveToFront(el)
		e := el.Value.(*entry)
		e.result.refCount++
		return e.result
	}

	result.refCount = 1
	if c.capacity <= 0 {
		return result
	}

	el := c.ll.PushFront(&entry{sql: sql, result: result})
	c.index[sql] = el

	for c.ll.Len() > c.capacity {
		c.evictOldest()
	}
	return result
}

func (c *Cache) evictOldest() {
	el := c.ll.Back()
	if el == nil {
		return
	}
	c.ll.Remove(el)
	e := el.Value.(*entry)
	delete(c.index, e.sql)
	e.result.evicted = true
	if e.result.refCount == 0 && c.closer != nil {
		c.closer.CloseStatement(e.result.StatementID)
	}
}

// DecrementUse releases one reference on result. If the count reaches
// zero and the entry has already been evicted, COM_STMT_CLOSE is
// dispatched via the Closer (spec 4.5).
func (c *Cache) DecrementUse(result *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if result.refCount > 0 {
		result.refCount--
	}
	if result.refCount == 0 && result.evicted && c.closer != nil {
		c.closer.CloseStatement(result.StatementID)
	}
}

// Len returns the number of entries currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// TotalRefCount sums the reference counts of all live (cached or evicted
// but still referenced) entries — used by the testable-property check in
// spec 8 ("sum(ref_counts) = number of live prepared-statement handles").
func (c *Cache) TotalRefCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, el := range c.index {
		total += el.Value.(*entry).result.refCount
	}
	return total
}

// Clear evicts every entry, dispatching CloseStatement for each evicted
// entry with remaining references (used on RESET_CONNECTION / session
// reset, spec 6 "useResetConnection").
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.ll.Len() > 0 {
		c.evictOldest()
	}
}
