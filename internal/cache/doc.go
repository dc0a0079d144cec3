// Package cache provides a generic LRU cache with hit, miss and eviction
// statistics.
//
// The shader compiler keeps compiled modules in it, and the render graph
// keeps its pool of transient resources in it, destroying evicted entries
// through the eviction callback.
//
//	c := cache.New[string, int](100)
//	c.Set("key", 42)
//	value, ok := c.Get("key")
//
// A Cache is safe for concurrent use and must not be copied.
package cache
