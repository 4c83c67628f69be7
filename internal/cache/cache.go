// Package cache provides a small in-process TTL cache.
package cache

// Cache defines a generic cache interface
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	Size() int
}

var _ Cache[bool] = (*LRUCache[bool])(nil)
