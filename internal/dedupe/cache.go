// ABOUTME: Thread-safe TTL cache for suppressing duplicate wire deliveries.
// ABOUTME: Guards against the same channel text being processed twice.

package dedupe

import (
	"container/list"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/2389/parley/internal/wire"
)

// cacheEntry stores the timestamp and list element for a cached key.
type cacheEntry struct {
	timestamp time.Time
	element   *list.Element
}

// Cache is a thread-safe, TTL-based, size-limited record of recently
// delivered messages. Channels redeliver: an edit notification, a reconnect
// replay, or a cross-posted thread can hand the engine the same fenced block
// twice, and tracking it twice would append a spurious history entry. A
// doubly-linked list maintains insertion order for O(1) eviction.
type Cache struct {
	mu      sync.RWMutex
	seen    map[string]*cacheEntry
	order   *list.List // keys in insertion order, oldest at front
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a dedupe cache with the specified TTL and maximum size. A
// background goroutine periodically removes expired entries.
func New(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		seen:    make(map[string]*cacheEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Key derives the delivery identity of a message: sender, conversation,
// type, and a digest of the payload. Two deliveries of the same wire text
// collide; a follow-up message on the same conversation does not.
func Key(msg *wire.Message) string {
	h := fnv.New64a()
	h.Write([]byte(msg.Task))
	h.Write([]byte{0})
	h.Write([]byte(msg.Question))
	h.Write([]byte{0})
	h.Write([]byte(msg.Result))
	h.Write([]byte{0})
	h.Write([]byte(msg.Message))
	return fmt.Sprintf("%s|%s|%s|%x", msg.From, msg.RequestID, msg.Type, h.Sum64())
}

// Seen reports whether the message's key was marked and has not expired.
func (c *Cache) Seen(msg *wire.Message) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.seen[Key(msg)]
	if !ok {
		return false
	}
	return time.Since(entry.timestamp) < c.ttl
}

// SeenOrMark atomically checks whether the message was already delivered and
// marks it if not. Returns true for a duplicate delivery, false when the
// message is new and now recorded. The combined operation avoids the
// check-then-mark race between concurrent deliveries.
func (c *Cache) SeenOrMark(msg *wire.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := Key(msg)
	entry, ok := c.seen[key]
	if ok && time.Since(entry.timestamp) < c.ttl {
		return true
	}

	c.markLocked(key)
	return false
}

// markLocked records a key. Must be called with mu held.
func (c *Cache) markLocked(key string) {
	now := time.Now()

	// A re-marked key refreshes its TTL and moves to the back.
	if entry, exists := c.seen[key]; exists {
		entry.timestamp = now
		c.order.MoveToBack(entry.element)
		return
	}

	if len(c.seen) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(key)
	c.seen[key] = &cacheEntry{
		timestamp: now,
		element:   elem,
	}
}

// evictOldest removes the oldest entry. Must be called with mu held.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}

	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.seen, key)
}

// cleanup runs in a background goroutine, periodically removing expired
// entries.
func (c *Cache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runCleanup()
		case <-c.done:
			return
		}
	}
}

// runCleanup removes all expired entries.
func (c *Cache) runCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.seen {
		if now.Sub(entry.timestamp) > c.ttl {
			c.order.Remove(entry.element)
			delete(c.seen, key)
		}
	}
}

// Close stops the background cleanup goroutine. Safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
