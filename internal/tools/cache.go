package tools

import (
	"container/list"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"
)

// resultCache is a TTL + LRU cache over tool results, keyed by tool name and
// the canonicalized argument map. Safe for concurrent use.
type resultCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxSize int
	order   *list.List // front = most recently used
	entries map[string]*list.Element
	now     func() time.Time
}

type cacheEntry struct {
	key    string
	result string
	at     time.Time
}

func newResultCache(ttl time.Duration, maxSize int) *resultCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if maxSize <= 0 {
		maxSize = 100
	}
	return &resultCache{
		ttl:     ttl,
		maxSize: maxSize,
		order:   list.New(),
		entries: make(map[string]*list.Element),
		now:     time.Now,
	}
}

// cacheKey builds a deterministic key: argument maps with equal content
// produce equal keys regardless of insertion order.
func cacheKey(name, version string, args map[string]any) string {
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('@')
	b.WriteString(version)
	b.WriteByte('?')

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v, err := json.Marshal(args[k])
		if err != nil {
			// Unmarshalable values make the key unique, disabling caching
			// for this call rather than corrupting it.
			v = []byte(time.Now().String())
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.Write(v)
		b.WriteByte('&')
	}
	return b.String()
}

func (c *resultCache) get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return "", false
	}
	entry := el.Value.(*cacheEntry)
	if c.now().Sub(entry.at) > c.ttl {
		c.order.Remove(el)
		delete(c.entries, key)
		return "", false
	}
	c.order.MoveToFront(el)
	return entry.result, true
}

func (c *resultCache) put(key, result string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*cacheEntry)
		entry.result = result
		entry.at = c.now()
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(&cacheEntry{key: key, result: result, at: c.now()})
	c.entries[key] = el

	for c.order.Len() > c.maxSize {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}
