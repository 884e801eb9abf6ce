package tokenizer

import (
	"container/list"
	"sync"
)

// wordCache is an LRU of BPE results keyed by word. Cached slices are shared and
// must not be modified by callers.
type wordCache struct {
	capacity int
	items    map[string]*list.Element
	lru      *list.List
	mu       sync.Mutex
}

type wordEntry struct {
	word   string
	tokens []string
}

func newWordCache(capacity int) *wordCache {
	return &wordCache{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		lru:      list.New(),
	}
}

func (c *wordCache) get(word string) ([]string, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[word]; ok {
		c.lru.MoveToFront(elem)
		return elem.Value.(*wordEntry).tokens, true
	}
	return nil, false
}

func (c *wordCache) set(word string, tokens []string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[word]; ok {
		c.lru.MoveToFront(elem)
		elem.Value.(*wordEntry).tokens = tokens
		return
	}
	c.items[word] = c.lru.PushFront(&wordEntry{word: word, tokens: tokens})
	if c.lru.Len() > c.capacity {
		if oldest := c.lru.Back(); oldest != nil {
			c.lru.Remove(oldest)
			delete(c.items, oldest.Value.(*wordEntry).word)
		}
	}
}

func (c *wordCache) len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
