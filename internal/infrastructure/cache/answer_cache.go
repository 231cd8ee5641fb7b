// Package cache holds short-lived answers for repeated questions.
package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/scripture-rag/internal/core/domain"
)

type entry struct {
	answer  domain.Answer
	created time.Time
}

// AnswerCache is a TTL cache keyed by the normalized question. When full it
// first drops a bounded number of expired entries, then the oldest ones.
type AnswerCache struct {
	mu       sync.Mutex
	entries  map[string]entry
	ttl      time.Duration
	maxItems int
	now      func() time.Time
}

func NewAnswerCache(ttl time.Duration, maxItems int) *AnswerCache {
	if maxItems <= 0 {
		maxItems = 200
	}
	return &AnswerCache{
		entries:  make(map[string]entry, maxItems),
		ttl:      ttl,
		maxItems: maxItems,
		now:      time.Now,
	}
}

// Key collapses whitespace and lowercases the message.
func Key(message string) string {
	return strings.ToLower(strings.Join(strings.Fields(message), " "))
}

func (c *AnswerCache) Get(message string) (domain.Answer, bool) {
	if c == nil || c.ttl <= 0 {
		return domain.Answer{}, false
	}
	key := Key(message)

	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return domain.Answer{}, false
	}
	if c.now().Sub(e.created) >= c.ttl {
		delete(c.entries, key)
		return domain.Answer{}, false
	}
	return e.answer, true
}

func (c *AnswerCache) Put(message string, answer domain.Answer) {
	if c == nil || c.ttl <= 0 {
		return
	}
	key := Key(message)
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxItems {
		c.evictLocked(now)
	}
	c.entries[key] = entry{answer: answer, created: now}
}

func (c *AnswerCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *AnswerCache) evictLocked(now time.Time) {
	budget := max(c.maxItems/10, 1)
	for key, e := range c.entries {
		if budget == 0 {
			break
		}
		if now.Sub(e.created) >= c.ttl {
			delete(c.entries, key)
			budget--
		}
	}

	for len(c.entries) >= c.maxItems {
		var oldestKey string
		var oldest time.Time
		for key, e := range c.entries {
			if oldestKey == "" || e.created.Before(oldest) {
				oldestKey, oldest = key, e.created
			}
		}
		delete(c.entries, oldestKey)
	}
}
