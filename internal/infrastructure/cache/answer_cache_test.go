package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kirillkom/scripture-rag/internal/core/domain"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }

func newTestCache(ttl time.Duration, maxItems int) (*AnswerCache, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)}
	c := NewAnswerCache(ttl, maxItems)
	c.now = clock.now
	return c, clock
}

func TestKeyNormalizesWhitespaceAndCase(t *testing.T) {
	assert.Equal(t, "quem foi moisés?", Key("  Quem   foi\tMoisés? "))
}

func TestGetHitsNormalizedMessage(t *testing.T) {
	c, _ := newTestCache(time.Minute, 10)
	c.Put("O que é fé?", domain.Answer{Text: "A fé é..."})

	got, ok := c.Get("o que  é FÉ?")
	assert.True(t, ok)
	assert.Equal(t, "A fé é...", got.Text)
}

func TestEntriesExpire(t *testing.T) {
	c, clock := newTestCache(time.Minute, 10)
	c.Put("graça", domain.Answer{Text: "x"})

	clock.t = clock.t.Add(2 * time.Minute)
	_, ok := c.Get("graça")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestEvictsOldestWhenFull(t *testing.T) {
	c, clock := newTestCache(time.Hour, 2)
	c.Put("a", domain.Answer{Text: "a"})
	clock.t = clock.t.Add(time.Second)
	c.Put("b", domain.Answer{Text: "b"})
	clock.t = clock.t.Add(time.Second)
	c.Put("c", domain.Answer{Text: "c"})

	_, ok := c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestEvictsExpiredBeforeOldest(t *testing.T) {
	c, clock := newTestCache(time.Minute, 2)
	c.Put("old", domain.Answer{Text: "old"})
	clock.t = clock.t.Add(50 * time.Second)
	c.Put("fresh", domain.Answer{Text: "fresh"})
	clock.t = clock.t.Add(20 * time.Second)
	c.Put("new", domain.Answer{Text: "new"})

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("fresh")
	assert.True(t, ok)
}

func TestDisabledCache(t *testing.T) {
	c := NewAnswerCache(0, 10)
	c.Put("a", domain.Answer{Text: "a"})
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestEntryExpiresExactlyAtTTL(t *testing.T) {
	c, clock := newTestCache(time.Minute, 10)
	c.Put("graça", domain.Answer{Text: "x"})

	clock.t = clock.t.Add(time.Minute)
	_, ok := c.Get("graça")
	assert.False(t, ok)
}
