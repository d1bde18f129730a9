package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCacheExpiry(t *testing.T) {
	now := time.Date(2025, 7, 10, 9, 0, 0, 0, time.UTC)
	c := NewCache(time.Minute)
	c.now = func() time.Time { return now }

	c.Set("map:2025-07-10:run-1:3", []byte("png"))
	got, ok := c.Get("map:2025-07-10:run-1:3")
	assert.True(t, ok)
	assert.Equal(t, []byte("png"), got)

	_, ok = c.Get("map:2025-07-10:run-2:3")
	assert.False(t, ok)

	now = now.Add(61 * time.Second)
	_, ok = c.Get("map:2025-07-10:run-1:3")
	assert.False(t, ok)

	c.Set("briefing:2025-07-10:run-1", []byte("text"))
	assert.Len(t, c.entries, 1)
}
