package util

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID_SortableWithinSameMillisecond(t *testing.T) {
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	prev := NewID(ts)
	for i := 0; i < 100; i++ {
		next := NewID(ts)
		assert.Less(t, prev, next)
		prev = next
	}

	id, err := ulid.Parse(prev)
	require.NoError(t, err)
	assert.Equal(t, ulid.Timestamp(ts), id.Time())
}
