package data

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOccurrenceQueueFIFO(t *testing.T) {
	q := NewOccurrenceQueue(2)
	now := time.Unix(100, 0)

	_, ok := q.PopFront()
	assert.False(t, ok)

	for i := 0; i < 5; i++ {
		q.PushBack(Occurrence{Time: now.Add(time.Duration(i) * time.Second), Key: fmt.Sprint(i)})
	}
	require.Equal(t, 5, q.Len())

	front, ok := q.Front()
	require.True(t, ok)
	assert.Equal(t, "0", front.Key)

	for i := 0; i < 5; i++ {
		o, ok := q.PopFront()
		require.True(t, ok)
		assert.Equal(t, fmt.Sprint(i), o.Key)
		assert.Equal(t, now.Add(time.Duration(i)*time.Second), o.Time)
	}

	assert.Equal(t, 0, q.Len())
}

func TestOccurrenceQueueWrapsBeforeGrowing(t *testing.T) {
	q := NewOccurrenceQueue(3)

	q.PushBack(Occurrence{Key: "a"})
	q.PushBack(Occurrence{Key: "b"})
	q.PopFront()
	q.PushBack(Occurrence{Key: "c"})
	q.PushBack(Occurrence{Key: "d"})
	q.PushBack(Occurrence{Key: "e"})

	var keys []string
	for q.Len() > 0 {
		o, _ := q.PopFront()
		keys = append(keys, o.Key)
	}

	assert.Equal(t, []string{"b", "c", "d", "e"}, keys)
}
