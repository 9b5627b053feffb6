package data

import (
	"time"
)

// Occurrence is a single timestamped appearance of a key in an OccurrenceQueue.
type Occurrence struct {
	Time time.Time
	Key  string
}

// OccurrenceQueue is a FIFO queue of key occurrences backed by a growable ring buffer. Since
// occurrences are only ever appended with the current time, timestamps are non-decreasing from
// front to back.
//
// The queue performs no locking; its owner is responsible for serializing access.
type OccurrenceQueue struct {
	buf  []Occurrence
	head int
	size int
}

// NewOccurrenceQueue creates a queue with room for capacity occurrences before it has to grow.
func NewOccurrenceQueue(capacity int) *OccurrenceQueue {
	if capacity <= 0 {
		capacity = 16
	}

	return &OccurrenceQueue{buf: make([]Occurrence, capacity)}
}

// PushBack appends an occurrence to the back of the queue.
func (q *OccurrenceQueue) PushBack(o Occurrence) {
	if q.size == len(q.buf) {
		q.grow()
	}

	q.buf[(q.head+q.size)%len(q.buf)] = o
	q.size++
}

// PopFront removes and returns the oldest occurrence. It returns false if the queue is empty.
func (q *OccurrenceQueue) PopFront() (Occurrence, bool) {
	if q.size == 0 {
		return Occurrence{}, false
	}

	o := q.buf[q.head]
	q.buf[q.head] = Occurrence{}
	q.head = (q.head + 1) % len(q.buf)
	q.size--

	return o, true
}

// Front returns the oldest occurrence without removing it.
func (q *OccurrenceQueue) Front() (Occurrence, bool) {
	if q.size == 0 {
		return Occurrence{}, false
	}

	return q.buf[q.head], true
}

// Len reads the current number of queued occurrences.
func (q *OccurrenceQueue) Len() int {
	return q.size
}

// grow doubles the backing buffer, unrolling the ring so the front sits at index zero.
func (q *OccurrenceQueue) grow() {
	buf := make([]Occurrence, len(q.buf)*2)

	for i := 0; i < q.size; i++ {
		buf[i] = q.buf[(q.head+i)%len(q.buf)]
	}

	q.buf = buf
	q.head = 0
}
