// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import "sync"

// Queue is the unbounded FIFO of raw records between the reader goroutine
// and the drain. It is safe for concurrent use.
type Queue struct {
	mu      sync.Mutex
	records []string
}

// NewQueue creates an empty queue
func NewQueue() *Queue {
	return &Queue{}
}

// Push appends a record
func (q *Queue) Push(record string) {
	q.mu.Lock()
	q.records = append(q.records, record)
	q.mu.Unlock()
}

// DrainAll removes and returns every queued record in arrival order
func (q *Queue) DrainAll() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.records) == 0 {
		return nil
	}
	records := q.records
	q.records = nil
	return records
}

// Len returns the number of queued records
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.records)
}
