// Package taint serializes mutation requests on physics actors into the
// physics step. Any goroutine may Enqueue; only the step goroutine Drains.
package taint

import (
	"errors"
	"fmt"
	"log"
	"sync"
)

var (
	ErrNonFinite = errors.New("taint: non-finite payload")
	ErrFrozen    = errors.New("taint: target is frozen")
	ErrNoTarget  = errors.New("taint: nil target")
)

// Target is an actor that accepts changes.
type Target interface {
	LocalID() uint32
	// IsFrozen must be safe to call from any goroutine.
	IsFrozen() bool
	// ApplyChange runs on the step goroutine only.
	ApplyChange(kind Kind, payload Payload) error
}

// Record is one queued change.
type Record struct {
	Target  Target
	Kind    Kind
	Payload Payload
}

// Queue is a FIFO of records. Records of a single target are applied in the
// order they were enqueued.
type Queue struct {
	mu      sync.Mutex
	pending []Record
	spare   []Record

	// OnError, when set, receives every record whose application failed. It
	// runs on the step goroutine.
	OnError func(record Record, err error)
}

func NewQueue() *Queue {
	return &Queue{
		pending: make([]Record, 0, 64),
		spare:   make([]Record, 0, 64),
	}
}

// Enqueue validates and appends a change. It never blocks beyond the queue's
// critical section. A nil payload is treated as None.
func (q *Queue) Enqueue(target Target, kind Kind, payload Payload) error {
	if target == nil {
		return ErrNoTarget
	}
	if payload == nil {
		payload = None{}
	}
	if !payload.Finite() {
		log.Printf("Taint: actor %d: dropped %s change: non-finite payload %v", target.LocalID(), kind, payload)
		return fmt.Errorf("actor %d %s: %w", target.LocalID(), kind, ErrNonFinite)
	}
	if !kind.lifecycle() && target.IsFrozen() {
		return fmt.Errorf("actor %d %s: %w", target.LocalID(), kind, ErrFrozen)
	}

	q.mu.Lock()
	q.pending = append(q.pending, Record{Target: target, Kind: kind, Payload: payload})
	q.mu.Unlock()

	return nil
}

// Len returns the number of records waiting for the next Drain.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Drain applies every record queued before the call, in order, and returns
// how many were applied successfully. Records enqueued while draining, for
// instance by ApplyChange itself, wait for the next Drain.
func (q *Queue) Drain() int {
	q.mu.Lock()
	batch := q.pending
	q.pending = q.spare[:0]
	q.mu.Unlock()

	applied := 0
	for i, r := range batch {
		if err := q.apply(r); err != nil {
			if q.OnError != nil {
				q.OnError(r, err)
			}
		} else {
			applied++
		}
		batch[i] = Record{}
	}

	q.mu.Lock()
	q.spare = batch[:0]
	q.mu.Unlock()

	return applied
}

func (q *Queue) apply(r Record) error {
	// the target may have frozen between Enqueue and Drain
	if !r.Kind.lifecycle() && r.Target.IsFrozen() {
		return fmt.Errorf("actor %d %s: %w", r.Target.LocalID(), r.Kind, ErrFrozen)
	}
	if err := r.Target.ApplyChange(r.Kind, r.Payload); err != nil {
		return fmt.Errorf("actor %d %s: %w", r.Target.LocalID(), r.Kind, err)
	}
	return nil
}
