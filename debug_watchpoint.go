// debug_watchpoint.go - Fixed-pool watchpoint engine

/*
(c) 2025 - 2026 Zayn Otley
https://github.com/intuitionamiga/RV32Engine
License: GPLv3 or later
*/

package main

import (
	"fmt"
	"io"
)

// NR_WP is the watchpoint pool size. The pool never grows; exhausting it
// is a fatal structural error.
const NR_WP = 32

// wpNil terminates the intrusive index-linked lists.
const wpNil = -1

type watchpoint struct {
	id        int
	next      int // index link for the free/active lists
	expr      string
	lastValue uint32
}

// WatchPool is a fixed pool of NR_WP watchpoints threaded onto two
// intrusive lists: free and active. Every record is on exactly one list
// at all times, and its id (the pool index) is stable for its lifetime.
type WatchPool struct {
	pool       [NR_WP]watchpoint
	freeHead   int
	activeHead int
	eval       func(string) (uint32, error)
}

// NewWatchPool builds a pool with all records on the free list in index
// order. eval is the shared expression evaluator.
func NewWatchPool(eval func(string) (uint32, error)) *WatchPool {
	wp := &WatchPool{
		freeHead:   0,
		activeHead: wpNil,
		eval:       eval,
	}
	for i := range wp.pool {
		wp.pool[i].id = i
		if i == NR_WP-1 {
			wp.pool[i].next = wpNil
		} else {
			wp.pool[i].next = i + 1
		}
	}
	return wp
}

// Add pops a record from the free list, seeds its value by evaluating
// expr once, and pushes it onto the active list. An exhausted pool is an
// error the caller must treat as fatal.
func (wp *WatchPool) Add(expr string) (int, error) {
	if wp.freeHead == wpNil {
		return 0, fmt.Errorf("watchpoint pool exhausted (%d in use)", NR_WP)
	}
	val, err := wp.eval(expr)
	if err != nil {
		return 0, fmt.Errorf("watchpoint expression %q: %w", expr, err)
	}
	idx := wp.freeHead
	wp.freeHead = wp.pool[idx].next

	w := &wp.pool[idx]
	w.expr = expr
	w.lastValue = val
	w.next = wp.activeHead
	wp.activeHead = idx
	return idx, nil
}

// Delete unlinks the active record with the given id and returns it to
// the free list. The id survives the round trip.
func (wp *WatchPool) Delete(id int) error {
	prev := wpNil
	for cur := wp.activeHead; cur != wpNil; cur = wp.pool[cur].next {
		if wp.pool[cur].id != id {
			prev = cur
			continue
		}
		if prev == wpNil {
			wp.activeHead = wp.pool[cur].next
		} else {
			wp.pool[prev].next = wp.pool[cur].next
		}
		wp.pool[cur].next = wp.freeHead
		wp.freeHead = cur
		return nil
	}
	return fmt.Errorf("no watchpoint with id %d", id)
}

// Display prints the active watchpoints, newest first.
func (wp *WatchPool) Display(w io.Writer) {
	for cur := wp.activeHead; cur != wpNil; cur = wp.pool[cur].next {
		rec := &wp.pool[cur]
		fmt.Fprintf(w, "watchpoint %d: %s = %d\n", rec.id, rec.expr, rec.lastValue)
	}
}

// Scan re-evaluates every active watchpoint. A value change is reported
// with its old/new pair; lastValue is refreshed whether or not it
// changed. Returns true when any watchpoint changed.
func (wp *WatchPool) Scan(w io.Writer) (bool, error) {
	changed := false
	for cur := wp.activeHead; cur != wpNil; cur = wp.pool[cur].next {
		rec := &wp.pool[cur]
		val, err := wp.eval(rec.expr)
		if err != nil {
			return false, fmt.Errorf("watchpoint %d (%s): %w", rec.id, rec.expr, err)
		}
		if val != rec.lastValue {
			fmt.Fprintf(w, "watchpoint %d: %s\n  old = %d\n  new = %d\n", rec.id, rec.expr, rec.lastValue, val)
			changed = true
		}
		rec.lastValue = val
	}
	return changed, nil
}

// ActiveCount reports the number of records on the active list.
func (wp *WatchPool) ActiveCount() int {
	n := 0
	for cur := wp.activeHead; cur != wpNil; cur = wp.pool[cur].next {
		n++
	}
	return n
}

// FreeCount reports the number of records on the free list.
func (wp *WatchPool) FreeCount() int {
	n := 0
	for cur := wp.freeHead; cur != wpNil; cur = wp.pool[cur].next {
		n++
	}
	return n
}

// LastValue returns the cached value of the active watchpoint with the
// given id.
func (wp *WatchPool) LastValue(id int) (uint32, bool) {
	for cur := wp.activeHead; cur != wpNil; cur = wp.pool[cur].next {
		if wp.pool[cur].id == id {
			return wp.pool[cur].lastValue, true
		}
	}
	return 0, false
}
