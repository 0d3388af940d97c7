// debug_watchpoint_test.go - Watchpoint pool tests

package main

import (
	"bytes"
	"strings"
	"testing"
)

// fakeEval drives the pool with a controllable value source.
type fakeEval struct {
	values map[string]uint32
}

func (f *fakeEval) eval(expr string) (uint32, error) {
	return f.values[expr], nil
}

func TestWatchPoolAddDelete(t *testing.T) {
	f := &fakeEval{values: map[string]uint32{"$a0": 1}}
	wp := NewWatchPool(f.eval)

	if wp.FreeCount() != NR_WP || wp.ActiveCount() != 0 {
		t.Fatalf("fresh pool: free=%d active=%d", wp.FreeCount(), wp.ActiveCount())
	}

	id, err := wp.Add("$a0")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if wp.FreeCount()+wp.ActiveCount() != NR_WP {
		t.Fatalf("pool leaked: free=%d active=%d", wp.FreeCount(), wp.ActiveCount())
	}
	if val, ok := wp.LastValue(id); !ok || val != 1 {
		t.Fatalf("seeded value = %d (%v), expected 1", val, ok)
	}

	if err := wp.Delete(id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if wp.FreeCount() != NR_WP || wp.ActiveCount() != 0 {
		t.Fatalf("after delete: free=%d active=%d", wp.FreeCount(), wp.ActiveCount())
	}

	if err := wp.Delete(id); err == nil {
		t.Fatal("second delete of same id succeeded")
	}
}

func TestWatchPoolIdStability(t *testing.T) {
	f := &fakeEval{values: map[string]uint32{}}
	wp := NewWatchPool(f.eval)

	first, _ := wp.Add("a")
	second, _ := wp.Add("b")
	if first == second {
		t.Fatalf("duplicate watchpoint ids: %d", first)
	}
	if err := wp.Delete(first); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	// The freed record keeps its id and is handed out again.
	third, _ := wp.Add("c")
	if third != first {
		t.Fatalf("recycled id = %d, expected %d", third, first)
	}
}

func TestWatchPoolExhaustion(t *testing.T) {
	f := &fakeEval{values: map[string]uint32{}}
	wp := NewWatchPool(f.eval)

	for i := 0; i < NR_WP; i++ {
		if _, err := wp.Add("e"); err != nil {
			t.Fatalf("Add %d: %v", i, err)
		}
	}
	if _, err := wp.Add("overflow"); err == nil {
		t.Fatal("33rd Add succeeded, expected pool exhaustion")
	}
}

func TestWatchPoolScan(t *testing.T) {
	f := &fakeEval{values: map[string]uint32{"$a0": 5}}
	wp := NewWatchPool(f.eval)
	id, _ := wp.Add("$a0")

	var out bytes.Buffer
	changed, err := wp.Scan(&out)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if changed {
		t.Fatal("Scan reported a change with a stable value")
	}

	f.values["$a0"] = 42
	changed, err = wp.Scan(&out)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !changed {
		t.Fatal("Scan missed a value change")
	}
	if !strings.Contains(out.String(), "old = 5") || !strings.Contains(out.String(), "new = 42") {
		t.Fatalf("change report missing old/new pair: %q", out.String())
	}
	if val, _ := wp.LastValue(id); val != 42 {
		t.Fatalf("lastValue = %d, expected 42 after scan", val)
	}

	// The refreshed value does not re-trigger.
	if changed, _ = wp.Scan(&out); changed {
		t.Fatal("Scan re-reported an already-seen value")
	}
}

func TestWatchPoolDisplay(t *testing.T) {
	f := &fakeEval{values: map[string]uint32{"$sp": 9}}
	wp := NewWatchPool(f.eval)
	id, _ := wp.Add("$sp")

	var out bytes.Buffer
	wp.Display(&out)
	want := "watchpoint"
	if !strings.Contains(out.String(), want) || !strings.Contains(out.String(), "$sp") {
		t.Fatalf("display output %q missing id %d / expression", out.String(), id)
	}
}
