package vm

import (
	"io"
	"testing"
)

func gcVM() *VM {
	return NewWithConfig(Config{Stdout: io.Discard})
}

func TestCollectFreesUnreachable(t *testing.T) {
	vm := gcVM()

	reachable := vm.heap.Allocate("A", nil)
	garbage := vm.heap.Allocate("B", nil)

	f := NewFrame("Test", nil, 1, 1)
	f.SetLocal(0, RefValue(reachable))
	vm.thread.Push(f)
	defer vm.thread.Reset()

	freed := vm.Collect()
	if freed != 1 {
		t.Errorf("freed %d objects, want 1", freed)
	}
	if !vm.heap.Contains(reachable) {
		t.Error("rooted object was collected")
	}
	if vm.heap.Contains(garbage) {
		t.Error("unreachable object survived")
	}
}

func TestCollectFollowsFieldChains(t *testing.T) {
	vm := gcVM()

	leaf := vm.heap.Allocate("Node", map[string]Value{"next": NullValue()})
	mid := vm.heap.Allocate("Node", map[string]Value{"next": RefValue(leaf)})
	root := vm.heap.Allocate("Node", map[string]Value{"next": RefValue(mid)})

	f := NewFrame("Test", nil, 0, 1)
	f.Push(RefValue(root))
	vm.thread.Push(f)
	defer vm.thread.Reset()

	if freed := vm.Collect(); freed != 0 {
		t.Errorf("freed %d objects from a fully reachable chain, want 0", freed)
	}
	for _, addr := range []Ref{root, mid, leaf} {
		if !vm.heap.Contains(addr) {
			t.Errorf("object %d in reachable chain was collected", addr)
		}
	}
}

func TestCollectHandlesCycles(t *testing.T) {
	vm := gcVM()

	a := vm.heap.Allocate("Node", map[string]Value{"next": NullValue()})
	b := vm.heap.Allocate("Node", map[string]Value{"next": RefValue(a)})
	vm.heap.SetField(a, "next", RefValue(b))

	// Rooted cycle: marking must terminate and keep both.
	f := NewFrame("Test", nil, 1, 0)
	f.SetLocal(0, RefValue(a))
	vm.thread.Push(f)

	if freed := vm.Collect(); freed != 0 {
		t.Errorf("freed %d objects from a rooted cycle, want 0", freed)
	}

	// Unrooted cycle: self-references keep nothing alive.
	vm.thread.Reset()
	if freed := vm.Collect(); freed != 2 {
		t.Errorf("freed %d objects from an unrooted cycle, want 2", freed)
	}
}

func TestCollectStaticRoots(t *testing.T) {
	vm := gcVM()

	held := vm.heap.Allocate("A", nil)
	loose := vm.heap.Allocate("B", nil)

	holder := testClass("Holder", "java/lang/Object", nil)
	addField(holder, "instance", "LA;", 0x0008)
	vm.metaspace.Register(holder)
	holder.Statics["instance"] = RefValue(held)

	if freed := vm.Collect(); freed != 1 {
		t.Errorf("freed %d objects, want 1", freed)
	}
	if !vm.heap.Contains(held) {
		t.Error("object held by a static field was collected")
	}
	if vm.heap.Contains(loose) {
		t.Error("unreachable object survived")
	}
}

func TestCollectToleratesConsoleRef(t *testing.T) {
	vm := gcVM()
	obj := vm.heap.Allocate("A", nil)

	// System.out resolves to an address outside the heap; a frame holding
	// it must not break collection.
	f := NewFrame("Test", nil, 2, 0)
	f.SetLocal(0, RefValue(ConsoleRef))
	f.SetLocal(1, RefValue(obj))
	vm.thread.Push(f)
	defer vm.thread.Reset()

	if freed := vm.Collect(); freed != 0 {
		t.Errorf("freed %d objects, want 0", freed)
	}
	if !vm.heap.Contains(obj) {
		t.Error("rooted object was collected")
	}
}

func TestCollectEmptyRoots(t *testing.T) {
	vm := gcVM()
	vm.heap.Allocate("A", nil)
	vm.heap.Allocate("B", nil)

	if freed := vm.Collect(); freed != 2 {
		t.Errorf("freed %d objects with no roots, want 2", freed)
	}
	if vm.heap.Count() != 0 {
		t.Errorf("heap count after full collection = %d, want 0", vm.heap.Count())
	}
}
