package vm

import "fmt"

// ---------------------------------------------------------------------------
// Heap: object storage
// ---------------------------------------------------------------------------

// Object is an allocated instance: its runtime class plus field storage.
type Object struct {
	ClassName string
	Fields    map[string]Value
}

// Heap maps VM-assigned addresses to objects. Addresses come from a
// monotonic counter and are never reused within a run, so a dangling
// reference can never silently alias a newer object.
type Heap struct {
	objects  map[Ref]*Object
	nextAddr Ref
}

// NewHeap creates an empty heap.
func NewHeap() *Heap {
	return &Heap{
		objects:  make(map[Ref]*Object),
		nextAddr: 1,
	}
}

// Allocate stores a new object of the given class with the supplied
// zero-initialized fields and returns its address. Objects are only ever
// released by the collector, never by executing code.
func (h *Heap) Allocate(className string, fields map[string]Value) Ref {
	addr := h.nextAddr
	h.nextAddr++
	h.objects[addr] = &Object{ClassName: className, Fields: fields}
	return addr
}

// Get returns the object at addr. A null, collected, or never-allocated
// address fails with ErrNullReference.
func (h *Heap) Get(addr Ref) (*Object, error) {
	obj, ok := h.objects[addr]
	if !ok {
		return nil, fmt.Errorf("%w: ref@%d", ErrNullReference, addr)
	}
	return obj, nil
}

// GetField reads a field from the object at addr.
func (h *Heap) GetField(addr Ref, name string) (Value, error) {
	obj, err := h.Get(addr)
	if err != nil {
		return Value{}, err
	}
	v, ok := obj.Fields[name]
	if !ok {
		return Value{}, fmt.Errorf("%w: %s.%s", ErrNoSuchField, obj.ClassName, name)
	}
	return v, nil
}

// SetField writes a field on the object at addr. The field must exist in
// the object's class field table (fields are materialized at allocation).
func (h *Heap) SetField(addr Ref, name string, v Value) error {
	obj, err := h.Get(addr)
	if err != nil {
		return err
	}
	if _, ok := obj.Fields[name]; !ok {
		return fmt.Errorf("%w: %s.%s", ErrNoSuchField, obj.ClassName, name)
	}
	obj.Fields[name] = v
	return nil
}

// Free removes the object at addr. Called only by the collector.
func (h *Heap) Free(addr Ref) {
	delete(h.objects, addr)
}

// Count returns the number of live objects.
func (h *Heap) Count() int {
	return len(h.objects)
}

// Contains reports whether addr currently holds an object.
func (h *Heap) Contains(addr Ref) bool {
	_, ok := h.objects[addr]
	return ok
}

// addresses returns the address of every live object. Used by the sweep
// phase, which must not mutate while iterating the map.
func (h *Heap) addresses() []Ref {
	addrs := make([]Ref, 0, len(h.objects))
	for addr := range h.objects {
		addrs = append(addrs, addr)
	}
	return addrs
}
