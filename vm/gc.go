package vm

// ---------------------------------------------------------------------------
// Mark-sweep garbage collector
// ---------------------------------------------------------------------------

// collect performs one full mark-sweep pass and returns the number of
// objects freed.
//
// The root set is every reference-kinded slot in every frame on the call
// stack (locals and operand stack alike) plus every reference held in a
// static field. Marking follows reference-typed object fields
// transitively; the marked set doubles as the visited set, so cyclic
// object graphs terminate. Sweep then frees every address never marked.
//
// Collection only runs at allocation boundaries or on explicit request;
// execution is single-threaded, so the pass sees a quiescent heap.
func collect(heap *Heap, thread *Thread, metaspace *Metaspace) int {
	marked := make(map[Ref]struct{})

	thread.scanRoots(func(r Ref) {
		markObject(heap, r, marked)
	})
	for _, r := range metaspace.staticRoots() {
		markObject(heap, r, marked)
	}

	freed := 0
	for _, addr := range heap.addresses() {
		if _, ok := marked[addr]; !ok {
			heap.Free(addr)
			freed++
		}
	}
	return freed
}

// markObject marks addr and everything reachable from its fields.
func markObject(heap *Heap, addr Ref, marked map[Ref]struct{}) {
	if addr == NullRef {
		return
	}
	if _, ok := marked[addr]; ok {
		return
	}

	obj, err := heap.Get(addr)
	if err != nil {
		// A root can point outside the heap (the console pseudo-reference);
		// there is nothing to trace.
		return
	}
	marked[addr] = struct{}{}

	for _, v := range obj.Fields {
		if v.Kind == KindRef && v.R != NullRef {
			markObject(heap, v.R, marked)
		}
	}
}
