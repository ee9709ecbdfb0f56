package vm

import "fmt"

// ---------------------------------------------------------------------------
// Frame: execution state for one method activation
// ---------------------------------------------------------------------------

// Frame holds the locals, bounded operand stack, and program counter for a
// single in-flight method activation. A frame is created when its method is
// invoked and discarded when the method returns or fails.
type Frame struct {
	// ClassName is the owning class, used for dynamic linking lookups.
	ClassName string

	Code     []byte
	locals   []Value
	stack    []Value
	maxStack int

	// PC is the offset of the instruction currently being executed.
	PC int
}

// NewFrame creates a frame with maxLocals zeroed local slots and an operand
// stack bounded at maxStack entries.
func NewFrame(className string, code []byte, maxLocals, maxStack int) *Frame {
	return &Frame{
		ClassName: className,
		Code:      code,
		locals:    make([]Value, maxLocals),
		stack:     make([]Value, 0, maxStack),
		maxStack:  maxStack,
	}
}

// Push pushes a value onto the operand stack.
func (f *Frame) Push(v Value) error {
	if len(f.stack) >= f.maxStack {
		return fmt.Errorf("%w: depth %d", ErrStackOverflow, f.maxStack)
	}
	f.stack = append(f.stack, v)
	return nil
}

// Pop removes and returns the top of the operand stack.
func (f *Frame) Pop() (Value, error) {
	if len(f.stack) == 0 {
		return Value{}, ErrStackUnderflow
	}
	v := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return v, nil
}

// Peek returns the top of the operand stack without popping it.
func (f *Frame) Peek() (Value, error) {
	if len(f.stack) == 0 {
		return Value{}, ErrStackUnderflow
	}
	return f.stack[len(f.stack)-1], nil
}

// popKind pops the top of the stack and asserts its kind.
func (f *Frame) popKind(k Kind) (Value, error) {
	v, err := f.Pop()
	if err != nil {
		return Value{}, err
	}
	if v.Kind != k {
		return Value{}, fmt.Errorf("%w: want %s, have %s", ErrTypeMismatch, k, v.Kind)
	}
	return v, nil
}

// PopInt pops an int-kinded value.
func (f *Frame) PopInt() (int32, error) {
	v, err := f.popKind(KindInt)
	return v.I, err
}

// PopLong pops a long-kinded value.
func (f *Frame) PopLong() (int64, error) {
	v, err := f.popKind(KindLong)
	return v.J, err
}

// PopRef pops a reference-kinded value (possibly null).
func (f *Frame) PopRef() (Ref, error) {
	v, err := f.popKind(KindRef)
	return v.R, err
}

// Local returns the value in local slot index.
func (f *Frame) Local(index int) (Value, error) {
	if index < 0 || index >= len(f.locals) {
		return Value{}, fmt.Errorf("%w: %d of %d", ErrIndexOutOfBounds, index, len(f.locals))
	}
	return f.locals[index], nil
}

// SetLocal stores a value into local slot index.
func (f *Frame) SetLocal(index int, v Value) error {
	if index < 0 || index >= len(f.locals) {
		return fmt.Errorf("%w: %d of %d", ErrIndexOutOfBounds, index, len(f.locals))
	}
	f.locals[index] = v
	return nil
}

// StackDepth returns the current operand stack depth.
func (f *Frame) StackDepth() int {
	return len(f.stack)
}

// scanRoots calls visit for every reference held in a local slot or on the
// operand stack. Used by the collector to build the root set.
func (f *Frame) scanRoots(visit func(Ref)) {
	for _, v := range f.locals {
		if v.Kind == KindRef && v.R != NullRef {
			visit(v.R)
		}
	}
	for _, v := range f.stack {
		if v.Kind == KindRef && v.R != NullRef {
			visit(v.R)
		}
	}
}
