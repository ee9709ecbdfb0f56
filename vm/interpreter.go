package vm

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/kaffee-vm/kaffee/classfile"
)

// ---------------------------------------------------------------------------
// Interpreter: the fetch-decode-execute loop
// ---------------------------------------------------------------------------

// Interpreter drives bytecode execution for one VM. Method invocation does
// not recurse into the host stack: invocations push a frame onto the
// thread and the flat loop picks it up, returns pop it and hand the result
// to the caller's operand stack.
type Interpreter struct {
	vm *VM
}

// run executes root to completion and returns the result value, whether
// there is one, and any terminal failure. A failure unwinds the entire
// call stack; no partial result survives it.
func (in *Interpreter) run(root *Frame) (Value, bool, error) {
	t := in.vm.thread
	if err := t.Push(root); err != nil {
		return Value{}, false, err
	}

	for t.Depth() > 0 {
		f := t.Current()
		if f.PC < 0 || f.PC >= len(f.Code) {
			t.Reset()
			return Value{}, false, fmt.Errorf("%w: pc=%d in %s", ErrPCOutOfBounds, f.PC, f.ClassName)
		}
		op := f.Code[f.PC]

		done, result, hasResult, err := in.step(f, op)
		if err != nil {
			pc := f.PC
			t.Reset()
			return Value{}, false, fmt.Errorf("%s at pc=%d in %s: %w", Mnemonic(op), pc, f.ClassName, err)
		}
		if done {
			return result, hasResult, nil
		}
	}

	// The loop only exits through a return instruction.
	return Value{}, false, nil
}

// step executes the instruction at f.PC. It advances the program counter
// itself: implicitly by the instruction's encoded length, or explicitly
// for branches, invocations, and returns. done is true once the root
// frame has returned.
func (in *Interpreter) step(f *Frame, op byte) (done bool, result Value, hasResult bool, err error) {
	switch op {
	case OpNop:
		f.PC++

	// ------------------------------------------------------------------
	// Constants
	// ------------------------------------------------------------------
	case OpIConstM1, OpIConst0, OpIConst1, OpIConst2, OpIConst3, OpIConst4, OpIConst5:
		if err = f.Push(IntValue(int32(op) - int32(OpIConst0))); err != nil {
			return
		}
		f.PC++

	case OpBipush:
		var b byte
		if b, err = operandByte(f); err != nil {
			return
		}
		if err = f.Push(IntValue(int32(int8(b)))); err != nil {
			return
		}
		f.PC += 2

	case OpSipush:
		var u uint16
		if u, err = operandU16(f); err != nil {
			return
		}
		if err = f.Push(IntValue(int32(int16(u)))); err != nil {
			return
		}
		f.PC += 3

	case OpLdc:
		err = in.loadConstant(f)

	case OpLdc2W:
		err = in.loadWideConstant(f)

	// ------------------------------------------------------------------
	// Loads and stores
	// ------------------------------------------------------------------
	case OpILoad, OpALoad:
		var b byte
		if b, err = operandByte(f); err != nil {
			return
		}
		kind := KindInt
		if op == OpALoad {
			kind = KindRef
		}
		if err = loadLocal(f, int(b), kind); err != nil {
			return
		}
		f.PC += 2

	case OpILoad0, OpILoad1, OpILoad2, OpILoad3:
		if err = loadLocal(f, int(op-OpILoad0), KindInt); err != nil {
			return
		}
		f.PC++

	case OpALoad0, OpALoad1, OpALoad2, OpALoad3:
		if err = loadLocal(f, int(op-OpALoad0), KindRef); err != nil {
			return
		}
		f.PC++

	case OpIStore, OpAStore:
		var b byte
		if b, err = operandByte(f); err != nil {
			return
		}
		kind := KindInt
		if op == OpAStore {
			kind = KindRef
		}
		if err = storeLocal(f, int(b), kind); err != nil {
			return
		}
		f.PC += 2

	case OpIStore0, OpIStore1, OpIStore2, OpIStore3:
		if err = storeLocal(f, int(op-OpIStore0), KindInt); err != nil {
			return
		}
		f.PC++

	case OpAStore0, OpAStore1, OpAStore2, OpAStore3:
		if err = storeLocal(f, int(op-OpAStore0), KindRef); err != nil {
			return
		}
		f.PC++

	// ------------------------------------------------------------------
	// Stack
	// ------------------------------------------------------------------
	case OpDup:
		var v Value
		if v, err = f.Peek(); err != nil {
			return
		}
		if err = f.Push(v); err != nil {
			return
		}
		f.PC++

	// ------------------------------------------------------------------
	// Arithmetic: (first-pushed) op (second-pushed)
	// ------------------------------------------------------------------
	case OpIAdd, OpISub, OpIMul, OpIDiv:
		var v1, v2 int32
		if v2, err = f.PopInt(); err != nil {
			return
		}
		if v1, err = f.PopInt(); err != nil {
			return
		}
		var r int32
		switch op {
		case OpIAdd:
			r = v1 + v2
		case OpISub:
			r = v1 - v2
		case OpIMul:
			r = v1 * v2
		case OpIDiv:
			if v2 == 0 {
				err = ErrDivisionByZero
				return
			}
			if v1 == math.MinInt32 && v2 == -1 {
				r = math.MinInt32
			} else {
				r = v1 / v2 // Go division truncates toward zero
			}
		}
		if err = f.Push(IntValue(r)); err != nil {
			return
		}
		f.PC++

	// ------------------------------------------------------------------
	// Branching: targets are signed offsets from the branch's own address
	// ------------------------------------------------------------------
	case OpIfeq, OpIfne, OpIflt, OpIfge, OpIfgt, OpIfle:
		var v int32
		if v, err = f.PopInt(); err != nil {
			return
		}
		var taken bool
		switch op {
		case OpIfeq:
			taken = v == 0
		case OpIfne:
			taken = v != 0
		case OpIflt:
			taken = v < 0
		case OpIfge:
			taken = v >= 0
		case OpIfgt:
			taken = v > 0
		case OpIfle:
			taken = v <= 0
		}
		err = branch16(f, taken)

	case OpIfICmpEq, OpIfICmpNe, OpIfICmpLt, OpIfICmpGe, OpIfICmpGt, OpIfICmpLe:
		var v1, v2 int32
		if v2, err = f.PopInt(); err != nil {
			return
		}
		if v1, err = f.PopInt(); err != nil {
			return
		}
		var taken bool
		switch op {
		case OpIfICmpEq:
			taken = v1 == v2
		case OpIfICmpNe:
			taken = v1 != v2
		case OpIfICmpLt:
			taken = v1 < v2
		case OpIfICmpGe:
			taken = v1 >= v2
		case OpIfICmpGt:
			taken = v1 > v2
		case OpIfICmpLe:
			taken = v1 <= v2
		}
		err = branch16(f, taken)

	case OpGoto:
		err = branch16(f, true)

	case OpGotoW:
		var u uint32
		if u, err = operandU32(f); err != nil {
			return
		}
		f.PC += int(int32(u))

	// ------------------------------------------------------------------
	// Objects
	// ------------------------------------------------------------------
	case OpNew:
		err = in.allocate(f)

	case OpGetField, OpPutField:
		err = in.fieldAccess(f, op)

	case OpGetStatic, OpPutStatic:
		err = in.staticAccess(f, op)

	// ------------------------------------------------------------------
	// Invocation
	// ------------------------------------------------------------------
	case OpInvokeStatic, OpInvokeSpecial, OpInvokeVirtual:
		err = in.invoke(f, op)

	// ------------------------------------------------------------------
	// Returns
	// ------------------------------------------------------------------
	case OpIReturn:
		return in.finishReturn(f, KindInt)
	case OpLReturn:
		return in.finishReturn(f, KindLong)
	case OpAReturn:
		return in.finishReturn(f, KindRef)
	case OpReturn:
		if _, err = in.vm.thread.Pop(); err != nil {
			return
		}
		return in.vm.thread.Depth() == 0, Value{}, false, nil

	default:
		err = fmt.Errorf("%w: 0x%02X", ErrUnknownOpcode, op)
	}

	return false, Value{}, false, err
}

// finishReturn pops a typed return value, unwinds the current frame, and
// either hands the value to the caller or, for the root frame, signals
// completion with it.
func (in *Interpreter) finishReturn(f *Frame, kind Kind) (bool, Value, bool, error) {
	v, err := f.popKind(kind)
	if err != nil {
		return false, Value{}, false, err
	}
	if _, err = in.vm.thread.Pop(); err != nil {
		return false, Value{}, false, err
	}
	caller := in.vm.thread.Current()
	if caller == nil {
		return true, v, true, nil
	}
	if err = caller.Push(v); err != nil {
		return false, Value{}, false, err
	}
	return false, Value{}, false, nil
}

// owningClass returns the metadata of the class whose pool the current
// frame resolves against.
func (in *Interpreter) owningClass(f *Frame) (*Class, error) {
	return in.vm.metaspace.Class(f.ClassName)
}

// loadConstant handles ldc: a one-byte pool index pushing an int or float
// literal.
func (in *Interpreter) loadConstant(f *Frame) error {
	b, err := operandByte(f)
	if err != nil {
		return err
	}
	owner, err := in.owningClass(f)
	if err != nil {
		return err
	}
	entry, err := owner.Pool.Get(uint16(b))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadConstant, err)
	}

	var v Value
	switch entry.Tag {
	case classfile.TagInteger:
		v = IntValue(entry.Int)
	case classfile.TagFloat:
		v = FloatValue(entry.Float)
	default:
		return fmt.Errorf("%w: ldc of tag %d", ErrBadConstant, entry.Tag)
	}
	if err := f.Push(v); err != nil {
		return err
	}
	f.PC += 2
	return nil
}

// loadWideConstant handles ldc2_w: a two-byte pool index pushing a long or
// double literal.
func (in *Interpreter) loadWideConstant(f *Frame) error {
	index, err := operandU16(f)
	if err != nil {
		return err
	}
	owner, err := in.owningClass(f)
	if err != nil {
		return err
	}
	entry, err := owner.Pool.Get(index)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadConstant, err)
	}

	var v Value
	switch entry.Tag {
	case classfile.TagLong:
		v = LongValue(entry.Long)
	case classfile.TagDouble:
		v = DoubleValue(entry.Double)
	default:
		return fmt.Errorf("%w: ldc2_w of tag %d", ErrBadConstant, entry.Tag)
	}
	if err := f.Push(v); err != nil {
		return err
	}
	f.PC += 3
	return nil
}

// allocate handles new: resolve the class, collect at the allocation
// boundary if pressure demands it, then push a fresh reference.
func (in *Interpreter) allocate(f *Frame) error {
	index, err := operandU16(f)
	if err != nil {
		return err
	}
	owner, err := in.owningClass(f)
	if err != nil {
		return err
	}
	name, err := owner.ResolveClassRef(index)
	if err != nil {
		return err
	}
	target, err := in.vm.metaspace.Class(name)
	if err != nil {
		return err
	}

	heap := in.vm.heap
	cfg := in.vm.config
	if cfg.GCThreshold > 0 && heap.Count() >= cfg.GCThreshold {
		in.vm.Collect()
	}
	if cfg.MaxObjects > 0 && heap.Count() >= cfg.MaxObjects {
		in.vm.Collect()
		if heap.Count() >= cfg.MaxObjects {
			return fmt.Errorf("%w: %d objects live", ErrOutOfMemory, heap.Count())
		}
	}

	addr := heap.Allocate(name, target.InstanceFieldZeroes())
	if err := f.Push(RefValue(addr)); err != nil {
		return err
	}
	f.PC += 3
	return nil
}

// fieldAccess handles getfield and putfield.
func (in *Interpreter) fieldAccess(f *Frame, op byte) error {
	index, err := operandU16(f)
	if err != nil {
		return err
	}
	owner, err := in.owningClass(f)
	if err != nil {
		return err
	}
	ref, err := owner.ResolveFieldRef(index)
	if err != nil {
		return err
	}

	if op == OpPutField {
		value, err := f.Pop()
		if err != nil {
			return err
		}
		addr, err := f.PopRef()
		if err != nil {
			return err
		}
		if addr == NullRef {
			return fmt.Errorf("%w: writing %s.%s", ErrNullReference, ref.ClassName, ref.Name)
		}
		if err := in.vm.heap.SetField(addr, ref.Name, value); err != nil {
			return err
		}
	} else {
		addr, err := f.PopRef()
		if err != nil {
			return err
		}
		if addr == NullRef {
			return fmt.Errorf("%w: reading %s.%s", ErrNullReference, ref.ClassName, ref.Name)
		}
		value, err := in.vm.heap.GetField(addr, ref.Name)
		if err != nil {
			return err
		}
		if err := f.Push(value); err != nil {
			return err
		}
	}

	f.PC += 3
	return nil
}

// staticAccess handles getstatic and putstatic. System-class statics come
// from the intrinsic table; everything else lives in class metadata.
func (in *Interpreter) staticAccess(f *Frame, op byte) error {
	index, err := operandU16(f)
	if err != nil {
		return err
	}
	owner, err := in.owningClass(f)
	if err != nil {
		return err
	}
	ref, err := owner.ResolveFieldRef(index)
	if err != nil {
		return err
	}

	if isSystemClass(ref.ClassName) {
		if op == OpPutStatic {
			return fmt.Errorf("%w: cannot write intrinsic static %s.%s",
				ErrFieldNotFound, ref.ClassName, ref.Name)
		}
		v, err := staticIntrinsicFor(ref)
		if err != nil {
			return err
		}
		if err := f.Push(v); err != nil {
			return err
		}
		f.PC += 3
		return nil
	}

	target, err := in.vm.metaspace.Class(ref.ClassName)
	if err != nil {
		return err
	}
	if _, ok := target.Statics[ref.Name]; !ok {
		return fmt.Errorf("%w: %s.%s", ErrFieldNotFound, ref.ClassName, ref.Name)
	}

	if op == OpPutStatic {
		value, err := f.Pop()
		if err != nil {
			return err
		}
		target.Statics[ref.Name] = value
	} else {
		if err := f.Push(target.Statics[ref.Name]); err != nil {
			return err
		}
	}

	f.PC += 3
	return nil
}

// invoke handles invokestatic, invokespecial, and invokevirtual.
//
// Arguments are popped most-recent-first and reordered into ascending
// parameter order. Non-static forms pop the receiver beneath the arguments
// and place it in the callee's slot 0. The caller's pc is advanced past
// the fixed 3-byte encoding before the callee frame is pushed, so the flat
// loop resumes the caller at the right place after the return.
//
// invokevirtual dispatches on the receiver's runtime class, walking the
// superclass chain; invokespecial and invokestatic use the statically
// resolved class.
func (in *Interpreter) invoke(f *Frame, op byte) error {
	index, err := operandU16(f)
	if err != nil {
		return err
	}
	owner, err := in.owningClass(f)
	if err != nil {
		return err
	}
	ref, err := owner.ResolveMethodRef(index)
	if err != nil {
		return err
	}

	params, _, _, err := parseDescriptor(ref.Descriptor)
	if err != nil {
		return err
	}
	hasReceiver := op != OpInvokeStatic

	if isSystemClass(ref.ClassName) {
		return in.invokeIntrinsic(f, ref, params, hasReceiver)
	}

	args, err := popArgs(f, params)
	if err != nil {
		return err
	}

	var recv Value
	if hasReceiver {
		if recv, err = f.popKind(KindRef); err != nil {
			return err
		}
		if recv.IsNull() {
			return fmt.Errorf("%w: invoking %s.%s", ErrNullReference, ref.ClassName, ref.Name)
		}
	}

	targetName := ref.ClassName
	if op == OpInvokeVirtual {
		obj, err := in.vm.heap.Get(recv.R)
		if err != nil {
			return err
		}
		targetName = obj.ClassName
	}

	targetClass, method, err := in.vm.metaspace.LookupMethod(targetName, ref.Name, ref.Descriptor)
	if err != nil {
		return err
	}

	f.PC += 3

	callee := NewFrame(targetClass.Name, method.Code, method.MaxLocals, method.MaxStack)
	slot := 0
	if hasReceiver {
		if err := callee.SetLocal(0, recv); err != nil {
			return err
		}
		slot = 1
	}
	if err := layOutArgs(callee, slot, params, args); err != nil {
		return err
	}

	return in.vm.thread.Push(callee)
}

// invokeIntrinsic runs a system-class call through the intrinsic table,
// popping receiver and arguments exactly like a real invocation.
func (in *Interpreter) invokeIntrinsic(f *Frame, ref MethodRef, params []Kind, hasReceiver bool) error {
	fn, err := intrinsicFor(ref)
	if err != nil {
		return err
	}

	args, err := popArgs(f, params)
	if err != nil {
		return err
	}
	var recv Value
	if hasReceiver {
		if recv, err = f.popKind(KindRef); err != nil {
			return err
		}
	}

	result, hasResult, err := fn(in.vm, recv, args)
	if err != nil {
		return err
	}
	if hasResult {
		if err := f.Push(result); err != nil {
			return err
		}
	}
	f.PC += 3
	return nil
}

// popArgs pops one value per parameter (most recently pushed first) and
// returns them in ascending parameter order, checking kinds.
func popArgs(f *Frame, params []Kind) ([]Value, error) {
	args := make([]Value, len(params))
	for i := len(params) - 1; i >= 0; i-- {
		v, err := f.Pop()
		if err != nil {
			return nil, err
		}
		if v.Kind != params[i] {
			return nil, fmt.Errorf("%w: argument %d wants %s, have %s",
				ErrTypeMismatch, i, params[i], v.Kind)
		}
		args[i] = v
	}
	return args, nil
}

// layOutArgs stores arguments into consecutive local slots starting at
// slot, honoring two-slot kinds.
func layOutArgs(f *Frame, slot int, params []Kind, args []Value) error {
	for i, k := range params {
		if err := f.SetLocal(slot, args[i]); err != nil {
			return err
		}
		slot++
		if k.Wide() {
			slot++
		}
	}
	return nil
}

// loadLocal pushes local slot index, asserting its kind.
func loadLocal(f *Frame, index int, kind Kind) error {
	v, err := f.Local(index)
	if err != nil {
		return err
	}
	if v.Kind != kind {
		return fmt.Errorf("%w: local %d holds %s, instruction wants %s",
			ErrTypeMismatch, index, v.Kind, kind)
	}
	return f.Push(v)
}

// storeLocal pops a value of the given kind into local slot index.
func storeLocal(f *Frame, index int, kind Kind) error {
	v, err := f.popKind(kind)
	if err != nil {
		return err
	}
	return f.SetLocal(index, v)
}

// branch16 applies a conditional branch with a 16-bit signed offset
// relative to the branch instruction's own address.
func branch16(f *Frame, taken bool) error {
	u, err := operandU16(f)
	if err != nil {
		return err
	}
	if taken {
		f.PC += int(int16(u))
	} else {
		f.PC += 3
	}
	return nil
}

// Operand readers. Instructions straddling the end of the code array fail
// as pc-out-of-bounds rather than reading garbage.

func operandByte(f *Frame) (byte, error) {
	if f.PC+1 >= len(f.Code) {
		return 0, fmt.Errorf("%w: truncated instruction at pc=%d", ErrPCOutOfBounds, f.PC)
	}
	return f.Code[f.PC+1], nil
}

func operandU16(f *Frame) (uint16, error) {
	if f.PC+2 >= len(f.Code) {
		return 0, fmt.Errorf("%w: truncated instruction at pc=%d", ErrPCOutOfBounds, f.PC)
	}
	return binary.BigEndian.Uint16(f.Code[f.PC+1:]), nil
}

func operandU32(f *Frame) (uint32, error) {
	if f.PC+4 >= len(f.Code) {
		return 0, fmt.Errorf("%w: truncated instruction at pc=%d", ErrPCOutOfBounds, f.PC)
	}
	return binary.BigEndian.Uint32(f.Code[f.PC+1:]), nil
}
