package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Intrinsics: the explicit table of supported java/* call forms
// ---------------------------------------------------------------------------

// The VM ships no standard library. The handful of system-class call forms
// that compiled code relies on are implemented as intrinsics, looked up
// here before any normal resolution. Calls targeting a java/* class that
// is not in the table fail with ErrMethodNotFound; there is no silent
// bypass. The intrinsic path pops receiver and arguments exactly like a
// real invocation, so the caller's operand stack stays balanced.

// ConsoleRef is the pseudo-reference produced by reading
// java/lang/System.out. It lives outside the heap address space and is
// never collected or dereferenced.
const ConsoleRef Ref = 1<<63 - 1

// intrinsicFunc executes one intrinsic call. recv is the null value for
// static forms. It returns the result and whether there is one.
type intrinsicFunc func(vm *VM, recv Value, args []Value) (Value, bool, error)

func intrinsicKey(className, name, descriptor string) string {
	return className + "." + name + ":" + descriptor
}

var intrinsics = map[string]intrinsicFunc{
	// Superclass constructor of everything; has nothing to initialize.
	intrinsicKey("java/lang/Object", "<init>", "()V"): func(*VM, Value, []Value) (Value, bool, error) {
		return Value{}, false, nil
	},

	intrinsicKey("java/io/PrintStream", "println", "()V"): func(vm *VM, _ Value, _ []Value) (Value, bool, error) {
		fmt.Fprintln(vm.stdout)
		return Value{}, false, nil
	},
	intrinsicKey("java/io/PrintStream", "println", "(I)V"): printlnArg,
	intrinsicKey("java/io/PrintStream", "println", "(J)V"): printlnArg,
}

func printlnArg(vm *VM, _ Value, args []Value) (Value, bool, error) {
	fmt.Fprintln(vm.stdout, args[0].String())
	return Value{}, false, nil
}

// staticIntrinsics maps "class.field" to the value produced by getstatic
// on a system class.
var staticIntrinsics = map[string]Value{
	"java/lang/System.out": RefValue(ConsoleRef),
}

// isSystemClass reports whether a class name is handled by the intrinsic
// table instead of loaded metadata.
func isSystemClass(name string) bool {
	return strings.HasPrefix(name, "java/")
}

// intrinsicFor looks up the intrinsic for a resolved method reference.
func intrinsicFor(ref MethodRef) (intrinsicFunc, error) {
	fn, ok := intrinsics[intrinsicKey(ref.ClassName, ref.Name, ref.Descriptor)]
	if !ok {
		return nil, fmt.Errorf("%w: no intrinsic for %s.%s%s",
			ErrMethodNotFound, ref.ClassName, ref.Name, ref.Descriptor)
	}
	return fn, nil
}

// staticIntrinsicFor looks up the intrinsic value for a getstatic on a
// system class.
func staticIntrinsicFor(ref FieldRef) (Value, error) {
	v, ok := staticIntrinsics[ref.ClassName+"."+ref.Name]
	if !ok {
		return Value{}, fmt.Errorf("%w: no intrinsic static %s.%s",
			ErrFieldNotFound, ref.ClassName, ref.Name)
	}
	return v, nil
}
