package vm

import (
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/kaffee-vm/kaffee/classfile"
)

// ---------------------------------------------------------------------------
// VM: one isolated execution session
// ---------------------------------------------------------------------------

// DefaultGCThreshold is the live-object count at which an allocation first
// triggers a collection.
const DefaultGCThreshold = 256

// DefaultMaxFrameDepth bounds the call stack.
const DefaultMaxFrameDepth = 1024

// Config tunes a VM. The zero value gets sensible defaults.
type Config struct {
	// GCThreshold is the heap object count that triggers collection at the
	// next allocation. Zero means the default.
	GCThreshold int

	// MaxObjects caps live objects after collection. Zero means unbounded.
	MaxObjects int

	// MaxFrameDepth bounds the call stack. Zero means the default.
	MaxFrameDepth int

	// Stdout receives println output. Nil means os.Stdout.
	Stdout io.Writer
}

// VM owns a heap, a metaspace, and a single thread of execution. Two VMs
// share nothing; addresses and class metadata never leak between them.
type VM struct {
	ID string

	config    Config
	heap      *Heap
	metaspace *Metaspace
	thread    *Thread
	stdout    io.Writer
	log       commonlog.Logger
}

// New creates a VM with default configuration.
func New() *VM {
	return NewWithConfig(Config{})
}

// NewWithConfig creates a VM.
func NewWithConfig(config Config) *VM {
	if config.GCThreshold == 0 {
		config.GCThreshold = DefaultGCThreshold
	}
	if config.MaxFrameDepth == 0 {
		config.MaxFrameDepth = DefaultMaxFrameDepth
	}
	stdout := config.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	vm := &VM{
		ID:        uuid.NewString(),
		config:    config,
		heap:      NewHeap(),
		metaspace: NewMetaspace(),
		thread:    NewThread(config.MaxFrameDepth),
		stdout:    stdout,
		log:       commonlog.GetLogger("kaffee.vm"),
	}
	vm.log.Debugf("created vm %s (gc threshold %d, max objects %d)",
		vm.ID, config.GCThreshold, config.MaxObjects)
	return vm
}

// LoadClass defines a parsed classfile in this VM's metaspace and returns
// the class name. Loading the same name twice keeps the first definition.
func (vm *VM) LoadClass(cf *classfile.ClassFile) (string, error) {
	c, err := vm.metaspace.Define(cf)
	if err != nil {
		return "", err
	}
	vm.log.Infof("loaded class %s (super %s, %d methods, %d fields)",
		c.Name, c.Super, len(c.Methods), len(c.Fields))
	return c.Name, nil
}

// Run executes a method by name and descriptor on a loaded class.
// Arguments are laid into the entry frame's locals starting at slot 0;
// for a non-static entry point the first argument is the receiver.
func (vm *VM) Run(className, methodName, descriptor string, args ...Value) (Value, bool, error) {
	c, err := vm.metaspace.Class(className)
	if err != nil {
		return Value{}, false, fmt.Errorf("%w: %s.%s%s", ErrNoSuchMethod, className, methodName, descriptor)
	}
	method, err := c.Method(methodName, descriptor)
	if err != nil {
		return Value{}, false, fmt.Errorf("%w: %s.%s%s", ErrNoSuchMethod, className, methodName, descriptor)
	}
	if method.Code == nil {
		return Value{}, false, fmt.Errorf("%w: %s.%s%s has no code", ErrNoSuchMethod, className, methodName, descriptor)
	}

	params, _, _, err := parseDescriptor(descriptor)
	if err != nil {
		return Value{}, false, err
	}

	frame := NewFrame(className, method.Code, method.MaxLocals, method.MaxStack)
	slot := 0
	if !method.IsStatic() {
		if len(args) == 0 || args[0].Kind != KindRef {
			return Value{}, false, fmt.Errorf("%w: %s.%s needs a receiver", ErrTypeMismatch, className, methodName)
		}
		if err := frame.SetLocal(0, args[0]); err != nil {
			return Value{}, false, err
		}
		args = args[1:]
		slot = 1
	}
	if len(args) != len(params) {
		return Value{}, false, fmt.Errorf("%w: %s.%s%s wants %d arguments, got %d",
			ErrTypeMismatch, className, methodName, descriptor, len(params), len(args))
	}
	if err := layOutArgs(frame, slot, params, args); err != nil {
		return Value{}, false, err
	}

	vm.thread.Reset()
	vm.log.Infof("run %s.%s%s", className, methodName, descriptor)

	in := &Interpreter{vm: vm}
	result, hasResult, err := in.run(frame)
	if err != nil {
		vm.log.Errorf("run failed: %s", err.Error())
		return Value{}, false, err
	}
	vm.log.Debugf("run finished (max frame depth %d, %d objects live)",
		vm.thread.MaxDepth(), vm.heap.Count())
	return result, hasResult, nil
}

// ExecuteCode runs a raw code array in the context of a loaded class,
// without a method lookup. Arguments fill locals from slot 0, honoring
// two-slot kinds. Mostly useful for tests and tooling.
func (vm *VM) ExecuteCode(className string, code []byte, maxLocals, maxStack int, args ...Value) (Value, bool, error) {
	frame := NewFrame(className, code, maxLocals, maxStack)
	slot := 0
	for _, a := range args {
		if err := frame.SetLocal(slot, a); err != nil {
			return Value{}, false, err
		}
		slot++
		if a.Kind.Wide() {
			slot++
		}
	}

	vm.thread.Reset()
	in := &Interpreter{vm: vm}
	return in.run(frame)
}

// Collect runs a mark-sweep collection and returns the number of objects
// freed.
func (vm *VM) Collect() int {
	before := vm.heap.Count()
	freed := collect(vm.heap, vm.thread, vm.metaspace)
	vm.log.Debugf("gc: freed %d of %d objects, %d live", freed, before, vm.heap.Count())
	return freed
}

// Heap exposes this VM's heap.
func (vm *VM) Heap() *Heap { return vm.heap }

// Metaspace exposes this VM's class metadata.
func (vm *VM) Metaspace() *Metaspace { return vm.metaspace }

// MaxFrameDepth reports the deepest the call stack has been since the
// last Run.
func (vm *VM) MaxFrameDepth() int { return vm.thread.MaxDepth() }
