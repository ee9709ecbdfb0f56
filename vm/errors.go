package vm

import "errors"

// ---------------------------------------------------------------------------
// Error taxonomy
// ---------------------------------------------------------------------------

// Every runtime failure is one of these sentinels, wrapped with context as
// it propagates. There is no per-frame recovery: any error unwinds the
// whole call stack and is reported once by the entry point.
var (
	ErrStackUnderflow  = errors.New("operand stack underflow")
	ErrStackOverflow   = errors.New("operand stack overflow")
	ErrIndexOutOfBounds = errors.New("local variable index out of bounds")
	ErrTypeMismatch    = errors.New("operand type mismatch")
	ErrDivisionByZero  = errors.New("division by zero")
	ErrClassNotFound   = errors.New("class not found")
	ErrMethodNotFound  = errors.New("method not found")
	ErrFieldNotFound   = errors.New("field not found")
	ErrNullReference   = errors.New("null reference")
	ErrNoSuchField     = errors.New("no such field on object")
	ErrUnknownOpcode   = errors.New("unknown opcode")
	ErrNoSuchMethod    = errors.New("no such method")
	ErrOutOfMemory     = errors.New("out of memory")
	ErrBadConstant     = errors.New("unexpected constant pool entry")
	ErrPCOutOfBounds   = errors.New("program counter out of bounds")
	ErrFrameOverflow   = errors.New("call stack depth limit exceeded")
)
