package vm

import "fmt"

// ---------------------------------------------------------------------------
// Opcodes
// ---------------------------------------------------------------------------

// The supported instruction set: integer arithmetic, load/store, constant
// pushes, object allocation and field access, invocation, branching, and
// returns. Values are standard JVM opcode numbers.
const (
	OpNop byte = 0x00

	// Constants
	OpIConstM1 byte = 0x02
	OpIConst0  byte = 0x03
	OpIConst1  byte = 0x04
	OpIConst2  byte = 0x05
	OpIConst3  byte = 0x06
	OpIConst4  byte = 0x07
	OpIConst5  byte = 0x08
	OpBipush   byte = 0x10
	OpSipush   byte = 0x11
	OpLdc      byte = 0x12
	OpLdc2W    byte = 0x14

	// Loads
	OpILoad  byte = 0x15
	OpALoad  byte = 0x19
	OpILoad0 byte = 0x1a
	OpILoad1 byte = 0x1b
	OpILoad2 byte = 0x1c
	OpILoad3 byte = 0x1d
	OpALoad0 byte = 0x2a
	OpALoad1 byte = 0x2b
	OpALoad2 byte = 0x2c
	OpALoad3 byte = 0x2d

	// Stores
	OpIStore  byte = 0x36
	OpAStore  byte = 0x3a
	OpIStore0 byte = 0x3b
	OpIStore1 byte = 0x3c
	OpIStore2 byte = 0x3d
	OpIStore3 byte = 0x3e
	OpAStore0 byte = 0x4b
	OpAStore1 byte = 0x4c
	OpAStore2 byte = 0x4d
	OpAStore3 byte = 0x4e

	// Stack
	OpDup byte = 0x59

	// Arithmetic
	OpIAdd byte = 0x60
	OpISub byte = 0x64
	OpIMul byte = 0x68
	OpIDiv byte = 0x6c

	// Branching
	OpIfeq     byte = 0x99
	OpIfne     byte = 0x9a
	OpIflt     byte = 0x9b
	OpIfge     byte = 0x9c
	OpIfgt     byte = 0x9d
	OpIfle     byte = 0x9e
	OpIfICmpEq byte = 0x9f
	OpIfICmpNe byte = 0xa0
	OpIfICmpLt byte = 0xa1
	OpIfICmpGe byte = 0xa2
	OpIfICmpGt byte = 0xa3
	OpIfICmpLe byte = 0xa4
	OpGoto     byte = 0xa7
	OpGotoW    byte = 0xc8

	// Returns
	OpIReturn byte = 0xac
	OpLReturn byte = 0xad
	OpAReturn byte = 0xb0
	OpReturn  byte = 0xb1

	// Fields
	OpGetStatic byte = 0xb2
	OpPutStatic byte = 0xb3
	OpGetField  byte = 0xb4
	OpPutField  byte = 0xb5

	// Invocation
	OpInvokeVirtual byte = 0xb6
	OpInvokeSpecial byte = 0xb7
	OpInvokeStatic  byte = 0xb8

	// Objects
	OpNew byte = 0xbb
)

var mnemonics = map[byte]string{
	OpNop:      "nop",
	OpIConstM1: "iconst_m1",
	OpIConst0:  "iconst_0",
	OpIConst1:  "iconst_1",
	OpIConst2:  "iconst_2",
	OpIConst3:  "iconst_3",
	OpIConst4:  "iconst_4",
	OpIConst5:  "iconst_5",
	OpBipush:   "bipush",
	OpSipush:   "sipush",
	OpLdc:      "ldc",
	OpLdc2W:    "ldc2_w",
	OpILoad:    "iload",
	OpALoad:    "aload",
	OpILoad0:   "iload_0",
	OpILoad1:   "iload_1",
	OpILoad2:   "iload_2",
	OpILoad3:   "iload_3",
	OpALoad0:   "aload_0",
	OpALoad1:   "aload_1",
	OpALoad2:   "aload_2",
	OpALoad3:   "aload_3",
	OpIStore:   "istore",
	OpAStore:   "astore",
	OpIStore0:  "istore_0",
	OpIStore1:  "istore_1",
	OpIStore2:  "istore_2",
	OpIStore3:  "istore_3",
	OpAStore0:  "astore_0",
	OpAStore1:  "astore_1",
	OpAStore2:  "astore_2",
	OpAStore3:  "astore_3",
	OpDup:      "dup",
	OpIAdd:     "iadd",
	OpISub:     "isub",
	OpIMul:     "imul",
	OpIDiv:     "idiv",
	OpIfeq:     "ifeq",
	OpIfne:     "ifne",
	OpIflt:     "iflt",
	OpIfge:     "ifge",
	OpIfgt:     "ifgt",
	OpIfle:     "ifle",
	OpIfICmpEq: "if_icmpeq",
	OpIfICmpNe: "if_icmpne",
	OpIfICmpLt: "if_icmplt",
	OpIfICmpGe: "if_icmpge",
	OpIfICmpGt: "if_icmpgt",
	OpIfICmpLe: "if_icmple",
	OpGoto:     "goto",
	OpGotoW:    "goto_w",
	OpIReturn:  "ireturn",
	OpLReturn:  "lreturn",
	OpAReturn:  "areturn",
	OpReturn:   "return",
	OpGetStatic: "getstatic",
	OpPutStatic: "putstatic",
	OpGetField:  "getfield",
	OpPutField:  "putfield",
	OpInvokeVirtual: "invokevirtual",
	OpInvokeSpecial: "invokespecial",
	OpInvokeStatic:  "invokestatic",
	OpNew:           "new",
}

// Mnemonic returns the assembly name of an opcode, or a hex form for
// opcodes outside the supported set.
func Mnemonic(op byte) string {
	if name, ok := mnemonics[op]; ok {
		return name
	}
	return fmt.Sprintf("0x%02X", op)
}

// InstructionLength returns the encoded length of an instruction in bytes
// (opcode plus immediate operands): 1, 2, 3, or 5.
func InstructionLength(op byte) int {
	switch op {
	case OpBipush, OpLdc, OpILoad, OpALoad, OpIStore, OpAStore:
		return 2
	case OpSipush, OpLdc2W,
		OpIfeq, OpIfne, OpIflt, OpIfge, OpIfgt, OpIfle,
		OpIfICmpEq, OpIfICmpNe, OpIfICmpLt, OpIfICmpGe, OpIfICmpGt, OpIfICmpLe,
		OpGoto,
		OpGetStatic, OpPutStatic, OpGetField, OpPutField,
		OpInvokeVirtual, OpInvokeSpecial, OpInvokeStatic, OpNew:
		return 3
	case OpGotoW:
		return 5
	default:
		return 1
	}
}
