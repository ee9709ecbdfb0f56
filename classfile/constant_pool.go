package classfile

import (
	"errors"
	"fmt"
)

// Constant pool tags.
const (
	TagUtf8               byte = 1
	TagInteger            byte = 3
	TagFloat              byte = 4
	TagLong               byte = 5
	TagDouble             byte = 6
	TagClass              byte = 7
	TagString             byte = 8
	TagFieldRef           byte = 9
	TagMethodRef          byte = 10
	TagInterfaceMethodRef byte = 11
	TagNameAndType        byte = 12
	TagMethodHandle       byte = 15
	TagMethodType         byte = 16
	TagInvokeDynamic      byte = 18
)

var (
	ErrBadIndex    = errors.New("constant pool index out of range")
	ErrNilEntry    = errors.New("constant pool entry is unset")
	ErrWrongTag    = errors.New("constant pool entry has unexpected tag")
)

// Constant is one constant-pool entry. Tag selects which fields carry the
// payload; unrelated fields are zero.
type Constant struct {
	Tag byte

	// TagUtf8
	Utf8 string

	// Literals
	Int    int32
	Float  float32
	Long   int64
	Double float64

	// Symbolic references
	NameIndex        uint16 // Class, NameAndType
	DescriptorIndex  uint16 // NameAndType, MethodType
	ClassIndex       uint16 // FieldRef, MethodRef, InterfaceMethodRef
	NameAndTypeIndex uint16 // FieldRef, MethodRef, InterfaceMethodRef, InvokeDynamic
	StringIndex      uint16 // String
	RefKind          byte   // MethodHandle
	RefIndex         uint16 // MethodHandle
	BootstrapIndex   uint16 // InvokeDynamic
}

// ConstantPool is the per-class constant table. Entry 0 is always nil, and
// the slot following a Long or Double entry is nil, per the class-file
// format.
type ConstantPool struct {
	Entries []*Constant
}

// Get returns the entry at index.
func (cp *ConstantPool) Get(index uint16) (*Constant, error) {
	if index == 0 || int(index) >= len(cp.Entries) {
		return nil, fmt.Errorf("%w: %d", ErrBadIndex, index)
	}
	c := cp.Entries[index]
	if c == nil {
		return nil, fmt.Errorf("%w: %d", ErrNilEntry, index)
	}
	return c, nil
}

// Utf8 returns the string at a Utf8 entry.
func (cp *ConstantPool) Utf8(index uint16) (string, error) {
	c, err := cp.Get(index)
	if err != nil {
		return "", err
	}
	if c.Tag != TagUtf8 {
		return "", fmt.Errorf("%w: want Utf8 at %d, have tag %d", ErrWrongTag, index, c.Tag)
	}
	return c.Utf8, nil
}

// ClassNameAt resolves a Class entry to its name.
func (cp *ConstantPool) ClassNameAt(index uint16) (string, error) {
	c, err := cp.Get(index)
	if err != nil {
		return "", err
	}
	if c.Tag != TagClass {
		return "", fmt.Errorf("%w: want Class at %d, have tag %d", ErrWrongTag, index, c.Tag)
	}
	return cp.Utf8(c.NameIndex)
}

// NameAndTypeAt resolves a NameAndType entry to its literal name and
// descriptor strings.
func (cp *ConstantPool) NameAndTypeAt(index uint16) (name, descriptor string, err error) {
	c, err := cp.Get(index)
	if err != nil {
		return "", "", err
	}
	if c.Tag != TagNameAndType {
		return "", "", fmt.Errorf("%w: want NameAndType at %d, have tag %d", ErrWrongTag, index, c.Tag)
	}
	if name, err = cp.Utf8(c.NameIndex); err != nil {
		return "", "", err
	}
	if descriptor, err = cp.Utf8(c.DescriptorIndex); err != nil {
		return "", "", err
	}
	return name, descriptor, nil
}

// Len returns the pool size including the reserved zero slot.
func (cp *ConstantPool) Len() int {
	return len(cp.Entries)
}
