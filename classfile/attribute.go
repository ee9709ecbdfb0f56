package classfile

import (
	"encoding/binary"
	"fmt"
)

// AttributeInfo is a raw attribute: a name index into the constant pool
// plus its undecoded payload. Only Code is given further structure; the
// rest are carried opaquely.
type AttributeInfo struct {
	NameIndex uint16
	Data      []byte
}

// CodeAttribute is the decoded Code attribute of a method.
type CodeAttribute struct {
	MaxStack  uint16
	MaxLocals uint16
	Code      []byte
}

// ParseCodeAttribute decodes the payload of a Code attribute. The
// exception table and nested attributes are skipped: structured exception
// handling is outside this VM's instruction set.
func ParseCodeAttribute(data []byte) (*CodeAttribute, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("%w: Code attribute", ErrTruncated)
	}
	maxStack := binary.BigEndian.Uint16(data[0:2])
	maxLocals := binary.BigEndian.Uint16(data[2:4])
	codeLen := binary.BigEndian.Uint32(data[4:8])
	if uint32(len(data)-8) < codeLen {
		return nil, fmt.Errorf("%w: Code attribute body", ErrTruncated)
	}
	code := make([]byte, codeLen)
	copy(code, data[8:8+codeLen])
	return &CodeAttribute{
		MaxStack:  maxStack,
		MaxLocals: maxLocals,
		Code:      code,
	}, nil
}
