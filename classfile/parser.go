package classfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	ErrBadMagic       = errors.New("bad magic number")
	ErrTruncated      = errors.New("truncated class file")
	ErrBadConstantTag = errors.New("unknown constant pool tag")
)

// reader walks the class-file bytes with bounds checking. All multi-byte
// quantities are big-endian.
type reader struct {
	data []byte
	off  int
}

func (r *reader) remaining() int {
	return len(r.data) - r.off
}

func (r *reader) u1() (byte, error) {
	if r.remaining() < 1 {
		return 0, fmt.Errorf("%w: at offset %d", ErrTruncated, r.off)
	}
	b := r.data[r.off]
	r.off++
	return b, nil
}

func (r *reader) u2() (uint16, error) {
	if r.remaining() < 2 {
		return 0, fmt.Errorf("%w: at offset %d", ErrTruncated, r.off)
	}
	v := binary.BigEndian.Uint16(r.data[r.off:])
	r.off += 2
	return v, nil
}

func (r *reader) u4() (uint32, error) {
	if r.remaining() < 4 {
		return 0, fmt.Errorf("%w: at offset %d", ErrTruncated, r.off)
	}
	v := binary.BigEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v, nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if r.remaining() < n {
		return nil, fmt.Errorf("%w: at offset %d", ErrTruncated, r.off)
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

// Parse decodes a class file from bytes.
func Parse(data []byte) (*ClassFile, error) {
	r := &reader{data: data}

	magic, err := r.u4()
	if err != nil {
		return nil, err
	}
	if magic != Magic {
		return nil, fmt.Errorf("%w: 0x%08X", ErrBadMagic, magic)
	}

	cf := &ClassFile{}
	if cf.MinorVersion, err = r.u2(); err != nil {
		return nil, err
	}
	if cf.MajorVersion, err = r.u2(); err != nil {
		return nil, err
	}

	if cf.ConstantPool, err = parseConstantPool(r); err != nil {
		return nil, err
	}

	if cf.AccessFlags, err = r.u2(); err != nil {
		return nil, err
	}
	if cf.ThisClass, err = r.u2(); err != nil {
		return nil, err
	}
	if cf.SuperClass, err = r.u2(); err != nil {
		return nil, err
	}

	ifaceCount, err := r.u2()
	if err != nil {
		return nil, err
	}
	cf.Interfaces = make([]uint16, ifaceCount)
	for i := range cf.Interfaces {
		if cf.Interfaces[i], err = r.u2(); err != nil {
			return nil, err
		}
	}

	if cf.Fields, err = parseMembers(r); err != nil {
		return nil, err
	}
	if cf.Methods, err = parseMembers(r); err != nil {
		return nil, err
	}
	if cf.Attributes, err = parseAttributes(r); err != nil {
		return nil, err
	}

	return cf, nil
}

func parseConstantPool(r *reader) (*ConstantPool, error) {
	count, err := r.u2()
	if err != nil {
		return nil, err
	}
	cp := &ConstantPool{Entries: make([]*Constant, count)}

	// Indexing starts at 1; Long and Double occupy two slots.
	for i := uint16(1); i < count; i++ {
		tag, err := r.u1()
		if err != nil {
			return nil, err
		}
		c := &Constant{Tag: tag}
		switch tag {
		case TagUtf8:
			length, err := r.u2()
			if err != nil {
				return nil, err
			}
			b, err := r.bytes(int(length))
			if err != nil {
				return nil, err
			}
			c.Utf8 = string(b)
		case TagInteger:
			v, err := r.u4()
			if err != nil {
				return nil, err
			}
			c.Int = int32(v)
		case TagFloat:
			v, err := r.u4()
			if err != nil {
				return nil, err
			}
			c.Float = math.Float32frombits(v)
		case TagLong:
			hi, err := r.u4()
			if err != nil {
				return nil, err
			}
			lo, err := r.u4()
			if err != nil {
				return nil, err
			}
			c.Long = int64(uint64(hi)<<32 | uint64(lo))
		case TagDouble:
			hi, err := r.u4()
			if err != nil {
				return nil, err
			}
			lo, err := r.u4()
			if err != nil {
				return nil, err
			}
			c.Double = math.Float64frombits(uint64(hi)<<32 | uint64(lo))
		case TagClass:
			if c.NameIndex, err = r.u2(); err != nil {
				return nil, err
			}
		case TagString:
			if c.StringIndex, err = r.u2(); err != nil {
				return nil, err
			}
		case TagFieldRef, TagMethodRef, TagInterfaceMethodRef:
			if c.ClassIndex, err = r.u2(); err != nil {
				return nil, err
			}
			if c.NameAndTypeIndex, err = r.u2(); err != nil {
				return nil, err
			}
		case TagNameAndType:
			if c.NameIndex, err = r.u2(); err != nil {
				return nil, err
			}
			if c.DescriptorIndex, err = r.u2(); err != nil {
				return nil, err
			}
		case TagMethodHandle:
			if c.RefKind, err = r.u1(); err != nil {
				return nil, err
			}
			if c.RefIndex, err = r.u2(); err != nil {
				return nil, err
			}
		case TagMethodType:
			if c.DescriptorIndex, err = r.u2(); err != nil {
				return nil, err
			}
		case TagInvokeDynamic:
			if c.BootstrapIndex, err = r.u2(); err != nil {
				return nil, err
			}
			if c.NameAndTypeIndex, err = r.u2(); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%w: %d at entry %d", ErrBadConstantTag, tag, i)
		}
		cp.Entries[i] = c

		if tag == TagLong || tag == TagDouble {
			i++ // the following slot stays nil
		}
	}

	return cp, nil
}

func parseMembers(r *reader) ([]MemberInfo, error) {
	count, err := r.u2()
	if err != nil {
		return nil, err
	}
	members := make([]MemberInfo, count)
	for i := range members {
		if members[i].AccessFlags, err = r.u2(); err != nil {
			return nil, err
		}
		if members[i].NameIndex, err = r.u2(); err != nil {
			return nil, err
		}
		if members[i].DescriptorIndex, err = r.u2(); err != nil {
			return nil, err
		}
		if members[i].Attributes, err = parseAttributes(r); err != nil {
			return nil, err
		}
	}
	return members, nil
}

func parseAttributes(r *reader) ([]AttributeInfo, error) {
	count, err := r.u2()
	if err != nil {
		return nil, err
	}
	attrs := make([]AttributeInfo, count)
	for i := range attrs {
		if attrs[i].NameIndex, err = r.u2(); err != nil {
			return nil, err
		}
		length, err := r.u4()
		if err != nil {
			return nil, err
		}
		data, err := r.bytes(int(length))
		if err != nil {
			return nil, err
		}
		attrs[i].Data = append([]byte(nil), data...)
	}
	return attrs, nil
}
