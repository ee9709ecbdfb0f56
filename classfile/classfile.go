// Package classfile decodes Java class files into a typed representation
// consumed by the VM: constant pool, field and method tables, and the Code
// attribute carrying each method's bytecode and frame sizing.
package classfile

import (
	"fmt"
	"os"
)

// Magic is the class-file magic number.
const Magic uint32 = 0xCAFEBABE

// ClassFile is the decoded form of one .class file.
type ClassFile struct {
	MinorVersion uint16
	MajorVersion uint16
	ConstantPool *ConstantPool
	AccessFlags  uint16
	ThisClass    uint16
	SuperClass   uint16
	Interfaces   []uint16
	Fields       []MemberInfo
	Methods      []MemberInfo
	Attributes   []AttributeInfo
}

// MemberInfo describes one field or method entry.
type MemberInfo struct {
	AccessFlags     uint16
	NameIndex       uint16
	DescriptorIndex uint16
	Attributes      []AttributeInfo
}

// Access flags.
const (
	AccPublic    uint16 = 0x0001
	AccPrivate   uint16 = 0x0002
	AccProtected uint16 = 0x0004
	AccStatic    uint16 = 0x0008
	AccFinal     uint16 = 0x0010
	AccSuper     uint16 = 0x0020
	AccNative    uint16 = 0x0100
	AccInterface uint16 = 0x0200
	AccAbstract  uint16 = 0x0400
)

// ParseFile reads and decodes a class file from disk.
func ParseFile(path string) (*ClassFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading class file: %w", err)
	}
	return Parse(data)
}

// ClassName returns the fully qualified name of this class.
func (cf *ClassFile) ClassName() (string, error) {
	return cf.ConstantPool.ClassNameAt(cf.ThisClass)
}

// SuperClassName returns the superclass name. Index zero means the class
// has no superclass entry, which the loader treats as java/lang/Object.
func (cf *ClassFile) SuperClassName() (string, error) {
	if cf.SuperClass == 0 {
		return "java/lang/Object", nil
	}
	return cf.ConstantPool.ClassNameAt(cf.SuperClass)
}

// JavaVersion renders the major version as a Java release name.
func (cf *ClassFile) JavaVersion() string {
	if cf.MajorVersion >= 49 {
		return fmt.Sprintf("Java %d", cf.MajorVersion-44)
	}
	return fmt.Sprintf("class file version %d.%d", cf.MajorVersion, cf.MinorVersion)
}

// Code returns the parsed Code attribute of a method, or an error when the
// method has none (native and abstract methods).
func (cf *ClassFile) Code(m *MemberInfo) (*CodeAttribute, error) {
	for i := range m.Attributes {
		name, err := cf.ConstantPool.Utf8(m.Attributes[i].NameIndex)
		if err != nil {
			return nil, err
		}
		if name == "Code" {
			return ParseCodeAttribute(m.Attributes[i].Data)
		}
	}
	name, _ := cf.ConstantPool.Utf8(m.NameIndex)
	return nil, fmt.Errorf("method %s has no Code attribute", name)
}
