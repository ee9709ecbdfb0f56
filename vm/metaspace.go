package vm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kaffee-vm/kaffee/classfile"
)

// ---------------------------------------------------------------------------
// Metaspace: per-class metadata and the resolution cache
// ---------------------------------------------------------------------------

// Method is the runtime form of one method table entry.
type Method struct {
	Name        string
	Descriptor  string
	AccessFlags uint16
	MaxStack    int
	MaxLocals   int
	Code        []byte
}

// IsStatic reports whether the method carries ACC_STATIC.
func (m *Method) IsStatic() bool {
	return m.AccessFlags&classfile.AccStatic != 0
}

// Field is the runtime form of one field table entry.
type Field struct {
	Name        string
	Descriptor  string
	AccessFlags uint16
}

// IsStatic reports whether the field carries ACC_STATIC.
func (f *Field) IsStatic() bool {
	return f.AccessFlags&classfile.AccStatic != 0
}

// MethodRef is a resolved method reference: the materialized
// (class, name, descriptor) form of a constant-pool index.
type MethodRef struct {
	ClassName  string
	Name       string
	Descriptor string
}

// FieldRef is a resolved field reference.
type FieldRef struct {
	ClassName  string
	Name       string
	Descriptor string
}

// Class is the loaded metadata for one class: its method and field tables,
// its raw constant pool, and the resolution cache over that pool.
type Class struct {
	Name        string
	Super       string
	Interfaces  []string
	AccessFlags uint16

	// Pool is the class's constant pool as parsed; resolution walks it.
	Pool *classfile.ConstantPool

	// Methods and Fields are keyed "name:descriptor".
	Methods map[string]*Method
	Fields  map[string]*Field

	// Statics holds per-class static field values, keyed by field name.
	Statics map[string]Value

	// Resolution cache. Entries are populated lazily on first use and are
	// stable for the remainder of the run; failed resolutions are never
	// cached, so a later attempt re-walks the pool.
	resolvedMethods map[uint16]MethodRef
	resolvedFields  map[uint16]FieldRef
	resolvedClasses map[uint16]string
}

// memberKey builds the "name:descriptor" table key.
func memberKey(name, descriptor string) string {
	return name + ":" + descriptor
}

// Method looks up a method declared directly on this class.
func (c *Class) Method(name, descriptor string) (*Method, error) {
	m, ok := c.Methods[memberKey(name, descriptor)]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s%s", ErrMethodNotFound, c.Name, name, descriptor)
	}
	return m, nil
}

// Field looks up a field declared directly on this class.
func (c *Class) Field(name, descriptor string) (*Field, error) {
	f, ok := c.Fields[memberKey(name, descriptor)]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s%s", ErrFieldNotFound, c.Name, name, descriptor)
	}
	return f, nil
}

// InstanceFieldZeroes builds the zero-initialized field storage for a new
// instance of this class, one entry per non-static declared field.
func (c *Class) InstanceFieldZeroes() map[string]Value {
	fields := make(map[string]Value)
	for _, f := range c.Fields {
		if f.IsStatic() {
			continue
		}
		kind, err := kindForDescriptor(f.Descriptor)
		if err != nil {
			kind = KindRef
		}
		fields[f.Name] = ZeroValue(kind)
	}
	return fields
}

// ResolveClassRef resolves a Class constant-pool entry to a class name,
// memoizing the result.
func (c *Class) ResolveClassRef(index uint16) (string, error) {
	if name, ok := c.resolvedClasses[index]; ok {
		return name, nil
	}

	name, err := c.Pool.ClassNameAt(index)
	if err != nil {
		return "", fmt.Errorf("resolving class ref %d in %s: %w", index, c.Name, err)
	}

	if c.resolvedClasses == nil {
		c.resolvedClasses = make(map[uint16]string)
	}
	c.resolvedClasses[index] = name
	return name, nil
}

// ResolveMethodRef resolves a MethodRef (or InterfaceMethodRef) entry:
// reference -> declaring class -> name-and-type -> literal name and
// descriptor. The walk happens once per index; later calls hit the cache.
func (c *Class) ResolveMethodRef(index uint16) (MethodRef, error) {
	if ref, ok := c.resolvedMethods[index]; ok {
		return ref, nil
	}

	entry, err := c.Pool.Get(index)
	if err != nil {
		return MethodRef{}, fmt.Errorf("resolving method ref %d in %s: %w", index, c.Name, err)
	}
	if entry.Tag != classfile.TagMethodRef && entry.Tag != classfile.TagInterfaceMethodRef {
		return MethodRef{}, fmt.Errorf("%w: want MethodRef at %d in %s", ErrBadConstant, index, c.Name)
	}

	className, err := c.ResolveClassRef(entry.ClassIndex)
	if err != nil {
		return MethodRef{}, err
	}
	name, descriptor, err := c.Pool.NameAndTypeAt(entry.NameAndTypeIndex)
	if err != nil {
		return MethodRef{}, fmt.Errorf("resolving method ref %d in %s: %w", index, c.Name, err)
	}

	ref := MethodRef{ClassName: className, Name: name, Descriptor: descriptor}
	if c.resolvedMethods == nil {
		c.resolvedMethods = make(map[uint16]MethodRef)
	}
	c.resolvedMethods[index] = ref
	return ref, nil
}

// ResolveFieldRef resolves a FieldRef entry, memoizing the result.
func (c *Class) ResolveFieldRef(index uint16) (FieldRef, error) {
	if ref, ok := c.resolvedFields[index]; ok {
		return ref, nil
	}

	entry, err := c.Pool.Get(index)
	if err != nil {
		return FieldRef{}, fmt.Errorf("resolving field ref %d in %s: %w", index, c.Name, err)
	}
	if entry.Tag != classfile.TagFieldRef {
		return FieldRef{}, fmt.Errorf("%w: want FieldRef at %d in %s", ErrBadConstant, index, c.Name)
	}

	className, err := c.ResolveClassRef(entry.ClassIndex)
	if err != nil {
		return FieldRef{}, err
	}
	name, descriptor, err := c.Pool.NameAndTypeAt(entry.NameAndTypeIndex)
	if err != nil {
		return FieldRef{}, fmt.Errorf("resolving field ref %d in %s: %w", index, c.Name, err)
	}

	ref := FieldRef{ClassName: className, Name: name, Descriptor: descriptor}
	if c.resolvedFields == nil {
		c.resolvedFields = make(map[uint16]FieldRef)
	}
	c.resolvedFields[index] = ref
	return ref, nil
}

// ---------------------------------------------------------------------------
// Metaspace
// ---------------------------------------------------------------------------

// Metaspace maps class names to loaded class metadata. Classes are loaded
// once per name and retained for the lifetime of the run; there is no
// unloading.
type Metaspace struct {
	classes map[string]*Class
}

// NewMetaspace creates an empty metaspace.
func NewMetaspace() *Metaspace {
	return &Metaspace{classes: make(map[string]*Class)}
}

// Define materializes class metadata from a parsed class file. Defining an
// already-loaded name is a no-op returning the existing class.
func (ms *Metaspace) Define(cf *classfile.ClassFile) (*Class, error) {
	name, err := cf.ClassName()
	if err != nil {
		return nil, fmt.Errorf("loading class: %w", err)
	}
	if existing, ok := ms.classes[name]; ok {
		return existing, nil
	}

	super, err := cf.SuperClassName()
	if err != nil {
		return nil, fmt.Errorf("loading class %s: %w", name, err)
	}

	interfaces := make([]string, 0, len(cf.Interfaces))
	for _, idx := range cf.Interfaces {
		ifaceName, err := cf.ConstantPool.ClassNameAt(idx)
		if err != nil {
			return nil, fmt.Errorf("loading class %s: %w", name, err)
		}
		interfaces = append(interfaces, ifaceName)
	}

	c := &Class{
		Name:        name,
		Super:       super,
		Interfaces:  interfaces,
		AccessFlags: cf.AccessFlags,
		Pool:        cf.ConstantPool,
		Methods:     make(map[string]*Method),
		Fields:      make(map[string]*Field),
		Statics:     make(map[string]Value),
	}

	for i := range cf.Methods {
		m, err := loadMethod(cf, &cf.Methods[i])
		if err != nil {
			return nil, fmt.Errorf("loading class %s: %w", name, err)
		}
		c.Methods[memberKey(m.Name, m.Descriptor)] = m
	}

	for i := range cf.Fields {
		fieldName, err := cf.ConstantPool.Utf8(cf.Fields[i].NameIndex)
		if err != nil {
			return nil, fmt.Errorf("loading class %s: %w", name, err)
		}
		descriptor, err := cf.ConstantPool.Utf8(cf.Fields[i].DescriptorIndex)
		if err != nil {
			return nil, fmt.Errorf("loading class %s: %w", name, err)
		}
		f := &Field{Name: fieldName, Descriptor: descriptor, AccessFlags: cf.Fields[i].AccessFlags}
		c.Fields[memberKey(fieldName, descriptor)] = f
		if f.IsStatic() {
			kind, err := kindForDescriptor(descriptor)
			if err != nil {
				kind = KindRef
			}
			c.Statics[fieldName] = ZeroValue(kind)
		}
	}

	ms.classes[name] = c
	return c, nil
}

func loadMethod(cf *classfile.ClassFile, info *classfile.MemberInfo) (*Method, error) {
	name, err := cf.ConstantPool.Utf8(info.NameIndex)
	if err != nil {
		return nil, err
	}
	descriptor, err := cf.ConstantPool.Utf8(info.DescriptorIndex)
	if err != nil {
		return nil, err
	}

	m := &Method{Name: name, Descriptor: descriptor, AccessFlags: info.AccessFlags}

	// Native and abstract methods carry no bytecode.
	if info.AccessFlags&(classfile.AccNative|classfile.AccAbstract) == 0 {
		code, err := cf.Code(info)
		if err != nil {
			return nil, err
		}
		m.MaxStack = int(code.MaxStack)
		m.MaxLocals = int(code.MaxLocals)
		m.Code = code.Code
	}

	return m, nil
}

// Register inserts a prebuilt class, used when restoring from a snapshot.
// Registering an already-loaded name is a no-op.
func (ms *Metaspace) Register(c *Class) {
	if _, ok := ms.classes[c.Name]; ok {
		return
	}
	if c.Statics == nil {
		c.Statics = make(map[string]Value)
	}
	ms.classes[c.Name] = c
}

// Class returns the metadata for a loaded class.
func (ms *Metaspace) Class(name string) (*Class, error) {
	c, ok := ms.classes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrClassNotFound, name)
	}
	return c, nil
}

// Loaded reports whether a class name has been loaded.
func (ms *Metaspace) Loaded(name string) bool {
	_, ok := ms.classes[name]
	return ok
}

// Names returns the loaded class names in sorted order.
func (ms *Metaspace) Names() []string {
	names := make([]string, 0, len(ms.classes))
	for name := range ms.classes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LookupMethod finds a method starting at className and walking the
// superclass chain. The walk stops at system classes, which are handled by
// the intrinsic table rather than loaded metadata.
func (ms *Metaspace) LookupMethod(className, name, descriptor string) (*Class, *Method, error) {
	current := className
	for current != "" && !strings.HasPrefix(current, "java/") {
		c, err := ms.Class(current)
		if err != nil {
			return nil, nil, err
		}
		if m, ok := c.Methods[memberKey(name, descriptor)]; ok {
			return c, m, nil
		}
		current = c.Super
	}
	return nil, nil, fmt.Errorf("%w: %s.%s%s", ErrMethodNotFound, className, name, descriptor)
}

// staticRoots returns every heap reference held in a static field of any
// loaded class. These are designated GC roots.
func (ms *Metaspace) staticRoots() []Ref {
	var roots []Ref
	for _, c := range ms.classes {
		for _, v := range c.Statics {
			if v.Kind == KindRef && v.R != NullRef {
				roots = append(roots, v.R)
			}
		}
	}
	return roots
}
