// Package snapshot serializes a VM's loaded class metadata to a compact
// binary image and restores it into a fresh metaspace, so a set of parsed
// classfiles can be loaded once and reused across runs.
package snapshot

import (
	"errors"
	"fmt"
	"sort"

	"github.com/fxamacker/cbor/v2"

	"github.com/kaffee-vm/kaffee/classfile"
	"github.com/kaffee-vm/kaffee/vm"
)

// Version is the image format version. Decoders reject anything else.
const Version = 1

var ErrBadImage = errors.New("malformed snapshot image")

// Canonical encoding keeps images byte-stable for identical metaspaces,
// which makes them content-addressable downstream.
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
}

// MethodImage is the serialized form of one method table entry.
type MethodImage struct {
	Name        string `cbor:"name"`
	Descriptor  string `cbor:"descriptor"`
	AccessFlags uint16 `cbor:"access_flags"`
	MaxStack    int    `cbor:"max_stack"`
	MaxLocals   int    `cbor:"max_locals"`
	Code        []byte `cbor:"code,omitempty"`
}

// FieldImage is the serialized form of one field table entry.
type FieldImage struct {
	Name        string `cbor:"name"`
	Descriptor  string `cbor:"descriptor"`
	AccessFlags uint16 `cbor:"access_flags"`
}

// ConstantImage is one constant pool entry. Unused payload fields encode
// as absent.
type ConstantImage struct {
	Tag             uint8   `cbor:"tag"`
	Utf8            string  `cbor:"utf8,omitempty"`
	Int             int32   `cbor:"int,omitempty"`
	Float           float32 `cbor:"float,omitempty"`
	Long            int64   `cbor:"long,omitempty"`
	Double          float64 `cbor:"double,omitempty"`
	NameIndex       uint16  `cbor:"name_index,omitempty"`
	DescriptorIndex uint16  `cbor:"descriptor_index,omitempty"`
	ClassIndex      uint16  `cbor:"class_index,omitempty"`
	NameAndTypeIndex uint16 `cbor:"name_and_type_index,omitempty"`
	StringIndex     uint16  `cbor:"string_index,omitempty"`
	RefKind         uint8   `cbor:"ref_kind,omitempty"`
	RefIndex        uint16  `cbor:"ref_index,omitempty"`
	BootstrapIndex  uint16  `cbor:"bootstrap_index,omitempty"`
}

// ClassImage is the serialized form of one loaded class. The resolution
// cache is deliberately absent: it rebuilds lazily after restore.
type ClassImage struct {
	Name        string          `cbor:"name"`
	Super       string          `cbor:"super,omitempty"`
	Interfaces  []string        `cbor:"interfaces,omitempty"`
	AccessFlags uint16          `cbor:"access_flags"`
	Pool        []*ConstantImage `cbor:"pool"`
	Methods     []MethodImage   `cbor:"methods"`
	Fields      []FieldImage    `cbor:"fields"`
}

// Image is a complete metaspace snapshot.
type Image struct {
	Version int          `cbor:"version"`
	Classes []ClassImage `cbor:"classes"`
}

// FromMetaspace captures every loaded class. Classes are ordered by name
// so identical metaspaces produce identical images.
func FromMetaspace(ms *vm.Metaspace) *Image {
	img := &Image{Version: Version}
	for _, name := range ms.Names() {
		c, err := ms.Class(name)
		if err != nil {
			continue
		}
		img.Classes = append(img.Classes, imageOf(c))
	}
	return img
}

func imageOf(c *vm.Class) ClassImage {
	ci := ClassImage{
		Name:        c.Name,
		Super:       c.Super,
		Interfaces:  c.Interfaces,
		AccessFlags: c.AccessFlags,
	}

	for _, entry := range c.Pool.Entries {
		ci.Pool = append(ci.Pool, constantImage(entry))
	}

	for _, key := range sortedKeys(c.Methods) {
		m := c.Methods[key]
		ci.Methods = append(ci.Methods, MethodImage{
			Name:        m.Name,
			Descriptor:  m.Descriptor,
			AccessFlags: m.AccessFlags,
			MaxStack:    m.MaxStack,
			MaxLocals:   m.MaxLocals,
			Code:        m.Code,
		})
	}
	for _, key := range sortedKeys(c.Fields) {
		f := c.Fields[key]
		ci.Fields = append(ci.Fields, FieldImage{
			Name:        f.Name,
			Descriptor:  f.Descriptor,
			AccessFlags: f.AccessFlags,
		})
	}
	return ci
}

func constantImage(entry *classfile.Constant) *ConstantImage {
	if entry == nil {
		return nil
	}
	return &ConstantImage{
		Tag:             entry.Tag,
		Utf8:            entry.Utf8,
		Int:             entry.Int,
		Float:           entry.Float,
		Long:            entry.Long,
		Double:          entry.Double,
		NameIndex:       entry.NameIndex,
		DescriptorIndex: entry.DescriptorIndex,
		ClassIndex:      entry.ClassIndex,
		NameAndTypeIndex: entry.NameAndTypeIndex,
		StringIndex:     entry.StringIndex,
		RefKind:         entry.RefKind,
		RefIndex:        entry.RefIndex,
		BootstrapIndex:  entry.BootstrapIndex,
	}
}

func constantOf(entry *ConstantImage) *classfile.Constant {
	if entry == nil {
		return nil
	}
	return &classfile.Constant{
		Tag:             entry.Tag,
		Utf8:            entry.Utf8,
		Int:             entry.Int,
		Float:           entry.Float,
		Long:            entry.Long,
		Double:          entry.Double,
		NameIndex:       entry.NameIndex,
		DescriptorIndex: entry.DescriptorIndex,
		ClassIndex:      entry.ClassIndex,
		NameAndTypeIndex: entry.NameAndTypeIndex,
		StringIndex:     entry.StringIndex,
		RefKind:         entry.RefKind,
		RefIndex:        entry.RefIndex,
		BootstrapIndex:  entry.BootstrapIndex,
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Marshal encodes the image.
func Marshal(img *Image) ([]byte, error) {
	return encMode.Marshal(img)
}

// Unmarshal decodes an image and checks its version.
func Unmarshal(data []byte) (*Image, error) {
	var img Image
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadImage, err)
	}
	if img.Version != Version {
		return nil, fmt.Errorf("%w: version %d, want %d", ErrBadImage, img.Version, Version)
	}
	return &img, nil
}

// Restore registers every class in the image into the metaspace. Statics
// start zeroed and resolution caches start empty, exactly as after a
// fresh class load.
func Restore(img *Image, ms *vm.Metaspace) error {
	for _, ci := range img.Classes {
		c, err := classOf(ci)
		if err != nil {
			return err
		}
		ms.Register(c)
	}
	return nil
}

func classOf(ci ClassImage) (*vm.Class, error) {
	if ci.Name == "" {
		return nil, fmt.Errorf("%w: class with empty name", ErrBadImage)
	}

	pool := &classfile.ConstantPool{}
	for _, entry := range ci.Pool {
		pool.Entries = append(pool.Entries, constantOf(entry))
	}

	c := &vm.Class{
		Name:        ci.Name,
		Super:       ci.Super,
		Interfaces:  ci.Interfaces,
		AccessFlags: ci.AccessFlags,
		Pool:        pool,
		Methods:     make(map[string]*vm.Method),
		Fields:      make(map[string]*vm.Field),
		Statics:     make(map[string]vm.Value),
	}

	for _, mi := range ci.Methods {
		c.Methods[mi.Name+":"+mi.Descriptor] = &vm.Method{
			Name:        mi.Name,
			Descriptor:  mi.Descriptor,
			AccessFlags: mi.AccessFlags,
			MaxStack:    mi.MaxStack,
			MaxLocals:   mi.MaxLocals,
			Code:        mi.Code,
		}
	}
	for _, fi := range ci.Fields {
		c.Fields[fi.Name+":"+fi.Descriptor] = &vm.Field{
			Name:        fi.Name,
			Descriptor:  fi.Descriptor,
			AccessFlags: fi.AccessFlags,
		}
		if fi.AccessFlags&classfile.AccStatic != 0 {
			c.Statics[fi.Name] = vm.ZeroForDescriptor(fi.Descriptor)
		}
	}
	return c, nil
}
