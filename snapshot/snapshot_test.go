package snapshot

import (
	"bytes"
	"errors"
	"testing"

	"github.com/kaffee-vm/kaffee/classfile"
	"github.com/kaffee-vm/kaffee/vm"
)

// calcClass builds a class with a runnable static method and a pool entry
// the method resolves at execution time.
func calcClass() *vm.Class {
	// Pool: 1 MethodRef(2,4), 2 Class(3), 3 "Calc", 4 NameAndType(5,6),
	// 5 "sum", 6 "(I)I".
	pool := &classfile.ConstantPool{Entries: []*classfile.Constant{
		nil,
		{Tag: classfile.TagMethodRef, ClassIndex: 2, NameAndTypeIndex: 4},
		{Tag: classfile.TagClass, NameIndex: 3},
		{Tag: classfile.TagUtf8, Utf8: "Calc"},
		{Tag: classfile.TagNameAndType, NameIndex: 5, DescriptorIndex: 6},
		{Tag: classfile.TagUtf8, Utf8: "sum"},
		{Tag: classfile.TagUtf8, Utf8: "(I)I"},
	}}

	// static int sum(int n) { return n == 0 ? 0 : n + sum(n - 1); }
	code := []byte{
		0x1A,             // iload_0
		0x9A, 0x00, 0x05, // ifne +5
		0x03, 0xAC, // iconst_0; ireturn
		0x1A,             // iload_0
		0x1A, 0x04, 0x64, // iload_0; iconst_1; isub
		0xB8, 0x00, 0x01, // invokestatic #1
		0x60, 0xAC, // iadd; ireturn
	}

	return &vm.Class{
		Name:  "Calc",
		Super: "java/lang/Object",
		Pool:  pool,
		Methods: map[string]*vm.Method{
			"sum:(I)I": {
				Name:        "sum",
				Descriptor:  "(I)I",
				AccessFlags: classfile.AccStatic,
				MaxStack:    3,
				MaxLocals:   1,
				Code:        code,
			},
		},
		Fields: map[string]*vm.Field{
			"total:I": {Name: "total", Descriptor: "I", AccessFlags: classfile.AccStatic},
		},
		Statics: map[string]vm.Value{"total": vm.IntValue(0)},
	}
}

func TestRoundTrip(t *testing.T) {
	source := vm.NewMetaspace()
	source.Register(calcClass())

	img := FromMetaspace(source)
	if len(img.Classes) != 1 {
		t.Fatalf("image holds %d classes, want 1", len(img.Classes))
	}

	data, err := Marshal(img)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	decoded, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	restored := vm.NewMetaspace()
	if err := Restore(decoded, restored); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	c, err := restored.Class("Calc")
	if err != nil {
		t.Fatalf("restored metaspace: %v", err)
	}
	if c.Super != "java/lang/Object" {
		t.Errorf("Super = %q", c.Super)
	}
	m, err := c.Method("sum", "(I)I")
	if err != nil {
		t.Fatalf("Method: %v", err)
	}
	if m.MaxStack != 3 || m.MaxLocals != 1 {
		t.Errorf("frame sizing = (%d, %d), want (3, 1)", m.MaxStack, m.MaxLocals)
	}

	// Statics restore zeroed with the declared kind.
	v, ok := c.Statics["total"]
	if !ok {
		t.Fatal("static total missing after restore")
	}
	if v.Kind != vm.KindInt || v.I != 0 {
		t.Errorf("restored static = %v, want int 0", v)
	}
}

func TestRestoredClassRuns(t *testing.T) {
	source := vm.NewMetaspace()
	source.Register(calcClass())

	data, err := Marshal(FromMetaspace(source))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	img, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	machine := vm.New()
	if err := Restore(img, machine.Metaspace()); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	result, hasResult, err := machine.Run("Calc", "sum", "(I)I", vm.IntValue(5))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !hasResult || result.I != 15 {
		t.Fatalf("sum(5) = %v (hasResult=%v), want 15", result, hasResult)
	}
}

func TestDeterministicEncoding(t *testing.T) {
	build := func() []byte {
		ms := vm.NewMetaspace()
		ms.Register(calcClass())
		data, err := Marshal(FromMetaspace(ms))
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		return data
	}
	if !bytes.Equal(build(), build()) {
		t.Error("identical metaspaces produced different images")
	}
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	if _, err := Unmarshal([]byte("not cbor at all")); !errors.Is(err, ErrBadImage) {
		t.Errorf("err = %v, want ErrBadImage", err)
	}
}

func TestUnmarshalRejectsWrongVersion(t *testing.T) {
	data, err := Marshal(&Image{Version: Version + 1})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if _, err := Unmarshal(data); !errors.Is(err, ErrBadImage) {
		t.Errorf("err = %v, want ErrBadImage", err)
	}
}
