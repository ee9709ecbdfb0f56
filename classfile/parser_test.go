package classfile

import (
	"encoding/binary"
	"errors"
	"testing"
)

// classWriter assembles synthetic class files for parser tests.
type classWriter struct {
	data []byte
}

func (w *classWriter) u1(v byte)    { w.data = append(w.data, v) }
func (w *classWriter) u2(v uint16)  { w.data = binary.BigEndian.AppendUint16(w.data, v) }
func (w *classWriter) u4(v uint32)  { w.data = binary.BigEndian.AppendUint32(w.data, v) }
func (w *classWriter) raw(b []byte) { w.data = append(w.data, b...) }

func (w *classWriter) utf8(s string) {
	w.u1(TagUtf8)
	w.u2(uint16(len(s)))
	w.raw([]byte(s))
}

// testClassBytes builds a class Main with one static field, one static
// method int answer() { return 1000; }, and an Integer and a Long pool
// constant.
//
// Pool: 1 Class(2), 2 "Main", 3 "Code", 4 "answer", 5 "()I",
// 6 Integer 1000, 7 Long 1<<40 (8 is its shadow slot), 9 "n", 10 "I".
func testClassBytes() []byte {
	code := []byte{0x11, 0x03, 0xE8, 0xAC} // sipush 1000; ireturn

	var w classWriter
	w.u4(Magic)
	w.u2(0)  // minor
	w.u2(52) // major: Java 8

	w.u2(11) // pool count (highest index + 1, counting the long's shadow)
	w.u1(TagClass)
	w.u2(2)
	w.utf8("Main")
	w.utf8("Code")
	w.utf8("answer")
	w.utf8("()I")
	w.u1(TagInteger)
	w.u4(1000)
	w.u1(TagLong)
	w.u4(1 << 8) // high word
	w.u4(0)      // low word
	w.utf8("n")
	w.utf8("I")

	w.u2(AccPublic | AccSuper)
	w.u2(1) // this: Main
	w.u2(0) // super: none recorded
	w.u2(0) // interfaces

	w.u2(1) // fields
	w.u2(AccStatic)
	w.u2(9)  // "n"
	w.u2(10) // "I"
	w.u2(0)  // attributes

	w.u2(1) // methods
	w.u2(AccPublic | AccStatic)
	w.u2(4) // "answer"
	w.u2(5) // "()I"
	w.u2(1) // attributes
	w.u2(3) // "Code"
	w.u4(uint32(12 + len(code)))
	w.u2(2) // max_stack
	w.u2(0) // max_locals
	w.u4(uint32(len(code)))
	w.raw(code)
	w.u2(0) // exception table
	w.u2(0) // code attributes

	w.u2(0) // class attributes
	return w.data
}

func TestParse(t *testing.T) {
	cf, err := Parse(testClassBytes())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	name, err := cf.ClassName()
	if err != nil {
		t.Fatalf("ClassName: %v", err)
	}
	if name != "Main" {
		t.Errorf("ClassName = %q, want Main", name)
	}

	super, err := cf.SuperClassName()
	if err != nil {
		t.Fatalf("SuperClassName: %v", err)
	}
	if super != "java/lang/Object" {
		t.Errorf("SuperClassName = %q, want java/lang/Object for index 0", super)
	}

	if cf.MajorVersion != 52 {
		t.Errorf("MajorVersion = %d, want 52", cf.MajorVersion)
	}
	if v := cf.JavaVersion(); v != "Java 8" {
		t.Errorf("JavaVersion = %q, want Java 8", v)
	}

	if len(cf.Fields) != 1 || len(cf.Methods) != 1 {
		t.Fatalf("got %d fields, %d methods, want 1 and 1", len(cf.Fields), len(cf.Methods))
	}

	code, err := cf.Code(&cf.Methods[0])
	if err != nil {
		t.Fatalf("Code: %v", err)
	}
	if code.MaxStack != 2 || code.MaxLocals != 0 {
		t.Errorf("frame sizing = (%d, %d), want (2, 0)", code.MaxStack, code.MaxLocals)
	}
	if len(code.Code) != 4 || code.Code[0] != 0x11 {
		t.Errorf("code = % X, want the sipush/ireturn sequence", code.Code)
	}
}

func TestParseConstants(t *testing.T) {
	cf, err := Parse(testClassBytes())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	pool := cf.ConstantPool

	entry, err := pool.Get(6)
	if err != nil {
		t.Fatalf("Get(6): %v", err)
	}
	if entry.Tag != TagInteger || entry.Int != 1000 {
		t.Errorf("entry 6 = %+v, want Integer 1000", entry)
	}

	entry, err = pool.Get(7)
	if err != nil {
		t.Fatalf("Get(7): %v", err)
	}
	if entry.Tag != TagLong || entry.Long != 1<<40 {
		t.Errorf("entry 7 = %+v, want Long %d", entry, int64(1)<<40)
	}

	// The slot after a Long is unusable.
	if _, err := pool.Get(8); err == nil {
		t.Error("Get(8) succeeded, want error for a long shadow slot")
	}
}

func TestParseBadMagic(t *testing.T) {
	data := testClassBytes()
	data[0] = 0xDE
	if _, err := Parse(data); !errors.Is(err, ErrBadMagic) {
		t.Fatalf("err = %v, want ErrBadMagic", err)
	}
}

func TestParseTruncated(t *testing.T) {
	data := testClassBytes()
	// Cutting the file anywhere must produce ErrTruncated, never a panic.
	for n := 0; n < len(data); n += 7 {
		if _, err := Parse(data[:n]); err == nil {
			t.Errorf("Parse of %d-byte prefix succeeded", n)
		} else if n >= 4 && !errors.Is(err, ErrTruncated) {
			t.Errorf("Parse of %d-byte prefix = %v, want ErrTruncated", n, err)
		}
	}
}

func TestParseUnknownTag(t *testing.T) {
	var w classWriter
	w.u4(Magic)
	w.u2(0)
	w.u2(52)
	w.u2(2)
	w.u1(99) // not a constant pool tag
	if _, err := Parse(w.data); !errors.Is(err, ErrBadConstantTag) {
		t.Fatalf("err = %v, want ErrBadConstantTag", err)
	}
}

func TestParseCodeAttributeTruncated(t *testing.T) {
	if _, err := ParseCodeAttribute([]byte{0, 2, 0, 1}); !errors.Is(err, ErrTruncated) {
		t.Errorf("short header = %v, want ErrTruncated", err)
	}
	// Header claims more code than the payload carries.
	payload := []byte{0, 2, 0, 1, 0, 0, 0, 99, 0xAC}
	if _, err := ParseCodeAttribute(payload); !errors.Is(err, ErrTruncated) {
		t.Errorf("short body = %v, want ErrTruncated", err)
	}
}
