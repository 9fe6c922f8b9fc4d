package system

import (
	"math"
	"testing"

	"procsnap/debugapi"
)

func TestTypedReadWriteRoundTrip(t *testing.T) {
	_, tgt, p := newMemoryTarget(t)
	tgt.Commit(0x20000, 0x1000, debugapi.PageReadWrite, debugapi.MemPrivate)

	if err := p.WriteUint16(0x20000, 0xBEEF); err != nil {
		t.Fatalf("WriteUint16 failed: %v", err)
	}
	if v, err := p.ReadUint16(0x20000); err != nil || v != 0xBEEF {
		t.Errorf("ReadUint16 = %#x, %v", v, err)
	}

	if err := p.WriteUint32(0x20010, 0xDEADBEEF); err != nil {
		t.Fatalf("WriteUint32 failed: %v", err)
	}
	if v, err := p.ReadUint32(0x20010); err != nil || v != 0xDEADBEEF {
		t.Errorf("ReadUint32 = %#x, %v", v, err)
	}

	if err := p.WriteUint64(0x20020, 0x1122334455667788); err != nil {
		t.Fatalf("WriteUint64 failed: %v", err)
	}
	if v, err := p.ReadUint64(0x20020); err != nil || v != 0x1122334455667788 {
		t.Errorf("ReadUint64 = %#x, %v", v, err)
	}

	if err := p.WriteFloat64(0x20030, math.Pi); err != nil {
		t.Fatalf("WriteFloat64 failed: %v", err)
	}
	if v, err := p.ReadFloat64(0x20030); err != nil || v != math.Pi {
		t.Errorf("ReadFloat64 = %v, %v", v, err)
	}

	if err := p.WritePointer(0x20040, 0x7FFE0000); err != nil {
		t.Fatalf("WritePointer failed: %v", err)
	}
	if v, err := p.ReadPointer(0x20040); err != nil || v != 0x7FFE0000 {
		t.Errorf("ReadPointer = %s, %v", v, err)
	}
}

func TestTypedReadsUseLittleEndian(t *testing.T) {
	_, tgt, p := newMemoryTarget(t)
	tgt.Commit(0x20000, 0x1000, debugapi.PageReadWrite, debugapi.MemPrivate)
	tgt.SetContent(0x20000, []byte{0x78, 0x56, 0x34, 0x12})

	v, err := p.ReadUint32(0x20000)
	if err != nil {
		t.Fatalf("ReadUint32 failed: %v", err)
	}
	if v != 0x12345678 {
		t.Errorf("Expected 0x12345678, got %#x", v)
	}
}

func TestPeekTypedZeroOnUnreadable(t *testing.T) {
	_, _, p := newMemoryTarget(t)

	// Free memory peeks as zero, never as an error.
	if v := p.PeekUint32(0x20000); v != 0 {
		t.Errorf("Expected 0 from unreadable memory, got %#x", v)
	}
	if v := p.PeekPointer(0x20000); v != 0 {
		t.Errorf("Expected 0 pointer from unreadable memory, got %s", v)
	}
}

func TestPeekTypedPadsShortRead(t *testing.T) {
	_, tgt, p := newMemoryTarget(t)
	// Only 4 of the 8 requested bytes are readable before free space.
	tgt.Commit(0x20000, 0x1000, debugapi.PageReadWrite, debugapi.MemPrivate)
	tgt.SetContent(0x20FFC, []byte{0x01, 0x02, 0x03, 0x04})

	v := p.PeekUint64(0x20FFC)
	if v != 0x04030201 {
		t.Errorf("Expected the low bytes preserved and the rest zero, got %#x", v)
	}
}

func TestPokePointer(t *testing.T) {
	_, tgt, p := newMemoryTarget(t)
	tgt.Commit(0x20000, 0x1000, debugapi.PageReadOnly, debugapi.MemPrivate)

	n, err := p.PokePointer(0x20000, 0xCAFEBABE)
	if err != nil {
		t.Fatalf("PokePointer failed: %v", err)
	}
	if n != 8 {
		t.Errorf("Expected 8 bytes written, got %d", n)
	}
	if v, err := p.ReadUint64(0x20000); err != nil || v != 0xCAFEBABE {
		t.Errorf("ReadUint64 = %#x, %v", v, err)
	}
}
