package system

import (
	"bytes"
	"errors"
	"testing"

	"procsnap/debugapi"
	"procsnap/debugapi/apitest"
)

func newMemoryTarget(t *testing.T) (*apitest.OS, *apitest.Target, *Process) {
	t.Helper()
	os := apitest.New(100)
	tgt := os.AddTarget(200, "target.exe", `C:\bin\target.exe`)
	return os, tgt, newProcess(os, 200, "")
}

func TestReadExact(t *testing.T) {
	_, tgt, p := newMemoryTarget(t)
	tgt.Commit(0x20000, 0x1000, debugapi.PageReadWrite, debugapi.MemPrivate)
	tgt.SetContent(0x20100, []byte{0xDE, 0xAD, 0xBE, 0xEF})

	data, err := p.Read(0x20100, 4)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !bytes.Equal(data, []byte{0xDE, 0xAD, 0xBE, 0xEF}) {
		t.Errorf("Read returned %x", data)
	}
}

func TestReadZeroBytesRejected(t *testing.T) {
	_, tgt, p := newMemoryTarget(t)
	tgt.Commit(0x20000, 0x1000, debugapi.PageReadWrite, debugapi.MemPrivate)

	if _, err := p.Read(0x20000, 0); !errors.Is(err, debugapi.ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument, got %v", err)
	}
}

func TestReadAcrossUnreadableMemoryFails(t *testing.T) {
	_, tgt, p := newMemoryTarget(t)
	// Committed page, then a gap, then another committed page.
	tgt.Commit(0x20000, 0x1000, debugapi.PageReadWrite, debugapi.MemPrivate)
	tgt.Commit(0x22000, 0x1000, debugapi.PageReadWrite, debugapi.MemPrivate)

	if _, err := p.Read(0x20800, 0x2000); !errors.Is(err, debugapi.ErrInvalidAddress) {
		t.Errorf("Expected ErrInvalidAddress for a read across free space, got %v", err)
	}
}

func TestPeekTruncatesAtGuardPage(t *testing.T) {
	_, tgt, p := newMemoryTarget(t)
	tgt.Commit(0x20000, 0x1000, debugapi.PageReadWrite, debugapi.MemPrivate)
	tgt.Commit(0x21000, 0x1000, debugapi.PageReadWrite|debugapi.PageGuard, debugapi.MemPrivate)
	tgt.SetContent(0x20F00, bytes.Repeat([]byte{0xAA}, 0x100))

	// The guard page caps the result exactly at its base.
	data, err := p.Peek(0x20F00, 0x200)
	if err != nil {
		t.Fatalf("Peek failed: %v", err)
	}
	if len(data) != 0x100 {
		t.Fatalf("Expected 0x100 bytes up to the guard page, got %#x", len(data))
	}
	if !bytes.Equal(data, bytes.Repeat([]byte{0xAA}, 0x100)) {
		t.Errorf("Peek returned wrong bytes")
	}
}

func TestPeekUnreadableStartIsEmpty(t *testing.T) {
	_, tgt, p := newMemoryTarget(t)
	tgt.Reserve(0x20000, 0x1000, debugapi.PageReadWrite)

	data, err := p.Peek(0x20000, 0x100)
	if err != nil {
		t.Fatalf("Peek failed: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("Expected empty result from reserved memory, got %d bytes", len(data))
	}
}

func TestPokeReprotectsReadOnlyRegion(t *testing.T) {
	_, tgt, p := newMemoryTarget(t)
	tgt.Commit(0x20000, 0x1000, debugapi.PageReadOnly, debugapi.MemPrivate)

	n, err := p.Poke(0x20010, []byte{1, 2, 3})
	if err != nil {
		t.Fatalf("Poke failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Expected 3 bytes written, got %d", n)
	}

	got, ok := tgt.ContentAt(0x20010, 3)
	if !ok || !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Errorf("Memory not written: %x", got)
	}

	// The original protection must be back in place.
	r, ok := tgt.RegionAt(0x20010)
	if !ok {
		t.Fatalf("RegionAt failed")
	}
	if r.Protect != debugapi.PageReadOnly {
		t.Errorf("Expected protection restored to PageReadOnly, got %#x", uint32(r.Protect))
	}
}

func TestPokeExecutableRegionUsesExecuteReadWrite(t *testing.T) {
	_, tgt, p := newMemoryTarget(t)
	tgt.Commit(0x20000, 0x1000, debugapi.PageExecuteRead, debugapi.MemPrivate)

	if _, err := p.Poke(0x20000, []byte{0x90}); err != nil {
		t.Fatalf("Poke failed: %v", err)
	}
	r, _ := tgt.RegionAt(0x20000)
	if r.Protect != debugapi.PageExecuteRead {
		t.Errorf("Expected protection restored to PageExecuteRead, got %#x", uint32(r.Protect))
	}
}

func TestPokeFreeMemoryFails(t *testing.T) {
	_, _, p := newMemoryTarget(t)

	if _, err := p.Poke(0x20000, []byte{1}); !errors.Is(err, debugapi.ErrInvalidAddress) {
		t.Errorf("Expected ErrInvalidAddress, got %v", err)
	}
}

func TestWriteRoundTrip(t *testing.T) {
	_, tgt, p := newMemoryTarget(t)
	tgt.Commit(0x20000, 0x1000, debugapi.PageReadWrite, debugapi.MemPrivate)

	payload := []byte("hello, target")
	if err := p.Write(0x20040, payload); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	data, err := p.Read(0x20040, uint64(len(payload)))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Errorf("Round trip mismatch: %q", data)
	}
}

func TestMallocFreeCycle(t *testing.T) {
	_, tgt, p := newMemoryTarget(t)

	addr, err := p.Malloc(0x2000, 0)
	if err != nil {
		t.Fatalf("Malloc failed: %v", err)
	}
	r, ok := tgt.RegionAt(addr)
	if !ok || !r.IsCommitted() {
		t.Fatalf("Expected a committed region at %s", addr)
	}
	if r.Protect != debugapi.PageExecuteReadWrite {
		t.Errorf("Expected PageExecuteReadWrite, got %#x", uint32(r.Protect))
	}

	if err := p.Free(addr); err != nil {
		t.Fatalf("Free failed: %v", err)
	}
	r, ok = tgt.RegionAt(addr)
	if !ok || !r.IsFree() {
		t.Errorf("Expected free memory at %s after Free", addr)
	}
}

func TestMProtectReturnsPrevious(t *testing.T) {
	_, tgt, p := newMemoryTarget(t)
	tgt.Commit(0x20000, 0x1000, debugapi.PageReadOnly, debugapi.MemPrivate)

	old, err := p.MProtect(0x20000, 0x1000, debugapi.PageReadWrite)
	if err != nil {
		t.Fatalf("MProtect failed: %v", err)
	}
	if old != debugapi.PageReadOnly {
		t.Errorf("Expected previous protection PageReadOnly, got %#x", uint32(old))
	}
	r, _ := tgt.RegionAt(0x20000)
	if r.Protect != debugapi.PageReadWrite {
		t.Errorf("Expected PageReadWrite applied, got %#x", uint32(r.Protect))
	}
}

func TestReadExecuteOnlyRegion(t *testing.T) {
	_, tgt, p := newMemoryTarget(t)
	tgt.Commit(0x20000, 0x1000, debugapi.PageExecute, debugapi.MemPrivate)
	tgt.SetContent(0x20000, []byte{0xCC, 0xCC, 0xC3})

	// The OS read call does not require read permission bits, so an
	// execute-only page reads like any other committed page.
	data, err := p.Read(0x20000, 3)
	if err != nil {
		t.Fatalf("Read of execute-only region failed: %v", err)
	}
	if !bytes.Equal(data, []byte{0xCC, 0xCC, 0xC3}) {
		t.Errorf("Expected code bytes, got %v", data)
	}

	// Peek still treats it as unreadable and truncates to nothing.
	data, err = p.Peek(0x20000, 3)
	if err != nil {
		t.Fatalf("Peek failed: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("Expected an empty peek, got %d bytes", len(data))
	}
}
