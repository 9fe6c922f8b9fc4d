package system

import (
	"testing"

	"procsnap/debugapi"
)

func TestMemoryMapTilesRange(t *testing.T) {
	os, _ := newTestSystem(t)
	tgt := os.AddTarget(200, "target.exe", `C:\bin\target.exe`)
	tgt.Commit(0x20000, 0x3000, debugapi.PageReadWrite, debugapi.MemPrivate)
	tgt.Reserve(0x30000, 0x2000, debugapi.PageReadWrite)
	tgt.Commit(0x40000, 0x1000, debugapi.PageReadOnly, debugapi.MemPrivate)
	p := newProcess(os, 200, "")

	regions, err := p.MemoryMap(0, 0)
	if err != nil {
		t.Fatalf("MemoryMap failed: %v", err)
	}
	if len(regions) == 0 {
		t.Fatalf("Expected regions, got none")
	}

	lo, hi := os.UserAddressRange()
	if regions[0].Base != lo {
		t.Errorf("Expected first region at %s, got %s", lo, regions[0].Base)
	}
	cursor := lo
	for i, r := range regions {
		if r.Base != cursor {
			t.Errorf("Region %d: expected base %s, got %s (gap or overlap)", i, cursor, r.Base)
		}
		if r.Size == 0 {
			t.Errorf("Region %d: zero size", i)
		}
		cursor = r.End()
	}
	if cursor != hi {
		t.Errorf("Expected the walk to end at %s, got %s", hi, cursor)
	}
}

func TestMemoryMapHonorsBounds(t *testing.T) {
	os, _ := newTestSystem(t)
	tgt := os.AddTarget(200, "target.exe", `C:\bin\target.exe`)
	tgt.Commit(0x20000, 0x3000, debugapi.PageReadWrite, debugapi.MemPrivate)
	tgt.Commit(0x40000, 0x2000, debugapi.PageReadWrite, debugapi.MemPrivate)
	p := newProcess(os, 200, "")

	regions, err := p.MemoryMap(0x20000, 0x23000)
	if err != nil {
		t.Fatalf("MemoryMap failed: %v", err)
	}
	for _, r := range regions {
		if r.End() <= 0x20000 || r.Base >= 0x23000 {
			t.Errorf("Region %s+%#x is outside the requested range", r.Base, r.Size)
		}
	}
}

func TestMemoryMapAlignsUnalignedBounds(t *testing.T) {
	os, _ := newTestSystem(t)
	tgt := os.AddTarget(200, "target.exe", `C:\bin\target.exe`)
	tgt.Commit(0x20000, 0x3000, debugapi.PageReadWrite, debugapi.MemPrivate)
	p := newProcess(os, 200, "")

	// 0x20123..0x21777 must widen to 0x20000..0x22000.
	walker := p.IterMemoryMap(0x20123, 0x21777)
	r, ok := walker.Next()
	if !ok {
		t.Fatalf("Expected at least one region: %v", walker.Err())
	}
	if r.Base != 0x20000 {
		t.Errorf("Expected the walk to start at the page floor 0x20000, got %s", r.Base)
	}
}

// loopingAPI reports the same region forever, the failure mode of a
// buggy or hostile query source.
type loopingAPI struct {
	debugapi.API
}

func (a *loopingAPI) QueryRegion(h debugapi.Handle, addr debugapi.Address) (debugapi.Region, error) {
	return debugapi.Region{
		Base:  0x20000,
		Size:  0x1000,
		State: debugapi.MemCommit,
	}, nil
}

func TestRegionWalkTerminatesOnNonIncreasingCursor(t *testing.T) {
	os, _ := newTestSystem(t)
	os.AddTarget(200, "target.exe", `C:\bin\target.exe`)
	p := newProcess(&loopingAPI{API: os}, 200, "")

	count := 0
	walker := p.IterMemoryMap(0, 0)
	for {
		_, ok := walker.Next()
		if !ok {
			break
		}
		count++
		if count > 10 {
			t.Fatalf("Walk did not terminate on a non-increasing cursor")
		}
	}
	if err := walker.Err(); err != nil {
		t.Errorf("Expected clean termination, got %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 regions before the guard fired, got %d", count)
	}
}
