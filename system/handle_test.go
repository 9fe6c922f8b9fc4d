package system

import (
	"errors"
	"testing"

	"procsnap/debugapi"
	"procsnap/debugapi/apitest"
)

func newTestSystem(t *testing.T) (*apitest.OS, *System) {
	t.Helper()
	os := apitest.New(100)
	return os, New(os)
}

func TestHandleReuseWhenRightsSuffice(t *testing.T) {
	os, _ := newTestSystem(t)
	os.AddTarget(200, "target.exe", `C:\bin\target.exe`)
	p := newProcess(os, 200, "")

	h1, err := p.handle.Get(debugapi.ProcessVMRead)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	h2, err := p.handle.Get(debugapi.ProcessVMRead)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if h1 != h2 {
		t.Errorf("Expected the same handle on repeated Get, got %#x and %#x", uintptr(h1), uintptr(h2))
	}
	if os.Opens != 1 {
		t.Errorf("Expected 1 open, got %d", os.Opens)
	}

	// A subset of the held rights must also reuse the handle.
	h3, err := p.handle.Get(0)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if h3 != h1 {
		t.Errorf("Expected handle reuse for subset rights")
	}
	if os.Opens != 1 || os.Closes != 0 {
		t.Errorf("Expected no extra opens or closes, got opens=%d closes=%d", os.Opens, os.Closes)
	}
}

func TestHandleRightsGrowMonotonically(t *testing.T) {
	os, _ := newTestSystem(t)
	os.AddTarget(200, "target.exe", `C:\bin\target.exe`)
	p := newProcess(os, 200, "")

	if _, err := p.handle.Get(debugapi.ProcessVMRead); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if _, err := p.handle.Get(debugapi.ProcessVMWrite); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	// The second Get must reopen with the union of rights and close the
	// old handle, exactly one extra open/close pair.
	if os.Opens != 2 {
		t.Errorf("Expected 2 opens, got %d", os.Opens)
	}
	if os.Closes != 1 {
		t.Errorf("Expected 1 close, got %d", os.Closes)
	}
	want := debugapi.ProcessVMRead | debugapi.ProcessVMWrite
	if !p.handle.Rights().Superset(want) {
		t.Errorf("Expected merged rights %#x, got %#x", uint32(want), uint32(p.handle.Rights()))
	}

	// Both original rights are now covered without reopening.
	if _, err := p.handle.Get(debugapi.ProcessVMRead); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if os.Opens != 2 {
		t.Errorf("Expected no reopen for covered rights, got %d opens", os.Opens)
	}
}

func TestHandleOpenFailureKeepsOldHandle(t *testing.T) {
	os, _ := newTestSystem(t)
	os.AddTarget(200, "target.exe", `C:\bin\target.exe`)
	p := newProcess(os, 200, "")

	h1, err := p.handle.Get(debugapi.ProcessVMRead)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	os.DenyOpen[200] = true
	if _, err := p.handle.Get(debugapi.ProcessVMWrite); !errors.Is(err, debugapi.ErrAccessDenied) {
		t.Fatalf("Expected ErrAccessDenied, got %v", err)
	}

	// The old handle must survive the failed upgrade.
	if !p.handle.Held() {
		t.Fatalf("Expected the old handle to still be held")
	}
	h2, err := p.handle.Get(debugapi.ProcessVMRead)
	if err != nil {
		t.Fatalf("Get with original rights failed: %v", err)
	}
	if h2 != h1 {
		t.Errorf("Expected the original handle, got a different one")
	}
}

func TestHandleCloseIdempotent(t *testing.T) {
	os, _ := newTestSystem(t)
	os.AddTarget(200, "target.exe", `C:\bin\target.exe`)
	p := newProcess(os, 200, "")

	if _, err := p.handle.Get(debugapi.ProcessVMRead); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	p.handle.Close()
	p.handle.Close()
	if os.Closes != 1 {
		t.Errorf("Expected exactly 1 close, got %d", os.Closes)
	}
	if p.handle.Held() {
		t.Errorf("Expected no handle held after Close")
	}
	if p.handle.Rights() != 0 {
		t.Errorf("Expected rights reset after Close, got %#x", uint32(p.handle.Rights()))
	}
}

func TestHandleAdoptReplacesHeldHandle(t *testing.T) {
	os, _ := newTestSystem(t)
	os.AddTarget(200, "target.exe", `C:\bin\target.exe`)
	p := newProcess(os, 200, "")

	if _, err := p.handle.Get(debugapi.ProcessVMRead); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	adopted, err := os.OpenProcess(200, debugapi.ProcessAllAccess)
	if err != nil {
		t.Fatalf("OpenProcess failed: %v", err)
	}
	p.handle.Adopt(adopted, debugapi.ProcessAllAccess)

	if os.Closes != 1 {
		t.Errorf("Expected the previous handle to be closed, got %d closes", os.Closes)
	}
	h, err := p.handle.Get(debugapi.ProcessVMWrite)
	if err != nil {
		t.Fatalf("Get after Adopt failed: %v", err)
	}
	if h != adopted {
		t.Errorf("Expected the adopted handle to cover the request")
	}
}
