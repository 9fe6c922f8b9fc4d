//go:build windows

// Package winapi implements debugapi.API on Windows. It leans on
// golang.org/x/sys/windows and fills the gaps with lazily bound procs.
package winapi

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"procsnap/debugapi"
)

var (
	modkernel32 = syscall.NewLazyDLL("kernel32.dll")
	modpsapi    = syscall.NewLazyDLL("psapi.dll")
	modwtsapi32 = syscall.NewLazyDLL("wtsapi32.dll")

	procSuspendThread          = modkernel32.NewProc("SuspendThread")
	procVirtualAllocEx         = modkernel32.NewProc("VirtualAllocEx")
	procVirtualFreeEx          = modkernel32.NewProc("VirtualFreeEx")
	procVirtualProtectEx       = modkernel32.NewProc("VirtualProtectEx")
	procGetMappedFileNameW     = modpsapi.NewProc("GetMappedFileNameW")
	procWTSEnumerateProcessesW = modwtsapi32.NewProc("WTSEnumerateProcessesW")
	procWTSFreeMemory          = modwtsapi32.NewProc("WTSFreeMemory")
)

const (
	userSpaceStart = debugapi.Address(0x10000)
	userSpaceEnd   = debugapi.Address(0x7FFFFFFF0000)

	stillActive = 259
)

// API is the Windows implementation of debugapi.API.
type API struct{}

// New returns the live OS implementation.
func New() *API {
	return &API{}
}

var _ debugapi.API = (*API)(nil)

// wrap ties an OS error to one of the debugapi sentinels while keeping
// the original error text.
func wrap(op string, sentinel, err error) error {
	return fmt.Errorf("%w: %s: %v", sentinel, op, err)
}

func classify(op string, err error) error {
	switch {
	case errors.Is(err, windows.ERROR_ACCESS_DENIED):
		return wrap(op, debugapi.ErrAccessDenied, err)
	case errors.Is(err, windows.ERROR_INVALID_PARAMETER):
		return wrap(op, debugapi.ErrInvalidArgument, err)
	default:
		return fmt.Errorf("%s: %v", op, err)
	}
}

func (a *API) CurrentProcessID() debugapi.ProcessID {
	return debugapi.ProcessID(windows.GetCurrentProcessId())
}

func (a *API) PageSize() uint64 {
	return uint64(os.Getpagesize())
}

func (a *API) UserAddressRange() (debugapi.Address, debugapi.Address) {
	return userSpaceStart, userSpaceEnd
}

func (a *API) OpenProcess(pid debugapi.ProcessID, rights debugapi.Rights) (debugapi.Handle, error) {
	h, err := windows.OpenProcess(uint32(rights), false, uint32(pid))
	if err != nil {
		// A dead or never-alive pid fails with ERROR_INVALID_PARAMETER.
		if errors.Is(err, windows.ERROR_INVALID_PARAMETER) {
			return debugapi.InvalidHandle, wrap("OpenProcess", debugapi.ErrNotFound, err)
		}
		return debugapi.InvalidHandle, classify("OpenProcess", err)
	}
	return debugapi.Handle(h), nil
}

func (a *API) OpenThread(tid debugapi.ThreadID, rights debugapi.Rights) (debugapi.Handle, error) {
	h, err := windows.OpenThread(uint32(rights), false, uint32(tid))
	if err != nil {
		if errors.Is(err, windows.ERROR_INVALID_PARAMETER) {
			return debugapi.InvalidHandle, wrap("OpenThread", debugapi.ErrNotFound, err)
		}
		return debugapi.InvalidHandle, classify("OpenThread", err)
	}
	return debugapi.Handle(h), nil
}

func (a *API) CloseHandle(h debugapi.Handle) error {
	if err := windows.CloseHandle(windows.Handle(h)); err != nil {
		return classify("CloseHandle", err)
	}
	return nil
}

func (a *API) QueryRegion(h debugapi.Handle, addr debugapi.Address) (debugapi.Region, error) {
	var mbi windows.MemoryBasicInformation
	err := windows.VirtualQueryEx(windows.Handle(h), uintptr(addr), &mbi, unsafe.Sizeof(mbi))
	if err != nil {
		// Past the top of the user address space the call fails with
		// ERROR_INVALID_PARAMETER; report that as a clean end of map.
		if errors.Is(err, windows.ERROR_INVALID_PARAMETER) {
			return debugapi.Region{}, wrap("VirtualQueryEx", debugapi.ErrNotFound, err)
		}
		return debugapi.Region{}, classify("VirtualQueryEx", err)
	}
	return debugapi.Region{
		Base:         debugapi.Address(mbi.BaseAddress),
		AllocBase:    debugapi.Address(mbi.AllocationBase),
		Size:         uint64(mbi.RegionSize),
		State:        debugapi.State(mbi.State),
		Protect:      debugapi.Protect(mbi.Protect),
		AllocProtect: debugapi.Protect(mbi.AllocationProtect),
		Type:         debugapi.RegionType(mbi.Type),
	}, nil
}

func (a *API) ReadMemory(h debugapi.Handle, addr debugapi.Address, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	var done uintptr
	err := windows.ReadProcessMemory(windows.Handle(h), uintptr(addr), &buf[0], uintptr(len(buf)), &done)
	if err != nil {
		return int(done), wrap("ReadProcessMemory", debugapi.ErrReadFailed, err)
	}
	return int(done), nil
}

func (a *API) WriteMemory(h debugapi.Handle, addr debugapi.Address, data []byte) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}
	var done uintptr
	err := windows.WriteProcessMemory(windows.Handle(h), uintptr(addr), &data[0], uintptr(len(data)), &done)
	if err != nil {
		return int(done), wrap("WriteProcessMemory", debugapi.ErrWriteFailed, err)
	}
	return int(done), nil
}

func (a *API) AllocRegion(h debugapi.Handle, addr debugapi.Address, size uint64, alloc debugapi.AllocType, protect debugapi.Protect) (debugapi.Address, error) {
	ret, _, err := procVirtualAllocEx.Call(
		uintptr(h),
		uintptr(addr),
		uintptr(size),
		uintptr(alloc),
		uintptr(protect),
	)
	if ret == 0 {
		return 0, classify("VirtualAllocEx", err)
	}
	return debugapi.Address(ret), nil
}

func (a *API) FreeRegion(h debugapi.Handle, addr debugapi.Address, size uint64, free debugapi.FreeType) error {
	if free&debugapi.FreeRelease != 0 {
		// MEM_RELEASE frees the whole allocation containing addr and the
		// OS rejects any explicit size.
		size = 0
	}
	ret, _, err := procVirtualFreeEx.Call(
		uintptr(h),
		uintptr(addr),
		uintptr(size),
		uintptr(free),
	)
	if ret == 0 {
		return classify("VirtualFreeEx", err)
	}
	return nil
}

func (a *API) ProtectRegion(h debugapi.Handle, addr debugapi.Address, size uint64, protect debugapi.Protect) (debugapi.Protect, error) {
	var old uint32
	ret, _, err := procVirtualProtectEx.Call(
		uintptr(h),
		uintptr(addr),
		uintptr(size),
		uintptr(protect),
		uintptr(unsafe.Pointer(&old)),
	)
	if ret == 0 {
		return 0, classify("VirtualProtectEx", err)
	}
	return debugapi.Protect(old), nil
}

func (a *API) MappedFileName(h debugapi.Handle, addr debugapi.Address) (string, error) {
	var buf [windows.MAX_LONG_PATH]uint16
	n, _, err := procGetMappedFileNameW.Call(
		uintptr(h),
		uintptr(addr),
		uintptr(unsafe.Pointer(&buf[0])),
		uintptr(len(buf)),
	)
	if n == 0 {
		return "", classify("GetMappedFileName", err)
	}
	return windows.UTF16ToString(buf[:n]), nil
}

func (a *API) ProcessImageName(h debugapi.Handle) (string, error) {
	var buf [windows.MAX_LONG_PATH]uint16
	size := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(windows.Handle(h), 0, &buf[0], &size); err != nil {
		return "", classify("QueryFullProcessImageName", err)
	}
	return windows.UTF16ToString(buf[:size]), nil
}

func (a *API) SuspendThread(h debugapi.Handle) error {
	// x/sys/windows does not bind SuspendThread; call it lazily.
	// It returns the previous suspend count, or (DWORD)-1 on failure.
	ret, _, err := procSuspendThread.Call(uintptr(h))
	if uint32(ret) == ^uint32(0) {
		return classify("SuspendThread", err)
	}
	return nil
}

func (a *API) ResumeThread(h debugapi.Handle) error {
	if _, err := windows.ResumeThread(windows.Handle(h)); err != nil {
		return classify("ResumeThread", err)
	}
	return nil
}

func (a *API) TerminateProcess(h debugapi.Handle, code uint32) error {
	if err := windows.TerminateProcess(windows.Handle(h), code); err != nil {
		return classify("TerminateProcess", err)
	}
	return nil
}

func (a *API) WaitProcess(h debugapi.Handle, timeout time.Duration) (bool, error) {
	ms := uint32(windows.INFINITE)
	if timeout >= 0 {
		ms = uint32(timeout / time.Millisecond)
	}
	ev, err := windows.WaitForSingleObject(windows.Handle(h), ms)
	if err != nil {
		return false, classify("WaitForSingleObject", err)
	}
	switch ev {
	case windows.WAIT_OBJECT_0:
		return true, nil
	case uint32(windows.WAIT_TIMEOUT):
		return false, nil
	default:
		return false, fmt.Errorf("WaitForSingleObject: unexpected wait result %#x", ev)
	}
}

func (a *API) ExitCode(h debugapi.Handle) (uint32, bool, error) {
	var code uint32
	if err := windows.GetExitCodeProcess(windows.Handle(h), &code); err != nil {
		return 0, false, classify("GetExitCodeProcess", err)
	}
	if code == stillActive {
		return 0, false, nil
	}
	return code, true, nil
}
