// Package debugapi defines the boundary to the operating system's process
// debugging and introspection facilities. The snapshot engine consumes the
// API interface; the concrete implementation lives in debugapi/winapi and
// an in-memory simulation for tests lives in debugapi/apitest.
package debugapi

import "time"

// API is the minimum OS surface the engine needs. Implementations
// translate OS errors into the sentinel errors of this package so callers
// can classify failures with errors.Is.
//
// All calls are synchronous and blocking. Implementations are not required
// to be safe for concurrent use.
type API interface {
	// CurrentProcessID returns the ID of the inspecting process itself.
	CurrentProcessID() ProcessID

	// PageSize returns the virtual memory page size.
	PageSize() uint64

	// UserAddressRange returns the inclusive lower and exclusive upper
	// bound of the user-mode address space.
	UserAddressRange() (Address, Address)

	// EnumProcessIDs lists running process IDs. Cheapest source, no
	// metadata.
	EnumProcessIDs() ([]ProcessID, error)

	// SnapshotProcesses lists processes with best-effort filenames and all
	// threads in one pass. The call either succeeds as a whole or fails as
	// a whole.
	SnapshotProcesses() ([]ProcessEntry, []ThreadEntry, error)

	// EnumSessionProcesses lists processes with filenames through the
	// session enumeration privilege path.
	EnumSessionProcesses() ([]ProcessEntry, error)

	// EnumModules lists the modules loaded in a process.
	EnumModules(pid ProcessID) ([]ModuleEntry, error)

	OpenProcess(pid ProcessID, rights Rights) (Handle, error)
	OpenThread(tid ThreadID, rights Rights) (Handle, error)
	CloseHandle(h Handle) error

	// QueryRegion returns the region containing addr. Past the end of the
	// address space it returns ErrNotFound.
	QueryRegion(h Handle, addr Address) (Region, error)

	// ReadMemory reads into buf starting at addr and returns the number of
	// bytes read, which may be short on error.
	ReadMemory(h Handle, addr Address, buf []byte) (int, error)

	// WriteMemory writes data at addr and returns the number of bytes
	// written, which may be short on error.
	WriteMemory(h Handle, addr Address, data []byte) (int, error)

	// AllocRegion reserves and/or commits memory. addr zero lets the OS
	// choose; a nonzero addr is a demand, and the returned address tells
	// the caller where the allocation actually landed.
	AllocRegion(h Handle, addr Address, size uint64, alloc AllocType, protect Protect) (Address, error)

	// FreeRegion decommits or releases memory at addr.
	FreeRegion(h Handle, addr Address, size uint64, free FreeType) error

	// ProtectRegion changes page protection and returns the previous
	// protection of the first page.
	ProtectRegion(h Handle, addr Address, size uint64, protect Protect) (Protect, error)

	// MappedFileName resolves the file backing a mapped or image region.
	MappedFileName(h Handle, addr Address) (string, error)

	// ProcessImageName returns the full path of the process's main module.
	ProcessImageName(h Handle) (string, error)

	SuspendThread(h Handle) error
	ResumeThread(h Handle) error

	// GetThreadContext reads the thread's register state.
	GetThreadContext(h Handle) (ThreadContext, error)

	// SetThreadContext overwrites the thread's control and integer
	// registers.
	SetThreadContext(h Handle, ctx ThreadContext) error

	TerminateProcess(h Handle, code uint32) error

	// WaitProcess waits for the process to terminate. A negative timeout
	// waits forever. Returns true if the process terminated, false on
	// timeout.
	WaitProcess(h Handle, timeout time.Duration) (bool, error)

	// ExitCode returns the exit code and whether the process has exited.
	ExitCode(h Handle) (uint32, bool, error)

	// StartProcess creates a new process from a command line.
	StartProcess(cmdline string, opts StartOptions) (StartedProcess, error)
}
