package debugapi

import "fmt"

// ProcessID identifies a process. IDs are assigned by the OS and may be
// reused after a process dies, so they are only stable within one scan
// generation.
type ProcessID uint32

// ThreadID identifies a thread.
type ThreadID uint32

// Address is a virtual address inside a target process.
type Address uint64

func (a Address) String() string {
	return fmt.Sprintf("0x%X", uint64(a))
}

// Handle is an OS resource granting some set of operations on a process
// or thread. A zero Handle means "no handle held".
type Handle uintptr

// InvalidHandle is the zero handle value.
const InvalidHandle Handle = 0

// Rights is an access-rights mask used when opening a handle. The values
// use the native encoding so they can be passed straight to the OS.
type Rights uint32

// Process access rights.
const (
	ProcessTerminate        Rights = 0x0001
	ProcessCreateThread     Rights = 0x0002
	ProcessVMOperation      Rights = 0x0008
	ProcessVMRead           Rights = 0x0010
	ProcessVMWrite          Rights = 0x0020
	ProcessQueryInformation Rights = 0x0400
	ProcessSuspendResume    Rights = 0x0800
	ProcessSynchronize      Rights = 0x00100000
	ProcessAllAccess        Rights = 0x1F0FFF
)

// Thread access rights.
const (
	ThreadTerminate        Rights = 0x0001
	ThreadSuspendResume    Rights = 0x0002
	ThreadGetContext       Rights = 0x0008
	ThreadSetContext       Rights = 0x0010
	ThreadQueryInformation Rights = 0x0040
	ThreadAllAccess        Rights = 0x1F03FF
)

// Superset reports whether r grants every right in min.
func (r Rights) Superset(min Rights) bool {
	return r|min == r
}

// ThreadContext is the control and integer register state of a thread on
// the 64-bit targets this module supports. Suspend the thread before
// reading it or the values may be torn.
type ThreadContext struct {
	Rax, Rbx, Rcx, Rdx uint64
	Rsi, Rdi, Rbp, Rsp uint64
	R8, R9, R10, R11   uint64
	R12, R13, R14, R15 uint64
	Rip                uint64
	EFlags             uint32
}

// State is the allocation state of a memory region.
type State uint32

const (
	MemCommit  State = 0x1000
	MemReserve State = 0x2000
	MemFree    State = 0x10000
)

// RegionType classifies the backing of a memory region. A free region
// has type zero.
type RegionType uint32

const (
	MemPrivate RegionType = 0x20000
	MemMapped  RegionType = 0x40000
	MemImage   RegionType = 0x1000000
)

// Protect is a page-protection bit set using the native PAGE_* encoding.
type Protect uint32

const (
	PageNoAccess         Protect = 0x01
	PageReadOnly         Protect = 0x02
	PageReadWrite        Protect = 0x04
	PageWriteCopy        Protect = 0x08
	PageExecute          Protect = 0x10
	PageExecuteRead      Protect = 0x20
	PageExecuteReadWrite Protect = 0x40
	PageExecuteWriteCopy Protect = 0x80
	PageGuard            Protect = 0x100
	PageNoCache          Protect = 0x200
	PageWriteCombine     Protect = 0x400
)

const (
	protectReadable = PageReadOnly | PageReadWrite | PageWriteCopy |
		PageExecuteRead | PageExecuteReadWrite | PageExecuteWriteCopy
	protectWritable    = PageReadWrite | PageWriteCopy | PageExecuteReadWrite | PageExecuteWriteCopy
	protectCopyOnWrite = PageWriteCopy | PageExecuteWriteCopy
	protectExecutable  = PageExecute | PageExecuteRead | PageExecuteReadWrite | PageExecuteWriteCopy
)

// AllocType selects the kind of allocation performed by AllocRegion.
type AllocType uint32

const (
	AllocCommit  AllocType = 0x1000
	AllocReserve AllocType = 0x2000
)

// FreeType selects how FreeRegion releases memory.
type FreeType uint32

const (
	FreeDecommit FreeType = 0x4000
	FreeRelease  FreeType = 0x8000
)

// Region describes one contiguous span of a process's virtual address
// space sharing state, protection and type. Regions returned by a single
// query pass tile the queried range without gaps or overlaps.
type Region struct {
	Base         Address
	AllocBase    Address
	Size         uint64
	State        State
	Protect      Protect
	AllocProtect Protect
	Type         RegionType
}

// End returns the first address past the region.
func (r Region) End() Address {
	return r.Base + Address(r.Size)
}

func (r Region) IsFree() bool      { return r.State == MemFree }
func (r Region) IsReserved() bool  { return r.State == MemReserve }
func (r Region) IsCommitted() bool { return r.State == MemCommit }

func (r Region) IsPrivate() bool { return r.Type == MemPrivate }
func (r Region) IsMapped() bool  { return r.Type == MemMapped }
func (r Region) IsImage() bool   { return r.Type == MemImage }

// HasContent reports whether the region holds bytes that can be captured:
// committed and neither a guard page nor inaccessible.
func (r Region) HasContent() bool {
	return r.IsCommitted() && r.Protect&(PageGuard|PageNoAccess) == 0
}

func (r Region) IsReadable() bool {
	return r.HasContent() && r.Protect&protectReadable != 0
}

func (r Region) IsWritable() bool {
	return r.HasContent() && r.Protect&protectWritable != 0
}

func (r Region) IsCopyOnWrite() bool {
	return r.HasContent() && r.Protect&protectCopyOnWrite != 0
}

func (r Region) IsExecutable() bool {
	return r.HasContent() && r.Protect&protectExecutable != 0
}

func (r Region) IsGuard() bool {
	return r.IsCommitted() && r.Protect&PageGuard != 0
}

// ProcessEntry is one process reported by an enumeration source.
type ProcessEntry struct {
	PID      ProcessID
	Filename string // best effort, may be empty or just a basename
}

// ThreadEntry is one thread reported by the snapshot source.
type ThreadEntry struct {
	TID   ThreadID
	Owner ProcessID
}

// ModuleEntry is one loaded module reported by the module source.
type ModuleEntry struct {
	Base Address
	Size uint64
	Path string
}

// TrustLevel selects the integrity the OS should start a process with.
type TrustLevel int

const (
	TrustNormal TrustLevel = iota
	TrustNone
	TrustFull
)

// StartOptions enumerates the recognized process-creation options.
type StartOptions struct {
	InheritConsole bool // share the creator's console instead of opening a new one
	AttachDebugger bool // start the process under the debugger
	FollowChildren bool // also debug child processes, requires AttachDebugger
	InheritHandles bool // child inherits the creator's inheritable handles
	StartSuspended bool // initial thread is created suspended
	ParentProcess  ProcessID
	TrustLevel     TrustLevel
	AllowElevation bool
}

// StartedProcess is returned by StartProcess with the handles the OS
// opened during creation. The handles carry full access rights.
type StartedProcess struct {
	PID           ProcessID
	TID           ThreadID
	ProcessHandle Handle
	ThreadHandle  Handle
}
