//go:build windows

package winapi

import (
	"unsafe"

	"procsnap/debugapi"
)

var (
	procGetThreadContext = modkernel32.NewProc("GetThreadContext")
	procSetThreadContext = modkernel32.NewProc("SetThreadContext")
)

const (
	contextAMD64   = 0x100000
	contextControl = contextAMD64 | 0x1
	contextInteger = contextAMD64 | 0x2
)

type m128a struct {
	Low  uint64
	High int64
}

// context mirrors the native CONTEXT record for 64-bit targets. Only the
// control and integer portions are consumed; the rest exists so the OS
// writes into correctly sized memory.
type context struct {
	P1Home uint64
	P2Home uint64
	P3Home uint64
	P4Home uint64
	P5Home uint64
	P6Home uint64

	ContextFlags uint32
	MxCsr        uint32

	SegCs  uint16
	SegDs  uint16
	SegEs  uint16
	SegFs  uint16
	SegGs  uint16
	SegSs  uint16
	EFlags uint32

	Dr0 uint64
	Dr1 uint64
	Dr2 uint64
	Dr3 uint64
	Dr6 uint64
	Dr7 uint64

	Rax uint64
	Rcx uint64
	Rdx uint64
	Rbx uint64
	Rsp uint64
	Rbp uint64
	Rsi uint64
	Rdi uint64
	R8  uint64
	R9  uint64
	R10 uint64
	R11 uint64
	R12 uint64
	R13 uint64
	R14 uint64
	R15 uint64

	Rip uint64

	FltSave [512]byte

	VectorRegister [26]m128a
	VectorControl  uint64

	DebugControl         uint64
	LastBranchToRip      uint64
	LastBranchFromRip    uint64
	LastExceptionToRip   uint64
	LastExceptionFromRip uint64
}

// newContext allocates a CONTEXT record on the 16-byte boundary the OS
// requires, which Go's allocator does not guarantee for structs.
func newContext() *context {
	var c *context
	buf := make([]byte, unsafe.Sizeof(*c)+15)
	return (*context)(unsafe.Pointer((uintptr(unsafe.Pointer(&buf[0])) + 15) &^ 15))
}

func (a *API) GetThreadContext(h debugapi.Handle) (debugapi.ThreadContext, error) {
	c := newContext()
	c.ContextFlags = contextControl | contextInteger
	ret, _, err := procGetThreadContext.Call(uintptr(h), uintptr(unsafe.Pointer(c)))
	if ret == 0 {
		return debugapi.ThreadContext{}, classify("GetThreadContext", err)
	}
	return debugapi.ThreadContext{
		Rax: c.Rax, Rbx: c.Rbx, Rcx: c.Rcx, Rdx: c.Rdx,
		Rsi: c.Rsi, Rdi: c.Rdi, Rbp: c.Rbp, Rsp: c.Rsp,
		R8: c.R8, R9: c.R9, R10: c.R10, R11: c.R11,
		R12: c.R12, R13: c.R13, R14: c.R14, R15: c.R15,
		Rip:    c.Rip,
		EFlags: c.EFlags,
	}, nil
}

// SetThreadContext fetches the current record first so the segment,
// debug and floating-point state pass through untouched.
func (a *API) SetThreadContext(h debugapi.Handle, ctx debugapi.ThreadContext) error {
	c := newContext()
	c.ContextFlags = contextControl | contextInteger
	ret, _, err := procGetThreadContext.Call(uintptr(h), uintptr(unsafe.Pointer(c)))
	if ret == 0 {
		return classify("GetThreadContext", err)
	}

	c.Rax, c.Rbx, c.Rcx, c.Rdx = ctx.Rax, ctx.Rbx, ctx.Rcx, ctx.Rdx
	c.Rsi, c.Rdi, c.Rbp, c.Rsp = ctx.Rsi, ctx.Rdi, ctx.Rbp, ctx.Rsp
	c.R8, c.R9, c.R10, c.R11 = ctx.R8, ctx.R9, ctx.R10, ctx.R11
	c.R12, c.R13, c.R14, c.R15 = ctx.R12, ctx.R13, ctx.R14, ctx.R15
	c.Rip = ctx.Rip
	c.EFlags = ctx.EFlags

	ret, _, err = procSetThreadContext.Call(uintptr(h), uintptr(unsafe.Pointer(c)))
	if ret == 0 {
		return classify("SetThreadContext", err)
	}
	return nil
}
