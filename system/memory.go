package system

import (
	"fmt"

	"procsnap/debugapi"
)

// MQuery returns the memory region containing addr.
func (p *Process) MQuery(addr debugapi.Address) (debugapi.Region, error) {
	h, err := p.handle.Get(debugapi.ProcessQueryInformation)
	if err != nil {
		return debugapi.Region{}, err
	}
	return p.api.QueryRegion(h, addr)
}

// isBufferBacked reports whether [addr, addr+size) is entirely backed by
// committed regions with content. Read permission bits are not required:
// the OS read call succeeds on execute-only pages too.
func (p *Process) isBufferBacked(addr debugapi.Address, size uint64) bool {
	end := addr + debugapi.Address(size)
	walker := p.IterMemoryMap(addr, end)
	covered := addr
	for {
		r, ok := walker.Next()
		if !ok {
			break
		}
		if !r.HasContent() {
			return false
		}
		covered = r.End()
	}
	return walker.Err() == nil && covered >= end
}

// Read reads exactly size bytes at addr. The whole range must be backed by
// committed, accessible memory or the read fails with ErrInvalidAddress; a
// short transfer fails with ErrReadFailed.
func (p *Process) Read(addr debugapi.Address, size uint64) ([]byte, error) {
	if size == 0 {
		return nil, fmt.Errorf("read of zero bytes at %s: %w", addr, debugapi.ErrInvalidArgument)
	}
	h, err := p.handle.Get(debugapi.ProcessVMRead | debugapi.ProcessQueryInformation)
	if err != nil {
		return nil, err
	}
	if !p.isBufferBacked(addr, size) {
		return nil, fmt.Errorf("read %d bytes at %s: %w", size, addr, debugapi.ErrInvalidAddress)
	}
	buf := make([]byte, size)
	n, err := p.api.ReadMemory(h, addr, buf)
	if err != nil {
		return nil, fmt.Errorf("%w: read at %s: %v", debugapi.ErrReadFailed, addr, err)
	}
	if uint64(n) != size {
		return nil, fmt.Errorf("%w: short read at %s: %d of %d bytes", debugapi.ErrReadFailed, addr, n, size)
	}
	return buf, nil
}

// Peek reads up to size bytes at addr, truncating at the first region that
// is not readable. Unreadable memory yields a shorter (possibly empty)
// result, never an error; only an OS failure inside readable memory is
// reported.
func (p *Process) Peek(addr debugapi.Address, size uint64) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}
	h, err := p.handle.Get(debugapi.ProcessVMRead | debugapi.ProcessQueryInformation)
	if err != nil {
		return nil, err
	}
	limit := addr + debugapi.Address(size)
	walker := p.IterMemoryMap(addr, limit)
	for {
		r, ok := walker.Next()
		if !ok {
			break
		}
		if !r.IsReadable() {
			limit = r.Base
			break
		}
	}
	if err := walker.Err(); err != nil {
		return nil, err
	}
	if limit <= addr {
		return nil, nil
	}
	buf := make([]byte, limit-addr)
	n, err := p.api.ReadMemory(h, addr, buf)
	if err != nil {
		return buf[:n], fmt.Errorf("%w: peek at %s: %v", debugapi.ErrReadFailed, addr, err)
	}
	return buf[:n], nil
}

// Poke writes data at addr, temporarily adjusting page protection when the
// target region is not already writable: copy-on-write for image and
// mapped regions, read-write-execute when the region was executable, plain
// read-write otherwise. The original protection is restored whether or not
// the write succeeds. Returns the number of bytes written.
func (p *Process) Poke(addr debugapi.Address, data []byte) (int, error) {
	h, err := p.handle.Get(debugapi.ProcessVMWrite | debugapi.ProcessVMOperation | debugapi.ProcessQueryInformation)
	if err != nil {
		return 0, err
	}
	mbi, err := p.MQuery(addr)
	if err != nil {
		return 0, err
	}
	if !mbi.HasContent() {
		return 0, fmt.Errorf("poke at %s: %w", addr, debugapi.ErrInvalidAddress)
	}

	var prot debugapi.Protect
	switch {
	case mbi.IsImage() || mbi.IsMapped():
		prot = debugapi.PageWriteCopy
	case mbi.IsWritable():
		// Already writable, leave the protection alone.
	case mbi.IsExecutable():
		prot = debugapi.PageExecuteReadWrite
	default:
		prot = debugapi.PageReadWrite
	}
	reprotected := false
	if prot != 0 {
		if _, err := p.MProtect(addr, uint64(len(data)), prot); err != nil {
			p.log.Warn("Failed to adjust page protection before poke: ", err)
		} else {
			reprotected = true
		}
	}
	defer func() {
		if reprotected {
			if _, err := p.MProtect(addr, uint64(len(data)), mbi.Protect); err != nil {
				p.log.Warn("Failed to restore page protection after poke: ", err)
			}
		}
	}()

	n, err := p.api.WriteMemory(h, addr, data)
	if err != nil {
		return n, fmt.Errorf("%w: poke at %s: %v", debugapi.ErrWriteFailed, addr, err)
	}
	return n, nil
}

// Write writes data at addr and fails with ErrWriteFailed unless every
// byte was written. Page protection may be changed temporarily, as with
// Poke.
func (p *Process) Write(addr debugapi.Address, data []byte) error {
	n, err := p.Poke(addr, data)
	if err != nil {
		return err
	}
	if n != len(data) {
		return fmt.Errorf("%w: short write at %s: %d of %d bytes", debugapi.ErrWriteFailed, addr, n, len(data))
	}
	return nil
}

// Malloc reserves and commits size bytes in the target. addr is a hint;
// the returned address is where the allocation actually landed.
func (p *Process) Malloc(size uint64, addr debugapi.Address) (debugapi.Address, error) {
	h, err := p.handle.Get(debugapi.ProcessVMOperation)
	if err != nil {
		return 0, err
	}
	return p.api.AllocRegion(h, addr, size, debugapi.AllocReserve|debugapi.AllocCommit, debugapi.PageExecuteReadWrite)
}

// Free releases an allocation made with Malloc. addr must be the base
// address Malloc returned.
func (p *Process) Free(addr debugapi.Address) error {
	h, err := p.handle.Get(debugapi.ProcessVMOperation)
	if err != nil {
		return err
	}
	return p.api.FreeRegion(h, addr, 0, debugapi.FreeRelease)
}

// MProtect changes the protection of [addr, addr+size) and returns the
// previous protection.
func (p *Process) MProtect(addr debugapi.Address, size uint64, protect debugapi.Protect) (debugapi.Protect, error) {
	h, err := p.handle.Get(debugapi.ProcessVMOperation)
	if err != nil {
		return 0, err
	}
	return p.api.ProtectRegion(h, addr, size, protect)
}
