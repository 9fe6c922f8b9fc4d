// Package apitest provides an in-memory implementation of debugapi.API
// backed by simulated target processes. It honors the allocate, free,
// protect and commit semantics of the real API closely enough to exercise
// the snapshot and restore engine, and exposes failure-injection knobs and
// operation counters for tests.
package apitest

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"procsnap/debugapi"
)

// OS simulates the operating system side of the debug API.
type OS struct {
	self debugapi.ProcessID
	page uint64
	lo   debugapi.Address
	hi   debugapi.Address

	targets map[debugapi.ProcessID]*Target
	handles map[debugapi.Handle]*openHandle
	next    debugapi.Handle
	nextPID debugapi.ProcessID
	nextTID debugapi.ThreadID

	// Operation counters.
	Opens  int
	Closes int

	// Failure injection.
	FailSnapshot    bool // SnapshotProcesses fails as a whole
	FailSessionEnum bool
	FailFastEnum    bool
	DenyOpen        map[debugapi.ProcessID]bool
	DenyModules     map[debugapi.ProcessID]bool
	DenyImageName   map[debugapi.ProcessID]bool
	DenyMappedNames bool

	// MisplaceAlloc shifts address-fixed allocations by this many bytes,
	// simulating an OS that does not honor the requested address.
	MisplaceAlloc uint64
}

type openHandle struct {
	process bool
	pid     debugapi.ProcessID
	tid     debugapi.ThreadID
	rights  debugapi.Rights
}

// Target is one simulated process.
type Target struct {
	os  *OS
	pid debugapi.ProcessID

	Name string // basename reported by the snapshot and session sources
	Path string // full image path

	exited   bool
	exitCode uint32

	threads map[debugapi.ThreadID]*fakeThread
	modules []debugapi.ModuleEntry
	regions []*region // sorted by base, non-overlapping; free space is absence
}

type fakeThread struct {
	suspendCount int
	ctx          debugapi.ThreadContext
}

type region struct {
	base         debugapi.Address
	allocBase    debugapi.Address
	size         uint64
	state        debugapi.State
	protect      debugapi.Protect
	allocProtect debugapi.Protect
	typ          debugapi.RegionType
	filename     string
	content      []byte // len == size when committed
}

func (r *region) end() debugapi.Address {
	return r.base + debugapi.Address(r.size)
}

func (r *region) describe() debugapi.Region {
	return debugapi.Region{
		Base:         r.base,
		AllocBase:    r.allocBase,
		Size:         r.size,
		State:        r.state,
		Protect:      r.protect,
		AllocProtect: r.allocProtect,
		Type:         r.typ,
	}
}

// New creates a simulated OS whose inspecting process has the given pid.
func New(self debugapi.ProcessID) *OS {
	return &OS{
		self:          self,
		page:          0x1000,
		lo:            0x10000,
		hi:            0x7FFF0000,
		targets:       make(map[debugapi.ProcessID]*Target),
		handles:       make(map[debugapi.Handle]*openHandle),
		next:          0x100,
		nextPID:       9000,
		nextTID:       9500,
		DenyOpen:      make(map[debugapi.ProcessID]bool),
		DenyModules:   make(map[debugapi.ProcessID]bool),
		DenyImageName: make(map[debugapi.ProcessID]bool),
	}
}

// AddTarget registers a simulated process.
func (o *OS) AddTarget(pid debugapi.ProcessID, name, path string) *Target {
	t := &Target{
		os:      o,
		pid:     pid,
		Name:    name,
		Path:    path,
		threads: make(map[debugapi.ThreadID]*fakeThread),
	}
	o.targets[pid] = t
	return t
}

// RemoveTarget simulates the death of a process between scans.
func (o *OS) RemoveTarget(pid debugapi.ProcessID) {
	delete(o.targets, pid)
}

// Target returns a registered target, or nil.
func (o *OS) Target(pid debugapi.ProcessID) *Target {
	return o.targets[pid]
}

func (t *Target) AddThread(tid debugapi.ThreadID) *Target {
	t.threads[tid] = &fakeThread{}
	return t
}

func (t *Target) AddModule(base debugapi.Address, size uint64, path string) *Target {
	t.modules = append(t.modules, debugapi.ModuleEntry{Base: base, Size: size, Path: path})
	return t
}

// SuspendCount returns the suspend count of a simulated thread.
func (t *Target) SuspendCount(tid debugapi.ThreadID) int {
	th := t.threads[tid]
	if th == nil {
		return 0
	}
	return th.suspendCount
}

// Commit adds a committed region with zeroed content.
func (t *Target) Commit(base debugapi.Address, size uint64, protect debugapi.Protect, typ debugapi.RegionType) *Target {
	t.insert(&region{
		base:         base,
		allocBase:    base,
		size:         size,
		state:        debugapi.MemCommit,
		protect:      protect,
		allocProtect: protect,
		typ:          typ,
		content:      make([]byte, size),
	})
	return t
}

// Reserve adds a reserved region.
func (t *Target) Reserve(base debugapi.Address, size uint64, allocProtect debugapi.Protect) *Target {
	t.insert(&region{
		base:         base,
		allocBase:    base,
		size:         size,
		state:        debugapi.MemReserve,
		allocProtect: allocProtect,
		typ:          debugapi.MemPrivate,
	})
	return t
}

// MapFile adds a committed mapped-file region.
func (t *Target) MapFile(base debugapi.Address, size uint64, protect debugapi.Protect, typ debugapi.RegionType, filename string) *Target {
	t.Commit(base, size, protect, typ)
	r, _ := t.containing(base)
	r.filename = filename
	return t
}

// SetContent writes bytes directly into simulated memory, bypassing
// protection checks.
func (t *Target) SetContent(addr debugapi.Address, data []byte) {
	remaining := data
	for len(remaining) > 0 {
		r, _ := t.containing(addr)
		if r == nil || r.content == nil {
			panic(fmt.Sprintf("apitest: SetContent outside committed memory at %s", addr))
		}
		off := uint64(addr - r.base)
		n := copy(r.content[off:], remaining)
		remaining = remaining[n:]
		addr += debugapi.Address(n)
	}
}

// ContentAt copies bytes out of simulated memory, bypassing protection
// checks. Returns false if the range is not fully committed.
func (t *Target) ContentAt(addr debugapi.Address, size uint64) ([]byte, bool) {
	out := make([]byte, 0, size)
	for uint64(len(out)) < size {
		r, _ := t.containing(addr)
		if r == nil || r.content == nil {
			return nil, false
		}
		off := uint64(addr - r.base)
		avail := r.size - off
		want := size - uint64(len(out))
		if avail > want {
			avail = want
		}
		out = append(out, r.content[off:off+avail]...)
		addr += debugapi.Address(avail)
	}
	return out, true
}

// RegionAt describes the region containing addr the way QueryRegion would,
// without needing a handle.
func (t *Target) RegionAt(addr debugapi.Address) (debugapi.Region, bool) {
	r, err := t.query(addr)
	if err != nil {
		return debugapi.Region{}, false
	}
	return r, true
}

func (t *Target) containing(addr debugapi.Address) (*region, int) {
	i := sort.Search(len(t.regions), func(i int) bool {
		return t.regions[i].end() > addr
	})
	if i < len(t.regions) && t.regions[i].base <= addr {
		return t.regions[i], i
	}
	return nil, i
}

func (t *Target) insert(r *region) {
	i := sort.Search(len(t.regions), func(i int) bool {
		return t.regions[i].base >= r.base
	})
	t.regions = append(t.regions, nil)
	copy(t.regions[i+1:], t.regions[i:])
	t.regions[i] = r
}

// splitAt splits the region spanning addr so that addr becomes a region
// boundary.
func (t *Target) splitAt(addr debugapi.Address) {
	r, i := t.containing(addr)
	if r == nil || r.base == addr {
		return
	}
	off := uint64(addr - r.base)
	tail := &region{
		base:         addr,
		allocBase:    r.allocBase,
		size:         r.size - off,
		state:        r.state,
		protect:      r.protect,
		allocProtect: r.allocProtect,
		typ:          r.typ,
		filename:     r.filename,
	}
	if r.content != nil {
		tail.content = r.content[off:]
		r.content = r.content[:off]
	}
	r.size = off
	t.regions = append(t.regions, nil)
	copy(t.regions[i+2:], t.regions[i+1:])
	t.regions[i+1] = tail
}

// within returns the regions fully inside [addr, addr+size), splitting at
// both boundaries first. The bool is false if the range crosses free space.
func (t *Target) within(addr debugapi.Address, size uint64) ([]*region, bool) {
	t.splitAt(addr)
	t.splitAt(addr + debugapi.Address(size))
	var out []*region
	cursor := addr
	end := addr + debugapi.Address(size)
	for cursor < end {
		r, _ := t.containing(cursor)
		if r == nil {
			return out, false
		}
		out = append(out, r)
		cursor = r.end()
	}
	return out, true
}

func (t *Target) remove(r *region) {
	for i, c := range t.regions {
		if c == r {
			t.regions = append(t.regions[:i], t.regions[i+1:]...)
			return
		}
	}
}

func (t *Target) query(addr debugapi.Address) (debugapi.Region, error) {
	if addr < t.os.lo || addr >= t.os.hi {
		return debugapi.Region{}, fmt.Errorf("query at %s: %w", addr, debugapi.ErrNotFound)
	}
	i := sort.Search(len(t.regions), func(i int) bool {
		return t.regions[i].end() > addr
	})
	if i < len(t.regions) && t.regions[i].base <= addr {
		return t.regions[i].describe(), nil
	}
	// Free gap: stretch from the end of the previous region to the start
	// of the next one.
	start := t.os.lo
	if i > 0 {
		start = t.regions[i-1].end()
	}
	stop := t.os.hi
	if i < len(t.regions) {
		stop = t.regions[i].base
	}
	return debugapi.Region{
		Base:  start,
		Size:  uint64(stop - start),
		State: debugapi.MemFree,
	}, nil
}

// ---- debugapi.API ----

var _ debugapi.API = (*OS)(nil)

func (o *OS) CurrentProcessID() debugapi.ProcessID { return o.self }

func (o *OS) PageSize() uint64 { return o.page }

func (o *OS) UserAddressRange() (debugapi.Address, debugapi.Address) { return o.lo, o.hi }

func (o *OS) EnumProcessIDs() ([]debugapi.ProcessID, error) {
	if o.FailFastEnum {
		return nil, fmt.Errorf("enum processes: %w", debugapi.ErrAccessDenied)
	}
	pids := []debugapi.ProcessID{o.self}
	for pid, t := range o.targets {
		if !t.exited {
			pids = append(pids, pid)
		}
	}
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })
	return pids, nil
}

func (o *OS) SnapshotProcesses() ([]debugapi.ProcessEntry, []debugapi.ThreadEntry, error) {
	if o.FailSnapshot {
		return nil, nil, fmt.Errorf("process snapshot: %w", debugapi.ErrAccessDenied)
	}
	procs := []debugapi.ProcessEntry{{PID: o.self, Filename: "self.exe"}}
	var threads []debugapi.ThreadEntry
	for pid, t := range o.targets {
		if t.exited {
			continue
		}
		procs = append(procs, debugapi.ProcessEntry{PID: pid, Filename: t.Name})
		for tid := range t.threads {
			threads = append(threads, debugapi.ThreadEntry{TID: tid, Owner: pid})
		}
	}
	sort.Slice(procs, func(i, j int) bool { return procs[i].PID < procs[j].PID })
	sort.Slice(threads, func(i, j int) bool { return threads[i].TID < threads[j].TID })
	return procs, threads, nil
}

func (o *OS) EnumSessionProcesses() ([]debugapi.ProcessEntry, error) {
	if o.FailSessionEnum {
		return nil, fmt.Errorf("session enumeration: %w", debugapi.ErrAccessDenied)
	}
	procs := []debugapi.ProcessEntry{{PID: o.self, Filename: "self.exe"}}
	for pid, t := range o.targets {
		if !t.exited {
			procs = append(procs, debugapi.ProcessEntry{PID: pid, Filename: t.Name})
		}
	}
	sort.Slice(procs, func(i, j int) bool { return procs[i].PID < procs[j].PID })
	return procs, nil
}

func (o *OS) EnumModules(pid debugapi.ProcessID) ([]debugapi.ModuleEntry, error) {
	if o.DenyModules[pid] {
		return nil, fmt.Errorf("enum modules of %d: %w", pid, debugapi.ErrAccessDenied)
	}
	t := o.targets[pid]
	if t == nil || t.exited {
		return nil, fmt.Errorf("enum modules of %d: %w", pid, debugapi.ErrNotFound)
	}
	out := make([]debugapi.ModuleEntry, len(t.modules))
	copy(out, t.modules)
	return out, nil
}

func (o *OS) OpenProcess(pid debugapi.ProcessID, rights debugapi.Rights) (debugapi.Handle, error) {
	if o.DenyOpen[pid] {
		return debugapi.InvalidHandle, fmt.Errorf("open process %d: %w", pid, debugapi.ErrAccessDenied)
	}
	if o.targets[pid] == nil {
		return debugapi.InvalidHandle, fmt.Errorf("open process %d: %w", pid, debugapi.ErrNotFound)
	}
	o.Opens++
	o.next++
	o.handles[o.next] = &openHandle{process: true, pid: pid, rights: rights}
	return o.next, nil
}

func (o *OS) OpenThread(tid debugapi.ThreadID, rights debugapi.Rights) (debugapi.Handle, error) {
	for pid, t := range o.targets {
		if _, ok := t.threads[tid]; ok {
			o.Opens++
			o.next++
			o.handles[o.next] = &openHandle{pid: pid, tid: tid, rights: rights}
			return o.next, nil
		}
	}
	return debugapi.InvalidHandle, fmt.Errorf("open thread %d: %w", tid, debugapi.ErrNotFound)
}

func (o *OS) CloseHandle(h debugapi.Handle) error {
	if _, ok := o.handles[h]; !ok {
		return fmt.Errorf("close handle %#x: %w", uintptr(h), debugapi.ErrInvalidArgument)
	}
	delete(o.handles, h)
	o.Closes++
	return nil
}

func (o *OS) processHandle(h debugapi.Handle, need debugapi.Rights) (*Target, error) {
	oh := o.handles[h]
	if oh == nil || !oh.process {
		return nil, fmt.Errorf("handle %#x: %w", uintptr(h), debugapi.ErrInvalidArgument)
	}
	if !oh.rights.Superset(need) {
		return nil, fmt.Errorf("handle %#x lacks rights %#x: %w", uintptr(h), uint32(need), debugapi.ErrAccessDenied)
	}
	t := o.targets[oh.pid]
	if t == nil {
		return nil, fmt.Errorf("process %d: %w", oh.pid, debugapi.ErrNotFound)
	}
	return t, nil
}

func (o *OS) threadHandle(h debugapi.Handle, need debugapi.Rights) (*fakeThread, error) {
	oh := o.handles[h]
	if oh == nil || oh.process {
		return nil, fmt.Errorf("handle %#x: %w", uintptr(h), debugapi.ErrInvalidArgument)
	}
	if !oh.rights.Superset(need) {
		return nil, fmt.Errorf("handle %#x lacks rights %#x: %w", uintptr(h), uint32(need), debugapi.ErrAccessDenied)
	}
	t := o.targets[oh.pid]
	if t == nil {
		return nil, fmt.Errorf("thread %d: %w", oh.tid, debugapi.ErrNotFound)
	}
	th := t.threads[oh.tid]
	if th == nil {
		return nil, fmt.Errorf("thread %d: %w", oh.tid, debugapi.ErrNotFound)
	}
	return th, nil
}

func (o *OS) QueryRegion(h debugapi.Handle, addr debugapi.Address) (debugapi.Region, error) {
	t, err := o.processHandle(h, debugapi.ProcessQueryInformation)
	if err != nil {
		return debugapi.Region{}, err
	}
	return t.query(addr)
}

func (o *OS) ReadMemory(h debugapi.Handle, addr debugapi.Address, buf []byte) (int, error) {
	t, err := o.processHandle(h, debugapi.ProcessVMRead)
	if err != nil {
		return 0, err
	}
	n := 0
	for n < len(buf) {
		cursor := addr + debugapi.Address(n)
		r, _ := t.containing(cursor)
		if r == nil || r.content == nil || !r.describe().HasContent() {
			return n, fmt.Errorf("read at %s: %w", cursor, debugapi.ErrReadFailed)
		}
		off := uint64(cursor - r.base)
		n += copy(buf[n:], r.content[off:])
	}
	return n, nil
}

func (o *OS) WriteMemory(h debugapi.Handle, addr debugapi.Address, data []byte) (int, error) {
	t, err := o.processHandle(h, debugapi.ProcessVMWrite|debugapi.ProcessVMOperation)
	if err != nil {
		return 0, err
	}
	n := 0
	for n < len(data) {
		cursor := addr + debugapi.Address(n)
		r, _ := t.containing(cursor)
		if r == nil || r.content == nil || !r.describe().IsWritable() {
			return n, fmt.Errorf("write at %s: %w", cursor, debugapi.ErrWriteFailed)
		}
		off := uint64(cursor - r.base)
		n += copy(r.content[off:], data[n:])
	}
	return n, nil
}

func (o *OS) AllocRegion(h debugapi.Handle, addr debugapi.Address, size uint64, alloc debugapi.AllocType, protect debugapi.Protect) (debugapi.Address, error) {
	t, err := o.processHandle(h, debugapi.ProcessVMOperation)
	if err != nil {
		return 0, err
	}
	if size == 0 {
		return 0, fmt.Errorf("alloc of zero bytes: %w", debugapi.ErrInvalidArgument)
	}

	if alloc&debugapi.AllocReserve != 0 {
		if addr == 0 {
			addr = t.findFree(size)
			if addr == 0 {
				return 0, fmt.Errorf("alloc %d bytes: %w", size, debugapi.ErrInvalidAddress)
			}
		} else if o.MisplaceAlloc != 0 {
			addr += debugapi.Address(o.MisplaceAlloc)
		}
		if !t.rangeFree(addr, size) {
			return 0, fmt.Errorf("alloc at %s: %w", addr, debugapi.ErrInvalidAddress)
		}
		r := &region{
			base:         addr,
			allocBase:    addr,
			size:         size,
			state:        debugapi.MemReserve,
			allocProtect: protect,
			typ:          debugapi.MemPrivate,
		}
		if alloc&debugapi.AllocCommit != 0 {
			r.state = debugapi.MemCommit
			r.protect = protect
			r.content = make([]byte, size)
		}
		t.insert(r)
		return addr, nil
	}

	// Commit of an already-reserved range.
	regions, ok := t.within(addr, size)
	if !ok {
		return 0, fmt.Errorf("commit at %s: %w", addr, debugapi.ErrInvalidAddress)
	}
	for _, r := range regions {
		if r.state == debugapi.MemReserve {
			r.state = debugapi.MemCommit
			r.protect = protect
			r.content = make([]byte, r.size)
		}
	}
	return addr, nil
}

func (t *Target) rangeFree(addr debugapi.Address, size uint64) bool {
	if addr < t.os.lo || addr+debugapi.Address(size) > t.os.hi {
		return false
	}
	for _, r := range t.regions {
		if r.base < addr+debugapi.Address(size) && r.end() > addr {
			return false
		}
	}
	return true
}

func (t *Target) findFree(size uint64) debugapi.Address {
	cursor := t.os.lo
	for _, r := range t.regions {
		if uint64(r.base-cursor) >= size {
			return cursor
		}
		if r.end() > cursor {
			cursor = r.end()
		}
	}
	if uint64(t.os.hi-cursor) >= size {
		return cursor
	}
	return 0
}

func (o *OS) FreeRegion(h debugapi.Handle, addr debugapi.Address, size uint64, free debugapi.FreeType) error {
	t, err := o.processHandle(h, debugapi.ProcessVMOperation)
	if err != nil {
		return err
	}
	if free&debugapi.FreeRelease != 0 {
		if size == 0 {
			r, _ := t.containing(addr)
			if r == nil {
				return fmt.Errorf("release at %s: %w", addr, debugapi.ErrInvalidAddress)
			}
			t.remove(r)
			return nil
		}
		regions, ok := t.within(addr, size)
		if !ok {
			return fmt.Errorf("release at %s: %w", addr, debugapi.ErrInvalidAddress)
		}
		for _, r := range regions {
			t.remove(r)
		}
		return nil
	}
	// Decommit.
	regions, ok := t.within(addr, size)
	if !ok {
		return fmt.Errorf("decommit at %s: %w", addr, debugapi.ErrInvalidAddress)
	}
	for _, r := range regions {
		if r.state == debugapi.MemCommit {
			r.state = debugapi.MemReserve
			r.protect = 0
			r.content = nil
		}
	}
	return nil
}

func (o *OS) ProtectRegion(h debugapi.Handle, addr debugapi.Address, size uint64, protect debugapi.Protect) (debugapi.Protect, error) {
	t, err := o.processHandle(h, debugapi.ProcessVMOperation)
	if err != nil {
		return 0, err
	}
	regions, ok := t.within(addr, size)
	if !ok {
		return 0, fmt.Errorf("protect at %s: %w", addr, debugapi.ErrInvalidAddress)
	}
	var old debugapi.Protect
	for i, r := range regions {
		if r.state != debugapi.MemCommit {
			return 0, fmt.Errorf("protect at %s: region not committed: %w", addr, debugapi.ErrInvalidAddress)
		}
		if i == 0 {
			old = r.protect
		}
		r.protect = protect
	}
	return old, nil
}

func (o *OS) MappedFileName(h debugapi.Handle, addr debugapi.Address) (string, error) {
	t, err := o.processHandle(h, debugapi.ProcessQueryInformation)
	if err != nil {
		return "", err
	}
	if o.DenyMappedNames {
		return "", fmt.Errorf("mapped file name at %s: %w", addr, debugapi.ErrAccessDenied)
	}
	r, _ := t.containing(addr)
	if r == nil || r.filename == "" {
		return "", fmt.Errorf("mapped file name at %s: %w", addr, debugapi.ErrNotFound)
	}
	return r.filename, nil
}

func (o *OS) ProcessImageName(h debugapi.Handle) (string, error) {
	oh := o.handles[h]
	if oh == nil || !oh.process {
		return "", fmt.Errorf("handle %#x: %w", uintptr(h), debugapi.ErrInvalidArgument)
	}
	if o.DenyImageName[oh.pid] {
		return "", fmt.Errorf("image name of %d: %w", oh.pid, debugapi.ErrAccessDenied)
	}
	t, err := o.processHandle(h, debugapi.ProcessQueryInformation)
	if err != nil {
		return "", err
	}
	if t.Path == "" {
		return "", fmt.Errorf("image name of %d: %w", oh.pid, debugapi.ErrNotFound)
	}
	return t.Path, nil
}

func (o *OS) SuspendThread(h debugapi.Handle) error {
	th, err := o.threadHandle(h, debugapi.ThreadSuspendResume)
	if err != nil {
		return err
	}
	th.suspendCount++
	return nil
}

func (o *OS) ResumeThread(h debugapi.Handle) error {
	th, err := o.threadHandle(h, debugapi.ThreadSuspendResume)
	if err != nil {
		return err
	}
	if th.suspendCount > 0 {
		th.suspendCount--
	}
	return nil
}

func (o *OS) GetThreadContext(h debugapi.Handle) (debugapi.ThreadContext, error) {
	th, err := o.threadHandle(h, debugapi.ThreadGetContext)
	if err != nil {
		return debugapi.ThreadContext{}, err
	}
	return th.ctx, nil
}

func (o *OS) SetThreadContext(h debugapi.Handle, ctx debugapi.ThreadContext) error {
	th, err := o.threadHandle(h, debugapi.ThreadSetContext)
	if err != nil {
		return err
	}
	th.ctx = ctx
	return nil
}

func (o *OS) TerminateProcess(h debugapi.Handle, code uint32) error {
	t, err := o.processHandle(h, debugapi.ProcessTerminate)
	if err != nil {
		return err
	}
	t.exited = true
	t.exitCode = code
	return nil
}

func (o *OS) WaitProcess(h debugapi.Handle, timeout time.Duration) (bool, error) {
	t, err := o.processHandle(h, debugapi.ProcessSynchronize)
	if err != nil {
		return false, err
	}
	return t.exited, nil
}

func (o *OS) ExitCode(h debugapi.Handle) (uint32, bool, error) {
	t, err := o.processHandle(h, debugapi.ProcessQueryInformation)
	if err != nil {
		return 0, false, err
	}
	return t.exitCode, t.exited, nil
}

func (o *OS) StartProcess(cmdline string, opts debugapi.StartOptions) (debugapi.StartedProcess, error) {
	if cmdline == "" {
		return debugapi.StartedProcess{}, fmt.Errorf("empty command line: %w", debugapi.ErrInvalidArgument)
	}
	o.nextPID++
	o.nextTID++
	exe := strings.Fields(cmdline)[0]
	name := exe
	if i := strings.LastIndexAny(exe, `\/`); i >= 0 {
		name = exe[i+1:]
	}
	t := o.AddTarget(o.nextPID, name, exe)
	t.AddThread(o.nextTID)
	if opts.StartSuspended {
		t.threads[o.nextTID].suspendCount = 1
	}
	ph, err := o.OpenProcess(o.nextPID, debugapi.ProcessAllAccess)
	if err != nil {
		return debugapi.StartedProcess{}, err
	}
	th, err := o.OpenThread(o.nextTID, debugapi.ThreadAllAccess)
	if err != nil {
		return debugapi.StartedProcess{}, err
	}
	return debugapi.StartedProcess{
		PID:           o.nextPID,
		TID:           o.nextTID,
		ProcessHandle: ph,
		ThreadHandle:  th,
	}, nil
}
