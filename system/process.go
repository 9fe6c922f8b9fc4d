package system

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	lru "github.com/hashicorp/golang-lru"

	"procsnap/debugapi"
)

const mappedNameCacheSize = 128

// Process models one live or recently seen process. It owns its handle,
// its threads and its modules; the snapshot container reaches threads and
// modules only through their Process.
//
// A Process is safe for a single inspecting goroutine. The target itself
// runs concurrently to the inspector, so every query is a best-effort
// point-in-time view.
type Process struct {
	pid      debugapi.ProcessID
	api      debugapi.API
	handle   *HandleManager
	fileName string

	threads map[debugapi.ThreadID]*Thread
	modules map[debugapi.Address]*Module

	mappedNames *lru.Cache
	log         *logger.Logger
}

func newProcess(api debugapi.API, pid debugapi.ProcessID, fileName string) *Process {
	log := logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, fmt.Sprintf("process-%d", pid)))
	cache, _ := lru.New(mappedNameCacheSize)
	return &Process{
		pid:         pid,
		api:         api,
		handle:      newProcessHandleManager(api, pid, log),
		fileName:    fileName,
		threads:     make(map[debugapi.ThreadID]*Thread),
		modules:     make(map[debugapi.Address]*Module),
		mappedNames: cache,
		log:         log,
	}
}

// PID returns the process ID.
func (p *Process) PID() debugapi.ProcessID {
	return p.pid
}

// Handle exposes the process's handle manager.
func (p *Process) Handle() *HandleManager {
	return p.handle
}

// Filename returns the cached file path of the main module, resolving it
// through the OS when not yet known.
func (p *Process) Filename() string {
	if p.fileName == "" {
		name, err := p.imageName()
		if err != nil {
			p.log.Debugln("Image name unavailable:", err)
			return ""
		}
		p.fileName = name
	}
	return p.fileName
}

func (p *Process) imageName() (string, error) {
	h, err := p.handle.Get(debugapi.ProcessQueryInformation)
	if err != nil {
		return "", err
	}
	return p.api.ProcessImageName(h)
}

// setFilename enriches the cached filename. Enrichment is monotonic: a
// known name is never overwritten with an empty one, and within a scan
// cycle the first writer wins.
func (p *Process) setFilename(name string) {
	if p.fileName == "" && name != "" {
		p.fileName = name
	}
}

// ---- threads ----

// GetThread returns a tracked thread by ID.
func (p *Process) GetThread(tid debugapi.ThreadID) (*Thread, error) {
	t, ok := p.threads[tid]
	if !ok {
		return nil, fmt.Errorf("thread %d in process %d: %w", tid, p.pid, debugapi.ErrNotFound)
	}
	return t, nil
}

// HasThread reports whether the thread is tracked.
func (p *Process) HasThread(tid debugapi.ThreadID) bool {
	_, ok := p.threads[tid]
	return ok
}

// Threads returns the tracked threads ordered by ID.
func (p *Process) Threads() []*Thread {
	out := make([]*Thread, 0, len(p.threads))
	for _, t := range p.threads {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].tid < out[j].tid })
	return out
}

// ThreadCount returns the number of tracked threads.
func (p *Process) ThreadCount() int {
	return len(p.threads)
}

func (p *Process) addThread(tid debugapi.ThreadID) *Thread {
	t := newThread(p.api, tid, p.pid)
	p.threads[tid] = t
	return t
}

func (p *Process) delThread(tid debugapi.ThreadID) {
	if t, ok := p.threads[tid]; ok {
		t.clear()
		delete(p.threads, tid)
	}
}

// ScanThreads refreshes the thread collection from the snapshot source,
// reconciling appearances and disappearances.
func (p *Process) ScanThreads() error {
	_, threads, err := p.api.SnapshotProcesses()
	if err != nil {
		return err
	}
	dead := make(map[debugapi.ThreadID]bool, len(p.threads))
	for tid := range p.threads {
		dead[tid] = true
	}
	for _, te := range threads {
		if te.Owner != p.pid {
			continue
		}
		delete(dead, te.TID)
		if !p.HasThread(te.TID) {
			p.addThread(te.TID)
		}
	}
	for tid := range dead {
		p.delThread(tid)
	}
	return nil
}

// ---- modules ----

// GetModule returns a tracked module by base address.
func (p *Process) GetModule(base debugapi.Address) (*Module, error) {
	m, ok := p.modules[base]
	if !ok {
		return nil, fmt.Errorf("module at %s in process %d: %w", base, p.pid, debugapi.ErrNotFound)
	}
	return m, nil
}

// Modules returns the tracked modules ordered by base address.
func (p *Process) Modules() []*Module {
	out := make([]*Module, 0, len(p.modules))
	for _, m := range p.modules {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].base < out[j].base })
	return out
}

// ModuleCount returns the number of tracked modules.
func (p *Process) ModuleCount() int {
	return len(p.modules)
}

// MainModule returns the module matching the process filename, falling
// back to the lowest base address.
func (p *Process) MainModule() *Module {
	mods := p.Modules()
	if len(mods) == 0 {
		return nil
	}
	if name := p.fileName; name != "" {
		base := strings.ToLower(baseName(name))
		for _, m := range mods {
			if strings.ToLower(m.Name()) == base {
				return m
			}
		}
	}
	return mods[0]
}

// ScanModules refreshes the module collection from the module enumeration
// source, reconciling and enriching paths monotonically.
func (p *Process) ScanModules() error {
	entries, err := p.api.EnumModules(p.pid)
	if err != nil {
		return err
	}
	dead := make(map[debugapi.Address]bool, len(p.modules))
	for base := range p.modules {
		dead[base] = true
	}
	for _, me := range entries {
		delete(dead, me.Base)
		m, ok := p.modules[me.Base]
		if !ok {
			p.modules[me.Base] = &Module{base: me.Base, size: me.Size, path: me.Path, owner: p.pid}
			continue
		}
		if m.path == "" && me.Path != "" {
			m.path = me.Path
		}
		if m.size == 0 {
			m.size = me.Size
		}
	}
	for base := range dead {
		delete(p.modules, base)
	}
	return nil
}

// ---- control ----

// Suspend suspends every thread of the process. On failure the threads
// suspended so far are resumed before the error is returned.
func (p *Process) Suspend() error {
	if err := p.ScanThreads(); err != nil {
		return err
	}
	var suspended []*Thread
	for _, t := range p.Threads() {
		if err := t.Suspend(); err != nil {
			for _, s := range suspended {
				if rerr := s.Resume(); rerr != nil {
					p.log.Warn("Failed to resume thread during rollback: ", rerr)
				}
			}
			return err
		}
		suspended = append(suspended, t)
	}
	return nil
}

// Resume resumes every thread of the process. On failure the threads
// resumed so far are suspended again before the error is returned.
func (p *Process) Resume() error {
	if len(p.threads) == 0 {
		if err := p.ScanThreads(); err != nil {
			return err
		}
	}
	var resumed []*Thread
	for _, t := range p.Threads() {
		if err := t.Resume(); err != nil {
			for _, r := range resumed {
				if serr := r.Suspend(); serr != nil {
					p.log.Warn("Failed to suspend thread during rollback: ", serr)
				}
			}
			return err
		}
		resumed = append(resumed, t)
	}
	return nil
}

// Kill terminates the process with the given exit code.
func (p *Process) Kill(code uint32) error {
	h, err := p.handle.Get(debugapi.ProcessTerminate)
	if err != nil {
		return err
	}
	return p.api.TerminateProcess(h, code)
}

// Wait blocks until the process terminates or the timeout elapses. A
// negative timeout waits forever.
func (p *Process) Wait(timeout time.Duration) (bool, error) {
	h, err := p.handle.Get(debugapi.ProcessSynchronize)
	if err != nil {
		return false, err
	}
	return p.api.WaitProcess(h, timeout)
}

// IsAlive reports whether the process still exists and has not exited.
func (p *Process) IsAlive() bool {
	h, err := p.handle.Get(debugapi.ProcessSynchronize)
	if err != nil {
		return false
	}
	exited, err := p.api.WaitProcess(h, 0)
	return err == nil && !exited
}

// ExitCode returns the exit code once the process has exited.
func (p *Process) ExitCode() (uint32, bool, error) {
	h, err := p.handle.Get(debugapi.ProcessQueryInformation)
	if err != nil {
		return 0, false, err
	}
	return p.api.ExitCode(h)
}

// clear tears the process down: thread and module collections are emptied
// and every owned handle is released.
func (p *Process) clear() {
	for tid := range p.threads {
		p.delThread(tid)
	}
	for base := range p.modules {
		delete(p.modules, base)
	}
	p.handle.Close()
}
