// Package system tracks the processes, threads and modules of a running
// machine and keeps that model synchronized with live OS state through
// repeated, possibly partial rescans. It also captures and restores full
// memory images of a target process.
//
// A System is an explicitly constructed container with its own lifecycle;
// it is safe for a single inspecting goroutine only. The processes it
// tracks run concurrently to the inspector, so every view is best-effort
// and may be stale by the time it is consumed.
package system

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"

	"procsnap/debugapi"
)

// System is the snapshot container: the mapping from process ID to Process
// kept eventually consistent with the OS.
type System struct {
	api     debugapi.API
	procs   map[debugapi.ProcessID]*Process
	scanned bool
	log     *logger.Logger
}

// New creates an empty container around the given OS debug API.
func New(api debugapi.API) *System {
	return &System{
		api:   api,
		procs: make(map[debugapi.ProcessID]*Process),
		log:   logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "system")),
	}
}

// ensureScanned runs a single best-effort scan the first time the
// container is used while empty. A container that scanned and legitimately
// found nothing is not rescanned on every lookup.
func (s *System) ensureScanned() {
	if !s.scanned && len(s.procs) == 0 {
		s.Scan()
	}
}

// HasProcess reports whether the process is tracked.
func (s *System) HasProcess(pid debugapi.ProcessID) bool {
	s.ensureScanned()
	_, ok := s.procs[pid]
	return ok
}

// GetProcess returns a tracked process by ID.
func (s *System) GetProcess(pid debugapi.ProcessID) (*Process, error) {
	s.ensureScanned()
	p, ok := s.procs[pid]
	if !ok {
		return nil, fmt.Errorf("process %d: %w", pid, debugapi.ErrNotFound)
	}
	return p, nil
}

// Processes returns the tracked processes ordered by ID.
func (s *System) Processes() []*Process {
	s.ensureScanned()
	out := make([]*Process, 0, len(s.procs))
	for _, p := range s.procs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].pid < out[j].pid })
	return out
}

// ProcessIDs returns the tracked process IDs in ascending order.
func (s *System) ProcessIDs() []debugapi.ProcessID {
	s.ensureScanned()
	out := make([]debugapi.ProcessID, 0, len(s.procs))
	for pid := range s.procs {
		out = append(out, pid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ProcessCount returns the number of tracked processes.
func (s *System) ProcessCount() int {
	s.ensureScanned()
	return len(s.procs)
}

// FindProcessesByFilename returns the tracked processes whose filename or
// its basename matches, case-insensitively.
func (s *System) FindProcessesByFilename(name string) []*Process {
	s.ensureScanned()
	want := strings.ToLower(name)
	var out []*Process
	for _, p := range s.Processes() {
		have := strings.ToLower(p.fileName)
		if have == "" {
			continue
		}
		if have == want || strings.ToLower(baseName(have)) == want {
			out = append(out, p)
		}
	}
	return out
}

// GetPIDFromTID resolves the process owning a thread, scanning if the
// thread is not yet known.
func (s *System) GetPIDFromTID(tid debugapi.ThreadID) (debugapi.ProcessID, error) {
	s.ensureScanned()
	for _, p := range s.procs {
		if p.HasThread(tid) {
			return p.pid, nil
		}
	}
	if err := s.ScanProcessesAndThreads(); err == nil {
		for _, p := range s.procs {
			if p.HasThread(tid) {
				return p.pid, nil
			}
		}
	}
	return 0, fmt.Errorf("thread %d: %w", tid, debugapi.ErrNotFound)
}

func (s *System) addProcess(p *Process) {
	s.procs[p.pid] = p
}

func (s *System) delProcess(pid debugapi.ProcessID) {
	if p, ok := s.procs[pid]; ok {
		p.clear()
		delete(s.procs, pid)
	}
}

// Clear tears down every tracked process and empties the container.
func (s *System) Clear() {
	for pid := range s.procs {
		s.delProcess(pid)
	}
	s.scanned = false
}

// StartProcess creates a new process from a command line and registers it
// in the container. The handles the OS opened during creation are adopted.
func (s *System) StartProcess(cmdline string, opts debugapi.StartOptions) (*Process, error) {
	started, err := s.api.StartProcess(cmdline, opts)
	if err != nil {
		return nil, err
	}
	p := newProcess(s.api, started.PID, "")
	p.handle.Adopt(started.ProcessHandle, debugapi.ProcessAllAccess)
	t := p.addThread(started.TID)
	t.handle.Adopt(started.ThreadHandle, debugapi.ThreadAllAccess)
	s.addProcess(p)
	s.log.Infoln("Started process", started.PID, "from:", cmdline)
	return p, nil
}
