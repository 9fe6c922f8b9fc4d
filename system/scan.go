package system

import (
	"procsnap/debugapi"
)

// Scan refreshes the container against live OS state. It tries the richest
// enumeration source first and degrades gracefully: a failing source never
// aborts the whole update, and partial results are never rolled back.
//
// Returns true only if every sub-step succeeded for every process; a false
// result still leaves the container in a valid, best-effort-complete
// state.
func (s *System) Scan() bool {
	complete := true

	if err := s.ScanProcessesAndThreads(); err != nil {
		s.log.Warn("Process and thread snapshot failed: ", err)
		// Fall back to plain process discovery, then backfill threads for
		// each known process individually.
		if err := s.ScanProcessesFast(); err != nil {
			s.log.Warn("Fast process enumeration failed: ", err)
			complete = false
		}
		for _, p := range s.procs {
			if err := p.ScanThreads(); err != nil {
				s.log.Debugln("Thread scan failed for process", p.pid, ":", err)
				complete = false
			}
		}
	}

	// The session source fills in filenames the other sources could not
	// obtain, and corroborates liveness.
	if err := s.ScanSessionProcesses(); err != nil {
		s.log.Warn("Session process enumeration failed: ", err)
		complete = false
	}

	if !s.ScanModules() {
		complete = false
	}
	if !s.ScanProcessFilenames() {
		complete = false
	}

	s.scanned = true
	return complete
}

// ScanProcessesAndThreads refreshes processes and threads from the
// snapshot source in one pass. On error the container is not modified.
func (s *System) ScanProcessesAndThreads() error {
	procs, threads, err := s.api.SnapshotProcesses()
	if err != nil {
		return err
	}
	self := s.api.CurrentProcessID()

	dead := s.deadCandidates(self)
	for _, pe := range procs {
		if pe.PID == self {
			continue
		}
		delete(dead, pe.PID)
		if p, ok := s.procs[pe.PID]; ok {
			p.setFilename(pe.Filename)
		} else {
			s.addProcess(newProcess(s.api, pe.PID, pe.Filename))
		}
	}

	found := make(map[debugapi.ThreadID]bool, len(threads))
	for _, te := range threads {
		if te.Owner == self {
			continue
		}
		delete(dead, te.Owner)
		p, ok := s.procs[te.Owner]
		if !ok {
			p = newProcess(s.api, te.Owner, "")
			s.addProcess(p)
		}
		if !p.HasThread(te.TID) {
			p.addThread(te.TID)
		}
		found[te.TID] = true
	}

	for pid := range dead {
		s.delProcess(pid)
	}
	// Remove threads no longer reported.
	for _, p := range s.procs {
		for tid := range p.threads {
			if !found[tid] {
				p.delThread(tid)
			}
		}
	}
	return nil
}

// ScanProcessesFast refreshes the process set from the cheap ID-only
// source. Threads and metadata of living processes are left untouched.
func (s *System) ScanProcessesFast() error {
	pids, err := s.api.EnumProcessIDs()
	if err != nil {
		return err
	}
	self := s.api.CurrentProcessID()

	dead := s.deadCandidates(self)
	for _, pid := range pids {
		if pid == self {
			continue
		}
		delete(dead, pid)
		if _, ok := s.procs[pid]; !ok {
			s.addProcess(newProcess(s.api, pid, ""))
		}
	}
	for pid := range dead {
		s.delProcess(pid)
	}
	return nil
}

// ScanSessionProcesses refreshes the process set from the session
// enumeration source, which reports filenames through a different
// privilege path.
func (s *System) ScanSessionProcesses() error {
	entries, err := s.api.EnumSessionProcesses()
	if err != nil {
		return err
	}
	self := s.api.CurrentProcessID()

	dead := s.deadCandidates(self)
	for _, pe := range entries {
		if pe.PID == self {
			continue
		}
		delete(dead, pe.PID)
		if p, ok := s.procs[pe.PID]; ok {
			p.setFilename(pe.Filename)
		} else {
			s.addProcess(newProcess(s.api, pe.PID, pe.Filename))
		}
	}
	for pid := range dead {
		s.delProcess(pid)
	}
	return nil
}

// ScanModules refreshes the module collection of every tracked process.
// Per-process failures are tolerated; returns true when every process
// could be scanned.
func (s *System) ScanModules() bool {
	complete := true
	for _, p := range s.procs {
		if err := p.ScanModules(); err != nil {
			s.log.Debugln("Module scan failed for process", p.pid, ":", err)
			complete = false
		}
	}
	return complete
}

// ScanProcessFilenames upgrades cached filenames to full pathnames where
// possible. Sources like the session enumeration report basenames only;
// the image name query returns the full path but needs process access.
// Returns true when every process ended up with a full pathname.
func (s *System) ScanProcessFilenames() bool {
	complete := true
	for _, p := range s.procs {
		name, err := p.imageName()
		if err != nil || name == "" {
			complete = false
			continue
		}
		p.fileName = name
	}
	return complete
}

// deadCandidates seeds reconciliation with every currently tracked pid.
// IDs corroborated by the running source get removed from the set; the
// remainder is torn down. The inspecting process itself never takes part
// in death bookkeeping.
func (s *System) deadCandidates(self debugapi.ProcessID) map[debugapi.ProcessID]bool {
	dead := make(map[debugapi.ProcessID]bool, len(s.procs))
	for pid := range s.procs {
		if pid != self {
			dead[pid] = true
		}
	}
	return dead
}
