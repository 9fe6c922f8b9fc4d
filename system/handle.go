package system

import (
	"github.com/Moonlight-Companies/gologger/logger"

	"procsnap/debugapi"
)

type handleKind int

const (
	processHandle handleKind = iota
	threadHandle
)

// HandleManager owns at most one native handle to a process or thread and
// tracks the access rights it was opened with. Get reuses the held handle
// when its rights cover the request and reopens with merged rights when
// they do not, so rights only ever grow.
type HandleManager struct {
	api    debugapi.API
	kind   handleKind
	pid    debugapi.ProcessID
	tid    debugapi.ThreadID
	handle debugapi.Handle
	rights debugapi.Rights
	log    *logger.Logger
}

func newProcessHandleManager(api debugapi.API, pid debugapi.ProcessID, log *logger.Logger) *HandleManager {
	return &HandleManager{api: api, kind: processHandle, pid: pid, log: log}
}

func newThreadHandleManager(api debugapi.API, tid debugapi.ThreadID, log *logger.Logger) *HandleManager {
	return &HandleManager{api: api, kind: threadHandle, tid: tid, log: log}
}

// Get returns a handle guaranteed to carry at least the requested rights.
// Callers must not assume handle identity is stable across calls: any Get
// may silently reopen the handle.
func (m *HandleManager) Get(min debugapi.Rights) (debugapi.Handle, error) {
	if m.handle != debugapi.InvalidHandle && m.rights.Superset(min) {
		return m.handle, nil
	}
	want := m.rights | min
	var h debugapi.Handle
	var err error
	if m.kind == processHandle {
		h, err = m.api.OpenProcess(m.pid, want)
	} else {
		h, err = m.api.OpenThread(m.tid, want)
	}
	if err != nil {
		// The old handle, if any, stays usable for its original rights.
		return debugapi.InvalidHandle, err
	}
	m.Close()
	m.handle = h
	m.rights = want
	return h, nil
}

// Adopt takes ownership of a handle opened elsewhere, for example by
// process creation. Any previously held handle is closed.
func (m *HandleManager) Adopt(h debugapi.Handle, rights debugapi.Rights) {
	m.Close()
	m.handle = h
	m.rights = rights
}

// Held reports whether a handle is currently owned.
func (m *HandleManager) Held() bool {
	return m.handle != debugapi.InvalidHandle
}

// Rights returns the rights mask of the held handle, zero when none.
func (m *HandleManager) Rights() debugapi.Rights {
	return m.rights
}

// Close releases the held handle. It is idempotent, and close failures are
// logged rather than returned: leaking the OS handle would be worse than a
// failed close.
func (m *HandleManager) Close() {
	if m.handle == debugapi.InvalidHandle {
		return
	}
	if err := m.api.CloseHandle(m.handle); err != nil {
		m.log.Warn("Failed to close handle: ", err)
	}
	m.handle = debugapi.InvalidHandle
	m.rights = 0
}
