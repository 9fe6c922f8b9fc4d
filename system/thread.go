package system

import (
	"fmt"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"

	"procsnap/debugapi"
)

// Thread is one thread of a tracked process. It holds the owning process
// id, never a pointer back to the Process, so teardown cannot leave a
// reference cycle behind.
type Thread struct {
	tid    debugapi.ThreadID
	owner  debugapi.ProcessID
	handle *HandleManager
	log    *logger.Logger
}

func newThread(api debugapi.API, tid debugapi.ThreadID, owner debugapi.ProcessID) *Thread {
	log := logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, fmt.Sprintf("thread-%d", tid)))
	return &Thread{
		tid:    tid,
		owner:  owner,
		handle: newThreadHandleManager(api, tid, log),
		log:    log,
	}
}

// TID returns the thread ID.
func (t *Thread) TID() debugapi.ThreadID {
	return t.tid
}

// Owner returns the ID of the process the thread belongs to.
func (t *Thread) Owner() debugapi.ProcessID {
	return t.owner
}

// Handle exposes the thread's handle manager.
func (t *Thread) Handle() *HandleManager {
	return t.handle
}

// Suspend increments the thread's suspend count.
func (t *Thread) Suspend() error {
	h, err := t.handle.Get(debugapi.ThreadSuspendResume)
	if err != nil {
		return err
	}
	return t.handle.api.SuspendThread(h)
}

// Resume decrements the thread's suspend count.
func (t *Thread) Resume() error {
	h, err := t.handle.Get(debugapi.ThreadSuspendResume)
	if err != nil {
		return err
	}
	return t.handle.api.ResumeThread(h)
}

// GetContext returns the thread's register state. Callers wanting a
// coherent view suspend the thread first.
func (t *Thread) GetContext() (debugapi.ThreadContext, error) {
	h, err := t.handle.Get(debugapi.ThreadGetContext)
	if err != nil {
		return debugapi.ThreadContext{}, err
	}
	return t.handle.api.GetThreadContext(h)
}

// SetContext overwrites the thread's control and integer registers.
func (t *Thread) SetContext(ctx debugapi.ThreadContext) error {
	h, err := t.handle.Get(debugapi.ThreadSetContext)
	if err != nil {
		return err
	}
	return t.handle.api.SetThreadContext(h, ctx)
}

func (t *Thread) clear() {
	t.handle.Close()
}
