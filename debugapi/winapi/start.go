//go:build windows

package winapi

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"

	"procsnap/debugapi"
)

// StartProcess creates a new process from a command line. The custom
// parent, trust level and elevation options require token plumbing this
// implementation does not carry, so non-default values are rejected
// rather than silently ignored.
func (a *API) StartProcess(cmdline string, opts debugapi.StartOptions) (debugapi.StartedProcess, error) {
	var none debugapi.StartedProcess
	if opts.ParentProcess != 0 {
		return none, fmt.Errorf("%w: custom parent process", debugapi.ErrUnsupported)
	}
	if opts.TrustLevel != debugapi.TrustNormal {
		return none, fmt.Errorf("%w: custom trust level", debugapi.ErrUnsupported)
	}
	if opts.AllowElevation {
		return none, fmt.Errorf("%w: elevation request", debugapi.ErrUnsupported)
	}
	if opts.FollowChildren && !opts.AttachDebugger {
		return none, fmt.Errorf("%w: FollowChildren requires AttachDebugger", debugapi.ErrInvalidArgument)
	}

	var flags uint32
	if opts.AttachDebugger {
		if opts.FollowChildren {
			flags |= windows.DEBUG_PROCESS
		} else {
			flags |= windows.DEBUG_ONLY_THIS_PROCESS
		}
	}
	if opts.StartSuspended {
		flags |= windows.CREATE_SUSPENDED
	}
	if !opts.InheritConsole {
		flags |= windows.CREATE_NEW_CONSOLE
	}

	cmd, err := windows.UTF16PtrFromString(cmdline)
	if err != nil {
		return none, fmt.Errorf("%w: command line: %v", debugapi.ErrInvalidArgument, err)
	}

	var si windows.StartupInfo
	si.Cb = uint32(unsafe.Sizeof(si))
	var pi windows.ProcessInformation
	err = windows.CreateProcess(nil, cmd, nil, nil, opts.InheritHandles, flags, nil, nil, &si, &pi)
	if err != nil {
		return none, classify("CreateProcess", err)
	}
	return debugapi.StartedProcess{
		PID:           debugapi.ProcessID(pi.ProcessId),
		TID:           debugapi.ThreadID(pi.ThreadId),
		ProcessHandle: debugapi.Handle(pi.Process),
		ThreadHandle:  debugapi.Handle(pi.Thread),
	}, nil
}
