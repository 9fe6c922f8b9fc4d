//go:build windows

package winapi

import (
	"errors"
	"unsafe"

	"golang.org/x/sys/windows"

	"procsnap/debugapi"
)

func (a *API) EnumProcessIDs() ([]debugapi.ProcessID, error) {
	pids := make([]uint32, 1024)
	for {
		var got uint32
		if err := windows.EnumProcesses(pids, &got); err != nil {
			return nil, classify("EnumProcesses", err)
		}
		n := int(got) / 4
		if n < len(pids) {
			out := make([]debugapi.ProcessID, n)
			for i := 0; i < n; i++ {
				out[i] = debugapi.ProcessID(pids[i])
			}
			return out, nil
		}
		pids = make([]uint32, len(pids)*2)
	}
}

// SnapshotProcesses walks a single combined toolhelp snapshot so the
// process and thread views come from the same instant.
func (a *API) SnapshotProcesses() ([]debugapi.ProcessEntry, []debugapi.ThreadEntry, error) {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS|windows.TH32CS_SNAPTHREAD, 0)
	if err != nil {
		return nil, nil, classify("CreateToolhelp32Snapshot", err)
	}
	defer windows.CloseHandle(snap)

	var procs []debugapi.ProcessEntry
	var pe windows.ProcessEntry32
	pe.Size = uint32(unsafe.Sizeof(pe))
	err = windows.Process32First(snap, &pe)
	for err == nil {
		procs = append(procs, debugapi.ProcessEntry{
			PID:      debugapi.ProcessID(pe.ProcessID),
			Filename: windows.UTF16ToString(pe.ExeFile[:]),
		})
		err = windows.Process32Next(snap, &pe)
	}
	if !errors.Is(err, windows.ERROR_NO_MORE_FILES) {
		return nil, nil, classify("Process32Next", err)
	}

	var threads []debugapi.ThreadEntry
	var te windows.ThreadEntry32
	te.Size = uint32(unsafe.Sizeof(te))
	err = windows.Thread32First(snap, &te)
	for err == nil {
		threads = append(threads, debugapi.ThreadEntry{
			TID:   debugapi.ThreadID(te.ThreadID),
			Owner: debugapi.ProcessID(te.OwnerProcessID),
		})
		err = windows.Thread32Next(snap, &te)
	}
	if !errors.Is(err, windows.ERROR_NO_MORE_FILES) {
		return nil, nil, classify("Thread32Next", err)
	}
	return procs, threads, nil
}

const wtsCurrentServerHandle = 0

// wtsProcessInfo mirrors WTS_PROCESS_INFOW.
type wtsProcessInfo struct {
	SessionID   uint32
	ProcessID   uint32
	ProcessName *uint16
	UserSid     uintptr
}

func (a *API) EnumSessionProcesses() ([]debugapi.ProcessEntry, error) {
	var info *wtsProcessInfo
	var count uint32
	ret, _, err := procWTSEnumerateProcessesW.Call(
		wtsCurrentServerHandle,
		0,
		1,
		uintptr(unsafe.Pointer(&info)),
		uintptr(unsafe.Pointer(&count)),
	)
	if ret == 0 {
		return nil, classify("WTSEnumerateProcesses", err)
	}
	defer procWTSFreeMemory.Call(uintptr(unsafe.Pointer(info)))

	entries := unsafe.Slice(info, count)
	out := make([]debugapi.ProcessEntry, 0, count)
	for _, e := range entries {
		name := ""
		if e.ProcessName != nil {
			name = windows.UTF16PtrToString(e.ProcessName)
		}
		out = append(out, debugapi.ProcessEntry{
			PID:      debugapi.ProcessID(e.ProcessID),
			Filename: name,
		})
	}
	return out, nil
}

func (a *API) EnumModules(pid debugapi.ProcessID) ([]debugapi.ModuleEntry, error) {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPMODULE|windows.TH32CS_SNAPMODULE32, uint32(pid))
	if err != nil {
		return nil, classify("CreateToolhelp32Snapshot", err)
	}
	defer windows.CloseHandle(snap)

	var out []debugapi.ModuleEntry
	var me windows.ModuleEntry32
	me.Size = uint32(unsafe.Sizeof(me))
	err = windows.Module32First(snap, &me)
	for err == nil {
		out = append(out, debugapi.ModuleEntry{
			Base: debugapi.Address(me.ModBaseAddr),
			Size: uint64(me.ModBaseSize),
			Path: windows.UTF16ToString(me.ExePath[:]),
		})
		err = windows.Module32Next(snap, &me)
	}
	if !errors.Is(err, windows.ERROR_NO_MORE_FILES) {
		return nil, classify("Module32Next", err)
	}
	return out, nil
}
