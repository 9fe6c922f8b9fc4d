package system

import (
	"strings"

	"procsnap/debugapi"
)

// baseName returns the last component of a path. Target paths are
// Windows-style regardless of the inspector's host, so this must not go
// through path/filepath.
func baseName(path string) string {
	if i := strings.LastIndexAny(path, `\/`); i >= 0 {
		return path[i+1:]
	}
	return path
}

// Module is one module loaded in a tracked process, identified by its base
// address within that process's address space. Like Thread it refers to
// its owner by ID only.
type Module struct {
	base  debugapi.Address
	size  uint64
	path  string
	owner debugapi.ProcessID
}

// Base returns the module's load address.
func (m *Module) Base() debugapi.Address {
	return m.base
}

// Size returns the size of the mapped image in bytes.
func (m *Module) Size() uint64 {
	return m.size
}

// Path returns the cached file path, possibly empty.
func (m *Module) Path() string {
	return m.path
}

// Name returns the base name of the module's file path.
func (m *Module) Name() string {
	if m.path == "" {
		return ""
	}
	return baseName(m.path)
}

// Owner returns the ID of the process the module is loaded in.
func (m *Module) Owner() debugapi.ProcessID {
	return m.owner
}
