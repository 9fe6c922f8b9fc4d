package system

import (
	"errors"

	"procsnap/debugapi"
)

// RegionWalker is a lazy, forward-only walk over the memory map of a
// process. Each step issues one region query; the regions produced tile
// the requested range exactly.
type RegionWalker struct {
	p       *Process
	cursor  debugapi.Address
	prev    debugapi.Address
	max     debugapi.Address
	started bool
	done    bool
	err     error
}

// IterMemoryMap walks the memory map over [minAddr, maxAddr). A zero
// maxAddr means the end of the user address space; the bounds are aligned
// outward to page boundaries.
func (p *Process) IterMemoryMap(minAddr, maxAddr debugapi.Address) *RegionWalker {
	lo, hi := p.alignRange(minAddr, maxAddr)
	return &RegionWalker{p: p, cursor: lo, max: hi}
}

func (p *Process) alignRange(minAddr, maxAddr debugapi.Address) (debugapi.Address, debugapi.Address) {
	page := debugapi.Address(p.api.PageSize())
	lo, hi := p.api.UserAddressRange()
	if minAddr > lo {
		lo = minAddr &^ (page - 1)
	}
	if maxAddr != 0 && maxAddr < hi {
		hi = (maxAddr + page - 1) &^ (page - 1)
	}
	return lo, hi
}

// Next returns the next region. It returns false at the end of the range,
// at the end of the address space, or after an error; check Err afterward.
func (w *RegionWalker) Next() (debugapi.Region, bool) {
	if w.done || w.err != nil {
		return debugapi.Region{}, false
	}
	if w.cursor >= w.max {
		w.done = true
		return debugapi.Region{}, false
	}
	// A query reporting a non-increasing cursor would loop forever;
	// terminate instead.
	if w.started && w.cursor <= w.prev {
		w.done = true
		return debugapi.Region{}, false
	}
	h, err := w.p.handle.Get(debugapi.ProcessQueryInformation)
	if err != nil {
		w.err = err
		w.done = true
		return debugapi.Region{}, false
	}
	r, err := w.p.api.QueryRegion(h, w.cursor)
	if err != nil {
		// Past the last region means end of address space, not a failure.
		if !errors.Is(err, debugapi.ErrNotFound) {
			w.err = err
		}
		w.done = true
		return debugapi.Region{}, false
	}
	w.prev = w.cursor
	w.cursor = r.End()
	w.started = true
	return r, true
}

// Err returns the first error encountered during the walk, if any.
func (w *RegionWalker) Err() error {
	return w.err
}

// MemoryMap materializes the memory map over [minAddr, maxAddr).
func (p *Process) MemoryMap(minAddr, maxAddr debugapi.Address) ([]debugapi.Region, error) {
	walker := p.IterMemoryMap(minAddr, maxAddr)
	var out []debugapi.Region
	for {
		r, ok := walker.Next()
		if !ok {
			break
		}
		out = append(out, r)
	}
	return out, walker.Err()
}
