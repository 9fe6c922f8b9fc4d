package system

import (
	"errors"
	"fmt"
	"time"

	"procsnap/debugapi"
)

// SnapshotRegion is one captured region: its descriptor, the name of the
// file backing it when mapped, and its bytes when the region had content
// at capture time.
type SnapshotRegion struct {
	Region   debugapi.Region
	Filename string
	Content  []byte // nil when the region had no content
}

// MemorySnapshot is a materialized, immutable, ordered capture of a
// process's address space. It is the only snapshot kind accepted by
// RestoreMemorySnapshot; the re-querying generator variant is
// SnapshotWalker.
type MemorySnapshot struct {
	PID     debugapi.ProcessID
	TakenAt time.Time
	Regions []SnapshotRegion
}

// RestoreOptions controls RestoreMemorySnapshot.
type RestoreOptions struct {
	// RestoreMappedFiles also writes captured content back into regions
	// backed by mapped files. Off by default: the OS may flush such writes
	// to the backing file on disk.
	RestoreMappedFiles bool

	// ContinueOnError turns per-region failures into logged warnings
	// instead of aborting the restore.
	ContinueOnError bool
}

// mappedFileName resolves the file backing a mapped or image region,
// treating denied access as "no name". Results are cached per allocation
// base: the backing file of a mapping cannot change while it stays mapped.
func (p *Process) mappedFileName(h debugapi.Handle, r debugapi.Region) (string, error) {
	if !r.IsMapped() && !r.IsImage() {
		return "", nil
	}
	if name, ok := p.mappedNames.Get(r.AllocBase); ok {
		return name.(string), nil
	}
	name, err := p.api.MappedFileName(h, r.Base)
	if err != nil {
		if errors.Is(err, debugapi.ErrAccessDenied) || errors.Is(err, debugapi.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	if name != "" {
		p.mappedNames.Add(r.AllocBase, name)
	}
	return name, nil
}

// trimSnapshotBounds clips the first and last region to the page-aligned
// requested bounds.
func (p *Process) trimSnapshotBounds(regions []debugapi.Region, minAddr, maxAddr debugapi.Address) {
	if len(regions) == 0 {
		return
	}
	page := debugapi.Address(p.api.PageSize())
	if minAddr != 0 {
		lo := minAddr &^ (page - 1)
		first := &regions[0]
		if first.Base < lo {
			first.Size = uint64(first.End() - lo)
			first.Base = lo
		}
	}
	if maxAddr != 0 {
		hi := (maxAddr + page - 1) &^ (page - 1)
		last := &regions[len(regions)-1]
		if last.End() > hi {
			last.Size = uint64(hi - last.Base)
		}
	}
}

// TakeMemorySnapshot captures the layout and contents of [minAddr,
// maxAddr), or of the full user address space when maxAddr is zero. The
// target should be quiescent (suspended) for a consistent capture.
func (p *Process) TakeMemorySnapshot(minAddr, maxAddr debugapi.Address) (*MemorySnapshot, error) {
	regions, err := p.MemoryMap(minAddr, maxAddr)
	if err != nil {
		return nil, err
	}
	snap := &MemorySnapshot{PID: p.pid, TakenAt: time.Now()}
	if len(regions) == 0 {
		return snap, nil
	}
	p.trimSnapshotBounds(regions, minAddr, maxAddr)

	h, err := p.handle.Get(debugapi.ProcessVMRead | debugapi.ProcessQueryInformation)
	if err != nil {
		return nil, err
	}
	snap.Regions = make([]SnapshotRegion, 0, len(regions))
	for _, r := range regions {
		sr := SnapshotRegion{Region: r}
		sr.Filename, err = p.mappedFileName(h, r)
		if err != nil {
			return nil, err
		}
		if r.HasContent() {
			sr.Content, err = p.Read(r.Base, r.Size)
			if err != nil {
				return nil, err
			}
		}
		snap.Regions = append(snap.Regions, sr)
	}
	return snap, nil
}

// SnapshotWalker is the generator variant of a memory snapshot: each
// region is re-queried and re-read as the walk advances, so iterating
// twice observes the target twice. It is not valid input to
// RestoreMemorySnapshot.
type SnapshotWalker struct {
	p       *Process
	minAddr debugapi.Address
	maxAddr debugapi.Address
	walker  *RegionWalker
	err     error
}

// GenerateMemorySnapshot returns a walker over the snapshot of [minAddr,
// maxAddr) that touches the OS lazily, one region at a time.
func (p *Process) GenerateMemorySnapshot(minAddr, maxAddr debugapi.Address) *SnapshotWalker {
	return &SnapshotWalker{p: p, minAddr: minAddr, maxAddr: maxAddr}
}

// Next captures and returns the next region.
func (w *SnapshotWalker) Next() (SnapshotRegion, bool) {
	if w.err != nil {
		return SnapshotRegion{}, false
	}
	if w.walker == nil {
		w.walker = w.p.IterMemoryMap(w.minAddr, w.maxAddr)
	}
	r, ok := w.walker.Next()
	if !ok {
		w.err = w.walker.Err()
		return SnapshotRegion{}, false
	}
	h, err := w.p.handle.Get(debugapi.ProcessVMRead | debugapi.ProcessQueryInformation)
	if err != nil {
		w.err = err
		return SnapshotRegion{}, false
	}
	sr := SnapshotRegion{Region: r}
	if sr.Filename, w.err = w.p.mappedFileName(h, r); w.err != nil {
		return SnapshotRegion{}, false
	}
	if r.HasContent() {
		if sr.Content, w.err = w.p.Read(r.Base, r.Size); w.err != nil {
			return SnapshotRegion{}, false
		}
	}
	return sr, true
}

// Err returns the first error encountered by the walk.
func (w *SnapshotWalker) Err() error {
	return w.err
}

// Reset rewinds the walker so the snapshot can be taken again.
func (w *SnapshotWalker) Reset() {
	w.walker = nil
	w.err = nil
}

// validateSnapshot rejects malformed input before any mutation happens.
func (p *Process) validateSnapshot(snap *MemorySnapshot) error {
	if snap == nil || len(snap.Regions) == 0 {
		return fmt.Errorf("restore: empty snapshot: %w", debugapi.ErrInvalidArgument)
	}
	page := debugapi.Address(p.api.PageSize())
	for _, sr := range snap.Regions {
		if sr.Region.Size == 0 {
			return fmt.Errorf("restore: zero-size region at %s: %w", sr.Region.Base, debugapi.ErrInvalidArgument)
		}
		if sr.Region.Base&(page-1) != 0 {
			return fmt.Errorf("restore: unaligned region at %s: %w", sr.Region.Base, debugapi.ErrInvalidArgument)
		}
		if sr.Content != nil && uint64(len(sr.Content)) != sr.Region.Size {
			return fmt.Errorf("restore: content size mismatch at %s: %w", sr.Region.Base, debugapi.ErrInvalidArgument)
		}
	}
	return nil
}

// RestoreMemorySnapshot reapplies a materialized snapshot to the process:
// region state, protection and content, handling every free, reserved and
// committed transition. The target is suspended for the whole operation
// and resumed afterward no matter the outcome.
//
// Per-region errors abort the restore by default, leaving the
// already-applied regions in place; with RestoreOptions.ContinueOnError
// they are logged and the loop moves on.
func (p *Process) RestoreMemorySnapshot(snap *MemorySnapshot, opts RestoreOptions) error {
	if err := p.validateSnapshot(snap); err != nil {
		return err
	}
	h, err := p.handle.Get(debugapi.ProcessVMWrite | debugapi.ProcessVMOperation |
		debugapi.ProcessSuspendResume | debugapi.ProcessQueryInformation)
	if err != nil {
		return err
	}

	if err := p.Suspend(); err != nil {
		return err
	}
	defer func() {
		if err := p.Resume(); err != nil {
			p.log.Warn("Failed to resume process after restore: ", err)
		}
	}()

	page := debugapi.Address(p.api.PageSize())
	for _, old := range snap.Regions {
		err := p.restoreOne(h, old, page, opts)
		if err != nil {
			if !opts.ContinueOnError {
				return err
			}
			p.log.Warn("Skipping region during restore: ", err)
		}
	}
	return nil
}

// restoreOne restores one captured region, directly when the current
// layout still matches it and page-by-page when the layout fragmented or
// merged since the capture. Each page is restored against a fresh query
// of its current state, so a capture spanning what are now several
// regions still comes back whole.
func (p *Process) restoreOne(h debugapi.Handle, old SnapshotRegion, page debugapi.Address, opts RestoreOptions) error {
	cur, err := p.MQuery(old.Region.Base)
	if err != nil {
		return fmt.Errorf("restore at %s: %w", old.Region.Base, err)
	}
	if cur.Base == old.Region.Base && cur.Size == old.Region.Size {
		return p.restoreRegion(h, cur, old, opts)
	}

	for addr := old.Region.Base; addr < old.Region.End(); addr += page {
		size := uint64(page)
		if remaining := uint64(old.Region.End() - addr); remaining < size {
			size = remaining
		}
		curPage, err := p.MQuery(addr)
		if err != nil {
			return fmt.Errorf("restore at %s: %w", addr, err)
		}
		curPage.Base = addr
		curPage.Size = size
		oldPage := old
		oldPage.Region.Base = addr
		oldPage.Region.Size = size
		if old.Content != nil {
			off := uint64(addr - old.Region.Base)
			oldPage.Content = old.Content[off : off+size]
		}
		if err := p.restoreRegion(h, curPage, oldPage, opts); err != nil {
			return err
		}
	}
	return nil
}

// restoreRegion applies the transition table between the observed state
// (cur) and the captured state (old), then restores protection and
// content.
func (p *Process) restoreRegion(h debugapi.Handle, cur debugapi.Region, old SnapshotRegion, opts RestoreOptions) error {
	want := old.Region
	curProtect := cur.Protect

	if cur.State != want.State {
		switch {
		case cur.IsFree():
			// Free -> Reserved, Free -> Committed. The allocation must
			// land at the captured address; anything else is unusable.
			alloc := debugapi.AllocReserve
			if want.IsCommitted() {
				alloc |= debugapi.AllocCommit
			}
			addr, err := p.api.AllocRegion(h, want.Base, want.Size, alloc, want.Protect)
			if err != nil {
				return fmt.Errorf("restore at %s: %w", want.Base, err)
			}
			if addr != want.Base {
				if ferr := p.api.FreeRegion(h, addr, 0, debugapi.FreeRelease); ferr != nil {
					p.log.Warn("Failed to free misplaced allocation: ", ferr)
				}
				return fmt.Errorf("restore at %s: allocation landed at %s instead", want.Base, addr)
			}
			curProtect = want.Protect

		case cur.IsReserved():
			if want.IsCommitted() {
				// Reserved -> Committed.
				addr, err := p.api.AllocRegion(h, want.Base, want.Size, debugapi.AllocCommit, want.Protect)
				if err != nil {
					return fmt.Errorf("restore at %s: %w", want.Base, err)
				}
				if addr != want.Base {
					return fmt.Errorf("restore at %s: commit landed at %s instead", want.Base, addr)
				}
				curProtect = want.Protect
			} else {
				// Reserved -> Free.
				if err := p.api.FreeRegion(h, want.Base, want.Size, debugapi.FreeRelease); err != nil {
					return fmt.Errorf("restore at %s: %w", want.Base, err)
				}
			}

		default: // cur committed
			if want.IsReserved() {
				// Committed -> Reserved.
				if err := p.api.FreeRegion(h, want.Base, want.Size, debugapi.FreeDecommit); err != nil {
					return fmt.Errorf("restore at %s: %w", want.Base, err)
				}
			} else {
				// Committed -> Free.
				if err := p.api.FreeRegion(h, want.Base, want.Size, debugapi.FreeDecommit); err != nil {
					return fmt.Errorf("restore at %s: %w", want.Base, err)
				}
				if err := p.api.FreeRegion(h, want.Base, want.Size, debugapi.FreeRelease); err != nil {
					return fmt.Errorf("restore at %s: %w", want.Base, err)
				}
			}
		}
	}

	if want.IsCommitted() && want.Protect != curProtect {
		if _, err := p.api.ProtectRegion(h, want.Base, want.Size, want.Protect); err != nil {
			return fmt.Errorf("restore at %s: %w", want.Base, err)
		}
	}

	if old.Content == nil {
		return nil
	}
	if want.Type == debugapi.MemMapped || want.Type == debugapi.MemImage {
		// Writing into a mapped file's region can have disk side effects;
		// only do it on explicit request, and best-effort.
		if opts.RestoreMappedFiles {
			if _, err := p.Poke(want.Base, old.Content); err != nil {
				return fmt.Errorf("restore at %s: %w", want.Base, err)
			}
		}
		return nil
	}
	if err := p.Write(want.Base, old.Content); err != nil {
		return fmt.Errorf("restore at %s: %w", want.Base, err)
	}
	return nil
}
