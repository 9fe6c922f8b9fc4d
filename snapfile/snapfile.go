// Package snapfile persists memory snapshots to disk. A snapshot file is
// a small magic header followed by a zstd-compressed JSON document, so it
// stays inspectable with standard tools after decompression.
package snapfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/klauspost/compress/zstd"

	"procsnap/debugapi"
	"procsnap/system"
)

const (
	fileMagic   = "PSNAP"
	fileVersion = 1
)

var (
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

type fileDoc struct {
	Version int          `json:"version"`
	PID     uint32       `json:"pid"`
	TakenAt time.Time    `json:"taken_at"`
	Regions []fileRegion `json:"regions"`
}

type fileRegion struct {
	Base         uint64 `json:"base"`
	AllocBase    uint64 `json:"alloc_base"`
	Size         uint64 `json:"size"`
	State        uint32 `json:"state"`
	Protect      uint32 `json:"protect"`
	AllocProtect uint32 `json:"alloc_protect"`
	Type         uint32 `json:"type"`
	Filename     string `json:"filename,omitempty"`
	Content      []byte `json:"content,omitempty"` // json encodes as base64
	HasContent   bool   `json:"has_content"`
}

// Save writes the snapshot to path, replacing any existing file.
func Save(path string, snap *system.MemorySnapshot) error {
	if snap == nil {
		return fmt.Errorf("save %s: nil snapshot: %w", path, debugapi.ErrInvalidArgument)
	}
	doc := fileDoc{
		Version: fileVersion,
		PID:     uint32(snap.PID),
		TakenAt: snap.TakenAt,
		Regions: make([]fileRegion, 0, len(snap.Regions)),
	}
	for _, sr := range snap.Regions {
		doc.Regions = append(doc.Regions, fileRegion{
			Base:         uint64(sr.Region.Base),
			AllocBase:    uint64(sr.Region.AllocBase),
			Size:         sr.Region.Size,
			State:        uint32(sr.Region.State),
			Protect:      uint32(sr.Region.Protect),
			AllocProtect: uint32(sr.Region.AllocProtect),
			Type:         uint32(sr.Region.Type),
			Filename:     sr.Filename,
			Content:      sr.Content,
			HasContent:   sr.Content != nil,
		})
	}
	raw, err := json.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("save %s: %v", path, err)
	}
	buf := make([]byte, 0, len(fileMagic)+1+len(raw)/3)
	buf = append(buf, fileMagic...)
	buf = append(buf, fileVersion)
	buf = zstdEncoder.EncodeAll(raw, buf)
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("save %s: %v", path, err)
	}
	return nil
}

// Load reads a snapshot file written by Save.
func Load(path string) (*system.MemorySnapshot, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %v", path, err)
	}
	if len(buf) < len(fileMagic)+1 || !bytes.HasPrefix(buf, []byte(fileMagic)) {
		return nil, fmt.Errorf("load %s: not a snapshot file: %w", path, debugapi.ErrInvalidArgument)
	}
	if v := buf[len(fileMagic)]; v != fileVersion {
		return nil, fmt.Errorf("load %s: unsupported version %d: %w", path, v, debugapi.ErrInvalidArgument)
	}
	raw, err := zstdDecoder.DecodeAll(buf[len(fileMagic)+1:], nil)
	if err != nil {
		return nil, fmt.Errorf("load %s: %v", path, err)
	}
	var doc fileDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("load %s: %v", path, err)
	}
	snap := &system.MemorySnapshot{
		PID:     debugapi.ProcessID(doc.PID),
		TakenAt: doc.TakenAt,
		Regions: make([]system.SnapshotRegion, 0, len(doc.Regions)),
	}
	for _, fr := range doc.Regions {
		sr := system.SnapshotRegion{
			Region: debugapi.Region{
				Base:         debugapi.Address(fr.Base),
				AllocBase:    debugapi.Address(fr.AllocBase),
				Size:         fr.Size,
				State:        debugapi.State(fr.State),
				Protect:      debugapi.Protect(fr.Protect),
				AllocProtect: debugapi.Protect(fr.AllocProtect),
				Type:         debugapi.RegionType(fr.Type),
			},
			Filename: fr.Filename,
		}
		if fr.HasContent {
			sr.Content = fr.Content
			if sr.Content == nil {
				sr.Content = []byte{}
			}
		}
		snap.Regions = append(snap.Regions, sr)
	}
	return snap, nil
}
