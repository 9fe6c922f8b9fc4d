package system

import (
	"encoding/binary"
	"math"

	"procsnap/debugapi"
)

// Typed accessors layer on Read, Peek and Poke. Multi-byte values use the
// platform byte order of the supported targets, which is little endian.

// ReadUint8 reads an unsigned 8-bit integer at addr.
func (p *Process) ReadUint8(addr debugapi.Address) (uint8, error) {
	data, err := p.Read(addr, 1)
	if err != nil {
		return 0, err
	}
	return data[0], nil
}

// ReadUint16 reads an unsigned 16-bit integer at addr.
func (p *Process) ReadUint16(addr debugapi.Address) (uint16, error) {
	data, err := p.Read(addr, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(data), nil
}

// ReadUint32 reads an unsigned 32-bit integer at addr.
func (p *Process) ReadUint32(addr debugapi.Address) (uint32, error) {
	data, err := p.Read(addr, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(data), nil
}

// ReadUint64 reads an unsigned 64-bit integer at addr.
func (p *Process) ReadUint64(addr debugapi.Address) (uint64, error) {
	data, err := p.Read(addr, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(data), nil
}

// ReadInt8 reads a signed 8-bit integer at addr.
func (p *Process) ReadInt8(addr debugapi.Address) (int8, error) {
	v, err := p.ReadUint8(addr)
	return int8(v), err
}

// ReadInt16 reads a signed 16-bit integer at addr.
func (p *Process) ReadInt16(addr debugapi.Address) (int16, error) {
	v, err := p.ReadUint16(addr)
	return int16(v), err
}

// ReadInt32 reads a signed 32-bit integer at addr.
func (p *Process) ReadInt32(addr debugapi.Address) (int32, error) {
	v, err := p.ReadUint32(addr)
	return int32(v), err
}

// ReadInt64 reads a signed 64-bit integer at addr.
func (p *Process) ReadInt64(addr debugapi.Address) (int64, error) {
	v, err := p.ReadUint64(addr)
	return int64(v), err
}

// ReadFloat32 reads a 32-bit floating point number at addr.
func (p *Process) ReadFloat32(addr debugapi.Address) (float32, error) {
	v, err := p.ReadUint32(addr)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// ReadFloat64 reads a 64-bit floating point number at addr.
func (p *Process) ReadFloat64(addr debugapi.Address) (float64, error) {
	v, err := p.ReadUint64(addr)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// ReadPointer reads a pointer-sized integer at addr.
func (p *Process) ReadPointer(addr debugapi.Address) (debugapi.Address, error) {
	v, err := p.ReadUint64(addr)
	return debugapi.Address(v), err
}

// WriteUint8 writes an unsigned 8-bit integer at addr.
func (p *Process) WriteUint8(addr debugapi.Address, v uint8) error {
	return p.Write(addr, []byte{v})
}

// WriteUint16 writes an unsigned 16-bit integer at addr.
func (p *Process) WriteUint16(addr debugapi.Address, v uint16) error {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, v)
	return p.Write(addr, buf)
}

// WriteUint32 writes an unsigned 32-bit integer at addr.
func (p *Process) WriteUint32(addr debugapi.Address, v uint32) error {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	return p.Write(addr, buf)
}

// WriteUint64 writes an unsigned 64-bit integer at addr.
func (p *Process) WriteUint64(addr debugapi.Address, v uint64) error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	return p.Write(addr, buf)
}

// WriteFloat32 writes a 32-bit floating point number at addr.
func (p *Process) WriteFloat32(addr debugapi.Address, v float32) error {
	return p.WriteUint32(addr, math.Float32bits(v))
}

// WriteFloat64 writes a 64-bit floating point number at addr.
func (p *Process) WriteFloat64(addr debugapi.Address, v float64) error {
	return p.WriteUint64(addr, math.Float64bits(v))
}

// WritePointer writes a pointer-sized integer at addr.
func (p *Process) WritePointer(addr debugapi.Address, v debugapi.Address) error {
	return p.WriteUint64(addr, uint64(v))
}

// peekFixed reads size bytes best-effort and zero-pads a short result on
// the high side, so a truncated little-endian value keeps its low bytes.
func (p *Process) peekFixed(addr debugapi.Address, size uint64) []byte {
	data, err := p.Peek(addr, size)
	if err != nil {
		p.log.Debugln("Peek failed:", err)
	}
	if uint64(len(data)) < size {
		padded := make([]byte, size)
		copy(padded, data)
		return padded
	}
	return data[:size]
}

// PeekUint32 reads an unsigned 32-bit integer at addr, zero on unreadable
// memory.
func (p *Process) PeekUint32(addr debugapi.Address) uint32 {
	return binary.LittleEndian.Uint32(p.peekFixed(addr, 4))
}

// PeekUint64 reads an unsigned 64-bit integer at addr, zero on unreadable
// memory.
func (p *Process) PeekUint64(addr debugapi.Address) uint64 {
	return binary.LittleEndian.Uint64(p.peekFixed(addr, 8))
}

// PeekPointer reads a pointer-sized integer at addr, zero on unreadable
// memory.
func (p *Process) PeekPointer(addr debugapi.Address) debugapi.Address {
	return debugapi.Address(p.PeekUint64(addr))
}

// PokePointer writes a pointer-sized integer at addr, adjusting protection
// as needed. Returns the number of bytes written.
func (p *Process) PokePointer(addr debugapi.Address, v debugapi.Address) (int, error) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(v))
	return p.Poke(addr, buf)
}
