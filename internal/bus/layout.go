package bus

import (
	"encoding/binary"
	"math"
)

// Shared regions are little-endian with fixed offsets so processes built
// from different commits still agree.
const (
	frameRecordSize = 24
	offSize         = 0
	offWidth        = 4
	offHeight       = 8
	offFrameID      = 16

	errorVectorSize = 12
	offErrX         = 0
	offErrY         = 4
	offErrZ         = 8

	controlHeaderSize = 32
	offMagic          = 0
	offVersion        = 4
	offReady          = 8
	offAttached       = 12
	offCapacity       = 16
	offCreatorPID     = 20

	// controlMagic is "DTRK" read as a little-endian u32.
	controlMagic  uint32 = 0x4b525444
	layoutVersion uint16 = 1
)

var le = binary.LittleEndian

func decodeFrameRecord(b []byte) FrameRecord {
	return FrameRecord{
		Size:    le.Uint32(b[offSize:]),
		Width:   le.Uint32(b[offWidth:]),
		Height:  le.Uint32(b[offHeight:]),
		FrameID: int64(le.Uint64(b[offFrameID:])),
	}
}

func encodeFrameRecord(b []byte, r FrameRecord) {
	le.PutUint32(b[offSize:], r.Size)
	le.PutUint32(b[offWidth:], r.Width)
	le.PutUint32(b[offHeight:], r.Height)
	le.PutUint32(b[12:], 0)
	le.PutUint64(b[offFrameID:], uint64(r.FrameID))
}

func decodeErrorVector(b []byte) ErrorVector {
	return ErrorVector{
		X: math.Float32frombits(le.Uint32(b[offErrX:])),
		Y: math.Float32frombits(le.Uint32(b[offErrY:])),
		Z: math.Float32frombits(le.Uint32(b[offErrZ:])),
	}
}

func encodeErrorVector(b []byte, v ErrorVector) {
	le.PutUint32(b[offErrX:], math.Float32bits(v.X))
	le.PutUint32(b[offErrY:], math.Float32bits(v.Y))
	le.PutUint32(b[offErrZ:], math.Float32bits(v.Z))
}

type controlHeader struct {
	Magic         uint32
	Version       uint16
	Ready         bool
	Attached      int32
	FrameCapacity uint32
	CreatorPID    uint32
}

func decodeControlHeader(b []byte) controlHeader {
	return controlHeader{
		Magic:         le.Uint32(b[offMagic:]),
		Version:       le.Uint16(b[offVersion:]),
		Ready:         le.Uint32(b[offReady:]) == 1,
		Attached:      int32(le.Uint32(b[offAttached:])),
		FrameCapacity: le.Uint32(b[offCapacity:]),
		CreatorPID:    le.Uint32(b[offCreatorPID:]),
	}
}

// encodeControlHeader writes every field except ready, which is published
// separately once the rest of the bus is initialized.
func encodeControlHeader(b []byte, h controlHeader) {
	clear(b[:controlHeaderSize])
	le.PutUint32(b[offMagic:], h.Magic)
	le.PutUint16(b[offVersion:], h.Version)
	le.PutUint32(b[offAttached:], uint32(h.Attached))
	le.PutUint32(b[offCapacity:], h.FrameCapacity)
	le.PutUint32(b[offCreatorPID:], h.CreatorPID)
}

func setReady(b []byte, ready bool) {
	var v uint32
	if ready {
		v = 1
	}
	le.PutUint32(b[offReady:], v)
}

func setAttached(b []byte, n int32) {
	le.PutUint32(b[offAttached:], uint32(n))
}
