package bus

// NoFrame is the frame id before anything was published.
const NoFrame int64 = -1

// FrameRecord is the metadata of the latest published frame.
type FrameRecord struct {
	Size    uint32
	Width   uint32
	Height  uint32
	FrameID int64
}

// Frame is a reader-owned copy of a published frame. Data is reused by the
// next successful drain on the same reader.
type Frame struct {
	FrameRecord
	Data []byte
}

// ErrorVector is the normalized tracking error. The zero vector means
// "centered" and is also the initial value.
type ErrorVector struct {
	X float32
	Y float32
	Z float32
}

// Keys names the System V objects of one bus.
type Keys struct {
	FrameInfo   int
	FrameData   int
	Error       int
	Control     int
	FrameLock   int
	ErrorLock   int
	FrameSignal int
}

// DefaultKeys returns the keys the drone station has always used.
func DefaultKeys() Keys {
	return Keys{
		FrameInfo:   1333,
		FrameData:   1313,
		Error:       1995,
		Control:     1334,
		FrameLock:   9999,
		ErrorLock:   6666,
		FrameSignal: 9998,
	}
}

func (k Keys) segments() []int {
	return []int{k.Control, k.FrameInfo, k.FrameData, k.Error}
}

func (k Keys) semaphores() []int {
	return []int{k.FrameLock, k.ErrorLock, k.FrameSignal}
}
