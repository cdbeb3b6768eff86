// Package bus is the shared-memory telemetry bus between the station and the
// tracker.
//
// A Bus owns four segments and three semaphores:
//
//	control   ControlHeader: magic, ready flag, attach count, capacity
//	info      FrameRecord of the latest frame
//	data      payload of the latest frame
//	error     ErrorVector of the latest tracking error
//	FrameLock   guards info and data (SEM_UNDO)
//	ErrorLock   guards error (SEM_UNDO)
//	FrameSignal doorbell rung on publish, consumed by the frame reader
//
// Open and Close run under an exclusive file lock. The first opener finds
// the control header not ready and initializes every object; later openers
// only attach. The closer that drops the attach count to zero removes every
// object from the kernel namespace, so a clean shutdown of both processes
// leaves nothing behind.
//
// Both channels hold only the latest value. Readers of FrameChannel detect
// freshness through the strictly increasing frame id; ErrorChannel has no
// freshness and a stale vector is still actionable.
package bus
