// Package memplugin provides helper functions for WASM scenario guests.
package memplugin

// PackResult combines a pointer and a length into a single uint64 result.
func PackResult(ptr, length uint32) uint64 {
	return uint64(ptr)<<32 | uint64(length)
}

// UnpackResult splits a packed uint64 into pointer and length.
func UnpackResult(combined uint64) (uint32, uint32) {
	return uint32(combined >> 32), uint32(combined & 0xFFFFFFFF)
}

// WriteResult allocates guest memory for data, writes it, and returns the
// packed result.
func WriteResult(data []byte) uint64 {
	if len(data) == 0 {
		return 0
	}

	ptr := Alloc(uint32(len(data)))
	WriteBytes(ptr, data)

	return PackResult(ptr, uint32(len(data)))
}

// WriteError writes an error message as the scenario result and returns the
// packed result.
func WriteError(msg string) uint64 {
	return WriteResult([]byte("scenario error: " + msg))
}
