package memsys

// allocAlign is the granularity the default allocator rounds request sizes
// up to.
const allocAlign = 8

// Default returns the built-in allocator capability set. It delegates to the
// Go runtime, reports cap as the usable size, and leaves reclamation to the
// garbage collector.
func Default() Methods {
	return Methods{
		Alloc:    defaultAlloc,
		Realloc:  defaultRealloc,
		Free:     func([]byte) {},
		Size:     func(p []byte) int { return cap(p) },
		Roundup:  defaultRoundup,
		Init:     func(any) error { return nil },
		Shutdown: func(any) {},
	}
}

func defaultAlloc(n int) []byte {
	if n <= 0 {
		return nil
	}

	return make([]byte, n, defaultRoundup(n))
}

func defaultRealloc(p []byte, n int) []byte {
	if p == nil {
		return defaultAlloc(n)
	}
	if n <= 0 {
		return nil
	}
	if n <= cap(p) {
		return p[:n]
	}

	q := defaultAlloc(n)
	copy(q, p)

	return q
}

func defaultRoundup(n int) int {
	return (n + allocAlign - 1) &^ (allocAlign - 1)
}
