package memsys

import (
	"sync"
)

// PagePool is a bucketed page allocator used to exercise the harness against
// a pooled backing store instead of the Go heap. Buckets double from the
// smallest size up to the configured page size; requests above the page size
// bypass the pool entirely.
type PagePool struct {
	mu       sync.RWMutex
	pools    map[int]*sync.Pool
	buckets  []int
	pageSize int

	// Metrics for pool usage.
	statsMu   sync.Mutex
	hits      int64 // buffer reuse hits
	misses    int64 // fresh allocations
	oversized int64 // requests above the page size
	requests  int64 // total requests
}

// minPageBucket is the smallest bucket a pool carries.
const minPageBucket = 64

// NewPagePool creates a pool whose largest bucket holds pageSize bytes and
// pre-populates that bucket with nPages pages.
func NewPagePool(pageSize, nPages int) *PagePool {
	if pageSize < minPageBucket {
		pageSize = minPageBucket
	}

	var buckets []int
	for size := minPageBucket; size < pageSize; size *= 2 {
		buckets = append(buckets, size)
	}
	buckets = append(buckets, pageSize)

	pools := make(map[int]*sync.Pool, len(buckets))
	for _, size := range buckets {
		size := size
		pools[size] = &sync.Pool{
			New: func() any {
				return make([]byte, 0, size)
			},
		}
	}

	pp := &PagePool{
		pools:    pools,
		buckets:  buckets,
		pageSize: pageSize,
	}
	pp.Prewarm(nPages)

	return pp
}

// bucketFor returns the smallest bucket that fits size, or 0 when the
// request must bypass the pool.
func (pp *PagePool) bucketFor(size int) int {
	for _, bs := range pp.buckets {
		if bs >= size {
			return bs
		}
	}

	return 0
}

// Get returns a buffer of exactly size bytes with bucket-sized capacity.
func (pp *PagePool) Get(size int) []byte {
	if size <= 0 {
		return nil
	}

	pp.statsMu.Lock()
	pp.requests++
	pp.statsMu.Unlock()

	bucket := pp.bucketFor(size)
	if bucket == 0 {
		pp.statsMu.Lock()
		pp.oversized++
		pp.misses++
		pp.statsMu.Unlock()

		return make([]byte, size)
	}

	pp.mu.RLock()
	pool := pp.pools[bucket]
	pp.mu.RUnlock()

	buf, ok := pool.Get().([]byte)
	if !ok || cap(buf) < size {
		pp.statsMu.Lock()
		pp.misses++
		pp.statsMu.Unlock()

		return make([]byte, size, bucket)
	}

	pp.statsMu.Lock()
	pp.hits++
	pp.statsMu.Unlock()

	return buf[:size:cap(buf)]
}

// Put returns a buffer to its bucket. Oversized buffers are dropped for the
// garbage collector. Returned pages are cleared before reuse.
func (pp *PagePool) Put(buf []byte) {
	if buf == nil {
		return
	}

	bucket := pp.bucketFor(cap(buf))
	if bucket == 0 || bucket != cap(buf) {
		return
	}

	buf = buf[:cap(buf)]
	clear(buf)

	pp.mu.RLock()
	pool := pp.pools[bucket]
	pp.mu.RUnlock()
	pool.Put(buf[:0:cap(buf)])
}

// Prewarm populates the page-size bucket with count ready pages.
func (pp *PagePool) Prewarm(count int) {
	pp.mu.RLock()
	pool := pp.pools[pp.pageSize]
	pp.mu.RUnlock()

	for i := 0; i < count; i++ {
		pool.Put(make([]byte, 0, pp.pageSize))
	}
}

// Trim discards every pooled page, handing the memory back to the garbage
// collector.
func (pp *PagePool) Trim() {
	pp.mu.Lock()
	defer pp.mu.Unlock()

	for size, pool := range pp.pools {
		pp.pools[size] = &sync.Pool{
			New: pool.New,
		}
	}
}

// Stats reports pool usage counters.
func (pp *PagePool) Stats() map[string]int64 {
	pp.statsMu.Lock()
	defer pp.statsMu.Unlock()

	return map[string]int64{
		"requests":  pp.requests,
		"hits":      pp.hits,
		"misses":    pp.misses,
		"oversized": pp.oversized,
	}
}

// PageSize returns the configured page size.
func (pp *PagePool) PageSize() int {
	return pp.pageSize
}

// Methods returns a capability set backed by the pool, suitable for
// SetMethods.
func (pp *PagePool) Methods() Methods {
	return Methods{
		Alloc: pp.Get,
		Realloc: func(p []byte, n int) []byte {
			if p == nil {
				return pp.Get(n)
			}
			if n <= 0 {
				pp.Put(p)
				return nil
			}
			if n <= cap(p) {
				return p[:n]
			}

			q := pp.Get(n)
			copy(q, p)
			pp.Put(p)

			return q
		},
		Free: pp.Put,
		Size: func(p []byte) int { return cap(p) },
		Roundup: func(n int) int {
			if bucket := pp.bucketFor(n); bucket != 0 {
				return bucket
			}

			return defaultRoundup(n)
		},
		Init:     func(any) error { return nil },
		Shutdown: func(any) { pp.Trim() },
		AppData:  pp,
	}
}
