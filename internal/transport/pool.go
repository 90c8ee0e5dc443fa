package transport

import "sync"

// DefaultBufferSize is the receive buffer size handed out by Pool; large
// enough for the default RTPS message_size_max without fragmentation.
const DefaultBufferSize = 65536

// Pool is a lock-free-from-the-caller's-perspective allocator for receive
// buffers (spec.md §4.3: "buffers are acquired from a lock-free pool,
// handed to a classifier, then returned"). Backed by sync.Pool, which is
// itself lock-free on the fast path.
type Pool struct {
	pool sync.Pool
}

// NewPool returns a Pool whose buffers are sized bufSize.
func NewPool(bufSize int) *Pool {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	return &Pool{
		pool: sync.Pool{
			New: func() interface{} {
				b := make([]byte, bufSize)
				return &b
			},
		},
	}
}

// Get returns a buffer whose length and capacity are the pool's configured
// size, ready for a ReadFrom-style call.
func (p *Pool) Get() []byte {
	b := *p.pool.Get().(*[]byte)
	return b[:cap(b)]
}

// Put returns a buffer to the pool once the caller (classifier) is done
// with it. The slice's capacity is preserved for reuse.
func (p *Pool) Put(b []byte) {
	b = b[:cap(b)]
	p.pool.Put(&b)
}
