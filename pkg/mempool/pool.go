// Package mempool implements a fixed-size object pool with free-list
// reuse and slab-based growth. The classifier uses it to recycle
// per-classification scratch state off the hot path's allocation
// profile.
package mempool

import "sync"

// Pool hands out *T values from an internal free list, growing by
// whole slabs when the list runs dry. Objects come back via Put in
// whatever state the caller left them; resetting is the caller's
// concern, which lets map-carrying scratch types keep their capacity.
type Pool[T any] struct {
	mu        sync.Mutex
	free      []*T
	used      int
	capacity  int
	maxTotal  int // 0 = unbounded
	growBy    int
	numaNode  int
}

// Options configures a Pool.
type Options struct {
	// InitialCapacity is the number of objects pre-allocated at
	// construction. Zero defaults to 64.
	InitialCapacity int
	// MaxCapacity caps total pool growth. Zero means unbounded.
	MaxCapacity int
	// NUMANode records the preferred NUMA node for diagnostics. The Go
	// runtime owns placement; -1 means unspecified.
	NUMANode int
}

// New creates a pool with the given options.
func New[T any](opts Options) *Pool[T] {
	initial := opts.InitialCapacity
	if initial <= 0 {
		initial = 64
	}
	p := &Pool[T]{
		maxTotal: opts.MaxCapacity,
		growBy:   initial,
		numaNode: opts.NUMANode,
	}
	p.grow(initial)
	return p
}

// grow adds one slab of n objects. Caller holds p.mu (or the pool is
// still private to the constructor). A single backing slice keeps the
// slab's objects adjacent.
func (p *Pool[T]) grow(n int) bool {
	if p.maxTotal > 0 && p.capacity+n > p.maxTotal {
		n = p.maxTotal - p.capacity
		if n <= 0 {
			return false
		}
	}
	slab := make([]T, n)
	for i := range slab {
		p.free = append(p.free, &slab[i])
	}
	p.capacity += n
	return true
}

// Get returns an object from the pool, growing if needed. It returns
// nil only when a MaxCapacity is set and every object is in use.
func (p *Pool[T]) Get() *T {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) == 0 && !p.grow(p.growBy) {
		return nil
	}
	obj := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	p.used++
	return obj
}

// Put returns an object to the free list. Only objects obtained from
// this pool may be returned, each exactly once.
func (p *Pool[T]) Put(obj *T) {
	if obj == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, obj)
	p.used--
}

// Used returns the number of objects currently handed out.
func (p *Pool[T]) Used() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.used
}

// Capacity returns the total objects the pool currently holds,
// free and handed out.
func (p *Pool[T]) Capacity() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capacity
}

// NUMANode returns the node hint recorded at construction.
func (p *Pool[T]) NUMANode() int { return p.numaNode }
