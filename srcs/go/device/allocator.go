package device

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrOutOfMemory is returned when an allocation would exceed the device limit.
type ErrOutOfMemory struct {
	Device    Device
	Requested int64
	InUse     int64
	Limit     int64
}

func (e *ErrOutOfMemory) Error() string {
	return fmt.Sprintf("out of memory on %s: requested %d bytes with %d of %d in use", e.Device, e.Requested, e.InUse, e.Limit)
}

// Allocator tracks the bytes allocated on one device.
type Allocator struct {
	dev     Device
	limit   int64
	current int64
	peak    int64
	allocs  int64
}

// MemoryStats is a snapshot of an Allocator.
type MemoryStats struct {
	AllocatedBytes int64
	PeakBytes      int64
	NumAllocs      int64
}

func NewAllocator(dev Device) *Allocator {
	return &Allocator{dev: dev, limit: dev.MemoryBytes}
}

func (a *Allocator) Device() Device { return a.dev }

// Alloc reserves n bytes; a zero limit means unlimited.
func (a *Allocator) Alloc(n int64) error {
	for {
		cur := atomic.LoadInt64(&a.current)
		next := cur + n
		if a.limit > 0 && next > a.limit {
			return &ErrOutOfMemory{Device: a.dev, Requested: n, InUse: cur, Limit: a.limit}
		}
		if atomic.CompareAndSwapInt64(&a.current, cur, next) {
			atomic.AddInt64(&a.allocs, 1)
			for {
				peak := atomic.LoadInt64(&a.peak)
				if next <= peak || atomic.CompareAndSwapInt64(&a.peak, peak, next) {
					return nil
				}
			}
		}
	}
}

func (a *Allocator) Free(n int64) {
	atomic.AddInt64(&a.current, -n)
}

// AllocF32 returns a zeroed slice of n float32 accounted on the device.
func (a *Allocator) AllocF32(n int) ([]float32, error) {
	if err := a.Alloc(int64(n) * 4); err != nil {
		return nil, err
	}
	return make([]float32, n), nil
}

func (a *Allocator) FreeF32(xs []float32) {
	a.Free(int64(len(xs)) * 4)
}

func (a *Allocator) Stats() MemoryStats {
	return MemoryStats{
		AllocatedBytes: atomic.LoadInt64(&a.current),
		PeakBytes:      atomic.LoadInt64(&a.peak),
		NumAllocs:      atomic.LoadInt64(&a.allocs),
	}
}

var (
	mu         sync.Mutex
	allocators = make(map[string]*Allocator)
)

// AllocatorFor returns the process wide allocator of dev.
func AllocatorFor(dev Device) *Allocator {
	mu.Lock()
	defer mu.Unlock()
	key := dev.String()
	a, ok := allocators[key]
	if !ok {
		a = NewAllocator(dev)
		allocators[key] = a
	}
	return a
}
