// Package pool recycles byte buffers between file copies and content
// fingerprints so large transfers do not churn the garbage collector.
package pool

import (
	"fmt"
	"math/bits"
	"sync"
)

// BucketedBufferPool hands out buffers from power-of-two size classes. A
// request is served from the smallest class that fits it.
type BucketedBufferPool struct {
	minExp  int
	maxExp  int
	buckets []sync.Pool
}

// NewBucketedBufferPool creates a pool with classes from minSize to maxSize.
// Both bounds must be powers of two and minSize must be below maxSize.
func NewBucketedBufferPool(minSize, maxSize int64) *BucketedBufferPool {
	if !isPowerOfTwo(minSize) {
		panic(fmt.Sprintf("pool: minSize %d is not a power of two", minSize))
	}
	if !isPowerOfTwo(maxSize) {
		panic(fmt.Sprintf("pool: maxSize %d is not a power of two", maxSize))
	}
	if maxSize <= minSize {
		panic(fmt.Sprintf("pool: maxSize %d must exceed minSize %d", maxSize, minSize))
	}

	minExp := bits.TrailingZeros64(uint64(minSize))
	maxExp := bits.TrailingZeros64(uint64(maxSize))
	bp := &BucketedBufferPool{
		minExp:  minExp,
		maxExp:  maxExp,
		buckets: make([]sync.Pool, maxExp+1),
	}
	for exp := minExp; exp <= maxExp; exp++ {
		size := int64(1) << exp
		bp.buckets[exp].New = func() any {
			b := make([]byte, size)
			return &b
		}
	}
	return bp
}

// Get returns a buffer of length size. Sizes above the largest class are
// allocated fresh and never pooled.
func (bp *BucketedBufferPool) Get(size int64) *[]byte {
	if size <= 0 {
		b := []byte{}
		return &b
	}
	if size > int64(1)<<bp.maxExp {
		b := make([]byte, size)
		return &b
	}

	// Len64(size-1) is the exponent of the smallest power of two >= size.
	exp := max(bits.Len64(uint64(size-1)), bp.minExp)
	bufPtr := bp.buckets[exp].Get().(*[]byte)
	*bufPtr = (*bufPtr)[:size]
	return bufPtr
}

// Put returns a buffer obtained from Get. Buffers whose capacity is not one of
// the pool's classes are dropped.
func (bp *BucketedBufferPool) Put(bufPtr *[]byte) {
	if bufPtr == nil {
		return
	}
	capacity := int64(cap(*bufPtr))
	if !isPowerOfTwo(capacity) {
		return
	}
	exp := bits.TrailingZeros64(uint64(capacity))
	if exp < bp.minExp || exp > bp.maxExp {
		return
	}
	*bufPtr = (*bufPtr)[:capacity]
	bp.buckets[exp].Put(bufPtr)
}

// FixedBufferPool hands out buffers of a single size.
type FixedBufferPool struct {
	size int64
	pool sync.Pool
}

func NewFixedBufferPool(size int64) *FixedBufferPool {
	fp := &FixedBufferPool{size: size}
	fp.pool.New = func() any {
		b := make([]byte, size)
		return &b
	}
	return fp
}

// Size is the length of every buffer returned by Get.
func (fp *FixedBufferPool) Size() int64 { return fp.size }

func (fp *FixedBufferPool) Get() *[]byte {
	return fp.pool.Get().(*[]byte)
}

func (fp *FixedBufferPool) Put(b *[]byte) {
	if b == nil || int64(cap(*b)) != fp.size {
		return
	}
	*b = (*b)[:fp.size]
	fp.pool.Put(b)
}

func isPowerOfTwo(n int64) bool {
	return n > 0 && n&(n-1) == 0
}
