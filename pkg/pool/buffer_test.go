package pool

import (
	"testing"
)

func TestNewBucketedBufferPoolPanics(t *testing.T) {
	testCases := []struct {
		name     string
		min, max int64
	}{
		{"Min Not Power Of Two", 1000, 4096},
		{"Max Not Power Of Two", 1024, 4097},
		{"Max Below Min", 4096, 1024},
		{"Max Equals Min", 4096, 4096},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Errorf("expected panic for %d..%d", tc.min, tc.max)
				}
			}()
			NewBucketedBufferPool(tc.min, tc.max)
		})
	}

	// Valid bounds must not panic.
	_ = NewBucketedBufferPool(4096, 1<<20)
}

func TestBucketedBufferPoolGet(t *testing.T) {
	bp := NewBucketedBufferPool(4096, 65536)

	testCases := []struct {
		name    string
		size    int64
		wantLen int
		wantCap int
	}{
		{"Zero", 0, 0, 0},
		{"Negative", -5, 0, 0},
		{"Below Smallest Class", 100, 100, 4096},
		{"Exact Class", 8192, 8192, 8192},
		{"Between Classes", 9000, 9000, 16384},
		{"Largest Class", 65536, 65536, 65536},
		{"Above Largest Class", 70000, 70000, 70000},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			bufPtr := bp.Get(tc.size)
			if bufPtr == nil {
				t.Fatal("Get returned nil")
			}
			if len(*bufPtr) != tc.wantLen {
				t.Errorf("got len %d, want %d", len(*bufPtr), tc.wantLen)
			}
			if cap(*bufPtr) < tc.wantCap {
				t.Errorf("got cap %d, want at least %d", cap(*bufPtr), tc.wantCap)
			}
			bp.Put(bufPtr)
		})
	}
}

func TestBucketedBufferPoolPutRestoresCapacity(t *testing.T) {
	bp := NewBucketedBufferPool(4096, 16384)

	bufPtr := bp.Get(5000)
	bp.Put(bufPtr)
	if len(*bufPtr) != cap(*bufPtr) {
		t.Errorf("expected Put to reset length to capacity, got len %d cap %d", len(*bufPtr), cap(*bufPtr))
	}

	// Foreign buffers are ignored without panicking.
	for _, size := range []int{512, 3000, 32768} {
		b := make([]byte, size)
		bp.Put(&b)
	}
	bp.Put(nil)
}

func TestFixedBufferPool(t *testing.T) {
	fp := NewFixedBufferPool(2048)
	if fp.Size() != 2048 {
		t.Errorf("got size %d, want 2048", fp.Size())
	}

	ptr := fp.Get()
	if len(*ptr) != 2048 || cap(*ptr) != 2048 {
		t.Errorf("got len %d cap %d, want 2048", len(*ptr), cap(*ptr))
	}
	*ptr = (*ptr)[:10]
	fp.Put(ptr)
	if len(*ptr) != 2048 {
		t.Errorf("expected Put to restore the full length, got %d", len(*ptr))
	}

	small := make([]byte, 10)
	fp.Put(&small)
	fp.Put(nil)
}
