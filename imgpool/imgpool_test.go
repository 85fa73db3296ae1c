package imgpool_test

import (
	"testing"

	"github.jpl.nasa.gov/bdube/prosilica/imgpool"
)

func TestAllocateReleaseAccounting(t *testing.T) {
	p := imgpool.New(1024)
	a, err := p.Allocate(32, 32, 1024)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	b, err := p.Allocate(32, 32, 1024)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if p.InUse() != 2 {
		t.Errorf("expected 2 in use, got %d", p.InUse())
	}
	p.Release(a)
	if p.InUse() != 1 || p.Free() != 1 {
		t.Errorf("expected 1 in use 1 free, got %d/%d", p.InUse(), p.Free())
	}
	p.Release(b)
	if p.InUse() != 0 || p.Free() != 2 {
		t.Errorf("expected 0 in use 2 free, got %d/%d", p.InUse(), p.Free())
	}
}

func TestFreeListReuse(t *testing.T) {
	p := imgpool.New(64)
	a, _ := p.Allocate(8, 8, 64)
	p.Release(a)
	b, _ := p.Allocate(8, 8, 64)
	if &a.Data[0] != &b.Data[0] {
		t.Error("expected the released block's storage to be reused")
	}
}

func TestOversizeRequestRejected(t *testing.T) {
	p := imgpool.New(16)
	_, err := p.Allocate(8, 8, 64)
	if err == nil {
		t.Error("expected error allocating beyond the block size")
	}
}

func TestDoubleReleaseIsNoOp(t *testing.T) {
	p := imgpool.New(64)
	a, _ := p.Allocate(8, 8, 64)
	p.Release(a)
	p.Release(a)
	p.Release(nil)
	if p.Free() != 1 {
		t.Errorf("expected 1 free block after double release, got %d", p.Free())
	}
	if p.InUse() != 0 {
		t.Errorf("expected 0 in use after double release, got %d", p.InUse())
	}
}

func TestPixelsWindow(t *testing.T) {
	p := imgpool.New(1024)
	im, _ := p.Allocate(10, 10, 1024)
	im.DataType = imgpool.UInt16
	pix := im.Pixels()
	if len(pix) != 200 {
		t.Errorf("expected 200 live bytes for 10x10 uint16, got %d", len(pix))
	}
}

func TestDataTypeSizes(t *testing.T) {
	cases := []struct {
		dt   imgpool.DataType
		size int
	}{
		{imgpool.UInt8, 1},
		{imgpool.UInt16, 2},
		{imgpool.UInt32, 4},
	}
	for _, tc := range cases {
		if got := tc.dt.Size(); got != tc.size {
			t.Errorf("%v: expected size %d, got %d", tc.dt, tc.size, got)
		}
	}
}
