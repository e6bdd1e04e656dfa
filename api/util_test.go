package api

import "testing"

func TestRoundpow2(t *testing.T) {
	testcases := [][2]int64{
		{0, 8}, {1, 8}, {7, 8}, {8, 8}, {9, 16}, {16, 16}, {17, 32},
		{33, 64}, {64, 64}, {65, 128}, {1000, 1024}, {1 << 30, 1 << 30},
		{(1 << 30) + 1, 1 << 31},
	}
	for _, tcase := range testcases {
		if x := Roundpow2(tcase[0]); x != tcase[1] {
			t.Errorf("for %v expected %v, got %v", tcase[0], tcase[1], x)
		}
	}
	if x := Roundpow2((1 << 62) + 1); x >= 0 {
		t.Errorf("expected overflow, got %v", x)
	}
}

func TestLog2(t *testing.T) {
	testcases := []struct {
		size uint64
		log  int
	}{
		{0, 3}, {1, 3}, {8, 3}, {9, 4}, {16, 4}, {17, 5}, {32, 5}, {33, 6},
		{64, 6}, {65, 7}, {1 << 20, 20}, {(1 << 20) + 1, 21},
		{1 << 62, 62}, {(1 << 62) + 1, 63}, {1 << 63, 64}, {^uint64(0), 64},
	}
	for _, tcase := range testcases {
		if x := Log2(tcase.size); x != tcase.log {
			t.Errorf("for %v expected %v, got %v", tcase.size, tcase.log, x)
		}
	}
}

func TestAlign(t *testing.T) {
	if x := Align(0, 16); x != 0 {
		t.Errorf("expected %v, got %v", 0, x)
	} else if x = Align(1, 16); x != 16 {
		t.Errorf("expected %v, got %v", 16, x)
	} else if x = Align(48, 16); x != 48 {
		t.Errorf("expected %v, got %v", 48, x)
	} else if x = Align(4097, 4096); x != 8192 {
		t.Errorf("expected %v, got %v", 8192, x)
	}
	if Aligned(uintptr(32), 16) == false {
		t.Errorf("expected aligned")
	} else if Aligned(uintptr(40), 16) == true {
		t.Errorf("expected misaligned")
	}
}

func BenchmarkLog2(b *testing.B) {
	for i := 0; i < b.N; i++ {
		Log2(uint64(i))
	}
}

func BenchmarkRoundpow2(b *testing.B) {
	for i := 0; i < b.N; i++ {
		Roundpow2(int64(i))
	}
}
