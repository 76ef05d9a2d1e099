package state

import "testing"

func TestBitsetInsertRemoveContains(t *testing.T) {
	var set Bitset
	if set.Contains(5) {
		t.Fatalf("empty set should not contain 5")
	}

	if err := set.Set(2); err != nil {
		t.Fatalf("Set(2): %v", err)
	}
	if !set.Contains(2) {
		t.Errorf("set should contain 2")
	}
	if err := set.Clear(2); err != nil {
		t.Fatalf("Clear(2): %v", err)
	}
	if set.Contains(2) {
		t.Errorf("set should not contain 2 after clear")
	}

	for _, x := range []int{19, 129, 255} {
		if err := set.Set(x); err != nil {
			t.Fatalf("Set(%d): %v", x, err)
		}
		if !set.Contains(x) {
			t.Errorf("set should contain %d", x)
		}
	}
	if err := set.Set(256); err == nil {
		t.Errorf("Set(256) should fail")
	}
}

func TestBitsetFindFirstClearAndSet(t *testing.T) {
	var set Bitset
	idx, err := set.FindFirstClearAndSet()
	if err != nil || idx != 0 {
		t.Fatalf("first insert = (%d, %v), want (0, nil)", idx, err)
	}
	if err := set.Clear(0); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	for i := 0; i < MaxProducts; i++ {
		idx, err := set.FindFirstClearAndSet()
		if err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
		if idx != i {
			t.Fatalf("insert %d landed at %d", i, idx)
		}
	}
	if _, err := set.FindFirstClearAndSet(); err == nil {
		t.Errorf("full set should refuse another insert")
	}
	if set.Count() != MaxProducts {
		t.Errorf("Count = %d, want %d", set.Count(), MaxProducts)
	}

	set.Clear(111)
	idx, err = set.FindFirstClearAndSet()
	if err != nil || idx != 111 {
		t.Errorf("cleared bit should be reused: (%d, %v)", idx, err)
	}
}
