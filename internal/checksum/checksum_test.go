package checksum

import "testing"

func TestSum_Stable(t *testing.T) {
	if Sum([]byte("a")) != Sum([]byte("a")) {
		t.Fatal("sum not stable")
	}
	if len(Sum(nil)) != 64 {
		t.Errorf("len = %d, want 64", len(Sum(nil)))
	}
}

func TestCombine_OrderMatters(t *testing.T) {
	if Combine([]string{"a", "b"}) == Combine([]string{"b", "a"}) {
		t.Error("order should change the combined digest")
	}
	if Combine([]string{"ab"}) == Combine([]string{"a", "b"}) {
		t.Error("boundaries should change the combined digest")
	}
}
