package checksum

import "testing"

func TestSum(t *testing.T) {
	a := Sum([]byte(`{"kind":"symbol"}`))
	if len(a) != 16 {
		t.Fatalf("len = %d, want 16", len(a))
	}
	if a != Sum([]byte(`{"kind":"symbol"}`)) {
		t.Error("same input produced different sums")
	}
	if a == Sum([]byte(`{"kind":"article"}`)) {
		t.Error("different input produced the same sum")
	}
}
