package opcode

import "testing"

func TestAddAtSaturates(t *testing.T) {
	got := addAt(8, 120, 100, true)
	if got != 127 {
		t.Fatalf("addAt(8, 120, 100, saturating) = %d, want 127", got)
	}
}

func TestAddAtWraps(t *testing.T) {
	got := addAt(8, 120, 100, false)
	if got != -36 {
		t.Fatalf("addAt(8, 120, 100, wrapping) = %d, want -36", got)
	}
}

func TestSubAtSaturatesLow(t *testing.T) {
	got := subAt(8, -120, 100, true)
	if got != -128 {
		t.Fatalf("subAt(8, -120, 100, saturating) = %d, want -128", got)
	}
}

func TestMulAtSaturates(t *testing.T) {
	got := mulAt(16, 300, 300, true)
	if got != 32767 {
		t.Fatalf("mulAt(16, 300, 300, saturating) = %d, want 32767", got)
	}
}

func TestMulAtNoOverflowPassesThrough(t *testing.T) {
	got := mulAt(64, 6, 7, true)
	if got != 42 {
		t.Fatalf("mulAt(64, 6, 7, saturating) = %d, want 42", got)
	}
}

func TestShouldDispatchGPU(t *testing.T) {
	cases := []struct {
		cost, length, threshold int
		want                    bool
	}{
		{cost: 4, length: 1000, threshold: 1000, want: true},
		{cost: 4, length: 10, threshold: 1000, want: false},
		{cost: 0, length: 1000, threshold: 1, want: false},
		{cost: 4, length: 0, threshold: 1, want: false},
	}
	for _, c := range cases {
		if got := ShouldDispatchGPU(c.cost, c.length, c.threshold); got != c.want {
			t.Errorf("ShouldDispatchGPU(%d, %d, %d) = %v, want %v", c.cost, c.length, c.threshold, got, c.want)
		}
	}
}

func TestDivByZero(t *testing.T) {
	o, ok := Lookup("div")
	if !ok {
		t.Fatal("div opcode not registered")
	}
	v, err := o.Eval([]Value{I64(1), I64(0)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Tag != 1 {
		t.Fatalf("div by zero: got Tag %d, want 1 (Err)", v.Tag)
	}
}

func TestDivOk(t *testing.T) {
	o, _ := Lookup("div")
	v, err := o.Eval([]Value{I64(10), I64(4)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Tag != 0 || v.Arr[0].I != 2 {
		t.Fatalf("div(10, 4) = %+v, want Ok(2)", v)
	}
}
