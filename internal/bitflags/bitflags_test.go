package bitflags

import "testing"

type testFlags uint16

const (
	flagA testFlags = 1 << iota
	flagB
	flagC
)

var testNames = map[testFlags]string{flagA: "a", flagB: "b", flagC: "c"}

func TestHasAny(t *testing.T) {
	f := flagA | flagC
	if !Has(f, flagA) || !Has(f, flagA|flagC) {
		t.Errorf("Has(%v) should contain a and c", f)
	}
	if Has(f, flagA|flagB) {
		t.Errorf("Has(%v, a|b) = true, want false", f)
	}
	if !Any(f, flagA|flagB) {
		t.Errorf("Any(%v, a|b) = false, want true", f)
	}
	if Any(f, flagB) {
		t.Errorf("Any(%v, b) = true, want false", f)
	}
}

func TestEachAndCount(t *testing.T) {
	var got []testFlags
	Each(flagC|flagA, func(b testFlags) { got = append(got, b) })
	if len(got) != 2 || got[0] != flagA || got[1] != flagC {
		t.Errorf("Each order = %v, want [a c]", got)
	}
	if Count(flagA|flagB|flagC) != 3 {
		t.Errorf("Count = %d, want 3", Count(flagA|flagB|flagC))
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		in   testFlags
		want string
	}{
		{0, "none"},
		{flagB, "b"},
		{flagA | flagC, "a|c"},
		{flagA | 0x100, "a|0x100"},
	}
	for _, tt := range tests {
		if got := Format(tt.in, testNames, "none"); got != tt.want {
			t.Errorf("Format(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
